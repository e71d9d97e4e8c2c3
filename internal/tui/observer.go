package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gen2brain/beeep"

	"github.com/mindroom/matty/internal/domain"
	"github.com/mindroom/matty/internal/session"
)

// Bubble Tea messages delivered by the engine observer.

// MessagesMsg carries the new message buffer for the current selection.
type MessagesMsg struct {
	Messages []domain.Message
	NewIDs   []string
}

// ThreadsMsg carries the current room's thread roots.
type ThreadsMsg struct {
	Roots []domain.Message
}

// NoticeMsg carries a user-facing notice.
type NoticeMsg struct {
	Text     string
	Severity session.Severity
}

// StatusMsg carries the status line.
type StatusMsg struct {
	Status string
}

// Relay adapts the engine's observer callbacks onto the Bubble Tea
// program. ownID suppresses desktop notifications for the user's own
// messages.
type Relay struct {
	send          func(tea.Msg)
	ownID         string
	desktopNotify bool
}

// NewRelay builds a relay that posts to p. Pass desktopNotify=false to
// disable beeep notifications (e.g. when the user turned them off).
func NewRelay(p *tea.Program, ownID string, desktopNotify bool) *Relay {
	return &Relay{send: p.Send, ownID: ownID, desktopNotify: desktopNotify}
}

func (r *Relay) OnMessagesChanged(messages []domain.Message, newIDs []string) {
	r.send(MessagesMsg{Messages: messages, NewIDs: newIDs})
	if !r.desktopNotify || len(newIDs) == 0 {
		return
	}
	fresh := freshFromOthers(messages, newIDs, r.ownID)
	if len(fresh) == 0 {
		return
	}
	title := "matty"
	body := fmt.Sprintf("%d new message(s)", len(fresh))
	if len(fresh) == 1 {
		title = "matty: " + domain.Localpart(fresh[0].Sender)
		body = fresh[0].Preview(120)
	}
	// Desktop notification failures are not worth surfacing.
	_ = beeep.Notify(title, body, "")
}

func (r *Relay) OnThreadsChanged(roots []domain.Message) {
	r.send(ThreadsMsg{Roots: roots})
}

func (r *Relay) OnNotification(text string, sev session.Severity) {
	r.send(NoticeMsg{Text: text, Severity: sev})
}

func (r *Relay) OnStatus(status string) {
	r.send(StatusMsg{Status: status})
}

// freshFromOthers filters the newly seen messages down to those sent
// by someone else.
func freshFromOthers(messages []domain.Message, newIDs []string, ownID string) []domain.Message {
	idSet := make(map[string]bool, len(newIDs))
	for _, id := range newIDs {
		idSet[id] = true
	}
	var out []domain.Message
	for _, m := range messages {
		if idSet[m.EventID] && m.Sender != ownID {
			out = append(out, m)
		}
	}
	return out
}
