package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mindroom/matty/internal/domain"
	"github.com/mindroom/matty/internal/handles"
	"github.com/mindroom/matty/internal/session"
	"github.com/mindroom/matty/internal/transport"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	reg := handles.New(t.TempDir(), "https://matrix.org", func(string, ...any) {})
	engine := session.New(session.Config{}, func() transport.Transport { return nil }, reg, nil)
	return InitialModel(engine, "@me:x")
}

func typeString(m Model, s string) Model {
	for _, r := range s {
		var msg tea.KeyMsg
		if r == ' ' {
			msg = tea.KeyMsg{Type: tea.KeySpace}
		} else {
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
		}
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestTypingAndBackspace(t *testing.T) {
	m := newTestModel(t)
	m = typeString(m, "hello there")

	if m.input != "hello there" {
		t.Errorf("input = %q", m.input)
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	m = next.(Model)
	if m.input != "hello ther" {
		t.Errorf("after backspace input = %q", m.input)
	}
}

func TestCtrlRIssuesReconnect(t *testing.T) {
	m := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	if cmd == nil {
		t.Fatal("ctrl+r must return a reconnect command")
	}
}

func TestTabOpensCompletionMenu(t *testing.T) {
	m := newTestModel(t)
	m = typeString(m, "/re")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	if !m.completionOn {
		t.Fatal("completion menu should be open")
	}
	if len(m.completions) != 3 { // /reply /react /redact
		t.Errorf("completions = %v", m.completions)
	}

	// Tab again cycles the selection.
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	if m.completionIdx != 1 {
		t.Errorf("completionIdx = %d", m.completionIdx)
	}

	// Enter accepts the highlighted candidate.
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if m.completionOn {
		t.Error("menu should close on accept")
	}
	if m.input != "/react " {
		t.Errorf("input = %q", m.input)
	}
}

func TestEscClosesCompletionThenClearsInput(t *testing.T) {
	m := newTestModel(t)
	m = typeString(m, "/re")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	if m.completionOn {
		t.Error("first esc closes the menu")
	}
	if m.input != "/re" {
		t.Errorf("input = %q, esc must not clear it while closing the menu", m.input)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	if m.input != "" {
		t.Errorf("second esc clears the input, got %q", m.input)
	}
}

func TestHistoryNavigation(t *testing.T) {
	m := newTestModel(t)
	m.history = []string{"first", "second"}
	m.historyIdx = -1
	m = typeString(m, "draft")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = next.(Model)
	if m.input != "second" {
		t.Errorf("input = %q", m.input)
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = next.(Model)
	if m.input != "first" {
		t.Errorf("input = %q", m.input)
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	if m.input != "draft" {
		t.Errorf("input = %q, want the draft restored", m.input)
	}
}

func TestObserverMessagesUpdateModel(t *testing.T) {
	m := newTestModel(t)
	msgs := []domain.Message{{EventID: "$e1", Sender: "@ana:x", Body: "hi", Handle: "m1"}}

	next, _ := m.Update(MessagesMsg{Messages: msgs, NewIDs: []string{"$e1"}})
	m = next.(Model)
	if len(m.messages) != 1 {
		t.Fatalf("messages = %v", m.messages)
	}

	next, _ = m.Update(StatusMsg{Status: "room: general"})
	m = next.(Model)
	if m.status != "room: general" {
		t.Errorf("status = %q", m.status)
	}

	next, _ = m.Update(NoticeMsg{Text: "unknown command: /x", Severity: session.SeverityError})
	m = next.(Model)
	if !strings.Contains(m.View(), "unknown command") {
		t.Error("notice missing from view")
	}
}

func TestFormatMessage(t *testing.T) {
	msg := domain.Message{
		EventID: "$e1", Sender: "@ana:matrix.org", Body: "hello world",
		Handle: "m1", Reactions: map[string][]string{"👍": {"@bob:x", "@c:x"}},
	}
	lines := FormatMessage(msg, "@me:x", 60)
	if len(lines) < 3 {
		t.Fatalf("lines = %v", lines)
	}
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "[m1]") || !strings.Contains(joined, "ana") {
		t.Errorf("header missing handle or sender: %q", lines[0])
	}
	if !strings.Contains(joined, "👍 2") {
		t.Errorf("reactions line missing: %v", lines)
	}
}

func TestWrapWords(t *testing.T) {
	lines := WrapWords("aaa bbb ccc ddd", 7)
	want := []string{"aaa bbb", "ccc ddd"}
	if len(lines) != 2 || lines[0] != want[0] || lines[1] != want[1] {
		t.Errorf("WrapWords = %v, want %v", lines, want)
	}
	long := WrapWords(strings.Repeat("x", 25), 10)
	if len(long) != 3 {
		t.Errorf("long word split = %v", long)
	}
}
