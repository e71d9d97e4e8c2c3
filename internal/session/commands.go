package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/mindroom/matty/internal/content"
	"github.com/mindroom/matty/internal/domain"
)

// Tokenize splits a command line into arguments. Double or single
// quotes group words: `"a b" c` becomes ["a b", "c"]. An unterminated
// quote is a parse error, not a crash.
func Tokenize(line string) ([]string, error) {
	var args []string
	var cur strings.Builder
	inToken := false
	var quote byte

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				cur.WriteByte(c)
			}
		case c == '"' || c == '\'':
			quote = c
			inToken = true
		case c == ' ' || c == '\t':
			if inToken {
				args = append(args, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteByte(c)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	if inToken {
		args = append(args, cur.String())
	}
	return args, nil
}

// HandleInput processes one line of user input: a slash command or a
// plain message for the current room/thread. It never blocks on the
// network; sends run as independent goroutines that a later input
// cannot cancel.
func (e *Engine) HandleInput(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if !strings.HasPrefix(line, "/") {
		e.mu.Lock()
		ready := e.state.Authenticated && e.state.RoomID != ""
		e.mu.Unlock()
		if !ready {
			e.notify("please wait, still connecting", SeverityInfo)
			return
		}
		e.send(ctx, line, content.Options{})
		return
	}

	args, err := Tokenize(strings.TrimPrefix(line, "/"))
	if err != nil {
		e.notify(fmt.Sprintf("parse error: %v", err), SeverityError)
		return
	}
	if len(args) == 0 {
		e.notify("empty command", SeverityError)
		return
	}
	name, args := strings.ToLower(args[0]), args[1:]

	// /back is the one command allowed before login completes.
	if name == "back" {
		e.back()
		return
	}
	if !domain.IsKnownCommand("/" + name) {
		e.notify(fmt.Sprintf("unknown command: /%s", name), SeverityError)
		return
	}
	e.mu.Lock()
	ready := e.state.Authenticated
	e.mu.Unlock()
	if !ready {
		e.notify("please wait, still connecting", SeverityInfo)
		return
	}

	switch name {
	case "room":
		if len(args) < 1 {
			e.usage(name)
			return
		}
		e.switchRoom(ctx, strings.Join(args, " "))
	case "thread":
		if len(args) != 1 {
			e.usage(name)
			return
		}
		e.switchThread(args[0])
	case "reply":
		if len(args) < 2 {
			e.usage(name)
			return
		}
		e.reply(ctx, args[0], strings.Join(args[1:], " "))
	case "react":
		if len(args) != 2 {
			e.usage(name)
			return
		}
		e.react(ctx, args[0], args[1])
	case "edit":
		if len(args) < 2 {
			e.usage(name)
			return
		}
		e.edit(ctx, args[0], strings.Join(args[1:], " "))
	case "redact":
		if len(args) < 1 {
			e.usage(name)
			return
		}
		e.redact(ctx, args[0], strings.Join(args[1:], " "))
	}
}

func (e *Engine) usage(name string) {
	e.notify("usage: "+domain.CommandUsage("/"+name), SeverityInfo)
}

// back clears the thread selection, returning to the main timeline.
func (e *Engine) back() {
	e.mu.Lock()
	e.state.ThreadID = ""
	e.messages = nil
	name := e.state.RoomName
	e.mu.Unlock()
	e.status("room: " + name)
}

func (e *Engine) switchRoom(ctx context.Context, query string) {
	e.sends.Add(1)
	go func() {
		defer e.sends.Done()
		e.mu.Lock()
		t := e.transport
		e.mu.Unlock()

		room, ok, err := t.FindRoom(ctx, query)
		if err != nil {
			e.notify(fmt.Sprintf("room lookup failed: %v", err), SeverityError)
			return
		}
		if !ok {
			e.notify(fmt.Sprintf("room not found: %s", query), SeverityError)
			return
		}
		e.mu.Lock()
		e.state.RoomID = room.ID
		e.state.RoomName = room.Name
		e.state.ThreadID = ""
		e.state.Users = room.Users
		e.messages = nil
		e.threads = nil
		e.mu.Unlock()
		e.status("room: " + room.Name)
		e.poll(ctx)
	}()
}

func (e *Engine) switchThread(token string) {
	id, ok := e.registry.ResolveThread(token)
	if !ok {
		e.notify(fmt.Sprintf("unknown thread handle: %s", token), SeverityError)
		return
	}
	e.mu.Lock()
	e.state.ThreadID = id
	e.messages = nil
	e.mu.Unlock()
	e.status("thread: " + token)
}

// resolveMessage maps an m<N> token to an event ID in the current room.
func (e *Engine) resolveMessage(token string) (string, bool) {
	e.mu.Lock()
	roomID := e.state.RoomID
	e.mu.Unlock()
	id, ok := e.registry.ResolveMessage(roomID, token)
	if !ok {
		e.notify(fmt.Sprintf("unknown message handle: %s", token), SeverityError)
	}
	return id, ok
}

func (e *Engine) reply(ctx context.Context, token, text string) {
	target, ok := e.resolveMessage(token)
	if !ok {
		return
	}
	e.send(ctx, text, content.Options{ReplyToID: target})
}

func (e *Engine) react(ctx context.Context, token, emoji string) {
	target, ok := e.resolveMessage(token)
	if !ok {
		return
	}
	e.mu.Lock()
	t := e.transport
	roomID := e.state.RoomID
	e.mu.Unlock()

	e.sends.Add(1)
	go func() {
		defer e.sends.Done()
		if err := t.React(ctx, roomID, target, emoji); err != nil {
			e.notify(fmt.Sprintf("react failed: %v", err), SeverityError)
			return
		}
		e.poll(ctx)
	}()
}

func (e *Engine) edit(ctx context.Context, token, text string) {
	target, ok := e.resolveMessage(token)
	if !ok {
		return
	}
	e.mu.Lock()
	t := e.transport
	roomID := e.state.RoomID
	users := append([]string(nil), e.state.Users...)
	e.mu.Unlock()

	var opts content.Options
	if formatted, ids := content.ResolveMentions(text, users); len(ids) > 0 {
		opts.FormattedBody = formatted
		opts.MentionedUserIDs = ids
	}
	payload := content.BuildEdit(target, text, opts)

	e.sends.Add(1)
	go func() {
		defer e.sends.Done()
		if _, err := t.Send(ctx, roomID, payload); err != nil {
			e.notify(fmt.Sprintf("edit failed: %v", err), SeverityError)
			return
		}
		e.poll(ctx)
	}()
}

func (e *Engine) redact(ctx context.Context, token, reason string) {
	target, ok := e.resolveMessage(token)
	if !ok {
		return
	}
	e.mu.Lock()
	t := e.transport
	roomID := e.state.RoomID
	e.mu.Unlock()

	e.sends.Add(1)
	go func() {
		defer e.sends.Done()
		if err := t.Redact(ctx, roomID, target, reason); err != nil {
			e.notify(fmt.Sprintf("redact failed: %v", err), SeverityError)
			return
		}
		e.poll(ctx)
	}()
}
