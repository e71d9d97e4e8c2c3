// Package session is the UI-agnostic chat engine: it owns the selected
// room and thread, runs the background sync loop, dispatches slash
// commands, and publishes changes through a small observer surface.
// Presentation layers (the TUI, the CLI) register observers and stay
// free of polling and diffing logic.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mindroom/matty/internal/content"
	"github.com/mindroom/matty/internal/domain"
	"github.com/mindroom/matty/internal/handles"
	"github.com/mindroom/matty/internal/transport"
)

// Severity classifies notifications for presentation.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// Observer receives engine events. Callbacks run on engine goroutines;
// implementations must hand off to their own loop if they need one.
type Observer interface {
	// OnMessagesChanged delivers the new message buffer along with the
	// event IDs that were not present before.
	OnMessagesChanged(messages []domain.Message, newIDs []string)
	// OnThreadsChanged delivers the room's current thread roots.
	OnThreadsChanged(roots []domain.Message)
	// OnNotification delivers a user-facing notice.
	OnNotification(text string, severity Severity)
	// OnStatus delivers a short status line (connection, selection).
	OnStatus(status string)
}

// State is a snapshot of the session selection.
type State struct {
	RoomID        string
	RoomName      string
	ThreadID      string // empty means the main timeline
	Users         []string
	Authenticated bool
}

// Config tunes the engine's loop.
type Config struct {
	HistorySize      int
	PollInterval     time.Duration
	FailureThreshold int
	MaxBackoff       time.Duration
}

// Default loop parameters.
const (
	DefaultFailureThreshold = 5
	DefaultMaxBackoff       = 60 * time.Second
)

func (c Config) withDefaults() Config {
	if c.HistorySize <= 0 {
		c.HistorySize = 50
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	return c
}

// Engine couples a Transport, a handle registry, and observers into a
// running session. Create with New, then Run.
type Engine struct {
	cfg      Config
	dial     func() transport.Transport
	registry *handles.Registry
	logf     func(format string, args ...any)

	mu        sync.Mutex
	transport transport.Transport
	state     State
	rooms     []domain.Room
	messages  []domain.Message
	threads   []domain.Message
	failures  int
	warned    bool
	observers []Observer

	sends sync.WaitGroup
}

// New builds an engine. dial creates a transport; it is called once at
// startup and again on each forced reconnect. logf receives debug
// lines and may be nil.
func New(cfg Config, dial func() transport.Transport, registry *handles.Registry, logf func(format string, args ...any)) *Engine {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Engine{
		cfg:       cfg.withDefaults(),
		dial:      dial,
		registry:  registry,
		logf:      logf,
		transport: dial(),
	}
}

// Subscribe registers an observer. Not safe to call after Run starts
// delivering events to the same observer set concurrently; register
// everything up front.
func (e *Engine) Subscribe(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// State returns a copy of the current selection.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state
	s.Users = append([]string(nil), e.state.Users...)
	return s
}

// Registry exposes the handle registry for completion and display.
func (e *Engine) Registry() *handles.Registry {
	return e.registry
}

// Rooms returns the joined rooms discovered at login.
func (e *Engine) Rooms() []domain.Room {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Room(nil), e.rooms...)
}

// Messages returns the current message buffer.
func (e *Engine) Messages() []domain.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Message(nil), e.messages...)
}

// Threads returns the current thread roots.
func (e *Engine) Threads() []domain.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Message(nil), e.threads...)
}

func (e *Engine) notify(text string, sev Severity) {
	e.mu.Lock()
	obs := append([]Observer(nil), e.observers...)
	e.mu.Unlock()
	for _, o := range obs {
		o.OnNotification(text, sev)
	}
}

func (e *Engine) status(s string) {
	e.mu.Lock()
	obs := append([]Observer(nil), e.observers...)
	e.mu.Unlock()
	for _, o := range obs {
		o.OnStatus(s)
	}
}

func (e *Engine) publishMessages(messages []domain.Message, newIDs []string) {
	e.mu.Lock()
	obs := append([]Observer(nil), e.observers...)
	e.mu.Unlock()
	for _, o := range obs {
		o.OnMessagesChanged(messages, newIDs)
	}
}

func (e *Engine) publishThreads(roots []domain.Message) {
	e.mu.Lock()
	obs := append([]Observer(nil), e.observers...)
	e.mu.Unlock()
	for _, o := range obs {
		o.OnThreadsChanged(roots)
	}
}

// Run logs in, selects the first joined room, and polls until ctx is
// cancelled. The transport is closed on the way out even when the
// cancellation interrupted an in-flight fetch; in-flight sends are
// awaited first.
func (e *Engine) Run(ctx context.Context) error {
	defer func() {
		e.sends.Wait()
		e.mu.Lock()
		t := e.transport
		e.mu.Unlock()
		if err := t.Close(); err != nil {
			e.logf("session: close transport: %v", err)
		}
	}()

	if err := e.login(ctx); err != nil {
		return err
	}

	for {
		timer := time.NewTimer(e.pollDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		e.poll(ctx)
	}
}

func (e *Engine) login(ctx context.Context) error {
	e.status("connecting...")
	e.mu.Lock()
	t := e.transport
	e.mu.Unlock()

	if err := t.Login(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	rooms, err := t.Rooms(ctx)
	if err != nil {
		return fmt.Errorf("listing rooms: %w", err)
	}

	e.mu.Lock()
	e.rooms = rooms
	e.state.Authenticated = true
	if len(rooms) > 0 {
		e.state.RoomID = rooms[0].ID
		e.state.RoomName = rooms[0].Name
		e.state.Users = rooms[0].Users
	}
	name := e.state.RoomName
	e.mu.Unlock()

	if name != "" {
		e.status(fmt.Sprintf("connected as %s, room: %s", t.UserID(), name))
	} else {
		e.status(fmt.Sprintf("connected as %s (no rooms joined)", t.UserID()))
	}
	e.logf("session: logged in as %s, %d rooms", t.UserID(), len(rooms))
	return nil
}

// Reconnect tears down the transport, dials a fresh one, logs in
// again, and zeroes the failure counter.
func (e *Engine) Reconnect(ctx context.Context) error {
	e.mu.Lock()
	old := e.transport
	fresh := e.dial()
	e.transport = fresh
	e.failures = 0
	e.warned = false
	e.state.Authenticated = false
	e.mu.Unlock()

	if err := old.Close(); err != nil {
		e.logf("session: close old transport: %v", err)
	}
	if err := fresh.Login(ctx); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	e.mu.Lock()
	e.state.Authenticated = true
	e.mu.Unlock()
	e.status("reconnected")
	return nil
}

// send builds and posts a message in its own goroutine. A second send
// issued while the first is in flight does not cancel it; both run to
// completion.
func (e *Engine) send(ctx context.Context, body string, opts content.Options) {
	e.mu.Lock()
	t := e.transport
	roomID := e.state.RoomID
	threadID := e.state.ThreadID
	users := append([]string(nil), e.state.Users...)
	e.mu.Unlock()

	if opts.ThreadRootID == "" {
		opts.ThreadRootID = threadID
	}
	if formatted, ids := content.ResolveMentions(body, users); len(ids) > 0 {
		opts.FormattedBody = formatted
		opts.MentionedUserIDs = ids
	}
	payload := content.BuildMessage(body, opts)

	e.sends.Add(1)
	go func() {
		defer e.sends.Done()
		if _, err := t.Send(ctx, roomID, payload); err != nil {
			e.notify(fmt.Sprintf("send failed: %v", err), SeverityError)
			return
		}
		e.poll(ctx) // eager refresh so the new message shows immediately
	}()
}
