// Package handles assigns short, human-typeable tokens to Matrix event
// IDs so commands like /reply m3 work without copying full event IDs.
// Two scopes exist: thread roots (t<N>, global per server) and messages
// (m<N>, numbered per room). State is persisted as one JSON file per
// homeserver domain and rewritten after every mutation.
package handles

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Mapping is one scope's bidirectional handle table.
type Mapping struct {
	Counter   int               `json:"counter"`
	IDToToken map[string]string `json:"idToToken"`
	TokenToID map[string]string `json:"tokenToId"`
}

func newMapping() *Mapping {
	return &Mapping{
		IDToToken: make(map[string]string),
		TokenToID: make(map[string]string),
	}
}

type state struct {
	Thread   *Mapping            `json:"thread"`
	Messages map[string]*Mapping `json:"messages"`
}

// Registry maps event IDs to short handles and back. It is safe for
// concurrent use within one process; there is no cross-process locking
// on the backing file.
type Registry struct {
	mu     sync.Mutex
	path   string
	state  *state
	loaded bool
	warnf  func(format string, args ...any)
}

// New returns a registry backed by <domain>.json under dir. The domain
// is derived from the homeserver URL. warnf receives non-fatal
// persistence warnings; nil means warnings go to stderr.
func New(dir, homeserver string, warnf func(format string, args ...any)) *Registry {
	if warnf == nil {
		warnf = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}
	return &Registry{
		path:  filepath.Join(dir, Domain(homeserver)+".json"),
		warnf: warnf,
	}
}

// Domain extracts the host part of a homeserver URL for use as the
// state file name.
func Domain(homeserver string) string {
	if u, err := url.Parse(homeserver); err == nil && u.Host != "" {
		return u.Host
	}
	return strings.TrimPrefix(strings.TrimPrefix(homeserver, "https://"), "http://")
}

// Path returns the backing file path.
func (r *Registry) Path() string {
	return r.path
}

// load reads the state file on first use. A missing file is a fresh
// registry; a corrupt file degrades to a fresh registry with a warning
// rather than failing.
func (r *Registry) load() {
	if r.loaded {
		return
	}
	r.loaded = true
	r.state = &state{Thread: newMapping(), Messages: make(map[string]*Mapping)}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.warnf("handles: read %s: %v (starting fresh)", r.path, err)
		}
		return
	}
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		r.warnf("handles: parse %s: %v (starting fresh)", r.path, err)
		return
	}
	if s.Thread == nil {
		s.Thread = newMapping()
	}
	if s.Thread.IDToToken == nil {
		s.Thread.IDToToken = make(map[string]string)
	}
	if s.Thread.TokenToID == nil {
		s.Thread.TokenToID = make(map[string]string)
	}
	if s.Messages == nil {
		s.Messages = make(map[string]*Mapping)
	}
	for _, m := range s.Messages {
		if m.IDToToken == nil {
			m.IDToToken = make(map[string]string)
		}
		if m.TokenToID == nil {
			m.TokenToID = make(map[string]string)
		}
	}
	r.state = &s
}

// save rewrites the whole state file. Called with the lock held after
// every mutation.
func (r *Registry) save() {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		r.warnf("handles: mkdir %s: %v", filepath.Dir(r.path), err)
		return
	}
	data, err := json.MarshalIndent(r.state, "", "  ")
	if err != nil {
		r.warnf("handles: marshal state: %v", err)
		return
	}
	if err := os.WriteFile(r.path, data, 0o600); err != nil {
		r.warnf("handles: write %s: %v", r.path, err)
	}
}

func getOrCreate(m *Mapping, prefix, eventID string) (string, bool) {
	if tok, ok := m.IDToToken[eventID]; ok {
		return tok, false
	}
	m.Counter++
	tok := fmt.Sprintf("%s%d", prefix, m.Counter)
	m.IDToToken[eventID] = tok
	m.TokenToID[tok] = eventID
	return tok, true
}

// ThreadHandle returns the t<N> token for a thread root event,
// assigning and persisting a new one on first sight.
func (r *Registry) ThreadHandle(eventID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.load()
	tok, created := getOrCreate(r.state.Thread, "t", eventID)
	if created {
		r.save()
	}
	return tok
}

// MessageHandle returns the m<N> token for an event within roomID,
// assigning and persisting a new one on first sight. Numbering is
// independent per room.
func (r *Registry) MessageHandle(roomID, eventID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.load()
	m, ok := r.state.Messages[roomID]
	if !ok {
		m = newMapping()
		r.state.Messages[roomID] = m
	}
	tok, created := getOrCreate(m, "m", eventID)
	if created {
		r.save()
	}
	return tok
}

// ResolveThread returns the event ID behind a t<N> token.
func (r *Registry) ResolveThread(token string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.load()
	id, ok := r.state.Thread.TokenToID[token]
	return id, ok
}

// ResolveMessage returns the event ID behind an m<N> token within
// roomID.
func (r *Registry) ResolveMessage(roomID, token string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.load()
	m, ok := r.state.Messages[roomID]
	if !ok {
		return "", false
	}
	id, ok := m.TokenToID[token]
	return id, ok
}

// KnownThreadHandles lists assigned thread tokens, for autocomplete.
func (r *Registry) KnownThreadHandles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.load()
	return tokens(r.state.Thread, "t")
}

// KnownMessageHandles lists assigned message tokens for roomID, for
// autocomplete.
func (r *Registry) KnownMessageHandles(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.load()
	m, ok := r.state.Messages[roomID]
	if !ok {
		return nil
	}
	return tokens(m, "m")
}

// tokens returns the mapping's tokens in assignment order.
func tokens(m *Mapping, prefix string) []string {
	out := make([]string, 0, len(m.TokenToID))
	for i := 1; i <= m.Counter; i++ {
		tok := fmt.Sprintf("%s%d", prefix, i)
		if _, ok := m.TokenToID[tok]; ok {
			out = append(out, tok)
		}
	}
	return out
}
