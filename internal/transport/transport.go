// Package transport talks to a Matrix homeserver over the client-server
// HTTP API. The session engine consumes the Transport interface only;
// MatrixClient is the production implementation.
package transport

import (
	"context"

	"github.com/mindroom/matty/internal/domain"
)

// Transport is the homeserver surface the session engine depends on.
// Test doubles implement it directly.
type Transport interface {
	// Login authenticates and must be called before any other method.
	Login(ctx context.Context) error
	// UserID returns the authenticated user's full Matrix ID.
	UserID() string
	// Rooms lists joined rooms with names and members.
	Rooms(ctx context.Context) ([]domain.Room, error)
	// FindRoom resolves a room by name, alias, or ID. The boolean is
	// false when nothing matched; error is reserved for transport
	// failures.
	FindRoom(ctx context.Context, query string) (domain.Room, bool, error)
	// Messages fetches the latest page of a room's main timeline in
	// chronological order, with reactions and edits folded in.
	Messages(ctx context.Context, roomID string, limit int) ([]domain.Message, error)
	// ThreadMessages fetches the latest messages of one thread.
	ThreadMessages(ctx context.Context, roomID, threadRootID string, limit int) ([]domain.Message, error)
	// Threads lists a room's thread root messages.
	Threads(ctx context.Context, roomID string, limit int) ([]domain.Message, error)
	// Send posts a message payload and returns the new event ID.
	Send(ctx context.Context, roomID string, payload any) (string, error)
	// React annotates an event with a reaction key.
	React(ctx context.Context, roomID, targetEventID, key string) error
	// Redact removes an event.
	Redact(ctx context.Context, roomID, eventID, reason string) error
	// Close releases the underlying connection. Safe to call after
	// cancellation; it must not block on in-flight requests.
	Close() error
}
