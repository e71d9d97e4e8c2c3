package domain

import (
	"strings"
	"time"
)

// Room holds the subset of room state the client works with.
type Room struct {
	ID          string   `json:"room_id"`
	Name        string   `json:"name"`
	Topic       string   `json:"topic,omitempty"`
	MemberCount int      `json:"member_count"`
	Users       []string `json:"users,omitempty"`
}

// Message is one timeline event as the session engine sees it. Values are
// immutable once constructed; a new fetch produces new Message values.
type Message struct {
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	RoomID    string    `json:"room_id"`
	EventID   string    `json:"event_id"`

	// Relation targets, empty when the message carries no such relation.
	ThreadRootID string `json:"thread_root_id,omitempty"`
	ReplyToID    string `json:"reply_to_id,omitempty"`
	EditTargetID string `json:"edit_target_id,omitempty"`

	IsThreadRoot bool `json:"is_thread_root,omitempty"`

	// Reactions maps emoji -> senders. Sender order is not meaningful;
	// equality checks must treat each list as a set.
	Reactions map[string][]string `json:"reactions,omitempty"`

	// Short human-typable tokens assigned by the handle registry.
	Handle       string `json:"handle,omitempty"`
	ThreadHandle string `json:"thread_handle,omitempty"`
}

// Localpart returns the local part of a Matrix user ID: "@ana:example.org"
// becomes "ana". IDs that don't look like Matrix user IDs are returned as-is.
func Localpart(userID string) string {
	if strings.HasPrefix(userID, "@") && strings.Contains(userID, ":") {
		return strings.SplitN(strings.TrimPrefix(userID, "@"), ":", 2)[0]
	}
	return userID
}

// Preview returns the body truncated for one-line display.
func (m Message) Preview(max int) string {
	body := strings.ReplaceAll(m.Body, "\n", " ")
	if len(body) <= max {
		return body
	}
	return body[:max] + "..."
}
