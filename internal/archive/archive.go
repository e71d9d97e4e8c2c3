// Package archive keeps a local SQLite copy of synced messages so
// history survives restarts and can be exported without refetching
// from the homeserver.
package archive

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mindroom/matty/internal/config"
	"github.com/mindroom/matty/internal/domain"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite archive database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the archive database in the matty data
// directory.
func Open() (*Store, error) {
	dir, err := config.DataDir()
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	dsn := filepath.Join(dir, "archive.db")

	db, err := sql.Open("sqlite", dsn+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewFromDB creates a Store from an existing *sql.DB and runs
// migrations. Useful for testing with an in-memory database.
func NewFromDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			event_id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			body TEXT NOT NULL,
			ts TEXT NOT NULL,
			thread_root_id TEXT NOT NULL DEFAULT '',
			reply_to_id TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_messages_room_ts ON messages(room_id, ts);
	`)
	return err
}

// SaveMessages upserts a batch of messages. Edits that were folded
// into their target overwrite the archived body.
func (s *Store) SaveMessages(msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO messages (event_id, room_id, sender, body, ts, thread_root_id, reply_to_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET body = excluded.body
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		if _, err := stmt.Exec(m.EventID, m.RoomID, m.Sender, m.Body,
			m.Timestamp.UTC().Format(time.RFC3339), m.ThreadRootID, m.ReplyToID); err != nil {
			return fmt.Errorf("upsert %s: %w", m.EventID, err)
		}
	}
	return tx.Commit()
}

// RoomMessages returns a room's archived messages, oldest first.
func (s *Store) RoomMessages(roomID string) ([]domain.Message, error) {
	rows, err := s.db.Query(`
		SELECT event_id, room_id, sender, body, ts, thread_root_id, reply_to_id
		FROM messages WHERE room_id = ? ORDER BY ts, event_id
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var ts string
		if err := rows.Scan(&m.EventID, &m.RoomID, &m.Sender, &m.Body, &ts, &m.ThreadRootID, &m.ReplyToID); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			m.Timestamp = parsed
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Rooms returns the distinct room IDs present in the archive.
func (s *Store) Rooms() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT room_id FROM messages ORDER BY room_id`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of archived messages for a room, or for all
// rooms when roomID is empty.
func (s *Store) Count(roomID string) (int, error) {
	query := `SELECT COUNT(*) FROM messages`
	args := []any{}
	if roomID != "" {
		query += ` WHERE room_id = ?`
		args = append(args, roomID)
	}
	var n int
	if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Search returns archived messages whose body contains the query,
// case-insensitive, oldest first.
func (s *Store) Search(roomID, query string) ([]domain.Message, error) {
	rows, err := s.db.Query(`
		SELECT event_id, room_id, sender, body, ts, thread_root_id, reply_to_id
		FROM messages
		WHERE room_id = ? AND lower(body) LIKE ?
		ORDER BY ts, event_id
	`, roomID, "%"+strings.ToLower(query)+"%")
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var ts string
		if err := rows.Scan(&m.EventID, &m.RoomID, &m.Sender, &m.Body, &ts, &m.ThreadRootID, &m.ReplyToID); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			m.Timestamp = parsed
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
