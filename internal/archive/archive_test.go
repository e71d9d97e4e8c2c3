package archive

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mindroom/matty/internal/domain"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	s, err := NewFromDB(db)
	if err != nil {
		t.Fatalf("NewFromDB: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleMessages() []domain.Message {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return []domain.Message{
		{EventID: "$e1", RoomID: "!a:x", Sender: "@ana:x", Body: "first", Timestamp: ts},
		{EventID: "$e2", RoomID: "!a:x", Sender: "@bob:x", Body: "second", Timestamp: ts.Add(time.Minute),
			ThreadRootID: "$e1"},
		{EventID: "$e3", RoomID: "!b:x", Sender: "@ana:x", Body: "elsewhere", Timestamp: ts.Add(2 * time.Minute)},
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveMessages(sampleMessages()); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	msgs, err := s.RoomMessages("!a:x")
	if err != nil {
		t.Fatalf("RoomMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].EventID != "$e1" || msgs[1].EventID != "$e2" {
		t.Errorf("order = [%s %s]", msgs[0].EventID, msgs[1].EventID)
	}
	if msgs[1].ThreadRootID != "$e1" {
		t.Errorf("thread root = %q", msgs[1].ThreadRootID)
	}

	rooms, err := s.Rooms()
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 2 {
		t.Errorf("rooms = %v", rooms)
	}
}

func TestUpsertOverwritesBody(t *testing.T) {
	s := newTestStore(t)
	msgs := sampleMessages()
	if err := s.SaveMessages(msgs); err != nil {
		t.Fatal(err)
	}

	msgs[0].Body = "first (edited)"
	if err := s.SaveMessages(msgs[:1]); err != nil {
		t.Fatal(err)
	}

	got, err := s.RoomMessages("!a:x")
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Body != "first (edited)" {
		t.Errorf("body = %q, want the edited text", got[0].Body)
	}
	if n, _ := s.Count("!a:x"); n != 2 {
		t.Errorf("count = %d, upsert must not duplicate", n)
	}
}

func TestSearch(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveMessages(sampleMessages()); err != nil {
		t.Fatal(err)
	}

	got, err := s.Search("!a:x", "SEC")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].EventID != "$e2" {
		t.Errorf("search = %v", got)
	}

	got, err = s.Search("!a:x", "elsewhere")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("search must be scoped to the room, got %v", got)
	}
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteExport(&buf, FormatJSON, sampleMessages()); err != nil {
		t.Fatal(err)
	}
	var out []domain.Message
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(out) != 3 || out[0].EventID != "$e1" {
		t.Errorf("decoded = %v", out)
	}
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteExport(&buf, FormatCSV, sampleMessages()); err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d rows, want header + 3", len(records))
	}
	if records[0][0] != "event_id" {
		t.Errorf("header = %v", records[0])
	}
	if records[1][4] != "first" {
		t.Errorf("body column = %q", records[1][4])
	}
}

func TestExportXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteExport(&buf, FormatXLSX, sampleMessages()); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("invalid xlsx: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Messages")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header + 3", len(rows))
	}
	if rows[2][4] != "second" {
		t.Errorf("body cell = %q", rows[2][4])
	}
}

func TestExportUnknownFormat(t *testing.T) {
	err := WriteExport(&bytes.Buffer{}, "yaml", nil)
	if err == nil || !strings.Contains(err.Error(), "unknown export format") {
		t.Errorf("err = %v", err)
	}
}
