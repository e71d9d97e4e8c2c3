package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) *MatrixClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewMatrixClient(ClientOptions{
		Homeserver: srv.URL,
		Username:   "ana",
		Password:   "secret",
		SSLVerify:  true,
	})
}

func TestLogin(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_matrix/client/v3/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "tok123",
			"user_id":      "@ana:matrix.org",
		})
	}))

	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if client.UserID() != "@ana:matrix.org" {
		t.Errorf("UserID = %q", client.UserID())
	}
	if gotBody["type"] != "m.login.password" {
		t.Errorf("login type = %v", gotBody["type"])
	}
	ident, _ := gotBody["identifier"].(map[string]any)
	if ident["user"] != "ana" {
		t.Errorf("identifier = %v", ident)
	}
}

func TestLoginFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{
			"errcode": "M_FORBIDDEN",
			"error":   "Invalid password",
		})
	}))

	err := client.Login(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "M_FORBIDDEN") {
		t.Errorf("error should carry the errcode: %v", err)
	}
}

func event(typ, id, sender, body string, extra map[string]any) json.RawMessage {
	content := map[string]any{"msgtype": "m.text", "body": body}
	for k, v := range extra {
		content[k] = v
	}
	if typ == "m.reaction" {
		delete(content, "msgtype")
		delete(content, "body")
	}
	data, _ := json.Marshal(map[string]any{
		"type": typ, "event_id": id, "sender": sender,
		"origin_server_ts": 1700000000000,
		"content":          content,
	})
	return data
}

func TestMessages(t *testing.T) {
	// Newest-first chunk, as dir=b returns it.
	chunk := []json.RawMessage{
		event("m.reaction", "$r1", "@bob:x", "", map[string]any{
			"m.relates_to": map[string]string{"rel_type": "m.annotation", "event_id": "$e1", "key": "👍"},
		}),
		event("m.room.message", "$e2", "@bob:x", "second", map[string]any{
			"m.relates_to": map[string]any{
				"rel_type": "m.thread", "event_id": "$root",
				"m.in_reply_to": map[string]string{"event_id": "$e1"},
			},
		}),
		event("m.room.message", "$e1", "@ana:x", "first", nil),
	}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("dir") != "b" {
			t.Errorf("dir = %q, want b", r.URL.Query().Get("dir"))
		}
		json.NewEncoder(w).Encode(map[string]any{"chunk": chunk})
	}))

	msgs, err := client.Messages(context.Background(), "!room:x", 50)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].EventID != "$e1" || msgs[1].EventID != "$e2" {
		t.Errorf("order = [%s %s], want chronological", msgs[0].EventID, msgs[1].EventID)
	}
	if got := msgs[0].Reactions["👍"]; len(got) != 1 || got[0] != "@bob:x" {
		t.Errorf("reactions = %v", msgs[0].Reactions)
	}
	if msgs[1].ThreadRootID != "$root" || msgs[1].ReplyToID != "$e1" {
		t.Errorf("relations = thread %q reply %q", msgs[1].ThreadRootID, msgs[1].ReplyToID)
	}
}

func TestMessagesFoldsEdits(t *testing.T) {
	chunk := []json.RawMessage{
		event("m.room.message", "$e2", "@ana:x", "* fixed", map[string]any{
			"m.relates_to":  map[string]string{"rel_type": "m.replace", "event_id": "$e1"},
			"m.new_content": map[string]string{"msgtype": "m.text", "body": "fixed"},
		}),
		event("m.room.message", "$e1", "@ana:x", "tpyo", nil),
	}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"chunk": chunk})
	}))

	msgs, err := client.Messages(context.Background(), "!room:x", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (edit folded into target)", len(msgs))
	}
	if msgs[0].EventID != "$e1" || msgs[0].Body != "fixed" {
		t.Errorf("edited message = %q (%s)", msgs[0].Body, msgs[0].EventID)
	}
}

func TestBuildTimelineFlattensFormattedBody(t *testing.T) {
	chunk := []json.RawMessage{
		event("m.room.message", "$edit", "@ana:x", "* fixed", map[string]any{
			"m.relates_to": map[string]string{"rel_type": "m.replace", "event_id": "$e1"},
			"m.new_content": map[string]any{
				"body":           "fixed",
				"format":         "org.matrix.custom.html",
				"formatted_body": "fixed <i>now</i>",
			},
		}),
		event("m.room.message", "$e2", "@bob:x", "> <@ana:x> hi there\n\nsure thing", map[string]any{
			"format":         "org.matrix.custom.html",
			"formatted_body": "<mx-reply><blockquote>hi there</blockquote></mx-reply>sure <b>thing</b>",
			"m.relates_to": map[string]any{
				"m.in_reply_to": map[string]string{"event_id": "$e1"},
			},
		}),
		event("m.room.message", "$e1", "@ana:x", "hi there", nil),
	}

	msgs := buildTimeline("!room:x", chunk, true)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	// The edit's formatted new_content folds into the target.
	if msgs[0].Body != "fixed now" {
		t.Errorf("edited body = %q, want %q", msgs[0].Body, "fixed now")
	}
	// The reply's formatted body displays without the mx-reply quote
	// the plain body carries.
	if msgs[1].Body != "sure thing" {
		t.Errorf("reply body = %q, want %q", msgs[1].Body, "sure thing")
	}
}

func TestSendUsesFreshTxnIDs(t *testing.T) {
	var paths []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"event_id": fmt.Sprintf("$new%d", len(paths))})
	}))

	id1, err := client.Send(context.Background(), "!room:x", map[string]string{"msgtype": "m.text", "body": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	id2, err := client.Send(context.Background(), "!room:x", map[string]string{"msgtype": "m.text", "body": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if id1 != "$new1" || id2 != "$new2" {
		t.Errorf("event ids = %s, %s", id1, id2)
	}
	if len(paths) != 2 || paths[0] == paths[1] {
		t.Errorf("transaction IDs must differ: %v", paths)
	}
	for _, p := range paths {
		if !strings.Contains(p, "/send/m.room.message/") {
			t.Errorf("unexpected send path %s", p)
		}
	}
}

func TestFindRoom(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/_matrix/client/v3/directory/room/"):
			json.NewEncoder(w).Encode(map[string]string{"room_id": "!resolved:x"})
		case strings.HasSuffix(r.URL.Path, "/state"):
			json.NewEncoder(w).Encode([]map[string]any{
				{"type": "m.room.name", "content": map[string]string{"name": "General"}},
				{"type": "m.room.member", "state_key": "@ana:x", "content": map[string]string{"membership": "join"}},
				{"type": "m.room.member", "state_key": "@bob:x", "content": map[string]string{"membership": "leave"}},
			})
		case r.URL.Path == "/_matrix/client/v3/joined_rooms":
			json.NewEncoder(w).Encode(map[string][]string{"joined_rooms": {"!resolved:x"}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	room, ok, err := client.FindRoom(context.Background(), "#general:x")
	if err != nil || !ok {
		t.Fatalf("alias lookup: ok=%v err=%v", ok, err)
	}
	if room.ID != "!resolved:x" || room.Name != "General" {
		t.Errorf("room = %+v", room)
	}
	if room.MemberCount != 1 || room.Users[0] != "@ana:x" {
		t.Errorf("members = %v (count %d), want joined only", room.Users, room.MemberCount)
	}

	room, ok, err = client.FindRoom(context.Background(), "general")
	if err != nil || !ok {
		t.Fatalf("name lookup: ok=%v err=%v", ok, err)
	}
	if room.ID != "!resolved:x" {
		t.Errorf("room by name = %+v", room)
	}

	_, ok, err = client.FindRoom(context.Background(), "no-such-room")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("unknown name should not resolve")
	}
}

func TestThreadsMarksRoots(t *testing.T) {
	chunk := []json.RawMessage{
		event("m.room.message", "$root2", "@bob:x", "later topic", nil),
		event("m.room.message", "$root1", "@ana:x", "first topic", nil),
	}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/threads") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"chunk": chunk})
	}))

	roots, err := client.Threads(context.Background(), "!room:x", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(roots) != 2 {
		t.Fatalf("got %d roots", len(roots))
	}
	for _, root := range roots {
		if !root.IsThreadRoot {
			t.Errorf("%s not marked as thread root", root.EventID)
		}
	}
	if roots[0].EventID != "$root1" {
		t.Errorf("roots not chronological: %s first", roots[0].EventID)
	}
}

func TestRedact(t *testing.T) {
	var path string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		json.NewEncoder(w).Encode(map[string]string{"event_id": "$redaction"})
	}))

	if err := client.Redact(context.Background(), "!room:x", "$bad", "typo"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(path, "/redact/%24bad/") && !strings.Contains(path, "/redact/$bad/") {
		t.Errorf("redact path = %s", path)
	}
}
