package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mindroom/matty/internal/domain"
)

// MatrixClient implements Transport against the Matrix client-server
// API (v3 core endpoints, v1 for relations and threads).
type MatrixClient struct {
	homeserver string
	username   string
	password   string

	httpClient  *http.Client
	accessToken string
	userID      string
	limiter     *rate.Limiter
}

// ClientOptions configures a MatrixClient.
type ClientOptions struct {
	Homeserver string
	Username   string
	Password   string
	SSLVerify  bool
}

// NewMatrixClient builds an unauthenticated client. Call Login before
// any other method. Requests are rate limited to stay under typical
// homeserver limits.
func NewMatrixClient(opts ClientOptions) *MatrixClient {
	transport := http.DefaultTransport
	if !opts.SSLVerify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &MatrixClient{
		homeserver: strings.TrimRight(opts.Homeserver, "/"),
		username:   opts.Username,
		password:   opts.Password,
		httpClient: &http.Client{Timeout: 30 * time.Second, Transport: transport},
		limiter:    rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
	}
}

// matrixError is the standard error body returned by homeservers.
type matrixError struct {
	Code    string `json:"errcode"`
	Message string `json:"error"`
}

func (c *MatrixClient) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.homeserver+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var me matrixError
		if json.NewDecoder(resp.Body).Decode(&me) == nil && me.Code != "" {
			return fmt.Errorf("%s %s: %s (%s)", method, path, me.Message, me.Code)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// Login performs a password login and stores the access token.
func (c *MatrixClient) Login(ctx context.Context) error {
	body := map[string]any{
		"type": "m.login.password",
		"identifier": map[string]string{
			"type": "m.id.user",
			"user": c.username,
		},
		"password": c.password,
	}
	var result struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/_matrix/client/v3/login", body, &result); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.accessToken = result.AccessToken
	c.userID = result.UserID
	return nil
}

// UserID returns the full Matrix ID established by Login.
func (c *MatrixClient) UserID() string {
	return c.userID
}

// Rooms lists joined rooms, resolving each room's name, topic, and
// joined members from room state.
func (c *MatrixClient) Rooms(ctx context.Context) ([]domain.Room, error) {
	var joined struct {
		JoinedRooms []string `json:"joined_rooms"`
	}
	if err := c.do(ctx, http.MethodGet, "/_matrix/client/v3/joined_rooms", nil, &joined); err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	rooms := make([]domain.Room, 0, len(joined.JoinedRooms))
	for _, id := range joined.JoinedRooms {
		room, err := c.roomState(ctx, id)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (c *MatrixClient) roomState(ctx context.Context, roomID string) (domain.Room, error) {
	var events []struct {
		Type     string `json:"type"`
		StateKey string `json:"state_key"`
		Content  struct {
			Name       string `json:"name"`
			Topic      string `json:"topic"`
			Membership string `json:"membership"`
		} `json:"content"`
	}
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID) + "/state"
	if err := c.do(ctx, http.MethodGet, path, nil, &events); err != nil {
		return domain.Room{}, fmt.Errorf("room state %s: %w", roomID, err)
	}
	room := domain.Room{ID: roomID}
	for _, ev := range events {
		switch ev.Type {
		case "m.room.name":
			room.Name = ev.Content.Name
		case "m.room.topic":
			room.Topic = ev.Content.Topic
		case "m.room.member":
			if ev.Content.Membership == "join" {
				room.Users = append(room.Users, ev.StateKey)
			}
		}
	}
	room.MemberCount = len(room.Users)
	if room.Name == "" {
		room.Name = roomID
	}
	return room, nil
}

// FindRoom resolves a room by ID, alias, or display name.
func (c *MatrixClient) FindRoom(ctx context.Context, query string) (domain.Room, bool, error) {
	if strings.HasPrefix(query, "!") {
		room, err := c.roomState(ctx, query)
		if err != nil {
			return domain.Room{}, false, err
		}
		return room, true, nil
	}
	if strings.HasPrefix(query, "#") {
		var result struct {
			RoomID string `json:"room_id"`
		}
		path := "/_matrix/client/v3/directory/room/" + url.PathEscape(query)
		if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
			return domain.Room{}, false, nil
		}
		room, err := c.roomState(ctx, result.RoomID)
		if err != nil {
			return domain.Room{}, false, err
		}
		return room, true, nil
	}
	rooms, err := c.Rooms(ctx)
	if err != nil {
		return domain.Room{}, false, err
	}
	for _, room := range rooms {
		if strings.EqualFold(room.Name, query) {
			return room, true, nil
		}
	}
	return domain.Room{}, false, nil
}

// Messages fetches the latest page of a room's timeline, oldest first.
func (c *MatrixClient) Messages(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/messages?dir=b&limit=%d",
		url.PathEscape(roomID), limit)
	var result struct {
		Chunk []json.RawMessage `json:"chunk"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}
	return buildTimeline(roomID, result.Chunk, true), nil
}

// ThreadMessages fetches one thread's messages via the relations API,
// oldest first. The thread root itself is not included by the server.
func (c *MatrixClient) ThreadMessages(ctx context.Context, roomID, threadRootID string, limit int) ([]domain.Message, error) {
	path := fmt.Sprintf("/_matrix/client/v1/rooms/%s/relations/%s/m.thread?dir=b&limit=%d",
		url.PathEscape(roomID), url.PathEscape(threadRootID), limit)
	var result struct {
		Chunk []json.RawMessage `json:"chunk"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, fmt.Errorf("fetching thread: %w", err)
	}
	return buildTimeline(roomID, result.Chunk, true), nil
}

// Threads lists a room's thread roots, oldest first.
func (c *MatrixClient) Threads(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	path := fmt.Sprintf("/_matrix/client/v1/rooms/%s/threads?limit=%d",
		url.PathEscape(roomID), limit)
	var result struct {
		Chunk []json.RawMessage `json:"chunk"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, fmt.Errorf("fetching threads: %w", err)
	}
	roots := buildTimeline(roomID, result.Chunk, true)
	for i := range roots {
		roots[i].IsThreadRoot = true
	}
	return roots, nil
}

// Send posts a message payload with a fresh transaction ID and returns
// the new event ID.
func (c *MatrixClient) Send(ctx context.Context, roomID string, payload any) (string, error) {
	return c.put(ctx, roomID, "m.room.message", payload)
}

// React annotates targetEventID with key.
func (c *MatrixClient) React(ctx context.Context, roomID, targetEventID, key string) error {
	payload := map[string]any{
		"m.relates_to": map[string]string{
			"rel_type": "m.annotation",
			"event_id": targetEventID,
			"key":      key,
		},
	}
	_, err := c.put(ctx, roomID, "m.reaction", payload)
	return err
}

func (c *MatrixClient) put(ctx context.Context, roomID, eventType string, payload any) (string, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s",
		url.PathEscape(roomID), eventType, uuid.NewString())
	var result struct {
		EventID string `json:"event_id"`
	}
	if err := c.do(ctx, http.MethodPut, path, payload, &result); err != nil {
		return "", fmt.Errorf("sending %s: %w", eventType, err)
	}
	return result.EventID, nil
}

// Redact removes an event, optionally with a reason.
func (c *MatrixClient) Redact(ctx context.Context, roomID, eventID, reason string) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/redact/%s/%s",
		url.PathEscape(roomID), url.PathEscape(eventID), uuid.NewString())
	body := map[string]string{}
	if reason != "" {
		body["reason"] = reason
	}
	if err := c.do(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("redacting: %w", err)
	}
	return nil
}

// Close drops the access token and idle connections. It does not wait
// for in-flight requests.
func (c *MatrixClient) Close() error {
	c.accessToken = ""
	c.httpClient.CloseIdleConnections()
	return nil
}
