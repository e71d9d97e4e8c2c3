package transport

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/mindroom/matty/internal/content"
	"github.com/mindroom/matty/internal/domain"
)

// rawEvent is the wire shape of the timeline events we care about.
type rawEvent struct {
	Type           string `json:"type"`
	EventID        string `json:"event_id"`
	Sender         string `json:"sender"`
	OriginServerTS int64  `json:"origin_server_ts"`
	Content        struct {
		MsgType       string `json:"msgtype"`
		Body          string `json:"body"`
		Format        string `json:"format"`
		FormattedBody string `json:"formatted_body"`
		RelatesTo     struct {
			RelType   string `json:"rel_type"`
			EventID   string `json:"event_id"`
			Key       string `json:"key"`
			InReplyTo struct {
				EventID string `json:"event_id"`
			} `json:"m.in_reply_to"`
		} `json:"m.relates_to"`
		NewContent struct {
			Body          string `json:"body"`
			Format        string `json:"format"`
			FormattedBody string `json:"formatted_body"`
		} `json:"m.new_content"`
	} `json:"content"`
	Unsigned struct {
		RedactedBecause json.RawMessage `json:"redacted_because"`
	} `json:"unsigned"`
}

// buildTimeline converts a /messages chunk into chronological domain
// messages. Reaction events fold into their target's reaction map,
// edit events replace their target's body, and redacted events are
// dropped. Events relating to messages outside the page are ignored,
// except edits, which surface as standalone messages so the user still
// sees the latest text.
func buildTimeline(roomID string, chunk []json.RawMessage, newestFirst bool) []domain.Message {
	events := make([]rawEvent, 0, len(chunk))
	for _, raw := range chunk {
		var ev rawEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if newestFirst {
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
	}

	var messages []domain.Message
	index := make(map[string]int)

	for _, ev := range events {
		switch ev.Type {
		case "m.room.message":
			if len(ev.Unsigned.RedactedBecause) > 0 || ev.Content.Body == "" {
				continue
			}
			rel := ev.Content.RelatesTo
			if rel.RelType == "m.replace" {
				if i, ok := index[rel.EventID]; ok {
					messages[i].Body = editedBody(ev)
					continue
				}
				// Target is outside this page.
				messages = append(messages, domain.Message{
					Sender:       ev.Sender,
					Body:         editedBody(ev),
					Timestamp:    toTime(ev.OriginServerTS),
					RoomID:       roomID,
					EventID:      ev.EventID,
					EditTargetID: rel.EventID,
				})
				index[ev.EventID] = len(messages) - 1
				continue
			}
			msg := domain.Message{
				Sender:    ev.Sender,
				Body:      displayBody(ev),
				Timestamp: toTime(ev.OriginServerTS),
				RoomID:    roomID,
				EventID:   ev.EventID,
				ReplyToID: rel.InReplyTo.EventID,
			}
			if rel.RelType == "m.thread" {
				msg.ThreadRootID = rel.EventID
			}
			messages = append(messages, msg)
			index[ev.EventID] = len(messages) - 1

		case "m.reaction":
			rel := ev.Content.RelatesTo
			if rel.RelType != "m.annotation" || rel.Key == "" {
				continue
			}
			i, ok := index[rel.EventID]
			if !ok {
				continue
			}
			if messages[i].Reactions == nil {
				messages[i].Reactions = make(map[string][]string)
			}
			senders := messages[i].Reactions[rel.Key]
			if !slices.Contains(senders, ev.Sender) {
				messages[i].Reactions[rel.Key] = append(senders, ev.Sender)
			}
		}
	}
	return messages
}

// displayBody flattens an HTML formatted_body to terminal text when
// one is present. Reply fallback quotes (mx-reply) are stripped in the
// process; the plain body would still carry them.
func displayBody(ev rawEvent) string {
	if ev.Content.Format == content.FormatHTML && ev.Content.FormattedBody != "" {
		if flat := content.FlattenHTML(ev.Content.FormattedBody); flat != "" {
			return flat
		}
	}
	return ev.Content.Body
}

// editedBody strips the legacy "* " fallback prefix, preferring the
// m.new_content body when present.
func editedBody(ev rawEvent) string {
	nc := ev.Content.NewContent
	if nc.Format == content.FormatHTML && nc.FormattedBody != "" {
		if flat := content.FlattenHTML(nc.FormattedBody); flat != "" {
			return flat
		}
	}
	if nc.Body != "" {
		return nc.Body
	}
	return strings.TrimPrefix(ev.Content.Body, "* ")
}

func toTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
