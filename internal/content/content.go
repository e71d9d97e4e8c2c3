// Package content builds outgoing Matrix event payloads: plain and
// formatted messages, thread and reply relations, edits, and reactions.
// All builders are pure; mention resolution lives in mentions.go.
package content

const (
	// MsgTypeText is the msgtype for plain text room messages.
	MsgTypeText = "m.text"
	// FormatHTML marks formatted_body as Matrix custom HTML.
	FormatHTML = "org.matrix.custom.html"

	// Relation types understood by the builders.
	RelThread     = "m.thread"
	RelReplace    = "m.replace"
	RelAnnotation = "m.annotation"
)

// Mentions is the m.mentions block of an event.
type Mentions struct {
	UserIDs []string `json:"user_ids"`
}

// InReplyTo references the event a message replies to.
type InReplyTo struct {
	EventID string `json:"event_id"`
}

// RelatesTo is the m.relates_to block shared by threads, replies,
// edits, and reactions.
type RelatesTo struct {
	RelType   string     `json:"rel_type,omitempty"`
	EventID   string     `json:"event_id,omitempty"`
	Key       string     `json:"key,omitempty"`
	InReplyTo *InReplyTo `json:"m.in_reply_to,omitempty"`
}

// MessageContent is the payload of an m.room.message event. Optional
// blocks stay absent from the wire form when unset, so a plain message
// marshals to exactly {"msgtype":"m.text","body":...}.
type MessageContent struct {
	MsgType       string          `json:"msgtype"`
	Body          string          `json:"body"`
	Format        string          `json:"format,omitempty"`
	FormattedBody string          `json:"formatted_body,omitempty"`
	Mentions      *Mentions       `json:"m.mentions,omitempty"`
	RelatesTo     *RelatesTo      `json:"m.relates_to,omitempty"`
	NewContent    *MessageContent `json:"m.new_content,omitempty"`
}

// ReactionContent is the payload of an m.reaction event.
type ReactionContent struct {
	RelatesTo RelatesTo `json:"m.relates_to"`
}

// Options carries the optional pieces of an outgoing message.
type Options struct {
	FormattedBody    string
	MentionedUserIDs []string
	ThreadRootID     string
	ReplyToID        string
}

// BuildMessage constructs an m.room.message payload. Thread replies
// carry both the thread relation and a nested in-reply-to when
// ReplyToID is also set; a reply outside a thread carries a bare
// in-reply-to relation.
func BuildMessage(body string, opts Options) MessageContent {
	c := MessageContent{MsgType: MsgTypeText, Body: body}
	if opts.FormattedBody != "" {
		c.Format = FormatHTML
		c.FormattedBody = opts.FormattedBody
	}
	if len(opts.MentionedUserIDs) > 0 {
		c.Mentions = &Mentions{UserIDs: opts.MentionedUserIDs}
	}
	switch {
	case opts.ThreadRootID != "":
		rel := &RelatesTo{RelType: RelThread, EventID: opts.ThreadRootID}
		if opts.ReplyToID != "" {
			rel.InReplyTo = &InReplyTo{EventID: opts.ReplyToID}
		}
		c.RelatesTo = rel
	case opts.ReplyToID != "":
		c.RelatesTo = &RelatesTo{InReplyTo: &InReplyTo{EventID: opts.ReplyToID}}
	}
	return c
}

// BuildEdit constructs an m.replace payload targeting targetID. The
// top-level body carries the legacy "* " fallback prefix; the
// m.new_content mirror carries the clean body and is what modern
// clients render. ThreadRootID and ReplyToID in opts are ignored:
// edits relate only to the event they replace.
func BuildEdit(targetID, body string, opts Options) MessageContent {
	inner := BuildMessage(body, Options{
		FormattedBody:    opts.FormattedBody,
		MentionedUserIDs: opts.MentionedUserIDs,
	})

	outer := MessageContent{
		MsgType:    MsgTypeText,
		Body:       "* " + body,
		RelatesTo:  &RelatesTo{RelType: RelReplace, EventID: targetID},
		NewContent: &inner,
	}
	if opts.FormattedBody != "" {
		outer.Format = FormatHTML
		outer.FormattedBody = "* " + opts.FormattedBody
	}
	if len(opts.MentionedUserIDs) > 0 {
		outer.Mentions = &Mentions{UserIDs: opts.MentionedUserIDs}
	}
	return outer
}

// BuildReaction constructs an m.reaction annotation on targetID with
// the given key (usually an emoji).
func BuildReaction(targetID, key string) ReactionContent {
	return ReactionContent{RelatesTo: RelatesTo{
		RelType: RelAnnotation,
		EventID: targetID,
		Key:     key,
	}}
}
