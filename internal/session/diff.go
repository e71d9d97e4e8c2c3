package session

import "github.com/mindroom/matty/internal/domain"

// equalMessages reports whether two buffers hold the same messages.
// Reactions compare as sets of senders per emoji; everything else is
// exact. A same-length buffer with different membership (one message
// rotated out, one in) compares unequal.
func equalMessages(a, b []domain.Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equalMessage(a[i], b[i]) {
			return false
		}
	}
	return true
}

func equalMessage(a, b domain.Message) bool {
	if a.EventID != b.EventID || a.Sender != b.Sender || a.Body != b.Body {
		return false
	}
	if a.ThreadRootID != b.ThreadRootID || a.ReplyToID != b.ReplyToID || a.EditTargetID != b.EditTargetID {
		return false
	}
	return equalReactions(a.Reactions, b.Reactions)
}

// equalReactions treats each emoji's senders as a set; neither order
// nor duplicate entries are meaningful.
func equalReactions(a, b map[string][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for key, senders := range a {
		others, ok := b[key]
		if !ok {
			return false
		}
		as := senderSet(senders)
		bs := senderSet(others)
		if len(as) != len(bs) {
			return false
		}
		for s := range as {
			if !bs[s] {
				return false
			}
		}
	}
	return true
}

func senderSet(senders []string) map[string]bool {
	set := make(map[string]bool, len(senders))
	for _, s := range senders {
		set[s] = true
	}
	return set
}

// newEventIDs returns the event IDs present in next but not in prev,
// in next's order. This drives the "N new message(s)" notification.
func newEventIDs(prev, next []domain.Message) []string {
	seen := make(map[string]bool, len(prev))
	for _, m := range prev {
		seen[m.EventID] = true
	}
	var ids []string
	for _, m := range next {
		if !seen[m.EventID] {
			ids = append(ids, m.EventID)
		}
	}
	return ids
}
