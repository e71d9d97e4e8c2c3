package session

import (
	"slices"
	"testing"

	"github.com/mindroom/matty/internal/domain"
)

func TestEqualMessages(t *testing.T) {
	base := func() []domain.Message {
		return []domain.Message{
			{EventID: "$e1", Sender: "@a:x", Body: "one"},
			{EventID: "$e2", Sender: "@b:x", Body: "two",
				Reactions: map[string][]string{"👍": {"@a:x", "@b:x"}}},
		}
	}

	t.Run("identical", func(t *testing.T) {
		if !equalMessages(base(), base()) {
			t.Error("identical buffers compare unequal")
		}
	})

	t.Run("reaction sender order ignored", func(t *testing.T) {
		b := base()
		b[1].Reactions = map[string][]string{"👍": {"@b:x", "@a:x"}}
		if !equalMessages(base(), b) {
			t.Error("sender order must not matter")
		}
	})

	t.Run("added reaction detected", func(t *testing.T) {
		b := base()
		b[1].Reactions["👍"] = append(b[1].Reactions["👍"], "@c:x")
		if equalMessages(base(), b) {
			t.Error("added reaction sender not detected")
		}
	})

	t.Run("new emoji detected", func(t *testing.T) {
		b := base()
		b[0].Reactions = map[string][]string{"🎉": {"@a:x"}}
		if equalMessages(base(), b) {
			t.Error("new emoji not detected")
		}
	})

	t.Run("body change detected", func(t *testing.T) {
		b := base()
		b[0].Body = "edited"
		if equalMessages(base(), b) {
			t.Error("body change not detected")
		}
	})

	t.Run("duplicate sender is not a distinct member", func(t *testing.T) {
		a := base()
		a[1].Reactions = map[string][]string{"👍": {"@a:x", "@b:x"}}
		b := base()
		b[1].Reactions = map[string][]string{"👍": {"@a:x", "@a:x"}}
		if equalMessages(a, b) {
			t.Error("{a,b} and {a,a} must compare unequal")
		}
		if equalMessages(b, a) {
			t.Error("comparison must be symmetric")
		}
	})

	t.Run("same length different membership", func(t *testing.T) {
		a := []domain.Message{{EventID: "$e0"}, {EventID: "$e1"}, {EventID: "$e2"}}
		b := []domain.Message{{EventID: "$e1"}, {EventID: "$e2"}, {EventID: "$e3"}}
		if equalMessages(a, b) {
			t.Error("rotation must be detected as a change")
		}
	})
}

func TestNewEventIDs(t *testing.T) {
	prev := []domain.Message{{EventID: "$e0"}, {EventID: "$e1"}}
	next := []domain.Message{{EventID: "$e1"}, {EventID: "$e2"}, {EventID: "$e3"}}
	if got := newEventIDs(prev, next); !slices.Equal(got, []string{"$e2", "$e3"}) {
		t.Errorf("newEventIDs = %v", got)
	}
	if got := newEventIDs(next, next); got != nil {
		t.Errorf("no change should yield nil, got %v", got)
	}
}
