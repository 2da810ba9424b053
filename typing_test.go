package chatsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypingTracker(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	newTracker := func(now *time.Time) *TypingTracker {
		tr := NewTypingTracker(0)
		tr.now = func() time.Time { return *now }
		return tr
	}

	t.Run("start and stop", func(t *testing.T) {
		now := base
		tr := newTracker(&now)

		tr.Apply(TypingEvent{ConversationID: "c1", UserID: "u2", UserName: "Pat", IsTyping: true})
		assert.Equal(t, map[string]string{"u2": "Pat"}, tr.Active("c1"))

		tr.Apply(TypingEvent{ConversationID: "c1", UserID: "u2", IsTyping: false})
		assert.Nil(t, tr.Active("c1"))
	})

	t.Run("expires after ttl without a stop event", func(t *testing.T) {
		now := base
		tr := newTracker(&now)

		tr.Apply(TypingEvent{ConversationID: "c1", UserID: "u2", UserName: "Pat", IsTyping: true})
		now = base.Add(DefaultTypingTTL + time.Second)
		assert.Nil(t, tr.Active("c1"))
	})

	t.Run("refresh extends the ttl", func(t *testing.T) {
		now := base
		tr := newTracker(&now)

		tr.Apply(TypingEvent{ConversationID: "c1", UserID: "u2", UserName: "Pat", IsTyping: true})
		now = base.Add(4 * time.Second)
		tr.Apply(TypingEvent{ConversationID: "c1", UserID: "u2", UserName: "Pat", IsTyping: true})
		now = base.Add(8 * time.Second)
		assert.Equal(t, map[string]string{"u2": "Pat"}, tr.Active("c1"))
	})

	t.Run("conversations are independent", func(t *testing.T) {
		now := base
		tr := newTracker(&now)

		tr.Apply(TypingEvent{ConversationID: "c1", UserID: "u2", UserName: "Pat", IsTyping: true})
		tr.Apply(TypingEvent{ConversationID: "c2", UserID: "u3", UserName: "Sam", IsTyping: true})

		assert.Equal(t, map[string]string{"u2": "Pat"}, tr.Active("c1"))
		assert.Equal(t, map[string]string{"u3": "Sam"}, tr.Active("c2"))
	})

	t.Run("clear drops everything", func(t *testing.T) {
		now := base
		tr := newTracker(&now)

		tr.Apply(TypingEvent{ConversationID: "c1", UserID: "u2", UserName: "Pat", IsTyping: true})
		tr.Clear()
		assert.Nil(t, tr.Active("c1"))
	})
}
