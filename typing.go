package chatsync

import (
	"sync"
	"time"
)

// DefaultTypingTTL is how long a typing indicator stays visible without a
// refresh. Servers re-emit typing events while the user keeps typing, so a
// missed stop event self-heals after the TTL.
const DefaultTypingTTL = 6 * time.Second

type typingEntry struct {
	userName string
	expires  time.Time
}

// TypingTracker keeps the set of currently typing participants per
// conversation. Entries expire lazily on read; there is no background
// goroutine to manage.
type TypingTracker struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	active map[string]map[string]typingEntry // conversationID -> userID
}

// NewTypingTracker creates a tracker. A non-positive ttl falls back to
// DefaultTypingTTL.
func NewTypingTracker(ttl time.Duration) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingTracker{
		ttl:    ttl,
		now:    time.Now,
		active: make(map[string]map[string]typingEntry),
	}
}

// Apply records a typing start or stop.
func (t *TypingTracker) Apply(ev TypingEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	users := t.active[ev.ConversationID]
	if !ev.IsTyping {
		delete(users, ev.UserID)
		if len(users) == 0 {
			delete(t.active, ev.ConversationID)
		}
		return
	}
	if users == nil {
		users = make(map[string]typingEntry)
		t.active[ev.ConversationID] = users
	}
	users[ev.UserID] = typingEntry{userName: ev.UserName, expires: t.now().Add(t.ttl)}
}

// Active returns the ids and display names of users currently typing in a
// conversation, pruning expired entries.
func (t *TypingTracker) Active(conversationID string) map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	users := t.active[conversationID]
	if len(users) == 0 {
		return nil
	}
	now := t.now()
	out := make(map[string]string, len(users))
	for id, e := range users {
		if now.After(e.expires) {
			delete(users, id)
			continue
		}
		out[id] = e.userName
	}
	if len(users) == 0 {
		delete(t.active, conversationID)
		return nil
	}
	return out
}

// Clear drops all typing state, e.g. on disconnect.
func (t *TypingTracker) Clear() {
	t.mu.Lock()
	t.active = make(map[string]map[string]typingEntry)
	t.mu.Unlock()
}
