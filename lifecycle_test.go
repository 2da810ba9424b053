package chatsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Focus
// ============================================================================

func TestLifecycleHandleFocus(t *testing.T) {
	api := newFakeAPI()
	var mu sync.Mutex
	var seen []ListFilters
	api.listConversationsFn = func(_ context.Context, f ListFilters) (*ConversationPage, error) {
		mu.Lock()
		seen = append(seen, f)
		mu.Unlock()
		return &ConversationPage{Pagination: Pagination{Page: 1, TotalPages: 1}}, nil
	}
	store := NewConversationStore(api, nil)
	l := NewLifecycleCoordinator(store, nil, 0, nil)

	// First focus: visible load.
	require.NoError(t, l.HandleFocus(context.Background()))
	assert.Equal(t, 1, api.calls())

	// Returning from a thread: silent refresh, no blanking.
	require.NoError(t, l.HandleFocus(context.Background()))
	assert.Equal(t, 2, api.calls())
	assert.False(t, store.Loading())
}

// ============================================================================
// App state
// ============================================================================

func TestLifecycleHandleAppState(t *testing.T) {
	t.Run("background to foreground refreshes", func(t *testing.T) {
		api := newFakeAPI()
		store := NewConversationStore(api, nil)
		channel := NewEventChannel("http://127.0.0.1:1", "", nil)
		l := NewLifecycleCoordinator(store, channel, 0, nil)
		l.SetUser("u1")

		l.HandleAppState(context.Background(), AppBackground)
		assert.Equal(t, 0, api.calls())

		// Reconnect fails against the dead address; the refresh still runs
		// and the failure is swallowed.
		l.HandleAppState(context.Background(), AppForeground)
		assert.Equal(t, 1, api.calls())
	})

	t.Run("foreground to foreground is a no-op", func(t *testing.T) {
		api := newFakeAPI()
		store := NewConversationStore(api, nil)
		channel := NewEventChannel("http://127.0.0.1:1", "", nil)
		l := NewLifecycleCoordinator(store, channel, 0, nil)

		l.HandleAppState(context.Background(), AppForeground)
		assert.Equal(t, 0, api.calls())
	})
}

// ============================================================================
// Search debounce
// ============================================================================

func TestLifecycleSearchDebounce(t *testing.T) {
	api := newFakeAPI()
	var mu sync.Mutex
	var queries []string
	api.listConversationsFn = func(_ context.Context, f ListFilters) (*ConversationPage, error) {
		mu.Lock()
		queries = append(queries, f.Query)
		mu.Unlock()
		return &ConversationPage{Pagination: Pagination{Page: 1, TotalPages: 1}}, nil
	}
	store := NewConversationStore(api, nil)
	l := NewLifecycleCoordinator(store, nil, 30*time.Millisecond, nil)

	// Rapid keystrokes within the settle window produce a single fetch for
	// the final query.
	l.SetSearchQuery("d")
	l.SetSearchQuery("do")
	l.SetSearchQuery("dock")

	require.Eventually(t, func() bool { return api.calls() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond) // no trailing extra fetch
	assert.Equal(t, 1, api.calls())

	mu.Lock()
	assert.Equal(t, []string{"dock"}, queries)
	mu.Unlock()
}

func TestLifecycleStopCancelsPendingSearch(t *testing.T) {
	api := newFakeAPI()
	store := NewConversationStore(api, nil)
	l := NewLifecycleCoordinator(store, nil, 20*time.Millisecond, nil)

	l.SetSearchQuery("dock")
	l.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, api.calls())

	// Keystrokes after Stop are ignored.
	l.SetSearchQuery("late")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, api.calls())
}
