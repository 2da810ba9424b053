package chatsync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AppState is the host application's visibility state.
type AppState string

const (
	AppForeground AppState = "foreground"
	AppBackground AppState = "background"
)

// DefaultSearchDebounce is the settle window between the last keystroke of
// a search query and the fetch it triggers.
const DefaultSearchDebounce = 500 * time.Millisecond

// LifecycleCoordinator translates host lifecycle signals (screen focus,
// app foreground/background, search input) into store and channel actions.
// It is the only component allowed to decide when the channel reconnects.
type LifecycleCoordinator struct {
	conversations *ConversationStore
	channel       *EventChannel
	log           *zap.Logger
	debounce      time.Duration

	mu          sync.Mutex
	userID      string
	appState    AppState
	focusedOnce bool
	query       string
	searchTimer *time.Timer
	stopped     bool
}

// NewLifecycleCoordinator wires the coordinator to its collaborators. A
// non-positive debounce falls back to DefaultSearchDebounce; a nil logger
// disables logging.
func NewLifecycleCoordinator(conversations *ConversationStore, channel *EventChannel, debounce time.Duration, log *zap.Logger) *LifecycleCoordinator {
	if debounce <= 0 {
		debounce = DefaultSearchDebounce
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LifecycleCoordinator{
		conversations: conversations,
		channel:       channel,
		log:           log,
		debounce:      debounce,
		appState:      AppForeground,
	}
}

// SetUser records the user reconnects are made for.
func (l *LifecycleCoordinator) SetUser(userID string) {
	l.mu.Lock()
	l.userID = userID
	l.mu.Unlock()
}

// HandleFocus runs when the conversation screen gains focus. The first
// focus shows a visible loading state; every later focus refreshes silently
// so returning from a thread never blanks the list.
func (l *LifecycleCoordinator) HandleFocus(ctx context.Context) error {
	l.mu.Lock()
	first := !l.focusedOnce
	l.focusedOnce = true
	query := l.query
	l.mu.Unlock()

	if first {
		return l.conversations.Hydrate(ctx, ListFilters{Query: query})
	}
	l.conversations.RefreshSilent(ctx)
	return nil
}

// HandleAppState runs on host visibility transitions. Returning to the
// foreground always re-dials the channel and refreshes the list: a
// connection that survived backgrounding is never trusted, and events may
// have been missed while suspended. Failures are logged and dropped; the
// next transition tries again.
func (l *LifecycleCoordinator) HandleAppState(ctx context.Context, state AppState) {
	l.mu.Lock()
	prev := l.appState
	l.appState = state
	userID := l.userID
	l.mu.Unlock()

	if prev != AppBackground || state != AppForeground {
		return
	}
	if userID != "" {
		if err := l.channel.Reconnect(ctx, userID); err != nil {
			l.log.Warn("foreground reconnect failed", zap.Error(err))
		}
	}
	l.conversations.RefreshSilent(ctx)
}

// SetSearchQuery records a keystroke of the search field. The fetch fires
// once the input has settled for the debounce window; every keystroke
// within the window resets it. The fetch itself is guarded, so a slow
// response for an old query can never overwrite a newer one.
func (l *LifecycleCoordinator) SetSearchQuery(query string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.query = query
	if l.searchTimer != nil {
		l.searchTimer.Stop()
	}
	l.searchTimer = time.AfterFunc(l.debounce, func() {
		if err := l.conversations.Hydrate(context.Background(), ListFilters{Query: query}); err != nil {
			l.log.Warn("search fetch failed", zap.String("query", query), zap.Error(err))
		}
	})
}

// Query returns the current search query.
func (l *LifecycleCoordinator) Query() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.query
}

// Stop cancels any pending debounced fetch.
func (l *LifecycleCoordinator) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	if l.searchTimer != nil {
		l.searchTimer.Stop()
		l.searchTimer = nil
	}
}
