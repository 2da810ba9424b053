package chatsync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const classConversations = "conversations"

type listFlag int

const (
	flagNone listFlag = iota
	flagLoading
	flagRefreshing
)

// ConversationStore holds the ordered conversation list, reconciled from
// REST snapshots and live events. The list is rendered by updatedAt
// descending, ties broken by id descending. There is at most one entry per
// conversation id; merges are by id, never duplicated.
type ConversationStore struct {
	api   API
	guard *FetchGuard
	log   *zap.Logger
	now   func() time.Time

	mu          sync.Mutex
	items       []*Conversation
	byID        map[string]*Conversation
	totalUnread int
	filters     ListFilters
	page        int
	totalPages  int
	loading     bool
	loadingMore bool
	refreshing  bool
	lastErr     error
}

// NewConversationStore creates an empty store backed by the given API.
// A nil logger disables logging.
func NewConversationStore(api API, log *zap.Logger) *ConversationStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConversationStore{
		api:   api,
		guard: NewFetchGuard(),
		log:   log,
		now:   time.Now,
		byID:  make(map[string]*Conversation),
	}
}

// Hydrate fetches page 1 with the given filters, replacing the visible
// set. The loading flag is raised for the duration; a superseded fetch
// neither mutates the list nor clears the flag.
func (s *ConversationStore) Hydrate(ctx context.Context, filters ListFilters) error {
	return s.fetchFirstPage(ctx, filters, flagLoading)
}

// Refresh re-fetches page 1 with the current filters behind the
// pull-to-refresh flag.
func (s *ConversationStore) Refresh(ctx context.Context) error {
	s.mu.Lock()
	filters := s.filters
	s.mu.Unlock()
	return s.fetchFirstPage(ctx, filters, flagRefreshing)
}

// RefreshSilent re-fetches page 1 without toggling any loading flag.
// Failures are logged and dropped; prior data stays visible.
func (s *ConversationStore) RefreshSilent(ctx context.Context) {
	s.mu.Lock()
	filters := s.filters
	s.mu.Unlock()
	if err := s.fetchFirstPage(ctx, filters, flagNone); err != nil {
		s.log.Warn("silent conversation refresh failed", zap.Error(err))
	}
}

func (s *ConversationStore) fetchFirstPage(ctx context.Context, filters ListFilters, flag listFlag) error {
	filters.Page = 1
	if filters.PageSize <= 0 {
		filters.PageSize = DefaultPageSize
	}

	token := s.guard.Begin(classConversations)

	s.mu.Lock()
	s.filters = filters
	switch flag {
	case flagLoading:
		s.loading = true
		s.lastErr = nil
	case flagRefreshing:
		s.refreshing = true
		s.lastErr = nil
	}
	s.mu.Unlock()

	page, err := s.api.ListConversations(ctx, filters)
	if !s.guard.IsCurrent(classConversations, token) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Owning the current token means any LoadMore this fetch superseded can
	// no longer clear its own flag, so clear it on failure too.
	s.loadingMore = false
	switch flag {
	case flagLoading:
		s.loading = false
	case flagRefreshing:
		s.refreshing = false
	}
	if err != nil {
		if flag != flagNone {
			s.lastErr = err
		}
		return err
	}

	s.replaceLocked(page)
	return nil
}

// LoadMore appends the next page to the visible set, merged by id. It is
// a no-op while another LoadMore is in flight or when the last page has
// been reached.
func (s *ConversationStore) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.loadingMore || (s.totalPages > 0 && s.page >= s.totalPages) {
		s.mu.Unlock()
		return nil
	}
	filters := s.filters
	filters.Page = s.page + 1
	s.loadingMore = true
	s.mu.Unlock()

	token := s.guard.Begin(classConversations)

	page, err := s.api.ListConversations(ctx, filters)
	if !s.guard.IsCurrent(classConversations, token) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadingMore = false
	if err != nil {
		s.lastErr = err
		return err
	}
	s.appendLocked(page)
	return nil
}

func (s *ConversationStore) replaceLocked(page *ConversationPage) {
	s.items = s.items[:0]
	s.byID = make(map[string]*Conversation, len(page.Conversations))
	for i := range page.Conversations {
		c := page.Conversations[i]
		if _, dup := s.byID[c.ID]; dup {
			continue
		}
		s.items = append(s.items, &c)
		s.byID[c.ID] = &c
	}
	s.totalUnread = page.TotalUnread
	s.page = page.Pagination.Page
	s.totalPages = page.Pagination.TotalPages
	s.sortLocked()
}

func (s *ConversationStore) appendLocked(page *ConversationPage) {
	for i := range page.Conversations {
		c := page.Conversations[i]
		if _, dup := s.byID[c.ID]; dup {
			continue
		}
		s.items = append(s.items, &c)
		s.byID[c.ID] = &c
	}
	s.totalUnread = page.TotalUnread
	s.page = page.Pagination.Page
	s.totalPages = page.Pagination.TotalPages
	s.sortLocked()
}

// sortLocked restores the updatedAt-descending order after a snapshot
// merge. Live reordering never resorts; it moves the touched entry only.
func (s *ConversationStore) sortLocked() {
	items := s.items
	// Insertion sort keeps already-ordered server pages cheap and stable.
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && conversationBefore(items[j], items[j-1]); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

func conversationBefore(a, b *Conversation) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID > b.ID
}

// ApplyNewMessage reconciles an unhandled live message event: the preview
// and updatedAt are refreshed, the unread count grows by one, and the
// conversation moves to the front without disturbing the relative order of
// the remaining entries. An event for an unknown conversation triggers a
// silent re-hydration instead of fabricating a partial entry.
func (s *ConversationStore) ApplyNewMessage(conversationID string, msg Message, senderName string) {
	s.mu.Lock()
	c, ok := s.byID[conversationID]
	if !ok {
		s.mu.Unlock()
		s.log.Debug("new message for unknown conversation, re-hydrating",
			zap.String("conversationId", conversationID))
		go s.RefreshSilent(context.Background())
		return
	}
	c.LastMessage = &LastMessage{Preview: msg.Body, SenderName: senderName, SentAt: msg.CreatedAt}
	c.UpdatedAt = s.now()
	c.UnreadCount++
	s.totalUnread++
	s.moveToFrontLocked(conversationID)
	s.mu.Unlock()
}

// TouchConversation refreshes the preview and ordering without counting
// the message as unread. Used for the sender's own messages and for
// messages already visible in the open thread.
func (s *ConversationStore) TouchConversation(conversationID string, msg Message, senderName string) {
	s.mu.Lock()
	c, ok := s.byID[conversationID]
	if !ok {
		s.mu.Unlock()
		go s.RefreshSilent(context.Background())
		return
	}
	c.LastMessage = &LastMessage{Preview: msg.Body, SenderName: senderName, SentAt: msg.CreatedAt}
	c.UpdatedAt = s.now()
	s.moveToFrontLocked(conversationID)
	s.mu.Unlock()
}

func (s *ConversationStore) moveToFrontLocked(conversationID string) {
	for i, c := range s.items {
		if c.ID == conversationID {
			copy(s.items[1:i+1], s.items[:i])
			s.items[0] = c
			return
		}
	}
}

// ApplyParticipantAdded schedules a silent re-hydration; participant sets
// are never reconstructed incrementally, the server is the truth.
func (s *ConversationStore) ApplyParticipantAdded(conversationID string) {
	s.log.Debug("participant added, re-hydrating", zap.String("conversationId", conversationID))
	go s.RefreshSilent(context.Background())
}

// MarkRead optimistically zeroes the unread count and asks the backend to
// persist it. Persistence failures are logged and dropped: read-state loss
// is low severity and eventually consistent, so there is no rollback.
func (s *ConversationStore) MarkRead(ctx context.Context, conversationID string) {
	s.mu.Lock()
	if c, ok := s.byID[conversationID]; ok && c.UnreadCount > 0 {
		s.totalUnread -= c.UnreadCount
		if s.totalUnread < 0 {
			s.totalUnread = 0
		}
		c.UnreadCount = 0
	}
	s.mu.Unlock()

	if err := s.api.MarkRead(ctx, conversationID); err != nil {
		s.log.Warn("mark read not persisted", zap.String("conversationId", conversationID), zap.Error(err))
	}
}

// Snapshot returns a copy of the ordered list for rendering.
func (s *ConversationStore) Snapshot() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Conversation, len(s.items))
	for i, c := range s.items {
		out[i] = *c
	}
	return out
}

// Get returns the conversation with the given id, if known.
func (s *ConversationStore) Get(conversationID string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byID[conversationID]; ok {
		return *c, true
	}
	return Conversation{}, false
}

// TotalUnread returns the unread total across all conversations.
func (s *ConversationStore) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalUnread
}

// Loading reports whether a visible page-1 fetch is in flight.
func (s *ConversationStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// LoadingMore reports whether a pagination fetch is in flight.
func (s *ConversationStore) LoadingMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadingMore
}

// Refreshing reports whether a pull-to-refresh fetch is in flight.
func (s *ConversationStore) Refreshing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshing
}

// Err returns the error of the last visible fetch, for a retry affordance.
// Failed fetches never corrupt existing contents.
func (s *ConversationStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Dispose invalidates the guard so in-flight fetches can no longer mutate
// the store.
func (s *ConversationStore) Dispose() {
	s.guard.Invalidate()
}
