package chatsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const classThread = "thread"

// ThreadStore holds the message history of the currently open conversation.
// Messages are kept in chronological order, oldest first. Entries originate
// from three sources that must never duplicate each other: REST history
// pages, optimistic local sends, and live events.
type ThreadStore struct {
	api   API
	guard *FetchGuard
	log   *zap.Logger
	now   func() time.Time

	mu          sync.Mutex
	selfID      string
	activeConv  string
	messages    []Message
	byID        map[string]int
	byToken     map[string]int
	page        int
	totalPages  int
	loading     bool
	loadingMore bool
	lastErr     error
}

// NewThreadStore creates an empty thread store backed by the given API.
// A nil logger disables logging.
func NewThreadStore(api API, log *zap.Logger) *ThreadStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &ThreadStore{
		api:     api,
		guard:   NewFetchGuard(),
		log:     log,
		now:     time.Now,
		byID:    make(map[string]int),
		byToken: make(map[string]int),
	}
}

// SetUser records whose messages count as "own" for grouping and routing.
func (s *ThreadStore) SetUser(userID string) {
	s.mu.Lock()
	s.selfID = userID
	s.mu.Unlock()
}

// ActiveConversation returns the id of the open thread, or "" when closed.
func (s *ThreadStore) ActiveConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeConv
}

// Load opens a conversation: the previous thread's contents are discarded
// and the newest history page is fetched. A Load superseded by a later Load
// or Close leaves no trace.
func (s *ThreadStore) Load(ctx context.Context, conversationID string) error {
	token := s.guard.Begin(classThread)

	s.mu.Lock()
	s.activeConv = conversationID
	s.resetLocked()
	s.loading = true
	s.lastErr = nil
	s.mu.Unlock()

	page, err := s.api.ListMessages(ctx, conversationID, 1)
	if !s.guard.IsCurrent(classThread, token) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	// A superseded LoadMore can no longer clear its own flag; this fetch
	// owns the token now, so it clears it on both outcomes.
	s.loadingMore = false
	if err != nil {
		s.lastErr = err
		return err
	}
	s.replaceLocked(page)
	return nil
}

// LoadMore prepends the next older history page. No-op while another page
// is in flight or when the oldest page has been reached.
func (s *ThreadStore) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.loadingMore || s.activeConv == "" || (s.totalPages > 0 && s.page >= s.totalPages) {
		s.mu.Unlock()
		return nil
	}
	conv := s.activeConv
	nextPage := s.page + 1
	s.loadingMore = true
	s.mu.Unlock()

	token := s.guard.Begin(classThread)

	page, err := s.api.ListMessages(ctx, conv, nextPage)
	if !s.guard.IsCurrent(classThread, token) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadingMore = false
	if err != nil {
		s.lastErr = err
		return err
	}
	s.prependLocked(page)
	return nil
}

// Close discards the thread and supersedes any in-flight fetch for it.
func (s *ThreadStore) Close() {
	s.guard.Begin(classThread)
	s.mu.Lock()
	s.activeConv = ""
	s.resetLocked()
	s.loading = false
	s.loadingMore = false
	s.lastErr = nil
	s.mu.Unlock()
}

func (s *ThreadStore) resetLocked() {
	s.messages = s.messages[:0]
	s.byID = make(map[string]int)
	s.byToken = make(map[string]int)
	s.page = 0
	s.totalPages = 0
}

func (s *ThreadStore) replaceLocked(page *MessagePage) {
	s.messages = s.messages[:0]
	s.byID = make(map[string]int, len(page.Messages))
	s.byToken = make(map[string]int)
	for _, m := range page.Messages {
		m.Delivery = DeliveryConfirmed
		s.indexAndAppendLocked(m)
	}
	s.page = page.Pagination.Page
	s.totalPages = page.Pagination.TotalPages
}

func (s *ThreadStore) prependLocked(page *MessagePage) {
	older := make([]Message, 0, len(page.Messages))
	for _, m := range page.Messages {
		if _, dup := s.byID[m.ID]; dup {
			continue
		}
		m.Delivery = DeliveryConfirmed
		older = append(older, m)
	}
	s.messages = append(older, s.messages...)
	s.reindexLocked()
	s.page = page.Pagination.Page
	s.totalPages = page.Pagination.TotalPages
}

func (s *ThreadStore) indexAndAppendLocked(m Message) {
	s.messages = append(s.messages, m)
	i := len(s.messages) - 1
	s.byID[m.ID] = i
	if m.CorrelationToken != "" {
		s.byToken[m.CorrelationToken] = i
	}
}

func (s *ThreadStore) reindexLocked() {
	s.byID = make(map[string]int, len(s.messages))
	s.byToken = make(map[string]int)
	for i, m := range s.messages {
		s.byID[m.ID] = i
		if m.CorrelationToken != "" {
			s.byToken[m.CorrelationToken] = i
		}
	}
}

// SendOptimistic appends a pending message immediately and posts it to the
// backend. On confirmation the pending entry is replaced in place with the
// server message, keeping its position. If the live echo lands before the
// REST response, the echo wins and the response only re-confirms. On
// failure the pending entry is removed and the error returned so the caller
// can restore the composer.
func (s *ThreadStore) SendOptimistic(ctx context.Context, body string) (err error) {
	s.mu.Lock()
	conv := s.activeConv
	selfID := s.selfID
	s.mu.Unlock()
	if conv == "" {
		return fmt.Errorf("no open conversation")
	}

	corr := uuid.NewString()
	pending := Message{
		ID:               "local-" + uuid.NewString(),
		ConversationID:   conv,
		SenderID:         selfID,
		Body:             body,
		CreatedAt:        s.now(),
		CorrelationToken: corr,
		Delivery:         DeliveryPending,
	}

	s.mu.Lock()
	s.indexAndAppendLocked(pending)
	s.mu.Unlock()

	msg, err := s.api.SendMessage(ctx, conv, body, corr)
	if err != nil {
		s.removeByTokenPending(corr)
		return fmt.Errorf("send message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.byToken[corr]; ok {
		confirmed := *msg
		confirmed.CorrelationToken = corr
		confirmed.Delivery = DeliveryConfirmed
		oldID := s.messages[i].ID
		s.messages[i] = confirmed
		delete(s.byID, oldID)
		s.byID[confirmed.ID] = i
	}
	return nil
}

// removeByTokenPending drops the optimistic entry for a failed send. An
// entry already confirmed by a live echo is left alone.
func (s *ThreadStore) removeByTokenPending(corr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byToken[corr]
	if !ok || s.messages[i].Delivery != DeliveryPending {
		return
	}
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
	s.reindexLocked()
}

// ApplyIncoming appends a live message to the open thread. A message whose
// correlation token matches a local entry confirms that entry in place
// instead of appending; a message whose id is already present is dropped.
// Events for other conversations are ignored.
func (s *ThreadStore) ApplyIncoming(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeConv == "" || msg.ConversationID != s.activeConv {
		return
	}
	if msg.CorrelationToken != "" {
		if i, ok := s.byToken[msg.CorrelationToken]; ok {
			confirmed := msg
			confirmed.Delivery = DeliveryConfirmed
			oldID := s.messages[i].ID
			s.messages[i] = confirmed
			delete(s.byID, oldID)
			s.byID[confirmed.ID] = i
			return
		}
	}
	if _, dup := s.byID[msg.ID]; dup {
		return
	}
	msg.Delivery = DeliveryConfirmed
	s.indexAndAppendLocked(msg)
}

// Messages returns a copy of the thread in chronological order.
func (s *ThreadStore) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Rows projects the thread into renderable rows: date separators between
// calendar days and group-start markers on sender changes.
func (s *ThreadStore) Rows(loc *time.Location) []ThreadRow {
	return BuildThreadRows(s.Messages(), loc)
}

// Loading reports whether the initial history fetch is in flight.
func (s *ThreadStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// LoadingMore reports whether an older-page fetch is in flight.
func (s *ThreadStore) LoadingMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadingMore
}

// Err returns the error of the last history fetch.
func (s *ThreadStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Dispose invalidates the guard so in-flight fetches can no longer mutate
// the store.
func (s *ThreadStore) Dispose() {
	s.guard.Invalidate()
}
