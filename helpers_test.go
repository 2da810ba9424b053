package chatsync

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// Shared test fixtures
// ============================================================================

func conv(id string, updatedAt time.Time, unread int) Conversation {
	return Conversation{
		ID:          id,
		Kind:        KindDirect,
		UnreadCount: unread,
		UpdatedAt:   updatedAt,
	}
}

func msg(id, convID, senderID, body string, at time.Time) Message {
	return Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      at,
	}
}

// fakeAPI is a hand-rolled API double. Each response func can be swapped per
// test; gates allow tests to hold a call open to exercise ordering races.
type fakeAPI struct {
	mu sync.Mutex

	listConversationsFn func(ctx context.Context, filters ListFilters) (*ConversationPage, error)
	listMessagesFn      func(ctx context.Context, conversationID string, page int) (*MessagePage, error)
	sendMessageFn       func(ctx context.Context, conversationID, body, correlationToken string) (*Message, error)
	markReadFn          func(ctx context.Context, conversationID string) error

	listConversationsCalls int
	markReadCalls          []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		listConversationsFn: func(context.Context, ListFilters) (*ConversationPage, error) {
			return &ConversationPage{Pagination: Pagination{Page: 1, TotalPages: 1}}, nil
		},
		listMessagesFn: func(context.Context, string, int) (*MessagePage, error) {
			return &MessagePage{Pagination: Pagination{Page: 1, TotalPages: 1}}, nil
		},
		sendMessageFn: func(_ context.Context, convID, body, corr string) (*Message, error) {
			return &Message{
				ID:               "srv-" + corr,
				ConversationID:   convID,
				Body:             body,
				CorrelationToken: corr,
				CreatedAt:        time.Now(),
			}, nil
		},
		markReadFn: func(context.Context, string) error { return nil },
	}
}

func (f *fakeAPI) ListConversations(ctx context.Context, filters ListFilters) (*ConversationPage, error) {
	f.mu.Lock()
	f.listConversationsCalls++
	fn := f.listConversationsFn
	f.mu.Unlock()
	return fn(ctx, filters)
}

func (f *fakeAPI) ListMessages(ctx context.Context, conversationID string, page int) (*MessagePage, error) {
	f.mu.Lock()
	fn := f.listMessagesFn
	f.mu.Unlock()
	return fn(ctx, conversationID, page)
}

func (f *fakeAPI) SendMessage(ctx context.Context, conversationID, body, correlationToken string) (*Message, error) {
	f.mu.Lock()
	fn := f.sendMessageFn
	f.mu.Unlock()
	return fn(ctx, conversationID, body, correlationToken)
}

func (f *fakeAPI) MarkRead(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	f.markReadCalls = append(f.markReadCalls, conversationID)
	fn := f.markReadFn
	f.mu.Unlock()
	return fn(ctx, conversationID)
}

func (f *fakeAPI) CreateDirectConversation(ctx context.Context, userID string) (*Conversation, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeAPI) CreateGroup(ctx context.Context, name, description string, userIDs []string) (*Conversation, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listConversationsCalls
}
