package chatsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, api *fakeAPI, opts ...SessionOption) (*Session, *wsServer) {
	t.Helper()
	srv := newWSServer(t)
	channel := NewEventChannel(srv.URL, "", nil)
	s := NewSession(api, channel, opts...)
	t.Cleanup(s.Dispose)
	return s, srv
}

func seedSession(t *testing.T, api *fakeAPI) {
	t.Helper()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	api.listConversationsFn = func(context.Context, ListFilters) (*ConversationPage, error) {
		return listPage(0,
			conv("c1", base, 0),
			conv("c2", base.Add(-time.Hour), 0),
		), nil
	}
}

// ============================================================================
// Event routing
// ============================================================================

func TestSessionRoutesNewMessage(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("closed thread: unread grows and notification fires", func(t *testing.T) {
		api := newFakeAPI()
		seedSession(t, api)
		sched := &recordingScheduler{}
		s, srv := newTestSession(t, api, WithScheduler(sched))
		require.NoError(t, s.Init(context.Background(), "u1"))
		require.NoError(t, s.Conversations.Hydrate(context.Background(), ListFilters{}))

		srv.push(t, evNewMessage, NewMessageEvent{
			ConversationID: "c2",
			Message:        msg("m1", "c2", "u9", "load ready", base),
			SenderName:     "Pat",
		})

		require.Eventually(t, func() bool {
			c, ok := s.Conversations.Get("c2")
			return ok && c.UnreadCount == 1
		}, 2*time.Second, 5*time.Millisecond)

		assert.Equal(t, 1, s.Conversations.TotalUnread())
		require.Len(t, sched.calls, 1)
		assert.Equal(t, "Pat", sched.calls[0].senderName)

		// Message lands at the top of the list.
		snap := s.Conversations.Snapshot()
		assert.Equal(t, "c2", snap[0].ID)
	})

	t.Run("open thread: message lands in thread, no unread, no notification", func(t *testing.T) {
		api := newFakeAPI()
		seedSession(t, api)
		sched := &recordingScheduler{}
		s, srv := newTestSession(t, api, WithScheduler(sched))
		require.NoError(t, s.Init(context.Background(), "u1"))
		require.NoError(t, s.Conversations.Hydrate(context.Background(), ListFilters{}))
		require.NoError(t, s.OpenThread(context.Background(), "c2"))

		srv.push(t, evNewMessage, NewMessageEvent{
			ConversationID: "c2",
			Message:        msg("m1", "c2", "u9", "load ready", base),
			SenderName:     "Pat",
		})

		require.Eventually(t, func() bool {
			return len(s.Thread.Messages()) == 1
		}, 2*time.Second, 5*time.Millisecond)

		c, _ := s.Conversations.Get("c2")
		assert.Equal(t, 0, c.UnreadCount, "visible messages are already read")
		assert.Empty(t, sched.calls, "open thread suppresses notifications")

		// Preview still updates.
		require.NotNil(t, c.LastMessage)
		assert.Equal(t, "load ready", c.LastMessage.Preview)
	})

	t.Run("loaded thread behind another screen still notifies", func(t *testing.T) {
		api := newFakeAPI()
		seedSession(t, api)
		sched := &recordingScheduler{}
		active := ScreenConversationList
		s, srv := newTestSession(t, api,
			WithScheduler(sched),
			WithActiveScreen(func() ScreenID { return active }),
		)
		require.NoError(t, s.Init(context.Background(), "u1"))
		require.NoError(t, s.Conversations.Hydrate(context.Background(), ListFilters{}))
		// The thread is loaded, but the navigation layer reports the list
		// as the visible screen.
		require.NoError(t, s.OpenThread(context.Background(), "c2"))

		srv.push(t, evNewMessage, NewMessageEvent{
			ConversationID: "c2",
			Message:        msg("m1", "c2", "u9", "load ready", base),
			SenderName:     "Pat",
		})

		require.Eventually(t, func() bool {
			return len(s.Thread.Messages()) == 1
		}, 2*time.Second, 5*time.Millisecond)

		c, _ := s.Conversations.Get("c2")
		assert.Equal(t, 1, c.UnreadCount, "off-screen thread still collects unread")
		require.Len(t, sched.calls, 1, "off-screen thread must not suppress")
		assert.Equal(t, "Pat", sched.calls[0].senderName)
	})

	t.Run("own echo never counts as unread", func(t *testing.T) {
		api := newFakeAPI()
		seedSession(t, api)
		sched := &recordingScheduler{}
		s, srv := newTestSession(t, api, WithScheduler(sched))
		require.NoError(t, s.Init(context.Background(), "u1"))
		require.NoError(t, s.Conversations.Hydrate(context.Background(), ListFilters{}))

		srv.push(t, evNewMessage, NewMessageEvent{
			ConversationID: "c2",
			Message:        msg("m1", "c2", "u1", "sent from my phone", base),
			SenderName:     "Me",
		})

		require.Eventually(t, func() bool {
			c, ok := s.Conversations.Get("c2")
			return ok && c.LastMessage != nil
		}, 2*time.Second, 5*time.Millisecond)

		c, _ := s.Conversations.Get("c2")
		assert.Equal(t, 0, c.UnreadCount)
		assert.Empty(t, sched.calls)
	})
}

func TestSessionTypingAndParticipants(t *testing.T) {
	api := newFakeAPI()
	seedSession(t, api)
	s, srv := newTestSession(t, api)
	require.NoError(t, s.Init(context.Background(), "u1"))

	srv.push(t, evTyping, TypingEvent{ConversationID: "c1", UserID: "u2", UserName: "Pat", IsTyping: true})

	require.Eventually(t, func() bool {
		return len(s.Typing.Active("c1")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	before := api.calls()
	srv.push(t, evParticipantAdded, ParticipantAddedEvent{ConversationID: "c1"})

	require.Eventually(t, func() bool {
		return api.calls() > before
	}, 2*time.Second, 5*time.Millisecond, "participant change triggers a silent re-fetch")
}

// ============================================================================
// Thread open/close
// ============================================================================

func TestSessionOpenThread(t *testing.T) {
	api := newFakeAPI()
	seedSession(t, api)
	s, _ := newTestSession(t, api)
	require.NoError(t, s.Init(context.Background(), "u1"))
	require.NoError(t, s.Conversations.Hydrate(context.Background(), ListFilters{}))

	require.NoError(t, s.OpenThread(context.Background(), "c1"))
	assert.Equal(t, "c1", s.Thread.ActiveConversation())
	assert.Equal(t, []string{"c1"}, api.markReadCalls)

	s.CloseThread()
	assert.Empty(t, s.Thread.ActiveConversation())
}

// ============================================================================
// Init / connection state
// ============================================================================

func TestSessionInit(t *testing.T) {
	api := newFakeAPI()
	s, srv := newTestSession(t, api)

	require.NoError(t, s.Init(context.Background(), "u1"))
	assert.Equal(t, StateConnected, s.ConnectionState())

	// Same user again: no second socket.
	require.NoError(t, s.Init(context.Background(), "u1"))
	assert.Equal(t, 1, srv.connCount())

	// Different user: rebinds the channel and closes the thread.
	require.NoError(t, s.OpenThread(context.Background(), "u1-thread"))
	require.NoError(t, s.Init(context.Background(), "u2"))
	assert.Equal(t, 2, srv.connCount())
	assert.Empty(t, s.Thread.ActiveConversation())
}
