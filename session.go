package chatsync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Session wires the stores, the live channel, the lifecycle coordinator and
// the notification bridge into one messaging surface for a single
// authenticated user. Event routing lives here: every live event has
// exactly one owner.
type Session struct {
	api     API
	channel *EventChannel
	log     *zap.Logger

	Conversations *ConversationStore
	Thread        *ThreadStore
	Typing        *TypingTracker
	Lifecycle     *LifecycleCoordinator

	bridge       *NotificationBridge
	activeScreen func() ScreenID

	mu        sync.Mutex
	userID    string
	connState ConnState
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	log       *zap.Logger
	scheduler NotificationScheduler
	activeFn  func() ScreenID
	typingTTL time.Duration
	debounce  time.Duration
}

// WithLogger attaches a logger to the session and all its components.
func WithLogger(log *zap.Logger) SessionOption {
	return func(c *sessionConfig) { c.log = log }
}

// WithScheduler enables local notifications through the given scheduler.
func WithScheduler(s NotificationScheduler) SessionOption {
	return func(c *sessionConfig) { c.scheduler = s }
}

// WithActiveScreen overrides how the session learns what screen is on top.
// By default the open thread, if any, is assumed active.
func WithActiveScreen(fn func() ScreenID) SessionOption {
	return func(c *sessionConfig) { c.activeFn = fn }
}

// WithTypingTTL overrides the typing indicator expiry.
func WithTypingTTL(ttl time.Duration) SessionOption {
	return func(c *sessionConfig) { c.typingTTL = ttl }
}

// WithSearchDebounce overrides the search settle window.
func WithSearchDebounce(d time.Duration) SessionOption {
	return func(c *sessionConfig) { c.debounce = d }
}

// NewSession composes a session over the given API client and channel.
func NewSession(api API, channel *EventChannel, opts ...SessionOption) *Session {
	cfg := &sessionConfig{log: zap.NewNop()}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Session{
		api:       api,
		channel:   channel,
		log:       cfg.log,
		connState: StateDisconnected,
	}
	s.Conversations = NewConversationStore(api, cfg.log)
	s.Thread = NewThreadStore(api, cfg.log)
	s.Typing = NewTypingTracker(cfg.typingTTL)
	s.Lifecycle = NewLifecycleCoordinator(s.Conversations, channel, cfg.debounce, cfg.log)

	activeFn := cfg.activeFn
	if activeFn == nil {
		activeFn = func() ScreenID {
			if conv := s.Thread.ActiveConversation(); conv != "" {
				return ThreadScreen(conv)
			}
			return ScreenConversationList
		}
	}
	s.activeScreen = activeFn
	s.bridge = NewNotificationBridge(cfg.scheduler, activeFn, cfg.log)

	return s
}

// Init binds the session to a user and connects the live channel. Calling
// Init for a different user rebinds everything; calling it again for the
// same user only reconnects if needed.
func (s *Session) Init(ctx context.Context, userID string) error {
	s.mu.Lock()
	changed := s.userID != userID
	s.userID = userID
	s.mu.Unlock()

	if changed {
		s.Thread.Close()
		s.Thread.SetUser(userID)
		s.Lifecycle.SetUser(userID)
	}

	s.channel.Bind(Handlers{
		OnNewMessage:       s.handleNewMessage,
		OnParticipantAdded: s.handleParticipantAdded,
		OnTyping:           s.Typing.Apply,
		OnConnectionState:  s.handleConnectionState,
	})
	return s.channel.Connect(ctx, userID)
}

// handleNewMessage routes one live message to exactly one owner. A message
// for the loaded thread always lands in the thread, but unread counting and
// notification follow what is actually on screen: a thread loaded behind
// another screen still collects unread and may notify, using the same
// active-screen source as the bridge. The sender's own echo never counts as
// unread or notifies.
func (s *Session) handleNewMessage(ev NewMessageEvent) {
	s.mu.Lock()
	selfID := s.userID
	s.mu.Unlock()

	msg := ev.Message
	if msg.SenderName == "" {
		msg.SenderName = ev.SenderName
	}

	if s.Thread.ActiveConversation() == ev.ConversationID {
		s.Thread.ApplyIncoming(msg)
	}

	own := msg.SenderID == selfID
	visible := s.activeScreen() == ThreadScreen(ev.ConversationID)
	if own || visible {
		s.Conversations.TouchConversation(ev.ConversationID, msg, ev.SenderName)
		return
	}

	s.Conversations.ApplyNewMessage(ev.ConversationID, msg, ev.SenderName)
	kind := KindDirect
	if c, ok := s.Conversations.Get(ev.ConversationID); ok {
		kind = c.Kind
	}
	s.bridge.HandleNewMessage(ev, kind)
}

func (s *Session) handleParticipantAdded(ev ParticipantAddedEvent) {
	s.Conversations.ApplyParticipantAdded(ev.ConversationID)
}

func (s *Session) handleConnectionState(state ConnState) {
	s.mu.Lock()
	s.connState = state
	s.mu.Unlock()
	if state == StateDisconnected {
		s.Typing.Clear()
	}
}

// ConnectionState returns the last observed channel state.
func (s *Session) ConnectionState() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connState
}

// OpenThread loads a conversation's history and marks it read.
func (s *Session) OpenThread(ctx context.Context, conversationID string) error {
	if err := s.Thread.Load(ctx, conversationID); err != nil {
		return err
	}
	s.Conversations.MarkRead(ctx, conversationID)
	return nil
}

// CloseThread discards the open thread.
func (s *Session) CloseThread() {
	s.Thread.Close()
}

// SendTyping forwards a typing signal for the open thread. Best effort; a
// missing connection is not an error worth surfacing to the composer.
func (s *Session) SendTyping(ctx context.Context, started bool) {
	conv := s.Thread.ActiveConversation()
	if conv == "" {
		return
	}
	if err := s.channel.SendTyping(ctx, conv, started); err != nil {
		s.log.Debug("typing signal dropped", zap.Error(err))
	}
}

// Dispose tears the session down: pending debounces are cancelled, the
// channel is closed and in-flight fetches are barred from mutating the
// stores.
func (s *Session) Dispose() {
	s.Lifecycle.Stop()
	s.channel.Disconnect()
	s.Conversations.Dispose()
	s.Thread.Dispose()
}
