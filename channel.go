package chatsync

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Server-pushed event types.
const (
	evNewMessage       = "message.new"
	evParticipantAdded = "participant.added"
	evTyping           = "typing"
)

// Client commands.
const (
	cmdTypingStart = "typing.start"
	cmdTypingStop  = "typing.stop"
)

// envelope is the wire format for all live events and commands.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type command struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Handlers carries at most one handler per event type. Binding a new set
// replaces the previous one, so duplicate registration is impossible by
// construction. Handlers are invoked synchronously from the read loop in
// arrival order; they must not block on the channel itself.
// OnConnectionState is delivered in transition order and must not call
// back into the channel.
type Handlers struct {
	OnNewMessage       func(NewMessageEvent)
	OnParticipantAdded func(ParticipantAddedEvent)
	OnTyping           func(TypingEvent)
	OnConnectionState  func(ConnState)
}

// EventChannel is the persistent bidirectional connection delivering live
// messaging events for one authenticated user at a time.
//
// State machine: disconnected -> connecting -> connected, back to
// disconnected on transport error or explicit teardown. The channel never
// retries on its own; reconnect timing belongs to the LifecycleCoordinator.
type EventChannel struct {
	baseURL string
	token   string
	log     *zap.Logger

	// emitMu keeps each state change and its OnConnectionState delivery
	// atomic with respect to other transitions, so a racing Connect and
	// Disconnect cannot notify out of order. Always taken before mu.
	emitMu sync.Mutex

	mu          sync.Mutex
	state       ConnState
	userID      string
	conn        *websocket.Conn
	cancel      context.CancelFunc
	intentional bool
	gen         uint64
	handlers    Handlers

	recon *reconnector
}

// NewEventChannel creates a disconnected channel against the given HTTP
// base URL (http/https are rewritten to ws/wss). A nil logger disables
// logging.
func NewEventChannel(baseURL, token string, log *zap.Logger) *EventChannel {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventChannel{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		log:     log,
		state:   StateDisconnected,
		recon:   newReconnector(),
	}
}

// Bind replaces the full handler set. Events arriving before Bind are
// dropped; binding while connected applies to subsequent events.
func (ch *EventChannel) Bind(h Handlers) {
	ch.mu.Lock()
	ch.handlers = h
	ch.mu.Unlock()
}

// State returns the current connection state.
func (ch *EventChannel) State() ConnState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// UserID returns the user the channel is currently bound to, if any.
func (ch *EventChannel) UserID() string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.userID
}

func (ch *EventChannel) wsURL(userID string) string {
	base := strings.Replace(ch.baseURL, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	q := url.Values{}
	q.Set("userId", userID)
	if ch.token != "" {
		q.Set("token", ch.token)
	}
	return base + "/ws?" + q.Encode()
}

// Connect establishes the connection for the given user. It is idempotent:
// connecting while already connected or connecting for the same user is a
// no-op. Connecting for a different user tears down the previous binding
// first; two bindings never overlap.
func (ch *EventChannel) Connect(ctx context.Context, userID string) error {
	ch.emitMu.Lock()
	ch.mu.Lock()
	if ch.state != StateDisconnected {
		if ch.userID == userID {
			ch.mu.Unlock()
			ch.emitMu.Unlock()
			return nil
		}
		ch.mu.Unlock()
		ch.emitMu.Unlock()
		ch.Disconnect()
		ch.emitMu.Lock()
		ch.mu.Lock()
	}
	ch.state = StateConnecting
	ch.userID = userID
	ch.intentional = false
	ch.gen++
	gen := ch.gen
	h := ch.handlers.OnConnectionState
	ch.mu.Unlock()
	if h != nil {
		h(StateConnecting)
	}
	ch.emitMu.Unlock()

	conn, _, err := websocket.Dial(ctx, ch.wsURL(userID), nil)
	if err != nil {
		ch.emitMu.Lock()
		ch.mu.Lock()
		if ch.gen != gen {
			// Superseded while dialing; the owner of the newer generation
			// reports its own transitions.
			ch.mu.Unlock()
			ch.emitMu.Unlock()
			return fmt.Errorf("channel dial: %w", err)
		}
		ch.state = StateDisconnected
		h := ch.handlers.OnConnectionState
		ch.mu.Unlock()
		if h != nil {
			h(StateDisconnected)
		}
		ch.emitMu.Unlock()
		return fmt.Errorf("channel dial: %w", err)
	}

	ch.emitMu.Lock()
	ch.mu.Lock()
	if ch.gen != gen {
		// Superseded by a newer Connect or Disconnect while dialing.
		ch.mu.Unlock()
		ch.emitMu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "superseded")
		return nil
	}
	connCtx, cancel := context.WithCancel(context.Background())
	ch.conn = conn
	ch.cancel = cancel
	ch.state = StateConnected
	h = ch.handlers.OnConnectionState
	ch.mu.Unlock()
	if h != nil {
		h(StateConnected)
	}
	ch.emitMu.Unlock()

	ch.recon.markConnected()
	go ch.readLoop(connCtx, conn, gen)
	return nil
}

// Disconnect releases the transport. Safe to call multiple times.
func (ch *EventChannel) Disconnect() {
	ch.emitMu.Lock()
	ch.mu.Lock()
	wasConnected := ch.state != StateDisconnected
	ch.intentional = true
	ch.gen++
	if ch.cancel != nil {
		ch.cancel()
		ch.cancel = nil
	}
	conn := ch.conn
	ch.conn = nil
	ch.state = StateDisconnected
	h := ch.handlers.OnConnectionState
	ch.mu.Unlock()
	if wasConnected && h != nil {
		h(StateDisconnected)
	}
	ch.emitMu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
}

// Reconnect tears down whatever binding exists and dials again for the
// given user. A connection that was backgrounded is never assumed alive.
// Each call makes a single attempt; consecutive failures back off with
// capped exponential delay, reset by a successful connect. The delay is
// honored before dialing and aborted by ctx.
func (ch *EventChannel) Reconnect(ctx context.Context, userID string) error {
	ch.Disconnect()

	if delay := ch.recon.delayBeforeAttempt(); delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := ch.Connect(ctx, userID); err != nil {
		ch.recon.recordFailure()
		return err
	}
	return nil
}

// SendTyping notifies the other participants that the bound user started
// or stopped typing in a conversation.
func (ch *EventChannel) SendTyping(ctx context.Context, conversationID string, started bool) error {
	typ := cmdTypingStop
	if started {
		typ = cmdTypingStart
	}
	return ch.send(ctx, command{Type: typ, Payload: map[string]string{"conversationId": conversationID}})
}

func (ch *EventChannel) send(ctx context.Context, cmd command) error {
	ch.mu.Lock()
	conn := ch.conn
	ch.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("channel not connected")
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// readLoop delivers events strictly in arrival order. Handlers run on this
// goroutine; fanning out would allow reordering.
func (ch *EventChannel) readLoop(ctx context.Context, conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			ch.emitMu.Lock()
			ch.mu.Lock()
			stale := ch.gen != gen
			intentional := ch.intentional
			var h func(ConnState)
			if !stale {
				ch.state = StateDisconnected
				ch.conn = nil
				h = ch.handlers.OnConnectionState
			}
			ch.mu.Unlock()
			if !stale && !intentional && h != nil {
				h(StateDisconnected)
			}
			ch.emitMu.Unlock()

			if !stale && !intentional {
				ch.log.Debug("channel transport closed", zap.Error(err))
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			ch.log.Debug("dropping malformed channel frame", zap.Error(err))
			continue
		}
		ch.dispatch(env)
	}
}

func (ch *EventChannel) dispatch(env envelope) {
	ch.mu.Lock()
	h := ch.handlers
	ch.mu.Unlock()

	switch env.Type {
	case evNewMessage:
		var ev NewMessageEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			ch.log.Debug("bad message.new payload", zap.Error(err))
			return
		}
		if ev.Message.ConversationID == "" {
			ev.Message.ConversationID = ev.ConversationID
		}
		if h.OnNewMessage != nil {
			h.OnNewMessage(ev)
		}
	case evParticipantAdded:
		var ev ParticipantAddedEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			ch.log.Debug("bad participant.added payload", zap.Error(err))
			return
		}
		if h.OnParticipantAdded != nil {
			h.OnParticipantAdded(ev)
		}
	case evTyping:
		var ev TypingEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			ch.log.Debug("bad typing payload", zap.Error(err))
			return
		}
		if h.OnTyping != nil {
			h.OnTyping(ev)
		}
	default:
		ch.log.Debug("unknown channel event", zap.String("type", env.Type))
	}
}

// ============================================================================
// Reconnector
// ============================================================================

// reconnector computes backoff delays for explicit reconnect attempts.
// Retry timing is owned by the caller; this only answers "how long to
// wait before the next dial".
type reconnector struct {
	mu        sync.Mutex
	baseDelay time.Duration
	maxDelay  time.Duration
	attempt   int
	jitter    func() float64
}

func newReconnector() *reconnector {
	return &reconnector{
		baseDelay: time.Second,
		maxDelay:  30 * time.Second,
		jitter:    rand.Float64,
	}
}

func (r *reconnector) delayBeforeAttempt() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attempt == 0 {
		return 0
	}
	jitter := time.Duration(r.jitter() * float64(r.baseDelay) * 0.5)
	return time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt-1))+float64(jitter),
		float64(r.maxDelay),
	))
}

func (r *reconnector) recordFailure() {
	r.mu.Lock()
	r.attempt++
	r.mu.Unlock()
}

func (r *reconnector) markConnected() {
	r.mu.Lock()
	r.attempt = 0
	r.mu.Unlock()
}
