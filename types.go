package chatsync

import "time"

// ============================================================================
// Conversations
// ============================================================================

// ConversationKind distinguishes one-on-one threads from group threads.
type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

// UserRef identifies a conversation participant.
type UserRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// LastMessage is the denormalized preview shown in the conversation list.
// It is always superseded by the latest known message.
type LastMessage struct {
	Preview    string    `json:"preview"`
	SenderName string    `json:"senderName"`
	SentAt     time.Time `json:"sentAt"`
}

// Conversation is a direct or group messaging thread summary.
type Conversation struct {
	ID           string           `json:"id"`
	Kind         ConversationKind `json:"kind"`
	Title        string           `json:"title,omitempty"`
	Participants []UserRef        `json:"participants"`
	LastMessage  *LastMessage     `json:"lastMessage,omitempty"`
	UnreadCount  int              `json:"unreadCount"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// ============================================================================
// Messages
// ============================================================================

// DeliveryState tracks the lifecycle of a locally originated message.
// Server-delivered messages are always confirmed.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryConfirmed DeliveryState = "confirmed"
	DeliveryFailed    DeliveryState = "failed"
)

// Message is a single entry in a conversation thread. ID is either a
// server id or a temporary client-generated id while a send is in flight.
// CorrelationToken is attached to send requests and echoed back by the
// server so the optimistic entry can be confirmed in place.
type Message struct {
	ID               string        `json:"id"`
	ConversationID   string        `json:"conversationId"`
	SenderID         string        `json:"senderId"`
	SenderName       string        `json:"senderName,omitempty"`
	Body             string        `json:"body"`
	CreatedAt        time.Time     `json:"createdAt"`
	CorrelationToken string        `json:"correlationToken,omitempty"`
	Delivery         DeliveryState `json:"-"`
}

// ============================================================================
// REST pages and filters
// ============================================================================

// ListFilters narrows a conversation list fetch.
type ListFilters struct {
	Query    string
	Page     int
	PageSize int
}

// Pagination describes the position of a page within a paginated result.
type Pagination struct {
	Page       int `json:"page"`
	TotalPages int `json:"totalPages"`
	TotalItems int `json:"totalItems"`
}

// ConversationPage is the response to a conversation list fetch.
type ConversationPage struct {
	Conversations []Conversation `json:"conversations"`
	TotalUnread   int            `json:"totalUnread"`
	Pagination    Pagination     `json:"pagination"`
}

// MessagePage is the response to a thread history fetch.
type MessagePage struct {
	Messages   []Message  `json:"messages"`
	Pagination Pagination `json:"pagination"`
}

// ============================================================================
// Live events
// ============================================================================

// ConnState is the live channel connection state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

// NewMessageEvent is pushed when a message arrives in any of the bound
// user's conversations.
type NewMessageEvent struct {
	ConversationID string  `json:"conversationId"`
	Message        Message `json:"message"`
	SenderName     string  `json:"senderName"`
}

// ParticipantAddedEvent is pushed when someone joins a conversation.
// Participant sets are not reconstructed incrementally client-side; the
// event only signals that a re-hydration is due.
type ParticipantAddedEvent struct {
	ConversationID string `json:"conversationId"`
}

// TypingEvent is pushed when a participant starts or stops typing.
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	IsTyping       bool   `json:"isTyping"`
}
