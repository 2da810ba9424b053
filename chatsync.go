// Package chatsync implements the real-time conversation synchronization
// core of the Dispatchly mobile app: it keeps the conversation list and
// the open message thread consistent across paginated REST snapshots, a
// live event stream, optimistic local sends, and foreground/background
// transitions that can silently drop the live connection.
//
// Example:
//
//	client := chatsync.NewClient("https://api.dispatchly.io", chatsync.WithToken(jwt))
//	channel := chatsync.NewEventChannel("https://api.dispatchly.io", jwt, nil)
//
//	session := chatsync.NewSession(client, channel,
//		chatsync.WithLogger(log),
//		chatsync.WithScheduler(notifier),
//	)
//	defer session.Dispose()
//
//	_ = session.Init(ctx, currentUserID)
//	_ = session.Lifecycle.HandleFocus(ctx)
package chatsync

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultTimeout is applied to REST calls unless overridden.
const DefaultTimeout = 30 * time.Second

// DefaultPageSize is used when a list fetch does not specify one.
const DefaultPageSize = 20

// APIError is an error reported by the backend.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// API is the conversation/message REST collaborator consumed by the
// stores. Client is the production implementation.
type API interface {
	ListConversations(ctx context.Context, filters ListFilters) (*ConversationPage, error)
	ListMessages(ctx context.Context, conversationID string, page int) (*MessagePage, error)
	SendMessage(ctx context.Context, conversationID, body, correlationToken string) (*Message, error)
	MarkRead(ctx context.Context, conversationID string) error
	CreateDirectConversation(ctx context.Context, userID string) (*Conversation, error)
	CreateGroup(ctx context.Context, name, description string, userIDs []string) (*Conversation, error)
}

// Client is the REST API client.
type Client struct {
	http *resty.Client
	log  *zap.Logger
}

var _ API = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithToken sets the bearer token used on every request.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.http.SetAuthToken(token) }
}

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.http.SetTimeout(timeout) }
}

// WithHTTPClient swaps the underlying transport.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		base := c.http.BaseURL
		c.http = resty.NewWithClient(hc).SetBaseURL(base)
	}
}

// WithClientLogger attaches a logger to the Client.
func WithClientLogger(log *zap.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a REST client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		http: resty.New().SetBaseURL(baseURL).SetTimeout(DefaultTimeout),
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the bearer token, e.g. after a session refresh.
func (c *Client) SetToken(token string) {
	c.http.SetAuthToken(token)
}

func (c *Client) do(ctx context.Context, method, path string, body any, query map[string]string, out any) error {
	req := c.http.R().SetContext(ctx).SetError(&APIError{})
	if body != nil {
		req.SetBody(body)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		if apiErr, ok := resp.Error().(*APIError); ok && apiErr.Code != "" {
			return apiErr
		}
		return &APIError{
			Code:    "HTTP_" + strconv.Itoa(resp.StatusCode()),
			Message: http.StatusText(resp.StatusCode()),
		}
	}
	return nil
}

// ListConversations fetches one page of the conversation list.
func (c *Client) ListConversations(ctx context.Context, filters ListFilters) (*ConversationPage, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = DefaultPageSize
	}
	query := map[string]string{
		"page":     strconv.Itoa(filters.Page),
		"pageSize": strconv.Itoa(filters.PageSize),
	}
	if filters.Query != "" {
		query["query"] = filters.Query
	}

	var page ConversationPage
	if err := c.do(ctx, http.MethodGet, "/api/chat/conversations", nil, query, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListMessages fetches one page of a thread's history, newest page first.
func (c *Client) ListMessages(ctx context.Context, conversationID string, page int) (*MessagePage, error) {
	if page <= 0 {
		page = 1
	}
	var result MessagePage
	path := "/api/chat/conversations/" + conversationID + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, map[string]string{"page": strconv.Itoa(page)}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendMessage posts a message. The correlation token is echoed back in the
// response and in the live event so the sender can match its optimistic
// entry.
func (c *Client) SendMessage(ctx context.Context, conversationID, body, correlationToken string) (*Message, error) {
	var msg Message
	path := "/api/chat/conversations/" + conversationID + "/messages"
	payload := map[string]string{
		"body":             body,
		"correlationToken": correlationToken,
	}
	if err := c.do(ctx, http.MethodPost, path, payload, nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead persists the read state of a conversation.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPost, "/api/chat/conversations/"+conversationID+"/read", nil, nil, nil)
}

// CreateDirectConversation returns the direct conversation with the given
// user, creating it if none exists.
func (c *Client) CreateDirectConversation(ctx context.Context, userID string) (*Conversation, error) {
	var conv Conversation
	payload := map[string]string{"userId": userID}
	if err := c.do(ctx, http.MethodPost, "/api/chat/conversations/direct", payload, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateGroup creates a group conversation with the given members.
func (c *Client) CreateGroup(ctx context.Context, name, description string, userIDs []string) (*Conversation, error) {
	var conv Conversation
	payload := map[string]any{
		"name":    name,
		"userIds": userIDs,
	}
	if description != "" {
		payload["description"] = description
	}
	if err := c.do(ctx, http.MethodPost, "/api/chat/groups", payload, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}
