package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
)

// OpenIDHeader carries the caller identity on every API request.
const OpenIDHeader = "x-openid"

// APIError is a non-success response from the chat API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// APIClient calls the HTTP collaborator endpoints as one user.
type APIClient struct {
	baseURL    string
	openID     string
	httpClient *http.Client
}

// NewAPIClient targets baseURL, e.g. "http://localhost:8080/api".
func NewAPIClient(baseURL, openID string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &APIClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		openID:     openID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// RemoteMessage is a message as the API returns it.
type RemoteMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
	Type           string `json:"type"`
	Content        string `json:"content"`
	Timestamp      string `json:"timestamp"`
	IsRead         bool   `json:"isRead"`
}

// Millis parses the ISO timestamp into unix milliseconds.
func (m RemoteMessage) Millis() int64 {
	t, err := time.Parse(time.RFC3339Nano, m.Timestamp)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

func (m RemoteMessage) local() LocalMessage {
	t, ok := domain.ParseMessageType(m.Type)
	if !ok {
		t = domain.MessageTypeText
	}
	ts := m.Millis()
	return LocalMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Content:        m.Content,
		Type:           t,
		Timestamp:      ts,
		Status:         Sent{ServerID: m.ID, Timestamp: ts},
	}
}

// SendMessageRequest is the body of the HTTP send fallback.
type SendMessageRequest struct {
	Content      string `json:"content"`
	Type         string `json:"type"`
	ReceiverID   string `json:"receiverId,omitempty"`
	ClientTempID string `json:"clientTempId,omitempty"`
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// FindOrCreate returns the conversation id shared with otherUserID.
func (c *APIClient) FindOrCreate(ctx context.Context, postID, otherUserID string) (string, error) {
	var out struct {
		ConversationID string `json:"conversationId"`
	}
	body := map[string]string{"postId": postID, "otherUserId": otherUserID}
	if err := c.do(ctx, http.MethodPost, "/conversations/find-or-create", nil, body, &out); err != nil {
		return "", err
	}
	return out.ConversationID, nil
}

// Messages returns one page of history, oldest first.
func (c *APIClient) Messages(ctx context.Context, conversationID string, page, limit int) ([]RemoteMessage, domain.Pagination, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Messages   []RemoteMessage   `json:"messages"`
		Pagination domain.Pagination `json:"pagination"`
	}
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, q, nil, &out); err != nil {
		return nil, domain.Pagination{}, err
	}
	return out.Messages, out.Pagination, nil
}

// SendMessage posts a message through HTTP instead of the socket.
func (c *APIClient) SendMessage(ctx context.Context, conversationID string, req SendMessageRequest) (*RemoteMessage, error) {
	var out RemoteMessage
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UnreadCount is the caller's total unread messages across conversations.
func (c *APIClient) UnreadCount(ctx context.Context) (int64, error) {
	var out struct {
		UnreadCount int64 `json:"unreadCount"`
	}
	if err := c.do(ctx, http.MethodGet, "/conversations/unread-count", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.UnreadCount, nil
}

// MarkRead marks everything addressed to the caller in conversationID as read.
func (c *APIClient) MarkRead(ctx context.Context, conversationID string) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	path := "/conversations/" + url.PathEscape(conversationID) + "/mark-read"
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(OpenIDHeader, c.openID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || env.Code != 0 {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
