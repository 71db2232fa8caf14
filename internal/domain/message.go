package domain

import (
	"sort"
	"strconv"
	"time"
)

// MessageType is the content kind of a message.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
)

// ParseMessageType validates s as a message type.
func ParseMessageType(s string) (MessageType, bool) {
	switch MessageType(s) {
	case MessageTypeText, MessageTypeImage:
		return MessageType(s), true
	}
	return "", false
}

const (
	previewImage = "[图片]"
	previewEmpty = "暂无消息"
)

// Message is a persisted chat message. ID is assigned by the store.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	SenderID       string      `json:"senderId"`
	ReceiverID     string      `json:"receiverId"`
	Content        string      `json:"content"`
	Type           MessageType `json:"type"`
	IsRead         bool        `json:"isRead"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// Preview is the one-line text shown in conversation lists.
func Preview(m *Message) string {
	if m == nil {
		return previewEmpty
	}
	if m.Type == MessageTypeImage {
		return previewImage
	}
	return m.Content
}

// CompareIDs orders store-assigned ids. Numeric ids compare numerically,
// everything else by length then lexically (ObjectID hex sorts correctly).
func CompareIDs(a, b string) int {
	if ai, err := strconv.ParseUint(a, 10, 64); err == nil {
		if bi, err := strconv.ParseUint(b, 10, 64); err == nil {
			switch {
			case ai < bi:
				return -1
			case ai > bi:
				return 1
			}
			return 0
		}
	}
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// SortMessages orders messages by (CreatedAt, ID) ascending.
func SortMessages(msgs []*Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return CompareIDs(msgs[i].ID, msgs[j].ID) < 0
	})
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 50
)

// Page selects a window of conversation history.
type Page struct {
	Page   int
	Limit  int
	Before *time.Time
}

// Normalize clamps page and limit into their valid ranges.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

// Offset is the number of rows to skip for the page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Pagination describes a page of history returned to callers.
type Pagination struct {
	CurrentPage int   `json:"currentPage"`
	PageSize    int   `json:"pageSize"`
	TotalCount  int64 `json:"totalCount"`
	HasMore     bool  `json:"hasMore"`
	NextPage    *int  `json:"nextPage"`
	PrevPage    *int  `json:"prevPage"`
}

// NewPagination computes navigation for page p over total rows.
func NewPagination(p Page, total int64) Pagination {
	out := Pagination{
		CurrentPage: p.Page,
		PageSize:    p.Limit,
		TotalCount:  total,
		HasMore:     int64(p.Page*p.Limit) < total,
	}
	if out.HasMore {
		next := p.Page + 1
		out.NextPage = &next
	}
	if p.Page > 1 {
		prev := p.Page - 1
		out.PrevPage = &prev
	}
	return out
}
