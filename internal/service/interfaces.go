package service

import (
	"context"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
)

// --- Service Interfaces ---

// IConversationService defines conversation-level business logic used by the
// HTTP surface.
type IConversationService interface {
	FindOrCreate(ctx context.Context, postID, userID, otherUserID string) (*domain.Conversation, error)
	Authorize(ctx context.Context, conversationID, userID string) (*domain.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]domain.ConversationSummary, error)
	History(ctx context.Context, conversationID, userID string, page domain.Page) ([]*domain.Message, domain.Pagination, error)
	MarkRead(ctx context.Context, conversationID, userID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

// IUserService validates the opaque openid identities presented by callers.
type IUserService interface {
	Authenticate(ctx context.Context, openid string) error
	Revoke(ctx context.Context, openid string) error
}

// --- Repository Interfaces ---

// IConversationRepository defines conversation persistence.
type IConversationRepository interface {
	// FindOrCreate returns the conversation for the unordered pair under
	// postID, creating it with initiatorID as participant 1 if needed.
	FindOrCreate(ctx context.Context, postID, initiatorID, otherID string) (*domain.Conversation, error)
	// GetByID returns nil, nil when the conversation does not exist.
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	ListByParticipant(ctx context.Context, userID string) ([]*domain.Conversation, error)
}

// IMessageRepository defines message persistence.
type IMessageRepository interface {
	// SaveMessage assigns ID and CreatedAt and bumps the conversation's
	// UpdatedAt together with the insert.
	SaveMessage(ctx context.Context, message *domain.Message) error
	// GetMessagesByConversationID returns one page in ascending display
	// order plus the total row count matching the filter.
	GetMessagesByConversationID(ctx context.Context, conversationID string, page domain.Page) ([]*domain.Message, int64, error)
	// GetUnreadMessages returns every unread message for receiverID, oldest first.
	GetUnreadMessages(ctx context.Context, receiverID string) ([]*domain.Message, error)
	MarkMessagesAsRead(ctx context.Context, ids []string) error
	MarkConversationAsRead(ctx context.Context, conversationID, receiverID string) (int64, error)
	// CountUnread counts unread messages for receiverID, restricted to
	// conversationID unless it is empty.
	CountUnread(ctx context.Context, receiverID, conversationID string) (int64, error)
	// GetLastMessage returns nil, nil for an empty conversation.
	GetLastMessage(ctx context.Context, conversationID string) (*domain.Message, error)
}

// IBlacklistRepository stores revoked openids.
type IBlacklistRepository interface {
	IsBlacklisted(ctx context.Context, openid string) (bool, error)
	Add(ctx context.Context, openid string, ttl time.Duration) error
}
