package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
	"github.com/Congdongdong03/wx-help-sub000/internal/logger"
)

// ConversationService provides conversation-related services.
type ConversationService struct {
	conversations IConversationRepository
	messages      IMessageRepository
	log           *logger.Logger
}

// NewConversationService creates a new ConversationService.
func NewConversationService(conversations IConversationRepository, messages IMessageRepository, log *logger.Logger) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		log:           log.With("service", "conversation"),
	}
}

// FindOrCreate returns the conversation between userID and otherUserID for
// postID, creating it if neither ordering exists yet.
func (s *ConversationService) FindOrCreate(ctx context.Context, postID, userID, otherUserID string) (*domain.Conversation, error) {
	postID = strings.TrimSpace(postID)
	otherUserID = strings.TrimSpace(otherUserID)
	if userID == "" || otherUserID == "" {
		return nil, fmt.Errorf("%w: both participants are required", domain.ErrInvalidArgument)
	}
	if userID == otherUserID {
		return nil, domain.ErrSelfMessage
	}
	conv, err := s.conversations.FindOrCreate(ctx, postID, userID, otherUserID)
	if err != nil {
		s.log.Error("find or create conversation failed", "postId", postID, "userId", userID, "otherUserId", otherUserID, "error", err)
		return nil, err
	}
	if !conv.HasParticipant(userID) || !conv.HasParticipant(otherUserID) {
		s.log.Error("pair key resolved to a foreign conversation", "conversationId", conv.ID, "userId", userID, "otherUserId", otherUserID)
		return nil, fmt.Errorf("conversation %s: %w", conv.ID, domain.ErrNotParticipant)
	}
	return conv, nil
}

// Authorize loads the conversation and checks that userID takes part in it.
// Missing conversations and foreign ones are indistinguishable to callers.
func (s *ConversationService) Authorize(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil || !conv.HasParticipant(userID) {
		return nil, domain.ErrNotParticipant
	}
	return conv, nil
}

// ListForUser returns the user's conversations, most recently active first.
func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	convs, err := s.conversations.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		last, err := s.messages.GetLastMessage(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("last message for %s: %w", c.ID, err)
		}
		unread, err := s.messages.CountUnread(ctx, userID, c.ID)
		if err != nil {
			return nil, fmt.Errorf("unread count for %s: %w", c.ID, err)
		}
		summary := domain.ConversationSummary{
			ID:                 c.ID,
			PostID:             c.PostID,
			OtherUserID:        c.OtherParticipant(userID),
			LastMessagePreview: domain.Preview(last),
			UnreadCount:        unread,
			UpdatedAt:          c.UpdatedAt,
		}
		if last != nil {
			at := last.CreatedAt
			summary.LastMessageAt = &at
			summary.LastMessageType = string(last.Type)
		}
		out = append(out, summary)
	}
	return out, nil
}

// History returns one page of the conversation in ascending order.
func (s *ConversationService) History(ctx context.Context, conversationID, userID string, page domain.Page) ([]*domain.Message, domain.Pagination, error) {
	if _, err := s.Authorize(ctx, conversationID, userID); err != nil {
		return nil, domain.Pagination{}, err
	}
	page = page.Normalize()
	msgs, total, err := s.messages.GetMessagesByConversationID(ctx, conversationID, page)
	if err != nil {
		s.log.Error("load history failed", "conversationId", conversationID, "userId", userID, "error", err)
		return nil, domain.Pagination{}, err
	}
	return msgs, domain.NewPagination(page, total), nil
}

// MarkRead flips every unread message addressed to userID in the conversation.
func (s *ConversationService) MarkRead(ctx context.Context, conversationID, userID string) (int64, error) {
	if _, err := s.Authorize(ctx, conversationID, userID); err != nil {
		return 0, err
	}
	n, err := s.messages.MarkConversationAsRead(ctx, conversationID, userID)
	if err != nil {
		s.log.Error("mark read failed", "conversationId", conversationID, "receiverId", userID, "error", err)
		return 0, err
	}
	return n, nil
}

// UnreadCount is the total number of unread messages addressed to userID.
func (s *ConversationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.messages.CountUnread(ctx, userID, "")
}
