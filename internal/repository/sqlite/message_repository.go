package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
	"gorm.io/gorm"
)

// MessageRepository handles database operations for chat messages.
type MessageRepository struct {
	DB *gorm.DB
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{DB: db}
}

// SaveMessage inserts the message and bumps the conversation in one transaction.
func (r *MessageRepository) SaveMessage(ctx context.Context, message *domain.Message) error {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	if message.Type == "" {
		message.Type = domain.MessageTypeText
	}
	row := messageRow{
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		ReceiverID:     message.ReceiverID,
		Content:        message.Content,
		Type:           string(message.Type),
		IsRead:         message.IsRead,
		CreatedAt:      message.CreatedAt.UTC(),
	}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		res := tx.Model(&conversationRow{}).
			Where("id = ?", message.ConversationID).
			UpdateColumn("updated_at", row.CreatedAt)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("conversation %s: %w", message.ConversationID, domain.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}
	message.ID = formatID(row.ID)
	return nil
}

func (r *MessageRepository) conversationScope(ctx context.Context, conversationID string, before *time.Time) *gorm.DB {
	q := r.DB.WithContext(ctx).Model(&messageRow{}).Where("conversation_id = ?", conversationID)
	if before != nil {
		q = q.Where("created_at < ?", before.UTC())
	}
	return q
}

// GetMessagesByConversationID loads one page newest-first and returns it ascending.
func (r *MessageRepository) GetMessagesByConversationID(ctx context.Context, conversationID string, page domain.Page) ([]*domain.Message, int64, error) {
	page = page.Normalize()

	var total int64
	if err := r.conversationScope(ctx, conversationID, page.Before).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []messageRow
	err := r.conversationScope(ctx, conversationID, page.Before).
		Order("created_at DESC").Order("id DESC").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	out := make([]*domain.Message, len(rows))
	for i := range rows {
		out[len(rows)-1-i] = rows[i].toDomain()
	}
	return out, total, nil
}

// GetUnreadMessages returns the unread backlog for receiverID, oldest first.
func (r *MessageRepository) GetUnreadMessages(ctx context.Context, receiverID string) ([]*domain.Message, error) {
	var rows []messageRow
	err := r.DB.WithContext(ctx).
		Where("receiver_id = ? AND is_read = ?", receiverID, false).
		Order("created_at ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Message, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// MarkMessagesAsRead flips is_read for every id in one statement.
func (r *MessageRepository) MarkMessagesAsRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	nums, err := parseIDs(ids)
	if err != nil {
		return err
	}
	return r.DB.WithContext(ctx).Model(&messageRow{}).
		Where("id IN ?", nums).
		UpdateColumn("is_read", true).Error
}

// MarkConversationAsRead marks everything addressed to receiverID in the conversation.
func (r *MessageRepository) MarkConversationAsRead(ctx context.Context, conversationID, receiverID string) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&messageRow{}).
		Where("conversation_id = ? AND receiver_id = ? AND is_read = ?", conversationID, receiverID, false).
		UpdateColumn("is_read", true)
	return res.RowsAffected, res.Error
}

// CountUnread counts unread messages for receiverID.
func (r *MessageRepository) CountUnread(ctx context.Context, receiverID, conversationID string) (int64, error) {
	q := r.DB.WithContext(ctx).Model(&messageRow{}).Where("receiver_id = ? AND is_read = ?", receiverID, false)
	if conversationID != "" {
		q = q.Where("conversation_id = ?", conversationID)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// GetLastMessage returns the newest message of the conversation.
func (r *MessageRepository) GetLastMessage(ctx context.Context, conversationID string) (*domain.Message, error) {
	var row messageRow
	err := r.DB.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").Order("id DESC").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func parseIDs(ids []string) ([]uint64, error) {
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		n, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: message id %q", domain.ErrInvalidArgument, id)
		}
		out = append(out, n)
	}
	return out, nil
}
