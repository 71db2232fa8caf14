package sqlite

import (
	"context"
	"errors"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepository handles database operations for conversations.
type ConversationRepository struct {
	DB *gorm.DB
}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{DB: db}
}

// FindOrCreate looks the pair up in either order and inserts it if missing.
// A concurrent insert of the same pair loses on the pair_key index and
// re-reads the winner.
func (r *ConversationRepository) FindOrCreate(ctx context.Context, postID, initiatorID, otherID string) (*domain.Conversation, error) {
	key := domain.PairKey(postID, initiatorID, otherID)
	if conv, err := r.getByPairKey(ctx, key); err != nil || conv != nil {
		return conv, err
	}

	conv := domain.NewConversation(postID, initiatorID, otherID)
	row := conversationRow{
		ID:             conv.ID,
		PostID:         conv.PostID,
		Participant1ID: conv.Participant1ID,
		Participant2ID: conv.Participant2ID,
		PairKey:        key,
		CreatedAt:      conv.CreatedAt,
		UpdatedAt:      conv.UpdatedAt,
	}
	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "pair_key"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return nil, err
	}
	conv, err = r.getByPairKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, errors.New("conversation vanished after insert")
	}
	return conv, nil
}

func (r *ConversationRepository) getByPairKey(ctx context.Context, key string) (*domain.Conversation, error) {
	var row conversationRow
	err := r.DB.WithContext(ctx).Where("pair_key = ?", key).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// GetByID retrieves a conversation by id.
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var row conversationRow
	err := r.DB.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// ListByParticipant returns every conversation of userID, newest activity first.
func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	var rows []conversationRow
	err := r.DB.WithContext(ctx).
		Where("participant1_id = ? OR participant2_id = ?", userID, userID).
		Order("updated_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Conversation, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}
