package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
)

// ConversationRepository handles database operations for conversations.
type ConversationRepository struct {
	DB *sql.DB
}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{DB: db}
}

const conversationColumns = `id, post_id, participant1_id, participant2_id, created_at, updated_at`

func scanConversation(row interface{ Scan(...any) error }) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	if err := row.Scan(&c.ID, &c.PostID, &c.Participant1ID, &c.Participant2ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

// FindOrCreate inserts the pair unless its pair_key already exists, then
// returns whichever row won.
func (r *ConversationRepository) FindOrCreate(ctx context.Context, postID, initiatorID, otherID string) (*domain.Conversation, error) {
	conv := domain.NewConversation(postID, initiatorID, otherID)
	insert := `
		INSERT INTO conversations (id, post_id, participant1_id, participant2_id, pair_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (pair_key) DO NOTHING`
	_, err := r.DB.ExecContext(ctx, insert,
		conv.ID, conv.PostID, conv.Participant1ID, conv.Participant2ID, conv.PairKey(), conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE pair_key = $1`
	return scanConversation(r.DB.QueryRowContext(ctx, query, conv.PairKey()))
}

// GetByID retrieves a conversation by id.
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	conv, err := scanConversation(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return conv, nil
}

// ListByParticipant returns every conversation of userID, newest activity first.
func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE participant1_id = $1 OR participant2_id = $1
		ORDER BY updated_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []*domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}
