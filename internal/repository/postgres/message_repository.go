package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
	"github.com/lib/pq"
)

// MessageRepository handles database operations for chat messages.
type MessageRepository struct {
	DB *sql.DB
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{DB: db}
}

const messageColumns = `id, conversation_id, sender_id, receiver_id, content, type, is_read, created_at`

func scanMessage(row interface{ Scan(...any) error }) (*domain.Message, error) {
	m := &domain.Message{}
	var id int64
	var typ string
	if err := row.Scan(&id, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Content, &typ, &m.IsRead, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.ID = strconv.FormatInt(id, 10)
	m.Type = domain.MessageType(typ)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func scanMessages(rows *sql.Rows) ([]*domain.Message, error) {
	defer rows.Close()
	var out []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveMessage inserts the message and bumps the conversation in one transaction.
func (r *MessageRepository) SaveMessage(ctx context.Context, message *domain.Message) error {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	if message.Type == "" {
		message.Type = domain.MessageTypeText
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = $2 WHERE id = $1`, message.ConversationID, message.CreatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation %s: %w", message.ConversationID, domain.ErrNotFound)
	}

	var id int64
	insert := `
		INSERT INTO messages (conversation_id, sender_id, receiver_id, content, type, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err = tx.QueryRowContext(ctx, insert,
		message.ConversationID, message.SenderID, message.ReceiverID, message.Content, string(message.Type), message.IsRead, message.CreatedAt,
	).Scan(&id)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	message.ID = strconv.FormatInt(id, 10)
	return nil
}

// GetMessagesByConversationID loads one page newest-first and returns it ascending.
func (r *MessageRepository) GetMessagesByConversationID(ctx context.Context, conversationID string, page domain.Page) ([]*domain.Message, int64, error) {
	page = page.Normalize()

	where := `conversation_id = $1`
	args := []any{conversationID}
	if page.Before != nil {
		where += ` AND created_at < $2`
		args = append(args, page.Before.UTC())
	}

	var total int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		messageColumns, where, n+1, n+2)
	rows, err := r.DB.QueryContext(ctx, query, append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, total, nil
}

// GetUnreadMessages returns the unread backlog for receiverID, oldest first.
func (r *MessageRepository) GetUnreadMessages(ctx context.Context, receiverID string) ([]*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE receiver_id = $1 AND is_read = FALSE
		ORDER BY created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, receiverID)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// MarkMessagesAsRead flips is_read for every id in one statement.
func (r *MessageRepository) MarkMessagesAsRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	nums := make([]int64, 0, len(ids))
	for _, id := range ids {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: message id %q", domain.ErrInvalidArgument, id)
		}
		nums = append(nums, n)
	}
	_, err := r.DB.ExecContext(ctx, `UPDATE messages SET is_read = TRUE WHERE id = ANY($1)`, pq.Array(nums))
	return err
}

// MarkConversationAsRead marks everything addressed to receiverID in the conversation.
func (r *MessageRepository) MarkConversationAsRead(ctx context.Context, conversationID, receiverID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE messages SET is_read = TRUE WHERE conversation_id = $1 AND receiver_id = $2 AND is_read = FALSE`,
		conversationID, receiverID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountUnread counts unread messages for receiverID.
func (r *MessageRepository) CountUnread(ctx context.Context, receiverID, conversationID string) (int64, error) {
	query := `SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND is_read = FALSE`
	args := []any{receiverID}
	if conversationID != "" {
		query += ` AND conversation_id = $2`
		args = append(args, conversationID)
	}
	var n int64
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// GetLastMessage returns the newest message of the conversation.
func (r *MessageRepository) GetLastMessage(ctx context.Context, conversationID string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	m, err := scanMessage(r.DB.QueryRowContext(ctx, query, conversationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}
