package sqlite

import (
	"fmt"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

type conversationRow struct {
	ID             string    `gorm:"primaryKey;size:36"`
	PostID         string    `gorm:"size:64;not null;default:''"`
	Participant1ID string    `gorm:"column:participant1_id;size:128;not null;index"`
	Participant2ID string    `gorm:"column:participant2_id;size:128;not null;index"`
	PairKey        string    `gorm:"size:320;not null;uniqueIndex"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null;index"`
}

func (conversationRow) TableName() string { return "conversations" }

func (r *conversationRow) toDomain() *domain.Conversation {
	return &domain.Conversation{
		ID:             r.ID,
		PostID:         r.PostID,
		Participant1ID: r.Participant1ID,
		Participant2ID: r.Participant2ID,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type messageRow struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement"`
	ConversationID string    `gorm:"size:36;not null;index:idx_messages_conversation_created,priority:1"`
	SenderID       string    `gorm:"size:128;not null"`
	ReceiverID     string    `gorm:"size:128;not null;index:idx_messages_receiver_read,priority:1"`
	Content        string    `gorm:"type:text;not null"`
	Type           string    `gorm:"size:16;not null;default:'text'"`
	IsRead         bool      `gorm:"not null;default:false;index:idx_messages_receiver_read,priority:2"`
	CreatedAt      time.Time `gorm:"not null;index:idx_messages_conversation_created,priority:2"`
}

func (messageRow) TableName() string { return "messages" }

func (r *messageRow) toDomain() *domain.Message {
	return &domain.Message{
		ID:             formatID(r.ID),
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		ReceiverID:     r.ReceiverID,
		Content:        r.Content,
		Type:           domain.MessageType(r.Type),
		IsRead:         r.IsRead,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

// NewDB opens (or creates) the sqlite database at path. ":memory:" is
// accepted; the pool is pinned to one connection so every query sees the
// same database.
func NewDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(gormsqlite.Open(path), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}
	return db, nil
}

// Migrate creates or updates the conversations and messages tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&conversationRow{}, &messageRow{}); err != nil {
		return fmt.Errorf("could not apply sqlite schema: %w", err)
	}
	return nil
}
