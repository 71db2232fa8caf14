package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type messageDoc struct {
	ID             primitive.ObjectID `bson:"_id"`
	ConversationID string             `bson:"conversation_id"`
	SenderID       string             `bson:"sender_id"`
	ReceiverID     string             `bson:"receiver_id"`
	Content        string             `bson:"content"`
	Type           string             `bson:"type"`
	IsRead         bool               `bson:"is_read"`
	CreatedAt      time.Time          `bson:"created_at"`
}

func (d *messageDoc) toDomain() *domain.Message {
	return &domain.Message{
		ID:             d.ID.Hex(),
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		ReceiverID:     d.ReceiverID,
		Content:        d.Content,
		Type:           domain.MessageType(d.Type),
		IsRead:         d.IsRead,
		CreatedAt:      d.CreatedAt.UTC(),
	}
}

var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

// MessageRepository handles database operations for chat messages.
type MessageRepository struct {
	DB *mongo.Database
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{DB: db}
}

// SaveMessage inserts the message, then bumps the conversation. The two
// writes are ordered, not atomic: a crash between them leaves a stale
// updated_at, never a missing message.
func (r *MessageRepository) SaveMessage(ctx context.Context, message *domain.Message) error {
	conversations := r.DB.Collection(conversationCollection)
	n, err := conversations.CountDocuments(ctx, bson.M{"_id": message.ConversationID}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("conversation %s: %w", message.ConversationID, domain.ErrNotFound)
	}

	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	// BSON dates carry milliseconds only.
	message.CreatedAt = message.CreatedAt.UTC().Truncate(time.Millisecond)
	if message.Type == "" {
		message.Type = domain.MessageTypeText
	}
	doc := messageDoc{
		ID:             primitive.NewObjectID(),
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		ReceiverID:     message.ReceiverID,
		Content:        message.Content,
		Type:           string(message.Type),
		IsRead:         message.IsRead,
		CreatedAt:      message.CreatedAt,
	}
	if _, err := r.DB.Collection(messageCollection).InsertOne(ctx, doc); err != nil {
		return err
	}
	message.ID = doc.ID.Hex()

	_, err = conversations.UpdateOne(ctx,
		bson.M{"_id": message.ConversationID},
		bson.M{"$set": bson.M{"updated_at": message.CreatedAt}},
	)
	if err != nil {
		return fmt.Errorf("bump conversation %s: %w", message.ConversationID, err)
	}
	return nil
}

func (r *MessageRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.Message, error) {
	cursor, err := r.DB.Collection(messageCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domain.Message, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain())
	}
	return out, nil
}

// GetMessagesByConversationID loads one page newest-first and returns it ascending.
func (r *MessageRepository) GetMessagesByConversationID(ctx context.Context, conversationID string, page domain.Page) ([]*domain.Message, int64, error) {
	page = page.Normalize()
	filter := bson.M{"conversation_id": conversationID}
	if page.Before != nil {
		filter["created_at"] = bson.M{"$lt": page.Before.UTC()}
	}

	total, err := r.DB.Collection(messageCollection).CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(newestFirst).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Limit))
	msgs, err := r.find(ctx, filter, opts)
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
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, bson.M{"receiver_id": receiverID, "is_read": false}, opts)
}

// MarkMessagesAsRead flips is_read for every id in one statement.
func (r *MessageRepository) MarkMessagesAsRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return fmt.Errorf("%w: message id %q", domain.ErrInvalidArgument, id)
		}
		oids = append(oids, oid)
	}
	_, err := r.DB.Collection(messageCollection).UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": oids}},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	return err
}

// MarkConversationAsRead marks everything addressed to receiverID in the conversation.
func (r *MessageRepository) MarkConversationAsRead(ctx context.Context, conversationID, receiverID string) (int64, error) {
	res, err := r.DB.Collection(messageCollection).UpdateMany(ctx,
		bson.M{"conversation_id": conversationID, "receiver_id": receiverID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// CountUnread counts unread messages for receiverID.
func (r *MessageRepository) CountUnread(ctx context.Context, receiverID, conversationID string) (int64, error) {
	filter := bson.M{"receiver_id": receiverID, "is_read": false}
	if conversationID != "" {
		filter["conversation_id"] = conversationID
	}
	return r.DB.Collection(messageCollection).CountDocuments(ctx, filter)
}

// GetLastMessage returns the newest message of the conversation.
func (r *MessageRepository) GetLastMessage(ctx context.Context, conversationID string) (*domain.Message, error) {
	var doc messageDoc
	err := r.DB.Collection(messageCollection).
		FindOne(ctx, bson.M{"conversation_id": conversationID}, options.FindOne().SetSort(newestFirst)).
		Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return doc.toDomain(), nil
}
