package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type conversationDoc struct {
	ID             string    `bson:"_id"`
	PostID         string    `bson:"post_id"`
	Participant1ID string    `bson:"participant1_id"`
	Participant2ID string    `bson:"participant2_id"`
	PairKey        string    `bson:"pair_key"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func (d *conversationDoc) toDomain() *domain.Conversation {
	return &domain.Conversation{
		ID:             d.ID,
		PostID:         d.PostID,
		Participant1ID: d.Participant1ID,
		Participant2ID: d.Participant2ID,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
}

// ConversationRepository handles database operations for conversations.
type ConversationRepository struct {
	DB *mongo.Database
}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{DB: db}
}

// FindOrCreate upserts on pair_key so only the first writer's document survives.
func (r *ConversationRepository) FindOrCreate(ctx context.Context, postID, initiatorID, otherID string) (*domain.Conversation, error) {
	collection := r.DB.Collection(conversationCollection)
	conv := domain.NewConversation(postID, initiatorID, otherID)
	now := conv.CreatedAt.Truncate(time.Millisecond)
	doc := conversationDoc{
		ID:             conv.ID,
		PostID:         conv.PostID,
		Participant1ID: conv.Participant1ID,
		Participant2ID: conv.Participant2ID,
		PairKey:        conv.PairKey(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := collection.UpdateOne(ctx,
		bson.M{"pair_key": doc.PairKey},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, err
	}

	var found conversationDoc
	if err := collection.FindOne(ctx, bson.M{"pair_key": doc.PairKey}).Decode(&found); err != nil {
		return nil, err
	}
	return found.toDomain(), nil
}

// GetByID retrieves a conversation by id.
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var doc conversationDoc
	err := r.DB.Collection(conversationCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

// ListByParticipant returns every conversation of userID, newest activity first.
func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"participant1_id": userID},
		bson.M{"participant2_id": userID},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := r.DB.Collection(conversationCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []conversationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domain.Conversation, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain())
	}
	return out, nil
}
