package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation is the two-party thread between a pair of users, optionally
// anchored to a marketplace post.
type Conversation struct {
	ID             string    `json:"id"`
	PostID         string    `json:"postId,omitempty"`
	Participant1ID string    `json:"participant1Id"`
	Participant2ID string    `json:"participant2Id"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewConversation creates a conversation with initiator as participant 1.
func NewConversation(postID, initiatorID, otherID string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:             uuid.NewString(),
		PostID:         postID,
		Participant1ID: initiatorID,
		Participant2ID: otherID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// PairKey identifies a conversation independently of participant order.
func (c *Conversation) PairKey() string {
	return PairKey(c.PostID, c.Participant1ID, c.Participant2ID)
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.Participant1ID == userID || c.Participant2ID == userID)
}

// OtherParticipant returns the counterpart of userID, or "" if userID is not
// a participant.
func (c *Conversation) OtherParticipant(userID string) string {
	switch userID {
	case c.Participant1ID:
		return c.Participant2ID
	case c.Participant2ID:
		return c.Participant1ID
	}
	return ""
}

// PairKey builds the order-independent uniqueness key for (post, a, b).
// Every part is length-prefixed, so ids containing the separators cannot
// collide with another triple.
func PairKey(postID, a, b string) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%s|%d:%s|%d:%s", len(postID), postID, len(a), a, len(b), b)
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	ID                 string     `json:"id"`
	PostID             string     `json:"postId,omitempty"`
	OtherUserID        string     `json:"otherUserId"`
	LastMessagePreview string     `json:"lastMessagePreview"`
	LastMessageAt      *time.Time `json:"lastMessageAt,omitempty"`
	LastMessageType    string     `json:"lastMessageType,omitempty"`
	UnreadCount        int64      `json:"unreadCount"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}
