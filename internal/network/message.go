package network

import (
	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
)

// Status is the delivery state of a locally displayed message. It is one of
// Pending, Sent or Failed.
type Status interface {
	isStatus()
}

// Pending means the message has been handed to a transport but the server
// has not confirmed it yet.
type Pending struct {
	ClientTempID string
}

// Sent means the server persisted the message.
type Sent struct {
	ServerID  string
	Timestamp int64
}

// Failed means both the socket and the HTTP fallback failed.
type Failed struct {
	ClientTempID string
	Reason       string
}

func (Pending) isStatus() {}
func (Sent) isStatus()    {}
func (Failed) isStatus()  {}

// LocalMessage is one entry of a Timeline.
type LocalMessage struct {
	// ID is the clientTempId until the server confirms the message, then the
	// server message id.
	ID             string
	ClientTempID   string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Content        string
	Type           domain.MessageType
	// Timestamp is unix milliseconds.
	Timestamp int64
	Offline   bool
	Status    Status
}

// IsPending reports whether m is waiting for confirmation.
func (m LocalMessage) IsPending() bool {
	_, ok := m.Status.(Pending)
	return ok
}

// IsFailed reports whether m needs a retry.
func (m LocalMessage) IsFailed() bool {
	_, ok := m.Status.(Failed)
	return ok
}

// ServerFrame is any envelope the server sends. Fields not used by a given
// type are left zero.
type ServerFrame struct {
	Type           domain.EnvelopeType `json:"type"`
	Content        string              `json:"content,omitempty"`
	UserID         string              `json:"userId,omitempty"`
	SenderID       string              `json:"senderId,omitempty"`
	FromUserID     string              `json:"fromUserId,omitempty"`
	ToUserID       string              `json:"toUserId,omitempty"`
	ConversationID string              `json:"conversationId,omitempty"`
	MessageType    domain.MessageType  `json:"messageType,omitempty"`
	MessageID      string              `json:"messageId,omitempty"`
	ClientTempID   string              `json:"clientTempId,omitempty"`
	Offline        bool                `json:"offline,omitempty"`
	OnlineCount    int                 `json:"onlineCount,omitempty"`
	PeerOnline     *bool               `json:"peerOnline,omitempty"`
	Timestamp      int64               `json:"timestamp"`
}

// sentMessage converts a chat frame into a confirmed timeline entry.
func (f ServerFrame) sentMessage() LocalMessage {
	t := f.MessageType
	if t == "" {
		t = domain.MessageTypeText
	}
	return LocalMessage{
		ID:             f.MessageID,
		ClientTempID:   f.ClientTempID,
		ConversationID: f.ConversationID,
		SenderID:       f.SenderID,
		ReceiverID:     f.ToUserID,
		Content:        f.Content,
		Type:           t,
		Timestamp:      f.Timestamp,
		Offline:        f.Offline,
		Status:         Sent{ServerID: f.MessageID, Timestamp: f.Timestamp},
	}
}
