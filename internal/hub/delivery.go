package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
	"github.com/Congdongdong03/wx-help-sub000/internal/logger"
	"github.com/Congdongdong03/wx-help-sub000/internal/service"
)

// SendRequest is one message to persist and deliver.
type SendRequest struct {
	ConversationID string
	SenderID       string
	ReceiverID     string
	Content        string
	Type           domain.MessageType
	ClientTempID   string
}

// Delivery persists messages and routes them to connected users. Every send
// path, socket or HTTP, goes through Send.
type Delivery struct {
	conversations service.IConversationRepository
	messages      service.IMessageRepository
	registry      *Registry
	log           *logger.Logger
}

// NewDelivery creates a new Delivery.
func NewDelivery(conversations service.IConversationRepository, messages service.IMessageRepository, registry *Registry, log *logger.Logger) *Delivery {
	return &Delivery{
		conversations: conversations,
		messages:      messages,
		registry:      registry,
		log:           log.With("component", "delivery"),
	}
}

func (d *Delivery) validate(ctx context.Context, req SendRequest) error {
	if req.ConversationID == "" || req.SenderID == "" || req.ReceiverID == "" || strings.TrimSpace(req.Content) == "" {
		return fmt.Errorf("%w: conversationId, senderId, receiverId and content are required", domain.ErrInvalidArgument)
	}
	if _, ok := domain.ParseMessageType(string(req.Type)); !ok {
		return fmt.Errorf("%w: message type %q", domain.ErrInvalidArgument, req.Type)
	}
	conv, err := d.conversations.GetByID(ctx, req.ConversationID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil || !conv.HasParticipant(req.SenderID) || conv.OtherParticipant(req.SenderID) != req.ReceiverID {
		return domain.ErrNotParticipant
	}
	return nil
}

// Send persists the message, then pushes it to the receiver and echoes it to
// the sender. Nothing is pushed unless the write succeeded.
func (d *Delivery) Send(ctx context.Context, req SendRequest) (*domain.Message, error) {
	log := d.log.With("conversationId", req.ConversationID, "senderId", req.SenderID, "receiverId", req.ReceiverID)

	if err := d.validate(ctx, req); err != nil {
		log.Warn("rejected message", "error", err)
		return nil, err
	}

	msg := &domain.Message{
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		ReceiverID:     req.ReceiverID,
		Content:        req.Content,
		Type:           req.Type,
	}
	if err := d.messages.SaveMessage(ctx, msg); err != nil {
		log.Error("persist message failed", "error", err)
		return nil, fmt.Errorf("persist message: %w", err)
	}

	payload, err := json.Marshal(domain.NewChatEnvelope(msg, req.ClientTempID, false))
	if err != nil {
		log.Error("marshal chat envelope", "messageId", msg.ID, "error", err)
		return msg, nil
	}

	if d.registry.SendTo(req.ReceiverID, payload) {
		log.Debug("delivered", "messageId", msg.ID)
	} else {
		log.Debug("receiver offline, left in store", "messageId", msg.ID)
	}
	d.registry.SendTo(req.SenderID, payload)
	return msg, nil
}

// GetUnreadMessages returns userID's backlog, oldest first.
func (d *Delivery) GetUnreadMessages(ctx context.Context, userID string) ([]*domain.Message, error) {
	return d.messages.GetUnreadMessages(ctx, userID)
}

const (
	// replayWait bounds how long replay waits for one free slot in the
	// receiver's send buffer.
	replayWait = writeWait
	// replayBatch is how many replayed messages are marked read at once.
	replayBatch = 100
	markTimeout = 10 * time.Second
)

// waitingSender is a Handle that can wait for buffer space instead of
// failing fast.
type waitingSender interface {
	Enqueue(ctx context.Context, payload []byte, wait time.Duration) error
}

// PushUnread replays userID's backlog to h tagged as offline and marks the
// queued ones read. A full send buffer is waited out; replay stops only when
// the connection closes, a write stalls past replayWait, or ctx ends, and
// whatever was not queued stays unread for the next connection.
func (d *Delivery) PushUnread(ctx context.Context, h Handle, userID string) (int, error) {
	unread, err := d.messages.GetUnreadMessages(ctx, userID)
	if err != nil {
		d.log.Error("load unread failed", "receiverId", userID, "error", err)
		return 0, err
	}
	if len(unread) == 0 {
		return 0, nil
	}

	waiter, canWait := h.(waitingSender)
	total := 0
	batch := make([]string, 0, replayBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		// Frames already queued must be marked even if ctx has ended.
		markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
		defer cancel()
		if err := d.messages.MarkMessagesAsRead(markCtx, batch); err != nil {
			d.log.Error("mark offline messages read failed", "receiverId", userID, "count", len(batch), "error", err)
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for i, m := range unread {
		payload, err := json.Marshal(domain.NewChatEnvelope(m, "", true))
		if err != nil {
			d.log.Error("marshal offline envelope", "messageId", m.ID, "error", err)
			break
		}
		if canWait {
			err = waiter.Enqueue(ctx, payload, replayWait)
		} else {
			err = h.Send(payload)
		}
		if err != nil {
			d.log.Warn("offline push interrupted", "receiverId", userID, "pushed", i, "remaining", len(unread)-i, "error", err)
			break
		}
		batch = append(batch, m.ID)
		if len(batch) == replayBatch {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	d.log.Info("pushed offline messages", "receiverId", userID, "count", total)
	return total, nil
}
