package network

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
	"github.com/Congdongdong03/wx-help-sub000/internal/logger"
	"github.com/google/uuid"
)

// Transport is the socket side a Session sends through.
type Transport interface {
	IsConnected() bool
	Emit(env domain.InboundEnvelope) error
	OnFrame(fn func(ServerFrame))
}

// Fallback is the HTTP side a Session uses when the socket is unavailable.
type Fallback interface {
	SendMessage(ctx context.Context, conversationID string, req SendMessageRequest) (*RemoteMessage, error)
	Messages(ctx context.Context, conversationID string, page, limit int) ([]RemoteMessage, domain.Pagination, error)
	MarkRead(ctx context.Context, conversationID string) (int64, error)
}

// SessionConfig configures a Session.
type SessionConfig struct {
	UserID         string
	ConversationID string
	PeerID         string
	Transport      Transport
	Fallback       Fallback
	Bus            *EventBus
	Log            *logger.Logger
	// NewTempID defaults to "temp_" plus a random uuid.
	NewTempID func() string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Session is one open chat with a peer. It renders sends immediately as
// pending entries and converges them to what the server confirms.
type Session struct {
	userID         string
	conversationID string
	peerID         string
	transport      Transport
	fallback       Fallback
	timeline       *Timeline
	bus            *EventBus
	log            *logger.Logger
	newTempID      func() string
	now            func() time.Time
}

// NewSession creates a Session and attaches it to the transport's frames.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Bus == nil {
		cfg.Bus = NewEventBus()
	}
	if cfg.NewTempID == nil {
		cfg.NewTempID = func() string { return "temp_" + uuid.NewString() }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = logger.NewNop()
	}
	s := &Session{
		userID:         cfg.UserID,
		conversationID: cfg.ConversationID,
		peerID:         cfg.PeerID,
		transport:      cfg.Transport,
		fallback:       cfg.Fallback,
		timeline:       NewTimeline(),
		bus:            cfg.Bus,
		log:            cfg.Log.With("component", "session", "conversationId", cfg.ConversationID),
		newTempID:      cfg.NewTempID,
		now:            cfg.Now,
	}
	cfg.Transport.OnFrame(s.HandleFrame)
	return s
}

func (s *Session) Timeline() *Timeline { return s.timeline }

func (s *Session) Events() *EventBus { return s.bus }

// Send adds an optimistic entry and delivers it. The returned message is the
// entry's state after the socket or HTTP attempt; a non-nil error means it
// ended up Failed.
func (s *Session) Send(ctx context.Context, content string, t domain.MessageType) (LocalMessage, error) {
	if s.peerID == s.userID {
		return LocalMessage{}, fmt.Errorf("%s: %w", domain.NoticeSelfMessage, domain.ErrSelfMessage)
	}
	if strings.TrimSpace(content) == "" {
		return LocalMessage{}, fmt.Errorf("empty content: %w", domain.ErrInvalidArgument)
	}
	if _, ok := domain.ParseMessageType(string(t)); !ok {
		return LocalMessage{}, fmt.Errorf("message type %q: %w", t, domain.ErrInvalidArgument)
	}

	m := s.timeline.AddOptimistic(LocalMessage{
		ClientTempID:   s.newTempID(),
		ConversationID: s.conversationID,
		SenderID:       s.userID,
		ReceiverID:     s.peerID,
		Content:        content,
		Type:           t,
		Timestamp:      s.now().UnixMilli(),
	})
	return s.deliver(ctx, m)
}

// Retry re-sends a Failed entry under the same clientTempId.
func (s *Session) Retry(ctx context.Context, clientTempID string) (LocalMessage, error) {
	m, err := s.timeline.MarkPending(clientTempID)
	if err != nil {
		return m, err
	}
	return s.deliver(ctx, m)
}

func (s *Session) deliver(ctx context.Context, m LocalMessage) (LocalMessage, error) {
	env := domain.InboundEnvelope{
		Type:           domain.TypeSendMessage,
		ConversationID: m.ConversationID,
		ToUserID:       m.ReceiverID,
		Content:        m.Content,
		MessageType:    string(m.Type),
		ClientTempID:   m.ClientTempID,
	}
	if s.transport.IsConnected() {
		err := s.transport.Emit(env)
		if err == nil {
			cur, _ := s.timeline.Get(m.ClientTempID)
			return cur, nil
		}
		s.log.Warn("socket send failed, using http", "clientTempId", m.ClientTempID, "error", err)
	}

	remote, err := s.fallback.SendMessage(ctx, m.ConversationID, SendMessageRequest{
		Content:      m.Content,
		Type:         string(m.Type),
		ReceiverID:   m.ReceiverID,
		ClientTempID: m.ClientTempID,
	})
	if err != nil {
		s.log.Error("http send failed", "clientTempId", m.ClientTempID, "receiverId", m.ReceiverID, "error", err)
		failed, _ := s.timeline.MarkFailed(m.ClientTempID, err.Error())
		s.bus.Publish(Event{Kind: EventMessageFailed, Message: &failed, Err: err})
		return failed, err
	}

	_, _ = s.timeline.ConfirmHTTP(m.ClientTempID, remote.ID, remote.Millis())
	cur, _ := s.timeline.Get(m.ClientTempID)
	return cur, nil
}

// Typing tells the peer the user is typing, or stopped when stop is true.
func (s *Session) Typing(stop bool) error {
	t := domain.TypeTyping
	if stop {
		t = domain.TypeStopTyping
	}
	return s.transport.Emit(domain.InboundEnvelope{Type: t, ConversationID: s.conversationID, ToUserID: s.peerID})
}

func (s *Session) RequestOnlineStatus() error {
	return s.transport.Emit(domain.InboundEnvelope{Type: domain.TypeRequestOnlineStatus, ConversationID: s.conversationID})
}

func (s *Session) JoinRoom() error {
	return s.transport.Emit(domain.InboundEnvelope{Type: domain.TypeJoinRoom, ConversationID: s.conversationID})
}

func (s *Session) LeaveRoom() error {
	return s.transport.Emit(domain.InboundEnvelope{Type: domain.TypeLeaveRoom, ConversationID: s.conversationID})
}

// LoadHistory fetches one page of history into the timeline.
func (s *Session) LoadHistory(ctx context.Context, page, limit int) (domain.Pagination, error) {
	remote, pagination, err := s.fallback.Messages(ctx, s.conversationID, page, limit)
	if err != nil {
		return pagination, err
	}
	history := make([]LocalMessage, 0, len(remote))
	for _, m := range remote {
		history = append(history, m.local())
	}
	s.timeline.Merge(history)
	return pagination, nil
}

func (s *Session) MarkRead(ctx context.Context) (int64, error) {
	return s.fallback.MarkRead(ctx, s.conversationID)
}

// HandleFrame applies one server frame to the session.
func (s *Session) HandleFrame(f ServerFrame) {
	switch f.Type {
	case domain.TypeAuthSuccess:
		s.bus.Publish(Event{Kind: EventAuthenticated, Frame: &f})

	case domain.TypeChat:
		if s.conversationID != "" && f.ConversationID != s.conversationID {
			m := f.sentMessage()
			s.bus.Publish(Event{Kind: EventOtherConversation, Message: &m, Frame: &f})
			return
		}
		if s.timeline.Apply(f) == Duplicate {
			return
		}
		m := f.sentMessage()
		s.bus.Publish(Event{Kind: EventMessage, Message: &m, Frame: &f})

	case domain.TypeError:
		if f.ClientTempID != "" {
			if m, err := s.timeline.MarkFailed(f.ClientTempID, f.Content); err == nil {
				s.bus.Publish(Event{Kind: EventMessageFailed, Message: &m, Frame: &f})
				return
			}
		}
		if f.Content == domain.NoticeAuthRequired {
			s.bus.Publish(Event{Kind: EventAuthRequired, Frame: &f})
			return
		}
		s.bus.Publish(Event{Kind: EventServerError, Frame: &f})

	case domain.TypeTyping, domain.TypeStopTyping:
		if f.ConversationID != s.conversationID || f.FromUserID == s.userID {
			return
		}
		kind := EventTyping
		if f.Type == domain.TypeStopTyping {
			kind = EventStopTyping
		}
		s.bus.Publish(Event{Kind: kind, Frame: &f})

	case domain.TypeOnlineStatus:
		s.bus.Publish(Event{Kind: EventOnlineStatus, Frame: &f})

	default:
		s.log.Debug("frame ignored", "type", f.Type)
	}
}
