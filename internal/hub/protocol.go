package hub

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
)

func knownType(t domain.EnvelopeType) bool {
	switch t {
	case domain.TypeAuth, domain.TypeSendMessage, domain.TypeText, domain.TypeImage,
		domain.TypeTyping, domain.TypeStopTyping, domain.TypeJoinRoom, domain.TypeLeaveRoom,
		domain.TypeRequestOnlineStatus:
		return true
	}
	return false
}

// handleFrame decodes one client frame and dispatches it on the caller's
// read goroutine.
func (h *Hub) handleFrame(c *Client, data []byte) {
	var env domain.InboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Warn("malformed frame", "userId", c.UserID(), "error", err)
		c.sendNotice(domain.TypeError, domain.NoticeMalformed, "")
		return
	}
	if !knownType(env.Type) {
		c.sendNotice(domain.TypeError, domain.NoticeUnknownType, "")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.OpTimeout)
	defer cancel()

	if env.Type == domain.TypeAuth {
		h.handleAuth(ctx, c, &env)
		return
	}
	if c.State() != StateAuthenticated {
		c.sendNotice(domain.TypeError, domain.NoticeAuthRequired, env.ClientTempID)
		return
	}

	switch {
	case env.IsSend():
		h.handleSend(ctx, c, &env)
	case env.Type == domain.TypeTyping, env.Type == domain.TypeStopTyping:
		h.handleTyping(c, &env)
	case env.Type == domain.TypeJoinRoom:
		c.sendJSON(domain.RoomEnvelope{Type: domain.TypeRoomJoined, ConversationID: env.ConversationID, Timestamp: domain.NowMillis()})
	case env.Type == domain.TypeLeaveRoom:
		c.sendJSON(domain.RoomEnvelope{Type: domain.TypeRoomLeft, ConversationID: env.ConversationID, Timestamp: domain.NowMillis()})
	case env.Type == domain.TypeRequestOnlineStatus:
		h.handleOnlineStatus(ctx, c, &env)
	}
}

func (h *Hub) handleAuth(ctx context.Context, c *Client, env *domain.InboundEnvelope) {
	userID := strings.TrimSpace(env.UserID)
	if userID == "" {
		c.sendNotice(domain.TypeError, domain.NoticeMissingUserID, "")
		return
	}
	if err := h.users.Authenticate(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrBlacklisted) {
			c.log.Info("blacklisted openid refused", "userId", userID)
			c.sendNotice(domain.TypeError, domain.NoticeBlacklisted, "")
			return
		}
		c.log.Error("authenticate failed", "userId", userID, "error", err)
		c.sendNotice(domain.TypeError, domain.NoticeAuthFailed, "")
		return
	}

	prev, ok := c.bind(userID)
	if !ok {
		return
	}
	if prev != "" && prev != userID {
		h.registry.Release(prev, c)
	}
	h.registry.Add(userID, c)
	c.sendJSON(domain.AuthSuccessEnvelope{Type: domain.TypeAuthSuccess, UserID: userID, Timestamp: domain.NowMillis()})

	replayCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.opts.ReplayTimeout)
	defer cancel()
	if _, err := h.delivery.PushUnread(replayCtx, c, userID); err != nil {
		c.log.Error("offline replay failed", "userId", userID, "error", err)
	}
}

func (h *Hub) handleSend(ctx context.Context, c *Client, env *domain.InboundEnvelope) {
	sender := c.UserID()
	if env.ConversationID == "" || env.ToUserID == "" || env.Content == "" {
		c.log.Warn("dropping incomplete message", "senderId", sender, "conversationId", env.ConversationID, "receiverId", env.ToUserID)
		return
	}
	msgType, ok := domain.ParseMessageType(env.ResolvedMessageType())
	if !ok {
		c.log.Warn("dropping message with unknown type", "senderId", sender, "conversationId", env.ConversationID, "messageType", env.ResolvedMessageType())
		return
	}

	_, err := h.delivery.Send(ctx, SendRequest{
		ConversationID: env.ConversationID,
		SenderID:       sender,
		ReceiverID:     env.ToUserID,
		Content:        env.Content,
		Type:           msgType,
		ClientTempID:   env.ClientTempID,
	})
	if err != nil {
		c.sendNotice(domain.TypeError, domain.NoticeSendFailed, env.ClientTempID)
	}
}

func (h *Hub) handleTyping(c *Client, env *domain.InboundEnvelope) {
	if env.ToUserID == "" {
		return
	}
	h.registry.SendJSON(env.ToUserID, domain.TypingEnvelope{
		Type:           env.Type,
		ConversationID: env.ConversationID,
		FromUserID:     c.UserID(),
		Timestamp:      domain.NowMillis(),
	})
}

func (h *Hub) handleOnlineStatus(ctx context.Context, c *Client, env *domain.InboundEnvelope) {
	out := domain.OnlineStatusEnvelope{
		Type:           domain.TypeOnlineStatus,
		ConversationID: env.ConversationID,
		OnlineCount:    h.registry.Count(),
		Timestamp:      domain.NowMillis(),
	}
	if env.ConversationID != "" {
		conv, err := h.conversations.GetByID(ctx, env.ConversationID)
		if err != nil {
			c.log.Warn("online status lookup failed", "conversationId", env.ConversationID, "error", err)
		} else if conv != nil && conv.HasParticipant(c.UserID()) {
			peer := h.registry.IsOnline(conv.OtherParticipant(c.UserID()))
			out.PeerOnline = &peer
		}
	}
	c.sendJSON(out)
}
