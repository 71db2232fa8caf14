package domain

import "time"

// EnvelopeType is the discriminator carried in every socket frame.
type EnvelopeType string

// Client to server.
const (
	TypeAuth                EnvelopeType = "auth"
	TypeSendMessage         EnvelopeType = "sendMessage"
	TypeText                EnvelopeType = "text"
	TypeImage               EnvelopeType = "image"
	TypeTyping              EnvelopeType = "typing"
	TypeStopTyping          EnvelopeType = "stopTyping"
	TypeJoinRoom            EnvelopeType = "joinRoom"
	TypeLeaveRoom           EnvelopeType = "leaveRoom"
	TypeRequestOnlineStatus EnvelopeType = "requestOnlineStatus"
)

// Server to client.
const (
	TypeAuthSuccess  EnvelopeType = "auth_success"
	TypeChat         EnvelopeType = "chat"
	TypeRoomJoined   EnvelopeType = "room_joined"
	TypeRoomLeft     EnvelopeType = "room_left"
	TypeOnlineStatus EnvelopeType = "onlineStatus"
	TypeError        EnvelopeType = "error"
	TypeSystem       EnvelopeType = "system"
)

// User-facing notice texts.
const (
	NoticeWelcome        = "欢迎连接 WebSocket 服务器！"
	NoticeUnknownType    = "未知的消息类型"
	NoticeMalformed      = "消息格式错误"
	NoticeSendFailed     = "消息发送失败"
	NoticeAuthRequired   = "请先认证"
	NoticeMissingUserID  = "缺少用户ID"
	NoticeBlacklisted    = "openid 已被禁用"
	NoticeAuthFailed     = "认证失败"
	NoticeSelfMessage    = "不能给自己发送消息"
	NoticeNotParticipant = "对话不存在或无权限访问"
)

// InboundEnvelope is the union of every client to server frame. Fields not
// used by a given type are left empty.
type InboundEnvelope struct {
	Type           EnvelopeType `json:"type"`
	UserID         string       `json:"userId,omitempty"`
	ConversationID string       `json:"conversationId,omitempty"`
	ToUserID       string       `json:"toUserId,omitempty"`
	Content        string       `json:"content,omitempty"`
	MessageType    string       `json:"messageType,omitempty"`
	ClientTempID   string       `json:"clientTempId,omitempty"`
}

// IsSend reports whether the envelope asks for a chat message to be sent.
func (e *InboundEnvelope) IsSend() bool {
	return e.Type == TypeSendMessage || e.Type == TypeText || e.Type == TypeImage
}

// ResolvedMessageType applies the sendMessage/text/image naming rules.
func (e *InboundEnvelope) ResolvedMessageType() string {
	if e.Type == TypeSendMessage {
		if e.MessageType == "" {
			return string(MessageTypeText)
		}
		return e.MessageType
	}
	return string(e.Type)
}

// ChatEnvelope carries one persisted message to a socket.
type ChatEnvelope struct {
	Type           EnvelopeType `json:"type"`
	Content        string       `json:"content"`
	SenderID       string       `json:"senderId"`
	ToUserID       string       `json:"toUserId"`
	ConversationID string       `json:"conversationId"`
	MessageType    MessageType  `json:"messageType"`
	Timestamp      int64        `json:"timestamp"`
	MessageID      string       `json:"messageId"`
	ClientTempID   string       `json:"clientTempId,omitempty"`
	Offline        bool         `json:"offline,omitempty"`
}

// NewChatEnvelope wraps a persisted message.
func NewChatEnvelope(m *Message, clientTempID string, offline bool) ChatEnvelope {
	return ChatEnvelope{
		Type:           TypeChat,
		Content:        m.Content,
		SenderID:       m.SenderID,
		ToUserID:       m.ReceiverID,
		ConversationID: m.ConversationID,
		MessageType:    m.Type,
		Timestamp:      m.CreatedAt.UnixMilli(),
		MessageID:      m.ID,
		ClientTempID:   clientTempID,
		Offline:        offline,
	}
}

type AuthSuccessEnvelope struct {
	Type      EnvelopeType `json:"type"`
	UserID    string       `json:"userId"`
	Timestamp int64        `json:"timestamp"`
}

type TypingEnvelope struct {
	Type           EnvelopeType `json:"type"`
	ConversationID string       `json:"conversationId"`
	FromUserID     string       `json:"fromUserId"`
	Timestamp      int64        `json:"timestamp"`
}

type RoomEnvelope struct {
	Type           EnvelopeType `json:"type"`
	ConversationID string       `json:"conversationId"`
	Timestamp      int64        `json:"timestamp"`
}

type OnlineStatusEnvelope struct {
	Type           EnvelopeType `json:"type"`
	ConversationID string       `json:"conversationId"`
	OnlineCount    int          `json:"onlineCount"`
	PeerOnline     *bool        `json:"peerOnline,omitempty"`
	Timestamp      int64        `json:"timestamp"`
}

// NoticeEnvelope is used for both "error" and "system" frames.
type NoticeEnvelope struct {
	Type         EnvelopeType `json:"type"`
	Content      string       `json:"content"`
	ClientTempID string       `json:"clientTempId,omitempty"`
	Timestamp    int64        `json:"timestamp"`
}

// NewNotice builds an error or system frame stamped with now.
func NewNotice(t EnvelopeType, content, clientTempID string) NoticeEnvelope {
	return NoticeEnvelope{Type: t, Content: content, ClientTempID: clientTempID, Timestamp: NowMillis()}
}

// NowMillis is the wall clock in unix milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
