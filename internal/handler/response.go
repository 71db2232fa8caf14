package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
)

const (
	codeOK    = 0
	codeError = 1

	msgOK            = "成功"
	msgSent          = "消息发送成功"
	msgMissingParams = "缺少必要参数"
	msgEmptyContent  = "消息内容不能为空"
	msgBadType       = "无效的消息类型"
	msgBadReceiver   = "接收者与对话不匹配"
	msgServerError   = "服务器错误"
	msgNoOpenID      = "未提供 openid"
	msgInternal      = "服务器内部错误"
	msgBadJSON       = "请求格式错误"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondOK(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, Envelope{Code: codeOK, Message: message, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Code: codeError, Message: message})
}

type messageDTO struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
	Type           string `json:"type"`
	Content        string `json:"content"`
	Timestamp      string `json:"timestamp"`
	IsRead         bool   `json:"isRead"`
}

func toMessageDTO(m *domain.Message) messageDTO {
	return messageDTO{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Type:           string(m.Type),
		Content:        m.Content,
		Timestamp:      m.CreatedAt.UTC().Format(time.RFC3339Nano),
		IsRead:         m.IsRead,
	}
}

type conversationDTO struct {
	ConversationID string    `json:"conversationId"`
	PostID         string    `json:"postId,omitempty"`
	Participant1ID string    `json:"participant1Id"`
	Participant2ID string    `json:"participant2Id"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func toConversationDTO(c *domain.Conversation) conversationDTO {
	return conversationDTO{
		ConversationID: c.ID,
		PostID:         c.PostID,
		Participant1ID: c.Participant1ID,
		Participant2ID: c.Participant2ID,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}
