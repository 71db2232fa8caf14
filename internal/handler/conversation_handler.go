package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
	"github.com/Congdongdong03/wx-help-sub000/internal/hub"
	"github.com/Congdongdong03/wx-help-sub000/internal/logger"
	"github.com/Congdongdong03/wx-help-sub000/internal/service"
	"github.com/gorilla/mux"
)

// MessageSender persists and routes a message.
type MessageSender interface {
	Send(ctx context.Context, req hub.SendRequest) (*domain.Message, error)
}

// ConversationHandler serves the /api/conversations routes.
type ConversationHandler struct {
	conversations service.IConversationService
	sender        MessageSender
	log           *logger.Logger
}

// NewConversationHandler creates a new ConversationHandler.
func NewConversationHandler(conversations service.IConversationService, sender MessageSender, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		sender:        sender,
		log:           log.With("handler", "conversation"),
	}
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type findOrCreateRequest struct {
	PostID      flexString `json:"postId"`
	OtherUserID string     `json:"otherUserId"`
}

// FindOrCreate handles POST /api/conversations/find-or-create.
func (h *ConversationHandler) FindOrCreate(w http.ResponseWriter, r *http.Request) {
	me := OpenIDFrom(r.Context())
	var req findOrCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, msgBadJSON)
		return
	}
	if strings.TrimSpace(req.OtherUserID) == "" {
		respondError(w, http.StatusBadRequest, msgMissingParams)
		return
	}

	conv, err := h.conversations.FindOrCreate(r.Context(), string(req.PostID), me, req.OtherUserID)
	switch {
	case errors.Is(err, domain.ErrSelfMessage):
		respondError(w, http.StatusBadRequest, domain.NoticeSelfMessage)
		return
	case errors.Is(err, domain.ErrInvalidArgument):
		respondError(w, http.StatusBadRequest, msgMissingParams)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, msgServerError)
		return
	}
	respondOK(w, http.StatusOK, msgOK, toConversationDTO(conv))
}

// List handles GET /api/conversations/list.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	me := OpenIDFrom(r.Context())
	list, err := h.conversations.ListForUser(r.Context(), me)
	if err != nil {
		h.log.Error("list conversations failed", "userId", me, "error", err)
		respondError(w, http.StatusInternalServerError, msgServerError)
		return
	}
	respondOK(w, http.StatusOK, msgOK, list)
}

// UnreadCount handles GET /api/conversations/unread-count.
func (h *ConversationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	me := OpenIDFrom(r.Context())
	n, err := h.conversations.UnreadCount(r.Context(), me)
	if err != nil {
		h.log.Error("unread count failed", "userId", me, "error", err)
		respondError(w, http.StatusInternalServerError, msgServerError)
		return
	}
	respondOK(w, http.StatusOK, msgOK, map[string]int64{"unreadCount": n})
}

func parsePage(r *http.Request) (domain.Page, error) {
	q := r.URL.Query()
	var p domain.Page
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, err
		}
		p.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, err
		}
		p.Limit = n
	}
	if v := q.Get("before"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			t, perr := time.Parse(time.RFC3339Nano, v)
			if perr != nil {
				return p, perr
			}
			p.Before = &t
		} else {
			t := time.UnixMilli(ms).UTC()
			p.Before = &t
		}
	}
	return p.Normalize(), nil
}

// Messages handles GET /api/conversations/{id}/messages.
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	me := OpenIDFrom(r.Context())
	id := mux.Vars(r)["id"]
	page, err := parsePage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, msgMissingParams)
		return
	}

	msgs, pagination, err := h.conversations.History(r.Context(), id, me, page)
	if errors.Is(err, domain.ErrNotParticipant) {
		respondError(w, http.StatusNotFound, domain.NoticeNotParticipant)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, msgServerError)
		return
	}

	out := make([]messageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageDTO(m))
	}
	respondOK(w, http.StatusOK, msgOK, map[string]interface{}{
		"messages":   out,
		"pagination": pagination,
	})
}

type sendMessageRequest struct {
	Content      string `json:"content"`
	Type         string `json:"type"`
	ReceiverID   string `json:"receiverId"`
	ClientTempID string `json:"clientTempId"`
}

// SendMessage handles POST /api/conversations/{id}/messages, the HTTP
// fallback for socket sends.
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	me := OpenIDFrom(r.Context())
	id := mux.Vars(r)["id"]

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, msgBadJSON)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, msgEmptyContent)
		return
	}
	if req.Type == "" {
		req.Type = string(domain.MessageTypeText)
	}
	msgType, ok := domain.ParseMessageType(req.Type)
	if !ok {
		respondError(w, http.StatusBadRequest, msgBadType)
		return
	}

	conv, err := h.conversations.Authorize(r.Context(), id, me)
	if errors.Is(err, domain.ErrNotParticipant) {
		respondError(w, http.StatusNotFound, domain.NoticeNotParticipant)
		return
	}
	if err != nil {
		h.log.Error("authorize conversation failed", "conversationId", id, "senderId", me, "error", err)
		respondError(w, http.StatusInternalServerError, msgServerError)
		return
	}
	receiver := conv.OtherParticipant(me)
	if req.ReceiverID != "" && req.ReceiverID != receiver {
		respondError(w, http.StatusBadRequest, msgBadReceiver)
		return
	}

	msg, err := h.sender.Send(r.Context(), hub.SendRequest{
		ConversationID: conv.ID,
		SenderID:       me,
		ReceiverID:     receiver,
		Content:        req.Content,
		Type:           msgType,
		ClientTempID:   req.ClientTempID,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, domain.NoticeSendFailed)
		return
	}
	respondOK(w, http.StatusCreated, msgSent, toMessageDTO(msg))
}

// MarkRead handles POST /api/conversations/{id}/mark-read.
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	me := OpenIDFrom(r.Context())
	id := mux.Vars(r)["id"]
	n, err := h.conversations.MarkRead(r.Context(), id, me)
	if errors.Is(err, domain.ErrNotParticipant) {
		respondError(w, http.StatusNotFound, domain.NoticeNotParticipant)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, msgServerError)
		return
	}
	respondOK(w, http.StatusOK, msgOK, map[string]int64{"updated": n})
}
