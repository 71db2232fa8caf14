package handler

import (
	"net/http"

	"github.com/Congdongdong03/wx-help-sub000/internal/logger"
	"github.com/Congdongdong03/wx-help-sub000/internal/service"
)

// Kicker drops a user's live connection.
type Kicker interface {
	Kick(userID string) bool
}

// AuthHandler serves identity routes.
type AuthHandler struct {
	users  service.IUserService
	kicker Kicker
	log    *logger.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users service.IUserService, kicker Kicker, log *logger.Logger) *AuthHandler {
	return &AuthHandler{users: users, kicker: kicker, log: log.With("handler", "auth")}
}

// Logout handles POST /api/auth/logout: the caller's openid is revoked and
// any open socket for it is closed.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	me := OpenIDFrom(r.Context())
	if err := h.users.Revoke(r.Context(), me); err != nil {
		h.log.Error("revoke failed", "userId", me, "error", err)
		respondError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	kicked := h.kicker.Kick(me)
	respondOK(w, http.StatusOK, msgOK, map[string]bool{"disconnected": kicked})
}
