package handler

import (
	"net/http"

	"github.com/Congdongdong03/wx-help-sub000/internal/hub"
	"github.com/Congdongdong03/wx-help-sub000/internal/logger"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Mini-program clients do not send a browser Origin.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebsocketHandler upgrades HTTP requests and hands the socket to the hub.
type WebsocketHandler struct {
	hub *hub.Hub
	log *logger.Logger
}

// NewWebsocketHandler creates a new WebsocketHandler.
func NewWebsocketHandler(h *hub.Hub, log *logger.Logger) *WebsocketHandler {
	return &WebsocketHandler{
		hub: h,
		log: log.With("handler", "websocket"),
	}
}

// HandleConnection handles GET /ws. Identity is established by the first
// "auth" frame, not by the upgrade request.
func (h *WebsocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	h.hub.ServeWs(conn)
}

// HandleStatus handles GET /api/ws/status.
func (h *WebsocketHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	respondOK(w, http.StatusOK, msgOK, h.hub.Registry().Diagnostics())
}

// HandleHealth handles GET /api/health.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondOK(w, http.StatusOK, msgOK, map[string]string{"status": "ok"})
}
