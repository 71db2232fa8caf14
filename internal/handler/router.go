package handler

import (
	"net/http"
	"strings"

	"github.com/Congdongdong03/wx-help-sub000/internal/logger"
	"github.com/Congdongdong03/wx-help-sub000/internal/service"
	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
)

// RouterDeps bundles everything the HTTP surface needs.
type RouterDeps struct {
	Websocket      *WebsocketHandler
	Conversations  *ConversationHandler
	Auth           *AuthHandler
	Users          service.IUserService
	Log            *logger.Logger
	AllowedOrigins []string
}

// NewRouter wires every route onto a gorilla/mux router.
func NewRouter(deps RouterDeps) http.Handler {
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	// Credentialed requests only from an explicit origin list.
	credentials := len(deps.AllowedOrigins) > 0 && !hasWildcard(deps.AllowedOrigins)

	r := mux.NewRouter()
	r.HandleFunc("/ws", deps.Websocket.HandleConnection).Methods(http.MethodGet)
	r.HandleFunc("/api/health", HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/ws/status", deps.Websocket.HandleStatus).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(RequireOpenID(deps.Users, deps.Log.With("component", "auth")))

	api.HandleFunc("/auth/logout", deps.Auth.Logout).Methods(http.MethodPost)

	conv := api.PathPrefix("/conversations").Subrouter()
	conv.HandleFunc("/find-or-create", deps.Conversations.FindOrCreate).Methods(http.MethodPost)
	conv.HandleFunc("/list", deps.Conversations.List).Methods(http.MethodGet)
	conv.HandleFunc("/unread-count", deps.Conversations.UnreadCount).Methods(http.MethodGet)
	conv.HandleFunc("/{id}/messages", deps.Conversations.Messages).Methods(http.MethodGet)
	conv.HandleFunc("/{id}/messages", deps.Conversations.SendMessage).Methods(http.MethodPost)
	conv.HandleFunc("/{id}/mark-read", deps.Conversations.MarkRead).Methods(http.MethodPost)

	// CORS wraps the router so preflight requests never reach route matching.
	withCORS := cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", OpenIDHeader},
		AllowCredentials: credentials,
		MaxAge:           300,
	})
	return RequestLogger(deps.Log.With("component", "http"))(withCORS(r))
}

func hasWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.Contains(o, "*") {
			return true
		}
	}
	return false
}
