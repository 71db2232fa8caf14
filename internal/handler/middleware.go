package handler

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
	"github.com/Congdongdong03/wx-help-sub000/internal/logger"
	"github.com/Congdongdong03/wx-help-sub000/internal/service"
)

// OpenIDHeader carries the caller's identity on every API request.
const OpenIDHeader = "x-openid"

type ctxKey int

const openIDKey ctxKey = iota

// OpenIDFrom returns the authenticated openid stored by RequireOpenID.
func OpenIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(openIDKey).(string)
	return v
}

// RequireOpenID rejects requests without a usable x-openid header.
func RequireOpenID(users service.IUserService, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			openid := strings.TrimSpace(r.Header.Get(OpenIDHeader))
			if openid == "" {
				respondError(w, http.StatusUnauthorized, msgNoOpenID)
				return
			}
			if err := users.Authenticate(r.Context(), openid); err != nil {
				if errors.Is(err, domain.ErrBlacklisted) {
					respondError(w, http.StatusUnauthorized, domain.NoticeBlacklisted)
					return
				}
				log.Error("identity check failed", "userId", openid, "error", err)
				respondError(w, http.StatusInternalServerError, msgInternal)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), openIDKey, openid)))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// RequestLogger logs one line per request and turns panics into 500s.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				if p := recover(); p != nil {
					log.Error("panic serving request", "path", r.URL.Path, "panic", p, "stack", string(debug.Stack()))
					respondError(rec, http.StatusInternalServerError, msgInternal)
				}
				log.Debug("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", rec.status,
					"duration", time.Since(start),
				)
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
