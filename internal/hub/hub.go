package hub

import (
	"context"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
	"github.com/Congdongdong03/wx-help-sub000/internal/logger"
	"github.com/Congdongdong03/wx-help-sub000/internal/service"
	"github.com/gorilla/websocket"
)

// Options tunes per-connection behavior.
type Options struct {
	// SendBuffer is the number of frames queued per connection before
	// writes to it start failing.
	SendBuffer int
	// SweepInterval enables a periodic Registry.Sweep when positive.
	SweepInterval time.Duration
	// OpTimeout bounds store calls made while handling one frame.
	OpTimeout time.Duration
	// ReplayTimeout bounds the offline replay that follows a successful auth.
	ReplayTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = 10 * time.Second
	}
	if o.ReplayTimeout <= 0 {
		o.ReplayTimeout = 2 * time.Minute
	}
	return o
}

// Hub accepts websocket connections and runs the chat protocol over them.
type Hub struct {
	registry      *Registry
	delivery      *Delivery
	conversations service.IConversationRepository
	users         service.IUserService
	log           *logger.Logger
	opts          Options
}

// NewHub creates a new Hub.
func NewHub(registry *Registry, delivery *Delivery, conversations service.IConversationRepository, users service.IUserService, log *logger.Logger, opts Options) *Hub {
	return &Hub{
		registry:      registry,
		delivery:      delivery,
		conversations: conversations,
		users:         users,
		log:           log.With("component", "hub"),
		opts:          opts.withDefaults(),
	}
}

// Registry exposes the connection registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Run sweeps stale connections until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	if h.opts.SweepInterval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(h.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.registry.Sweep()
		}
	}
}

// ServeWs takes ownership of an upgraded connection.
func (h *Hub) ServeWs(conn *websocket.Conn) {
	client := newClient(h, conn, h.opts.SendBuffer)
	client.sendNotice(domain.TypeSystem, domain.NoticeWelcome, "")
	go client.writePump()
	go client.readPump()
}

// Kick closes userID's connection, if any.
func (h *Hub) Kick(userID string) bool {
	return h.registry.Kick(userID)
}

func (h *Hub) disconnect(c *Client) {
	if userID := c.UserID(); userID != "" {
		if h.registry.Release(userID, c) {
			h.log.Debug("user disconnected", "userId", userID)
		}
	}
	c.Close()
}
