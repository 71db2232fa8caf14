package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
	"github.com/Congdongdong03/wx-help-sub000/internal/logger"
	"github.com/gorilla/websocket"
)

var (
	ErrNotConnected = errors.New("socket not connected")
	ErrConnClosed   = errors.New("connection closed by caller")
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
	maxQueued        = 100
	maxInbox         = 256
)

// ConnOptions configures a Conn.
type ConnOptions struct {
	URL       string
	UserID    string
	Retry     RetryPolicy
	Scheduler Scheduler
	// Dialer defaults to a gorilla dialer with a 10s handshake timeout.
	Dialer *websocket.Dialer
}

// Conn is the client side of the chat socket. It authenticates on every open,
// flushes envelopes queued while disconnected, and schedules one reconnect
// at a time after the socket drops.
type Conn struct {
	url       string
	userID    string
	retry     RetryPolicy
	scheduler Scheduler
	dialer    *websocket.Dialer
	bus       *EventBus
	log       *logger.Logger

	// writeMu serializes socket writes and is always taken before mu.
	writeMu sync.Mutex

	mu       sync.Mutex
	ws       *websocket.Conn
	queue    []domain.InboundEnvelope
	attempts int
	timer    Timer
	closed   bool

	dispatchMu sync.Mutex
	handler    func(ServerFrame)
	inbox      []ServerFrame
}

// NewConn creates a Conn. Nothing is dialed until Connect.
func NewConn(opts ConnOptions, bus *EventBus, log *logger.Logger) *Conn {
	if opts.Scheduler == nil {
		opts.Scheduler = SystemScheduler()
	}
	if opts.Retry.BaseDelay <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	}
	if bus == nil {
		bus = NewEventBus()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Conn{
		url:       opts.URL,
		userID:    opts.UserID,
		retry:     opts.Retry,
		scheduler: opts.Scheduler,
		dialer:    opts.Dialer,
		bus:       bus,
		log:       log.With("component", "conn", "userId", opts.UserID),
	}
}

// Connect dials the server, sends auth and flushes the queue. A failed dial
// schedules a reconnect before returning the error.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	if c.ws != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.log.Warn("connect failed", "url", c.url, "error", err)
		c.scheduleReconnect()
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.writeMu.Lock()
	c.mu.Lock()
	if c.closed || c.ws != nil {
		c.mu.Unlock()
		c.writeMu.Unlock()
		ws.Close()
		return nil
	}
	c.ws = ws
	c.attempts = 0
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()

	werr := writeFrame(ws, domain.InboundEnvelope{Type: domain.TypeAuth, UserID: c.userID})
	if werr == nil {
		for i, env := range pending {
			if werr = writeFrame(ws, env); werr != nil {
				c.mu.Lock()
				c.queue = append(append([]domain.InboundEnvelope{}, pending[i:]...), c.queue...)
				c.mu.Unlock()
				break
			}
		}
	}
	c.writeMu.Unlock()

	c.log.Info("connected", "url", c.url, "flushed", len(pending))
	c.bus.Publish(Event{Kind: EventConnected})

	go c.readLoop(ws)
	if werr != nil {
		c.handleClosed(ws, werr)
		return werr
	}
	return nil
}

// Emit writes env to the socket. When disconnected, chat sends fail with
// ErrNotConnected so the caller can fall back to HTTP, while other envelopes
// are queued and flushed on the next open.
func (c *Conn) Emit(env domain.InboundEnvelope) error {
	c.writeMu.Lock()
	c.mu.Lock()
	ws := c.ws
	if ws == nil {
		defer c.writeMu.Unlock()
		defer c.mu.Unlock()
		if env.IsSend() {
			return ErrNotConnected
		}
		if len(c.queue) >= maxQueued {
			c.queue = c.queue[1:]
		}
		c.queue = append(c.queue, env)
		return nil
	}
	c.mu.Unlock()

	err := writeFrame(ws, env)
	c.writeMu.Unlock()
	if err != nil {
		c.handleClosed(ws, err)
		return fmt.Errorf("write %s: %w", env.Type, err)
	}
	return nil
}

// OnFrame installs the frame handler and replays frames that arrived before it.
func (c *Conn) OnFrame(fn func(ServerFrame)) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	c.handler = fn
	buffered := c.inbox
	c.inbox = nil
	for _, f := range buffered {
		fn(f)
	}
}

func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil
}

// Queued is the number of envelopes waiting for the next open.
func (c *Conn) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Close shuts the socket and cancels any pending reconnect. A closed Conn
// cannot be reopened.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	if ws == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	err := ws.Close()
	c.bus.Publish(Event{Kind: EventDisconnected})
	return err
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.handleClosed(ws, err)
			return
		}
		var f ServerFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn("dropping undecodable frame", "error", err)
			continue
		}
		c.dispatch(f)
	}
}

func (c *Conn) dispatch(f ServerFrame) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	if c.handler == nil {
		if len(c.inbox) < maxInbox {
			c.inbox = append(c.inbox, f)
		}
		return
	}
	c.handler(f)
}

// handleClosed tears down ws if it is still current and schedules a reconnect.
func (c *Conn) handleClosed(ws *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.ws != ws {
		c.mu.Unlock()
		return
	}
	c.ws = nil
	closed := c.closed
	c.mu.Unlock()

	ws.Close()
	c.log.Info("disconnected", "error", cause)
	c.bus.Publish(Event{Kind: EventDisconnected, Err: cause})
	if !closed {
		c.scheduleReconnect()
	}
}

func (c *Conn) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || c.ws != nil || c.timer != nil {
		c.mu.Unlock()
		return
	}
	c.attempts++
	attempt := c.attempts
	delay, ok := c.retry.Delay(attempt)
	if !ok {
		c.mu.Unlock()
		c.log.Warn("reconnect attempts exhausted", "attempts", attempt-1)
		return
	}
	c.timer = c.scheduler.AfterFunc(delay, func() {
		c.mu.Lock()
		c.timer = nil
		c.mu.Unlock()
		_ = c.Connect(context.Background())
	})
	c.mu.Unlock()

	c.log.Debug("reconnect scheduled", "attempt", attempt, "delay", delay)
	c.bus.Publish(Event{Kind: EventReconnecting, Attempt: attempt})
}

func writeFrame(ws *websocket.Conn, v interface{}) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(v)
}
