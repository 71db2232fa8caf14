package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
	"github.com/Congdongdong03/wx-help-sub000/internal/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

var (
	ErrConnClosed     = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// State is where a connection sits in its lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	log  *logger.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	state     State
	userID    string
}

func newClient(h *Hub, conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
		log:  h.log.With("remote", conn.RemoteAddr().String()),
	}
}

// Send queues payload without blocking.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSendBufferFull
	}
}

// Enqueue queues payload, waiting up to wait for buffer space. It gives up
// when the connection closes or ctx ends.
func (c *Client) Enqueue(ctx context.Context, payload []byte, wait time.Duration) error {
	if err := c.Send(payload); !errors.Is(err, ErrSendBufferFull) {
		return err
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrSendBufferFull
	}
}

// Open reports whether the connection still accepts writes.
func (c *Client) Open() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Close moves the connection to StateClosed and stops the write pump,
// which closes the socket.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// bind authenticates the connection as userID and returns the previous
// identity, if any. It fails once the connection is closed.
func (c *Client) bind(userID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return "", false
	}
	prev := c.userID
	c.userID = userID
	c.state = StateAuthenticated
	return prev, true
}

// readPump reads frames from the socket and hands them to the hub one at a time.
func (c *Client) readPump() {
	defer c.hub.disconnect(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Warn("read error", "userId", c.UserID(), "error", err)
			}
			return
		}
		if !c.Open() {
			return
		}
		c.hub.handleFrame(c, data)
	}
}

// writePump drains the send queue to the socket and keeps it alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				c.log.Warn("write error", "userId", c.UserID(), "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes whatever was queued before the connection was closed.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// sendJSON queues v for this connection only.
func (c *Client) sendJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.log.Error("marshal outbound envelope", "userId", c.UserID(), "error", err)
		return
	}
	if err := c.Send(payload); err != nil {
		c.log.Warn("could not queue envelope", "userId", c.UserID(), "error", err)
	}
}

// sendNotice queues an "error" or "system" frame.
func (c *Client) sendNotice(t domain.EnvelopeType, content, clientTempID string) {
	c.sendJSON(domain.NewNotice(t, content, clientTempID))
}
