package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
	"github.com/Congdongdong03/wx-help-sub000/internal/logger"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualTimer struct {
	s       *manualScheduler
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// manualScheduler only runs callbacks when Fire is called.
type manualScheduler struct {
	mu      sync.Mutex
	pending []*manualTimer
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, delay: d, fn: f}
	s.pending = append(s.pending, t)
	return t
}

func (s *manualScheduler) Pending() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Duration
	for _, t := range s.pending {
		if !t.stopped {
			out = append(out, t.delay)
		}
	}
	return out
}

func (s *manualScheduler) Fire() int {
	s.mu.Lock()
	due := s.pending
	s.pending = nil
	s.mu.Unlock()
	n := 0
	for _, t := range due {
		s.mu.Lock()
		stopped := t.stopped
		t.stopped = true
		s.mu.Unlock()
		if !stopped {
			t.fn()
			n++
		}
	}
	return n
}

// wsRecorder is a websocket server that records every frame it receives.
type wsRecorder struct {
	mu     sync.Mutex
	frames []domain.InboundEnvelope
	conns  []*websocket.Conn
	url    string
}

func newRecorder(t *testing.T) *wsRecorder {
	t.Helper()
	rec := &wsRecorder{}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		rec.mu.Lock()
		rec.conns = append(rec.conns, conn)
		rec.mu.Unlock()
		for {
			var env domain.InboundEnvelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			rec.mu.Lock()
			rec.frames = append(rec.frames, env)
			rec.mu.Unlock()
		}
	}))
	t.Cleanup(srv.Close)
	rec.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return rec
}

func (r *wsRecorder) types() []domain.EnvelopeType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.EnvelopeType
	for _, f := range r.frames {
		out = append(out, f.Type)
	}
	return out
}

func (r *wsRecorder) connCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func (r *wsRecorder) latest() *websocket.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[len(r.conns)-1]
}

func (r *wsRecorder) dropAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		c.Close()
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) count(kind EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func newTestConn(t *testing.T, url string, retry RetryPolicy) (*Conn, *manualScheduler, *eventLog) {
	t.Helper()
	sched := &manualScheduler{}
	bus := NewEventBus()
	events := &eventLog{}
	bus.Subscribe(events.record)
	c := NewConn(ConnOptions{URL: url, UserID: "A", Retry: retry, Scheduler: sched}, bus, logger.NewNop())
	t.Cleanup(func() { c.Close() })
	return c, sched, events
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}

func TestConnAuthenticatesThenFlushesQueueInOrder(t *testing.T) {
	rec := newRecorder(t)
	c, _, events := newTestConn(t, rec.url, DefaultRetryPolicy())

	require.NoError(t, c.Emit(domain.InboundEnvelope{Type: domain.TypeJoinRoom, ConversationID: "c1"}))
	require.NoError(t, c.Emit(domain.InboundEnvelope{Type: domain.TypeTyping, ConversationID: "c1", ToUserID: "B"}))
	err := c.Emit(domain.InboundEnvelope{Type: domain.TypeSendMessage, ConversationID: "c1", ToUserID: "B", Content: "x"})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 2, c.Queued())
	assert.False(t, c.IsConnected())

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.IsConnected())
	assert.Zero(t, c.Queued())
	assert.Equal(t, 1, events.count(EventConnected))

	eventually(t, func() bool { return len(rec.types()) == 3 })
	assert.Equal(t, []domain.EnvelopeType{domain.TypeAuth, domain.TypeJoinRoom, domain.TypeTyping}, rec.types())

	require.NoError(t, c.Emit(domain.InboundEnvelope{Type: domain.TypeSendMessage, ConversationID: "c1", ToUserID: "B", Content: "x"}))
	eventually(t, func() bool { return len(rec.types()) == 4 })
}

func TestConnSchedulesSingleReconnectAfterDrop(t *testing.T) {
	rec := newRecorder(t)
	c, sched, events := newTestConn(t, rec.url, DefaultRetryPolicy())
	require.NoError(t, c.Connect(context.Background()))
	eventually(t, func() bool { return rec.connCount() == 1 })

	rec.dropAll()
	eventually(t, func() bool { return events.count(EventReconnecting) == 1 })
	assert.Equal(t, 1, events.count(EventDisconnected))
	assert.False(t, c.IsConnected())
	assert.Equal(t, []time.Duration{5 * time.Second}, sched.Pending())

	require.Equal(t, 1, sched.Fire())
	assert.True(t, c.IsConnected())
	eventually(t, func() bool { return rec.connCount() == 2 })
	eventually(t, func() bool {
		n := 0
		for _, typ := range rec.types() {
			if typ == domain.TypeAuth {
				n++
			}
		}
		return n == 2
	})
	assert.Empty(t, sched.Pending())
	assert.Equal(t, 2, events.count(EventConnected))
}

func TestConnGivesUpAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	policy := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Second}
	c, sched, events := newTestConn(t, url, policy)

	require.Error(t, c.Connect(context.Background()))
	assert.Len(t, sched.Pending(), 1)

	sched.Fire()
	assert.Len(t, sched.Pending(), 1)

	sched.Fire()
	assert.Empty(t, sched.Pending())
	assert.Equal(t, 2, events.count(EventReconnecting))
	assert.False(t, c.IsConnected())
}

func TestConnCloseCancelsReconnect(t *testing.T) {
	rec := newRecorder(t)
	c, sched, _ := newTestConn(t, rec.url, DefaultRetryPolicy())
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
	assert.Empty(t, sched.Pending())
	assert.ErrorIs(t, c.Connect(context.Background()), ErrConnClosed)
}

func TestConnBuffersFramesUntilHandlerAttached(t *testing.T) {
	rec := newRecorder(t)
	c, _, _ := newTestConn(t, rec.url, DefaultRetryPolicy())
	require.NoError(t, c.Connect(context.Background()))
	eventually(t, func() bool { return rec.connCount() == 1 })

	server := rec.latest()
	require.NoError(t, server.WriteJSON(domain.NewNotice(domain.TypeSystem, domain.NoticeWelcome, "")))
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, server.WriteJSON(domain.AuthSuccessEnvelope{Type: domain.TypeAuthSuccess, UserID: "A", Timestamp: 1}))

	eventually(t, func() bool {
		c.dispatchMu.Lock()
		defer c.dispatchMu.Unlock()
		return len(c.inbox) == 2
	})

	var mu sync.Mutex
	var got []domain.EnvelopeType
	c.OnFrame(func(f ServerFrame) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, f.Type)
	})
	require.NoError(t, server.WriteJSON(domain.NewNotice(domain.TypeError, "x", "")))

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	})
	assert.Equal(t, []domain.EnvelopeType{domain.TypeSystem, domain.TypeAuthSuccess, domain.TypeError}, got)
}
