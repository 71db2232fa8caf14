package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
	"github.com/Congdongdong03/wx-help-sub000/internal/logger"
	"github.com/Congdongdong03/wx-help-sub000/internal/service"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBlacklist map[string]bool

func (s stubBlacklist) IsBlacklisted(_ context.Context, openid string) (bool, error) {
	return s[openid], nil
}

func (s stubBlacklist) Add(_ context.Context, openid string, _ time.Duration) error {
	s[openid] = true
	return nil
}

type hubFixture struct {
	hub    *Hub
	stores testStores
	url    string
}

func newHubFixture(t *testing.T, banned stubBlacklist) *hubFixture {
	t.Helper()
	log := logger.NewNop()
	st := newTestStores(t)
	reg := NewRegistry(log)
	d := NewDelivery(st.conversations, st.messages, reg, log)
	h := NewHub(reg, d, st.conversations, service.NewUserService(banned), log, Options{SendBuffer: 32})

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.ServeWs(conn)
	}))
	t.Cleanup(srv.Close)

	return &hubFixture{hub: h, stores: st, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (f *hubFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	greeting := readFrame(t, conn)
	require.Equal(t, "system", greeting["type"])
	require.Equal(t, domain.NoticeWelcome, greeting["content"])
	return conn
}

func (f *hubFixture) login(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	conn := f.dial(t)
	writeFrame(t, conn, map[string]string{"type": "auth", "userId": userID})
	ack := readFrame(t, conn)
	require.Equal(t, "auth_success", ack["type"])
	require.Equal(t, userID, ack["userId"])
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame %s", data)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}

func TestProtocolRejectsBeforeAuth(t *testing.T) {
	f := newHubFixture(t, nil)
	conn := f.dial(t)

	writeFrame(t, conn, map[string]string{"type": "sendMessage", "conversationId": "c", "toUserId": "B", "content": "x", "clientTempId": "t1"})
	resp := readFrame(t, conn)
	assert.Equal(t, "error", resp["type"])
	assert.Equal(t, domain.NoticeAuthRequired, resp["content"])
	assert.Equal(t, "t1", resp["clientTempId"])
	assert.Zero(t, f.hub.Registry().Count())
}

func TestProtocolUnknownAndMalformed(t *testing.T) {
	f := newHubFixture(t, nil)
	conn := f.login(t, "A")

	writeFrame(t, conn, map[string]string{"type": "bogus"})
	resp := readFrame(t, conn)
	assert.Equal(t, "error", resp["type"])
	assert.Equal(t, "未知的消息类型", resp["content"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	resp = readFrame(t, conn)
	assert.Equal(t, "error", resp["type"])
	assert.Equal(t, "消息格式错误", resp["content"])

	writeFrame(t, conn, map[string]string{"type": "joinRoom", "conversationId": "c1"})
	resp = readFrame(t, conn)
	assert.Equal(t, "room_joined", resp["type"], "connection stays usable")
}

func TestProtocolAuthValidation(t *testing.T) {
	f := newHubFixture(t, stubBlacklist{"banned": true})
	conn := f.dial(t)

	writeFrame(t, conn, map[string]string{"type": "auth"})
	assert.Equal(t, domain.NoticeMissingUserID, readFrame(t, conn)["content"])

	writeFrame(t, conn, map[string]string{"type": "auth", "userId": "banned"})
	assert.Equal(t, domain.NoticeBlacklisted, readFrame(t, conn)["content"])
	assert.False(t, f.hub.Registry().IsOnline("banned"))
}

func TestProtocolLiveDeliveryAndEcho(t *testing.T) {
	f := newHubFixture(t, nil)
	conv, err := f.stores.conversations.FindOrCreate(context.Background(), "", "A", "B")
	require.NoError(t, err)

	a := f.login(t, "A")
	b := f.login(t, "B")

	writeFrame(t, a, map[string]string{"type": "sendMessage", "conversationId": conv.ID, "toUserId": "B", "content": "hi", "clientTempId": "t1"})

	got := readFrame(t, b)
	assert.Equal(t, "chat", got["type"])
	assert.Equal(t, "hi", got["content"])
	assert.Equal(t, "A", got["senderId"])
	assert.Equal(t, "text", got["messageType"])
	assert.NotEmpty(t, got["messageId"])

	echo := readFrame(t, a)
	assert.Equal(t, "chat", echo["type"])
	assert.Equal(t, "t1", echo["clientTempId"])
	assert.Equal(t, got["messageId"], echo["messageId"])

	writeFrame(t, a, map[string]string{"type": "image", "conversationId": conv.ID, "toUserId": "B", "content": "https://img/x.png"})
	img := readFrame(t, b)
	assert.Equal(t, "image", img["messageType"])
}

func TestProtocolOfflineReplayOnAuth(t *testing.T) {
	f := newHubFixture(t, nil)
	conv, err := f.stores.conversations.FindOrCreate(context.Background(), "", "A", "B")
	require.NoError(t, err)

	a := f.login(t, "A")
	for _, content := range []string{"m1", "m2"} {
		writeFrame(t, a, map[string]string{"type": "text", "conversationId": conv.ID, "toUserId": "B", "content": content})
		assert.Equal(t, content, readFrame(t, a)["content"])
	}

	b := f.login(t, "B")
	first, second := readFrame(t, b), readFrame(t, b)
	assert.Equal(t, "m1", first["content"])
	assert.Equal(t, "m2", second["content"])
	assert.Equal(t, true, first["offline"])
	assert.Equal(t, true, second["offline"])

	waitFor(t, func() bool {
		n, err := f.stores.messages.CountUnread(context.Background(), "B", "")
		return err == nil && n == 0
	})
}

func TestProtocolOfflineReplayLargerThanSendBuffer(t *testing.T) {
	f := newHubFixture(t, nil)
	ctx := context.Background()
	conv, err := f.stores.conversations.FindOrCreate(ctx, "", "A", "B")
	require.NoError(t, err)

	const backlog = 500
	for i := 0; i < backlog; i++ {
		require.NoError(t, f.stores.messages.SaveMessage(ctx, &domain.Message{
			ConversationID: conv.ID,
			SenderID:       "A",
			ReceiverID:     "B",
			Content:        fmt.Sprintf("m%d", i),
			Type:           domain.MessageTypeText,
		}))
	}

	b := f.login(t, "B")
	for i := 0; i < backlog; i++ {
		frame := readFrame(t, b)
		require.Equal(t, "chat", frame["type"])
		require.Equal(t, true, frame["offline"])
		require.Equal(t, fmt.Sprintf("m%d", i), frame["content"])
	}

	waitFor(t, func() bool {
		n, err := f.stores.messages.CountUnread(ctx, "B", "")
		return err == nil && n == 0
	})
}

func TestProtocolSendFailureNotifiesSender(t *testing.T) {
	f := newHubFixture(t, nil)
	a := f.login(t, "A")

	writeFrame(t, a, map[string]string{"type": "sendMessage", "conversationId": "missing", "toUserId": "B", "content": "hi", "clientTempId": "t9"})
	resp := readFrame(t, a)
	assert.Equal(t, "error", resp["type"])
	assert.Equal(t, "消息发送失败", resp["content"])
	assert.Equal(t, "t9", resp["clientTempId"])
}

func TestProtocolDropsIncompleteSend(t *testing.T) {
	f := newHubFixture(t, nil)
	a := f.login(t, "A")

	writeFrame(t, a, map[string]string{"type": "sendMessage", "toUserId": "B", "content": "hi"})
	writeFrame(t, a, map[string]string{"type": "sendMessage", "conversationId": "c", "toUserId": "B", "content": "hi", "messageType": "video"})
	expectSilence(t, a)
}

func TestProtocolTypingForwarded(t *testing.T) {
	f := newHubFixture(t, nil)
	a := f.login(t, "A")
	b := f.login(t, "B")

	writeFrame(t, a, map[string]string{"type": "typing", "conversationId": "c1", "toUserId": "B"})
	got := readFrame(t, b)
	assert.Equal(t, "typing", got["type"])
	assert.Equal(t, "A", got["fromUserId"])
	assert.Equal(t, "c1", got["conversationId"])

	writeFrame(t, a, map[string]string{"type": "stopTyping", "conversationId": "c1", "toUserId": "B"})
	assert.Equal(t, "stopTyping", readFrame(t, b)["type"])

	writeFrame(t, a, map[string]string{"type": "typing", "conversationId": "c1", "toUserId": "offline-user"})
	expectSilence(t, a)
}

func TestProtocolRoomAcksAndOnlineStatus(t *testing.T) {
	f := newHubFixture(t, nil)
	conv, err := f.stores.conversations.FindOrCreate(context.Background(), "", "A", "B")
	require.NoError(t, err)
	a := f.login(t, "A")

	writeFrame(t, a, map[string]string{"type": "leaveRoom", "conversationId": conv.ID})
	assert.Equal(t, "room_left", readFrame(t, a)["type"])

	writeFrame(t, a, map[string]string{"type": "requestOnlineStatus", "conversationId": conv.ID})
	status := readFrame(t, a)
	assert.Equal(t, "onlineStatus", status["type"])
	assert.EqualValues(t, 1, status["onlineCount"])
	assert.Equal(t, false, status["peerOnline"])

	f.login(t, "B")
	writeFrame(t, a, map[string]string{"type": "requestOnlineStatus", "conversationId": conv.ID})
	status = readFrame(t, a)
	assert.EqualValues(t, 2, status["onlineCount"])
	assert.Equal(t, true, status["peerOnline"])
}

func TestProtocolSecondLoginReplacesFirst(t *testing.T) {
	f := newHubFixture(t, nil)
	first := f.login(t, "A")
	second := f.login(t, "A")

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}
	assert.Equal(t, 1, f.hub.Registry().Count())

	writeFrame(t, second, map[string]string{"type": "joinRoom", "conversationId": "c"})
	assert.Equal(t, "room_joined", readFrame(t, second)["type"])
	assert.True(t, f.hub.Registry().IsOnline("A"))
}

func TestDisconnectUnregisters(t *testing.T) {
	f := newHubFixture(t, nil)
	conn := f.login(t, "A")
	require.True(t, f.hub.Registry().IsOnline("A"))

	conn.Close()
	waitFor(t, func() bool { return !f.hub.Registry().IsOnline("A") })
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	log := logger.NewNop()
	reg := NewRegistry(log)
	h := NewHub(reg, nil, nil, nil, log, Options{SweepInterval: 10 * time.Millisecond})
	dead := newFakeHandle()
	reg.Add("gone", dead)
	dead.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	waitFor(t, func() bool { return reg.Count() == 0 })
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
