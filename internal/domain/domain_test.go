package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairKeyIgnoresOrder(t *testing.T) {
	assert.Equal(t, PairKey("p1", "alice", "bob"), PairKey("p1", "bob", "alice"))
	assert.NotEqual(t, PairKey("p1", "alice", "bob"), PairKey("p2", "alice", "bob"))
	assert.NotEqual(t, PairKey("", "alice", "bob"), PairKey("p1", "alice", "bob"))
}

func TestPairKeySeparatorsInIDs(t *testing.T) {
	assert.NotEqual(t, PairKey("p1", "x_y", "z"), PairKey("p1", "x", "y_z"))
	assert.NotEqual(t, PairKey("p1", "a|b", "c"), PairKey("p1|a", "b", "c"))
	assert.NotEqual(t, PairKey("", "1:a", "b"), PairKey("", "1", "a|1:b"))
}

func TestConversationParticipants(t *testing.T) {
	c := NewConversation("", "a", "b")
	assert.True(t, c.HasParticipant("a"))
	assert.True(t, c.HasParticipant("b"))
	assert.False(t, c.HasParticipant("c"))
	assert.False(t, c.HasParticipant(""))
	assert.Equal(t, "b", c.OtherParticipant("a"))
	assert.Equal(t, "a", c.OtherParticipant("b"))
	assert.Equal(t, "", c.OtherParticipant("c"))
}

func TestResolvedMessageType(t *testing.T) {
	cases := []struct {
		env  InboundEnvelope
		want string
	}{
		{InboundEnvelope{Type: TypeSendMessage}, "text"},
		{InboundEnvelope{Type: TypeSendMessage, MessageType: "image"}, "image"},
		{InboundEnvelope{Type: TypeText, MessageType: "image"}, "text"},
		{InboundEnvelope{Type: TypeImage}, "image"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.env.ResolvedMessageType(), tc.env.Type)
		assert.True(t, tc.env.IsSend())
	}
	assert.False(t, (&InboundEnvelope{Type: TypeTyping}).IsSend())
}

func TestSortMessagesByTimeThenID(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	msgs := []*Message{
		{ID: "10", CreatedAt: t0},
		{ID: "9", CreatedAt: t0},
		{ID: "1", CreatedAt: t0.Add(time.Second)},
	}
	SortMessages(msgs)
	assert.Equal(t, []string{"9", "10", "1"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
}

func TestCompareIDsHex(t *testing.T) {
	assert.Equal(t, -1, CompareIDs("65a0000000000000000000a1", "65a0000000000000000000b1"))
	assert.Equal(t, 0, CompareIDs("abc", "abc"))
	assert.Equal(t, 1, CompareIDs("abcd", "abc"))
}

func TestPageNormalizeAndPagination(t *testing.T) {
	p := Page{Page: 0, Limit: 500}.Normalize()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, MaxPageSize, p.Limit)
	assert.Equal(t, 0, p.Offset())

	pg := NewPagination(Page{Page: 2, Limit: 10}, 25)
	assert.True(t, pg.HasMore)
	require.NotNil(t, pg.NextPage)
	require.NotNil(t, pg.PrevPage)
	assert.Equal(t, 3, *pg.NextPage)
	assert.Equal(t, 1, *pg.PrevPage)

	last := NewPagination(Page{Page: 3, Limit: 10}, 25)
	assert.False(t, last.HasMore)
	assert.Nil(t, last.NextPage)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "暂无消息", Preview(nil))
	assert.Equal(t, "[图片]", Preview(&Message{Type: MessageTypeImage, Content: "https://x/y.png"}))
	assert.Equal(t, "hi", Preview(&Message{Type: MessageTypeText, Content: "hi"}))
}

func TestChatEnvelopeJSON(t *testing.T) {
	m := &Message{ID: "42", ConversationID: "c1", SenderID: "a", ReceiverID: "b", Content: "hi", Type: MessageTypeText, CreatedAt: time.UnixMilli(1700000000000)}
	raw, err := json.Marshal(NewChatEnvelope(m, "tmp-1", false))
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "chat", got["type"])
	assert.Equal(t, "42", got["messageId"])
	assert.Equal(t, "tmp-1", got["clientTempId"])
	assert.Equal(t, "b", got["toUserId"])
	assert.EqualValues(t, 1700000000000, got["timestamp"])
	_, hasOffline := got["offline"]
	assert.False(t, hasOffline)
}
