// Package storetest holds the behavior every message store backend must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
	"github.com/Congdongdong03/wx-help-sub000/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises conversations and messages against a live backend. Every
// subtest uses fresh user ids so shared databases stay isolated.
func Run(t *testing.T, conversations service.IConversationRepository, messages service.IMessageRepository) {
	t.Run("FindOrCreateMatchesEitherOrder", func(t *testing.T) {
		ctx := context.Background()
		a, b := newUser(), newUser()

		first, err := conversations.FindOrCreate(ctx, "post-1", a, b)
		require.NoError(t, err)
		assert.Equal(t, a, first.Participant1ID)
		assert.Equal(t, b, first.Participant2ID)

		again, err := conversations.FindOrCreate(ctx, "post-1", b, a)
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, a, again.Participant1ID)

		other, err := conversations.FindOrCreate(ctx, "post-2", a, b)
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, other.ID)

		loaded, err := conversations.GetByID(ctx, first.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, "post-1", loaded.PostID)
	})

	t.Run("FindOrCreateKeepsSeparatorPairsApart", func(t *testing.T) {
		ctx := context.Background()
		p := uuid.NewString()
		// Joined with "_" after sorting, both pairs read p-x_y_p-z.
		xy, z := p+"-x_y", p+"-z"
		x, yz := p+"-x", "y_"+p+"-z"

		first, err := conversations.FindOrCreate(ctx, "p1", xy, z)
		require.NoError(t, err)
		second, err := conversations.FindOrCreate(ctx, "p1", x, yz)
		require.NoError(t, err)

		assert.NotEqual(t, first.ID, second.ID)
		assert.True(t, second.HasParticipant(x))
		assert.True(t, second.HasParticipant(yz))
		assert.False(t, second.HasParticipant(xy))
	})

	t.Run("GetByIDMissing", func(t *testing.T) {
		conv, err := conversations.GetByID(context.Background(), uuid.NewString())
		require.NoError(t, err)
		assert.Nil(t, conv)
	})

	t.Run("SaveAssignsIDAndBumpsConversation", func(t *testing.T) {
		ctx := context.Background()
		a, b := newUser(), newUser()
		conv, err := conversations.FindOrCreate(ctx, "", a, b)
		require.NoError(t, err)

		at := conv.UpdatedAt.Add(time.Minute).Truncate(time.Millisecond)
		msg := &domain.Message{ConversationID: conv.ID, SenderID: a, ReceiverID: b, Content: "hello", Type: domain.MessageTypeText, CreatedAt: at}
		require.NoError(t, messages.SaveMessage(ctx, msg))
		assert.NotEmpty(t, msg.ID)

		reloaded, err := conversations.GetByID(ctx, conv.ID)
		require.NoError(t, err)
		assert.True(t, reloaded.UpdatedAt.Equal(at), "updatedAt %s want %s", reloaded.UpdatedAt, at)

		last, err := messages.GetLastMessage(ctx, conv.ID)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, msg.ID, last.ID)
		assert.False(t, last.IsRead)
	})

	t.Run("SaveUnknownConversationFails", func(t *testing.T) {
		msg := &domain.Message{ConversationID: uuid.NewString(), SenderID: newUser(), ReceiverID: newUser(), Content: "x", Type: domain.MessageTypeText}
		require.Error(t, messages.SaveMessage(context.Background(), msg))
	})

	t.Run("HistoryPagesAscending", func(t *testing.T) {
		ctx := context.Background()
		a, b := newUser(), newUser()
		conv, err := conversations.FindOrCreate(ctx, "", a, b)
		require.NoError(t, err)

		base := time.Now().UTC().Truncate(time.Millisecond)
		var ids []string
		for i := 0; i < 5; i++ {
			m := &domain.Message{ConversationID: conv.ID, SenderID: a, ReceiverID: b, Content: string(rune('a' + i)), Type: domain.MessageTypeText, CreatedAt: base.Add(time.Duration(i) * time.Second)}
			require.NoError(t, messages.SaveMessage(ctx, m))
			ids = append(ids, m.ID)
		}

		newest, total, err := messages.GetMessagesByConversationID(ctx, conv.ID, domain.Page{Page: 1, Limit: 2})
		require.NoError(t, err)
		assert.EqualValues(t, 5, total)
		require.Len(t, newest, 2)
		assert.Equal(t, []string{ids[3], ids[4]}, []string{newest[0].ID, newest[1].ID})

		older, _, err := messages.GetMessagesByConversationID(ctx, conv.ID, domain.Page{Page: 2, Limit: 2})
		require.NoError(t, err)
		require.Len(t, older, 2)
		assert.Equal(t, ids[1], older[0].ID)

		before := base.Add(2 * time.Second)
		early, total, err := messages.GetMessagesByConversationID(ctx, conv.ID, domain.Page{Page: 1, Limit: 10, Before: &before})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, early, 2)
		assert.Equal(t, ids[0], early[0].ID)
	})

	t.Run("SameTimestampOrdersByID", func(t *testing.T) {
		ctx := context.Background()
		a, b := newUser(), newUser()
		conv, err := conversations.FindOrCreate(ctx, "", a, b)
		require.NoError(t, err)

		at := time.Now().UTC().Truncate(time.Millisecond)
		var ids []string
		for _, content := range []string{"first", "second", "third"} {
			m := &domain.Message{ConversationID: conv.ID, SenderID: a, ReceiverID: b, Content: content, Type: domain.MessageTypeText, CreatedAt: at}
			require.NoError(t, messages.SaveMessage(ctx, m))
			ids = append(ids, m.ID)
		}
		require.Negative(t, domain.CompareIDs(ids[0], ids[1]))
		require.Negative(t, domain.CompareIDs(ids[1], ids[2]))

		history, _, err := messages.GetMessagesByConversationID(ctx, conv.ID, domain.Page{Page: 1, Limit: 10})
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, ids, []string{history[0].ID, history[1].ID, history[2].ID})

		newest, _, err := messages.GetMessagesByConversationID(ctx, conv.ID, domain.Page{Page: 1, Limit: 2})
		require.NoError(t, err)
		require.Len(t, newest, 2)
		assert.Equal(t, []string{ids[1], ids[2]}, []string{newest[0].ID, newest[1].ID})

		unread, err := messages.GetUnreadMessages(ctx, b)
		require.NoError(t, err)
		require.Len(t, unread, 3)
		assert.Equal(t, ids, []string{unread[0].ID, unread[1].ID, unread[2].ID})
	})

	t.Run("UnreadBacklogAndMarkRead", func(t *testing.T) {
		ctx := context.Background()
		a, b := newUser(), newUser()
		conv, err := conversations.FindOrCreate(ctx, "", a, b)
		require.NoError(t, err)

		base := time.Now().UTC().Truncate(time.Millisecond)
		m1 := &domain.Message{ConversationID: conv.ID, SenderID: a, ReceiverID: b, Content: "m1", Type: domain.MessageTypeText, CreatedAt: base}
		m2 := &domain.Message{ConversationID: conv.ID, SenderID: a, ReceiverID: b, Content: "m2", Type: domain.MessageTypeImage, CreatedAt: base.Add(time.Second)}
		reply := &domain.Message{ConversationID: conv.ID, SenderID: b, ReceiverID: a, Content: "r", Type: domain.MessageTypeText, CreatedAt: base.Add(2 * time.Second)}
		for _, m := range []*domain.Message{m1, m2, reply} {
			require.NoError(t, messages.SaveMessage(ctx, m))
		}

		unread, err := messages.GetUnreadMessages(ctx, b)
		require.NoError(t, err)
		require.Len(t, unread, 2)
		assert.Equal(t, m1.ID, unread[0].ID)
		assert.Equal(t, m2.ID, unread[1].ID)
		assert.Equal(t, domain.MessageTypeImage, unread[1].Type)

		n, err := messages.CountUnread(ctx, b, "")
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
		n, err = messages.CountUnread(ctx, b, conv.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		require.NoError(t, messages.MarkMessagesAsRead(ctx, []string{m1.ID}))
		unread, err = messages.GetUnreadMessages(ctx, b)
		require.NoError(t, err)
		require.Len(t, unread, 1)
		assert.Equal(t, m2.ID, unread[0].ID)

		flipped, err := messages.MarkConversationAsRead(ctx, conv.ID, b)
		require.NoError(t, err)
		assert.EqualValues(t, 1, flipped)

		n, err = messages.CountUnread(ctx, b, "")
		require.NoError(t, err)
		assert.Zero(t, n)
		n, err = messages.CountUnread(ctx, a, "")
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		require.NoError(t, messages.MarkMessagesAsRead(ctx, nil))
	})

	t.Run("ListByParticipantNewestFirst", func(t *testing.T) {
		ctx := context.Background()
		me, x, y := newUser(), newUser(), newUser()
		older, err := conversations.FindOrCreate(ctx, "", me, x)
		require.NoError(t, err)
		newer, err := conversations.FindOrCreate(ctx, "", y, me)
		require.NoError(t, err)

		at := time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)
		require.NoError(t, messages.SaveMessage(ctx, &domain.Message{ConversationID: older.ID, SenderID: x, ReceiverID: me, Content: "bump", Type: domain.MessageTypeText, CreatedAt: at}))

		list, err := conversations.ListByParticipant(ctx, me)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, older.ID, list[0].ID)
		assert.Equal(t, newer.ID, list[1].ID)

		empty, err := messages.GetLastMessage(ctx, newer.ID)
		require.NoError(t, err)
		assert.Nil(t, empty)
	})
}

// IsNotFound reports whether err carries domain.ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

func newUser() string {
	return "openid-" + uuid.NewString()
}
