package service_test

import (
	"context"
	"testing"

	"github.com/Congdongdong03/wx-help-sub000/internal/domain"
	"github.com/Congdongdong03/wx-help-sub000/internal/logger"
	"github.com/Congdongdong03/wx-help-sub000/internal/repository/sqlite"
	"github.com/Congdongdong03/wx-help-sub000/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConversationService(t *testing.T) (*service.ConversationService, service.IMessageRepository) {
	t.Helper()
	db, err := sqlite.NewDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	msgs := sqlite.NewMessageRepository(db)
	return service.NewConversationService(sqlite.NewConversationRepository(db), msgs, logger.NewNop()), msgs
}

func saveText(t *testing.T, repo service.IMessageRepository, conv *domain.Conversation, from, content string) *domain.Message {
	t.Helper()
	m := &domain.Message{
		ConversationID: conv.ID,
		SenderID:       from,
		ReceiverID:     conv.OtherParticipant(from),
		Content:        content,
		Type:           domain.MessageTypeText,
	}
	require.NoError(t, repo.SaveMessage(context.Background(), m))
	return m
}

func TestFindOrCreateIsSymmetric(t *testing.T) {
	svc, _ := newConversationService(t)
	ctx := context.Background()

	c1, err := svc.FindOrCreate(ctx, "p1", "A", "B")
	require.NoError(t, err)
	c2, err := svc.FindOrCreate(ctx, " p1 ", "B", "A")
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)
	assert.Equal(t, "A", c2.Participant1ID)

	other, err := svc.FindOrCreate(ctx, "p2", "A", "B")
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, other.ID)

	_, err = svc.FindOrCreate(ctx, "p1", "A", "A")
	assert.ErrorIs(t, err, domain.ErrSelfMessage)
	_, err = svc.FindOrCreate(ctx, "p1", "A", "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestAuthorizeHidesForeignConversations(t *testing.T) {
	svc, _ := newConversationService(t)
	ctx := context.Background()
	conv, err := svc.FindOrCreate(ctx, "p1", "A", "B")
	require.NoError(t, err)

	got, err := svc.Authorize(ctx, conv.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)

	_, err = svc.Authorize(ctx, conv.ID, "C")
	assert.ErrorIs(t, err, domain.ErrNotParticipant)
	_, err = svc.Authorize(ctx, "missing", "A")
	assert.ErrorIs(t, err, domain.ErrNotParticipant)
}

func TestListForUserSummaries(t *testing.T) {
	svc, msgs := newConversationService(t)
	ctx := context.Background()

	withB, err := svc.FindOrCreate(ctx, "p1", "A", "B")
	require.NoError(t, err)
	withC, err := svc.FindOrCreate(ctx, "p2", "C", "A")
	require.NoError(t, err)

	saveText(t, msgs, withB, "B", "hello")
	saveText(t, msgs, withB, "B", "again")
	img := &domain.Message{ConversationID: withC.ID, SenderID: "A", ReceiverID: "C", Content: "u.png", Type: domain.MessageTypeImage}
	require.NoError(t, msgs.SaveMessage(ctx, img))

	list, err := svc.ListForUser(ctx, "A")
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, withC.ID, list[0].ID)
	assert.Equal(t, "C", list[0].OtherUserID)
	assert.Equal(t, "[图片]", list[0].LastMessagePreview)
	assert.Equal(t, "image", list[0].LastMessageType)
	assert.Zero(t, list[0].UnreadCount)

	assert.Equal(t, "B", list[1].OtherUserID)
	assert.Equal(t, "again", list[1].LastMessagePreview)
	assert.Equal(t, int64(2), list[1].UnreadCount)
	require.NotNil(t, list[1].LastMessageAt)

	empty, err := svc.FindOrCreate(ctx, "p3", "D", "A")
	require.NoError(t, err)
	list, err = svc.ListForUser(ctx, "A")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, empty.ID, list[0].ID)
	assert.Equal(t, "暂无消息", list[0].LastMessagePreview)
	assert.Nil(t, list[0].LastMessageAt)
}

func TestHistoryPagesAscending(t *testing.T) {
	svc, msgs := newConversationService(t)
	ctx := context.Background()
	conv, err := svc.FindOrCreate(ctx, "p1", "A", "B")
	require.NoError(t, err)
	for _, c := range []string{"1", "2", "3", "4", "5"} {
		saveText(t, msgs, conv, "A", c)
	}

	page, p, err := svc.History(ctx, conv.ID, "B", domain.Page{Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "4", page[0].Content)
	assert.Equal(t, "5", page[1].Content)
	assert.Equal(t, int64(5), p.TotalCount)
	assert.True(t, p.HasMore)
	require.NotNil(t, p.NextPage)
	assert.Equal(t, 2, *p.NextPage)
	assert.Nil(t, p.PrevPage)

	page, p, err = svc.History(ctx, conv.ID, "A", domain.Page{Page: 3, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "1", page[0].Content)
	assert.False(t, p.HasMore)

	_, _, err = svc.History(ctx, conv.ID, "C", domain.Page{})
	assert.ErrorIs(t, err, domain.ErrNotParticipant)
}

func TestMarkReadAndUnreadCount(t *testing.T) {
	svc, msgs := newConversationService(t)
	ctx := context.Background()
	c1, err := svc.FindOrCreate(ctx, "p1", "A", "B")
	require.NoError(t, err)
	c2, err := svc.FindOrCreate(ctx, "p2", "C", "B")
	require.NoError(t, err)

	saveText(t, msgs, c1, "A", "x")
	saveText(t, msgs, c1, "A", "y")
	saveText(t, msgs, c2, "C", "z")
	saveText(t, msgs, c1, "B", "reply")

	n, err := svc.UnreadCount(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	updated, err := svc.MarkRead(ctx, c1.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	n, err = svc.UnreadCount(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = svc.UnreadCount(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = svc.MarkRead(ctx, c1.ID, "C")
	assert.ErrorIs(t, err, domain.ErrNotParticipant)
}

type staleConversations struct {
	service.IConversationRepository
	conv *domain.Conversation
}

func (s staleConversations) FindOrCreate(context.Context, string, string, string) (*domain.Conversation, error) {
	return s.conv, nil
}

func TestFindOrCreateRejectsForeignConversation(t *testing.T) {
	foreign := domain.NewConversation("p1", "x_y", "z")
	svc := service.NewConversationService(staleConversations{conv: foreign}, nil, logger.NewNop())

	conv, err := svc.FindOrCreate(context.Background(), "p1", "x", "y_z")
	assert.ErrorIs(t, err, domain.ErrNotParticipant)
	assert.Nil(t, conv)
}

func TestFindOrCreateSeparatorIDsGetOwnConversation(t *testing.T) {
	svc, _ := newConversationService(t)
	ctx := context.Background()

	c1, err := svc.FindOrCreate(ctx, "p1", "x_y", "z")
	require.NoError(t, err)
	c2, err := svc.FindOrCreate(ctx, "p1", "x", "y_z")
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, c2.ID)
	assert.True(t, c2.HasParticipant("x"))
	assert.True(t, c2.HasParticipant("y_z"))
}
