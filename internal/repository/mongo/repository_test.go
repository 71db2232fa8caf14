package mongo

import (
	"context"
	"os"
	"testing"

	"github.com/Congdongdong03/wx-help-sub000/internal/repository/storetest"
	"github.com/stretchr/testify/require"
)

func TestStoreContract(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URL")
	if uri == "" {
		t.Skip("set TEST_MONGO_URL to run mongo integration tests")
	}
	ctx := context.Background()
	db, err := NewDB(ctx, uri, "wxhelp_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Client().Disconnect(ctx) })
	require.NoError(t, EnsureIndexes(ctx, db))

	storetest.Run(t, NewConversationRepository(db), NewMessageRepository(db))
}
