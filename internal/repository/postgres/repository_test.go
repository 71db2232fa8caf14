package postgres

import (
	"os"
	"testing"

	"github.com/Congdongdong03/wx-help-sub000/internal/repository/storetest"
	"github.com/stretchr/testify/require"
)

func TestStoreContract(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set TEST_POSTGRES_DSN to run postgres integration tests")
	}
	require.NoError(t, RunMigrations(dsn))

	db, err := NewDB(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	storetest.Run(t, NewConversationRepository(db), NewMessageRepository(db))
}
