package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlacklistRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis integration tests")
	}
	ctx := context.Background()
	rdb, err := NewClient(ctx, addr, os.Getenv("TEST_REDIS_PASSWORD"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	repo := NewBlacklistRepository(rdb)
	openid := "openid-" + uuid.NewString()

	banned, err := repo.IsBlacklisted(ctx, openid)
	require.NoError(t, err)
	assert.False(t, banned)

	require.NoError(t, repo.Add(ctx, openid, time.Minute))
	banned, err = repo.IsBlacklisted(ctx, openid)
	require.NoError(t, err)
	assert.True(t, banned)

	ttl, err := rdb.TTL(ctx, blacklistKey(openid)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	require.NoError(t, rdb.Del(ctx, blacklistKey(openid)).Err())
}

func TestBlacklistKey(t *testing.T) {
	assert.Equal(t, "blacklist:abc", blacklistKey("abc"))
}
