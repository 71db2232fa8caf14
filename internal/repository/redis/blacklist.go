package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const blacklistPrefix = "blacklist:"

// NewClient connects to redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// BlacklistRepository stores revoked openids as expiring keys.
type BlacklistRepository struct {
	RDB goredis.UniversalClient
}

// NewBlacklistRepository creates a new BlacklistRepository.
func NewBlacklistRepository(rdb goredis.UniversalClient) *BlacklistRepository {
	return &BlacklistRepository{RDB: rdb}
}

func blacklistKey(openid string) string {
	return blacklistPrefix + openid
}

// IsBlacklisted reports whether the openid has an active revocation.
func (r *BlacklistRepository) IsBlacklisted(ctx context.Context, openid string) (bool, error) {
	n, err := r.RDB.Exists(ctx, blacklistKey(openid)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Add revokes openid for ttl.
func (r *BlacklistRepository) Add(ctx context.Context, openid string, ttl time.Duration) error {
	return r.RDB.Set(ctx, blacklistKey(openid), "1", ttl).Err()
}
