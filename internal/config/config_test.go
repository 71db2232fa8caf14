package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	cfg := FromViper(newViper())
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Equal(t, 256, cfg.SendBuffer)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 10*time.Second, cfg.OpTimeout)
	assert.True(t, cfg.AutoMigrate)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("WS_SWEEP_INTERVAL", "30s")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("AUTO_MIGRATE", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := FromViper(newViper())
	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.False(t, cfg.AutoMigrate)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}
