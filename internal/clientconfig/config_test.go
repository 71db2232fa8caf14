package clientconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  url: ws://chat.example:9000/ws
  api_url: http://chat.example:9000/api
reconnect:
  max_attempts: 3
  delay: 2s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://chat.example:9000/ws", cfg.Server.URL)
	assert.Equal(t, "http://chat.example:9000/api", cfg.Server.APIURL)
	assert.Equal(t, 3, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Reconnect.Delay)
	assert.Equal(t, 5*time.Second, cfg.Reconnect.MaxDelay)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  url: ws://file/ws\n"), 0o600))
	t.Setenv("CHAT_SERVER_URL", "ws://env/ws")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://env/ws", cfg.Server.URL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
