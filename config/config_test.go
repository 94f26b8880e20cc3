package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesFeedContract(t *testing.T) {
	cfg := Default()
	require.Equal(t, 30*time.Second, cfg.Feed.HeartbeatInterval)
	require.Equal(t, 3*time.Second, cfg.Feed.ReconnectDelay)
	require.Equal(t, 5*time.Second, cfg.Feed.FallbackInterval)
	require.Equal(t, 50, cfg.History.Capacity)
	require.NoError(t, cfg.Validate())
}

func TestLoadOrDefaultMissingFileUsesDefaults(t *testing.T) {
	cfg, loaded, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.False(t, loaded)
	require.Equal(t, Default(), cfg)
}

func TestLoadOrDefaultReadsYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "observatory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
feed:
  wsUrl: ws://example.test/api/evolution/ws
  restBaseUrl: http://example.test
  fallbackInterval: 2s
history:
  capacity: 10
`), 0o600))

	cfg, loaded, err := LoadOrDefault(path)
	require.NoError(t, err)
	require.True(t, loaded)
	require.Equal(t, "ws://example.test/api/evolution/ws", cfg.Feed.WSURL)
	require.Equal(t, 2*time.Second, cfg.Feed.FallbackInterval)
	require.Equal(t, 10, cfg.History.Capacity)
	require.Equal(t, 30*time.Second, cfg.Feed.HeartbeatInterval, "unset fields keep defaults")
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("OBSERVATORY_WS_URL", "ws://env.test/api/evolution/ws")
	t.Setenv("OBSERVATORY_HISTORY_CAPACITY", "25")

	cfg, _, err := LoadOrDefault("")
	require.NoError(t, err)
	require.Equal(t, "ws://env.test/api/evolution/ws", cfg.Feed.WSURL)
	require.Equal(t, 25, cfg.History.Capacity)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Feed.WSURL = " "
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Feed.ReconnectDelay = 0
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.History.Capacity = -1
	require.Error(t, cfg.Validate())
}
