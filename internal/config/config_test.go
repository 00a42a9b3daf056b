package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  timeout_seconds: 30
security:
  token: super-secret
  max_timestamp_age_seconds: 120
  rate_limit_per_minute: 50
  allowed_ips: ["10.0.0.0/8", "192.168.1.5"]
db:
  dsn: postgres://localhost/webhooks
replay:
  default_limit: 25
  events_per_second: 2
monitor:
  buffer_size: 500
  error_rate_baseline: 0.2
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "super-secret", cfg.Security.Token)
	require.Equal(t, 120, cfg.Security.MaxTimestampAgeSec)
	require.Equal(t, 50, cfg.Security.RateLimitPerMinute)
	require.Equal(t, []string{"10.0.0.0/8", "192.168.1.5"}, cfg.Security.AllowedIPs)
	require.Equal(t, 25, cfg.Replay.DefaultLimit)
	require.Equal(t, 500, cfg.Monitor.BufferSize)
	require.False(t, cfg.Logging.Development)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("security:\n  token: tok\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 300, cfg.Security.MaxTimestampAgeSec)
	require.Equal(t, 100, cfg.Security.RateLimitPerMinute)
	require.Equal(t, 10, cfg.Replay.DefaultLimit)
	require.Equal(t, 1000, cfg.Monitor.BufferSize)
	require.Equal(t, 5*time.Minute, cfg.Security.TimestampWindow())
	require.Equal(t, 10*time.Minute, cfg.Security.ReplayCacheTTL())
}

func TestValidateRejectsMissingToken(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "security.token")
}

func TestReplayCacheTTLOverride(t *testing.T) {
	t.Parallel()

	sec := SecurityConfig{MaxTimestampAgeSec: 300, ReplayCacheTTLSec: 900}
	require.Equal(t, 15*time.Minute, sec.ReplayCacheTTL())
}
