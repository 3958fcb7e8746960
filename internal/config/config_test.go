package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 15*time.Second, cfg.Match.GracePeriod)
	assert.Equal(t, 5*time.Second, cfg.Match.ProblemFetchTimeout)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 20.0, cfg.RateLimit.EventsPerSecond)
	assert.Equal(t, 40, cfg.RateLimit.Burst)
	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.HTTP.Port = -1 }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"zero grace period", func(c *Config) { c.Match.GracePeriod = 0 }},
		{"read timeout below ping", func(c *Config) { c.WebSocket.ReadTimeout = c.WebSocket.PingInterval }},
		{"redis enabled without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }},
		{"zero burst", func(c *Config) { c.RateLimit.Burst = 0 }},
		{"missing match section", func(c *Config) { c.Match = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("CODEDUEL_HTTP_PORT", "9090")
	t.Setenv("CODEDUEL_MATCH_GRACE_PERIOD", "20s")
	t.Setenv("CODEDUEL_REDIS_ENABLED", "true")
	t.Setenv("CODEDUEL_REDIS_ADDR", "redis:6379")
	t.Setenv("CODEDUEL_LOG_LEVEL", "debug")
	t.Setenv("CODEDUEL_RATE_LIMIT_BURST", "5")

	cfg := LoadFromEnv()

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 20*time.Second, cfg.Match.GracePeriod)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
}

func TestConfig_LoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codeduel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 7070
match:
  grace_period: 30s
  problem_source_url: http://problems.internal/all
log:
  pretty: true
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.Match.GracePeriod)
	assert.Equal(t, "http://problems.internal/all", cfg.Match.ProblemSourceURL)
	assert.True(t, cfg.Log.Pretty)
	assert.Equal(t, 100, cfg.WebSocket.BufferSize)
}

func TestConfig_LoadFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codeduel.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"database": {"path": "/tmp/ledger.db"}, "rate_limit": {"events_per_second": 5}}`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/ledger.db", cfg.Database.Path)
	assert.Equal(t, 5.0, cfg.RateLimit.EventsPerSecond)
}

func TestConfig_LoadFromFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  port: 70000\n"), 0o644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_LoadConfigWithPrecedence(t *testing.T) {
	t.Setenv("CODEDUEL_HTTP_PORT", "9090")

	cfg := LoadConfigWithPrecedence("")
	assert.Equal(t, 9090, cfg.HTTP.Port)

	path := filepath.Join(t.TempDir(), "codeduel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  port: 7070\n"), 0o644))

	cfg = LoadConfigWithPrecedence(path)
	assert.Equal(t, 7070, cfg.HTTP.Port)

	cfg = LoadConfigWithPrecedence(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, 9090, cfg.HTTP.Port)
}
