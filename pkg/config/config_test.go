package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "two_seat", cfg.Matching.Policy)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 0
	cfg.RateLimiting.WebSocket.Burst = 0

	assert.NoError(t, cfg.Validate())
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "unknown matching policy",
			mutate: func(c *Config) { c.Matching.Policy = "mesh" },
		},
		{
			name:   "pong timeout not above ping interval",
			mutate: func(c *Config) { c.Signal.PongTimeout = c.Signal.PingInterval },
		},
		{
			name:   "empty send buffer",
			mutate: func(c *Config) { c.Signal.SendBuffer = 0 },
		},
		{
			name: "inverted port range",
			mutate: func(c *Config) {
				c.WebRTC.PortRange.Min = 6000
				c.WebRTC.PortRange.Max = 5000
			},
		},
		{
			name:   "ice server without urls",
			mutate: func(c *Config) { c.WebRTC.ICEServers = []ICEServer{{}} },
		},
		{
			name:   "bcrypt cost too low",
			mutate: func(c *Config) { c.Auth.BcryptCost = 2 },
		},
		{
			name:   "user without hash",
			mutate: func(c *Config) { c.Auth.Users = []User{{Username: "alice"}} },
		},
		{
			name: "redis without address",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Address = ""
			},
		},
		{
			name: "ws message rate zero while enabled",
			mutate: func(c *Config) {
				c.RateLimiting.Enabled = true
				c.RateLimiting.WebSocket.MessagesPerSecond = 0
			},
		},
		{
			name: "tracing sample rate out of range",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRate = 2
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  address: ":9000"
matching:
  policy: single_slot
auth:
  users:
    - username: alice
      password_hash: "$2a$10$abcdefghijklmnopqrstuv"
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("DUOCALL_JWT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, "single_slot", cfg.Matching.Policy)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	require.Len(t, cfg.Auth.Users, 1)
	assert.Equal(t, "alice", cfg.Auth.Users[0].Username)
	// Unset keys keep their defaults.
	assert.Equal(t, 64, cfg.Signal.SendBuffer)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
