package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 15*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "sandbox", cfg.GatewayDriver)
	assert.True(t, cfg.DevTokens)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store_driver: memory
session_ttl: 5m
currency: GHS
workers: 8
clients:
  - id: station-7
    role: station
    secret_hash: "$2a$10$abcdefghijklmnopqrstuu"
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SESSION_TTL", "90s")
	t.Setenv("WORKERS", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, "GHS", cfg.Currency)
	assert.Equal(t, 90*time.Second, cfg.SessionTTL)
	assert.Equal(t, 2, cfg.Workers)
	require.Len(t, cfg.Clients, 1)
	assert.Equal(t, "station", cfg.Clients[0].Role)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"SESSION_TTL":    "soon",
		"WORKERS":        "many",
		"STORE_DRIVER":   "sqlite",
		"GATEWAY_DRIVER": "carrier-pigeon",
		"APP_MIGRATE":    "perhaps",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
