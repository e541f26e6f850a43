package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "places:\n  api_key: file-key\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.Places.APIKey)
	assert.Equal(t, 10*time.Second, cfg.Places.Timeout)
	assert.Equal(t, 400, cfg.Places.PhotoMaxWidth)
	assert.Equal(t, 15, cfg.Map.DetailZoom)
	assert.Equal(t, 12, cfg.Map.DefaultZoom)
	assert.Equal(t, CenterConfig{Lat: 4.711, Lng: -74.072}, cfg.Map.DefaultCenter)
	assert.Equal(t, MaxHistoryCapacity, cfg.History.Capacity)
	assert.Equal(t, 10*time.Second, cfg.Session.LookupTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PLACES_API_KEY", "env-key")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LOG_LEVEL", "debug")
	path := writeConfig(t, "places:\n  api_key: file-key\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Places.APIKey)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate(), "api key is required")

	cfg.Places.APIKey = "k"
	require.NoError(t, cfg.Validate())

	cfg.History.Capacity = MaxHistoryCapacity + 1
	require.Error(t, cfg.Validate())
	cfg.History.Capacity = MaxHistoryCapacity

	cfg.Auth.Enabled = true
	require.Error(t, cfg.Validate())
	cfg.Auth.SigningKey = "secret"
	require.NoError(t, cfg.Validate())

	cfg.Cache.Enabled = true
	cfg.Cache.RedisAddr = ""
	require.Error(t, cfg.Validate())
}

func TestLoad_ShippedConfigParses(t *testing.T) {
	t.Setenv("PLACES_API_KEY", "k")
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.Cache.Enabled)
}
