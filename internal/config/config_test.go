package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.BrokerHost)
	assert.Equal(t, 1883, cfg.BrokerPort)
	assert.Equal(t, byte(1), cfg.QoS)
	assert.Equal(t, "bots", cfg.TopicPrefix)
	assert.Equal(t, 3, cfg.MaxConcurrent)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, float64(85), cfg.MaxCPUPercent)
	assert.Equal(t, "workers", cfg.WorkerGroup)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, "localhost:1883", cfg.BrokerAddr())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BROKER_HOST", "mqtt.internal")
	t.Setenv("BROKER_PORT", "8883")
	t.Setenv("APP_ENV", "production")
	t.Setenv("WORKER_TIMEOUT", "120s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mqtt.internal:8883", cfg.BrokerAddr())
	assert.True(t, cfg.IsProd())
	assert.Equal(t, float64(120), cfg.WorkerTimeout.Seconds())
}

func TestLoad_FileDefaultsEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte("BROKER_HOST: from-file\nAPI_PORT: \"9000\"\n"), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("BROKER_HOST", "from-env")
	// API_PORT comes only from the file.
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.BrokerHost)
	assert.Equal(t, 9000, cfg.APIPort)
	// The file default leaked into the env; clean up for other tests.
	t.Cleanup(func() { _ = os.Unsetenv("API_PORT") })
}

func TestLoad_BadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":::nope"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	_, err := Load()
	require.Error(t, err)
}
