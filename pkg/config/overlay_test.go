package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyConfigFileOverridesSetFields(t *testing.T) {
	t.Setenv("CHAIN_KEY_FROM_ENV", "env-supplied-key")

	dir := t.TempDir()
	path := filepath.Join(dir, "escrowd.yaml")
	contents := `
chain_api_url: https://overlay.example
chain_api_key: ${CHAIN_KEY_FROM_ENV}
scheduler_tick_ms: 15000
max_lease_age: 10m
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg := &Config{
		Network:         "Test",
		ChainAPIURL:     "https://env.example",
		SchedulerTickMs: 30_000,
		MaxLeaseAge:     30 * time.Minute,
	}
	require.NoError(t, cfg.applyConfigFile(path))

	assert.Equal(t, "https://overlay.example", cfg.ChainAPIURL)
	assert.Equal(t, "env-supplied-key", cfg.ChainAPIKey)
	assert.EqualValues(t, 15_000, cfg.SchedulerTickMs)
	assert.Equal(t, 10*time.Minute, cfg.MaxLeaseAge)
	assert.Equal(t, "Test", cfg.Network) // untouched field keeps its value
}

func TestApplyConfigFileRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "escrowd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_lease_age: not-a-duration\n"), 0o600))

	cfg := &Config{}
	err := cfg.applyConfigFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoadAppliesConfigFileWhenSet(t *testing.T) {
	clearEnv(t, "NETWORK", "CHAIN_API_URL", "CHAIN_API_KEY", "DB_URL", "ENCRYPTION_KEY")

	dir := t.TempDir()
	path := filepath.Join(dir, "escrowd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_batch_size: 7\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxBatchSize)
}
