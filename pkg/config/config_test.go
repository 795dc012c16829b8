package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, "NETWORK", "CHAIN_API_URL", "CHAIN_API_KEY", "DB_URL", "ENCRYPTION_KEY")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Test", cfg.Network)
	assert.EqualValues(t, 30_000, cfg.SchedulerTickMs)
	assert.EqualValues(t, 50, cfg.MaxBatchSize)
	assert.EqualValues(t, 20*60*1000, cfg.CooldownPadMs)
}

func TestValidateRejectsMissingRequired(t *testing.T) {
	cfg := &Config{Network: "Main"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHAIN_API_URL")
	assert.Contains(t, err.Error(), "DB_URL")
	assert.Contains(t, err.Error(), "ENCRYPTION_KEY")
}

func TestValidateRejectsInsecureDatabaseURL(t *testing.T) {
	cfg := &Config{
		Network:       "Main",
		ChainAPIURL:   "https://chain.example",
		ChainAPIKey:   "key",
		DatabaseURL:   "postgres://u:p@host/db?sslmode=disable",
		EncryptionKey: "01234567890123456789012345678901",
		CooldownPadMs: 1,
		MaxBatchSize:  1,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sslmode=require")
}

func TestValidateForDevelopmentIsRelaxed(t *testing.T) {
	cfg := &Config{
		DatabaseURL:   "postgres://localhost/dev",
		EncryptionKey: "dev-key-not-for-production-use!",
	}
	assert.NoError(t, cfg.ValidateForDevelopment())
}

func TestValidateForDevelopmentStillRequiresEncryptionKey(t *testing.T) {
	cfg := &Config{DatabaseURL: "postgres://localhost/dev"}
	err := cfg.ValidateForDevelopment()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENCRYPTION_KEY")
}
