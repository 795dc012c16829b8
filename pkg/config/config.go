// Package config loads and validates the escrowd process configuration.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"os"
)

// Config holds all configuration for the escrow orchestrator process.
type Config struct {
	// Ledger configuration
	Network      string // "Main" or "Test"
	ChainAPIURL  string
	ChainAPIKey  string

	// Server configuration
	ListenAddr  string
	MetricsAddr string
	HealthAddr  string

	// Database configuration
	DatabaseURL         string
	DatabaseMaxConns    int
	DatabaseMinConns    int
	DatabaseMaxIdleTime int // seconds
	DatabaseMaxLifetime int // seconds
	DatabaseRequired    bool

	// Wallet seed-at-rest encryption
	EncryptionKey string // passphrase fed to Argon2id; Validate requires at least 32 characters

	// Scheduler / engine tunables
	SchedulerTickMs     int64
	ChainMonitorTickMs  int64
	TxStuckMs           int64
	MaxBatchSize        int
	TimeBufferMs        int64

	// Wallet lease reaper tunables
	MaxLeaseAge       time.Duration
	StuckTxTimeout    time.Duration
	WalletReaperEvery time.Duration

	// Cooldown pad added to the acting party's new cooldown instant
	CooldownPadMs int64

	// Per-network validity slot buffer for transaction windows
	ValiditySlotBuffer int64

	// Optional webhook Observer subscriber (4.10); empty disables it.
	WebhookURL string

	// Ambient
	LogLevel string

	// Optional YAML overlay path; when set, values there override the
	// environment-derived defaults above before Validate runs.
	ConfigFile string
}

// Load reads configuration from environment variables. Call Validate or
// ValidateForDevelopment afterwards.
func Load() (*Config, error) {
	cfg := &Config{
		Network:     getEnv("NETWORK", "Test"),
		ChainAPIURL: getEnv("CHAIN_API_URL", ""),
		ChainAPIKey: getEnv("CHAIN_API_KEY", ""),

		ListenAddr:  getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("API_PORT", "8080"),
		MetricsAddr: getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("METRICS_PORT", "9090"),
		HealthAddr:  getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("HEALTH_PORT", "8081"),

		DatabaseURL:         getEnv("DB_URL", ""),
		DatabaseMaxConns:    getEnvInt("DATABASE_MAX_CONNS", 25),
		DatabaseMinConns:    getEnvInt("DATABASE_MIN_CONNS", 5),
		DatabaseMaxIdleTime: getEnvInt("DATABASE_MAX_IDLE_TIME", 300),
		DatabaseMaxLifetime: getEnvInt("DATABASE_MAX_LIFETIME", 3600),
		DatabaseRequired:    getEnvBool("DATABASE_REQUIRED", true),

		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		SchedulerTickMs:    getEnvInt64("SCHEDULER_TICK_MS", 30_000),
		ChainMonitorTickMs: getEnvInt64("CHAIN_MONITOR_TICK_MS", 30_000),
		TxStuckMs:          getEnvInt64("TX_STUCK_MS", 1_800_000),
		MaxBatchSize:       getEnvInt("MAX_BATCH_SIZE", 50),
		TimeBufferMs:       getEnvInt64("TIME_BUFFER_MS", 180_000),

		MaxLeaseAge:       getEnvDuration("MAX_LEASE_AGE", 30*time.Minute),
		StuckTxTimeout:    getEnvDuration("STUCK_TX_TIMEOUT", 30*time.Minute),
		WalletReaperEvery: getEnvDuration("WALLET_REAPER_EVERY", 5*time.Minute),

		CooldownPadMs:      getEnvInt64("COOLDOWN_PAD_MS", 20*60*1000),
		ValiditySlotBuffer: getEnvInt64("VALIDITY_SLOT_BUFFER", 200),

		WebhookURL: getEnv("WEBHOOK_URL", ""),

		LogLevel:   getEnv("LOG_LEVEL", "info"),
		ConfigFile: getEnv("CONFIG_FILE", ""),
	}

	if cfg.ConfigFile != "" {
		if err := cfg.applyConfigFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and secure.
// Call this in production; it refuses insecure or missing settings.
func (c *Config) Validate() error {
	var errs []string

	if c.Network != "Main" && c.Network != "Test" {
		errs = append(errs, "NETWORK must be \"Main\" or \"Test\"")
	}
	if c.ChainAPIURL == "" {
		errs = append(errs, "CHAIN_API_URL is required but not set")
	}
	if c.ChainAPIKey == "" {
		errs = append(errs, "CHAIN_API_KEY is required but not set")
	}
	if c.DatabaseURL == "" {
		errs = append(errs, "DB_URL is required but not set")
	} else if strings.Contains(c.DatabaseURL, "sslmode=disable") {
		errs = append(errs, "DB_URL must use sslmode=require for production security")
	}
	if c.EncryptionKey == "" {
		errs = append(errs, "ENCRYPTION_KEY is required but not set")
	} else if len(c.EncryptionKey) < 32 {
		errs = append(errs, "ENCRYPTION_KEY must be at least 32 characters")
	}
	if c.CooldownPadMs <= 0 {
		errs = append(errs, "COOLDOWN_PAD_MS must be positive; it must exceed the worst-case finality horizon")
	}
	if c.MaxBatchSize <= 0 {
		errs = append(errs, "MAX_BATCH_SIZE must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateForDevelopment performs relaxed validation suitable for local
// development against a simulated ChainClient.
func (c *Config) ValidateForDevelopment() error {
	var errs []string

	if c.DatabaseURL == "" {
		errs = append(errs, "DB_URL is required")
	}
	if c.EncryptionKey == "" {
		errs = append(errs, "ENCRYPTION_KEY is required even in development (wallet seeds are always encrypted at rest)")
	}

	if len(errs) > 0 {
		return fmt.Errorf("development configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
