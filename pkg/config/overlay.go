package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// fileOverlay mirrors the subset of Config an operator may want to pin in a
// checked-in file rather than environment variables. Every field is a
// pointer so an absent key leaves the environment-derived default alone.
type fileOverlay struct {
	Network     *string `yaml:"network"`
	ChainAPIURL *string `yaml:"chain_api_url"`
	ChainAPIKey *string `yaml:"chain_api_key"`

	ListenAddr  *string `yaml:"listen_addr"`
	MetricsAddr *string `yaml:"metrics_addr"`
	HealthAddr  *string `yaml:"health_addr"`

	DatabaseURL      *string `yaml:"database_url"`
	DatabaseMaxConns *int    `yaml:"database_max_conns"`
	DatabaseMinConns *int    `yaml:"database_min_conns"`

	SchedulerTickMs    *int64 `yaml:"scheduler_tick_ms"`
	ChainMonitorTickMs *int64 `yaml:"chain_monitor_tick_ms"`
	TxStuckMs          *int64 `yaml:"tx_stuck_ms"`
	MaxBatchSize       *int   `yaml:"max_batch_size"`
	TimeBufferMs       *int64 `yaml:"time_buffer_ms"`

	MaxLeaseAge       *yamlDuration `yaml:"max_lease_age"`
	StuckTxTimeout    *yamlDuration `yaml:"stuck_tx_timeout"`
	WalletReaperEvery *yamlDuration `yaml:"wallet_reaper_every"`

	CooldownPadMs      *int64 `yaml:"cooldown_pad_ms"`
	ValiditySlotBuffer *int64 `yaml:"validity_slot_buffer"`

	WebhookURL *string `yaml:"webhook_url"`

	LogLevel *string `yaml:"log_level"`
}

// applyConfigFile reads path as YAML, substitutes ${VAR}/${VAR:-default}
// references against the environment, and overrides any field the file sets
// explicitly. Unset fields keep whatever Load already derived from the
// environment.
func (c *Config) applyConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal([]byte(substituteEnvVars(string(data))), &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	overlay.applyTo(c)
	return nil
}

func (o *fileOverlay) applyTo(c *Config) {
	setString(&c.Network, o.Network)
	setString(&c.ChainAPIURL, o.ChainAPIURL)
	setString(&c.ChainAPIKey, o.ChainAPIKey)
	setString(&c.ListenAddr, o.ListenAddr)
	setString(&c.MetricsAddr, o.MetricsAddr)
	setString(&c.HealthAddr, o.HealthAddr)
	setString(&c.DatabaseURL, o.DatabaseURL)
	setInt(&c.DatabaseMaxConns, o.DatabaseMaxConns)
	setInt(&c.DatabaseMinConns, o.DatabaseMinConns)
	setInt64(&c.SchedulerTickMs, o.SchedulerTickMs)
	setInt64(&c.ChainMonitorTickMs, o.ChainMonitorTickMs)
	setInt64(&c.TxStuckMs, o.TxStuckMs)
	setInt(&c.MaxBatchSize, o.MaxBatchSize)
	setInt64(&c.TimeBufferMs, o.TimeBufferMs)
	if o.MaxLeaseAge != nil {
		c.MaxLeaseAge = o.MaxLeaseAge.Duration()
	}
	if o.StuckTxTimeout != nil {
		c.StuckTxTimeout = o.StuckTxTimeout.Duration()
	}
	if o.WalletReaperEvery != nil {
		c.WalletReaperEvery = o.WalletReaperEvery.Duration()
	}
	setInt64(&c.CooldownPadMs, o.CooldownPadMs)
	setInt64(&c.ValiditySlotBuffer, o.ValiditySlotBuffer)
	setString(&c.WebhookURL, o.WebhookURL)
	setString(&c.LogLevel, o.LogLevel)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setInt64(dst *int64, src *int64) {
	if src != nil {
		*dst = *src
	}
}

// yamlDuration parses duration strings ("30s", "5m") the way the rest of
// this package's getEnvDuration does, rather than accepting raw nanoseconds.
type yamlDuration struct {
	d time.Duration
}

func (y yamlDuration) Duration() time.Duration { return y.d }

func (y *yamlDuration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	y.d = parsed
	return nil
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
