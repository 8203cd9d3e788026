// Package config handles server configuration loading and validation.
//
// # Configuration Sources
//
// Configuration is loaded from (in order of precedence):
// 1. Command-line flags (wired in cmd/server)
// 2. Environment variables (SENTORA_*)
// 3. Config file (YAML)
// 4. Defaults
//
// # Example Config File
//
//	listen_addr: ":8400"
//	database_url: postgres://localhost:5432/sentora?sslmode=disable
//	redis_url: redis://localhost:6379/0
//
//	auth:
//	  api_keys:
//	    - sntr_dev_key
//	    - $2a$10$N9qo8uLOickgx2ZMRZoMye...   # bcrypt hash also accepted
//
//	liveness:
//	  degraded_after: 2m
//	  offline_after: 10m
//	  sweep_interval: 5m
//
//	alerting:
//	  hysteresis: 3m
//	  retention: 168h
//
//	channels:
//	  - kind: email
//	    enabled: true
//	    min_severity: warning
//	    smtp_host: smtp.example.com
//	    smtp_port: 587
//	    smtp_pass: op://sentora/smtp/password
//	    from: alerts@sentora.local
//	    to: [ops@example.com]
//	  - kind: webhook
//	    enabled: true
//	    url: env://SENTORA_WEBHOOK_URL
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sentora/sentora/pkg/types"
)

// Config is the complete server configuration.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	DatabaseURL string `yaml:"database_url"`

	// RedisURL enables the Redis evaluation queue and response cache.
	// When empty, evaluation runs inline with ingestion and caching is off.
	RedisURL string `yaml:"redis_url,omitempty"`

	Auth     AuthConfig     `yaml:"auth"`
	Liveness LivenessConfig `yaml:"liveness"`
	Alerting AlertingConfig `yaml:"alerting"`

	// Thresholds are the global defaults; agents may carry overrides in
	// the registry.
	Thresholds types.Thresholds `yaml:"thresholds"`

	Channels []types.ChannelConfig `yaml:"channels,omitempty"`
}

// AuthConfig configures ingestion authentication.
type AuthConfig struct {
	// APIKeys is the pre-shared key allow-list. Entries starting with $2
	// are treated as bcrypt hashes, anything else as a literal key.
	APIKeys []string `yaml:"api_keys"`
}

// LivenessConfig controls agent liveness classification and the inactivity
// sweep.
type LivenessConfig struct {
	// DegradedAfter is the last-seen age at which an agent is classified
	// degraded.
	DegradedAfter time.Duration `yaml:"degraded_after"`

	// OfflineAfter is the last-seen age at which an agent is classified
	// offline and an AGENT_INACTIVE condition is raised.
	OfflineAfter time.Duration `yaml:"offline_after"`

	// SweepInterval is how often the liveness checker walks the registry.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// AlertingConfig controls alert lifecycle behavior.
type AlertingConfig struct {
	// Hysteresis is how long a condition must stay absent before an open
	// alert auto-resolves. AGENT_INACTIVE ignores this and resolves on the
	// first report-driven cycle.
	Hysteresis time.Duration `yaml:"hysteresis"`

	// Retention is the rolling window of stored metric reports; older
	// reports are eligible for eviction.
	Retention time.Duration `yaml:"retention"`

	// RetentionSweep is how often the retention worker prunes.
	RetentionSweep time.Duration `yaml:"retention_sweep"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		ListenAddr:  ":8400",
		DatabaseURL: "postgres://localhost:5432/sentora?sslmode=disable",
		Liveness: LivenessConfig{
			DegradedAfter: DefaultDegradedAfter,
			OfflineAfter:  DefaultOfflineAfter,
			SweepInterval: DefaultLivenessSweep,
		},
		Alerting: AlertingConfig{
			Hysteresis:     DefaultHysteresis,
			Retention:      DefaultRetention,
			RetentionSweep: DefaultRetentionSweep,
		},
		Thresholds: types.DefaultThresholds(),
	}
}

// Load reads configuration from the given file path, falling back to
// defaults for anything unset. An empty path loads defaults plus
// environment overrides only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config values from SENTORA_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("SENTORA_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("SENTORA_DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("SENTORA_REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("SENTORA_API_KEY"); v != "" {
		c.Auth.APIKeys = append(c.Auth.APIKeys, v)
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth.api_keys must contain at least one key")
	}
	if c.Liveness.DegradedAfter <= 0 || c.Liveness.OfflineAfter <= 0 {
		return fmt.Errorf("liveness windows must be positive")
	}
	if c.Liveness.OfflineAfter <= c.Liveness.DegradedAfter {
		return fmt.Errorf("liveness.offline_after must exceed degraded_after")
	}
	if c.Alerting.Hysteresis < 0 {
		return fmt.Errorf("alerting.hysteresis must not be negative")
	}
	for i, ch := range c.Channels {
		if err := validateChannel(ch); err != nil {
			return fmt.Errorf("channels[%d]: %w", i, err)
		}
	}
	return nil
}

func validateChannel(ch types.ChannelConfig) error {
	switch ch.Kind {
	case types.ChannelEmail:
		if ch.Enabled && (ch.SMTPHost == "" || len(ch.To) == 0) {
			return fmt.Errorf("email channel requires smtp_host and to")
		}
	case types.ChannelWebhook:
		if ch.Enabled && ch.URL == "" {
			return fmt.Errorf("webhook channel requires url")
		}
	case types.ChannelTelegram:
		if ch.Enabled && (ch.BotToken == "" || ch.ChatID == "") {
			return fmt.Errorf("telegram channel requires bot_token and chat_id")
		}
	default:
		return fmt.Errorf("unknown channel kind %q", ch.Kind)
	}
	if ch.MinSeverity != "" && ch.MinSeverity.Level() == 0 {
		return fmt.Errorf("unknown min_severity %q", ch.MinSeverity)
	}
	return nil
}
