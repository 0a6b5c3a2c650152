package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Signal modes select the approval signal source.
const (
	SignalSimulated = "simulated"
	SignalLive      = "live"
	SignalNone      = "none"
)

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	Environment string `mapstructure:"environment"`
}

// PaymentsConfig holds the upstream payment service settings.
type PaymentsConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
}

// Config holds all runtime configuration for a treasury view.
// Values are populated from .treasury.yaml, TREASURY_* env vars, and CLI flags.
type Config struct {
	DataDir         string         `mapstructure:"data_dir"`
	Backend         string         `mapstructure:"backend"`
	SQLitePath      string         `mapstructure:"sqlite_path"`
	PollInterval    time.Duration  `mapstructure:"poll_interval"`
	SignalMode      string         `mapstructure:"signal_mode"`
	ApprovalDelay   time.Duration  `mapstructure:"approval_delay"`
	CompletionDelay time.Duration  `mapstructure:"completion_delay"`
	PolicyFile      string         `mapstructure:"policy_file"`
	TelemetryFile   string         `mapstructure:"telemetry_file"`
	LogFormat       string         `mapstructure:"log_format"`
	Verbose         bool           `mapstructure:"verbose"`
	Server          ServerConfig   `mapstructure:"server"`
	Payments        PaymentsConfig `mapstructure:"payments"`
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags, and validates the
// result.
func Load() (Config, error) {
	viper.SetDefault("data_dir", ".treasury")
	viper.SetDefault("backend", BackendFile)
	viper.SetDefault("sqlite_path", "")
	viper.SetDefault("poll_interval", 250*time.Millisecond)
	viper.SetDefault("signal_mode", SignalSimulated)
	viper.SetDefault("approval_delay", 2*time.Second)
	viper.SetDefault("completion_delay", 3*time.Second)
	viper.SetDefault("policy_file", "")
	viper.SetDefault("telemetry_file", "")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("verbose", false)
	viper.SetDefault("server.addr", "127.0.0.1:3000")
	viper.SetDefault("server.environment", "development")
	viper.SetDefault("payments.base_url", "https://api.minepi.com/v2")
	viper.SetDefault("payments.api_key", "")
	viper.SetDefault("payments.timeout", 10*time.Second)
	viper.SetDefault("payments.rate_limit", 10.0)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = filepath.Join(cfg.DataDir, "treasury.db")
	}
	if cfg.TelemetryFile == "" {
		cfg.TelemetryFile = filepath.Join(cfg.DataDir, "events.jsonl")
	}
	if cfg.Payments.APIKey == "" {
		cfg.Payments.APIKey = os.Getenv("PI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	switch c.SignalMode {
	case SignalSimulated, SignalLive, SignalNone:
	default:
		return fmt.Errorf("config: unknown signal_mode %q", c.SignalMode)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log_format %q", c.LogFormat)
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is empty")
	}
	for name, d := range map[string]time.Duration{
		"poll_interval":    c.PollInterval,
		"approval_delay":   c.ApprovalDelay,
		"completion_delay": c.CompletionDelay,
		"payments.timeout": c.Payments.Timeout,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", name, d)
		}
	}
	return nil
}
