package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/qleaf/marketmux/internal/core"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Log       LogConfig                 `mapstructure:"log"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Fallback  FallbackConfig            `mapstructure:"fallback"`
	Reconcile ReconcileConfig           `mapstructure:"reconcile"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ProviderConfig configures one vendor adapter. Priority is a strict total
// order across enabled providers; lower value is tried first.
type ProviderConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Priority    int           `mapstructure:"priority"`
	Token       string        `mapstructure:"token"`
	Timeout     time.Duration `mapstructure:"timeout"`
	ProbeWindow int           `mapstructure:"probe_window"`
}

// FallbackConfig controls the orchestrator.
type FallbackConfig struct {
	// TotalTimeout bounds a whole fallback chain walk. Zero disables the
	// chain-level deadline and leaves only per-provider timeouts.
	TotalTimeout time.Duration `mapstructure:"total_timeout"`
}

// ReconcileConfig controls the fundamentals consistency check.
type ReconcileConfig struct {
	Tolerance          float64 `mapstructure:"tolerance"`
	HighConfidence     float64 `mapstructure:"high_confidence"`
	ModerateConfidence float64 `mapstructure:"moderate_confidence"`
}

// Load reads configuration from file
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Providers: map[string]ProviderConfig{
			"tushare":   {Enabled: true, Priority: 1, Timeout: 15 * time.Second, ProbeWindow: 7},
			"eastmoney": {Enabled: true, Priority: 2, Timeout: 10 * time.Second, ProbeWindow: 7},
			"sina":      {Enabled: true, Priority: 3, Timeout: 10 * time.Second, ProbeWindow: 5},
			"tencent":   {Enabled: true, Priority: 4, Timeout: 10 * time.Second, ProbeWindow: 5},
		},
		Fallback: FallbackConfig{
			TotalTimeout: 60 * time.Second,
		},
		Reconcile: ReconcileConfig{
			Tolerance:          0.05,
			HighConfidence:     0.9,
			ModerateConfidence: 0.6,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	// Priorities must form a strict total order among enabled providers.
	seen := make(map[int]string)
	for name, pc := range c.Providers {
		if !pc.Enabled {
			continue
		}
		if other, dup := seen[pc.Priority]; dup {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("providers %s and %s share priority %d", other, name, pc.Priority))
		}
		seen[pc.Priority] = name
		if pc.ProbeWindow < 0 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("provider %s: probe_window cannot be negative", name))
		}
		if pc.Timeout < 0 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("provider %s: timeout cannot be negative", name))
		}
	}

	if c.Reconcile.Tolerance <= 0 || c.Reconcile.Tolerance >= 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("reconcile tolerance must be in (0,1), got %f", c.Reconcile.Tolerance))
	}
	if c.Reconcile.HighConfidence < 0 || c.Reconcile.HighConfidence > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("high_confidence must be in [0,1], got %f", c.Reconcile.HighConfidence))
	}
	if c.Reconcile.ModerateConfidence < 0 || c.Reconcile.ModerateConfidence > c.Reconcile.HighConfidence {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("moderate_confidence must be in [0,high], got %f", c.Reconcile.ModerateConfidence))
	}

	if c.Fallback.TotalTimeout < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("fallback total_timeout cannot be negative"))
	}

	return nil
}
