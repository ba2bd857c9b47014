package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration, loaded from an optional YAML
// file and POLLWATCH_* environment variables.
type Config struct {
	ServerPort      string        `mapstructure:"server_port"`
	StoragePath     string        `mapstructure:"storage_path"`
	LogLevel        string        `mapstructure:"log_level"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
	VerifyURL       string        `mapstructure:"verify_url"`
	VerifyTimeout   time.Duration `mapstructure:"verify_timeout"`
	StaticKeys      []string      `mapstructure:"static_keys"`
	Workers         int           `mapstructure:"workers"`
	MetricsEnabled  bool          `mapstructure:"metrics_enabled"`
	RetentionPeriod time.Duration `mapstructure:"retention_period"`
	BlockDuration   time.Duration `mapstructure:"block_duration"`
}

// Load reads configuration from path (optional) with sane defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server_port", "8080")
	v.SetDefault("storage_path", "data")
	v.SetDefault("log_level", "info")
	v.SetDefault("probe_timeout", 30*time.Second)
	v.SetDefault("verify_url", "")
	v.SetDefault("verify_timeout", 10*time.Second)
	v.SetDefault("workers", 8)
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("retention_period", 7*24*time.Hour)
	v.SetDefault("block_duration", 2*time.Hour)

	v.SetEnvPrefix("POLLWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return &cfg, nil
}
