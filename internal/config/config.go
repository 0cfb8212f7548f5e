// Package config loads client configuration from schegl.yaml and the
// SCHEGL_* environment, with environment taking precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the offline client needs at startup.
type Config struct {
	// ServerURL is the base URL of the field-service API.
	ServerURL string `mapstructure:"server_url"`

	// WebSocketURL is the connectivity push endpoint. Empty disables the
	// push source; the monitor falls back to probe polling.
	WebSocketURL string `mapstructure:"websocket_url"`

	// Token is the bearer token for API calls.
	Token string `mapstructure:"token"`

	// DataDir roots the durable store (database and offline bundles).
	DataDir string `mapstructure:"data_dir"`

	// CallTimeout bounds each individual API call.
	CallTimeout time.Duration `mapstructure:"call_timeout"`

	// Debounce is how long a connection must hold before it counts as
	// stable and triggers a sync.
	Debounce time.Duration `mapstructure:"debounce"`

	// CacheRetention is how long cached datasets stay servable.
	CacheRetention time.Duration `mapstructure:"cache_retention"`

	// SyncInterval is the daemon's periodic sync cadence.
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	// LogFile enables rotating file logging for the daemon when set.
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		DataDir:        ".schegl",
		CallTimeout:    10 * time.Second,
		Debounce:       3 * time.Second,
		CacheRetention: 7 * 24 * time.Hour,
		SyncInterval:   5 * time.Minute,
		LogMaxSizeMB:   10,
		LogMaxBackups:  3,
	}
}

// Load reads schegl.yaml and the environment. path may name a specific
// config file; empty searches the working directory and ~/.schegl. A
// missing config file is fine, the defaults and environment carry.
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("data_dir", defaults.DataDir)
	v.SetDefault("call_timeout", defaults.CallTimeout)
	v.SetDefault("debounce", defaults.Debounce)
	v.SetDefault("cache_retention", defaults.CacheRetention)
	v.SetDefault("sync_interval", defaults.SyncInterval)
	v.SetDefault("log_max_size_mb", defaults.LogMaxSizeMB)
	v.SetDefault("log_max_backups", defaults.LogMaxBackups)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("schegl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.schegl")
	}

	v.SetEnvPrefix("SCHEGL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees keys viper already knows about, so keys without
	// defaults must be bound explicitly for the environment to reach them.
	for _, key := range []string{"server_url", "websocket_url", "token", "log_file"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the fields required for talking to the service.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required (set it in schegl.yaml or SCHEGL_SERVER_URL)")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive")
	}
	return nil
}
