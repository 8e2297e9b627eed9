package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the entire daemon configuration.
type Config struct {
	Repository RepositoryConfig `mapstructure:"repository"`
	Mirrors    []MirrorConfig   `mapstructure:"mirrors"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Store      StoreConfig      `mapstructure:"store"`
	Database   DatabaseConfig   `mapstructure:"database"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// RepositoryConfig points at the package repository's metadata endpoint.
type RepositoryConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// MirrorConfig describes one blob mirror.
type MirrorConfig struct {
	BlobBaseURL string `mapstructure:"blob_base_url"`
}

// FetchConfig contains fetch engine settings.
type FetchConfig struct {
	MaxConcurrency int    `mapstructure:"max_concurrency"`
	MaxAttempts    int    `mapstructure:"max_attempts"`
	RetryDelay     string `mapstructure:"retry_delay"`
}

// StoreConfig contains local content store settings.
type StoreConfig struct {
	RootDir string `mapstructure:"root_dir"`
}

// DatabaseConfig contains telemetry database settings.
type DatabaseConfig struct {
	Path          string `mapstructure:"path"`
	FlushInterval string `mapstructure:"flush_interval"`
}

// HTTPConfig contains admin HTTP server configuration.
type HTTPConfig struct {
	BindAddr     string `mapstructure:"bind_addr"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	IdleTimeout  string `mapstructure:"idle_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetDefault("store.root_dir", "/var/lib/pkgfetch")
	viper.SetDefault("fetch.max_concurrency", 5)
	viper.SetDefault("fetch.max_attempts", 4)
	viper.SetDefault("fetch.retry_delay", "500ms")
	viper.SetDefault("database.path", "")
	viper.SetDefault("database.flush_interval", "1m")
	viper.SetDefault("http.bind_addr", "127.0.0.1:8086")
	viper.SetDefault("http.read_timeout", "30s")
	viper.SetDefault("http.write_timeout", "30s")
	viper.SetDefault("http.idle_timeout", "60s")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Repository.BaseURL == "" {
		return fmt.Errorf("repository.base_url is required")
	}
	if len(c.Mirrors) == 0 {
		return fmt.Errorf("at least one mirror is required")
	}
	for i, m := range c.Mirrors {
		if m.BlobBaseURL == "" {
			return fmt.Errorf("mirrors[%d].blob_base_url is required", i)
		}
	}

	if c.Fetch.MaxConcurrency < 1 || c.Fetch.MaxConcurrency > 64 {
		return fmt.Errorf("fetch.max_concurrency must be between 1 and 64")
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("fetch.max_attempts must be positive")
	}
	if _, err := time.ParseDuration(c.Fetch.RetryDelay); err != nil {
		return fmt.Errorf("invalid fetch.retry_delay: %w", err)
	}
	if _, err := time.ParseDuration(c.Database.FlushInterval); err != nil {
		return fmt.Errorf("invalid database.flush_interval: %w", err)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}
	return nil
}

// GetRetryDelay returns the retry delay as time.Duration.
func (c *FetchConfig) GetRetryDelay() time.Duration {
	d, _ := time.ParseDuration(c.RetryDelay)
	if d == 0 {
		return 500 * time.Millisecond
	}
	return d
}

// GetFlushInterval returns the stats flush interval as time.Duration.
func (c *DatabaseConfig) GetFlushInterval() time.Duration {
	d, _ := time.ParseDuration(c.FlushInterval)
	if d == 0 {
		return time.Minute
	}
	return d
}

// GetReadTimeout returns the read timeout as time.Duration.
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ReadTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetWriteTimeout returns the write timeout as time.Duration.
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(c.WriteTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetIdleTimeout returns the idle timeout as time.Duration.
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	d, _ := time.ParseDuration(c.IdleTimeout)
	if d == 0 {
		return 60 * time.Second
	}
	return d
}
