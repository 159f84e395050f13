// Package common provides shared utilities for Signum
package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// ErrConfigMissing indicates required configuration is absent. Tasks that
// depend on the missing value fail fast instead of processing per item.
var ErrConfigMissing = errors.New("required configuration missing")

// Config holds all configuration for Signum
type Config struct {
	Environment string           `toml:"environment"`
	Database    DatabaseConfig   `toml:"database"`
	Redis       RedisConfig      `toml:"redis"`
	Clients     ClientsConfig    `toml:"clients"`
	Collection  CollectionConfig `toml:"collection"`
	Logging     LoggingConfig    `toml:"logging"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	URL             string `toml:"url"`
	MaxOpenConns    int    `toml:"max_open_conns"`
	MaxIdleConns    int    `toml:"max_idle_conns"`
	ConnMaxLifetime string `toml:"conn_max_lifetime"`
}

// GetConnMaxLifetime parses and returns the connection lifetime duration
func (c *DatabaseConfig) GetConnMaxLifetime() time.Duration {
	d, err := time.ParseDuration(c.ConnMaxLifetime)
	if err != nil {
		return time.Hour
	}
	return d
}

// RedisConfig holds Redis connection configuration.
// An empty URL disables Redis; progress events then use the in-process
// broadcaster instead.
type RedisConfig struct {
	URL string `toml:"url"`
}

// Enabled reports whether a Redis endpoint is configured
func (c *RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	KIS KISConfig `toml:"kis"`
}

// KISConfig holds Korea Investment & Securities API configuration
type KISConfig struct {
	AppKey        string `toml:"app_key"`
	AppSecret     string `toml:"app_secret"`
	AccountNumber string `toml:"account_number"`
	AccountCode   string `toml:"account_code"`
	IsMock        bool   `toml:"is_mock"`
	RateLimit     int    `toml:"rate_limit"`
	Timeout       string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *KISConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Validate checks that credentials required for API access are present
func (c *KISConfig) Validate() error {
	if strings.TrimSpace(c.AppKey) == "" || strings.TrimSpace(c.AppSecret) == "" {
		return fmt.Errorf("kis app_key/app_secret: %w", ErrConfigMissing)
	}
	return nil
}

// CollectionConfig holds history collection defaults
type CollectionConfig struct {
	Days        int    `toml:"days"`
	Mode        string `toml:"mode"` // all, tagged, top
	Limit       int    `toml:"limit"`
	Workers     int    `toml:"workers"`
	AutoCollect bool   `toml:"auto_collect"`
	Interval    string `toml:"interval"`
}

// GetInterval parses and returns the auto-collection check interval
func (c *CollectionConfig) GetInterval() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return time.Hour
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    10,
			ConnMaxLifetime: "1h",
		},
		Clients: ClientsConfig{
			KIS: KISConfig{
				RateLimit: 10,
				Timeout:   "30s",
			},
		},
		Collection: CollectionConfig{
			Days:     100,
			Mode:     "tagged",
			Limit:    0,
			Workers:  5,
			Interval: "1h",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Outputs:    []string{"console", "file"},
			FilePath:   "./logs/signum.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// A .env file in the working directory is read first so container and
// local runs share one configuration surface.
func LoadConfig(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// Apply environment overrides
	applyEnvOverrides(config)

	// Normalize collection settings
	validateCollection(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SIGNUM_ENV"); env != "" {
		config.Environment = env
	}

	if level := os.Getenv("SIGNUM_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		config.Database.URL = url
	}

	if url := os.Getenv("REDIS_URL"); url != "" {
		config.Redis.URL = url
	}

	// KIS credential overrides
	if v := os.Getenv("KIS_APP_KEY"); v != "" {
		config.Clients.KIS.AppKey = v
	}
	if v := os.Getenv("KIS_APP_SECRET"); v != "" {
		config.Clients.KIS.AppSecret = v
	}
	if v := os.Getenv("KIS_ACCOUNT_NUMBER"); v != "" {
		config.Clients.KIS.AccountNumber = v
	}
	if v := os.Getenv("KIS_ACCOUNT_CODE"); v != "" {
		config.Clients.KIS.AccountCode = v
	}
	if v := os.Getenv("KIS_IS_MOCK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Clients.KIS.IsMock = b
		}
	}

	// Collection overrides
	if v := os.Getenv("HISTORY_COLLECTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Collection.Days = n
		}
	}
	if v := os.Getenv("HISTORY_COLLECTION_MODE"); v != "" {
		config.Collection.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("HISTORY_COLLECTION_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Collection.Limit = n
		}
	}
	if v := os.Getenv("HISTORY_COLLECTION_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Collection.Workers = n
		}
	}
	if v := os.Getenv("ENABLE_AUTO_HISTORY_COLLECTION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Collection.AutoCollect = b
		}
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// validateCollection normalizes collection mode and worker bounds.
// Unknown modes fall back to "tagged"; worker counts are clamped to [1, 20].
func validateCollection(config *Config) {
	mode := strings.ToLower(strings.TrimSpace(config.Collection.Mode))
	switch mode {
	case "all", "tagged", "top":
	default:
		mode = "tagged"
	}
	config.Collection.Mode = mode

	if config.Collection.Workers < 1 {
		config.Collection.Workers = 1
	}
	if config.Collection.Workers > 20 {
		config.Collection.Workers = 20
	}
	if config.Collection.Days <= 0 {
		config.Collection.Days = 100
	}
}
