// Package config provides configuration management using Viper.
// It loads configuration from environment variables, .env files, and config files.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultServerPort          = 8090
	defaultServerHost          = "0.0.0.0"
	defaultReadTimeout         = 30 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultRemoteTimeout       = 10 * time.Second
	defaultCacheTTL            = 5 * time.Minute
	defaultCacheSweepInterval  = time.Minute
	defaultStatusInterval      = 300 * time.Millisecond
	defaultSeekEpsilon         = 0.02
	defaultSeekStableTicks     = 2
	defaultCompletionCooldown  = time.Second
	defaultHandleRetryDelay    = 250 * time.Millisecond
	defaultDatabasePath        = "./data/cadence.db"
	defaultSnapshotPath        = "./data/playback.db"
	defaultLogLevel            = "info"
	defaultLogPretty           = false
	envPrefix                  = "CADENCE"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Remote   RemoteConfig
	Cache    CacheConfig
	Playback PlaybackConfig
	Database DatabaseConfig
	Snapshot SnapshotConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RemoteConfig holds remote content API configuration
type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration
}

// CacheConfig holds request cache configuration
type CacheConfig struct {
	DefaultTTL    time.Duration
	SweepInterval time.Duration
}

// PlaybackConfig holds playback coordination tuning
type PlaybackConfig struct {
	StatusInterval     time.Duration // minimum gap between throttled status emissions
	SeekEpsilon        float64       // progress tolerance for seek settling
	SeekStableTicks    int           // consecutive in-tolerance observations before settle
	CompletionCooldown time.Duration // window during which repeated finish signals are dropped
	HandleRetryDelay   time.Duration // delay before the single retry on a missing handle
}

// DatabaseConfig holds the listening-history database configuration
type DatabaseConfig struct {
	Path string
}

// SnapshotConfig holds the resumable playback snapshot configuration
type SnapshotConfig struct {
	Path string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Pretty bool
}

// Load reads configuration from .env file, config files, environment variables, and defaults
func Load() (*Config, error) {
	// .env files are optional in production and CI where env vars are set directly
	_ = godotenv.Load() // nolint:errcheck // .env file is optional

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/cadence")

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.host", defaultServerHost)
	v.SetDefault("server.readtimeout", defaultReadTimeout)
	v.SetDefault("server.writetimeout", defaultWriteTimeout)

	v.SetDefault("remote.baseurl", "")
	v.SetDefault("remote.timeout", defaultRemoteTimeout)

	v.SetDefault("cache.defaultttl", defaultCacheTTL)
	v.SetDefault("cache.sweepinterval", defaultCacheSweepInterval)

	v.SetDefault("playback.statusinterval", defaultStatusInterval)
	v.SetDefault("playback.seekepsilon", defaultSeekEpsilon)
	v.SetDefault("playback.seekstableticks", defaultSeekStableTicks)
	v.SetDefault("playback.completioncooldown", defaultCompletionCooldown)
	v.SetDefault("playback.handleretrydelay", defaultHandleRetryDelay)

	v.SetDefault("database.path", defaultDatabasePath)
	v.SetDefault("snapshot.path", defaultSnapshotPath)

	v.SetDefault("logging.level", defaultLogLevel)
	v.SetDefault("logging.pretty", defaultLogPretty)
}

// Validate checks that configuration values are valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("invalid read timeout: %v (must be > 0)", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("invalid write timeout: %v (must be > 0)", c.Server.WriteTimeout)
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("invalid remote timeout: %v (must be > 0)", c.Remote.Timeout)
	}

	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("invalid cache TTL: %v (must be > 0)", c.Cache.DefaultTTL)
	}
	if c.Cache.SweepInterval <= 0 {
		return fmt.Errorf("invalid cache sweep interval: %v (must be > 0)", c.Cache.SweepInterval)
	}

	if c.Playback.StatusInterval <= 0 {
		return fmt.Errorf("invalid status interval: %v (must be > 0)", c.Playback.StatusInterval)
	}
	if c.Playback.SeekEpsilon <= 0 || c.Playback.SeekEpsilon >= 1 {
		return fmt.Errorf("invalid seek epsilon: %v (must be in (0, 1))", c.Playback.SeekEpsilon)
	}
	if c.Playback.SeekStableTicks < 1 {
		return fmt.Errorf("invalid seek stable ticks: %d (must be >= 1)", c.Playback.SeekStableTicks)
	}
	if c.Playback.CompletionCooldown <= 0 {
		return fmt.Errorf("invalid completion cooldown: %v (must be > 0)", c.Playback.CompletionCooldown)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.Logging.Level, strings.Join(validLevels, ", "))
	}

	return nil
}

// contains checks if a string slice contains a specific value
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
