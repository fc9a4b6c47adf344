// Package config loads, defaults, and validates the Stashd configuration,
// and builds the configured backends through its factory functions.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete Stashd configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (STASHD_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Store Configuration Pattern:
// The metadata and object store sections carry a type selector plus
// type-specific option maps; only the section matching the selected type is
// decoded, by the factory functions in factories.go.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains the HTTP server settings
	Server ServerConfig `mapstructure:"server"`

	// Storage contains the registry-level settings (environment name, URL TTL)
	Storage StorageConfig `mapstructure:"storage"`

	// Metadata specifies the metadata store type and type-specific configuration
	Metadata MetadataConfig `mapstructure:"metadata"`

	// ObjectStore specifies the object storage backend
	ObjectStore ObjectStoreConfig `mapstructure:"objectstore"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output is where log lines go
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains the HTTP server settings.
type ServerConfig struct {
	// ListenAddr is the address the HTTP server binds to
	ListenAddr string `mapstructure:"listen_addr" validate:"required"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// RateLimit throttles requests per owner
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig controls the per-owner request throttle.
type RateLimitConfig struct {
	// Enabled turns the limiter on
	Enabled bool `mapstructure:"enabled"`

	// RequestsPerSecond is the sustained rate allowed per owner
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`

	// Burst is the instantaneous burst allowed per owner
	Burst int `mapstructure:"burst" validate:"gte=0"`
}

// StorageConfig contains the registry-level settings.
type StorageConfig struct {
	// Environment is the first object key segment (e.g. "prod", "staging").
	// It may not contain '/'.
	Environment string `mapstructure:"environment" validate:"required"`

	// URLTTL is the presigned URL lifetime
	URLTTL time.Duration `mapstructure:"url_ttl" validate:"required,gt=0"`
}

// MetadataConfig specifies metadata store configuration.
type MetadataConfig struct {
	// Type specifies which metadata store implementation to use
	// Valid values: badger, memory
	Type string `mapstructure:"type" validate:"required,oneof=badger memory"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`
}

// ObjectStoreConfig specifies the object storage backend.
type ObjectStoreConfig struct {
	// Bucket is the bucket objects live in
	Bucket string `mapstructure:"bucket" validate:"required"`

	// S3 contains the S3 client configuration (region, endpoint, credentials,
	// path style)
	S3 map[string]any `mapstructure:"s3"`
}

// Load reads, defaults, and validates the configuration.
//
// Parameters:
//   - configPath: Path to config file (empty string uses the default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variables and config file search.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the STASHD_ prefix and underscores.
	// Example: STASHD_STORAGE_ENVIRONMENT=prod
	v.SetEnvPrefix("STASHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing file
// is fine; defaults and environment variables take over.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path, following
// XDG_CONFIG_HOME with a ~/.config fallback.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "stashd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "stashd")
}
