package config

import (
	"strings"
	"time"
)

// ApplyDefaults fills in default values for any unset configuration fields.
//
// Called after unmarshaling and before validation, so a completely empty
// configuration (no file, no environment) still produces a runnable local
// setup: memory metadata store, local development environment name.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyMetadataDefaults(&cfg.Metadata)
	applyObjectStoreDefaults(&cfg.ObjectStore)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 20
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 40
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Environment == "" {
		cfg.Environment = "dev"
	}
	if cfg.URLTTL == 0 {
		cfg.URLTTL = time.Hour
	}
}

func applyMetadataDefaults(cfg *MetadataConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Type == "badger" {
		if cfg.Badger == nil {
			cfg.Badger = make(map[string]any)
		}
		if _, ok := cfg.Badger["db_path"]; !ok {
			cfg.Badger["db_path"] = "data/metadata"
		}
	}
}

func applyObjectStoreDefaults(cfg *ObjectStoreConfig) {
	if cfg.Bucket == "" {
		cfg.Bucket = "stashd"
	}
}

// GetDefaultConfig returns a configuration with every default applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
