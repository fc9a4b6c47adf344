package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("default log level = %q, want INFO", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("default log format = %q, want text", cfg.Logging.Format)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("default listen addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("default shutdown timeout = %v, want 30s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Storage.Environment != "dev" {
		t.Errorf("default environment = %q, want dev", cfg.Storage.Environment)
	}
	if cfg.Storage.URLTTL != time.Hour {
		t.Errorf("default URL TTL = %v, want 1h", cfg.Storage.URLTTL)
	}
	if cfg.Metadata.Type != "memory" {
		t.Errorf("default metadata type = %q, want memory", cfg.Metadata.Type)
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
logging:
  level: debug
  format: json
server:
  listen_addr: ":9090"
storage:
  environment: prod
  url_ttl: 15m
metadata:
  type: badger
  badger:
    db_path: /var/lib/stashd/metadata
objectstore:
  bucket: stashd-prod
  s3:
    region: eu-west-1
    use_path_style: true
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("log level = %q, want DEBUG (normalized)", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("log format = %q, want json", cfg.Logging.Format)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen addr = %q, want :9090", cfg.Server.ListenAddr)
	}
	if cfg.Storage.Environment != "prod" {
		t.Errorf("environment = %q, want prod", cfg.Storage.Environment)
	}
	if cfg.Storage.URLTTL != 15*time.Minute {
		t.Errorf("URL TTL = %v, want 15m", cfg.Storage.URLTTL)
	}
	if cfg.Metadata.Type != "badger" {
		t.Errorf("metadata type = %q, want badger", cfg.Metadata.Type)
	}
	if cfg.ObjectStore.Bucket != "stashd-prod" {
		t.Errorf("bucket = %q, want stashd-prod", cfg.ObjectStore.Bucket)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name: "environment with separator",
			mutate: func(cfg *Config) {
				cfg.Storage.Environment = "pr/od"
			},
		},
		{
			name: "unknown metadata type",
			mutate: func(cfg *Config) {
				cfg.Metadata.Type = "postgres"
			},
		},
		{
			name: "unknown log format",
			mutate: func(cfg *Config) {
				cfg.Logging.Format = "xml"
			},
		},
		{
			name: "badger without db_path",
			mutate: func(cfg *Config) {
				cfg.Metadata.Type = "badger"
				cfg.Metadata.Badger = map[string]any{"db_path": ""}
			},
		},
		{
			name: "rate limit enabled with zero rate",
			mutate: func(cfg *Config) {
				cfg.Server.RateLimit.Enabled = true
				cfg.Server.RateLimit.RequestsPerSecond = 0
				cfg.Server.RateLimit.Burst = 10
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestCreateMetadataStoreUnknownType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metadata.Type = "postgres"

	if _, err := CreateMetadataStore(t.Context(), cfg); err == nil {
		t.Error("expected error for unknown store type")
	}
}

func TestCreateMetadataStoreMemory(t *testing.T) {
	cfg := GetDefaultConfig()

	store, err := CreateMetadataStore(t.Context(), cfg)
	if err != nil {
		t.Fatalf("failed to create memory store: %v", err)
	}
	defer store.Close()

	if err := store.Healthcheck(t.Context()); err != nil {
		t.Errorf("healthcheck failed: %v", err)
	}
}

func TestCreateMetadataStoreBadger(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metadata.Type = "badger"
	cfg.Metadata.Badger = map[string]any{"db_path": t.TempDir()}

	store, err := CreateMetadataStore(t.Context(), cfg)
	if err != nil {
		t.Fatalf("failed to create badger store: %v", err)
	}
	defer store.Close()

	if err := store.Healthcheck(t.Context()); err != nil {
		t.Errorf("healthcheck failed: %v", err)
	}
}
