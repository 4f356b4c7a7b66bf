package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Store.Backend != BackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.Store.Backend)
	}
	if cfg.Backfill.MinInsights != 3 {
		t.Errorf("expected min_insights 3, got %d", cfg.Backfill.MinInsights)
	}
	if !cfg.NATS.Embedded {
		t.Error("expected embedded NATS by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid default config", func(c *Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Store.Backend = "postgres" }, "store.backend"},
		{"mongo without uri", func(c *Config) { c.Store.Backend = BackendMongo }, "mongo.uri"},
		{"mongo with uri", func(c *Config) {
			c.Store.Backend = BackendMongo
			c.Mongo.URI = "mongodb://localhost:27017"
		}, ""},
		{"sqlite without path", func(c *Config) {
			c.Store.Backend = BackendSQLite
			c.SQLite.Path = ""
		}, "sqlite.path"},
		{"kv without server", func(c *Config) {
			c.Store.Backend = BackendKV
			c.NATS.Embedded = false
		}, "nats.url"},
		{"kv with url", func(c *Config) {
			c.Store.Backend = BackendKV
			c.NATS.Embedded = false
			c.NATS.URL = "nats://localhost:4222"
		}, ""},
		{"min insights zero", func(c *Config) { c.Backfill.MinInsights = 0 }, "min_insights"},
		{"max attempts zero", func(c *Config) { c.Backfill.MaxAttempts = 0 }, "max_attempts"},
		{"negative timeout", func(c *Config) { c.Backfill.Timeout = -time.Second }, "timeouts"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launchmate.yaml")
	content := `
store:
  backend: sqlite
sqlite:
  path: /var/lib/launchmate.db
backfill:
  timeout: 45s
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Store.Backend != BackendSQLite || cfg.SQLite.Path != "/var/lib/launchmate.db" {
		t.Errorf("unexpected store settings: %+v %+v", cfg.Store, cfg.SQLite)
	}
	if cfg.Backfill.Timeout != 45*time.Second {
		t.Errorf("expected 45s timeout, got %v", cfg.Backfill.Timeout)
	}
	if cfg.Backfill.MinInsights != 3 {
		t.Errorf("absent keys should keep defaults, got min_insights %d", cfg.Backfill.MinInsights)
	}

	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSaveToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Identity = "founder@example.com"

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if loaded.Identity != cfg.Identity || loaded.Lifecycle.PushTimeout != cfg.Lifecycle.PushTimeout {
		t.Errorf("round trip lost settings: %+v", loaded)
	}
}
