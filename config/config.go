// Package config loads launchmate settings from layered YAML files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendKV     = "kv"
	BackendMongo  = "mongo"
	BackendSQLite = "sqlite"
)

// Backends lists the accepted store.backend values.
var Backends = []string{BackendMemory, BackendKV, BackendMongo, BackendSQLite}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete launchmate configuration.
type Config struct {
	// Identity is the user whose projects the CLI works on.
	Identity string `yaml:"identity"`

	Store     StoreConfig     `yaml:"store"`
	NATS      NATSConfig      `yaml:"nats"`
	Mongo     MongoConfig     `yaml:"mongo"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Backfill  BackfillConfig  `yaml:"backfill"`
	Phases    PhasesConfig    `yaml:"phases"`
	Models    ModelsConfig    `yaml:"models"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
}

// StoreConfig selects the remote store.
type StoreConfig struct {
	// Backend is one of memory, kv, mongo, sqlite.
	Backend string `yaml:"backend"`
	// Bucket is the JetStream KV bucket for the kv backend.
	Bucket string `yaml:"bucket"`
	// History is the number of revisions the KV bucket keeps.
	History int `yaml:"history"`
}

// NATSConfig configures the NATS connection used by the kv backend.
type NATSConfig struct {
	// URL of an external server. It wins over Embedded.
	URL string `yaml:"url"`
	// Embedded starts an in-process server with JetStream when URL is empty.
	Embedded bool `yaml:"embedded"`
	// StoreDir holds embedded JetStream data. Empty means a temp dir.
	StoreDir string `yaml:"store_dir"`
}

// MongoConfig configures the mongo backend.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// SQLiteConfig configures the sqlite backend.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// LifecycleConfig tunes the transition engine.
type LifecycleConfig struct {
	// PushTimeout bounds each background remote write.
	PushTimeout time.Duration `yaml:"push_timeout"`
}

// BackfillConfig tunes the insight backfill.
type BackfillConfig struct {
	MinInsights int           `yaml:"min_insights"`
	Capability  string        `yaml:"capability"`
	Timeout     time.Duration `yaml:"timeout"`
	// MaxAttempts is the number of calls per endpoint for one generation.
	// Failures fall through to the endpoint chain and then to the sentinel.
	MaxAttempts int `yaml:"max_attempts"`
}

// PhasesConfig points at a phase template file. Empty uses the built-in one.
type PhasesConfig struct {
	File string `yaml:"file"`
}

// ModelsConfig points at a model registry JSON file. Empty uses the
// built-in registry.
type ModelsConfig struct {
	Path     string `yaml:"path"`
	Location string `yaml:"location"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: BackendMemory,
			Bucket:  "LAUNCHMATE_PROJECTS",
			History: 5,
		},
		NATS: NATSConfig{
			Embedded: true,
		},
		Mongo: MongoConfig{
			Database:   "launchmate",
			Collection: "projects",
		},
		SQLite: SQLiteConfig{
			Path: "launchmate.db",
		},
		Lifecycle: LifecycleConfig{
			PushTimeout: 30 * time.Second,
		},
		Backfill: BackfillConfig{
			MinInsights: 3,
			Capability:  "insights",
			Timeout:     2 * time.Minute,
			MaxAttempts: 1,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for the selected backend.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendKV:
		if c.Store.Bucket == "" {
			fail("store.bucket is required for the kv backend")
		}
		if !c.NATS.Embedded && c.NATS.URL == "" {
			fail("nats.url is required when nats.embedded is false")
		}
	case BackendMongo:
		if c.Mongo.URI == "" {
			fail("mongo.uri is required for the mongo backend")
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			fail("sqlite.path is required for the sqlite backend")
		}
	default:
		fail("store.backend %q is not one of %s", c.Store.Backend, strings.Join(Backends, ", "))
	}

	if c.Backfill.MinInsights < 1 {
		fail("backfill.min_insights must be at least 1")
	}
	if c.Backfill.MaxAttempts < 1 {
		fail("backfill.max_attempts must be at least 1")
	}
	if c.Backfill.Timeout < 0 || c.Lifecycle.PushTimeout < 0 {
		fail("timeouts must not be negative")
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		fail("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		fail("log.format %q is not text or json", c.Log.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// LoadFromFile reads path on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.overlay(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlay decodes path onto c. Keys absent from the file keep their value.
func (c *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// SaveToFile writes the configuration as YAML, creating parent directories.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
