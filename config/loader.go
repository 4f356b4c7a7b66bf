package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	// ProjectConfigFile is looked for in the working directory and its
	// parents.
	ProjectConfigFile = "launchmate.yaml"
	// UserConfigDir is relative to the home directory.
	UserConfigDir = ".config/launchmate"
	// UserConfigFile is the file name inside UserConfigDir.
	UserConfigFile = "config.yaml"
)

// Loader resolves the layered configuration.
type Loader struct {
	logger  *slog.Logger
	getenv  func(string) string
	homeDir func() (string, error)
	workDir func() (string, error)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithEnv replaces os.Getenv.
func WithEnv(getenv func(string) string) LoaderOption {
	return func(l *Loader) { l.getenv = getenv }
}

// WithDirs fixes the home and working directories.
func WithDirs(home, work string) LoaderOption {
	return func(l *Loader) {
		l.homeDir = func() (string, error) { return home, nil }
		l.workDir = func() (string, error) { return work, nil }
	}
}

// NewLoader creates a loader.
func NewLoader(logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{
		logger:  logger,
		getenv:  os.Getenv,
		homeDir: os.UserHomeDir,
		workDir: os.Getwd,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load applies, in order of increasing precedence:
//  1. defaults
//  2. ~/.config/launchmate/config.yaml
//  3. launchmate.yaml in the working directory or a parent
//  4. explicit, when not empty
//  5. environment variables
//
// The result is validated.
func (l *Loader) Load(explicit string) (*Config, error) {
	cfg := DefaultConfig()

	if path := l.UserConfigPath(); path != "" {
		if err := cfg.overlay(path); err == nil {
			l.logger.Debug("Loaded user config", "path", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if path := l.findProjectConfig(); path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded project config", "path", path)
	}

	if explicit != "" {
		if err := cfg.overlay(explicit); err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config", "path", explicit)
	}

	l.applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings from the environment.
func (l *Loader) applyEnv(cfg *Config) {
	set := func(key string, dst *string) {
		if v := strings.TrimSpace(l.getenv(key)); v != "" {
			*dst = v
			l.logger.Debug("Config overridden from environment", "key", key)
		}
	}

	set("LAUNCHMATE_IDENTITY", &cfg.Identity)
	set("LAUNCHMATE_STORE", &cfg.Store.Backend)
	set("LAUNCHMATE_MONGO_URI", &cfg.Mongo.URI)
	set("LAUNCHMATE_SQLITE_PATH", &cfg.SQLite.Path)
	set("LAUNCHMATE_HTTP_ADDR", &cfg.HTTP.Addr)
	set("LAUNCHMATE_LOG_LEVEL", &cfg.Log.Level)
	set("NATS_URL", &cfg.NATS.URL)
}

// EnsureUserConfig writes the defaults to the user config path unless a
// file is already there. It returns the path.
func (l *Loader) EnsureUserConfig() (string, error) {
	path := l.UserConfigPath()
	if path == "" {
		return "", fmt.Errorf("no home directory")
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := DefaultConfig().SaveToFile(path); err != nil {
		return "", err
	}
	l.logger.Info("Created default user config", "path", path)
	return path, nil
}

// UserConfigPath returns the user config path, or "" without a home
// directory.
func (l *Loader) UserConfigPath() string {
	home, err := l.homeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig walks from the working directory up to the root.
func (l *Loader) findProjectConfig() string {
	dir, err := l.workDir()
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
