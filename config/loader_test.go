package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func noEnv(string) string { return "" }

func TestLoaderPrecedence(t *testing.T) {
	home := t.TempDir()
	repo := t.TempDir()
	work := filepath.Join(repo, "sub", "dir")
	if err := os.MkdirAll(work, 0755); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(home, UserConfigDir, UserConfigFile), `
identity: user@example.com
log:
  level: debug
http:
  addr: ":9000"
`)
	writeFile(t, filepath.Join(repo, ProjectConfigFile), `
identity: project@example.com
store:
  backend: sqlite
`)
	explicit := filepath.Join(t.TempDir(), "override.yaml")
	writeFile(t, explicit, `
http:
  addr: ":9100"
`)

	env := map[string]string{"LAUNCHMATE_SQLITE_PATH": "/tmp/env.db"}
	l := NewLoader(nil, WithDirs(home, work), WithEnv(func(k string) string { return env[k] }))

	cfg, err := l.Load(explicit)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Identity != "project@example.com" {
		t.Errorf("project config should beat user config, got %s", cfg.Identity)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("user setting should survive, got %s", cfg.Log.Level)
	}
	if cfg.HTTP.Addr != ":9100" {
		t.Errorf("explicit file should win, got %s", cfg.HTTP.Addr)
	}
	if cfg.Store.Backend != BackendSQLite || cfg.SQLite.Path != "/tmp/env.db" {
		t.Errorf("unexpected store: %+v %+v", cfg.Store, cfg.SQLite)
	}
}

func TestLoaderEnvironment(t *testing.T) {
	env := map[string]string{
		"LAUNCHMATE_STORE":    "kv",
		"NATS_URL":            "nats://nats:4222",
		"LAUNCHMATE_IDENTITY": "env@example.com",
	}
	l := NewLoader(nil, WithDirs(t.TempDir(), t.TempDir()), WithEnv(func(k string) string { return env[k] }))

	cfg, err := l.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != BackendKV || cfg.NATS.URL != "nats://nats:4222" {
		t.Errorf("env not applied: %+v %+v", cfg.Store, cfg.NATS)
	}
	if cfg.Identity != "env@example.com" {
		t.Errorf("identity = %s", cfg.Identity)
	}
}

func TestLoaderRejectsInvalid(t *testing.T) {
	env := map[string]string{"LAUNCHMATE_STORE": "mongo"}
	l := NewLoader(nil, WithDirs(t.TempDir(), t.TempDir()), WithEnv(func(k string) string { return env[k] }))

	if _, err := l.Load(""); err == nil {
		t.Error("expected validation error for mongo without uri")
	}
}

func TestLoaderBadFile(t *testing.T) {
	work := t.TempDir()
	writeFile(t, filepath.Join(work, ProjectConfigFile), "store: [unclosed")
	l := NewLoader(nil, WithDirs(t.TempDir(), work), WithEnv(noEnv))

	if _, err := l.Load(""); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnsureUserConfig(t *testing.T) {
	home := t.TempDir()
	l := NewLoader(nil, WithDirs(home, t.TempDir()), WithEnv(noEnv))

	path, err := l.EnsureUserConfig()
	if err != nil {
		t.Fatalf("EnsureUserConfig: %v", err)
	}
	if path != filepath.Join(home, UserConfigDir, UserConfigFile) {
		t.Errorf("unexpected path %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config not written: %v", err)
	}

	// A second call leaves the file alone.
	writeFile(t, path, "identity: kept@example.com\n")
	if _, err := l.EnsureUserConfig(); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil || cfg.Identity != "kept@example.com" {
		t.Errorf("existing config overwritten: %v %+v", err, cfg)
	}
}
