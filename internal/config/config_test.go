package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration is invalid: %v", err)
	}
	if got := cfg.Production.RetryBackoff(); got != 20*time.Millisecond {
		t.Errorf("RetryBackoff() = %v, want 20ms", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"lowercase plant code", func(c *Config) { c.Plant.Code = "main" }, "code must be"},
		{"missing plant name", func(c *Config) { c.Plant.Name = "" }, "name is required"},
		{"unknown strategy", func(c *Config) { c.Production.DefaultStrategy = "LIFO" }, "default_strategy"},
		{"lowercase strategy accepted", func(c *Config) { c.Production.DefaultStrategy = "fefo" }, ""},
		{"zero attempts", func(c *Config) { c.Production.MaxAttempts = 0 }, "max_attempts"},
		{"too many attempts", func(c *Config) { c.Production.MaxAttempts = 11 }, "max_attempts"},
		{"negative backoff", func(c *Config) { c.Production.RetryBackoffMS = -1 }, "retry_backoff_ms"},
		{"prefix with dash", func(c *Config) { c.Production.OpCodePrefix = "OP-1" }, "op_code_prefix"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "log level"},
		{"empty database path", func(c *Config) { c.Database.Path = "" }, "path is required"},
		{"negative retention", func(c *Config) { c.Database.BackupRetentionDays = -1 }, "backup_retention_days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "batchworks.toml")

	cfg := Default()
	cfg.Plant.Code = "P1"
	cfg.Production.DefaultStrategy = "FEFO"
	cfg.Production.MaxAttempts = 3
	cfg.Metrics.Textfile = "/tmp/batchworks.prom"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, from, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if from != path {
		t.Errorf("loaded from %s, want %s", from, path)
	}
	if loaded.Plant.Code != "P1" || loaded.Production.DefaultStrategy != "FEFO" ||
		loaded.Production.MaxAttempts != 3 || loaded.Metrics.Textfile != "/tmp/batchworks.prom" {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batchworks.toml")
	content := "[plant]\nname = \"Citrus Works\"\ncode = \"CW\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Plant.Name != "Citrus Works" {
		t.Errorf("plant name = %q", cfg.Plant.Name)
	}
	if cfg.Production.MaxAttempts != 5 || cfg.Database.Path != "batchworks.db" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batchworks.toml")
	if err := os.WriteFile(path, []byte("[production]\nmax_attempts = 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, _, err := Load(path, false)
	var loadErr *LoadError
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.As(err, &loadErr) || loadErr.Path != path {
		t.Errorf("expected LoadError for %s, got %v", path, err)
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batchworks.toml")
	if err := os.WriteFile(path, []byte("[production]\nmax_attempt = 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, _, err := Load(path, false)
	if err == nil || !strings.Contains(err.Error(), "production.max_attempt") {
		t.Errorf("expected unknown key error, got %v", err)
	}
}

func TestLoad_WritesDefaultToXDG(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Chdir(t.TempDir())
	want := filepath.Join(xdg, XDGConfigSubdir, DefaultConfigFileName)

	if got := ConfigPath(""); got != want {
		t.Errorf("ConfigPath = %s, want %s", got, want)
	}
	if _, _, err := Load("", false); err == nil {
		t.Fatal("expected an error when no file exists")
	}

	cfg, from, err := Load("", true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if from != want {
		t.Errorf("default written to %q, want %q", from, want)
	}
	if cfg.Production.MaxAttempts != Default().Production.MaxAttempts {
		t.Errorf("unexpected config: %+v", cfg)
	}

	again, from, err := Load("", false)
	if err != nil || from != want {
		t.Fatalf("reloading written default: %v (from %q)", err, from)
	}
	if again.Production != cfg.Production {
		t.Errorf("reloaded %+v, want %+v", again.Production, cfg.Production)
	}
}

func TestDataPaths(t *testing.T) {
	data := t.TempDir()
	t.Setenv("XDG_DATA_HOME", data)

	cfg := Default()
	dbPath, err := EnsureDataDir(cfg)
	if err != nil {
		t.Fatalf("EnsureDataDir: %v", err)
	}
	if want := filepath.Join(data, XDGConfigSubdir, cfg.Database.Path); dbPath != want {
		t.Errorf("db path = %s, want %s", dbPath, want)
	}

	backups, err := BackupDir(cfg)
	if err != nil {
		t.Fatalf("BackupDir: %v", err)
	}
	if want := filepath.Join(data, XDGConfigSubdir, "backups"); backups != want {
		t.Errorf("backup dir = %s, want %s", backups, want)
	}
	if info, err := os.Stat(backups); err != nil || !info.IsDir() {
		t.Errorf("backup dir not created: %v", err)
	}
}
