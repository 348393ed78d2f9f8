package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultConfigFileName is the standard configuration file name.
	DefaultConfigFileName = "batchworks.toml"

	// XDGConfigSubdir is the subdirectory under XDG_CONFIG_HOME and
	// XDG_DATA_HOME for batchworks.
	XDGConfigSubdir = "batchworks"
)

const fileHeader = `# batchworks configuration
#
# [production] max_attempts bounds retries of a conflicting unit of work.
# [metrics] textfile, when set, receives Prometheus metrics on exit.

`

// LoadError represents an error that occurred while loading configuration.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading config from %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load reads the configuration from the first file found among: the
// explicit path, $XDG_CONFIG_HOME/batchworks/batchworks.toml and
// ./batchworks.toml. An explicit path is the only candidate when given.
//
// When nothing is found and createDefault is set, the defaults are written
// to the preferred location and returned; the returned path is empty if
// that write failed.
func Load(explicitPath string, createDefault bool) (*Config, string, error) {
	candidates := searchPaths(explicitPath)
	for _, path := range candidates {
		if explicitPath == "" && !fileExists(path) {
			continue
		}
		cfg, err := loadFromFile(path)
		if err != nil {
			return nil, "", &LoadError{Path: path, Err: err}
		}
		return cfg, path, nil
	}

	if !createDefault {
		return nil, "", errors.New("no configuration file found; searched: " + strings.Join(candidates, ", "))
	}

	cfg := Default()
	path := candidates[0]
	if err := Save(cfg, path); err != nil {
		return cfg, "", nil
	}
	return cfg, path, nil
}

// searchPaths lists the config files Load considers, most preferred first.
func searchPaths(explicitPath string) []string {
	if explicitPath != "" {
		return []string{explicitPath}
	}
	var paths []string
	if xdg := xdgConfigPath(); xdg != "" {
		paths = append(paths, xdg)
	}
	return append(paths, filepath.Join(".", DefaultConfigFileName))
}

// loadFromFile decodes path over the defaults. Keys the Config does not
// know are rejected so typos do not silently fall back to defaults.
func loadFromFile(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path, replacing any existing file atomically.
func Save(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding TOML: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".batchworks-*.toml")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0640); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ConfigPath returns the file Load would read, or the file it would create.
func ConfigPath(explicitPath string) string {
	candidates := searchPaths(explicitPath)
	for _, path := range candidates {
		if fileExists(path) {
			return path
		}
	}
	return candidates[0]
}

// EnsureDataDir resolves the database path and creates its directory.
// Relative paths live under the XDG data directory when one is available.
func EnsureDataDir(cfg *Config) (string, error) {
	dbPath := dataPath(cfg.Database.Path)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		if filepath.IsAbs(cfg.Database.Path) {
			return "", fmt.Errorf("creating database directory: %w", err)
		}
		return cfg.Database.Path, nil
	}
	return dbPath, nil
}

// EnsureLogDir creates the directory of the configured log file. An empty
// path disables file logging and returns "".
func EnsureLogDir(cfg *Config) (string, error) {
	logPath := cfg.Logging.File
	if logPath == "" {
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0750); err != nil {
		return "", fmt.Errorf("creating log directory: %w", err)
	}
	return logPath, nil
}

// BackupDir returns the backups directory next to the database, creating it.
func BackupDir(cfg *Config) (string, error) {
	dir := filepath.Join(filepath.Dir(dataPath(cfg.Database.Path)), "backups")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}
	return dir, nil
}

// dataPath places a relative name under the XDG data directory.
func dataPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if base := xdgDataDir(); base != "" {
		return filepath.Join(base, XDGConfigSubdir, name)
	}
	return name
}

func xdgConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, XDGConfigSubdir, DefaultConfigFileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", XDGConfigSubdir, DefaultConfigFileName)
}

func xdgDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
