// Package config provides configuration management for batchworks.
// Configurations are loaded from TOML files with XDG-compliant paths.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Config holds the complete application configuration.
type Config struct {
	Plant      PlantConfig      `toml:"plant"`
	Production ProductionConfig `toml:"production"`
	Logging    LoggingConfig    `toml:"logging"`
	Database   DatabaseConfig   `toml:"database"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// PlantConfig identifies the site the ledger belongs to.
type PlantConfig struct {
	Name string `toml:"name"`
	Code string `toml:"code"`
}

// ProductionConfig controls planning and the transactional executor.
type ProductionConfig struct {
	DefaultStrategy string `toml:"default_strategy"`
	MaxAttempts     int    `toml:"max_attempts"`
	RetryBackoffMS  int    `toml:"retry_backoff_ms"`
	OpCodePrefix    string `toml:"op_code_prefix"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level LogLevel `toml:"level"`
	File  string   `toml:"file"`
}

// LogLevel defines logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// DatabaseConfig controls SQLite database settings.
type DatabaseConfig struct {
	Path                string `toml:"path"`
	BackupRetentionDays int    `toml:"backup_retention_days"`
}

// MetricsConfig controls the Prometheus text exposition written on exit.
type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

var codePattern = regexp.MustCompile(`^[A-Z0-9]{1,8}$`)

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Plant.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("plant: %w", err))
	}

	if err := c.Production.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("production: %w", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}

	return errors.Join(errs...)
}

// Validate checks that the plant configuration is valid.
func (p *PlantConfig) Validate() error {
	var errs []error

	if p.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}

	if !codePattern.MatchString(p.Code) {
		errs = append(errs, fmt.Errorf("code must be 1-8 uppercase letters or digits: %q", p.Code))
	}

	return errors.Join(errs...)
}

// Validate checks that the production configuration is valid.
func (p *ProductionConfig) Validate() error {
	var errs []error

	switch strings.ToUpper(p.DefaultStrategy) {
	case "FIFO", "FEFO":
	default:
		errs = append(errs, fmt.Errorf("invalid default_strategy: %s", p.DefaultStrategy))
	}

	if p.MaxAttempts < 1 || p.MaxAttempts > 10 {
		errs = append(errs, errors.New("max_attempts must be between 1 and 10"))
	}

	if p.RetryBackoffMS < 0 {
		errs = append(errs, errors.New("retry_backoff_ms must be non-negative"))
	}

	if !codePattern.MatchString(p.OpCodePrefix) {
		errs = append(errs, fmt.Errorf("op_code_prefix must be 1-8 uppercase letters or digits: %q", p.OpCodePrefix))
	}

	return errors.Join(errs...)
}

// Validate checks that the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	validLevels := map[LogLevel]bool{
		LogLevelDebug: true,
		LogLevelInfo:  true,
		LogLevelWarn:  true,
		LogLevelError: true,
	}

	if !validLevels[l.Level] && l.Level != "" {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	return nil
}

// Validate checks that the database configuration is valid.
func (d *DatabaseConfig) Validate() error {
	var errs []error

	if d.Path == "" {
		errs = append(errs, errors.New("path is required"))
	}

	if d.BackupRetentionDays < 0 {
		errs = append(errs, errors.New("backup_retention_days must be non-negative"))
	}

	return errors.Join(errs...)
}

// Default returns a configuration with sensible default values.
func Default() *Config {
	return &Config{
		Plant: PlantConfig{
			Name: "Main Plant",
			Code: "MAIN",
		},
		Production: ProductionConfig{
			DefaultStrategy: "FIFO",
			MaxAttempts:     5,
			RetryBackoffMS:  20,
			OpCodePrefix:    "OP",
		},
		Logging: LoggingConfig{
			Level: LogLevelInfo,
			File:  "",
		},
		Database: DatabaseConfig{
			Path:                "batchworks.db",
			BackupRetentionDays: 30,
		},
	}
}

// RetryBackoff returns the initial delay between executor attempts.
func (p *ProductionConfig) RetryBackoff() time.Duration {
	return time.Duration(p.RetryBackoffMS) * time.Millisecond
}
