package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/batchworks/batchworks/internal/config"
	"github.com/batchworks/batchworks/internal/database"
	"github.com/batchworks/batchworks/internal/metrics"
	"github.com/batchworks/batchworks/internal/models"
	"github.com/batchworks/batchworks/internal/services/inventory"
	"github.com/batchworks/batchworks/internal/services/production"
	"github.com/batchworks/batchworks/internal/uow"
)

// App wires the services a command runs against.
type App struct {
	Config     *config.Config
	DB         *database.DB
	Metrics    *metrics.Recorder
	Executor   *uow.Executor
	Inventory  *inventory.Service
	Production *production.Service
	Logger     *slog.Logger

	closers []io.Closer
}

// NewApp builds the services over an open, migrated database.
func NewApp(cfg *config.Config, db *database.DB, logger *slog.Logger, opts ...uow.Option) *App {
	if logger == nil {
		logger = slog.Default()
	}
	rec := metrics.New()

	execOpts := []uow.Option{
		uow.WithMaxAttempts(cfg.Production.MaxAttempts),
		uow.WithBackoff(cfg.Production.RetryBackoff()),
		uow.WithMetrics(rec),
		uow.WithLogger(logger),
	}
	exec := uow.New(db, append(execOpts, opts...)...)

	prefix := cfg.Production.OpCodePrefix
	if cfg.Plant.Code != "" {
		prefix += "-" + cfg.Plant.Code
	}

	return &App{
		Config:    cfg,
		DB:        db,
		Metrics:   rec,
		Executor:  exec,
		Inventory: inventory.NewService(exec, logger),
		Production: production.NewService(exec,
			production.WithMetrics(rec),
			production.WithLogger(logger),
			production.WithOpCodePrefix(prefix),
		),
		Logger: logger,
	}
}

// DefaultStrategy returns the configured planning strategy.
func (a *App) DefaultStrategy() models.Strategy {
	s, err := models.ParseStrategy(a.Config.Production.DefaultStrategy)
	if err != nil {
		return models.StrategyFIFO
	}
	return s
}

// Close writes the metrics textfile when configured and closes the database.
func (a *App) Close() error {
	var errs []error
	if path := a.Config.Metrics.Textfile; path != "" {
		if err := a.Metrics.WriteTextfile(path); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenApp loads configuration, installs logging and opens the database.
// Pending migrations are applied when autoMigrate is set.
func OpenApp(ctx context.Context, opts *RootOptions, autoMigrate bool) (*App, error) {
	cfg, cfgPath, err := config.Load(opts.ConfigPath, true)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger, logFile, err := setupLogging(cfg, opts.Debug, opts.errWriter())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	logger.Debug("configuration loaded", "config_path", cfgPath)

	dbPath, err := config.EnsureDataDir(cfg)
	if err != nil {
		closeQuietly(logFile)
		return nil, fmt.Errorf("ensuring data directory: %w", err)
	}

	backupDir, err := config.BackupDir(cfg)
	if err != nil {
		logger.Warn("failed to create backup directory", "error", err)
		backupDir = ""
	}

	db, err := database.Open(dbPath, &cfg.Database, backupDir)
	if err != nil {
		closeQuietly(logFile)
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if autoMigrate {
		result, err := database.Migrate(ctx, db)
		if err != nil {
			db.Close()
			closeQuietly(logFile)
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		if len(result.Applied) > 0 {
			logger.Info("applied migrations",
				"count", len(result.Applied),
				"to_version", result.To,
			)
		}
	}

	app := NewApp(cfg, db, logger)
	if logFile != nil {
		app.closers = append(app.closers, logFile)
	}
	return app, nil
}

// setupLogging builds the logger: JSON to the configured log file, otherwise
// text to stderr.
func setupLogging(cfg *config.Config, debug bool, stderr io.Writer) (*slog.Logger, *os.File, error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	} else {
		switch cfg.Logging.Level {
		case config.LogLevelDebug:
			level = slog.LevelDebug
		case config.LogLevelWarn:
			level = slog.LevelWarn
		case config.LogLevelError:
			level = slog.LevelError
		}
	}

	logPath, err := config.EnsureLogDir(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	if logPath == "" {
		return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})), nil, nil
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level})), logFile, nil
}

func closeQuietly(f *os.File) {
	if f != nil {
		f.Close()
	}
}
