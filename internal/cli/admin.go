package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/message"

	"github.com/batchworks/batchworks/internal/config"
	"github.com/batchworks/batchworks/internal/database"
	"github.com/batchworks/batchworks/internal/database/seed"
)

type migrationView struct {
	Version     int        `json:"version"`
	Description string     `json:"description"`
	Applied     bool       `json:"applied"`
	AppliedAt   *time.Time `json:"appliedAt,omitempty"`
}

type migrateResultView struct {
	Applied        []migrationView `json:"applied"`
	CurrentVersion int             `json:"currentVersion"`
}

func viewMigrations(migs []database.Migration) []migrationView {
	views := make([]migrationView, 0, len(migs))
	for _, m := range migs {
		v := migrationView{Version: m.Version, Description: m.Description, Applied: m.Applied}
		if m.Applied && !m.AppliedAt.IsZero() {
			at := m.AppliedAt
			v.AppliedAt = &at
		}
		views = append(views, v)
	}
	return views
}

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withAppMigrate(cmd, false, func(ctx context.Context, app *App, out *OutputFormatter) error {
				m, err := database.NewMigrator(ctx, app.DB)
				if err != nil {
					return err
				}
				res, err := m.MigrateUp(ctx)
				if err != nil {
					return err
				}
				return out.Success(migrateResultView{
					Applied:        viewMigrations(res.Applied),
					CurrentVersion: res.To,
				}, func(w io.Writer, p *message.Printer) {
					if len(res.Applied) == 0 {
						fmt.Fprintf(w, "Schema is up to date (version %d)\n", res.From)
						return
					}
					for _, mig := range res.Applied {
						fmt.Fprintf(w, "Applied %03d %s\n", mig.Version, mig.Description)
					}
				})
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withAppMigrate(cmd, false, func(ctx context.Context, app *App, out *OutputFormatter) error {
				m, err := database.NewMigrator(ctx, app.DB)
				if err != nil {
					return err
				}
				migs, err := m.Status(ctx)
				if err != nil {
					return err
				}
				views := viewMigrations(migs)
				return out.Success(views, func(w io.Writer, p *message.Printer) {
					tbl := NewTable("VERSION", "DESCRIPTION", "STATUS")
					for _, v := range views {
						status := "pending"
						if v.Applied {
							status = "applied"
						}
						tbl.Row(fmt.Sprintf("%03d", v.Version), v.Description, status)
					}
					tbl.Render(w)
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withAppMigrate(cmd, false, func(ctx context.Context, app *App, out *OutputFormatter) error {
				m, err := database.NewMigrator(ctx, app.DB)
				if err != nil {
					return err
				}
				res, err := m.MigrateDown(ctx)
				if err != nil {
					return err
				}
				return out.Success(migrateResultView{
					Applied:        viewMigrations(res.Applied),
					CurrentVersion: res.To,
				}, func(w io.Writer, p *message.Printer) {
					fmt.Fprintf(w, "Schema at version %d\n", res.To)
				})
			})
		},
	})

	return cmd
}

func newSeedCommand(opts *RootOptions) *cobra.Command {
	var randomSeed int64

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate an empty database with a demo catalogue and receipts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				cfg := seed.DefaultConfig(app.Executor.Clock().Now())
				if cmd.Flags().Changed("random-seed") {
					cfg.RandomSeed = randomSeed
				}
				sum, err := seed.NewGenerator(app.DB, cfg).Generate(ctx)
				if errors.Is(err, seed.ErrAlreadySeeded) {
					out.Error(CodeInvalidInput, err.Error(), nil)
					return WrapExitError(ExitFailure, "seed", err)
				}
				if err != nil {
					return err
				}
				return out.Success(sum, func(w io.Writer, p *message.Printer) {
					p.Fprintf(w, "Seeded %d categories, %d items, %d tanks and %d batches\n",
						sum.Categories, sum.Items, sum.Tanks, sum.Batches)
				})
			})
		},
	}

	cmd.Flags().Int64Var(&randomSeed, "random-seed", 0, "seed for generated quantities and prices")
	return cmd
}

func newBackupCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Write a verified copy of the database to the backup directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				path, err := app.DB.Backup(ctx)
				if err != nil {
					return err
				}
				return out.Success(map[string]string{"path": path}, func(w io.Writer, p *message.Printer) {
					fmt.Fprintf(w, "Backup written to %s\n", path)
				})
			})
		},
	}
}

// newRestoreCommand replaces the database with the newest verified backup.
// It works on files only, so it does not open the database.
func newRestoreCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Replace the database with the newest verified backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.output(cmd)
			ctx := cmd.Context()

			cfg, _, err := config.Load(opts.ConfigPath, true)
			if err != nil {
				out.Error(CodeInternal, err.Error(), nil)
				return WrapExitError(ExitCommandError, "loading configuration", err)
			}
			dbPath, err := config.EnsureDataDir(cfg)
			if err != nil {
				out.Error(CodeInternal, err.Error(), nil)
				return WrapExitError(ExitCommandError, "resolving database path", err)
			}
			backupDir, err := config.BackupDir(cfg)
			if err != nil {
				out.Error(CodeInternal, err.Error(), nil)
				return WrapExitError(ExitCommandError, "resolving backup directory", err)
			}

			restored, err := database.RestoreLatest(ctx, dbPath, backupDir)
			if err != nil {
				out.Error(CodeInternal, err.Error(), nil)
				if errors.Is(err, database.ErrNoBackup) {
					return WrapExitError(ExitFailure, "restore", err)
				}
				return WrapExitError(ExitCommandError, "restore", err)
			}
			return out.Success(map[string]string{"restoredFrom": restored, "database": dbPath},
				func(w io.Writer, p *message.Printer) {
					fmt.Fprintf(w, "Restored %s from %s\n", dbPath, restored)
				})
		},
	}
}

func newCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run the SQLite integrity check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				if err := app.DB.CheckIntegrity(ctx); err != nil {
					return err
				}
				return out.Success(map[string]string{"integrity": "ok"}, func(w io.Writer, p *message.Printer) {
					fmt.Fprintln(w, "Integrity check passed")
				})
			})
		},
	}
}
