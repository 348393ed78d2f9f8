// Package cli implements the batchworks command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Debug      bool
	Format     string // "json" | "text"
	Locale     string

	// App, when set, is used by every command instead of one opened from
	// configuration, and is left open afterwards.
	App *App

	stderr io.Writer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the batchworks CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batchworks",
		Short: "Production and batch inventory ledger",
		Long: `batchworks tracks inventory by batch, plans FIFO/FEFO consumption,
records every stock movement in an append-only ledger and drives
production runs from Draft to Finished.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if _, err := language.Parse(opts.Locale); err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid locale %q: %v", opts.Locale, err))
			}
			opts.stderr = cmd.ErrOrStderr()
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to configuration file")
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Locale, "locale", "en", "locale for number formatting in text output")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))
	cmd.AddCommand(newBackupCommand(opts))
	cmd.AddCommand(newRestoreCommand(opts))
	cmd.AddCommand(newCheckCommand(opts))
	cmd.AddCommand(newCategoryCommand(opts))
	cmd.AddCommand(newItemCommand(opts))
	cmd.AddCommand(newTankCommand(opts))
	cmd.AddCommand(newReceiveCommand(opts))
	cmd.AddCommand(newSellCommand(opts))
	cmd.AddCommand(newAdjustCommand(opts))
	cmd.AddCommand(newPlanCommand(opts))
	cmd.AddCommand(newLedgerCommand(opts))
	cmd.AddCommand(newReconcileCommand(opts))
	cmd.AddCommand(newRunCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) errWriter() io.Writer {
	if o.stderr != nil {
		return o.stderr
	}
	return os.Stderr
}

// output returns the formatter for cmd.
func (o *RootOptions) output(cmd *cobra.Command) *OutputFormatter {
	tag, err := language.Parse(o.Locale)
	if err != nil {
		tag = language.English
	}
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Debug,
		Printer:   message.NewPrinter(tag),
	}
}

// withApp runs fn against the injected App or one opened from configuration.
// Failures are reported through the formatter.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App, out *OutputFormatter) error) error {
	return o.withAppMigrate(cmd, true, fn)
}

func (o *RootOptions) withAppMigrate(cmd *cobra.Command, autoMigrate bool, fn func(ctx context.Context, app *App, out *OutputFormatter) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := o.output(cmd)

	app := o.App
	if app == nil {
		opened, err := OpenApp(ctx, o, autoMigrate)
		if err != nil {
			out.Error(CodeInternal, err.Error(), nil)
			return WrapExitError(ExitCommandError, "startup failed", err)
		}
		defer func() {
			if err := opened.Close(); err != nil {
				opened.Logger.Error("error closing application", "error", err)
			}
		}()
		app = opened
	}

	if err := fn(ctx, app, out); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		return out.Fail(err)
	}
	return nil
}
