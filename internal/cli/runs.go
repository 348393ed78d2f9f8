package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/message"

	"github.com/batchworks/batchworks/internal/models"
	"github.com/batchworks/batchworks/internal/services/production"
	"github.com/batchworks/batchworks/internal/util"
)

func newRunCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Plan, start and finish production runs",
		Long: `Plan, start and finish production runs.

Runs are named by op code or ID. A run is created from a YAML spec, planned
into a YAML plan the operator reviews, and started with that plan:

  batchworks run create -f blend.yaml
  batchworks run plan OP-P1-20260302-4F2A --out plan.yaml
  batchworks run start OP-P1-20260302-4F2A --plan plan.yaml
  batchworks run finish OP-P1-20260302-4F2A --qty 38 --sanitized`,
	}

	cmd.AddCommand(
		newRunCreateCommand(opts),
		newRunPlanCommand(opts),
		newRunStartCommand(opts),
		newRunEventCommand(opts, models.EventPause, "Pause an in-progress run"),
		newRunEventCommand(opts, models.EventResume, "Resume a paused run"),
		newRunFinishCommand(opts),
		newRunEventCommand(opts, models.EventCancel, "Cancel a draft run"),
		newRunEventCommand(opts, models.EventDelete, "Delete a draft run"),
		newRunShowCommand(opts),
		newRunListCommand(opts),
	)
	return cmd
}

func newRunCreateCommand(opts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft run from a YAML spec",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				f, err := readRunSpec(file, cmd.InOrStdin())
				if err != nil {
					return err
				}
				spec, err := f.resolve(ctx, app)
				if err != nil {
					return err
				}
				run, err := app.Production.CreateRun(ctx, spec)
				if err != nil {
					return err
				}
				return out.Success(run, func(w io.Writer, p *message.Printer) {
					fmt.Fprintf(w, "Created %s run %s: %s %s on %s\n",
						run.Type, run.OpCode, Qty(p, run.QtyPlanned), run.ProductSKU, run.LineID)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "run spec file (- for stdin)")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newRunPlanCommand(opts *RootOptions) *cobra.Command {
	var strategy, outPath string

	cmd := &cobra.Command{
		Use:   "plan <run>",
		Short: "Plan a draft run's components and record shortages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				run, err := resolveRun(ctx, app, args[0])
				if err != nil {
					return err
				}
				strat, err := strategyFlag(app, strategy)
				if err != nil {
					return err
				}
				plan, err := app.Production.PlanRun(ctx, run.ID, strat)
				if err != nil {
					return err
				}
				if outPath != "" && len(plan.Shortages) == 0 {
					if err := writePlanFile(outPath, run, plan); err != nil {
						return err
					}
				}

				if err := out.Success(plan, func(w io.Writer, p *message.Printer) {
					for i := range plan.Lines {
						writeAllocations(w, p, &plan.Lines[i])
					}
					writeShortages(w, p, plan.Shortages)
					switch {
					case len(plan.Shortages) > 0:
						fmt.Fprintln(w, "Run cannot start until the shortages are covered")
					case outPath != "":
						fmt.Fprintf(w, "Plan written to %s\n", outPath)
					}
				}); err != nil {
					return err
				}
				if len(plan.Shortages) > 0 {
					return NewExitError(ExitFailure, fmt.Sprintf("run %s has %d shortage(s)", run.OpCode, len(plan.Shortages)))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "FIFO or FEFO (default from configuration)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the plan as YAML to this file")
	return cmd
}

func newRunStartCommand(opts *RootOptions) *cobra.Command {
	var planPath, actor string

	cmd := &cobra.Command{
		Use:   "start <run>",
		Short: "Start a draft run with a confirmed plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				run, err := resolveRun(ctx, app, args[0])
				if err != nil {
					return err
				}
				plan, err := readPlan(planPath, cmd.InOrStdin())
				if err != nil {
					return err
				}
				run, err = app.Production.StartRun(ctx, run.ID, plan, optional(actor))
				if err != nil {
					return err
				}
				return out.Success(run, func(w io.Writer, p *message.Printer) {
					fmt.Fprintf(w, "Run %s started, %d batch draw(s) consumed\n", run.OpCode, len(run.ConsumedComponents))
				})
			})
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "confirmed plan file from 'run plan --out' (- for stdin)")
	cmd.Flags().StringVar(&actor, "actor", "", "operator starting the run")
	cmd.MarkFlagRequired("plan")
	return cmd
}

func newRunEventCommand(opts *RootOptions, ev models.RunEvent, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(ev) + " <run>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				run, err := resolveRun(ctx, app, args[0])
				if err != nil {
					return err
				}
				switch ev {
				case models.EventPause:
					run, err = app.Production.PauseRun(ctx, run.ID)
				case models.EventResume:
					run, err = app.Production.ResumeRun(ctx, run.ID)
				case models.EventCancel:
					run, err = app.Production.CancelRun(ctx, run.ID)
				case models.EventDelete:
					if err = app.Production.DeleteRun(ctx, run.ID); err == nil {
						return out.Success(map[string]string{"deleted": run.ID}, func(w io.Writer, p *message.Printer) {
							fmt.Fprintf(w, "Run %s deleted\n", run.OpCode)
						})
					}
				}
				if err != nil {
					return err
				}
				return out.Success(run, func(w io.Writer, p *message.Printer) {
					fmt.Fprintf(w, "Run %s is %s\n", run.OpCode, run.Status)
				})
			})
		},
	}
}

func newRunFinishCommand(opts *RootOptions) *cobra.Command {
	var (
		qty        string
		notes      string
		expiry     string
		sanitized  bool
		keepInTank bool
		actor      string
	)

	cmd := &cobra.Command{
		Use:   "finish <run>",
		Short: "Finish a run and book its output batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				run, err := resolveRun(ctx, app, args[0])
				if err != nil {
					return err
				}
				actual, err := parseQuantity("qty", qty)
				if err != nil {
					return err
				}
				expiryDate, err := parseOptionalDate("expiry", expiry)
				if err != nil {
					return err
				}
				run, batch, err := app.Production.FinishRun(ctx, run.ID, production.Actuals{
					QtyActual:           actual,
					Notes:               notes,
					ExpiryDate:          expiryDate,
					SanitationConfirmed: sanitized,
					KeepInTank:          keepInTank,
				}, optional(actor))
				if err != nil {
					return err
				}
				return out.Success(map[string]any{"run": run, "batch": batch}, func(w io.Writer, p *message.Printer) {
					fmt.Fprintf(w, "Run %s finished: %s %s in batch %s\n",
						run.OpCode, Qty(p, actual), run.ProductSKU, batch.InternalBatchCode)
					writeRunSummary(w, p, run)
				})
			})
		},
	}

	cmd.Flags().StringVar(&qty, "qty", "", "quantity produced (required)")
	cmd.Flags().StringVar(&notes, "notes", "", "finish notes")
	cmd.Flags().StringVar(&expiry, "expiry", "", "expiry date of the output batch (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&sanitized, "sanitized", false, "the tank was sanitized on emptying")
	cmd.Flags().BoolVar(&keepInTank, "keep-in-tank", false, "store the output batch in the run's tank")
	cmd.Flags().StringVar(&actor, "actor", "", "operator finishing the run")
	cmd.MarkFlagRequired("qty")
	return cmd
}

func newRunShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run>",
		Short: "Show a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				run, err := resolveRun(ctx, app, args[0])
				if err != nil {
					return err
				}
				return out.Success(run, func(w io.Writer, p *message.Printer) {
					fmt.Fprintf(w, "%s  %s %s  [%s]\n", run.OpCode, run.Type, run.ProductSKU, run.Status)
					fmt.Fprintf(w, "Line %s, planned %s from %s\n", run.LineID, Qty(p, run.QtyPlanned), util.FormatDateTime(run.StartPlanned))
					if run.StartActual != nil {
						fmt.Fprintf(w, "Started %s\n", util.FormatDateTime(*run.StartActual))
					}
					if len(run.ConsumedComponents) > 0 {
						fmt.Fprintln(w, "Consumed:")
						for _, c := range run.ConsumedComponents {
							fmt.Fprintf(w, "  %s  %s @ %s\n", shortID(c.BatchID), Qty(p, c.Quantity), Money(p, c.UnitCost))
						}
					}
					writeShortages(w, p, run.Shortages)
					writeRunSummary(w, p, run)
					for _, l := range run.CleaningLogs {
						fmt.Fprintf(w, "Cleaned %s at %s %s\n", shortID(l.TankID), util.FormatDateTime(l.At), l.Notes)
					}
				})
			})
		},
	}
}

func newRunListCommand(opts *RootOptions) *cobra.Command {
	var (
		status   string
		runType  string
		line     string
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				filter := models.RunFilter{LineID: line}
				if status != "" {
					s, err := parseRunStatus(status)
					if err != nil {
						return err
					}
					filter.Status = &s
				}
				if runType != "" {
					t := models.RunType(strings.ToLower(runType))
					if !t.Valid() {
						return &models.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown run type %q", runType)}
					}
					filter.Type = &t
				}
				list, err := app.Production.ListRuns(ctx, filter, models.Pagination{Page: page, PageSize: pageSize})
				if err != nil {
					return err
				}
				return out.Success(list, func(w io.Writer, p *message.Printer) {
					tbl := NewTable("OP CODE", "TYPE", "PRODUCT", "PLANNED", "ACTUAL", "STATUS", "LINE").AlignRight(3, 4)
					for _, r := range list.Runs {
						actual := "-"
						if r.QtyActual != nil {
							actual = Qty(p, *r.QtyActual)
						}
						tbl.Row(r.OpCode, string(r.Type), r.ProductSKU, Qty(p, r.QtyPlanned), actual, string(r.Status), r.LineID)
					}
					tbl.Render(w)
					p.Fprintf(w, "Page %d of %d (%d runs)\n", list.Page, list.TotalPages, list.Total)
				})
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only runs in this status")
	cmd.Flags().StringVar(&runType, "type", "", "only runs of this type (blend|fill)")
	cmd.Flags().StringVar(&line, "line", "", "only runs on this line")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 25, "runs per page")
	return cmd
}

// parseRunStatus accepts a status in any case.
func parseRunStatus(s string) (models.RunStatus, error) {
	for _, st := range []models.RunStatus{
		models.RunStatusDraft, models.RunStatusInProgress, models.RunStatusPaused,
		models.RunStatusFinished, models.RunStatusCancelled,
	} {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", &models.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown run status %q", s)}
}

func writeShortages(w io.Writer, p *message.Printer, shortages []models.Shortage) {
	if len(shortages) == 0 {
		return
	}
	fmt.Fprintln(w, "Shortages:")
	for _, s := range shortages {
		name := s.ItemName
		if name == "" {
			name = s.ItemID
		}
		fmt.Fprintf(w, "  %s: need %s, have %s\n", name, Qty(p, s.Requested), Qty(p, s.Available))
	}
}

func writeRunSummary(w io.Writer, p *message.Printer, run *models.ProductionRun) {
	if run.Status != models.RunStatusFinished {
		return
	}
	if run.Cost != nil {
		fmt.Fprintf(w, "Cost: %s total, %s per unit\n", Money(p, run.Cost.Total), Money(p, run.Cost.Unit))
	}
	if run.YieldPct != nil {
		fmt.Fprintf(w, "Yield: %s\n", Pct(p, *run.YieldPct))
	}
	fmt.Fprintf(w, "Productive time: %s h", Qty(p, run.ProductiveHours()))
	if run.ThroughputPerHour != nil {
		fmt.Fprintf(w, ", %s per hour", Qty(p, *run.ThroughputPerHour))
	}
	fmt.Fprintln(w)
}
