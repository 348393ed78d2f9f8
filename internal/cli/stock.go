package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/message"

	"github.com/batchworks/batchworks/internal/models"
	"github.com/batchworks/batchworks/internal/services/inventory"
	"github.com/batchworks/batchworks/internal/util"
)

func newReceiveCommand(opts *RootOptions) *cobra.Command {
	var (
		cost          string
		supplierBatch string
		expiry        string
		tank          string
		purchase      string
		actor         string
	)

	cmd := &cobra.Command{
		Use:   "receive <sku> <quantity>",
		Short: "Receive a purchased batch into stock",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				item, err := resolveItem(ctx, app, args[0])
				if err != nil {
					return err
				}
				qty, err := parseQuantity("quantity", args[1])
				if err != nil {
					return err
				}
				unitCost, err := parseQuantity("cost", cost)
				if err != nil {
					return err
				}
				expiryDate, err := parseOptionalDate("expiry", expiry)
				if err != nil {
					return err
				}

				input := inventory.ReceiptInput{
					ItemID:            item.ID,
					Quantity:          qty,
					UnitCost:          unitCost,
					SupplierBatchCode: optional(supplierBatch),
					ExpiryDate:        expiryDate,
					PurchaseID:        purchase,
					ActorID:           optional(actor),
				}
				if tank != "" {
					t, err := resolveTank(ctx, app, tank)
					if err != nil {
						return err
					}
					input.LocationID = &t.ID
				}

				batch, err := app.Inventory.ReceivePurchase(ctx, input)
				if err != nil {
					return err
				}
				return out.Success(batch, func(w io.Writer, p *message.Printer) {
					fmt.Fprintf(w, "Received %s %s of %s as batch %s (%s)\n",
						Qty(p, batch.QtyInitial), item.UnitOfMeasure, item.SKU, batch.InternalBatchCode, batch.ID)
				})
			})
		},
	}

	cmd.Flags().StringVar(&cost, "cost", "0", "unit cost")
	cmd.Flags().StringVar(&supplierBatch, "supplier-batch", "", "supplier's batch code")
	cmd.Flags().StringVar(&expiry, "expiry", "", "expiry date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&tank, "tank", "", "tank the batch is stored in")
	cmd.Flags().StringVar(&purchase, "purchase", "", "purchase reference (generated when empty)")
	cmd.Flags().StringVar(&actor, "actor", "", "operator recording the receipt")
	return cmd
}

func newSellCommand(opts *RootOptions) *cobra.Command {
	var strategy, sale, actor string

	cmd := &cobra.Command{
		Use:   "sell <sku> <quantity>",
		Short: "Record a direct sale drawn from open batches",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				item, err := resolveItem(ctx, app, args[0])
				if err != nil {
					return err
				}
				qty, err := parseQuantity("quantity", args[1])
				if err != nil {
					return err
				}
				strat, err := strategyFlag(app, strategy)
				if err != nil {
					return err
				}

				res, err := app.Inventory.RecordSale(ctx, inventory.SaleInput{
					ItemID:   item.ID,
					Quantity: qty,
					Strategy: strat,
					SaleID:   sale,
					ActorID:  optional(actor),
				})
				if err != nil {
					return err
				}
				return out.Success(res, func(w io.Writer, p *message.Printer) {
					fmt.Fprintf(w, "Sale %s: %s %s of %s\n", res.SaleID, Qty(p, qty), item.UnitOfMeasure, item.SKU)
					writeAllocations(w, p, res.Plan)
				})
			})
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "FIFO or FEFO (default from configuration)")
	cmd.Flags().StringVar(&sale, "sale", "", "sale reference (generated when empty)")
	cmd.Flags().StringVar(&actor, "actor", "", "operator recording the sale")
	return cmd
}

func newAdjustCommand(opts *RootOptions) *cobra.Command {
	var reason, actor string

	cmd := &cobra.Command{
		Use:   "adjust <batch-id> <delta>",
		Short: "Correct a batch's remaining quantity after a stock take",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				delta, err := parseQuantity("delta", args[1])
				if err != nil {
					return err
				}
				entry, err := app.Inventory.AdjustBatch(ctx, inventory.AdjustmentInput{
					BatchID: args[0],
					Delta:   delta,
					Reason:  reason,
					ActorID: optional(actor),
				})
				if err != nil {
					return err
				}
				return out.Success(entry, func(w io.Writer, p *message.Printer) {
					fmt.Fprintf(w, "Adjusted batch %s by %s, item stock now %s\n",
						entry.BatchID, Qty(p, entry.QuantityDelta), Qty(p, entry.ResultingStock))
				})
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason for the correction (required)")
	cmd.Flags().StringVar(&actor, "actor", "", "operator recording the correction")
	cmd.MarkFlagRequired("reason")
	return cmd
}

func newPlanCommand(opts *RootOptions) *cobra.Command {
	var strategy string

	cmd := &cobra.Command{
		Use:   "plan <sku> <quantity>",
		Short: "Show which batches a quantity would be drawn from",
		Long: `Show which batches a quantity would be drawn from.

Nothing is written: the plan is a preview of what a sale or a run start
would consume.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				item, err := resolveItem(ctx, app, args[0])
				if err != nil {
					return err
				}
				qty, err := parseQuantity("quantity", args[1])
				if err != nil {
					return err
				}
				strat, err := strategyFlag(app, strategy)
				if err != nil {
					return err
				}
				plan, err := app.Inventory.PlanBatchConsumption(ctx, item.ID, qty, "", strat)
				if err != nil {
					return err
				}
				return out.Success(plan, func(w io.Writer, p *message.Printer) {
					writeAllocations(w, p, plan)
				})
			})
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "FIFO or FEFO (default from configuration)")
	return cmd
}

func strategyFlag(app *App, s string) (models.Strategy, error) {
	if s == "" {
		return app.DefaultStrategy(), nil
	}
	return models.ParseStrategy(s)
}

func writeAllocations(w io.Writer, p *message.Printer, plan *models.AllocationPlan) {
	label := plan.ItemLabel
	if label == "" {
		label = plan.ItemID
	}
	fmt.Fprintf(w, "%s %s: %s (%s)\n", plan.Strategy, label, Qty(p, plan.Total()), Money(p, plan.Cost()))
	tbl := NewTable("BATCH", "QUANTITY", "UNIT COST", "EXPIRY").AlignRight(1, 2)
	for _, a := range plan.Allocations {
		expiry := "-"
		if a.ExpiryDate != nil {
			expiry = util.FormatDate(*a.ExpiryDate)
		}
		code := a.BatchCode
		if code == "" {
			code = a.BatchID
		}
		tbl.Row(code, Qty(p, a.Quantity), Money(p, a.UnitCost), expiry)
	}
	tbl.Render(w)
}

// ============================================================================
// LEDGER
// ============================================================================

func newLedgerCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the stock transaction ledger",
	}

	var (
		item      string
		batch     string
		txType    string
		reference string
		since     string
		until     string
		page      int
		pageSize  int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List ledger entries in append order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				filter := models.TransactionFilter{BatchID: batch}
				if item != "" {
					it, err := resolveItem(ctx, app, item)
					if err != nil {
						return err
					}
					filter.ItemID = it.ID
				}
				if txType != "" {
					t := models.TransactionType(txType)
					if !t.Valid() {
						return &models.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown transaction type %q", txType)}
					}
					filter.TransactionType = &t
				}
				if reference != "" {
					coll, id, err := parseReference(reference)
					if err != nil {
						return err
					}
					filter.ReferenceCollection, filter.ReferenceID = coll, id
				}
				var err error
				if filter.StartDate, err = parseOptionalDate("since", since); err != nil {
					return err
				}
				if filter.EndDate, err = parseOptionalDate("until", until); err != nil {
					return err
				}
				if filter.EndDate != nil {
					end := filter.EndDate.AddDate(0, 0, 1)
					filter.EndDate = &end
				}

				list, err := app.Inventory.ListTransactions(ctx, filter, models.Pagination{Page: page, PageSize: pageSize})
				if err != nil {
					return err
				}
				return out.Success(list, func(w io.Writer, p *message.Printer) {
					tbl := NewTable("SEQ", "TIME", "TYPE", "BATCH", "DELTA", "STOCK", "REFERENCE").AlignRight(0, 4, 5)
					for _, t := range list.Transactions {
						tbl.Row(strconv.FormatInt(t.Seq, 10), util.FormatDateTime(t.Timestamp), string(t.TransactionType),
							shortID(t.BatchID), Qty(p, t.QuantityDelta), Qty(p, t.ResultingStock), t.Reference().String())
					}
					tbl.Render(w)
					p.Fprintf(w, "Page %d of %d (%d entries)\n", list.Page, list.TotalPages, list.Total)
				})
			})
		},
	}
	list.Flags().StringVar(&item, "item", "", "only entries of this item (SKU or ID)")
	list.Flags().StringVar(&batch, "batch", "", "only entries of this batch ID")
	list.Flags().StringVar(&txType, "type", "", "only entries of this type (receipt|consumption|production|sale|adjustment)")
	list.Flags().StringVar(&reference, "ref", "", "only entries caused by this reference (collection/id)")
	list.Flags().StringVar(&since, "since", "", "only entries on or after this date (YYYY-MM-DD)")
	list.Flags().StringVar(&until, "until", "", "only entries on or before this date (YYYY-MM-DD)")
	list.Flags().IntVar(&page, "page", 1, "page number")
	list.Flags().IntVar(&pageSize, "page-size", 50, "entries per page")

	cmd.AddCommand(list)
	return cmd
}

func parseReference(s string) (string, string, error) {
	coll, id, ok := strings.Cut(s, "/")
	if ok && coll != "" && id != "" {
		return coll, id, nil
	}
	return "", "", &models.ValidationError{Field: "ref", Reason: fmt.Sprintf("%q is not collection/id", s)}
}

// ============================================================================
// RECONCILIATION
// ============================================================================

func newReconcileCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [sku...]",
		Short: "Check stock against open batches and the ledger",
		Long: `Check stock against open batches and the ledger.

For every item (or the given SKUs) the denormalized stock must equal both
the remaining quantity of its open batches and the sum of its ledger
deltas. Exits with status 1 when any item does not reconcile.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				ids, err := reconcileTargets(ctx, app, args)
				if err != nil {
					return err
				}

				reports := make([]*inventory.ReconcileReport, 0, len(ids))
				failed := 0
				for _, id := range ids {
					r, err := app.Inventory.Reconcile(ctx, id)
					if err != nil {
						return err
					}
					if !r.OK() {
						failed++
					}
					reports = append(reports, r)
				}

				err = out.Success(reports, func(w io.Writer, p *message.Printer) {
					tbl := NewTable("SKU", "STOCK", "BATCHES", "LEDGER", "RESULT").AlignRight(1, 2, 3)
					for _, r := range reports {
						result := "ok"
						if !r.OK() {
							result = "MISMATCH"
						}
						tbl.Row(r.SKU, Qty(p, r.Stock), Qty(p, r.OpenBatchTotal), Qty(p, r.LedgerTotal), result)
					}
					tbl.Render(w)
					for _, r := range reports {
						for _, m := range r.Mismatches {
							fmt.Fprintf(w, "%s: %s\n", r.SKU, m)
						}
					}
				})
				if err != nil {
					return err
				}
				if failed > 0 {
					return NewExitError(ExitFailure, fmt.Sprintf("%d item(s) do not reconcile", failed))
				}
				return nil
			})
		},
	}
}

func reconcileTargets(ctx context.Context, app *App, skus []string) ([]string, error) {
	var ids []string
	if len(skus) > 0 {
		for _, sku := range skus {
			item, err := resolveItem(ctx, app, sku)
			if err != nil {
				return nil, err
			}
			ids = append(ids, item.ID)
		}
		return ids, nil
	}

	page := models.Pagination{Page: 1, PageSize: 100}
	for {
		list, err := app.Inventory.ListItems(ctx, models.ItemFilter{}, page)
		if err != nil {
			return nil, err
		}
		for _, it := range list.Items {
			ids = append(ids, it.ID)
		}
		if page.Page >= list.TotalPages {
			return ids, nil
		}
		page.Page++
	}
}
