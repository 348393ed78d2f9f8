package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/message"

	"github.com/batchworks/batchworks/internal/models"
	"github.com/batchworks/batchworks/internal/services/inventory"
	"github.com/batchworks/batchworks/internal/util"
)

// ============================================================================
// CATEGORIES
// ============================================================================

func newCategoryCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Manage item categories",
	}

	var description string
	add := &cobra.Command{
		Use:   "add <code> <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				cat, err := app.Inventory.CreateCategory(ctx, inventory.CreateCategoryInput{
					Code:        args[0],
					Name:        args[1],
					Description: description,
				})
				if err != nil {
					return err
				}
				return out.Success(cat, func(w io.Writer, p *message.Printer) {
					fmt.Fprintf(w, "Created category %s (%s)\n", cat.Code, cat.Name)
				})
			})
		},
	}
	add.Flags().StringVar(&description, "description", "", "category description")

	list := &cobra.Command{
		Use:   "list",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				cats, err := app.Inventory.ListCategories(ctx)
				if err != nil {
					return err
				}
				return out.Success(cats, func(w io.Writer, p *message.Printer) {
					tbl := NewTable("CODE", "NAME", "DESCRIPTION")
					for _, c := range cats {
						tbl.Row(c.Code, c.Name, c.Description)
					}
					tbl.Render(w)
				})
			})
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

// ============================================================================
// ITEMS
// ============================================================================

type itemView struct {
	*models.InventoryItem
	BelowSafetyStock bool                `json:"belowSafetyStock"`
	Batches          []*models.ItemBatch `json:"batches,omitempty"`
}

func newItemCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Manage inventory items",
	}

	var (
		uom         string
		category    string
		safetyStock string
	)
	add := &cobra.Command{
		Use:   "add <sku> <name>",
		Short: "Register an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				cat, err := app.Inventory.GetCategoryByCode(ctx, category)
				if err != nil {
					return err
				}
				input := inventory.CreateItemInput{
					SKU:           args[0],
					Name:          args[1],
					UnitOfMeasure: uom,
					CategoryID:    cat.ID,
				}
				if safetyStock != "" {
					d, err := parseQuantity("safetyStock", safetyStock)
					if err != nil {
						return err
					}
					input.SafetyStock = &d
				}
				item, err := app.Inventory.CreateItem(ctx, input)
				if err != nil {
					return err
				}
				return out.Success(item, func(w io.Writer, p *message.Printer) {
					fmt.Fprintf(w, "Registered %s %s (%s)\n", item.SKU, item.Name, item.UnitOfMeasure)
				})
			})
		},
	}
	add.Flags().StringVar(&uom, "uom", "unit", "unit of measure")
	add.Flags().StringVar(&category, "category", "", "category code (required)")
	add.Flags().StringVar(&safetyStock, "safety-stock", "", "stock level that triggers a warning")
	add.MarkFlagRequired("category")

	var (
		filterCategory string
		search         string
		page           int
		pageSize       int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List items with their stock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				filter := models.ItemFilter{Search: search}
				if filterCategory != "" {
					cat, err := app.Inventory.GetCategoryByCode(ctx, filterCategory)
					if err != nil {
						return err
					}
					filter.CategoryID = cat.ID
				}
				list, err := app.Inventory.ListItems(ctx, filter, models.Pagination{Page: page, PageSize: pageSize})
				if err != nil {
					return err
				}
				return out.Success(list, func(w io.Writer, p *message.Printer) {
					tbl := NewTable("SKU", "NAME", "STOCK", "UOM").AlignRight(2)
					for _, it := range list.Items {
						flag := ""
						if it.BelowSafetyStock() {
							flag = " !"
						}
						tbl.Row(it.SKU, it.Name, Qty(p, it.Stock)+flag, it.UnitOfMeasure)
					}
					tbl.Render(w)
					p.Fprintf(w, "Page %d of %d (%d items)\n", list.Page, list.TotalPages, list.Total)
				})
			})
		},
	}
	list.Flags().StringVar(&filterCategory, "category", "", "only items in this category")
	list.Flags().StringVar(&search, "search", "", "match SKU or name")
	list.Flags().IntVar(&page, "page", 1, "page number")
	list.Flags().IntVar(&pageSize, "page-size", 25, "items per page")

	var includeClosed bool
	show := &cobra.Command{
		Use:   "show <sku>",
		Short: "Show an item and its batches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				item, err := resolveItem(ctx, app, args[0])
				if err != nil {
					return err
				}
				batches, err := app.Inventory.ListBatches(ctx, item.ID, includeClosed)
				if err != nil {
					return err
				}
				view := itemView{InventoryItem: item, BelowSafetyStock: item.BelowSafetyStock(), Batches: batches}
				now := app.Executor.Clock().Now()
				return out.Success(view, func(w io.Writer, p *message.Printer) {
					fmt.Fprintf(w, "%s  %s\n", item.SKU, item.Name)
					fmt.Fprintf(w, "Stock: %s %s\n", Qty(p, item.Stock), item.UnitOfMeasure)
					if item.SafetyStock != nil {
						fmt.Fprintf(w, "Safety stock: %s", Qty(p, *item.SafetyStock))
						if view.BelowSafetyStock {
							fmt.Fprint(w, " (below)")
						}
						fmt.Fprintln(w)
					}
					fmt.Fprintln(w)
					writeBatches(w, p, batches, now)
				})
			})
		},
	}
	show.Flags().BoolVar(&includeClosed, "all", false, "include closed batches")

	cmd.AddCommand(add, list, show)
	return cmd
}

func writeBatches(w io.Writer, p *message.Printer, batches []*models.ItemBatch, now time.Time) {
	tbl := NewTable("BATCH", "CODE", "REMAINING", "INITIAL", "UNIT COST", "EXPIRY", "ID").AlignRight(2, 3, 4)
	for _, b := range batches {
		expiry := "-"
		if b.ExpiryDate != nil {
			expiry = util.FormatDate(*b.ExpiryDate)
			if b.IsExpired(now) {
				expiry += " (expired)"
			}
		}
		code := b.InternalBatchCode
		if b.IsClosed {
			code += " (closed)"
		}
		tbl.Row(shortID(b.ID), code, Qty(p, b.QtyRemaining), Qty(p, b.QtyInitial), Money(p, b.UnitCost), expiry, b.ID)
	}
	tbl.Render(w)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}

// ============================================================================
// TANKS
// ============================================================================

func newTankCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tank",
		Short: "Manage tanks",
	}

	add := &cobra.Command{
		Use:   "add <code> [name]",
		Short: "Register a tank",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				input := inventory.CreateTankInput{Code: args[0]}
				if len(args) > 1 {
					input.Name = args[1]
				}
				tank, err := app.Inventory.CreateTank(ctx, input)
				if err != nil {
					return err
				}
				return out.Success(tank, func(w io.Writer, p *message.Printer) {
					fmt.Fprintf(w, "Registered tank %s (%s)\n", tank.Code, tank.Name)
				})
			})
		},
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List tanks and their occupancy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				var filter *models.TankStatus
				if status != "" {
					s := models.TankStatus(status)
					if !s.Valid() {
						return &models.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown tank status %q", status)}
					}
					filter = &s
				}
				tanks, err := app.Inventory.ListTanks(ctx, filter)
				if err != nil {
					return err
				}
				return out.Success(tanks, func(w io.Writer, p *message.Printer) {
					tbl := NewTable("CODE", "NAME", "STATUS", "HELD BY")
					for _, t := range tanks {
						holder := "-"
						if t.HolderKind != nil && t.HolderID != nil {
							holder = string(*t.HolderKind) + " " + *t.HolderID
						}
						tbl.Row(t.Code, t.Name, string(t.Status), holder)
					}
					tbl.Render(w)
				})
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "only tanks in this status (Free|Occupied|Cleaning)")

	var actor, notes string
	clean := &cobra.Command{
		Use:   "clean <code>",
		Short: "Confirm a tank has been sanitized and free it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App, out *OutputFormatter) error {
				tank, err := resolveTank(ctx, app, args[0])
				if err != nil {
					return err
				}
				tank, err = app.Production.ConfirmTankCleaning(ctx, tank.ID, optional(actor), notes)
				if err != nil {
					return err
				}
				return out.Success(tank, func(w io.Writer, p *message.Printer) {
					fmt.Fprintf(w, "Tank %s is %s\n", tank.Code, tank.Status)
				})
			})
		},
	}
	clean.Flags().StringVar(&actor, "actor", "", "operator confirming the cleaning")
	clean.Flags().StringVar(&notes, "notes", "", "cleaning notes")

	cmd.AddCommand(add, list, clean)
	return cmd
}
