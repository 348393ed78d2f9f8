package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/batchworks/batchworks/internal/models"
	"github.com/batchworks/batchworks/internal/util"
)

// resolveItem finds an item by SKU, falling back to its ID.
func resolveItem(ctx context.Context, app *App, ref string) (*models.InventoryItem, error) {
	item, err := app.Inventory.GetItemBySKU(ctx, ref)
	if err == nil || !errors.Is(err, models.ErrItemNotFound) || !util.IsValidID(ref) {
		return item, err
	}
	return app.Inventory.GetItem(ctx, ref)
}

// resolveTank finds a tank by code, falling back to its ID.
func resolveTank(ctx context.Context, app *App, ref string) (*models.Tank, error) {
	tank, err := app.Inventory.GetTankByCode(ctx, ref)
	if err == nil || !errors.Is(err, models.ErrTankNotFound) || !util.IsValidID(ref) {
		return tank, err
	}
	return app.Inventory.GetTank(ctx, ref)
}

// resolveRun finds a run by op code, falling back to its ID.
func resolveRun(ctx context.Context, app *App, ref string) (*models.ProductionRun, error) {
	run, err := app.Production.GetRunByOpCode(ctx, ref)
	if err == nil || !errors.Is(err, models.ErrRunNotFound) || !util.IsValidID(ref) {
		return run, err
	}
	return app.Production.GetRun(ctx, ref)
}

func parseQuantity(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, &models.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a number", s)}
	}
	return d, nil
}

func parseOptionalDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := util.ParseDate(s)
	if err != nil {
		return nil, &models.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a YYYY-MM-DD date", s)}
	}
	return &t, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
