package inventory

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/batchworks/batchworks/internal/models"
)

// Plan allocates qty of item across its batches. Closed or empty batches are
// skipped. FIFO draws the oldest batch first; FEFO draws the soonest expiring
// first, with batches that never expire last. Plan does not modify batches.
func Plan(item *models.InventoryItem, batches []*models.ItemBatch, qty decimal.Decimal, strategy models.Strategy) (*models.AllocationPlan, error) {
	if !qty.IsPositive() {
		return nil, &models.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	var order func(a, b *models.ItemBatch) int
	switch strategy {
	case models.StrategyFIFO, "":
		strategy, order = models.StrategyFIFO, compareCreated
	case models.StrategyFEFO:
		order = compareExpiry
	default:
		return nil, &models.ValidationError{Field: "strategy", Reason: "must be FIFO or FEFO"}
	}

	open := make([]*models.ItemBatch, 0, len(batches))
	available := decimal.Zero
	for _, b := range batches {
		if b.InventoryItemID != item.ID || !b.IsOpen() {
			continue
		}
		open = append(open, b)
		available = available.Add(b.QtyRemaining)
	}

	if available.LessThan(qty) {
		return nil, &models.InsufficientStockError{
			ItemID:    item.ID,
			ItemName:  item.Label(),
			Requested: qty,
			Available: available,
		}
	}

	slices.SortStableFunc(open, order)

	plan := &models.AllocationPlan{
		ItemID:    item.ID,
		ItemLabel: item.Label(),
		Strategy:  strategy,
		Requested: qty,
	}

	remaining := qty
	for _, b := range open {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, b.QtyRemaining)
		snapshot := *b
		plan.Allocations = append(plan.Allocations, models.Allocation{
			BatchID:    b.ID,
			BatchCode:  b.InternalBatchCode,
			Quantity:   take,
			UnitCost:   b.UnitCost,
			ExpiryDate: b.ExpiryDate,
			Snapshot:   &snapshot,
		})
		remaining = remaining.Sub(take)
	}

	return plan, nil
}

func compareCreated(a, b *models.ItemBatch) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func compareExpiry(a, b *models.ItemBatch) int {
	switch {
	case a.ExpiryDate == nil && b.ExpiryDate != nil:
		return 1
	case a.ExpiryDate != nil && b.ExpiryDate == nil:
		return -1
	case a.ExpiryDate != nil && b.ExpiryDate != nil:
		if c := a.ExpiryDate.Compare(*b.ExpiryDate); c != 0 {
			return c
		}
	}
	return compareCreated(a, b)
}
