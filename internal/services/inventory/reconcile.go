package inventory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/batchworks/batchworks/internal/models"
	"github.com/batchworks/batchworks/internal/uow"
)

// ReconcileReport compares an item's stock with its open batches and with a
// replay of its ledger.
type ReconcileReport struct {
	ItemID         string          `json:"itemId"`
	SKU            string          `json:"sku"`
	Stock          decimal.Decimal `json:"stock"`
	OpenBatchTotal decimal.Decimal `json:"openBatchTotal"`
	LedgerTotal    decimal.Decimal `json:"ledgerTotal"`
	OpenBatches    int             `json:"openBatches"`
	Entries        int             `json:"entries"`
	Mismatches     []string        `json:"mismatches,omitempty"`
}

// OK reports whether every check passed.
func (r *ReconcileReport) OK() bool {
	return len(r.Mismatches) == 0
}

// Reconcile checks that the item's stock equals the remaining quantity of its
// open batches and the sum of its ledger deltas, and that every ledger entry's
// resulting stock equals the running sum up to that entry. The three are read
// in one transaction so a concurrent writer cannot produce a false mismatch.
func (s *Service) Reconcile(ctx context.Context, itemID string) (*ReconcileReport, error) {
	var (
		item    *models.InventoryItem
		batches []*models.ItemBatch
		entries []*models.StockTransaction
	)
	err := s.exec.View(ctx, func(repos *uow.Repositories) error {
		var err error
		if item, err = repos.Items.GetByID(ctx, itemID); err != nil {
			return err
		}
		if batches, err = repos.Batches.ListOpenByItem(ctx, itemID); err != nil {
			return fmt.Errorf("listing batches: %w", err)
		}
		if entries, err = repos.Transactions.ListByItem(ctx, itemID); err != nil {
			return fmt.Errorf("listing transactions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	report := reconcile(item, batches, entries)
	if !report.OK() {
		s.logger.Warn("stock does not reconcile", "item_id", item.ID, "mismatches", len(report.Mismatches))
	}
	return report, nil
}

func reconcile(item *models.InventoryItem, batches []*models.ItemBatch, entries []*models.StockTransaction) *ReconcileReport {
	report := &ReconcileReport{
		ItemID:         item.ID,
		SKU:            item.SKU,
		Stock:          item.Stock,
		OpenBatchTotal: decimal.Zero,
		LedgerTotal:    decimal.Zero,
		OpenBatches:    len(batches),
		Entries:        len(entries),
	}

	for _, b := range batches {
		report.OpenBatchTotal = report.OpenBatchTotal.Add(b.QtyRemaining)
	}

	for _, e := range entries {
		report.LedgerTotal = report.LedgerTotal.Add(e.QuantityDelta)
		if !e.ResultingStock.Equal(report.LedgerTotal) {
			report.Mismatches = append(report.Mismatches, fmt.Sprintf(
				"entry %d (%s): resulting stock %s, running sum %s",
				e.Seq, e.TransactionType, e.ResultingStock, report.LedgerTotal))
		}
	}

	if !report.OpenBatchTotal.Equal(item.Stock) {
		report.Mismatches = append(report.Mismatches, fmt.Sprintf(
			"open batches hold %s, item stock is %s", report.OpenBatchTotal, item.Stock))
	}
	if !report.LedgerTotal.Equal(item.Stock) {
		report.Mismatches = append(report.Mismatches, fmt.Sprintf(
			"ledger sums to %s, item stock is %s", report.LedgerTotal, item.Stock))
	}
	return report
}
