package inventory

import (
	"context"

	"github.com/batchworks/batchworks/internal/models"
	"github.com/batchworks/batchworks/internal/uow"
	"github.com/batchworks/batchworks/internal/util"
)

// receiptUnit creates a purchased batch, optionally placing it in a tank.
type receiptUnit struct {
	in ReceiptInput

	item  *models.InventoryItem
	tank  *models.Tank
	batch *models.ItemBatch
}

func (u *receiptUnit) Name() string { return "receive_purchase" }

func (u *receiptUnit) Read(ctx context.Context, r *uow.Reader) error {
	var err error
	u.tank = nil
	if u.item, err = r.Item(ctx, u.in.ItemID); err != nil {
		return err
	}
	if u.in.LocationID != nil {
		if u.tank, err = r.Tank(ctx, *u.in.LocationID); err != nil {
			return err
		}
	}
	return nil
}

func (u *receiptUnit) Apply(ctx context.Context, w *uow.Writer) error {
	b := &models.ItemBatch{
		ID:                w.NewID(),
		InventoryItemID:   u.item.ID,
		InternalBatchCode: util.BatchCode(w.Now(), u.item.SKU),
		SupplierBatchCode: u.in.SupplierBatchCode,
		QtyInitial:        u.in.Quantity,
		QtyRemaining:      u.in.Quantity,
		UnitCost:          u.in.UnitCost,
		ExpiryDate:        u.in.ExpiryDate,
		LocationID:        u.in.LocationID,
	}

	if u.tank != nil {
		if err := u.tank.Claim(models.HolderBatch, b.ID); err != nil {
			return err
		}
		if err := w.SetTank(ctx, u.tank); err != nil {
			return err
		}
	}

	err := w.CreateBatch(ctx, b, uow.Mutation{
		Type:      models.TransactionReceipt,
		Reference: models.Reference{Collection: models.RefPurchases, ID: u.in.PurchaseID},
		ActorID:   u.in.ActorID,
	})
	if err != nil {
		return err
	}
	u.batch = b
	return nil
}

// saleUnit draws a sold quantity from open batches in planner order.
type saleUnit struct {
	in SaleInput

	item    *models.InventoryItem
	batches []*models.ItemBatch
	plan    *models.AllocationPlan
	entries []*models.StockTransaction
}

func (u *saleUnit) Name() string { return "record_sale" }

func (u *saleUnit) Read(ctx context.Context, r *uow.Reader) error {
	var err error
	if u.item, err = r.Item(ctx, u.in.ItemID); err != nil {
		return err
	}
	u.batches, err = r.OpenBatches(ctx, u.in.ItemID)
	return err
}

func (u *saleUnit) Apply(ctx context.Context, w *uow.Writer) error {
	plan, err := Plan(u.item, u.batches, u.in.Quantity, u.in.Strategy)
	if err != nil {
		return err
	}

	m := uow.Mutation{
		Type:      models.TransactionSale,
		Reference: models.Reference{Collection: models.RefSales, ID: u.in.SaleID},
		ActorID:   u.in.ActorID,
	}
	for _, a := range plan.Allocations {
		if _, err := w.ConsumeBatch(ctx, a.BatchID, a.Quantity, m); err != nil {
			return err
		}
	}

	u.plan = plan
	u.entries = w.Entries()
	return nil
}

// adjustUnit applies a stock-take correction to one batch.
type adjustUnit struct {
	in AdjustmentInput
	id string

	batch *models.ItemBatch
	entry *models.StockTransaction
}

func (u *adjustUnit) Name() string { return "adjust_batch" }

func (u *adjustUnit) Read(ctx context.Context, r *uow.Reader) error {
	var err error
	u.batch, err = r.Batch(ctx, u.in.BatchID)
	return err
}

func (u *adjustUnit) Apply(ctx context.Context, w *uow.Writer) error {
	_, err := w.AdjustBatch(ctx, u.batch.ID, u.in.Delta, uow.Mutation{
		Type:      models.TransactionAdjustment,
		Reference: models.Reference{Collection: models.RefAdjustments, ID: u.id},
		ActorID:   u.in.ActorID,
		Reason:    u.in.Reason,
	})
	if err != nil {
		return err
	}
	entries := w.Entries()
	u.entry = entries[len(entries)-1]
	return nil
}
