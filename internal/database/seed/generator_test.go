package seed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/batchworks/batchworks/internal/database"
	"github.com/batchworks/batchworks/internal/models"
	"github.com/batchworks/batchworks/internal/services/inventory"
	"github.com/batchworks/batchworks/internal/testutil"
	"github.com/batchworks/batchworks/internal/uow"
)

func generate(t *testing.T, db *database.DB) *Summary {
	t.Helper()
	sum, err := NewGenerator(db, DefaultConfig(testutil.Epoch)).Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return sum
}

func inventoryService(db *database.DB) *inventory.Service {
	return inventory.NewService(uow.New(db), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGenerator_Generate(t *testing.T) {
	db := testutil.NewTestDB(t)
	sum := generate(t, db)

	receipts := 0
	for _, def := range Items {
		receipts += def.Receipts
	}

	if sum.Categories != len(Categories) || sum.Items != len(Items) || sum.Tanks != len(Tanks) {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if sum.Batches != receipts {
		t.Errorf("batches = %d, want %d", sum.Batches, receipts)
	}

	testutil.AssertRowCount(t, db, "item_batches", receipts)
	testutil.AssertRowCount(t, db, "stock_transactions", receipts)
	testutil.AssertRowCount(t, db, "production_runs", 0)

	svc := inventoryService(db)
	ctx := context.Background()
	for _, def := range Items {
		item, err := svc.GetItemBySKU(ctx, def.SKU)
		if err != nil {
			t.Fatalf("item %s: %v", def.SKU, err)
		}
		report, err := svc.Reconcile(ctx, item.ID)
		if err != nil {
			t.Fatalf("reconcile %s: %v", def.SKU, err)
		}
		if !report.OK() {
			t.Errorf("%s does not reconcile: %v", def.SKU, report.Mismatches)
		}
		if def.Receipts == 0 && !item.Stock.IsZero() {
			t.Errorf("%s should start empty, has %s", def.SKU, item.Stock)
		}
		if report.OpenBatches != def.Receipts {
			t.Errorf("%s open batches = %d, want %d", def.SKU, report.OpenBatches, def.Receipts)
		}
	}

	tanks, err := svc.ListTanks(ctx, nil)
	if err != nil {
		t.Fatalf("ListTanks: %v", err)
	}
	for _, tank := range tanks {
		if tank.Status != models.TankStatusFree {
			t.Errorf("tank %s is %s", tank.Code, tank.Status)
		}
	}
}

func TestGenerator_ExpiringBatchesOrderDiffers(t *testing.T) {
	db := testutil.NewTestDB(t)
	generate(t, db)

	svc := inventoryService(db)
	ctx := context.Background()
	item, err := svc.GetItemBySKU(ctx, "SYR-CANE")
	if err != nil {
		t.Fatalf("GetItemBySKU: %v", err)
	}
	batches, err := svc.ListBatches(ctx, item.ID, false)
	if err != nil {
		t.Fatalf("ListBatches: %v", err)
	}
	for i, b := range batches {
		if b.ExpiryDate == nil {
			t.Errorf("batch %d has no expiry", i)
		}
		if b.SupplierBatchCode == nil {
			t.Errorf("batch %d has no supplier code", i)
		}
		if i > 0 && !b.CreatedAt.After(batches[i-1].CreatedAt) {
			t.Errorf("batch %d was not received after batch %d", i, i-1)
		}
		if b.CreatedAt.After(testutil.Epoch) {
			t.Errorf("batch %d received in the future: %v", i, b.CreatedAt)
		}
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	first, second := testutil.NewTestDB(t), testutil.NewTestDB(t)
	generate(t, first)
	generate(t, second)

	ctx := context.Background()
	a, b := inventoryService(first), inventoryService(second)
	for _, def := range Items {
		x, err := a.GetItemBySKU(ctx, def.SKU)
		if err != nil {
			t.Fatal(err)
		}
		y, err := b.GetItemBySKU(ctx, def.SKU)
		if err != nil {
			t.Fatal(err)
		}
		if !x.Stock.Equal(y.Stock) {
			t.Errorf("%s: stock %s vs %s with the same seed", def.SKU, x.Stock, y.Stock)
		}
	}
}

func TestGenerator_AlreadySeeded(t *testing.T) {
	db := testutil.NewTestDB(t)
	generate(t, db)

	_, err := NewGenerator(db, DefaultConfig(testutil.Epoch)).Generate(context.Background())
	if !errors.Is(err, ErrAlreadySeeded) {
		t.Errorf("expected ErrAlreadySeeded, got %v", err)
	}
	testutil.AssertRowCount(t, db, "item_categories", len(Categories))
}
