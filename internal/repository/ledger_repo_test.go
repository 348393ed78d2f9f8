package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/batchworks/batchworks/internal/models"
	"github.com/batchworks/batchworks/internal/testutil"
)

func TestItemRepository_CreateAndGet(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewItemRepository(db.DB)
	ctx := context.Background()

	cat := testutil.FixtureCategory()
	if err := repo.CreateCategory(ctx, nil, cat); err != nil {
		t.Fatalf("failed to create category: %v", err)
	}

	safety := testutil.Dec("12.5")
	item := testutil.FixtureItem(func(i *models.InventoryItem) {
		i.CategoryID = cat.ID
		i.SafetyStock = &safety
	})
	if err := repo.Create(ctx, nil, item); err != nil {
		t.Fatalf("failed to create item: %v", err)
	}

	t.Run("by ID", func(t *testing.T) {
		found, err := repo.GetByID(ctx, item.ID)
		if err != nil {
			t.Fatalf("failed to get item: %v", err)
		}
		if found.SKU != item.SKU || found.CategoryID != cat.ID {
			t.Errorf("unexpected item: %+v", found)
		}
		if found.SafetyStock == nil || !found.SafetyStock.Equal(safety) {
			t.Errorf("safety stock = %v, want %s", found.SafetyStock, safety)
		}
		if !found.CreatedAt.Equal(testutil.Epoch) {
			t.Errorf("created at = %v, want %v", found.CreatedAt, testutil.Epoch)
		}
	})

	t.Run("by SKU", func(t *testing.T) {
		found, err := repo.GetBySKU(ctx, item.SKU)
		if err != nil {
			t.Fatalf("failed to get item by SKU: %v", err)
		}
		if found.ID != item.ID {
			t.Errorf("expected ID %s, got %s", item.ID, found.ID)
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "nope")
		if !errors.Is(err, models.ErrItemNotFound) {
			t.Errorf("expected ErrItemNotFound, got %v", err)
		}
	})

	t.Run("duplicate SKU", func(t *testing.T) {
		dup := testutil.FixtureItem(func(i *models.InventoryItem) { i.SKU = item.SKU })
		if err := repo.Create(ctx, nil, dup); err == nil {
			t.Error("expected unique constraint failure")
		}
	})

	t.Run("list with search", func(t *testing.T) {
		list, err := repo.List(ctx, models.ItemFilter{Search: item.SKU[:6]}, models.DefaultPagination())
		if err != nil {
			t.Fatalf("failed to list items: %v", err)
		}
		if list.Total != 1 || len(list.Items) != 1 {
			t.Errorf("expected 1 item, got %d", list.Total)
		}
	})
}

func TestItemRepository_UpdateStockConflict(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewItemRepository(db.DB)
	ctx := context.Background()

	item := testutil.FixtureItem()
	if err := repo.Create(ctx, nil, item); err != nil {
		t.Fatalf("failed to create item: %v", err)
	}

	first, _ := repo.GetByID(ctx, item.ID)
	second, _ := repo.GetByID(ctx, item.ID)

	first.Stock = testutil.Dec("10")
	if err := repo.UpdateStock(ctx, nil, first); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if first.Version != 2 {
		t.Errorf("version = %d, want 2", first.Version)
	}

	second.Stock = testutil.Dec("20")
	err := repo.UpdateStock(ctx, nil, second)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	found, _ := repo.GetByID(ctx, item.ID)
	if !found.Stock.Equal(testutil.Dec("10")) {
		t.Errorf("stale write landed: stock %s", found.Stock)
	}

	first.Stock = testutil.Dec("-1")
	if err := repo.UpdateStock(ctx, nil, first); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("negative stock: expected ErrInvalidInput, got %v", err)
	}
}

func TestBatchRepository_OpenBatches(t *testing.T) {
	db := testutil.NewTestDB(t)
	items := NewItemRepository(db.DB)
	batches := NewBatchRepository(db.DB)
	ctx := context.Background()

	item := testutil.FixtureItem()
	if err := items.Create(ctx, nil, item); err != nil {
		t.Fatalf("failed to create item: %v", err)
	}

	expiry := testutil.Day(30)
	b1 := testutil.FixtureBatch(item.ID, "5", "1")
	b2 := testutil.FixtureBatch(item.ID, "3", "2", func(b *models.ItemBatch) {
		b.CreatedAt = testutil.Day(1)
		b.ExpiryDate = &expiry
	})
	for _, b := range []*models.ItemBatch{b1, b2} {
		if err := batches.Create(ctx, nil, b); err != nil {
			t.Fatalf("failed to create batch: %v", err)
		}
	}

	b1.QtyRemaining = decimal.Zero
	b1.IsClosed = true
	if err := batches.Update(ctx, nil, b1); err != nil {
		t.Fatalf("failed to close batch: %v", err)
	}

	open, err := batches.ListOpenByItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("ListOpenByItem: %v", err)
	}
	if len(open) != 1 || open[0].ID != b2.ID {
		t.Fatalf("expected only %s open, got %d batches", b2.ID, len(open))
	}
	if open[0].ExpiryDate == nil || !open[0].ExpiryDate.Equal(expiry) {
		t.Errorf("expiry = %v, want %v", open[0].ExpiryDate, expiry)
	}

	all, err := batches.ListByItem(ctx, item.ID, true)
	if err != nil {
		t.Fatalf("ListByItem: %v", err)
	}
	if len(all) != 2 || all[0].ID != b1.ID {
		t.Errorf("expected both batches oldest first, got %d", len(all))
	}

	stale := *b2
	b2.QtyRemaining = testutil.Dec("1")
	if err := batches.Update(ctx, nil, b2); err != nil {
		t.Fatalf("update: %v", err)
	}
	stale.QtyRemaining = testutil.Dec("2")
	if err := batches.Update(ctx, nil, &stale); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}
}

func TestBatchRepository_SubSecondOrdering(t *testing.T) {
	db := testutil.NewTestDB(t)
	items := NewItemRepository(db.DB)
	batches := NewBatchRepository(db.DB)
	ctx := context.Background()

	item := testutil.FixtureItem()
	if err := items.Create(ctx, nil, item); err != nil {
		t.Fatalf("failed to create item: %v", err)
	}

	// Whole-second timestamps must still sort before later fractional ones.
	created := []time.Time{
		testutil.Day(1),
		testutil.Day(1).Add(500 * time.Millisecond),
		testutil.Day(1).Add(time.Second),
	}
	var want []string
	for i := len(created) - 1; i >= 0; i-- {
		at := created[i]
		b := testutil.FixtureBatch(item.ID, "1", "1", func(b *models.ItemBatch) {
			b.CreatedAt = at
			b.UpdatedAt = at
		})
		if err := batches.Create(ctx, nil, b); err != nil {
			t.Fatalf("failed to create batch: %v", err)
		}
		want = append([]string{b.ID}, want...)
	}

	got, err := batches.ListOpenByItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("ListOpenByItem: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d batches, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("batch %d = %s (created %s), want %s", i, got[i].ID, got[i].CreatedAt, want[i])
		}
		if !got[i].CreatedAt.Equal(created[i]) {
			t.Errorf("batch %d created %s, want %s", i, got[i].CreatedAt, created[i])
		}
	}
}

func TestBatchRepository_MalformedTimestamp(t *testing.T) {
	db := testutil.NewTestDB(t)
	items := NewItemRepository(db.DB)
	batches := NewBatchRepository(db.DB)
	ctx := context.Background()

	item := testutil.FixtureItem()
	if err := items.Create(ctx, nil, item); err != nil {
		t.Fatalf("failed to create item: %v", err)
	}
	b := testutil.FixtureBatch(item.ID, "1", "1")
	if err := batches.Create(ctx, nil, b); err != nil {
		t.Fatalf("failed to create batch: %v", err)
	}
	testutil.ExecSQL(t, db, `UPDATE item_batches SET created_at = 'last tuesday' WHERE id = ?`, b.ID)

	if _, err := batches.GetByID(ctx, b.ID); err == nil {
		t.Error("expected an error for a malformed timestamp")
	}
}

func TestFormatTime_FixedWidth(t *testing.T) {
	whole := formatTime(testutil.Day(1))
	frac := formatTime(testutil.Day(1).Add(500 * time.Millisecond))
	if len(whole) != len(frac) {
		t.Errorf("widths differ: %q, %q", whole, frac)
	}
	if whole >= frac {
		t.Errorf("%q should sort before %q", whole, frac)
	}
	parsed, err := parseTime(frac)
	if err != nil || !parsed.Equal(testutil.Day(1).Add(500*time.Millisecond)) {
		t.Errorf("parseTime(%q) = %v, %v", frac, parsed, err)
	}
	if _, err := parseTime("2026-03-02T08:00:00Z"); err != nil {
		t.Errorf("whole-second timestamp rejected: %v", err)
	}
}

func TestTransactionRepository_AppendAndList(t *testing.T) {
	db := testutil.NewTestDB(t)
	items := NewItemRepository(db.DB)
	batches := NewBatchRepository(db.DB)
	txs := NewTransactionRepository(db.DB)
	ctx := context.Background()

	item := testutil.FixtureItem()
	if err := items.Create(ctx, nil, item); err != nil {
		t.Fatalf("failed to create item: %v", err)
	}
	batch := testutil.FixtureBatch(item.ID, "10", "2")
	if err := batches.Create(ctx, nil, batch); err != nil {
		t.Fatalf("failed to create batch: %v", err)
	}

	entries := []*models.StockTransaction{
		{ID: "tx-1", InventoryItemID: item.ID, BatchID: batch.ID, QuantityDelta: testutil.Dec("10"),
			ResultingStock: testutil.Dec("10"), UnitCost: testutil.Dec("2"), ReferenceCollection: models.RefPurchases,
			ReferenceID: "p-1", TransactionType: models.TransactionReceipt, Timestamp: testutil.Epoch},
		{ID: "tx-2", InventoryItemID: item.ID, BatchID: batch.ID, QuantityDelta: testutil.Dec("-4"),
			ResultingStock: testutil.Dec("6"), UnitCost: testutil.Dec("2"), ReferenceCollection: models.RefSales,
			ReferenceID: "s-1", TransactionType: models.TransactionSale, Timestamp: testutil.Epoch.Add(time.Hour)},
	}
	for _, e := range entries {
		if err := txs.Append(ctx, nil, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	t.Run("wrong sign rejected", func(t *testing.T) {
		bad := *entries[1]
		bad.ID = "tx-3"
		bad.QuantityDelta = testutil.Dec("4")
		if err := txs.Append(ctx, nil, &bad); !errors.Is(err, models.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("by item in append order", func(t *testing.T) {
		got, err := txs.ListByItem(ctx, item.ID)
		if err != nil {
			t.Fatalf("ListByItem: %v", err)
		}
		if len(got) != 2 || got[0].ID != "tx-1" || got[1].Seq <= got[0].Seq {
			t.Fatalf("unexpected ledger order: %+v", got)
		}
	})

	t.Run("filtered by reference", func(t *testing.T) {
		list, err := txs.List(ctx, models.TransactionFilter{
			ReferenceCollection: models.RefSales,
			ReferenceID:         "s-1",
		}, models.DefaultPagination())
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if list.Total != 1 || list.Transactions[0].ID != "tx-2" {
			t.Errorf("expected tx-2 only, got %d", list.Total)
		}
	})
}

func TestProductionRepository_RoundTrip(t *testing.T) {
	db := testutil.NewTestDB(t)
	tanks := NewTankRepository(db.DB)
	runs := NewProductionRepository(db.DB)
	ctx := context.Background()

	tank := testutil.FixtureTank()
	if err := tanks.Create(ctx, nil, tank); err != nil {
		t.Fatalf("failed to create tank: %v", err)
	}

	run := testutil.FixtureRun("BLEND-X", "40", func(r *models.ProductionRun) {
		r.Type = models.RunTypeBlend
		r.TankID = &tank.ID
		r.Components = []models.ComponentRequirement{{ItemID: "syrup", Quantity: testutil.Dec("40")}}
	})
	if err := runs.Create(ctx, nil, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	if err := run.Start(testutil.Day(0), []models.ConsumedComponent{
		{ComponentID: "syrup", BatchID: "b1", Quantity: testutil.Dec("40"), UnitCost: testutil.Dec("2")},
	}, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := run.Pause(testutil.Epoch.Add(time.Minute)); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := runs.Update(ctx, nil, run); err != nil {
		t.Fatalf("Update: %v", err)
	}

	found, err := runs.GetByOpCode(ctx, run.OpCode)
	if err != nil {
		t.Fatalf("GetByOpCode: %v", err)
	}
	if found.Status != models.RunStatusPaused || found.LastPausedAt == nil {
		t.Errorf("status = %s, paused at %v", found.Status, found.LastPausedAt)
	}
	if len(found.ConsumedComponents) != 1 || !found.ConsumedComponents[0].UnitCost.Equal(testutil.Dec("2")) {
		t.Errorf("consumed components lost: %+v", found.ConsumedComponents)
	}
	if found.TankID == nil || *found.TankID != tank.ID {
		t.Errorf("tank = %v", found.TankID)
	}

	if err := runs.Delete(ctx, nil, run.ID, run.Version-1); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("delete at stale version: expected ErrVersionConflict, got %v", err)
	}

	status := models.RunStatusPaused
	list, err := runs.List(ctx, models.RunFilter{Status: &status}, models.DefaultPagination())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if list.Total != 1 {
		t.Errorf("expected 1 paused run, got %d", list.Total)
	}
}

func TestTankRepository_Holder(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewTankRepository(db.DB)
	ctx := context.Background()

	tank := testutil.FixtureTank()
	if err := repo.Create(ctx, nil, tank); err != nil {
		t.Fatalf("failed to create tank: %v", err)
	}

	if err := tank.Claim(models.HolderRun, "run-1"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := repo.Update(ctx, nil, tank); err != nil {
		t.Fatalf("Update: %v", err)
	}

	found, err := repo.GetByCode(ctx, tank.Code)
	if err != nil {
		t.Fatalf("GetByCode: %v", err)
	}
	if !found.HeldBy(models.HolderRun, "run-1") {
		t.Errorf("holder not persisted: %+v", found)
	}

	occupied := models.TankStatusOccupied
	list, err := repo.List(ctx, &occupied)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 occupied tank, got %d", len(list))
	}
}
