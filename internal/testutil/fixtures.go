package testutil

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/batchworks/batchworks/internal/models"
)

// Epoch is the fixed reference time fixtures are built around.
var Epoch = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// Day returns Epoch shifted by n days.
func Day(n int) time.Time {
	return Epoch.AddDate(0, 0, n)
}

// Dec parses a decimal literal, panicking on malformed test input.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// FixtureCategory creates a test category with sensible defaults.
func FixtureCategory(overrides ...func(*models.ItemCategory)) *models.ItemCategory {
	id := uuid.New().String()
	cat := &models.ItemCategory{
		ID:        id,
		Code:      "CAT-" + strings.ToUpper(id[:6]),
		Name:      "Raw materials",
		CreatedAt: Epoch,
	}
	for _, override := range overrides {
		override(cat)
	}
	return cat
}

// FixtureItem creates a test inventory item with no stock.
func FixtureItem(overrides ...func(*models.InventoryItem)) *models.InventoryItem {
	id := uuid.New().String()
	item := &models.InventoryItem{
		ID:            id,
		Name:          "Syrup",
		SKU:           "SYR-" + strings.ToUpper(id[:6]),
		UnitOfMeasure: "l",
		Stock:         decimal.Zero,
		Version:       1,
		CreatedAt:     Epoch,
		UpdatedAt:     Epoch,
	}
	for _, override := range overrides {
		override(item)
	}
	return item
}

// FixtureBatch creates an open batch of item with qty units at unitCost.
func FixtureBatch(itemID string, qty, unitCost string, overrides ...func(*models.ItemBatch)) *models.ItemBatch {
	id := uuid.New().String()
	batch := &models.ItemBatch{
		ID:                id,
		InventoryItemID:   itemID,
		InternalBatchCode: "20260302-FIX-" + strings.ToUpper(id[:4]),
		QtyInitial:        Dec(qty),
		QtyRemaining:      Dec(qty),
		UnitCost:          Dec(unitCost),
		Version:           1,
		CreatedAt:         Epoch,
		UpdatedAt:         Epoch,
	}
	for _, override := range overrides {
		override(batch)
	}
	return batch
}

// FixtureTank creates a free tank.
func FixtureTank(overrides ...func(*models.Tank)) *models.Tank {
	id := uuid.New().String()
	tank := &models.Tank{
		ID:        id,
		Code:      "T-" + strings.ToUpper(id[:4]),
		Name:      "Blend tank",
		Status:    models.TankStatusFree,
		Version:   1,
		CreatedAt: Epoch,
		UpdatedAt: Epoch,
	}
	for _, override := range overrides {
		override(tank)
	}
	return tank
}

// FixtureRun creates a Draft fill run producing qty of productSKU.
func FixtureRun(productSKU, qty string, overrides ...func(*models.ProductionRun)) *models.ProductionRun {
	id := uuid.New().String()
	run := &models.ProductionRun{
		ID:           id,
		OpCode:       "OP-20260302-" + strings.ToUpper(id[:4]),
		Type:         models.RunTypeFill,
		Status:       models.RunStatusDraft,
		ProductSKU:   productSKU,
		QtyPlanned:   Dec(qty),
		LineID:       "LINE-1",
		StartPlanned: Epoch,
		Version:      1,
		CreatedAt:    Epoch,
		UpdatedAt:    Epoch,
	}
	for _, override := range overrides {
		override(run)
	}
	return run
}
