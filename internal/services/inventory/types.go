package inventory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/batchworks/batchworks/internal/models"
)

// CreateCategoryInput contains data for creating an item category.
type CreateCategoryInput struct {
	Code        string
	Name        string
	Description string
}

// CreateItemInput contains data for registering an inventory item.
type CreateItemInput struct {
	SKU           string
	Name          string
	UnitOfMeasure string
	CategoryID    string
	SafetyStock   *decimal.Decimal
}

// CreateTankInput contains data for registering a tank.
type CreateTankInput struct {
	Code string
	Name string
}

// ReceiptInput contains data for receiving a purchased batch.
type ReceiptInput struct {
	ItemID            string
	Quantity          decimal.Decimal
	UnitCost          decimal.Decimal
	SupplierBatchCode *string
	ExpiryDate        *time.Time
	LocationID        *string // tank the batch is stored in
	PurchaseID        string  // generated when empty
	ActorID           *string
}

// SaleInput contains data for a direct sale drawn from open batches.
type SaleInput struct {
	ItemID   string
	Quantity decimal.Decimal
	Strategy models.Strategy
	SaleID   string // generated when empty
	ActorID  *string
}

// AdjustmentInput contains data for a stock-take correction of one batch.
type AdjustmentInput struct {
	BatchID string
	Delta   decimal.Decimal
	Reason  string
	ActorID *string
}

// SaleResult is the committed outcome of a sale.
type SaleResult struct {
	SaleID  string
	Plan    *models.AllocationPlan
	Entries []*models.StockTransaction
}
