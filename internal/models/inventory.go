package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ItemCategory groups inventory items ("RAW", "PACKAGING", "FINISHED").
type ItemCategory struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// InventoryItem is a trackable catalog entry. Stock is the denormalized sum
// of the remaining quantity of all open batches of the item.
type InventoryItem struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	SKU           string           `json:"sku"`
	UnitOfMeasure string           `json:"unitOfMeasure"`
	Stock         decimal.Decimal  `json:"stock"`
	SafetyStock   *decimal.Decimal `json:"safetyStock,omitempty"`
	CategoryID    string           `json:"categoryId"`
	Version       int64            `json:"-"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// Validate checks the item's required fields.
func (i *InventoryItem) Validate() error {
	var errs []error
	if i.ID == "" {
		errs = append(errs, &ValidationError{Field: "id", Reason: "is required"})
	}
	if i.SKU == "" {
		errs = append(errs, &ValidationError{Field: "sku", Reason: "is required"})
	}
	if i.Name == "" {
		errs = append(errs, &ValidationError{Field: "name", Reason: "is required"})
	}
	if i.UnitOfMeasure == "" {
		errs = append(errs, &ValidationError{Field: "unitOfMeasure", Reason: "is required"})
	}
	if i.Stock.IsNegative() {
		errs = append(errs, &ValidationError{Field: "stock", Reason: "must not be negative"})
	}
	if i.SafetyStock != nil && i.SafetyStock.IsNegative() {
		errs = append(errs, &ValidationError{Field: "safetyStock", Reason: "must not be negative"})
	}
	return errors.Join(errs...)
}

// Label returns the human readable name used in error messages.
func (i *InventoryItem) Label() string {
	if i.Name == "" {
		return i.SKU
	}
	return fmt.Sprintf("%s (%s)", i.Name, i.SKU)
}

// BelowSafetyStock reports whether current stock is under the safety level.
func (i *InventoryItem) BelowSafetyStock() bool {
	if i.SafetyStock == nil {
		return false
	}
	return i.Stock.LessThan(*i.SafetyStock)
}

// ItemBatch is a discrete, traceable quantity of one item.
type ItemBatch struct {
	ID                string          `json:"id"`
	InventoryItemID   string          `json:"inventoryItemId"`
	InternalBatchCode string          `json:"internalBatchCode"`
	SupplierBatchCode *string         `json:"supplierBatchCode,omitempty"`
	QtyInitial        decimal.Decimal `json:"qtyInitial"`
	QtyRemaining      decimal.Decimal `json:"qtyRemaining"`
	UnitCost          decimal.Decimal `json:"unitCost"`
	ExpiryDate        *time.Time      `json:"expiryDate,omitempty"`
	LocationID        *string         `json:"locationId,omitempty"`
	IsClosed          bool            `json:"isClosed"`
	Version           int64           `json:"-"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Validate checks 0 <= qtyRemaining <= qtyInitial and the closed flag.
func (b *ItemBatch) Validate() error {
	var errs []error
	if b.ID == "" {
		errs = append(errs, &ValidationError{Field: "id", Reason: "is required"})
	}
	if b.InventoryItemID == "" {
		errs = append(errs, &ValidationError{Field: "inventoryItemId", Reason: "is required"})
	}
	if b.InternalBatchCode == "" {
		errs = append(errs, &ValidationError{Field: "internalBatchCode", Reason: "is required"})
	}
	if !b.QtyInitial.IsPositive() {
		errs = append(errs, &ValidationError{Field: "qtyInitial", Reason: "must be positive"})
	}
	if b.QtyRemaining.IsNegative() || b.QtyRemaining.GreaterThan(b.QtyInitial) {
		errs = append(errs, &ValidationError{Field: "qtyRemaining", Reason: "must be between 0 and qtyInitial"})
	}
	if b.UnitCost.IsNegative() {
		errs = append(errs, &ValidationError{Field: "unitCost", Reason: "must not be negative"})
	}
	if b.IsClosed != !b.QtyRemaining.IsPositive() {
		errs = append(errs, &ValidationError{Field: "isClosed", Reason: "must match qtyRemaining"})
	}
	return errors.Join(errs...)
}

// IsOpen reports whether the batch can still be consumed from.
func (b *ItemBatch) IsOpen() bool {
	return !b.IsClosed && b.QtyRemaining.IsPositive()
}

// Consume removes qty from the batch, closing it when it reaches zero.
// A closed batch never reopens.
func (b *ItemBatch) Consume(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if !b.IsOpen() || qty.GreaterThan(b.QtyRemaining) {
		return &InsufficientStockError{
			ItemID:    b.InventoryItemID,
			BatchID:   b.ID,
			Requested: qty,
			Available: b.QtyRemaining,
		}
	}
	b.QtyRemaining = b.QtyRemaining.Sub(qty)
	b.IsClosed = !b.QtyRemaining.IsPositive()
	return nil
}

// Adjust applies a signed correction to the remaining quantity.
func (b *ItemBatch) Adjust(delta decimal.Decimal) error {
	if delta.IsZero() {
		return &ValidationError{Field: "delta", Reason: "must not be zero"}
	}
	if b.IsClosed {
		return &ValidationError{Field: "batch", Reason: "is closed"}
	}
	next := b.QtyRemaining.Add(delta)
	if next.IsNegative() {
		return &InsufficientStockError{
			ItemID:    b.InventoryItemID,
			BatchID:   b.ID,
			Requested: delta.Neg(),
			Available: b.QtyRemaining,
		}
	}
	if next.GreaterThan(b.QtyInitial) {
		return &ValidationError{Field: "delta", Reason: "would exceed the batch's initial quantity"}
	}
	b.QtyRemaining = next
	b.IsClosed = !next.IsPositive()
	return nil
}

// IsExpired checks if the batch is past its expiry date.
func (b *ItemBatch) IsExpired(now time.Time) bool {
	if b.ExpiryDate == nil {
		return false
	}
	return now.After(*b.ExpiryDate)
}

// DaysUntilExpiry returns days until expiry, -1 if the batch does not expire.
func (b *ItemBatch) DaysUntilExpiry(now time.Time) int {
	if b.ExpiryDate == nil {
		return -1
	}
	return int(b.ExpiryDate.Sub(now).Hours() / 24)
}

// TankStatus is the state of an exclusive holding resource.
type TankStatus string

const (
	TankStatusFree     TankStatus = "Free"
	TankStatusOccupied TankStatus = "Occupied"
	TankStatusCleaning TankStatus = "Cleaning"
)

// Valid returns true if the tank status is valid.
func (s TankStatus) Valid() bool {
	switch s {
	case TankStatusFree, TankStatusOccupied, TankStatusCleaning:
		return true
	default:
		return false
	}
}

// HolderKind says what currently occupies a tank.
type HolderKind string

const (
	HolderRun   HolderKind = "run"
	HolderBatch HolderKind = "batch"
)

// Tank is a mutually exclusive physical slot: at most one run or open batch
// holds it at a time.
type Tank struct {
	ID         string      `json:"id"`
	Code       string      `json:"code"`
	Name       string      `json:"name"`
	Status     TankStatus  `json:"status"`
	HolderKind *HolderKind `json:"holderKind,omitempty"`
	HolderID   *string     `json:"holderId,omitempty"`
	LastRunID  *string     `json:"lastRunId,omitempty"`
	Version    int64       `json:"-"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// Validate checks the tank's required fields.
func (t *Tank) Validate() error {
	if t.ID == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if t.Code == "" {
		return &ValidationError{Field: "code", Reason: "is required"}
	}
	if !t.Status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("invalid tank status %q", t.Status)}
	}
	return nil
}

// HeldBy reports whether the tank is occupied by the given holder.
func (t *Tank) HeldBy(kind HolderKind, id string) bool {
	return t.Status == TankStatusOccupied &&
		t.HolderKind != nil && *t.HolderKind == kind &&
		t.HolderID != nil && *t.HolderID == id
}

// Claim occupies a free tank.
func (t *Tank) Claim(kind HolderKind, id string) error {
	if t.Status != TankStatusFree {
		return &ResourceUnavailableError{TankID: t.ID, Code: t.Code, Status: t.Status}
	}
	t.Status = TankStatusOccupied
	t.HolderKind = &kind
	t.HolderID = &id
	if kind == HolderRun {
		t.LastRunID = &id
	}
	return nil
}

// Handover passes an occupied tank from its current holder to a new one.
func (t *Tank) Handover(kind HolderKind, id string) error {
	if t.Status != TankStatusOccupied {
		return &ResourceUnavailableError{TankID: t.ID, Code: t.Code, Status: t.Status}
	}
	t.HolderKind = &kind
	t.HolderID = &id
	return nil
}

// Release frees the tank. Unless sanitized, it goes to Cleaning first.
func (t *Tank) Release(sanitized bool) {
	t.HolderKind = nil
	t.HolderID = nil
	if sanitized {
		t.Status = TankStatusFree
		return
	}
	t.Status = TankStatusCleaning
}

// ConfirmCleaned moves a tank from Cleaning to Free.
func (t *Tank) ConfirmCleaned() error {
	if t.Status != TankStatusCleaning {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("tank %s is %s, not %s", t.Code, t.Status, TankStatusCleaning)}
	}
	t.Status = TankStatusFree
	return nil
}

// ItemFilter defines filters for querying items.
type ItemFilter struct {
	CategoryID string
	Search     string
}

// ItemList represents a paginated list of items.
type ItemList struct {
	Items      []*InventoryItem `json:"items"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	TotalPages int              `json:"totalPages"`
}
