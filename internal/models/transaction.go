package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the cause of a stock movement.
type TransactionType string

const (
	TransactionReceipt     TransactionType = "receipt"
	TransactionConsumption TransactionType = "consumption"
	TransactionProduction  TransactionType = "production"
	TransactionSale        TransactionType = "sale"
	TransactionAdjustment  TransactionType = "adjustment"
)

func (t TransactionType) String() string {
	return string(t)
}

// Valid returns true if the transaction type is valid.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionReceipt, TransactionConsumption, TransactionProduction,
		TransactionSale, TransactionAdjustment:
		return true
	default:
		return false
	}
}

// AcceptsDelta reports whether a signed quantity fits the type: inbound types
// are positive, outbound types negative, adjustments either way.
func (t TransactionType) AcceptsDelta(delta decimal.Decimal) bool {
	switch t {
	case TransactionReceipt, TransactionProduction:
		return delta.IsPositive()
	case TransactionConsumption, TransactionSale:
		return delta.IsNegative()
	case TransactionAdjustment:
		return !delta.IsZero()
	default:
		return false
	}
}

// Reference collections naming the business event behind a transaction.
const (
	RefPurchases      = "purchases"
	RefProductionRuns = "production_runs"
	RefSales          = "sales"
	RefAdjustments    = "adjustments"
)

// Reference points back at the business event that caused a stock movement.
type Reference struct {
	Collection string `json:"referenceCollection" yaml:"collection"`
	ID         string `json:"referenceId" yaml:"id"`
}

func (r Reference) String() string {
	return r.Collection + "/" + r.ID
}

// StockTransaction is one append-only ledger entry.
type StockTransaction struct {
	ID                  string          `json:"id"`
	Seq                 int64           `json:"seq"`
	InventoryItemID     string          `json:"inventoryItemId"`
	BatchID             string          `json:"batchId"`
	QuantityDelta       decimal.Decimal `json:"quantityDelta"`
	ResultingStock      decimal.Decimal `json:"resultingStock"`
	UnitCost            decimal.Decimal `json:"unitCost"`
	ReferenceCollection string          `json:"referenceCollection"`
	ReferenceID         string          `json:"referenceId"`
	TransactionType     TransactionType `json:"transactionType"`
	ActorID             *string         `json:"actorId,omitempty"`
	Reason              string          `json:"reason,omitempty"`
	Timestamp           time.Time       `json:"timestamp"`
}

// Validate checks the entry before it is appended.
func (t *StockTransaction) Validate() error {
	if t.ID == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if t.InventoryItemID == "" {
		return &ValidationError{Field: "inventoryItemId", Reason: "is required"}
	}
	if t.BatchID == "" {
		return &ValidationError{Field: "batchId", Reason: "is required"}
	}
	if !t.TransactionType.Valid() {
		return &ValidationError{Field: "transactionType", Reason: fmt.Sprintf("invalid type %q", t.TransactionType)}
	}
	if !t.TransactionType.AcceptsDelta(t.QuantityDelta) {
		return &ValidationError{Field: "quantityDelta", Reason: fmt.Sprintf("%s is not valid for a %s", t.QuantityDelta, t.TransactionType)}
	}
	if t.ResultingStock.IsNegative() {
		return &ValidationError{Field: "resultingStock", Reason: "must not be negative"}
	}
	if t.ReferenceCollection == "" || t.ReferenceID == "" {
		return &ValidationError{Field: "reference", Reason: "is required"}
	}
	return nil
}

// Reference returns the entry's business reference.
func (t *StockTransaction) Reference() Reference {
	return Reference{Collection: t.ReferenceCollection, ID: t.ReferenceID}
}

// TransactionFilter defines filters for querying transactions.
type TransactionFilter struct {
	ItemID              string
	BatchID             string
	TransactionType     *TransactionType
	ReferenceCollection string
	ReferenceID         string
	StartDate           *time.Time
	EndDate             *time.Time
}

// TransactionList represents a paginated list of transactions.
type TransactionList struct {
	Transactions []*StockTransaction `json:"transactions"`
	Total        int                 `json:"total"`
	Page         int                 `json:"page"`
	TotalPages   int                 `json:"totalPages"`
}
