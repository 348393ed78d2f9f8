package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Sentinel errors for errors.Is matching. The typed errors below carry the
// structured detail callers need to explain a failure.
var (
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrItemNotFound           = errors.New("item not found")
	ErrBatchNotFound          = errors.New("batch not found")
	ErrRunNotFound            = errors.New("production run not found")
	ErrTankNotFound           = errors.New("tank not found")
	ErrCategoryNotFound       = errors.New("category not found")
	ErrInvalidTransition      = errors.New("invalid state transition")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrResourceUnavailable    = errors.New("resource unavailable")
	ErrInvalidInput           = errors.New("invalid input")
)

// InsufficientStockError reports a request that exceeds what open batches hold.
// BatchID is set when a single batch, not the item as a whole, is short.
type InsufficientStockError struct {
	ItemID    string
	ItemName  string
	BatchID   string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	label := e.ItemName
	if label == "" {
		label = e.ItemID
	}
	if e.BatchID != "" {
		return fmt.Sprintf("insufficient stock in batch %s of %s: requested %s, available %s",
			e.BatchID, label, e.Requested, e.Available)
	}
	return fmt.Sprintf("insufficient stock of %s: requested %s, available %s",
		label, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ShortageError is returned when a run with recorded shortages is started.
type ShortageError struct {
	RunID     string
	Shortages []Shortage
}

func (e *ShortageError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s (requested %s, available %s)", s.label(), s.Requested, s.Available))
	}
	return fmt.Sprintf("run %s has shortages: %s", e.RunID, strings.Join(parts, ", "))
}

func (e *ShortageError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// NotFoundError reports a referenced record that does not exist.
type NotFoundError struct {
	Kind string // "item", "batch", "run", "tank", "category"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	switch e.Kind {
	case "item":
		return target == ErrItemNotFound
	case "batch":
		return target == ErrBatchNotFound
	case "run":
		return target == ErrRunNotFound
	case "tank":
		return target == ErrTankNotFound
	case "category":
		return target == ErrCategoryNotFound
	}
	return false
}

// TransitionError reports an event that is illegal for the run's status.
type TransitionError struct {
	RunID  string
	Status RunStatus
	Event  RunEvent
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s run %s in status %s", e.Event, e.RunID, e.Status)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ConflictError is returned once a unit of work has exhausted its retries.
type ConflictError struct {
	Unit     string
	Attempts int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: concurrent modification after %d attempts; refresh and retry", e.Unit, e.Attempts)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConcurrentModification
}

// ResourceUnavailableError reports a tank that cannot be claimed.
type ResourceUnavailableError struct {
	TankID string
	Code   string
	Status TankStatus
}

func (e *ResourceUnavailableError) Error() string {
	name := e.Code
	if name == "" {
		name = e.TankID
	}
	return fmt.Sprintf("tank %s is %s", name, e.Status)
}

func (e *ResourceUnavailableError) Is(target error) bool {
	return target == ErrResourceUnavailable
}

// ValidationError reports malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}
