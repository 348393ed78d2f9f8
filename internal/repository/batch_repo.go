package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/batchworks/batchworks/internal/models"
)

// BatchRepository handles item batch data access.
type BatchRepository struct {
	db DBTX
}

// NewBatchRepository creates a new batch repository.
func NewBatchRepository(db DBTX) *BatchRepository {
	return &BatchRepository{db: db}
}

const batchColumns = `id, inventory_item_id, internal_batch_code, supplier_batch_code,
	qty_initial, qty_remaining, unit_cost, expiry_date, location_id, is_closed,
	version, created_at, updated_at`

// Create inserts a new batch.
func (r *BatchRepository) Create(ctx context.Context, tx *sql.Tx, b *models.ItemBatch) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("validating batch: %w", err)
	}
	if b.Version == 0 {
		b.Version = 1
	}

	query := `
		INSERT INTO item_batches (` + batchColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := conn(r.db, tx).ExecContext(ctx, query,
		b.ID,
		b.InventoryItemID,
		b.InternalBatchCode,
		nullableStringPtr(b.SupplierBatchCode),
		b.QtyInitial,
		b.QtyRemaining,
		b.UnitCost,
		nullableTime(b.ExpiryDate),
		nullableStringPtr(b.LocationID),
		boolToInt(b.IsClosed),
		b.Version,
		formatTime(b.CreatedAt),
		formatTime(b.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting batch: %w", err)
	}
	return nil
}

// GetByID retrieves a batch by ID.
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*models.ItemBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM item_batches WHERE id = ?`

	b, err := scanBatch(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "batch", ID: id}
	}
	return b, err
}

// ListOpenByItem returns the item's open batches, oldest first.
func (r *BatchRepository) ListOpenByItem(ctx context.Context, itemID string) ([]*models.ItemBatch, error) {
	return r.list(ctx, `
		SELECT `+batchColumns+`
		FROM item_batches
		WHERE inventory_item_id = ? AND is_closed = 0
		ORDER BY created_at, id`, itemID)
}

// ListByItem returns the item's batches, optionally including closed ones.
func (r *BatchRepository) ListByItem(ctx context.Context, itemID string, includeClosed bool) ([]*models.ItemBatch, error) {
	if !includeClosed {
		return r.ListOpenByItem(ctx, itemID)
	}
	return r.list(ctx, `
		SELECT `+batchColumns+`
		FROM item_batches
		WHERE inventory_item_id = ?
		ORDER BY created_at, id`, itemID)
}

// Update writes a batch's mutable fields if its version is unchanged.
func (r *BatchRepository) Update(ctx context.Context, tx *sql.Tx, b *models.ItemBatch) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("validating batch: %w", err)
	}

	res, err := conn(r.db, tx).ExecContext(ctx, `
		UPDATE item_batches SET
			qty_remaining = ?, is_closed = ?, location_id = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		b.QtyRemaining,
		boolToInt(b.IsClosed),
		nullableStringPtr(b.LocationID),
		formatTime(b.UpdatedAt),
		b.ID,
		b.Version,
	)
	if err != nil {
		return fmt.Errorf("updating batch: %w", err)
	}
	if err := checkVersioned(res, "item_batches", b.ID, b.Version); err != nil {
		return err
	}
	b.Version++
	return nil
}

func (r *BatchRepository) list(ctx context.Context, query string, args ...any) ([]*models.ItemBatch, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying batches: %w", err)
	}
	defer rows.Close()

	var batches []*models.ItemBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func scanBatch(row rowScanner) (*models.ItemBatch, error) {
	var b models.ItemBatch
	var supplierCode, location sql.NullString
	var isClosed int

	err := row.Scan(
		&b.ID, &b.InventoryItemID, &b.InternalBatchCode, &supplierCode,
		&b.QtyInitial, &b.QtyRemaining, &b.UnitCost, nullTimeColumn{&b.ExpiryDate}, &location, &isClosed,
		&b.Version, timeColumn{&b.CreatedAt}, timeColumn{&b.UpdatedAt},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning batch: %w", err)
	}

	b.SupplierBatchCode = stringPtr(supplierCode)
	b.LocationID = stringPtr(location)
	b.IsClosed = isClosed == 1
	return &b, nil
}
