package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/batchworks/batchworks/internal/models"
)

// TransactionRepository appends to and reads the stock transaction ledger.
// Entries are never updated or deleted; triggers in the schema reject both.
type TransactionRepository struct {
	db DBTX
}

// NewTransactionRepository creates a new transaction repository.
func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `seq, id, inventory_item_id, batch_id, quantity_delta,
	resulting_stock, unit_cost, reference_collection, reference_id,
	transaction_type, actor_id, reason, timestamp`

// Append records a ledger entry and sets its Seq.
func (r *TransactionRepository) Append(ctx context.Context, tx *sql.Tx, t *models.StockTransaction) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("validating transaction: %w", err)
	}

	res, err := conn(r.db, tx).ExecContext(ctx, `
		INSERT INTO stock_transactions (
			id, inventory_item_id, batch_id, quantity_delta, resulting_stock,
			unit_cost, reference_collection, reference_id, transaction_type,
			actor_id, reason, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.InventoryItemID,
		t.BatchID,
		t.QuantityDelta,
		t.ResultingStock,
		t.UnitCost,
		t.ReferenceCollection,
		t.ReferenceID,
		string(t.TransactionType),
		nullableStringPtr(t.ActorID),
		nullableString(t.Reason),
		formatTime(t.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading transaction sequence: %w", err)
	}
	t.Seq = seq
	return nil
}

// ListByItem returns every entry for an item in append order.
func (r *TransactionRepository) ListByItem(ctx context.Context, itemID string) ([]*models.StockTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM stock_transactions
		WHERE inventory_item_id = ?
		ORDER BY seq`, itemID)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var txns []*models.StockTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// List retrieves entries with filtering and pagination, in append order.
func (r *TransactionRepository) List(ctx context.Context, filter models.TransactionFilter, page models.Pagination) (*models.TransactionList, error) {
	var conditions []string
	var args []any

	if filter.ItemID != "" {
		conditions = append(conditions, "inventory_item_id = ?")
		args = append(args, filter.ItemID)
	}
	if filter.BatchID != "" {
		conditions = append(conditions, "batch_id = ?")
		args = append(args, filter.BatchID)
	}
	if filter.TransactionType != nil {
		conditions = append(conditions, "transaction_type = ?")
		args = append(args, string(*filter.TransactionType))
	}
	if filter.ReferenceCollection != "" {
		conditions = append(conditions, "reference_collection = ?")
		args = append(args, filter.ReferenceCollection)
	}
	if filter.ReferenceID != "" {
		conditions = append(conditions, "reference_id = ?")
		args = append(args, filter.ReferenceID)
	}
	if filter.StartDate != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, formatTime(*filter.StartDate))
	}
	if filter.EndDate != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, formatTime(*filter.EndDate))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM stock_transactions %s", whereClause)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting transactions: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM stock_transactions %s ORDER BY seq LIMIT ? OFFSET ?`,
		transactionColumns, whereClause)
	args = append(args, page.Limit(), page.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var txns []*models.StockTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}

	return &models.TransactionList{
		Transactions: txns,
		Total:        total,
		Page:         page.Page,
		TotalPages:   page.TotalPages(total),
	}, rows.Err()
}

func scanTransaction(row rowScanner) (*models.StockTransaction, error) {
	var t models.StockTransaction
	var txType string
	var actor, reason sql.NullString

	err := row.Scan(
		&t.Seq, &t.ID, &t.InventoryItemID, &t.BatchID, &t.QuantityDelta,
		&t.ResultingStock, &t.UnitCost, &t.ReferenceCollection, &t.ReferenceID,
		&txType, &actor, &reason, timeColumn{&t.Timestamp},
	)
	if err != nil {
		return nil, fmt.Errorf("scanning transaction: %w", err)
	}

	t.TransactionType = models.TransactionType(txType)
	t.ActorID = stringPtr(actor)
	t.Reason = reason.String
	return &t, nil
}
