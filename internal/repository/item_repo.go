package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/batchworks/batchworks/internal/models"
)

// ItemRepository handles item category and inventory item data access.
type ItemRepository struct {
	db DBTX
}

// NewItemRepository creates a new item repository.
func NewItemRepository(db DBTX) *ItemRepository {
	return &ItemRepository{db: db}
}

// ============================================================================
// CATEGORIES
// ============================================================================

// CreateCategory inserts a new item category.
func (r *ItemRepository) CreateCategory(ctx context.Context, tx *sql.Tx, cat *models.ItemCategory) error {
	query := `
		INSERT INTO item_categories (id, code, name, description, created_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err := conn(r.db, tx).ExecContext(ctx, query,
		cat.ID,
		cat.Code,
		cat.Name,
		nullableString(cat.Description),
		formatTime(cat.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting category: %w", err)
	}
	return nil
}

// GetCategoryByCode retrieves a category by code.
func (r *ItemRepository) GetCategoryByCode(ctx context.Context, code string) (*models.ItemCategory, error) {
	query := `
		SELECT id, code, name, description, created_at
		FROM item_categories
		WHERE code = ?`

	cat, err := scanCategory(r.db.QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "category", ID: code}
	}
	return cat, err
}

// GetCategory retrieves a category by ID.
func (r *ItemRepository) GetCategory(ctx context.Context, id string) (*models.ItemCategory, error) {
	query := `
		SELECT id, code, name, description, created_at
		FROM item_categories
		WHERE id = ?`

	cat, err := scanCategory(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "category", ID: id}
	}
	return cat, err
}

// ListCategories retrieves all categories ordered by code.
func (r *ItemRepository) ListCategories(ctx context.Context) ([]*models.ItemCategory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, code, name, description, created_at
		FROM item_categories
		ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()

	var categories []*models.ItemCategory
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, cat)
	}
	return categories, rows.Err()
}

// ============================================================================
// ITEMS
// ============================================================================

const itemColumns = `id, sku, name, unit_of_measure, stock, safety_stock,
	category_id, version, created_at, updated_at`

// Create inserts a new inventory item.
func (r *ItemRepository) Create(ctx context.Context, tx *sql.Tx, item *models.InventoryItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("validating item: %w", err)
	}
	if item.Version == 0 {
		item.Version = 1
	}

	query := `
		INSERT INTO inventory_items (` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := conn(r.db, tx).ExecContext(ctx, query,
		item.ID,
		item.SKU,
		item.Name,
		item.UnitOfMeasure,
		item.Stock,
		nullableDecimal(item.SafetyStock),
		nullableString(item.CategoryID),
		item.Version,
		formatTime(item.CreatedAt),
		formatTime(item.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting item: %w", err)
	}
	return nil
}

// GetByID retrieves an item by ID.
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*models.InventoryItem, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE id = ?`

	item, err := scanItem(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "item", ID: id}
	}
	return item, err
}

// GetBySKU retrieves an item by SKU.
func (r *ItemRepository) GetBySKU(ctx context.Context, sku string) (*models.InventoryItem, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE sku = ?`

	item, err := scanItem(r.db.QueryRowContext(ctx, query, sku))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "item", ID: sku}
	}
	return item, err
}

// List retrieves items with filtering and pagination.
func (r *ItemRepository) List(ctx context.Context, filter models.ItemFilter, page models.Pagination) (*models.ItemList, error) {
	var conditions []string
	var args []any

	if filter.CategoryID != "" {
		conditions = append(conditions, "category_id = ?")
		args = append(args, filter.CategoryID)
	}
	if filter.Search != "" {
		conditions = append(conditions, "(sku LIKE ? OR name LIKE ?)")
		like := "%" + filter.Search + "%"
		args = append(args, like, like)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM inventory_items %s", whereClause)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting items: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM inventory_items %s ORDER BY sku LIMIT ? OFFSET ?`,
		itemColumns, whereClause)
	args = append(args, page.Limit(), page.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var items []*models.InventoryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return &models.ItemList{
		Items:      items,
		Total:      total,
		Page:       page.Page,
		TotalPages: page.TotalPages(total),
	}, rows.Err()
}

// UpdateStock writes the item's stock if its version is unchanged and
// bumps the version.
func (r *ItemRepository) UpdateStock(ctx context.Context, tx *sql.Tx, item *models.InventoryItem) error {
	if item.Stock.IsNegative() {
		return &models.ValidationError{Field: "stock", Reason: "must not be negative"}
	}

	res, err := conn(r.db, tx).ExecContext(ctx, `
		UPDATE inventory_items
		SET stock = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		item.Stock,
		formatTime(item.UpdatedAt),
		item.ID,
		item.Version,
	)
	if err != nil {
		return fmt.Errorf("updating item stock: %w", err)
	}
	if err := checkVersioned(res, "inventory_items", item.ID, item.Version); err != nil {
		return err
	}
	item.Version++
	return nil
}

func scanCategory(row rowScanner) (*models.ItemCategory, error) {
	var cat models.ItemCategory
	var desc sql.NullString

	if err := row.Scan(&cat.ID, &cat.Code, &cat.Name, &desc, timeColumn{&cat.CreatedAt}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning category: %w", err)
	}

	cat.Description = desc.String
	return &cat, nil
}

func scanItem(row rowScanner) (*models.InventoryItem, error) {
	var item models.InventoryItem
	var safety decimal.NullDecimal
	var categoryID sql.NullString

	err := row.Scan(
		&item.ID, &item.SKU, &item.Name, &item.UnitOfMeasure, &item.Stock, &safety,
		&categoryID, &item.Version, timeColumn{&item.CreatedAt}, timeColumn{&item.UpdatedAt},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning item: %w", err)
	}

	item.SafetyStock = decimalPtr(safety)
	item.CategoryID = categoryID.String
	return &item, nil
}
