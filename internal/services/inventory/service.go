// Package inventory provides the item registry, the batch ledger and the
// consumption planner for batchworks.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/batchworks/batchworks/internal/models"
	"github.com/batchworks/batchworks/internal/uow"
)

// Service provides inventory operations. Every stock mutation runs as a unit
// of work on the executor.
type Service struct {
	exec   *uow.Executor
	repos  *uow.Repositories
	logger *slog.Logger
}

// NewService creates a new inventory service.
func NewService(exec *uow.Executor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		exec:   exec,
		repos:  exec.Repositories(),
		logger: logger,
	}
}

// ============================================================================
// CATEGORIES
// ============================================================================

// CreateCategory creates a new item category.
func (s *Service) CreateCategory(ctx context.Context, input CreateCategoryInput) (*models.ItemCategory, error) {
	if strings.TrimSpace(input.Code) == "" {
		return nil, &models.ValidationError{Field: "code", Reason: "is required"}
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, &models.ValidationError{Field: "name", Reason: "is required"}
	}

	cat := &models.ItemCategory{
		ID:          s.exec.IDs().NewID(),
		Code:        strings.ToUpper(strings.TrimSpace(input.Code)),
		Name:        input.Name,
		Description: input.Description,
		CreatedAt:   s.exec.Clock().Now(),
	}

	if err := s.repos.Items.CreateCategory(ctx, nil, cat); err != nil {
		return nil, fmt.Errorf("creating category: %w", err)
	}

	return cat, nil
}

// GetCategory retrieves a category by ID.
func (s *Service) GetCategory(ctx context.Context, id string) (*models.ItemCategory, error) {
	return s.repos.Items.GetCategory(ctx, id)
}

// GetCategoryByCode retrieves a category by code.
func (s *Service) GetCategoryByCode(ctx context.Context, code string) (*models.ItemCategory, error) {
	return s.repos.Items.GetCategoryByCode(ctx, strings.ToUpper(code))
}

// ListCategories retrieves all item categories.
func (s *Service) ListCategories(ctx context.Context) ([]*models.ItemCategory, error) {
	return s.repos.Items.ListCategories(ctx)
}

// ============================================================================
// ITEMS
// ============================================================================

// CreateItem registers a new inventory item with no stock.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (*models.InventoryItem, error) {
	if input.CategoryID != "" {
		if _, err := s.repos.Items.GetCategory(ctx, input.CategoryID); err != nil {
			return nil, err
		}
	}

	now := s.exec.Clock().Now()
	item := &models.InventoryItem{
		ID:            s.exec.IDs().NewID(),
		Name:          input.Name,
		SKU:           strings.ToUpper(strings.TrimSpace(input.SKU)),
		UnitOfMeasure: input.UnitOfMeasure,
		Stock:         decimal.Zero,
		SafetyStock:   input.SafetyStock,
		CategoryID:    input.CategoryID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repos.Items.Create(ctx, nil, item); err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	s.logger.Info("item registered", "item_id", item.ID, "sku", item.SKU)
	return item, nil
}

// GetItem retrieves an item by ID.
func (s *Service) GetItem(ctx context.Context, id string) (*models.InventoryItem, error) {
	return s.repos.Items.GetByID(ctx, id)
}

// GetItemBySKU retrieves an item by SKU.
func (s *Service) GetItemBySKU(ctx context.Context, sku string) (*models.InventoryItem, error) {
	return s.repos.Items.GetBySKU(ctx, strings.ToUpper(sku))
}

// ListItems retrieves items with filtering and pagination.
func (s *Service) ListItems(ctx context.Context, filter models.ItemFilter, page models.Pagination) (*models.ItemList, error) {
	return s.repos.Items.List(ctx, filter, page)
}

// ============================================================================
// TANKS
// ============================================================================

// CreateTank registers a free tank.
func (s *Service) CreateTank(ctx context.Context, input CreateTankInput) (*models.Tank, error) {
	now := s.exec.Clock().Now()
	tank := &models.Tank{
		ID:        s.exec.IDs().NewID(),
		Code:      strings.ToUpper(strings.TrimSpace(input.Code)),
		Name:      input.Name,
		Status:    models.TankStatusFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if tank.Name == "" {
		tank.Name = tank.Code
	}

	if err := s.repos.Tanks.Create(ctx, nil, tank); err != nil {
		return nil, fmt.Errorf("creating tank: %w", err)
	}
	return tank, nil
}

// GetTank retrieves a tank by ID.
func (s *Service) GetTank(ctx context.Context, id string) (*models.Tank, error) {
	return s.repos.Tanks.GetByID(ctx, id)
}

// GetTankByCode retrieves a tank by code.
func (s *Service) GetTankByCode(ctx context.Context, code string) (*models.Tank, error) {
	return s.repos.Tanks.GetByCode(ctx, strings.ToUpper(code))
}

// ListTanks retrieves tanks, optionally in one status.
func (s *Service) ListTanks(ctx context.Context, status *models.TankStatus) ([]*models.Tank, error) {
	return s.repos.Tanks.List(ctx, status)
}

// ============================================================================
// BATCHES
// ============================================================================

// PlanBatchConsumption plans drawing quantity of an item from its open
// batches. It only reads. When name is set it replaces the item label in the
// plan and in an InsufficientStockError.
func (s *Service) PlanBatchConsumption(ctx context.Context, itemID string, quantity decimal.Decimal, name string, strategy models.Strategy) (*models.AllocationPlan, error) {
	if !quantity.IsPositive() {
		return nil, &models.ValidationError{Field: "quantity", Reason: "must be positive"}
	}

	item, err := s.repos.Items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	batches, err := s.repos.Batches.ListOpenByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}

	plan, err := Plan(item, batches, quantity, strategy)
	if err != nil {
		var short *models.InsufficientStockError
		if name != "" && errors.As(err, &short) {
			short.ItemName = name
		}
		return nil, err
	}
	if name != "" {
		plan.ItemLabel = name
	}
	return plan, nil
}

// ReceivePurchase creates a batch from a purchase receipt, increments the
// item's stock and records a receipt transaction. A batch received into a
// tank occupies it.
func (s *Service) ReceivePurchase(ctx context.Context, input ReceiptInput) (*models.ItemBatch, error) {
	if !input.Quantity.IsPositive() {
		return nil, &models.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if input.UnitCost.IsNegative() {
		return nil, &models.ValidationError{Field: "unitCost", Reason: "must not be negative"}
	}
	if input.PurchaseID == "" {
		input.PurchaseID = s.exec.IDs().NewID()
	}

	u := &receiptUnit{in: input}
	if err := s.exec.Run(ctx, u); err != nil {
		return nil, fmt.Errorf("receiving purchase: %w", err)
	}

	s.logger.Info("purchase received",
		"item_id", u.item.ID,
		"batch_id", u.batch.ID,
		"batch_code", u.batch.InternalBatchCode,
		"quantity", u.batch.QtyInitial.String(),
	)
	return u.batch, nil
}

// RecordSale draws a sold quantity from open batches using strategy and
// records one sale transaction per batch touched.
func (s *Service) RecordSale(ctx context.Context, input SaleInput) (*SaleResult, error) {
	if !input.Quantity.IsPositive() {
		return nil, &models.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if input.SaleID == "" {
		input.SaleID = s.exec.IDs().NewID()
	}

	u := &saleUnit{in: input}
	if err := s.exec.Run(ctx, u); err != nil {
		return nil, fmt.Errorf("recording sale: %w", err)
	}

	s.logger.Info("sale recorded",
		"item_id", input.ItemID,
		"sale_id", input.SaleID,
		"quantity", input.Quantity.String(),
		"batches", len(u.plan.Allocations),
	)
	return &SaleResult{SaleID: input.SaleID, Plan: u.plan, Entries: u.entries}, nil
}

// AdjustBatch applies a stock-take correction to a batch. The batch cannot
// drop below zero or rise above its initial quantity.
func (s *Service) AdjustBatch(ctx context.Context, input AdjustmentInput) (*models.StockTransaction, error) {
	if input.Delta.IsZero() {
		return nil, &models.ValidationError{Field: "delta", Reason: "must not be zero"}
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, &models.ValidationError{Field: "reason", Reason: "is required"}
	}

	u := &adjustUnit{in: input, id: s.exec.IDs().NewID()}
	if err := s.exec.Run(ctx, u); err != nil {
		return nil, fmt.Errorf("adjusting batch: %w", err)
	}

	s.logger.Info("batch adjusted",
		"batch_id", input.BatchID,
		"delta", input.Delta.String(),
		"reason", input.Reason,
	)
	return u.entry, nil
}

// GetBatch retrieves a batch by ID.
func (s *Service) GetBatch(ctx context.Context, id string) (*models.ItemBatch, error) {
	return s.repos.Batches.GetByID(ctx, id)
}

// ListBatches retrieves an item's batches, oldest first.
func (s *Service) ListBatches(ctx context.Context, itemID string, includeClosed bool) ([]*models.ItemBatch, error) {
	if _, err := s.repos.Items.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	return s.repos.Batches.ListByItem(ctx, itemID, includeClosed)
}

// ============================================================================
// LEDGER
// ============================================================================

// ListTransactions retrieves ledger entries in append order.
func (s *Service) ListTransactions(ctx context.Context, filter models.TransactionFilter, page models.Pagination) (*models.TransactionList, error) {
	return s.repos.Transactions.List(ctx, filter, page)
}
