package uow

import (
	"context"
	"fmt"

	"github.com/batchworks/batchworks/internal/models"
)

// Reader is the read phase of a unit of work. Every record it returns is
// remembered, together with its version, so the write phase can validate
// against exactly what was read and the commit can detect concurrent changes.
type Reader struct {
	repos   *Repositories
	items   map[string]*models.InventoryItem
	batches map[string]*models.ItemBatch
	tanks   map[string]*models.Tank
	runs    map[string]*models.ProductionRun
}

func newReader(repos *Repositories) *Reader {
	return &Reader{
		repos:   repos,
		items:   make(map[string]*models.InventoryItem),
		batches: make(map[string]*models.ItemBatch),
		tanks:   make(map[string]*models.Tank),
		runs:    make(map[string]*models.ProductionRun),
	}
}

// Item loads an inventory item.
func (r *Reader) Item(ctx context.Context, id string) (*models.InventoryItem, error) {
	if item, ok := r.items[id]; ok {
		return item, nil
	}
	item, err := r.repos.Items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.items[id] = item
	return item, nil
}

// ItemBySKU loads an inventory item by SKU.
func (r *Reader) ItemBySKU(ctx context.Context, sku string) (*models.InventoryItem, error) {
	for _, item := range r.items {
		if item.SKU == sku {
			return item, nil
		}
	}
	item, err := r.repos.Items.GetBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	r.items[item.ID] = item
	return item, nil
}

// Batch loads a batch, its item and the tank it is located in.
func (r *Reader) Batch(ctx context.Context, id string) (*models.ItemBatch, error) {
	if b, ok := r.batches[id]; ok {
		return b, nil
	}
	b, err := r.repos.Batches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.track(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// OpenBatches loads every open batch of an item, oldest first.
func (r *Reader) OpenBatches(ctx context.Context, itemID string) ([]*models.ItemBatch, error) {
	if _, err := r.Item(ctx, itemID); err != nil {
		return nil, err
	}
	loaded, err := r.repos.Batches.ListOpenByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	batches := make([]*models.ItemBatch, 0, len(loaded))
	for _, b := range loaded {
		if cached, ok := r.batches[b.ID]; ok {
			batches = append(batches, cached)
			continue
		}
		if err := r.track(ctx, b); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func (r *Reader) track(ctx context.Context, b *models.ItemBatch) error {
	if _, err := r.Item(ctx, b.InventoryItemID); err != nil {
		return fmt.Errorf("loading item of batch %s: %w", b.ID, err)
	}
	if b.LocationID != nil {
		if _, err := r.Tank(ctx, *b.LocationID); err != nil {
			return fmt.Errorf("loading location of batch %s: %w", b.ID, err)
		}
	}
	r.batches[b.ID] = b
	return nil
}

// Tank loads a tank.
func (r *Reader) Tank(ctx context.Context, id string) (*models.Tank, error) {
	if t, ok := r.tanks[id]; ok {
		return t, nil
	}
	t, err := r.repos.Tanks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.tanks[id] = t
	return t, nil
}

// Run loads a production run.
func (r *Reader) Run(ctx context.Context, id string) (*models.ProductionRun, error) {
	if run, ok := r.runs[id]; ok {
		return run, nil
	}
	run, err := r.repos.Runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.runs[id] = run
	return run, nil
}

// Size returns the number of records in the read set.
func (r *Reader) Size() int {
	return len(r.items) + len(r.batches) + len(r.tanks) + len(r.runs)
}
