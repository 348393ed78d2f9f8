package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/batchworks/batchworks/internal/database"
	"github.com/batchworks/batchworks/internal/services/inventory"
	"github.com/batchworks/batchworks/internal/uow"
	"github.com/batchworks/batchworks/internal/util"
)

// ErrAlreadySeeded is returned when the database already holds a catalogue.
var ErrAlreadySeeded = errors.New("database already contains categories")

// Config configures the seed data generator.
type Config struct {
	// Now is the moment the newest receipt is stamped at. Older receipts are
	// spread over the preceding days so FIFO and FEFO orders differ.
	Now        time.Time
	RandomSeed int64
}

// DefaultConfig returns a default seed configuration.
func DefaultConfig(now time.Time) Config {
	return Config{
		Now:        now.UTC(),
		RandomSeed: 1729,
	}
}

// Summary counts what a seed run created.
type Summary struct {
	Categories int
	Items      int
	Tanks      int
	Batches    int
}

// Generator generates seed data for a plant.
type Generator struct {
	cfg   Config
	rng   *rand.Rand
	clock *util.ManualClock
	inv   *inventory.Service
}

// NewGenerator creates a new seed data generator. Receipts are recorded
// through the inventory service, so the seeded ledger reconciles.
func NewGenerator(db *database.DB, cfg Config) *Generator {
	if cfg.Now.IsZero() {
		cfg.Now = time.Now().UTC()
	}
	clock := util.NewManualClock(cfg.Now)
	exec := uow.New(db, uow.WithClock(clock))
	return &Generator{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.RandomSeed)),
		clock: clock,
		inv:   inventory.NewService(exec, slog.Default()),
	}
}

// Generate creates all seed data.
func (g *Generator) Generate(ctx context.Context) (*Summary, error) {
	existing, err := g.inv.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking existing categories: %w", err)
	}
	if len(existing) > 0 {
		return nil, ErrAlreadySeeded
	}

	slog.Info("starting seed data generation", "items", len(Items), "tanks", len(Tanks))

	var sum Summary
	maxDays := g.maxHistory()
	g.clock.Set(g.cfg.Now.AddDate(0, 0, -maxDays))

	categoryIDs := make(map[string]string, len(Categories))
	for _, def := range Categories {
		cat, err := g.inv.CreateCategory(ctx, inventory.CreateCategoryInput{
			Code:        def.Code,
			Name:        def.Name,
			Description: def.Description,
		})
		if err != nil {
			return nil, fmt.Errorf("creating category %s: %w", def.Code, err)
		}
		categoryIDs[def.Code] = cat.ID
		sum.Categories++
	}

	for _, def := range Tanks {
		if _, err := g.inv.CreateTank(ctx, inventory.CreateTankInput{Code: def[0], Name: def[1]}); err != nil {
			return nil, fmt.Errorf("creating tank %s: %w", def[0], err)
		}
		sum.Tanks++
	}

	for _, def := range Items {
		input := inventory.CreateItemInput{
			SKU:           def.SKU,
			Name:          def.Name,
			UnitOfMeasure: def.UnitOfMeasure,
			CategoryID:    categoryIDs[def.CategoryCode],
		}
		if def.SafetyStock != "" {
			safety := decimal.RequireFromString(def.SafetyStock)
			input.SafetyStock = &safety
		}
		item, err := g.inv.CreateItem(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("creating item %s: %w", def.SKU, err)
		}
		sum.Items++

		n, err := g.receive(ctx, item.ID, def, maxDays)
		if err != nil {
			return nil, fmt.Errorf("receiving %s: %w", def.SKU, err)
		}
		sum.Batches += n
	}

	slog.Info("seed data generation complete",
		"categories", sum.Categories,
		"items", sum.Items,
		"tanks", sum.Tanks,
		"batches", sum.Batches,
	)
	return &sum, nil
}

// receive books def.Receipts batches of an item, one every few days, with
// jittered quantities and prices.
func (g *Generator) receive(ctx context.Context, itemID string, def ItemDef, maxDays int) (int, error) {
	baseCost := decimal.Zero
	if def.UnitCost != "" {
		baseCost = decimal.RequireFromString(def.UnitCost)
	}

	for i := 0; i < def.Receipts; i++ {
		at := g.cfg.Now.AddDate(0, 0, -maxDays+receiptSpacing*i).Add(time.Duration(g.rng.Intn(8)) * time.Hour)
		g.clock.Set(at)

		qty := decimal.NewFromFloat(def.BatchQty * (0.8 + 0.4*g.rng.Float64())).Round(0)
		cost := baseCost.Mul(decimal.NewFromFloat(0.95 + 0.1*g.rng.Float64())).Round(4)

		input := inventory.ReceiptInput{
			ItemID:   itemID,
			Quantity: qty,
			UnitCost: cost,
		}
		if def.ShelfLifeDays > 0 {
			// Later receipts may carry shorter remaining shelf life.
			expiry := util.StartOfDay(at).AddDate(0, 0, def.ShelfLifeDays-g.rng.Intn(def.ShelfLifeDays/3+1))
			input.ExpiryDate = &expiry
		}
		supplier := fmt.Sprintf("SUP-%s-%03d", def.SKU, i+1)
		input.SupplierBatchCode = &supplier

		if _, err := g.inv.ReceivePurchase(ctx, input); err != nil {
			return i, err
		}
	}
	return def.Receipts, nil
}

const receiptSpacing = 7

func (g *Generator) maxHistory() int {
	most := 1
	for _, def := range Items {
		if def.Receipts > most {
			most = def.Receipts
		}
	}
	return receiptSpacing * most
}
