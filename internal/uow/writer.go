package uow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/batchworks/batchworks/internal/models"
	"github.com/batchworks/batchworks/internal/util"
)

// errNotRead is returned when a unit writes a record it did not read.
var errNotRead = errors.New("record was not read in the read phase")

// Writer is the validate+write phase of a unit of work. It only touches
// records from the read set, and every write goes through the open
// transaction. Item stock is accumulated in memory, so each ledger entry
// carries the running resulting stock, and written once with a version check
// when the unit finishes.
type Writer struct {
	tx      *sql.Tx
	repos   *Repositories
	read    *Reader
	now     time.Time
	ids     util.IDGenerator
	touched []*models.InventoryItem
	entries []*models.StockTransaction
}

func newWriter(tx *sql.Tx, repos *Repositories, read *Reader, now time.Time, ids util.IDGenerator) *Writer {
	return &Writer{tx: tx, repos: repos, read: read, now: now, ids: ids}
}

// Now returns the timestamp of this attempt.
func (w *Writer) Now() time.Time {
	return w.now
}

// NewID returns a fresh record id.
func (w *Writer) NewID() string {
	return w.ids.NewID()
}

// Entries returns the ledger entries written so far in this attempt.
func (w *Writer) Entries() []*models.StockTransaction {
	return w.entries
}

// Mutation describes the business event behind a stock movement.
type Mutation struct {
	Type      models.TransactionType
	Reference models.Reference
	ActorID   *string
	Reason    string
}

// CreateBatch inserts a new batch and records its inbound ledger entry. The
// batch's item must have been read.
func (w *Writer) CreateBatch(ctx context.Context, b *models.ItemBatch, m Mutation) error {
	item, ok := w.read.items[b.InventoryItemID]
	if !ok {
		return fmt.Errorf("item %s: %w", b.InventoryItemID, errNotRead)
	}
	if b.LocationID != nil {
		tank, ok := w.read.tanks[*b.LocationID]
		if !ok {
			return fmt.Errorf("tank %s: %w", *b.LocationID, errNotRead)
		}
		if !tank.HeldBy(models.HolderBatch, b.ID) {
			return &models.ResourceUnavailableError{TankID: tank.ID, Code: tank.Code, Status: tank.Status}
		}
	}

	b.CreatedAt = w.now
	b.UpdatedAt = w.now
	if err := w.repos.Batches.Create(ctx, w.tx, b); err != nil {
		return err
	}
	w.read.batches[b.ID] = b

	return w.record(ctx, item, b, b.QtyInitial, m)
}

// ConsumeBatch draws qty from a batch that was read and records the outbound
// ledger entry. A batch that closes releases the tank it occupies into
// Cleaning.
func (w *Writer) ConsumeBatch(ctx context.Context, batchID string, qty decimal.Decimal, m Mutation) (*models.ItemBatch, error) {
	b, item, err := w.batchAndItem(batchID)
	if err != nil {
		return nil, err
	}

	if err := b.Consume(qty); err != nil {
		var short *models.InsufficientStockError
		if errors.As(err, &short) {
			short.ItemName = item.Label()
		}
		return nil, err
	}
	if err := w.saveBatch(ctx, b); err != nil {
		return nil, err
	}
	if err := w.record(ctx, item, b, qty.Neg(), m); err != nil {
		return nil, err
	}
	return b, nil
}

// AdjustBatch applies a signed correction to a batch that was read.
func (w *Writer) AdjustBatch(ctx context.Context, batchID string, delta decimal.Decimal, m Mutation) (*models.ItemBatch, error) {
	b, item, err := w.batchAndItem(batchID)
	if err != nil {
		return nil, err
	}

	if err := b.Adjust(delta); err != nil {
		var short *models.InsufficientStockError
		if errors.As(err, &short) {
			short.ItemName = item.Label()
		}
		return nil, err
	}
	if err := w.saveBatch(ctx, b); err != nil {
		return nil, err
	}
	if err := w.record(ctx, item, b, delta, m); err != nil {
		return nil, err
	}
	return b, nil
}

// SetTank writes a tank from the read set.
func (w *Writer) SetTank(ctx context.Context, t *models.Tank) error {
	if cached, ok := w.read.tanks[t.ID]; !ok || cached != t {
		return fmt.Errorf("tank %s: %w", t.ID, errNotRead)
	}
	t.UpdatedAt = w.now
	return w.repos.Tanks.Update(ctx, w.tx, t)
}

// SaveRun writes a run from the read set.
func (w *Writer) SaveRun(ctx context.Context, run *models.ProductionRun) error {
	if cached, ok := w.read.runs[run.ID]; !ok || cached != run {
		return fmt.Errorf("run %s: %w", run.ID, errNotRead)
	}
	run.UpdatedAt = w.now
	return w.repos.Runs.Update(ctx, w.tx, run)
}

// DeleteRun removes a run from the read set.
func (w *Writer) DeleteRun(ctx context.Context, run *models.ProductionRun) error {
	if cached, ok := w.read.runs[run.ID]; !ok || cached != run {
		return fmt.Errorf("run %s: %w", run.ID, errNotRead)
	}
	return w.repos.Runs.Delete(ctx, w.tx, run.ID, run.Version)
}

func (w *Writer) batchAndItem(batchID string) (*models.ItemBatch, *models.InventoryItem, error) {
	b, ok := w.read.batches[batchID]
	if !ok {
		return nil, nil, fmt.Errorf("batch %s: %w", batchID, errNotRead)
	}
	item, ok := w.read.items[b.InventoryItemID]
	if !ok {
		return nil, nil, fmt.Errorf("item %s: %w", b.InventoryItemID, errNotRead)
	}
	return b, item, nil
}

func (w *Writer) saveBatch(ctx context.Context, b *models.ItemBatch) error {
	b.UpdatedAt = w.now
	if err := w.repos.Batches.Update(ctx, w.tx, b); err != nil {
		return err
	}
	if !b.IsClosed || b.LocationID == nil {
		return nil
	}
	tank, ok := w.read.tanks[*b.LocationID]
	if !ok || !tank.HeldBy(models.HolderBatch, b.ID) {
		return nil
	}
	tank.Release(false)
	return w.SetTank(ctx, tank)
}

// record appends one ledger entry and moves the item's running stock.
func (w *Writer) record(ctx context.Context, item *models.InventoryItem, b *models.ItemBatch, delta decimal.Decimal, m Mutation) error {
	next := item.Stock.Add(delta)
	if next.IsNegative() {
		return &models.InsufficientStockError{
			ItemID:    item.ID,
			ItemName:  item.Label(),
			Requested: delta.Neg(),
			Available: item.Stock,
		}
	}

	entry := &models.StockTransaction{
		ID:                  w.ids.NewID(),
		InventoryItemID:     item.ID,
		BatchID:             b.ID,
		QuantityDelta:       delta,
		ResultingStock:      next,
		UnitCost:            b.UnitCost,
		ReferenceCollection: m.Reference.Collection,
		ReferenceID:         m.Reference.ID,
		TransactionType:     m.Type,
		ActorID:             m.ActorID,
		Reason:              m.Reason,
		Timestamp:           w.now,
	}
	if err := w.repos.Transactions.Append(ctx, w.tx, entry); err != nil {
		return err
	}

	item.Stock = next
	w.entries = append(w.entries, entry)
	w.touch(item)
	return nil
}

func (w *Writer) touch(item *models.InventoryItem) {
	for _, t := range w.touched {
		if t == item {
			return
		}
	}
	w.touched = append(w.touched, item)
}

// flush writes the accumulated stock of every touched item.
func (w *Writer) flush(ctx context.Context) error {
	for _, item := range w.touched {
		item.UpdatedAt = w.now
		if err := w.repos.Items.UpdateStock(ctx, w.tx, item); err != nil {
			return err
		}
	}
	return nil
}
