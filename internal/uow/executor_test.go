package uow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchworks/batchworks/internal/database"
	"github.com/batchworks/batchworks/internal/metrics"
	"github.com/batchworks/batchworks/internal/models"
	"github.com/batchworks/batchworks/internal/testutil"
	"github.com/batchworks/batchworks/internal/uow"
	"github.com/batchworks/batchworks/internal/util"
)

// saleUnit draws qty from one batch, optionally failing after the write.
type saleUnit struct {
	itemID  string
	batchID string
	qty     decimal.Decimal
	failing error

	reads int
}

func (u *saleUnit) Name() string { return "test_sale" }

func (u *saleUnit) Read(ctx context.Context, r *uow.Reader) error {
	u.reads++
	if _, err := r.Item(ctx, u.itemID); err != nil {
		return err
	}
	_, err := r.Batch(ctx, u.batchID)
	return err
}

func (u *saleUnit) Apply(ctx context.Context, w *uow.Writer) error {
	_, err := w.ConsumeBatch(ctx, u.batchID, u.qty, uow.Mutation{
		Type:      models.TransactionSale,
		Reference: models.Reference{Collection: models.RefSales, ID: "sale-1"},
	})
	if err != nil {
		return err
	}
	return u.failing
}

type stock struct {
	db    *database.DB
	item  *models.InventoryItem
	batch *models.ItemBatch
}

func setupStock(t *testing.T) stock {
	t.Helper()
	db := testutil.NewTestDB(t)
	repos := uow.NewRepositories(db.DB)
	ctx := context.Background()

	item := testutil.FixtureItem(func(i *models.InventoryItem) { i.Stock = testutil.Dec("10") })
	require.NoError(t, repos.Items.Create(ctx, nil, item))
	batch := testutil.FixtureBatch(item.ID, "10", "2")
	require.NoError(t, repos.Batches.Create(ctx, nil, batch))
	return stock{db: db, item: item, batch: batch}
}

func (s stock) bumpItem(t *testing.T) {
	testutil.ExecSQL(t, s.db, `UPDATE inventory_items SET version = version + 1 WHERE id = ?`, s.item.ID)
}

func TestExecutor_Commits(t *testing.T) {
	s := setupStock(t)
	rec := metrics.New()
	clock := util.NewManualClock(testutil.Day(1))
	exec := uow.New(s.db, uow.WithMetrics(rec), uow.WithClock(clock), uow.WithIDGenerator(util.NewSequenceGenerator(7)))

	u := &saleUnit{itemID: s.item.ID, batchID: s.batch.ID, qty: testutil.Dec("4")}
	require.NoError(t, exec.Run(context.Background(), u))

	repos := exec.Repositories()
	item, err := repos.Items.GetByID(context.Background(), s.item.ID)
	require.NoError(t, err)
	assert.True(t, item.Stock.Equal(testutil.Dec("6")), "stock = %s", item.Stock)
	assert.True(t, item.UpdatedAt.Equal(testutil.Day(1)))

	entries, err := repos.Transactions.ListByItem(context.Background(), s.item.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].QuantityDelta.Equal(testutil.Dec("-4")))
	assert.True(t, entries[0].ResultingStock.Equal(testutil.Dec("6")))

	assert.Equal(t, 1.0, testutil.CounterValue(t, rec.Attempts("test_sale")))
	assert.Equal(t, 1.0, testutil.CounterValue(t, rec.Results("test_sale", metrics.ResultOK)))
}

func TestExecutor_RetriesOnConflict(t *testing.T) {
	s := setupStock(t)
	rec := metrics.New()

	exec := uow.New(s.db,
		uow.WithMetrics(rec),
		uow.WithBackoff(0),
		uow.WithAfterRead(func(ctx context.Context, unit string, attempt int) error {
			if attempt == 1 {
				s.bumpItem(t)
			}
			return nil
		}),
	)

	u := &saleUnit{itemID: s.item.ID, batchID: s.batch.ID, qty: testutil.Dec("4")}
	require.NoError(t, exec.Run(context.Background(), u))
	assert.Equal(t, 2, u.reads, "unit must be re-read after a conflict")

	testutil.AssertRowCount(t, s.db, "stock_transactions", 1)
	assert.Equal(t, 2.0, testutil.CounterValue(t, rec.Attempts("test_sale")))
	assert.Equal(t, 1.0, testutil.CounterValue(t, rec.Conflicts("test_sale")))
	assert.Equal(t, 1.0, testutil.CounterValue(t, rec.Results("test_sale", metrics.ResultOK)))

	batch, err := exec.Repositories().Batches.GetByID(context.Background(), s.batch.ID)
	require.NoError(t, err)
	assert.True(t, batch.QtyRemaining.Equal(testutil.Dec("6")))
}

func TestExecutor_GivesUpAfterMaxAttempts(t *testing.T) {
	s := setupStock(t)
	rec := metrics.New()

	exec := uow.New(s.db,
		uow.WithMetrics(rec),
		uow.WithMaxAttempts(3),
		uow.WithBackoff(0),
		uow.WithAfterRead(func(ctx context.Context, unit string, attempt int) error {
			s.bumpItem(t)
			return nil
		}),
	)

	u := &saleUnit{itemID: s.item.ID, batchID: s.batch.ID, qty: testutil.Dec("4")}
	err := exec.Run(context.Background(), u)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConcurrentModification)

	var conflict *models.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, 3, conflict.Attempts)
	assert.Equal(t, "test_sale", conflict.Unit)

	testutil.AssertRowCount(t, s.db, "stock_transactions", 0)
	assert.Equal(t, 3.0, testutil.CounterValue(t, rec.Conflicts("test_sale")))
	assert.Equal(t, 1.0, testutil.CounterValue(t, rec.Results("test_sale", metrics.ResultConflict)))
}

func TestExecutor_DoesNotRetryOtherErrors(t *testing.T) {
	tests := []struct {
		name string
		qty  string
		fail error
		want error
	}{
		{"insufficient stock", "11", nil, models.ErrInsufficientStock},
		{"apply error after writes", "4", &models.ValidationError{Field: "x", Reason: "rejected"}, models.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupStock(t)
			exec := uow.New(s.db, uow.WithBackoff(0))

			u := &saleUnit{itemID: s.item.ID, batchID: s.batch.ID, qty: testutil.Dec(tt.qty), failing: tt.fail}
			err := exec.Run(context.Background(), u)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, u.reads)

			testutil.AssertRowCount(t, s.db, "stock_transactions", 0)
			batch, err := exec.Repositories().Batches.GetByID(context.Background(), s.batch.ID)
			require.NoError(t, err)
			assert.True(t, batch.QtyRemaining.Equal(testutil.Dec("10")), "rolled back batch holds %s", batch.QtyRemaining)
			assert.Equal(t, int64(1), batch.Version)
		})
	}
}

func TestExecutor_UnreadRecordsAreRejected(t *testing.T) {
	s := setupStock(t)
	exec := uow.New(s.db)

	u := &saleUnit{itemID: s.item.ID, batchID: s.batch.ID, qty: testutil.Dec("1")}
	err := exec.Run(context.Background(), &unreadUnit{saleUnit: u})
	require.Error(t, err)
	testutil.AssertRowCount(t, s.db, "stock_transactions", 0)
}

// unreadUnit skips the read phase entirely.
type unreadUnit struct {
	*saleUnit
}

func (u *unreadUnit) Read(ctx context.Context, r *uow.Reader) error { return nil }

func TestExecutor_CancelledContext(t *testing.T) {
	s := setupStock(t)
	exec := uow.New(s.db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	u := &saleUnit{itemID: s.item.ID, batchID: s.batch.ID, qty: testutil.Dec("1")}
	err := exec.Run(ctx, u)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, u.reads)
}

func TestExecutor_ViewReadsOneSnapshot(t *testing.T) {
	s := setupStock(t)
	exec := uow.New(s.db)
	ctx := context.Background()

	written := make(chan error, 1)
	err := exec.View(ctx, func(repos *uow.Repositories) error {
		before, err := repos.Items.GetByID(ctx, s.item.ID)
		if err != nil {
			return err
		}

		go func() {
			_, err := s.db.ExecContext(ctx, `UPDATE inventory_items SET stock = '99' WHERE id = ?`, s.item.ID)
			written <- err
		}()
		time.Sleep(50 * time.Millisecond)

		after, err := repos.Items.GetByID(ctx, s.item.ID)
		if err != nil {
			return err
		}
		assert.True(t, before.Stock.Equal(after.Stock), "stock changed inside the view: %s -> %s", before.Stock, after.Stock)
		assert.Equal(t, before.Version, after.Version)
		return nil
	})
	require.NoError(t, err)

	select {
	case err := <-written:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("writer did not finish after the view ended")
	}

	got, err := exec.Repositories().Items.GetByID(ctx, s.item.ID)
	require.NoError(t, err)
	assert.Equal(t, "99", got.Stock.String())
}

func TestExecutor_ViewPropagatesError(t *testing.T) {
	s := setupStock(t)
	exec := uow.New(s.db)

	err := exec.View(context.Background(), func(repos *uow.Repositories) error {
		_, err := repos.Items.GetByID(context.Background(), "missing")
		return err
	})
	var nf *models.NotFoundError
	assert.ErrorAs(t, err, &nf)

	// the connection is released after the rollback
	testutil.AssertRowCount(t, s.db, "inventory_items", 1)
}
