// Package uow runs units of work against the ledger: a read phase that
// gathers every record a business operation touches, then a validate+write
// phase committed as one SQLite transaction. Writes are compare-and-swap on
// row versions; a unit whose read set changed underneath it is retried from
// the read phase, up to a bounded number of attempts.
package uow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/batchworks/batchworks/internal/database"
	"github.com/batchworks/batchworks/internal/metrics"
	"github.com/batchworks/batchworks/internal/models"
	"github.com/batchworks/batchworks/internal/repository"
	"github.com/batchworks/batchworks/internal/util"
)

const (
	// DefaultMaxAttempts bounds retries of a conflicting unit.
	DefaultMaxAttempts = 5

	// DefaultBackoff is the delay before the first retry.
	DefaultBackoff = 20 * time.Millisecond

	maxBackoff = time.Second
)

// Unit is one atomic business operation. Read must reset any state the unit
// carries between attempts; Apply must only use records obtained from the
// Reader of the same attempt.
type Unit interface {
	Name() string
	Read(ctx context.Context, r *Reader) error
	Apply(ctx context.Context, w *Writer) error
}

// Repositories groups the data access a unit of work needs.
type Repositories struct {
	Items        *repository.ItemRepository
	Batches      *repository.BatchRepository
	Tanks        *repository.TankRepository
	Transactions *repository.TransactionRepository
	Runs         *repository.ProductionRepository
}

// NewRepositories builds every repository over db, which may be a
// transaction.
func NewRepositories(db repository.DBTX) *Repositories {
	return &Repositories{
		Items:        repository.NewItemRepository(db),
		Batches:      repository.NewBatchRepository(db),
		Tanks:        repository.NewTankRepository(db),
		Transactions: repository.NewTransactionRepository(db),
		Runs:         repository.NewProductionRepository(db),
	}
}

// AfterReadFunc runs between the read and write phases of every attempt.
type AfterReadFunc func(ctx context.Context, unit string, attempt int) error

// Executor runs units of work.
type Executor struct {
	db          *database.DB
	repos       *Repositories
	clock       util.Clock
	ids         util.IDGenerator
	metrics     *metrics.Recorder
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
	afterRead   AfterReadFunc
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxAttempts sets the attempt bound. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(e *Executor) {
		if n >= 1 {
			e.maxAttempts = n
		}
	}
}

// WithBackoff sets the delay before the first retry.
func WithBackoff(d time.Duration) Option {
	return func(e *Executor) {
		if d >= 0 {
			e.backoff = d
		}
	}
}

// WithClock sets the clock stamped on every write.
func WithClock(c util.Clock) Option {
	return func(e *Executor) { e.clock = c }
}

// WithIDGenerator sets the generator for new record ids.
func WithIDGenerator(g util.IDGenerator) Option {
	return func(e *Executor) { e.ids = g }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithAfterRead installs a hook between the two phases. An error from the
// hook aborts the unit.
func WithAfterRead(fn AfterReadFunc) Option {
	return func(e *Executor) { e.afterRead = fn }
}

// New creates an Executor over db.
func New(db *database.DB, opts ...Option) *Executor {
	e := &Executor{
		db:          db,
		repos:       NewRepositories(db.DB),
		clock:       util.SystemClock{},
		ids:         util.UUIDv7Generator{},
		logger:      slog.Default(),
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Repositories returns the repositories the executor reads and writes through.
func (e *Executor) Repositories() *Repositories {
	return e.repos
}

// Clock returns the executor's clock.
func (e *Executor) Clock() util.Clock {
	return e.clock
}

// IDs returns the executor's id generator.
func (e *Executor) IDs() util.IDGenerator {
	return e.ids
}

// Run executes u, retrying from the read phase on version conflicts. Any
// other error aborts the unit with nothing written. Exhausting the attempt
// bound returns a *models.ConflictError.
func (e *Executor) Run(ctx context.Context, u Unit) error {
	name := u.Name()
	start := time.Now()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			e.metrics.UnitResult(name, metrics.ResultError, time.Since(start))
			return err
		}

		e.metrics.UnitAttempt(name)
		err := e.attempt(ctx, u, attempt)
		if err == nil {
			e.metrics.UnitResult(name, metrics.ResultOK, time.Since(start))
			if attempt > 1 {
				e.logger.Debug("unit of work committed after retry", "unit", name, "attempts", attempt)
			}
			return nil
		}

		if !errors.Is(err, repository.ErrVersionConflict) {
			e.metrics.UnitResult(name, metrics.ResultError, time.Since(start))
			return err
		}

		e.metrics.UnitConflict(name)
		if attempt >= e.maxAttempts {
			e.metrics.UnitResult(name, metrics.ResultConflict, time.Since(start))
			e.logger.Warn("unit of work gave up after conflicts", "unit", name, "attempts", attempt, "error", err)
			return &models.ConflictError{Unit: name, Attempts: attempt}
		}

		delay := e.delay(attempt)
		e.logger.Debug("retrying unit of work", "unit", name, "attempt", attempt, "delay", delay, "error", err)
		if err := sleep(ctx, delay); err != nil {
			e.metrics.UnitResult(name, metrics.ResultError, time.Since(start))
			return err
		}
	}
}

// View runs fn with repositories bound to a single transaction, so every
// read sees the same committed state. The transaction is always rolled back.
func (e *Executor) View(ctx context.Context, fn func(repos *Repositories) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning read transaction: %w", err)
	}
	defer tx.Rollback()
	return fn(NewRepositories(tx))
}

func (e *Executor) attempt(ctx context.Context, u Unit, attempt int) error {
	r := newReader(e.repos)
	if err := u.Read(ctx, r); err != nil {
		return err
	}

	if e.afterRead != nil {
		if err := e.afterRead(ctx, u.Name(), attempt); err != nil {
			return fmt.Errorf("after read hook: %w", err)
		}
	}

	return e.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		w := newWriter(tx, e.repos, r, e.clock.Now(), e.ids)
		if err := u.Apply(ctx, w); err != nil {
			return err
		}
		return w.flush(ctx)
	})
}

// delay grows exponentially from the base backoff with up to 50% jitter.
func (e *Executor) delay(attempt int) time.Duration {
	if e.backoff <= 0 {
		return 0
	}
	d := e.backoff << (attempt - 1)
	if d <= 0 || d > maxBackoff {
		d = maxBackoff
	}
	return d + time.Duration(rand.Int64N(int64(d)/2+1))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
