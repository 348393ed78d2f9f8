package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/batchworks/batchworks/internal/models"
)

// ProductionRepository handles production run data access.
type ProductionRepository struct {
	db DBTX
}

// NewProductionRepository creates a new production run repository.
func NewProductionRepository(db DBTX) *ProductionRepository {
	return &ProductionRepository{db: db}
}

const runColumns = `id, op_code, type, status, product_sku, qty_planned, qty_actual,
	line_id, tank_id, start_planned, start_actual, end_actual, last_paused_at,
	total_pause_ns, components, consumed_components, shortages, output_batch_id,
	cost_total, cost_unit, yield_pct, throughput_per_hour, notes, cleaning_logs,
	started_by, finished_by, version, created_at, updated_at`

// runRow holds the encoded JSON columns of a run.
type runRow struct {
	components   string
	consumed     string
	shortages    string
	cleaningLogs string
}

func encodeRun(run *models.ProductionRun) (runRow, error) {
	var row runRow
	var err error
	if row.components, err = marshalJSON(nonNil(run.Components)); err != nil {
		return row, fmt.Errorf("encoding components: %w", err)
	}
	if row.consumed, err = marshalJSON(nonNil(run.ConsumedComponents)); err != nil {
		return row, fmt.Errorf("encoding consumed components: %w", err)
	}
	if row.shortages, err = marshalJSON(nonNil(run.Shortages)); err != nil {
		return row, fmt.Errorf("encoding shortages: %w", err)
	}
	if row.cleaningLogs, err = marshalJSON(nonNil(run.CleaningLogs)); err != nil {
		return row, fmt.Errorf("encoding cleaning logs: %w", err)
	}
	return row, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Create inserts a new production run.
func (r *ProductionRepository) Create(ctx context.Context, tx *sql.Tx, run *models.ProductionRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validating run: %w", err)
	}
	if run.Version == 0 {
		run.Version = 1
	}

	enc, err := encodeRun(run)
	if err != nil {
		return err
	}

	var costTotal, costUnit decimal.NullDecimal
	if run.Cost != nil {
		costTotal = decimal.NewNullDecimal(run.Cost.Total)
		costUnit = decimal.NewNullDecimal(run.Cost.Unit)
	}

	_, err = conn(r.db, tx).ExecContext(ctx, `
		INSERT INTO production_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.OpCode,
		string(run.Type),
		string(run.Status),
		run.ProductSKU,
		run.QtyPlanned,
		nullableDecimal(run.QtyActual),
		run.LineID,
		nullableStringPtr(run.TankID),
		formatTime(run.StartPlanned),
		nullableTime(run.StartActual),
		nullableTime(run.EndActual),
		nullableTime(run.LastPausedAt),
		int64(run.TotalPauseDuration),
		enc.components,
		enc.consumed,
		enc.shortages,
		nullableStringPtr(run.OutputBatchID),
		costTotal,
		costUnit,
		nullableDecimal(run.YieldPct),
		nullableDecimal(run.ThroughputPerHour),
		nullableString(run.Notes),
		enc.cleaningLogs,
		nullableStringPtr(run.StartedBy),
		nullableStringPtr(run.FinishedBy),
		run.Version,
		formatTime(run.CreatedAt),
		formatTime(run.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by ID.
func (r *ProductionRepository) GetByID(ctx context.Context, id string) (*models.ProductionRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM production_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "run", ID: id}
	}
	return run, err
}

// GetByOpCode retrieves a run by its op code.
func (r *ProductionRepository) GetByOpCode(ctx context.Context, code string) (*models.ProductionRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM production_runs WHERE op_code = ?`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "run", ID: code}
	}
	return run, err
}

// List retrieves runs with filtering and pagination, newest first.
func (r *ProductionRepository) List(ctx context.Context, filter models.RunFilter, page models.Pagination) (*models.RunList, error) {
	var conditions []string
	var args []any

	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Type != nil {
		conditions = append(conditions, "type = ?")
		args = append(args, string(*filter.Type))
	}
	if filter.LineID != "" {
		conditions = append(conditions, "line_id = ?")
		args = append(args, filter.LineID)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM production_runs %s", whereClause)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM production_runs %s ORDER BY start_planned DESC, id LIMIT ? OFFSET ?`,
		runColumns, whereClause)
	args = append(args, page.Limit(), page.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ProductionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return &models.RunList{
		Runs:       runs,
		Total:      total,
		Page:       page.Page,
		TotalPages: page.TotalPages(total),
	}, rows.Err()
}

// Update writes every mutable column of a run if its version is unchanged.
func (r *ProductionRepository) Update(ctx context.Context, tx *sql.Tx, run *models.ProductionRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validating run: %w", err)
	}

	enc, err := encodeRun(run)
	if err != nil {
		return err
	}

	var costTotal, costUnit decimal.NullDecimal
	if run.Cost != nil {
		costTotal = decimal.NewNullDecimal(run.Cost.Total)
		costUnit = decimal.NewNullDecimal(run.Cost.Unit)
	}

	res, err := conn(r.db, tx).ExecContext(ctx, `
		UPDATE production_runs SET
			status = ?, qty_actual = ?, start_actual = ?, end_actual = ?,
			last_paused_at = ?, total_pause_ns = ?, components = ?,
			consumed_components = ?, shortages = ?, output_batch_id = ?,
			cost_total = ?, cost_unit = ?, yield_pct = ?, throughput_per_hour = ?,
			notes = ?, cleaning_logs = ?, started_by = ?, finished_by = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(run.Status),
		nullableDecimal(run.QtyActual),
		nullableTime(run.StartActual),
		nullableTime(run.EndActual),
		nullableTime(run.LastPausedAt),
		int64(run.TotalPauseDuration),
		enc.components,
		enc.consumed,
		enc.shortages,
		nullableStringPtr(run.OutputBatchID),
		costTotal,
		costUnit,
		nullableDecimal(run.YieldPct),
		nullableDecimal(run.ThroughputPerHour),
		nullableString(run.Notes),
		enc.cleaningLogs,
		nullableStringPtr(run.StartedBy),
		nullableStringPtr(run.FinishedBy),
		formatTime(run.UpdatedAt),
		run.ID,
		run.Version,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if err := checkVersioned(res, "production_runs", run.ID, run.Version); err != nil {
		return err
	}
	run.Version++
	return nil
}

// Delete removes a run if its version is unchanged.
func (r *ProductionRepository) Delete(ctx context.Context, tx *sql.Tx, id string, version int64) error {
	res, err := conn(r.db, tx).ExecContext(ctx,
		`DELETE FROM production_runs WHERE id = ? AND version = ?`, id, version)
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	return checkVersioned(res, "production_runs", id, version)
}

func scanRun(row rowScanner) (*models.ProductionRun, error) {
	var run models.ProductionRun
	var runType, status string
	var qtyActual, costTotal, costUnit, yieldPct, throughput decimal.NullDecimal
	var tankID, outputBatch, notes, startedBy, finishedBy sql.NullString
	var pauseNS int64
	var enc runRow

	err := row.Scan(
		&run.ID, &run.OpCode, &runType, &status, &run.ProductSKU, &run.QtyPlanned, &qtyActual,
		&run.LineID, &tankID, timeColumn{&run.StartPlanned}, nullTimeColumn{&run.StartActual},
		nullTimeColumn{&run.EndActual}, nullTimeColumn{&run.LastPausedAt},
		&pauseNS, &enc.components, &enc.consumed, &enc.shortages, &outputBatch,
		&costTotal, &costUnit, &yieldPct, &throughput, &notes, &enc.cleaningLogs,
		&startedBy, &finishedBy, &run.Version, timeColumn{&run.CreatedAt}, timeColumn{&run.UpdatedAt},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	run.Type = models.RunType(runType)
	run.Status = models.RunStatus(status)
	run.QtyActual = decimalPtr(qtyActual)
	run.TankID = stringPtr(tankID)
	run.TotalPauseDuration = time.Duration(pauseNS)
	run.OutputBatchID = stringPtr(outputBatch)
	if costTotal.Valid && costUnit.Valid {
		run.Cost = &models.RunCost{Total: costTotal.Decimal, Unit: costUnit.Decimal}
	}
	run.YieldPct = decimalPtr(yieldPct)
	run.ThroughputPerHour = decimalPtr(throughput)
	run.Notes = notes.String
	run.StartedBy = stringPtr(startedBy)
	run.FinishedBy = stringPtr(finishedBy)

	if err := unmarshalJSON(enc.components, &run.Components); err != nil {
		return nil, fmt.Errorf("decoding components: %w", err)
	}
	if err := unmarshalJSON(enc.consumed, &run.ConsumedComponents); err != nil {
		return nil, fmt.Errorf("decoding consumed components: %w", err)
	}
	if err := unmarshalJSON(enc.shortages, &run.Shortages); err != nil {
		return nil, fmt.Errorf("decoding shortages: %w", err)
	}
	if err := unmarshalJSON(enc.cleaningLogs, &run.CleaningLogs); err != nil {
		return nil, fmt.Errorf("decoding cleaning logs: %w", err)
	}
	return &run, nil
}
