package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/batchworks/batchworks/internal/models"
)

// TankRepository handles tank data access.
type TankRepository struct {
	db DBTX
}

// NewTankRepository creates a new tank repository.
func NewTankRepository(db DBTX) *TankRepository {
	return &TankRepository{db: db}
}

const tankColumns = `id, code, name, status, holder_kind, holder_id, last_run_id,
	version, created_at, updated_at`

// Create inserts a new tank.
func (r *TankRepository) Create(ctx context.Context, tx *sql.Tx, t *models.Tank) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("validating tank: %w", err)
	}
	if t.Version == 0 {
		t.Version = 1
	}

	_, err := conn(r.db, tx).ExecContext(ctx, `
		INSERT INTO tanks (`+tankColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.Code,
		t.Name,
		string(t.Status),
		holderKind(t.HolderKind),
		nullableStringPtr(t.HolderID),
		nullableStringPtr(t.LastRunID),
		t.Version,
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting tank: %w", err)
	}
	return nil
}

// GetByID retrieves a tank by ID.
func (r *TankRepository) GetByID(ctx context.Context, id string) (*models.Tank, error) {
	t, err := scanTank(r.db.QueryRowContext(ctx, `SELECT `+tankColumns+` FROM tanks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "tank", ID: id}
	}
	return t, err
}

// GetByCode retrieves a tank by code.
func (r *TankRepository) GetByCode(ctx context.Context, code string) (*models.Tank, error) {
	t, err := scanTank(r.db.QueryRowContext(ctx, `SELECT `+tankColumns+` FROM tanks WHERE code = ?`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "tank", ID: code}
	}
	return t, err
}

// List returns all tanks, optionally filtered by status.
func (r *TankRepository) List(ctx context.Context, status *models.TankStatus) ([]*models.Tank, error) {
	query := `SELECT ` + tankColumns + ` FROM tanks`
	var args []any
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY code`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tanks: %w", err)
	}
	defer rows.Close()

	var tanks []*models.Tank
	for rows.Next() {
		t, err := scanTank(rows)
		if err != nil {
			return nil, err
		}
		tanks = append(tanks, t)
	}
	return tanks, rows.Err()
}

// Update writes the tank's state if its version is unchanged.
func (r *TankRepository) Update(ctx context.Context, tx *sql.Tx, t *models.Tank) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("validating tank: %w", err)
	}

	res, err := conn(r.db, tx).ExecContext(ctx, `
		UPDATE tanks SET
			status = ?, holder_kind = ?, holder_id = ?, last_run_id = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(t.Status),
		holderKind(t.HolderKind),
		nullableStringPtr(t.HolderID),
		nullableStringPtr(t.LastRunID),
		formatTime(t.UpdatedAt),
		t.ID,
		t.Version,
	)
	if err != nil {
		return fmt.Errorf("updating tank: %w", err)
	}
	if err := checkVersioned(res, "tanks", t.ID, t.Version); err != nil {
		return err
	}
	t.Version++
	return nil
}

func holderKind(k *models.HolderKind) sql.NullString {
	if k == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*k), Valid: true}
}

func scanTank(row rowScanner) (*models.Tank, error) {
	var t models.Tank
	var status string
	var kind, holder, lastRun sql.NullString

	err := row.Scan(
		&t.ID, &t.Code, &t.Name, &status, &kind, &holder, &lastRun,
		&t.Version, timeColumn{&t.CreatedAt}, timeColumn{&t.UpdatedAt},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning tank: %w", err)
	}

	t.Status = models.TankStatus(status)
	if kind.Valid {
		k := models.HolderKind(kind.String)
		t.HolderKind = &k
	}
	t.HolderID = stringPtr(holder)
	t.LastRunID = stringPtr(lastRun)
	return &t, nil
}
