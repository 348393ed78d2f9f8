// Package repository implements SQLite access for the ledger tables. Every
// write accepts an optional *sql.Tx; mutable rows carry a version and updates
// are compare-and-swap on it.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrVersionConflict is returned when a row changed since it was read.
var ErrVersionConflict = errors.New("version conflict")

// DBTX is the subset of *sql.DB and *sql.Tx the repositories use. A
// repository built over a *sql.Tx reads inside that transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn prefers the caller's transaction over the repository's handle.
func conn(db DBTX, tx *sql.Tx) DBTX {
	if tx != nil {
		return tx
	}
	return db
}

type rowScanner interface {
	Scan(dest ...any) error
}

// checkVersioned turns a zero-row CAS update into ErrVersionConflict.
func checkVersioned(res sql.Result, table, id string, version int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s at version %d", ErrVersionConflict, table, id, version)
	}
	return nil
}

// timeLayout is fixed width so that comparing and ordering the TEXT columns
// matches comparing the instants.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts any RFC 3339 timestamp, with or without fraction.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// timeColumn scans a NOT NULL timestamp column.
type timeColumn struct{ dst *time.Time }

func (c timeColumn) Scan(src any) error {
	switch v := src.(type) {
	case string:
		t, err := parseTime(v)
		if err != nil {
			return err
		}
		*c.dst = t
	case []byte:
		return c.Scan(string(v))
	case time.Time:
		*c.dst = v.UTC()
	default:
		return fmt.Errorf("scanning timestamp: unsupported type %T", src)
	}
	return nil
}

// nullTimeColumn scans a nullable timestamp column; NULL leaves *dst nil.
type nullTimeColumn struct{ dst **time.Time }

func (c nullTimeColumn) Scan(src any) error {
	if src == nil {
		*c.dst = nil
		return nil
	}
	var t time.Time
	if err := (timeColumn{&t}).Scan(src); err != nil {
		return err
	}
	*c.dst = &t
	return nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullableDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func decimalPtr(nd decimal.NullDecimal) *decimal.Decimal {
	if !nd.Valid {
		return nil
	}
	d := nd.Decimal
	return &d
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
