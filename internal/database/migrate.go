package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

var migrationName = regexp.MustCompile(`^(\d{3})_(\w+)\.sql$`)

// Migration is one versioned schema change.
type Migration struct {
	Version     int
	Description string
	UpSQL       string
	DownSQL     string
	Applied     bool
	AppliedAt   time.Time
}

// MigrationResult reports the versions a migrate call moved between.
type MigrationResult struct {
	Applied []Migration
	From    int
	To      int
}

// Migrator applies the embedded migrations to a database.
type Migrator struct {
	db         *DB
	migrations []Migration
}

// NewMigrator loads the embedded migrations and makes sure the
// schema_migrations table exists.
func NewMigrator(ctx context.Context, db *DB) (*Migrator, error) {
	migs, err := loadMigrations(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  TEXT NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("creating migrations table: %w", err)
	}
	return &Migrator{db: db, migrations: migs}, nil
}

// Migrate brings the schema of db up to date.
func Migrate(ctx context.Context, db *DB) (*MigrationResult, error) {
	m, err := NewMigrator(ctx, db)
	if err != nil {
		return nil, err
	}
	return m.MigrateUp(ctx)
}

func loadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var migs []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationName.FindStringSubmatch(entry.Name())
		if match == nil {
			return nil, fmt.Errorf("migration %s: name must be NNN_description.sql", entry.Name())
		}
		version, _ := strconv.Atoi(match[1])
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, entry.Name(), version)
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		up, down, err := splitSections(string(content))
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", entry.Name(), err)
		}
		migs = append(migs, Migration{
			Version:     version,
			Description: strings.ReplaceAll(match[2], "_", " "),
			UpSQL:       up,
			DownSQL:     down,
		})
	}

	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })
	return migs, nil
}

// splitSections separates the Up and Down halves of a migration file. The Up
// marker must come first; the Down section is optional.
func splitSections(content string) (up, down string, err error) {
	upAt := strings.Index(content, upMarker)
	if upAt < 0 {
		return "", "", errors.New("missing " + upMarker)
	}
	body := content[upAt+len(upMarker):]
	downAt := strings.Index(body, downMarker)
	if downAt < 0 {
		return strings.TrimSpace(body), "", nil
	}
	return strings.TrimSpace(body[:downAt]), strings.TrimSpace(body[downAt+len(downMarker):]), nil
}

// CurrentVersion returns the highest applied version, 0 for an empty schema.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("querying current version: %w", err)
	}
	return version, nil
}

// PendingMigrations returns the migrations newer than the current version.
func (m *Migrator) PendingMigrations(ctx context.Context) ([]Migration, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, mig := range m.migrations {
		if mig.Version > current {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// MigrateUp applies every pending migration, each in its own transaction.
func (m *Migrator) MigrateUp(ctx context.Context) (*MigrationResult, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	res := &MigrationResult{From: current, To: current}

	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}
		slog.Info("applying migration", "version", mig.Version, "description", mig.Description)

		now := time.Now().UTC()
		err := m.exec(ctx, mig.UpSQL,
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			mig.Version, mig.Description, now.Format(time.RFC3339))
		if err != nil {
			return res, fmt.Errorf("migration %03d: %w", mig.Version, err)
		}
		mig.Applied = true
		mig.AppliedAt = now
		res.Applied = append(res.Applied, mig)
		res.To = mig.Version
	}

	if len(res.Applied) > 0 {
		slog.Info("schema migrated", "from", res.From, "to", res.To)
	}
	return res, nil
}

// MigrateDown rolls back the most recent migration.
func (m *Migrator) MigrateDown(ctx context.Context) (*MigrationResult, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	res := &MigrationResult{From: current, To: current}
	if current == 0 {
		return res, errors.New("no migrations to roll back")
	}

	i := sort.Search(len(m.migrations), func(i int) bool { return m.migrations[i].Version >= current })
	if i == len(m.migrations) || m.migrations[i].Version != current {
		return res, fmt.Errorf("migration %03d is applied but unknown", current)
	}
	mig := m.migrations[i]
	if mig.DownSQL == "" {
		return res, fmt.Errorf("migration %03d cannot be rolled back", current)
	}

	slog.Info("rolling back migration", "version", mig.Version, "description", mig.Description)
	if err := m.exec(ctx, mig.DownSQL, "DELETE FROM schema_migrations WHERE version = ?", mig.Version); err != nil {
		return res, fmt.Errorf("rollback %03d: %w", mig.Version, err)
	}

	res.To = 0
	if i > 0 {
		res.To = m.migrations[i-1].Version
	}
	return res, nil
}

// exec runs script and the bookkeeping statement in one transaction.
func (m *Migrator) exec(ctx context.Context, script, record string, args ...any) error {
	return m.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, stmt := range splitStatements(script) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("%w\nSQL: %s", err, stmt)
			}
		}
		_, err := tx.ExecContext(ctx, record, args...)
		return err
	})
}

// Status lists every known migration with its applied time, if any.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("querying applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at string
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return nil, fmt.Errorf("migration %03d applied_at: %w", version, err)
		}
		applied[version] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.migrations))
	for i, mig := range m.migrations {
		out[i] = mig
		out[i].AppliedAt, out[i].Applied = applied[mig.Version]
	}
	return out, nil
}

// splitStatements splits a script on semicolons that end a statement.
// Semicolons inside quoted literals and inside a CREATE TRIGGER body
// (up to its END) are kept.
func splitStatements(script string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune
	)
	flush := func() {
		if stmt := strings.TrimSpace(cur.String()); stmt != "" {
			out = append(out, stmt)
		}
		cur.Reset()
	}

	for _, ch := range script {
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == ';' && !inTriggerBody(cur.String()):
			flush()
			continue
		}
		cur.WriteRune(ch)
	}
	flush()
	return out
}

// inTriggerBody reports whether stmt is a CREATE TRIGGER whose END has not
// been reached yet.
func inTriggerBody(stmt string) bool {
	upper := strings.ToUpper(strings.TrimSpace(stmt))
	return strings.HasPrefix(upper, "CREATE TRIGGER") && !strings.HasSuffix(upper, "END")
}
