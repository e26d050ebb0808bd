// Package sqlite is the local state database: OAuth tokens, the link journal
// and the run history.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverCGO    = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

const timeLayout = time.RFC3339Nano

// Store wraps the state database.
type Store struct {
	DB *sql.DB
}

// Open opens or creates the database at path and applies pending migrations.
func Open(ctx context.Context, path, driver string) (*Store, error) {
	if driver == "" {
		driver = DriverCGO
	}
	dsn, err := dataSource(path, driver)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; runs are short and sequential
	db.SetMaxOpenConns(1)

	s := &Store{DB: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func dataSource(path, driver string) (string, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	switch driver {
	case DriverCGO:
		return path + sep + "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", nil
	case DriverPureGo:
		return path + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", nil
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", driver)
	}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// migrations are applied in order; the db_version row holds how many ran.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS tokens (
		account_name TEXT PRIMARY KEY,
		token TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS mirror_links (
		calendar_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		mirrored_id TEXT NOT NULL,
		last_modified TEXT NOT NULL DEFAULT '',
		fingerprint TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (calendar_id, source_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		status TEXT NOT NULL,
		dry_run INTEGER NOT NULL DEFAULT 0,
		window_start TEXT NOT NULL,
		window_end TEXT NOT NULL,
		fetched INTEGER NOT NULL DEFAULT 0,
		dropped INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		created INTEGER NOT NULL DEFAULT 0,
		updated INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		unchanged INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS sync_failures (
		run_id TEXT NOT NULL REFERENCES sync_runs(id) ON DELETE CASCADE,
		source_id TEXT NOT NULL,
		op TEXT NOT NULL,
		error TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS sync_runs_started ON sync_runs(started_at)`,
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS db_version (
		name TEXT PRIMARY KEY,
		version INTEGER
	)`); err != nil {
		return fmt.Errorf("error creating db_version table: %w", err)
	}

	var version int
	err := s.DB.QueryRowContext(ctx, `SELECT version FROM db_version WHERE name = 'ex2gcal'`).Scan(&version)
	if err == sql.ErrNoRows {
		if _, err := s.DB.ExecContext(ctx, `INSERT INTO db_version (name, version) VALUES ('ex2gcal', 0)`); err != nil {
			return fmt.Errorf("error initializing db_version table: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("error reading db_version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		for _, stmt := range strings.Split(migrations[i], ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d failed: %w", i+1, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE db_version SET version = ? WHERE name = 'ex2gcal'`, i+1); err != nil {
			tx.Rollback()
			return fmt.Errorf("error updating db_version table: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Version returns the applied schema version.
func (s *Store) Version(ctx context.Context) (int, error) {
	var v int
	err := s.DB.QueryRowContext(ctx, `SELECT version FROM db_version WHERE name = 'ex2gcal'`).Scan(&v)
	return v, err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s)
	return t
}
