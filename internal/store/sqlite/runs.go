package sqlite

import (
	"context"
	"fmt"
	"time"
)

// Run is one row of the run history.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	Status      string
	DryRun      bool
	WindowStart time.Time
	WindowEnd   time.Time
	Fetched     int
	Dropped     int
	Skipped     int
	Created     int
	Updated     int
	Deleted     int
	Unchanged   int
	Failed      int
	Error       string
	Failures    []RunFailure
}

// RunFailure is a per-event failure of a run.
type RunFailure struct {
	SourceID string
	Op       string
	Error    string
}

// RecordRun stores a run and its failures atomically.
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_runs (id, started_at, finished_at, status, dry_run, window_start, window_end,
			fetched, dropped, skipped, created, updated, deleted, unchanged, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, formatTime(r.StartedAt), formatTime(r.FinishedAt), r.Status, r.DryRun,
		formatTime(r.WindowStart), formatTime(r.WindowEnd),
		r.Fetched, r.Dropped, r.Skipped, r.Created, r.Updated, r.Deleted, r.Unchanged, r.Failed, r.Error)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, f := range r.Failures {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sync_failures (run_id, source_id, op, error) VALUES (?, ?, ?, ?)`,
			r.ID, f.SourceID, f.Op, f.Error); err != nil {
			return fmt.Errorf("failed to insert run failure: %w", err)
		}
	}
	return tx.Commit()
}

// RecentRuns returns up to limit runs, newest first, with their failures.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, dry_run, window_start, window_end,
			fetched, dropped, skipped, created, updated, deleted, unchanged, failed, error
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished, wStart, wEnd string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Status, &r.DryRun, &wStart, &wEnd,
			&r.Fetched, &r.Dropped, &r.Skipped, &r.Created, &r.Updated, &r.Deleted, &r.Unchanged, &r.Failed, &r.Error); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.StartedAt, r.FinishedAt = parseTime(started), parseTime(finished)
		r.WindowStart, r.WindowEnd = parseTime(wStart), parseTime(wEnd)
		runs = append(runs, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// failures are read after the runs cursor is closed: the pool holds one connection
	for i := range runs {
		failures, err := s.runFailures(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Failures = failures
	}
	return runs, nil
}

func (s *Store) runFailures(ctx context.Context, runID string) ([]RunFailure, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT source_id, op, error FROM sync_failures WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run failures: %w", err)
	}
	defer rows.Close()

	var out []RunFailure
	for rows.Next() {
		var f RunFailure
		if err := rows.Scan(&f.SourceID, &f.Op, &f.Error); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// PruneRuns keeps the newest keep runs and deletes the rest.
func (s *Store) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	const stale = `SELECT id FROM sync_runs ORDER BY started_at DESC LIMIT -1 OFFSET ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_failures WHERE run_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("failed to prune run failures: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sync_runs WHERE id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
