package sqlite

import (
	"context"

	"github.com/bobuk/ex2gcal/internal/report"
)

var _ report.Reporter = (*Store)(nil)

// Report records a finished run in the run history.
func (s *Store) Report(ctx context.Context, r *report.Report) error {
	run := Run{
		ID:          r.RunID,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Status:      string(r.Status()),
		DryRun:      r.DryRun,
		WindowStart: r.Window.Start,
		WindowEnd:   r.Window.End,
		Fetched:     r.Fetched,
		Dropped:     r.Dropped,
		Skipped:     r.Skipped,
		Created:     r.Created,
		Updated:     r.Updated,
		Deleted:     r.Deleted,
		Unchanged:   r.Unchanged,
		Failed:      len(r.Failures),
		Error:       r.ErrorText(),
	}
	for _, f := range r.Failures {
		run.Failures = append(run.Failures, RunFailure(f))
	}
	return s.RecordRun(ctx, run)
}
