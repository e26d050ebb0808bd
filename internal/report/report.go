// Package report describes the outcome of one sync run and the sinks it is
// handed to once the run is over.
package report

import (
	"context"
	"time"

	"github.com/bobuk/ex2gcal/internal/event"
)

type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
	StatusDryRun  Status = "dry-run"
)

// Exit codes of the sync command.
const (
	ExitOK       = 0
	ExitRunLevel = 1
	ExitPartial  = 2
)

// OpNormalize marks a Failure of a source event that could not be read.
const OpNormalize = "normalize"

// Failure is one per-event failure.
type Failure struct {
	SourceID string `json:"sourceId"`
	Op       string `json:"op"`
	Error    string `json:"error"`
}

// Report is the end-of-run summary.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Window     event.Window

	Fetched int
	Dropped int
	// OutOfWindow counts fetched events that do not overlap Window.
	OutOfWindow int
	Skipped     int
	Cancelled   int
	Foreign     int
	Protected   int

	Created   int
	Updated   int
	Deleted   int
	Unchanged int

	Failures []Failure
	// Malformed lists the dropped source events. They do not make a run partial.
	Malformed []Failure
	// Err is the run-level error that aborted the run.
	Err error
}

// Status derives the run status.
func (r *Report) Status() Status {
	switch {
	case r.Err != nil:
		return StatusFailed
	case len(r.Failures) > 0:
		return StatusPartial
	case r.DryRun:
		return StatusDryRun
	default:
		return StatusOK
	}
}

// ExitCode is 1 for a run-level failure, 2 when only some events failed.
func (r *Report) ExitCode() int {
	switch r.Status() {
	case StatusFailed:
		return ExitRunLevel
	case StatusPartial:
		return ExitPartial
	default:
		return ExitOK
	}
}

// Duration of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ErrorText is Err as a string, empty when nil.
func (r *Report) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Reporter receives the report of every finished run.
type Reporter interface {
	Report(ctx context.Context, r *Report) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, r *Report) error

func (f ReporterFunc) Report(ctx context.Context, r *Report) error {
	return f(ctx, r)
}
