// Package runner drives one fetch, diff and apply cycle.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/bobuk/ex2gcal/internal/event"
	"github.com/bobuk/ex2gcal/internal/filter"
	"github.com/bobuk/ex2gcal/internal/normalize"
	"github.com/bobuk/ex2gcal/internal/reconcile"
	"github.com/bobuk/ex2gcal/internal/report"
	"github.com/bobuk/ex2gcal/internal/source"
	"github.com/bobuk/ex2gcal/internal/syncerr"
)

// Destination is the calendar mirrors are written to.
type Destination interface {
	reconcile.Destination
	ListMirrored(ctx context.Context, w event.Window) ([]reconcile.Mirrored, error)
}

// Options are the already-parsed settings of a run.
type Options struct {
	Days       int
	AlignToDay bool
	// Zone places floating source times and aligns day windows.
	Zone    *time.Location
	DryRun  bool
	Workers int
	Policy  filter.Policy

	Journal   reconcile.LinkJournal
	Reporters []report.Reporter
	Logger    log.FieldLogger
	// Out receives the plan of a dry run.
	Out io.Writer

	Now      func() time.Time
	NewRunID func() string
}

// Runner holds the adapters of one invocation.
type Runner struct {
	src  source.Source
	dst  Destination
	opts Options
	log  log.FieldLogger
}

const reportTimeout = 15 * time.Second

func New(src source.Source, dst Destination, opts Options) *Runner {
	if opts.Zone == nil {
		opts.Zone = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Runner{src: src, dst: dst, opts: opts, log: opts.Logger}
}

// Window returns the sync window starting at now.
func (r *Runner) Window(now time.Time) event.Window {
	if r.opts.AlignToDay {
		return event.AlignedDays(now, r.opts.Days, r.opts.Zone)
	}
	return event.DaysFrom(now, r.opts.Days)
}

// Run performs one cycle and hands the report to every reporter. The
// returned report is never nil; its Err is set on a run-level failure.
func (r *Runner) Run(ctx context.Context) *report.Report {
	started := r.opts.Now()
	rep := &report.Report{
		RunID:     r.opts.NewRunID(),
		StartedAt: started,
		DryRun:    r.opts.DryRun,
		Window:    r.Window(started),
	}
	logger := r.log.WithField("runId", rep.RunID)

	if err := r.cycle(ctx, rep, logger); err != nil {
		rep.Err = err
		logger.WithError(err).Error("run aborted")
	}
	rep.FinishedAt = r.opts.Now()
	r.publish(ctx, rep, logger)
	return rep
}

func (r *Runner) cycle(ctx context.Context, rep *report.Report, logger log.FieldLogger) error {
	logger.Infof("📥 Retrieving events for %s", rep.Window)
	records, err := r.src.ListEvents(ctx, rep.Window)
	if err != nil {
		return syncerr.SourceUnavailable(err)
	}
	rep.Fetched = len(records)

	events, dropped := normalize.New(r.opts.Zone, logger).NormalizeAll(records)
	rep.Dropped = len(dropped)
	for _, err := range dropped {
		rep.Malformed = append(rep.Malformed, malformed(err))
	}

	events = r.inWindow(events, rep, logger)
	filtered := r.opts.Policy.Apply(events, logger)
	rep.Skipped = filtered.Skipped
	rep.Cancelled = filtered.Cancelled

	mirrored, err := r.dst.ListMirrored(ctx, rep.Window)
	if err != nil {
		return syncerr.DestinationUnavailable(err)
	}

	plan := reconcile.BuildPlan(filtered.Events, mirrored, filtered.Protected)
	if plan.DuplicateSource > 0 {
		logger.Warnf("%d duplicate source events ignored", plan.DuplicateSource)
	}
	rep.Foreign = plan.Foreign
	rep.Protected = plan.Protected
	rep.Unchanged = plan.Unchanged

	if r.opts.DryRun {
		rep.Created = plan.Count(syncerr.OpCreate)
		rep.Updated = plan.Count(syncerr.OpUpdate)
		rep.Deleted = plan.Count(syncerr.OpDelete)
		printPlan(r.opts.Out, plan)
		return nil
	}

	opts := []reconcile.Option{reconcile.WithWorkers(r.opts.Workers), reconcile.WithLogger(logger)}
	if r.opts.Journal != nil {
		opts = append(opts, reconcile.WithJournal(r.opts.Journal))
	}
	res, err := reconcile.New(r.dst, opts...).Apply(ctx, plan)
	if res != nil {
		rep.Created, rep.Updated, rep.Deleted = res.Created, res.Updated, res.Deleted
		for _, f := range res.Failures {
			rep.Failures = append(rep.Failures, report.Failure{SourceID: f.SourceID, Op: string(f.Op), Error: f.Err.Error()})
		}
	}
	return err
}

// inWindow keeps the events overlapping the run window. A source that
// ignores the requested range, or returns the first occurrence of a series
// it did not expand, must not produce mirrors that ListMirrored never sees.
func (r *Runner) inWindow(events []event.Event, rep *report.Report, logger log.FieldLogger) []event.Event {
	kept := events[:0]
	for _, e := range events {
		if rep.Window.Overlaps(e.Start, e.End) {
			kept = append(kept, e)
			continue
		}
		rep.OutOfWindow++
		logger.WithFields(log.Fields{"sourceId": e.SourceID, "start": e.Start}).Debug("event outside the sync window")
	}
	if rep.OutOfWindow > 0 {
		logger.Warnf("%d events outside %s ignored", rep.OutOfWindow, rep.Window)
	}
	return kept
}

func malformed(err error) report.Failure {
	f := report.Failure{Op: report.OpNormalize, Error: err.Error()}
	var me *syncerr.MalformedEventError
	if errors.As(err, &me) {
		f.SourceID = me.SourceID
	}
	return f
}

// publish runs the reporters. Their failures never change the outcome.
func (r *Runner) publish(ctx context.Context, rep *report.Report, logger log.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	for _, reporter := range r.opts.Reporters {
		if err := reporter.Report(ctx, rep); err != nil {
			logger.WithError(err).Warnf("reporter %T failed", reporter)
		}
	}
}

func printPlan(w io.Writer, plan reconcile.Plan) {
	if plan.Empty() {
		fmt.Fprintln(w, "  ✅ Nothing to do")
		return
	}
	for _, op := range plan.Ops {
		var mark string
		switch op.Kind {
		case syncerr.OpCreate:
			mark = "➕"
		case syncerr.OpUpdate:
			mark = "🔄"
		case syncerr.OpDelete:
			mark = "🗑"
		}
		title := op.Event.Title
		if title == "" {
			title = op.Link.MirroredID
		}
		fmt.Fprintf(w, "  %s %-6s %s (%s) %s\n", mark, op.Kind, title, op.SourceID, op.Reason)
	}
}
