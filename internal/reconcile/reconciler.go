// Package reconcile computes and applies the diff between a source snapshot
// and the events previously mirrored to the destination.
package reconcile

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bobuk/ex2gcal/internal/event"
	"github.com/bobuk/ex2gcal/internal/syncerr"
)

// Destination writes mirrors. Each call either succeeds or leaves the
// destination unchanged. The link is stored together with the event.
type Destination interface {
	Create(ctx context.Context, e event.Event, link event.Link) (string, error)
	Update(ctx context.Context, link event.Link, e event.Event) error
	Delete(ctx context.Context, link event.Link) error
}

// LinkJournal keeps a local copy of the links. It is never read back by the
// reconciler.
type LinkJournal interface {
	PutLink(ctx context.Context, link event.Link) error
	RemoveLink(ctx context.Context, link event.Link) error
}

// Failure is one operation that did not go through.
type Failure struct {
	SourceID string
	Op       syncerr.Op
	Err      error
}

// Result summarizes an applied plan.
type Result struct {
	Created   int
	Updated   int
	Deleted   int
	Unchanged int
	Foreign   int
	Protected int
	Failures  []Failure
	// Links holds the links written in this run, keyed by sourceId.
	Links map[string]event.Link
}

// Writes is the number of successful destination writes.
func (r *Result) Writes() int {
	return r.Created + r.Updated + r.Deleted
}

// Failed reports whether any operation failed.
func (r *Result) Failed() bool {
	return len(r.Failures) > 0
}

// Reconciler applies plans through a Destination.
type Reconciler struct {
	dest    Destination
	journal LinkJournal
	workers int
	log     log.FieldLogger

	mu sync.Mutex
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithJournal mirrors every link change into j.
func WithJournal(j LinkJournal) Option {
	return func(r *Reconciler) { r.journal = j }
}

// WithWorkers bounds how many sourceIds are processed concurrently.
func WithWorkers(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLogger sets the logger used for per-operation lines.
func WithLogger(l log.FieldLogger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l
		}
	}
}

// New creates a Reconciler writing to dest.
func New(dest Destination, opts ...Option) *Reconciler {
	r := &Reconciler{dest: dest, workers: 1, log: log.StandardLogger()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Reconcile plans and applies in one step.
func (r *Reconciler) Reconcile(ctx context.Context, src []event.Event, mirrored []Mirrored, protected map[string]struct{}) (*Result, error) {
	return r.Apply(ctx, BuildPlan(src, mirrored, protected))
}

// Apply executes the plan. Per-operation failures are collected in the
// result. A run-level error stops the remaining operations and is returned
// together with the partial result.
func (r *Reconciler) Apply(ctx context.Context, plan Plan) (*Result, error) {
	res := &Result{
		Unchanged: plan.Unchanged,
		Foreign:   plan.Foreign,
		Protected: plan.Protected,
		Links:     make(map[string]event.Link),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, ops := range groupBySource(plan.Ops) {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			for _, op := range ops {
				if gctx.Err() != nil {
					return nil
				}
				if err := r.apply(gctx, op, res); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// groupBySource keeps operations on one sourceId together and in plan order.
func groupBySource(ops []Operation) [][]Operation {
	var groups [][]Operation
	index := make(map[string]int)
	for _, op := range ops {
		i, ok := index[op.SourceID]
		if !ok {
			i = len(groups)
			index[op.SourceID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], op)
	}
	return groups
}

// apply runs one operation. It returns an error only when the whole batch
// must stop.
func (r *Reconciler) apply(ctx context.Context, op Operation, res *Result) error {
	logger := r.log.WithFields(log.Fields{"sourceId": op.SourceID, "op": op.Kind})
	if op.Link.MirroredID != "" {
		logger = logger.WithField("destinationId", op.Link.MirroredID)
	}

	link := op.Link
	var err error
	switch op.Kind {
	case syncerr.OpCreate:
		var id string
		id, err = r.dest.Create(ctx, op.Event, op.Link)
		link.MirroredID = id
	case syncerr.OpUpdate:
		err = r.dest.Update(ctx, op.Link, op.Event)
	case syncerr.OpDelete:
		err = r.dest.Delete(ctx, op.Link)
	}

	if err != nil {
		if syncerr.IsRunLevel(err) {
			return err
		}
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return err
		}
		err = asOperationError(op, err)
		logger.WithError(err).Error("operation failed")
		r.mu.Lock()
		res.Failures = append(res.Failures, Failure{SourceID: op.SourceID, Op: op.Kind, Err: err})
		r.mu.Unlock()
		return nil
	}

	r.mu.Lock()
	switch op.Kind {
	case syncerr.OpCreate:
		res.Created++
		res.Links[op.SourceID] = link
	case syncerr.OpUpdate:
		res.Updated++
		res.Links[op.SourceID] = link
	case syncerr.OpDelete:
		res.Deleted++
		if res.Links[op.SourceID].MirroredID == link.MirroredID {
			delete(res.Links, op.SourceID)
		}
	}
	r.mu.Unlock()

	switch op.Kind {
	case syncerr.OpCreate:
		logger.WithField("destinationId", link.MirroredID).Infof("➕ Created: %s", op.Event.Title)
	case syncerr.OpUpdate:
		logger.Infof("🔄 Updated (%s): %s", op.Reason, op.Event.Title)
	case syncerr.OpDelete:
		logger.Infof("🗑 Deleted (%s)", op.Reason)
	}

	r.journalize(ctx, op.Kind, link, logger)
	return nil
}

func (r *Reconciler) journalize(ctx context.Context, kind syncerr.Op, link event.Link, logger log.FieldLogger) {
	if r.journal == nil {
		return
	}
	var err error
	if kind == syncerr.OpDelete {
		err = r.journal.RemoveLink(ctx, link)
	} else {
		err = r.journal.PutLink(ctx, link)
	}
	if err != nil {
		logger.WithError(err).Warn("link journal not updated")
	}
}

func asOperationError(op Operation, err error) error {
	var opErr *syncerr.DestinationOperationError
	if errors.As(err, &opErr) {
		return err
	}
	return &syncerr.DestinationOperationError{
		Op:            op.Kind,
		SourceID:      op.SourceID,
		DestinationID: op.Link.MirroredID,
		Err:           err,
	}
}
