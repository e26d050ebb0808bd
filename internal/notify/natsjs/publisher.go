package natsjs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/bobuk/ex2gcal/internal/report"
)

// jetStream is the subset of nats.JetStreamContext the publisher needs.
type jetStream interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher announces finished runs on NATS JetStream.
type Publisher struct {
	nc     *nats.Conn
	js     jetStream
	stream string
	prefix string
}

var _ report.Reporter = (*Publisher)(nil)

// NewPublisher connects to url. Runs are published on <prefix>.<status>
// into stream.
func NewPublisher(url, stream, prefix string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("ex2gcal"), nats.Timeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	return &Publisher{nc: nc, js: js, stream: stream, prefix: prefix}, nil
}

// EnsureStream creates the run stream unless it exists.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	info, err := p.js.StreamInfo(p.stream, nats.Context(ctx))
	if err == nil && info != nil {
		return nil
	}
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", p.stream, err)
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:       p.stream,
		Subjects:   []string{p.prefix + ".>"},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		Duplicates: 10 * time.Minute,
		MaxAge:     30 * 24 * time.Hour,
	}, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil
		}
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

type runMessage struct {
	RunID       string           `json:"runId"`
	Status      report.Status    `json:"status"`
	DryRun      bool             `json:"dryRun"`
	StartedAt   time.Time        `json:"startedAt"`
	FinishedAt  time.Time        `json:"finishedAt"`
	WindowStart time.Time        `json:"windowStart"`
	WindowEnd   time.Time        `json:"windowEnd"`
	Fetched     int              `json:"fetched"`
	Dropped     int              `json:"dropped"`
	OutOfWindow int              `json:"outOfWindow"`
	Skipped     int              `json:"skipped"`
	Created     int              `json:"created"`
	Updated     int              `json:"updated"`
	Deleted     int              `json:"deleted"`
	Unchanged   int              `json:"unchanged"`
	Failures    []report.Failure `json:"failures,omitempty"`
	Malformed   []report.Failure `json:"malformed,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Subject returns the subject a run with status is published on.
func (p *Publisher) Subject(status report.Status) string {
	return p.prefix + "." + string(status)
}

// Report publishes r. The run id is the message id so a retried publish is
// deduplicated by the stream.
func (p *Publisher) Report(ctx context.Context, r *report.Report) error {
	payload, err := json.Marshal(runMessage{
		RunID:       r.RunID,
		Status:      r.Status(),
		DryRun:      r.DryRun,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		WindowStart: r.Window.Start,
		WindowEnd:   r.Window.End,
		Fetched:     r.Fetched,
		Dropped:     r.Dropped,
		OutOfWindow: r.OutOfWindow,
		Skipped:     r.Skipped,
		Created:     r.Created,
		Updated:     r.Updated,
		Deleted:     r.Deleted,
		Unchanged:   r.Unchanged,
		Failures:    r.Failures,
		Malformed:   r.Malformed,
		Error:       r.ErrorText(),
	})
	if err != nil {
		return err
	}

	if _, err := p.js.Publish(p.Subject(r.Status()), payload, nats.MsgId(r.RunID), nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
