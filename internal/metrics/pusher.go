// Package metrics pushes the counters of a finished run to a Prometheus
// Pushgateway.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/bobuk/ex2gcal/internal/report"
)

// Pusher is a report.Reporter for the Pushgateway.
type Pusher struct {
	url        string
	job        string
	calendarID string
}

var _ report.Reporter = (*Pusher)(nil)

func NewPusher(url, job, calendarID string) *Pusher {
	return &Pusher{url: url, job: job, calendarID: calendarID}
}

type runMetrics struct {
	registry *prometheus.Registry
	finished prometheus.Gauge
	duration prometheus.Gauge
	success  prometheus.Gauge
	events   *prometheus.GaugeVec
	failures prometheus.Gauge
}

func newRunMetrics() *runMetrics {
	m := &runMetrics{
		registry: prometheus.NewRegistry(),
		finished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ex2gcal",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ex2gcal",
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ex2gcal",
			Name:      "last_run_success",
			Help:      "1 if the last run finished without any failure.",
		}),
		events: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ex2gcal",
			Name:      "last_run_events",
			Help:      "Events handled by the last run by outcome.",
		}, []string{"outcome"}),
		failures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ex2gcal",
			Name:      "last_run_failures",
			Help:      "Per-event failures of the last run.",
		}),
	}
	m.registry.MustRegister(m.finished, m.duration, m.success, m.events, m.failures)
	return m
}

func (m *runMetrics) observe(r *report.Report) {
	m.finished.Set(float64(r.FinishedAt.Unix()))
	m.duration.Set(r.Duration().Seconds())
	if r.Status() == report.StatusOK || r.Status() == report.StatusDryRun {
		m.success.Set(1)
	} else {
		m.success.Set(0)
	}
	for outcome, n := range map[string]int{
		"fetched":        r.Fetched,
		"dropped":        r.Dropped,
		"outside_window": r.OutOfWindow,
		"skipped":        r.Skipped,
		"created":        r.Created,
		"updated":        r.Updated,
		"deleted":        r.Deleted,
		"unchanged":      r.Unchanged,
	} {
		m.events.WithLabelValues(outcome).Set(float64(n))
	}
	m.failures.Set(float64(len(r.Failures)))
}

// Report replaces the metric group of this job and calendar.
func (p *Pusher) Report(ctx context.Context, r *report.Report) error {
	m := newRunMetrics()
	m.observe(r)
	err := push.New(p.url, p.job).
		Gatherer(m.registry).
		Grouping("calendar", p.calendarID).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
