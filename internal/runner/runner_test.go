package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobuk/ex2gcal/internal/event"
	"github.com/bobuk/ex2gcal/internal/filter"
	"github.com/bobuk/ex2gcal/internal/reconcile"
	"github.com/bobuk/ex2gcal/internal/report"
	"github.com/bobuk/ex2gcal/internal/source"
	"github.com/bobuk/ex2gcal/internal/syncerr"
)

var now = time.Date(2024, 3, 4, 7, 30, 0, 0, time.UTC)

type fakeSource struct {
	records []source.Record
	err     error
	asked   []event.Window
}

func (f *fakeSource) ListEvents(_ context.Context, w event.Window) ([]source.Record, error) {
	f.asked = append(f.asked, w)
	return f.records, f.err
}

type stored struct {
	e    event.Event
	link *event.Link
}

type memDestination struct {
	mu      sync.Mutex
	events  map[string]stored
	next    int
	writes  int
	listErr error
	fail    map[string]error
}

func newMemDestination() *memDestination {
	return &memDestination{events: map[string]stored{}, fail: map[string]error{}}
}

func (m *memDestination) ListMirrored(_ context.Context, w event.Window) ([]reconcile.Mirrored, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []reconcile.Mirrored
	for id, s := range m.events {
		if !w.Overlaps(s.e.Start, s.e.End) {
			continue
		}
		mirror := reconcile.Mirrored{DestinationID: id, Title: s.e.Title, Start: s.e.Start, End: s.e.End}
		if s.link != nil {
			l := *s.link
			mirror.Link = &l
		}
		out = append(out, mirror)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DestinationID < out[j].DestinationID })
	return out, nil
}

func (m *memDestination) Create(_ context.Context, e event.Event, link event.Link) (string, error) {
	if err := m.fail[e.SourceID]; err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.writes++
	id := fmt.Sprintf("g%d", m.next)
	link.MirroredID = id
	m.events[id] = stored{e: e, link: &link}
	return id, nil
}

func (m *memDestination) Update(_ context.Context, link event.Link, e event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.events[link.MirroredID] = stored{e: e, link: &link}
	return nil
}

func (m *memDestination) Delete(_ context.Context, link event.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	delete(m.events, link.MirroredID)
	return nil
}

func (m *memDestination) titles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.events {
		out = append(out, s.e.Title)
	}
	sort.Strings(out)
	return out
}

func record(id, subject string, hour int) source.Record {
	start := time.Date(2024, 3, 4, hour, 0, 0, 0, time.UTC)
	return source.Record{
		Provider:     source.ProviderGraph,
		ID:           id,
		Subject:      subject,
		Start:        source.Time{Value: start.Format("2006-01-02T15:04:05"), Zone: "UTC", OriginalZone: "W. Europe Standard Time"},
		End:          source.Time{Value: start.Add(time.Hour).Format("2006-01-02T15:04:05"), Zone: "UTC", OriginalZone: "W. Europe Standard Time"},
		LastModified: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

type recorder struct {
	reports []*report.Report
	err     error
}

func (r *recorder) Report(_ context.Context, rep *report.Report) error {
	r.reports = append(r.reports, rep)
	return r.err
}

func newRunner(src source.Source, dst Destination, opts Options) *Runner {
	logger, _ := test.NewNullLogger()
	opts.Logger = logger
	opts.Now = func() time.Time { return now }
	if opts.NewRunID == nil {
		opts.NewRunID = func() string { return "run-1" }
	}
	if opts.Days == 0 {
		opts.Days = 1
	}
	return New(src, dst, opts)
}

func TestRunMirrorsAndIsIdempotent(t *testing.T) {
	src := &fakeSource{records: []source.Record{
		record("A", "Standup", 9),
		record("B", "Planning", 11),
		record("C", "Lunch", 12),
		{ID: "broken", Subject: "No times"},
	}}
	dst := newMemDestination()
	rec := &recorder{}
	r := newRunner(src, dst, Options{
		Policy:    filter.NewPolicy("[EX] ", []string{"Lunch"}, false),
		Reporters: []report.Reporter{rec},
	})

	rep := r.Run(context.Background())
	require.NoError(t, rep.Err)
	assert.Equal(t, report.ExitOK, rep.ExitCode())
	assert.Equal(t, 4, rep.Fetched)
	assert.Equal(t, 1, rep.Dropped)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 2, rep.Created)
	require.Len(t, rep.Malformed, 1)
	assert.Equal(t, "broken", rep.Malformed[0].SourceID)
	assert.Equal(t, report.OpNormalize, rep.Malformed[0].Op)
	assert.Equal(t, []string{"[EX] Planning", "[EX] Standup"}, dst.titles())
	require.Len(t, rec.reports, 1)
	assert.Same(t, rep, rec.reports[0])

	writes := dst.writes
	again := r.Run(context.Background())
	require.NoError(t, again.Err)
	assert.Equal(t, writes, dst.writes)
	assert.Equal(t, 2, again.Unchanged)
	assert.Zero(t, again.Created+again.Updated+again.Deleted)
}

func TestRunKeepsOrganizerZone(t *testing.T) {
	src := &fakeSource{records: []source.Record{record("A", "Standup", 9)}}
	dst := newMemDestination()
	rep := newRunner(src, dst, Options{}).Run(context.Background())
	require.NoError(t, rep.Err)

	for _, s := range dst.events {
		assert.Equal(t, "Europe/Berlin", s.e.Zone())
		assert.True(t, s.e.Start.Equal(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)))
	}
}

func TestRunDeletesVanishedAndLeavesForeign(t *testing.T) {
	dst := newMemDestination()
	dst.events["foreign"] = stored{e: event.Event{Title: "Dentist", Start: now.Add(time.Hour), End: now.Add(2 * time.Hour)}}

	src := &fakeSource{records: []source.Record{record("A", "Standup", 9), record("B", "Planning", 11)}}
	r := newRunner(src, dst, Options{})
	require.NoError(t, r.Run(context.Background()).Err)

	src.records = src.records[:1]
	rep := r.Run(context.Background())
	require.NoError(t, rep.Err)
	assert.Equal(t, 1, rep.Deleted)
	assert.Equal(t, 1, rep.Foreign)
	assert.Equal(t, []string{"Dentist", "Standup"}, dst.titles())
}

func TestRunProtectsSkippedMirrors(t *testing.T) {
	src := &fakeSource{records: []source.Record{record("A", "Standup", 9)}}
	dst := newMemDestination()
	r := newRunner(src, dst, Options{})
	require.NoError(t, r.Run(context.Background()).Err)

	// the title is now on the skip-list, its mirror must stay
	r.opts.Policy = filter.NewPolicy("", []string{"Standup"}, false)
	rep := r.Run(context.Background())
	require.NoError(t, rep.Err)
	assert.Zero(t, rep.Deleted)
	assert.Equal(t, 1, rep.Protected)
	assert.Equal(t, []string{"Standup"}, dst.titles())
}

func TestRunWindow(t *testing.T) {
	src := &fakeSource{}
	newRunner(src, newMemDestination(), Options{Days: 2}).Run(context.Background())
	require.Len(t, src.asked, 1)
	assert.Equal(t, event.DaysFrom(now, 2), src.asked[0])

	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	r := newRunner(src, newMemDestination(), Options{Days: 1, AlignToDay: true, Zone: berlin})
	w := r.Window(now)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, berlin), w.Start)
	assert.Equal(t, time.Date(2024, 3, 5, 23, 59, 59, 0, berlin), w.End)
}

func TestRunIgnoresEventsOutsideWindow(t *testing.T) {
	// an unexpanded weekly series reports its first occurrence, a week ago
	weekly := record("W", "Weekly sync", 9)
	weekly.Start.Value = "2024-02-26T09:00:00"
	weekly.End.Value = "2024-02-26T09:30:00"
	src := &fakeSource{records: []source.Record{weekly, record("A", "Standup", 9)}}
	dst := newMemDestination()
	r := newRunner(src, dst, Options{})

	for range 3 {
		rep := r.Run(context.Background())
		require.NoError(t, rep.Err)
		assert.Equal(t, 1, rep.OutOfWindow)
		assert.Equal(t, report.ExitOK, rep.ExitCode())
	}
	assert.Equal(t, []string{"Standup"}, dst.titles())
	assert.Equal(t, 1, dst.writes)
}

func TestRunSourceUnavailable(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	dst := newMemDestination()
	rec := &recorder{}
	rep := newRunner(src, dst, Options{Reporters: []report.Reporter{rec}}).Run(context.Background())

	var unavailable *syncerr.SourceUnavailableError
	require.ErrorAs(t, rep.Err, &unavailable)
	assert.Equal(t, report.ExitRunLevel, rep.ExitCode())
	assert.Zero(t, dst.writes)
	require.Len(t, rec.reports, 1)
	assert.Equal(t, report.StatusFailed, rec.reports[0].Status())
}

func TestRunDestinationUnavailable(t *testing.T) {
	src := &fakeSource{records: []source.Record{record("A", "Standup", 9)}}
	dst := newMemDestination()
	dst.listErr = errors.New("401")
	rep := newRunner(src, dst, Options{}).Run(context.Background())

	var unavailable *syncerr.DestinationUnavailableError
	require.ErrorAs(t, rep.Err, &unavailable)
	assert.Equal(t, report.ExitRunLevel, rep.ExitCode())
	assert.Zero(t, dst.writes)
}

func TestRunPerEventFailure(t *testing.T) {
	src := &fakeSource{records: []source.Record{record("A", "Standup", 9), record("B", "Planning", 11)}}
	dst := newMemDestination()
	dst.fail["A"] = errors.New("invalid recurrence")
	rep := newRunner(src, dst, Options{}).Run(context.Background())

	require.NoError(t, rep.Err)
	assert.Equal(t, report.ExitPartial, rep.ExitCode())
	assert.Equal(t, 1, rep.Created)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "A", rep.Failures[0].SourceID)
	assert.Equal(t, "create", rep.Failures[0].Op)
	assert.Contains(t, rep.Failures[0].Error, "invalid recurrence")
}

func TestDryRunWritesNothing(t *testing.T) {
	src := &fakeSource{records: []source.Record{record("A", "Standup", 9)}}
	dst := newMemDestination()
	var out bytes.Buffer
	rep := newRunner(src, dst, Options{DryRun: true, Out: &out}).Run(context.Background())

	require.NoError(t, rep.Err)
	assert.Equal(t, report.StatusDryRun, rep.Status())
	assert.Equal(t, 1, rep.Created)
	assert.Zero(t, dst.writes)
	assert.Contains(t, out.String(), "Standup (A) not mirrored yet")
}

func TestReporterFailureDoesNotChangeOutcome(t *testing.T) {
	logger, hook := test.NewNullLogger()
	rec := &recorder{err: errors.New("nats: no responders")}
	r := New(&fakeSource{}, newMemDestination(), Options{
		Days:      1,
		Logger:    logger,
		Now:       func() time.Time { return now },
		Reporters: []report.Reporter{rec, report.ReporterFunc(func(context.Context, *report.Report) error { return nil })},
	})

	rep := r.Run(context.Background())
	assert.NoError(t, rep.Err)
	assert.Equal(t, report.ExitOK, rep.ExitCode())
	assert.NotEmpty(t, rep.RunID)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, log.WarnLevel, hook.LastEntry().Level)
}
