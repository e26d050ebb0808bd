package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/oauth2"

	"github.com/bobuk/ex2gcal/internal/event"
	"github.com/bobuk/ex2gcal/internal/providers/google"
	"github.com/bobuk/ex2gcal/internal/report"
)

type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	path  string
	store *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.path = filepath.Join(s.T().TempDir(), "state", ".ex2gcal.db")
	store, err := Open(s.ctx, s.path, DriverPureGo)
	s.Require().NoError(err)
	s.store = store
}

func (s *StoreSuite) TearDownTest() {
	s.store.Close()
}

func (s *StoreSuite) TestMigrationsAreIdempotent() {
	v, err := s.store.Version(s.ctx)
	s.Require().NoError(err)
	s.Equal(len(migrations), v)
	s.Require().NoError(s.store.Close())

	again, err := Open(s.ctx, s.path, DriverPureGo)
	s.Require().NoError(err)
	s.store = again
	v, err = again.Version(s.ctx)
	s.Require().NoError(err)
	s.Equal(len(migrations), v)
}

func (s *StoreSuite) TestTokens() {
	_, err := s.store.LoadToken(s.ctx, "me")
	s.ErrorIs(err, google.ErrNoToken)

	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.SaveToken(s.ctx, "me", &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: expiry}))
	s.Require().NoError(s.store.SaveToken(s.ctx, "me", &oauth2.Token{AccessToken: "b", RefreshToken: "r", Expiry: expiry}))

	tok, err := s.store.LoadToken(s.ctx, "me")
	s.Require().NoError(err)
	s.Equal("b", tok.AccessToken)
	s.True(expiry.Equal(tok.Expiry))

	s.Require().NoError(s.store.DeleteToken(s.ctx, "me"))
	_, err = s.store.LoadToken(s.ctx, "me")
	s.ErrorIs(err, google.ErrNoToken)
}

func (s *StoreSuite) TestLinkJournal() {
	j := s.store.JournalFor("primary")
	other := s.store.JournalFor("team@group.calendar.google.com")
	mod := time.Date(2024, 3, 1, 8, 0, 0, 123456700, time.UTC)

	s.Require().NoError(j.PutLink(s.ctx, event.Link{SourceID: "B", MirroredID: "g2", LastModified: mod, Fingerprint: "f2"}))
	s.Require().NoError(j.PutLink(s.ctx, event.Link{SourceID: "A", MirroredID: "g1"}))
	s.Require().NoError(j.PutLink(s.ctx, event.Link{SourceID: "A", MirroredID: "g1", Fingerprint: "f1"}))
	s.Require().NoError(other.PutLink(s.ctx, event.Link{SourceID: "A", MirroredID: "x1"}))

	links, err := j.Links(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(links, 2)
	s.Equal("A", links[0].SourceID)
	s.Equal("f1", links[0].Fingerprint)
	s.True(links[0].LastModified.IsZero())
	s.True(mod.Equal(links[1].LastModified))
	s.False(links[1].UpdatedAt.IsZero())

	// a stale duplicate delete keeps the live row
	s.Require().NoError(j.RemoveLink(s.ctx, event.Link{SourceID: "A", MirroredID: "dup"}))
	links, err = j.Links(s.ctx)
	s.Require().NoError(err)
	s.Len(links, 2)

	s.Require().NoError(j.RemoveLink(s.ctx, event.Link{SourceID: "A", MirroredID: "g1"}))
	n, err := j.Clear(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	otherLinks, err := other.Links(s.ctx)
	s.Require().NoError(err)
	s.Len(otherLinks, 1)
}

func (s *StoreSuite) TestRunHistory() {
	base := time.Date(2024, 3, 4, 7, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := Run{
			ID:          []string{"r1", "r2", "r3"}[i],
			StartedAt:   base.Add(time.Duration(i) * time.Hour),
			FinishedAt:  base.Add(time.Duration(i)*time.Hour + time.Second),
			Status:      "ok",
			WindowStart: base,
			WindowEnd:   base.Add(24 * time.Hour),
			Created:     i,
		}
		if i == 2 {
			run.Status = "partial"
			run.Failed = 1
			run.Failures = []RunFailure{{SourceID: "A", Op: "create", Error: "boom"}}
		}
		s.Require().NoError(s.store.RecordRun(s.ctx, run))
	}

	runs, err := s.store.RecentRuns(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(runs, 2)
	s.Equal("r3", runs[0].ID)
	s.Equal("partial", runs[0].Status)
	s.Require().Len(runs[0].Failures, 1)
	s.Equal("boom", runs[0].Failures[0].Error)
	s.Equal(base.Add(24*time.Hour), runs[0].WindowEnd)
	s.Empty(runs[1].Failures)

	pruned, err := s.store.PruneRuns(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(int64(2), pruned)

	runs, err = s.store.RecentRuns(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(runs, 1)
	s.Equal("r3", runs[0].ID)
}

func (s *StoreSuite) TestReportRecordsRun() {
	start := time.Date(2024, 3, 4, 7, 0, 0, 0, time.UTC)
	err := s.store.Report(s.ctx, &report.Report{
		RunID:      "r1",
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
		Window:     event.DaysFrom(start, 1),
		Created:    1,
		Failures:   []report.Failure{{SourceID: "B", Op: "delete", Error: "gone"}},
	})
	s.Require().NoError(err)

	runs, err := s.store.RecentRuns(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(runs, 1)
	s.Equal("partial", runs[0].Status)
	s.Equal(1, runs[0].Failed)
	s.Equal([]RunFailure{{SourceID: "B", Op: "delete", Error: "gone"}}, runs[0].Failures)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "x.db"), "postgres")
	assert.Error(t, err)
}

func TestDataSource(t *testing.T) {
	dsn, err := dataSource("state.db", DriverCGO)
	require.NoError(t, err)
	assert.Equal(t, "state.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", dsn)

	dsn, err = dataSource("file:state.db?cache=shared", DriverPureGo)
	require.NoError(t, err)
	assert.Contains(t, dsn, "cache=shared&_pragma=journal_mode(WAL)")
}
