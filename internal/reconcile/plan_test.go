package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobuk/ex2gcal/internal/event"
	"github.com/bobuk/ex2gcal/internal/syncerr"
)

func at(id, title string, hour int) event.Event {
	start := time.Date(2024, 3, 4, hour, 0, 0, 0, time.UTC)
	return event.Event{SourceID: id, Title: title, Start: start, End: start.Add(time.Hour)}
}

func TestBuildPlanMixed(t *testing.T) {
	keep := at("keep", "Weekly", 9)
	changed := at("changed", "1:1", 10)
	gone := at("gone", "Retro", 11)
	fresh := at("fresh", "Kickoff", 12)

	mirrored := []Mirrored{
		mirrorOf(keep, "g-keep"),
		mirrorOf(changed, "g-changed"),
		mirrorOf(gone, "g-gone"),
		{DestinationID: "foreign", Title: "Kickoff", Start: fresh.Start, End: fresh.End},
	}
	src := []event.Event{keep, changed.WithTitle("1:1 (moved)"), fresh}

	plan := BuildPlan(src, mirrored, nil)

	assert.Equal(t, 1, plan.Count(syncerr.OpCreate))
	assert.Equal(t, 1, plan.Count(syncerr.OpUpdate))
	assert.Equal(t, 1, plan.Count(syncerr.OpDelete))
	assert.Equal(t, 1, plan.Unchanged)
	assert.Equal(t, 1, plan.Foreign)
	assert.False(t, plan.Empty())

	for _, op := range plan.Ops {
		assert.NotEqual(t, "foreign", op.Link.MirroredID)
		switch op.Kind {
		case syncerr.OpCreate:
			assert.Equal(t, "fresh", op.SourceID)
			assert.Empty(t, op.Link.MirroredID)
		case syncerr.OpUpdate:
			assert.Equal(t, "g-changed", op.Link.MirroredID)
			assert.Equal(t, op.Event.Fingerprint(), op.Link.Fingerprint)
		case syncerr.OpDelete:
			assert.Equal(t, "g-gone", op.Link.MirroredID)
		}
	}
}

func TestBuildPlanDuplicateSourceIDs(t *testing.T) {
	a := at("A", "Standup", 9)
	plan := BuildPlan([]event.Event{a, a.WithTitle("Standup again")}, nil, nil)

	require.Len(t, plan.Ops, 1)
	assert.Equal(t, "Standup", plan.Ops[0].Event.Title)
	assert.Equal(t, 1, plan.DuplicateSource)
}

func TestBuildPlanProtectedDuplicates(t *testing.T) {
	a := at("A", "Private", 9)
	plan := BuildPlan(nil, []Mirrored{mirrorOf(a, "g1"), mirrorOf(a, "g2")}, map[string]struct{}{"A": {}})

	assert.True(t, plan.Empty())
	assert.Equal(t, 2, plan.Protected)
}

func TestBuildPlanEmptyLinkIsForeign(t *testing.T) {
	plan := BuildPlan(nil, []Mirrored{{DestinationID: "x", Link: &event.Link{}}}, nil)
	assert.True(t, plan.Empty())
	assert.Equal(t, 1, plan.Foreign)
}
