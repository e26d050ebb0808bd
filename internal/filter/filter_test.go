package filter

import (
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobuk/ex2gcal/internal/event"
)

func TestApplySkipList(t *testing.T) {
	logger, _ := test.NewNullLogger()
	p := NewPolicy("", []string{"Private"}, false)

	res := p.Apply([]event.Event{
		{SourceID: "A", Title: "Private"},
		{SourceID: "B", Title: "private"},
		{SourceID: "C", Title: "Private "},
	}, logger)

	require.Len(t, res.Events, 2, "matching is exact and case-sensitive")
	assert.Equal(t, "B", res.Events[0].SourceID)
	assert.Equal(t, "C", res.Events[1].SourceID)
	assert.Contains(t, res.Protected, "A")
	assert.Equal(t, 1, res.Skipped)
}

func TestApplyPrefix(t *testing.T) {
	logger, _ := test.NewNullLogger()
	p := NewPolicy("[EX] ", []string{"Lunch"}, false)
	in := []event.Event{{SourceID: "A", Title: "Standup"}, {SourceID: "B", Title: "Lunch"}}

	res := p.Apply(in, logger)

	require.Len(t, res.Events, 1)
	assert.Equal(t, "[EX] Standup", res.Events[0].Title)
	assert.Equal(t, "Standup", in[0].Title, "input events are not mutated")
}

func TestApplySkipMatchesUnprefixedTitle(t *testing.T) {
	logger, _ := test.NewNullLogger()
	p := NewPolicy("[EX] ", []string{"[EX] Private"}, false)

	res := p.Apply([]event.Event{{SourceID: "A", Title: "Private"}}, logger)

	require.Len(t, res.Events, 1)
	assert.Equal(t, "[EX] Private", res.Events[0].Title)
	assert.Empty(t, res.Protected)
}

func TestApplyCancelled(t *testing.T) {
	logger, _ := test.NewNullLogger()
	in := []event.Event{{SourceID: "A", Title: "Retro", Cancelled: true}}

	dropped := NewPolicy("", nil, false).Apply(in, logger)
	assert.Empty(t, dropped.Events)
	assert.Empty(t, dropped.Protected, "cancelled events are not protected")
	assert.Equal(t, 1, dropped.Cancelled)

	kept := NewPolicy("", nil, true).Apply(in, logger)
	assert.Len(t, kept.Events, 1)
}

func TestParseSkipList(t *testing.T) {
	assert.Nil(t, ParseSkipList(""))
	assert.Equal(t, []string{"Private", "Lunch break"}, ParseSkipList("Private, Lunch break,,"))
}
