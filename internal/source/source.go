// Package source holds the contract between source calendar adapters and the
// normalizer.
package source

import (
	"context"
	"time"

	"github.com/bobuk/ex2gcal/internal/event"
)

// Provider names a source adapter implementation.
type Provider string

const (
	ProviderGraph  Provider = "graph"
	ProviderCalDAV Provider = "caldav"
)

// Time is a start or end value exactly as the provider reported it.
type Time struct {
	// Value is either an RFC 3339 instant or a wall-clock time without offset.
	Value string
	// Zone is the zone Value is expressed in. Empty means floating.
	Zone string
	// OriginalZone is the organizer's zone when the provider reports it
	// separately from Zone.
	OriginalZone string
	// DateOnly marks a calendar date (all-day events).
	DateOnly bool
}

// IsZero reports whether no value was reported.
func (t Time) IsZero() bool {
	return t.Value == ""
}

// Record is one provider-native event, flattened to strings where the
// provider uses strings.
type Record struct {
	Provider     Provider
	ID           string
	Subject      string
	Body         string
	Location     string
	Start        Time
	End          Time
	AllDay       bool
	Cancelled    bool
	LastModified time.Time
}

// Source lists events of the source calendar. Implementations fail with a
// syncerr.SourceUnavailableError when the calendar cannot be read at all.
type Source interface {
	ListEvents(ctx context.Context, w event.Window) ([]Record, error)
}
