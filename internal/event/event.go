package event

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Event is the provider-agnostic representation of one source event.
// Start and End carry the IANA zone of the original event in their Location.
type Event struct {
	SourceID     string
	Title        string
	Description  string
	Location     string
	Start        time.Time
	End          time.Time
	AllDay       bool
	Cancelled    bool
	LastModified time.Time
	MirroredID   string
}

// Zone returns the IANA identifier the event starts in.
func (e Event) Zone() string {
	return e.Start.Location().String()
}

// WithTitle returns a copy of e with the title replaced.
func (e Event) WithTitle(title string) Event {
	e.Title = title
	return e
}

// Fingerprint hashes every field that is rendered on the destination.
// Two events with equal fingerprints produce identical mirrors.
func (e Event) Fingerprint() string {
	h := sha256.New()
	for _, part := range []string{
		e.Title,
		e.Description,
		e.Location,
		e.Start.Format(time.RFC3339Nano),
		e.Start.Location().String(),
		e.End.Format(time.RFC3339Nano),
		e.End.Location().String(),
		strconv.FormatBool(e.AllDay),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Link correlates a source event with the destination event created for it.
type Link struct {
	SourceID     string
	MirroredID   string
	LastModified time.Time
	Fingerprint  string
}

// LinkFor builds the link that should be stored alongside the mirror of e.
func LinkFor(e Event, mirroredID string) Link {
	return Link{
		SourceID:     e.SourceID,
		MirroredID:   mirroredID,
		LastModified: e.LastModified,
		Fingerprint:  e.Fingerprint(),
	}
}

// Window is the time range considered by one run.
type Window struct {
	Start time.Time
	End   time.Time
}

// DaysFrom returns the window [from, from + days).
func DaysFrom(from time.Time, days int) Window {
	return Window{Start: from, End: from.AddDate(0, 0, days)}
}

// AlignedDays returns [midnight of from's day, midnight + days 23:59:59] in loc.
func AlignedDays(from time.Time, days int, loc *time.Location) Window {
	local := from.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	last := start.AddDate(0, 0, days)
	end := time.Date(last.Year(), last.Month(), last.Day(), 23, 59, 59, 0, loc)
	return Window{Start: start, End: end}
}

// Overlaps reports whether [start, end) intersects the window.
func (w Window) Overlaps(start, end time.Time) bool {
	return start.Before(w.End) && end.After(w.Start)
}

func (w Window) String() string {
	return w.Start.Format(time.RFC3339) + " .. " + w.End.Format(time.RFC3339)
}
