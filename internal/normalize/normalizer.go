// Package normalize turns provider records into canonical events.
package normalize

import (
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bobuk/ex2gcal/internal/event"
	"github.com/bobuk/ex2gcal/internal/source"
	"github.com/bobuk/ex2gcal/internal/syncerr"
)

// Wall-clock layouts seen from Graph, CalDAV and exchangelib exports.
// Fractional seconds after the seconds field are accepted by time.Parse.
var wallLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"20060102T150405",
}

var dateLayouts = []string{
	"2006-01-02",
	"20060102",
}

// Normalizer converts source records to canonical events. Floating times are
// placed in the default zone.
type Normalizer struct {
	defaultZone *time.Location
	zones       *zoneResolver
	log         log.FieldLogger
}

// New creates a normalizer. A nil defaultZone means UTC.
func New(defaultZone *time.Location, logger log.FieldLogger) *Normalizer {
	if defaultZone == nil {
		defaultZone = time.UTC
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Normalizer{
		defaultZone: defaultZone,
		zones:       newZoneResolver(64),
		log:         logger,
	}
}

// Normalize maps one record. It fails with a syncerr.MalformedEventError.
func (n *Normalizer) Normalize(r source.Record) (event.Event, error) {
	if strings.TrimSpace(r.ID) == "" {
		return event.Event{}, syncerr.Malformed(r.ID, "missing id", nil)
	}
	if r.Start.IsZero() {
		return event.Event{}, syncerr.Malformed(r.ID, "missing start time", nil)
	}
	if r.End.IsZero() {
		return event.Event{}, syncerr.Malformed(r.ID, "missing end time", nil)
	}

	start, err := n.parse(r.Start)
	if err != nil {
		return event.Event{}, syncerr.Malformed(r.ID, "bad start time", err)
	}
	end, err := n.parse(r.End)
	if err != nil {
		return event.Event{}, syncerr.Malformed(r.ID, "bad end time", err)
	}
	if end.Before(start) {
		return event.Event{}, syncerr.Malformed(r.ID, "end before start", nil)
	}

	return event.Event{
		SourceID:     r.ID,
		Title:        r.Subject,
		Description:  r.Body,
		Location:     r.Location,
		Start:        start,
		End:          end,
		AllDay:       r.AllDay || (r.Start.DateOnly && r.End.DateOnly),
		Cancelled:    r.Cancelled,
		LastModified: r.LastModified,
	}, nil
}

// NormalizeAll maps every record, logging and dropping malformed ones.
func (n *Normalizer) NormalizeAll(records []source.Record) ([]event.Event, []error) {
	events := make([]event.Event, 0, len(records))
	var dropped []error
	for _, r := range records {
		e, err := n.Normalize(r)
		if err != nil {
			n.log.WithField("sourceId", r.ID).WithError(err).Warn("dropping malformed event")
			dropped = append(dropped, err)
			continue
		}
		events = append(events, e)
	}
	return events, dropped
}

// parse resolves a reported time into an instant located in the zone the
// organizer saw.
func (n *Normalizer) parse(t source.Time) (time.Time, error) {
	value := strings.TrimSpace(t.Value)
	display := n.displayZone(t)

	if t.DateOnly {
		return parseLayouts(dateLayouts, value, display)
	}

	if inst, ok := parseInstant(value); ok {
		return inst.In(display), nil
	}

	valueZone := n.defaultZone
	if t.Zone != "" {
		loc, err := n.zones.resolve(t.Zone)
		if err != nil {
			return time.Time{}, err
		}
		valueZone = loc
	}
	wall, err := parseLayouts(wallLayouts, value, valueZone)
	if err != nil {
		// Some servers send DATE values without VALUE=DATE.
		if d, derr := parseLayouts(dateLayouts, value, display); derr == nil {
			return d, nil
		}
		return time.Time{}, err
	}
	return wall.In(display), nil
}

func (n *Normalizer) displayZone(t source.Time) *time.Location {
	for _, name := range []string{t.OriginalZone, t.Zone} {
		if name == "" {
			continue
		}
		if loc, err := n.zones.resolve(name); err == nil {
			return loc
		}
		n.log.WithField("zone", name).Warn("unresolvable zone, falling back")
	}
	return n.defaultZone
}

// parseInstant accepts values that carry their own offset.
func parseInstant(value string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, true
	}
	if strings.HasSuffix(value, "Z") {
		if t, err := time.ParseInLocation("20060102T150405", strings.TrimSuffix(value, "Z"), time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseLayouts(layouts []string, value string, loc *time.Location) (time.Time, error) {
	var firstErr error
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
