// Package caldav reads an Exchange calendar exposed over CalDAV, for example
// through a DavMail gateway.
package caldav

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	log "github.com/sirupsen/logrus"

	"github.com/bobuk/ex2gcal/internal/event"
	"github.com/bobuk/ex2gcal/internal/retry"
	"github.com/bobuk/ex2gcal/internal/source"
	"github.com/bobuk/ex2gcal/internal/syncerr"
)

type querier interface {
	QueryCalendar(ctx context.Context, path string, query *caldav.CalendarQuery) ([]caldav.CalendarObject, error)
}

// Source is the CalDAV source adapter.
type Source struct {
	client querier
	path   string
	retry  retry.Policy
	log    log.FieldLogger
}

var _ source.Source = (*Source)(nil)

// New creates a source for the calendar collection at calendarPath on
// serverURL. Credentials are optional.
func New(serverURL, username, password, calendarPath string, policy retry.Policy, logger log.FieldLogger) (*Source, error) {
	baseURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid CalDAV server URL: %w", err)
	}

	var httpClient webdav.HTTPClient = &http.Client{Timeout: time.Minute}
	if username != "" && password != "" {
		httpClient = webdav.HTTPClientWithBasicAuth(httpClient, username, password)
	}

	c, err := caldav.NewClient(httpClient, baseURL.String())
	if err != nil {
		return nil, fmt.Errorf("failed to create CalDAV client: %w", err)
	}
	if calendarPath == "" {
		calendarPath = baseURL.Path
	}
	return newSource(c, calendarPath, policy, logger), nil
}

func newSource(c querier, path string, policy retry.Policy, logger log.FieldLogger) *Source {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Source{
		client: c,
		path:   path,
		retry:  policy,
		log:    logger.WithFields(log.Fields{"provider": source.ProviderCalDAV, "calendar": path}),
	}
}

// ListEvents runs a time-range calendar-query for w.
func (s *Source) ListEvents(ctx context.Context, w event.Window) ([]source.Record, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     "VCALENDAR",
			AllProps: true,
			AllComps: true,
			// series come back as instances inside w, each with a RECURRENCE-ID
			Expand: &caldav.CalendarExpandRequest{Start: w.Start, End: w.End},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: w.Start,
				End:   w.End,
			}},
		},
	}

	objects, err := retry.Do(ctx, s.retry, retry.Transient, s.log, func() ([]caldav.CalendarObject, error) {
		return s.client.QueryCalendar(ctx, s.path, query)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, syncerr.SourceUnavailable(fmt.Errorf("failed to list events: %w", err))
	}

	var records []source.Record
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, comp := range obj.Data.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			if comp.Props.Get(ical.PropRecurrenceRule) != nil {
				s.log.WithField("sourceId", getTextProp(comp.Props, ical.PropUID)).
					Warn("server did not expand a recurring series, only its first occurrence can be mirrored")
			}
			records = append(records, recordFrom(comp, obj.ModTime))
		}
	}
	s.log.Debugf("fetched %d events", len(records))
	return records, nil
}

func recordFrom(comp *ical.Component, modTime time.Time) source.Record {
	r := source.Record{
		Provider:  source.ProviderCalDAV,
		ID:        getTextProp(comp.Props, ical.PropUID),
		Subject:   getTextProp(comp.Props, ical.PropSummary),
		Body:      getTextProp(comp.Props, ical.PropDescription),
		Location:  getTextProp(comp.Props, ical.PropLocation),
		Cancelled: strings.EqualFold(getTextProp(comp.Props, ical.PropStatus), "CANCELLED"),
	}
	// overridden occurrences share the UID of their series
	if rid := comp.Props.Get(ical.PropRecurrenceID); rid != nil && r.ID != "" {
		r.ID += "/" + rid.Value
	}

	r.Start = timeFrom(comp.Props.Get(ical.PropDateTimeStart))
	r.End = endFrom(comp, r.Start)
	r.AllDay = r.Start.DateOnly

	r.LastModified = modTime
	for _, name := range []string{ical.PropLastModified, ical.PropDateTimeStamp} {
		if prop := comp.Props.Get(name); prop != nil {
			if t, err := prop.DateTime(time.UTC); err == nil {
				r.LastModified = t
				break
			}
		}
	}
	return r
}

func timeFrom(prop *ical.Prop) source.Time {
	if prop == nil {
		return source.Time{}
	}
	return source.Time{
		Value:    prop.Value,
		Zone:     prop.Params.Get(ical.ParamTimezoneID),
		DateOnly: strings.EqualFold(prop.Params.Get(ical.ParamValue), "DATE") || len(prop.Value) == len("20060102"),
	}
}

// endFrom falls back to DURATION, and to the RFC 5545 defaults when neither
// DTEND nor DURATION is present.
func endFrom(comp *ical.Component, start source.Time) source.Time {
	if prop := comp.Props.Get(ical.PropDateTimeEnd); prop != nil {
		return timeFrom(prop)
	}
	if start.IsZero() {
		return source.Time{}
	}
	if prop := comp.Props.Get(ical.PropDuration); prop != nil {
		if d, err := prop.Duration(); err == nil {
			return shift(start, d)
		}
	}
	if start.DateOnly {
		return shift(start, 24*time.Hour)
	}
	return start
}

func shift(t source.Time, d time.Duration) source.Time {
	layout := "20060102T150405"
	value := strings.TrimSuffix(t.Value, "Z")
	if t.DateOnly {
		layout = "20060102"
	}
	parsed, err := time.Parse(layout, value)
	if err != nil {
		return source.Time{}
	}
	out := t
	out.Value = parsed.Add(d).Format(layout)
	if strings.HasSuffix(t.Value, "Z") {
		out.Value += "Z"
	}
	return out
}

// Helper function to get text property safely
func getTextProp(props ical.Props, name string) string {
	prop := props.Get(name)
	if prop == nil {
		return ""
	}
	if text, err := prop.Text(); err == nil {
		return text
	}
	return prop.Value
}
