package google

import (
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"google.golang.org/api/calendar/v3"

	"github.com/bobuk/ex2gcal/internal/event"
)

// Private extended property keys holding the mirror link.
const (
	PropSourceID     = "exchangeId"
	PropLastModified = "exchangeLastModified"
	PropFingerprint  = "ex2gcalFingerprint"
)

const (
	maxSummaryLen     = 1024
	maxDescriptionLen = 8192
	dateLayout        = "2006-01-02"
)

// RenderOptions controls how mirrors look on the destination.
type RenderOptions struct {
	ReminderMinutes  int64
	DisableReminders bool
	// Visibility is passed through when set ("default", "public", "private").
	Visibility string
}

type renderer struct {
	opts   RenderOptions
	policy *bluemonday.Policy
}

func newRenderer(opts RenderOptions) *renderer {
	return &renderer{opts: opts, policy: descriptionPolicy()}
}

// descriptionPolicy allows the markup Google renders in event descriptions.
// Comments are always dropped.
func descriptionPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "i", "u", "br", "h1", "h2", "h3", "h4", "h5", "h6",
		"blockquote", "ol", "ul", "li", "em", "strong", "code", "hr")
	p.AllowURLSchemes("mailto", "http", "https")
	p.RequireParseableURLs(true)
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt").OnElements("img")
	return p
}

func (r *renderer) render(e event.Event, link event.Link) *calendar.Event {
	ge := &calendar.Event{
		Summary:      truncate(e.Title, maxSummaryLen),
		Description:  truncate(r.policy.Sanitize(e.Description), maxDescriptionLen),
		Location:     e.Location,
		Start:        eventTime(e.Start, e.AllDay),
		End:          eventTime(e.End, e.AllDay),
		Transparency: "opaque",
		Visibility:   r.opts.Visibility,
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: linkProperties(link),
		},
		Reminders: r.reminders(),
	}
	if e.Cancelled {
		// mirrored cancelled meetings stay visible but do not block time
		ge.Transparency = "transparent"
	}
	return ge
}

func (r *renderer) reminders() *calendar.EventReminders {
	rem := &calendar.EventReminders{UseDefault: false, ForceSendFields: []string{"UseDefault"}}
	if !r.opts.DisableReminders && r.opts.ReminderMinutes > 0 {
		rem.Overrides = []*calendar.EventReminder{{Method: "popup", Minutes: r.opts.ReminderMinutes}}
	}
	return rem
}

func eventTime(t time.Time, allDay bool) *calendar.EventDateTime {
	if allDay {
		return &calendar.EventDateTime{Date: t.Format(dateLayout)}
	}
	return &calendar.EventDateTime{
		DateTime: t.Format(time.RFC3339),
		TimeZone: t.Location().String(),
	}
}

func linkProperties(link event.Link) map[string]string {
	props := map[string]string{
		PropSourceID:    link.SourceID,
		PropFingerprint: link.Fingerprint,
	}
	if !link.LastModified.IsZero() {
		props[PropLastModified] = link.LastModified.UTC().Format(time.RFC3339Nano)
	}
	return props
}

// linkOf reads the mirror link of a destination event, nil when it has none.
func linkOf(ge *calendar.Event) *event.Link {
	if ge.ExtendedProperties == nil {
		return nil
	}
	props := ge.ExtendedProperties.Private
	id := props[PropSourceID]
	if id == "" {
		return nil
	}
	link := &event.Link{SourceID: id, MirroredID: ge.Id, Fingerprint: props[PropFingerprint]}
	if lm, err := time.Parse(time.RFC3339Nano, props[PropLastModified]); err == nil {
		link.LastModified = lm
	}
	return link
}

// parseEventTime reads a Google start or end value.
func parseEventTime(dt *calendar.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	loc := time.UTC
	if dt.TimeZone != "" {
		if l, err := time.LoadLocation(dt.TimeZone); err == nil {
			loc = l
		}
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t.In(loc)
		}
		return time.Time{}
	}
	t, _ := time.ParseInLocation(dateLayout, dt.Date, loc)
	return t
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
