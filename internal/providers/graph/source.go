// Package graph reads an Exchange Online calendar through the Microsoft
// Graph calendarView.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"github.com/microsoftgraph/msgraph-sdk-go/users"
	msgraphcore "github.com/microsoftgraph/msgraph-sdk-go-core"
	log "github.com/sirupsen/logrus"

	"github.com/bobuk/ex2gcal/internal/event"
	"github.com/bobuk/ex2gcal/internal/retry"
	"github.com/bobuk/ex2gcal/internal/source"
	"github.com/bobuk/ex2gcal/internal/syncerr"
)

const pageSize int32 = 100

var selectFields = []string{
	"id", "subject", "body", "location", "start", "end",
	"originalStartTimeZone", "originalEndTimeZone",
	"isAllDay", "isCancelled", "lastModifiedDateTime",
}

// pager fetches every calendarView event of a mailbox in a window.
type pager interface {
	events(ctx context.Context, mailbox string, w event.Window) ([]models.Eventable, error)
}

// Source is the Graph source adapter.
type Source struct {
	pager   pager
	mailbox string
	retry   retry.Policy
	log     log.FieldLogger
}

var _ source.Source = (*Source)(nil)

// New creates a source reading mailbox with app-only credentials.
func New(ctx context.Context, creds ClientCredentials, mailbox string, policy retry.Policy, logger log.FieldLogger) (*Source, error) {
	cred := &tokenSourceCredential{src: creds.TokenSource(ctx)}
	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{DefaultScope})
	if err != nil {
		return nil, fmt.Errorf("failed to create Graph client: %w", err)
	}
	return newSource(&sdkPager{client: client}, mailbox, policy, logger), nil
}

func newSource(p pager, mailbox string, policy retry.Policy, logger log.FieldLogger) *Source {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Source{
		pager:   p,
		mailbox: mailbox,
		retry:   policy,
		log:     logger.WithFields(log.Fields{"provider": source.ProviderGraph, "mailbox": mailbox}),
	}
}

// ListEvents returns the calendarView of the mailbox for w. Recurring
// series come back expanded into occurrences.
func (s *Source) ListEvents(ctx context.Context, w event.Window) ([]source.Record, error) {
	items, err := retry.Do(ctx, s.retry, retryable, s.log, func() ([]models.Eventable, error) {
		return s.pager.events(ctx, s.mailbox, w)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, syncerr.SourceUnavailable(fmt.Errorf("failed to read calendar view: %w", err))
	}

	records := make([]source.Record, 0, len(items))
	for _, item := range items {
		records = append(records, recordFrom(item))
	}
	s.log.Debugf("fetched %d events", len(records))
	return records, nil
}

type sdkPager struct {
	client *msgraphsdk.GraphServiceClient
}

func (p *sdkPager) events(ctx context.Context, mailbox string, w event.Window) ([]models.Eventable, error) {
	start := w.Start.UTC().Format(time.RFC3339)
	end := w.End.UTC().Format(time.RFC3339)
	top := pageSize

	result, err := p.client.Users().ByUserId(mailbox).CalendarView().Get(ctx, &users.ItemCalendarViewRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.ItemCalendarViewRequestBuilderGetQueryParameters{
			StartDateTime: &start,
			EndDateTime:   &end,
			Top:           &top,
			Select:        selectFields,
		},
	})
	if err != nil {
		return nil, err
	}

	iter, err := msgraphcore.NewPageIterator[models.Eventable](result, p.client.GetAdapter(), models.CreateEventCollectionResponseFromDiscriminatorValue)
	if err != nil {
		return nil, fmt.Errorf("failed to page calendar view: %w", err)
	}
	var out []models.Eventable
	err = iter.Iterate(ctx, func(ev models.Eventable) bool {
		out = append(out, ev)
		return true
	})
	return out, err
}

// recordFrom flattens an SDK event. Graph reports start and end in UTC and
// the organizer's zone separately.
func recordFrom(ev models.Eventable) source.Record {
	r := source.Record{
		Provider:  source.ProviderGraph,
		ID:        str(ev.GetId()),
		Subject:   str(ev.GetSubject()),
		AllDay:    boolean(ev.GetIsAllDay()),
		Cancelled: boolean(ev.GetIsCancelled()),
	}
	if body := ev.GetBody(); body != nil {
		r.Body = str(body.GetContent())
	}
	if loc := ev.GetLocation(); loc != nil {
		r.Location = str(loc.GetDisplayName())
	}
	if lm := ev.GetLastModifiedDateTime(); lm != nil {
		r.LastModified = *lm
	}
	r.Start = timeFrom(ev.GetStart(), ev.GetOriginalStartTimeZone(), r.AllDay)
	r.End = timeFrom(ev.GetEnd(), ev.GetOriginalEndTimeZone(), r.AllDay)
	return r
}

func timeFrom(dt models.DateTimeTimeZoneable, original *string, allDay bool) source.Time {
	if dt == nil || dt.GetDateTime() == nil {
		return source.Time{}
	}
	t := source.Time{
		Value:        *dt.GetDateTime(),
		Zone:         str(dt.GetTimeZone()),
		OriginalZone: zoneName(str(original)),
	}
	if allDay {
		// all-day values are midnights of the organizer's calendar days
		if len(t.Value) >= 10 {
			t.Value = t.Value[:10]
		}
		t.DateOnly = true
		if t.OriginalZone != "" {
			t.Zone = t.OriginalZone
		}
	}
	return t
}

// zoneName strips the tzone:// form Exchange uses for some meetings.
func zoneName(name string) string {
	const prefix = "tzone://Microsoft/"
	if !strings.HasPrefix(name, prefix) {
		return name
	}
	switch rest := strings.TrimPrefix(name, prefix); rest {
	case "Utc":
		return "UTC"
	case "Custom":
		return ""
	default:
		return rest
	}
}

func retryable(err error) bool {
	var odataErr *odataerrors.ODataError
	if errors.As(err, &odataErr) {
		return retry.TransientStatus(odataErr.ResponseStatusCode)
	}
	return retry.Transient(err)
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func boolean(p *bool) bool {
	return p != nil && *p
}
