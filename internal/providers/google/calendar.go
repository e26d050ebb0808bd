// Package google mirrors events into a Google Calendar through the Calendar
// v3 API. The mirror link lives in the private extended properties of every
// event it creates.
package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/bobuk/ex2gcal/internal/event"
	"github.com/bobuk/ex2gcal/internal/reconcile"
	"github.com/bobuk/ex2gcal/internal/retry"
	"github.com/bobuk/ex2gcal/internal/syncerr"
)

const pageSize = 250

// Options configures a Calendar.
type Options struct {
	CalendarID string
	Render     RenderOptions
	Retry      retry.Policy
	Logger     log.FieldLogger
}

// Calendar is the destination adapter.
type Calendar struct {
	service    *calendar.Service
	calendarID string
	render     *renderer
	retry      retry.Policy
	log        log.FieldLogger
}

var _ reconcile.Destination = (*Calendar)(nil)

// New creates the adapter. clientOpts usually carry option.WithHTTPClient.
func New(ctx context.Context, opts Options, clientOpts ...option.ClientOption) (*Calendar, error) {
	service, err := calendar.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	if opts.CalendarID == "" {
		opts.CalendarID = "primary"
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	return &Calendar{
		service:    service,
		calendarID: opts.CalendarID,
		render:     newRenderer(opts.Render),
		retry:      opts.Retry,
		log:        opts.Logger.WithField("calendar", opts.CalendarID),
	}, nil
}

// CalendarID returns the calendar this adapter writes to.
func (c *Calendar) CalendarID() string {
	return c.calendarID
}

// Check verifies the calendar is reachable and returns its summary.
func (c *Calendar) Check(ctx context.Context) (string, error) {
	entry, err := retry.Do(ctx, c.retry, retryable, c.log, func() (*calendar.CalendarListEntry, error) {
		return c.service.CalendarList.Get(c.calendarID).Context(ctx).Do()
	})
	if err != nil {
		return "", unavailable(fmt.Errorf("failed to get calendar: %w", err))
	}
	return entry.Summary, nil
}

// ListMirrored returns every event overlapping w, owned or not.
func (c *Calendar) ListMirrored(ctx context.Context, w event.Window) ([]reconcile.Mirrored, error) {
	out, err := retry.Do(ctx, c.retry, retryable, c.log, func() ([]reconcile.Mirrored, error) {
		var page []reconcile.Mirrored
		err := c.service.Events.List(c.calendarID).
			TimeMin(w.Start.Format(time.RFC3339)).
			TimeMax(w.End.Format(time.RFC3339)).
			SingleEvents(true).
			ShowDeleted(false).
			MaxResults(pageSize).
			Pages(ctx, func(events *calendar.Events) error {
				for _, item := range events.Items {
					if item.Status == "cancelled" {
						continue
					}
					page = append(page, reconcile.Mirrored{
						DestinationID: item.Id,
						Title:         item.Summary,
						Start:         parseEventTime(item.Start),
						End:           parseEventTime(item.End),
						Link:          linkOf(item),
					})
				}
				return nil
			})
		return page, err
	})
	if err != nil {
		return nil, unavailable(fmt.Errorf("failed to list events: %w", err))
	}
	return out, nil
}

// Create inserts the mirror of e with link stamped on it.
func (c *Calendar) Create(ctx context.Context, e event.Event, link event.Link) (string, error) {
	ge := c.render.render(e, link)
	created, err := retry.Do(ctx, c.retry, retryable, c.log, func() (*calendar.Event, error) {
		return c.service.Events.Insert(c.calendarID, ge).Context(ctx).Do()
	})
	if err != nil {
		return "", classify(fmt.Errorf("failed to create event: %w", err))
	}
	return created.Id, nil
}

// Update overwrites the mirror identified by link.MirroredID.
func (c *Calendar) Update(ctx context.Context, link event.Link, e event.Event) error {
	ge := c.render.render(e, link)
	_, err := retry.Do(ctx, c.retry, retryable, c.log, func() (*calendar.Event, error) {
		return c.service.Events.Update(c.calendarID, link.MirroredID, ge).Context(ctx).Do()
	})
	if err != nil {
		return classify(fmt.Errorf("failed to update event: %w", err))
	}
	return nil
}

// Delete removes the mirror. An event that is already gone counts as deleted.
func (c *Calendar) Delete(ctx context.Context, link event.Link) error {
	_, err := retry.Do(ctx, c.retry, retryable, c.log, func() (struct{}, error) {
		return struct{}{}, c.service.Events.Delete(c.calendarID, link.MirroredID).Context(ctx).Do()
	})
	if err != nil {
		if code := statusCode(err); code == http.StatusNotFound || code == http.StatusGone {
			return nil
		}
		return classify(fmt.Errorf("failed to delete event: %w", err))
	}
	return nil
}

func statusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

func rateLimited(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusTooManyRequests {
		return true
	}
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return false
}

func retryable(err error) bool {
	if rateLimited(err) {
		return true
	}
	if code := statusCode(err); code != 0 {
		return retry.TransientStatus(code)
	}
	return retry.Transient(err)
}

// classify marks failures that no other event could survive.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if rateLimited(err) {
		return syncerr.DestinationUnavailable(err)
	}
	if code := statusCode(err); code != 0 {
		if retry.Unauthorized(code) || retry.TransientStatus(code) {
			return syncerr.DestinationUnavailable(err)
		}
		return err
	}
	var retrieveErr *oauth2.RetrieveError
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &retrieveErr) || errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return syncerr.DestinationUnavailable(err)
	}
	return err
}

// unavailable is classify for listing calls, where every failure is fatal.
func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return syncerr.DestinationUnavailable(err)
}
