package main

import (
	"context"
	"fmt"

	"google.golang.org/api/option"

	"github.com/bobuk/ex2gcal/internal/metrics"
	"github.com/bobuk/ex2gcal/internal/notify/natsjs"
	"github.com/bobuk/ex2gcal/internal/providers/caldav"
	"github.com/bobuk/ex2gcal/internal/providers/google"
	"github.com/bobuk/ex2gcal/internal/providers/graph"
	"github.com/bobuk/ex2gcal/internal/report"
	"github.com/bobuk/ex2gcal/internal/source"
)

// CalendarFactory builds the adapters named by the configuration.
type CalendarFactory struct {
	app *app
	ctx context.Context
}

func NewCalendarFactory(ctx context.Context, a *app) *CalendarFactory {
	return &CalendarFactory{app: a, ctx: ctx}
}

// Source returns the configured Exchange source.
func (cf *CalendarFactory) Source() (source.Source, error) {
	cfg := cf.app.cfg
	logger := cf.app.logger
	switch source.Provider(cfg.Source.Provider) {
	case source.ProviderGraph:
		g := cfg.Source.Graph
		return graph.New(cf.ctx, graph.ClientCredentials{
			TenantID:     g.TenantID,
			ClientID:     g.ClientID,
			ClientSecret: g.ClientSecret,
		}, g.Mailbox, cfg.RetryPolicy(), logger)
	case source.ProviderCalDAV:
		c := cfg.Source.CalDAV
		return caldav.New(cfg.CalDAVServerURL(), c.Username, c.Password, c.CalendarPath, cfg.RetryPolicy(), logger)
	default:
		return nil, fmt.Errorf("unsupported source provider: %s", cfg.Source.Provider)
	}
}

// Destination returns the Google calendar authorized by the stored token.
func (cf *CalendarFactory) Destination() (*google.Calendar, error) {
	cfg := cf.app.cfg
	store, err := cf.app.openStore(cf.ctx)
	if err != nil {
		return nil, err
	}
	oauthConfig := google.OAuthConfig(cfg.ClientID, cfg.ClientSecret, cfg.Google.RedirectURL)
	client, err := google.Client(cf.ctx, oauthConfig, store, cfg.Google.Account, cf.app.logger)
	if err != nil {
		return nil, err
	}
	return google.New(cf.ctx, google.Options{
		CalendarID: cfg.Google.CalendarID,
		Render: google.RenderOptions{
			ReminderMinutes:  cfg.Google.ReminderMinutes,
			DisableReminders: cfg.DisableReminders,
			Visibility:       cfg.Google.EventVisibility,
		},
		Retry:  cfg.RetryPolicy(),
		Logger: cf.app.logger,
	}, option.WithHTTPClient(client))
}

// Reporters returns the run history plus the optional NATS and Pushgateway
// sinks. The returned cleanup closes what was opened.
func (cf *CalendarFactory) Reporters() ([]report.Reporter, func()) {
	cfg := cf.app.cfg
	logger := cf.app.logger
	var reporters []report.Reporter
	cleanup := func() {}

	if store, err := cf.app.openStore(cf.ctx); err == nil {
		reporters = append(reporters, store)
	}

	if cfg.NATS.URL != "" {
		pub, err := natsjs.NewPublisher(cfg.NATS.URL, cfg.NATS.Stream, cfg.NATS.SubjectPrefix)
		if err != nil {
			logger.WithError(err).Warn("run notifications disabled")
		} else if err := pub.EnsureStream(cf.ctx); err != nil {
			logger.WithError(err).Warn("run notifications disabled")
			pub.Close()
		} else {
			reporters = append(reporters, pub)
			cleanup = pub.Close
		}
	}

	if cfg.Metrics.PushgatewayURL != "" {
		reporters = append(reporters, metrics.NewPusher(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, cfg.Google.CalendarID))
	}
	return reporters, cleanup
}
