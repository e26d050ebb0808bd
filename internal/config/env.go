package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/bobuk/ex2gcal/internal/filter"
)

type envBinding struct {
	key   string
	names []string
	set   func(c *Config, v *viper.Viper, key string)
}

func setString(field func(*Config) *string) func(*Config, *viper.Viper, string) {
	return func(c *Config, v *viper.Viper, key string) { *field(c) = v.GetString(key) }
}

func setInt(field func(*Config) *int) func(*Config, *viper.Viper, string) {
	return func(c *Config, v *viper.Viper, key string) { *field(c) = v.GetInt(key) }
}

func setBool(field func(*Config) *bool) func(*Config, *viper.Viper, string) {
	return func(c *Config, v *viper.Viper, key string) { *field(c) = v.GetBool(key) }
}

// The unprefixed EWS names are kept for existing deployments.
var envBindings = []envBinding{
	{"days_to_sync", []string{"EX2GCAL_NUM_DAYS_TO_SYNC"}, setInt(func(c *Config) *int { return &c.DaysToSync })},
	{"align_to_day", []string{"EX2GCAL_ALIGN_TO_DAY"}, setBool(func(c *Config) *bool { return &c.AlignToDay })},
	{"event_title_prefix", []string{"EX2GCAL_EVENT_TITLE_PREFIX"}, setString(func(c *Config) *string { return &c.TitlePrefix })},
	{"event_titles_to_skip", []string{"EX2GCAL_EVENT_TITLES_TO_SKIP"}, func(c *Config, v *viper.Viper, key string) {
		c.TitlesToSkip = filter.ParseSkipList(v.GetString(key))
	}},
	{"mirror_cancelled", []string{"EX2GCAL_MIRROR_CANCELLED"}, setBool(func(c *Config) *bool { return &c.MirrorCancelled })},
	{"default_time_zone", []string{"EX2GCAL_DEFAULT_TIME_ZONE"}, setString(func(c *Config) *string { return &c.DefaultTimeZone })},
	{"workers", []string{"EX2GCAL_WORKERS"}, setInt(func(c *Config) *int { return &c.Workers })},
	{"verbosity_level", []string{"EX2GCAL_VERBOSITY_LEVEL"}, setInt(func(c *Config) *int { return &c.VerbosityLevel })},
	{"log_format", []string{"EX2GCAL_LOG_FORMAT"}, setString(func(c *Config) *string { return &c.LogFormat })},

	{"client_id", []string{"EX2GCAL_GOOGLE_CLIENT_ID"}, setString(func(c *Config) *string { return &c.ClientID })},
	{"client_secret", []string{"EX2GCAL_GOOGLE_CLIENT_SECRET"}, setString(func(c *Config) *string { return &c.ClientSecret })},
	{"google.account", []string{"EX2GCAL_GOOGLE_ACCOUNT"}, setString(func(c *Config) *string { return &c.Google.Account })},
	{"google.calendar_id", []string{"EX2GCAL_GOOGLE_CALENDAR_ID"}, setString(func(c *Config) *string { return &c.Google.CalendarID })},

	{"source.provider", []string{"EX2GCAL_SOURCE_PROVIDER"}, setString(func(c *Config) *string { return &c.Source.Provider })},
	{"source.graph.tenant_id", []string{"EX2GCAL_GRAPH_TENANT_ID"}, setString(func(c *Config) *string { return &c.Source.Graph.TenantID })},
	{"source.graph.client_id", []string{"EX2GCAL_GRAPH_CLIENT_ID"}, setString(func(c *Config) *string { return &c.Source.Graph.ClientID })},
	{"source.graph.client_secret", []string{"EX2GCAL_GRAPH_CLIENT_SECRET"}, setString(func(c *Config) *string { return &c.Source.Graph.ClientSecret })},
	{"source.graph.mailbox", []string{"EX2GCAL_GRAPH_MAILBOX", "EWS_EMAIL_ADDRESS"}, setString(func(c *Config) *string { return &c.Source.Graph.Mailbox })},
	{"source.caldav.server_url", []string{"EX2GCAL_CALDAV_SERVER_URL", "EWS_SERVER"}, setString(func(c *Config) *string { return &c.Source.CalDAV.ServerURL })},
	{"source.caldav.username", []string{"EX2GCAL_CALDAV_USERNAME", "EWS_EMAIL_ADDRESS"}, setString(func(c *Config) *string { return &c.Source.CalDAV.Username })},
	{"source.caldav.password", []string{"EX2GCAL_CALDAV_PASSWORD", "EWS_PASSWORD"}, setString(func(c *Config) *string { return &c.Source.CalDAV.Password })},

	{"database.path", []string{"EX2GCAL_DB_PATH"}, setString(func(c *Config) *string { return &c.Database.Path })},
	{"database.driver", []string{"EX2GCAL_DB_DRIVER"}, setString(func(c *Config) *string { return &c.Database.Driver })},
	{"nats.url", []string{"EX2GCAL_NATS_URL"}, setString(func(c *Config) *string { return &c.NATS.URL })},
	{"metrics.pushgateway_url", []string{"EX2GCAL_PUSHGATEWAY_URL"}, setString(func(c *Config) *string { return &c.Metrics.PushgatewayURL })},
}

// applyEnv overlays every set environment variable onto cfg.
func applyEnv(cfg *Config) error {
	v := viper.New()
	for _, b := range envBindings {
		args := append([]string{b.key}, b.names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind %s: %w", b.key, err)
		}
		if v.IsSet(b.key) {
			b.set(cfg, v, b.key)
		}
	}
	return nil
}
