// Package config loads the ex2gcal configuration from a TOML file, a .env
// file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/subosito/gotenv"

	"github.com/bobuk/ex2gcal/internal/filter"
	"github.com/bobuk/ex2gcal/internal/retry"
	"github.com/bobuk/ex2gcal/internal/source"
	"github.com/bobuk/ex2gcal/internal/store/sqlite"
)

// FileName is looked up in the working directory, then in DefaultDir.
const FileName = ".ex2gcal.toml"

// DefaultDir returns $HOME/.config/ex2gcal.
func DefaultDir() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "ex2gcal")
}

type Config struct {
	ClientID         string `toml:"client_id"`
	ClientSecret     string `toml:"client_secret"`
	DisableReminders bool   `toml:"disable_reminders"`
	VerbosityLevel   int    `toml:"verbosity_level"`
	LogFormat        string `toml:"log_format"`

	DaysToSync      int      `toml:"days_to_sync"`
	AlignToDay      bool     `toml:"align_to_day"`
	TitlePrefix     string   `toml:"event_title_prefix"`
	TitlesToSkip    []string `toml:"event_titles_to_skip"`
	MirrorCancelled bool     `toml:"mirror_cancelled"`
	DefaultTimeZone string   `toml:"default_time_zone"`
	Workers         int      `toml:"workers"`

	Google   GoogleConfig   `toml:"google"`
	Source   SourceConfig   `toml:"source"`
	Database DatabaseConfig `toml:"database"`
	Retry    RetryConfig    `toml:"retry"`
	NATS     NATSConfig     `toml:"nats"`
	Metrics  MetricsConfig  `toml:"metrics"`

	// Dir is where the config file was found, empty without a file.
	Dir string `toml:"-"`
}

type GoogleConfig struct {
	Account         string `toml:"account"`
	CalendarID      string `toml:"calendar_id"`
	RedirectURL     string `toml:"redirect_url"`
	ReminderMinutes int64  `toml:"reminder_minutes"`
	EventVisibility string `toml:"event_visibility"`
}

type SourceConfig struct {
	Provider string       `toml:"provider"`
	Graph    GraphConfig  `toml:"graph"`
	CalDAV   CalDAVConfig `toml:"caldav"`
}

type GraphConfig struct {
	TenantID     string `toml:"tenant_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	Mailbox      string `toml:"mailbox"`
}

type CalDAVConfig struct {
	ServerURL    string `toml:"server_url"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	CalendarPath string `toml:"calendar_path"`
}

type DatabaseConfig struct {
	Path   string `toml:"path"`
	Driver string `toml:"driver"`
}

type RetryConfig struct {
	MaxTries        uint          `toml:"max_tries"`
	InitialInterval time.Duration `toml:"initial_interval"`
	MaxInterval     time.Duration `toml:"max_interval"`
	MaxElapsed      time.Duration `toml:"max_elapsed"`
}

type NATSConfig struct {
	URL           string `toml:"url"`
	Stream        string `toml:"stream"`
	SubjectPrefix string `toml:"subject_prefix"`
}

type MetricsConfig struct {
	PushgatewayURL string `toml:"pushgateway_url"`
	Job            string `toml:"job"`
}

// Default returns the built-in configuration.
func Default() *Config {
	policy := retry.DefaultPolicy()
	return &Config{
		VerbosityLevel:  2,
		LogFormat:       "text",
		DaysToSync:      1,
		DefaultTimeZone: "UTC",
		Workers:         1,
		Google: GoogleConfig{
			Account:         "default",
			CalendarID:      "primary",
			ReminderMinutes: 10,
		},
		Source:   SourceConfig{Provider: string(source.ProviderGraph)},
		Database: DatabaseConfig{Path: ".ex2gcal.db", Driver: sqlite.DriverCGO},
		Retry: RetryConfig{
			MaxTries:        policy.MaxTries,
			InitialInterval: policy.InitialInterval,
			MaxInterval:     policy.MaxInterval,
			MaxElapsed:      policy.MaxElapsed,
		},
		NATS:    NATSConfig{Stream: "EX2GCAL_RUNS", SubjectPrefix: "ex2gcal.runs"},
		Metrics: MetricsConfig{Job: "ex2gcal"},
	}
}

// Load builds the effective configuration. An empty path searches FileName
// in the working directory and then in DefaultDir; a missing file is not an
// error. A .env file in the working directory is loaded without overriding
// variables that are already set.
func Load(path string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	cfg := Default()
	found, err := locate(path)
	if err != nil {
		return nil, err
	}
	if found != "" {
		if _, err := toml.DecodeFile(found, cfg); err != nil {
			return nil, fmt.Errorf("error reading config %s: %w", found, err)
		}
		cfg.Dir = filepath.Dir(found)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.TitlesToSkip = cleanSkipList(cfg.TitlesToSkip)
	return cfg, nil
}

func locate(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return path, nil
	}
	for _, candidate := range []string{FileName, filepath.Join(DefaultDir(), FileName)} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

func cleanSkipList(entries []string) []string {
	return filter.ParseSkipList(strings.Join(entries, ","))
}

// DatabasePath resolves a relative database path against the config dir.
func (c *Config) DatabasePath() string {
	if filepath.IsAbs(c.Database.Path) || c.Dir == "" || c.Database.Path == ":memory:" {
		return c.Database.Path
	}
	return filepath.Join(c.Dir, c.Database.Path)
}

// Location returns the zone attached to floating source events.
func (c *Config) Location() (*time.Location, error) {
	if c.DefaultTimeZone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.DefaultTimeZone)
}

// RetryPolicy converts the retry section.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxTries:        c.Retry.MaxTries,
		InitialInterval: c.Retry.InitialInterval,
		MaxInterval:     c.Retry.MaxInterval,
		MaxElapsed:      c.Retry.MaxElapsed,
	}
}

// FilterPolicy converts the filter settings.
func (c *Config) FilterPolicy() filter.Policy {
	return filter.NewPolicy(c.TitlePrefix, c.TitlesToSkip, c.MirrorCancelled)
}

// CalDAVServerURL returns the server URL, defaulting the scheme to https
// for bare EWS_SERVER host names.
func (c *Config) CalDAVServerURL() string {
	u := c.Source.CalDAV.ServerURL
	if u != "" && !strings.Contains(u, "://") {
		u = "https://" + u
	}
	return u
}

// ValidateWindow rejects a sync window that would be empty. With
// align_to_day, zero days means the rest of today.
func (c *Config) ValidateWindow() error {
	switch {
	case c.DaysToSync < 0:
		return fmt.Errorf("days_to_sync must not be negative, got %d", c.DaysToSync)
	case c.DaysToSync == 0 && !c.AlignToDay:
		return errors.New("days_to_sync must be at least 1 unless align_to_day is set")
	}
	return nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if err := c.ValidateWindow(); err != nil {
		errs = append(errs, err)
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.VerbosityLevel < 0 || c.VerbosityLevel > 5 {
		errs = append(errs, fmt.Errorf("verbosity_level must be between 0 and 5, got %d", c.VerbosityLevel))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("default_time_zone: %w", err))
	}
	switch c.Database.Driver {
	case sqlite.DriverCGO, sqlite.DriverPureGo:
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %q or %q, got %q", sqlite.DriverCGO, sqlite.DriverPureGo, c.Database.Driver))
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		errs = append(errs, errors.New("client_id and client_secret of the Google OAuth app are required"))
	}

	switch source.Provider(c.Source.Provider) {
	case source.ProviderGraph:
		g := c.Source.Graph
		if g.TenantID == "" || g.ClientID == "" || g.ClientSecret == "" || g.Mailbox == "" {
			errs = append(errs, errors.New("source.graph needs tenant_id, client_id, client_secret and mailbox"))
		}
	case source.ProviderCalDAV:
		if c.Source.CalDAV.ServerURL == "" {
			errs = append(errs, errors.New("source.caldav.server_url (or EWS_SERVER) is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("source.provider must be %q or %q, got %q", source.ProviderGraph, source.ProviderCalDAV, c.Source.Provider))
	}
	return errors.Join(errs...)
}

const mask = "********"

// WriteTOML encodes the configuration with secrets masked.
func (c *Config) WriteTOML(w io.Writer) error {
	out := *c
	for _, secret := range []*string{&out.ClientSecret, &out.Source.Graph.ClientSecret, &out.Source.CalDAV.Password} {
		if *secret != "" {
			*secret = mask
		}
	}
	return toml.NewEncoder(w).Encode(out)
}
