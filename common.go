package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bobuk/ex2gcal/internal/config"
	"github.com/bobuk/ex2gcal/internal/logging"
	"github.com/bobuk/ex2gcal/internal/store/sqlite"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// app is what every command needs: configuration, logger and state DB.
type app struct {
	cfg    *config.Config
	logger *log.Logger
	store  *sqlite.Store
	out    io.Writer
}

// loadApp reads the configuration. validate is false for commands that must
// work on an incomplete setup.
func loadApp(cmd *cobra.Command, validate bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbosity >= 0 {
		cfg.VerbosityLevel = verbosity
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration:\n%w", err)
		}
	}
	return &app{
		cfg:    cfg,
		logger: logging.New(cfg.VerbosityLevel, cfg.LogFormat, cmd.ErrOrStderr()),
		out:    cmd.OutOrStdout(),
	}, nil
}

// openStore opens the state DB next to the config file.
func (a *app) openStore(ctx context.Context) (*sqlite.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := sqlite.Open(ctx, a.cfg.DatabasePath(), a.cfg.Database.Driver)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	a.store = store
	return store, nil
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.WithError(err).Warn("closing database")
		}
	}
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
