package main

import (
	"github.com/spf13/cobra"

	"github.com/bobuk/ex2gcal/internal/report"
	"github.com/bobuk/ex2gcal/internal/runner"
)

func newSyncCmd() *cobra.Command {
	var dryRun bool
	var days int
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror the source calendar window into Google Calendar once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()
			if cmd.Flags().Changed("days") {
				a.cfg.DaysToSync = days
				if err := a.cfg.ValidateWindow(); err != nil {
					return err
				}
			}
			return syncCalendars(cmd, a, dryRun)
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "print the planned changes without writing")
	cmd.Flags().IntVarP(&days, "days", "d", 0, "number of days to sync, overrides days_to_sync")
	return cmd
}

func syncCalendars(cmd *cobra.Command, a *app, dryRun bool) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	zone, err := a.cfg.Location()
	if err != nil {
		return err
	}

	a.printf("🚀 Starting calendar synchronization...\n")
	factory := NewCalendarFactory(ctx, a)
	src, err := factory.Source()
	if err != nil {
		return &exitError{code: report.ExitRunLevel, err: err}
	}
	dst, err := factory.Destination()
	if err != nil {
		return &exitError{code: report.ExitRunLevel, err: err}
	}
	reporters, cleanup := factory.Reporters()
	defer cleanup()

	a.printf("📅 Syncing %s into %s\n", a.cfg.Source.Provider, dst.CalendarID())
	rep := runner.New(src, dst, runner.Options{
		Days:       a.cfg.DaysToSync,
		AlignToDay: a.cfg.AlignToDay,
		Zone:       zone,
		DryRun:     dryRun,
		Workers:    a.cfg.Workers,
		Policy:     a.cfg.FilterPolicy(),
		Journal:    a.store.JournalFor(dst.CalendarID()),
		Reporters:  reporters,
		Logger:     a.logger,
		Out:        a.out,
	}).Run(ctx)

	printSummary(a, rep)
	if code := rep.ExitCode(); code != report.ExitOK {
		return &exitError{code: code, err: rep.Err}
	}
	return nil
}

func printSummary(a *app, rep *report.Report) {
	a.printf("    📊 %d fetched, %d dropped, %d skipped, %d outside the window\n",
		rep.Fetched, rep.Dropped, rep.Skipped, rep.OutOfWindow)
	for _, f := range rep.Malformed {
		a.printf("      %s %s: %s\n", yellow("dropped"), bold(f.SourceID), f.Error)
	}
	verb := ""
	if rep.DryRun {
		verb = "to be "
	}
	a.printf("    ➕ %d %screated  🔄 %d %supdated  🗑 %d %sdeleted  💤 %d unchanged\n",
		rep.Created, verb, rep.Updated, verb, rep.Deleted, verb, rep.Unchanged)

	if len(rep.Failures) > 0 {
		a.printf("%s\n", yellow("    ❗️ Failed events:"))
		for _, f := range rep.Failures {
			a.printf("      %s %s: %s\n", f.Op, bold(f.SourceID), f.Error)
		}
	}

	switch rep.Status() {
	case report.StatusFailed:
		a.printf("%s\n", red("❌ Calendar synchronization aborted"))
	case report.StatusPartial:
		a.printf("%s\n", yellow("⚠️ Calendar synchronization completed with failures"))
	default:
		a.printf("%s\n", green("✅ Calendar synchronization completed successfully!"))
	}
}
