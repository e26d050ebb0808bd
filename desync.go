package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bobuk/ex2gcal/internal/event"
	"github.com/bobuk/ex2gcal/internal/reconcile"
	"github.com/bobuk/ex2gcal/internal/report"
)

func newDesyncCmd() *cobra.Command {
	var days int
	var yes bool
	cmd := &cobra.Command{
		Use:   "desync",
		Short: "Delete every mirror ex2gcal created in the sync window",
		Long: `desync deletes the Google events that carry an ex2gcal link within the
window. Events created by anyone else are never touched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if cmd.Flags().Changed("days") {
				a.cfg.DaysToSync = days
			}
			return desyncCalendar(cmd, a, yes)
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 0, "number of days to clean, overrides days_to_sync")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func desyncCalendar(cmd *cobra.Command, a *app, yes bool) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if a.cfg.ClientID == "" || a.cfg.ClientSecret == "" {
		return errMissingClient
	}
	zone, err := a.cfg.Location()
	if err != nil {
		return err
	}
	w := event.DaysFrom(time.Now(), a.cfg.DaysToSync)
	if a.cfg.AlignToDay {
		w = event.AlignedDays(time.Now(), a.cfg.DaysToSync, zone)
	}

	dst, err := NewCalendarFactory(ctx, a).Destination()
	if err != nil {
		return err
	}
	a.printf("🚀 Starting calendar desynchronization of %s (%s)...\n", dst.CalendarID(), w)

	mirrored, err := dst.ListMirrored(ctx, w)
	if err != nil {
		return err
	}
	// an empty source snapshot plans the deletion of every owned mirror
	plan := reconcile.BuildPlan(nil, mirrored, nil)
	if plan.Empty() {
		a.printf("%s\n", green("✅ Nothing to delete"))
		return nil
	}

	if !yes {
		a.printf("⚠️  Delete %d events from %s? (y/N): ", len(plan.Ops), dst.CalendarID())
		var confirmation string
		if _, err := fmt.Fscanln(cmd.InOrStdin(), &confirmation); err != nil || (confirmation != "y" && confirmation != "Y") {
			a.printf("❌ Calendar desynchronization cancelled\n")
			return nil
		}
	}

	res, err := reconcile.New(dst,
		reconcile.WithJournal(a.store.JournalFor(dst.CalendarID())),
		reconcile.WithWorkers(a.cfg.Workers),
		reconcile.WithLogger(a.logger),
	).Apply(ctx, plan)
	if err != nil {
		return err
	}

	a.printf("  🗑 %d deleted, %d foreign events left alone\n", res.Deleted, res.Foreign)
	if res.Failed() {
		for _, f := range res.Failures {
			a.printf("  ❗️ %s: %v\n", bold(f.SourceID), f.Err)
		}
		return &exitError{code: report.ExitPartial, err: fmt.Errorf("%d mirrors could not be deleted", len(res.Failures))}
	}
	a.printf("%s\n", green("✅ Calendar desynced successfully"))
	return nil
}
