package main

import (
	"github.com/spf13/cobra"
)

func newCleanupCmd() *cobra.Command {
	var keep int
	var links bool
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Prune the local run history",
		Long: `cleanup keeps the newest runs in the local history. With --links it also
forgets the link journal of the calendar; the links stored on the Google events
stay authoritative, so the next sync is unaffected.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()
			return cleanupState(cmd, a, keep, links)
		},
	}
	cmd.Flags().IntVarP(&keep, "keep", "k", 50, "number of runs to keep")
	cmd.Flags().BoolVar(&links, "links", false, "also clear the link journal")
	return cmd
}

func cleanupState(cmd *cobra.Command, a *app, keep int, links bool) error {
	ctx := cmd.Context()
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	pruned, err := store.PruneRuns(ctx, keep)
	if err != nil {
		return err
	}
	a.printf("  🗑 %d old runs removed\n", pruned)

	if links {
		n, err := store.JournalFor(a.cfg.Google.CalendarID).Clear(ctx)
		if err != nil {
			return err
		}
		a.printf("  🗑 %d journal links removed\n", n)
	}
	a.printf("%s\n", green("✅ Cleanup completed"))
	return nil
}
