package main

import (
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the most recent sync runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()
			return showStatus(cmd, a, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "number of runs to show")
	return cmd
}

func showStatus(cmd *cobra.Command, a *app, limit int) error {
	store, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}
	runs, err := store.RecentRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		a.printf("No runs recorded yet\n")
		return nil
	}

	table := tablewriter.NewWriter(a.out)
	table.SetHeader([]string{"Started", "Status", "Took", "Created", "Updated", "Deleted", "Unchanged", "Failed"})
	for _, r := range runs {
		status := r.Status
		switch status {
		case "ok", "dry-run":
			status = green(status)
		case "partial":
			status = yellow(status)
		default:
			status = red(status)
		}
		table.Append([]string{
			r.StartedAt.Local().Format(time.DateTime),
			status,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			strconv.Itoa(r.Created),
			strconv.Itoa(r.Updated),
			strconv.Itoa(r.Deleted),
			strconv.Itoa(r.Unchanged),
			strconv.Itoa(r.Failed),
		})
	}
	table.Render()

	last := runs[0]
	if last.Error != "" {
		a.printf("%s %s\n", red("❌ Last run aborted:"), last.Error)
	}
	for _, f := range last.Failures {
		a.printf("  ❗️ %s %s: %s\n", f.Op, bold(f.SourceID), f.Error)
	}
	return nil
}
