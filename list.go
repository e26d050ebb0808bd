package main

import (
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the mirrors recorded in the local link journal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()
			return listLinks(cmd, a)
		},
	}
}

func listLinks(cmd *cobra.Command, a *app) error {
	store, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}
	links, err := store.JournalFor(a.cfg.Google.CalendarID).Links(cmd.Context())
	if err != nil {
		return err
	}

	a.printf("📋 Mirrors in calendar %s: %d\n", bold(a.cfg.Google.CalendarID), len(links))
	if len(links) == 0 {
		return nil
	}
	table := tablewriter.NewWriter(a.out)
	table.SetHeader([]string{"Source ID", "Google ID", "Source modified", "Written"})
	table.SetAutoWrapText(false)
	for _, l := range links {
		modified := "-"
		if !l.LastModified.IsZero() {
			modified = l.LastModified.Local().Format(time.DateTime)
		}
		table.Append([]string{l.SourceID, l.MirroredID, modified, l.UpdatedAt.Local().Format(time.DateTime)})
	}
	table.Render()
	return nil
}
