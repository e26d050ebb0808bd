package main

import (
	"errors"
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbosity  int
)

// exitError ends the process with code after the message was printed.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ex2gcal",
		Short: "Mirror an Exchange calendar into Google Calendar",
		Long: `ex2gcal copies the events of an Exchange (Microsoft Graph or CalDAV) calendar
into a Google calendar. Only events it created are ever updated or deleted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default .ex2gcal.toml, then ~/.config/ex2gcal/.ex2gcal.toml)")
	root.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", -1, "verbosity level 0..5, overrides verbosity_level")

	root.AddCommand(
		newSyncCmd(),
		newAuthCmd(),
		newListCmd(),
		newStatusCmd(),
		newDesyncCmd(),
		newCleanupCmd(),
		newConfigCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			if exit.err != nil {
				fmt.Fprintln(os.Stderr, red("❌ "+exit.err.Error()))
			}
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, red("❌ "+err.Error()))
		os.Exit(1)
	}
}
