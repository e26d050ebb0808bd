package main

import (
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, false)
			if err != nil {
				return err
			}
			if err := a.cfg.WriteTOML(a.out); err != nil {
				return err
			}
			if err := a.cfg.Validate(); err != nil {
				a.printf("\n%s\n%v\n", yellow("⚠️ Configuration problems:"), err)
			}
			return nil
		},
	}
}
