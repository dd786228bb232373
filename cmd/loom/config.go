package main

import (
	"github.com/spf13/cobra"
)

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration, with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return loaded.Redacted().WriteYAML(cmd.OutOrStdout())
		},
	}
}
