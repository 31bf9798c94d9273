// Command accruals pulls daily accrual transactions from the NT
// fund-accounting API, stores the raw files and loads them into the warehouse.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "accruals",
		Short:        "NT accruals batch loader",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Show help when no subcommand is provided
			return cmd.Help()
		},
	}
	root.AddCommand(newRunCmd(), newVersionCmd())
	return root
}
