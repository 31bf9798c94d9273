package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set at build time using ldflags, e.g.
//
//	go build -ldflags "-X 'main.Version=1.2.0' -X 'main.BuildDate=2026-10-16'"
var (
	Version   = "dev"
	BuildDate = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display the application version",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "accruals %s\n", Version)
			fmt.Fprintf(out, "Build Date: %s\n", BuildDate)
			fmt.Fprintf(out, "Go Version: %s\n", runtime.Version())
		},
	}
}
