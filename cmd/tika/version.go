package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dameikle/tika"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info := tika.GetVersionInfo()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tika %s\n", info.Version)
			commit := info.GitCommit
			if info.Modified {
				commit += " (modified)"
			}
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", info.BuildTime)
			fmt.Fprintf(out, "  go:     %s\n", info.GoVersion)
		},
	}
}
