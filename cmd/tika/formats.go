package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dameikle/tika"
	"github.com/dameikle/tika/internal/types"
)

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List extractors and their formats in priority order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			ec := types.NewContext(nil)
			for _, e := range tika.New().Extractors() {
				fmt.Fprintln(out, e.Name())
				for _, f := range e.SupportedFormats(ec) {
					fmt.Fprintf(out, "  %s\n", f)
				}
			}
			return nil
		},
	}
}
