package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/buildinfo"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the vibecode version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vibecode %s\n", buildinfo.GetVersion())
		},
	}
}
