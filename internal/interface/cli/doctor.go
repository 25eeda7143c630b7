package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newDoctorCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the home directory, state database, and agent backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.container()
			if err != nil {
				return fmt.Errorf("container: %w", err)
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "home        : %s\n", c.Paths().Home)
			fmt.Fprintf(out, "state db    : %s\n", c.Paths().StateDB)
			fmt.Fprintf(out, "audit log   : %s\n", c.Paths().AuditLog)
			fmt.Fprintf(out, "config from : %s\n", c.Config().ConfigSource())
			fmt.Fprintf(out, "threshold   : %.2f\n", c.Config().ConfidenceThreshold())
			fmt.Fprintf(out, "autonomous  : %v\n", c.Config().AutoApprove())

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if err := c.HealthCheck(ctx); err != nil {
				fmt.Fprintf(out, "agent       : UNAVAILABLE (%v)\n", err)
				return fmt.Errorf("agent backend unavailable")
			}
			fmt.Fprintf(out, "agent       : ok\n")
			return nil
		},
	}
}
