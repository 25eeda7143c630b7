package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/repository"
)

func newBreakerCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breaker",
		Short: "Inspect and reset the error-signature circuit breaker",
		RunE:  func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newBreakerShowCmd(flags))
	cmd.AddCommand(newBreakerResetCmd(flags))
	return cmd
}

func newBreakerShowCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <signature>",
		Short: "Show the escalation state for an error signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.container()
			if err != nil {
				return err
			}
			defer c.Close()

			s, err := c.EscalationRepository().Find(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					fmt.Fprintf(cmd.OutOrStdout(), "signature %s: never seen\n", args[0])
					return nil
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Signature : %s\n", s.Signature)
			fmt.Fprintf(out, "Count     : %d\n", s.Count)
			fmt.Fprintf(out, "Tripped   : %v\n", s.Tripped)
			fmt.Fprintf(out, "Updated   : %s\n", s.UpdatedAt.Format(time.RFC3339))
			for _, a := range s.Attempts {
				fmt.Fprintf(out, "  %-14s %-16s %s\n", a.Stage, a.Strategy, a.Outcome)
			}
			return nil
		},
	}
}

func newBreakerResetCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <signature>",
		Short: "Clear a signature's counters and tripped breaker",
		Long: `Clear the escalation ladder and circuit breaker for one error
signature. This is the only way a tripped breaker re-arms; it never
resets on its own.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.container()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.EscalationRepository().Reset(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return fmt.Errorf("signature %s: never seen", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signature %s reset\n", args[0])
			return nil
		},
	}
}
