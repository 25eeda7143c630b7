package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/approval"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/orchestrator"
)

func newApproveCmd(flags *rootFlags) *cobra.Command {
	var (
		reject     bool
		markerOnly bool
		verifyCmd  string
	)

	cmd := &cobra.Command{
		Use:   "approve <run-id>",
		Short: "Confirm or deny a run paused at the autonomy gate",
		Long: `Resolve a run waiting for manual confirmation. By default approval
resumes the run in this process. With --marker-only it only drops a
marker file for a process blocked on --wait-approval.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]
			c, err := flags.container()
			if err != nil {
				return err
			}
			defer c.Close()

			if markerOnly {
				dir := c.Paths().Approvals
				if reject {
					if err := approval.Deny(dir, runID); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "rejection marker written for %s\n", runID)
					return nil
				}
				if err := approval.Grant(dir, runID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "approval marker written for %s\n", runID)
				return nil
			}

			if reject {
				result, err := c.Orchestrator().Cancel(cmd.Context(), runID)
				if err != nil {
					return err
				}
				printResult(cmd, result)
				return nil
			}

			opts := orchestrator.RunOptions{Workspace: flags.workspace}
			if verifyCmd != "" {
				opts.VerifyCommand = strings.Fields(verifyCmd)
			}
			result, err := c.Orchestrator().Approve(cmd.Context(), runID, opts)
			if err != nil {
				return err
			}
			printResult(cmd, result)
			if result.Outcome == orchestrator.OutcomeAborted {
				return fmt.Errorf("run %s aborted: %s", result.Run.ID, result.Reason)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reject, "reject", false, "deny instead of approving; the run is cancelled")
	cmd.Flags().BoolVar(&markerOnly, "marker-only", false, "write the approval marker without resuming here")
	cmd.Flags().StringVar(&verifyCmd, "verify-cmd", "", "command the verification stage runs on resume")
	return cmd
}
