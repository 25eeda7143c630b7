package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	agentgateway "github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/adapter/gateway/agent"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/approval"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/orchestrator"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/port/output"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/infrastructure/di"
)

func mockGeneration() output.GenerationGateway {
	return agentgateway.NewMockGateway()
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	var (
		existingProject bool
		override        bool
		verifyCmd       string
		waitApproval    bool
	)

	cmd := &cobra.Command{
		Use:   "run <request>",
		Short: "Classify a request and execute its stage pipeline",
		Long: `Classify a natural-language request, build its stage pipeline, and
execute it stage by stage. Destructive stages pass the autonomy gate;
a rejected stage pauses the run until it is approved or cancelled.

Interrupting with SIGINT cancels the run at the next stage boundary;
the stage in flight is never cut off mid-write.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.container()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts := orchestrator.RunOptions{
				Workspace:         flags.workspace,
				IsExistingProject: existingProject,
				Override:          override,
			}
			if verifyCmd != "" {
				opts.VerifyCommand = strings.Fields(verifyCmd)
			}

			result, err := c.Orchestrator().Start(ctx, args[0], opts)
			if err != nil {
				return err
			}

			if result.Outcome == orchestrator.OutcomePaused && waitApproval {
				result, err = waitAndResume(ctx, c, result, opts)
				if err != nil {
					return err
				}
			}

			printResult(cmd, result)
			if result.Outcome == orchestrator.OutcomeAborted {
				return fmt.Errorf("run %s aborted: %s", result.Run.ID, result.Reason)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&existingProject, "existing-project", false, "analyze the workspace before acting")
	cmd.Flags().BoolVar(&override, "override", false, "approve this run's destructive stages up front")
	cmd.Flags().StringVar(&verifyCmd, "verify-cmd", "", "command the verification stage runs (e.g. \"go test ./...\")")
	cmd.Flags().BoolVar(&waitApproval, "wait-approval", false, "block on a paused run until an approval marker appears")
	return cmd
}

// waitAndResume blocks a paused run on its approval marker, then either
// resumes it with the operator's approval or cancels it.
func waitAndResume(ctx context.Context, c *di.Container, result *orchestrator.RunResult, opts orchestrator.RunOptions) (*orchestrator.RunResult, error) {
	w := approval.NewWatcher(c.Paths().Approvals, c.Logger())
	decision, err := w.Wait(ctx, result.Run.ID)
	if err != nil {
		return nil, fmt.Errorf("wait for approval: %w", err)
	}

	if decision == approval.DecisionRejected {
		return c.Orchestrator().Cancel(ctx, result.Run.ID)
	}
	return c.Orchestrator().Approve(ctx, result.Run.ID, opts)
}

func printResult(cmd *cobra.Command, result *orchestrator.RunResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run      : %s\n", result.Run.ID)
	fmt.Fprintf(out, "Category : %s\n", result.Run.Category)
	fmt.Fprintf(out, "Pipeline : %s\n", pipelineString(result.Run))
	fmt.Fprintf(out, "Status   : %s\n", result.Run.Status)
	if result.Reason != "" {
		fmt.Fprintf(out, "Reason   : %s\n", result.Reason)
	}
	if result.Outcome == orchestrator.OutcomePaused {
		fmt.Fprintf(out, "\nApprove with: vibecode approve %s\n", result.Run.ID)
	}
}
