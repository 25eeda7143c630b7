// Package cli is the cobra command surface over the pipeline
// orchestrator. Every command builds the DI container on demand so the
// home directory and overrides from persistent flags are honored.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/infrastructure/di"
)

// rootFlags are the persistent knobs shared by every subcommand
type rootFlags struct {
	home                string
	workspace           string
	autonomous          bool
	confidenceThreshold float64
	auditLog            string
	mockAgent           bool
}

// NewRoot builds the vibecode command tree
func NewRoot() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "vibecode",
		Short:         "Staged AI coding pipeline with an autonomy gate",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          func(c *cobra.Command, _ []string) error { return c.Help() },
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.home, "home", "", "vibecode home directory (default $VIBE_HOME or .vibecode)")
	pf.StringVar(&flags.workspace, "workspace", ".", "project directory changes are applied to")
	pf.BoolVar(&flags.autonomous, "autonomous", false, "run without pausing for manual approval")
	pf.Float64Var(&flags.confidenceThreshold, "confidence-threshold", 0, "auto-approve confidence threshold override")
	pf.StringVar(&flags.auditLog, "audit-log", "", "audit log path override")
	pf.BoolVar(&flags.mockAgent, "mock-agent", false, "use the built-in mock generation backend")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newStatusCmd(flags))
	cmd.AddCommand(newRunsCmd(flags))
	cmd.AddCommand(newApproveCmd(flags))
	cmd.AddCommand(newBreakerCmd(flags))
	cmd.AddCommand(newAuditCmd(flags))
	cmd.AddCommand(newDoctorCmd(flags))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func (f *rootFlags) container() (*di.Container, error) {
	opts := di.Options{
		Home:                f.home,
		Workspace:           f.workspace,
		ConfidenceThreshold: f.confidenceThreshold,
		Autonomous:          f.autonomous,
		AuditLogPath:        f.auditLog,
	}
	if f.mockAgent {
		opts.Generation = mockGeneration()
	}
	return di.NewContainer(opts)
}
