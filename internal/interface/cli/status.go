package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/run"
)

// StatusOutput is the machine-readable shape of one run's state
type StatusOutput struct {
	Ts       string         `json:"ts"`
	RunID    string         `json:"run_id"`
	Category string         `json:"category"`
	Status   string         `json:"status"`
	Pipeline []string       `json:"pipeline"`
	Cursor   int            `json:"cursor"`
	Stage    string         `json:"stage,omitempty"`
	History  []RecordOutput `json:"history,omitempty"`
}

// RecordOutput is one stage attempt in the status JSON
type RecordOutput struct {
	Stage         string `json:"stage"`
	Attempt       int    `json:"attempt"`
	Outcome       string `json:"outcome"`
	ErrorCategory string `json:"error_category,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the state of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.container()
			if err != nil {
				return err
			}
			defer c.Close()

			r, err := c.RunRepository().Find(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("load run: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				b, err := json.Marshal(statusOutput(r))
				if err != nil {
					return fmt.Errorf("marshal json: %w", err)
				}
				fmt.Fprintln(out, string(b))
				return nil
			}

			fmt.Fprintf(out, "Run      : %s\n", r.ID)
			fmt.Fprintf(out, "Request  : %s\n", r.Request)
			fmt.Fprintf(out, "Category : %s\n", r.Category)
			fmt.Fprintf(out, "Status   : %s\n", r.Status)
			fmt.Fprintf(out, "Pipeline : %s\n", pipelineString(r))
			fmt.Fprintf(out, "Updated  : %s\n", r.UpdatedAt.Format(time.RFC3339))
			if len(r.History) > 0 {
				fmt.Fprintln(out, "History  :")
				for _, rec := range r.History {
					line := fmt.Sprintf("  %-14s attempt %d  %s", rec.Stage, rec.Attempt, rec.Outcome)
					if rec.ErrorCategory != "" {
						line += "  sig=" + rec.ErrorCategory
					}
					fmt.Fprintln(out, line)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status in JSON format")
	return cmd
}

func statusOutput(r *run.Run) StatusOutput {
	o := StatusOutput{
		Ts:       time.Now().UTC().Format(time.RFC3339Nano),
		RunID:    r.ID,
		Category: r.Category.String(),
		Status:   r.Status.String(),
		Cursor:   r.Cursor,
	}
	for _, s := range r.Pipeline {
		o.Pipeline = append(o.Pipeline, s.String())
	}
	if current, ok := r.CurrentStage(); ok {
		o.Stage = current.String()
	}
	for _, rec := range r.History {
		o.History = append(o.History, RecordOutput{
			Stage:         rec.Stage.String(),
			Attempt:       rec.Attempt,
			Outcome:       rec.Outcome.String(),
			ErrorCategory: rec.ErrorCategory,
			DurationMs:    rec.Duration.Milliseconds(),
		})
	}
	return o
}

// pipelineString renders the pipeline with the cursor position marked
func pipelineString(r *run.Run) string {
	parts := make([]string, 0, len(r.Pipeline))
	for i, s := range r.Pipeline {
		name := s.String()
		if i == r.Cursor {
			name = "[" + name + "]"
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, " -> ")
}
