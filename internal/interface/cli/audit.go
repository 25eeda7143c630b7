package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newAuditCmd(flags *rootFlags) *cobra.Command {
	var (
		jsonOutput bool
		runID      string
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print the autonomy decision trail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.container()
			if err != nil {
				return err
			}
			defer c.Close()

			records, err := c.AuditLog().Read()
			if err != nil {
				return fmt.Errorf("read audit log: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				for _, rec := range records {
					if runID != "" && rec.RunID != runID {
						continue
					}
					if err := enc.Encode(rec); err != nil {
						return err
					}
				}
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "TS\tRUN\tCATEGORY\tCONF\tDESTRUCTIVE\tVERDICT\tREASON")
			for _, rec := range records {
				if runID != "" && rec.RunID != runID {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%v\t%s\t%s\n",
					rec.TS.Format(time.RFC3339), rec.RunID, rec.Category,
					rec.Confidence, rec.Destructive, rec.Verdict, rec.Reason)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output records as JSON lines")
	cmd.Flags().StringVar(&runID, "run", "", "Only records for this run id")
	return cmd
}
