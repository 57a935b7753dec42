package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aiox-platform/gloser/internal/intent"
)

func newGateCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "gate <text>",
		Short: "Show how the intent gate classifies a query (no model calls)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := intent.Classify(strings.Join(args, " "))
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), d)
			}

			out := cmd.OutOrStdout()
			if !d.ShortCircuit {
				_, err := fmt.Fprintf(out, "%s: runs the pipeline\n", d.Category)
				return err
			}
			_, err := fmt.Fprintf(out, "%s: short-circuit\n%s\n", d.Category, d.Canned)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}
