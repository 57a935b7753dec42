package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aiox-platform/gloser/internal/orchestrator"
)

func newPlanCmd(build Builder) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plan <text>",
		Short: "Ask the planner which sources it would consult",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			resp := a.Engine.Plan(cmd.Context(), orchestrator.Input{Query: strings.Join(args, " ")})
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), resp.Plan)
			}

			out := cmd.OutOrStdout()
			if len(resp.Plan) == 0 {
				_, err := fmt.Fprintln(out, "no sources planned")
				return err
			}
			for i, step := range resp.Plan {
				if _, err := fmt.Fprintf(out, "%d. %s: %s\n", i+1, step.Source.Label(), step.Query); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}
