package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aiox-platform/gloser/internal/orchestrator"
)

func newQueryCmd(build Builder) *cobra.Command {
	var sessionID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run the full pipeline and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.Engine.Handle(cmd.Context(), orchestrator.Input{
				Query:     strings.Join(args, " "),
				SessionID: sessionID,
			}, nil)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			return writeAnswer(cmd.OutOrStdout(), resp, true)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID (default: a new session)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}

func writeAnswer(w io.Writer, resp orchestrator.Response, withSession bool) error {
	var b strings.Builder
	if resp.Result != nil {
		b.WriteString(resp.Result.FinalAnswer)
		b.WriteString("\n")
	}
	if len(resp.Sources) > 0 {
		b.WriteString("\nSources:\n")
		for _, s := range resp.Sources {
			mark := ""
			if s.Failed {
				mark = " [failed]"
			}
			fmt.Fprintf(&b, "  - %s (%d records)%s: %s\n", s.Source.Label(), s.Records, mark, s.Summary)
		}
	}
	if resp.Result != nil && len(resp.Result.Visuals) > 0 {
		fmt.Fprintf(&b, "Visuals: %d\n", len(resp.Result.Visuals))
	}
	if withSession {
		fmt.Fprintf(&b, "Session: %s\n", resp.SessionID)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
