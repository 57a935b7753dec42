package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aiox-platform/gloser/internal/orchestrator"
)

const replHelp = `Type a question and press enter.
  /stats  show what the session remembers
  /clear  forget the conversation
  /exit   quit`

func newReplCmd(build Builder) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Hold a multi-turn conversation in one session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Gloser session %s\n%s\n", sessionID, replHelp)

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					fmt.Fprintln(out)
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())

				switch line {
				case "":
					continue
				case "/exit", "/quit", "exit", "quit":
					return nil
				case "/help":
					fmt.Fprintln(out, replHelp)
					continue
				case "/clear":
					a.Memory.Clear(sessionID)
					fmt.Fprintln(out, "conversation cleared")
					continue
				case "/stats":
					stats, found := a.Memory.Stats(sessionID)
					if !found {
						fmt.Fprintln(out, "nothing remembered yet")
						continue
					}
					fmt.Fprintf(out, "exchanges: %d, messages: %d, summary: %t\ntopics: %s\n",
						stats.TotalExchanges, stats.TotalMessages, stats.HasSummary, strings.Join(stats.KeyTopics, ", "))
					continue
				}

				resp, err := a.Engine.Handle(cmd.Context(), orchestrator.Input{Query: line, SessionID: sessionID}, nil)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
					continue
				}
				if err := writeAnswer(out, resp, false); err != nil {
					return err
				}
			}
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID (default: a new session)")
	return cmd
}
