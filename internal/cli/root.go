// Package cli implements gloserctl, a terminal front door to the pipeline.
package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aiox-platform/gloser/internal/app"
	"github.com/aiox-platform/gloser/internal/config"
)

// Builder assembles the application for commands that need the pipeline.
type Builder func(ctx context.Context) (*app.App, error)

func Execute() error {
	return NewRootCmd(defaultBuilder).Execute()
}

// defaultBuilder runs the pipeline in-process; Redis, NATS and Postgres
// settings are ignored.
func defaultBuilder(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	app.SetDefaultLogger(cfg.Log, os.Stderr)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, app.WithoutBackends())
}

func NewRootCmd(build Builder) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gloserctl",
		Short:         "Gloser pharma intelligence from the terminal",
		Long:          "gloserctl classifies, plans and answers pharmaceutical questions against the market, trade, patent, clinical and web sources configured for Gloser.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newGateCmd(),
		newPlanCmd(build),
		newQueryCmd(build),
		newReplCmd(build),
	)
	return rootCmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
