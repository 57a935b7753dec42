package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aiox-platform/gloser/internal/app"
	"github.com/aiox-platform/gloser/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	app.SetDefaultLogger(cfg.Log, os.Stdout)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("building application", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	slog.Info("gloser ready",
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"sources", a.Pool.RegisteredCount(),
		"redis", cfg.Redis.Enabled,
		"nats", cfg.NATS.Enabled,
		"postgres", cfg.DB.Enabled,
	)

	if err := a.Serve(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
