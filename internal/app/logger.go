package app

import (
	"io"
	"log/slog"

	"github.com/aiox-platform/gloser/internal/config"
)

// NewLogger builds the process logger from cfg.
func NewLogger(cfg config.LogConfig, out io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}

// SetDefaultLogger installs the configured logger as the slog default.
func SetDefaultLogger(cfg config.LogConfig, out io.Writer) {
	slog.SetDefault(NewLogger(cfg, out))
}
