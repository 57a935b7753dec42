package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aiox-platform/gloser/internal/cache"
	"github.com/aiox-platform/gloser/internal/config"
	"github.com/aiox-platform/gloser/internal/source"
	"github.com/aiox-platform/gloser/internal/source/clinical"
	"github.com/aiox-platform/gloser/internal/source/filestore"
	"github.com/aiox-platform/gloser/internal/source/web"
	"github.com/aiox-platform/gloser/internal/worker"
)

// BuildSources registers one worker per enabled catalog entry. When
// lookupCache is non-nil every lookup is cached, and cached results of a
// dataset source are dropped when its file changes.
func BuildSources(cfg config.SourcesConfig, catalog *source.Catalog, lookupCache *cache.Store) (*worker.Pool, *filestore.Store) {
	files := filestore.New(cfg.DataDir)
	pool := worker.NewPool()
	if lookupCache != nil {
		files.OnChange(func(kind source.Kind) {
			n, err := lookupCache.Invalidate(context.Background(), kind)
			if err != nil {
				slog.Warn("app: cached lookups not invalidated", "source", kind, "error", err)
				return
			}
			slog.Info("app: cached lookups invalidated", "source", kind, "count", n)
		})
	}

	for _, e := range catalog.Enabled() {
		timeout := e.TimeoutOr(cfg.Timeout)

		var lookup source.Lookup
		switch e.Kind {
		case source.Market, source.Trade, source.Patent:
			files.Register(e.Kind, e.File)
			lookup = files.Lookup(e.Kind)
		case source.Clinical:
			opts := clinical.Options{
				BaseURL: cfg.ClinicalBaseURL,
				UseAPI:  cfg.ClinicalAPI,
				Timeout: timeout,
			}
			if e.File != "" {
				files.Register(e.Kind, e.File)
				opts.Fallback = files
			}
			lookup = clinical.New(opts)
		case source.Web:
			lookup = web.New(web.Options{
				SearchURL:     cfg.WebSearchURL,
				Timeout:       timeout,
				PharmaContext: cfg.WebPharmaContext,
			})
		default:
			slog.Warn("app: no collaborator for source", "source", e.Kind)
			continue
		}

		if lookupCache != nil {
			lookup = lookupCache.Wrap(e.Kind, lookup)
		}
		pool.Register(worker.NewSourceWorker(e.Kind, lookup, timeout))
		slog.Debug("app: registered source", "source", e.Kind, "timeout", timeout)
	}

	return pool, files
}

// sourcesReady fails when no source is registered.
func sourcesReady(pool *worker.Pool) func(context.Context) error {
	return func(context.Context) error {
		if pool.RegisteredCount() == 0 {
			return fmt.Errorf("no sources registered")
		}
		return nil
	}
}
