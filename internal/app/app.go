// Package app assembles Gloser from its configuration: sources, language
// model, pipeline, front doors and the optional Redis, NATS and Postgres
// backends.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/aiox-platform/gloser/internal/api"
	"github.com/aiox-platform/gloser/internal/audit"
	"github.com/aiox-platform/gloser/internal/auth"
	"github.com/aiox-platform/gloser/internal/cache"
	"github.com/aiox-platform/gloser/internal/config"
	"github.com/aiox-platform/gloser/internal/database"
	"github.com/aiox-platform/gloser/internal/llm"
	"github.com/aiox-platform/gloser/internal/memory"
	"github.com/aiox-platform/gloser/internal/middleware"
	inats "github.com/aiox-platform/gloser/internal/nats"
	"github.com/aiox-platform/gloser/internal/orchestrator"
	"github.com/aiox-platform/gloser/internal/planner"
	iredis "github.com/aiox-platform/gloser/internal/redis"
	"github.com/aiox-platform/gloser/internal/server"
	"github.com/aiox-platform/gloser/internal/source"
	"github.com/aiox-platform/gloser/internal/source/filestore"
	"github.com/aiox-platform/gloser/internal/synthesizer"
	"github.com/aiox-platform/gloser/internal/worker"
)

type options struct {
	completer llm.Completer
	backends  bool
}

type Option func(*options)

// WithCompleter replaces the configured language model.
func WithCompleter(c llm.Completer) Option {
	return func(o *options) { o.completer = c }
}

// WithoutBackends ignores the Redis, NATS and Postgres settings. The CLI
// uses it to run the pipeline in-process.
func WithoutBackends() Option {
	return func(o *options) { o.backends = false }
}

// App is a fully wired Gloser instance.
type App struct {
	Config  *config.Config
	Catalog *source.Catalog
	Pool    *worker.Pool
	Files   *filestore.Store
	Memory  *memory.Store
	Planner *planner.Planner
	Engine  *orchestrator.Engine
	Router  http.Handler

	redis        *goredis.Client
	nats         *inats.Client
	db           *pgxpool.Pool
	orchestrator *orchestrator.Orchestrator
	audit        *audit.Consumer
}

// New builds the application. Redis is optional at runtime: a failed
// connection is logged and the cache and rate limiter are left out. NATS and
// Postgres failures are fatal once enabled.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{backends: true}
	for _, opt := range opts {
		opt(&o)
	}

	catalog, err := source.LoadCatalog(cfg.Sources.CatalogPath)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Catalog: catalog}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var lookupCache *cache.Store
	if o.backends && cfg.Redis.Enabled {
		client, err := iredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("app: redis unavailable, running without cache and rate limiting", "error", err)
		} else {
			a.redis = client
			lookupCache = cache.NewStore(client, cfg.Redis.CacheTTL)
		}
	}

	a.Pool, a.Files = BuildSources(cfg.Sources, catalog, lookupCache)

	policy, err := worker.ParseDedupPolicy(cfg.Pipeline.DedupPolicy)
	if err != nil {
		return nil, err
	}

	completer := o.completer
	if completer == nil {
		if completer, err = llm.New(cfg.LLM); err != nil {
			return nil, err
		}
	}

	a.Memory = memory.NewStore(memory.Config{
		IdleTTL:       cfg.Memory.SessionIdleTTL,
		SweepInterval: cfg.Memory.SweepInterval,
	})
	a.Planner = planner.New(completer, catalog)
	a.Engine = orchestrator.NewEngine(
		a.Memory,
		a.Planner,
		worker.NewDispatcher(a.Pool, policy),
		synthesizer.New(completer),
	)

	var publisher *inats.Publisher
	if o.backends && cfg.NATS.Enabled {
		if a.nats, err = inats.NewClient(ctx, cfg.NATS); err != nil {
			return nil, err
		}
		publisher = inats.NewPublisher(a.nats.JetStream())
		a.Engine.WithEvents(publisher)
		a.orchestrator = orchestrator.NewOrchestrator(a.nats, publisher, a.Engine)
	}

	var executions *audit.Handler
	if o.backends && cfg.DB.Enabled {
		if a.db, err = database.Open(ctx, cfg.DB); err != nil {
			return nil, err
		}
		repo := audit.NewRepository(a.db)
		executions = audit.NewHandler(repo)
		if a.nats != nil {
			a.audit = audit.NewConsumer(repo, a.nats)
		} else {
			a.Engine.WithEvents(audit.NewSink(repo))
		}
	}

	a.Router = a.router(executions)
	ok = true
	return a, nil
}

func (a *App) router(executions *audit.Handler) http.Handler {
	cfg := a.Config
	queries := orchestrator.NewHandler(a.Engine, cfg.CORS.AllowedOrigins)
	mem := memory.NewHandler(a.Memory)

	h := api.HandlerSet{
		Query:       queries.Query,
		Plan:        queries.Plan,
		Stream:      queries.Stream,
		MemoryStats: mem.Stats,
		MemoryClear: mem.Clear,
		Readiness: map[string]api.Check{
			"sources": sourcesReady(a.Pool),
		},
	}

	if executions != nil {
		h.ListExecutions = executions.List
	}
	if cfg.Auth.Enabled() {
		h.AuthMiddleware = auth.Middleware(auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer))
	}
	if a.redis != nil {
		limiter := middleware.NewRateLimiter(a.redis, "query", cfg.RateLimit.QueriesPerMinute, 60).
			WithKeyFunc(func(r *http.Request) string {
				if c := auth.GetClaims(r.Context()); c != nil {
					return "sub:" + c.Subject
				}
				return ""
			})
		h.QueryRateLimiter = limiter.Middleware
		h.Readiness["redis"] = iredis.HealthCheck(a.redis)
	}
	if a.nats != nil {
		h.Readiness["nats"] = func(context.Context) error {
			if !a.nats.Healthy() {
				return fmt.Errorf("not connected")
			}
			return nil
		}
	}
	if a.db != nil {
		h.Readiness["postgres"] = func(ctx context.Context) error {
			return database.HealthCheck(ctx, a.db)
		}
	}

	return api.NewRouter(api.RouterConfig{CORSAllowedOrigins: cfg.CORS.AllowedOrigins}, h)
}

// Background starts the long-running workers: the memory janitor, the
// dataset watcher and the NATS consumers. It blocks until ctx is cancelled
// or a worker fails.
func (a *App) Background(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Memory.Run(ctx)
		return nil
	})
	if a.Config.Sources.WatchData {
		g.Go(func() error { return a.Files.Watch(ctx) })
	}
	if a.orchestrator != nil {
		g.Go(func() error { return a.orchestrator.Start(ctx) })
	}
	if a.audit != nil {
		g.Go(func() error { return a.audit.Start(ctx) })
	}
	return g.Wait()
}

// Serve runs the HTTP server and the background workers until ctx is
// cancelled.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Background(ctx) })
	g.Go(func() error {
		defer cancel()
		return server.New(a.Config.Server, a.Router).Start(ctx)
	})
	return g.Wait()
}

// Close releases the backend connections.
func (a *App) Close() {
	if a.nats != nil {
		a.nats.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
