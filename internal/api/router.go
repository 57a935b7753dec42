package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/aiox-platform/gloser/internal/middleware"
)

const readinessTimeout = 3 * time.Second

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

// HandlerSet holds handler functions injected by the app builder to avoid
// import cycles.
type HandlerSet struct {
	Query  http.HandlerFunc
	Plan   http.HandlerFunc
	Stream http.HandlerFunc

	MemoryStats http.HandlerFunc
	MemoryClear http.HandlerFunc

	// ListExecutions is nil when the audit log is disabled.
	ListExecutions http.HandlerFunc

	// AuthMiddleware is nil when no JWT secret is configured.
	AuthMiddleware func(http.Handler) http.Handler
	// QueryRateLimiter guards the pipeline endpoints; nil without Redis.
	QueryRateLimiter func(http.Handler) http.Handler

	// Readiness maps a dependency name to its check.
	Readiness map[string]Check
}

type RouterConfig struct {
	CORSAllowedOrigins []string
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	ready := readinessHandler(h.Readiness)
	r.Get("/health/ready", ready)
	r.Get("/health", ready)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if h.AuthMiddleware != nil {
			r.Use(h.AuthMiddleware)
		}

		r.Group(func(r chi.Router) {
			if h.QueryRateLimiter != nil {
				r.Use(h.QueryRateLimiter)
			}
			r.Post("/query", h.Query)
			r.Post("/plan", h.Plan)
			r.Get("/query/stream", h.Stream)
		})

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/memory", h.MemoryStats)
			r.Delete("/memory", h.MemoryClear)
			if h.ListExecutions != nil {
				r.Get("/executions", h.ListExecutions)
			}
		})
	})

	return r
}

func readinessHandler(checks map[string]Check) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		health := map[string]string{"status": "healthy"}
		status := http.StatusOK
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				health[name] = "unhealthy: " + err.Error()
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			health[name] = "healthy"
		}
		JSON(w, status, health)
	}
}
