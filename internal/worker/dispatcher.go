package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aiox-platform/gloser/internal/metrics"
	"github.com/aiox-platform/gloser/internal/query"
	"github.com/aiox-platform/gloser/internal/source"
)

// DedupPolicy picks the query a source receives when the plan names it more
// than once.
type DedupPolicy string

const (
	DedupFirst DedupPolicy = "first"
	DedupLast  DedupPolicy = "last"
)

// ParseDedupPolicy accepts "first" or "last"; empty means first.
func ParseDedupPolicy(s string) (DedupPolicy, error) {
	switch DedupPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DedupFirst:
		return DedupFirst, nil
	case DedupLast:
		return DedupLast, nil
	}
	return "", fmt.Errorf("unknown dedup policy %q", s)
}

// Dispatcher fans plan steps out to the pool and joins the results.
type Dispatcher struct {
	pool   *Pool
	policy DedupPolicy
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(pool *Pool, policy DedupPolicy) *Dispatcher {
	if policy == "" {
		policy = DedupFirst
	}
	return &Dispatcher{pool: pool, policy: policy}
}

// Resolve collapses steps to one per source. Sources keep the order of their
// first appearance. A step without a query falls back to the user query.
func Resolve(steps []query.Step, fallback string, policy DedupPolicy) []query.Step {
	index := make(map[source.Kind]int, len(steps))
	out := make([]query.Step, 0, len(steps))
	for _, s := range steps {
		q := s.Query
		if strings.TrimSpace(q) == "" {
			q = fallback
		}
		i, seen := index[s.Source]
		switch {
		case !seen:
			index[s.Source] = len(out)
			out = append(out, query.Step{Source: s.Source, Query: q})
		case policy == DedupLast:
			out[i].Query = q
		}
	}
	return out
}

// Dispatch runs one lookup per distinct source in steps and blocks until all
// of them finish. A failing source yields a degraded result for that source
// only; siblings are never cancelled. An empty plan returns an empty slice
// without touching any source.
//
// The returned slice has one entry per dispatched source. Callers must not
// rely on its order.
func (d *Dispatcher) Dispatch(ctx context.Context, steps []query.Step, fallback string) []source.Result {
	resolved := Resolve(steps, fallback, d.policy)
	if len(resolved) == 0 {
		return []source.Result{}
	}

	results := make([]source.Result, len(resolved))
	var g errgroup.Group
	for i, step := range resolved {
		g.Go(func() error {
			results[i] = d.run(ctx, step)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (d *Dispatcher) run(ctx context.Context, step query.Step) source.Result {
	start := time.Now()
	kind := string(step.Source)

	w := d.pool.Acquire(step.Source)
	if w == nil {
		err := fmt.Errorf("no %s worker available", step.Source)
		if d.pool.Has(step.Source) {
			err = fmt.Errorf("%s workers are at capacity", step.Source)
		}
		slog.Warn("dispatcher: lookup not dispatched", "source", kind, "error", err)
		metrics.SourceLookupsTotal.WithLabelValues(kind, "error").Inc()
		return source.Degraded(step.Source, err)
	}

	res := w.Run(ctx, step.Query)

	status := "ok"
	switch {
	case res.Failed():
		status = "error"
		slog.Warn("dispatcher: lookup failed", "source", kind, "query", step.Query, "summary", res.Summary)
	case len(res.Records) == 0:
		status = "empty"
	}
	metrics.SourceLookupsTotal.WithLabelValues(kind, status).Inc()
	metrics.SourceLookupDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	slog.Debug("dispatcher: lookup finished",
		"source", kind,
		"query", step.Query,
		"records", len(res.Records),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res
}
