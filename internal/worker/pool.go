package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aiox-platform/gloser/internal/metrics"
	"github.com/aiox-platform/gloser/internal/source"
)

// DefaultMaxConcurrent caps in-flight lookups per worker when none is given.
const DefaultMaxConcurrent = 16

// SourceWorker runs lookups against one source collaborator.
type SourceWorker struct {
	WorkerID      string
	Kind          source.Kind
	Timeout       time.Duration
	MaxConcurrent int32

	lookup source.Lookup

	mu            sync.Mutex
	ActiveLookups int32
}

// NewSourceWorker wraps l with source.Guard so nothing escapes a lookup.
func NewSourceWorker(kind source.Kind, l source.Lookup, timeout time.Duration) *SourceWorker {
	return &SourceWorker{
		WorkerID:      string(kind),
		Kind:          kind,
		Timeout:       timeout,
		MaxConcurrent: DefaultMaxConcurrent,
		lookup:        source.Guard(kind, l),
	}
}

// reserve claims a lookup slot if the worker has capacity.
func (w *SourceWorker) reserve() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ActiveLookups >= w.MaxConcurrent {
		return false
	}
	w.ActiveLookups++
	metrics.SourceLookupsActive.WithLabelValues(string(w.Kind)).Inc()
	return true
}

// release returns a slot claimed by reserve.
func (w *SourceWorker) release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ActiveLookups > 0 {
		w.ActiveLookups--
		metrics.SourceLookupsActive.WithLabelValues(string(w.Kind)).Dec()
	}
}

// LoadFraction returns ActiveLookups / MaxConcurrent.
func (w *SourceWorker) LoadFraction() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.MaxConcurrent <= 0 {
		return 1.0
	}
	return float64(w.ActiveLookups) / float64(w.MaxConcurrent)
}

// Run performs one lookup in a slot reserved by Pool.Acquire and releases the
// slot when done. The lookup is bounded by the worker timeout. A lookup that
// outlives its deadline is reported as a degraded result; the goroutine
// running it is left to observe the cancelled context.
func (w *SourceWorker) Run(ctx context.Context, q string) source.Result {
	defer w.release()

	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	done := make(chan source.Result, 1)
	go func() {
		res, _ := w.lookup.Lookup(ctx, q)
		done <- res
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return source.Degraded(w.Kind, fmt.Errorf("%s lookup timed out after %s", w.Kind, w.Timeout))
		}
		return source.Degraded(w.Kind, fmt.Errorf("%s lookup cancelled: %w", w.Kind, ctx.Err()))
	}
}

// Pool manages the registered source workers.
type Pool struct {
	mu      sync.RWMutex
	workers map[string]*SourceWorker
}

// NewPool creates a new worker pool.
func NewPool() *Pool {
	return &Pool{
		workers: make(map[string]*SourceWorker),
	}
}

// Register adds a worker to the pool. Returns false if a worker with the same ID is already registered.
func (p *Pool) Register(w *SourceWorker) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.workers[w.WorkerID]; exists {
		return false
	}
	p.workers[w.WorkerID] = w
	metrics.SourcesRegistered.Set(float64(len(p.workers)))
	return true
}

// Acquire picks the least-loaded worker for kind and reserves a lookup slot on
// it. Selection and reservation happen under the pool lock, so concurrent
// dispatches never push a worker past MaxConcurrent. Returns nil if no worker
// has capacity. The slot is released by Run.
func (p *Pool) Acquire(kind source.Kind) *SourceWorker {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *SourceWorker
	bestLoad := float64(2.0)

	for _, w := range p.workers {
		if w.Kind != kind {
			continue
		}
		load := w.LoadFraction()
		if load >= 1.0 {
			continue
		}
		// Ties go to the lower ID so selection does not depend on map order.
		if load < bestLoad || (load == bestLoad && w.WorkerID < best.WorkerID) {
			bestLoad = load
			best = w
		}
	}
	if best == nil || !best.reserve() {
		return nil
	}
	return best
}

// Has reports whether any worker serves kind.
func (p *Pool) Has(kind source.Kind) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, w := range p.workers {
		if w.Kind == kind {
			return true
		}
	}
	return false
}

// RegisteredCount returns the number of registered workers.
func (p *Pool) RegisteredCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.workers)
}

