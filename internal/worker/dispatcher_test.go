package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/gloser/internal/query"
	"github.com/aiox-platform/gloser/internal/source"
)

type recorder struct {
	mu      sync.Mutex
	queries map[source.Kind][]string
}

func (r *recorder) lookup(kind source.Kind, rows ...source.Fields) source.Lookup {
	return source.LookupFunc(func(_ context.Context, q string) (source.Result, error) {
		r.mu.Lock()
		r.queries[kind] = append(r.queries[kind], q)
		r.mu.Unlock()
		return source.NewResult(kind, rows, string(kind)+" ok"), nil
	})
}

func newRecordingPool(kinds ...source.Kind) (*Pool, *recorder) {
	rec := &recorder{queries: make(map[source.Kind][]string)}
	pool := NewPool()
	for _, k := range kinds {
		pool.Register(NewSourceWorker(k, rec.lookup(k, source.Fields{"k": "v"}), time.Second))
	}
	return pool, rec
}

func byKind(results []source.Result) map[source.Kind]source.Result {
	out := make(map[source.Kind]source.Result, len(results))
	for _, r := range results {
		out[r.Source] = r
	}
	return out
}

func TestResolve(t *testing.T) {
	steps := []query.Step{
		{Source: source.Clinical, Query: "diabetes"},
		{Source: source.Web, Query: ""},
		{Source: source.Clinical, Query: "type 2 diabetes India"},
	}

	t.Run("first wins", func(t *testing.T) {
		assert.Equal(t, []query.Step{
			{Source: source.Clinical, Query: "diabetes"},
			{Source: source.Web, Query: "user query"},
		}, Resolve(steps, "user query", DedupFirst))
	})

	t.Run("last wins", func(t *testing.T) {
		assert.Equal(t, []query.Step{
			{Source: source.Clinical, Query: "type 2 diabetes India"},
			{Source: source.Web, Query: "user query"},
		}, Resolve(steps, "user query", DedupLast))
	})
}

func TestParseDedupPolicy(t *testing.T) {
	p, err := ParseDedupPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DedupFirst, p)

	p, err = ParseDedupPolicy(" LAST ")
	require.NoError(t, err)
	assert.Equal(t, DedupLast, p)

	_, err = ParseDedupPolicy("random")
	assert.Error(t, err)
}

func TestDispatcher_EmptyPlan(t *testing.T) {
	pool, rec := newRecordingPool(source.Kinds...)
	d := NewDispatcher(pool, DedupFirst)

	results := d.Dispatch(context.Background(), nil, "anything")
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Empty(t, rec.queries)
}

func TestDispatcher_OneResultPerDistinctSource(t *testing.T) {
	pool, rec := newRecordingPool(source.Kinds...)
	d := NewDispatcher(pool, DedupFirst)

	steps := []query.Step{
		{Source: source.Patent, Query: "metformin"},
		{Source: source.Market, Query: "diabetes"},
		{Source: source.Patent, Query: "metformin extended release"},
	}
	results := d.Dispatch(context.Background(), steps, "metformin outlook")

	require.Len(t, results, 2)
	got := byKind(results)
	assert.Contains(t, got, source.Patent)
	assert.Contains(t, got, source.Market)
	assert.Equal(t, []string{"metformin"}, rec.queries[source.Patent])
	assert.Equal(t, []string{"diabetes"}, rec.queries[source.Market])
	assert.Empty(t, rec.queries[source.Web])
}

func TestDispatcher_RunsConcurrently(t *testing.T) {
	var active, peak int32
	barrier := make(chan struct{})
	pool := NewPool()
	for _, k := range []source.Kind{source.Market, source.Trade, source.Patent} {
		k := k
		pool.Register(NewSourceWorker(k, source.LookupFunc(func(context.Context, string) (source.Result, error) {
			n := atomic.AddInt32(&active, 1)
			if n == 3 {
				close(barrier)
			}
			select {
			case <-barrier:
			case <-time.After(time.Second):
			}
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			return source.NewResult(k, nil, "ok"), nil
		}), 2*time.Second))
	}

	steps := []query.Step{{Source: source.Market}, {Source: source.Trade}, {Source: source.Patent}}
	results := NewDispatcher(pool, DedupFirst).Dispatch(context.Background(), steps, "q")

	assert.Len(t, results, 3)
	assert.Equal(t, int32(3), atomic.LoadInt32(&peak))
}

func TestDispatcher_PartialFailure(t *testing.T) {
	pool := NewPool()
	pool.Register(NewSourceWorker(source.Clinical, source.LookupFunc(func(context.Context, string) (source.Result, error) {
		return source.Result{}, errors.New("registry unavailable")
	}), time.Second))
	pool.Register(NewSourceWorker(source.Web, source.LookupFunc(func(ctx context.Context, _ string) (source.Result, error) {
		<-ctx.Done()
		return source.Result{}, ctx.Err()
	}), 20*time.Millisecond))
	pool.Register(NewSourceWorker(source.Patent, staticLookup(source.Patent, source.Fields{"molecule": "Metformin"}), time.Second))

	steps := []query.Step{
		{Source: source.Clinical, Query: "diabetes"},
		{Source: source.Web, Query: "news"},
		{Source: source.Patent, Query: "metformin"},
		{Source: source.Trade, Query: "paracetamol"},
	}
	got := byKind(NewDispatcher(pool, DedupFirst).Dispatch(context.Background(), steps, "q"))

	require.Len(t, got, 4)
	assert.True(t, got[source.Clinical].Failed())
	assert.Equal(t, "Error: registry unavailable", got[source.Clinical].Summary)
	assert.True(t, got[source.Web].Failed())
	assert.Contains(t, got[source.Web].Summary, "timed out")
	assert.True(t, got[source.Trade].Failed())
	assert.Contains(t, got[source.Trade].Summary, "no exim worker available")

	assert.False(t, got[source.Patent].Failed())
	assert.Len(t, got[source.Patent].Records, 1)
}
