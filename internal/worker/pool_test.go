package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/gloser/internal/source"
)

func staticLookup(kind source.Kind, rows ...source.Fields) source.Lookup {
	return source.LookupFunc(func(context.Context, string) (source.Result, error) {
		return source.NewResult(kind, rows, "ok"), nil
	})
}

func TestPool_RegisterAndCount(t *testing.T) {
	pool := NewPool()
	assert.Equal(t, 0, pool.RegisteredCount())

	ok := pool.Register(NewSourceWorker(source.Patent, staticLookup(source.Patent), time.Second))
	require.True(t, ok)
	assert.Equal(t, 1, pool.RegisteredCount())
	assert.True(t, pool.Has(source.Patent))
	assert.False(t, pool.Has(source.Web))
}

func TestPool_RegisterDuplicate(t *testing.T) {
	pool := NewPool()

	require.True(t, pool.Register(NewSourceWorker(source.Patent, staticLookup(source.Patent), time.Second)))
	assert.False(t, pool.Register(NewSourceWorker(source.Patent, staticLookup(source.Patent), time.Second)))
	assert.Equal(t, 1, pool.RegisteredCount())
}

func TestPool_Acquire_LeastLoaded(t *testing.T) {
	pool := NewPool()

	mk := func(id string, active int32) *SourceWorker {
		w := NewSourceWorker(source.Clinical, staticLookup(source.Clinical), time.Second)
		w.WorkerID = id
		w.MaxConcurrent = 4
		w.ActiveLookups = active
		return w
	}
	pool.Register(mk("clinical-1", 3))
	pool.Register(mk("clinical-2", 1))
	pool.Register(mk("clinical-3", 2))
	pool.Register(NewSourceWorker(source.Web, staticLookup(source.Web), time.Second))

	selected := pool.Acquire(source.Clinical)
	require.NotNil(t, selected)
	assert.Equal(t, "clinical-2", selected.WorkerID, "should select least loaded worker")
	assert.Equal(t, int32(2), selected.ActiveLookups, "slot is reserved on acquire")
}

func TestPool_Acquire_NoneAvailable(t *testing.T) {
	pool := NewPool()
	assert.Nil(t, pool.Acquire(source.Market), "empty pool should return nil")

	w := NewSourceWorker(source.Market, staticLookup(source.Market), time.Second)
	w.MaxConcurrent = 1
	w.ActiveLookups = 1
	pool.Register(w)
	assert.Nil(t, pool.Acquire(source.Market), "fully loaded should return nil")
}

func TestPool_AcquireNeverExceedsCapacity(t *testing.T) {
	pool := NewPool()
	w := NewSourceWorker(source.Trade, staticLookup(source.Trade), time.Second)
	w.MaxConcurrent = 2
	pool.Register(w)

	var wg sync.WaitGroup
	var acquired atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if pool.Acquire(source.Trade) != nil {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), acquired.Load())
	assert.Equal(t, int32(2), w.ActiveLookups)
}

func TestSourceWorker_ReserveRelease(t *testing.T) {
	w := NewSourceWorker(source.Patent, staticLookup(source.Patent), time.Second)
	w.MaxConcurrent = 2
	assert.Equal(t, int32(0), w.ActiveLookups)

	assert.True(t, w.reserve())
	assert.True(t, w.reserve())
	assert.False(t, w.reserve(), "no slot beyond MaxConcurrent")
	assert.Equal(t, int32(2), w.ActiveLookups)

	w.release()
	w.release()
	assert.Equal(t, int32(0), w.ActiveLookups)

	// Should not go negative
	w.release()
	assert.Equal(t, int32(0), w.ActiveLookups)
}

func TestSourceWorker_LoadFraction(t *testing.T) {
	w := NewSourceWorker(source.Patent, staticLookup(source.Patent), time.Second)
	w.MaxConcurrent = 4
	w.ActiveLookups = 2
	assert.InDelta(t, 0.5, w.LoadFraction(), 0.001)

	// Zero max concurrent → fully loaded
	w.MaxConcurrent = 0
	assert.InDelta(t, 1.0, w.LoadFraction(), 0.001)
}

func TestSourceWorker_Run(t *testing.T) {
	t.Run("timeout degrades even if the lookup ignores its context", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		slow := source.LookupFunc(func(context.Context, string) (source.Result, error) {
			<-release
			return source.Result{}, nil
		})
		w := NewSourceWorker(source.Web, slow, 20*time.Millisecond)
		require.True(t, w.reserve())

		res := w.Run(context.Background(), "q")
		assert.True(t, res.Failed())
		assert.Equal(t, source.Web, res.Source)
		assert.Contains(t, res.Summary, "web lookup timed out")
		assert.Equal(t, int32(0), w.ActiveLookups)
	})

	t.Run("panic is contained", func(t *testing.T) {
		boom := source.LookupFunc(func(context.Context, string) (source.Result, error) {
			panic("nil map")
		})
		w := NewSourceWorker(source.Patent, boom, time.Second)
		require.True(t, w.reserve())
		res := w.Run(context.Background(), "q")
		assert.True(t, res.Failed())
		assert.Equal(t, int32(0), w.ActiveLookups)
		assert.Contains(t, res.Summary, "panicked")
	})
}
