package usecase

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarvis/internal/domain"
)

func countingFactory(built *atomic.Int64) EngineFactory {
	return func(key EngineKey) (domain.Engine, error) {
		built.Add(1)
		return NewToolLoopEngine(EngineDeps{LLM: &mockLLM{}, Model: key.Model}), nil
	}
}

func TestEngineCache_HitAndMiss(t *testing.T) {
	var built atomic.Int64
	c := NewEngineCache(countingFactory(&built), 2)

	a1, err := c.Engine(EngineKey{Model: "a"})
	require.NoError(t, err)
	a2, err := c.Engine(EngineKey{Model: "a"})
	require.NoError(t, err)
	assert.Same(t, a1, a2)
	assert.Equal(t, int64(1), built.Load())

	st := c.Stats()
	assert.Equal(t, EngineCacheStats{Hits: 1, Misses: 1, Size: 1, Capacity: 2}, st)
}

func TestEngineCache_EvictsLeastRecentlyUsed(t *testing.T) {
	var built atomic.Int64
	c := NewEngineCache(countingFactory(&built), 2)

	_, _ = c.Engine(EngineKey{Model: "a"})
	_, _ = c.Engine(EngineKey{Model: "b"})
	_, _ = c.Engine(EngineKey{Model: "a"}) // a is now most recent
	_, _ = c.Engine(EngineKey{Model: "c"}) // evicts b
	assert.Equal(t, int64(3), built.Load())

	_, _ = c.Engine(EngineKey{Model: "a"})
	assert.Equal(t, int64(3), built.Load(), "a should still be cached")

	_, _ = c.Engine(EngineKey{Model: "b"})
	assert.Equal(t, int64(4), built.Load(), "b should have been evicted")
	assert.Equal(t, 2, c.Stats().Size)
}

func TestEngineCache_FactoryError(t *testing.T) {
	c := NewEngineCache(func(EngineKey) (domain.Engine, error) {
		return nil, errors.New("no such model")
	}, 0)

	_, err := c.Engine(EngineKey{Model: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"x"`)
	assert.Equal(t, 0, c.Stats().Size)
	assert.Equal(t, DefaultEngineCacheSize, c.Stats().Capacity)
}

func TestEngineCache_ConcurrentMissesBuildOnce(t *testing.T) {
	var built atomic.Int64
	c := NewEngineCache(countingFactory(&built), 4)

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			_, err := c.Engine(EngineKey{Model: "shared"})
			assert.NoError(t, err)
		})
	}
	wg.Wait()
	assert.Equal(t, int64(1), built.Load())
}

func TestEngineCache_Purge(t *testing.T) {
	var built atomic.Int64
	c := NewEngineCache(countingFactory(&built), 4)
	_, _ = c.Engine(EngineKey{Model: "a"})
	c.Purge()
	assert.Equal(t, EngineCacheStats{Capacity: 4}, c.Stats())

	_, _ = c.Engine(EngineKey{Model: "a"})
	assert.Equal(t, int64(2), built.Load())
}
