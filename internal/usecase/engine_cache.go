package usecase

import (
	"container/list"
	"fmt"
	"sync"

	"jarvis/internal/domain"
)

// DefaultEngineCacheSize is the default number of engines kept by EngineCache.
const DefaultEngineCacheSize = 16

// EngineKey identifies an engine configuration.
type EngineKey struct {
	Model string
}

// EngineFactory builds the engine for a key.
type EngineFactory func(key EngineKey) (domain.Engine, error)

// EngineCacheStats reports cache usage.
type EngineCacheStats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Size     int   `json:"size"`
	Capacity int   `json:"capacity"`
}

type cacheEntry struct {
	key    EngineKey
	engine domain.Engine
}

// EngineCache memoizes built engines with least-recently-used eviction.
type EngineCache struct {
	mu       sync.Mutex
	factory  EngineFactory
	capacity int
	order    *list.List // front = most recently used
	items    map[EngineKey]*list.Element
	hits     int64
	misses   int64
}

// NewEngineCache creates a cache holding at most capacity engines.
func NewEngineCache(factory EngineFactory, capacity int) *EngineCache {
	if capacity <= 0 {
		capacity = DefaultEngineCacheSize
	}
	return &EngineCache{
		factory:  factory,
		capacity: capacity,
		order:    list.New(),
		items:    make(map[EngineKey]*list.Element),
	}
}

// Engine returns the cached engine for key, building it on a miss.
// The factory runs under the cache lock, so concurrent misses for one key
// build a single engine.
func (c *EngineCache) Engine(key EngineKey) (domain.Engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.hits++
		c.order.MoveToFront(el)
		return el.Value.(*cacheEntry).engine, nil
	}

	c.misses++
	engine, err := c.factory(key)
	if err != nil {
		return nil, fmt.Errorf("build engine for model %q: %w", key.Model, err)
	}
	c.items[key] = c.order.PushFront(&cacheEntry{key: key, engine: engine})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
	return engine, nil
}

// Stats returns a snapshot of the cache counters.
func (c *EngineCache) Stats() EngineCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return EngineCacheStats{Hits: c.hits, Misses: c.misses, Size: c.order.Len(), Capacity: c.capacity}
}

// Purge drops every cached engine and resets the counters.
func (c *EngineCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	clear(c.items)
	c.hits, c.misses = 0, 0
}
