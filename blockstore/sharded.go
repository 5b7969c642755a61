package blockstore

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Default configuration constants.
const (
	// shardCount is the number of shards for reduced lock contention.
	// Must be a power of 2 for fast modulo via bitwise AND.
	shardCount = 16

	// defaultCapacity is the default maximum entries per shard.
	defaultCapacity = 256

	// shardMask is used for fast shard selection.
	shardMask = shardCount - 1
)

// shardedLRU is a thread-safe, sharded LRU cache holding the resident
// blocks. Sharding keeps lock contention low when many rendering
// goroutines sample concurrently.
type shardedLRU[K comparable, V any] struct {
	shards   [shardCount]*lruShard[K, V]
	hasher   func(K) uint64
	capacity int // per shard

	// Statistics (atomic for zero-allocation reads).
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// lruShard is a single shard with its own mutex.
type lruShard[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]*list.Element
	order   *list.List // front = most recently used
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

// newShardedLRU creates a cache with the specified capacity per shard.
// Total capacity is approximately capacity * 16. If capacity <= 0, the
// default per-shard capacity is used.
func newShardedLRU[K comparable, V any](capacity int, hasher func(K) uint64) *shardedLRU[K, V] {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	c := &shardedLRU[K, V]{
		hasher:   hasher,
		capacity: capacity,
	}
	for i := range c.shards {
		c.shards[i] = &lruShard[K, V]{
			entries: make(map[K]*list.Element),
			order:   list.New(),
		}
	}
	return c
}

func (c *shardedLRU[K, V]) getShard(key K) *lruShard[K, V] {
	return c.shards[c.hasher(key)&shardMask]
}

// get retrieves a cached value, promoting it to most recently used.
func (c *shardedLRU[K, V]) get(key K) (V, bool) {
	shard := c.getShard(key)

	// Fast path: read lock to check existence.
	shard.mu.RLock()
	_, exists := shard.entries[key]
	shard.mu.RUnlock()

	if !exists {
		c.misses.Add(1)
		var zero V
		return zero, false
	}

	// Slow path: write lock for the LRU update. Re-check after
	// acquiring it, the entry may have been evicted in between.
	shard.mu.Lock()
	el, ok := shard.entries[key]
	if !ok {
		shard.mu.Unlock()
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	shard.order.MoveToFront(el)
	value := el.Value.(*lruEntry[K, V]).value
	shard.mu.Unlock()

	c.hits.Add(1)
	return value, true
}

// put stores a value, evicting least recently used entries of the
// shard beyond capacity. The value is stored as-is (not copied).
func (c *shardedLRU[K, V]) put(key K, value V) {
	shard := c.getShard(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if el, ok := shard.entries[key]; ok {
		el.Value.(*lruEntry[K, V]).value = value
		shard.order.MoveToFront(el)
		return
	}

	for shard.order.Len() >= c.capacity {
		oldest := shard.order.Back()
		if oldest == nil {
			break
		}
		shard.order.Remove(oldest)
		delete(shard.entries, oldest.Value.(*lruEntry[K, V]).key)
		c.evictions.Add(1)
	}

	shard.entries[key] = shard.order.PushFront(&lruEntry[K, V]{key: key, value: value})
}

// len returns the total number of resident entries.
func (c *shardedLRU[K, V]) len() int {
	n := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		n += len(shard.entries)
		shard.mu.RUnlock()
	}
	return n
}

// Stats reports cache statistics.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

func (c *shardedLRU[K, V]) stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
