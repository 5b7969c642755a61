// Package blockstore provides the volatile block cache backing large
// on-disk datasets: a sharded LRU of resident blocks, asynchronous
// fetch workers throttled by a per-frame IO time budget, and a
// SQLite-backed persistent block store.
package blockstore

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/multires"
)

// BlockCache keeps recently used blocks resident and fetches missing
// blocks asynchronously from a Store. It implements
// multires.CacheControl and multires.IoBudgeter, so it plugs directly
// into the renderer.
//
// Volatile access (Get) never blocks: a miss enqueues a fetch and
// reports the block as unavailable, making the rendering pass that
// needed it invalid; the pass is re-attempted until all blocks have
// arrived. PrepareNextFrame drops fetch requests queued for earlier
// frames, so the workers always serve the most recent view first.
type BlockCache struct {
	store Store
	lru   *shardedLRU[Key, []uint16]

	budget IoTimeBudget

	// gen is the frame generation; fetch requests from older
	// generations are dropped (they are re-enqueued on demand if the
	// new frame still needs them).
	gen atomic.Int64

	queue chan fetchRequest
	done  chan struct{}
	wg    sync.WaitGroup

	pendMu  sync.Mutex
	pending map[Key]struct{}
}

type fetchRequest struct {
	key  Key
	size int
	gen  int64
}

// NewBlockCache creates a cache over store with the given per-shard
// block capacity and number of fetch workers. If numFetchers <= 0, one
// worker is used.
func NewBlockCache(store Store, capacityPerShard, numFetchers int) *BlockCache {
	if numFetchers <= 0 {
		numFetchers = 1
	}
	c := &BlockCache{
		store:   store,
		lru:     newShardedLRU[Key, []uint16](capacityPerShard, hashKey),
		queue:   make(chan fetchRequest, 1024),
		done:    make(chan struct{}),
		pending: make(map[Key]struct{}),
	}
	c.budget.Reset(100*time.Millisecond, 10*time.Millisecond)

	c.wg.Add(numFetchers)
	for i := 0; i < numFetchers; i++ {
		go c.fetchWorker()
	}
	return c
}

// PrepareNextFrame advances the frame generation, dropping fetch
// requests queued for earlier frames. The renderer calls this once per
// new frame or new interval batch.
func (c *BlockCache) PrepareNextFrame() {
	c.gen.Add(1)
}

// ResetIoTimeBudget resets the per-frame IO budget. The renderer calls
// this at every projector creation.
func (c *BlockCache) ResetIoTimeBudget(frameBudget, blockBudget time.Duration) {
	c.budget.Reset(frameBudget, blockBudget)
}

// Get returns the block if it is resident. Otherwise it enqueues an
// asynchronous fetch (deduplicated) and returns ok = false. size is
// the block length in voxels, used to substitute zero blocks for
// blocks absent from the store.
func (c *BlockCache) Get(key Key, size int) ([]uint16, bool) {
	if data, ok := c.lru.get(key); ok {
		return data, true
	}
	c.enqueue(key, size)
	return nil, false
}

// GetBlocking returns the block, loading it synchronously if
// necessary. Used by non-volatile sources.
func (c *BlockCache) GetBlocking(key Key, size int) ([]uint16, error) {
	if data, ok := c.lru.get(key); ok {
		return data, nil
	}
	data, err := c.store.LoadBlock(key)
	if errors.Is(err, ErrNotFound) {
		data = make([]uint16, size)
	} else if err != nil {
		return nil, err
	}
	c.lru.put(key, data)
	return data, nil
}

// enqueue schedules an asynchronous fetch unless one is already
// pending. If the queue is full the request is dropped; the next
// rendering pass re-requests it.
func (c *BlockCache) enqueue(key Key, size int) {
	c.pendMu.Lock()
	if _, ok := c.pending[key]; ok {
		c.pendMu.Unlock()
		return
	}
	c.pending[key] = struct{}{}
	c.pendMu.Unlock()

	select {
	case c.queue <- fetchRequest{key: key, size: size, gen: c.gen.Load()}:
	default:
		c.finish(key)
		multires.Logger().Warn("fetch queue full, dropping request",
			slog.Int("level", key.Level))
	}
}

func (c *BlockCache) finish(key Key) {
	c.pendMu.Lock()
	delete(c.pending, key)
	c.pendMu.Unlock()
}

// fetchWorker loads queued blocks until the cache is closed, honoring
// the frame generation and the IO time budget.
func (c *BlockCache) fetchWorker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case req := <-c.queue:
			c.serve(req)
		}
	}
}

func (c *BlockCache) serve(req fetchRequest) {
	defer c.finish(req.key)

	if req.gen != c.gen.Load() {
		// Stale frame; the current frame re-requests on demand.
		return
	}
	if !c.budget.TryAcquire() {
		// Out of IO budget for this frame.
		return
	}

	start := time.Now()
	data, err := c.store.LoadBlock(req.key)
	c.budget.Use(time.Since(start))

	if errors.Is(err, ErrNotFound) {
		data = make([]uint16, req.size)
	} else if err != nil {
		multires.Logger().Warn("block load failed",
			slog.Int("setup", req.key.Setup),
			slog.Int("level", req.key.Level),
			slog.Any("error", err))
		return
	}
	c.lru.put(req.key, data)
}

// WaitIdle blocks until no fetches are pending, or the timeout
// expires. Returns true if the cache went idle.
func (c *BlockCache) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	c.pendMu.Lock()
	defer c.pendMu.Unlock()
	for len(c.pending) > 0 {
		if time.Now().After(deadline) {
			return false
		}
		c.pendMu.Unlock()
		time.Sleep(time.Millisecond)
		c.pendMu.Lock()
	}
	return true
}

// Stats reports cache statistics.
func (c *BlockCache) Stats() Stats {
	return c.lru.stats()
}

// Close stops the fetch workers. Pending queue entries are discarded.
func (c *BlockCache) Close() {
	select {
	case <-c.done:
		return
	default:
	}
	close(c.done)
	c.wg.Wait()

	// Drain bookkeeping for requests that were never served.
	c.pendMu.Lock()
	clear(c.pending)
	c.pendMu.Unlock()
}
