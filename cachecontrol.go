package multires

import "time"

// CacheControl coordinates the block cache backing volatile sources.
// The renderer calls PrepareNextFrame exactly once per new frame or new
// interval batch, never per finer iteration within that batch. The
// cache uses it to age entries and re-prioritize pending fetches.
type CacheControl interface {
	PrepareNextFrame()
}

// IoBudgeter is implemented by cache controls that throttle block IO
// against a time budget. The renderer resets the budget at every
// projector creation.
type IoBudgeter interface {
	ResetIoTimeBudget(frameBudget, blockBudget time.Duration)
}

// DummyCacheControl is a no-op CacheControl for sources that are not
// backed by a cache.
type DummyCacheControl struct{}

// PrepareNextFrame does nothing.
func (DummyCacheControl) PrepareNextFrame() {}

// Per-frame IO budgets handed to the cache at projector creation: how
// long the renderer is willing to wait for block IO per frame, and per
// individual block.
const (
	ioFrameBudget = 100 * time.Millisecond
	ioBlockBudget = 10 * time.Millisecond
)
