package blockstore

import (
	"sync"
	"time"
)

// IoTimeBudget throttles block IO against a per-frame time budget. The
// renderer resets it at every projector creation; fetch workers charge
// the time they spend loading blocks against it and stop loading for
// the rest of the frame once it is exhausted.
//
// Thread safety: all methods are safe for concurrent use.
type IoTimeBudget struct {
	mu          sync.Mutex
	remaining   time.Duration
	blockBudget time.Duration
}

// Reset sets the budget for the coming frame: the total time available
// for block IO, and the minimum head-room required to start loading one
// more block.
func (b *IoTimeBudget) Reset(frameBudget, blockBudget time.Duration) {
	b.mu.Lock()
	b.remaining = frameBudget
	b.blockBudget = blockBudget
	b.mu.Unlock()
}

// TryAcquire reports whether enough budget remains to load one more
// block.
func (b *IoTimeBudget) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining >= b.blockBudget
}

// Use charges elapsed load time against the budget.
func (b *IoTimeBudget) Use(elapsed time.Duration) {
	b.mu.Lock()
	b.remaining -= elapsed
	b.mu.Unlock()
}

// Remaining returns the budget left in the current frame.
func (b *IoTimeBudget) Remaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}
