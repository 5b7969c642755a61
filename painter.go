package multires

import "sync"

// RepaintRequester wakes the painter loop. The renderer signals it
// whenever a new rendering pass should run.
type RepaintRequester interface {
	RequestRepaint()
}

// PainterThread runs the paint loop on a dedicated goroutine. Repaint
// requests from any goroutine are coalesced: however many arrive while
// a paint is in progress, exactly one further paint follows.
type PainterThread struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending bool
	stopped bool
	done    chan struct{}
}

// NewPainterThread creates a painter thread. Call Start to begin
// painting.
func NewPainterThread() *PainterThread {
	p := &PainterThread{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the paint loop, invoking paint once per coalesced
// repaint request until Stop is called.
func (p *PainterThread) Start(paint func()) {
	p.mu.Lock()
	if p.done != nil || p.stopped {
		p.mu.Unlock()
		return
	}
	p.done = make(chan struct{})
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		for {
			p.mu.Lock()
			for !p.pending && !p.stopped {
				p.cond.Wait()
			}
			if p.stopped {
				p.mu.Unlock()
				return
			}
			p.pending = false
			p.mu.Unlock()

			paint()
		}
	}()
}

// RequestRepaint schedules a paint as soon as possible: immediately, or
// right after the currently running paint completes.
func (p *PainterThread) RequestRepaint() {
	p.mu.Lock()
	p.pending = true
	p.mu.Unlock()
	p.cond.Signal()
}

// Stop terminates the paint loop and waits for a running paint to
// finish. Safe to call multiple times.
func (p *PainterThread) Stop() {
	p.mu.Lock()
	p.stopped = true
	done := p.done
	p.mu.Unlock()
	p.cond.Signal()
	if done != nil {
		<-done
	}
}
