package multires

import (
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeProjector is a scripted projector: it fills its destination with
// one color, reports a configured render time and validity, and
// supports a mid-Map hook to simulate concurrent requests.
type fakeProjector struct {
	dest       *ARGBImage
	fill       uint32
	renderTime time.Duration
	valid      func(call int) bool
	onMap      func()

	canceled  atomic.Bool
	mapCalls  atomic.Int64
	lastValid atomic.Bool
}

func (p *fakeProjector) Map(clear bool) bool {
	call := int(p.mapCalls.Add(1)) - 1
	if p.onMap != nil {
		p.onMap()
	}
	if p.canceled.Load() {
		return false
	}
	if p.dest != nil {
		p.dest.Clear(p.fill)
	}
	v := true
	if p.valid != nil {
		v = p.valid(call)
	}
	p.lastValid.Store(v)
	return true
}

func (p *fakeProjector) Cancel() { p.canceled.Store(true) }
func (p *fakeProjector) IsValid() bool { return p.lastValid.Load() }

func (p *fakeProjector) LastRenderTime() time.Duration {
	if p.renderTime == 0 {
		return time.Microsecond
	}
	return p.renderTime
}

// fakeFactory hands out fakeProjectors, remembering them in creation
// order.
type fakeFactory struct {
	mu                   sync.Mutex
	projectors           []*fakeProjector
	configure            func(p *fakeProjector, n int)
	newFrameIncomplete   bool
}

func (f *fakeFactory) createProjector(_ ViewerState, img *ARGBImage, _ Affine3D, _ *renderStorage) VolatileProjector {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakeProjector{dest: img, fill: 0xff111111, renderTime: time.Millisecond}
	if f.configure != nil {
		f.configure(p, len(f.projectors))
	}
	f.projectors = append(f.projectors, p)
	return p
}

func (f *fakeFactory) requestNewFrameIfIncomplete() bool { return f.newFrameIncomplete }
func (f *fakeFactory) close() {}

func (f *fakeFactory) last() *fakeProjector {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.projectors) == 0 {
		return nil
	}
	return f.projectors[len(f.projectors)-1]
}

// fakePainter records repaint signals.
type fakePainter struct{ requests atomic.Int64 }

func (p *fakePainter) RequestRepaint() { p.requests.Add(1) }

// fakeCache counts frame preparations and budget resets.
type fakeCache struct {
	prepares     atomic.Int64
	budgetResets atomic.Int64
}

func (c *fakeCache) PrepareNextFrame() { c.prepares.Add(1) }

func (c *fakeCache) ResetIoTimeBudget(_, _ time.Duration) { c.budgetResets.Add(1) }

type rendererFixture struct {
	r       *Renderer
	target  *BufferedTarget
	painter *fakePainter
	cache   *fakeCache
	factory *fakeFactory
	state   *testState
}

func newRendererFixture(t *testing.T, w, h int, opts ...Option) *rendererFixture {
	t.Helper()
	target := NewBufferedTarget(w, h)
	painter := &fakePainter{}
	cache := &fakeCache{}
	r := New(target, painter, cache, opts...)
	t.Cleanup(r.Kill)

	// Swap the real projector factory for the scripted one.
	r.factory.close()
	factory := &fakeFactory{}
	r.factory = factory

	state := newTestState(SourceAndConverter{Source: gradientSource(), Converter: valueConverter{}})
	return &rendererFixture{r: r, target: target, painter: painter, cache: cache, factory: factory, state: state}
}

// TestPaintZeroCanvas verifies a zero-sized canvas fails fast without
// state mutation.
func TestPaintZeroCanvas(t *testing.T) {
	fx := newRendererFixture(t, 0, 0)
	fx.r.RequestRepaint()
	if fx.r.Paint(fx.state) {
		t.Error("Paint succeeded on a zero-sized canvas")
	}
	if len(fx.factory.projectors) != 0 {
		t.Error("projector created for a zero-sized canvas")
	}
}

// TestColdStartConvergence reproduces the cold-start scenario: the
// first paint renders at the coarsest scale, then the renderer climbs
// to the finest scale and quiesces.
func TestColdStartConvergence(t *testing.T) {
	fx := newRendererFixture(t, 1024, 1024,
		WithScreenScales(1, 0.5, 0.25),
		WithTargetRenderNanos(30*time.Millisecond))
	fx.factory.configure = func(p *fakeProjector, _ int) {
		p.renderTime = 5 * time.Millisecond
	}

	fx.r.RequestRepaint()
	if !fx.r.Paint(fx.state) {
		t.Fatal("first paint failed")
	}

	// The seeded estimate (500 ns/px/source) exceeds the budget at
	// every scale, so the coarsest is chosen.
	if got := fx.r.currentScreenScaleIndex; got != 2 {
		t.Fatalf("first frame scale: got %d, want 2", got)
	}
	res := fx.target.DisplayedResult()
	if res == nil {
		t.Fatal("first frame not published")
	}
	if img := res.Image(); img.Width() != 256 || img.Height() != 256 {
		t.Errorf("published size: got %dx%d, want 256x256", img.Width(), img.Height())
	}
	if !res.TakeUpdated() {
		t.Error("published result not marked updated")
	}

	// The painter was signalled to continue with a finer pass.
	if fx.painter.requests.Load() == 0 {
		t.Error("no iterate repaint requested")
	}

	// Climb to the finest scale.
	for i := 0; i < 2; i++ {
		if !fx.r.Paint(fx.state) {
			t.Fatalf("climb paint %d failed", i)
		}
	}
	if got := fx.r.currentScreenScaleIndex; got != 0 {
		t.Errorf("final scale: got %d, want 0", got)
	}
	if got := fx.r.requestedScreenScaleIndex; got != -1 {
		t.Errorf("requested scale after convergence: got %d, want -1", got)
	}

	// One frame, one PrepareNextFrame: finer iterations do not prepare
	// again.
	if got := fx.cache.prepares.Load(); got != 1 {
		t.Errorf("PrepareNextFrame calls: got %d, want 1", got)
	}
	// But every projector creation reset the IO budget.
	if got := fx.cache.budgetResets.Load(); got != 3 {
		t.Errorf("budget resets: got %d, want 3", got)
	}

	// Quiescent: a spurious paint does nothing.
	if fx.r.Paint(fx.state) {
		t.Error("quiescent paint reported work")
	}
}

// TestRepaintIdempotence verifies consecutive full-frame requests
// collapse into one unit of work.
func TestRepaintIdempotence(t *testing.T) {
	fx := newRendererFixture(t, 256, 256, WithScreenScales(1))

	fx.r.RequestRepaint()
	fx.r.RequestRepaint()
	fx.r.Paint(fx.state)

	if fx.r.newFrameRequest {
		t.Error("request flag survived the paint")
	}
	if got := len(fx.factory.projectors); got != 1 {
		t.Errorf("projectors created: got %d, want 1", got)
	}
	if got := fx.cache.prepares.Load(); got != 1 {
		t.Errorf("PrepareNextFrame calls: got %d, want 1", got)
	}
}

// TestIntervalObsoletedByFullFrame verifies a full-frame request
// clears pending intervals before the next paint.
func TestIntervalObsoletedByFullFrame(t *testing.T) {
	fx := newRendererFixture(t, 1024, 1024,
		WithScreenScales(1, 0.5),
		WithTargetRenderNanos(30*time.Millisecond))

	// Converge so that interval requests are accepted.
	fx.r.RequestRepaint()
	fx.r.Paint(fx.state)
	fx.r.Paint(fx.state)

	fx.r.RequestRepaintInterval(image.Rect(10, 10, 20, 20))
	if !fx.r.scales.hasRequestedIntervals() {
		t.Fatal("interval request was not enqueued")
	}
	fx.r.RequestRepaint()
	fx.r.Paint(fx.state)

	if fx.r.intervalMode {
		t.Error("paint ran in interval mode despite full-frame request")
	}
	if fx.r.scales.hasRequestedIntervals() {
		t.Error("pending intervals survived the full-frame request")
	}
	if fx.r.newIntervalRequest {
		t.Error("interval request flag survived the full-frame paint")
	}
}

// TestDirtyIntervalOverStaticFrame reproduces the interval scenario:
// after quiescence a dirty rectangle is re-rendered and patched in
// place, then the renderer returns to full-frame mode.
func TestDirtyIntervalOverStaticFrame(t *testing.T) {
	fx := newRendererFixture(t, 1024, 1024,
		WithScreenScales(1, 0.5, 0.25),
		WithTargetRenderNanos(30*time.Millisecond))

	const fullFill = 0xff101010
	const intervalFill = 0xff707070
	fx.factory.configure = func(p *fakeProjector, n int) {
		p.renderTime = time.Millisecond
		p.fill = fullFill
		if n >= 3 {
			p.fill = intervalFill
		}
	}

	// Converge: coarsest, middle, finest.
	fx.r.RequestRepaint()
	for i := 0; i < 3; i++ {
		fx.r.Paint(fx.state)
	}
	if fx.r.requestedScreenScaleIndex != -1 || fx.r.currentScreenScaleIndex != 0 {
		t.Fatalf("not quiescent: current %d, requested %d",
			fx.r.currentScreenScaleIndex, fx.r.requestedScreenScaleIndex)
	}

	rect := image.Rect(100, 100, 200, 200)
	fx.r.RequestRepaintInterval(rect)
	if !fx.r.Paint(fx.state) {
		t.Fatal("interval paint failed")
	}

	if fx.r.intervalData.targetInterval != rect {
		t.Errorf("target interval: got %v, want %v", fx.r.intervalData.targetInterval, rect)
	}

	// Patched only inside the rectangle.
	img := fx.target.DisplayedResult().Image()
	if got := img.Get(150, 150); got != intervalFill {
		t.Errorf("inside rect: got %#x, want %#x", got, intervalFill)
	}
	if got := img.Get(50, 50); got != fullFill {
		t.Errorf("outside rect: got %#x, want %#x", got, fullFill)
	}
	if got := img.Get(250, 250); got != fullFill {
		t.Errorf("outside rect: got %#x, want %#x", got, fullFill)
	}

	// Back to full-frame mode, still quiescent.
	if fx.r.intervalMode {
		t.Error("still in interval mode")
	}
	if got := fx.r.requestedScreenScaleIndex; got != -1 {
		t.Errorf("requested scale: got %d, want -1", got)
	}
}

// TestIntervalIteratesToBaseScale verifies a coarse interval pass is
// refined down to the full frame's scale and then leaves interval mode;
// the full frame was already quiescent, so no scale bump happens.
func TestIntervalIteratesToBaseScale(t *testing.T) {
	fx := newRendererFixture(t, 1024, 1024,
		WithScreenScales(1, 0.5, 0.25),
		WithTargetRenderNanos(30*time.Millisecond))
	// 5 ms per pass keeps the estimate high enough that interval
	// passes start one level above the finest scale.
	fx.factory.configure = func(p *fakeProjector, _ int) {
		p.renderTime = 5 * time.Millisecond
	}

	fx.r.RequestRepaint()
	for i := 0; i < 3; i++ {
		fx.r.Paint(fx.state)
	}
	if fx.r.currentScreenScaleIndex != 0 {
		t.Fatalf("setup: current scale %d", fx.r.currentScreenScaleIndex)
	}

	fx.r.RequestRepaintInterval(image.Rect(0, 0, 64, 64))
	fx.r.Paint(fx.state)
	if !fx.r.intervalMode {
		t.Fatal("interval mode not entered")
	}
	if fx.r.currentIntervalScaleIndex <= fx.r.currentScreenScaleIndex {
		t.Skipf("estimate picked interval scale %d, cannot exercise iteration",
			fx.r.currentIntervalScaleIndex)
	}

	// Iterate until the interval reaches the base scale.
	for i := 0; i < 4 && fx.r.intervalMode; i++ {
		fx.r.Paint(fx.state)
	}
	if fx.r.intervalMode {
		t.Fatal("interval did not converge")
	}
	// requested was -1 (quiescent before the interval), so no bump
	// happened and the renderer stays quiescent.
	if got := fx.r.requestedScreenScaleIndex; got != -1 {
		t.Errorf("requested scale: got %d, want -1", got)
	}
}

// TestIntervalPreemptedByFullFrame reproduces the preemption scenario:
// a cancellable interval pass is cancelled by a full-frame request and
// the pending intervals are dropped.
func TestIntervalPreemptedByFullFrame(t *testing.T) {
	fx := newRendererFixture(t, 1024, 1024,
		WithScreenScales(1, 0.5, 0.25),
		WithTargetRenderNanos(30*time.Millisecond))
	fx.factory.configure = func(p *fakeProjector, _ int) {
		p.renderTime = 5 * time.Millisecond
	}

	fx.r.RequestRepaint()
	for i := 0; i < 3; i++ {
		fx.r.Paint(fx.state)
	}

	fx.r.RequestRepaintInterval(image.Rect(0, 0, 64, 64))
	fx.r.Paint(fx.state) // first interval pass (non-cancellable) commits
	if !fx.r.intervalMode {
		t.Fatal("interval mode not entered")
	}
	if fx.r.currentIntervalScaleIndex <= fx.r.currentScreenScaleIndex {
		t.Skip("no finer interval pass to preempt")
	}

	// The next pass is cancellable; preempt it mid-map.
	fx.factory.configure = func(p *fakeProjector, _ int) {
		p.onMap = fx.r.RequestRepaint
	}
	if fx.r.Paint(fx.state) {
		t.Fatal("preempted pass reported success")
	}
	if !fx.factory.last().canceled.Load() {
		t.Error("projector was not cancelled")
	}
	// The interval was re-requested on cancellation, but the pending
	// full-frame request clears it.
	fx.factory.configure = nil
	fx.r.Paint(fx.state)
	if fx.r.intervalMode {
		t.Error("full-frame request did not leave interval mode")
	}
	if fx.r.scales.hasRequestedIntervals() {
		t.Error("pending intervals survived the full-frame request")
	}
}

// TestNonCancellablePassCommits verifies a request during a new-frame
// pass does not cancel it.
func TestNonCancellablePassCommits(t *testing.T) {
	fx := newRendererFixture(t, 256, 256, WithScreenScales(1))
	fx.factory.configure = func(p *fakeProjector, _ int) {
		p.onMap = fx.r.RequestRepaint
	}

	fx.r.RequestRepaint()
	if !fx.r.Paint(fx.state) {
		t.Fatal("non-cancellable pass did not commit")
	}
	if fx.factory.last().canceled.Load() {
		t.Error("non-cancellable pass was cancelled")
	}
	if fx.target.DisplayedResult() == nil {
		t.Error("committing pass did not publish")
	}
}

// TestCancellableFinerPassCancelled verifies a full repaint request
// cancels an in-flight finer pass.
func TestCancellableFinerPassCancelled(t *testing.T) {
	fx := newRendererFixture(t, 1024, 1024,
		WithScreenScales(1, 0.5, 0.25),
		WithTargetRenderNanos(30*time.Millisecond))

	fx.r.RequestRepaint()
	fx.r.Paint(fx.state) // commits at the coarsest scale

	// The finer iterate pass is cancellable.
	fx.factory.configure = func(p *fakeProjector, _ int) {
		p.onMap = fx.r.RequestRepaint
	}
	if fx.r.Paint(fx.state) {
		t.Fatal("cancelled pass reported success")
	}
	if !fx.factory.last().canceled.Load() {
		t.Error("finer pass was not cancelled")
	}

	// The pending request restarts from a coarse scale.
	fx.factory.configure = nil
	if !fx.r.Paint(fx.state) {
		t.Fatal("restarted frame failed")
	}
	if got := fx.r.currentScreenScaleIndex; got != 2 {
		t.Errorf("restart scale: got %d, want 2", got)
	}
}

// TestInvalidDataRequestsNewFrame reproduces the invalid-data loop
// with requestNewFrameIfIncomplete: every invalid pass triggers a
// fresh frame (and PrepareNextFrame), until the data becomes valid.
func TestInvalidDataRequestsNewFrame(t *testing.T) {
	fx := newRendererFixture(t, 256, 256, WithScreenScales(1))
	fx.factory.newFrameIncomplete = true

	var passes atomic.Int64
	fx.factory.configure = func(p *fakeProjector, _ int) {
		p.valid = func(int) bool { return passes.Add(1) > 5 }
	}

	fx.r.RequestRepaint()
	for i := 0; i < 6; i++ {
		if !fx.r.Paint(fx.state) {
			t.Fatalf("paint %d failed", i)
		}
	}

	if got := fx.r.requestedScreenScaleIndex; got != -1 {
		t.Errorf("requested scale after valid pass: got %d, want -1", got)
	}
	// Each of the 6 paints was a new frame.
	if got := fx.cache.prepares.Load(); got != 6 {
		t.Errorf("PrepareNextFrame calls: got %d, want 6", got)
	}
}

// TestInvalidDataRetrySameScale verifies the same-scale retry path
// does not update the estimator.
func TestInvalidDataRetrySameScale(t *testing.T) {
	fx := newRendererFixture(t, 256, 256, WithScreenScales(1))

	var passes atomic.Int64
	fx.factory.configure = func(p *fakeProjector, _ int) {
		p.renderTime = 2 * time.Millisecond
		p.valid = func(int) bool { return passes.Add(1) > 2 }
	}

	fx.r.RequestRepaint()
	fx.r.Paint(fx.state) // commit, invalid, retry scheduled
	avgAfterCommit := fx.r.nanosPerPixelAndSource.average()

	fx.r.Paint(fx.state) // same projector, still invalid
	if got := fx.r.nanosPerPixelAndSource.average(); got != avgAfterCommit {
		t.Errorf("estimator updated on a retry pass: %v != %v", got, avgAfterCommit)
	}
	if got := len(fx.factory.projectors); got != 1 {
		t.Errorf("retry created a new projector (%d total)", got)
	}

	fx.r.Paint(fx.state) // valid now
	if got := fx.r.requestedScreenScaleIndex; got != -1 {
		t.Errorf("requested scale: got %d, want -1", got)
	}
}

// TestInteractiveStorm reproduces the zoom-storm scenario: under a
// stream of repaint requests every committed frame stays at a scale
// whose estimated cost fits the budget (or the coarsest), and no finer
// pass commits in between.
func TestInteractiveStorm(t *testing.T) {
	fx := newRendererFixture(t, 1024, 1024,
		WithScreenScales(1, 0.5, 0.25),
		WithTargetRenderNanos(30*time.Millisecond))
	fx.factory.configure = func(p *fakeProjector, _ int) {
		p.renderTime = 20 * time.Millisecond
	}

	for i := 0; i < 10; i++ {
		avg := fx.r.nanosPerPixelAndSource.average()

		fx.r.RequestRepaint()
		if !fx.r.Paint(fx.state) {
			t.Fatalf("storm paint %d failed", i)
		}
		// The scale table is built by the first Paint; the suggestion
		// uses the estimate from before the pass.
		want := fx.r.scales.suggestScreenScale(avg * 1)
		if got := fx.r.currentScreenScaleIndex; got != want {
			t.Fatalf("storm frame %d: committed scale %d, want %d", i, got, want)
		}
	}
}

// TestResizeForcesNewFrame reproduces the resize scenario: a canvas
// size change rebuilds the scale table and restarts from a fresh
// coarse frame.
func TestResizeForcesNewFrame(t *testing.T) {
	fx := newRendererFixture(t, 256, 256,
		WithScreenScales(1, 0.5),
		WithTargetRenderNanos(30*time.Millisecond))

	fx.r.RequestRepaint()
	fx.r.Paint(fx.state)

	fx.target.SetSize(800, 600)
	// No explicit request: the resize alone forces a new frame.
	if !fx.r.Paint(fx.state) {
		t.Fatal("paint after resize failed")
	}
	if fx.r.scales.width != 800 || fx.r.scales.height != 600 {
		t.Errorf("scale table: got %dx%d, want 800x600", fx.r.scales.width, fx.r.scales.height)
	}
	res := fx.target.DisplayedResult()
	scale := fx.r.scales.get(fx.r.currentScreenScaleIndex)
	if img := res.Image(); img.Width() != scale.width || img.Height() != scale.height {
		t.Errorf("published size: got %dx%d, want %dx%d",
			img.Width(), img.Height(), scale.width, scale.height)
	}
	if got := fx.cache.prepares.Load(); got != 2 {
		t.Errorf("PrepareNextFrame calls: got %d, want 2", got)
	}
}

// TestFullFrameResultCoversCanvas verifies the committed result always
// matches the scale table entry (size invariant).
func TestFullFrameResultCoversCanvas(t *testing.T) {
	fx := newRendererFixture(t, 640, 480,
		WithScreenScales(1, 0.5, 0.25),
		WithTargetRenderNanos(30*time.Millisecond))

	fx.r.RequestRepaint()
	for fx.r.requestedScreenScaleIndex != -1 {
		if !fx.r.Paint(fx.state) {
			t.Fatal("paint failed")
		}
		idx := fx.r.currentScreenScaleIndex
		scale := fx.r.scales.get(idx)
		img := fx.target.DisplayedResult().Image()
		if img.Width() != scale.width || img.Height() != scale.height {
			t.Fatalf("scale %d: result %dx%d, want %dx%d",
				idx, img.Width(), img.Height(), scale.width, scale.height)
		}
	}
}

// TestKillReleasesResources verifies Kill drops the projector and the
// scratch pool.
func TestKillReleasesResources(t *testing.T) {
	fx := newRendererFixture(t, 256, 256, WithScreenScales(1))
	fx.r.RequestRepaint()
	fx.r.Paint(fx.state)

	fx.r.Kill()
	if fx.r.projector != nil {
		t.Error("projector reference survived Kill")
	}
	if len(fx.r.storage.images) != 0 {
		t.Error("render storage survived Kill")
	}
}
