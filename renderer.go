package multires

import (
	"image"
	"log/slog"
	"sync"
	"time"
)

// Renderer is a coarse-to-fine progressive renderer. First, a small
// screen image at a fraction of the canvas resolution is rendered.
// Then, increasingly larger images are rendered, until the full canvas
// resolution is reached.
//
// At any time, one screen scale is selected as the finest scale whose
// estimated rendering time fits the target budget (the coarsest scale
// if none fits); rendering of a new frame starts there and proceeds to
// finer scales. Unless that starting scale is currently rendering,
// RequestRepaint cancels rendering, keeping the display interactive.
//
// The renderer supports volatile sources: a pass may complete with
// partially missing data; rendering then continues with finer scales,
// and the finest scale is re-rendered until all data is valid. Dirty sub-rectangles of an otherwise static view
// are serviced by interval passes patched into the current full-frame
// result.
//
// Thread safety: Paint must only be called by the painter thread.
// RequestRepaint and RequestRepaintInterval may be called from any
// goroutine.
type Renderer struct {
	// display receives the rendered results.
	display RenderTarget

	// painter is signalled whenever a new pass should run.
	painter RepaintRequester

	// factory creates projectors for rendering the current viewer
	// state to a screen image.
	factory screenProjectorFactory

	// cacheControl coordinates IO budgeting and the fetcher queue.
	cacheControl CacheControl

	scales  *screenScales
	storage *renderStorage

	// nanosPerPixelAndSource estimates the time to render one screen
	// pixel from one source.
	nanosPerPixelAndSource *movingAverage

	mu sync.Mutex

	// projector is the currently active projector. It may be cancelled
	// through this reference while Map runs outside the mutex.
	projector VolatileProjector

	// currentScreenScaleIndex is the scale of the last successful
	// full-frame pass; requestedScreenScaleIndex the one to render
	// next. A requested index of -1 means rendering is complete.
	currentScreenScaleIndex   int
	requestedScreenScaleIndex int

	// renderingMayBeCancelled is false while the in-flight pass is the
	// final, committing pass; external requests then enqueue instead
	// of cancelling.
	renderingMayBeCancelled bool

	// currentViewerState is the snapshot being rendered, immutable for
	// the lifetime of the frame. currentNumVisibleSources is derived
	// from it.
	currentViewerState       ViewerState
	currentNumVisibleSources int

	// newFrameRequest and newIntervalRequest are the pending external
	// requests. A pending full-frame request obsoletes any pending
	// interval request.
	newFrameRequest    bool
	newIntervalRequest bool

	// intervalMode is true while dirty intervals are being serviced
	// instead of full frames.
	intervalMode                bool
	currentIntervalScaleIndex   int
	requestedIntervalScaleIndex int

	currentRenderResult RenderResult
	intervalResult      RenderResult
	intervalData        *intervalRenderData
}

// New creates a renderer publishing to display and signalling painter.
// cacheControl coordinates the block cache of volatile sources; pass
// nil when no cache is involved.
func New(display RenderTarget, painter RepaintRequester, cacheControl CacheControl, opts ...Option) *Renderer {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cacheControl == nil {
		cacheControl = DummyCacheControl{}
	}

	r := &Renderer{
		display:                 display,
		painter:                 painter,
		cacheControl:            cacheControl,
		scales:                  newScreenScales(cfg.screenScaleFactors, cfg.targetRenderNanos),
		storage:                 newRenderStorage(),
		nanosPerPixelAndSource:  newMovingAverage(3),
		currentScreenScaleIndex: -1,
		renderingMayBeCancelled: false,
	}
	// Seed so that the first frame chooses a mid-coarse scale.
	r.nanosPerPixelAndSource.init(500)
	r.requestedScreenScaleIndex = r.scales.size() - 1

	r.factory = newProjectorFactory(
		cfg.numRenderingThreads,
		cfg.executor,
		cfg.useVolatile,
		cfg.accumulate,
		cfg.newFrameIfIncomplete,
	)
	r.intervalResult = display.CreateRenderResult()
	return r
}

// Paint renders one pass at the currently requested screen scale.
// It is invoked by the painter thread and returns false if the pass was
// cancelled or nothing could be rendered.
func (r *Renderer) Paint(viewerState ViewerState) bool {
	screenW := r.display.Width()
	screenH := r.display.Height()
	if screenW <= 0 || screenH <= 0 {
		return false
	}

	// Phase 1: request classification.
	var newFrame, newInterval, paintInterval, prepareNextFrame bool
	createProjector := false
	r.mu.Lock()
	{
		resized := r.scales.checkResize(screenW, screenH)

		newFrame = r.newFrameRequest || resized
		if newFrame {
			r.intervalMode = false
			r.scales.clearRequestedIntervals()
		}

		newInterval = r.newIntervalRequest && !newFrame
		if newInterval {
			r.intervalMode = true
			nanosPerPixel := r.nanosPerPixelAndSource.average() * float64(r.currentNumVisibleSources)
			r.requestedIntervalScaleIndex = r.scales.suggestIntervalScreenScale(nanosPerPixel, r.currentScreenScaleIndex)
		}

		prepareNextFrame = newFrame || newInterval
		paintInterval = r.intervalMode

		if paintInterval {
			createProjector = newInterval || r.requestedIntervalScaleIndex != r.currentIntervalScaleIndex
			if createProjector {
				r.intervalData = r.scales.pullIntervalRenderData(r.requestedIntervalScaleIndex, r.currentScreenScaleIndex)
			}
		}

		r.newFrameRequest = false
		r.newIntervalRequest = false
	}
	r.mu.Unlock()

	// Phase 2: frame preparation.
	if prepareNextFrame {
		r.cacheControl.PrepareNextFrame()
	}

	if newFrame {
		r.currentViewerState = viewerState.Snapshot()
		r.currentNumVisibleSources = len(r.currentViewerState.VisibleAndPresentSources())
		nanosPerPixel := r.nanosPerPixelAndSource.average() * float64(r.currentNumVisibleSources)
		r.requestedScreenScaleIndex = r.scales.suggestScreenScale(nanosPerPixel)
	}

	// Phase 3: projector creation.
	var p VolatileProjector

	// Holds the new RenderResult, if a new projector is created in
	// full-frame mode.
	var renderResult RenderResult

	// Whether to request a new frame if the pass ends with invalid
	// data; captured at projector creation in full-frame mode.
	requestNewFrameIfIncomplete := false

	if paintInterval {
		r.intervalResult.Init(r.intervalData.width, r.intervalData.height)
		r.intervalResult.SetScaleFactor(r.intervalData.scale)
		r.intervalResult.SetOffset(image.Pt(r.intervalData.offsetX, r.intervalData.offsetY))
		r.mu.Lock()
		if createProjector {
			r.projector = r.newScreenProjector(r.currentViewerState, r.requestedIntervalScaleIndex,
				r.intervalResult.Image(), r.intervalData.offsetX, r.intervalData.offsetY)
			// The first pass of a new interval commits; only the
			// finer follow-up passes may be cancelled.
			r.renderingMayBeCancelled = !newInterval
		}
		p = r.projector
		r.mu.Unlock()
	} else {
		if !newFrame && r.requestedScreenScaleIndex < 0 {
			// Fully resolved; nothing to paint.
			return false
		}
		createProjector = newFrame || r.requestedScreenScaleIndex != r.currentScreenScaleIndex
		r.mu.Lock()
		if createProjector {
			scale := r.scales.get(r.requestedScreenScaleIndex)

			renderResult = r.display.ReusableRenderResult()
			renderResult.Init(scale.width, scale.height)
			renderResult.SetScaleFactor(scale.scale)
			renderResult.SetViewerTransform(r.currentViewerState.ViewerTransform())

			finest := r.scales.get(0)
			r.storage.checkRenewData(finest.width, finest.height, r.currentNumVisibleSources)
			r.projector = r.newScreenProjector(r.currentViewerState, r.requestedScreenScaleIndex,
				renderResult.Image(), 0, 0)
			requestNewFrameIfIncomplete = r.factory.requestNewFrameIfIncomplete()
			r.renderingMayBeCancelled = !newFrame
		}
		p = r.projector
		r.mu.Unlock()
	}

	if p == nil {
		return false
	}

	// Phase 4: render. Map runs outside the mutex so that repaint
	// requests can arrive (and cancel) while it blocks.
	success := p.Map(createProjector)
	rendertime := p.LastRenderTime()

	// Phase 5: disposition.
	r.mu.Lock()
	defer r.mu.Unlock()

	if !success {
		// Rendering was cancelled. Keep the interval so it is not
		// lost; the pending request is serviced by the next paint.
		if paintInterval {
			r.intervalData.reRequest()
		}
		return false
	}

	if paintInterval {
		if createProjector {
			r.currentIntervalScaleIndex = r.requestedIntervalScaleIndex
		}

		if r.currentRenderResult != nil {
			r.currentRenderResult.Patch(r.intervalResult, r.intervalData.targetInterval,
				r.intervalData.tx, r.intervalData.ty)
			r.currentRenderResult.SetUpdated()
		}

		switch {
		case r.currentIntervalScaleIndex > r.currentScreenScaleIndex:
			r.iterateRepaintInterval(r.currentIntervalScaleIndex - 1)

		case p.IsValid():
			// Go back to full-frame rendering.
			r.intervalMode = false
			if r.requestedScreenScaleIndex >= 0 {
				r.renderingMayBeCancelled = false
				if r.requestedScreenScaleIndex == r.currentScreenScaleIndex {
					// Force a fresh full-frame pass at the requested
					// scale: the indices now differ, so the next paint
					// creates a new projector.
					r.currentScreenScaleIndex++
				}
				r.painter.RequestRepaint()
			}

		default:
			// Data incomplete; give the cache a moment and retry the
			// same interval scale.
			usleep()
			r.intervalData.reRequest()
			r.iterateRepaintInterval(r.currentIntervalScaleIndex)
		}
	} else {
		if createProjector {
			r.currentScreenScaleIndex = r.requestedScreenScaleIndex
			renderResult.SetUpdated()
			r.display.SetRenderResult(renderResult)
			r.currentRenderResult = renderResult

			if r.currentNumVisibleSources > 0 {
				img := renderResult.Image()
				numRenderPixels := img.Width() * img.Height() * r.currentNumVisibleSources
				perPixel := float64(rendertime.Nanoseconds()) / float64(numRenderPixels)
				r.nanosPerPixelAndSource.add(perPixel)
				Logger().Debug("committed frame",
					slog.Int("screenScaleIndex", r.currentScreenScaleIndex),
					slog.Duration("rendertime", rendertime),
					slog.Float64("nanosPerPixelAndSource", perPixel))
			}
		} else if r.currentRenderResult != nil {
			r.currentRenderResult.SetUpdated()
		}

		switch {
		case !p.IsValid() && requestNewFrameIfIncomplete:
			r.requestRepaintLocked()

		case r.currentScreenScaleIndex > 0:
			r.iterateRepaint(r.currentScreenScaleIndex - 1)

		case p.IsValid():
			// Rendering is complete.
			r.requestedScreenScaleIndex = -1

		default:
			usleep()
			r.iterateRepaint(r.currentScreenScaleIndex)
		}
	}

	return true
}

// iterateRepaint schedules a repaint of the current viewer state at the
// given screen scale. This loops until everything is painted at the
// finest resolution from valid data, or until a new external request
// interrupts.
func (r *Renderer) iterateRepaint(screenScaleIndex int) {
	r.requestedScreenScaleIndex = screenScaleIndex
	r.painter.RequestRepaint()
}

// iterateRepaintInterval schedules a repaint of the pulled interval at
// the given screen scale.
func (r *Renderer) iterateRepaintInterval(intervalScaleIndex int) {
	r.requestedIntervalScaleIndex = intervalScaleIndex
	r.painter.RequestRepaint()
}

// RequestRepaint requests a full repaint of the display. The painter
// thread triggers a Paint as soon as possible. If the in-flight pass
// may be cancelled, it is.
func (r *Renderer) RequestRepaint() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestRepaintLocked()
}

func (r *Renderer) requestRepaintLocked() {
	if r.renderingMayBeCancelled && r.projector != nil {
		r.projector.Cancel()
	}
	r.newFrameRequest = true
	r.painter.RequestRepaint()
}

// RequestRepaintInterval requests a repaint of the given canvas
// interval. While a coarse full-frame pass is committing, the request
// is upgraded to a full repaint; otherwise the interval joins the
// pending set and obsoletes nothing.
func (r *Renderer) RequestRepaintInterval(screenInterval image.Rectangle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.renderingMayBeCancelled || r.intervalMode {
		if r.projector != nil {
			r.projector.Cancel()
		}
		r.scales.requestInterval(screenInterval)
		r.newIntervalRequest = true
	} else {
		r.newFrameRequest = true
	}
	r.painter.RequestRepaint()
}

// Kill releases the renderer's resources: the projector reference, the
// scratch buffer pool, and the internal worker pool. Call when the
// enclosing viewer closes.
func (r *Renderer) Kill() {
	r.mu.Lock()
	r.projector = nil
	r.storage.clear()
	r.mu.Unlock()
	r.factory.close()
}

// newScreenProjector builds a projector writing into screenImage at the
// given screen scale, with the interval crop offset applied, and resets
// the cache IO budget for the pass.
func (r *Renderer) newScreenProjector(
	viewerState ViewerState,
	screenScaleIndex int,
	screenImage *ARGBImage,
	offsetX, offsetY int,
) VolatileProjector {
	scaleTransform := r.scales.get(screenScaleIndex).scaleTransform
	screenTransform := scaleTransform.
		Mul(viewerState.ViewerTransform()).
		Translated(float64(-offsetX), float64(-offsetY), 0)

	p := r.factory.createProjector(viewerState, screenImage, screenTransform, r.storage)
	if b, ok := r.cacheControl.(IoBudgeter); ok {
		b.ResetIoTimeBudget(ioFrameBudget, ioBlockBudget)
	}
	return p
}

// usleep is a polite back-off while the cache has no finer data yet.
// Bounded to 1 ms per miss; the outer cancellation protocol bounds the
// total.
func usleep() {
	time.Sleep(time.Millisecond)
}
