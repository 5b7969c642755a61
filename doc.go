// Package multires provides a progressive, multi-resolution renderer for
// large N-dimensional image volumes.
//
// # Overview
//
// The renderer uses a coarse-to-fine rendering scheme. First, a small
// screen image at a fraction of the canvas resolution is rendered. Then,
// increasingly larger images are rendered, until the full canvas
// resolution is reached. Low-resolution screen images are scaled up to
// the canvas size by the display, which is cheap, so the viewer stays
// interactive while the user changes the viewing transformation. When
// the transformation remains fixed, higher-resolution details are
// filled in successively.
//
// # Quick Start
//
//	target := multires.NewBufferedTarget(800, 600)
//	painter := multires.NewPainterThread()
//	renderer := multires.New(target, painter, cache,
//		multires.WithScreenScales(1, 0.5, 0.25, 0.125),
//		multires.WithTargetRenderNanos(30*time.Millisecond))
//
//	state := viewer.NewState(sources, numTimepoints)
//	painter.Start(func() { renderer.Paint(state) })
//	renderer.RequestRepaint()
//
// # Screen scales
//
// A screen scale of 1 means that 1 pixel in the screen image is
// displayed as 1 pixel on the canvas, a screen scale of 0.5 means 1
// pixel in the screen image is displayed as 2 pixels on the canvas,
// etc. A new frame starts at the finest scale whose estimated render
// time fits the target budget (the coarsest scale if none fits), based
// on a moving per-pixel time estimate from previous frames.
//
// # Volatile sources
//
// Sources backed by an asynchronous block cache may report samples as
// missing. A rendering pass then produces a partially valid frame; the
// renderer continues with finer scales and, at the finest scale,
// re-renders it until all data is valid. See
// the blockstore package for the cache implementation.
//
// # Architecture
//
// The module is organized into:
//   - Public API: Renderer, ScreenScale ladder, ViewerState, Source,
//     RenderTarget, RenderResult, VolatileProjector
//   - viewer: concrete mutable viewer state with snapshot support
//   - volume: in-memory pyramid sources and intensity converters
//   - blockstore: volatile block cache with SQLite-backed store
//   - internal/parallel: worker pool splitting rendering passes
package multires
