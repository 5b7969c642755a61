package multires

import "time"

// Option configures a Renderer during creation.
//
// Example:
//
//	renderer := multires.New(target, painter, cache,
//		multires.WithScreenScales(1, 0.75, 0.5, 0.25, 0.125),
//		multires.WithTargetRenderNanos(30*time.Millisecond),
//		multires.WithRenderingThreads(4))
type Option func(*config)

// config holds the renderer configuration.
type config struct {
	screenScaleFactors   []float64
	targetRenderNanos    float64
	numRenderingThreads  int
	executor             RenderingExecutor
	useVolatile          bool
	accumulate           AccumulateProjectorFactory
	newFrameIfIncomplete bool
}

// defaultConfig returns the default renderer configuration.
func defaultConfig() config {
	return config{
		screenScaleFactors:  []float64{1, 0.75, 0.5, 0.25, 0.125},
		targetRenderNanos:   30e6,
		numRenderingThreads: 1,
		useVolatile:         true,
		accumulate:          SumARGBFactory{},
	}
}

// WithScreenScales sets the rendering scale ladder, finest first. Each
// factor is the ratio of screen image pixels to canvas pixels, in
// (0, 1]. Factors should be strictly decreasing.
func WithScreenScales(factors ...float64) Option {
	return func(c *config) {
		if len(factors) > 0 {
			c.screenScaleFactors = factors
		}
	}
}

// WithTargetRenderNanos sets the per-frame latency goal. The renderer
// picks the finest screen scale whose estimated render time stays below
// the target.
func WithTargetRenderNanos(target time.Duration) Option {
	return func(c *config) {
		c.targetRenderNanos = float64(target.Nanoseconds())
	}
}

// WithRenderingThreads sets how many sub-tasks a rendering pass is
// split into. This also sizes the internal worker pool unless an
// external executor is supplied.
func WithRenderingThreads(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.numRenderingThreads = n
		}
	}
}

// WithExecutor supplies an external executor for rendering sub-tasks.
// The number of sub-tasks is still controlled by WithRenderingThreads.
func WithExecutor(e RenderingExecutor) Option {
	return func(c *config) {
		c.executor = e
	}
}

// WithVolatile controls whether volatile variants of sources are
// preferred when available. Default true.
func WithVolatile(use bool) Option {
	return func(c *config) {
		c.useVolatile = use
	}
}

// WithAccumulateProjectorFactory customizes how sources are combined
// into the final image. Default is channel-wise saturating sum.
func WithAccumulateProjectorFactory(f AccumulateProjectorFactory) Option {
	return func(c *config) {
		if f != nil {
			c.accumulate = f
		}
	}
}

// WithRequestNewFrameIfIncomplete makes the renderer request a full new
// frame (triggering CacheControl.PrepareNextFrame) whenever a pass
// completes with invalid data, instead of continuing with a finer scale
// or re-rendering the finest scale.
// Required by cache strategies that only fetch during frame
// preparation.
func WithRequestNewFrameIfIncomplete(request bool) Option {
	return func(c *config) {
		c.newFrameIfIncomplete = request
	}
}
