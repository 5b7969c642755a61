package multires

import (
	"sync/atomic"
	"time"
)

// VolatileProjector renders a viewer state snapshot into a screen
// image, possibly from partially available (volatile) data.
type VolatileProjector interface {
	// Map produces one rendering pass. It blocks until the pass is
	// complete or cancelled and returns false iff it was cancelled.
	// Any other termination is a success, with IsValid possibly false.
	//
	// If clearUntouchedTargetPixels is true, target pixels for which
	// no data was available are cleared; otherwise they keep the
	// content of the previous pass.
	Map(clearUntouchedTargetPixels bool) bool

	// Cancel requests the current Map to abort at the next safe point.
	// It is idempotent and safe to call concurrently with Map.
	Cancel()

	// IsValid reports, after a successful Map, whether all sampled
	// data was available. If false, the pass must be re-attempted to
	// converge to a complete image.
	IsValid() bool

	// LastRenderTime returns the wall time spent in the last Map.
	LastRenderTime() time.Duration
}

// RenderingExecutor runs a batch of work items, returning when all are
// done. The internal worker pool implements it; an external pool can be
// supplied with WithExecutor.
type RenderingExecutor interface {
	ExecuteAll(work []func())
}

// sourceProjector renders a single source into a pixel buffer by
// back-projecting every target pixel through the inverse of the
// combined screen and source transform.
type sourceProjector struct {
	source    Source
	converter Converter
	timepoint int
	level     int
	interp    Interpolation

	// screenToVoxel maps screen image coordinates to voxel coordinates
	// of the chosen mipmap level.
	screenToVoxel Affine3D

	dest   []uint32
	mask   []byte // nil when rendering directly into the destination
	width  int
	height int

	canceled   *atomic.Bool
	numInvalid atomic.Int64
}

// renderRows renders the rows [y0, y1), checking for cancellation once
// per row. Returns false if the pass was cancelled.
func (p *sourceProjector) renderRows(y0, y1 int, clear bool) bool {
	t := p.screenToVoxel
	for y := y0; y < y1; y++ {
		if p.canceled.Load() {
			return false
		}
		row := y * p.width
		fy := float64(y)
		for x := 0; x < p.width; x++ {
			vx, vy, vz := t.Apply(float64(x), fy, 0)
			v, ok := p.source.Sample(p.timepoint, p.level, p.interp, vx, vy, vz)
			i := row + x
			if ok {
				p.dest[i] = p.converter.Convert(v)
				if p.mask != nil {
					p.mask[i] = 1
				}
			} else {
				p.numInvalid.Add(1)
				if clear {
					p.dest[i] = 0
					if p.mask != nil {
						p.mask[i] = 0
					}
				}
			}
		}
	}
	return true
}

// emptyProjector is used when no sources are visible. It trivially
// completes, producing a cleared (or untouched) destination.
type emptyProjector struct {
	dest     *ARGBImage
	lastTime atomic.Int64
}

func (p *emptyProjector) Map(clearUntouchedTargetPixels bool) bool {
	start := time.Now()
	if clearUntouchedTargetPixels {
		p.dest.Clear(0)
	}
	p.lastTime.Store(int64(time.Since(start)))
	return true
}

func (p *emptyProjector) Cancel() {}
func (p *emptyProjector) IsValid() bool { return true }

func (p *emptyProjector) LastRenderTime() time.Duration {
	return time.Duration(p.lastTime.Load())
}

// compositeProjector renders all visible sources and combines them into
// the destination with an accumulate projector. With a single source it
// renders directly into the destination and skips accumulation.
type compositeProjector struct {
	sources    []*sourceProjector
	accumulate AccumulateProjector
	dest       *ARGBImage
	executor   RenderingExecutor
	numTasks   int

	canceled atomic.Bool
	valid    atomic.Bool
	lastTime atomic.Int64
}

// Map renders one pass. The per-source passes and the accumulation are
// split into numTasks row bands executed on the worker pool.
func (c *compositeProjector) Map(clearUntouchedTargetPixels bool) bool {
	start := time.Now()
	height := c.dest.Height()

	for _, sp := range c.sources {
		sp.numInvalid.Store(0)
		bands := rowBands(height, c.numTasks)
		work := make([]func(), len(bands))
		for i, b := range bands {
			y0, y1 := b[0], b[1]
			work[i] = func() {
				sp.renderRows(y0, y1, clearUntouchedTargetPixels)
			}
		}
		c.executor.ExecuteAll(work)
		if c.canceled.Load() {
			c.lastTime.Store(int64(time.Since(start)))
			return false
		}
	}

	if c.accumulate != nil {
		c.runAccumulate()
	}

	invalid := int64(0)
	for _, sp := range c.sources {
		invalid += sp.numInvalid.Load()
	}
	c.valid.Store(invalid == 0)
	c.lastTime.Store(int64(time.Since(start)))
	return !c.canceled.Load()
}

// runAccumulate combines the per-source scratch images into the
// destination, in parallel row bands.
func (c *compositeProjector) runAccumulate() {
	images := make([][]uint32, len(c.sources))
	masks := make([][]byte, len(c.sources))
	for i, sp := range c.sources {
		images[i] = sp.dest
		masks[i] = sp.mask
	}
	dest := c.dest.Pix()
	width := c.dest.Width()

	bands := rowBands(c.dest.Height(), c.numTasks)
	work := make([]func(), len(bands))
	for i, b := range bands {
		from, to := b[0]*width, b[1]*width
		work[i] = func() {
			c.accumulate.Accumulate(images, masks, dest, from, to)
		}
	}
	c.executor.ExecuteAll(work)
}

// Cancel requests the in-flight Map to abort. Idempotent, safe to call
// concurrently with Map.
func (c *compositeProjector) Cancel() {
	// All source projectors share this flag.
	c.canceled.Store(true)
}

// IsValid reports whether the last pass sampled only available data.
func (c *compositeProjector) IsValid() bool {
	return c.valid.Load()
}

// LastRenderTime returns the wall time of the last Map.
func (c *compositeProjector) LastRenderTime() time.Duration {
	return time.Duration(c.lastTime.Load())
}

// rowBands splits height rows into at most n contiguous bands.
func rowBands(height, n int) [][2]int {
	if n < 1 {
		n = 1
	}
	if n > height {
		n = height
	}
	bands := make([][2]int, 0, n)
	for i := 0; i < n; i++ {
		y0 := height * i / n
		y1 := height * (i + 1) / n
		if y1 > y0 {
			bands = append(bands, [2]int{y0, y1})
		}
	}
	return bands
}
