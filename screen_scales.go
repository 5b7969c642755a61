package multires

import (
	"image"
	"math"
)

// screenScale describes one rendering resolution. scale is the ratio of
// screen image pixels to canvas pixels, in (0, 1].
type screenScale struct {
	scale  float64
	width  int
	height int

	// scaleTransform maps canvas coordinates to screen image
	// coordinates (diagonal scale).
	scaleTransform Affine3D
}

// estimatedRenderNanos returns the predicted render time of a full
// frame at this scale, given a per-pixel time estimate.
func (s *screenScale) estimatedRenderNanos(nanosPerPixel float64) float64 {
	return nanosPerPixel * float64(s.width) * float64(s.height)
}

// screenScales is the ordered table of screen scales (index 0 = finest)
// together with the pending dirty intervals for interval mode.
//
// Thread safety: none. All methods are called under the renderer mutex.
type screenScales struct {
	factors           []float64
	targetRenderNanos float64

	width  int
	height int
	scales []screenScale

	// pending dirty intervals in canvas coordinates, drained by
	// pullIntervalRenderData.
	pending []image.Rectangle

	// lastPulled is the target interval of the most recent pull. Finer
	// re-render iterations of the same interval pull again with an
	// empty pending set and re-use it.
	lastPulled image.Rectangle
}

func newScreenScales(factors []float64, targetRenderNanos float64) *screenScales {
	return &screenScales{
		factors:           factors,
		targetRenderNanos: targetRenderNanos,
		scales:            make([]screenScale, len(factors)),
	}
}

func (ss *screenScales) size() int {
	return len(ss.scales)
}

func (ss *screenScales) get(i int) *screenScale {
	return &ss.scales[i]
}

// checkResize rebuilds the scale table if the canvas size changed,
// clearing pending intervals. Returns true iff it changed.
func (ss *screenScales) checkResize(width, height int) bool {
	if width == ss.width && height == ss.height {
		return false
	}
	ss.width = width
	ss.height = height
	for i, f := range ss.factors {
		ss.scales[i] = screenScale{
			scale:          f,
			width:          int(math.Ceil(float64(width) * f)),
			height:         int(math.Ceil(float64(height) * f)),
			scaleTransform: Scale3D(f, f, 1),
		}
	}
	ss.pending = ss.pending[:0]
	ss.lastPulled = image.Rectangle{}
	return true
}

// suggestScreenScale returns the smallest (finest) index whose
// estimated render time fits the target, or the coarsest index if none
// fits.
func (ss *screenScales) suggestScreenScale(nanosPerPixel float64) int {
	for i := range ss.scales {
		if ss.scales[i].estimatedRenderNanos(nanosPerPixel) <= ss.targetRenderNanos {
			return i
		}
	}
	return len(ss.scales) - 1
}

// suggestIntervalScreenScale is like suggestScreenScale, constrained to
// indices >= currentScreenScaleIndex: intervals never render at a finer
// scale than the full frame they are patched into.
func (ss *screenScales) suggestIntervalScreenScale(nanosPerPixel float64, currentScreenScaleIndex int) int {
	for i := max(currentScreenScaleIndex, 0); i < len(ss.scales); i++ {
		if ss.scales[i].estimatedRenderNanos(nanosPerPixel) <= ss.targetRenderNanos {
			return i
		}
	}
	return len(ss.scales) - 1
}

// requestInterval adds a canvas-space interval to the pending set.
func (ss *screenScales) requestInterval(interval image.Rectangle) {
	ss.pending = append(ss.pending, interval)
}

// clearRequestedIntervals drops all pending intervals. Called on
// full-frame requests, which obsolete interval requests.
func (ss *screenScales) clearRequestedIntervals() {
	ss.pending = ss.pending[:0]
}

// hasRequestedIntervals reports whether dirty intervals are pending.
func (ss *screenScales) hasRequestedIntervals() bool {
	return len(ss.pending) > 0
}

// intervalRenderData is the pulled, consolidated work unit for one
// interval rendering pass.
type intervalRenderData struct {
	ss *screenScales

	// targetInterval is the bounding box of the drained dirty
	// intervals, clipped to the canvas, in canvas coordinates.
	targetInterval image.Rectangle

	// scaleIndex and scale describe the interval screen scale.
	scaleIndex int
	scale      float64

	// offsetX, offsetY is the crop origin of the interval image within
	// the virtual full screen image at the interval scale.
	offsetX int
	offsetY int

	// width, height is the size of the interval render image.
	width  int
	height int

	// tx, ty is the paste origin into the full-frame render result, in
	// pixels at the full frame's scale.
	tx int
	ty int
}

// reRequest puts the target interval back into the pending set, so a
// cancelled or incomplete interval pass is not lost.
func (d *intervalRenderData) reRequest() {
	d.ss.requestInterval(d.targetInterval)
}

// pullIntervalRenderData drains the pending intervals into a work unit
// for rendering at intervalScaleIndex, to be patched into the current
// full frame at baseScaleIndex. With no pending intervals (finer
// iteration of a previous pull) the previous target interval is reused.
func (ss *screenScales) pullIntervalRenderData(intervalScaleIndex, baseScaleIndex int) *intervalRenderData {
	bbox := ss.lastPulled
	if len(ss.pending) > 0 {
		bbox = ss.pending[0]
		for _, r := range ss.pending[1:] {
			bbox = bbox.Union(r)
		}
		ss.pending = ss.pending[:0]
	}
	bbox = bbox.Intersect(image.Rect(0, 0, ss.width, ss.height))
	ss.lastPulled = bbox

	if baseScaleIndex < 0 || baseScaleIndex >= len(ss.scales) {
		baseScaleIndex = intervalScaleIndex
	}
	is := &ss.scales[intervalScaleIndex]
	base := &ss.scales[baseScaleIndex]

	x0, y0, x1, y1 := scaledBounds(bbox, is.scale, is.width, is.height)
	tx, ty, _, _ := scaledBounds(bbox, base.scale, base.width, base.height)

	return &intervalRenderData{
		ss:             ss,
		targetInterval: bbox,
		scaleIndex:     intervalScaleIndex,
		scale:          is.scale,
		offsetX:        x0,
		offsetY:        y0,
		width:          max(x1-x0, 1),
		height:         max(y1-y0, 1),
		tx:             tx,
		ty:             ty,
	}
}

// scaledBounds maps a canvas rectangle to pixel bounds at the given
// scale, clamped to the screen image size.
func scaledBounds(r image.Rectangle, scale float64, width, height int) (x0, y0, x1, y1 int) {
	x0 = max(int(math.Floor(float64(r.Min.X)*scale)), 0)
	y0 = max(int(math.Floor(float64(r.Min.Y)*scale)), 0)
	x1 = min(int(math.Ceil(float64(r.Max.X)*scale)), width)
	y1 = min(int(math.Ceil(float64(r.Max.Y)*scale)), height)
	return x0, y0, x1, y1
}
