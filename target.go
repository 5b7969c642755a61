package multires

import (
	"image"
	"math"
	"sync"

	xdraw "golang.org/x/image/draw"
)

// RenderResult is an addressable destination image together with the
// viewer transform and screen scale it was rendered at. Full-frame
// results cover the whole canvas; interval results cover a cropped
// sub-rectangle and are patched into the current full-frame result.
type RenderResult interface {
	// Init prepares the result for rendering at the given screen image
	// size, reallocating the image only when the size changed.
	Init(width, height int)

	// Image returns the destination image.
	Image() *ARGBImage

	// ScaleFactor returns the screen scale the result was rendered at.
	ScaleFactor() float64

	// SetScaleFactor records the screen scale of the result.
	SetScaleFactor(scale float64)

	// ViewerTransform returns the viewer transform used to render the
	// result.
	ViewerTransform() Affine3D

	// SetViewerTransform records the viewer transform used to render
	// the result.
	SetViewerTransform(t Affine3D)

	// Offset returns the position of the image within the virtual full
	// screen image at the result's scale. Zero for full-frame results.
	Offset() image.Point

	// SetOffset records the crop offset for interval results.
	SetOffset(p image.Point)

	// Patch copies src into this result, clipped to targetInterval
	// (canvas coordinates). (tx, ty) is the paste origin in this
	// result's pixel coordinates.
	Patch(src RenderResult, targetInterval image.Rectangle, tx, ty int)

	// SetUpdated marks the result as changed since the display last
	// consumed it.
	SetUpdated()

	// TakeUpdated reports whether the result changed since the last
	// call, and clears the marker.
	TakeUpdated() bool
}

// DefaultRenderResult is the standard RenderResult backed by an
// ARGBImage.
//
// Thread safety: Init, Patch and the setters are called only by the
// painter thread. The updated marker is safe to consume concurrently.
type DefaultRenderResult struct {
	img       *ARGBImage
	scale     float64
	transform Affine3D
	offset    image.Point

	mu      sync.Mutex
	updated bool
}

// NewRenderResult creates an empty result. Init must be called before
// rendering into it.
func NewRenderResult() *DefaultRenderResult {
	return &DefaultRenderResult{scale: 1}
}

// screenImagePool recycles screen images across results; interval
// results are re-initialized to varying sizes on every batch.
var screenImagePool = newARGBPool(8)

// Init prepares the result for the given screen image size.
func (r *DefaultRenderResult) Init(width, height int) {
	if r.img == nil || r.img.Width() != width || r.img.Height() != height {
		screenImagePool.put(r.img)
		r.img = screenImagePool.get(width, height)
	}
	r.offset = image.Point{}
}

// Image returns the destination image. Nil before the first Init.
func (r *DefaultRenderResult) Image() *ARGBImage { return r.img }

// ScaleFactor returns the screen scale of the result.
func (r *DefaultRenderResult) ScaleFactor() float64 { return r.scale }

// SetScaleFactor records the screen scale of the result.
func (r *DefaultRenderResult) SetScaleFactor(scale float64) { r.scale = scale }

// ViewerTransform returns the viewer transform used for the result.
func (r *DefaultRenderResult) ViewerTransform() Affine3D { return r.transform }

// SetViewerTransform records the viewer transform used for the result.
func (r *DefaultRenderResult) SetViewerTransform(t Affine3D) { r.transform = t }

// Offset returns the crop offset of the result.
func (r *DefaultRenderResult) Offset() image.Point { return r.offset }

// SetOffset records the crop offset of the result.
func (r *DefaultRenderResult) SetOffset(p image.Point) { r.offset = p }

// Patch copies src into this result, clipped to targetInterval in
// canvas coordinates. The source may be at a coarser scale than this
// result; pixels are then replicated (nearest neighbor).
func (r *DefaultRenderResult) Patch(src RenderResult, targetInterval image.Rectangle, tx, ty int) {
	if r.img == nil || src.Image() == nil {
		return
	}
	dstScale := r.scale
	srcScale := src.ScaleFactor()
	srcImg := src.Image()
	srcOff := src.Offset()

	x0 := tx
	y0 := ty
	x1 := int(math.Ceil(float64(targetInterval.Max.X) * dstScale))
	y1 := int(math.Ceil(float64(targetInterval.Max.Y) * dstScale))
	x1 = min(x1, r.img.Width())
	y1 = min(y1, r.img.Height())

	for py := max(y0, 0); py < y1; py++ {
		cy := (float64(py) + 0.5) / dstScale
		sy := int(cy*srcScale) - srcOff.Y
		sy = min(max(sy, 0), srcImg.Height()-1)
		for px := max(x0, 0); px < x1; px++ {
			cx := (float64(px) + 0.5) / dstScale
			sx := int(cx*srcScale) - srcOff.X
			sx = min(max(sx, 0), srcImg.Width()-1)
			r.img.Set(px, py, srcImg.Get(sx, sy))
		}
	}
}

// SetUpdated marks the result as changed.
func (r *DefaultRenderResult) SetUpdated() {
	r.mu.Lock()
	r.updated = true
	r.mu.Unlock()
}

// TakeUpdated reports and clears the updated marker.
func (r *DefaultRenderResult) TakeUpdated() bool {
	r.mu.Lock()
	u := r.updated
	r.updated = false
	r.mu.Unlock()
	return u
}

// RenderTarget is the display surface the renderer publishes results
// to. Width and Height are the canvas size in pixels; the display
// scales published results up to that size.
type RenderTarget interface {
	// Width returns the canvas width in pixels.
	Width() int

	// Height returns the canvas height in pixels.
	Height() int

	// CreateRenderResult creates a new, empty render result.
	CreateRenderResult() RenderResult

	// ReusableRenderResult returns a result that is not currently
	// displayed and may be rendered into.
	ReusableRenderResult() RenderResult

	// SetRenderResult publishes a result for display.
	SetRenderResult(res RenderResult)
}

// BufferedTarget is a RenderTarget that keeps the most recently
// published result and recycles replaced results for reuse.
//
// Thread safety: safe for concurrent use. The painter thread publishes
// while the display goroutine consumes via DisplayedResult.
type BufferedTarget struct {
	mu        sync.Mutex
	width     int
	height    int
	displayed RenderResult
	spare     []RenderResult
}

// NewBufferedTarget creates a target with the given canvas size.
func NewBufferedTarget(width, height int) *BufferedTarget {
	return &BufferedTarget{width: width, height: height}
}

// Width returns the canvas width in pixels.
func (t *BufferedTarget) Width() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.width
}

// Height returns the canvas height in pixels.
func (t *BufferedTarget) Height() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.height
}

// SetSize changes the canvas size. The renderer observes the change on
// its next paint and starts a fresh frame.
func (t *BufferedTarget) SetSize(width, height int) {
	t.mu.Lock()
	t.width = width
	t.height = height
	t.mu.Unlock()
}

// CreateRenderResult creates a new, empty render result.
func (t *BufferedTarget) CreateRenderResult() RenderResult {
	return NewRenderResult()
}

// ReusableRenderResult returns a recycled result or a new one.
func (t *BufferedTarget) ReusableRenderResult() RenderResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.spare); n > 0 {
		res := t.spare[n-1]
		t.spare = t.spare[:n-1]
		return res
	}
	return NewRenderResult()
}

// SetRenderResult publishes a result, recycling the replaced one.
func (t *BufferedTarget) SetRenderResult(res RenderResult) {
	t.mu.Lock()
	if t.displayed != nil && t.displayed != res {
		t.spare = append(t.spare, t.displayed)
	}
	t.displayed = res
	t.mu.Unlock()
}

// DisplayedResult returns the most recently published result, or nil.
func (t *BufferedTarget) DisplayedResult() RenderResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.displayed
}

// ScaleToCanvas scales a render result up to the canvas size, the
// operation the display performs when blitting a coarse result.
func ScaleToCanvas(res RenderResult, canvasW, canvasH int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, canvasW, canvasH))
	if res == nil || res.Image() == nil {
		return dst
	}
	src := res.Image().ToRGBA()
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}
