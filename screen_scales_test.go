package multires

import (
	"image"
	"testing"
)

// TestCheckResize verifies table construction and change detection.
func TestCheckResize(t *testing.T) {
	ss := newScreenScales([]float64{1, 0.5, 0.25}, 30e6)

	if !ss.checkResize(800, 600) {
		t.Fatal("first resize not reported")
	}
	if ss.checkResize(800, 600) {
		t.Error("unchanged size reported as resize")
	}

	tests := []struct {
		index  int
		width  int
		height int
	}{
		{0, 800, 600},
		{1, 400, 300},
		{2, 200, 150},
	}
	for _, tt := range tests {
		s := ss.get(tt.index)
		if s.width != tt.width || s.height != tt.height {
			t.Errorf("scale %d: got %dx%d, want %dx%d",
				tt.index, s.width, s.height, tt.width, tt.height)
		}
	}

	// Odd sizes round up.
	ss.checkResize(801, 601)
	if s := ss.get(1); s.width != 401 || s.height != 301 {
		t.Errorf("rounding: got %dx%d, want 401x301", s.width, s.height)
	}
}

// TestCheckResizeClearsIntervals verifies a resize drops pending
// intervals.
func TestCheckResizeClearsIntervals(t *testing.T) {
	ss := newScreenScales([]float64{1}, 30e6)
	ss.checkResize(100, 100)
	ss.requestInterval(image.Rect(0, 0, 10, 10))

	ss.checkResize(200, 200)
	if ss.hasRequestedIntervals() {
		t.Error("pending intervals survived a resize")
	}
}

// TestSuggestScreenScale verifies the budget-driven scale choice.
func TestSuggestScreenScale(t *testing.T) {
	ss := newScreenScales([]float64{1, 0.5, 0.25}, 30e6)
	ss.checkResize(1000, 1000)

	tests := []struct {
		name         string
		nanosPerPixel float64
		want         int
	}{
		// 1000*1000*10 = 10e6 <= 30e6.
		{"fast rendering picks finest", 10, 0},
		// Finest needs 60e6, half scale 15e6.
		{"medium picks half scale", 60, 1},
		// Quarter scale: 62500 px * 400 = 25e6.
		{"slow picks quarter scale", 400, 2},
		// Nothing fits: the coarsest is chosen anyway.
		{"overload picks coarsest", 1e6, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ss.suggestScreenScale(tt.nanosPerPixel); got != tt.want {
				t.Errorf("suggestScreenScale(%v) = %d, want %d", tt.nanosPerPixel, got, tt.want)
			}
		})
	}
}

// TestSuggestIntervalScreenScale verifies intervals never render finer
// than the current full frame.
func TestSuggestIntervalScreenScale(t *testing.T) {
	ss := newScreenScales([]float64{1, 0.5, 0.25}, 30e6)
	ss.checkResize(1000, 1000)

	// Fast rendering, but the base frame is at index 1.
	if got := ss.suggestIntervalScreenScale(10, 1); got != 1 {
		t.Errorf("got %d, want 1", got)
	}
	// Initial state (-1) behaves like no constraint.
	if got := ss.suggestIntervalScreenScale(10, -1); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

// TestPullIntervalRenderData verifies draining, bounding box union and
// the coordinate conversions.
func TestPullIntervalRenderData(t *testing.T) {
	ss := newScreenScales([]float64{1, 0.5}, 30e6)
	ss.checkResize(1000, 800)

	ss.requestInterval(image.Rect(100, 100, 200, 200))
	ss.requestInterval(image.Rect(150, 50, 250, 120))

	data := ss.pullIntervalRenderData(1, 0)
	if ss.hasRequestedIntervals() {
		t.Error("pull left intervals pending")
	}

	wantTarget := image.Rect(100, 50, 250, 200)
	if data.targetInterval != wantTarget {
		t.Errorf("targetInterval: got %v, want %v", data.targetInterval, wantTarget)
	}
	if data.scale != 0.5 {
		t.Errorf("scale: got %v, want 0.5", data.scale)
	}
	if data.offsetX != 50 || data.offsetY != 25 {
		t.Errorf("offset: got (%d, %d), want (50, 25)", data.offsetX, data.offsetY)
	}
	if data.width != 75 || data.height != 75 {
		t.Errorf("size: got %dx%d, want 75x75", data.width, data.height)
	}
	// Paste offset at the base scale (1.0).
	if data.tx != 100 || data.ty != 50 {
		t.Errorf("paste offset: got (%d, %d), want (100, 50)", data.tx, data.ty)
	}
}

// TestPullIntervalRenderDataReuse verifies that a pull with an empty
// pending set (finer iteration) reuses the previous target interval.
func TestPullIntervalRenderDataReuse(t *testing.T) {
	ss := newScreenScales([]float64{1, 0.5}, 30e6)
	ss.checkResize(1000, 800)

	ss.requestInterval(image.Rect(100, 100, 200, 200))
	first := ss.pullIntervalRenderData(1, 0)
	second := ss.pullIntervalRenderData(0, 0)

	if second.targetInterval != first.targetInterval {
		t.Errorf("finer pull: got %v, want %v", second.targetInterval, first.targetInterval)
	}
	if second.scale != 1 {
		t.Errorf("finer pull scale: got %v, want 1", second.scale)
	}
}

// TestIntervalReRequest verifies a cancelled interval returns to the
// pending set.
func TestIntervalReRequest(t *testing.T) {
	ss := newScreenScales([]float64{1}, 30e6)
	ss.checkResize(500, 500)

	ss.requestInterval(image.Rect(10, 10, 20, 20))
	data := ss.pullIntervalRenderData(0, 0)
	if ss.hasRequestedIntervals() {
		t.Fatal("pending not drained")
	}

	data.reRequest()
	if !ss.hasRequestedIntervals() {
		t.Error("reRequest did not restore the interval")
	}
	again := ss.pullIntervalRenderData(0, 0)
	if again.targetInterval != data.targetInterval {
		t.Errorf("restored interval: got %v, want %v", again.targetInterval, data.targetInterval)
	}
}

// TestPullClipsToCanvas verifies intervals are clipped to the canvas.
func TestPullClipsToCanvas(t *testing.T) {
	ss := newScreenScales([]float64{1}, 30e6)
	ss.checkResize(100, 100)

	ss.requestInterval(image.Rect(-50, 90, 300, 300))
	data := ss.pullIntervalRenderData(0, 0)
	want := image.Rect(0, 90, 100, 100)
	if data.targetInterval != want {
		t.Errorf("clipped interval: got %v, want %v", data.targetInterval, want)
	}
}
