package multires

// Interpolation defines how sources are sampled between voxel centers.
type Interpolation uint8

const (
	// NearestNeighbor selects the closest voxel (no interpolation).
	// Fast but produces blocky results when scaling up.
	NearestNeighbor Interpolation = iota

	// NLinear performs linear interpolation between the 8 neighboring
	// voxels. Good balance between quality and performance.
	NLinear
)

// String returns a string representation of the interpolation method.
func (i Interpolation) String() string {
	switch i {
	case NearestNeighbor:
		return "NearestNeighbor"
	case NLinear:
		return "NLinear"
	default:
		return "Unknown"
	}
}

// Source provides access to one multi-resolution image volume. Mipmap
// level 0 is the full resolution; higher levels are coarser.
//
// Implementations must be safe for concurrent sampling from multiple
// rendering goroutines.
type Source interface {
	// Name returns a human-readable identifier for the source.
	Name() string

	// IsPresent reports whether the source has data for the timepoint.
	IsPresent(timepoint int) bool

	// NumMipmapLevels returns the number of resolution levels.
	NumMipmapLevels() int

	// SourceTransform returns the transform from voxel coordinates at
	// the given level to global coordinates.
	SourceTransform(timepoint, level int) Affine3D

	// Sample reads the value at voxel coordinates (x, y, z) of the
	// given level. For volatile sources, ok is false if the backing
	// data is not yet available; the returned value is then a best
	// effort substitute (or zero) and the rendering pass that used it
	// is not valid.
	Sample(timepoint, level int, method Interpolation, x, y, z float64) (value float64, ok bool)
}

// Converter maps raw sample values to packed ARGB colors.
type Converter interface {
	Convert(value float64) uint32
}

// SourceAndConverter pairs a source with its display converter. If
// Volatile is non-nil, it is a variant of the same source whose samples
// may be temporarily missing while blocks are fetched asynchronously;
// the renderer prefers it when configured with WithVolatile(true).
type SourceAndConverter struct {
	Source    Source
	Converter Converter
	Volatile  *SourceAndConverter
}

// ViewerState is an immutable snapshot of everything the renderer needs
// to know about the current view: the transform, the visible sources,
// the timepoint and the interpolation method.
//
// The renderer calls Snapshot once per new frame and holds the returned
// snapshot for the lifetime of that frame; implementations return a
// deep copy that later mutations of the live state cannot affect.
type ViewerState interface {
	// Snapshot returns an immutable copy of the state.
	Snapshot() ViewerState

	// ViewerTransform returns the transform from global coordinates to
	// canvas coordinates.
	ViewerTransform() Affine3D

	// VisibleAndPresentSources returns the sources that are visible
	// under the current display mode and present at the current
	// timepoint.
	VisibleAndPresentSources() []SourceAndConverter

	// BestMipMapLevel returns the mipmap level of the source that best
	// matches the given screen transform (viewer transform concatenated
	// with a screen scale transform).
	BestMipMapLevel(screenTransform Affine3D, soc SourceAndConverter) int

	// CurrentTimepoint returns the currently displayed timepoint.
	CurrentTimepoint() int

	// Interpolation returns the current interpolation method.
	Interpolation() Interpolation
}
