package volume

import (
	"math"

	"github.com/gogpu/multires"
)

// PyramidSource exposes a Pyramid as a multires.Source. Its data is
// fully resident in memory, so samples of existing levels are always
// valid.
type PyramidSource struct {
	name    string
	pyramid *Pyramid

	// baseTransform maps level-0 voxel coordinates to global
	// coordinates (e.g. the anisotropic calibration of the dataset).
	baseTransform multires.Affine3D
}

// NewPyramidSource creates a source over the given pyramid.
// baseTransform maps level-0 voxel coordinates to global coordinates.
func NewPyramidSource(name string, p *Pyramid, baseTransform multires.Affine3D) *PyramidSource {
	return &PyramidSource{
		name:          name,
		pyramid:       p,
		baseTransform: baseTransform,
	}
}

// Name returns the source name.
func (s *PyramidSource) Name() string { return s.name }

// IsPresent reports whether data exists for the timepoint. A
// PyramidSource holds one volume for all timepoints.
func (s *PyramidSource) IsPresent(timepoint int) bool {
	return timepoint >= 0
}

// NumMipmapLevels returns the number of pyramid levels.
func (s *PyramidSource) NumMipmapLevels() int {
	return s.pyramid.NumLevels()
}

// SourceTransform maps voxel coordinates of the given level to global
// coordinates. Level l voxels are 2^l times coarser than level 0.
func (s *PyramidSource) SourceTransform(_, level int) multires.Affine3D {
	f := math.Pow(2, float64(level))
	return s.baseTransform.Mul(multires.UniformScale3D(f))
}

// Sample reads the value at voxel coordinates of the given level.
// In-memory data is always available, so ok is true for every level in
// range; an out-of-range level yields ok = false.
func (s *PyramidSource) Sample(_, level int, method multires.Interpolation, x, y, z float64) (float64, bool) {
	vol := s.pyramid.Level(level)
	if vol == nil {
		return 0, false
	}
	return vol.Sample(method, x, y, z), true
}
