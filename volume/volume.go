// Package volume provides in-memory multi-resolution image volumes:
// pyramid construction by box-filter downsampling, nearest and
// trilinear sampling, and intensity-to-ARGB converters.
package volume

import (
	"errors"
	"math"

	"github.com/gogpu/multires"
)

// Common errors for volume operations.
var (
	// ErrInvalidDimensions is returned when a dimension is non-positive.
	ErrInvalidDimensions = errors.New("volume: invalid dimensions")

	// ErrDataSize is returned when the provided data does not match the
	// dimensions.
	ErrDataSize = errors.New("volume: data size does not match dimensions")
)

// Volume is a dense 3D image of uint16 voxels in x-fastest order.
type Volume struct {
	width  int
	height int
	depth  int
	data   []uint16
}

// NewVolume creates a zero-filled volume with the given dimensions.
func NewVolume(width, height, depth int) (*Volume, error) {
	if width <= 0 || height <= 0 || depth <= 0 {
		return nil, ErrInvalidDimensions
	}
	return &Volume{
		width:  width,
		height: height,
		depth:  depth,
		data:   make([]uint16, width*height*depth),
	}, nil
}

// FromRaw creates a volume over existing data without copying.
func FromRaw(data []uint16, width, height, depth int) (*Volume, error) {
	if width <= 0 || height <= 0 || depth <= 0 {
		return nil, ErrInvalidDimensions
	}
	if len(data) != width*height*depth {
		return nil, ErrDataSize
	}
	return &Volume{
		width:  width,
		height: height,
		depth:  depth,
		data:   data,
	}, nil
}

// Bounds returns the volume dimensions.
func (v *Volume) Bounds() (width, height, depth int) {
	return v.width, v.height, v.depth
}

// Data returns the raw voxel data in x-fastest order.
func (v *Volume) Data() []uint16 {
	return v.data
}

// At returns the voxel at (x, y, z). Out-of-bounds coordinates are
// clamped to the edge.
func (v *Volume) At(x, y, z int) uint16 {
	x = min(max(x, 0), v.width-1)
	y = min(max(y, 0), v.height-1)
	z = min(max(z, 0), v.depth-1)
	return v.data[(z*v.height+y)*v.width+x]
}

// Set sets the voxel at (x, y, z). Out-of-bounds coordinates are
// silently ignored.
func (v *Volume) Set(x, y, z int, value uint16) {
	if x < 0 || x >= v.width || y < 0 || y >= v.height || z < 0 || z >= v.depth {
		return
	}
	v.data[(z*v.height+y)*v.width+x] = value
}

// Sample samples the volume at continuous voxel coordinates using the
// given interpolation method.
func (v *Volume) Sample(method multires.Interpolation, x, y, z float64) float64 {
	switch method {
	case multires.NLinear:
		return v.sampleTrilinear(x, y, z)
	default:
		return v.sampleNearest(x, y, z)
	}
}

// sampleNearest selects the closest voxel.
func (v *Volume) sampleNearest(x, y, z float64) float64 {
	return float64(v.At(int(math.Round(x)), int(math.Round(y)), int(math.Round(z))))
}

// sampleTrilinear interpolates linearly between the 8 neighboring
// voxels.
func (v *Volume) sampleTrilinear(x, y, z float64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	z0 := int(math.Floor(z))
	fx := x - float64(x0)
	fy := y - float64(y0)
	fz := z - float64(z0)

	c000 := float64(v.At(x0, y0, z0))
	c100 := float64(v.At(x0+1, y0, z0))
	c010 := float64(v.At(x0, y0+1, z0))
	c110 := float64(v.At(x0+1, y0+1, z0))
	c001 := float64(v.At(x0, y0, z0+1))
	c101 := float64(v.At(x0+1, y0, z0+1))
	c011 := float64(v.At(x0, y0+1, z0+1))
	c111 := float64(v.At(x0+1, y0+1, z0+1))

	c00 := c000 + (c100-c000)*fx
	c10 := c010 + (c110-c010)*fx
	c01 := c001 + (c101-c001)*fx
	c11 := c011 + (c111-c011)*fx

	c0 := c00 + (c10-c00)*fy
	c1 := c01 + (c11-c01)*fy

	return c0 + (c1-c0)*fz
}
