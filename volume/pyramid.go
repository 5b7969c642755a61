package volume

import "math"

// Pyramid holds pre-computed downscaled versions of a volume.
//
// Level 0 is the original full-resolution volume. Each further level
// halves every dimension until the largest dimension reaches 1 voxel,
// or maxLevels is hit.
type Pyramid struct {
	levels []*Volume
}

// BuildPyramid creates a pyramid from the source volume, downsampling
// with a 2x2x2 box filter. The source becomes level 0 and is not
// copied. maxLevels <= 0 means as many levels as the dimensions allow.
//
// Returns nil if src is nil.
func BuildPyramid(src *Volume, maxLevels int) *Pyramid {
	if src == nil {
		return nil
	}

	w, h, d := src.Bounds()
	maxDim := max(w, max(h, d))
	numLevels := 1 + int(math.Floor(math.Log2(float64(maxDim))))
	if maxLevels > 0 && numLevels > maxLevels {
		numLevels = maxLevels
	}

	p := &Pyramid{levels: make([]*Volume, numLevels)}
	p.levels[0] = src
	for i := 1; i < numLevels; i++ {
		p.levels[i] = downsample(p.levels[i-1])
	}
	return p
}

// downsample creates a half-size version of src using a box filter,
// averaging 2x2x2 voxels into 1 (handling odd dimensions by clamping).
func downsample(src *Volume) *Volume {
	srcW, srcH, srcD := src.Bounds()
	dstW := max(1, srcW/2)
	dstH := max(1, srcH/2)
	dstD := max(1, srcD/2)

	dst, _ := NewVolume(dstW, dstH, dstD)
	for dz := 0; dz < dstD; dz++ {
		sz := dz * 2
		for dy := 0; dy < dstH; dy++ {
			sy := dy * 2
			for dx := 0; dx < dstW; dx++ {
				sx := dx * 2

				var sum uint32
				for oz := 0; oz < 2; oz++ {
					for oy := 0; oy < 2; oy++ {
						for ox := 0; ox < 2; ox++ {
							sum += uint32(src.At(min(sx+ox, srcW-1), min(sy+oy, srcH-1), min(sz+oz, srcD-1)))
						}
					}
				}
				dst.Set(dx, dy, dz, uint16(sum/8))
			}
		}
	}
	return dst
}

// Level returns the volume at the given level, or nil if out of range.
func (p *Pyramid) Level(n int) *Volume {
	if p == nil || n < 0 || n >= len(p.levels) {
		return nil
	}
	return p.levels[n]
}

// NumLevels returns the number of levels in the pyramid.
func (p *Pyramid) NumLevels() int {
	if p == nil {
		return 0
	}
	return len(p.levels)
}
