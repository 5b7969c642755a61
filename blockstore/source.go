package blockstore

import (
	"math"

	"github.com/gogpu/multires"
	"github.com/gogpu/multires/volume"
)

// Geometry describes the block layout of one setup: the voxel
// dimensions of every mipmap level and the uniform block size.
type Geometry struct {
	Levels    [][3]int
	BlockSize [3]int
}

// blockLen returns the number of voxels per block.
func (g Geometry) blockLen() int {
	return g.BlockSize[0] * g.BlockSize[1] * g.BlockSize[2]
}

// CachedSource is a multires.Source reading blocks through a
// BlockCache. The default view blocks on missing data; VolatileView
// returns the non-blocking variant whose samples may be temporarily
// unavailable.
type CachedSource struct {
	name     string
	setup    int
	geom     Geometry
	cache    *BlockCache
	base     multires.Affine3D
	volatile bool
}

// NewCachedSource creates a blocking source over the cache.
// baseTransform maps level-0 voxel coordinates to global coordinates.
func NewCachedSource(name string, cache *BlockCache, setup int, geom Geometry, baseTransform multires.Affine3D) *CachedSource {
	return &CachedSource{
		name:  name,
		setup: setup,
		geom:  geom,
		cache: cache,
		base:  baseTransform,
	}
}

// VolatileView returns the volatile variant of the source: sampling
// never blocks, and samples from non-resident blocks report ok=false
// while the blocks are fetched asynchronously.
func (s *CachedSource) VolatileView() *CachedSource {
	v := *s
	v.volatile = true
	return &v
}

// SourceAndConverter pairs the source and its volatile view with a
// converter, ready to hand to the viewer state.
func (s *CachedSource) SourceAndConverter(conv multires.Converter) multires.SourceAndConverter {
	return multires.SourceAndConverter{
		Source:    s,
		Converter: conv,
		Volatile: &multires.SourceAndConverter{
			Source:    s.VolatileView(),
			Converter: conv,
		},
	}
}

// Name returns the source name.
func (s *CachedSource) Name() string { return s.name }

// IsPresent reports whether data exists for the timepoint.
func (s *CachedSource) IsPresent(timepoint int) bool {
	return timepoint >= 0
}

// NumMipmapLevels returns the number of levels.
func (s *CachedSource) NumMipmapLevels() int {
	return len(s.geom.Levels)
}

// SourceTransform maps voxel coordinates of the given level to global
// coordinates.
func (s *CachedSource) SourceTransform(_, level int) multires.Affine3D {
	f := math.Pow(2, float64(level))
	return s.base.Mul(multires.UniformScale3D(f))
}

// Sample reads the value at voxel coordinates of the given level. For
// the volatile view, ok is false while any needed block is not
// resident.
func (s *CachedSource) Sample(_, level int, method multires.Interpolation, x, y, z float64) (float64, bool) {
	if level < 0 || level >= len(s.geom.Levels) {
		return 0, false
	}
	if method == multires.NLinear {
		return s.sampleTrilinear(level, x, y, z)
	}
	v, ok := s.at(level, int(math.Round(x)), int(math.Round(y)), int(math.Round(z)))
	return float64(v), ok
}

func (s *CachedSource) sampleTrilinear(level int, x, y, z float64) (float64, bool) {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	z0 := int(math.Floor(z))
	fx := x - float64(x0)
	fy := y - float64(y0)
	fz := z - float64(z0)

	var c [8]float64
	i := 0
	for oz := 0; oz < 2; oz++ {
		for oy := 0; oy < 2; oy++ {
			for ox := 0; ox < 2; ox++ {
				v, ok := s.at(level, x0+ox, y0+oy, z0+oz)
				if !ok {
					return 0, false
				}
				c[i] = float64(v)
				i++
			}
		}
	}

	c00 := c[0] + (c[1]-c[0])*fx
	c10 := c[2] + (c[3]-c[2])*fx
	c01 := c[4] + (c[5]-c[4])*fx
	c11 := c[6] + (c[7]-c[6])*fx
	c0 := c00 + (c10-c00)*fy
	c1 := c01 + (c11-c01)*fy
	return c0 + (c1-c0)*fz, true
}

// at reads a single voxel, clamping coordinates to the level bounds.
func (s *CachedSource) at(level, x, y, z int) (uint16, bool) {
	dims := s.geom.Levels[level]
	x = min(max(x, 0), dims[0]-1)
	y = min(max(y, 0), dims[1]-1)
	z = min(max(z, 0), dims[2]-1)

	bs := s.geom.BlockSize
	key := Key{
		Setup: s.setup,
		Level: level,
		X:     x / bs[0],
		Y:     y / bs[1],
		Z:     z / bs[2],
	}

	var data []uint16
	if s.volatile {
		d, ok := s.cache.Get(key, s.geom.blockLen())
		if !ok {
			return 0, false
		}
		data = d
	} else {
		d, err := s.cache.GetBlocking(key, s.geom.blockLen())
		if err != nil {
			return 0, false
		}
		data = d
	}

	lx := x % bs[0]
	ly := y % bs[1]
	lz := z % bs[2]
	return data[(lz*bs[1]+ly)*bs[0]+lx], true
}

// BlockPutter is implemented by stores that accept block writes.
type BlockPutter interface {
	PutBlock(key Key, data []uint16) error
}

// WritePyramid splits every level of a pyramid into blocks and writes
// them to the store, returning the geometry needed to read them back
// through a CachedSource. Edge blocks are zero-padded to the full
// block size.
func WritePyramid(store BlockPutter, setup int, p *volume.Pyramid, blockSize [3]int) (Geometry, error) {
	geom := Geometry{BlockSize: blockSize}
	bw, bh, bd := blockSize[0], blockSize[1], blockSize[2]

	for level := 0; level < p.NumLevels(); level++ {
		vol := p.Level(level)
		w, h, d := vol.Bounds()
		geom.Levels = append(geom.Levels, [3]int{w, h, d})

		for bz := 0; bz*bd < d; bz++ {
			for by := 0; by*bh < h; by++ {
				for bx := 0; bx*bw < w; bx++ {
					data := make([]uint16, bw*bh*bd)
					for lz := 0; lz < bd; lz++ {
						for ly := 0; ly < bh; ly++ {
							for lx := 0; lx < bw; lx++ {
								x, y, z := bx*bw+lx, by*bh+ly, bz*bd+lz
								if x < w && y < h && z < d {
									data[(lz*bh+ly)*bw+lx] = vol.At(x, y, z)
								}
							}
						}
					}
					key := Key{Setup: setup, Level: level, X: bx, Y: by, Z: bz}
					if err := store.PutBlock(key, data); err != nil {
						return Geometry{}, err
					}
				}
			}
		}
	}
	return geom, nil
}
