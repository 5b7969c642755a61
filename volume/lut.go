package volume

import (
	"github.com/lucasb-eyer/go-colorful"

	"github.com/gogpu/multires"
)

// GrayConverter maps intensity values linearly to opaque gray ARGB.
type GrayConverter struct {
	// Min and Max bound the displayed intensity range. Values outside
	// are clamped.
	Min, Max float64
}

// Convert maps a value to an opaque gray ARGB word.
func (c GrayConverter) Convert(value float64) uint32 {
	t := normalize(value, c.Min, c.Max)
	g := uint8(t*255 + 0.5)
	return multires.PackARGB(0xff, g, g, g)
}

// RampConverter maps intensity values to a perceptual color ramp
// between two colors, blended in Luv space. The ramp is precomputed
// into a 256-entry lookup table.
type RampConverter struct {
	min, max float64
	lut      [256]uint32
}

// NewRampConverter creates a converter ramping from the color named by
// lowHex to the color named by highHex (e.g. "#000000" to "#5ec1a2")
// over the intensity range [min, max].
func NewRampConverter(lowHex, highHex string, min, max float64) (*RampConverter, error) {
	low, err := colorful.Hex(lowHex)
	if err != nil {
		return nil, err
	}
	high, err := colorful.Hex(highHex)
	if err != nil {
		return nil, err
	}

	c := &RampConverter{min: min, max: max}
	for i := range c.lut {
		t := float64(i) / 255
		r, g, b := low.BlendLuv(high, t).Clamped().RGB255()
		c.lut[i] = multires.PackARGB(0xff, r, g, b)
	}
	return c, nil
}

// Convert maps a value to the precomputed ramp.
func (c *RampConverter) Convert(value float64) uint32 {
	t := normalize(value, c.min, c.max)
	return c.lut[int(t*255+0.5)]
}

// normalize maps value into [0, 1] over [min, max], clamping.
func normalize(value, min, max float64) float64 {
	if max <= min {
		return 0
	}
	t := (value - min) / (max - min)
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
