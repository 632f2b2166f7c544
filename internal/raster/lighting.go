package raster

import (
	"image/color"
	"math"

	"studio-pose/internal/mathutil"
)

// Light shades bone strokes as if they were lit cylinders.
type Light struct {
	Dir      mathutil.Vec3 // toward the light
	Ambient  float64
	Direct   float64
	Exposure float64
}

// DefaultLight returns a key light from the upper front right.
func DefaultLight() Light {
	return Light{
		Dir:      mathutil.Vec3{180, -260, 140}.Normalize(),
		Ambient:  0.55,
		Direct:   0.9,
		Exposure: 1.05,
	}
}

// Shade returns the lighting scalar for a bone pointing along dir. A
// cylinder facing the light broadside is brightest; one pointing at it
// catches only ambient light.
func (l *Light) Shade(dir mathutil.Vec3) float64 {
	d := dir.Normalize()
	if d.LenSqr() == 0 {
		return l.Ambient
	}
	c := d.Dot(l.Dir)
	return l.Ambient + l.Direct*math.Sqrt(math.Max(0, 1-c*c))
}

// Apply scales c by shade in linear light, tone maps and re-encodes sRGB.
func (l *Light) Apply(c color.NRGBA, shade float64) color.NRGBA {
	ch := func(v uint8) uint8 {
		lin := srgbToLinear[v] * shade * l.Exposure
		out := math.Pow(ACESTonemap(lin), invGamma)
		return uint8(math.Max(0, math.Min(255, out*255+0.5)))
	}
	return color.NRGBA{R: ch(c.R), G: ch(c.G), B: ch(c.B), A: c.A}
}

const invGamma = 1.0 / 2.2

// Precomputed sRGB-to-linear lookup table (256 entries).
var srgbToLinear [256]float64

func init() {
	for i := 0; i < 256; i++ {
		srgbToLinear[i] = math.Pow(float64(i)/255.0, 2.2)
	}
}

// ACESTonemap applies ACES Filmic tone mapping to a linear value.
func ACESTonemap(x float64) float64 {
	return (x * (2.51*x + 0.03)) / (x*(2.43*x+0.59) + 0.14)
}
