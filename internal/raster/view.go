package raster

import (
	"fmt"
	"math"

	"studio-pose/internal/mathutil"
)

// View picks the orthographic axis a skeleton is drawn along.
type View int

const (
	Front View = iota // screen right +x, up +z, nearer -y
	Side              // screen right +y, up +z, nearer +x
	Top               // screen right +x, up +y, nearer +z
)

func (v View) String() string {
	switch v {
	case Front:
		return "front"
	case Side:
		return "side"
	case Top:
		return "top"
	}
	return fmt.Sprintf("View(%d)", int(v))
}

// ParseView accepts the names returned by String.
func ParseView(s string) (View, error) {
	for v := Front; v <= Top; v++ {
		if v.String() == s {
			return v, nil
		}
	}
	return 0, fmt.Errorf("raster: unknown view %q", s)
}

// Project maps a model-space point to view coordinates: right, up and depth.
func (v View) Project(p mathutil.Vec3) (x, y, depth float64) {
	switch v {
	case Side:
		return p[1], p[2], p[0]
	case Top:
		return p[0], p[1], p[2]
	}
	return p[0], p[2], -p[1]
}

// Frame maps view coordinates onto a square pixel grid.
type Frame struct {
	Size   int
	Scale  float64
	Center [2]float64
}

// Fit frames the view coordinates of pts with margin pixels on each side.
func Fit(v View, pts []mathutil.Vec3, size, margin int) Frame {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		x, y, _ := v.Project(p)
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	if len(pts) == 0 {
		minX, minY, maxX, maxY = 0, 0, 0, 0
	}
	span := math.Max(math.Max(maxX-minX, maxY-minY), 0.001)
	return Frame{
		Size:   size,
		Scale:  float64(size-2*margin) / span,
		Center: [2]float64{(minX + maxX) / 2, (minY + maxY) / 2},
	}
}

// Pixel returns the screen position of view coordinates; y grows downward.
func (f Frame) Pixel(x, y float64) (px, py float64) {
	half := float64(f.Size) / 2
	return (x-f.Center[0])*f.Scale + half, half - (y-f.Center[1])*f.Scale
}
