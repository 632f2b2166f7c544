package raster

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
)

// FrameBuffer holds the rendering target as flat slices for cache locality.
// Shapes are rasterized with anti-aliasing and depth-tested per pixel;
// larger depth is nearer.
type FrameBuffer struct {
	Width  int
	Height int
	Color  []uint8   // non-premultiplied RGBA, len = W*H*4
	ZBuf   []float64 // depth per pixel, len = W*H, initialized to -inf

	z    *vector.Rasterizer
	mask *image.Alpha
}

// NewFrameBuffer allocates a transparent color buffer and -inf z-buffer.
func NewFrameBuffer(w, h int) *FrameBuffer {
	n := w * h
	zbuf := make([]float64, n)
	for i := range zbuf {
		zbuf[i] = math.Inf(-1)
	}
	return &FrameBuffer{
		Width:  w,
		Height: h,
		Color:  make([]uint8, n*4),
		ZBuf:   zbuf,
		z:      vector.NewRasterizer(w, h),
		mask:   image.NewAlpha(image.Rect(0, 0, w, h)),
	}
}

// Image wraps the color buffer without copying.
func (fb *FrameBuffer) Image() *image.NRGBA {
	return &image.NRGBA{Pix: fb.Color, Stride: fb.Width * 4, Rect: image.Rect(0, 0, fb.Width, fb.Height)}
}

// Stroke draws a segment of width w from a to b in screen space.
func (fb *FrameBuffer) Stroke(ax, ay, bx, by, w float64, c color.NRGBA, depth float64) {
	dx, dy := bx-ax, by-ay
	l := math.Hypot(dx, dy)
	if l < 1e-9 {
		return
	}
	nx, ny := -dy/l*w/2, dx/l*w/2
	pts := [4][2]float64{{ax + nx, ay + ny}, {bx + nx, by + ny}, {bx - nx, by - ny}, {ax - nx, ay - ny}}
	fb.fill(c, depth, func(z *vector.Rasterizer) {
		z.MoveTo(float32(pts[0][0]), float32(pts[0][1]))
		for _, p := range pts[1:] {
			z.LineTo(float32(p[0]), float32(p[1]))
		}
		z.ClosePath()
	}, bounds(pts[:]...))
}

// kappa places cubic control points for a quarter circle.
const kappa = 0.5522847498

// Disc draws a filled circle of radius r centered at (cx, cy).
func (fb *FrameBuffer) Disc(cx, cy, r float64, c color.NRGBA, depth float64) {
	if r <= 0 {
		return
	}
	k := r * kappa
	f := func(v float64) float32 { return float32(v) }
	fb.fill(c, depth, func(z *vector.Rasterizer) {
		z.MoveTo(f(cx+r), f(cy))
		z.CubeTo(f(cx+r), f(cy+k), f(cx+k), f(cy+r), f(cx), f(cy+r))
		z.CubeTo(f(cx-k), f(cy+r), f(cx-r), f(cy+k), f(cx-r), f(cy))
		z.CubeTo(f(cx-r), f(cy-k), f(cx-k), f(cy-r), f(cx), f(cy-r))
		z.CubeTo(f(cx+k), f(cy-r), f(cx+r), f(cy-k), f(cx+r), f(cy))
		z.ClosePath()
	}, bounds([2]float64{cx - r, cy - r}, [2]float64{cx + r, cy + r}))
}

func bounds(pts ...[2]float64) image.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX, maxX = math.Min(minX, p[0]), math.Max(maxX, p[0])
		minY, maxY = math.Min(minY, p[1]), math.Max(maxY, p[1])
	}
	return image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX))+1, int(math.Ceil(maxY))+1)
}

// fill rasterizes path into the coverage mask over r and composites c where
// the depth test passes. Reset restores DrawOp to Over, so Src is set after.
func (fb *FrameBuffer) fill(c color.NRGBA, depth float64, path func(z *vector.Rasterizer), r image.Rectangle) {
	r = r.Intersect(fb.mask.Rect)
	if r.Empty() {
		return
	}
	fb.z.Reset(fb.Width, fb.Height)
	fb.z.DrawOp = draw.Src
	path(fb.z)
	fb.z.Draw(fb.mask, r, image.Opaque, r.Min)

	sa := float64(c.A) / 255
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			cov := fb.mask.Pix[fb.mask.PixOffset(x, y)]
			if cov == 0 {
				continue
			}
			zi := y*fb.Width + x
			if depth < fb.ZBuf[zi] {
				continue
			}
			a := sa * float64(cov) / 255
			blendOver(fb.Color[zi*4:zi*4+4], c, a)
			if cov >= 128 {
				fb.ZBuf[zi] = depth
			}
		}
	}
}

// blendOver composites c with coverage a over the non-premultiplied pixel px.
func blendOver(px []uint8, c color.NRGBA, a float64) {
	da := float64(px[3]) / 255
	oa := a + da*(1-a)
	if oa <= 0 {
		return
	}
	mix := func(s, d uint8) uint8 {
		return uint8((float64(s)*a+float64(d)*da*(1-a))/oa + 0.5)
	}
	px[0] = mix(c.R, px[0])
	px[1] = mix(c.G, px[1])
	px[2] = mix(c.B, px[2])
	px[3] = uint8(oa*255 + 0.5)
}
