// Package raster draws debug views of posed skeletons.
package raster

import (
	"image"
	"image/color"
	"sort"

	xdraw "golang.org/x/image/draw"

	"studio-pose/internal/mathutil"
	"studio-pose/internal/pose"
	"studio-pose/internal/studio"
)

// Options control a skeleton render. Sizes are in output pixels; the
// canvas is Size*Supersample pixels square.
type Options struct {
	Size        int
	Supersample int
	View        View
	Margin      int

	BoneWidth   float64
	JointRadius float64
	BoneColor   color.NRGBA
	JointColor  color.NRGBA
	IKColor     color.NRGBA // bones of IK chains
	Light       Light

	Backdrop image.Image // scaled to fill the canvas, may be nil
}

func DefaultOptions() Options {
	return Options{
		Size:        256,
		Supersample: 2,
		View:        Front,
		Margin:      16,
		BoneWidth:   3,
		JointRadius: 3,
		BoneColor:   color.NRGBA{R: 200, G: 200, B: 210, A: 255},
		JointColor:  color.NRGBA{R: 240, G: 180, B: 60, A: 255},
		IKColor:     color.NRGBA{R: 90, G: 170, B: 240, A: 255},
		Light:       DefaultLight(),
	}
}

type segment struct {
	bone, parent int
	depth        float64
}

// RenderSkeleton draws every computed bone of m as a shaded stroke from its
// parent plus a joint disc, nearest on top.
func RenderSkeleton(skel *studio.Skeleton, m *pose.Matrices, opts Options) *image.NRGBA {
	ss := max(opts.Supersample, 1)
	size := opts.Size * ss
	fb := NewFrameBuffer(size, size)
	if opts.Backdrop != nil {
		xdraw.ApproxBiLinear.Scale(fb.Image(), fb.Image().Rect, opts.Backdrop, opts.Backdrop.Bounds(), xdraw.Src, nil)
	}

	var pts []mathutil.Vec3
	for i := range skel.Bones {
		if m.Computed.Has(i) {
			pts = append(pts, m.World[i].Position())
		}
	}
	if len(pts) == 0 {
		return fb.Image()
	}
	frame := Fit(opts.View, pts, size, opts.Margin*ss)

	inChain := make(map[int]bool)
	for _, c := range skel.IKChains {
		for _, l := range c.Links[1:] {
			inChain[l.Bone] = true
		}
	}

	var segs []segment
	for i, b := range skel.Bones {
		if !m.Computed.Has(i) {
			continue
		}
		_, _, d := opts.View.Project(m.World[i].Position())
		segs = append(segs, segment{bone: i, parent: b.Parent, depth: d})
	}
	sort.SliceStable(segs, func(a, b int) bool { return segs[a].depth < segs[b].depth })

	w := opts.BoneWidth * float64(ss)
	r := opts.JointRadius * float64(ss)
	for _, s := range segs {
		p := m.World[s.bone].Position()
		x, y, d := opts.View.Project(p)
		bx, by := frame.Pixel(x, y)
		if s.parent >= 0 && m.Computed.Has(s.parent) {
			q := m.World[s.parent].Position()
			qx, qy, qd := opts.View.Project(q)
			ax, ay := frame.Pixel(qx, qy)
			c := opts.BoneColor
			if inChain[s.bone] {
				c = opts.IKColor
			}
			c = opts.Light.Apply(c, opts.Light.Shade(p.Sub(q)))
			fb.Stroke(ax, ay, bx, by, w, c, (d+qd)/2)
		}
		fb.Disc(bx, by, r, opts.JointColor, d)
	}
	return fb.Image()
}
