package studio

import "math"

// GridThreshold is the fraction below which a grid axis or blend weight is ignored.
const GridThreshold = 0.001

// LocalPoseParameter maps the normalized pose parameter driving axis of seq
// into the sequence's grid: it returns the cell index along that axis and
// the fraction within the cell, in [0, 1].
func LocalPoseParameter(skel *Skeleton, seq *Sequence, params []float64, axis int) (s float64, index int) {
	n := seq.Group[axis]
	if n <= 1 {
		return 0, 0
	}
	p := seq.Param[axis]
	if p < 0 || p >= len(skel.PoseParams) || p >= len(params) {
		return 0, 0
	}
	pp := skel.PoseParams[p]
	v := params[p]*(pp.End-pp.Start) + pp.Start

	if pp.Loop != 0 {
		wrap := (pp.Start+pp.End)/2 + pp.Loop/2
		shift := pp.Loop - wrap
		v -= pp.Loop * math.Floor((v+shift)/pp.Loop)
	}

	start, end := seq.ParamStart[axis], seq.ParamEnd[axis]
	if start == end {
		start, end = pp.Start, pp.End
	}
	if end != start {
		s = (v - start) / (end - start)
	}
	s = math.Max(0, math.Min(1, s))

	if n > 2 {
		index = int(s * float64(n-1))
		if index >= n-1 {
			index = n - 2
		}
		s = s*float64(n-1) - float64(index)
	}
	return s, index
}

// GridSample is one weighted grid animation.
type GridSample struct {
	Anim   int
	Weight float64
}

// SeqAnims returns the four corner animations of the current grid cell and
// their bilinear weights.
func SeqAnims(skel *Skeleton, seq *Sequence, params []float64) [4]GridSample {
	s0, i0 := LocalPoseParameter(skel, seq, params, 0)
	s1, i1 := LocalPoseParameter(skel, seq, params, 1)
	return [4]GridSample{
		{seq.Anim(i0, i1), (1 - s0) * (1 - s1)},
		{seq.Anim(i0+1, i1), s0 * (1 - s1)},
		{seq.Anim(i0, i1+1), (1 - s0) * s1},
		{seq.Anim(i0+1, i1+1), s0 * s1},
	}
}

// ThreeWayIndices splits the grid cell (i0, i1) into two triangles and
// returns the cell-relative corners of the triangle containing (s0, s1)
// with their barycentric weights. Cells with an even index sum are split
// along the (0,0)-(1,1) diagonal, odd cells along (1,0)-(0,1).
func ThreeWayIndices(i0, i1 int, s0, s1 float64) (corners [3][2]int, w [3]float64) {
	if (i0+i1)&1 == 0 {
		if s0 > s1 {
			corners = [3][2]int{{0, 0}, {1, 0}, {1, 1}}
			w[0], w[1] = 1-s0, s0-s1
		} else {
			corners = [3][2]int{{1, 1}, {0, 1}, {0, 0}}
			w[0], w[1] = s0, s1-s0
		}
	} else {
		if s0+s1 > 1 {
			corners = [3][2]int{{0, 1}, {1, 1}, {1, 0}}
			w[0], w[1] = 1-s0, s0+s1-1
		} else {
			corners = [3][2]int{{1, 0}, {0, 0}, {0, 1}}
			w[0], w[1] = s0, 1-s0-s1
		}
	}
	w[2] = 1 - w[0] - w[1]
	return corners, w
}

// CycleRate returns the weighted cycles per second of seq at params.
func CycleRate(p Provider, seq *Sequence, params []float64) float64 {
	var t float64
	for _, g := range SeqAnims(p.Skeleton(), seq, params) {
		if g.Weight <= 0 {
			continue
		}
		a, err := p.Animation(g.Anim)
		if err != nil {
			continue
		}
		t += a.CycleRate() * g.Weight
	}
	return t
}

// Duration returns the length of one cycle in seconds, or 0 for a static sequence.
func Duration(p Provider, seq *Sequence, params []float64) float64 {
	cps := CycleRate(p, seq, params)
	if cps == 0 {
		return 0
	}
	return 1 / cps
}
