package anim

import (
	"math"

	"studio-pose/internal/mathutil"
	"studio-pose/internal/pose"
	"studio-pose/internal/studio"
)

// zeroFrameSpline locates frame within the snapshot series.
func zeroFrameSpline(z *studio.ZeroFrames, frame float64) (i0, i1, i2 int, s float64) {
	if z.Count == 1 {
		return 0, 0, 0, 0
	}
	index := int(frame / float64(z.Span))
	if index >= z.Count-1 {
		index = z.Count - 2
		s = 1
	} else {
		s = (frame - float64(index*z.Span)) / float64(z.Span)
		s = math.Max(0, math.Min(1, s))
	}
	i0 = max(index-1, 0)
	i1 = index
	i2 = min(index+1, z.Count-1)
	return i0, i1, i2, s
}

// BlendZeroFrames blends the snapshot data of a at frame into p with weight
// w for every bone with positive weight under mask.
func BlendZeroFrames(skel *studio.Skeleton, a *studio.Animation, frame float64, w float64, weights []float64, mask studio.BoneFlags, p *pose.Pose) {
	z := a.ZeroFrames
	if z == nil || w <= 0 {
		return
	}
	i0, i1, i2, s := zeroFrameSpline(z, frame)
	for j, b := range z.Bones {
		if !wanted(skel, j, weights, mask) {
			continue
		}
		if len(b.Pos) == z.Count {
			var v mathutil.Vec3
			if z.Count == 1 {
				v = b.Pos[0]
			} else {
				v = mathutil.HermiteSplineVec3(b.Pos[i0], b.Pos[i1], b.Pos[i2], s)
			}
			p.Pos[j] = p.Pos[j].Lerp(v, w)
		}
		if len(b.Rot) == z.Count {
			var q mathutil.Quat
			if z.Count == 1 {
				q = b.Rot[0]
			} else {
				q = mathutil.HermiteSplineQuat(b.Rot[i0], b.Rot[i1], b.Rot[i2], s)
			}
			p.Q[j] = mathutil.QuatBlend(p.Q[j], q, w)
		}
	}
}

func wanted(skel *studio.Skeleton, i int, weights []float64, mask studio.BoneFlags) bool {
	if weights != nil && weights[i] <= 0 {
		return false
	}
	return skel.InMask(i, mask)
}
