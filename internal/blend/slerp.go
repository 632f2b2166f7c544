// Package blend combines decoded poses: two-way and additive slerp, pose
// parameter grids, sequence layers and world-space blends.
package blend

import (
	"math"

	"studio-pose/internal/mathutil"
	"studio-pose/internal/pose"
	"studio-pose/internal/skeleton"
	"studio-pose/internal/studio"
)

// SlerpBones blends p2 into p1 by s, scaled per bone by the sequence's bone
// weights. s <= 0 leaves p1 untouched; bones whose weight reaches 1 take p2
// outright. Delta sequences add p2 on top of p1 instead; world-space
// sequences blend model-space orientations, with scratch matrices
// allocated per call; a Setup draws them from its arena instead.
func SlerpBones(skel *studio.Skeleton, seq *studio.Sequence, p1, p2 *pose.Pose, s float64, mask studio.BoneFlags) {
	slerpBones(skel, seq, p1, p2, s, mask, nil)
}

// worldScratch is what a world-space blend builds its matrices with.
type worldScratch struct {
	eval  *skeleton.Evaluator
	arena *pose.Arena
}

func slerpBones(skel *studio.Skeleton, seq *studio.Sequence, p1, p2 *pose.Pose, s float64, mask studio.BoneFlags, ws *worldScratch) {
	if s <= 0 {
		return
	}
	s = math.Min(s, 1)

	switch {
	case seq.Flags&studio.SeqDelta != 0:
		addBones(skel, seq, p1, p2, s, mask)
	case seq.Flags&studio.SeqWorldSpace != 0:
		if ws == nil {
			ws = &worldScratch{eval: skeleton.NewEvaluator(skel), arena: pose.NewArena(skel.NumBones(), 3)}
		}
		worldSpaceSlerp(skel, seq, p1, p2, s, mask, ws)
	default:
		for i := range skel.Bones {
			if !skel.InMask(i, mask) {
				continue
			}
			if s2 := s * seq.Weight(i); s2 > 0 {
				slerpBone(skel, p1, p2, i, s2)
			}
		}
	}
}

// blendBones is the plain two-way blend used between grid samples of seq:
// no additive composition, and bone weights only select which bones blend.
func blendBones(skel *studio.Skeleton, seq *studio.Sequence, p1, p2 *pose.Pose, s float64, mask studio.BoneFlags) {
	if s <= 0 {
		return
	}
	s = math.Min(s, 1)
	for i := range skel.Bones {
		if skel.InMask(i, mask) && seq.Weight(i) > 0 {
			slerpBone(skel, p1, p2, i, s)
		}
	}
}

func slerpBone(skel *studio.Skeleton, p1, p2 *pose.Pose, i int, s2 float64) {
	if s2 >= 1 {
		p1.Q[i], p1.Pos[i] = p2.Q[i], p2.Pos[i]
		return
	}
	s1 := 1 - s2
	if skel.Bones[i].Flags&studio.BoneFixedAlignment != 0 {
		p1.Q[i] = mathutil.QuatSlerpNoAlign(p2.Q[i], p1.Q[i], s1).Normalize()
	} else {
		p1.Q[i] = mathutil.QuatSlerp(p2.Q[i], p1.Q[i], s1).Normalize()
	}
	p1.Pos[i] = p1.Pos[i].Scale(s1).Add(p2.Pos[i].Scale(s2))
}

// addBones layers the delta pose p2 onto p1. Pre deltas rotate in the
// parent's frame, post deltas in the bone's own frame.
func addBones(skel *studio.Skeleton, seq *studio.Sequence, p1, p2 *pose.Pose, s float64, mask studio.BoneFlags) {
	post := seq.Flags&studio.SeqPost != 0
	for i := range skel.Bones {
		if !skel.InMask(i, mask) {
			continue
		}
		s2 := s * seq.Weight(i)
		if s2 <= 0 {
			continue
		}
		if post {
			p1.Q[i] = mathutil.QuatMA(p1.Q[i], s2, p2.Q[i])
		} else {
			p1.Q[i] = mathutil.QuatSM(s2, p2.Q[i], p1.Q[i])
		}
		p1.Pos[i] = p1.Pos[i].MulAdd(p2.Pos[i], s2)
	}
}

// worldSpaceSlerp blends model-space orientations of p1 and p2 and solves
// each result back against its already blended parent. Bones are visited
// parent first, so a parent's new matrix is in place before its children
// read it.
func worldSpaceSlerp(skel *studio.Skeleton, seq *studio.Sequence, p1, p2 *pose.Pose, s float64, mask studio.BoneFlags, ws *worldScratch) {
	eval := ws.eval
	root := mathutil.Mat3x4Identity()

	mark := ws.arena.Mark()
	defer ws.arena.Release(mark)
	src1 := ws.arena.Matrices()
	src2 := ws.arena.Matrices()
	for i := range skel.Bones {
		if skel.InMask(i, mask) {
			eval.BuildChain(root, p1, i, src1)
			eval.BuildChain(root, p2, i, src2)
		}
	}
	blended := ws.arena.Matrices()

	for i := range skel.Bones {
		if !skel.InMask(i, mask) {
			continue
		}
		s2 := math.Min(s*seq.Weight(i), 1)
		if s2 <= 0 {
			continue
		}
		parent := skel.Bones[i].Parent
		if parent < 0 {
			slerpBone(skel, p1, p2, i, s2)
			continue
		}
		q1, _ := src1.World[i].QuatPos()
		q2, _ := src2.World[i].QuatPos()
		qw := mathutil.QuatSlerp(q1, q2, s2).Normalize()

		pq, _ := eval.BuildChain(root, p1, parent, blended).QuatPos()
		p1.Q[i] = pq.Conj().Mul(qw).Normalize()
		p1.Pos[i] = p1.Pos[i].Lerp(p2.Pos[i], s2)
	}
}
