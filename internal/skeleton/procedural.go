package skeleton

import (
	"math"

	"studio-pose/internal/mathutil"
	"studio-pose/internal/pose"
	"studio-pose/internal/studio"
)

// minTriggerWeight is the summed trigger weight below which a QuatInterp
// bone snaps to its first trigger.
const minTriggerWeight = 0.001

func (e *Evaluator) setLocal(parent mathutil.Mat3x4, i int, q mathutil.Quat, pos mathutil.Vec3, m *pose.Matrices) {
	m.Set(i, mathutil.Mat3x4Mul(parent, mathutil.Mat3x4FromQuatPos(q, pos)))
	e.recomputed++
}

func (e *Evaluator) quatInterp(parent mathutil.Mat3x4, p *pose.Pose, i int, qi *studio.QuatInterp, m *pose.Matrices) {
	control := p.Q[qi.Control]

	var (
		total float64
		pos   mathutil.Vec3
		acc   mathutil.Quat
	)
	ref := qi.Triggers[0].Quat
	for _, t := range qi.Triggers {
		w := 1 - mathutil.QuatAngle(control, t.Trigger)*t.InvTolerance
		if w <= 0 {
			continue
		}
		total += w
		pos = pos.MulAdd(t.Pos, w)
		q := mathutil.QuatAlign(ref, t.Quat)
		for k := range acc {
			acc[k] += q[k] * w
		}
	}
	if total <= minTriggerWeight {
		t := qi.Triggers[0]
		e.setLocal(parent, i, t.Quat, t.Pos, m)
		return
	}
	e.setLocal(parent, i, acc.Normalize(), pos.Scale(1/total), m)
}

// axisInterp weights its six outputs by the squared components of the
// control bone's rotated X axis, so the weights always sum to one.
func (e *Evaluator) axisInterp(parent mathutil.Mat3x4, p *pose.Pose, i int, ai *studio.AxisInterp, m *pose.Matrices) {
	dir := p.Q[ai.Control].Rotate(mathutil.Vec3{1, 0, 0})

	var (
		pos mathutil.Vec3
		acc mathutil.Quat
	)
	ref := ai.Quat[0]
	for a := 0; a < 3; a++ {
		slot := 2 * a
		if dir[a] < 0 {
			slot++
		}
		w := dir[a] * dir[a]
		if w == 0 {
			continue
		}
		pos = pos.MulAdd(ai.Pos[slot], w)
		q := mathutil.QuatAlign(ref, ai.Quat[slot])
		for k := range acc {
			acc[k] += q[k] * w
		}
	}
	e.setLocal(parent, i, acc.Normalize(), pos, m)
}

func (e *Evaluator) aimAt(root mathutil.Mat3x4, p *pose.Pose, i int, aa *studio.AimAt, target mathutil.Vec3, m *pose.Matrices) {
	parent := e.BuildChain(root, p, aa.Parent, m)
	origin := parent.MulPoint(aa.Offset)
	base := mathutil.QuatFromMat3(parent.Rotation()).Normalize()

	dir := target.Sub(origin)
	if dir.LenSqr() < 1e-12 {
		e.setWorld(i, mathutil.Mat3x4FromQuatPos(base, origin), m)
		return
	}
	dir = dir.Normalize()

	aim := base.Rotate(aa.Aim).Normalize()
	swing := mathutil.QuatShortestArc(aim, dir)
	q := swing.Mul(base)

	// roll about the aim axis so the bone's up follows the parent's up
	upWant := flatten(base.Rotate(aa.Up), dir)
	upHave := flatten(q.Rotate(aa.Up), dir)
	if upWant.LenSqr() > 1e-12 && upHave.LenSqr() > 1e-12 {
		upWant, upHave = upWant.Normalize(), upHave.Normalize()
		angle := math.Atan2(upHave.Cross(upWant).Dot(dir), upHave.Dot(upWant))
		q = mathutil.QuatAxisAngle(dir, angle).Mul(q)
	}
	e.setWorld(i, mathutil.Mat3x4FromQuatPos(q.Normalize(), origin), m)
}

func (e *Evaluator) setWorld(i int, w mathutil.Mat3x4, m *pose.Matrices) {
	m.Set(i, w)
	e.recomputed++
}

// flatten removes the component of v along unit axis n.
func flatten(v, n mathutil.Vec3) mathutil.Vec3 {
	return v.MulAdd(n, -v.Dot(n))
}

// TwistAngle returns the twist of q about unit axis in (-π, π].
func TwistAngle(q mathutil.Quat, axis mathutil.Vec3) float64 {
	proj := q[0]*axis[0] + q[1]*axis[1] + q[2]*axis[2]
	a := 2 * math.Atan2(proj, q[3])
	switch {
	case a > math.Pi:
		a -= 2 * math.Pi
	case a <= -math.Pi:
		a += 2 * math.Pi
	}
	return a
}

func (e *Evaluator) twistMaster(root mathutil.Mat3x4, p *pose.Pose, tm *studio.TwistMaster, mask studio.BoneFlags, m *pose.Matrices) {
	axis := tm.Axis.Normalize()
	angle := TwistAngle(p.Q[tm.Target], axis)
	if tm.Inverse {
		angle = -angle
	}
	for _, s := range tm.Slaves {
		if !e.Skel.InMask(s.Bone, mask) || m.Computed.Has(s.Bone) {
			continue
		}
		base := e.Skel.Bones[s.Bone].Quat
		q := mathutil.QuatAxisAngle(axis, angle*s.Weight).Mul(base)
		e.setLocal(e.parentWorld(root, p, s.Bone, m), s.Bone, q, s.Pos, m)
	}
}
