// Package ik solves two-bone limb chains and tracks per-character IK state
// across frames.
package ik

import (
	"errors"
	"fmt"
	"math"

	"studio-pose/internal/mathutil"
	"studio-pose/internal/pose"
	"studio-pose/internal/studio"
)

// KneeMaxEpsilon is the fraction of full leg extension past which the knee
// position is considered undefined.
const KneeMaxEpsilon = 0.9998

// ErrNoSolution reports a chain that cannot reach its target.
var ErrNoSolution = errors.New("ik: no solution")

// SolveKnee places the knee of a two-segment limb rooted at the origin.
// l1 is the hip-to-knee length, l2 the knee-to-foot length, foot the foot
// position and kneeDir the direction the knee should bend toward.
func SolveKnee(l1, l2 float64, foot, kneeDir mathutil.Vec3) (mathutil.Vec3, error) {
	if !(l1 > 1e-9 && l2 > 1e-9) || !foot.IsFinite() || !kneeDir.IsFinite() {
		return mathutil.Vec3{}, fmt.Errorf("%w: degenerate input", ErrNoSolution)
	}
	d := foot.Len()
	if d < 1e-9 || d-KneeMaxEpsilon*(l1+l2) > 1e-9*(l1+l2) {
		return mathutil.Vec3{}, fmt.Errorf("%w: foot distance %g for lengths %g+%g", ErrNoSolution, d, l1, l2)
	}
	axis := foot.Scale(1 / d)
	bend := kneeDir.MulAdd(axis, -kneeDir.Dot(axis))
	if bend.LenSqr() < 1e-18 {
		return mathutil.Vec3{}, fmt.Errorf("%w: knee hint parallel to limb", ErrNoSolution)
	}
	bend = bend.Normalize()

	x := (l1*l1 - l2*l2 + d*d) / (2 * d)
	yy := l1*l1 - x*x
	if yy < 0 {
		return mathutil.Vec3{}, fmt.Errorf("%w: foot too close to hip", ErrNoSolution)
	}
	knee := axis.Scale(x).MulAdd(bend, math.Sqrt(yy))
	if !knee.IsFinite() {
		return mathutil.Vec3{}, fmt.Errorf("%w: non-finite knee", ErrNoSolution)
	}
	return knee, nil
}

// AlignMatrix turns m so its X axis points along dir, keeping Y
// perpendicular to the old Z axis.
func AlignMatrix(m *mathutil.Mat3x4, dir mathutil.Vec3) {
	x := dir.Normalize()
	y := m.Column(2).Cross(x).Normalize()
	if y.LenSqr() == 0 {
		// old Z lies along dir; keep the old Y instead
		y = m.Column(1)
		y = y.MulAdd(x, -y.Dot(x)).Normalize()
	}
	z := x.Cross(y)
	m.SetColumn(0, x)
	m.SetColumn(1, y)
	m.SetColumn(2, z)
}

// SolveChain moves the chain's foot to target by bending at the knee. The
// hip and knee matrices are re-aimed and the knee and foot translated; the
// foot keeps its orientation. kneeMax, at most KneeMaxEpsilon, bounds the
// reach. On failure m is left untouched.
func SolveChain(chain *studio.IKChain, target mathutil.Vec3, m *pose.Matrices, kneeMax float64) error {
	hip, knee, foot := chain.Links[0].Bone, chain.Links[1].Bone, chain.Links[2].Bone
	if kneeMax <= 0 || kneeMax > KneeMaxEpsilon {
		kneeMax = KneeMaxEpsilon
	}
	hipW, kneeW, footW := m.World[hip], m.World[knee], m.World[foot]
	hipPos := hipW.Position()
	kneePos := kneeW.Position()
	footPos := footW.Position()

	l1 := kneePos.Dist(hipPos)
	l2 := footPos.Dist(kneePos)

	var hint mathutil.Vec3
	if kd := chain.Links[0].KneeDir; kd.LenSqr() > 0 {
		hint = hipW.MulDir(kd)
	} else {
		cur := footPos.Sub(hipPos)
		l3 := cur.Len()
		if l3 < 1e-9 || l3 > (l1+l2)*kneeMax {
			return fmt.Errorf("%w: chain %s is straight", ErrNoSolution, chain.Name)
		}
		hint = kneePos.Sub(hipPos).Sub(cur.Scale(l1 / l3))
	}

	ikFoot := target.Sub(hipPos)
	if d := ikFoot.Len(); d > (l1+l2)*kneeMax {
		ikFoot = ikFoot.Scale((l1 + l2) * kneeMax / d)
	}
	if minDist := math.Max(math.Abs(l1-l2)*1.15, math.Min(l1, l2)*0.15); ikFoot.Len() < minDist {
		n := ikFoot.Normalize()
		if n.LenSqr() == 0 {
			n = footPos.Sub(hipPos).Normalize()
		}
		ikFoot = n.Scale(minDist)
	}

	ikKnee, err := SolveKnee(l1, l2, ikFoot, hint)
	if err != nil {
		return fmt.Errorf("chain %s: %w", chain.Name, err)
	}

	AlignMatrix(&hipW, ikKnee)
	AlignMatrix(&kneeW, ikFoot.Sub(ikKnee))
	kneeW.SetPosition(hipPos.Add(ikKnee))
	footW.SetPosition(hipPos.Add(ikFoot))
	m.World[hip], m.World[knee], m.World[foot] = hipW, kneeW, footW
	return nil
}
