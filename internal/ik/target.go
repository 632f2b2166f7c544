package ik

import (
	"fmt"
	"math"

	"studio-pose/internal/mathutil"
	"studio-pose/internal/studio"
)

// MaxTargets is the number of latching target slots per context.
const MaxTargets = 12

// TargetState is the latching phase of a target.
type TargetState int

const (
	Inactive TargetState = iota
	Pending
	Latched
	Releasing
)

func (s TargetState) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Pending:
		return "pending"
	case Latched:
		return "latched"
	case Releasing:
		return "releasing"
	}
	return fmt.Sprintf("TargetState(%d)", int(s))
}

// Estimate is the footpad placement requested by this frame's rules.
type Estimate struct {
	Pos     mathutil.Vec3
	Q       mathutil.Quat
	Weight  float64
	Latched float64 // how strongly the rules want the target held, 0..1
	Height  float64
	Floor   float64
	Radius  float64
}

// Latch holds a target's frozen placement and the drift it has absorbed.
type Latch struct {
	Active   bool
	Latching bool // frozen this frame rather than releasing

	Pos mathutil.Vec3
	Q   mathutil.Quat

	// Base* is the drift between the frozen and the freshly estimated
	// placement when latching stopped; Delta* is the part still applied.
	BaseDeltaPos mathutil.Vec3
	BaseDeltaQ   mathutil.Quat
	DeltaPos     mathutil.Vec3
	DeltaQ       mathutil.Quat
	Influence    float64
}

// ErrorRamp fades IK out while a target keeps failing validation.
type ErrorRamp struct {
	InError  bool
	Ramp     float64
	Time     float64 // last validation failure
	LastTick float64
}

// Trace is the limb geometry measured when the target was last updated.
type Trace struct {
	HipToKnee  float64
	KneeToFoot float64
}

// Target is the multi-frame state of one IK slot.
type Target struct {
	Chain int
	Type  studio.IKRuleType

	Est    Estimate
	Offset struct {
		Pos mathutil.Vec3
		Q   mathutil.Quat
	}
	Latch Latch
	Error ErrorRamp
	Trace Trace

	ground    float64
	hasGround bool
}

func (t *Target) reset() {
	*t = Target{Chain: -1}
	t.Error.Time = math.Inf(-1)
	t.Latch.BaseDeltaQ = mathutil.QuatIdentity()
	t.Latch.DeltaQ = mathutil.QuatIdentity()
}

// State reports the latching phase.
func (t *Target) State() TargetState {
	switch {
	case t.Latch.Active && t.Latch.Latching:
		return Latched
	case t.Latch.Active:
		return Releasing
	case t.Est.Weight > 0:
		return Pending
	}
	return Inactive
}

// Footpad returns the estimated contact frame in world space.
func (t *Target) Footpad() mathutil.Mat3x4 {
	return mathutil.Mat3x4FromQuatPos(t.Est.Q, t.Est.Pos)
}

// Goal returns the world transform the chain's end bone should reach.
func (t *Target) Goal() mathutil.Mat3x4 {
	return mathutil.Mat3x4Mul(t.Footpad(), mathutil.Mat3x4FromQuatPos(t.Offset.Q, t.Offset.Pos))
}

// latchFull is the weight at or above which a target freezes.
const latchFull = 0.999

// updateLatch freezes the estimate at full weight and otherwise fades the
// absorbed drift out in proportion to the remaining weight.
func (t *Target) updateLatch(ground bool) {
	l := &t.Latch
	amount := t.Est.Weight * t.Est.Latched

	if amount >= latchFull {
		if !l.Active {
			l.Active = true
			l.Pos, l.Q = t.Est.Pos, t.Est.Q
		}
		l.Latching = true
		l.BaseDeltaPos = l.Pos.Sub(t.Est.Pos)
		if ground {
			l.BaseDeltaPos[2] = 0
		}
		l.BaseDeltaQ = l.Q.Mul(t.Est.Q.Conj()).Normalize()
		if l.BaseDeltaQ[3] < 0 {
			l.BaseDeltaQ = l.BaseDeltaQ.Neg()
		}
		l.Influence = 1
	} else if l.Active {
		l.Latching = false
		l.Influence = math.Min(l.Influence, amount)
		if l.Influence <= 0.001 {
			t.clearLatch()
			return
		}
	} else {
		return
	}

	l.DeltaPos = l.BaseDeltaPos.Scale(l.Influence)
	l.DeltaQ = mathutil.QuatScale(l.BaseDeltaQ, l.Influence)
	t.Est.Pos = t.Est.Pos.Add(l.DeltaPos)
	t.Est.Q = l.DeltaQ.Mul(t.Est.Q).Normalize()
}

func (t *Target) clearLatch() {
	t.Latch = Latch{
		BaseDeltaQ: mathutil.QuatIdentity(),
		DeltaQ:     mathutil.QuatIdentity(),
	}
}

// shrinkLatch pulls a latch 20% toward the fresh estimate after its chain
// failed to reach it.
func (t *Target) shrinkLatch() {
	l := &t.Latch
	if !l.Active {
		return
	}
	l.Pos = l.Pos.Sub(l.BaseDeltaPos.Scale(0.2))
	l.BaseDeltaPos = l.BaseDeltaPos.Scale(0.8)
	shrunk := mathutil.QuatScale(l.BaseDeltaQ, 0.8)
	l.Q = shrunk.Mul(l.BaseDeltaQ.Conj()).Mul(l.Q).Normalize()
	l.BaseDeltaQ = shrunk
}
