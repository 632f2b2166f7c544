package ik

import (
	"studio-pose/internal/anim"
	"studio-pose/internal/diag"
	"studio-pose/internal/mathutil"
	"studio-pose/internal/studio"
)

// Rule is one IK constraint queued on a chain for the current frame, with
// its window and target error averaged over the blended grid animations.
type Rule struct {
	Type       studio.IKRuleType
	Chain      int
	Slot       int
	Bone       int
	Attachment int

	Start, Peak, Tail, End float64
	Height, Floor, Radius  float64

	Pos mathutil.Vec3
	Q   mathutil.Quat

	Weight     float64 // weight of the sequence that queued it
	RuleWeight float64 // window weight at the current cycle
	Latched    float64
}

// Combined returns the effective weight of the rule.
func (r *Rule) Combined() float64 { return r.Weight * r.RuleWeight }

// RuleWeight returns the smoothstepped window weight at cycle together with
// the error-track frame and fraction the cycle maps to. Windows running past
// 1 wrap: a cycle before start is moved forward by one.
func RuleWeight(start, peak, tail, end float64, errorStart, numFrames int, cycle float64) (w float64, frame int, s float64) {
	if end > 1 && cycle < start {
		cycle++
	}
	at := func(c float64) {
		f := float64(numFrames-1)*(c-start) + float64(errorStart)
		frame = int(f)
		s = f - float64(frame)
	}
	var v float64
	switch {
	case cycle < start:
		return 0, errorStart, 0
	case cycle < peak:
		v = (cycle - start) / (peak - start)
		at(cycle)
	case cycle < tail:
		v = 1
		at(cycle)
	case cycle < end:
		v = 1 - (cycle-tail)/(end-tail)
		at(cycle)
	default:
		at(end)
	}
	return mathutil.SimpleSpline(v), frame, s
}

// ruleError returns the target error of rule r of a at the given frame.
func ruleError(a *studio.Animation, r *studio.IKRule, frame int, s float64) (mathutil.Vec3, mathutil.Quat, error) {
	if r.Error == nil {
		q := r.Q
		if q == (mathutil.Quat{}) {
			q = mathutil.QuatIdentity()
		}
		return r.Pos, q, nil
	}
	last := a.NumFrames - 1
	if frame >= last {
		frame, s = last, 0
	}
	pos, err := anim.ChannelPos(r.Error, frame, s)
	if err != nil {
		return pos, mathutil.QuatIdentity(), err
	}
	q, err := anim.ChannelRot(r.Error, frame, s, mathutil.Vec3{})
	return pos, q, err
}

// aggregate averages rule j over the contributing animations. Windows of
// later animations are shifted by a whole cycle when they lie more than
// half a cycle from the first one.
func aggregate(anims []*studio.Animation, weights []float64, j int, cycle float64) (Rule, bool) {
	first := &anims[0].IKRules[j]
	out := Rule{
		Type:       first.Type,
		Chain:      first.Chain,
		Slot:       first.Slot,
		Bone:       first.Bone,
		Attachment: first.Attachment,
		Height:     first.Height,
		Floor:      first.Floor,
		Radius:     first.Radius,
	}
	if out.Type == studio.IKGround {
		out.Latched = 1
	}

	var total float64
	var q, ref mathutil.Quat
	for i, a := range anims {
		if j >= len(a.IKRules) || a.IKRules[j].Type != first.Type || a.IKRules[j].Chain != first.Chain {
			continue
		}
		r := &a.IKRules[j]
		w := weights[i]
		shift := 0.0
		switch d := r.Start - first.Start; {
		case d > 0.5:
			shift = -1
		case d < -0.5:
			shift = 1
		}
		start, peak, tail, end := r.Start+shift, r.Peak+shift, r.Tail+shift, r.End+shift

		_, frame, s := RuleWeight(start, peak, tail, end, r.ErrorStart, a.NumFrames, cycle)
		pos, rq, err := ruleError(a, r, frame, s)
		if err != nil {
			diag.Logger().Debug("ik rule error track unreadable", "anim", a.Name, "rule", j, "err", err)
			continue
		}

		out.Start += start * w
		out.Peak += peak * w
		out.Tail += tail * w
		out.End += end * w
		out.Pos = out.Pos.MulAdd(pos, w)
		if total == 0 {
			ref = rq
		}
		rq = mathutil.QuatAlign(ref, rq)
		for k := range q {
			q[k] += rq[k] * w
		}
		total += w
	}
	if total <= 0 {
		return out, false
	}
	inv := 1 / total
	out.Start *= inv
	out.Peak *= inv
	out.Tail *= inv
	out.End *= inv
	out.Pos = out.Pos.Scale(inv)
	out.Q = q.Normalize()
	out.RuleWeight, _, _ = RuleWeight(out.Start, out.Peak, out.Tail, out.End, 0, 2, cycle)
	return out, true
}
