package ik

import (
	"studio-pose/internal/diag"
	"studio-pose/internal/mathutil"
	"studio-pose/internal/pose"
	"studio-pose/internal/studio"
)

// AddSequenceLocks records where the locked feet of seq are in p before
// seq is blended in. The returned mark must be passed to
// SolveSequenceLocks for the same sequence.
func (c *Context) AddSequenceLocks(seq *studio.Sequence, p *pose.Pose) LockMark {
	mark := LockMark(len(c.locks))
	if c.skel == nil || len(seq.IKLocks) == 0 {
		return mark
	}
	c.scratch.Reset()
	for _, l := range seq.IKLocks {
		_, _, foot := c.chainBones(l.Chain)
		q, pos := c.eval.BuildChain(c.root, p, foot, c.scratch).QuatPos()
		c.locks = append(c.locks, lockState{pos: pos, q: q})
	}
	return mark
}

// SolveSequenceLocks pulls each locked foot back toward where
// AddSequenceLocks found it. PosWeight is the share of the recorded
// position restored; LocalQWeight is the share of the blended foot
// rotation kept over the recorded one.
func (c *Context) SolveSequenceLocks(seq *studio.Sequence, p *pose.Pose, mark LockMark) {
	defer func() { c.locks = c.locks[:mark] }()
	if c.skel == nil || len(seq.IKLocks) == 0 || len(c.locks) < int(mark)+len(seq.IKLocks) {
		return
	}
	for k, l := range seq.IKLocks {
		held := c.locks[int(mark)+k]
		hip, knee, foot := c.chainBones(l.Chain)

		c.scratch.Reset()
		fq, fpos := c.eval.BuildChain(c.root, p, foot, c.scratch).QuatPos()
		target := fpos.Lerp(held.pos, l.PosWeight)
		if err := SolveChain(&c.skel.IKChains[l.Chain], target, c.scratch, c.cfg.KneeMax); err != nil {
			diag.Logger().Debug("ik lock unsolved", "chain", l.Chain, "err", err)
			continue
		}
		c.finishChain(hip, knee, foot, mathutil.QuatSlerp(held.q, fq, l.LocalQWeight), p, c.scratch)
	}
}
