// Package skeleton turns local bone poses into bone-to-world matrices.
package skeleton

import (
	"fmt"

	"studio-pose/internal/mathutil"
	"studio-pose/internal/pose"
	"studio-pose/internal/studio"
)

// Evaluator composes bone-to-world matrices for one skeleton. It keeps a
// scratch stack and a composition counter and must not be shared between
// goroutines.
type Evaluator struct {
	Skel *studio.Skeleton

	stack      []int
	recomputed int
}

func NewEvaluator(skel *studio.Skeleton) *Evaluator {
	return &Evaluator{Skel: skel, stack: make([]int, 0, skel.NumBones())}
}

// Recomputed returns how many world matrices have been composed since the
// last ResetCounter.
func (e *Evaluator) Recomputed() int { return e.recomputed }

func (e *Evaluator) ResetCounter() { e.recomputed = 0 }

func (e *Evaluator) compose(parent mathutil.Mat3x4, p *pose.Pose, i int, m *pose.Matrices) mathutil.Mat3x4 {
	w := mathutil.Mat3x4Mul(parent, mathutil.Mat3x4FromQuatPos(p.Q[i], p.Pos[i]))
	m.Set(i, w)
	e.recomputed++
	return w
}

// BuildChain returns the world matrix of bone, composing it and every
// ancestor not yet marked in m. Bones already computed are reused as is.
func (e *Evaluator) BuildChain(root mathutil.Mat3x4, p *pose.Pose, bone int, m *pose.Matrices) mathutil.Mat3x4 {
	if w, ok := m.Get(bone); ok {
		return w
	}
	bones := e.Skel.Bones
	e.stack = e.stack[:0]
	parent := root
	for i := bone; i >= 0; i = bones[i].Parent {
		if w, ok := m.Get(i); ok {
			parent = w
			break
		}
		e.stack = append(e.stack, i)
	}
	for k := len(e.stack) - 1; k >= 0; k-- {
		parent = e.compose(parent, p, e.stack[k], m)
	}
	return parent
}

// Chain holds matrices of a sub-chain composed under a partial root
// instead of the skeleton root. Its computed bits are separate from any
// bone-to-world array, so partial results never leak into one.
type Chain struct {
	Root mathutil.Mat3x4
	Stop int

	m *pose.Matrices
}

func NewChain(n int) *Chain {
	return &Chain{Stop: -1, m: pose.NewMatrices(n)}
}

// Reset drops every matrix and places stop directly under root.
func (c *Chain) Reset(root mathutil.Mat3x4, stop int) {
	c.Root, c.Stop = root, stop
	c.m.Reset()
}

// Get returns the matrix of bone if it was composed since the last Reset.
func (c *Chain) Get(bone int) (mathutil.Mat3x4, bool) { return c.m.Get(bone) }

// BuildChainPartial returns the matrix of bone relative to c's partial root,
// composing the bones from c.Stop down to bone that c does not hold yet.
func (e *Evaluator) BuildChainPartial(c *Chain, p *pose.Pose, bone int) (mathutil.Mat3x4, error) {
	if !e.Skel.IsAncestor(c.Stop, bone) {
		return c.Root, fmt.Errorf("skeleton: bone %d is not under partial root %d", bone, c.Stop)
	}
	if w, ok := c.m.Get(bone); ok {
		return w, nil
	}
	bones := e.Skel.Bones
	e.stack = e.stack[:0]
	parent := c.Root
	for i := bone; ; i = bones[i].Parent {
		if w, ok := c.m.Get(i); ok {
			parent = w
			break
		}
		e.stack = append(e.stack, i)
		if i == c.Stop {
			break
		}
	}
	for k := len(e.stack) - 1; k >= 0; k-- {
		parent = e.compose(parent, p, e.stack[k], c.m)
	}
	return parent, nil
}

// SolveBone writes the local pose of bone implied by its world matrix and
// its parent's. Root bones take the world matrix as their local transform.
// Both matrices must be computed.
func SolveBone(skel *studio.Skeleton, bone int, m *pose.Matrices, p *pose.Pose) {
	w := m.World[bone]
	if parent := skel.Bones[bone].Parent; parent >= 0 {
		w = mathutil.Mat3x4Mul(m.World[parent].Inverse(), w)
	}
	p.Q[bone], p.Pos[bone] = w.QuatPos()
}

// BuildAll computes every bone under mask in bone order. Bones already
// marked in m are kept, so callers may pre-seed matrices. Procedural bones
// are evaluated from their descriptors instead of the pose.
func (e *Evaluator) BuildAll(root mathutil.Mat3x4, p *pose.Pose, mask studio.BoneFlags, m *pose.Matrices) {
	for i := range e.Skel.Bones {
		if !e.Skel.InMask(i, mask) || m.Computed.Has(i) {
			continue
		}
		parent := e.parentWorld(root, p, i, m)
		switch proc := e.Skel.Bones[i].Proc.(type) {
		case nil, *studio.TwistSlaveRef:
			// a slave still unmarked here has a master outside mask.
			e.compose(parent, p, i, m)
		case *studio.TwistMaster:
			e.compose(parent, p, i, m)
			e.twistMaster(root, p, proc, mask, m)
		case *studio.QuatInterp:
			e.quatInterp(parent, p, i, proc, m)
		case *studio.AxisInterp:
			e.axisInterp(parent, p, i, proc, m)
		case *studio.AimAtBone:
			e.aimAt(root, p, i, &proc.AimAt, e.BuildChain(root, p, proc.Target, m).Position(), m)
		case *studio.AimAtAttachment:
			att := e.Skel.Attachments[proc.Target]
			w := mathutil.Mat3x4Mul(e.BuildChain(root, p, att.Bone, m), att.Local)
			e.aimAt(root, p, i, &proc.AimAt, w.Position(), m)
		}
	}
}

// parentWorld returns the world matrix of the parent of bone i, or root.
func (e *Evaluator) parentWorld(root mathutil.Mat3x4, p *pose.Pose, i int, m *pose.Matrices) mathutil.Mat3x4 {
	parent := e.Skel.Bones[i].Parent
	if parent < 0 {
		return root
	}
	return e.BuildChain(root, p, parent, m)
}
