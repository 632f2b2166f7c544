// Package pose holds the per-evaluation buffers: local poses, bone-to-world
// matrix arrays with their computed bits, and the scratch arena they are
// drawn from.
package pose

import (
	"studio-pose/internal/mathutil"
	"studio-pose/internal/studio"
)

// Pose is a local position and rotation per skeleton bone. Entries of bones
// outside the evaluated mask are stale and must not be read.
type Pose struct {
	Pos []mathutil.Vec3
	Q   []mathutil.Quat
}

// New allocates a pose for n bones.
func New(n int) *Pose {
	return &Pose{
		Pos: make([]mathutil.Vec3, n),
		Q:   make([]mathutil.Quat, n),
	}
}

func (p *Pose) Len() int { return len(p.Pos) }

// InitBase sets every masked bone to the skeleton's base pose.
func (p *Pose) InitBase(skel *studio.Skeleton, mask studio.BoneFlags) {
	for i := range skel.Bones {
		if skel.InMask(i, mask) {
			p.Pos[i] = skel.Bones[i].Pos
			p.Q[i] = skel.Bones[i].Quat
		}
	}
}

// InitIdentity sets every masked bone to the additive identity.
func (p *Pose) InitIdentity(skel *studio.Skeleton, mask studio.BoneFlags) {
	for i := range skel.Bones {
		if skel.InMask(i, mask) {
			p.Pos[i] = mathutil.Vec3{}
			p.Q[i] = mathutil.QuatIdentity()
		}
	}
}

// CopyFrom copies src into p.
func (p *Pose) CopyFrom(src *Pose) {
	copy(p.Pos, src.Pos)
	copy(p.Q, src.Q)
}

// BoneSet is a bitset over bone indices.
type BoneSet []uint64

func NewBoneSet(n int) BoneSet {
	return make(BoneSet, (n+63)/64)
}

func (b BoneSet) Has(i int) bool { return b[i>>6]&(1<<(uint(i)&63)) != 0 }
func (b BoneSet) Mark(i int)     { b[i>>6] |= 1 << (uint(i) & 63) }
func (b BoneSet) Clear(i int)    { b[i>>6] &^= 1 << (uint(i) & 63) }

func (b BoneSet) Reset() {
	for i := range b {
		b[i] = 0
	}
}

// Matrices is a bone-to-world array. World[i] is valid only while
// Computed.Has(i).
type Matrices struct {
	World    []mathutil.Mat3x4
	Computed BoneSet
}

func NewMatrices(n int) *Matrices {
	return &Matrices{
		World:    make([]mathutil.Mat3x4, n),
		Computed: NewBoneSet(n),
	}
}

// Reset invalidates every matrix.
func (m *Matrices) Reset() { m.Computed.Reset() }

// Get returns the world matrix of bone i if it has been computed.
func (m *Matrices) Get(i int) (mathutil.Mat3x4, bool) {
	if !m.Computed.Has(i) {
		return mathutil.Mat3x4{}, false
	}
	return m.World[i], true
}

// Set stores and marks bone i. Callers guarantee the parent is computed.
func (m *Matrices) Set(i int, w mathutil.Mat3x4) {
	m.World[i] = w
	m.Computed.Mark(i)
}
