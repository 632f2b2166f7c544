package studio

import (
	"fmt"

	"github.com/google/uuid"

	"studio-pose/internal/mathutil"
)

// BoneFlags describe how a bone is used and evaluated.
type BoneFlags uint32

const (
	BoneAlwaysProcedural BoneFlags = 1 << iota
	BoneFixedAlignment             // blended without quaternion sign alignment
	BoneUsedByHitbox
	BoneUsedByAttachment
	BoneUsedByVertex
	BoneUsedByBoneMerge

	BoneUsedByAnything = BoneUsedByHitbox | BoneUsedByAttachment | BoneUsedByVertex | BoneUsedByBoneMerge
)

// Bone holds the static description of one bone.
type Bone struct {
	Name   string
	Parent int // -1 for a root bone
	Flags  BoneFlags

	Pos  mathutil.Vec3
	Quat mathutil.Quat
	Rot  mathutil.Vec3 // base Euler XYZ radians; compressed rotation tracks are added to it

	PosScale mathutil.Vec3
	RotScale mathutil.Vec3

	Proc Procedural // nil unless the bone is procedural
}

// Attachment is a named frame rigidly attached to a bone.
type Attachment struct {
	Name  string
	Bone  int
	Local mathutil.Mat3x4
}

// IKLink is one joint of a three-bone IK chain.
type IKLink struct {
	Bone    int
	KneeDir mathutil.Vec3 // bend hint in the bone's local space, zero if none
}

// IKChain is a hip/knee/foot linkage.
type IKChain struct {
	Name  string
	Links [3]IKLink
}

// PoseParam describes one pose parameter in its own units.
type PoseParam struct {
	Name       string
	Start, End float64
	Loop       float64 // wrap range, 0 for none
}

// Skeleton is the immutable topology shared by every instance of a model.
type Skeleton struct {
	ID          uuid.UUID
	Name        string
	Bones       []Bone
	Attachments []Attachment
	IKChains    []IKChain
	PoseParams  []PoseParam

	// slaves lists twist-slave bones owned by a twist master, by master index.
	slaves map[int][]int
}

// NewSkeleton validates the topology and assigns a fresh identity.
func NewSkeleton(name string, bones []Bone, attachments []Attachment, chains []IKChain, params []PoseParam) (*Skeleton, error) {
	s := &Skeleton{
		ID:          uuid.New(),
		Name:        name,
		Bones:       bones,
		Attachments: attachments,
		IKChains:    chains,
		PoseParams:  params,
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Skeleton) validate() error {
	n := len(s.Bones)
	if n == 0 {
		return fmt.Errorf("studio: skeleton %q has no bones", s.Name)
	}
	if n > MaxBones {
		return fmt.Errorf("studio: skeleton %q has %d bones, max %d", s.Name, n, MaxBones)
	}
	inRange := func(i int) bool { return i >= 0 && i < n }

	for i, b := range s.Bones {
		if b.Parent >= i || b.Parent < -1 {
			return fmt.Errorf("studio: bone %d (%s): parent %d must precede it", i, b.Name, b.Parent)
		}
		if b.Quat == (mathutil.Quat{}) {
			s.Bones[i].Quat = mathutil.QuatIdentity()
		}
		if err := validateProc(b.Proc, inRange, len(s.Attachments)); err != nil {
			return fmt.Errorf("studio: bone %d (%s): %w", i, b.Name, err)
		}
		if tm, ok := b.Proc.(*TwistMaster); ok {
			for _, sl := range tm.Slaves {
				if sl.Bone <= i {
					return fmt.Errorf("studio: bone %d (%s): twist slave %d must follow its master", i, b.Name, sl.Bone)
				}
				if s.slaves == nil {
					s.slaves = make(map[int][]int)
				}
				s.slaves[i] = append(s.slaves[i], sl.Bone)
			}
		}
	}
	for i, a := range s.Attachments {
		if !inRange(a.Bone) {
			return fmt.Errorf("studio: attachment %d (%s): bone %d out of range", i, a.Name, a.Bone)
		}
	}
	for i, c := range s.IKChains {
		for j, l := range c.Links {
			if !inRange(l.Bone) {
				return fmt.Errorf("studio: ik chain %d (%s): link %d bone %d out of range", i, c.Name, j, l.Bone)
			}
		}
		if s.Bones[c.Links[2].Bone].Parent != c.Links[1].Bone || s.Bones[c.Links[1].Bone].Parent != c.Links[0].Bone {
			return fmt.Errorf("studio: ik chain %d (%s): links are not parent-linked", i, c.Name)
		}
	}
	return nil
}

// NumBones returns the bone count.
func (s *Skeleton) NumBones() int { return len(s.Bones) }

// InMask reports whether bone i is evaluated under mask.
func (s *Skeleton) InMask(i int, mask BoneFlags) bool {
	return s.Bones[i].Flags&mask != 0
}

// BoneIndex returns the index of the named bone, or -1.
func (s *Skeleton) BoneIndex(name string) int {
	for i := range s.Bones {
		if s.Bones[i].Name == name {
			return i
		}
	}
	return -1
}

// PoseParamIndex returns the index of the named pose parameter, or -1.
func (s *Skeleton) PoseParamIndex(name string) int {
	for i := range s.PoseParams {
		if s.PoseParams[i].Name == name {
			return i
		}
	}
	return -1
}

// IsAncestor reports whether a is b or one of b's ancestors.
func (s *Skeleton) IsAncestor(a, b int) bool {
	for b >= 0 {
		if a == b {
			return true
		}
		b = s.Bones[b].Parent
	}
	return false
}

// TwistSlaves returns the slave bones driven by twist master m.
func (s *Skeleton) TwistSlaves(m int) []int {
	return s.slaves[m]
}
