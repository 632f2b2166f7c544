package studio

import (
	"errors"
	"fmt"
)

// MaxBones bounds skeleton size so scratch buffers can be sized once.
const MaxBones = 256

var (
	ErrSequenceRange  = errors.New("studio: sequence index out of range")
	ErrAnimationRange = errors.New("studio: animation index out of range")
)

// Provider exposes the pre-parsed model data the evaluator consumes.
type Provider interface {
	Pager
	Skeleton() *Skeleton
	NumSequences() int
	Sequence(i int) (*Sequence, error)
	Animation(i int) (*Animation, error)
}

// Pager reports keyframe residency. Stall returns 0 when the keyframes of
// anim around frame are resident, 1 when they are absent, and a value in
// between while a page-in is cross-fading.
type Pager interface {
	Stall(anim *Animation, frame int) float64
}

// Model is an in-memory Provider.
type Model struct {
	Skel       *Skeleton
	Animations []*Animation
	Sequences  []*Sequence
	Pager      Pager // nil when everything is resident
}

// NewModel checks that every sequence references valid animations and layers.
func NewModel(skel *Skeleton, anims []*Animation, seqs []*Sequence) (*Model, error) {
	m := &Model{Skel: skel, Animations: anims, Sequences: seqs}
	for i, a := range anims {
		if err := m.checkAnimation(a); err != nil {
			return nil, fmt.Errorf("studio: animation %d (%s): %w", i, a.Name, err)
		}
	}
	for i, s := range seqs {
		if err := m.checkSequence(s); err != nil {
			return nil, fmt.Errorf("studio: sequence %d (%s): %w", i, s.Name, err)
		}
	}
	return m, nil
}

func (m *Model) checkAnimation(a *Animation) error {
	n := m.Skel.NumBones()
	if a.NumFrames < 1 {
		return errors.New("no frames")
	}
	last := -1
	for _, t := range a.Tracks {
		if t.Bone <= last || t.Bone >= n {
			return fmt.Errorf("track bone %d out of order or range", t.Bone)
		}
		last = t.Bone
	}
	if a.Frames != nil {
		if len(a.Frames.BoneFlags) != n {
			return fmt.Errorf("frame array has %d bone flags, want %d", len(a.Frames.BoneFlags), n)
		}
		if len(a.Frames.Frames) < a.NumFrames*a.Frames.FrameLength {
			return errors.New("frame array is truncated")
		}
	}
	if z := a.ZeroFrames; z != nil {
		if z.Count < 1 || z.Span < 1 || len(z.Bones) != n {
			return errors.New("malformed zero frames")
		}
	}
	for _, h := range a.Hierarchy {
		if h.Bone < 0 || h.Bone >= n || h.NewParent < 0 || h.NewParent >= n || m.Skel.IsAncestor(h.Bone, h.NewParent) {
			return fmt.Errorf("local hierarchy %d -> %d is invalid", h.Bone, h.NewParent)
		}
	}
	for _, r := range a.IKRules {
		if r.Chain < 0 || r.Chain >= len(m.Skel.IKChains) || r.Bone >= n {
			return fmt.Errorf("ik rule on chain %d is invalid", r.Chain)
		}
	}
	return nil
}

func (m *Model) checkSequence(s *Sequence) error {
	if s.Group[0] < 1 || s.Group[1] < 1 || len(s.Anims) != s.Group[0]*s.Group[1] {
		return fmt.Errorf("grid %dx%d has %d animations", s.Group[0], s.Group[1], len(s.Anims))
	}
	for _, a := range s.Anims {
		if a < 0 || a >= len(m.Animations) {
			return fmt.Errorf("animation %d: %w", a, ErrAnimationRange)
		}
	}
	if s.BoneWeights != nil && len(s.BoneWeights) != m.Skel.NumBones() {
		return fmt.Errorf("%d bone weights for %d bones", len(s.BoneWeights), m.Skel.NumBones())
	}
	for _, l := range s.Layers {
		if l.Sequence < 0 || l.Sequence >= len(m.Sequences) {
			return fmt.Errorf("layer sequence %d: %w", l.Sequence, ErrSequenceRange)
		}
	}
	for _, l := range s.IKLocks {
		if l.Chain < 0 || l.Chain >= len(m.Skel.IKChains) {
			return fmt.Errorf("ik lock chain %d out of range", l.Chain)
		}
	}
	return nil
}

func (m *Model) Skeleton() *Skeleton { return m.Skel }

func (m *Model) NumSequences() int { return len(m.Sequences) }

func (m *Model) Sequence(i int) (*Sequence, error) {
	if i < 0 || i >= len(m.Sequences) {
		return nil, fmt.Errorf("%w: %d of %d", ErrSequenceRange, i, len(m.Sequences))
	}
	return m.Sequences[i], nil
}

func (m *Model) Animation(i int) (*Animation, error) {
	if i < 0 || i >= len(m.Animations) {
		return nil, fmt.Errorf("%w: %d of %d", ErrAnimationRange, i, len(m.Animations))
	}
	return m.Animations[i], nil
}

// Stall forwards to the pager.
func (m *Model) Stall(a *Animation, frame int) float64 {
	if m.Pager == nil {
		return 0
	}
	return m.Pager.Stall(a, frame)
}
