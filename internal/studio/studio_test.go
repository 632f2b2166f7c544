package studio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-pose/internal/mathutil"
)

func chainBones() []Bone {
	return []Bone{
		{Name: "root", Parent: -1, Flags: BoneUsedByVertex},
		{Name: "hip", Parent: 0, Flags: BoneUsedByVertex, Pos: mathutil.Vec3{0, 0, 10}},
		{Name: "knee", Parent: 1, Flags: BoneUsedByVertex, Pos: mathutil.Vec3{5, 0, 0}},
		{Name: "foot", Parent: 2, Flags: BoneUsedByVertex | BoneUsedByAttachment, Pos: mathutil.Vec3{5, 0, 0}},
	}
}

func TestNewSkeleton(t *testing.T) {
	chains := []IKChain{{Name: "leg", Links: [3]IKLink{{Bone: 1}, {Bone: 2}, {Bone: 3}}}}
	s, err := NewSkeleton("biped", chainBones(), nil, chains, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, s.NumBones())
	assert.Equal(t, 2, s.BoneIndex("knee"))
	assert.Equal(t, -1, s.BoneIndex("tail"))
	assert.Equal(t, mathutil.QuatIdentity(), s.Bones[0].Quat)
	assert.True(t, s.IsAncestor(1, 3))
	assert.False(t, s.IsAncestor(3, 1))
	assert.True(t, s.InMask(3, BoneUsedByAttachment))
	assert.False(t, s.InMask(2, BoneUsedByAttachment))

	other, err := NewSkeleton("biped", chainBones(), nil, chains, nil)
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, other.ID)
}

func TestNewSkeletonRejectsBadTopology(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b []Bone) ([]Bone, []IKChain)
	}{
		{"forward parent", func(b []Bone) ([]Bone, []IKChain) {
			b[1].Parent = 2
			return b, nil
		}},
		{"self parent", func(b []Bone) ([]Bone, []IKChain) {
			b[2].Parent = 2
			return b, nil
		}},
		{"unlinked chain", func(b []Bone) ([]Bone, []IKChain) {
			return b, []IKChain{{Links: [3]IKLink{{Bone: 0}, {Bone: 2}, {Bone: 3}}}}
		}},
		{"slave before master", func(b []Bone) ([]Bone, []IKChain) {
			b[2].Proc = &TwistMaster{Target: 3, Axis: mathutil.Vec3{1, 0, 0}, Slaves: []TwistSlave{{Bone: 1, Weight: 0.5}}}
			return b, nil
		}},
		{"empty quat interp", func(b []Bone) ([]Bone, []IKChain) {
			b[3].Proc = &QuatInterp{Control: 2}
			return b, nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bones, chains := tt.mutate(chainBones())
			_, err := NewSkeleton("bad", bones, nil, chains, nil)
			assert.Error(t, err)
		})
	}
}

func TestAnimHeader(t *testing.T) {
	h := AnimHeader(3, 200)
	assert.Equal(t, 3, h.Valid())
	assert.Equal(t, 200, h.Total())
}

func TestThreeWayIndicesReconstructPoint(t *testing.T) {
	cells := [][2]int{{0, 0}, {1, 0}, {0, 1}, {3, 4}}
	points := [][2]float64{{0.2, 0.7}, {0.7, 0.2}, {0.5, 0.5}, {0.9, 0.6}, {0.1, 0.1}}
	for _, c := range cells {
		for _, p := range points {
			corners, w := ThreeWayIndices(c[0], c[1], p[0], p[1])
			var x, y, sum float64
			for k := range corners {
				assert.GreaterOrEqual(t, w[k], -1e-12)
				x += w[k] * float64(corners[k][0])
				y += w[k] * float64(corners[k][1])
				sum += w[k]
			}
			assert.InDelta(t, 1, sum, 1e-12)
			assert.InDelta(t, p[0], x, 1e-12, "cell %v point %v", c, p)
			assert.InDelta(t, p[1], y, 1e-12, "cell %v point %v", c, p)
		}
	}
}

func TestLocalPoseParameter(t *testing.T) {
	skel := &Skeleton{PoseParams: []PoseParam{
		{Name: "move_x", Start: -1, End: 1},
		{Name: "aim_yaw", Start: -180, End: 180, Loop: 360},
	}}
	seq := &Sequence{Group: [2]int{5, 2}, Param: [2]int{0, 1}}

	tests := []struct {
		name   string
		params []float64
		axis   int
		wantS  float64
		wantI  int
	}{
		{"start", []float64{0, 0.5}, 0, 0, 0},
		{"end clamps to last cell", []float64{1, 0.5}, 0, 1, 3},
		{"mid cell", []float64{0.375, 0.5}, 0, 0.5, 1},
		{"two wide axis", []float64{0, 0.75}, 1, 0.75, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, i := LocalPoseParameter(skel, seq, tt.params, tt.axis)
			assert.InDelta(t, tt.wantS, s, 1e-12)
			assert.Equal(t, tt.wantI, i)
		})
	}

	single := &Sequence{Group: [2]int{1, 1}, Param: [2]int{-1, -1}}
	s, i := LocalPoseParameter(skel, single, []float64{0.3, 0.3}, 0)
	assert.Zero(t, s)
	assert.Zero(t, i)
}

func TestSeqAnimsWeightsSumToOne(t *testing.T) {
	skel := &Skeleton{PoseParams: []PoseParam{{Start: 0, End: 1}, {Start: 0, End: 1}}}
	seq := &Sequence{Group: [2]int{2, 2}, Param: [2]int{0, 1}, Anims: []int{10, 11, 12, 13}}
	g := SeqAnims(skel, seq, []float64{0.25, 0.5})

	assert.Equal(t, 10, g[0].Anim)
	assert.Equal(t, 11, g[1].Anim)
	assert.Equal(t, 12, g[2].Anim)
	assert.Equal(t, 13, g[3].Anim)
	assert.InDelta(t, 1, g[0].Weight+g[1].Weight+g[2].Weight+g[3].Weight, 1e-12)
	assert.InDelta(t, 0.375, g[0].Weight, 1e-12)
}

func TestModelLookups(t *testing.T) {
	skel, err := NewSkeleton("m", chainBones(), nil, nil, nil)
	require.NoError(t, err)
	anim := &Animation{Name: "idle", FPS: 30, NumFrames: 31}
	seq := &Sequence{Name: "idle", Group: [2]int{1, 1}, Param: [2]int{-1, -1}, Anims: []int{0}}

	m, err := NewModel(skel, []*Animation{anim}, []*Sequence{seq})
	require.NoError(t, err)

	_, err = m.Sequence(1)
	assert.True(t, errors.Is(err, ErrSequenceRange))
	_, err = m.Animation(-1)
	assert.True(t, errors.Is(err, ErrAnimationRange))

	assert.InDelta(t, 1.0, CycleRate(m, seq, nil), 1e-12)
	assert.InDelta(t, 1.0, Duration(m, seq, nil), 1e-12)
	assert.Zero(t, m.Stall(anim, 0))

	bad := &Sequence{Name: "bad", Group: [2]int{1, 1}, Anims: []int{4}}
	_, err = NewModel(skel, []*Animation{anim}, []*Sequence{bad})
	assert.ErrorIs(t, err, ErrAnimationRange)
}
