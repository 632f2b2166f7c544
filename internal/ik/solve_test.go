package ik

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-pose/internal/mathutil"
	"studio-pose/internal/pose"
	"studio-pose/internal/skeleton"
	"studio-pose/internal/studio"
)

func TestSolveKnee(t *testing.T) {
	tests := []struct {
		name   string
		a, b   float64
		dir    mathutil.Vec3
		reach  float64 // fraction of a+b
		bendTo mathutil.Vec3
	}{
		{"equal segments nearly straight", 5, 5, mathutil.Vec3{1, 0, 0}, 1 - 0.001, mathutil.Vec3{0, 0, 1}},
		{"long thigh", 10, 2, mathutil.Vec3{1, 0, 0}, 1 - 0.001, mathutil.Vec3{0, 1, 0}},
		{"half reach diagonal", 3, 4, mathutil.Vec3{3, 4, 0}.Normalize(), 0.6, mathutil.Vec3{0, 0, -1}},
		{"hint not perpendicular", 4, 6, mathutil.Vec3{0, 0, 1}, 0.9, mathutil.Vec3{1, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			foot := tt.dir.Scale((tt.a + tt.b) * tt.reach)
			knee, err := SolveKnee(tt.a, tt.b, foot, tt.bendTo)
			require.NoError(t, err)
			assert.InDelta(t, tt.a, knee.Len(), 1e-9)
			assert.InDelta(t, tt.b, foot.Dist(knee), 1e-9)
			assert.Positive(t, knee.Dot(tt.bendTo), "knee bends toward the hint")
		})
	}
}

func TestSolveKneeFailures(t *testing.T) {
	x := mathutil.Vec3{1, 0, 0}
	z := mathutil.Vec3{0, 0, 1}
	tests := []struct {
		name  string
		a, b  float64
		foot  mathutil.Vec3
		hint  mathutil.Vec3
	}{
		{"unreachable", 5, 4, x.Scale(9.01), z},
		{"at full extension", 5, 4, x.Scale(9), z},
		{"zero thigh", 0, 4, x.Scale(2), z},
		{"foot on hip", 5, 4, mathutil.Vec3{}, z},
		{"hint along limb", 5, 4, x.Scale(6), x},
		{"too close", 10, 2, x.Scale(1), z},
		{"nan", 5, 4, mathutil.Vec3{math.NaN(), 0, 0}, z},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SolveKnee(tt.a, tt.b, tt.foot, tt.hint)
			assert.ErrorIs(t, err, ErrNoSolution)
		})
	}
}

func TestAlignMatrix(t *testing.T) {
	m := mathutil.Mat3x4Identity()
	m.SetPosition(mathutil.Vec3{1, 2, 3})
	AlignMatrix(&m, mathutil.Vec3{0, 2, 0})
	assert.True(t, m.Column(0).ApproxEqual(mathutil.Vec3{0, 1, 0}, 1e-12))
	assert.True(t, m.Column(1).ApproxEqual(mathutil.Vec3{-1, 0, 0}, 1e-12))
	assert.True(t, m.Column(2).ApproxEqual(mathutil.Vec3{0, 0, 1}, 1e-12))
	assert.Equal(t, mathutil.Vec3{1, 2, 3}, m.Position())

	// aiming along the old Z axis keeps a valid basis
	AlignMatrix(&m, mathutil.Vec3{0, 0, 1})
	assert.InDelta(t, 1, m.Rotation().Det(), 1e-12)
}

// legSkeleton is a straight leg hanging down -Z from a hip at (0,0,10).
func legSkeleton(t *testing.T, kneeDir mathutil.Vec3) *studio.Skeleton {
	t.Helper()
	v := studio.BoneUsedByVertex
	bones := []studio.Bone{
		{Name: "pelvis", Parent: -1, Flags: v},
		{Name: "hip", Parent: 0, Flags: v, Pos: mathutil.Vec3{0, 0, 10}, Quat: mathutil.QuatAxisAngle(mathutil.Vec3{0, 1, 0}, math.Pi/2)},
		{Name: "knee", Parent: 1, Flags: v, Pos: mathutil.Vec3{5, 0, 0}},
		{Name: "foot", Parent: 2, Flags: v, Pos: mathutil.Vec3{5, 0, 0}},
		{Name: "toe", Parent: 3, Flags: v, Pos: mathutil.Vec3{1, 0, 0}},
	}
	chains := []studio.IKChain{{Name: "leg", Links: [3]studio.IKLink{{Bone: 1, KneeDir: kneeDir}, {Bone: 2}, {Bone: 3}}}}
	skel, err := studio.NewSkeleton("leg", bones, nil, chains, nil)
	require.NoError(t, err)
	return skel
}

func buildLeg(skel *studio.Skeleton, p *pose.Pose) *pose.Matrices {
	m := pose.NewMatrices(skel.NumBones())
	skeleton.NewEvaluator(skel).BuildAll(mathutil.Mat3x4Identity(), p, studio.BoneUsedByAnything, m)
	return m
}

func TestSolveChain(t *testing.T) {
	skel := legSkeleton(t, mathutil.Vec3{0, 0, 1})
	p := pose.New(skel.NumBones())
	p.InitBase(skel, studio.BoneUsedByAnything)
	m := buildLeg(skel, p)
	require.True(t, m.World[3].Position().ApproxEqual(mathutil.Vec3{}, 1e-9))

	target := mathutil.Vec3{1, 0, 3}
	require.NoError(t, SolveChain(&skel.IKChains[0], target, m, KneeMaxEpsilon))

	hip, knee, foot := m.World[1].Position(), m.World[2].Position(), m.World[3].Position()
	assert.True(t, foot.ApproxEqual(target, 1e-9), "foot %v", foot)
	assert.InDelta(t, 5, knee.Dist(hip), 1e-9)
	assert.InDelta(t, 5, foot.Dist(knee), 1e-9)
	assert.Greater(t, knee[0], hip[0], "knee bends forward")

	// bones point down the solved limb
	assert.True(t, m.World[1].Column(0).ApproxEqual(knee.Sub(hip).Normalize(), 1e-9))
	assert.True(t, m.World[2].Column(0).ApproxEqual(foot.Sub(knee).Normalize(), 1e-9))
}

func TestSolveChainClampsReach(t *testing.T) {
	skel := legSkeleton(t, mathutil.Vec3{0, 0, 1})
	p := pose.New(skel.NumBones())
	p.InitBase(skel, studio.BoneUsedByAnything)
	m := buildLeg(skel, p)

	require.NoError(t, SolveChain(&skel.IKChains[0], mathutil.Vec3{0, 0, -50}, m, KneeMaxEpsilon))
	got := m.World[3].Position().Dist(m.World[1].Position())
	assert.InDelta(t, 10*KneeMaxEpsilon, got, 1e-9)
}

func TestSolveChainFailureLeavesMatrices(t *testing.T) {
	// no knee hint and a straight leg: the bend direction is undefined
	skel := legSkeleton(t, mathutil.Vec3{})
	p := pose.New(skel.NumBones())
	p.InitBase(skel, studio.BoneUsedByAnything)
	m := buildLeg(skel, p)
	before := append([]mathutil.Mat3x4(nil), m.World...)

	err := SolveChain(&skel.IKChains[0], mathutil.Vec3{1, 0, 3}, m, KneeMaxEpsilon)
	assert.ErrorIs(t, err, ErrNoSolution)
	assert.Equal(t, before, m.World)

	// bending the knee first gives the solver a direction
	p.Q[2] = mathutil.QuatAxisAngle(mathutil.Vec3{0, 1, 0}, -0.4)
	m = buildLeg(skel, p)
	require.NoError(t, SolveChain(&skel.IKChains[0], mathutil.Vec3{1, 0, 3}, m, KneeMaxEpsilon))
	assert.True(t, m.World[3].Position().ApproxEqual(mathutil.Vec3{1, 0, 3}, 1e-9))
}
