package skeleton

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-pose/internal/mathutil"
	"studio-pose/internal/pose"
	"studio-pose/internal/studio"
)

const all = studio.BoneUsedByAnything

func armSkeleton(t *testing.T) *studio.Skeleton {
	t.Helper()
	bones := []studio.Bone{
		{Name: "root", Parent: -1, Flags: studio.BoneUsedByVertex},
		{Name: "shoulder", Parent: 0, Flags: studio.BoneUsedByVertex, Pos: mathutil.Vec3{0, 0, 10}},
		{Name: "elbow", Parent: 1, Flags: studio.BoneUsedByVertex, Pos: mathutil.Vec3{5, 0, 0}},
		{Name: "hand", Parent: 2, Flags: studio.BoneUsedByVertex, Pos: mathutil.Vec3{4, 0, 0}},
		{Name: "clavicle", Parent: 1, Flags: studio.BoneUsedByHitbox, Pos: mathutil.Vec3{0, 2, 0}},
	}
	skel, err := studio.NewSkeleton("arm", bones, nil, nil, nil)
	require.NoError(t, err)
	return skel
}

func basePose(skel *studio.Skeleton) *pose.Pose {
	p := pose.New(skel.NumBones())
	p.InitBase(skel, all)
	return p
}

func TestBuildChainMemoizes(t *testing.T) {
	skel := armSkeleton(t)
	p := basePose(skel)
	m := pose.NewMatrices(skel.NumBones())
	e := NewEvaluator(skel)

	w := e.BuildChain(mathutil.Mat3x4Identity(), p, 3, m)
	assert.Equal(t, mathutil.Vec3{9, 0, 10}, w.Position())
	assert.Equal(t, 4, e.Recomputed())

	again := e.BuildChain(mathutil.Mat3x4Identity(), p, 3, m)
	assert.Equal(t, w, again)
	assert.Equal(t, 4, e.Recomputed(), "second request must not recompose")

	e.BuildChain(mathutil.Mat3x4Identity(), p, 4, m)
	assert.Equal(t, 5, e.Recomputed(), "sibling reuses its computed parent")

	m.Computed.Clear(2)
	e.BuildChain(mathutil.Mat3x4Identity(), p, 2, m)
	assert.Equal(t, 6, e.Recomputed())

	e.ResetCounter()
	assert.Zero(t, e.Recomputed())
}

func TestBuildChainRootTransform(t *testing.T) {
	skel := armSkeleton(t)
	p := basePose(skel)
	p.Q[1] = mathutil.QuatAxisAngle(mathutil.Vec3{0, 0, 1}, math.Pi/2)
	m := pose.NewMatrices(skel.NumBones())
	e := NewEvaluator(skel)

	root := mathutil.FromMat3Translation(mathutil.Mat3Identity(), mathutil.Vec3{100, 0, 0})
	w := e.BuildChain(root, p, 3, m)
	assert.True(t, w.Position().ApproxEqual(mathutil.Vec3{100, 9, 10}, 1e-9), "got %v", w.Position())
}

func TestBuildChainPartial(t *testing.T) {
	skel := armSkeleton(t)
	p := basePose(skel)
	e := NewEvaluator(skel)
	c := NewChain(skel.NumBones())
	c.Reset(mathutil.Mat3x4Identity(), 2)

	w, err := e.BuildChainPartial(c, p, 3)
	require.NoError(t, err)
	assert.Equal(t, mathutil.Vec3{9, 0, 0}, w.Position())
	assert.Equal(t, 2, e.Recomputed())
	_, ok := c.Get(1)
	assert.False(t, ok, "composition stops at the partial root")

	again, err := e.BuildChainPartial(c, p, 3)
	require.NoError(t, err)
	assert.Equal(t, w, again)
	assert.Equal(t, 2, e.Recomputed(), "repeat request reuses the chain")

	elbow, err := e.BuildChainPartial(c, p, 2)
	require.NoError(t, err)
	assert.Equal(t, mathutil.Vec3{5, 0, 0}, elbow.Position())
	assert.Equal(t, 2, e.Recomputed())

	_, err = e.BuildChainPartial(c, p, 4)
	assert.Error(t, err, "clavicle is not under the elbow")

	c.Reset(mathutil.Mat3x4Identity(), 2)
	_, err = e.BuildChainPartial(c, p, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, e.Recomputed())
}

func TestBuildChainPartialKeepsWorldIntact(t *testing.T) {
	skel := armSkeleton(t)
	p := basePose(skel)
	e := NewEvaluator(skel)
	m := pose.NewMatrices(skel.NumBones())
	c := NewChain(skel.NumBones())

	e.BuildChain(mathutil.Mat3x4Identity(), p, 1, m)
	c.Reset(mathutil.Mat3x4Identity(), 2)
	_, err := e.BuildChainPartial(c, p, 3)
	require.NoError(t, err)
	assert.False(t, m.Computed.Has(2))
	assert.False(t, m.Computed.Has(3))

	hand := e.BuildChain(mathutil.Mat3x4Identity(), p, 3, m)
	assert.Equal(t, mathutil.Vec3{9, 0, 10}, hand.Position())
}

func TestSolveBoneInvertsBuild(t *testing.T) {
	skel := armSkeleton(t)
	p := basePose(skel)
	p.Q[1] = mathutil.EulerToQuat(0.3, -0.2, 1.1)
	p.Q[2] = mathutil.EulerToQuat(-0.5, 0.4, 0.1)
	p.Pos[3] = mathutil.Vec3{4, 1, -1}
	m := pose.NewMatrices(skel.NumBones())
	e := NewEvaluator(skel)
	e.BuildAll(mathutil.Mat3x4Identity(), p, all, m)

	got := pose.New(skel.NumBones())
	for i := range skel.Bones {
		SolveBone(skel, i, m, got)
		assert.True(t, got.Q[i].ApproxEqual(p.Q[i], 1e-9), "bone %d rot", i)
		assert.True(t, got.Pos[i].ApproxEqual(p.Pos[i], 1e-9), "bone %d pos", i)
	}
}

func TestBuildAllRespectsMask(t *testing.T) {
	skel := armSkeleton(t)
	p := basePose(skel)
	m := pose.NewMatrices(skel.NumBones())
	e := NewEvaluator(skel)

	e.BuildAll(mathutil.Mat3x4Identity(), p, studio.BoneUsedByVertex, m)
	for i := 0; i < 4; i++ {
		assert.True(t, m.Computed.Has(i), "bone %d", i)
	}
	assert.False(t, m.Computed.Has(4))
	assert.Equal(t, 4, e.Recomputed())
}
