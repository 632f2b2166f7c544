package character

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-pose/internal/anim"
	"studio-pose/internal/bonecache"
	"studio-pose/internal/ik"
	"studio-pose/internal/mathutil"
	"studio-pose/internal/studio"
)

func loop(name string) *studio.Sequence {
	return &studio.Sequence{
		Name:      name,
		Flags:     studio.SeqLooping,
		Group:     [2]int{1, 1},
		Param:     [2]int{-1, -1},
		Anims:     []int{0},
		CyclePose: -1,
	}
}

// twoBones is a root at the origin and a child ten units up, animated by a
// single non-delta clip that holds both at rest.
func twoBones(t *testing.T) *studio.Model {
	t.Helper()
	bones := []studio.Bone{
		{Name: "root", Parent: -1, Flags: studio.BoneUsedByVertex},
		{Name: "child", Parent: 0, Flags: studio.BoneUsedByVertex, Pos: mathutil.Vec3{0, 0, 10}},
	}
	skel, err := studio.NewSkeleton("pair", bones, nil, nil, nil)
	require.NoError(t, err)

	const frames = 4
	still := make([]mathutil.Vec3, frames)
	a := &studio.Animation{Name: "idle", FPS: 30, NumFrames: frames, Flags: studio.AnimLooping}
	for i := range bones {
		a.Tracks = append(a.Tracks, anim.EncodeBoneTrack(i, &skel.Bones[i], still, still, false))
	}
	m, err := studio.NewModel(skel, []*studio.Animation{a}, []*studio.Sequence{loop("idle")})
	require.NoError(t, err)
	return m
}

func TestSetupRestClip(t *testing.T) {
	m := twoBones(t)
	c := New(m, nil, nil, Config{NoIK: true})

	world, err := c.Setup(Frame{Root: mathutil.Mat3x4Identity(), Layers: []Layer{{Sequence: 0, Cycle: 0.5, Weight: 1}}})
	require.NoError(t, err)

	for i, b := range m.Skel.Bones {
		assert.Equal(t, b.Pos, c.Pose().Pos[i], "bone %d", i)
		assert.Equal(t, b.Quat, c.Pose().Q[i], "bone %d", i)
	}
	assert.Equal(t, mathutil.Mat3x4Identity(), world.World[0])
	want := mathutil.Mat3x4FromQuatPos(mathutil.QuatIdentity(), mathutil.Vec3{0, 0, 10})
	assert.Equal(t, want, world.World[1])
}

func TestSetupRejectsUnknownSequence(t *testing.T) {
	c := New(twoBones(t), nil, nil, Config{NoIK: true})
	_, err := c.Setup(Frame{Root: mathutil.Mat3x4Identity(), Layers: []Layer{{Sequence: 3, Weight: 1}}})
	assert.Error(t, err)
}

// swinging is twoBones with the child sliding one unit along x per frame.
func swinging(t *testing.T) *studio.Model {
	t.Helper()
	bones := []studio.Bone{
		{Name: "root", Parent: -1, Flags: studio.BoneUsedByVertex},
		{Name: "child", Parent: 0, Flags: studio.BoneUsedByVertex, Pos: mathutil.Vec3{0, 0, 10},
			PosScale: mathutil.Vec3{0.001, 0.001, 0.001}},
	}
	skel, err := studio.NewSkeleton("swing", bones, nil, nil, nil)
	require.NoError(t, err)

	const frames = 4
	still := make([]mathutil.Vec3, frames)
	slide := make([]mathutil.Vec3, frames)
	for k := range slide {
		slide[k] = mathutil.Vec3{float64(k), 0, 0}
	}
	a := &studio.Animation{Name: "swing", FPS: 30, NumFrames: frames, Flags: studio.AnimLooping}
	a.Tracks = append(a.Tracks,
		anim.EncodeBoneTrack(0, &skel.Bones[0], still, still, false),
		anim.EncodeBoneTrack(1, &skel.Bones[1], slide, still, false))
	m, err := studio.NewModel(skel, []*studio.Animation{a}, []*studio.Sequence{loop("swing")})
	require.NoError(t, err)
	return m
}

func at(cycle, time float64) Frame {
	return Frame{Root: mathutil.Mat3x4Identity(), Time: time, Layers: []Layer{{Sequence: 0, Cycle: cycle, Weight: 1}}}
}

// uncached evaluates f on a fresh character without a cache.
func uncached(t *testing.T, m *studio.Model, cfg Config, f Frame) []mathutil.Mat3x4 {
	t.Helper()
	w, err := New(m, nil, nil, cfg).Setup(f)
	require.NoError(t, err)
	return slices.Clone(w.World)
}

func TestSetupReusesOwnCache(t *testing.T) {
	m := swinging(t)
	cache := bonecache.New(bonecache.DefaultBudget)
	c := New(m, cache, nil, Config{NoIK: true, CacheTolerance: 0.01})

	w1, err := c.Setup(at(0.25, 1))
	require.NoError(t, err)
	first := slices.Clone(w1.World)
	n := c.Evaluator().Recomputed()
	assert.Positive(t, n)

	w2, err := c.Setup(at(0.25, 1.005))
	require.NoError(t, err)
	assert.Equal(t, n, c.Evaluator().Recomputed(), "a cache hit composes nothing")
	assert.Equal(t, first, w2.World)

	_, err = c.Setup(at(0.25, 2))
	require.NoError(t, err)
	assert.Greater(t, c.Evaluator().Recomputed(), n)

	st := cache.Stats()
	assert.EqualValues(t, 1, st.Hits)
	assert.EqualValues(t, 2, st.Misses)
	assert.Equal(t, 1, st.Entries)
}

func TestSetupKeepsInstancesApart(t *testing.T) {
	m := swinging(t)
	cfg := Config{NoIK: true, CacheTolerance: 0.01}
	cache := bonecache.New(bonecache.DefaultBudget)
	a := New(m, cache, nil, cfg)
	b := New(m, cache, nil, cfg)
	require.NotEqual(t, a.ID(), b.ID())

	wa, err := a.Setup(at(0.1, 1))
	require.NoError(t, err)
	gotA := slices.Clone(wa.World)

	wb, err := b.Setup(at(0.6, 1))
	require.NoError(t, err)
	assert.Positive(t, b.Evaluator().Recomputed(), "another instance must not hit")
	assert.Equal(t, uncached(t, m, cfg, at(0.6, 1)), wb.World)
	assert.NotEqual(t, gotA[1], wb.World[1])

	wa, err = a.Setup(at(0.1, 1))
	require.NoError(t, err)
	assert.Equal(t, gotA, wa.World)
	assert.Equal(t, 2, cache.Stats().Entries)
}

func TestSetupRecomputesChangedInputs(t *testing.T) {
	m := swinging(t)
	cfg := Config{NoIK: true, CacheTolerance: 0.01}
	c := New(m, bonecache.New(bonecache.DefaultBudget), nil, cfg)

	_, err := c.Setup(at(0.1, 1))
	require.NoError(t, err)
	n := c.Evaluator().Recomputed()

	w, err := c.Setup(at(0.6, 1))
	require.NoError(t, err)
	assert.Greater(t, c.Evaluator().Recomputed(), n)
	assert.Equal(t, uncached(t, m, cfg, at(0.6, 1)), w.World)
}

func leg(t *testing.T) *studio.Model {
	t.Helper()
	v := studio.BoneUsedByVertex
	bones := []studio.Bone{
		{Name: "pelvis", Parent: -1, Flags: v},
		{Name: "hip", Parent: 0, Flags: v, Pos: mathutil.Vec3{0, 0, 10}, Quat: mathutil.QuatAxisAngle(mathutil.Vec3{0, 1, 0}, math.Pi/2)},
		{Name: "knee", Parent: 1, Flags: v, Pos: mathutil.Vec3{5, 0, 0}},
		{Name: "foot", Parent: 2, Flags: v, Pos: mathutil.Vec3{5, 0, 0}},
	}
	chains := []studio.IKChain{{Name: "leg", Links: [3]studio.IKLink{{Bone: 1, KneeDir: mathutil.Vec3{0, 0, 1}}, {Bone: 2}, {Bone: 3}}}}
	skel, err := studio.NewSkeleton("leg", bones, nil, chains, nil)
	require.NoError(t, err)

	rule := studio.IKRule{Type: studio.IKGround, Chain: 0, Slot: 0, Bone: -1, Start: 0, Peak: 0, Tail: 1, End: 1, Q: mathutil.QuatIdentity()}
	a := &studio.Animation{Name: "stand", FPS: 30, NumFrames: 2, Flags: studio.AnimLooping, IKRules: []studio.IKRule{rule}}
	m, err := studio.NewModel(skel, []*studio.Animation{a}, []*studio.Sequence{loop("stand")})
	require.NoError(t, err)
	return m
}

func TestSetupPlantsFootOnGround(t *testing.T) {
	tests := []struct {
		name   string
		noIK   bool
		ground []Ground
		want   mathutil.Vec3
	}{
		{name: "raised floor", ground: []Ground{{Slot: 0, Height: 2}}, want: mathutil.Vec3{0, 0, 2}},
		{name: "step", ground: []Ground{{Slot: 0, Height: 4.5}}, want: mathutil.Vec3{0, 0, 4.5}},
		{name: "ik disabled", noIK: true, ground: []Ground{{Slot: 0, Height: 2}}, want: mathutil.Vec3{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(leg(t), nil, nil, Config{IK: ik.DefaultConfig(), NoIK: tt.noIK})
			world, err := c.Setup(Frame{
				Root:   mathutil.Mat3x4Identity(),
				Layers: []Layer{{Sequence: 0, Cycle: 0.5, Weight: 1}},
				Ground: tt.ground,
			})
			require.NoError(t, err)
			foot := world.World[3].Position()
			assert.True(t, foot.ApproxEqual(tt.want, 1e-6), "foot %v", foot)
			assert.InDelta(t, 5, world.World[2].Position().Dist(world.World[1].Position()), 1e-6)
		})
	}
}

func TestSetupRejectsBadGroundSlot(t *testing.T) {
	c := New(leg(t), nil, nil, Config{IK: ik.DefaultConfig()})
	_, err := c.Setup(Frame{Root: mathutil.Mat3x4Identity(), Ground: []Ground{{Slot: ik.MaxTargets}}})
	assert.Error(t, err)
}

func TestSetupCacheHitAdvancesIK(t *testing.T) {
	m := leg(t)
	c := New(m, bonecache.New(bonecache.DefaultBudget), nil, Config{IK: ik.DefaultConfig(), CacheTolerance: 0.01})
	f := Frame{Root: mathutil.Mat3x4Identity(), Time: 1, Layers: []Layer{{Sequence: 0, Cycle: 0.5, Weight: 1}}, Ground: []Ground{{Slot: 0, Height: 2}}}

	_, err := c.Setup(f)
	require.NoError(t, err)
	n := c.Evaluator().Recomputed()

	f.Time, f.Frame = 1.005, 1
	_, err = c.Setup(f)
	require.NoError(t, err)
	assert.Equal(t, n, c.Evaluator().Recomputed())
	assert.Equal(t, 1.005, c.IK().Time())

	f.Time, f.Frame = 1.1, 2
	world, err := c.Setup(f)
	require.NoError(t, err)
	assert.Greater(t, c.Evaluator().Recomputed(), n)
	tgt, ok := c.IK().Target(0)
	require.True(t, ok)
	assert.Equal(t, 0, tgt.Chain)
	assert.True(t, world.World[3].Position().ApproxEqual(mathutil.Vec3{0, 0, 2}, 1e-6))
}
