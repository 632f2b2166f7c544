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

var (
	xAxis = mathutil.Vec3{1, 0, 0}
	zAxis = mathutil.Vec3{0, 0, 1}
)

func rigSkeleton(t *testing.T) *studio.Skeleton {
	t.Helper()
	quarter := mathutil.QuatAxisAngle(zAxis, math.Pi/2)
	v := studio.BoneUsedByVertex
	bones := []studio.Bone{
		{Name: "root", Parent: -1, Flags: v},
		{Name: "control", Parent: 0, Flags: v},
		{Name: "qi", Parent: 0, Flags: v, Proc: &studio.QuatInterp{
			Control: 1,
			Triggers: []studio.QuatTrigger{
				{InvTolerance: 2 / math.Pi, Trigger: mathutil.QuatIdentity(), Pos: mathutil.Vec3{1, 0, 0}, Quat: mathutil.QuatIdentity()},
				{InvTolerance: 2 / math.Pi, Trigger: quarter, Pos: mathutil.Vec3{0, 1, 0}, Quat: quarter},
			},
		}},
		{Name: "ai", Parent: 0, Flags: v, Proc: &studio.AxisInterp{
			Control: 1,
			Pos:     [6]mathutil.Vec3{{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1}},
			Quat: [6]mathutil.Quat{
				mathutil.QuatIdentity(), mathutil.QuatIdentity(),
				quarter, quarter,
				mathutil.QuatIdentity(), mathutil.QuatIdentity(),
			},
		}},
		{Name: "target", Parent: 0, Flags: v, Pos: mathutil.Vec3{0, 10, 0}},
		{Name: "aim", Parent: 0, Flags: v, Proc: &studio.AimAtBone{AimAt: studio.AimAt{
			Parent: 0, Target: 4, Aim: xAxis, Up: zAxis,
		}}},
		{Name: "master", Parent: 0, Flags: v, Proc: &studio.TwistMaster{
			Target: 1, Axis: xAxis,
			Slaves: []studio.TwistSlave{{Bone: 7, Weight: 0.5, Pos: mathutil.Vec3{1, 0, 0}}},
		}},
		{Name: "slave", Parent: 0, Flags: v, Proc: &studio.TwistSlaveRef{Master: 6}},
		{Name: "hitbox", Parent: 0, Flags: studio.BoneUsedByHitbox, Proc: &studio.AimAtAttachment{AimAt: studio.AimAt{
			Parent: 0, Target: 0, Aim: xAxis, Up: zAxis,
		}}},
	}
	atts := []studio.Attachment{{Name: "tip", Bone: 4, Local: mathutil.FromMat3Translation(mathutil.Mat3Identity(), mathutil.Vec3{0, 0, 5})}}
	skel, err := studio.NewSkeleton("rig", bones, atts, nil, nil)
	require.NoError(t, err)
	return skel
}

func buildRig(t *testing.T, control mathutil.Quat) (*studio.Skeleton, *pose.Matrices) {
	t.Helper()
	skel := rigSkeleton(t)
	p := basePose(skel)
	p.Q[1] = control
	m := pose.NewMatrices(skel.NumBones())
	NewEvaluator(skel).BuildAll(mathutil.Mat3x4Identity(), p, all, m)
	return skel, m
}

func TestQuatInterp(t *testing.T) {
	quarter := mathutil.QuatAxisAngle(zAxis, math.Pi/2)
	tests := []struct {
		name    string
		control mathutil.Quat
		pos     mathutil.Vec3
		rot     mathutil.Quat
	}{
		{"first trigger", mathutil.QuatIdentity(), mathutil.Vec3{1, 0, 0}, mathutil.QuatIdentity()},
		{"second trigger", quarter, mathutil.Vec3{0, 1, 0}, quarter},
		{"no trigger in range", mathutil.QuatAxisAngle(xAxis, math.Pi), mathutil.Vec3{1, 0, 0}, mathutil.QuatIdentity()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, m := buildRig(t, tt.control)
			q, pos := m.World[2].QuatPos()
			assert.True(t, pos.ApproxEqual(tt.pos, 1e-9), "pos %v", pos)
			assert.True(t, q.ApproxEqual(tt.rot, 1e-9), "rot %v", q)
		})
	}

	// halfway between the triggers both contribute equally
	_, m := buildRig(t, mathutil.QuatAxisAngle(zAxis, math.Pi/4))
	q, pos := m.World[2].QuatPos()
	assert.True(t, pos.ApproxEqual(mathutil.Vec3{0.5, 0.5, 0}, 1e-9), "pos %v", pos)
	assert.True(t, q.ApproxEqual(mathutil.QuatAxisAngle(zAxis, math.Pi/4), 1e-9))
}

func TestAxisInterp(t *testing.T) {
	_, m := buildRig(t, mathutil.QuatIdentity())
	assert.True(t, m.World[3].Position().ApproxEqual(mathutil.Vec3{1, 0, 0}, 1e-9))

	_, m = buildRig(t, mathutil.QuatAxisAngle(zAxis, -math.Pi/2))
	q, pos := m.World[3].QuatPos()
	assert.True(t, pos.ApproxEqual(mathutil.Vec3{0, -1, 0}, 1e-9), "pos %v", pos)
	assert.True(t, q.ApproxEqual(mathutil.QuatAxisAngle(zAxis, math.Pi/2), 1e-9))
}

func TestAimAtBone(t *testing.T) {
	_, m := buildRig(t, mathutil.QuatIdentity())
	r := m.World[5].Rotation()
	assert.True(t, r.Column(0).ApproxEqual(mathutil.Vec3{0, 1, 0}, 1e-9), "aim %v", r.Column(0))
	assert.True(t, r.Column(2).ApproxEqual(zAxis, 1e-9), "up %v", r.Column(2))
}

func TestAimAtAttachment(t *testing.T) {
	_, m := buildRig(t, mathutil.QuatIdentity())
	aim := m.World[8].Rotation().Column(0)
	want := mathutil.Vec3{0, 10, 5}.Normalize()
	assert.True(t, aim.ApproxEqual(want, 1e-9), "aim %v", aim)
}

func TestTwistMasterDrivesSlaves(t *testing.T) {
	skel, m := buildRig(t, mathutil.QuatAxisAngle(xAxis, 0.8))
	q, pos := m.World[7].QuatPos()
	assert.True(t, q.ApproxEqual(mathutil.QuatAxisAngle(xAxis, 0.4), 1e-9))
	assert.Equal(t, mathutil.Vec3{1, 0, 0}, pos)

	// a slave whose master is masked out falls back to its pose
	skel.Bones[6].Flags = studio.BoneUsedByHitbox
	p := basePose(skel)
	p.Q[1] = mathutil.QuatAxisAngle(xAxis, 0.8)
	m = pose.NewMatrices(skel.NumBones())
	NewEvaluator(skel).BuildAll(mathutil.Mat3x4Identity(), p, studio.BoneUsedByVertex, m)
	q, _ = m.World[7].QuatPos()
	assert.True(t, q.ApproxEqual(mathutil.QuatIdentity(), 1e-12))
}

func TestTwistAngle(t *testing.T) {
	for _, a := range []float64{0, 0.5, -1.2, 3} {
		q := mathutil.QuatAxisAngle(xAxis, a)
		assert.InDelta(t, a, TwistAngle(q, xAxis), 1e-12)
		assert.InDelta(t, a, TwistAngle(q.Neg(), xAxis), 1e-12)
	}
}
