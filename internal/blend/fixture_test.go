package blend

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"studio-pose/internal/mathutil"
	"studio-pose/internal/pose"
	"studio-pose/internal/studio"
)

var zAxis = mathutil.Vec3{0, 0, 1}

func rotZ(angle float64) mathutil.Quat { return mathutil.QuatAxisAngle(zAxis, angle) }

// chainSkeleton is a straight chain of n bones one unit apart with two
// pose parameters covering [0, 1].
func chainSkeleton(t *testing.T, n int) *studio.Skeleton {
	t.Helper()
	bones := make([]studio.Bone, n)
	bones[0] = studio.Bone{Name: "root", Parent: -1, Flags: studio.BoneUsedByVertex}
	for i := 1; i < n; i++ {
		bones[i] = studio.Bone{Name: fmt.Sprintf("b%d", i), Parent: i - 1, Flags: studio.BoneUsedByVertex, Pos: zAxis}
	}
	params := []studio.PoseParam{{Name: "move_x", Start: 0, End: 1}, {Name: "move_y", Start: 0, End: 1}}
	skel, err := studio.NewSkeleton("chain", bones, nil, nil, params)
	require.NoError(t, err)
	return skel
}

// holdAnim keeps every bone at a rotation of angle about z and at pos.
func holdAnim(skel *studio.Skeleton, name string, angle float64, pos mathutil.Vec3) *studio.Animation {
	tracks := make([]studio.BoneTrack, skel.NumBones())
	for i := range tracks {
		tracks[i] = studio.BoneTrack{
			Bone:   i,
			Flags:  studio.TrackRawPos | studio.TrackRawRot,
			RawPos: pos,
			RawRot: rotZ(angle),
		}
	}
	return &studio.Animation{Name: name, FPS: 30, NumFrames: 2, Flags: studio.AnimLooping, Tracks: tracks}
}

func single(name string, anim int, flags studio.SeqFlags) *studio.Sequence {
	return &studio.Sequence{
		Name:      name,
		Flags:     flags,
		Group:     [2]int{1, 1},
		Param:     [2]int{-1, -1},
		Anims:     []int{anim},
		CyclePose: -1,
	}
}

const (
	seqGrid = iota
	seqTurn
	seqCarrier
	seqOverlay
)

// gridModel has a 2x2 grid whose corner rotations and positions are linear
// in the pose parameters: angle = 0.4*x + 0.8*y, pos = (x, y, 0).
func gridModel(t *testing.T) *studio.Model {
	t.Helper()
	skel := chainSkeleton(t, 6)
	anims := []*studio.Animation{
		holdAnim(skel, "a", 0, mathutil.Vec3{0, 0, 0}),
		holdAnim(skel, "b", 0.4, mathutil.Vec3{1, 0, 0}),
		holdAnim(skel, "c", 0.8, mathutil.Vec3{0, 1, 0}),
		holdAnim(skel, "d", 1.2, mathutil.Vec3{1, 1, 0}),
		holdAnim(skel, "turn", 1.0, mathutil.Vec3{0, 0, 2}),
	}
	grid := &studio.Sequence{
		Name:      "grid",
		Flags:     studio.SeqLooping,
		Group:     [2]int{2, 2},
		Param:     [2]int{0, 1},
		Anims:     []int{0, 1, 2, 3},
		CyclePose: -1,
	}
	carrier := single("carrier", 0, studio.SeqLooping)
	carrier.Layers = []studio.AutoLayer{{Sequence: seqOverlay, Start: 0, Peak: 0.5, Tail: 0.5, End: 1}}
	seqs := []*studio.Sequence{
		grid,
		single("turn", 4, studio.SeqLooping),
		carrier,
		single("overlay", 3, studio.SeqLooping),
	}
	m, err := studio.NewModel(skel, anims, seqs)
	require.NoError(t, err)
	return m
}

type countingProvider struct {
	*studio.Model
	decodes int
}

func (c *countingProvider) Animation(i int) (*studio.Animation, error) {
	c.decodes++
	return c.Model.Animation(i)
}

func basePose(skel *studio.Skeleton) *pose.Pose {
	p := pose.New(skel.NumBones())
	p.InitBase(skel, studio.BoneUsedByAnything)
	return p
}
