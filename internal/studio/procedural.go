package studio

import (
	"errors"
	"fmt"

	"studio-pose/internal/mathutil"
)

// ProcKind tags a procedural bone variant.
type ProcKind int

const (
	ProcAxisInterp ProcKind = iota + 1
	ProcQuatInterp
	ProcAimAtBone
	ProcAimAtAttachment
	ProcTwistMaster
	ProcTwistSlave
)

func (k ProcKind) String() string {
	switch k {
	case ProcAxisInterp:
		return "axis-interp"
	case ProcQuatInterp:
		return "quat-interp"
	case ProcAimAtBone:
		return "aim-at-bone"
	case ProcAimAtAttachment:
		return "aim-at-attachment"
	case ProcTwistMaster:
		return "twist-master"
	case ProcTwistSlave:
		return "twist-slave"
	}
	return fmt.Sprintf("ProcKind(%d)", int(k))
}

// Procedural is implemented by the closed set of procedural bone variants below.
type Procedural interface {
	Kind() ProcKind
}

// AxisInterp drives a bone from how far a control bone's X axis leans
// toward each of six signed axes.
type AxisInterp struct {
	Control int
	Pos     [6]mathutil.Vec3 // +X, -X, +Y, -Y, +Z, -Z
	Quat    [6]mathutil.Quat
}

// QuatTrigger is one sample of a QuatInterp bone.
type QuatTrigger struct {
	InvTolerance float64 // 1 / angular tolerance in radians
	Trigger      mathutil.Quat
	Pos          mathutil.Vec3
	Quat         mathutil.Quat
}

// QuatInterp blends trigger outputs by angular closeness of the control bone's local rotation.
type QuatInterp struct {
	Control  int
	Triggers []QuatTrigger
}

// AimAt rotates a bone so its Aim axis points at a target and its Up axis
// follows the parent's up.
type AimAt struct {
	Parent int
	Target int // bone index, or attachment index for AimAtAttachment
	Aim    mathutil.Vec3
	Up     mathutil.Vec3
	Offset mathutil.Vec3 // local position relative to Parent
}

// AimAtBone aims at another bone's origin.
type AimAtBone struct{ AimAt }

// AimAtAttachment aims at an attachment's origin.
type AimAtAttachment struct{ AimAt }

// TwistSlave is a bone receiving a fraction of its master's twist.
type TwistSlave struct {
	Bone   int
	Weight float64
	Pos    mathutil.Vec3 // local position under the slave's own parent
}

// TwistMaster measures the twist of Target about Axis and distributes it to its slaves.
type TwistMaster struct {
	Target  int
	Axis    mathutil.Vec3
	Inverse bool
	Slaves  []TwistSlave
}

// TwistSlaveRef marks a bone evaluated by its master.
type TwistSlaveRef struct {
	Master int
}

func (*AxisInterp) Kind() ProcKind      { return ProcAxisInterp }
func (*QuatInterp) Kind() ProcKind      { return ProcQuatInterp }
func (*AimAtBone) Kind() ProcKind       { return ProcAimAtBone }
func (*AimAtAttachment) Kind() ProcKind { return ProcAimAtAttachment }
func (*TwistMaster) Kind() ProcKind     { return ProcTwistMaster }
func (*TwistSlaveRef) Kind() ProcKind   { return ProcTwistSlave }

var errEmptyTriggers = errors.New("quat-interp bone has no triggers")

func validateProc(p Procedural, inRange func(int) bool, numAttachments int) error {
	switch v := p.(type) {
	case nil:
		return nil
	case *AxisInterp:
		if !inRange(v.Control) {
			return fmt.Errorf("%s control %d out of range", v.Kind(), v.Control)
		}
	case *QuatInterp:
		if !inRange(v.Control) {
			return fmt.Errorf("%s control %d out of range", v.Kind(), v.Control)
		}
		if len(v.Triggers) == 0 {
			return errEmptyTriggers
		}
	case *AimAtBone:
		if !inRange(v.Parent) || !inRange(v.Target) {
			return fmt.Errorf("%s references out of range", v.Kind())
		}
	case *AimAtAttachment:
		if !inRange(v.Parent) || v.Target < 0 || v.Target >= numAttachments {
			return fmt.Errorf("%s references out of range", v.Kind())
		}
	case *TwistMaster:
		if !inRange(v.Target) {
			return fmt.Errorf("%s target %d out of range", v.Kind(), v.Target)
		}
		for _, s := range v.Slaves {
			if !inRange(s.Bone) {
				return fmt.Errorf("%s slave %d out of range", v.Kind(), s.Bone)
			}
		}
	case *TwistSlaveRef:
		if !inRange(v.Master) {
			return fmt.Errorf("%s master %d out of range", v.Kind(), v.Master)
		}
	default:
		return fmt.Errorf("unknown procedural type %T", p)
	}
	return nil
}
