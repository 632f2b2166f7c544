package studio

import "studio-pose/internal/mathutil"

// AnimFlags describe how an animation is played and composed.
type AnimFlags uint32

const (
	AnimLooping AnimFlags = 1 << iota
	AnimDelta             // values are offsets from the current pose
	AnimPost              // deltas are applied after the base rotation
)

// AnimValue is one slot of a run-length value track. A track is a series of
// blocks, each a header slot followed by Valid() raw samples.
type AnimValue int16

// AnimHeader packs a block header.
func AnimHeader(valid, total uint8) AnimValue {
	return AnimValue(int16(uint16(valid) | uint16(total)<<8))
}

// Valid is the number of distinct samples stored in the block.
func (v AnimValue) Valid() int { return int(uint16(v) & 0xff) }

// Total is the number of frames the block spans.
func (v AnimValue) Total() int { return int(uint16(v) >> 8) }

// ValueTrack is a run-length compressed channel. A nil track is a constant zero.
type ValueTrack []AnimValue

// Channels are the compressed position and Euler-rotation tracks of one bone.
type Channels struct {
	PosScale mathutil.Vec3
	RotScale mathutil.Vec3
	Pos      [3]ValueTrack
	Rot      [3]ValueTrack
}

// HasPos reports whether any position channel carries data.
func (c *Channels) HasPos() bool {
	return c.Pos[0] != nil || c.Pos[1] != nil || c.Pos[2] != nil
}

// HasRot reports whether any rotation channel carries data.
func (c *Channels) HasRot() bool {
	return c.Rot[0] != nil || c.Rot[1] != nil || c.Rot[2] != nil
}

// TrackFlags select how a BoneTrack stores each component.
type TrackFlags uint8

const (
	TrackRawPos  TrackFlags = 1 << iota // constant RawPos
	TrackRawRot                         // constant RawRot
	TrackAnimPos                        // compressed position channels
	TrackAnimRot                        // compressed rotation channels
)

// BoneTrack is the compressed-keyframe data of one bone.
type BoneTrack struct {
	Bone   int
	Flags  TrackFlags
	RawPos mathutil.Vec3
	RawRot mathutil.Quat
	Channels
}

// Frame-array per-bone flags.
const (
	FrameConstPos    uint8 = 1 << iota // one Vec48 in the constant stream
	FrameConstRot                      // one Quat48 in the constant stream
	FrameAnimPos                       // one Vec48 per frame
	FrameAnimRot                       // one Quat48 per frame
	FrameFullAnimPos                   // three float32 per frame
)

// Encoded sizes in bytes.
const (
	Quat48Size  = 6
	Vec48Size   = 6
	FullPosSize = 12
)

// FrameArray is a fixed-stride block of quantized frames.
type FrameArray struct {
	BoneFlags   []uint8 // one per skeleton bone
	Constants   []byte
	Frames      []byte // NumFrames * FrameLength
	FrameLength int
}

// ZeroFrameBone holds the snapshot series of one bone.
type ZeroFrameBone struct {
	Pos []mathutil.Vec3 // len Count, or nil
	Rot []mathutil.Quat // len Count, or nil
}

// ZeroFrames is the low-detail fallback kept resident when keyframes are paged out.
type ZeroFrames struct {
	Span  int // frames between snapshots
	Count int
	Bones []ZeroFrameBone // one per skeleton bone
}

// LocalHierarchy temporarily reparents Bone under NewParent over a cycle window.
type LocalHierarchy struct {
	Bone      int
	NewParent int
	Start     float64
	Peak      float64
	Tail      float64
	End       float64
	Local     *Channels // offset from NewParent; nil means coincident
}

// IKRuleType selects how an IK rule places its chain.
type IKRuleType int

const (
	IKSelf IKRuleType = iota + 1
	IKWorld
	IKGround
	IKRelease
	IKAttachment
	IKUnlatch
)

func (t IKRuleType) String() string {
	switch t {
	case IKSelf:
		return "self"
	case IKWorld:
		return "world"
	case IKGround:
		return "ground"
	case IKRelease:
		return "release"
	case IKAttachment:
		return "attachment"
	case IKUnlatch:
		return "unlatch"
	}
	return "unknown"
}

// IKRule is one IK constraint authored in an animation.
type IKRule struct {
	Type       IKRuleType
	Chain      int
	Slot       int // target slot, -1 for none
	Bone       int // reference bone for IKSelf, -1 for the root
	Attachment int

	Start, Peak, Tail, End float64 // cycle window

	Height, Floor, Radius, Drop, Top float64

	// Target error: the foot relative to its contact frame. Error, when set,
	// varies it per frame starting at ErrorStart; Pos and Q are used otherwise.
	ErrorStart int
	Error      *Channels
	Pos        mathutil.Vec3
	Q          mathutil.Quat
}

// Animation is one named motion.
type Animation struct {
	Name      string
	FPS       float64
	NumFrames int
	Flags     AnimFlags

	// Exactly one of Tracks or Frames carries keyframes. ZeroFrames may
	// accompany either and is the only data of a paged-out animation.
	Tracks     []BoneTrack // sorted by Bone
	Frames     *FrameArray
	ZeroFrames *ZeroFrames

	Hierarchy []LocalHierarchy
	IKRules   []IKRule
}

// IsDelta reports whether the animation is additive.
func (a *Animation) IsDelta() bool { return a.Flags&AnimDelta != 0 }

// CycleRate returns cycles per second; single-frame animations do not advance.
func (a *Animation) CycleRate() float64 {
	if a.NumFrames <= 1 {
		return 0
	}
	return a.FPS / float64(a.NumFrames-1)
}
