package studio

// SeqFlags describe how a sequence is evaluated.
type SeqFlags uint32

const (
	SeqLooping    SeqFlags = 1 << iota
	SeqDelta               // additive over the accumulated pose
	SeqPost                // additive, applied after the base rotation
	SeqWorldSpace          // blended in model space
	SeqRealtime            // cycle derived from the clock
	SeqCyclePose           // cycle taken from a pose parameter
	SeqLocal               // evaluated from the base pose, hosts local layers
)

// LayerFlags modify an AutoLayer.
type LayerFlags uint32

const (
	LayerPose    LayerFlags = 1 << iota // window indexed by a pose parameter instead of cycle
	LayerNoBlend                        // ramp used directly, no smoothstep, not scaled by the carrier weight
	LayerXFade                          // cross-fade against the carrier while ramping out
	LayerLocal                          // applied to the sequence's own pose before it is blended
)

// AutoLayer plays another sequence on top of its carrier.
type AutoLayer struct {
	Sequence int
	Pose     int // pose parameter index for LayerPose
	Flags    LayerFlags

	Start, Peak, Tail, End float64
}

// IKLock holds a chain's end effector in place while its sequence plays.
type IKLock struct {
	Chain        int
	PosWeight    float64
	LocalQWeight float64
}

// Sequence is a playable entry: a grid of animations driven by up to two
// pose parameters, plus layers and locks.
type Sequence struct {
	Name  string
	Flags SeqFlags

	Group      [2]int // grid size per axis, at least 1
	Param      [2]int // pose parameter per axis, -1 for none
	ParamStart [2]float64
	ParamEnd   [2]float64
	Anims      []int // Group[0]*Group[1] animation indices, row-major by axis 1

	CyclePose   int       // pose parameter for SeqCyclePose, -1 for none
	BoneWeights []float64 // per bone, nil means 1 for every bone

	Layers  []AutoLayer
	IKLocks []IKLock
}

// Anim returns the animation index at grid cell (x, y), clamped to the grid.
func (s *Sequence) Anim(x, y int) int {
	x = clampInt(x, 0, s.Group[0]-1)
	y = clampInt(y, 0, s.Group[1]-1)
	return s.Anims[y*s.Group[0]+x]
}

// Weight returns the blend weight of bone i.
func (s *Sequence) Weight(i int) float64 {
	if s.BoneWeights == nil {
		return 1
	}
	return s.BoneWeights[i]
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
