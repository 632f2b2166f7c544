package blend

import (
	"errors"
	"fmt"
	"math"

	"studio-pose/internal/anim"
	"studio-pose/internal/diag"
	"studio-pose/internal/ik"
	"studio-pose/internal/mathutil"
	"studio-pose/internal/pose"
	"studio-pose/internal/skeleton"
	"studio-pose/internal/studio"
)

// ErrLayerDepth is returned when auto layers nest deeper than maxLayerDepth,
// which only happens for sequences that layer themselves.
var ErrLayerDepth = errors.New("blend: auto layers nested too deep")

const maxLayerDepth = 16

// Config selects optional blending paths.
type Config struct {
	ThreeWay bool // barycentric blending inside grid cells instead of bilinear
	Batch    bool // four-bone batch slerp
}

// Setup evaluates sequences of one model into poses. The exported fields
// may be changed between calls. A Setup is not safe for concurrent use.
type Setup struct {
	Mask   studio.BoneFlags
	Params []float64 // normalized pose parameters, indexed like Skeleton.PoseParams
	Time   float64   // clock driving realtime sequences, in seconds
	IK     *ik.Context

	prov  studio.Provider
	skel  *studio.Skeleton
	dec   anim.Decoder
	eval  *skeleton.Evaluator
	arena *pose.Arena
	ws    worldScratch
	cfg   Config
	depth int
}

// NewSetup returns a Setup drawing scratch buffers from arena. A nil arena
// allocates one sized to the model.
func NewSetup(prov studio.Provider, arena *pose.Arena, cfg Config) *Setup {
	skel := prov.Skeleton()
	if arena == nil {
		arena = pose.NewArena(skel.NumBones(), 4)
	}
	eval := skeleton.NewEvaluator(skel)
	return &Setup{
		Mask:  studio.BoneUsedByAnything,
		prov:  prov,
		skel:  skel,
		dec:   anim.Decoder{Skel: skel, Pager: prov},
		eval:  eval,
		arena: arena,
		ws:    worldScratch{eval: eval, arena: arena},
		cfg:   cfg,
	}
}

func (s *Setup) Skeleton() *studio.Skeleton { return s.skel }

// SeqCycle returns the cycle seq is actually evaluated at: realtime
// sequences follow the clock, cycle-pose sequences a pose parameter.
// Looping sequences wrap into [0, 1), others clamp.
func (s *Setup) SeqCycle(seq *studio.Sequence, cycle float64) float64 {
	switch {
	case seq.Flags&studio.SeqRealtime != 0:
		cycle = s.Time * studio.CycleRate(s.prov, seq, s.Params)
	case seq.Flags&studio.SeqCyclePose != 0:
		i := seq.CyclePose
		if i >= 0 && i < len(s.Params) && i < len(s.skel.PoseParams) {
			pp := s.skel.PoseParams[i]
			cycle = s.Params[i]*(pp.End-pp.Start) + pp.Start
		}
	}
	if seq.Flags&studio.SeqLooping != 0 {
		return cycle - math.Floor(cycle)
	}
	return math.Max(0, math.Min(1, cycle))
}

// CalcPose writes the pose of seq at cycle into p, blending the grid
// animations selected by the current pose parameters.
func (s *Setup) CalcPose(p *pose.Pose, seq *studio.Sequence, cycle float64) error {
	return s.calcPose(p, seq, s.SeqCycle(seq, cycle))
}

func (s *Setup) calcPose(p *pose.Pose, seq *studio.Sequence, cycle float64) error {
	s0, i0 := studio.LocalPoseParameter(s.skel, seq, s.Params, 0)
	s1, i1 := studio.LocalPoseParameter(s.skel, seq, s.Params, 1)

	mark := s.arena.Mark()
	defer s.arena.Release(mark)

	lo, hi := studio.GridThreshold, 1-studio.GridThreshold
	switch {
	case s0 < lo || s0 > hi:
		x := i0
		if s0 > hi {
			x++
		}
		switch {
		case s1 < lo:
			return s.calcAnimation(p, seq, seq.Anim(x, i1), cycle)
		case s1 > hi:
			return s.calcAnimation(p, seq, seq.Anim(x, i1+1), cycle)
		}
		return s.blendPair(p, seq, seq.Anim(x, i1), seq.Anim(x, i1+1), s1, cycle)
	case s1 < lo || s1 > hi:
		y := i1
		if s1 > hi {
			y++
		}
		return s.blendPair(p, seq, seq.Anim(i0, y), seq.Anim(i0+1, y), s0, cycle)
	case s.cfg.ThreeWay:
		return s.threeWay(p, seq, i0, i1, s0, s1, cycle)
	}

	if err := s.blendPair(p, seq, seq.Anim(i0, i1), seq.Anim(i0+1, i1), s0, cycle); err != nil {
		return err
	}
	p3 := s.arena.Pose()
	if err := s.blendPair(p3, seq, seq.Anim(i0, i1+1), seq.Anim(i0+1, i1+1), s0, cycle); err != nil {
		return err
	}
	s.blend(seq, p, p3, s1)
	return nil
}

// threeWay blends the triangle of the grid cell containing (s0, s1). A
// corner whose barycentric weight is negligible is not decoded at all.
func (s *Setup) threeWay(p *pose.Pose, seq *studio.Sequence, i0, i1 int, s0, s1, cycle float64) error {
	corners, w := studio.ThreeWayIndices(i0, i1, s0, s1)
	at := func(k int) int { return seq.Anim(i0+corners[k][0], i1+corners[k][1]) }

	if w[1] < studio.GridThreshold {
		return s.blendPair(p, seq, at(0), at(2), w[2]/(w[0]+w[2]), cycle)
	}
	if err := s.blendPair(p, seq, at(0), at(1), w[1]/(w[0]+w[1]), cycle); err != nil {
		return err
	}
	p3 := s.arena.Pose()
	if err := s.calcAnimation(p3, seq, at(2), cycle); err != nil {
		return err
	}
	s.blend(seq, p, p3, w[2])
	return nil
}

// blendPair decodes animation a into p and blends animation b over it by t.
// The scratch pose is returned by the caller's arena mark.
func (s *Setup) blendPair(p *pose.Pose, seq *studio.Sequence, a, b int, t, cycle float64) error {
	if err := s.calcAnimation(p, seq, a, cycle); err != nil {
		return err
	}
	p2 := s.arena.Pose()
	if err := s.calcAnimation(p2, seq, b, cycle); err != nil {
		return err
	}
	s.blend(seq, p, p2, t)
	return nil
}

func (s *Setup) blend(seq *studio.Sequence, p1, p2 *pose.Pose, t float64) {
	if s.cfg.Batch {
		blendBonesBatch(s.skel, seq, p1, p2, t, s.Mask)
		return
	}
	blendBones(s.skel, seq, p1, p2, t, s.Mask)
}

func (s *Setup) slerp(seq *studio.Sequence, p1, p2 *pose.Pose, weight float64) {
	if s.cfg.Batch && seq.Flags&studio.SeqWorldSpace == 0 {
		SlerpBonesBatch(s.skel, seq, p1, p2, weight, s.Mask)
		return
	}
	slerpBones(s.skel, seq, p1, p2, weight, s.Mask, &s.ws)
}

// calcAnimation decodes one animation and applies its local hierarchy
// overrides. Corrupt bones have already been replaced and logged by the
// decoder, so a *anim.FaultError is not passed on.
func (s *Setup) calcAnimation(p *pose.Pose, seq *studio.Sequence, index int, cycle float64) error {
	a, err := s.prov.Animation(index)
	if err != nil {
		return fmt.Errorf("blend: sequence %s: %w", seq.Name, err)
	}
	if err := s.dec.Decode(a, cycle, seq.BoneWeights, s.Mask, p); err != nil {
		var fault *anim.FaultError
		if !errors.As(err, &fault) {
			return err
		}
	}
	s.localHierarchy(p, seq, a, cycle)
	return nil
}

// localHierarchy moves bones that an animation temporarily parents to
// another bone, weighted by each override's window.
func (s *Setup) localHierarchy(p *pose.Pose, seq *studio.Sequence, a *studio.Animation, cycle float64) {
	if len(a.Hierarchy) == 0 {
		return
	}
	m := s.arena.Matrices()
	root := mathutil.Mat3x4Identity()
	_, frame, fs := anim.FramePos(a, cycle)

	for _, h := range a.Hierarchy {
		if !s.skel.InMask(h.Bone, s.Mask) || !s.skel.InMask(h.NewParent, s.Mask) || seq.Weight(h.Bone) <= 0 {
			continue
		}
		w := WindowWeight(h.Start, h.Peak, h.Tail, h.End, cycle)
		if w <= 0 {
			continue
		}
		local := mathutil.Mat3x4Identity()
		if h.Local != nil {
			pos, perr := anim.ChannelPos(h.Local, frame, fs)
			q, qerr := anim.ChannelRot(h.Local, frame, fs, mathutil.Vec3{})
			if err := errors.Join(perr, qerr); err != nil {
				diag.Logger().Warn("local hierarchy offset unreadable", "anim", a.Name, "bone", h.Bone, "err", err)
				continue
			}
			local = mathutil.Mat3x4FromQuatPos(q, pos)
		}

		target := mathutil.Mat3x4Mul(s.eval.BuildChain(root, p, h.NewParent, m), local)
		parent := root
		if pb := s.skel.Bones[h.Bone].Parent; pb >= 0 {
			parent = s.eval.BuildChain(root, p, pb, m)
		}
		q, pos := mathutil.Mat3x4Mul(parent.Inverse(), target).QuatPos()
		p.Q[h.Bone] = mathutil.QuatSlerp(p.Q[h.Bone], q, w).Normalize()
		p.Pos[h.Bone] = p.Pos[h.Bone].Lerp(pos, w)

		for i := h.Bone; i < s.skel.NumBones(); i++ {
			if m.Computed.Has(i) && s.skel.IsAncestor(h.Bone, i) {
				m.Computed.Clear(i)
			}
		}
	}
}

// AccumulatePose blends sequence index at cycle into p with weight. It
// collects the sequence's IK rules and locks when an IK context is set,
// and plays its auto layers on top. A bad index anywhere in the layer tree,
// or layers nested past maxLayerDepth, fail before p or the IK context is
// touched.
func (s *Setup) AccumulatePose(p *pose.Pose, index int, cycle, weight float64) error {
	seq, err := s.prov.Sequence(index)
	if err != nil {
		return fmt.Errorf("blend: %w", err)
	}
	if s.depth == 0 {
		if err := s.checkLayers(seq, 0); err != nil {
			return err
		}
	}
	if s.depth >= maxLayerDepth {
		return fmt.Errorf("%w: sequence %s", ErrLayerDepth, seq.Name)
	}
	if weight <= 0 {
		return nil
	}
	weight = math.Min(weight, 1)
	cycle = s.SeqCycle(seq, cycle)

	s.depth++
	defer func() { s.depth-- }()

	var lock ik.LockMark
	if s.IK != nil {
		lock = s.IK.AddSequenceLocks(seq, p)
	}

	mark := s.arena.Mark()
	defer s.arena.Release(mark)

	p2 := s.arena.Pose()
	if seq.Flags&studio.SeqLocal != 0 {
		p2.InitBase(s.skel, s.Mask)
	}
	if err := s.calcPose(p2, seq, cycle); err != nil {
		return err
	}
	if err := s.addLocalLayers(p2, seq, cycle); err != nil {
		return err
	}
	s.slerp(seq, p, p2, weight)

	if s.IK != nil {
		s.IK.AddDependencies(seq, cycle, s.Params, weight)
	}
	if err := s.addSequenceLayers(p, seq, cycle, weight); err != nil {
		return err
	}
	if s.IK != nil {
		s.IK.SolveSequenceLocks(seq, p, lock)
	}
	return nil
}

// checkLayers walks the auto layers nested under seq, which sits depth
// levels below the outermost call.
func (s *Setup) checkLayers(seq *studio.Sequence, depth int) error {
	if depth >= maxLayerDepth {
		return fmt.Errorf("%w: sequence %s", ErrLayerDepth, seq.Name)
	}
	for i := range seq.Layers {
		child, err := s.prov.Sequence(seq.Layers[i].Sequence)
		if err != nil {
			return fmt.Errorf("blend: layer %d of %s: %w", i, seq.Name, err)
		}
		if err := s.checkLayers(child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (s *Setup) addSequenceLayers(p *pose.Pose, seq *studio.Sequence, cycle, weight float64) error {
	for i := range seq.Layers {
		l := &seq.Layers[i]
		if l.Flags&studio.LayerLocal != 0 {
			continue
		}
		w, lc, ok := LayerWeight(s.skel, l, cycle, s.Params, weight)
		if !ok || w <= 0 {
			continue
		}
		if err := s.AccumulatePose(p, l.Sequence, lc, w); err != nil {
			return err
		}
	}
	return nil
}

// addLocalLayers plays the local layers of a local-space sequence onto its
// own pose before that pose is blended into the accumulator.
func (s *Setup) addLocalLayers(p *pose.Pose, seq *studio.Sequence, cycle float64) error {
	if seq.Flags&studio.SeqLocal == 0 {
		return nil
	}
	for i := range seq.Layers {
		l := &seq.Layers[i]
		if l.Flags&studio.LayerLocal == 0 {
			continue
		}
		w, lc, ok := LayerWeight(s.skel, l, cycle, s.Params, 1)
		if !ok || w <= 0 {
			continue
		}
		if err := s.AccumulatePose(p, l.Sequence, lc, w); err != nil {
			return err
		}
	}
	return nil
}
