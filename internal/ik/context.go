package ik

import (
	"fmt"
	"math"

	"studio-pose/internal/diag"
	"studio-pose/internal/mathutil"
	"studio-pose/internal/pose"
	"studio-pose/internal/skeleton"
	"studio-pose/internal/studio"
)

const (
	fullWeight = 0.999
	minWeight  = 0.0001

	// errorHold is how long after the last validation failure the release
	// ramp keeps rising; errorWindow is when a new failure re-arms it.
	errorHold   = 0.25
	errorWindow = 0.5

	maxLatchAngle = math.Pi / 4
)

// Config tunes the solver.
type Config struct {
	KneeMax     float64 // fraction of full extension a leg may reach, at most KneeMaxEpsilon
	ReleaseRate float64 // error ramp change per second
}

func DefaultConfig() Config {
	return Config{KneeMax: KneeMaxEpsilon, ReleaseRate: 4}
}

type chainResult struct {
	target int
	weight float64
	pos    mathutil.Vec3
	q      mathutil.Quat
}

func (r *chainResult) blend(w mathutil.Mat3x4, weight float64) {
	q, pos := w.QuatPos()
	if r.weight <= 0 {
		r.pos, r.q, r.weight = pos, q, weight
		return
	}
	nw := r.weight*(1-weight) + weight
	f := weight / nw
	r.pos = r.pos.Lerp(pos, f)
	r.q = mathutil.QuatSlerp(r.q, q, f)
	r.weight = nw
}

type lockState struct {
	pos mathutil.Vec3
	q   mathutil.Quat
}

// LockMark is the lock stack depth before AddSequenceLocks.
type LockMark int

// Context is the IK state of one character. It is not safe for concurrent
// use.
type Context struct {
	cfg Config

	provider studio.Provider
	skel     *studio.Skeleton
	eval     *skeleton.Evaluator
	root     mathutil.Mat3x4
	time     float64
	frame    int
	mask     studio.BoneFlags

	chainRules [][]Rule
	results    []chainResult
	targets    [MaxTargets]Target
	locks      []lockState
	scratch    *pose.Matrices
	limb       *skeleton.Chain
}

func NewContext(cfg Config) *Context {
	if cfg.KneeMax <= 0 {
		cfg.KneeMax = KneeMaxEpsilon
	}
	if cfg.ReleaseRate <= 0 {
		cfg.ReleaseRate = 4
	}
	c := &Context{cfg: cfg}
	for i := range c.targets {
		c.targets[i].reset()
	}
	return c
}

// Init starts a frame. Targets are invalidated when the model changes or
// frame does not follow the previous one; rules are always cleared.
// External ground heights must be set again after every Init.
func (c *Context) Init(p studio.Provider, root mathutil.Mat3x4, time float64, frame int, mask studio.BoneFlags) {
	skel := p.Skeleton()
	switch {
	case c.skel == nil || c.skel.ID != skel.ID:
		c.skel = skel
		c.eval = skeleton.NewEvaluator(skel)
		c.chainRules = make([][]Rule, len(skel.IKChains))
		c.results = make([]chainResult, len(skel.IKChains))
		c.scratch = pose.NewMatrices(skel.NumBones())
		c.limb = skeleton.NewChain(skel.NumBones())
		c.invalidate()
	case frame != c.frame && frame != c.frame+1:
		c.invalidate()
	}
	c.provider = p
	c.root = root
	c.time = time
	c.frame = frame
	c.mask = mask
	for i := range c.chainRules {
		c.chainRules[i] = c.chainRules[i][:0]
	}
	for i := range c.targets {
		c.targets[i].hasGround = false
	}
	c.locks = c.locks[:0]
}

func (c *Context) invalidate() {
	for i := range c.targets {
		c.targets[i].reset()
	}
}

func (c *Context) Time() float64 { return c.time }

// Target returns a copy of the target in slot.
func (c *Context) Target(slot int) (Target, bool) {
	if slot < 0 || slot >= MaxTargets {
		return Target{}, false
	}
	return c.targets[slot], true
}

// Rules returns the rules queued on chain this frame.
func (c *Context) Rules(chain int) []Rule {
	if chain < 0 || chain >= len(c.chainRules) {
		return nil
	}
	return c.chainRules[chain]
}

// SetTargetGround overrides the floor height, in world z, used by ground
// rules on slot for the current frame.
func (c *Context) SetTargetGround(slot int, height float64) error {
	if slot < 0 || slot >= MaxTargets {
		return fmt.Errorf("ik: target slot %d out of range", slot)
	}
	c.targets[slot].ground = height
	c.targets[slot].hasGround = true
	return nil
}

// AddDependencies queues the IK rules of seq at cycle, weighted by weight.
// A rule reaching full weight replaces everything queued on its chain.
func (c *Context) AddDependencies(seq *studio.Sequence, cycle float64, params []float64, weight float64) {
	if c.skel == nil || weight < minWeight {
		return
	}
	weight = math.Min(weight, 1)

	var (
		anims   [4]*studio.Animation
		weights [4]float64
		n       int
	)
	for _, g := range studio.SeqAnims(c.skel, seq, params) {
		if g.Weight <= 0 {
			continue
		}
		a, err := c.provider.Animation(g.Anim)
		if err != nil {
			continue
		}
		anims[n], weights[n] = a, g.Weight
		n++
	}
	if n == 0 {
		return
	}

	for j := range anims[0].IKRules {
		r, ok := aggregate(anims[:n], weights[:n], j, cycle)
		if !ok || r.RuleWeight <= 0 || r.Chain < 0 || r.Chain >= len(c.chainRules) {
			continue
		}
		r.Weight = weight
		if r.Combined() > fullWeight && r.Type != studio.IKUnlatch {
			c.chainRules[r.Chain] = c.chainRules[r.Chain][:0]
			if r.Type == studio.IKRelease {
				continue
			}
		}
		c.chainRules[r.Chain] = append(c.chainRules[r.Chain], r)
	}
}

// AutoRelease injects release rules for targets that recently failed
// validation. The release weight ramps up while failures continue and back
// down once they stop.
func (c *Context) AutoRelease() {
	if c.skel == nil {
		return
	}
	for i := range c.targets {
		t := &c.targets[i]
		e := &t.Error
		dt := c.time - e.Time
		if !e.InError && !(dt < errorWindow) {
			continue
		}
		if !e.InError {
			e.InError = true
			e.Ramp = 0
			e.LastTick = e.Time
		}
		ft := c.time - e.LastTick
		if dt < errorHold {
			e.Ramp = math.Min(e.Ramp+ft*c.cfg.ReleaseRate, 1)
		} else {
			e.Ramp = math.Max(e.Ramp-ft*c.cfg.ReleaseRate, 0)
		}
		e.LastTick = c.time

		if e.Ramp <= 0 {
			e.InError = false
			continue
		}
		if t.Chain < 0 || t.Chain >= len(c.chainRules) {
			continue
		}
		diag.Logger().Debug("ik auto release", "slot", i, "chain", t.Chain, "ramp", e.Ramp)
		c.chainRules[t.Chain] = append(c.chainRules[t.Chain], Rule{
			Type:       studio.IKRelease,
			Chain:      t.Chain,
			Slot:       i,
			Bone:       -1,
			Weight:     mathutil.SimpleSpline(e.Ramp),
			RuleWeight: 1,
		})
	}
}

func (c *Context) chainBones(chain int) (hip, knee, foot int) {
	l := &c.skel.IKChains[chain].Links
	return l[0].Bone, l[1].Bone, l[2].Bone
}

// UpdateTargets turns this frame's ground rules into target estimates,
// applies latching and validates the result against the limb geometry.
// Chains are built into m from p as needed.
func (c *Context) UpdateTargets(p *pose.Pose, m *pose.Matrices) {
	if c.skel == nil {
		return
	}
	for i := range c.targets {
		c.targets[i].Est.Weight = 0
		c.targets[i].Est.Latched = 0
	}
	rootZ := c.root.Position()[2]

	for chain, rules := range c.chainRules {
		_, _, footBone := c.chainBones(chain)
		for k := range rules {
			r := &rules[k]
			w := r.Combined()
			if r.Type != studio.IKGround || r.Slot < 0 || r.Slot >= MaxTargets || w <= 0 {
				continue
			}
			t := &c.targets[r.Slot]
			foot := c.eval.BuildChain(c.root, p, footBone, m)
			footpad := mathutil.Mat3x4Mul(foot, mathutil.Mat3x4FromQuatPos(r.Q, r.Pos).Inverse())
			q, pos := footpad.QuatPos()
			if t.hasGround {
				pos[2] = t.ground
			} else {
				pos[2] = rootZ + r.Floor
			}

			if t.Est.Weight <= 0 {
				t.Chain, t.Type = r.Chain, r.Type
				t.Offset.Pos, t.Offset.Q = r.Pos, r.Q
				t.Est = Estimate{Pos: pos, Q: q, Weight: w, Latched: r.Latched, Height: r.Height, Floor: r.Floor, Radius: r.Radius}
				continue
			}
			f := w / (t.Est.Weight + w)
			t.Offset.Pos = t.Offset.Pos.Lerp(r.Pos, f)
			t.Offset.Q = mathutil.QuatSlerp(t.Offset.Q, r.Q, f)
			t.Est.Pos = t.Est.Pos.Lerp(pos, f)
			t.Est.Q = mathutil.QuatSlerp(t.Est.Q, q, f)
			t.Est.Weight = math.Min(1, t.Est.Weight+w)
			t.Est.Latched = math.Max(t.Est.Latched, r.Latched)
		}
	}
	for _, rules := range c.chainRules {
		for k := range rules {
			r := &rules[k]
			if r.Type == studio.IKUnlatch && r.Slot >= 0 && r.Slot < MaxTargets {
				c.targets[r.Slot].Est.Latched *= 1 - math.Min(r.Combined(), 1)
			}
		}
	}

	for i := range c.targets {
		t := &c.targets[i]
		if t.Est.Weight <= 0 && !t.Latch.Active {
			continue
		}
		t.updateLatch(t.Type == studio.IKGround)
		if t.Chain >= 0 && t.Est.Weight > 0 {
			c.validate(i, p, m)
		}
	}
}

func (c *Context) validate(slot int, p *pose.Pose, m *pose.Matrices) {
	t := &c.targets[slot]
	hip, knee, foot := c.chainBones(t.Chain)
	hipPos := c.eval.BuildChain(c.root, p, hip, m).Position()

	// limb lengths depend only on the hip-to-foot sub-chain.
	c.limb.Reset(c.root, hip)
	footW, err := c.eval.BuildChainPartial(c.limb, p, foot)
	if err != nil {
		diag.Logger().Debug("ik chain malformed", "slot", slot, "err", err)
		t.Error.Time = c.time
		return
	}
	hipW, _ := c.limb.Get(hip)
	kneeW, _ := c.limb.Get(knee)
	t.Trace.HipToKnee = kneeW.Position().Dist(hipW.Position())
	t.Trace.KneeToFoot = footW.Position().Dist(kneeW.Position())

	reach := t.Goal().Position().Dist(hipPos)
	switch {
	case reach > (t.Trace.HipToKnee+t.Trace.KneeToFoot)*(1+1e-9):
		diag.Logger().Debug("ik target out of reach", "slot", slot, "reach", reach)
		t.Error.Time = c.time
	case t.Latch.Latching && mathutil.QuatAngle(t.Latch.BaseDeltaQ, mathutil.QuatIdentity()) > maxLatchAngle:
		diag.Logger().Debug("ik latch twisted too far", "slot", slot)
		t.Error.Time = c.time
	}
}

// SolveDependencies blends this frame's rules and targets into one goal per
// chain, solves every weighted chain and back-solves hip, knee and foot
// into p. Chains that cannot be solved keep their pose and matrices.
func (c *Context) SolveDependencies(p *pose.Pose, m *pose.Matrices) {
	if c.skel == nil {
		return
	}
	for i := range c.results {
		c.results[i] = chainResult{target: -1}
	}

	for chain, rules := range c.chainRules {
		res := &c.results[chain]
		for k := range rules {
			r := &rules[k]
			w := math.Min(r.Combined(), 1)
			if w <= 0 {
				continue
			}
			local := mathutil.Mat3x4FromQuatPos(r.Q, r.Pos)
			switch r.Type {
			case studio.IKSelf:
				ref := c.root
				if r.Bone >= 0 {
					ref = c.eval.BuildChain(c.root, p, r.Bone, m)
				}
				res.blend(mathutil.Mat3x4Mul(ref, local), w)
			case studio.IKWorld:
				res.blend(mathutil.Mat3x4Mul(c.root, local), w)
			case studio.IKAttachment:
				if r.Attachment < 0 || r.Attachment >= len(c.skel.Attachments) {
					continue
				}
				att := &c.skel.Attachments[r.Attachment]
				ref := mathutil.Mat3x4Mul(c.eval.BuildChain(c.root, p, att.Bone, m), att.Local)
				res.blend(mathutil.Mat3x4Mul(ref, local), w)
			}
		}
	}

	for i := range c.targets {
		t := &c.targets[i]
		if t.Est.Weight <= 0 || t.Chain < 0 || t.Chain >= len(c.results) {
			continue
		}
		res := &c.results[t.Chain]
		res.target = i
		res.blend(t.Goal(), math.Min(t.Est.Weight, 1))
	}

	for chain, rules := range c.chainRules {
		for k := range rules {
			if rules[k].Type == studio.IKRelease {
				c.results[chain].weight *= 1 - math.Min(rules[k].Combined(), 1)
			}
		}
	}

	for chain := range c.results {
		res := &c.results[chain]
		if res.weight <= 0 {
			continue
		}
		if err := c.solve(chain, res.pos, res.q, math.Min(res.weight, 1), p, m); err != nil {
			diag.Logger().Debug("ik chain unsolved", "chain", chain, "err", err)
			if res.target >= 0 {
				c.targets[res.target].shrinkLatch()
			}
		}
	}
}

// solve moves chain's foot weight of the way to (pos, q) in m and writes the
// resulting hip, knee and foot locals into p.
func (c *Context) solve(chain int, pos mathutil.Vec3, q mathutil.Quat, weight float64, p *pose.Pose, m *pose.Matrices) error {
	hip, knee, foot := c.chainBones(chain)
	fq, fpos := c.eval.BuildChain(c.root, p, foot, m).QuatPos()
	target := fpos.Lerp(pos, weight)
	tq := mathutil.QuatSlerp(fq, q, weight)

	if err := SolveChain(&c.skel.IKChains[chain], target, m, c.cfg.KneeMax); err != nil {
		return err
	}
	c.finishChain(hip, knee, foot, tq, p, m)
	return nil
}

// finishChain sets the foot orientation, back-solves the chain into p and
// drops computed descendants that no longer match.
func (c *Context) finishChain(hip, knee, foot int, footQ mathutil.Quat, p *pose.Pose, m *pose.Matrices) {
	m.Set(foot, mathutil.Mat3x4FromQuatPos(footQ, m.World[foot].Position()))
	skeleton.SolveBone(c.skel, foot, m, p)
	skeleton.SolveBone(c.skel, knee, m, p)
	skeleton.SolveBone(c.skel, hip, m, p)
	for i := hip + 1; i < c.skel.NumBones(); i++ {
		if i != knee && i != foot && m.Computed.Has(i) && c.skel.IsAncestor(hip, i) {
			m.Computed.Clear(i)
		}
	}
}
