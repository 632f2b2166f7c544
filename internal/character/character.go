// Package character runs the per-frame bone setup of one model instance:
// decode and blend the playing sequences, collect and solve IK, build the
// bone-to-world matrices and share them through the bone cache.
package character

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"studio-pose/internal/blend"
	"studio-pose/internal/bonecache"
	"studio-pose/internal/diag"
	"studio-pose/internal/ik"
	"studio-pose/internal/mathutil"
	"studio-pose/internal/pose"
	"studio-pose/internal/skeleton"
	"studio-pose/internal/studio"
)

// Config tunes a character.
type Config struct {
	Blend blend.Config
	IK    ik.Config
	NoIK  bool

	// CacheTolerance is how far, in seconds, a cached result may lie from
	// the requested time and still be reused.
	CacheTolerance float64
}

// Layer is one sequence playing on the character.
type Layer struct {
	Sequence int
	Cycle    float64
	Weight   float64
}

// Ground overrides the floor height under one IK target slot.
type Ground struct {
	Slot   int
	Height float64
}

// Frame is one bone setup request.
type Frame struct {
	Root   mathutil.Mat3x4
	Time   float64
	Frame  int
	Mask   studio.BoneFlags
	Params []float64
	Layers []Layer
	Ground []Ground
}

// Character owns the evaluation state of one model instance. It is not safe
// for concurrent use; run separate characters on separate goroutines.
type Character struct {
	id    uuid.UUID
	prov  studio.Provider
	skel  *studio.Skeleton
	cfg   Config
	setup *blend.Setup
	ik    *ik.Context
	eval  *skeleton.Evaluator
	cache *bonecache.Cache

	pose  *pose.Pose
	world *pose.Matrices

	// last holds the inputs of the last evaluated frame, Time aside.
	last    Frame
	hasLast bool
}

// New returns a character of prov. cache may be nil; arena may be nil or
// shared with other characters evaluated on the same goroutine.
func New(prov studio.Provider, cache *bonecache.Cache, arena *pose.Arena, cfg Config) *Character {
	skel := prov.Skeleton()
	c := &Character{
		id:    uuid.New(),
		prov:  prov,
		skel:  skel,
		cfg:   cfg,
		setup: blend.NewSetup(prov, arena, cfg.Blend),
		eval:  skeleton.NewEvaluator(skel),
		cache: cache,
		pose:  pose.New(skel.NumBones()),
		world: pose.NewMatrices(skel.NumBones()),
	}
	if !cfg.NoIK {
		c.ik = ik.NewContext(cfg.IK)
	}
	return c
}

// ID identifies the character's entries in the bone cache.
func (c *Character) ID() uuid.UUID { return c.id }

func (c *Character) Skeleton() *studio.Skeleton { return c.skel }

// Pose returns the local pose of the last evaluated frame. It is stale
// after a cache hit.
func (c *Character) Pose() *pose.Pose { return c.pose }

// IK returns the IK context, or nil when IK is disabled.
func (c *Character) IK() *ik.Context { return c.ik }

// Evaluator returns the hierarchy evaluator, whose counter tells how many
// bone matrices were composed.
func (c *Character) Evaluator() *skeleton.Evaluator { return c.eval }

// Setup evaluates f and returns the bone-to-world matrices of every bone in
// f.Mask. The result is owned by the character and overwritten by the next
// call.
func (c *Character) Setup(f Frame) (*pose.Matrices, error) {
	if f.Mask == 0 {
		f.Mask = studio.BoneUsedByAnything
	}

	var h bonecache.Handle
	if c.cache != nil {
		var ok bool
		h, ok = c.cache.Acquire(c.id, c.skel, f.Mask, f.Time, c.cfg.CacheTolerance)
		defer c.cache.Release(h)
		if ok && !c.sameInputs(&f) {
			c.cache.Invalidate(h)
			ok = false
		}
		if ok {
			c.world.Reset()
			if c.cache.Read(h, c.world) {
				// keep the frame counter current so the next miss does
				// not see a gap and drop the latched targets.
				if c.ik != nil {
					c.ik.Init(c.prov, f.Root, f.Time, f.Frame, f.Mask)
				}
				return c.world, nil
			}
		}
	}

	c.pose.InitBase(c.skel, f.Mask)
	c.world.Reset()

	c.setup.Mask = f.Mask
	c.setup.Params = f.Params
	c.setup.Time = f.Time
	c.setup.IK = c.ik
	if c.ik != nil {
		c.ik.Init(c.prov, f.Root, f.Time, f.Frame, f.Mask)
		for _, g := range f.Ground {
			if err := c.ik.SetTargetGround(g.Slot, g.Height); err != nil {
				return nil, fmt.Errorf("character: %w", err)
			}
		}
	}

	for _, l := range f.Layers {
		if err := c.setup.AccumulatePose(c.pose, l.Sequence, l.Cycle, l.Weight); err != nil {
			return nil, fmt.Errorf("character: layer %d: %w", l.Sequence, err)
		}
	}

	if c.ik != nil {
		c.ik.AutoRelease()
		c.ik.UpdateTargets(c.pose, c.world)
		c.ik.SolveDependencies(c.pose, c.world)
	}
	c.eval.BuildAll(f.Root, c.pose, f.Mask, c.world)
	c.remember(&f)

	if c.cache != nil && !c.cache.Update(h, c.world, f.Time) {
		diag.Logger().Debug("bone setup not cached", "skeleton", c.skel.Name)
	}
	return c.world, nil
}

// sameInputs reports whether f asks for the pose of the last evaluated
// frame, ignoring time.
func (c *Character) sameInputs(f *Frame) bool {
	l := &c.last
	return c.hasLast && l.Root == f.Root && l.Mask == f.Mask &&
		slices.Equal(l.Params, f.Params) && slices.Equal(l.Layers, f.Layers) && slices.Equal(l.Ground, f.Ground)
}

func (c *Character) remember(f *Frame) {
	c.last.Root, c.last.Mask = f.Root, f.Mask
	c.last.Params = append(c.last.Params[:0], f.Params...)
	c.last.Layers = append(c.last.Layers[:0], f.Layers...)
	c.last.Ground = append(c.last.Ground[:0], f.Ground...)
	c.hasLast = true
}
