package rig

import (
	"fmt"
	"math"

	"studio-pose/internal/anim"
	"studio-pose/internal/mathutil"
	"studio-pose/internal/studio"
)

// quantRange is the largest quantized magnitude a track may use.
const quantRange = 32000

var boneFlags = map[string]studio.BoneFlags{
	"vertex":     studio.BoneUsedByVertex,
	"hitbox":     studio.BoneUsedByHitbox,
	"attachment": studio.BoneUsedByAttachment,
	"bonemerge":  studio.BoneUsedByBoneMerge,
	"fixed":      studio.BoneFixedAlignment,
}

var seqFlags = map[string]studio.SeqFlags{
	"loop":       studio.SeqLooping,
	"delta":      studio.SeqDelta,
	"post":       studio.SeqPost,
	"worldspace": studio.SeqWorldSpace,
	"realtime":   studio.SeqRealtime,
	"local":      studio.SeqLocal,
}

var layerFlags = map[string]studio.LayerFlags{
	"noblend": studio.LayerNoBlend,
	"xfade":   studio.LayerXFade,
	"local":   studio.LayerLocal,
}

func ruleType(s string) (studio.IKRuleType, bool) {
	for t := studio.IKSelf; t <= studio.IKUnlatch; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

type builder struct {
	f      *File
	bones  map[string]int
	chains map[string]int
	params map[string]int
	anims  map[string]int
	seqs   map[string]int
}

func index[T any](items []T, name func(T) string) (map[string]int, error) {
	m := make(map[string]int, len(items))
	for i, it := range items {
		n := name(it)
		if _, dup := m[n]; dup {
			return nil, fmt.Errorf("duplicate name %q", n)
		}
		m[n] = i
	}
	return m, nil
}

func (b *builder) lookup(m map[string]int, kind, name string) (int, error) {
	i, ok := m[name]
	if !ok {
		return 0, fmt.Errorf("unknown %s %q", kind, name)
	}
	return i, nil
}

// optional resolves name, or -1 when it is empty.
func (b *builder) optional(m map[string]int, kind, name string) (int, error) {
	if name == "" {
		return -1, nil
	}
	return b.lookup(m, kind, name)
}

// Build resolves names and encodes every track into a studio model.
func (f *File) Build() (*studio.Model, error) {
	b := &builder{f: f}
	var err error
	if b.bones, err = index(f.Bones, func(x Bone) string { return x.Name }); err != nil {
		return nil, fmt.Errorf("rig: bones: %w", err)
	}
	if b.chains, err = index(f.Chains, func(x Chain) string { return x.Name }); err != nil {
		return nil, fmt.Errorf("rig: chains: %w", err)
	}
	if b.params, err = index(f.Params, func(x Param) string { return x.Name }); err != nil {
		return nil, fmt.Errorf("rig: params: %w", err)
	}
	if b.anims, err = index(f.Animations, func(x Animation) string { return x.Name }); err != nil {
		return nil, fmt.Errorf("rig: animations: %w", err)
	}
	if b.seqs, err = index(f.Sequences, func(x Sequence) string { return x.Name }); err != nil {
		return nil, fmt.Errorf("rig: sequences: %w", err)
	}

	skel, err := b.skeleton()
	if err != nil {
		return nil, fmt.Errorf("rig: %s: %w", f.Name, err)
	}
	anims := make([]*studio.Animation, len(f.Animations))
	for i := range f.Animations {
		if anims[i], err = b.animation(skel, &f.Animations[i]); err != nil {
			return nil, fmt.Errorf("rig: animation %s: %w", f.Animations[i].Name, err)
		}
	}
	seqs := make([]*studio.Sequence, len(f.Sequences))
	for i := range f.Sequences {
		if seqs[i], err = b.sequence(&f.Sequences[i]); err != nil {
			return nil, fmt.Errorf("rig: sequence %s: %w", f.Sequences[i].Name, err)
		}
	}
	return studio.NewModel(skel, anims, seqs)
}

func (b *builder) skeleton() (*studio.Skeleton, error) {
	bones := make([]studio.Bone, len(b.f.Bones))
	for i, fb := range b.f.Bones {
		parent, err := b.optional(b.bones, "parent bone", fb.Parent)
		if err != nil {
			return nil, fmt.Errorf("bone %s: %w", fb.Name, err)
		}
		var flags studio.BoneFlags
		for _, s := range fb.Flags {
			flags |= boneFlags[s]
		}
		if flags&studio.BoneUsedByAnything == 0 {
			flags |= studio.BoneUsedByVertex
		}
		rot := mathutil.Vec3(fb.Rot)
		bones[i] = studio.Bone{
			Name:   fb.Name,
			Parent: parent,
			Flags:  flags,
			Pos:    mathutil.Vec3(fb.Pos),
			Rot:    rot,
			Quat:   mathutil.EulerToQuat(rot[0], rot[1], rot[2]),
		}
	}
	if err := b.scales(bones); err != nil {
		return nil, err
	}

	atts := make([]studio.Attachment, len(b.f.Attachments))
	for i, a := range b.f.Attachments {
		bone, err := b.lookup(b.bones, "bone", a.Bone)
		if err != nil {
			return nil, fmt.Errorf("attachment %s: %w", a.Name, err)
		}
		atts[i] = studio.Attachment{Name: a.Name, Bone: bone, Local: mathutil.Mat3x4FromQuatPos(mathutil.QuatIdentity(), mathutil.Vec3(a.Pos))}
	}

	chains := make([]studio.IKChain, len(b.f.Chains))
	for i, c := range b.f.Chains {
		chains[i].Name = c.Name
		for j, name := range [3]string{c.Hip, c.Knee, c.Foot} {
			bone, err := b.lookup(b.bones, "bone", name)
			if err != nil {
				return nil, fmt.Errorf("chain %s: %w", c.Name, err)
			}
			chains[i].Links[j].Bone = bone
		}
		chains[i].Links[0].KneeDir = mathutil.Vec3(c.KneeDir)
	}

	params := make([]studio.PoseParam, len(b.f.Params))
	for i, p := range b.f.Params {
		params[i] = studio.PoseParam{Name: p.Name, Start: p.Start, End: p.End, Loop: p.Loop}
	}
	return studio.NewSkeleton(b.f.Name, bones, atts, chains, params)
}

// scales picks per-bone quantization steps large enough for every track
// authored for that bone.
func (b *builder) scales(bones []studio.Bone) error {
	for _, a := range b.f.Animations {
		for _, t := range a.Tracks {
			i, err := b.lookup(b.bones, "bone", t.Bone)
			if err != nil {
				return fmt.Errorf("animation %s: %w", a.Name, err)
			}
			bone := &bones[i]
			grow := func(scale *mathutil.Vec3, samples [][3]float64, base mathutil.Vec3) {
				for _, s := range samples {
					off := mathutil.Vec3(s)
					if !a.Delta {
						off = off.Sub(base)
					}
					for j := range 3 {
						scale[j] = math.Max(scale[j], math.Abs(off[j])/quantRange)
					}
				}
			}
			grow(&bone.PosScale, t.Pos, bone.Pos)
			grow(&bone.RotScale, t.Rot, bone.Rot)
		}
	}
	return nil
}

// frames expands samples to n frames, holding the last one, as offsets
// from base.
func frames(samples [][3]float64, n int, base mathutil.Vec3) []mathutil.Vec3 {
	if len(samples) == 0 {
		return nil
	}
	out := make([]mathutil.Vec3, n)
	for i := range out {
		s := samples[min(i, len(samples)-1)]
		out[i] = mathutil.Vec3(s).Sub(base)
	}
	return out
}

func (b *builder) animation(skel *studio.Skeleton, fa *Animation) (*studio.Animation, error) {
	a := &studio.Animation{Name: fa.Name, FPS: fa.FPS, NumFrames: fa.Frames}
	if fa.Loop {
		a.Flags |= studio.AnimLooping
	}
	if fa.Delta {
		a.Flags |= studio.AnimDelta
	}
	if fa.Post {
		a.Flags |= studio.AnimPost
	}

	byBone := make(map[int]*Track, len(fa.Tracks))
	for k := range fa.Tracks {
		i := b.bones[fa.Tracks[k].Bone]
		if byBone[i] != nil {
			return nil, fmt.Errorf("bone %s has two tracks", fa.Tracks[k].Bone)
		}
		byBone[i] = &fa.Tracks[k]
	}
	// tracks are stored in bone order
	for i := range skel.Bones {
		t := byBone[i]
		if t == nil {
			continue
		}
		bone := &skel.Bones[i]
		var posBase, rotBase mathutil.Vec3
		if !fa.Delta {
			posBase, rotBase = bone.Pos, bone.Rot
		}
		pos := frames(t.Pos, fa.Frames, posBase)
		rot := frames(t.Rot, fa.Frames, rotBase)
		a.Tracks = append(a.Tracks, anim.EncodeBoneTrack(i, bone, pos, rot, fa.Delta))
	}

	for _, r := range fa.Rules {
		rule, err := b.rule(r)
		if err != nil {
			return nil, err
		}
		a.IKRules = append(a.IKRules, rule)
	}
	return a, nil
}

func (b *builder) rule(r Rule) (studio.IKRule, error) {
	typ, ok := ruleType(r.Type)
	if !ok {
		return studio.IKRule{}, fmt.Errorf("unknown ik rule type %q", r.Type)
	}
	chain, err := b.lookup(b.chains, "chain", r.Chain)
	if err != nil {
		return studio.IKRule{}, err
	}
	bone, err := b.optional(b.bones, "bone", r.Bone)
	if err != nil {
		return studio.IKRule{}, err
	}
	slot := chain
	if r.Slot != nil {
		slot = *r.Slot
	}
	return studio.IKRule{
		Type:   typ,
		Chain:  chain,
		Slot:   slot,
		Bone:   bone,
		Start:  r.Window[0],
		Peak:   r.Window[1],
		Tail:   r.Window[2],
		End:    r.Window[3],
		Floor:  r.Floor,
		Height: r.Height,
		Pos:    mathutil.Vec3(r.Pos),
		Q:      mathutil.QuatIdentity(),
	}, nil
}

func (b *builder) sequence(fs *Sequence) (*studio.Sequence, error) {
	s := &studio.Sequence{Name: fs.Name, Group: fs.Grid}
	if s.Group == [2]int{} {
		s.Group = [2]int{len(fs.Anims), 1}
	}
	for _, f := range fs.Flags {
		s.Flags |= seqFlags[f]
	}
	for _, name := range fs.Anims {
		i, err := b.lookup(b.anims, "animation", name)
		if err != nil {
			return nil, err
		}
		s.Anims = append(s.Anims, i)
	}
	var err error
	for axis, name := range fs.Params {
		if s.Param[axis], err = b.optional(b.params, "pose parameter", name); err != nil {
			return nil, err
		}
	}
	if s.CyclePose, err = b.optional(b.params, "pose parameter", fs.CyclePose); err != nil {
		return nil, err
	}
	if s.CyclePose >= 0 {
		s.Flags |= studio.SeqCyclePose
	}

	for _, l := range fs.Layers {
		layer := studio.AutoLayer{Start: l.Window[0], Peak: l.Window[1], Tail: l.Window[2], End: l.Window[3]}
		if layer.Sequence, err = b.lookup(b.seqs, "sequence", l.Sequence); err != nil {
			return nil, err
		}
		if layer.Pose, err = b.optional(b.params, "pose parameter", l.Pose); err != nil {
			return nil, err
		}
		if layer.Pose >= 0 {
			layer.Flags |= studio.LayerPose
		}
		for _, f := range l.Flags {
			layer.Flags |= layerFlags[f]
		}
		s.Layers = append(s.Layers, layer)
	}
	for _, l := range fs.Locks {
		chain, err := b.lookup(b.chains, "chain", l.Chain)
		if err != nil {
			return nil, err
		}
		s.IKLocks = append(s.IKLocks, studio.IKLock{Chain: chain, PosWeight: l.PosWeight, LocalQWeight: l.RotWeight})
	}
	return s, nil
}

// LoadModel reads and builds a rig file.
func LoadModel(path string) (*studio.Model, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	return f.Build()
}
