// Package anim decodes animation keyframes into local bone poses.
package anim

import (
	"errors"
	"fmt"
	"sort"

	"studio-pose/internal/diag"
	"studio-pose/internal/mathutil"
	"studio-pose/internal/pose"
	"studio-pose/internal/studio"
)

// FaultError lists the bones of one decode call whose data was corrupt.
// Those bones hold safe defaults; every other bone decoded normally.
type FaultError struct {
	Anim  string
	Bones []int
	Err   error // first cause
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("anim: %s: %d corrupt bones %v: %v", e.Anim, len(e.Bones), e.Bones, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }

// Decoder decodes animations of one skeleton.
type Decoder struct {
	Skel  *studio.Skeleton
	Pager studio.Pager // nil when everything is resident
}

// FramePos splits cycle into an integer frame and the fraction toward the next.
func FramePos(a *studio.Animation, cycle float64) (fFrame float64, frame int, s float64) {
	if a.NumFrames <= 1 {
		return 0, 0, 0
	}
	fFrame = cycle * float64(a.NumFrames-1)
	if fFrame < 0 {
		fFrame = 0
	}
	if last := float64(a.NumFrames - 1); fFrame > last {
		fFrame = last
	}
	frame = int(fFrame)
	s = fFrame - float64(frame)
	return fFrame, frame, s
}

func (d *Decoder) stall(a *studio.Animation, frame int) float64 {
	if a.Tracks == nil && a.Frames == nil {
		return 1
	}
	if d.Pager == nil {
		return 0
	}
	return d.Pager.Stall(a, frame)
}

// Decode writes the pose of a at cycle into p for every bone with positive
// weight under mask. weights may be nil. Corrupt bones are reported in a
// *FaultError after the whole pose has been written.
func (d *Decoder) Decode(a *studio.Animation, cycle float64, weights []float64, mask studio.BoneFlags, p *pose.Pose) error {
	fFrame, frame, s := FramePos(a, cycle)
	delta := a.IsDelta()

	stall := d.stall(a, frame)
	if stall >= 1 && a.ZeroFrames != nil {
		d.initDefault(delta, weights, mask, p)
		BlendZeroFrames(d.Skel, a, fFrame, 1, weights, mask, p)
		return nil
	}

	var faults *FaultError
	fault := func(bone int, err error) {
		if faults == nil {
			faults = &FaultError{Anim: a.Name, Err: err}
		}
		faults.Bones = append(faults.Bones, bone)
	}

	switch {
	case a.Frames != nil:
		c := newFrameCursor(a.Frames, frame, a.NumFrames)
		for i := range d.Skel.Bones {
			want := wanted(d.Skel, i, weights, mask)
			bone := &d.Skel.Bones[i]
			if want {
				p.Q[i], p.Pos[i] = baseQuat(bone, delta), basePos(bone, delta)
			}
			if err := c.next(i, want, s, bone.PosScale, &p.Q[i], &p.Pos[i]); err != nil {
				if want {
					fault(i, err)
					p.Q[i], p.Pos[i] = baseQuat(bone, delta), basePos(bone, delta)
				}
				continue
			}
			if want {
				if err := d.checkBone(i, delta, p); err != nil {
					fault(i, err)
				}
			}
		}
	default:
		ti := 0
		for i := range d.Skel.Bones {
			var t *studio.BoneTrack
			if ti < len(a.Tracks) && a.Tracks[ti].Bone == i {
				t = &a.Tracks[ti]
				ti++
			}
			if !wanted(d.Skel, i, weights, mask) {
				continue
			}
			bone := &d.Skel.Bones[i]
			q, qerr := BoneQuaternion(frame, s, bone, t, delta)
			pos, perr := BonePosition(frame, s, bone, t, delta)
			p.Q[i], p.Pos[i] = q, pos
			if err := errors.Join(qerr, perr); err != nil {
				fault(i, err)
			}
		}
	}

	if stall > 0 {
		BlendZeroFrames(d.Skel, a, fFrame, stall, weights, mask, p)
	}

	if faults != nil {
		diag.Logger().Warn("corrupt animation data replaced by defaults",
			"anim", a.Name, "bones", faults.Bones, "err", faults.Err)
		return faults
	}
	return nil
}

func (d *Decoder) checkBone(i int, delta bool, p *pose.Pose) error {
	bone := &d.Skel.Bones[i]
	q, err := checkQuat(p.Q[i].Normalize(), bone, delta)
	p.Q[i] = q
	if err != nil {
		p.Pos[i] = basePos(bone, delta)
		return err
	}
	pos, err := checkPos(p.Pos[i], bone, delta)
	p.Pos[i] = pos
	return err
}

func (d *Decoder) initDefault(delta bool, weights []float64, mask studio.BoneFlags, p *pose.Pose) {
	for i := range d.Skel.Bones {
		if wanted(d.Skel, i, weights, mask) {
			bone := &d.Skel.Bones[i]
			p.Q[i], p.Pos[i] = baseQuat(bone, delta), basePos(bone, delta)
		}
	}
}

// DecodeBone decodes one bone of a at frame + s.
func (d *Decoder) DecodeBone(a *studio.Animation, bone, frame int, s float64) (mathutil.Vec3, mathutil.Quat, error) {
	if bone < 0 || bone >= d.Skel.NumBones() {
		return mathutil.Vec3{}, mathutil.Quat{}, fmt.Errorf("anim: bone %d out of range", bone)
	}
	if frame < 0 || frame >= a.NumFrames {
		return mathutil.Vec3{}, mathutil.Quat{}, fmt.Errorf("%w: frame %d of %d", ErrTrackOverrun, frame, a.NumFrames)
	}
	b := &d.Skel.Bones[bone]
	delta := a.IsDelta()

	if a.Frames != nil {
		c := newFrameCursor(a.Frames, frame, a.NumFrames)
		for i := 0; i < bone; i++ {
			if err := c.next(i, false, 0, mathutil.Vec3{}, nil, nil); err != nil {
				return basePos(b, delta), baseQuat(b, delta), err
			}
		}
		q, pos := baseQuat(b, delta), basePos(b, delta)
		err := c.next(bone, true, s, b.PosScale, &q, &pos)
		if err != nil {
			return basePos(b, delta), baseQuat(b, delta), err
		}
		return pos, q.Normalize(), nil
	}

	var t *studio.BoneTrack
	k := sort.Search(len(a.Tracks), func(i int) bool { return a.Tracks[i].Bone >= bone })
	if k < len(a.Tracks) && a.Tracks[k].Bone == bone {
		t = &a.Tracks[k]
	}
	q, qerr := BoneQuaternion(frame, s, b, t, delta)
	pos, perr := BonePosition(frame, s, b, t, delta)
	return pos, q, errors.Join(qerr, perr)
}
