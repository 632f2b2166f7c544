package anim

import (
	"errors"
	"fmt"

	"studio-pose/internal/mathutil"
	"studio-pose/internal/studio"
)

var (
	// ErrTrackOverrun means a frame lies past the last block of a value track.
	ErrTrackOverrun = errors.New("anim: value track overrun")
	// ErrNonFinite means a decoded rotation or position is not usable.
	ErrNonFinite = errors.New("anim: non-finite result")
)

// locate walks the run-length blocks of track until frame falls inside one.
// It returns the header index of that block and the frame offset within it.
func locate(track studio.ValueTrack, frame int) (hdr, k int, err error) {
	k = frame
	for {
		if hdr >= len(track) {
			return 0, 0, fmt.Errorf("%w: frame %d", ErrTrackOverrun, frame)
		}
		total := track[hdr].Total()
		if total == 0 {
			return 0, 0, fmt.Errorf("%w: empty block at %d", ErrTrackOverrun, hdr)
		}
		if total > k {
			return hdr, k, nil
		}
		k -= total
		hdr += track[hdr].Valid() + 1
	}
}

func sample(track studio.ValueTrack, i int) (float64, bool) {
	if i >= len(track) {
		return 0, false
	}
	return float64(int16(track[i])), true
}

// ExtractValue returns the samples bracketing frame and frame+1, multiplied
// by scale. Frames past the stored samples of a block hold the last sample
// until the next block's first sample. A nil track is zero.
func ExtractValue(track studio.ValueTrack, frame int, scale float64) (v1, v2 float64, err error) {
	if track == nil {
		return 0, 0, nil
	}
	hdr, k, err := locate(track, frame)
	if err != nil {
		return 0, 0, err
	}
	valid := track[hdr].Valid()
	total := track[hdr].Total()

	var ok bool
	if valid > k {
		if v1, ok = sample(track, hdr+k+1); !ok {
			return 0, 0, fmt.Errorf("%w: frame %d", ErrTrackOverrun, frame)
		}
		switch {
		case valid > k+1:
			v2, ok = sample(track, hdr+k+2)
		case total > k+1:
			v2 = v1
		default:
			v2, ok = sample(track, hdr+valid+2)
		}
	} else {
		if v1, ok = sample(track, hdr+valid); !ok || valid == 0 {
			return 0, 0, fmt.Errorf("%w: frame %d", ErrTrackOverrun, frame)
		}
		if total > k+1 {
			v2 = v1
		} else {
			v2, ok = sample(track, hdr+valid+2)
		}
	}
	if !ok {
		// last frame of the final block: nothing follows, hold.
		v2 = v1
	}
	return v1 * scale, v2 * scale, nil
}

// ExtractValue1 returns the single sample at frame, multiplied by scale.
func ExtractValue1(track studio.ValueTrack, frame int, scale float64) (float64, error) {
	if track == nil {
		return 0, nil
	}
	hdr, k, err := locate(track, frame)
	if err != nil {
		return 0, err
	}
	valid := track[hdr].Valid()
	idx := hdr + valid
	if valid > k {
		idx = hdr + k + 1
	}
	v, ok := sample(track, idx)
	if !ok || valid == 0 {
		return 0, fmt.Errorf("%w: frame %d", ErrTrackOverrun, frame)
	}
	return v * scale, nil
}

func extractVec(tracks *[3]studio.ValueTrack, frame int, s float64, scale mathutil.Vec3) (a, b mathutil.Vec3, err error) {
	for j := 0; j < 3; j++ {
		if s > 0 {
			a[j], b[j], err = ExtractValue(tracks[j], frame, scale[j])
		} else {
			a[j], err = ExtractValue1(tracks[j], frame, scale[j])
			b[j] = a[j]
		}
		if err != nil {
			return a, b, err
		}
	}
	return a, b, nil
}

// ChannelPos evaluates compressed position channels at frame + s.
func ChannelPos(c *studio.Channels, frame int, s float64) (mathutil.Vec3, error) {
	p1, p2, err := extractVec(&c.Pos, frame, s, c.PosScale)
	if err != nil {
		return mathutil.Vec3{}, err
	}
	return p1.Lerp(p2, s), nil
}

// ChannelRot evaluates compressed Euler channels at frame + s, offset by base.
func ChannelRot(c *studio.Channels, frame int, s float64, base mathutil.Vec3) (mathutil.Quat, error) {
	a1, a2, err := extractVec(&c.Rot, frame, s, c.RotScale)
	if err != nil {
		return mathutil.QuatIdentity(), err
	}
	a1 = a1.Add(base)
	a2 = a2.Add(base)
	if a1 == a2 {
		return mathutil.EulerToQuat(a1[0], a1[1], a1[2]), nil
	}
	q1 := mathutil.EulerToQuat(a1[0], a1[1], a1[2])
	q2 := mathutil.EulerToQuat(a2[0], a2[1], a2[2])
	return mathutil.QuatBlend(q1, q2, s), nil
}

// BoneQuaternion decodes the local rotation of bone from its track. A nil
// track yields the base rotation, or identity for delta animations.
func BoneQuaternion(frame int, s float64, bone *studio.Bone, t *studio.BoneTrack, delta bool) (mathutil.Quat, error) {
	switch {
	case t != nil && t.Flags&studio.TrackRawRot != 0:
		return checkQuat(t.RawRot.Normalize(), bone, delta)
	case t == nil || t.Flags&studio.TrackAnimRot == 0:
		return baseQuat(bone, delta), nil
	}
	var base mathutil.Vec3
	if !delta {
		base = bone.Rot
	}
	q, err := ChannelRot(&t.Channels, frame, s, base)
	if err != nil {
		return baseQuat(bone, delta), err
	}
	return checkQuat(q, bone, delta)
}

// BonePosition decodes the local position of bone from its track.
func BonePosition(frame int, s float64, bone *studio.Bone, t *studio.BoneTrack, delta bool) (mathutil.Vec3, error) {
	switch {
	case t != nil && t.Flags&studio.TrackRawPos != 0:
		return checkPos(t.RawPos, bone, delta)
	case t == nil || t.Flags&studio.TrackAnimPos == 0:
		return basePos(bone, delta), nil
	}
	p, err := ChannelPos(&t.Channels, frame, s)
	if err != nil {
		return basePos(bone, delta), err
	}
	if !delta {
		p = p.Add(bone.Pos)
	}
	return checkPos(p, bone, delta)
}

func baseQuat(bone *studio.Bone, delta bool) mathutil.Quat {
	if delta {
		return mathutil.QuatIdentity()
	}
	return bone.Quat
}

func basePos(bone *studio.Bone, delta bool) mathutil.Vec3 {
	if delta {
		return mathutil.Vec3{}
	}
	return bone.Pos
}

func checkQuat(q mathutil.Quat, bone *studio.Bone, delta bool) (mathutil.Quat, error) {
	if !q.IsUnit(1e-3) {
		return baseQuat(bone, delta), ErrNonFinite
	}
	return q, nil
}

func checkPos(p mathutil.Vec3, bone *studio.Bone, delta bool) (mathutil.Vec3, error) {
	if !p.IsFinite() {
		return basePos(bone, delta), ErrNonFinite
	}
	return p, nil
}
