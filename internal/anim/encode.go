package anim

import (
	"math"

	"studio-pose/internal/mathutil"
	"studio-pose/internal/studio"
)

const maxBlock = 255

// EncodeTrack quantizes samples by scale and run-length encodes them. Each
// block stores a run of changing samples followed by a hold of the last
// one. A track that quantizes to all zeros encodes as nil.
func EncodeTrack(samples []float64, scale float64) studio.ValueTrack {
	q := make([]int16, len(samples))
	zero := true
	for i, v := range samples {
		if scale != 0 {
			q[i] = int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(v/scale))))
		}
		if q[i] != 0 {
			zero = false
		}
	}
	if zero {
		return nil
	}

	var track studio.ValueTrack
	for i := 0; i < len(q); {
		valid := 1
		for i+valid < len(q) && valid < maxBlock && q[i+valid] != q[i+valid-1] {
			valid++
		}
		total := valid
		for i+total < len(q) && total < maxBlock && q[i+total] == q[i+valid-1] {
			total++
		}
		track = append(track, studio.AnimHeader(uint8(valid), uint8(total)))
		for _, v := range q[i : i+valid] {
			track = append(track, studio.AnimValue(v))
		}
		i += total
	}
	return track
}

// EncodeChannels builds compressed channels from per-frame positions and
// Euler angles. Either slice may be nil.
func EncodeChannels(pos, rot []mathutil.Vec3, posScale, rotScale mathutil.Vec3) studio.Channels {
	c := studio.Channels{PosScale: posScale, RotScale: rotScale}
	col := func(vs []mathutil.Vec3, j int) []float64 {
		out := make([]float64, len(vs))
		for i, v := range vs {
			out[i] = v[j]
		}
		return out
	}
	for j := 0; j < 3; j++ {
		if pos != nil {
			c.Pos[j] = EncodeTrack(col(pos, j), posScale[j])
		}
		if rot != nil {
			c.Rot[j] = EncodeTrack(col(rot, j), rotScale[j])
		}
	}
	return c
}

// EncodeBoneTrack builds the track of bone from per-frame positions and
// Euler angles. For non-delta animations they are offsets from the bone's
// base; delta animations store them as is. Constant channels are stored raw.
func EncodeBoneTrack(bone int, b *studio.Bone, pos, rot []mathutil.Vec3, delta bool) studio.BoneTrack {
	t := studio.BoneTrack{Bone: bone}
	var offPos, offRot mathutil.Vec3
	if !delta {
		offPos, offRot = b.Pos, b.Rot
	}
	if constant(pos) {
		t.Flags |= studio.TrackRawPos
		t.RawPos = offPos.Add(pos[0])
		pos = nil
	} else if pos != nil {
		t.Flags |= studio.TrackAnimPos
	}
	if constant(rot) {
		t.Flags |= studio.TrackRawRot
		a := offRot.Add(rot[0])
		t.RawRot = mathutil.EulerToQuat(a[0], a[1], a[2])
		rot = nil
	} else if rot != nil {
		t.Flags |= studio.TrackAnimRot
	}
	t.Channels = EncodeChannels(pos, rot, b.PosScale, b.RotScale)
	return t
}

func constant(vs []mathutil.Vec3) bool {
	if len(vs) == 0 {
		return false
	}
	for _, v := range vs[1:] {
		if v != vs[0] {
			return false
		}
	}
	return true
}
