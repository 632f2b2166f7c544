package anim

import (
	"fmt"

	"studio-pose/internal/mathutil"
	"studio-pose/internal/studio"
)

// frameWidths returns the bytes a bone occupies in the constant stream and
// in each frame.
func frameWidths(flags uint8) (constant, frame int) {
	if flags&studio.FrameConstRot != 0 {
		constant += studio.Quat48Size
	}
	if flags&studio.FrameConstPos != 0 {
		constant += studio.Vec48Size
	}
	if flags&studio.FrameAnimRot != 0 {
		frame += studio.Quat48Size
	}
	if flags&studio.FrameAnimPos != 0 {
		frame += studio.Vec48Size
	}
	if flags&studio.FrameFullAnimPos != 0 {
		frame += studio.FullPosSize
	}
	return constant, frame
}

// frameCursor walks the constant and frame streams of a FrameArray in bone
// order. Each call to next consumes exactly one bone from both streams.
type frameCursor struct {
	fa       *studio.FrameArray
	konst    reader
	frame    reader
	nextStep int // byte distance to the same field in the following frame
}

func newFrameCursor(fa *studio.FrameArray, frame, numFrames int) frameCursor {
	start := frame * fa.FrameLength
	step := fa.FrameLength
	if frame >= numFrames-1 {
		step = 0
	}
	return frameCursor{
		fa:       fa,
		konst:    reader{data: fa.Constants},
		frame:    reader{data: fa.Frames, off: start},
		nextStep: step,
	}
}

// next decodes bone i into q and pos when decode is set; q and pos must hold
// the default pose. The cursors advance whether or not the bone is decoded.
func (c *frameCursor) next(i int, decode bool, s float64, scale mathutil.Vec3, q *mathutil.Quat, pos *mathutil.Vec3) error {
	flags := c.fa.BoneFlags[i]
	constW, frameW := frameWidths(flags)
	if !decode {
		c.konst.skip(constW)
		c.frame.skip(frameW)
		return c.check(i)
	}

	if flags&studio.FrameConstRot != 0 {
		*q = c.konst.readQuat48()
	}
	if flags&studio.FrameConstPos != 0 {
		*pos = c.konst.readVec48(scale)
	}
	if flags&studio.FrameAnimRot != 0 {
		nr := c.frame.peek(c.nextStep)
		q1 := c.frame.readQuat48()
		q2 := nr.readQuat48()
		*q = mathutil.QuatBlend(q1, q2, s)
	}
	if flags&studio.FrameAnimPos != 0 {
		nr := c.frame.peek(c.nextStep)
		p1 := c.frame.readVec48(scale)
		p2 := nr.readVec48(scale)
		*pos = p1.Lerp(p2, s)
	}
	if flags&studio.FrameFullAnimPos != 0 {
		nr := c.frame.peek(c.nextStep)
		p1 := c.frame.readFullPos()
		p2 := nr.readFullPos()
		*pos = p1.Lerp(p2, s)
	}
	return c.check(i)
}

func (c *frameCursor) check(i int) error {
	if c.konst.short || c.frame.short {
		return fmt.Errorf("%w: frame array truncated at bone %d", ErrTrackOverrun, i)
	}
	return nil
}

// FrameBone is the source data of one bone for BuildFrameArray.
type FrameBone struct {
	Flags    uint8
	ConstRot mathutil.Quat
	ConstPos mathutil.Vec3
	Rot      []mathutil.Quat // per frame for FrameAnimRot
	Pos      []mathutil.Vec3 // per frame for FrameAnimPos or FrameFullAnimPos
}

// BuildFrameArray encodes per-bone data into a FrameArray for skel.
func BuildFrameArray(skel *studio.Skeleton, numFrames int, bones []FrameBone) (*studio.FrameArray, error) {
	if len(bones) != skel.NumBones() {
		return nil, fmt.Errorf("anim: %d frame bones for %d skeleton bones", len(bones), skel.NumBones())
	}
	fa := &studio.FrameArray{BoneFlags: make([]uint8, len(bones))}
	for i, b := range bones {
		if b.Flags&studio.FrameAnimPos != 0 && b.Flags&studio.FrameFullAnimPos != 0 {
			return nil, fmt.Errorf("anim: bone %d has two animated position encodings", i)
		}
		if b.Flags&studio.FrameAnimRot != 0 && len(b.Rot) != numFrames {
			return nil, fmt.Errorf("anim: bone %d has %d rotation frames, want %d", i, len(b.Rot), numFrames)
		}
		if b.Flags&(studio.FrameAnimPos|studio.FrameFullAnimPos) != 0 && len(b.Pos) != numFrames {
			return nil, fmt.Errorf("anim: bone %d has %d position frames, want %d", i, len(b.Pos), numFrames)
		}
		fa.BoneFlags[i] = b.Flags
		_, w := frameWidths(b.Flags)
		fa.FrameLength += w

		if b.Flags&studio.FrameConstRot != 0 {
			fa.Constants = AppendQuat48(fa.Constants, b.ConstRot)
		}
		if b.Flags&studio.FrameConstPos != 0 {
			fa.Constants = AppendVec48(fa.Constants, b.ConstPos, skel.Bones[i].PosScale)
		}
	}

	fa.Frames = make([]byte, 0, numFrames*fa.FrameLength)
	for f := 0; f < numFrames; f++ {
		for i, b := range bones {
			if b.Flags&studio.FrameAnimRot != 0 {
				fa.Frames = AppendQuat48(fa.Frames, b.Rot[f])
			}
			if b.Flags&studio.FrameAnimPos != 0 {
				fa.Frames = AppendVec48(fa.Frames, b.Pos[f], skel.Bones[i].PosScale)
			}
			if b.Flags&studio.FrameFullAnimPos != 0 {
				fa.Frames = AppendFullPos(fa.Frames, b.Pos[f])
			}
		}
	}
	return fa, nil
}
