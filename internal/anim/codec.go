package anim

import (
	"encoding/binary"
	"math"

	"studio-pose/internal/mathutil"
)

// Quat48 layout: x and y as 16-bit unsigned offsets of 1/32768, z as a
// 15-bit offset of 1/16384 and the sign of w in the top bit. w is rebuilt
// from the unit length constraint.

func (r *reader) readQuat48() mathutil.Quat {
	xv := r.readU16()
	yv := r.readU16()
	zw := r.readU16()
	x := float64(int(xv)-32768) / 32768
	y := float64(int(yv)-32768) / 32768
	z := float64(int(zw&0x7fff)-16384) / 16384
	w := math.Sqrt(math.Max(0, 1-x*x-y*y-z*z))
	if zw&0x8000 != 0 {
		w = -w
	}
	return mathutil.Quat{x, y, z, w}
}

func (r *reader) readVec48(scale mathutil.Vec3) mathutil.Vec3 {
	return mathutil.Vec3{
		float64(r.readI16()) * scale[0],
		float64(r.readI16()) * scale[1],
		float64(r.readI16()) * scale[2],
	}
}

func (r *reader) readFullPos() mathutil.Vec3 {
	return mathutil.Vec3{float64(r.readF32()), float64(r.readF32()), float64(r.readF32())}
}

// AppendQuat48 appends the quantized form of a unit quaternion.
func AppendQuat48(b []byte, q mathutil.Quat) []byte {
	q = q.Normalize()
	x := quantize(q[0]*32768+32768, 0, 65535)
	y := quantize(q[1]*32768+32768, 0, 65535)
	z := quantize(q[2]*16384+16384, 0, 32767)
	if q[3] < 0 {
		z |= 0x8000
	}
	b = binary.LittleEndian.AppendUint16(b, x)
	b = binary.LittleEndian.AppendUint16(b, y)
	return binary.LittleEndian.AppendUint16(b, z)
}

// AppendVec48 appends v as three int16 multiples of scale.
func AppendVec48(b []byte, v, scale mathutil.Vec3) []byte {
	for i := range v {
		var s int16
		if scale[i] != 0 {
			s = int16(int32(quantize(v[i]/scale[i]+32768, 0, 65535)) - 32768)
		}
		b = binary.LittleEndian.AppendUint16(b, uint16(s))
	}
	return b
}

// AppendFullPos appends v as three float32.
func AppendFullPos(b []byte, v mathutil.Vec3) []byte {
	for i := range v {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(float32(v[i])))
	}
	return b
}

func quantize(v, lo, hi float64) uint16 {
	v = math.Round(v)
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return uint16(v)
}
