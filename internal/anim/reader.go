package anim

import (
	"encoding/binary"
	"math"
)

// reader is a little-endian cursor over a frame-array stream. Reads past
// the end return zero and set short.
type reader struct {
	data  []byte
	off   int
	short bool
}

func (r *reader) readU16() uint16 {
	if r.off+2 > len(r.data) {
		r.off = len(r.data)
		r.short = true
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *reader) readI16() int16 {
	return int16(r.readU16())
}

func (r *reader) readF32() float32 {
	if r.off+4 > len(r.data) {
		r.off = len(r.data)
		r.short = true
		return 0
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(r.data[r.off:]))
	r.off += 4
	return v
}

// peek returns a cursor n bytes past the current position, used to read the
// same field of the following frame.
func (r *reader) peek(n int) reader {
	return reader{data: r.data, off: r.off + n}
}

func (r *reader) skip(n int) {
	r.off += n
	if r.off > len(r.data) {
		r.off = len(r.data)
		r.short = true
	}
}
