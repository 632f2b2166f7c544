package mathutil

import "math"

// Mat3x4 is an affine bone transform stored row-major with an implicit
// [0 0 0 1] bottom row. Columns 0..2 are the rotation basis, column 3 the
// translation.
type Mat3x4 [12]float64

func Mat3x4Identity() Mat3x4 {
	return Mat3x4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	}
}

// FromMat3Translation builds an affine matrix from a 3×3 rotation and translation.
func FromMat3Translation(r Mat3, t Vec3) Mat3x4 {
	return Mat3x4{
		r[0], r[1], r[2], t[0],
		r[3], r[4], r[5], t[1],
		r[6], r[7], r[8], t[2],
	}
}

// Mat3x4FromQuatPos builds the local transform of a bone.
func Mat3x4FromQuatPos(q Quat, p Vec3) Mat3x4 {
	return FromMat3Translation(QuatToMat3(q), p)
}

// Mat3x4Mul returns a × b.
func Mat3x4Mul(a, b Mat3x4) Mat3x4 {
	var m Mat3x4
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			m[r*4+c] = a[r*4+0]*b[0*4+c] + a[r*4+1]*b[1*4+c] + a[r*4+2]*b[2*4+c]
		}
		m[r*4+3] += a[r*4+3]
	}
	return m
}

// MulPoint transforms a 3D point (w=1).
func (m Mat3x4) MulPoint(v Vec3) Vec3 {
	return Vec3{
		m[0]*v[0] + m[1]*v[1] + m[2]*v[2] + m[3],
		m[4]*v[0] + m[5]*v[1] + m[6]*v[2] + m[7],
		m[8]*v[0] + m[9]*v[1] + m[10]*v[2] + m[11],
	}
}

// MulDir transforms a direction (w=0).
func (m Mat3x4) MulDir(v Vec3) Vec3 {
	return Vec3{
		m[0]*v[0] + m[1]*v[1] + m[2]*v[2],
		m[4]*v[0] + m[5]*v[1] + m[6]*v[2],
		m[8]*v[0] + m[9]*v[1] + m[10]*v[2],
	}
}

func (m Mat3x4) Rotation() Mat3 {
	return Mat3{
		m[0], m[1], m[2],
		m[4], m[5], m[6],
		m[8], m[9], m[10],
	}
}

func (m Mat3x4) Position() Vec3 {
	return Vec3{m[3], m[7], m[11]}
}

func (m *Mat3x4) SetPosition(p Vec3) {
	m[3], m[7], m[11] = p[0], p[1], p[2]
}

// Column returns column c; column 3 is the translation.
func (m Mat3x4) Column(c int) Vec3 {
	return Vec3{m[c], m[4+c], m[8+c]}
}

func (m *Mat3x4) SetColumn(c int, v Vec3) {
	m[c], m[4+c], m[8+c] = v[0], v[1], v[2]
}

// Inverse returns the inverse affine transform.
func (m Mat3x4) Inverse() Mat3x4 {
	r := m.Rotation().Inverse()
	t := r.MulVec3(m.Position()).Scale(-1)
	return FromMat3Translation(r, t)
}

// QuatPos decomposes m into a rotation and a translation.
func (m Mat3x4) QuatPos() (Quat, Vec3) {
	return QuatFromMat3(m.Rotation()).Normalize(), m.Position()
}

func (m Mat3x4) IsFinite() bool {
	for _, c := range m {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// ApproxEqual reports whether every element differs by at most tol.
func (m Mat3x4) ApproxEqual(b Mat3x4, tol float64) bool {
	for i := range m {
		if math.Abs(m[i]-b[i]) > tol {
			return false
		}
	}
	return true
}
