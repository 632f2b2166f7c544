package mathutil

import "math"

// Quat represents a quaternion (x, y, z, w).
type Quat [4]float64

func QuatIdentity() Quat {
	return Quat{0, 0, 0, 1}
}

// EulerToQuat converts Euler XYZ (radians) to a quaternion.
func EulerToQuat(rx, ry, rz float64) Quat {
	cx, sx := math.Cos(rx*0.5), math.Sin(rx*0.5)
	cy, sy := math.Cos(ry*0.5), math.Sin(ry*0.5)
	cz, sz := math.Cos(rz*0.5), math.Sin(rz*0.5)

	return Quat{
		sx*cy*cz - cx*sy*sz, // x
		cx*sy*cz + sx*cy*sz, // y
		cx*cy*sz - sx*sy*cz, // z
		cx*cy*cz + sx*sy*sz, // w
	}
}

// QuatToMat3 converts a quaternion to a 3×3 rotation matrix.
func QuatToMat3(q Quat) Mat3 {
	x, y, z, w := q[0], q[1], q[2], q[3]
	xx, yy, zz := x*x, y*y, z*z
	xy, xz, yz := x*y, x*z, y*z
	wx, wy, wz := w*x, w*y, w*z

	return Mat3{
		1 - 2*(yy+zz), 2 * (xy - wz), 2 * (xz + wy),
		2 * (xy + wz), 1 - 2*(xx+zz), 2 * (yz - wx),
		2 * (xz - wy), 2 * (yz + wx), 1 - 2*(xx+yy),
	}
}

// QuatFromMat3 extracts the rotation of an orthonormal matrix.
func QuatFromMat3(m Mat3) Quat {
	tr := m[0] + m[4] + m[8]
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		return Quat{(m[7] - m[5]) / s, (m[2] - m[6]) / s, (m[3] - m[1]) / s, 0.25 * s}
	case m[0] > m[4] && m[0] > m[8]:
		s := math.Sqrt(1+m[0]-m[4]-m[8]) * 2
		return Quat{0.25 * s, (m[1] + m[3]) / s, (m[2] + m[6]) / s, (m[7] - m[5]) / s}
	case m[4] > m[8]:
		s := math.Sqrt(1+m[4]-m[0]-m[8]) * 2
		return Quat{(m[1] + m[3]) / s, 0.25 * s, (m[5] + m[7]) / s, (m[2] - m[6]) / s}
	default:
		s := math.Sqrt(1+m[8]-m[0]-m[4]) * 2
		return Quat{(m[2] + m[6]) / s, (m[5] + m[7]) / s, 0.25 * s, (m[3] - m[1]) / s}
	}
}

// QuatAxisAngle returns the rotation of angle radians about a unit axis.
func QuatAxisAngle(axis Vec3, angle float64) Quat {
	s, c := math.Sincos(angle * 0.5)
	return Quat{axis[0] * s, axis[1] * s, axis[2] * s, c}
}

func (q Quat) Dot(p Quat) float64 {
	return q[0]*p[0] + q[1]*p[1] + q[2]*p[2] + q[3]*p[3]
}

// Mul returns the Hamilton product q × p (apply p first, then q).
func (q Quat) Mul(p Quat) Quat {
	return Quat{
		q[3]*p[0] + q[0]*p[3] + q[1]*p[2] - q[2]*p[1],
		q[3]*p[1] - q[0]*p[2] + q[1]*p[3] + q[2]*p[0],
		q[3]*p[2] + q[0]*p[1] - q[1]*p[0] + q[2]*p[3],
		q[3]*p[3] - q[0]*p[0] - q[1]*p[1] - q[2]*p[2],
	}
}

func (q Quat) Conj() Quat {
	return Quat{-q[0], -q[1], -q[2], q[3]}
}

func (q Quat) Neg() Quat {
	return Quat{-q[0], -q[1], -q[2], -q[3]}
}

// Normalize returns q scaled to unit length; a zero quaternion becomes identity.
func (q Quat) Normalize() Quat {
	l := math.Sqrt(q.Dot(q))
	if l < 1e-12 {
		return QuatIdentity()
	}
	inv := 1 / l
	return Quat{q[0] * inv, q[1] * inv, q[2] * inv, q[3] * inv}
}

func (q Quat) IsFinite() bool {
	for _, c := range q {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// IsUnit reports whether q is finite with length within tol of 1.
func (q Quat) IsUnit(tol float64) bool {
	return q.IsFinite() && math.Abs(math.Sqrt(q.Dot(q))-1) <= tol
}

// Rotate returns v rotated by q.
func (q Quat) Rotate(v Vec3) Vec3 {
	return QuatToMat3(q).MulVec3(v)
}

// ApproxEqual compares q and p as rotations, ignoring sign.
func (q Quat) ApproxEqual(p Quat, tol float64) bool {
	return 1-math.Abs(q.Dot(p)) <= tol
}

// QuatAlign returns q or -q, whichever lies in the same hemisphere as p.
func QuatAlign(p, q Quat) Quat {
	if p.Dot(q) < 0 {
		return q.Neg()
	}
	return q
}

// QuatSlerp interpolates along the short arc from p to q.
func QuatSlerp(p, q Quat, t float64) Quat {
	return QuatSlerpNoAlign(p, QuatAlign(p, q), t)
}

// QuatSlerpNoAlign interpolates from p to q without choosing the short arc.
func QuatSlerpNoAlign(p, q Quat, t float64) Quat {
	cosom := p.Dot(q)
	var qt Quat
	if 1+cosom > 1e-6 {
		var sclp, sclq float64
		if 1-cosom > 1e-6 {
			omega := math.Acos(cosom)
			sinom := math.Sin(omega)
			sclp = math.Sin((1-t)*omega) / sinom
			sclq = math.Sin(t*omega) / sinom
		} else {
			sclp = 1 - t
			sclq = t
		}
		for i := range qt {
			qt[i] = sclp*p[i] + sclq*q[i]
		}
		return qt
	}

	// p and q are opposite; rotate through a perpendicular.
	perp := Quat{-p[1], p[0], -p[3], p[2]}
	sclp := math.Sin((1 - t) * 0.5 * math.Pi)
	sclq := math.Sin(t * 0.5 * math.Pi)
	for i := range qt {
		qt[i] = sclp*p[i] + sclq*perp[i]
	}
	return qt
}

// QuatBlend is a normalized linear interpolation along the short arc.
func QuatBlend(p, q Quat, t float64) Quat {
	q = QuatAlign(p, q)
	s := 1 - t
	return Quat{
		p[0]*s + q[0]*t,
		p[1]*s + q[1]*t,
		p[2]*s + q[2]*t,
		p[3]*s + q[3]*t,
	}.Normalize()
}

// QuatScale scales the rotation angle of p by t.
func QuatScale(p Quat, t float64) Quat {
	sinom := math.Sqrt(p[0]*p[0] + p[1]*p[1] + p[2]*p[2])
	if sinom > 1 {
		sinom = 1
	}
	sinsom := math.Sin(math.Asin(sinom) * t)
	k := sinsom / (sinom + math.SmallestNonzeroFloat32)
	q := Quat{p[0] * k, p[1] * k, p[2] * k, 0}

	r := 1 - sinsom*sinsom
	if r < 0 {
		r = 0
	}
	q[3] = math.Sqrt(r)
	if p[3] < 0 {
		q[3] = -q[3]
	}
	return q
}

// QuatSM returns normalize(scale(p, s) × q): p applied as a pre-rotation delta.
func QuatSM(s float64, p, q Quat) Quat {
	return QuatScale(p, s).Mul(q).Normalize()
}

// QuatMA returns normalize(q × scale(p, s)): p applied as a post-rotation delta.
func QuatMA(q Quat, s float64, p Quat) Quat {
	return q.Mul(QuatScale(p, s)).Normalize()
}

// QuatAngle returns the angle in radians of the rotation taking p to q.
func QuatAngle(p, q Quat) float64 {
	d := math.Abs(p.Dot(q))
	if d > 1 {
		d = 1
	}
	return 2 * math.Acos(d)
}

// QuatShortestArc returns the minimal rotation taking unit vector from onto unit vector to.
func QuatShortestArc(from, to Vec3) Quat {
	d := from.Dot(to)
	if d < -1+1e-9 {
		axis := Vec3{1, 0, 0}.Cross(from)
		if axis.LenSqr() < 1e-12 {
			axis = Vec3{0, 1, 0}.Cross(from)
		}
		return QuatAxisAngle(axis.Normalize(), math.Pi)
	}
	c := from.Cross(to)
	return Quat{c[0], c[1], c[2], 1 + d}.Normalize()
}
