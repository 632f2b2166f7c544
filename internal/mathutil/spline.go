package mathutil

// SimpleSpline is the smoothstep 3v²-2v³.
func SimpleSpline(v float64) float64 {
	v2 := v * v
	return 3*v2 - 2*v2*v
}

func hermiteBasis(t float64) (b1, b2, b3, b4 float64) {
	t2 := t * t
	t3 := t * t2
	b1 = 2*t3 - 3*t2 + 1
	b2 = 1 - b1
	b3 = t3 - 2*t2 + t
	b4 = t3 - t2
	return
}

// Hermite evaluates the cubic Hermite curve from p1 to p2 with tangents d1, d2.
func Hermite(p1, p2, d1, d2, t float64) float64 {
	b1, b2, b3, b4 := hermiteBasis(t)
	return b1*p1 + b2*p2 + b3*d1 + b4*d2
}

// HermiteSpline3 interpolates between p1 and p2 using p0 for the incoming tangent.
func HermiteSpline3(p0, p1, p2, t float64) float64 {
	return Hermite(p1, p2, p1-p0, p2-p1, t)
}

// HermiteSplineVec3 applies HermiteSpline3 per component.
func HermiteSplineVec3(p0, p1, p2 Vec3, t float64) Vec3 {
	return Vec3{
		HermiteSpline3(p0[0], p1[0], p2[0], t),
		HermiteSpline3(p0[1], p1[1], p2[1], t),
		HermiteSpline3(p0[2], p1[2], p2[2], t),
	}
}

// HermiteSplineQuat aligns q0 and q1 to q2, splines each component and normalizes.
func HermiteSplineQuat(q0, q1, q2 Quat, t float64) Quat {
	q0 = QuatAlign(q2, q0)
	q1 = QuatAlign(q2, q1)
	var q Quat
	for i := range q {
		q[i] = HermiteSpline3(q0[i], q1[i], q2[i], t)
	}
	return q.Normalize()
}
