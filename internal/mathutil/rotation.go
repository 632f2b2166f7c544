package mathutil

import "math"

// AxisRotation returns the matrix rotating by a radians about axis 0 (X),
// 1 (Y) or 2 (Z).
func AxisRotation(axis int, a float64) Mat3 {
	c, s := math.Cos(a), math.Sin(a)
	switch axis {
	case 0:
		return Mat3{1, 0, 0, 0, c, -s, 0, s, c}
	case 1:
		return Mat3{c, 0, s, 0, 1, 0, -s, 0, c}
	default:
		return Mat3{c, -s, 0, s, c, 0, 0, 0, 1}
	}
}

// EulerToMat3 composes Euler XYZ angles as Rz·Ry·Rx, the same rotation
// EulerToQuat produces.
func EulerToMat3(a Vec3) Mat3 {
	return Mat3Mul(AxisRotation(2, a[2]), Mat3Mul(AxisRotation(1, a[1]), AxisRotation(0, a[0])))
}
