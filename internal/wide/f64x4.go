package wide

import "math"

// Lanes is the batch width of F64x4.
const Lanes = 4

// F64x4 represents 4 float64 values for batch bone operations.
type F64x4 [Lanes]float64

// Mask4 selects lanes for Select.
type Mask4 [Lanes]bool

// SplatF64 creates F64x4 with all elements set to n.
func SplatF64(n float64) F64x4 {
	var result F64x4
	for i := range result {
		result[i] = n
	}
	return result
}

// Add performs element-wise addition.
func (v F64x4) Add(other F64x4) F64x4 {
	var result F64x4
	for i := range v {
		result[i] = v[i] + other[i]
	}
	return result
}

// Sub performs element-wise subtraction.
func (v F64x4) Sub(other F64x4) F64x4 {
	var result F64x4
	for i := range v {
		result[i] = v[i] - other[i]
	}
	return result
}

// Mul performs element-wise multiplication.
func (v F64x4) Mul(other F64x4) F64x4 {
	var result F64x4
	for i := range v {
		result[i] = v[i] * other[i]
	}
	return result
}

// Div performs element-wise division.
// Division by zero follows IEEE 754.
func (v F64x4) Div(other F64x4) F64x4 {
	var result F64x4
	for i := range v {
		result[i] = v[i] / other[i]
	}
	return result
}

// Neg negates each element.
func (v F64x4) Neg() F64x4 {
	var result F64x4
	for i := range v {
		result[i] = -v[i]
	}
	return result
}

// Sqrt computes the square root of each element.
func (v F64x4) Sqrt() F64x4 {
	var result F64x4
	for i := range v {
		result[i] = math.Sqrt(v[i])
	}
	return result
}

// Sin computes sin of each element.
func (v F64x4) Sin() F64x4 {
	var result F64x4
	for i := range v {
		result[i] = math.Sin(v[i])
	}
	return result
}

// Acos computes acos of each element.
func (v F64x4) Acos() F64x4 {
	var result F64x4
	for i := range v {
		result[i] = math.Acos(v[i])
	}
	return result
}

// Clamp clamps each element to [minVal, maxVal].
func (v F64x4) Clamp(minVal, maxVal float64) F64x4 {
	var result F64x4
	for i := range v {
		switch {
		case v[i] < minVal:
			result[i] = minVal
		case v[i] > maxVal:
			result[i] = maxVal
		default:
			result[i] = v[i]
		}
	}
	return result
}

// Less reports v[i] < other[i] per lane.
func (v F64x4) Less(other F64x4) Mask4 {
	var m Mask4
	for i := range v {
		m[i] = v[i] < other[i]
	}
	return m
}

// Greater reports v[i] > other[i] per lane.
func (v F64x4) Greater(other F64x4) Mask4 {
	var m Mask4
	for i := range v {
		m[i] = v[i] > other[i]
	}
	return m
}

// Select returns a[i] where m[i] is set, b[i] otherwise.
func Select(m Mask4, a, b F64x4) F64x4 {
	var result F64x4
	for i := range m {
		if m[i] {
			result[i] = a[i]
		} else {
			result[i] = b[i]
		}
	}
	return result
}

// And combines two masks.
func (m Mask4) And(other Mask4) Mask4 {
	var r Mask4
	for i := range m {
		r[i] = m[i] && other[i]
	}
	return r
}

// Not inverts a mask.
func (m Mask4) Not() Mask4 {
	var r Mask4
	for i := range m {
		r[i] = !m[i]
	}
	return r
}

// Any reports whether any lane is set.
func (m Mask4) Any() bool {
	for _, b := range m {
		if b {
			return true
		}
	}
	return false
}

// Dot4 returns ax*bx + ay*by + az*bz + aw*bw per lane, left to right.
func Dot4(ax, ay, az, aw, bx, by, bz, bw F64x4) F64x4 {
	var result F64x4
	for i := range result {
		result[i] = ax[i]*bx[i] + ay[i]*by[i] + az[i]*bz[i] + aw[i]*bw[i]
	}
	return result
}
