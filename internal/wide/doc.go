// Package wide provides fixed-width lane types for bone-parallel math.
//
// F64x4 holds one component of four bones at once (Structure-of-Arrays).
// Operations are simple loops over fixed-size arrays so the compiler can
// keep them in registers and, where supported, vectorize them.
//
// # Lane Semantics
//
// Every operation is element-wise and matches the scalar float64 expression
// it replaces, so a batch computation can be diffed against its scalar
// reference lane by lane. Branches are expressed with Mask4 and Select.
//
// # Usage Example
//
//	// Lerp the X position of four bones.
//	a := wide.F64x4{p1[0][0], p1[1][0], p1[2][0], p1[3][0]}
//	b := wide.F64x4{p2[0][0], p2[1][0], p2[2][0], p2[3][0]}
//	x := a.Mul(s1).Add(b.Mul(s2))
package wide
