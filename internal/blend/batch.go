package blend

import (
	"math"

	"studio-pose/internal/mathutil"
	"studio-pose/internal/pose"
	"studio-pose/internal/studio"
	"studio-pose/internal/wide"
)

// SlerpBonesBatch is SlerpBones evaluated four bones at a time. Delta and
// world-space sequences, and the bones left over after the last full batch,
// take the scalar path.
func SlerpBonesBatch(skel *studio.Skeleton, seq *studio.Sequence, p1, p2 *pose.Pose, s float64, mask studio.BoneFlags) {
	if s <= 0 {
		return
	}
	if seq.Flags&(studio.SeqDelta|studio.SeqWorldSpace) != 0 {
		SlerpBones(skel, seq, p1, p2, s, mask)
		return
	}
	s = math.Min(s, 1)
	slerpBatches(skel, p1, p2, func(i int) float64 { return s * seq.Weight(i) }, mask)
}

func blendBonesBatch(skel *studio.Skeleton, seq *studio.Sequence, p1, p2 *pose.Pose, s float64, mask studio.BoneFlags) {
	if s <= 0 {
		return
	}
	s = math.Min(s, 1)
	slerpBatches(skel, p1, p2, func(i int) float64 {
		if seq.Weight(i) > 0 {
			return s
		}
		return 0
	}, mask)
}

func slerpBatches(skel *studio.Skeleton, p1, p2 *pose.Pose, weight func(int) float64, mask studio.BoneFlags) {
	n := skel.NumBones()
	full := n - n%wide.Lanes
	for base := 0; base < full; base += wide.Lanes {
		var (
			s2     wide.F64x4
			fixed  wide.Mask4
			active wide.Mask4
		)
		for l := 0; l < wide.Lanes; l++ {
			i := base + l
			s2[l] = weight(i)
			fixed[l] = skel.Bones[i].Flags&studio.BoneFixedAlignment != 0
			active[l] = skel.InMask(i, mask) && s2[l] > 0
		}
		if !active.Any() {
			continue
		}
		slerp4(p1, p2, base, s2, fixed, active)
	}
	for i := full; i < n; i++ {
		if !skel.InMask(i, mask) {
			continue
		}
		if s2 := weight(i); s2 > 0 {
			slerpBone(skel, p1, p2, i, s2)
		}
	}
}

// slerp4 mirrors slerpBone lane by lane for bones base..base+3. Rotations
// interpolate from p2 toward p1 by 1-s2, as the scalar path does.
func slerp4(p1, p2 *pose.Pose, base int, s2 wide.F64x4, fixed, active wide.Mask4) {
	var px, py, pz, pw, qx, qy, qz, qw wide.F64x4
	for l := 0; l < wide.Lanes; l++ {
		a, b := p2.Q[base+l], p1.Q[base+l]
		px[l], py[l], pz[l], pw[l] = a[0], a[1], a[2], a[3]
		qx[l], qy[l], qz[l], qw[l] = b[0], b[1], b[2], b[3]
	}
	zero := wide.SplatF64(0)
	one := wide.SplatF64(1)
	t := one.Sub(s2)
	tc := one.Sub(t)

	flip := wide.Dot4(px, py, pz, pw, qx, qy, qz, qw).Less(zero).And(fixed.Not())
	qx = wide.Select(flip, qx.Neg(), qx)
	qy = wide.Select(flip, qy.Neg(), qy)
	qz = wide.Select(flip, qz.Neg(), qz)
	qw = wide.Select(flip, qw.Neg(), qw)

	cosom := wide.Dot4(px, py, pz, pw, qx, qy, qz, qw)
	eps := wide.SplatF64(1e-6)
	opposite := one.Add(cosom).Greater(eps).Not()
	far := one.Sub(cosom).Greater(eps)

	omega := cosom.Clamp(-1, 1).Acos()
	sinom := omega.Sin()
	sclp := wide.Select(far, tc.Mul(omega).Sin().Div(sinom), tc)
	sclq := wide.Select(far, t.Mul(omega).Sin().Div(sinom), t)

	halfPi := wide.SplatF64(0.5 * math.Pi)
	sclp = wide.Select(opposite, tc.Mul(halfPi).Sin(), sclp)
	sclq = wide.Select(opposite, t.Mul(halfPi).Sin(), sclq)
	qx = wide.Select(opposite, py.Neg(), qx)
	qy = wide.Select(opposite, px, qy)
	qz = wide.Select(opposite, pw.Neg(), qz)
	qw = wide.Select(opposite, pz, qw)

	rx := sclp.Mul(px).Add(sclq.Mul(qx))
	ry := sclp.Mul(py).Add(sclq.Mul(qy))
	rz := sclp.Mul(pz).Add(sclq.Mul(qz))
	rw := sclp.Mul(pw).Add(sclq.Mul(qw))

	var ax, ay, az, bx, by, bz wide.F64x4
	for l := 0; l < wide.Lanes; l++ {
		a, b := p1.Pos[base+l], p2.Pos[base+l]
		ax[l], ay[l], az[l] = a[0], a[1], a[2]
		bx[l], by[l], bz[l] = b[0], b[1], b[2]
	}
	x := ax.Mul(t).Add(bx.Mul(s2))
	y := ay.Mul(t).Add(by.Mul(s2))
	z := az.Mul(t).Add(bz.Mul(s2))

	for l := 0; l < wide.Lanes; l++ {
		if !active[l] {
			continue
		}
		i := base + l
		if s2[l] >= 1 {
			p1.Q[i], p1.Pos[i] = p2.Q[i], p2.Pos[i]
			continue
		}
		p1.Q[i] = mathutil.Quat{rx[l], ry[l], rz[l], rw[l]}.Normalize()
		p1.Pos[i] = mathutil.Vec3{x[l], y[l], z[l]}
	}
}
