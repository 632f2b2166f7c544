package pose

// Arena hands out scratch poses and matrix arrays sized to one bone count.
// Buffers are returned in stack order: take a Mark before acquiring and
// Release it on every exit path.
type Arena struct {
	bones int
	poses []*Pose
	mats  []*Matrices
	nPose int
	nMat  int
}

// Mark is a position in the arena stack.
type Mark struct {
	poses, mats int
}

// NewArena preallocates depth poses and depth matrix arrays of bones entries.
func NewArena(bones, depth int) *Arena {
	a := &Arena{bones: bones}
	for i := 0; i < depth; i++ {
		a.poses = append(a.poses, New(bones))
		a.mats = append(a.mats, NewMatrices(bones))
	}
	return a
}

// Bones returns the bone capacity of every buffer.
func (a *Arena) Bones() int { return a.bones }

// Pose returns the next free pose. Contents are stale.
func (a *Arena) Pose() *Pose {
	if a.nPose == len(a.poses) {
		a.poses = append(a.poses, New(a.bones))
	}
	p := a.poses[a.nPose]
	a.nPose++
	return p
}

// Matrices returns the next free matrix array with every bit cleared.
func (a *Arena) Matrices() *Matrices {
	if a.nMat == len(a.mats) {
		a.mats = append(a.mats, NewMatrices(a.bones))
	}
	m := a.mats[a.nMat]
	a.nMat++
	m.Reset()
	return m
}

func (a *Arena) Mark() Mark { return Mark{a.nPose, a.nMat} }

// Release returns every buffer acquired since m.
func (a *Arena) Release(m Mark) {
	a.nPose = m.poses
	a.nMat = m.mats
}

// InUse reports how many poses and matrix arrays are checked out.
func (a *Arena) InUse() (poses, mats int) { return a.nPose, a.nMat }
