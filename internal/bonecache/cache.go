// Package bonecache keeps finished bone-to-world matrix arrays for reuse
// within a frame. Entries are keyed by owning model instance and bone mask,
// bounded by a byte budget and evicted least recently used first.
package bonecache

import (
	"container/list"
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"studio-pose/internal/diag"
	"studio-pose/internal/mathutil"
	"studio-pose/internal/pose"
	"studio-pose/internal/studio"
)

// DefaultBudget is the byte budget used when New is given none.
const DefaultBudget = 4 << 20

const (
	matrixBytes = 12 * 8
	remapBytes  = 2
	entryBytes  = 64
)

// Handle refers to a cache entry. The zero Handle is never valid; a handle
// stops being valid once its entry is evicted or destroyed.
type Handle struct {
	slot uint32
	gen  uint32
}

type key struct {
	owner uuid.UUID
	mask  studio.BoneFlags
}

type entry struct {
	key   key
	gen   uint32
	live  bool
	locks int

	// toCache maps a skeleton bone to its row in world, or -1.
	toCache   []int16
	fromCache []int
	world     []mathutil.Mat3x4

	time    float64
	updated bool
	size    int64
	element *list.Element
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries   int
	Bytes     int64
	Budget    int64
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Cache is safe for concurrent use.
type Cache struct {
	mu     sync.Mutex
	budget int64
	size   int64
	slots  []entry
	free   []uint32
	index  map[key]uint32
	lru    *list.List // front is most recently used; values are slot numbers

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New returns a cache holding at most budget bytes of entries.
func New(budget int64) *Cache {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Cache{
		budget: budget,
		index:  make(map[key]uint32),
		lru:    list.New(),
	}
}

// EntrySize returns the bytes an entry for skel and mask is charged.
func EntrySize(skel *studio.Skeleton, mask studio.BoneFlags) int64 {
	return int64(len(storedBones(skel, mask)))*matrixBytes + int64(skel.NumBones())*remapBytes + entryBytes
}

// storedBones lists bone 0, every bone in mask and their ancestors, so a
// read never marks a bone whose parent is left uncomputed.
func storedBones(skel *studio.Skeleton, mask studio.BoneFlags) []int {
	need := pose.NewBoneSet(skel.NumBones())
	need.Mark(0)
	for i := 1; i < skel.NumBones(); i++ {
		if !skel.InMask(i, mask) {
			continue
		}
		for b := i; b >= 0 && !need.Has(b); b = skel.Bones[b].Parent {
			need.Mark(b)
		}
	}
	var bones []int
	for i := 0; i < skel.NumBones(); i++ {
		if need.Has(i) {
			bones = append(bones, i)
		}
	}
	return bones
}

// Acquire finds or creates the entry of owner, an instance of skel, for
// mask and locks it against eviction until Release. Every model instance
// needs its own owner id; instances sharing one would read each other's
// matrices. ok reports whether the entry holds matrices
// updated within dt of now. When the entry cannot be created inside the
// budget the returned handle is invalid.
func (c *Cache) Acquire(owner uuid.UUID, skel *studio.Skeleton, mask studio.BoneFlags, now, dt float64) (h Handle, ok bool) {
	k := key{owner: owner, mask: mask}

	c.mu.Lock()
	defer c.mu.Unlock()

	if slot, found := c.index[k]; found {
		e := &c.slots[slot]
		e.locks++
		c.lru.MoveToFront(e.element)
		h = Handle{slot: slot, gen: e.gen}
		if e.updated && math.Abs(now-e.time) <= dt {
			c.hits.Add(1)
			return h, true
		}
		c.misses.Add(1)
		return h, false
	}

	c.misses.Add(1)
	size := EntrySize(skel, mask)
	if size > c.budget || !c.evictUntil(c.budget-size) {
		diag.Logger().Debug("bone cache full", "need", size, "used", c.size, "budget", c.budget)
		return Handle{}, false
	}

	bones := storedBones(skel, mask)
	toCache := make([]int16, skel.NumBones())
	for i := range toCache {
		toCache[i] = -1
	}
	for row, b := range bones {
		toCache[b] = int16(row)
	}

	slot := c.alloc()
	e := &c.slots[slot]
	*e = entry{
		key:       k,
		gen:       e.gen,
		live:      true,
		locks:     1,
		toCache:   toCache,
		fromCache: bones,
		world:     make([]mathutil.Mat3x4, len(bones)),
		size:      size,
	}
	e.element = c.lru.PushFront(slot)
	c.index[k] = slot
	c.size += size
	return Handle{slot: slot, gen: e.gen}, false
}

func (c *Cache) alloc() uint32 {
	if n := len(c.free); n > 0 {
		slot := c.free[n-1]
		c.free = c.free[:n-1]
		return slot
	}
	c.slots = append(c.slots, entry{gen: 1})
	return uint32(len(c.slots) - 1)
}

// evictUntil drops unlocked entries from the back of the LRU list until at
// most target bytes are used. It reports whether the target was reached.
func (c *Cache) evictUntil(target int64) bool {
	for el := c.lru.Back(); el != nil && c.size > target; {
		prev := el.Prev()
		slot := el.Value.(uint32)
		if c.slots[slot].locks == 0 {
			c.remove(slot)
			c.evictions.Add(1)
		}
		el = prev
	}
	return c.size <= target
}

func (c *Cache) remove(slot uint32) {
	e := &c.slots[slot]
	c.lru.Remove(e.element)
	delete(c.index, e.key)
	c.size -= e.size
	*e = entry{gen: e.gen + 1}
	c.free = append(c.free, slot)
}

// lookup returns the live entry of h. The caller holds c.mu.
func (c *Cache) lookup(h Handle) *entry {
	if h.gen == 0 || int(h.slot) >= len(c.slots) {
		return nil
	}
	e := &c.slots[h.slot]
	if !e.live || e.gen != h.gen {
		return nil
	}
	return e
}

// Valid reports whether h still refers to a cached entry.
func (c *Cache) Valid(h Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(h) != nil
}

// Read copies the cached matrices of h into dst and marks them computed.
// It returns false if h is invalid or the entry has not been updated.
func (c *Cache) Read(h Handle, dst *pose.Matrices) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookup(h)
	if e == nil || !e.updated {
		return false
	}
	for row, b := range e.fromCache {
		if b < len(dst.World) {
			dst.Set(b, e.world[row])
		}
	}
	return true
}

// Update stores the computed matrices of world into h's entry as of now.
// Bones not computed in world keep their previous rows.
func (c *Cache) Update(h Handle, world *pose.Matrices, now float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookup(h)
	if e == nil {
		return false
	}
	for row, b := range e.fromCache {
		if m, ok := world.Get(b); ok {
			e.world[row] = m
		}
	}
	e.time = now
	e.updated = true
	c.lru.MoveToFront(e.element)
	return true
}

// row returns the cached row of bone in h's entry, or -1 when the entry
// does not store it.
func (c *Cache) row(h Handle, bone int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookup(h)
	if e == nil || bone < 0 || bone >= len(e.toCache) {
		return -1
	}
	return int(e.toCache[bone])
}

// Release unlocks an entry taken by Acquire.
func (c *Cache) Release(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.lookup(h); e != nil && e.locks > 0 {
		e.locks--
	}
}

// Invalidate marks h's matrices stale without freeing the entry.
func (c *Cache) Invalidate(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.lookup(h); e != nil {
		e.updated = false
	}
}

// Destroy frees h's entry regardless of locks. Every handle to it becomes
// invalid.
func (c *Cache) Destroy(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lookup(h) != nil {
		c.remove(h.slot)
	}
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   len(c.index),
		Bytes:     c.size,
		Budget:    c.budget,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
