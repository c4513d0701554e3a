package patchgraph

// Block is a cached disk block: the bdesc of spec.md §3. It is created when
// a layer first reads or synthesizes a disk block and destroyed only when
// its reference count and patch list are both empty.
type Block struct {
	g *Graph

	Number uint32
	Data   []byte

	refCount  int
	synthetic bool

	// allPatches holds every live (non-written, non-destroyed) patch on
	// this block, most-recent-first (spec.md §3 invariant 4).
	allPatches []*Patch

	// ready holds the subset of allPatches that currently has no
	// unsatisfied befores below its own level (spec.md §8's ready-list
	// invariant), maintained incrementally so it can be queried in O(1).
	ready []*Patch

	overlap overlapIndex

	// nrb is a weak reference to the block's non-rollbackable patch, if
	// any (at most one per block, spec.md §3 invariant 5).
	nrb *Patch

	// externAfterCount is the number of non-in-flight patches on other
	// blocks whose befores transitively lead to patches on this block
	// (spec.md §4.6).
	externAfterCount int
}

// NewBlock creates a block buffer of the given length, zero-filled.
// synthetic marks it as produced by SyntheticRead rather than a real disk
// read (spec.md §6).
func (g *Graph) NewBlock(number uint32, length uint32, synthetic bool) *Block {
	b := &Block{
		g:      g,
		Number: number,
		Data:   make([]byte, length),
		synthetic: synthetic,
	}
	b.overlap.init()

	return b
}

// NewBlockFromBytes creates a block buffer with existing content (e.g. after
// a real disk read).
func (g *Graph) NewBlockFromBytes(number uint32, data []byte) *Block {
	b := &Block{g: g, Number: number, Data: data}
	b.overlap.init()

	return b
}

// Length returns the block's size in bytes.
func (b *Block) Length() uint32 { return uint32(len(b.Data)) }

// Synthetic reports whether the block was produced by SyntheticRead and has
// not yet been given real content by a write.
func (b *Block) Synthetic() bool { return b.synthetic }

// Retain increments the block's reference count.
func (b *Block) Retain() { b.refCount++ }

// Release decrements the block's reference count. Callers are expected to
// destroy the block once refCount and AllPatches() are both zero; this
// package does not pool or finalize blocks itself.
func (b *Block) Release() {
	if b.refCount > 0 {
		b.refCount--
	}
}

// RefCount returns the block's current reference count.
func (b *Block) RefCount() int { return b.refCount }

// AllPatches returns the live patches on this block, most-recent-first.
func (b *Block) AllPatches() []*Patch {
	out := make([]*Patch, len(b.allPatches))
	copy(out, b.allPatches)

	return out
}

// ReadyPatches returns the patches on this block that are currently ready
// for writeback (spec.md §8).
func (b *Block) ReadyPatches() []*Patch {
	out := make([]*Patch, len(b.ready))
	copy(out, b.ready)

	return out
}

// NRB returns the block's non-rollbackable patch, if any.
func (b *Block) NRB() *Patch { return b.nrb }

// ExternAfterCount returns the number of non-in-flight patches on other
// blocks whose befores transitively lead to patches on this block.
func (b *Block) ExternAfterCount() int { return b.externAfterCount }

// mergeEligible reports whether the block currently has no external afters,
// the precondition for both NRB allocation and NRB-merge (spec.md §4.1).
func (b *Block) mergeEligible() bool { return b.externAfterCount == 0 }

func (b *Block) addToAllPatches(p *Patch) {
	b.allPatches = append(b.allPatches, nil)
	copy(b.allPatches[1:], b.allPatches)
	b.allPatches[0] = p

	for i, q := range b.allPatches {
		q.blockSlot = i
	}
}

func (b *Block) removeFromAllPatches(p *Patch) {
	idx := p.blockSlot
	if idx < 0 || idx >= len(b.allPatches) || b.allPatches[idx] != p {
		return
	}

	b.allPatches = append(b.allPatches[:idx], b.allPatches[idx+1:]...)
	for i := idx; i < len(b.allPatches); i++ {
		b.allPatches[i].blockSlot = i
	}
	p.blockSlot = -1
}

func (b *Block) markReady(p *Patch) {
	for _, r := range b.ready {
		if r == p {
			return
		}
	}

	b.ready = append(b.ready, p)
}

func (b *Block) unmarkReady(p *Patch) {
	for i, r := range b.ready {
		if r == p {
			last := len(b.ready) - 1
			b.ready[i] = b.ready[last]
			b.ready = b.ready[:last]

			return
		}
	}
}

// updateReadyMembership recomputes whether p belongs on its block's ready
// list, matching original_source's patch_update_ready_patches.
func (g *Graph) updateReadyMembership(p *Patch) {
	if p.block == nil {
		return
	}

	if p.flags.has(FlagWritten) || p.blockSlot < 0 {
		p.block.unmarkReady(p)
		return
	}

	if p.Ready() {
		p.block.markReady(p)
	} else {
		p.block.unmarkReady(p)
	}
}
