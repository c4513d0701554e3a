package patchgraph

// edge is a dependency arc between two patches: after depends on before.
// Both endpoints hold the same *edge in their afters/befores slices; idxIn*
// cache this patch's slot in the *other* endpoint's slice so removal is O(1)
// (a swap-pop) instead of a linear scan. This replaces the original engine's
// doubly-linked list nodes with address-of-pointer removal — the Go-idiomatic
// equivalent of the same O(1) removal guarantee (spec.md §3, Dependency edge).
type edge struct {
	before *Patch
	after  *Patch

	idxInAfterBefores int // this edge's index within after.befores
	idxInBeforeAfters int // this edge's index within before.afters
}

// Patch is a single block modification or synthetic graph node (spec.md §3).
type Patch struct {
	id    uint64
	typ   Type
	flags Flag
	owner Owner
	block *Block // nil for free-floating EMPTY

	// BYTE fields.
	offset uint32
	length uint32
	data   []byte // rollback buffer; nil <=> non-rollbackable (NRB)
	oldSum uint32
	newSum uint32
	sumsValid bool

	// BIT fields.
	wordOffset uint32
	xor        uint32
	or         uint32 // bits this patch claims

	befores []*edge
	afters  []*edge

	// nbefores[L] is the count of not-yet-written befores at level L
	// (spec.md §3 invariant 3, §4.6).
	nbefores map[int]int

	weak []*weakRef

	tmp bool // scratch "tmpize" marker for multi-pass traversals (§11)

	onFreeList bool
	freeNext   *Patch

	blockSlot int // index into block.allPatches, -1 if not resident

	// overlap index membership (byte patches only): ovInBucket0 means the
	// patch spans more than one fine bucket and lives in bucket 0.
	ovBucket    uint32
	ovInBucket0 bool
}

// ID returns a stable identifier for the patch, useful for diagnostics and
// deterministic test output.
func (p *Patch) ID() uint64 { return p.id }

// Type returns the patch's variant.
func (p *Patch) Type() Type { return p.typ }

// Block returns the block this patch modifies, or nil for a free-floating
// EMPTY.
func (p *Patch) Block() *Block { return p.block }

// Owner returns the patch's owning device, or nil for a free-floating EMPTY.
func (p *Patch) Owner() Owner { return p.owner }

// Has reports whether the given flag is set.
func (p *Patch) Has(f Flag) bool { return p.flags.has(f) }

// IsWritten reports whether the patch has reached the WRITTEN state.
func (p *Patch) IsWritten() bool { return p.flags.has(FlagWritten) }

// IsInFlight reports whether the patch's write has been issued but not
// acknowledged.
func (p *Patch) IsInFlight() bool { return p.flags.has(FlagInFlight) }

// IsNRB reports whether a BYTE patch is non-rollbackable.
func (p *Patch) IsNRB() bool { return p.typ == TypeByte && p.data == nil }

// Offset and Length return the byte range of a BYTE patch.
func (p *Patch) Offset() uint32 { return p.offset }
func (p *Patch) Length() uint32 { return p.length }

// WordOffset, XOR and OR expose a BIT patch's word position and masks.
func (p *Patch) WordOffset() uint32 { return p.wordOffset }
func (p *Patch) XOR() uint32        { return p.xor }
func (p *Patch) OR() uint32         { return p.or }

// Level returns the patch's logical stacking level: its owner's level,
// biased +1 when in-flight, or (for a free-floating EMPTY with no owner)
// the highest level among its currently outstanding befores, or levelNone
// if it has none (original_source's patch_level()).
func (p *Patch) Level() int {
	if p.owner != nil {
		lvl := p.owner.Level()
		if p.flags.has(FlagInFlight) {
			lvl++
		}

		return lvl
	}

	best := levelNone

	for lvl, n := range p.nbefores {
		if n > 0 && lvl > best {
			best = lvl
		}
	}

	return best
}

// Ready reports whether the patch has no unsatisfied befores at any level
// strictly below its own (spec.md §3 invariant 3).
func (p *Patch) Ready() bool {
	if p.flags.has(FlagWritten) {
		return false
	}

	own := p.Level()

	for lvl, n := range p.nbefores {
		if n > 0 && (own == levelNone || lvl < own) {
			return false
		}
	}

	return true
}

// Befores returns the patches this patch directly depends on.
func (p *Patch) Befores() []*Patch {
	out := make([]*Patch, 0, len(p.befores))
	for _, e := range p.befores {
		out = append(out, e.before)
	}

	return out
}

// Afters returns the patches that directly depend on this patch.
func (p *Patch) Afters() []*Patch {
	out := make([]*Patch, 0, len(p.afters))
	for _, e := range p.afters {
		out = append(out, e.after)
	}

	return out
}

func (p *Patch) incBefore(level int) {
	if level == levelNone {
		return
	}

	if p.nbefores == nil {
		p.nbefores = make(map[int]int)
	}

	p.nbefores[level]++
}

func (p *Patch) decBefore(level int) {
	if level == levelNone {
		return
	}

	if p.nbefores[level] <= 1 {
		delete(p.nbefores, level)
	} else {
		p.nbefores[level]--
	}
}
