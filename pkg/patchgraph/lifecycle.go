package patchgraph

// This file implements spec.md §4.8's one-way lifecycle: pending -> in-flight
// -> written -> destroyed. Each transition is idempotent in the direction
// that matters (re-submitting an already in-flight patch, re-satisfying an
// already written one) and irreversible otherwise.

// SetInflight marks p as submitted for writeback. Only legal once p is ready
// (spec.md §3 invariant 3); the transition biases p's logical level by one
// and that change cascades to everything depending on p, exactly as an
// ordinary level change would (spec.md §4.6).
func (g *Graph) SetInflight(p *Patch) error {
	if p.flags.has(FlagWritten) {
		return ErrWritten
	}

	if p.flags.has(FlagInFlight) {
		return nil
	}

	if !p.Ready() {
		return ErrInvalid
	}

	oldLevel := p.Level()
	p.flags |= FlagInFlight
	newLevel := p.Level()

	g.predecrementExternAfterOnInflight(p)

	if oldLevel != newLevel {
		g.propagateLevelChangeThruEmpty(p, oldLevel, newLevel)
	}

	g.updateReadyMembership(p)

	return nil
}

// Satisfy marks p written. BYTE/BIT patches must have been submitted first
// (SetInflight); EMPTY patches, which represent no actual disk write, may be
// satisfied directly once ready.
func (g *Graph) Satisfy(p *Patch) error {
	if p.flags.has(FlagWritten) {
		return nil
	}

	if p.typ != TypeEmpty && !p.flags.has(FlagInFlight) {
		return ErrInvalid
	}

	if !p.Ready() {
		return ErrInvalid
	}

	g.satisfy(p)

	return nil
}

// satisfy performs the actual written-state transition shared by Satisfy and
// Destroy (which implicitly satisfies live patches before tearing them
// down).
func (g *Graph) satisfy(p *Patch) {
	if p.flags.has(FlagWritten) {
		return
	}

	p.flags |= FlagWritten

	// Tear down outgoing edges: as a before, p no longer constrains
	// anything now that it is written (spec.md §4.6's nbefores bookkeeping
	// assumes only not-yet-written befores are counted).
	for len(p.afters) > 0 {
		g.DepRemove(p.afters[len(p.afters)-1])
	}

	if p.block != nil {
		p.block.removeFromAllPatches(p)
		p.block.unmarkReady(p)

		if p.block.nrb == p {
			p.block.nrb = nil
		}
	}

	g.accountPatch(p.typ, -1)
	g.fireWeakRefs(p)

	if p.typ == TypeEmpty {
		g.addToFreeList(p)
	}
}

// Destroy tears down a written patch permanently and nils the caller's
// reference, mirroring original_source's patch_t** out-parameter idiom so a
// stale pointer cannot be used after free. Destroying an already-freeing
// patch (the FlagFreeing reentrancy guard) is a no-op, matching the
// recursive teardown original_source performs when a patch's last before is
// itself being destroyed.
func (g *Graph) Destroy(pp **Patch) error {
	if pp == nil || *pp == nil {
		return ErrInvalid
	}

	p := *pp

	if p.flags.has(FlagFreeing) {
		*pp = nil
		return nil
	}

	if !p.flags.has(FlagWritten) {
		return ErrInvalid
	}

	p.flags |= FlagFreeing

	for len(p.befores) > 0 {
		g.DepRemove(p.befores[len(p.befores)-1])
	}

	for len(p.afters) > 0 {
		g.DepRemove(p.afters[len(p.afters)-1])
	}

	if p.block != nil {
		p.block.removeFromAllPatches(p)
		p.block.unmarkReady(p)

		if p.block.nrb == p {
			p.block.nrb = nil
		}
	}

	g.fireWeakRefs(p)
	g.removeFromFreeList(p)

	*pp = nil

	return nil
}

// ReclaimWritten destroys every written patch currently parked on the free
// list (populated by satisfy for EMPTY patches) and returns how many were
// reclaimed. Virgin, zero-before EMPTY patches also live on the free list
// but are left untouched since they are not yet written.
func (g *Graph) ReclaimWritten() int {
	n := 0
	cur := g.freeHead

	for cur != nil {
		next := cur.freeNext

		if cur.flags.has(FlagWritten) {
			p := cur
			g.Destroy(&p)
			n++
		}

		cur = next
	}

	return n
}

// SetEmptyDeclare marks an EMPTY patch as a "set empty" collector: adding a
// dependency after -> setEmpty is sugar for after depending on every one of
// setEmpty's current befores directly (spec.md §4.2, §11's
// CreateEmptySet/Array/List).
func (g *Graph) SetEmptyDeclare(p *Patch) error {
	if p.typ != TypeEmpty {
		return ErrInvalid
	}

	p.flags |= FlagSetEmpty

	return nil
}

// ClaimEmpty marks an EMPTY patch as explicitly owned, exempting it from
// AutoreleaseEmpty. Nothing in this package clears the mark again.
func (g *Graph) ClaimEmpty(p *Patch) *Patch {
	p.flags |= FlagNoPatchgroup
	return p
}

// AutoreleaseEmpty returns an EMPTY patch to the free list once it has no
// befores left, unless it is written or has been claimed with ClaimEmpty.
func (g *Graph) AutoreleaseEmpty(p *Patch) {
	if p.flags.has(FlagNoPatchgroup) {
		return
	}

	if len(p.befores) == 0 && !p.flags.has(FlagWritten) {
		g.addToFreeList(p)
	}
}

func (g *Graph) addToFreeList(p *Patch) {
	if p.onFreeList {
		return
	}

	p.onFreeList = true
	p.freeNext = g.freeHead
	g.freeHead = p
}

func (g *Graph) removeFromFreeList(p *Patch) {
	if !p.onFreeList {
		return
	}

	p.onFreeList = false

	if g.freeHead == p {
		g.freeHead = p.freeNext
		p.freeNext = nil

		return
	}

	cur := g.freeHead
	for cur != nil && cur.freeNext != p {
		cur = cur.freeNext
	}

	if cur != nil {
		cur.freeNext = p.freeNext
	}

	p.freeNext = nil
}
