package patchgraph

// This file implements spec.md §4.6: ready/level/external-after tracking.
// It mirrors original_source/fscore/patch.c's propagate_depend_add,
// propagate_depend_remove and patch_propagate_level_change, translated from
// a manual linked-list walk with a static recursion-on-the-heap buffer into
// an explicit Graph-owned frame stack (spec.md §9's "recursion on the heap"
// design note).

// propagateDependAdd updates after's nbefores, ready-list membership, and
// (for an ownerless EMPTY after whose own apparent level just rose)
// cascades the level change through after's own afters.
func (g *Graph) propagateDependAdd(after, before *Patch) {
	beforeLevel := before.Level()
	if beforeLevel == levelNone {
		return
	}

	afterPrevLevel := after.Level()

	after.incBefore(beforeLevel)
	g.updateReadyMembership(after)

	if after.owner == nil && (beforeLevel > afterPrevLevel || afterPrevLevel == levelNone) {
		g.propagateLevelChangeThruEmpty(after, afterPrevLevel, beforeLevel)
	}

	if !after.flags.has(FlagInFlight) {
		g.propagateExternAfterChange(after, before, +1)
	}
}

// propagateDependRemove is the inverse of propagateDependAdd, called when an
// edge is removed.
func (g *Graph) propagateDependRemove(after, before *Patch) {
	beforeLevel := before.Level()
	if beforeLevel == levelNone {
		return
	}

	afterPrevLevel := after.Level()

	after.decBefore(beforeLevel)
	g.updateReadyMembership(after)

	if after.owner == nil && afterPrevLevel == beforeLevel && after.nbefores[beforeLevel] == 0 {
		g.propagateLevelChangeThruEmpty(after, afterPrevLevel, after.Level())
	}

	if !after.flags.has(FlagInFlight) {
		g.propagateExternAfterChange(after, before, -1)
	}
}

// propagateLevelChangeThruEmpty propagates a level change on an ownerless
// EMPTY patch to everything that depends on it, recursing through further
// ownerless EMPTYs using the Graph's explicit frame stack rather than Go
// call-stack recursion (bounded by Config.RecursionLimit).
func (g *Graph) propagateLevelChangeThruEmpty(emptyAfter *Patch, prevLevel, newLevel int) {
	if prevLevel == newLevel {
		return
	}

	cur := emptyAfter
	curPrev, curNew := prevLevel, newLevel

	for {
		for _, e := range cur.afters {
			a := e.after
			afterPrevLevel := a.Level()

			if curPrev != levelNone {
				a.decBefore(curPrev)
			}

			if curNew != levelNone {
				a.incBefore(curNew)
			}

			g.updateReadyMembership(a)

			if a.owner == nil {
				afterNewLevel := a.Level()
				if afterPrevLevel != afterNewLevel {
					g.pushFrame(frame{patch: cur, prev: curPrev, next: curNew})
					cur, curPrev, curNew = a, afterPrevLevel, afterNewLevel
				}
			}
		}

		f, ok := g.popFrame()
		if !ok {
			return
		}

		cur, curPrev, curNew = f.patch, f.prev, f.next
	}
}

// propagateExternAfterChange updates block B's externAfterCount where B is
// before's block: delta is +1 when a new after-edge to a patch on a
// different block is added, -1 when removed (spec.md §4.6).
func (g *Graph) propagateExternAfterChange(after, before *Patch, delta int) {
	if before.block == nil {
		return
	}

	if after.block != nil && after.block == before.block {
		return
	}

	before.block.externAfterCount += delta
	if before.block.externAfterCount < 0 {
		before.block.externAfterCount = 0
	}
}

// predecrementExternAfterOnInflight releases this block's contribution to
// other blocks' externAfterCount when one of its patches goes in-flight
// (spec.md §4.1 step 1, §4.6): an in-flight patch no longer counts against
// merge-eligibility on the blocks it depends on.
func (g *Graph) predecrementExternAfterOnInflight(p *Patch) {
	for _, e := range p.befores {
		before := e.before
		if before.block == nil {
			continue
		}

		if p.block != nil && p.block == before.block {
			continue
		}

		before.block.externAfterCount--
		if before.block.externAfterCount < 0 {
			before.block.externAfterCount = 0
		}
	}
}
