package patchgraph

// AddDependNoCycles installs one dependency edge after -> before (after
// depends on before), without running the cycle guard. Use
// AddDependChecked to additionally run the debug DFS cycle check.
//
// Implements spec.md §4.2's add_depend.
func (g *Graph) AddDependNoCycles(after, before *Patch) error {
	if after == nil || before == nil {
		return ErrInvalid
	}

	if !after.flags.has(FlagSafeAfter) {
		if after.typ != TypeEmpty || len(after.afters) != 0 {
			return ErrInvalid
		}
	}

	if after.flags.has(FlagInFlight) {
		return ErrInFlight
	}

	if after.flags.has(FlagWritten) {
		if before.flags.has(FlagWritten) {
			return nil // no-op
		}

		return ErrWritten
	}

	if before.flags.has(FlagWritten) {
		return nil // no need to depend on a written patch
	}

	if after.block != nil && before.block != nil && after.block == before.block && before.flags.has(FlagInFlight) {
		return nil // implicit same-block ordering already enforces this
	}

	if !g.cfg.AllowMultigraph && hasEdge(after, before) {
		return nil
	}

	if before.flags.has(FlagSetEmpty) {
		for _, e := range before.befores {
			if err := g.AddDependNoCycles(after, e.before); err != nil {
				return err
			}
		}

		return nil
	}

	g.linkEdge(after, before)

	return nil
}

// AddDependChecked installs the edge only if the bounded cycle guard
// (spec.md §4.4) does not find that before already (transitively) depends
// on after. It is used when Config.CycleCheck is enabled or by callers that
// want strict-mode refusal instead of relying on creation-order safety.
func (g *Graph) AddDependChecked(after, before *Patch) error {
	if g.wouldCycle(after, before) {
		g.cfg.tracef("patchgraph: refusing edge %d->%d: would create a cycle", after.id, before.id)
		return ErrInvalid
	}

	return g.AddDependNoCycles(after, before)
}

func hasEdge(after, before *Patch) bool {
	for _, e := range after.befores {
		if e.before == before {
			return true
		}
	}

	return false
}

func (g *Graph) linkEdge(after, before *Patch) {
	e := &edge{before: before, after: after}

	e.idxInAfterBefores = len(after.befores)
	after.befores = append(after.befores, e)

	e.idxInBeforeAfters = len(before.afters)
	before.afters = append(before.afters, e)

	g.accountEdge(+1)

	g.propagateDependAdd(after, before)

	// A virgin EMPTY patch with no prior befores was sitting on the free
	// list (spec.md §3 invariant 10); it now has a before, so remove it.
	if after.onFreeList {
		g.removeFromFreeList(after)
	}
}

// RemoveDepend locates and removes the edge after -> before, if present.
// A no-op on an absent edge (spec.md §8 idempotence).
func (g *Graph) RemoveDepend(after, before *Patch) {
	for _, e := range after.befores {
		if e.before == before {
			g.DepRemove(e)
			return
		}
	}
}

// DepRemove removes a specific edge.
func (g *Graph) DepRemove(e *edge) {
	after, before := e.after, e.before

	removeEdgeFromAfterBefores(after, e)
	removeEdgeFromBeforeAfters(before, e)

	g.accountEdge(-1)

	g.propagateDependRemove(after, before)
}

func removeEdgeFromAfterBefores(after *Patch, e *edge) {
	idx := e.idxInAfterBefores
	list := after.befores

	if idx < 0 || idx >= len(list) || list[idx] != e {
		return
	}

	last := len(list) - 1
	list[idx] = list[last]
	list[idx].idxInAfterBefores = idx
	after.befores = list[:last]
}

func removeEdgeFromBeforeAfters(before *Patch, e *edge) {
	idx := e.idxInBeforeAfters
	list := before.afters

	if idx < 0 || idx >= len(list) || list[idx] != e {
		return
	}

	last := len(list) - 1
	list[idx] = list[last]
	list[idx].idxInBeforeAfters = idx
	before.afters = list[:last]
}
