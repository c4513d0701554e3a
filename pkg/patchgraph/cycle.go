package patchgraph

// This file implements spec.md §4.4's cycle guard: a bounded DFS that asks
// "does before already (transitively) depend on after?" before an edge
// after -> before is installed. original_source/fscore/patch.c relies on a
// fast "quick_depends_on" width-2 check inline in the merge fast paths and a
// fuller recursive check gated behind a debug build flag; this package
// exposes both as explicit, always-available functions and lets
// Config.CycleCheck pick which one AddDependChecked uses.

// wouldCycle reports whether adding the edge after -> before would create a
// cycle, i.e. whether before already depends on after (directly or
// transitively). The full check (dependsOnDeep) walks a local growable
// stack instead of Go recursion; the quick check recurses at most two
// levels. Neither uses the Graph's frame stack or Config.RecursionLimit.
func (g *Graph) wouldCycle(after, before *Patch) bool {
	if after == before {
		return true
	}

	if g.cfg.CycleCheck {
		return g.dependsOnDeep(before, after)
	}

	return quickDependsOn(before, after, 2)
}

// quickDependsOn is the cheap width-bounded check original_source calls
// quick_depends_on: it only looks down to the given depth (2 direct hops)
// before giving up and assuming no cycle. It is sound for the common
// merge-time patterns (a patch's own existing befores) but is not a complete
// cycle check; callers wanting full coverage should set Config.CycleCheck.
func quickDependsOn(p, target *Patch, depth int) bool {
	if depth <= 0 {
		return false
	}

	for _, e := range p.befores {
		if e.before == target {
			return true
		}

		if quickDependsOn(e.before, target, depth-1) {
			return true
		}
	}

	return false
}

// dependsOnDeep runs a full DFS over p's transitive befores looking for
// target, using a local explicit stack (a slice that grows as needed)
// rather than native recursion so arbitrarily deep graphs cannot overflow
// the Go call stack.
// Visited patches are tmpized rather than tracked in a fresh map, so a
// cycle check on a hot path doesn't allocate (§11).
func (g *Graph) dependsOnDeep(p, target *Patch) bool {
	defer g.untmpizeAll()

	type work struct {
		p   *Patch
		idx int
	}

	stack := []work{{p: p}}
	g.tmpize(p)

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		if top.idx >= len(top.p.befores) {
			stack = stack[:len(stack)-1]
			continue
		}

		next := top.p.befores[top.idx].before
		top.idx++

		if next == target {
			return true
		}

		if !next.tmp {
			g.tmpize(next)
			stack = append(stack, work{p: next})
		}
	}

	return false
}
