package patchgraph

// This file implements SPEC_FULL §11's supplemented creation helpers,
// grounded on original_source/fscore/patch.c's CreateEmptySet/Array/List
// wrappers around patch_create_empty_set: each builds a single free-floating
// EMPTY patch depending on a collection of befores, differing only in how
// the caller supplies that collection.

// newEmptyPatch allocates a bare, free-floating EMPTY patch with no befores
// yet, owned by owner (nil for a synthetic join node with no device).
func (g *Graph) newEmptyPatch(owner Owner) *Patch {
	p := &Patch{
		id:        g.allocID(),
		typ:       TypeEmpty,
		owner:     owner,
		blockSlot: -1,
	}

	g.accountPatch(TypeEmpty, +1)

	return p
}

// CreateEmptySet creates an EMPTY patch depending on every patch in befores,
// deduplicating regardless of Config.AllowMultigraph (a "set" admits no
// repeats). A virgin EMPTY with no befores at all is parked on the free list
// until a dependency is added; ClaimEmpty does not take it off the list.
func (g *Graph) CreateEmptySet(owner Owner, befores []*Patch) (*Patch, error) {
	p := g.newEmptyPatch(owner)

	seen := make(map[*Patch]bool, len(befores))

	for _, b := range befores {
		if b == nil || seen[b] {
			continue
		}

		seen[b] = true

		if err := g.AddDependNoCycles(p, b); err != nil {
			return nil, err
		}
	}

	if len(p.befores) == 0 {
		g.addToFreeList(p)
	}

	return p, nil
}

// CreateEmptyArray creates an EMPTY patch depending on every patch in
// befores in order, without deduplicating -- original_source distinguishes
// "array" (ordered, duplicates allowed) from "set" purely at the call site,
// since the underlying dependency semantics are identical once installed.
func (g *Graph) CreateEmptyArray(owner Owner, befores []*Patch) (*Patch, error) {
	p := g.newEmptyPatch(owner)

	for _, b := range befores {
		if b == nil {
			continue
		}

		if err := g.AddDependNoCycles(p, b); err != nil {
			return nil, err
		}
	}

	if len(p.befores) == 0 {
		g.addToFreeList(p)
	}

	return p, nil
}

// CreateEmptyList is CreateEmptyArray with a variadic call signature, for
// the common case of a small fixed number of befores known at the call
// site.
func (g *Graph) CreateEmptyList(owner Owner, befores ...*Patch) (*Patch, error) {
	return g.CreateEmptyArray(owner, befores)
}
