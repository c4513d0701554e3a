package patchgraph

// weakRef is one registered weak reference to a patch: a callback to run
// (with the given data) when the patch is satisfied or destroyed, after
// which the reference auto-clears (spec.md §3, "Weak reference").
type weakRef struct {
	patch *Patch
	cb    func(data any)
	data  any
	idx   int // this ref's slot in patch.weak, for O(1) release
}

// WeakRef is the caller-held handle to a registered weak reference.
type WeakRef struct {
	ref *weakRef
}

// WeakRetain registers a weak reference to p: cb(data) runs exactly once,
// the moment p is satisfied (written) or destroyed, whichever comes first.
// The returned handle may be released early with WeakRelease to cancel the
// callback before it fires.
func (g *Graph) WeakRetain(p *Patch, cb func(data any), data any) *WeakRef {
	w := &weakRef{patch: p, cb: cb, data: data, idx: len(p.weak)}
	p.weak = append(p.weak, w)

	return &WeakRef{ref: w}
}

// WeakRelease detaches a weak reference. If runCallback is true, the
// registered callback still runs (with the patch's current state); the
// callback is otherwise simply dropped.
func (g *Graph) WeakRelease(r *WeakRef, runCallback bool) {
	if r == nil || r.ref == nil || r.ref.patch == nil {
		return
	}

	w := r.ref
	p := w.patch

	idx := w.idx
	if idx >= 0 && idx < len(p.weak) && p.weak[idx] == w {
		last := len(p.weak) - 1
		p.weak[idx] = p.weak[last]
		p.weak[idx].idx = idx
		p.weak = p.weak[:last]
	}

	w.patch = nil

	if runCallback && w.cb != nil {
		w.cb(w.data)
	}
}

// fireWeakRefs runs and clears every weak reference on p. Called once, from
// satisfy and from destroy, whichever happens first (spec.md §4.8).
func (g *Graph) fireWeakRefs(p *Patch) {
	refs := p.weak
	p.weak = nil

	for _, w := range refs {
		w.patch = nil
		if w.cb != nil {
			w.cb(w.data)
		}
	}
}
