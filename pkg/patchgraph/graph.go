package patchgraph

// Graph is the explicit, process-wide context the original engine kept as
// global state (free-list head, pool singletons, account counters). Per
// spec.md §9's design note, this implementation centralizes that state into
// a value the caller constructs and passes explicitly, rather than package
// globals, so that multiple independent graphs (e.g. one per test) never
// share state.
type Graph struct {
	cfg Config

	nextID uint64

	// freeHead is the head of the free list of satisfied EMPTY patches
	// awaiting ReclaimWritten (spec.md §4.8, invariant 10).
	freeHead *Patch

	stats Stats

	// stack is the reusable heap-backed frame buffer for level propagation
	// (spec.md §5, §9 "recursion on the heap").
	stack []frame

	// tmpScratch holds every patch currently tmpized by tmpize, so
	// untmpizeAll can clear them all without a fresh map allocation per
	// traversal (§11, original_source/fscore/patch.c:1141-1192).
	tmpScratch []*Patch
}

// tmpize marks p as visited for the current multi-pass traversal and
// records it for untmpizeAll to clear in bulk once the traversal finishes.
func (g *Graph) tmpize(p *Patch) {
	p.tmp = true
	g.tmpScratch = append(g.tmpScratch, p)
}

// untmpizeAll clears every mark tmpize has set since the last call,
// reusing the backing array across traversals.
func (g *Graph) untmpizeAll() {
	for _, p := range g.tmpScratch {
		p.tmp = false
	}

	g.tmpScratch = g.tmpScratch[:0]
}

// frame is one entry of the explicit recursion stack used by
// propagateLevelChangeThruEmpty.
type frame struct {
	patch *Patch
	prev  int
	next  int
}

// New creates a Graph with the given configuration.
func New(cfg Config) *Graph {
	if cfg.RecursionLimit <= 0 {
		cfg.RecursionLimit = DefaultConfig().RecursionLimit
	}

	return &Graph{
		cfg:   cfg,
		stack: make([]frame, 0, cfg.RecursionLimit),
	}
}

// Config returns the graph's tunables.
func (g *Graph) Config() Config { return g.cfg }

// Stats returns a snapshot of the optional accounting counters. Zero-valued
// unless Config.Account is on.
func (g *Graph) Stats() Stats { return g.stats }

func (g *Graph) allocID() uint64 {
	g.nextID++
	return g.nextID
}

func (g *Graph) pushFrame(f frame) {
	if len(g.stack) >= cap(g.stack) {
		// Matches original_source's kpanic on recursion-on-the-heap overflow:
		// an unrecoverable programming error (spec.md §7, "internal
		// invariant failure").
		panic("patchgraph: recursion stack exceeded RecursionLimit")
	}

	g.stack = append(g.stack, f)
}

func (g *Graph) popFrame() (frame, bool) {
	if len(g.stack) == 0 {
		return frame{}, false
	}

	f := g.stack[len(g.stack)-1]
	g.stack = g.stack[:len(g.stack)-1]

	return f, true
}

func (g *Graph) accountPatch(t Type, delta int) {
	if !g.cfg.Account {
		return
	}

	g.stats.LivePatches[t] += delta
	if delta > 0 {
		g.stats.NPatchesTotal++
	}
}

func (g *Graph) accountMerge() {
	if !g.cfg.Account {
		return
	}

	g.stats.NMerges++
}

func (g *Graph) accountEdge(delta int) {
	if !g.cfg.Account {
		return
	}

	g.stats.LiveEdges += delta
	if delta > 0 {
		g.stats.NEdgesTotal++
	}
}
