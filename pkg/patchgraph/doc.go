// Package patchgraph implements the Featherstitch-style patch dependency
// graph: the in-memory engine that tracks which byte/bit modifications to
// which cached disk blocks must reach disk before which others.
//
// A [Graph] owns the patch/edge pools, the tunable [Config], and the
// recursion-on-the-heap scratch buffer used by level propagation. Block
// buffers ([Block]) are created against a Graph and hold
// the patches that modify them; patches are created against a block (or
// free-floating, for EMPTY) via CreateByte/CreateBit/CreateEmpty*.
//
// The graph is single-threaded and cooperative: all mutation is expected to
// happen under one external lock held by the caller (see spec.md §5). The
// package performs no internal synchronization.
package patchgraph
