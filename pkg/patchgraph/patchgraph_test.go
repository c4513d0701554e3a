package patchgraph_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fscorego/patchgraph/pkg/patchgraph"
)

// stubOwner is a minimal patchgraph.Owner for tests: a single-level device.
type stubOwner struct {
	level int
	index int
}

func (o stubOwner) Level() int      { return o.level }
func (o stubOwner) GraphIndex() int { return o.index }

func newGraph(t *testing.T) *patchgraph.Graph {
	t.Helper()
	return patchgraph.New(patchgraph.DefaultConfig())
}

func Test_CreateByte_Writes_Through_To_Block_Data(t *testing.T) {
	t.Parallel()

	g := newGraph(t)
	owner := stubOwner{level: 0}
	block := g.NewBlock(1, 16, false)

	p, err := g.CreateByte(owner, block, 0, 4, []byte{1, 2, 3, 4}, nil)
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, []byte{1, 2, 3, 4}, block.Data[0:4])
	assert.True(t, p.Ready(), "a patch with no befores should be immediately ready")
	assert.Contains(t, block.ReadyPatches(), p)
}

func Test_CreateByte_Merges_Single_Overlap_Into_Existing_Patch(t *testing.T) {
	t.Parallel()

	g := newGraph(t)
	owner := stubOwner{level: 0}
	block := g.NewBlock(1, 16, false)

	first, err := g.CreateByte(owner, block, 0, 8, []byte{1, 1, 1, 1, 1, 1, 1, 1}, nil)
	require.NoError(t, err)

	second, err := g.CreateByte(owner, block, 2, 2, []byte{9, 9}, nil)
	require.NoError(t, err)

	assert.Same(t, first, second, "a write fully covered by an existing patch should merge into it")
	assert.Equal(t, []byte{1, 1, 9, 9, 1, 1, 1, 1}, block.Data[0:8])
	assert.Len(t, block.AllPatches(), 1, "a merged write must not allocate a second patch")
}

func Test_CreateByte_FullBlock_Becomes_NonRollbackable(t *testing.T) {
	t.Parallel()

	g := newGraph(t)
	owner := stubOwner{level: 0}
	block := g.NewBlock(1, 8, false)

	p, err := g.CreateByte(owner, block, 0, 8, make([]byte, 8), nil)
	require.NoError(t, err)

	assert.True(t, p.IsNRB(), "a full-block write on a merge-eligible block should skip the rollback buffer")
	assert.Same(t, p, block.NRB())
}

func Test_CreateByte_Depends_On_Prior_Overlapping_Patch_When_Not_Covering_It(t *testing.T) {
	t.Parallel()

	g := newGraph(t)
	owner := stubOwner{level: 0}
	block := g.NewBlock(1, 16, false)

	first, err := g.CreateByte(owner, block, 0, 4, []byte{1, 2, 3, 4}, nil)
	require.NoError(t, err)

	// second only partially overlaps first's range, so it cannot merge and
	// must instead depend on it.
	second, err := g.CreateByte(owner, block, 2, 4, []byte{5, 6, 7, 8}, nil)
	require.NoError(t, err)

	require.NotSame(t, first, second)
	assert.Contains(t, second.Befores(), first)
}

func Test_CreateByte_Cross_Block_Dependency_Gates_Readiness(t *testing.T) {
	t.Parallel()

	g := newGraph(t)
	owner := stubOwner{level: 0}
	upper := stubOwner{level: 1}
	blockA := g.NewBlock(1, 8, false)
	blockB := g.NewBlock(2, 8, false)

	before, err := g.CreateByte(owner, blockA, 0, 4, []byte{1, 2, 3, 4}, nil)
	require.NoError(t, err)

	// after sits one level above before, so the outstanding before counts
	// against its readiness; it gains that before while being created.
	after, err := g.CreateByte(upper, blockB, 0, 4, []byte{5, 6, 7, 8}, []*patchgraph.Patch{before})
	require.NoError(t, err)

	require.Contains(t, after.Befores(), before)

	assert.False(t, after.Ready(), "after must not be ready while its cross-block before is outstanding")
	assert.NotContains(t, blockB.ReadyPatches(), after)

	require.NoError(t, g.SetInflight(before))
	require.NoError(t, g.Satisfy(before))

	assert.True(t, after.Ready(), "after should become ready once its before is written")
	assert.Contains(t, blockB.ReadyPatches(), after)
}

func Test_CreateBit_Merges_Compatible_Masks_At_Same_Word(t *testing.T) {
	t.Parallel()

	g := newGraph(t)
	owner := stubOwner{level: 0}
	block := g.NewBlock(1, 8, false)

	first, err := g.CreateBit(owner, block, 0, 0x1, 0x1, nil)
	require.NoError(t, err)

	second, err := g.CreateBit(owner, block, 0, 0x2, 0x2, nil)
	require.NoError(t, err)

	assert.Same(t, first, second, "non-conflicting bit claims at the same word should merge")
	assert.Equal(t, uint32(0x3), first.XOR())
	assert.Equal(t, uint32(0x3), first.OR())
}

func Test_CreateBit_Refuses_Merge_On_Conflicting_Claim(t *testing.T) {
	t.Parallel()

	g := newGraph(t)
	owner := stubOwner{level: 0}
	block := g.NewBlock(1, 8, false)

	first, err := g.CreateBit(owner, block, 0, 0x1, 0x1, nil)
	require.NoError(t, err)

	second, err := g.CreateBit(owner, block, 0, 0x1, 0x1, nil)
	require.NoError(t, err)

	assert.NotSame(t, first, second, "claiming an already-claimed bit must not merge")
}

// Test_CreateByte_Depends_On_Covered_Bit_Patches covers spec.md §4.3's
// BYTE-over-BIT case: two conflicting BIT claims at the same word, then a
// BYTE write one level up that fully covers that word, must depend on both
// BIT patches so neither can be rolled back once the BYTE write has
// overwritten the word.
func Test_CreateByte_Depends_On_Covered_Bit_Patches(t *testing.T) {
	t.Parallel()

	g := newGraph(t)
	owner := stubOwner{level: 0}
	block := g.NewBlock(1, 16, false)

	bitA, err := g.CreateBit(owner, block, 0, 0x1, 0x1, nil)
	require.NoError(t, err)

	bitB, err := g.CreateBit(owner, block, 0, 0x1, 0x1, nil)
	require.NoError(t, err)
	require.NotSame(t, bitA, bitB, "conflicting bit claims at the same word must not merge")

	byteP, err := g.CreateByte(stubOwner{level: 1}, block, 0, 4, []byte{1, 2, 3, 4}, nil)
	require.NoError(t, err)

	assert.Contains(t, byteP.Befores(), bitA, "a BYTE write covering a BIT word must depend on every live BIT patch at that word")
	assert.Contains(t, byteP.Befores(), bitB, "a BYTE write covering a BIT word must depend on every live BIT patch at that word")

	assert.False(t, byteP.Ready(), "the BYTE write must not be ready while either BIT patch is outstanding")
}

func Test_AddDependChecked_Refuses_Direct_Cycle(t *testing.T) {
	t.Parallel()

	g := newGraph(t)
	owner := stubOwner{level: 0}

	// Outside creation only an EMPTY patch with no afters may gain befores,
	// so the first edge is installed between two fresh EMPTY patches.
	a, err := g.CreateEmptySet(owner, nil)
	require.NoError(t, err)

	b, err := g.CreateEmptySet(owner, nil)
	require.NoError(t, err)

	require.NoError(t, g.AddDependChecked(b, a))

	err = g.AddDependChecked(a, b)
	assert.ErrorIs(t, err, patchgraph.ErrInvalid, "adding the reverse edge would create a cycle")
}

func Test_Rollback_And_Apply_Restore_Buffer_Contents(t *testing.T) {
	t.Parallel()

	g := newGraph(t)
	owner := stubOwner{level: 0}
	block := g.NewBlock(1, 8, false)

	_, err := g.CreateByte(owner, block, 0, 4, []byte{1, 2, 3, 4}, nil)
	require.NoError(t, err)

	p, err := g.CreateByte(owner, block, 2, 2, []byte{9, 9}, nil)
	require.NoError(t, err)

	// p lies inside the first write's range, so it merges into that patch,
	// which keeps a rollback buffer because it does not cover the whole
	// block; that patch is the one rolled back and re-applied below.
	_ = p

	before := append([]byte(nil), block.Data...)

	live := block.AllPatches()
	require.NotEmpty(t, live)

	target := live[0]
	if !target.IsNRB() {
		require.NoError(t, g.Rollback(target))
		assert.NotEqual(t, before, block.Data, "rollback should change live bytes for a non-NRB patch")

		require.NoError(t, g.Apply(target))
		assert.Equal(t, before, block.Data, "apply should restore the pre-rollback bytes")
	}
}

func Test_CreateEmptySet_Deduplicates_Befores(t *testing.T) {
	t.Parallel()

	g := newGraph(t)
	owner := stubOwner{level: 0}
	block := g.NewBlock(1, 8, false)

	a, err := g.CreateByte(owner, block, 0, 1, []byte{1}, nil)
	require.NoError(t, err)

	join, err := g.CreateEmptySet(owner, []*patchgraph.Patch{a, a})
	require.NoError(t, err)

	assert.Len(t, join.Befores(), 1, "CreateEmptySet must not install duplicate edges")
}

func Test_Lifecycle_Destroy_Requires_Written_Patch(t *testing.T) {
	t.Parallel()

	g := newGraph(t)
	owner := stubOwner{level: 0}
	block := g.NewBlock(1, 8, false)

	p, err := g.CreateByte(owner, block, 0, 1, []byte{1}, nil)
	require.NoError(t, err)

	err = g.Destroy(&p)
	assert.ErrorIs(t, err, patchgraph.ErrInvalid, "destroying a not-yet-written patch must fail")

	require.NoError(t, g.SetInflight(p))
	require.NoError(t, g.Satisfy(p))
	require.NoError(t, g.Destroy(&p))
	assert.Nil(t, p, "Destroy must nil the caller's reference on success")
}

func Test_ReclaimWritten_Drains_Satisfied_Empties_Only(t *testing.T) {
	t.Parallel()

	g := newGraph(t)
	owner := stubOwner{level: 0}
	block := g.NewBlock(1, 8, false)

	p, err := g.CreateByte(owner, block, 0, 1, []byte{1}, nil)
	require.NoError(t, err)

	empty, err := g.CreateEmptySet(owner, []*patchgraph.Patch{p})
	require.NoError(t, err)

	require.NoError(t, g.SetInflight(p))
	require.NoError(t, g.Satisfy(p))
	require.NoError(t, g.Satisfy(empty))

	n := g.ReclaimWritten()
	assert.Equal(t, 1, n, "ReclaimWritten should destroy exactly the one written EMPTY patch")
}

func readyIDs(b *patchgraph.Block) []uint64 {
	ready := b.ReadyPatches()
	ids := make([]uint64, len(ready))

	for i, p := range ready {
		ids[i] = p.ID()
	}

	return ids
}

// Test_Block_ReadyPatches_Snapshot_Matches_Expected_After_Satisfy diffs the
// block's ready-patch-ID snapshot against an expected set with cmp.Diff
// instead of reflect.DeepEqual, since []uint64 ordering is an
// implementation detail of how the ready list is maintained, not a
// guarantee this package makes.
func Test_Block_ReadyPatches_Snapshot_Matches_Expected_After_Satisfy(t *testing.T) {
	t.Parallel()

	g := newGraph(t)
	owner := stubOwner{level: 0}
	block := g.NewBlock(1, 16, false)

	a, err := g.CreateByte(owner, block, 0, 4, []byte{1, 2, 3, 4}, nil)
	require.NoError(t, err)

	b, err := g.CreateByte(owner, block, 8, 4, []byte{5, 6, 7, 8}, nil)
	require.NoError(t, err)

	sortIDs := cmpopts.SortSlices(func(x, y uint64) bool { return x < y })

	if diff := cmp.Diff([]uint64{a.ID(), b.ID()}, readyIDs(block), sortIDs); diff != "" {
		t.Fatalf("ready patch snapshot mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, g.SetInflight(a))
	require.NoError(t, g.Satisfy(a))

	if diff := cmp.Diff([]uint64{b.ID()}, readyIDs(block), sortIDs); diff != "" {
		t.Fatalf("ready patch snapshot mismatch after satisfy (-want +got):\n%s", diff)
	}
}
