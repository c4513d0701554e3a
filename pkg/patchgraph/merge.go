package patchgraph

// This file holds the merge engine shared by CreateByte and CreateBit:
// spec.md §4.1's NRB merge, simple single-overlap BYTE merge, and BIT merge
// into an existing same-word BIT patch, grounded on original_source's
// patch_create_byte/patch_create_bit merge fast paths.

// selectPatchMerger picks which of several merge-eligible candidates to
// absorb a new write into. original_source's select_patch_merger prefers
// whichever candidate was created most recently; since block.allPatches is
// kept most-recent-first (spec.md §3 invariant 4), that is simply the first
// candidate encountered while walking it (SPEC_FULL §12's Open Question
// resolution).
func selectPatchMerger(candidates []*Patch, block *Block) *Patch {
	switch len(candidates) {
	case 0:
		return nil
	case 1:
		return candidates[0]
	}

	set := make(map[*Patch]bool, len(candidates))
	for _, c := range candidates {
		set[c] = true
	}

	for _, p := range block.allPatches {
		if set[p] {
			return p
		}
	}

	return candidates[0]
}

// tryByteMergeInto absorbs a new [offset,offset+length) write directly into
// the live block buffer under the cover of an existing BYTE patch, without
// allocating a new patch, when existing's own range fully covers the new
// write. This is sound whether existing is NRB (no rollback buffer to
// preserve; any later rollback restores pre-existing-patch state, and the
// extra bytes are simply part of that same final state) or holds a rollback
// buffer (the new bytes lie strictly inside the range existing will restore
// on rollback, so existing's saved "old" bytes remain valid). This single
// rule implements both spec.md §4.1's NRB merge and its simple
// single-overlap BYTE merge.
func tryByteMergeInto(existing *Patch, offset, length uint32, newData []byte, blockData []byte) bool {
	if existing.flags.has(FlagInFlight) || existing.flags.has(FlagWritten) {
		return false
	}

	newRange := byteRange{start: offset, end: offset + length}
	if !rangeOf(existing).covers(newRange) {
		return false
	}

	copy(blockData[offset:offset+length], newData)

	if existing.sumsValid {
		existing.newSum = crc32Sum(blockData[existing.offset : existing.offset+existing.length])
	}

	return true
}

// tryBitMergeInto absorbs a new BIT write into an existing same-word BIT
// patch. xor masks compose associatively regardless of overlap (applying
// existing then new toggles exactly existing.xor^xor); or is each patch's
// claimed-bit mask (patch.go's "bits this patch claims") and a merge is only
// legal when the claims do not conflict.
func tryBitMergeInto(existing *Patch, wordOffset, xor, or uint32) bool {
	if existing.flags.has(FlagInFlight) || existing.flags.has(FlagWritten) {
		return false
	}

	if existing.wordOffset != wordOffset {
		return false
	}

	if existing.or&or != 0 {
		return false
	}

	existing.xor ^= xor
	existing.or |= or

	return true
}
