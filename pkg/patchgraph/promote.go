package patchgraph

// TryPromoteToNRB converts an existing full-block, rollback-holding BYTE
// patch on block into a non-rollbackable one, if the block has since become
// merge-eligible (spec.md §4.1: a block's external-after count can drop to
// zero after the patch that would benefit from NRB was already created, not
// only at creation time). Config.MergeRBsIntoNRB gates whether callers
// should bother invoking this at all; the check is also enforced here so a
// caller holding a stale config value cannot force an unsafe conversion.
//
// Returns the patch converted, or nil if nothing was eligible.
func (g *Graph) TryPromoteToNRB(block *Block) *Patch {
	if !g.cfg.MergeRBsIntoNRB || !g.cfg.NRB {
		return nil
	}

	if block.nrb != nil || !block.mergeEligible() {
		return nil
	}

	for _, p := range block.allPatches {
		if p.typ != TypeByte || p.data == nil {
			continue
		}

		if p.flags.has(FlagInFlight) || p.flags.has(FlagWritten) || p.flags.has(FlagRollback) {
			continue
		}

		if p.offset != 0 || p.length != block.Length() {
			continue
		}

		p.data = nil
		p.sumsValid = false
		block.nrb = p

		if g.cfg.Account {
			g.stats.NConversions++
		}

		return p
	}

	return nil
}
