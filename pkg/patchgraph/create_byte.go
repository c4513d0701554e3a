package patchgraph

// CreateByte records a contiguous [offset,offset+length) write to block on
// owner's behalf, returning the patch that now represents it -- which may be
// a brand-new patch or an existing one the write was merged into (spec.md
// §4.1). befores lists any additional explicit dependencies the caller
// requires beyond the ones this call derives from overlap.
func (g *Graph) CreateByte(owner Owner, block *Block, offset, length uint32, data []byte, befores []*Patch) (*Patch, error) {
	if owner == nil || block == nil {
		return nil, ErrInvalid
	}

	if uint32(len(data)) != length || offset+length > block.Length() {
		return nil, ErrInvalid
	}

	newRange := byteRange{start: offset, end: offset + length}

	// Step 1: try to fold the write straight into the block's existing NRB
	// patch, if any, while the block has no external afters -- the cheapest
	// possible path, no new patch at all.
	if g.cfg.NRB && block.nrb != nil && block.mergeEligible() {
		if tryByteMergeInto(block.nrb, offset, length, data, block.Data) {
			g.accountMerge()

			if err := g.linkExtraBefores(block.nrb, befores); err != nil {
				return nil, err
			}

			return block.nrb, nil
		}
	}

	overlapping := block.overlap.findByteOverlaps(newRange, g.cfg.Overlaps2)

	for _, c := range overlapping {
		if c.flags.has(FlagRollback) {
			return nil, ErrBusy
		}
	}

	// Step 2: simple single-overlap BYTE merge -- absorb into whichever
	// live, not-yet-inflight overlapping patch fully covers the new range.
	if g.cfg.ByteMergeOverlap {
		var mergeable []*Patch

		for _, c := range overlapping {
			if !c.flags.has(FlagInFlight) && !c.flags.has(FlagWritten) && rangeOf(c).covers(newRange) &&
				(c != block.nrb || block.mergeEligible()) {
				mergeable = append(mergeable, c)
			}
		}

		if m := selectPatchMerger(mergeable, block); m != nil {
			if tryByteMergeInto(m, offset, length, data, block.Data) {
				g.accountMerge()

				if err := g.linkExtraBefores(m, befores); err != nil {
					return nil, err
				}

				return m, nil
			}
		}
	}

	// Step 3: no merge possible -- allocate a new patch. It is eligible to
	// skip the rollback buffer only if it covers the whole block and the
	// block currently has no external afters and no existing NRB patch
	// (spec.md §4.1's NRB eligibility rule).
	fullBlock := offset == 0 && length == block.Length()
	useNRB := g.cfg.NRB && fullBlock && block.mergeEligible() && block.nrb == nil

	p := &Patch{
		id:        g.allocID(),
		typ:       TypeByte,
		owner:     owner,
		block:     block,
		offset:    offset,
		length:    length,
		flags:     FlagSafeAfter,
		blockSlot: -1,
	}
	defer func() { p.flags &^= FlagSafeAfter }()

	if !useNRB {
		p.data = make([]byte, length)
		copy(p.data, block.Data[offset:offset+length])
		p.oldSum = crc32Sum(p.data)
		p.newSum = crc32Sum(data)
		p.sumsValid = true
	}

	copy(block.Data[offset:offset+length], data)

	if useNRB {
		block.nrb = p
	}

	block.addToAllPatches(p)
	block.overlap.insertByte(p)
	g.accountPatch(TypeByte, +1)
	g.updateReadyMembership(p)

	// Step 4: depend on everything this new patch overlaps, so a rollback
	// of an older overlapping patch cannot be applied out of order.
	for _, c := range overlapping {
		if c.flags.has(FlagWritten) {
			continue
		}

		if err := g.AddDependNoCycles(p, c); err != nil {
			return nil, err
		}
	}

	// Step 4b: depend on every live BIT patch whose word this BYTE write
	// fully covers (spec.md §4.3, seed scenario 5): this new BYTE write
	// overwrites those words outright, so a rollback of one of those BIT
	// patches must never be applied after this write lands. The word's
	// collector (see create_bit.go's bitCollector) already lists exactly
	// those BIT patches as its befores, so it is used here only to look
	// them up, not as the dependency target itself.
	for _, word := range block.overlap.bitWordsIn(newRange) {
		if !byteCoversWord(newRange, word) {
			continue
		}

		collector := block.overlap.bitWords[word]
		if collector == nil {
			continue
		}

		for _, bit := range collector.Befores() {
			if bit.flags.has(FlagWritten) {
				continue
			}

			if err := g.AddDependNoCycles(p, bit); err != nil {
				return nil, err
			}
		}
	}

	if err := g.linkExtraBefores(p, befores); err != nil {
		return nil, err
	}

	return p, nil
}

// linkExtraBefores adds each caller-supplied explicit dependency on top of
// whatever overlap-derived edges a create or merge already installed.
func (g *Graph) linkExtraBefores(p *Patch, befores []*Patch) error {
	if !p.flags.has(FlagSafeAfter) {
		p.flags |= FlagSafeAfter
		defer func() { p.flags &^= FlagSafeAfter }()
	}

	for _, b := range befores {
		if b == nil {
			continue
		}

		if err := g.AddDependNoCycles(p, b); err != nil {
			return err
		}
	}

	return nil
}
