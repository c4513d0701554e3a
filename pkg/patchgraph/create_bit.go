package patchgraph

// CreateBit records a bitwise update to the 32-bit word at wordOffset in
// block: the resulting value is old ^ xor. or is the mask of bits this write
// claims (used to detect merge conflicts with other BIT writes at the same
// word); it does not change the word.
func (g *Graph) CreateBit(owner Owner, block *Block, wordOffset, xor, or uint32, befores []*Patch) (*Patch, error) {
	if owner == nil || block == nil {
		return nil, ErrInvalid
	}

	wordStart := wordOffset * 4
	if wordStart+4 > block.Length() {
		return nil, ErrInvalid
	}

	// NRB downgrade: once a block has gone fully non-rollbackable there is
	// nothing left to preserve for rollback, so a bit toggle is just
	// applied straight to the live buffer (spec.md §4.1's NRB rule
	// extended to BIT writes).
	if g.cfg.NRB && block.nrb != nil {
		applyBitToBuffer(block.Data, wordStart, xor)

		if err := g.linkExtraBefores(block.nrb, befores); err != nil {
			return nil, err
		}

		return block.nrb, nil
	}

	if g.cfg.BitMergeOverlap {
		if existing := block.overlap.bitWords[wordOffset]; existing != nil {
			for _, e := range existing.befores {
				if e.before.typ == TypeBit && tryBitMergeInto(e.before, wordOffset, xor, or) {
					applyBitToBuffer(block.Data, wordStart, xor)
					g.accountMerge()

					if err := g.linkExtraBefores(e.before, befores); err != nil {
						return nil, err
					}

					return e.before, nil
				}
			}
		}
	}

	p := &Patch{
		id:         g.allocID(),
		typ:        TypeBit,
		owner:      owner,
		block:      block,
		wordOffset: wordOffset,
		xor:        xor,
		or:         or,
		flags:      FlagSafeAfter,
		blockSlot:  -1,
	}
	defer func() { p.flags &^= FlagSafeAfter }()

	applyBitToBuffer(block.Data, wordStart, xor)

	block.addToAllPatches(p)
	g.accountPatch(TypeBit, +1)
	g.updateReadyMembership(p)

	collector := g.bitCollector(block, wordOffset)
	if err := g.AddDependNoCycles(collector, p); err != nil {
		return nil, err
	}

	wordRange := byteRange{start: wordStart, end: wordStart + 4}
	for _, c := range block.overlap.findByteOverlaps(wordRange, g.cfg.Overlaps2) {
		if c.flags.has(FlagWritten) {
			continue
		}

		if err := g.AddDependNoCycles(p, c); err != nil {
			return nil, err
		}
	}

	if err := g.linkExtraBefores(p, befores); err != nil {
		return nil, err
	}

	return p, nil
}

// bitCollector returns the ownerless EMPTY patch gathering every live BIT
// patch at wordOffset, creating it on first use (spec.md §3's "Overlap
// index" note on BIT patches being grouped per 32-bit-word offset).
func (g *Graph) bitCollector(block *Block, wordOffset uint32) *Patch {
	if c := block.overlap.bitWords[wordOffset]; c != nil {
		return c
	}

	c := &Patch{
		id:        g.allocID(),
		typ:       TypeEmpty,
		block:     block,
		flags:     FlagBitEmpty,
		blockSlot: -1,
	}

	block.overlap.bitWords[wordOffset] = c
	g.accountPatch(TypeEmpty, +1)

	return c
}

func applyBitToBuffer(data []byte, byteOffset, xor uint32) {
	word := uint32(data[byteOffset]) | uint32(data[byteOffset+1])<<8 |
		uint32(data[byteOffset+2])<<16 | uint32(data[byteOffset+3])<<24

	word ^= xor

	data[byteOffset] = byte(word)
	data[byteOffset+1] = byte(word >> 8)
	data[byteOffset+2] = byte(word >> 16)
	data[byteOffset+3] = byte(word >> 24)
}
