package patchgraph

import "hash/crc32"

// This file implements spec.md §4.3's Apply/Rollback pair. Both operations
// are the same swap toggled by FlagRollback: Rollback exchanges a patch's
// live bytes for its saved rollback buffer (and remembers the live bytes it
// just displaced, so the next Apply can restore them); Apply does the exact
// same swap back. Only BYTE patches with a rollback buffer are supported:
// an NRB patch, a BIT patch or an EMPTY patch gets ErrInvalid from both.

// Rollback reverses p's effect on its block's live buffer, saving the
// current (post-write) bytes so a later Apply can restore them. A no-op if
// p is already rolled back.
func (g *Graph) Rollback(p *Patch) error {
	if p.typ != TypeByte || p.data == nil {
		return ErrInvalid
	}

	if p.flags.has(FlagWritten) {
		return ErrWritten
	}

	if p.flags.has(FlagRollback) {
		return nil
	}

	if p.sumsValid {
		if crc32Sum(p.block.Data[p.offset:p.offset+p.length]) != p.newSum {
			return ErrInvalid
		}
	}

	g.swapData(p)
	p.flags |= FlagRollback

	return nil
}

// Apply re-applies a rolled-back patch's effect. A no-op if p is not
// currently rolled back.
func (g *Graph) Apply(p *Patch) error {
	if p.typ != TypeByte || p.data == nil {
		return ErrInvalid
	}

	if !p.flags.has(FlagRollback) {
		return nil
	}

	if p.sumsValid {
		if crc32Sum(p.block.Data[p.offset:p.offset+p.length]) != p.oldSum {
			return ErrInvalid
		}
	}

	g.swapData(p)
	p.flags &^= FlagRollback

	return nil
}

// swapData exchanges p's rollback buffer with the corresponding byte range
// of its block's live data. Config.SwapFullblockData, when the patch covers
// an entire block, swaps the two slice headers outright instead of copying
// -- original_source's full-block rollback optimization.
func (g *Graph) swapData(p *Patch) {
	b := p.block

	if g.cfg.SwapFullblockData && p.offset == 0 && p.length == b.Length() {
		b.Data, p.data = p.data, b.Data
		return
	}

	tmp := make([]byte, p.length)
	copy(tmp, b.Data[p.offset:p.offset+p.length])
	copy(b.Data[p.offset:p.offset+p.length], p.data)
	p.data = tmp
}

func crc32Sum(b []byte) uint32 { return crc32.ChecksumIEEE(b) }
