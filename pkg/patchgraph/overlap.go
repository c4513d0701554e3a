package patchgraph

// overlapBucketSize is the width, in bytes, of each fine overlap bucket
// (spec.md §3's "N fine buckets by offset"). A BYTE patch whose range fits
// entirely within one bucket is indexed there; a patch spanning buckets
// falls back to the coarse bucket-0 list.
const overlapBucketSize = 64

// overlapIndex locates byte/bit patches on a block by offset for fast
// overlap queries (spec.md §3, "Overlap index").
type overlapIndex struct {
	// buckets maps fine bucket index -> patches fitting entirely within it.
	buckets map[uint32][]*Patch
	// bucket0 holds BYTE patches that span more than one fine bucket.
	bucket0 []*Patch
	// bitWords maps 32-bit word offset -> the EMPTY collector patch whose
	// befores are every live BIT patch at that word (spec.md §3, "BIT
	// patches are instead grouped per 32-bit-word offset").
	bitWords map[uint32]*Patch
}

func (ix *overlapIndex) init() {
	ix.buckets = make(map[uint32][]*Patch)
	ix.bitWords = make(map[uint32]*Patch)
}

// byteRange returns [start,end) in byte-overlap terms.
type byteRange struct {
	start, end uint32 // end is exclusive
}

func (r byteRange) overlaps(o byteRange) bool {
	return r.start < o.end && o.start < r.end
}

// covers reports whether r fully contains o.
func (r byteRange) covers(o byteRange) bool {
	return r.start <= o.start && o.end <= r.end
}

func rangeOf(p *Patch) byteRange {
	return byteRange{start: p.offset, end: p.offset + p.length}
}

// fineBucket returns the bucket index a range would live in, and whether it
// fits entirely within a single bucket.
func fineBucket(r byteRange) (uint32, bool) {
	bucket := r.start / overlapBucketSize
	bucketEnd := (bucket + 1) * overlapBucketSize

	return bucket, r.end <= bucketEnd
}

func (ix *overlapIndex) insertByte(p *Patch) {
	bucket, fits := fineBucket(rangeOf(p))
	if fits {
		p.ovBucket = bucket
		p.ovInBucket0 = false
		ix.buckets[bucket] = append(ix.buckets[bucket], p)
	} else {
		p.ovInBucket0 = true
		ix.bucket0 = append(ix.bucket0, p)
	}
}

func (ix *overlapIndex) removeByte(p *Patch) {
	var list []*Patch
	if p.ovInBucket0 {
		list = ix.bucket0
	} else {
		list = ix.buckets[p.ovBucket]
	}

	for i, q := range list {
		if q == p {
			last := len(list) - 1
			list[i] = list[last]
			list = list[:last]

			break
		}
	}

	if p.ovInBucket0 {
		ix.bucket0 = list
	} else {
		ix.buckets[p.ovBucket] = list
	}
}

// findByteOverlaps enumerates every live BYTE patch on the block overlapping
// r, following original_source's patch_find_overlaps bucket short-circuit
// (spec.md SPEC_FULL §11): a range fitting entirely within one fine bucket
// scans bucket 0 (whose patches span several buckets and may reach into it)
// and that one bucket, never the other fine buckets.
//
// batched selects spec.md §9's Overlaps2 tunable for the multi-bucket case
// (a range that spans more than one fine bucket): when true, the buckets r
// spans are computed directly from its offsets and only those are scanned;
// when false, every fine bucket the block has ever allocated is scanned,
// one at a time, matching original_source's non-batched default.
func (ix *overlapIndex) findByteOverlaps(r byteRange, batched bool) []*Patch {
	var out []*Patch

	for _, p := range ix.bucket0 {
		if rangeOf(p).overlaps(r) {
			out = append(out, p)
		}
	}

	bucket, fits := fineBucket(r)
	if fits {
		for _, p := range ix.buckets[bucket] {
			if rangeOf(p).overlaps(r) {
				out = append(out, p)
			}
		}

		return out
	}

	if batched && r.start < r.end {
		first := r.start / overlapBucketSize
		last := (r.end - 1) / overlapBucketSize

		for b := first; b <= last; b++ {
			for _, p := range ix.buckets[b] {
				if rangeOf(p).overlaps(r) {
					out = append(out, p)
				}
			}
		}

		return out
	}

	for _, list := range ix.buckets {
		for _, p := range list {
			if rangeOf(p).overlaps(r) {
				out = append(out, p)
			}
		}
	}

	return out
}

// bitWordsIn returns the word offsets with a live BIT collector that fall
// within the given byte range.
func (ix *overlapIndex) bitWordsIn(r byteRange) []uint32 {
	var out []uint32

	for word := range ix.bitWords {
		wordStart := word * 4
		wordEnd := wordStart + 4

		if r.overlaps(byteRange{start: wordStart, end: wordEnd}) {
			out = append(out, word)
		}
	}

	return out
}

// byteCoversWord reports whether r fully covers the 32-bit word at the
// given word offset.
func byteCoversWord(r byteRange, word uint32) bool {
	wordStart := word * 4
	return r.covers(byteRange{start: wordStart, end: wordStart + 4})
}
