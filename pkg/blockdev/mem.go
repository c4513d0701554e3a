package blockdev

import "sync"

// MemDevice is an in-memory Device, primarily for tests and for the upper
// layers of a device stack that do not themselves need durability (a cache
// or journal sitting in front of a real FileDevice).
type MemDevice struct {
	mu sync.Mutex

	level     int
	index     int
	blockSize uint32
	blocks    [][]byte
	closed    bool
}

// NewMemDevice creates a zero-filled in-memory device of numBlocks blocks,
// each blockSize bytes, reporting the given logical level and graph index.
func NewMemDevice(level, index int, blockSize, numBlocks uint32) *MemDevice {
	blocks := make([][]byte, numBlocks)
	for i := range blocks {
		blocks[i] = make([]byte, blockSize)
	}

	return &MemDevice{
		level:     level,
		index:     index,
		blockSize: blockSize,
		blocks:    blocks,
	}
}

func (d *MemDevice) Level() int      { return d.level }
func (d *MemDevice) GraphIndex() int { return d.index }
func (d *MemDevice) BlockSize() uint32 { return d.blockSize }
func (d *MemDevice) NumBlocks() uint32 { return uint32(len(d.blocks)) }

func (d *MemDevice) ReadBlock(number uint32) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}

	if number >= uint32(len(d.blocks)) {
		return nil, ErrOutOfRange
	}

	out := make([]byte, d.blockSize)
	copy(out, d.blocks[number])

	return out, nil
}

func (d *MemDevice) WriteBlock(number uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	if number >= uint32(len(d.blocks)) {
		return ErrOutOfRange
	}

	if uint32(len(data)) != d.blockSize {
		return ErrSizeMismatch
	}

	copy(d.blocks[number], data)

	return nil
}

func (d *MemDevice) Sync() error { return nil }

func (d *MemDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true

	return nil
}
