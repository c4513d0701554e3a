package blockdev

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/natefinch/atomic"

	internalfs "github.com/fscorego/patchgraph/internal/fs"
)

// FileDevice is a Device backed by a single mmap'd file: numBlocks *
// blockSize bytes, block N living at file offset N*blockSize. A sibling
// "<path>.lock" file, locked with internal/fs's flock-based Locker, is held
// exclusively for the FileDevice's lifetime, so two FileDevices can never be
// opened against the same path at once -- mirroring the teacher's
// single-writer contract for its own mmap'd slot cache (pkg/slotcache).
type FileDevice struct {
	level int
	index int

	blockSize uint32
	numBlocks uint32

	file *os.File
	lock *internalfs.Lock
	data []byte

	closed bool
}

// OpenFile opens (creating if absent) a file-backed Device at path sized for
// numBlocks blocks of blockSize bytes each.
func OpenFile(path string, level, index int, blockSize, numBlocks uint32) (*FileDevice, error) {
	locker := internalfs.NewLocker(internalfs.NewReal())

	lock, err := locker.Lock(path + ".lock")
	if err != nil {
		return nil, fmt.Errorf("blockdev: locking %s: %w", path, err)
	}

	size := int64(blockSize) * int64(numBlocks)

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		if err := atomic.WriteFile(path, &zeroReader{remaining: size}); err != nil {
			_ = lock.Close()
			return nil, fmt.Errorf("blockdev: initializing %s: %w", path, err)
		}
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("blockdev: opening %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		_ = lock.Close()
		return nil, fmt.Errorf("blockdev: stat %s: %w", path, err)
	}

	if info.Size() != size {
		if err := file.Truncate(size); err != nil {
			_ = file.Close()
			_ = lock.Close()
			return nil, fmt.Errorf("blockdev: resizing %s: %w", path, err)
		}
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		_ = lock.Close()
		return nil, fmt.Errorf("blockdev: mmap %s: %w", path, err)
	}

	return &FileDevice{
		level:     level,
		index:     index,
		blockSize: blockSize,
		numBlocks: numBlocks,
		file:      file,
		lock:      lock,
		data:      data,
	}, nil
}

func (d *FileDevice) Level() int        { return d.level }
func (d *FileDevice) GraphIndex() int   { return d.index }
func (d *FileDevice) BlockSize() uint32 { return d.blockSize }
func (d *FileDevice) NumBlocks() uint32 { return d.numBlocks }

func (d *FileDevice) ReadBlock(number uint32) ([]byte, error) {
	if d.closed {
		return nil, ErrClosed
	}

	if number >= d.numBlocks {
		return nil, ErrOutOfRange
	}

	start := int64(number) * int64(d.blockSize)
	out := make([]byte, d.blockSize)
	copy(out, d.data[start:start+int64(d.blockSize)])

	return out, nil
}

func (d *FileDevice) WriteBlock(number uint32, data []byte) error {
	if d.closed {
		return ErrClosed
	}

	if number >= d.numBlocks {
		return ErrOutOfRange
	}

	if uint32(len(data)) != d.blockSize {
		return ErrSizeMismatch
	}

	start := int64(number) * int64(d.blockSize)
	copy(d.data[start:start+int64(d.blockSize)], data)

	return nil
}

func (d *FileDevice) Sync() error {
	if d.closed {
		return ErrClosed
	}

	if err := unix.Msync(d.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("blockdev: msync: %w", err)
	}

	return d.file.Sync()
}

func (d *FileDevice) Close() error {
	if d.closed {
		return nil
	}

	d.closed = true

	munmapErr := unix.Munmap(d.data)
	closeErr := d.file.Close()
	lockErr := d.lock.Close()

	if munmapErr != nil {
		return fmt.Errorf("blockdev: munmap: %w", munmapErr)
	}

	if closeErr != nil {
		return fmt.Errorf("blockdev: close: %w", closeErr)
	}

	return lockErr
}

// zeroReader streams remaining zero bytes, used to size-initialize a fresh
// backing file via atomic.WriteFile without materializing the whole buffer
// in memory at once.
type zeroReader struct{ remaining int64 }

func (z *zeroReader) Read(p []byte) (int, error) {
	if z.remaining <= 0 {
		return 0, io.EOF
	}

	n := int64(len(p))
	if n > z.remaining {
		n = z.remaining
	}

	for i := int64(0); i < n; i++ {
		p[i] = 0
	}

	z.remaining -= n

	return int(n), nil
}
