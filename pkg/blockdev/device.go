// Package blockdev provides the block storage layer patchgraph writes
// through: a fixed-size array of numbered, fixed-length blocks that a
// patchgraph.Graph issues reads against and, eventually, writebacks to.
//
// Device implementations are deliberately simple -- patchgraph owns all
// ordering and dependency logic; a Device only needs to durably persist
// whatever bytes it is told to, when it is told to.
package blockdev

import "errors"

var (
	// ErrClosed is returned by any operation on a Device after Close.
	ErrClosed = errors.New("blockdev: device closed")

	// ErrOutOfRange is returned for a block number at or beyond NumBlocks.
	ErrOutOfRange = errors.New("blockdev: block number out of range")

	// ErrSizeMismatch is returned when a caller's buffer length does not
	// match the device's fixed block size.
	ErrSizeMismatch = errors.New("blockdev: buffer size does not match block size")
)

// Device is the minimal contract patchgraph.Owner implementations sit on
// top of: fixed-size block storage with synchronous read/write and an
// explicit logical stacking level (patchgraph.Owner.Level), used to compute
// where in a multi-layer stack ("I'm below the journal, above the disk")
// this device's patches live.
type Device interface {
	// Level returns this device's logical stacking depth (patchgraph.Owner).
	Level() int

	// GraphIndex returns a stable small integer identifying this device
	// instance, used only for diagnostics (patchgraph.Owner).
	GraphIndex() int

	// BlockSize returns the fixed size, in bytes, of every block.
	BlockSize() uint32

	// NumBlocks returns the number of addressable blocks.
	NumBlocks() uint32

	// ReadBlock returns a copy of the current on-device contents of the
	// given block.
	ReadBlock(number uint32) ([]byte, error)

	// WriteBlock stores data as the new contents of the given block.
	// len(data) must equal BlockSize(). The write is durable only once
	// Sync has returned.
	WriteBlock(number uint32, data []byte) error

	// Sync flushes any buffered writes to stable storage.
	Sync() error

	// Close releases any underlying resources (file handles, locks, maps).
	Close() error
}
