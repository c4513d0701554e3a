// Package journal provides a write-ahead-logged wrapper around a
// blockdev.Device: a batch of block writes is first appended to an on-disk
// log and fsynced as a single committed unit, then applied to the
// underlying device, then the log is truncated. A crash between any of
// those steps is recovered from on the next Open: an uncommitted (partial)
// log is discarded, a committed log is replayed before being truncated.
//
// The on-disk format -- a JSON-lines body followed by a 32-byte footer that
// starts with an 8-byte magic and carries the body length and a CRC32C
// checksum (each doubled with
// its bitwise complement so a torn write is detectable without a second
// checksum pass) -- and the empty/uncommitted/committed recovery states it
// implies are grounded on the write-ahead log this package's sibling
// document store uses for the same purpose.
package journal

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/fscorego/patchgraph/pkg/blockdev"
)

const (
	magic      = "PGWAL001"
	footerSize = 32
)

var crc32c = crc32.MakeTable(crc32.Castagnoli)

// ErrCorrupt reports a committed log whose checksum does not match its body.
var ErrCorrupt = errors.New("journal: corrupt log")

// ErrReplay reports a failure applying recovered records to the underlying
// device.
var ErrReplay = errors.New("journal: replay failed")

type state uint8

const (
	stateEmpty state = iota
	stateUncommitted
	stateCommitted
)

// Record is one block write within a transaction.
type Record struct {
	Block uint32 `json:"block"`
	Data  []byte `json:"data"`
}

type walLine struct {
	Txn    string `json:"txn"`
	Record Record `json:"record"`
}

// Journal wraps dev with a write-ahead log at logPath. Construct with Open.
type Journal struct {
	mu  sync.Mutex
	dev blockdev.Device
	log *os.File
}

// Open opens (creating if necessary) the log file at logPath and recovers
// any committed-but-not-yet-applied transaction before returning.
func Open(dev blockdev.Device, logPath string) (*Journal, error) {
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: opening %s: %w", logPath, err)
	}

	j := &Journal{dev: dev, log: f}

	if err := j.recover(); err != nil {
		_ = f.Close()
		return nil, err
	}

	return j, nil
}

// Commit appends records to the log as a single transaction, fsyncs it,
// applies every record to the underlying device, syncs the device, and
// finally truncates the log. Returns the transaction's generated ID.
func (j *Journal) Commit(records []Record) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(records) == 0 {
		return "", nil
	}

	txn := uuid.NewString()

	body, err := encodeLines(txn, records)
	if err != nil {
		return "", fmt.Errorf("journal: encoding transaction: %w", err)
	}

	if err := writeCommitted(j.log, body); err != nil {
		return "", fmt.Errorf("journal: writing log: %w", err)
	}

	if err := j.apply(records); err != nil {
		return "", fmt.Errorf("%w: %w", ErrReplay, err)
	}

	if err := truncateLog(j.log); err != nil {
		return "", fmt.Errorf("journal: truncating log: %w", err)
	}

	return txn, nil
}

// Close closes the underlying log file. It does not close the device.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.log.Close()
}

func (j *Journal) apply(records []Record) error {
	for _, r := range records {
		if err := j.dev.WriteBlock(r.Block, r.Data); err != nil {
			return err
		}
	}

	return j.dev.Sync()
}

func (j *Journal) recover() error {
	st, body, err := readState(j.log)
	if err != nil {
		return err
	}

	switch st {
	case stateEmpty:
		return nil
	case stateUncommitted:
		return truncateLog(j.log)
	case stateCommitted:
		lines, err := decodeLines(body)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrReplay, err)
		}

		records := make([]Record, len(lines))
		for i, l := range lines {
			records[i] = l.Record
		}

		if err := j.apply(records); err != nil {
			return fmt.Errorf("%w: %w", ErrReplay, err)
		}

		return truncateLog(j.log)
	default:
		return fmt.Errorf("journal: unknown recovery state %d", st)
	}
}

func encodeLines(txn string, records []Record) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)

	for _, r := range records {
		if err := enc.Encode(walLine{Txn: txn, Record: r}); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodeLines(body []byte) ([]walLine, error) {
	reader := bufio.NewReader(bytes.NewReader(body))

	var lines []walLine

	for {
		line, readErr := reader.ReadBytes('\n')
		if len(line) == 0 && readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}

			return nil, readErr
		}

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			var wl walLine
			if err := json.Unmarshal(trimmed, &wl); err != nil {
				return nil, err
			}

			lines = append(lines, wl)
		}

		if readErr != nil {
			break
		}
	}

	return lines, nil
}

// writeCommitted truncates the log, writes body, and appends a footer
// binding body's length and CRC32C checksum, each paired with its bitwise
// complement so a footer torn mid-write is self-evidently invalid without
// needing to re-read the body.
func writeCommitted(f *os.File, body []byte) error {
	if err := truncateLog(f); err != nil {
		return err
	}

	if _, err := f.Write(body); err != nil {
		return err
	}

	footer := make([]byte, footerSize)
	copy(footer[:8], magic)
	binary.LittleEndian.PutUint64(footer[8:16], uint64(len(body)))
	binary.LittleEndian.PutUint64(footer[16:24], ^uint64(len(body)))

	sum := crc32.Checksum(body, crc32c)
	binary.LittleEndian.PutUint32(footer[24:28], sum)
	binary.LittleEndian.PutUint32(footer[28:32], ^sum)

	if _, err := f.Write(footer); err != nil {
		return err
	}

	return f.Sync()
}

func readState(f *os.File) (state, []byte, error) {
	info, err := f.Stat()
	if err != nil {
		return stateEmpty, nil, fmt.Errorf("journal: stat log: %w", err)
	}

	size := info.Size()
	if size == 0 {
		return stateEmpty, nil, nil
	}

	if size < footerSize {
		return stateUncommitted, nil, nil
	}

	footer := make([]byte, footerSize)

	if _, err := f.Seek(size-footerSize, io.SeekStart); err != nil {
		return stateEmpty, nil, fmt.Errorf("journal: seek footer: %w", err)
	}

	if _, err := io.ReadFull(f, footer); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return stateUncommitted, nil, nil
		}

		return stateEmpty, nil, fmt.Errorf("journal: read footer: %w", err)
	}

	if string(footer[:8]) != magic {
		return stateUncommitted, nil, nil
	}

	bodyLen := binary.LittleEndian.Uint64(footer[8:16])
	if ^bodyLen != binary.LittleEndian.Uint64(footer[16:24]) {
		return stateUncommitted, nil, nil
	}

	crc := binary.LittleEndian.Uint32(footer[24:28])
	if ^crc != binary.LittleEndian.Uint32(footer[28:32]) {
		return stateUncommitted, nil, nil
	}

	if bodyLen > math.MaxInt64 || int64(bodyLen) > size-footerSize {
		return stateUncommitted, nil, nil
	}

	body := make([]byte, bodyLen)

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return stateEmpty, nil, fmt.Errorf("journal: seek body: %w", err)
	}

	if _, err := io.ReadFull(f, body); err != nil {
		return stateEmpty, nil, fmt.Errorf("journal: read body: %w", err)
	}

	if sum := crc32.Checksum(body, crc32c); sum != crc {
		return stateCommitted, nil, fmt.Errorf("journal: checksum mismatch (want %08x got %08x): %w", crc, sum, ErrCorrupt)
	}

	return stateCommitted, body, nil
}

func truncateLog(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("journal: truncate: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("journal: seek: %w", err)
	}

	return f.Sync()
}
