package block

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
)

// Size is the fixed size, in bytes, of every block on the device.
const Size = 4096

// headerSize is the size of the per-block header written ahead of the
// caller's payload within each Size-byte block.
const headerSize = 12

// PayloadSize is the number of usable bytes in a block once the header is
// accounted for.
const PayloadSize = Size - headerSize

// ID identifies a block by its offset (in blocks, not bytes) from the start
// of the device. ID 0 is reserved for the master block.
type ID uint64

// Device-level errors.
var (
	ErrClosed       = errors.New("block: device is closed")
	ErrOutOfRange   = errors.New("block: id out of range")
	ErrChecksum     = errors.New("block: checksum mismatch")
	ErrShortRead    = errors.New("block: short read")
	ErrReadOnly     = errors.New("block: device is read-only")
	ErrAlreadyExist = errors.New("block: file already exists")
)

// Options configures a Device.
type Options struct {
	// CreateIfMissing creates the backing file if it does not already
	// exist.
	CreateIfMissing bool
	// ReadOnly opens the backing file for reads only.
	ReadOnly bool
	// InitialBlocks is the number of blocks to preallocate for a newly
	// created file, including block 0.
	InitialBlocks uint64
}

// DefaultOptions returns the Options a plain Open call should use.
func DefaultOptions() Options {
	return Options{
		CreateIfMissing: true,
		ReadOnly:        false,
		InitialBlocks:   16,
	}
}

// Device is a fixed-size block device backed by a single os.File.
type Device struct {
	mu       sync.RWMutex
	file     *os.File
	path     string
	total    uint64
	readOnly bool
	closed   bool
}

// Open opens or creates the block device at path.
func Open(path string, opts Options) (*Device, error) {
	if opts.InitialBlocks == 0 {
		opts.InitialBlocks = 1
	}

	_, statErr := os.Stat(path)
	exists := statErr == nil
	if !exists && !opts.CreateIfMissing {
		return nil, fmt.Errorf("block: open %s: %w", path, os.ErrNotExist)
	}

	flags := os.O_RDWR
	if opts.ReadOnly {
		flags = os.O_RDONLY
	} else if !exists {
		flags |= os.O_CREATE
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("block: open %s: %w", path, err)
	}

	d := &Device{
		file:     f,
		path:     path,
		readOnly: opts.ReadOnly,
	}

	if exists {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("block: stat %s: %w", path, err)
		}
		if info.Size()%Size != 0 {
			f.Close()
			return nil, fmt.Errorf("block: %s: %w", path, ErrShortRead)
		}
		d.total = uint64(info.Size()) / Size
	} else {
		if err := d.growTo(opts.InitialBlocks); err != nil {
			f.Close()
			os.Remove(path)
			return nil, err
		}
	}

	return d, nil
}

// Path returns the backing file path.
func (d *Device) Path() string { return d.path }

// Count returns the number of blocks currently allocated on the device.
func (d *Device) Count() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.total
}

// Grow extends the device so it holds at least n blocks. It is a no-op if
// the device is already at least that large.
func (d *Device) Grow(n uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.readOnly {
		return ErrReadOnly
	}
	return d.growTo(n)
}

// growTo must be called with mu held.
func (d *Device) growTo(n uint64) error {
	if n <= d.total {
		return nil
	}
	if err := d.file.Truncate(int64(n) * Size); err != nil {
		return fmt.Errorf("block: grow %s: %w", d.path, err)
	}
	d.total = n
	return nil
}

// Append allocates a fresh block at the end of the device and returns its
// ID. The caller is responsible for writing its contents.
func (d *Device) Append() (ID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}
	if d.readOnly {
		return 0, ErrReadOnly
	}

	id := ID(d.total)
	if err := d.growTo(d.total + 1); err != nil {
		return 0, err
	}
	return id, nil
}

// Read validates the checksum of block id and returns its payload in a
// freshly allocated slice whose length is the length last passed to
// Write (zero for a block that was never written).
func (d *Device) Read(id ID) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, ErrClosed
	}
	if uint64(id) >= d.total {
		return nil, fmt.Errorf("block: read %d: %w", id, ErrOutOfRange)
	}

	buf := make([]byte, Size)
	n, err := d.file.ReadAt(buf, int64(id)*Size)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("block: read %d: %w", id, err)
	}
	if n < Size {
		return nil, fmt.Errorf("block: read %d: %w", id, ErrShortRead)
	}

	stored := binary.LittleEndian.Uint32(buf[0:4])
	length := binary.LittleEndian.Uint64(buf[4:12])
	if length > PayloadSize {
		return nil, fmt.Errorf("block: read %d: %w", id, ErrChecksum)
	}
	payload := buf[headerSize : headerSize+length]
	if crc32.ChecksumIEEE(payload) != stored {
		return nil, fmt.Errorf("block: read %d: %w", id, ErrChecksum)
	}

	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// Write writes data as the payload of block id. data must be at most
// PayloadSize bytes.
func (d *Device) Write(id ID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.readOnly {
		return ErrReadOnly
	}
	if uint64(id) >= d.total {
		return fmt.Errorf("block: write %d: %w", id, ErrOutOfRange)
	}
	if len(data) > PayloadSize {
		return fmt.Errorf("block: write %d: payload exceeds %d bytes", id, PayloadSize)
	}

	buf := make([]byte, Size)
	binary.LittleEndian.PutUint32(buf[0:4], crc32.ChecksumIEEE(data))
	binary.LittleEndian.PutUint64(buf[4:12], uint64(len(data)))
	copy(buf[headerSize:], data)

	if _, err := d.file.WriteAt(buf, int64(id)*Size); err != nil {
		return fmt.Errorf("block: write %d: %w", id, err)
	}
	return nil
}

// Sync flushes all writes to stable storage.
func (d *Device) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if err := d.file.Sync(); err != nil {
		return fmt.Errorf("block: sync %s: %w", d.path, err)
	}
	return nil
}

// Close closes the device. No further operations may be performed on it.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	return d.file.Close()
}

// Remove deletes the file at path. It does not close any Device open on
// that file.
func Remove(path string) error {
	return os.Remove(path)
}
