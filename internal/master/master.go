package master

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mbeckem/blabber/internal/alloc"
	"github.com/mbeckem/blabber/internal/block"
)

// ID is the fixed block.ID of the master block.
const ID block.ID = 0

// magic identifies a blabber store; Verify rejects any other file opened
// as one.
var magic = [10]byte{'B', 'L', 'A', 'B', 'B', 'E', 'R', '_', 'D', 'B'}

// version is the on-disk format version this package reads and writes.
const version uint32 = 1

const headerSize = 10 + 4 + 8 + 8 + 8 + 8

// Compile-time assertion that the encoded header fits in block 0's
// payload; a negative array length fails the build if headerSize ever
// grows past it.
var _ [block.PayloadSize - headerSize]byte

// Errors returned by Verify.
var (
	ErrNotInitialized = errors.New("master: block 0 has not been initialized")
	ErrBadMagic       = errors.New("master: bad magic bytes")
	ErrBadVersion     = errors.New("master: unsupported format version")
)

// Store is the minimal block access master needs; satisfied by a
// transaction handle.
type Store interface {
	ReadBlock(id block.ID) ([]byte, error)
	WriteBlock(id block.ID, data []byte) error
}

// StoreAnchor is the domain store's own persistent state: the next id to
// assign to a post, the root of the posts B-tree, and a heap blob counter.
// HeapBlobCount is saved and loaded with the rest of the anchor, but no
// store operation updates it, so it stays at zero.
type StoreAnchor struct {
	NextPostID    uint64
	PostsRoot     block.ID
	HeapBlobCount uint64
}

// Header is the full decoded contents of block 0.
type Header struct {
	Allocator alloc.Anchor
	Store     StoreAnchor
}

func (h *Header) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:10], magic[:])
	binary.LittleEndian.PutUint32(buf[10:14], version)
	binary.LittleEndian.PutUint64(buf[14:22], uint64(h.Allocator.Head))
	binary.LittleEndian.PutUint64(buf[22:30], h.Store.NextPostID)
	binary.LittleEndian.PutUint64(buf[30:38], uint64(h.Store.PostsRoot))
	binary.LittleEndian.PutUint64(buf[38:46], h.Store.HeapBlobCount)
	return buf
}

func decode(buf []byte) (*Header, error) {
	if len(buf) < headerSize {
		return nil, ErrNotInitialized
	}
	allZero := true
	for _, b := range buf[0:10] {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		// An untouched block 0 reads back as all zero bytes; treat that
		// distinctly from a genuinely corrupt non-magic header.
		return nil, ErrNotInitialized
	}
	var gotMagic [10]byte
	copy(gotMagic[:], buf[0:10])
	if gotMagic != magic {
		return nil, ErrBadMagic
	}
	gotVersion := binary.LittleEndian.Uint32(buf[10:14])
	if gotVersion != version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadVersion, gotVersion, version)
	}

	h := &Header{
		Allocator: alloc.Anchor{Head: block.ID(binary.LittleEndian.Uint64(buf[14:22]))},
		Store: StoreAnchor{
			NextPostID:    binary.LittleEndian.Uint64(buf[22:30]),
			PostsRoot:     block.ID(binary.LittleEndian.Uint64(buf[30:38])),
			HeapBlobCount: binary.LittleEndian.Uint64(buf[38:46]),
		},
	}
	return h, nil
}

// Init writes a fresh Header to block 0 with next_post_id = 1 and no
// posts root yet (the caller allocates one and calls Save once it has).
func Init(store Store) (*Header, error) {
	h := &Header{
		Store: StoreAnchor{NextPostID: 1},
	}
	if err := h.Save(store); err != nil {
		return nil, err
	}
	return h, nil
}

// Verify reads and validates block 0, returning ErrNotInitialized if the
// store has never been initialized, or ErrBadMagic/ErrBadVersion if it
// does not look like a blabber store at this format version.
func Verify(store Store) (*Header, error) {
	buf, err := store.ReadBlock(ID)
	if err != nil {
		return nil, fmt.Errorf("master: read block 0: %w", err)
	}
	return decode(buf)
}

// Save persists h to block 0.
func (h *Header) Save(store Store) error {
	if err := store.WriteBlock(ID, h.encode()); err != nil {
		return fmt.Errorf("master: write block 0: %w", err)
	}
	return nil
}
