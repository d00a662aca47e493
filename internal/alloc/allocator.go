package alloc

import (
	"encoding/binary"

	"github.com/mbeckem/blabber/internal/block"
)

// entrySize is the on-disk size of one free block.ID entry.
const entrySize = 8

// entriesPerBlock is how many free-list entries a single chained free-list
// block can hold, after the 8-byte "next" pointer and 2-byte entry count
// at its head.
const entriesPerBlock = (block.PayloadSize - 10) / entrySize

// Store is the minimal block access the allocator needs. It is satisfied by
// a transaction handle so that allocation and freeing participate in the
// enclosing transaction's undo/commit discipline exactly like any other
// block write.
type Store interface {
	ReadBlock(id block.ID) ([]byte, error)
	WriteBlock(id block.ID, data []byte) error
	AppendBlock() (block.ID, error)
}

// Anchor is the persistent state of an Allocator, as stored in the master
// block.
type Anchor struct {
	Head block.ID
}

// Allocator hands out and reclaims blocks. Reclaimed blocks are kept on an
// in-memory free list and persisted, as a chain of free-list blocks, only
// when Flush is called (internal/driver does so at the end of every
// transaction, just before it writes the master block).
type Allocator struct {
	free []block.ID
}

// New returns an empty Allocator with no free blocks on hand.
func New() *Allocator {
	return &Allocator{}
}

// Load reconstructs an Allocator's in-memory free list by walking the
// chain of free-list blocks starting at anchor.Head.
func Load(store Store, anchor Anchor) (*Allocator, error) {
	a := &Allocator{}

	id := anchor.Head
	for id != 0 {
		data, err := store.ReadBlock(id)
		if err != nil {
			return nil, err
		}
		next := block.ID(binary.LittleEndian.Uint64(data[0:8]))
		count := binary.LittleEndian.Uint16(data[8:10])
		offset := 10
		for i := uint16(0); i < count; i++ {
			a.free = append(a.free, block.ID(binary.LittleEndian.Uint64(data[offset:offset+entrySize])))
			offset += entrySize
		}
		id = next
	}

	return a, nil
}

// Allocate returns a block ready for the caller to write, preferring a
// reused block from the free list and falling back to extending the
// device.
func (a *Allocator) Allocate(store Store) (block.ID, error) {
	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		return id, nil
	}
	return store.AppendBlock()
}

// AllocateExtent allocates n blocks and returns their IDs in allocation
// order, calling Allocate once per block.
func (a *Allocator) AllocateExtent(store Store, n int) ([]block.ID, error) {
	ids := make([]block.ID, 0, n)
	for i := 0; i < n; i++ {
		id, err := a.Allocate(store)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Free returns id to the free list for future reuse.
func (a *Allocator) Free(id block.ID) {
	a.free = append(a.free, id)
}

// FreeCount returns the number of blocks currently on the in-memory free
// list.
func (a *Allocator) FreeCount() int {
	return len(a.free)
}

// Flush persists the current free list as a chain of free-list blocks and
// returns the Anchor to store in the master block. If the free list is
// empty, the returned Anchor has a zero Head and no blocks are written.
func (a *Allocator) Flush(store Store) (Anchor, error) {
	if len(a.free) == 0 {
		return Anchor{}, nil
	}

	// Snapshot the entries to persist before handing out fresh blocks to
	// hold the chain itself, so the two never alias the same slice.
	entries := make([]block.ID, len(a.free))
	copy(entries, a.free)
	a.free = nil

	var prev block.ID
	remaining := entries

	for len(remaining) > 0 {
		n := len(remaining)
		if n > entriesPerBlock {
			n = entriesPerBlock
		}
		chunk := remaining[:n]
		remaining = remaining[n:]

		// Free-list chain blocks are freshly appended rather than drawn
		// from the free list being serialized, so persisting it never
		// mutates the very entries still being written out.
		id, err := store.AppendBlock()
		if err != nil {
			return Anchor{}, err
		}

		data := make([]byte, block.PayloadSize)
		binary.LittleEndian.PutUint64(data[0:8], uint64(prev))
		binary.LittleEndian.PutUint16(data[8:10], uint16(n))
		offset := 10
		for _, fid := range chunk {
			binary.LittleEndian.PutUint64(data[offset:offset+entrySize], uint64(fid))
			offset += entrySize
		}

		if err := store.WriteBlock(id, data); err != nil {
			return Anchor{}, err
		}
		prev = id
	}

	return Anchor{Head: prev}, nil
}
