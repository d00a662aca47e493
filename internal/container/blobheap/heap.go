package blobheap

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mbeckem/blabber/internal/alloc"
	"github.com/mbeckem/blabber/internal/block"
)

// Store is the block access the heap needs; satisfied by a transaction
// handle.
type Store = alloc.Store

// chunkHeaderSize is the Next(8)+Len(uint16) prefix of every chunk block.
const chunkHeaderSize = 10

// chunkPayload is how many blob bytes fit in one chunk block.
const chunkPayload = block.PayloadSize - chunkHeaderSize

// ErrRefTooLarge is returned by Allocate for a blob whose length does not
// fit a uint32, matching the StringTooLarge boundary in the domain layer.
var ErrRefTooLarge = errors.New("blobheap: blob exceeds maximum length")

var errChunkCorrupted = errors.New("blobheap: chunk buffer corrupted")

// HeapRef names a blob by the block.ID of its first chunk and its total
// length. Start totally (and stably) orders every blob ever allocated,
// since a chain head is never reused while its blob is live.
type HeapRef struct {
	Start  block.ID
	Length uint32
}

// IsZero reports whether ref names no blob.
func (ref HeapRef) IsZero() bool {
	return ref.Start == 0 && ref.Length == 0
}

func encodeChunk(next block.ID, data []byte) []byte {
	buf := make([]byte, chunkHeaderSize, chunkHeaderSize+len(data))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(next))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(len(data)))
	return append(buf, data...)
}

func decodeChunk(buf []byte) (next block.ID, data []byte, err error) {
	if len(buf) < chunkHeaderSize {
		return 0, nil, errChunkCorrupted
	}
	next = block.ID(binary.LittleEndian.Uint64(buf[0:8]))
	dataLen := int(binary.LittleEndian.Uint16(buf[8:10]))
	if chunkHeaderSize+dataLen > len(buf) {
		return 0, nil, errChunkCorrupted
	}
	data = make([]byte, dataLen)
	copy(data, buf[chunkHeaderSize:chunkHeaderSize+dataLen])
	return next, data, nil
}

// Allocate writes data into the heap as a chain of fixed-size blocks and
// returns a HeapRef naming it. An empty blob still consumes one chunk, so
// every HeapRef returned by Allocate names a live, loadable blob.
func Allocate(store Store, allocator *alloc.Allocator, data []byte) (HeapRef, error) {
	if uint64(len(data)) > uint64(^uint32(0)) {
		return HeapRef{}, ErrRefTooLarge
	}

	numChunks := (len(data) + chunkPayload - 1) / chunkPayload
	if numChunks == 0 {
		numChunks = 1
	}

	ids := make([]block.ID, numChunks)
	for i := range ids {
		id, err := allocator.Allocate(store)
		if err != nil {
			return HeapRef{}, err
		}
		ids[i] = id
	}

	for i, id := range ids {
		start := i * chunkPayload
		end := start + chunkPayload
		if end > len(data) {
			end = len(data)
		}
		next := block.ID(0)
		if i+1 < len(ids) {
			next = ids[i+1]
		}
		if err := store.WriteBlock(id, encodeChunk(next, data[start:end])); err != nil {
			return HeapRef{}, fmt.Errorf("blobheap: write chunk %d: %w", id, err)
		}
	}

	return HeapRef{Start: ids[0], Length: uint32(len(data))}, nil
}

// Load reassembles the blob named by ref.
func Load(store Store, ref HeapRef) ([]byte, error) {
	out := make([]byte, 0, ref.Length)
	id := ref.Start
	for uint32(len(out)) < ref.Length {
		buf, err := store.ReadBlock(id)
		if err != nil {
			return nil, fmt.Errorf("blobheap: read chunk %d: %w", id, err)
		}
		next, data, err := decodeChunk(buf)
		if err != nil {
			return nil, fmt.Errorf("blobheap: decode chunk %d: %w", id, err)
		}
		out = append(out, data...)
		id = next
	}
	return out, nil
}
