package store

import (
	"encoding/binary"
	"errors"

	"github.com/mbeckem/blabber/internal/alloc"
	"github.com/mbeckem/blabber/internal/block"
	"github.com/mbeckem/blabber/internal/container/blobheap"
)

// heapRefSize is the on-disk size of a HeapRef: an 8-byte block.ID plus a
// 4-byte length.
const heapRefSize = 12

const (
	tagInline byte = 0
	tagHeap   byte = 1
)

// optStringSize returns the fixed on-disk size of an optimized string
// with the given inline capacity: a tag byte plus room for whichever arm
// is larger.
func optStringSize(cap int) int {
	payload := cap
	if heapRefSize > payload {
		payload = heapRefSize
	}
	return 1 + payload
}

// encodeOptString writes s as the inline or heap-referenced variant,
// whichever len(s) selects, into a freshly allocated optStringSize(cap)
// byte buffer.
func encodeOptString(tx Store, allocator *alloc.Allocator, cap int, s string) ([]byte, error) {
	data := []byte(s)
	if uint64(len(data)) > uint64(^uint32(0)) {
		return nil, ErrStringTooLarge
	}

	buf := make([]byte, optStringSize(cap))
	if len(data) <= cap {
		buf[0] = tagInline
		copy(buf[1:1+len(data)], data)
		return buf, nil
	}

	ref, err := blobheap.Allocate(tx, allocator, data)
	if err != nil {
		if errors.Is(err, blobheap.ErrRefTooLarge) {
			return nil, ErrStringTooLarge
		}
		return nil, err
	}
	buf[0] = tagHeap
	binary.LittleEndian.PutUint64(buf[1:9], uint64(ref.Start))
	binary.LittleEndian.PutUint32(buf[9:13], ref.Length)
	return buf, nil
}

// decodeOptString reads the string encoded at the start of buf (which
// must be at least optStringSize(cap) bytes), dereferencing the heap if
// necessary.
func decodeOptString(tx Store, cap int, buf []byte) (string, error) {
	tag := buf[0]
	if tag == tagHeap {
		start := block.ID(binary.LittleEndian.Uint64(buf[1:9]))
		length := binary.LittleEndian.Uint32(buf[9:13])
		data, err := blobheap.Load(tx, blobheap.HeapRef{Start: start, Length: length})
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	payload := buf[1 : 1+cap]
	n := cap
	for i, b := range payload {
		if b == 0 {
			n = i
			break
		}
	}
	return string(payload[:n]), nil
}
