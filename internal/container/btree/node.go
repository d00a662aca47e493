package btree

import (
	"encoding/binary"
	"errors"

	"github.com/mbeckem/blabber/internal/block"
)

// Nil is the zero block.ID, used as a null node or sibling reference.
const Nil block.ID = 0

// Errors returned while encoding or decoding a node.
var (
	ErrNodeTooLarge  = errors.New("btree: node exceeds block payload size")
	ErrNodeCorrupted = errors.New("btree: node buffer corrupted")
)

// node is a single B-tree node, either an internal (routing) node or a
// leaf holding the actual key/value pairs.
type node struct {
	isLeaf   bool
	keys     []uint64
	children []block.ID // len(children) == len(keys)+1, internal nodes only
	values   [][]byte   // len(values) == len(keys), leaf nodes only
	next     block.ID   // leaf chain forward link
	prev     block.ID   // leaf chain backward link
}

// newLeaf returns an empty leaf node.
func newLeaf() *node {
	return &node{isLeaf: true}
}

// newInternal returns an empty internal node with a single child.
func newInternal(child block.ID) *node {
	return &node{isLeaf: false, children: []block.ID{child}}
}

// findIndex returns the position of key in n.keys, or the position it
// would be inserted at, and whether it was found exactly.
func (n *node) findIndex(key uint64) (int, bool) {
	low, high := 0, len(n.keys)
	for low < high {
		mid := (low + high) / 2
		switch {
		case n.keys[mid] < key:
			low = mid + 1
		case n.keys[mid] > key:
			high = mid
		default:
			return mid, true
		}
	}
	return low, false
}

// childFor returns the child that should contain key. Only valid for
// internal nodes.
func (n *node) childFor(key uint64) block.ID {
	idx, found := n.findIndex(key)
	if found {
		idx++
	}
	return n.children[idx]
}

// encode serializes the node. Layout:
//
//	0:     isLeaf (0/1)
//	1:9    next (leaf only)
//	9:17   prev (leaf only)
//	17:19  count (uint16)
//	19...  entries
//
// Leaf entries are key(8) + valueLen(uint16, 2) + value(valueLen).
// Internal entries are key(8) followed by a trailing child(8); the node
// stores len(keys)+1 children, so the first child precedes the first key.
func (n *node) encode() ([]byte, error) {
	buf := make([]byte, 0, block.PayloadSize)

	var isLeaf byte
	if n.isLeaf {
		isLeaf = 1
	}
	buf = append(buf, isLeaf)

	nextPrev := make([]byte, 16)
	binary.LittleEndian.PutUint64(nextPrev[0:8], uint64(n.next))
	binary.LittleEndian.PutUint64(nextPrev[8:16], uint64(n.prev))
	buf = append(buf, nextPrev...)

	count := make([]byte, 2)
	binary.LittleEndian.PutUint16(count, uint16(len(n.keys)))
	buf = append(buf, count...)

	if n.isLeaf {
		for i, k := range n.keys {
			entry := make([]byte, 10)
			binary.LittleEndian.PutUint64(entry[0:8], k)
			binary.LittleEndian.PutUint16(entry[8:10], uint16(len(n.values[i])))
			buf = append(buf, entry...)
			buf = append(buf, n.values[i]...)
		}
	} else {
		firstChild := make([]byte, 8)
		binary.LittleEndian.PutUint64(firstChild, uint64(n.children[0]))
		buf = append(buf, firstChild...)
		for i, k := range n.keys {
			entry := make([]byte, 16)
			binary.LittleEndian.PutUint64(entry[0:8], k)
			binary.LittleEndian.PutUint64(entry[8:16], uint64(n.children[i+1]))
			buf = append(buf, entry...)
		}
	}

	if len(buf) > block.PayloadSize {
		return nil, ErrNodeTooLarge
	}
	return buf, nil
}

// decode parses a node previously written by encode.
func decode(buf []byte) (*node, error) {
	if len(buf) < 19 {
		return nil, ErrNodeCorrupted
	}

	n := &node{isLeaf: buf[0] == 1}
	n.next = block.ID(binary.LittleEndian.Uint64(buf[1:9]))
	n.prev = block.ID(binary.LittleEndian.Uint64(buf[9:17]))
	count := int(binary.LittleEndian.Uint16(buf[17:19]))

	offset := 19
	if n.isLeaf {
		n.keys = make([]uint64, 0, count)
		n.values = make([][]byte, 0, count)
		for i := 0; i < count; i++ {
			if offset+10 > len(buf) {
				return nil, ErrNodeCorrupted
			}
			key := binary.LittleEndian.Uint64(buf[offset : offset+8])
			valLen := int(binary.LittleEndian.Uint16(buf[offset+8 : offset+10]))
			offset += 10
			if offset+valLen > len(buf) {
				return nil, ErrNodeCorrupted
			}
			value := make([]byte, valLen)
			copy(value, buf[offset:offset+valLen])
			offset += valLen

			n.keys = append(n.keys, key)
			n.values = append(n.values, value)
		}
	} else {
		if offset+8 > len(buf) {
			return nil, ErrNodeCorrupted
		}
		n.children = make([]block.ID, 0, count+1)
		n.children = append(n.children, block.ID(binary.LittleEndian.Uint64(buf[offset:offset+8])))
		offset += 8
		n.keys = make([]uint64, 0, count)
		for i := 0; i < count; i++ {
			if offset+16 > len(buf) {
				return nil, ErrNodeCorrupted
			}
			key := binary.LittleEndian.Uint64(buf[offset : offset+8])
			child := block.ID(binary.LittleEndian.Uint64(buf[offset+8 : offset+16]))
			offset += 16
			n.keys = append(n.keys, key)
			n.children = append(n.children, child)
		}
	}

	return n, nil
}
