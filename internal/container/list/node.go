package list

import (
	"encoding/binary"
	"errors"

	"github.com/mbeckem/blabber/internal/block"
)

// Nil is the zero block.ID, used as a null node reference.
const Nil block.ID = 0

// Errors returned while encoding or decoding a node.
var (
	ErrNodeTooLarge  = errors.New("list: node exceeds block payload size")
	ErrNodeCorrupted = errors.New("list: node buffer corrupted")
)

// node is one element of the list: a fixed-size record plus the two
// links needed to walk the list in either direction.
type node struct {
	next block.ID
	prev block.ID
	data []byte
}

// encode serializes the node. Layout:
//
//	0:8   next
//	8:16  prev
//	16:18 len(data) (uint16)
//	18... data
func (n *node) encode() ([]byte, error) {
	buf := make([]byte, 18, 18+len(n.data))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(n.next))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(n.prev))
	binary.LittleEndian.PutUint16(buf[16:18], uint16(len(n.data)))
	buf = append(buf, n.data...)

	if len(buf) > block.PayloadSize {
		return nil, ErrNodeTooLarge
	}
	return buf, nil
}

// decode parses a node previously written by encode.
func decode(buf []byte) (*node, error) {
	if len(buf) < 18 {
		return nil, ErrNodeCorrupted
	}
	n := &node{
		next: block.ID(binary.LittleEndian.Uint64(buf[0:8])),
		prev: block.ID(binary.LittleEndian.Uint64(buf[8:16])),
	}
	dataLen := int(binary.LittleEndian.Uint16(buf[16:18]))
	if 18+dataLen > len(buf) {
		return nil, ErrNodeCorrupted
	}
	n.data = make([]byte, dataLen)
	copy(n.data, buf[18:18+dataLen])
	return n, nil
}
