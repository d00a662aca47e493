package list

import (
	"fmt"

	"github.com/mbeckem/blabber/internal/alloc"
	"github.com/mbeckem/blabber/internal/block"
)

// Store is the block access the list needs; satisfied by a transaction
// handle.
type Store = alloc.Store

// Anchor is the small persistent header an owning record embeds so the
// list can be reopened: the head/tail block IDs and the element count.
type Anchor struct {
	Head  block.ID
	Tail  block.ID
	Count uint64
}

// Empty is the zero-value Anchor of a list with no elements.
var Empty = Anchor{}

func readNode(store Store, id block.ID) (*node, error) {
	data, err := store.ReadBlock(id)
	if err != nil {
		return nil, fmt.Errorf("list: read node %d: %w", id, err)
	}
	n, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("list: decode node %d: %w", id, err)
	}
	return n, nil
}

func writeNode(store Store, id block.ID, n *node) error {
	buf, err := n.encode()
	if err != nil {
		return fmt.Errorf("list: encode node %d: %w", id, err)
	}
	if err := store.WriteBlock(id, buf); err != nil {
		return fmt.Errorf("list: write node %d: %w", id, err)
	}
	return nil
}

// PushBack appends data as a new tail element, returning the updated
// Anchor to persist in the caller's own record.
func PushBack(store Store, allocator *alloc.Allocator, anchor Anchor, data []byte) (Anchor, error) {
	id, err := allocator.Allocate(store)
	if err != nil {
		return anchor, err
	}

	n := &node{next: Nil, prev: anchor.Tail, data: data}
	if err := writeNode(store, id, n); err != nil {
		return anchor, err
	}

	if anchor.Tail != Nil {
		tail, err := readNode(store, anchor.Tail)
		if err != nil {
			return anchor, err
		}
		tail.next = id
		if err := writeNode(store, anchor.Tail, tail); err != nil {
			return anchor, err
		}
	}

	anchor.Tail = id
	if anchor.Head == Nil {
		anchor.Head = id
	}
	anchor.Count++
	return anchor, nil
}

// Cursor walks a list's elements starting from either end.
type Cursor struct {
	store Store
	id    block.ID
}

// SeekFirst returns a Cursor positioned at the list's head.
func SeekFirst(store Store, anchor Anchor) *Cursor {
	return &Cursor{store: store, id: anchor.Head}
}

// SeekLast returns a Cursor positioned at the list's tail, for
// newest-first iteration.
func SeekLast(store Store, anchor Anchor) *Cursor {
	return &Cursor{store: store, id: anchor.Tail}
}

// Next returns the element at the cursor and advances it toward the
// tail. ok is false once the list is exhausted.
func (c *Cursor) Next() (data []byte, ok bool, err error) {
	if c.id == Nil {
		return nil, false, nil
	}
	n, err := readNode(c.store, c.id)
	if err != nil {
		return nil, false, err
	}
	data = n.data
	c.id = n.next
	return data, true, nil
}

// Prev returns the element at the cursor and moves it toward the head.
// ok is false once the list is exhausted.
func (c *Cursor) Prev() (data []byte, ok bool, err error) {
	if c.id == Nil {
		return nil, false, nil
	}
	n, err := readNode(c.store, c.id)
	if err != nil {
		return nil, false, err
	}
	data = n.data
	c.id = n.prev
	return data, true, nil
}
