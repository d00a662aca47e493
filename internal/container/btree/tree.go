package btree

import (
	"fmt"

	"github.com/mbeckem/blabber/internal/alloc"
	"github.com/mbeckem/blabber/internal/block"
)

// Store is the block access the tree needs; satisfied by a transaction
// handle.
type Store = alloc.Store

func readNode(store Store, id block.ID) (*node, error) {
	data, err := store.ReadBlock(id)
	if err != nil {
		return nil, fmt.Errorf("btree: read node %d: %w", id, err)
	}
	n, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("btree: decode node %d: %w", id, err)
	}
	return n, nil
}

func writeNode(store Store, id block.ID, n *node) error {
	buf, err := n.encode()
	if err != nil {
		return fmt.Errorf("btree: encode node %d: %w", id, err)
	}
	if err := store.WriteBlock(id, buf); err != nil {
		return fmt.Errorf("btree: write node %d: %w", id, err)
	}
	return nil
}

// Create allocates and writes an empty root leaf, returning its block.ID.
func Create(store Store, allocator *alloc.Allocator) (block.ID, error) {
	id, err := allocator.Allocate(store)
	if err != nil {
		return 0, err
	}
	if err := writeNode(store, id, newLeaf()); err != nil {
		return 0, err
	}
	return id, nil
}

// Get looks up key in the tree rooted at root.
func Get(store Store, root block.ID, key uint64) (value []byte, found bool, err error) {
	id := root
	for {
		n, err := readNode(store, id)
		if err != nil {
			return nil, false, err
		}
		if n.isLeaf {
			idx, ok := n.findIndex(key)
			if !ok {
				return nil, false, nil
			}
			return n.values[idx], true, nil
		}
		id = n.childFor(key)
	}
}

// Set overwrites the value already stored at key. It never splits a
// node, so it is only safe to call with a value the same size as the one
// being replaced -- exactly the case for blabber's fixed-size records.
func Set(store Store, root block.ID, key uint64, value []byte) error {
	id := root
	for {
		n, err := readNode(store, id)
		if err != nil {
			return err
		}
		if n.isLeaf {
			idx, found := n.findIndex(key)
			if !found {
				return fmt.Errorf("btree: key %d not present", key)
			}
			n.values[idx] = value
			return writeNode(store, id, n)
		}
		id = n.childFor(key)
	}
}

// pathEntry records one step taken while descending to a leaf, so Insert
// can propagate a split back up without a second pass.
type pathEntry struct {
	id   block.ID
	node *node
}

// Insert adds key/value to the tree rooted at root, splitting nodes as
// needed. It returns the root to persist going forward -- usually root
// itself, but a different block.ID if the root split.
func Insert(store Store, allocator *alloc.Allocator, root block.ID, key uint64, value []byte) (block.ID, error) {
	var path []pathEntry

	id := root
	for {
		n, err := readNode(store, id)
		if err != nil {
			return root, err
		}
		path = append(path, pathEntry{id: id, node: n})
		if n.isLeaf {
			break
		}
		id = n.childFor(key)
	}

	leafEntry := path[len(path)-1]
	leaf := leafEntry.node
	idx, found := leaf.findIndex(key)
	if found {
		// Keys are post identifiers assigned by a monotonic
		// counter and never reused, so an exact match here would be a
		// caller bug rather than a legitimate update.
		return root, fmt.Errorf("btree: key %d already present", key)
	}
	leaf.keys = append(leaf.keys, 0)
	copy(leaf.keys[idx+1:], leaf.keys[idx:])
	leaf.keys[idx] = key
	leaf.values = append(leaf.values, nil)
	copy(leaf.values[idx+1:], leaf.values[idx:])
	leaf.values[idx] = value

	if _, err := leaf.encode(); err == nil {
		if err := writeNode(store, leafEntry.id, leaf); err != nil {
			return root, err
		}
		return root, nil
	}

	// The leaf no longer fits in one block: split it and propagate the
	// new separator key upward, splitting ancestors as needed.
	return splitUp(store, allocator, root, path, leaf)
}

// splitUp splits the full leaf (already holding the new entry) and walks
// back up path, splitting any ancestor that overflows in turn.
func splitUp(store Store, allocator *alloc.Allocator, root block.ID, path []pathEntry, leaf *node) (block.ID, error) {
	leafID := path[len(path)-1].id

	mid := len(leaf.keys) / 2
	right := &node{
		isLeaf: true,
		keys:   append([]uint64(nil), leaf.keys[mid:]...),
		values: append([][]byte(nil), leaf.values[mid:]...),
		next:   leaf.next,
		prev:   leafID,
	}
	leaf.keys = leaf.keys[:mid]
	leaf.values = leaf.values[:mid]

	rightID, err := allocator.Allocate(store)
	if err != nil {
		return root, err
	}
	leaf.next = rightID

	if right.next != Nil {
		sibling, err := readNode(store, right.next)
		if err != nil {
			return root, err
		}
		sibling.prev = rightID
		if err := writeNode(store, right.next, sibling); err != nil {
			return root, err
		}
	}

	if err := writeNode(store, leafID, leaf); err != nil {
		return root, err
	}
	if err := writeNode(store, rightID, right); err != nil {
		return root, err
	}

	separator := right.keys[0]
	promotedChild := rightID

	// Walk back up the recorded path, inserting the promoted separator
	// into each ancestor and splitting it too if it overflows.
	for i := len(path) - 2; i >= 0; i-- {
		parentEntry := path[i]
		parent := parentEntry.node

		idx, _ := parent.findIndex(separator)
		parent.keys = append(parent.keys, 0)
		copy(parent.keys[idx+1:], parent.keys[idx:])
		parent.keys[idx] = separator
		parent.children = append(parent.children, Nil)
		copy(parent.children[idx+2:], parent.children[idx+1:])
		parent.children[idx+1] = promotedChild

		if _, err := parent.encode(); err == nil {
			if err := writeNode(store, parentEntry.id, parent); err != nil {
				return root, err
			}
			return root, nil
		}

		// Parent overflowed too: split it and promote its own middle key.
		pmid := len(parent.keys) / 2
		upKey := parent.keys[pmid]

		rightParent := &node{
			isLeaf:   false,
			keys:     append([]uint64(nil), parent.keys[pmid+1:]...),
			children: append([]block.ID(nil), parent.children[pmid+1:]...),
		}
		parent.keys = parent.keys[:pmid]
		parent.children = parent.children[:pmid+1]

		rightParentID, err := allocator.Allocate(store)
		if err != nil {
			return root, err
		}
		if err := writeNode(store, parentEntry.id, parent); err != nil {
			return root, err
		}
		if err := writeNode(store, rightParentID, rightParent); err != nil {
			return root, err
		}

		separator = upKey
		promotedChild = rightParentID
	}

	// The root itself split: create a fresh root pointing at both halves.
	newRootID, err := allocator.Allocate(store)
	if err != nil {
		return root, err
	}
	newRoot := &node{
		isLeaf:   false,
		keys:     []uint64{separator},
		children: []block.ID{path[0].id, promotedChild},
	}
	if err := writeNode(store, newRootID, newRoot); err != nil {
		return root, err
	}
	return newRootID, nil
}

// Cursor iterates leaf entries in ascending key order.
type Cursor struct {
	node *node
	idx  int
}

// Seek returns a Cursor positioned at the first entry with key >= from. If
// no such entry exists, the cursor is exhausted (Next returns false
// immediately).
func Seek(store Store, root block.ID, from uint64) (*Cursor, error) {
	id := root
	for {
		n, err := readNode(store, id)
		if err != nil {
			return nil, err
		}
		if n.isLeaf {
			idx, _ := n.findIndex(from)
			return &Cursor{node: n, idx: idx}, nil
		}
		id = n.childFor(from)
	}
}

// First returns a Cursor positioned at the very first entry in the tree.
func First(store Store, root block.ID) (*Cursor, error) {
	id := root
	for {
		n, err := readNode(store, id)
		if err != nil {
			return nil, err
		}
		if n.isLeaf {
			return &Cursor{node: n, idx: 0}, nil
		}
		id = n.children[0]
	}
}

// Next returns the entry at the cursor and advances it, following the leaf
// chain across node boundaries as needed. ok is false once the tree is
// exhausted.
func (c *Cursor) Next(store Store) (key uint64, value []byte, ok bool, err error) {
	for {
		if c.idx < len(c.node.keys) {
			key = c.node.keys[c.idx]
			value = c.node.values[c.idx]
			c.idx++
			return key, value, true, nil
		}
		if c.node.next == Nil {
			return 0, nil, false, nil
		}
		next, err := readNode(store, c.node.next)
		if err != nil {
			return 0, nil, false, err
		}
		c.node = next
		c.idx = 0
	}
}

// ReverseCursor iterates leaf entries in descending key order, used by
// fetch_frontpage to return posts newest-first without re-sorting.
type ReverseCursor struct {
	node *node
	idx  int // index of the next entry to return, or -1 when exhausted in this node
}

// Last returns a ReverseCursor positioned at the very last entry in the
// tree.
func Last(store Store, root block.ID) (*ReverseCursor, error) {
	id := root
	for {
		n, err := readNode(store, id)
		if err != nil {
			return nil, err
		}
		if n.isLeaf {
			return &ReverseCursor{node: n, idx: len(n.keys) - 1}, nil
		}
		id = n.children[len(n.children)-1]
	}
}

// Prev returns the entry at the cursor and moves it one step toward
// smaller keys, following the leaf chain backward across node boundaries
// as needed. ok is false once the tree is exhausted.
func (c *ReverseCursor) Prev(store Store) (key uint64, value []byte, ok bool, err error) {
	for {
		if c.idx >= 0 {
			key = c.node.keys[c.idx]
			value = c.node.values[c.idx]
			c.idx--
			return key, value, true, nil
		}
		if c.node.prev == Nil {
			return 0, nil, false, nil
		}
		prev, err := readNode(store, c.node.prev)
		if err != nil {
			return 0, nil, false, err
		}
		c.node = prev
		c.idx = len(prev.keys) - 1
	}
}
