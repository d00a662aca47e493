// Package btree implements an ordered B-tree keyed by uint64, used to index
// posts by ID. Leaf nodes store their values inline rather than pointing at
// a separate data page, since every value blabber stores here (a
// serialized Post) is already fixed-size; see SPEC_FULL.md for why this
// departs from an EntryRef-indirected design. Leaves are chained via
// Next/Prev for ordered range iteration through a Cursor.
//
// The tree holds no state of its own between calls: every operation takes
// the root block.ID explicitly. Insert returns the (possibly new, on a
// root split) root to persist in the caller's anchor; Set never changes
// the root.
package btree
