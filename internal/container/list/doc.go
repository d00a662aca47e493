// Package list implements a doubly linked list of opaque fixed-size
// records, one block per node, anchored by a small {Head, Tail, Count}
// header that callers embed in an owning record (for example, a Post's
// comment list). PushBack is O(1) via the Tail pointer; a Cursor supports
// walking in either direction, including tail-to-head for newest-first
// iteration.
//
// Like internal/container/btree, the list holds no state between calls:
// every operation takes the Anchor explicitly and mutations return the
// (possibly updated) Anchor to persist in the caller's own record.
package list
