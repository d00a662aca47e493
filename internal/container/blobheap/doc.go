// Package blobheap implements an unordered, append-only heap of
// variable-length byte blobs, chained across as many fixed-size blocks as
// a blob needs. A HeapRef names a blob by the block.ID of its first
// chunk plus its total length; the heap never reuses a chain head while
// the blob it names is live, so HeapRef.Start is a stable total order
// over every blob ever allocated.
package blobheap
