// Package store implements the microblogging domain schema on top of the
// allocator and the three container packages: posts indexed by id in a
// B-tree, each post's comments in a doubly linked list, and long strings
// in the blob heap. It owns the on-disk encoding of Post and Comment and
// the create_post / create_comment / fetch_frontpage / fetch_post / dump
// operations; nothing here knows about transactions, caching, or the
// journal — every operation takes a Store (a transaction handle) and the
// master.StoreAnchor; CreatePost updates the *master.StoreAnchor in place
// for the caller to persist in block 0.
package store
