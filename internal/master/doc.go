// Package master reads and writes block 0, the fixed-size anchor block
// from which every other persistent structure in the store is reachable:
// the block allocator's free-list anchor and the domain store's own
// anchor (next post id, posts B-tree root, heap blob count). Nothing else
// in the store may be the sole owner of a block.ID that isn't, directly
// or transitively, reachable from here.
package master
