// Package alloc implements the block allocator: a persistent free list of
// reusable blocks, chained together on top of internal/block, anchored by a
// single head block.ID that the master block stores and restores across
// opens.
package alloc
