// Package engine implements the transactional layer sitting on top of
// internal/block and internal/journal: a pin-counted LRU block cache, a
// single in-flight transaction at a time, and crash recovery that undoes
// whatever transaction the journal shows was left incomplete.
//
// The commit/rollback protocol is force-at-commit with optional steal: a
// transaction's writes live only in the cache until it commits, at which
// point every dirty block is flushed to the device and synced. If the
// cache evicts a dirty block before that point (steal, under capacity
// pressure), the block's pre-commit contents were already captured in the
// journal the first time the transaction touched it, so the eviction is
// safe to undo. A checkpoint truncates the journal to empty, since by
// then every record in it describes a transaction that is either fully
// durable on disk (committed) or fully undone (aborted). The engine never
// checkpoints on its own: internal/driver calls Checkpoint after a commit
// or rollback once the journal exceeds its threshold, and on Close.
package engine
