// Package journal implements the append-only pre-image log used to undo a
// transaction's writes, whether it rolls back voluntarily or the process
// crashes mid-transaction. Records are appended in LSN order and, on a
// clean checkpoint, the whole log is truncated back to empty: every
// transaction whose Commit record made it to the log is already durable in
// the block device by that point, so nothing ever needs redoing forward.
package journal
