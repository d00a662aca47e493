package engine

import (
	"errors"
	"fmt"

	"github.com/mbeckem/blabber/internal/block"
)

// ErrTxClosed is returned by any Tx method called after Commit or
// Rollback.
var ErrTxClosed = errors.New("engine: transaction is closed")

// Tx is a single in-flight transaction. It implements alloc.Store and the
// container packages' storage interfaces, so the allocator and the three
// containers read and write blocks through it without knowing anything
// about caching, journaling, or rollback.
type Tx struct {
	engine *Engine
	id     uint64
	// touched holds, for every block this transaction has written, the
	// block's contents immediately before the first write -- nil for a
	// block that was freshly appended and so had no prior contents.
	touched map[block.ID][]byte
	done    bool
}

// ID returns the transaction's identifier, assigned in Begin order.
func (t *Tx) ID() uint64 { return t.id }

// ReadBlock returns the current contents of id, reflecting any writes this
// transaction has already made to it.
func (t *Tx) ReadBlock(id block.ID) ([]byte, error) {
	if t.done {
		return nil, ErrTxClosed
	}
	return t.engine.readCommitted(id)
}

// WriteBlock overwrites the contents of id. The first time a transaction
// writes to a given block, its pre-write contents are captured in the
// journal so the write can be undone.
func (t *Tx) WriteBlock(id block.ID, data []byte) error {
	if t.done {
		return ErrTxClosed
	}

	if _, seen := t.touched[id]; !seen {
		before, err := t.engine.readCommitted(id)
		if err != nil {
			return err
		}
		if _, err := t.engine.journal.PreImage(t.id, id, before); err != nil {
			return fmt.Errorf("engine: journal pre-image: %w", err)
		}
		t.touched[id] = before
	}

	return t.engine.cache.put(id, data, true)
}

// AppendBlock allocates a fresh block at the end of the device. Its
// pre-write contents are the empty slice, captured immediately so a
// rollback restores it to that state.
func (t *Tx) AppendBlock() (block.ID, error) {
	if t.done {
		return 0, ErrTxClosed
	}

	id, err := t.engine.device.Append()
	if err != nil {
		return 0, err
	}

	if _, err := t.engine.journal.PreImage(t.id, id, nil); err != nil {
		return 0, fmt.Errorf("engine: journal pre-image: %w", err)
	}
	t.touched[id] = nil

	return id, nil
}

// Commit flushes every block this transaction dirtied to the device,
// fsyncs it if configured to, and records the commit durably in the
// journal. It does not checkpoint the journal itself; that decision
// belongs to the caller, which can weigh journal size against the cost of
// a checkpoint (see internal/driver's checkpoint-threshold policy).
func (t *Tx) Commit() error {
	if t.done {
		return ErrTxClosed
	}
	defer func() {
		t.done = true
		t.engine.endTx(t)
	}()

	e := t.engine
	for id := range t.touched {
		data, ok := e.cache.get(id)
		if !ok {
			continue
		}
		if err := e.device.Write(id, data); err != nil {
			return fmt.Errorf("engine: commit: flush block %d: %w", id, err)
		}
		e.cache.markClean(id)
	}

	if e.opts.SyncOnCommit {
		if err := e.device.Sync(); err != nil {
			return fmt.Errorf("engine: commit: sync device: %w", err)
		}
	}

	if err := e.journal.Commit(t.id); err != nil {
		return fmt.Errorf("engine: commit: journal: %w", err)
	}

	e.opts.Metrics.IncCommit()

	return nil
}

// Rollback restores every block this transaction touched to its pre-write
// contents, writing directly to the device so the outcome does not depend
// on whether the cache had already stolen (flushed) the dirty block under
// pressure. Like Commit, it leaves the checkpoint decision to the caller.
func (t *Tx) Rollback() error {
	if t.done {
		return ErrTxClosed
	}
	defer func() {
		t.done = true
		t.engine.endTx(t)
	}()

	e := t.engine
	for id, before := range t.touched {
		if err := e.device.Write(id, before); err != nil {
			return fmt.Errorf("engine: rollback: restore block %d: %w", id, err)
		}
		e.cache.drop(id)
	}

	if err := e.device.Sync(); err != nil {
		return fmt.Errorf("engine: rollback: sync device: %w", err)
	}

	if err := e.journal.Abort(t.id); err != nil {
		return fmt.Errorf("engine: rollback: journal: %w", err)
	}

	e.opts.Metrics.IncRollback()

	return nil
}
