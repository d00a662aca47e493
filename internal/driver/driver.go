package driver

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/mbeckem/blabber/internal/alloc"
	"github.com/mbeckem/blabber/internal/block"
	"github.com/mbeckem/blabber/internal/engine"
	"github.com/mbeckem/blabber/internal/journal"
	"github.com/mbeckem/blabber/internal/master"
	"github.com/mbeckem/blabber/internal/metrics"
	"github.com/mbeckem/blabber/internal/xlog"
)

// ErrShutDown is returned by RunInTransaction after Close.
var ErrShutDown = errors.New("driver: database is closed")

// DefaultCheckpointThreshold is the journal size, in bytes, above which
// RunInTransaction checkpoints after a commit or rollback.
const DefaultCheckpointThreshold = 1 << 20 // 1 MiB

// Options configures a Driver.
type Options struct {
	CacheBlocks  int
	SyncOnCommit bool
	// CheckpointThreshold is the journal size, in bytes, above which a
	// commit or rollback triggers a checkpoint. Zero selects
	// DefaultCheckpointThreshold.
	CheckpointThreshold int64
	// Cipher, if set, encrypts journal pre-images at rest. The block
	// device itself is never encrypted.
	Cipher  journal.Cipher
	Metrics *metrics.Collector
	Logger  xlog.Logger
}

// DefaultOptions returns the Options a plain Open call should use.
func DefaultOptions() Options {
	return Options{
		CacheBlocks:         256,
		SyncOnCommit:        true,
		CheckpointThreshold: DefaultCheckpointThreshold,
		Logger:              xlog.Nop(),
	}
}

// Context is what RunInTransaction hands to the domain operation: the
// live transaction handle, the allocator opened on the current master
// anchor, and a pointer to the store's own anchor fields so the
// operation's mutations are visible when the driver flushes block 0.
type Context struct {
	Tx        *engine.Tx
	Allocator *alloc.Allocator
	Anchor    *master.StoreAnchor
}

// Driver owns the single writer mutex and the underlying engine.
type Driver struct {
	mu                  sync.Mutex
	engine              *engine.Engine
	logger              xlog.Logger
	metrics             *metrics.Collector
	checkpointThreshold int64
	closed              bool
}

// Open opens (creating if necessary) the database at devicePath with its
// journal at journalPath, running crash recovery and master-block
// verification/initialization as needed.
func Open(devicePath, journalPath string, opts Options) (*Driver, error) {
	blockOpts := block.DefaultOptions()

	threshold := opts.CheckpointThreshold
	if threshold <= 0 {
		threshold = DefaultCheckpointThreshold
	}

	e, err := engine.Open(devicePath, journalPath, blockOpts, engine.Options{
		CacheBlocks:  opts.CacheBlocks,
		SyncOnCommit: opts.SyncOnCommit,
		Cipher:       opts.Cipher,
		Metrics:      opts.Metrics,
		Logger:       opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	d := &Driver{
		engine:              e,
		logger:              opts.Logger,
		metrics:             opts.Metrics,
		checkpointThreshold: threshold,
	}

	if err := d.ensureMasterInitialized(); err != nil {
		e.Close()
		return nil, err
	}

	return d, nil
}

func (d *Driver) ensureMasterInitialized() error {
	tx, err := d.engine.Begin()
	if err != nil {
		return err
	}

	_, err = master.Verify(tx)
	switch {
	case err == nil:
		return tx.Rollback()
	case errors.Is(err, master.ErrNotInitialized):
		if _, err := master.Init(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("driver: initialize master block: %w", err)
		}
		return tx.Commit()
	default:
		tx.Rollback()
		return fmt.Errorf("driver: verify master block: %w", err)
	}
}

// RunInTransaction begins a transaction, loads the master block and
// allocator, runs fn against a Context, and flushes the allocator's
// updated anchor plus fn's StoreAnchor mutations back to block 0 before
// committing. Any error returned by fn -- or a recovered panic -- rolls
// the transaction back instead.
func (d *Driver) RunInTransaction(fn func(ctx *Context) error) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrShutDown
	}

	tx, err := d.engine.Begin()
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		r := recover()
		tx.Rollback()
		if err := d.maybeCheckpoint(); err != nil {
			d.logger.Error("checkpoint after rollback failed", "error", err)
		}
		if r != nil {
			panic(r)
		}
	}()

	header, err := master.Verify(tx)
	if err != nil {
		return fmt.Errorf("driver: load master block: %w", err)
	}

	allocator, err := alloc.Load(tx, header.Allocator)
	if err != nil {
		return fmt.Errorf("driver: load allocator: %w", err)
	}

	ctx := &Context{Tx: tx, Allocator: allocator, Anchor: &header.Store}
	if err := fn(ctx); err != nil {
		return err
	}

	allocAnchor, err := allocator.Flush(tx)
	if err != nil {
		return fmt.Errorf("driver: flush allocator: %w", err)
	}
	header.Allocator = allocAnchor

	if err := header.Save(tx); err != nil {
		return fmt.Errorf("driver: save master block: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	if err := d.maybeCheckpoint(); err != nil {
		return err
	}
	return nil
}

// maybeCheckpoint reports the journal's current size to metrics and
// checkpoints it if that size exceeds the configured threshold, matching
// "after each commit, if journal_size() > 1 MiB, a checkpoint runs."
func (d *Driver) maybeCheckpoint() error {
	size, err := d.engine.JournalSize()
	if err != nil {
		return fmt.Errorf("driver: journal size: %w", err)
	}
	d.metrics.SetJournalBytes(size)

	if size <= d.checkpointThreshold {
		return nil
	}
	if err := d.engine.Checkpoint(); err != nil {
		return fmt.Errorf("driver: checkpoint: %w", err)
	}
	return nil
}

// Close checkpoints the journal unconditionally -- commits below the
// threshold may have left records behind -- then closes the underlying
// engine and removes the now-empty journal file, matching finish()'s
// "checkpoint then drop the journal" contract.
func (d *Driver) Close(journalPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrShutDown
	}
	d.closed = true

	if err := d.engine.Checkpoint(); err != nil {
		return err
	}
	if err := d.engine.Close(); err != nil {
		return err
	}
	if err := os.Remove(journalPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("driver: remove journal: %w", err)
	}
	return nil
}

// DeviceBlockCount returns the number of blocks currently on the device,
// exposed for dump() and diagnostics.
func (d *Driver) DeviceBlockCount() uint64 {
	return d.engine.DeviceBlockCount()
}
