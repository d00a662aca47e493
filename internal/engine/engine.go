package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mbeckem/blabber/internal/block"
	"github.com/mbeckem/blabber/internal/journal"
	"github.com/mbeckem/blabber/internal/metrics"
	"github.com/mbeckem/blabber/internal/xlog"
)

// Errors returned by the engine.
var (
	ErrTxInProgress = errors.New("engine: a transaction is already in progress")
	ErrTxDone       = errors.New("engine: transaction already committed or rolled back")
	ErrClosed       = errors.New("engine: already closed")
)

// Options configures an Engine.
type Options struct {
	// CacheBlocks is the number of blocks the LRU cache may hold at once.
	CacheBlocks int
	// SyncOnCommit fsyncs the block device at commit, in addition to
	// always fsyncing the journal's commit record.
	SyncOnCommit bool
	// Cipher optionally encrypts journal pre-images at rest.
	Cipher journal.Cipher
	// Metrics, if set, receives commit/rollback/cache counters.
	Metrics *metrics.Collector
	// Logger receives structured engine diagnostics, most notably crash
	// recovery activity.
	Logger xlog.Logger
}

// DefaultOptions returns the Options a plain Open call should use.
func DefaultOptions() Options {
	return Options{
		CacheBlocks:  256,
		SyncOnCommit: true,
		Logger:       xlog.Nop(),
	}
}

// Engine owns a block device and its journal and mediates every access to
// both through a single in-flight transaction.
type Engine struct {
	mu      sync.Mutex
	device  *block.Device
	journal *journal.Journal
	cache   *cache
	opts    Options
	nextTx  uint64
	current *Tx
	closed  bool
}

// Open opens the block device at devicePath and its companion journal at
// journalPath, running crash recovery if the journal shows an incomplete
// transaction.
func Open(devicePath, journalPath string, blockOpts block.Options, opts Options) (*Engine, error) {
	if opts.CacheBlocks <= 0 {
		opts.CacheBlocks = DefaultOptions().CacheBlocks
	}

	dev, err := block.Open(devicePath, blockOpts)
	if err != nil {
		return nil, err
	}

	jrn, err := journal.Open(journalPath, opts.Cipher)
	if err != nil {
		dev.Close()
		return nil, err
	}

	e := &Engine{
		device: dev,
		journal: jrn,
		opts:   opts,
		nextTx: 1,
	}
	e.cache = newCache(opts.CacheBlocks, e.flushToDevice, opts.Metrics)

	if err := e.recover(); err != nil {
		dev.Close()
		jrn.Close()
		return nil, fmt.Errorf("engine: recovery: %w", err)
	}

	return e, nil
}

func (e *Engine) flushToDevice(id block.ID, data []byte) error {
	return e.device.Write(id, data)
}

// DeviceBlockCount returns the number of blocks currently allocated on the
// underlying device.
func (e *Engine) DeviceBlockCount() uint64 {
	return e.device.Count()
}

// JournalSize returns the current size of the journal file in bytes.
func (e *Engine) JournalSize() (int64, error) {
	return e.journal.Size()
}

// Checkpoint truncates the journal now that every record in it is known
// durable in the block device, and records the checkpoint in metrics. The
// caller decides when a checkpoint is warranted (see internal/driver).
func (e *Engine) Checkpoint() error {
	if err := e.journal.Truncate(); err != nil {
		return fmt.Errorf("engine: checkpoint: %w", err)
	}
	e.opts.Metrics.IncCheckpoint()
	return nil
}

// Begin starts a new transaction. Only one transaction may be in progress
// at a time; callers needing to serialize concurrent callers should do so
// through internal/driver rather than racing Begin directly.
func (e *Engine) Begin() (*Tx, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	if e.current != nil {
		return nil, ErrTxInProgress
	}

	txID := e.nextTx
	e.nextTx++

	if _, err := e.journal.Begin(txID); err != nil {
		return nil, err
	}

	tx := &Tx{
		engine:  e,
		id:      txID,
		touched: make(map[block.ID][]byte),
	}
	e.current = tx
	return tx, nil
}

// readCommitted returns the current contents of id, populating the cache
// on a miss. It never returns a dirty in-progress value from a *different*
// transaction, because only one transaction is ever in flight.
func (e *Engine) readCommitted(id block.ID) ([]byte, error) {
	if data, ok := e.cache.get(id); ok {
		return data, nil
	}
	data, err := e.device.Read(id)
	if err != nil {
		return nil, err
	}
	if err := e.cache.put(id, data, false); err != nil {
		return nil, err
	}
	return data, nil
}

func (e *Engine) endTx(tx *Tx) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == tx {
		e.current = nil
	}
}

// Close closes the journal and device. No transaction may be in progress.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.current != nil {
		return ErrTxInProgress
	}
	e.closed = true

	jerr := e.journal.Close()
	derr := e.device.Close()
	if jerr != nil {
		return jerr
	}
	return derr
}
