package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mbeckem/blabber/internal/block"
)

func openTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := Open(filepath.Join(dir, "db.blb"), filepath.Join(dir, "db.journal"), block.DefaultOptions(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestCommitPersistsWrites(t *testing.T) {
	e := openTestEngine(t, DefaultOptions())

	tx, err := e.Begin()
	require.NoError(t, err)

	id, err := tx.AppendBlock()
	require.NoError(t, err)
	require.NoError(t, tx.WriteBlock(id, []byte("hello world")))
	require.NoError(t, tx.Commit())

	tx2, err := e.Begin()
	require.NoError(t, err)
	data, err := tx2.ReadBlock(id)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), data)
	require.NoError(t, tx2.Rollback())
}

func TestRollbackDiscardsWrites(t *testing.T) {
	e := openTestEngine(t, DefaultOptions())

	tx, err := e.Begin()
	require.NoError(t, err)
	id, err := tx.AppendBlock()
	require.NoError(t, err)
	require.NoError(t, tx.WriteBlock(id, []byte("first")))
	require.NoError(t, tx.Commit())

	tx2, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, tx2.WriteBlock(id, []byte("second, should not stick")))
	require.NoError(t, tx2.Rollback())

	tx3, err := e.Begin()
	require.NoError(t, err)
	data, err := tx3.ReadBlock(id)
	require.NoError(t, err)
	require.Equal(t, []byte("first"), data)
	require.NoError(t, tx3.Rollback())
}

func TestRollbackRestoresStolenDirtyBlock(t *testing.T) {
	// A tiny cache forces an eviction (steal) of a dirty block mid
	// transaction; rollback must still restore the pre-write contents
	// even though they were already flushed to the device under pressure.
	opts := DefaultOptions()
	opts.CacheBlocks = 2

	e := openTestEngine(t, opts)

	tx, err := e.Begin()
	require.NoError(t, err)
	id, err := tx.AppendBlock()
	require.NoError(t, err)
	require.NoError(t, tx.WriteBlock(id, []byte("original")))
	require.NoError(t, tx.Commit())

	tx2, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, tx2.WriteBlock(id, []byte("stolen write")))

	// Touch enough other blocks to force id's dirty entry to be evicted
	// (and therefore flushed to the device) before the transaction ends.
	for i := 0; i < 5; i++ {
		other, err := tx2.AppendBlock()
		require.NoError(t, err)
		require.NoError(t, tx2.WriteBlock(other, []byte("filler")))
	}

	require.NoError(t, tx2.Rollback())

	tx3, err := e.Begin()
	require.NoError(t, err)
	data, err := tx3.ReadBlock(id)
	require.NoError(t, err)
	require.Equal(t, []byte("original"), data)
	require.NoError(t, tx3.Rollback())
}

func TestOnlyOneTransactionAtATime(t *testing.T) {
	e := openTestEngine(t, DefaultOptions())

	tx, err := e.Begin()
	require.NoError(t, err)

	_, err = e.Begin()
	require.ErrorIs(t, err, ErrTxInProgress)

	require.NoError(t, tx.Rollback())

	_, err = e.Begin()
	require.NoError(t, err)
}

func TestCrashRecoveryUndoesIncompleteTransaction(t *testing.T) {
	dir := t.TempDir()
	devicePath := filepath.Join(dir, "db.blb")
	journalPath := filepath.Join(dir, "db.journal")

	e, err := Open(devicePath, journalPath, block.DefaultOptions(), DefaultOptions())
	require.NoError(t, err)

	tx, err := e.Begin()
	require.NoError(t, err)
	id, err := tx.AppendBlock()
	require.NoError(t, err)
	require.NoError(t, tx.WriteBlock(id, []byte("committed value")))
	require.NoError(t, tx.Commit())

	// Simulate a crash mid-transaction: write a pre-image and a new value
	// directly through the journal/device without ever calling Commit or
	// Rollback, then reopen as if the process restarted.
	tx2, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, tx2.WriteBlock(id, []byte("in-flight, should be undone")))
	// Flush the dirty cache entry to the device to simulate the crash
	// happening after a steal-eviction, without writing a Commit record.
	data, _ := e.cache.get(id)
	require.NoError(t, e.device.Write(id, data))
	require.NoError(t, e.journal.Sync())
	require.NoError(t, e.device.Close())
	require.NoError(t, e.journal.Close())

	e2, err := Open(devicePath, journalPath, block.DefaultOptions(), DefaultOptions())
	require.NoError(t, err)
	defer e2.Close()

	tx3, err := e2.Begin()
	require.NoError(t, err)
	restored, err := tx3.ReadBlock(id)
	require.NoError(t, err)
	require.Equal(t, []byte("committed value"), restored)
	require.NoError(t, tx3.Rollback())
}
