package block

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenCreatesFileWithInitialBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.blb")

	d, err := Open(path, Options{CreateIfMissing: true, InitialBlocks: 4})
	require.NoError(t, err)
	defer d.Close()

	require.Equal(t, uint64(4), d.Count())
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.blb")
	d, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer d.Close()

	id, err := d.Append()
	require.NoError(t, err)

	payload := []byte("the quick brown fox")
	require.NoError(t, d.Write(id, payload))

	got, err := d.Read(id)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestReadDetectsChecksumCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.blb")
	d, err := Open(path, DefaultOptions())
	require.NoError(t, err)

	id, err := d.Append()
	require.NoError(t, err)
	require.NoError(t, d.Write(id, []byte("hello")))
	require.NoError(t, d.Close())

	// Reopen and corrupt a byte within the payload region directly.
	raw, err := Open(path, Options{ReadOnly: false})
	require.NoError(t, err)
	buf := make([]byte, Size)
	_, err = raw.file.ReadAt(buf, int64(id)*Size)
	require.NoError(t, err)
	buf[headerSize] ^= 0xFF
	_, err = raw.file.WriteAt(buf, int64(id)*Size)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	d2, err := Open(path, Options{ReadOnly: true})
	require.NoError(t, err)
	defer d2.Close()

	_, err = d2.Read(id)
	require.ErrorIs(t, err, ErrChecksum)
}

func TestReadOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.blb")
	d, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Read(ID(d.Count() + 100))
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.blb")
	d, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, d.Close())

	ro, err := Open(path, Options{ReadOnly: true})
	require.NoError(t, err)
	defer ro.Close()

	err = ro.Write(0, []byte("x"))
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestOperationsAfterCloseFail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.blb")
	d, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, d.Close())

	_, err = d.Read(0)
	require.ErrorIs(t, err, ErrClosed)

	err = d.Write(0, []byte("x"))
	require.ErrorIs(t, err, ErrClosed)
}
