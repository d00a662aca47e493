package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mbeckem/blabber/internal/block"
)

func TestAppendAssignsMonotonicLSNs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.log")
	j, err := Open(path, nil)
	require.NoError(t, err)
	defer j.Close()

	lsn1, err := j.Begin(1)
	require.NoError(t, err)
	lsn2, err := j.PreImage(1, block.ID(5), []byte("before"))
	require.NoError(t, err)

	require.Less(t, lsn1, lsn2)
}

func TestCommitThenTruncateEmptiesJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.log")
	j, err := Open(path, nil)
	require.NoError(t, err)
	defer j.Close()

	_, err = j.Begin(1)
	require.NoError(t, err)
	_, err = j.PreImage(1, block.ID(2), []byte("old"))
	require.NoError(t, err)
	require.NoError(t, j.Commit(1))

	recs, err := j.Records()
	require.NoError(t, err)
	require.Len(t, recs, 3)

	sizeBeforeTruncate, err := j.Size()
	require.NoError(t, err)
	require.Greater(t, sizeBeforeTruncate, int64(0))

	require.NoError(t, j.Truncate())

	recs, err = j.Records()
	require.NoError(t, err)
	require.Empty(t, recs)

	sizeAfterTruncate, err := j.Size()
	require.NoError(t, err)
	require.Zero(t, sizeAfterTruncate)
}

func TestRecordsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.log")
	j, err := Open(path, nil)
	require.NoError(t, err)

	_, err = j.Begin(7)
	require.NoError(t, err)
	_, err = j.PreImage(7, block.ID(3), []byte("pre-image-bytes"))
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j2, err := Open(path, nil)
	require.NoError(t, err)
	defer j2.Close()

	recs, err := j2.Records()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, KindBegin, recs[0].Kind)
	require.Equal(t, KindPreImage, recs[1].Kind)
	require.Equal(t, []byte("pre-image-bytes"), recs[1].Data)

	// LSN numbering continues rather than restarting.
	lsn, err := j2.Begin(8)
	require.NoError(t, err)
	require.Greater(t, lsn, recs[1].LSN)
}

type xorCipher struct{ key byte }

func (c xorCipher) Encrypt(p []byte) ([]byte, error) { return c.xor(p), nil }
func (c xorCipher) Decrypt(p []byte) ([]byte, error) { return c.xor(p), nil }
func (c xorCipher) xor(p []byte) []byte {
	out := make([]byte, len(p))
	for i, b := range p {
		out[i] = b ^ c.key
	}
	return out
}

func TestEncryptedPayloadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.log")
	j, err := Open(path, xorCipher{key: 0x5A})
	require.NoError(t, err)
	defer j.Close()

	_, err = j.PreImage(1, block.ID(1), []byte("secret pre-image"))
	require.NoError(t, err)

	recs, err := j.Records()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, []byte("secret pre-image"), recs[0].Data)
}
