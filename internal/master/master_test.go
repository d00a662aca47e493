package master

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mbeckem/blabber/internal/block"
)

type memStore struct {
	blocks [][]byte
}

func (m *memStore) ReadBlock(id block.ID) ([]byte, error) {
	return m.blocks[id], nil
}

func (m *memStore) WriteBlock(id block.ID, data []byte) error {
	m.blocks[id] = append([]byte(nil), data...)
	return nil
}

func newFixture() *memStore {
	return &memStore{blocks: [][]byte{make([]byte, block.PayloadSize)}}
}

func TestVerifyUninitializedBlockZero(t *testing.T) {
	store := newFixture()
	_, err := Verify(store)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestInitThenVerifyRoundTrip(t *testing.T) {
	store := newFixture()

	h, err := Init(store)
	require.NoError(t, err)
	require.Equal(t, uint64(1), h.Store.NextPostID)

	h.Store.PostsRoot = 7
	h.Store.NextPostID = 3
	h.Store.HeapBlobCount = 2
	h.Allocator.Head = 9
	require.NoError(t, h.Save(store))

	got, err := Verify(store)
	require.NoError(t, err)
	require.Equal(t, *h, *got)
}

func TestVerifyRejectsBadMagic(t *testing.T) {
	store := newFixture()
	store.blocks[0] = []byte("not a blabber store, but long enough to pass the length check")
	_, err := Verify(store)
	require.ErrorIs(t, err, ErrBadMagic)
}
