package btree

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mbeckem/blabber/internal/alloc"
	"github.com/mbeckem/blabber/internal/block"
)

// memStore is an in-memory Store test double, independent of the engine so
// these tests exercise only the tree's own logic.
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

func (m *memStore) AppendBlock() (block.ID, error) {
	id := block.ID(len(m.blocks))
	m.blocks = append(m.blocks, nil)
	return id, nil
}

func valueFor(key uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, key)
	return buf
}

func newFixture() (*memStore, *alloc.Allocator) {
	// Block 0 is reserved by convention for the master anchor elsewhere;
	// seed one throwaway block here so tree block IDs stay nonzero too.
	store := &memStore{blocks: [][]byte{nil}}
	return store, alloc.New()
}

func TestInsertGetRoundTrip(t *testing.T) {
	store, allocator := newFixture()
	root, err := Create(store, allocator)
	require.NoError(t, err)

	for _, k := range []uint64{5, 1, 3, 2, 4} {
		root, err = Insert(store, allocator, root, k, valueFor(k))
		require.NoError(t, err)
	}

	for _, k := range []uint64{1, 2, 3, 4, 5} {
		v, found, err := Get(store, root, k)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, valueFor(k), v)
	}

	_, found, err := Get(store, root, 99)
	require.NoError(t, err)
	require.False(t, found)
}

func TestInsertDuplicateKeyRejected(t *testing.T) {
	store, allocator := newFixture()
	root, err := Create(store, allocator)
	require.NoError(t, err)

	root, err = Insert(store, allocator, root, 1, valueFor(1))
	require.NoError(t, err)

	_, err = Insert(store, allocator, root, 1, valueFor(1))
	require.Error(t, err)
}

func TestInsertTriggersLeafAndRootSplit(t *testing.T) {
	store, allocator := newFixture()
	root, err := Create(store, allocator)
	require.NoError(t, err)

	// Large-ish values force a split well before we'd need thousands of
	// entries, and a big enough key count forces splits several levels up.
	const n = 400
	value := make([]byte, 64)

	for i := uint64(0); i < n; i++ {
		root, err = Insert(store, allocator, root, i, append([]byte(nil), value...))
		require.NoError(t, err)
	}

	for i := uint64(0); i < n; i++ {
		_, found, err := Get(store, root, i)
		require.NoError(t, err)
		require.True(t, found, "key %d", i)
	}

	root_, err := readNode(store, root)
	require.NoError(t, err)
	require.False(t, root_.isLeaf, "root should have split into an internal node")
}

func TestCursorAscendingOrder(t *testing.T) {
	store, allocator := newFixture()
	root, err := Create(store, allocator)
	require.NoError(t, err)

	keys := []uint64{10, 3, 7, 1, 9, 5}
	for _, k := range keys {
		root, err = Insert(store, allocator, root, k, valueFor(k))
		require.NoError(t, err)
	}

	c, err := First(store, root)
	require.NoError(t, err)

	var got []uint64
	for {
		k, _, ok, err := c.Next(store)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, k)
	}
	require.Equal(t, []uint64{1, 3, 5, 7, 9, 10}, got)
}

func TestCursorSeekStartsAtOrAfterKey(t *testing.T) {
	store, allocator := newFixture()
	root, err := Create(store, allocator)
	require.NoError(t, err)

	for _, k := range []uint64{1, 2, 4, 8, 16} {
		root, err = Insert(store, allocator, root, k, valueFor(k))
		require.NoError(t, err)
	}

	c, err := Seek(store, root, 5)
	require.NoError(t, err)
	k, _, ok, err := c.Next(store)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(8), k)
}

func TestReverseCursorDescendingOrder(t *testing.T) {
	store, allocator := newFixture()
	root, err := Create(store, allocator)
	require.NoError(t, err)

	const n = 300
	value := make([]byte, 48)
	for i := uint64(0); i < n; i++ {
		root, err = Insert(store, allocator, root, i, append([]byte(nil), value...))
		require.NoError(t, err)
	}

	c, err := Last(store, root)
	require.NoError(t, err)

	var got []uint64
	for {
		k, _, ok, err := c.Prev(store)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, k)
	}
	require.Len(t, got, n)
	for i, k := range got {
		require.Equal(t, n-1-uint64(i), k)
	}
}

func TestReverseCursorOnEmptyTree(t *testing.T) {
	store, allocator := newFixture()
	root, err := Create(store, allocator)
	require.NoError(t, err)

	c, err := Last(store, root)
	require.NoError(t, err)
	_, _, ok, err := c.Prev(store)
	require.NoError(t, err)
	require.False(t, ok)
}
