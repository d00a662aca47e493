package list

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mbeckem/blabber/internal/alloc"
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

func (m *memStore) AppendBlock() (block.ID, error) {
	id := block.ID(len(m.blocks))
	m.blocks = append(m.blocks, nil)
	return id, nil
}

func newFixture() (*memStore, *alloc.Allocator) {
	return &memStore{blocks: [][]byte{nil}}, alloc.New()
}

func TestPushBackAndForwardIteration(t *testing.T) {
	store, allocator := newFixture()
	anchor := Empty

	var err error
	for _, s := range []string{"a", "b", "c"} {
		anchor, err = PushBack(store, allocator, anchor, []byte(s))
		require.NoError(t, err)
	}
	require.Equal(t, uint64(3), anchor.Count)

	c := SeekFirst(store, anchor)
	var got []string
	for {
		data, ok, err := c.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, string(data))
	}
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestSeekLastWalksNewestFirst(t *testing.T) {
	store, allocator := newFixture()
	anchor := Empty

	var err error
	for _, s := range []string{"a", "b", "c"} {
		anchor, err = PushBack(store, allocator, anchor, []byte(s))
		require.NoError(t, err)
	}

	c := SeekLast(store, anchor)
	var got []string
	for {
		data, ok, err := c.Prev()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, string(data))
	}
	require.Equal(t, []string{"c", "b", "a"}, got)
}

func TestEmptyListCursorsAreExhausted(t *testing.T) {
	store, _ := newFixture()
	anchor := Empty

	_, ok, err := SeekFirst(store, anchor).Next()
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = SeekLast(store, anchor).Prev()
	require.NoError(t, err)
	require.False(t, ok)
}
