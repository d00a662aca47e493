package blobheap

import (
	"bytes"
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

func TestAllocateLoadSmallBlob(t *testing.T) {
	store, allocator := newFixture()

	ref, err := Allocate(store, allocator, []byte("hello world"))
	require.NoError(t, err)

	got, err := Load(store, ref)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got)
}

func TestAllocateLoadEmptyBlob(t *testing.T) {
	store, allocator := newFixture()

	ref, err := Allocate(store, allocator, nil)
	require.NoError(t, err)
	require.False(t, ref.IsZero())

	got, err := Load(store, ref)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestAllocateLoadBlobSpanningMultipleChunks(t *testing.T) {
	store, allocator := newFixture()

	data := bytes.Repeat([]byte("0123456789abcdef"), 1000) // far bigger than one block
	ref, err := Allocate(store, allocator, data)
	require.NoError(t, err)

	got, err := Load(store, ref)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestDistinctBlobsGetDistinctRefs(t *testing.T) {
	store, allocator := newFixture()

	ref1, err := Allocate(store, allocator, []byte("first"))
	require.NoError(t, err)
	ref2, err := Allocate(store, allocator, []byte("second"))
	require.NoError(t, err)

	require.NotEqual(t, ref1.Start, ref2.Start)
}
