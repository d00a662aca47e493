package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mbeckem/blabber/internal/alloc"
	"github.com/mbeckem/blabber/internal/block"
	"github.com/mbeckem/blabber/internal/master"
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

// newFixture returns a store with block 0 reserved (as the real master
// block would be), a fresh allocator, and a StoreAnchor ready for the
// very first post.
func newFixture() (*memStore, *alloc.Allocator, *master.StoreAnchor) {
	return &memStore{blocks: [][]byte{nil}}, alloc.New(), &master.StoreAnchor{NextPostID: 1}
}

func TestOptStringRoundTripInlineAndHeap(t *testing.T) {
	store, allocator := &memStore{blocks: [][]byte{nil}}, alloc.New()

	for _, cap := range []int{15, 31} {
		for _, n := range []int{0, 1, cap - 1, cap, cap + 1, 10000} {
			s := strings.Repeat("x", n)
			buf, err := encodeOptString(store, allocator, cap, s)
			require.NoError(t, err)
			require.Len(t, buf, optStringSize(cap))

			got, err := decodeOptString(store, cap, buf)
			require.NoError(t, err)
			require.Equal(t, s, got, "cap=%d n=%d", cap, n)
		}
	}
}

func TestCreatePostThenFetchPost(t *testing.T) {
	st, allocator, anchor := newFixture()

	id, err := CreatePost(st, allocator, anchor, "alice", "hi", "hello world", 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)
	require.Equal(t, uint64(2), anchor.NextPostID)

	result, err := FetchPost(st, *anchor, id, 10)
	require.NoError(t, err)
	require.Equal(t, PostResult{
		ID:        1,
		CreatedAt: 1000,
		User:      "alice",
		Title:     "hi",
		Content:   "hello world",
	}, result)
}

func TestCreatePostIdsIncreaseInOrder(t *testing.T) {
	st, allocator, anchor := newFixture()

	var ids []uint64
	for i := 0; i < 5; i++ {
		id, err := CreatePost(st, allocator, anchor, "u", "t", "c", 1)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.Equal(t, []uint64{1, 2, 3, 4, 5}, ids)
}

func TestFetchFrontpageOrdersNewestFirst(t *testing.T) {
	st, allocator, anchor := newFixture()

	_, err := CreatePost(st, allocator, anchor, "alice", "hi", "hello world", 1000)
	require.NoError(t, err)
	_, err = CreatePost(st, allocator, anchor, "bob", "second", strings.Repeat("x", 100), 1001)
	require.NoError(t, err)

	entries, err := FetchFrontpage(st, *anchor, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "bob", entries[0].User)
	require.Equal(t, "second", entries[0].Title)
	require.Equal(t, "alice", entries[1].User)
	require.Equal(t, "hi", entries[1].Title)
}

func TestFetchFrontpageRespectsMaxPosts(t *testing.T) {
	st, allocator, anchor := newFixture()

	for i := 0; i < 5; i++ {
		_, err := CreatePost(st, allocator, anchor, "u", "t", "c", 1)
		require.NoError(t, err)
	}

	entries, err := FetchFrontpage(st, *anchor, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, uint64(5), entries[0].ID)
	require.Equal(t, uint64(4), entries[1].ID)
}

func TestCreateCommentAppendsNewestFirstOnFetch(t *testing.T) {
	st, allocator, anchor := newFixture()

	id, err := CreatePost(st, allocator, anchor, "bob", "second", "x", 1)
	require.NoError(t, err)

	require.NoError(t, CreateComment(st, allocator, anchor, id, "carol", "nice", 2))
	require.NoError(t, CreateComment(st, allocator, anchor, id, "dave", "+1", 3))

	result, err := FetchPost(st, *anchor, id, 10)
	require.NoError(t, err)
	require.Equal(t, []Comment{
		{CreatedAt: 3, User: "dave", Content: "+1"},
		{CreatedAt: 2, User: "carol", Content: "nice"},
	}, result.Comments)
}

func TestCreateCommentOnMissingPostReturnsNotFound(t *testing.T) {
	st, allocator, anchor := newFixture()
	err := CreateComment(st, allocator, anchor, 999, "x", "y", 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFetchPostOnMissingPostReturnsNotFound(t *testing.T) {
	st, _, anchor := newFixture()
	_, err := FetchPost(st, *anchor, 999, 10)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreatePostWithNegativeClockFails(t *testing.T) {
	st, allocator, anchor := newFixture()
	_, err := CreatePost(st, allocator, anchor, "u", "t", "c", -1)
	require.ErrorIs(t, err, ErrClockError)
}

func TestLongTitleSpillsToHeapAndRoundTrips(t *testing.T) {
	st, allocator, anchor := newFixture()

	longTitle := strings.Repeat("t", 40)
	id, err := CreatePost(st, allocator, anchor, "u", longTitle, "c", 1)
	require.NoError(t, err)

	result, err := FetchPost(st, *anchor, id, 10)
	require.NoError(t, err)
	require.Equal(t, longTitle, result.Title)
}
