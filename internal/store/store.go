package store

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mbeckem/blabber/internal/alloc"
	"github.com/mbeckem/blabber/internal/container/btree"
	"github.com/mbeckem/blabber/internal/container/list"
	"github.com/mbeckem/blabber/internal/master"
)

// Store is the block access the domain layer needs; satisfied by a
// transaction handle, and threaded straight through to the containers it
// builds on.
type Store = alloc.Store

// PostEntry is the summary fetch_frontpage returns: enough to render a
// post list without paying for its content or comments.
type PostEntry struct {
	ID        uint64
	CreatedAt int64
	User      string
	Title     string
}

// PostResult is the full detail fetch_post returns.
type PostResult struct {
	ID        uint64
	CreatedAt int64
	User      string
	Title     string
	Content   string
	Comments  []Comment
}

// CreatePost assigns the next post id, stores user/title/content, and
// inserts the post into the posts B-tree, mutating anchor in place
// (next_post_id advanced, and the posts root whenever the tree is created
// or its root splits) and returning the new post's id.
func CreatePost(tx Store, allocator *alloc.Allocator, anchor *master.StoreAnchor, user, title, content string, now int64) (uint64, error) {
	if anchor.NextPostID == 0 {
		return 0, ErrIdSpaceExhausted
	}
	if now < 0 {
		return 0, ErrClockError
	}

	root := anchor.PostsRoot
	if root == btree.Nil {
		var err error
		root, err = btree.Create(tx, allocator)
		if err != nil {
			return 0, err
		}
	}

	id := anchor.NextPostID
	post := Post{
		ID:        id,
		CreatedAt: now,
		User:      user,
		Title:     title,
		Content:   content,
		Comments:  list.Empty,
	}

	encoded, err := encodePost(tx, allocator, post)
	if err != nil {
		return 0, err
	}

	newRoot, err := btree.Insert(tx, allocator, root, id, encoded)
	if err != nil {
		return 0, err
	}

	anchor.PostsRoot = newRoot
	anchor.NextPostID = id + 1
	return id, nil
}

// CreateComment appends a comment to postID's comment list. Only the
// post's comments anchor is rewritten in place -- the fixed-size record
// layout means a comment never needs the post's user/title/content
// fields touched or their heap blobs reallocated. anchor itself is
// never mutated: appending a comment never changes the posts root.
func CreateComment(tx Store, allocator *alloc.Allocator, anchor *master.StoreAnchor, postID uint64, user, content string, now int64) error {
	if now < 0 {
		return ErrClockError
	}

	if anchor.PostsRoot == btree.Nil {
		return ErrNotFound
	}

	raw, found, err := btree.Get(tx, anchor.PostsRoot, postID)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	if len(raw) < postSize {
		return ErrInternalInvariant
	}

	commentsOffset := postSize - listAnchor
	commentsAnchor := decodeListAnchor(raw[commentsOffset:])

	comment := Comment{CreatedAt: now, User: user, Content: content}
	encoded, err := encodeComment(tx, allocator, comment)
	if err != nil {
		return err
	}

	newAnchor, err := list.PushBack(tx, allocator, commentsAnchor, encoded)
	if err != nil {
		return err
	}

	copy(raw[commentsOffset:], encodeListAnchor(newAnchor))
	return btree.Set(tx, anchor.PostsRoot, postID, raw)
}

// FetchFrontpage returns at most maxPosts posts ordered newest (highest
// id) first. Content and comments are not loaded.
func FetchFrontpage(tx Store, anchor master.StoreAnchor, maxPosts int) ([]PostEntry, error) {
	if anchor.PostsRoot == btree.Nil || maxPosts <= 0 {
		return nil, nil
	}

	cursor, err := btree.Last(tx, anchor.PostsRoot)
	if err != nil {
		return nil, err
	}

	var out []PostEntry
	for len(out) < maxPosts {
		_, raw, ok, err := cursor.Prev(tx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		entry, err := decodePostEntry(tx, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// FetchPost returns the full detail of postID, with at most maxComments
// of its newest comments.
func FetchPost(tx Store, anchor master.StoreAnchor, postID uint64, maxComments int) (PostResult, error) {
	if anchor.PostsRoot == btree.Nil {
		return PostResult{}, ErrNotFound
	}

	raw, found, err := btree.Get(tx, anchor.PostsRoot, postID)
	if err != nil {
		return PostResult{}, err
	}
	if !found {
		return PostResult{}, ErrNotFound
	}

	post, err := decodePost(tx, raw)
	if err != nil {
		return PostResult{}, err
	}

	result := PostResult{
		ID:        post.ID,
		CreatedAt: post.CreatedAt,
		User:      post.User,
		Title:     post.Title,
		Content:   post.Content,
	}

	if maxComments > 0 {
		cursor := list.SeekLast(tx, post.Comments)
		for len(result.Comments) < maxComments {
			data, ok, err := cursor.Prev()
			if err != nil {
				return PostResult{}, err
			}
			if !ok {
				break
			}
			comment, err := decodeComment(tx, data)
			if err != nil {
				return PostResult{}, err
			}
			result.Comments = append(result.Comments, comment)
		}
	}

	return result, nil
}

// decodePostEntry decodes only the fields fetch_frontpage needs (id,
// created_at, user, title), skipping the content and comments heap/list
// work a full decodePost would do.
func decodePostEntry(tx Store, raw []byte) (PostEntry, error) {
	if len(raw) < postSize {
		return PostEntry{}, ErrInternalInvariant
	}
	var e PostEntry
	e.ID = binary.LittleEndian.Uint64(raw[0:8])
	e.CreatedAt = int64(binary.LittleEndian.Uint64(raw[8:16]))

	user, err := decodeOptString(tx, userCap, raw[16:16+userSize])
	if err != nil {
		return PostEntry{}, err
	}
	e.User = user

	title, err := decodeOptString(tx, titleCap, raw[16+userSize:16+userSize+titleSize])
	if err != nil {
		return PostEntry{}, err
	}
	e.Title = title

	return e, nil
}

// Dump writes a deterministic, human-readable snapshot of the store to w:
// the allocator's free block count followed by every post and its
// comment count, oldest first.
func Dump(tx Store, allocator *alloc.Allocator, anchor master.StoreAnchor, w io.Writer) error {
	fmt.Fprintf(w, "allocator: %d free blocks\n", allocator.FreeCount())
	fmt.Fprintf(w, "store: next_post_id=%d\n", anchor.NextPostID)

	if anchor.PostsRoot == btree.Nil {
		fmt.Fprintln(w, "posts: (none)")
		return nil
	}

	cursor, err := btree.First(tx, anchor.PostsRoot)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "posts:")
	for {
		key, raw, ok, err := cursor.Next(tx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		entry, err := decodePostEntry(tx, raw)
		if err != nil {
			return err
		}
		comments := decodeListAnchor(raw[postSize-listAnchor:])
		fmt.Fprintf(w, "  id=%d user=%q title=%q comments=%d created_at=%d\n",
			key, entry.User, entry.Title, comments.Count, entry.CreatedAt)
	}
	return nil
}
