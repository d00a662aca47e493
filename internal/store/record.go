package store

import (
	"encoding/binary"

	"github.com/mbeckem/blabber/internal/alloc"
	"github.com/mbeckem/blabber/internal/block"
	"github.com/mbeckem/blabber/internal/container/blobheap"
	"github.com/mbeckem/blabber/internal/container/list"
)

// Inline capacities from §3 of the data model: user names are short,
// titles a little longer; anything past the cap spills to the heap.
const (
	userCap  = 15
	titleCap = 31
)

const (
	userSize    = 1 + userCap // optStringSize(userCap), inlined as a constant for clarity
	titleSize   = 1 + titleCap
	heapRefWire = heapRefSize
	listAnchor  = 24 // Head(8) + Tail(8) + Count(8)
)

// postSize is the fixed on-disk size of a Post record: ID(8) +
// CreatedAt(8) + User(16) + Title(32) + Content(12) + Comments(24).
const postSize = 8 + 8 + userSize + titleSize + heapRefWire + listAnchor

// commentSize is the fixed on-disk size of a Comment record:
// CreatedAt(8) + User(16) + Content(12).
const commentSize = 8 + userSize + heapRefWire

// Post is a microblog post: an id-keyed record stored inline in the
// posts B-tree, owning an independent comment list.
type Post struct {
	ID        uint64
	CreatedAt int64
	User      string
	Title     string
	Content   string
	Comments  list.Anchor
}

// Comment is a reply to a Post, stored as one node in that post's comment
// list. Comments have no id of their own and are never mutated once
// created.
type Comment struct {
	CreatedAt int64
	User      string
	Content   string
}

func encodePost(tx Store, allocator *alloc.Allocator, p Post) ([]byte, error) {
	buf := make([]byte, 0, postSize)

	id := make([]byte, 8)
	binary.LittleEndian.PutUint64(id, p.ID)
	buf = append(buf, id...)

	createdAt := make([]byte, 8)
	binary.LittleEndian.PutUint64(createdAt, uint64(p.CreatedAt))
	buf = append(buf, createdAt...)

	user, err := encodeOptString(tx, allocator, userCap, p.User)
	if err != nil {
		return nil, err
	}
	buf = append(buf, user...)

	title, err := encodeOptString(tx, allocator, titleCap, p.Title)
	if err != nil {
		return nil, err
	}
	buf = append(buf, title...)

	contentRef, err := blobheap.Allocate(tx, allocator, []byte(p.Content))
	if err != nil {
		return nil, err
	}
	buf = append(buf, encodeHeapRef(contentRef)...)

	buf = append(buf, encodeListAnchor(p.Comments)...)

	return buf, nil
}

func decodePost(tx Store, buf []byte) (Post, error) {
	if len(buf) < postSize {
		return Post{}, ErrInternalInvariant
	}
	var p Post
	offset := 0

	p.ID = binary.LittleEndian.Uint64(buf[offset : offset+8])
	offset += 8
	p.CreatedAt = int64(binary.LittleEndian.Uint64(buf[offset : offset+8]))
	offset += 8

	user, err := decodeOptString(tx, userCap, buf[offset:offset+userSize])
	if err != nil {
		return Post{}, err
	}
	p.User = user
	offset += userSize

	title, err := decodeOptString(tx, titleCap, buf[offset:offset+titleSize])
	if err != nil {
		return Post{}, err
	}
	p.Title = title
	offset += titleSize

	contentRef := decodeHeapRef(buf[offset : offset+heapRefWire])
	offset += heapRefWire
	content, err := blobheap.Load(tx, contentRef)
	if err != nil {
		return Post{}, err
	}
	p.Content = string(content)

	p.Comments = decodeListAnchor(buf[offset : offset+listAnchor])

	return p, nil
}

func encodeComment(tx Store, allocator *alloc.Allocator, c Comment) ([]byte, error) {
	buf := make([]byte, 0, commentSize)

	createdAt := make([]byte, 8)
	binary.LittleEndian.PutUint64(createdAt, uint64(c.CreatedAt))
	buf = append(buf, createdAt...)

	user, err := encodeOptString(tx, allocator, userCap, c.User)
	if err != nil {
		return nil, err
	}
	buf = append(buf, user...)

	contentRef, err := blobheap.Allocate(tx, allocator, []byte(c.Content))
	if err != nil {
		return nil, err
	}
	buf = append(buf, encodeHeapRef(contentRef)...)

	return buf, nil
}

func decodeComment(tx Store, buf []byte) (Comment, error) {
	if len(buf) < commentSize {
		return Comment{}, ErrInternalInvariant
	}
	var c Comment
	offset := 0

	c.CreatedAt = int64(binary.LittleEndian.Uint64(buf[offset : offset+8]))
	offset += 8

	user, err := decodeOptString(tx, userCap, buf[offset:offset+userSize])
	if err != nil {
		return Comment{}, err
	}
	c.User = user
	offset += userSize

	contentRef := decodeHeapRef(buf[offset : offset+heapRefWire])
	content, err := blobheap.Load(tx, contentRef)
	if err != nil {
		return Comment{}, err
	}
	c.Content = string(content)

	return c, nil
}

func encodeHeapRef(ref blobheap.HeapRef) []byte {
	buf := make([]byte, heapRefWire)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(ref.Start))
	binary.LittleEndian.PutUint32(buf[8:12], ref.Length)
	return buf
}

func decodeHeapRef(buf []byte) blobheap.HeapRef {
	return blobheap.HeapRef{
		Start:  block.ID(binary.LittleEndian.Uint64(buf[0:8])),
		Length: binary.LittleEndian.Uint32(buf[8:12]),
	}
}

func encodeListAnchor(a list.Anchor) []byte {
	buf := make([]byte, listAnchor)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(a.Head))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(a.Tail))
	binary.LittleEndian.PutUint64(buf[16:24], a.Count)
	return buf
}

func decodeListAnchor(buf []byte) list.Anchor {
	return list.Anchor{
		Head:  block.ID(binary.LittleEndian.Uint64(buf[0:8])),
		Tail:  block.ID(binary.LittleEndian.Uint64(buf[8:16])),
		Count: binary.LittleEndian.Uint64(buf[16:24]),
	}
}
