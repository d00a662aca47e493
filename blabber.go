// Package blabber is the public handle onto the storage core that backs
// the microblogging demo: create_post, create_comment, fetch_frontpage,
// fetch_post, dump, and finish, each run as its own single-writer
// transaction against a block device, write-ahead journal, and cache
// managed by internal/driver.
package blabber

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mbeckem/blabber/internal/driver"
	"github.com/mbeckem/blabber/internal/journal"
	"github.com/mbeckem/blabber/internal/master"
	"github.com/mbeckem/blabber/internal/metrics"
	"github.com/mbeckem/blabber/internal/store"
	"github.com/mbeckem/blabber/internal/xcrypto"
	"github.com/mbeckem/blabber/internal/xlog"
)

// Errors surfaced by the public API. NotFound, StringTooLarge, ClockError,
// IdSpaceExhausted, and InternalInvariant are the domain layer's own
// sentinels, re-exported unchanged so callers can errors.Is against a
// single stable set regardless of which package actually raised them.
var (
	ErrNotFound          = store.ErrNotFound
	ErrStringTooLarge    = store.ErrStringTooLarge
	ErrClockError        = store.ErrClockError
	ErrIdSpaceExhausted  = store.ErrIdSpaceExhausted
	ErrInternalInvariant = store.ErrInternalInvariant
	ErrInvalidFormat     = master.ErrBadMagic
	ErrUnsupportedVersion = master.ErrBadVersion
	ErrAlreadyClosed     = driver.ErrShutDown
)

// PostEntry is the summary fetch_frontpage returns.
type PostEntry = store.PostEntry

// PostResult is the full detail fetch_post returns.
type PostResult = store.PostResult

// Comment is a single comment as returned inside a PostResult.
type Comment = store.Comment

// Options configures Open.
type Options struct {
	// CacheBlocks is the number of blocks pinned in the engine's cache.
	CacheBlocks int
	// SyncOnCommit fsyncs the block device at commit in addition to the
	// journal's own commit-record fsync. Defaults to true.
	SyncOnCommit bool
	// EncryptionKeyFile, if set, names a file holding a 32-byte (raw or
	// hex) AES-256 key used to encrypt journal pre-images at rest. The
	// block device itself is never encrypted. Empty disables encryption.
	EncryptionKeyFile string
	// Metrics, if set, receives commit/rollback/checkpoint/cache counters.
	Metrics *metrics.Collector
	// Logger receives structured diagnostics from the engine and driver.
	Logger xlog.Logger
	// Clock supplies create_post/create_comment's created_at. Defaults to
	// the current UTC Unix time; tests substitute a fixed or scripted
	// clock to pin down timestamps and to exercise ClockError.
	Clock func() int64
}

// DefaultOptions returns the Options a plain Open call should use.
func DefaultOptions() Options {
	return Options{
		CacheBlocks:  256,
		SyncOnCommit: true,
		Logger:       xlog.Nop(),
		Clock:        func() int64 { return time.Now().Unix() },
	}
}

// DB is a handle onto one open database file. It is not safe to copy; every
// public operation serializes on the same internal mutex, so a single DB
// may be shared across goroutines without further locking.
type DB struct {
	driver      *driver.Driver
	journalPath string
	clock       func() int64
}

// Open opens (creating if necessary) the database file at path, running
// crash recovery and master-block verification as needed. The journal is
// kept alongside the database at path + "-journal".
func Open(path string, opts Options) (*DB, error) {
	if opts.Clock == nil {
		opts.Clock = func() int64 { return time.Now().Unix() }
	}
	if opts.Logger == (xlog.Logger{}) {
		opts.Logger = xlog.Nop()
	}

	// cipher is left a nil journal.Cipher (not a typed *xcrypto.Key nil)
	// when no key file is configured, so journal.Open's "cipher == nil"
	// check still sees plain nil rather than a non-nil interface wrapping
	// a nil pointer.
	var cipher journal.Cipher
	if opts.EncryptionKeyFile != "" {
		key, err := xcrypto.LoadFromFile(opts.EncryptionKeyFile)
		if err != nil {
			return nil, fmt.Errorf("blabber: load encryption key %s: %w", opts.EncryptionKeyFile, err)
		}
		cipher = key
	}

	journalPath := path + "-journal"
	d, err := driver.Open(path, journalPath, driver.Options{
		CacheBlocks:  opts.CacheBlocks,
		SyncOnCommit: opts.SyncOnCommit,
		Cipher:       cipher,
		Metrics:      opts.Metrics,
		Logger:       opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &DB{driver: d, journalPath: journalPath, clock: opts.Clock}, nil
}

// CreatePost assigns the next post id and stores user, title, and content,
// returning the new id.
func (db *DB) CreatePost(user, title, content string) (uint64, error) {
	var id uint64
	err := db.driver.RunInTransaction(func(ctx *driver.Context) error {
		now := db.clock()
		var err error
		id, err = store.CreatePost(ctx.Tx, ctx.Allocator, ctx.Anchor, user, title, content, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CreateComment appends a comment to postID's comment list.
func (db *DB) CreateComment(postID uint64, user, content string) error {
	return db.driver.RunInTransaction(func(ctx *driver.Context) error {
		now := db.clock()
		return store.CreateComment(ctx.Tx, ctx.Allocator, ctx.Anchor, postID, user, content, now)
	})
}

// FetchFrontpage returns at most maxPosts posts ordered newest first.
func (db *DB) FetchFrontpage(maxPosts int) ([]PostEntry, error) {
	var entries []PostEntry
	err := db.driver.RunInTransaction(func(ctx *driver.Context) error {
		var err error
		entries, err = store.FetchFrontpage(ctx.Tx, *ctx.Anchor, maxPosts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// FetchPost returns postID's full detail, with at most maxComments of its
// newest comments.
func (db *DB) FetchPost(postID uint64, maxComments int) (PostResult, error) {
	var result PostResult
	err := db.driver.RunInTransaction(func(ctx *driver.Context) error {
		var err error
		result, err = store.FetchPost(ctx.Tx, *ctx.Anchor, postID, maxComments)
		return err
	})
	if err != nil {
		return PostResult{}, err
	}
	return result, nil
}

// Dump writes a deterministic, human-readable snapshot of the database to
// w.
func (db *DB) Dump(w io.Writer) error {
	return db.driver.RunInTransaction(func(ctx *driver.Context) error {
		return store.Dump(ctx.Tx, ctx.Allocator, *ctx.Anchor, w)
	})
}

// DeviceBlockCount returns the number of blocks currently on the device,
// for diagnostics.
func (db *DB) DeviceBlockCount() uint64 {
	return db.driver.DeviceBlockCount()
}

// Finish closes the database, checkpointing and removing the journal.
// Calling Finish twice returns ErrAlreadyClosed.
func (db *DB) Finish() error {
	err := db.driver.Close(db.journalPath)
	if err != nil && errors.Is(err, driver.ErrShutDown) {
		return ErrAlreadyClosed
	}
	return err
}
