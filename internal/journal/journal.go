package journal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mbeckem/blabber/internal/block"
)

// Errors returned by Journal operations.
var ErrClosed = errors.New("journal: already closed")

// Cipher optionally encrypts and decrypts journal payloads. Both functions
// must round-trip: Decrypt(Encrypt(p)) == p.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Journal is the append-only pre-image log backing a single block device.
// Every method holds an internal mutex; the engine additionally
// serializes all access through its single-writer driver.
type Journal struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	nextLSN uint64
	cipher  Cipher
	closed  bool
}

// Open opens or creates the journal file at path.
func Open(path string, cipher Cipher) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	j := &Journal{file: f, path: path, cipher: cipher, nextLSN: 1}

	last, err := j.scanLastLocked()
	if err != nil {
		f.Close()
		return nil, err
	}
	if last != nil {
		j.nextLSN = last.LSN + 1
	}

	return j, nil
}

// scanLastLocked reads the whole file once to recover the next LSN to
// assign. Must be called before concurrent access begins.
func (j *Journal) scanLastLocked() (*Record, error) {
	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(j.file)
	if err != nil {
		return nil, fmt.Errorf("journal: read %s: %w", j.path, err)
	}

	var last *Record
	offset := 0
	for offset < len(data) {
		rec, n, err := Decode(data[offset:], j.decrypt)
		if err != nil {
			// A truncated or corrupt tail record means a crash mid-append;
			// stop reading here, the record never completed durably.
			break
		}
		last = rec
		offset += n
	}
	return last, nil
}

func (j *Journal) encrypt(p []byte) ([]byte, error) {
	if j.cipher == nil {
		return p, nil
	}
	return j.cipher.Encrypt(p)
}

func (j *Journal) decrypt(c []byte) ([]byte, error) {
	if j.cipher == nil {
		return c, nil
	}
	return j.cipher.Decrypt(c)
}

// append writes a record and returns its assigned LSN. Must be called with
// mu held.
func (j *Journal) append(kind Kind, txID uint64, blockID block.ID, data []byte) (uint64, error) {
	if j.closed {
		return 0, ErrClosed
	}

	rec := &Record{
		LSN:     j.nextLSN,
		TxID:    txID,
		Kind:    kind,
		BlockID: blockID,
		Data:    data,
	}

	buf, err := rec.Encode(j.encrypt)
	if err != nil {
		return 0, fmt.Errorf("journal: encode: %w", err)
	}

	if _, err := j.file.Write(buf); err != nil {
		return 0, fmt.Errorf("journal: write: %w", err)
	}

	j.nextLSN++
	return rec.LSN, nil
}

// Begin appends a Begin control record for txID.
func (j *Journal) Begin(txID uint64) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.append(KindBegin, txID, 0, nil)
}

// PreImage appends the pre-image of a block about to be dirtied by txID,
// captured the first time the transaction touches it.
func (j *Journal) PreImage(txID uint64, id block.ID, before []byte) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.append(KindPreImage, txID, id, before)
}

// Commit appends a Commit control record for txID and fsyncs the journal
// file.
func (j *Journal) Commit(txID uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.append(KindCommit, txID, 0, nil); err != nil {
		return err
	}
	return j.syncLocked()
}

// Abort appends an Abort control record for txID and fsyncs the journal
// file.
func (j *Journal) Abort(txID uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.append(KindAbort, txID, 0, nil); err != nil {
		return err
	}
	return j.syncLocked()
}

// Sync flushes the journal file to stable storage.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.syncLocked()
}

func (j *Journal) syncLocked() error {
	if j.closed {
		return ErrClosed
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("journal: sync %s: %w", j.path, err)
	}
	return nil
}

// Records returns every record currently in the journal, in LSN order, for
// use by crash recovery.
func (j *Journal) Records() ([]*Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil, ErrClosed
	}

	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("journal: seek %s: %w", j.path, err)
	}
	data, err := io.ReadAll(j.file)
	if err != nil {
		return nil, fmt.Errorf("journal: read %s: %w", j.path, err)
	}

	var records []*Record
	offset := 0
	for offset < len(data) {
		rec, n, err := Decode(data[offset:], j.decrypt)
		if err != nil {
			break
		}
		records = append(records, rec)
		offset += n
	}
	return records, nil
}

// Size returns the current size of the journal file in bytes, for the
// driver's checkpoint-threshold policy.
func (j *Journal) Size() (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return 0, ErrClosed
	}
	info, err := j.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("journal: stat %s: %w", j.path, err)
	}
	return info.Size(), nil
}

// Truncate discards every record in the journal. Called after a checkpoint
// once every recorded transaction is known durable in the block device.
func (j *Journal) Truncate() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}
	if err := j.file.Truncate(0); err != nil {
		return fmt.Errorf("journal: truncate %s: %w", j.path, err)
	}
	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("journal: seek %s: %w", j.path, err)
	}
	return nil
}

// CurrentLSN returns the LSN that will be assigned to the next appended
// record.
func (j *Journal) CurrentLSN() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextLSN
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	j.closed = true
	return j.file.Close()
}
