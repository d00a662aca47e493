package journal

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"github.com/mbeckem/blabber/internal/block"
)

// Kind identifies the purpose of a journal record.
type Kind uint8

const (
	// KindBegin marks the start of a transaction.
	KindBegin Kind = iota
	// KindPreImage records the contents of a block immediately before a
	// transaction's first write to it, so it can be restored on rollback.
	KindPreImage
	// KindCommit marks a transaction as durably committed.
	KindCommit
	// KindAbort marks a transaction as voluntarily rolled back.
	KindAbort
)

func (k Kind) String() string {
	switch k {
	case KindBegin:
		return "begin"
	case KindPreImage:
		return "pre-image"
	case KindCommit:
		return "commit"
	case KindAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// recordHeaderSize is the size, in bytes, of a Record's fixed header:
//
//	0:8   LSN
//	8:16  TxID
//	16    Kind
//	17:25 BlockID   (KindPreImage only, otherwise zero)
//	25:29 DataLen
//	29:33 Checksum
const recordHeaderSize = 33

// maxDataLen bounds a single pre-image record to the size of one whole
// block (Encode adds further headroom for cipher overhead).
const maxDataLen = block.Size

// Errors returned while encoding or decoding records.
var (
	ErrRecordTooShort = errors.New("journal: record buffer too short")
	ErrChecksum       = errors.New("journal: record checksum mismatch")
	ErrDataTooLarge   = errors.New("journal: record data exceeds one block")
)

// Record is a single entry in the journal.
type Record struct {
	LSN     uint64
	TxID    uint64
	Kind    Kind
	BlockID block.ID
	Data    []byte // pre-image payload, only set for KindPreImage
}

// Size returns the serialized length of the record.
func (r *Record) Size() int {
	return recordHeaderSize + len(r.Data)
}

// Encode serializes the record, optionally passing the payload through enc
// first (enc may be nil, meaning no encryption).
func (r *Record) Encode(enc func([]byte) ([]byte, error)) ([]byte, error) {
	data := r.Data
	if enc != nil && len(data) > 0 {
		ciphertext, err := enc(data)
		if err != nil {
			return nil, err
		}
		data = ciphertext
	}
	if len(data) > maxDataLen+64 { // allow for GCM nonce+tag overhead
		return nil, ErrDataTooLarge
	}

	buf := make([]byte, recordHeaderSize+len(data))
	binary.LittleEndian.PutUint64(buf[0:8], r.LSN)
	binary.LittleEndian.PutUint64(buf[8:16], r.TxID)
	buf[16] = byte(r.Kind)
	binary.LittleEndian.PutUint64(buf[17:25], uint64(r.BlockID))
	binary.LittleEndian.PutUint32(buf[25:29], uint32(len(data)))
	copy(buf[recordHeaderSize:], data)

	crc := crc32.ChecksumIEEE(buf[:recordHeaderSize-4])
	crc = crc32.Update(crc, crc32.IEEETable, data)
	binary.LittleEndian.PutUint32(buf[29:33], crc)

	return buf, nil
}

// Decode reads a record back from buf, returning the number of bytes
// consumed. dec undoes any encryption applied at Encode time (may be nil).
func Decode(buf []byte, dec func([]byte) ([]byte, error)) (*Record, int, error) {
	if len(buf) < recordHeaderSize {
		return nil, 0, ErrRecordTooShort
	}

	r := &Record{
		LSN:     binary.LittleEndian.Uint64(buf[0:8]),
		TxID:    binary.LittleEndian.Uint64(buf[8:16]),
		Kind:    Kind(buf[16]),
		BlockID: block.ID(binary.LittleEndian.Uint64(buf[17:25])),
	}
	dataLen := int(binary.LittleEndian.Uint32(buf[25:29]))
	storedCRC := binary.LittleEndian.Uint32(buf[29:33])

	total := recordHeaderSize + dataLen
	if len(buf) < total {
		return nil, 0, ErrRecordTooShort
	}

	data := buf[recordHeaderSize:total]
	crc := crc32.ChecksumIEEE(buf[:recordHeaderSize-4])
	crc = crc32.Update(crc, crc32.IEEETable, data)
	if crc != storedCRC {
		return nil, 0, ErrChecksum
	}

	if dataLen > 0 {
		plain := make([]byte, dataLen)
		copy(plain, data)
		if dec != nil {
			decoded, err := dec(plain)
			if err != nil {
				return nil, 0, err
			}
			plain = decoded
		}
		r.Data = plain
	}

	return r, total, nil
}
