// Package wal implements the log manager (spec §4.7): an append-only,
// LSN-ordered sequence of physiological log records backing the ARIES-style
// recovery manager. Grounded on wal_manager in the teacher: same record
// header shape and a CRC32 checksum (here over the whole header and
// payload), generalized from
// fixed 16 MiB rotating segments to one append-only diskio file (the spec
// does not call for segment rotation).
package wal

import (
	"encoding/binary"
	"hash/crc32"

	"coredb/internal/dberr"
)

// Type is the log record kind.
type Type uint8

const (
	TypeBegin Type = iota
	TypeCommit
	TypeAbort
	TypeInsert
	TypeDelete
	TypeUpdate
)

// headerSize is {Type(1), TotLen(4), LSN(8), TxnID(8), PrevLSN(8)}; a
// CRC32 of crcSize bytes trails the payload. Matches the teacher's
// RecordHeaderSize pattern but
// carrying the fields spec §3 names explicitly instead of an opaque blob.
const headerSize = 1 + 4 + 8 + 8 + 8
const crcSize = 4

// Record is one WAL entry. Payload holds the type-specific body: empty for
// BEGIN/COMMIT/ABORT, {Table, Rid, BeforeImage, AfterImage} for
// INSERT/DELETE/UPDATE with the image that does not apply left empty
// (before for INSERT, after for DELETE) — serialized by internal/txn,
// opaque to this package.
type Record struct {
	Type    Type
	LSN     uint64
	TxnID   uint64
	PrevLSN uint64 // 0 for this transaction's first record
	Payload []byte
}

// Encode serializes r to its on-disk byte form.
func (r Record) Encode() []byte {
	totLen := uint32(headerSize + len(r.Payload) + crcSize)
	buf := make([]byte, totLen)
	buf[0] = byte(r.Type)
	binary.LittleEndian.PutUint32(buf[1:5], totLen)
	binary.LittleEndian.PutUint64(buf[5:13], r.LSN)
	binary.LittleEndian.PutUint64(buf[13:21], r.TxnID)
	binary.LittleEndian.PutUint64(buf[21:29], r.PrevLSN)
	copy(buf[headerSize:], r.Payload)
	crc := crc32.ChecksumIEEE(buf[:headerSize+len(r.Payload)])
	binary.LittleEndian.PutUint32(buf[len(buf)-crcSize:], crc)
	return buf
}

// Decode parses a record starting at buf[0], returning the record and the
// number of bytes it occupied.
func Decode(buf []byte) (Record, int, error) {
	if len(buf) < headerSize+crcSize {
		return Record{}, 0, dberr.Unreachable("wal: truncated record header")
	}
	totLen := binary.LittleEndian.Uint32(buf[1:5])
	if int(totLen) > len(buf) {
		return Record{}, 0, dberr.Unreachable("wal: truncated record body")
	}
	body := buf[:totLen]
	crc := binary.LittleEndian.Uint32(body[totLen-crcSize:])
	if crc32.ChecksumIEEE(body[:totLen-crcSize]) != crc {
		return Record{}, 0, dberr.Unreachable("wal: CRC mismatch, log is corrupt")
	}
	r := Record{
		Type:    Type(body[0]),
		LSN:     binary.LittleEndian.Uint64(body[5:13]),
		TxnID:   binary.LittleEndian.Uint64(body[13:21]),
		PrevLSN: binary.LittleEndian.Uint64(body[21:29]),
	}
	r.Payload = make([]byte, totLen-crcSize-headerSize)
	copy(r.Payload, body[headerSize:totLen-crcSize])
	return r, int(totLen), nil
}
