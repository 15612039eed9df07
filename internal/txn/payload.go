package txn

import (
	"encoding/binary"

	"coredb/internal/types"
)

// EncodePayload packs a write-record's physiological payload: the table it
// targets, the rid it touched, and whichever of before/after-image applies
// to the operation (before is empty for INSERT, after is empty for
// DELETE). Grounded on the teacher's InsertedRow/UpdatedRow bookkeeping
// (table + row pointer + before-image), flattened into WAL record bytes.
// Exported so the recovery manager's redo pass can decode the
// same records this package wrote.
func EncodePayload(table string, rid types.Rid, before, after []byte) []byte {
	buf := make([]byte, 0, 4+len(table)+8+4+len(before)+4+len(after))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(table)))
	buf = append(buf, table...)
	buf = binary.LittleEndian.AppendUint32(buf, rid.PageNo)
	buf = binary.LittleEndian.AppendUint32(buf, rid.SlotNo)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(before)))
	buf = append(buf, before...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(after)))
	buf = append(buf, after...)
	return buf
}

// DecodePayload is EncodePayload's inverse, used by the recovery manager
// replaying the log.
func DecodePayload(buf []byte) (table string, rid types.Rid, before, after []byte) {
	n := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	table = string(buf[:n])
	buf = buf[n:]
	rid.PageNo = binary.LittleEndian.Uint32(buf)
	rid.SlotNo = binary.LittleEndian.Uint32(buf[4:])
	buf = buf[8:]
	blen := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	before = buf[:blen]
	buf = buf[blen:]
	alen := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	after = buf[:alen]
	return table, rid, before, after
}
