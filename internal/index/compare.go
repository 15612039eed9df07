package index

import (
	"bytes"
	"encoding/binary"
	"math"

	"coredb/internal/types"
)

// ColSpec describes one column's contribution to a composite key, enough
// to compare and encode it without depending on internal/catalog (avoids
// an import cycle: catalog builds a Comparator from TabMeta and hands it
// here).
type ColSpec struct {
	Type types.ColType
	Len  int // only meaningful for ColTypeString
}

// NewComparator builds the per-type, column-by-column comparator spec
// §4.5 calls for: native order for numeric types, byte-lexicographic for
// strings, canonical-ASCII order for datetimes (which is also just
// byte-lexicographic once the value is in its fixed 19-byte form).
func NewComparator(cols []ColSpec) Comparator {
	return func(a, b []byte) int {
		offset := 0
		for _, c := range cols {
			w := c.Type.FixedWidth(c.Len)
			ca, cb := a[offset:offset+w], b[offset:offset+w]
			if cmp := compareColumn(c.Type, ca, cb); cmp != 0 {
				return cmp
			}
			offset += w
		}
		return 0
	}
}

func compareColumn(t types.ColType, a, b []byte) int {
	switch t {
	case types.ColTypeInt:
		va := int32(binary.LittleEndian.Uint32(a))
		vb := int32(binary.LittleEndian.Uint32(b))
		return cmpInt(int64(va), int64(vb))
	case types.ColTypeBigInt:
		va := int64(binary.LittleEndian.Uint64(a))
		vb := int64(binary.LittleEndian.Uint64(b))
		return cmpInt(va, vb)
	case types.ColTypeFloat:
		va := math.Float64frombits(binary.LittleEndian.Uint64(a))
		vb := math.Float64frombits(binary.LittleEndian.Uint64(b))
		switch {
		case va < vb:
			return -1
		case va > vb:
			return 1
		default:
			return 0
		}
	case types.ColTypeString, types.ColTypeDatetime:
		return bytes.Compare(a, b)
	default:
		return bytes.Compare(a, b)
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
