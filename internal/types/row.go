package types

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Row is an in-memory tuple, grounded on types.Row in the teacher: a plain
// column-name -> value map. Values are one of int64, float64, string
// (covers both ColTypeString and the canonical 19-byte ColTypeDatetime
// form), matching ColType's closed set.
type Row struct {
	Values map[string]any
}

func NewRow() Row { return Row{Values: make(map[string]any)} }

func (r Row) Set(column string, value any) { r.Values[strings.ToLower(column)] = value }
func (r Row) Get(column string) (any, bool) {
	v, ok := r.Values[strings.ToLower(column)]
	return v, ok
}

func (r Row) Clone() Row {
	out := make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		out[k] = v
	}
	return Row{Values: out}
}

// Encode serializes r into tab's fixed-width record layout, in column
// declaration order, per ColMeta.Offset.
func Encode(tab TabMeta, r Row) ([]byte, error) {
	buf := make([]byte, tab.RecordSize)
	for _, col := range tab.Cols {
		v, ok := r.Get(col.Name)
		if !ok {
			return nil, fmt.Errorf("types: row missing column %q", col.Name)
		}
		width := col.Type.FixedWidth(col.Len)
		dst := buf[col.Offset : col.Offset+width]
		if err := encodeValue(col, v, dst); err != nil {
			return nil, fmt.Errorf("types: column %q: %w", col.Name, err)
		}
	}
	return buf, nil
}

func encodeValue(col ColMeta, v any, dst []byte) error {
	switch col.Type {
	case ColTypeInt:
		n, err := asInt(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(dst, uint32(int32(n)))
	case ColTypeBigInt:
		n, err := asInt(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(dst, uint64(n))
	case ColTypeFloat:
		f, err := asFloat(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(dst, math.Float64bits(f))
	case ColTypeString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		if len(s) > len(dst) {
			return fmt.Errorf("value exceeds declared length %d", len(dst))
		}
		for i := range dst {
			dst[i] = 0
		}
		copy(dst, s)
	case ColTypeDatetime:
		s, ok := v.(string)
		if !ok || len(s) != 19 {
			return fmt.Errorf("expected 19-byte canonical datetime, got %v", v)
		}
		copy(dst, s)
	default:
		return fmt.Errorf("unknown column type %v", col.Type)
	}
	return nil
}

// MinSentinel and MaxSentinel return col's fixed-width encoding of its
// type's smallest/largest representable value, used by IndexScan to fill
// the index columns a WHERE clause leaves unconstrained when building a
// composite low/high bound (spec §4.11).
func MinSentinel(col ColMeta) []byte {
	switch col.Type {
	case ColTypeInt:
		return encodeOrZero(col, int64(math.MinInt32))
	case ColTypeBigInt:
		return encodeOrZero(col, int64(math.MinInt64))
	case ColTypeFloat:
		return encodeOrZero(col, -math.MaxFloat64)
	default: // ColTypeString, ColTypeDatetime
		return make([]byte, col.Type.FixedWidth(col.Len))
	}
}

func MaxSentinel(col ColMeta) []byte {
	switch col.Type {
	case ColTypeInt:
		return encodeOrZero(col, int64(math.MaxInt32))
	case ColTypeBigInt:
		return encodeOrZero(col, int64(math.MaxInt64))
	case ColTypeFloat:
		return encodeOrZero(col, math.MaxFloat64)
	default: // ColTypeString, ColTypeDatetime
		dst := make([]byte, col.Type.FixedWidth(col.Len))
		for i := range dst {
			dst[i] = 0xFF
		}
		return dst
	}
}

func encodeOrZero(col ColMeta, v any) []byte {
	b, err := EncodeColumn(col, v)
	if err != nil {
		return make([]byte, col.Type.FixedWidth(col.Len))
	}
	return b
}

// EncodeColumn serializes a single value into col's fixed-width on-disk
// form, the same per-column encoding Encode uses -- lets callers build a
// composite index key (or a partial low/high bound) straight from
// WHERE-clause literals without assembling a full Row first.
func EncodeColumn(col ColMeta, v any) ([]byte, error) {
	dst := make([]byte, col.Type.FixedWidth(col.Len))
	if err := encodeValue(col, v, dst); err != nil {
		return nil, fmt.Errorf("types: column %q: %w", col.Name, err)
	}
	return dst, nil
}

func asInt(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected float, got %T", v)
	}
}

// Decode parses a fixed-width record (as produced by Encode) back into a
// Row using tab's column layout.
func Decode(tab TabMeta, rec []byte) Row {
	r := NewRow()
	for _, col := range tab.Cols {
		width := col.Type.FixedWidth(col.Len)
		src := rec[col.Offset : col.Offset+width]
		r.Set(col.Name, decodeValue(col, src))
	}
	return r
}

func decodeValue(col ColMeta, src []byte) any {
	switch col.Type {
	case ColTypeInt:
		return int64(int32(binary.LittleEndian.Uint32(src)))
	case ColTypeBigInt:
		return int64(binary.LittleEndian.Uint64(src))
	case ColTypeFloat:
		return math.Float64frombits(binary.LittleEndian.Uint64(src))
	case ColTypeString:
		end := 0
		for end < len(src) && src[end] != 0 {
			end++
		}
		return string(src[:end])
	case ColTypeDatetime:
		return string(src)
	default:
		return nil
	}
}
