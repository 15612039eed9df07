// Package types holds the value types shared across every layer of the
// engine: record/index identifiers, column/table metadata, and the column
// type enum used by the comparator and the row (de)serializer.
package types

// Rid identifies a single heap record: (page_no, slot_no) per spec §3.
type Rid struct {
	PageNo uint32
	SlotNo uint32
}

// Iid identifies a position inside a B+-tree leaf: (page_no, slot_no).
type Iid struct {
	PageNo uint32
	SlotNo uint32
}

// ColType is the closed set of column types the engine understands.
type ColType int

const (
	ColTypeInt ColType = iota
	ColTypeBigInt
	ColTypeFloat
	ColTypeString
	ColTypeDatetime
)

func (t ColType) String() string {
	switch t {
	case ColTypeInt:
		return "INT"
	case ColTypeBigInt:
		return "BIGINT"
	case ColTypeFloat:
		return "FLOAT"
	case ColTypeString:
		return "STRING"
	case ColTypeDatetime:
		return "DATETIME"
	default:
		return "UNKNOWN"
	}
}

// FixedWidth returns the on-disk width of a value of this type, given the
// declared length (only meaningful for ColTypeString).
func (t ColType) FixedWidth(declaredLen int) int {
	switch t {
	case ColTypeInt:
		return 4
	case ColTypeBigInt:
		return 8
	case ColTypeFloat:
		return 8
	case ColTypeDatetime:
		return 19 // canonical ASCII form, spec §3/§9
	case ColTypeString:
		return declaredLen
	default:
		return 0
	}
}

// ColMeta describes one column of a table.
type ColMeta struct {
	TabName   string
	Name      string
	Type      ColType
	Len       int // declared length; for strings, the byte width
	Offset    int // byte offset within a fixed-width record
	IndexFlag bool
}

// TabMeta describes one table: its columns and the indexes built over it.
type TabMeta struct {
	Name       string
	Cols       []ColMeta
	Indexes    []IndexMeta
	RecordSize int
}

// IndexMeta describes one composite-key index.
type IndexMeta struct {
	TabName   string
	ColTotLen int
	ColNum    int
	Cols      []string
}

// NewTabMeta lays out cols in order, assigning each a byte offset and
// computing the table's total fixed record width.
func NewTabMeta(name string, cols []ColMeta) TabMeta {
	offset := 0
	for i := range cols {
		cols[i].TabName = name
		cols[i].Offset = offset
		offset += cols[i].Type.FixedWidth(cols[i].Len)
	}
	return TabMeta{Name: name, Cols: cols, RecordSize: offset}
}

// ColByName returns the column metadata for name, case-insensitively.
func (t *TabMeta) ColByName(name string) (ColMeta, bool) {
	for _, c := range t.Cols {
		if equalFold(c.Name, name) {
			return c, true
		}
	}
	return ColMeta{}, false
}

// IndexFor returns the index metadata covering exactly the given columns,
// in order, if one exists.
func (t *TabMeta) IndexFor(cols []string) (IndexMeta, bool) {
	for _, idx := range t.Indexes {
		if len(idx.Cols) != len(cols) {
			continue
		}
		match := true
		for i := range cols {
			if !equalFold(idx.Cols[i], cols[i]) {
				match = false
				break
			}
		}
		if match {
			return idx, true
		}
	}
	return IndexMeta{}, false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
