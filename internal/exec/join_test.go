package exec

import (
	"testing"

	"coredb/internal/types"
)

type sliceIterator struct {
	rows []types.Row
	cols []string
	pos  int
}

func (s *sliceIterator) Open() error { s.pos = 0; return nil }
func (s *sliceIterator) Next() (Tuple, bool, error) {
	if s.pos >= len(s.rows) {
		return Tuple{}, false, nil
	}
	t := Tuple{Row: s.rows[s.pos]}
	s.pos++
	return t, true, nil
}
func (s *sliceIterator) Close() error   { return nil }
func (s *sliceIterator) Cols() []string { return s.cols }

func rowOf(cols []string, vals ...any) types.Row {
	r := types.NewRow()
	for i, c := range cols {
		r.Set(c, vals[i])
	}
	return r
}

func TestNestedLoopJoinMergesMatchingRows(t *testing.T) {
	left := &sliceIterator{
		cols: []string{"id", "name"},
		rows: []types.Row{
			rowOf([]string{"id", "name"}, int64(1), "bolt"),
			rowOf([]string{"id", "name"}, int64(2), "nut"),
		},
	}
	right := &sliceIterator{
		cols: []string{"widget_id", "qty"},
		rows: []types.Row{
			rowOf([]string{"widget_id", "qty"}, int64(2), int64(5)),
			rowOf([]string{"widget_id", "qty"}, int64(3), int64(7)),
		},
	}
	j := NewNestedLoopJoin(left, right, "id", "widget_id")
	rows := drainAll(t, j)
	if len(rows) != 1 {
		t.Fatalf("got %d joined rows, want 1", len(rows))
	}
	name, _ := rows[0].Get("name")
	qty, _ := rows[0].Get("qty")
	if name != "nut" || qty != int64(5) {
		t.Fatalf("joined row = name=%v qty=%v, want nut/5", name, qty)
	}
}

func TestNestedLoopJoinMatchesEveryBufferedLeftRow(t *testing.T) {
	// Both left rows fit in one buffer fill (joinBufferSize is large), so
	// this exercises the single-fill path only: the one right row must be
	// joined against each buffered left row.
	left := &sliceIterator{
		cols: []string{"id"},
		rows: []types.Row{
			rowOf([]string{"id"}, int64(1)),
			rowOf([]string{"id"}, int64(1)),
		},
	}
	right := &sliceIterator{
		cols: []string{"ref"},
		rows: []types.Row{
			rowOf([]string{"ref"}, int64(1)),
		},
	}
	j := NewNestedLoopJoin(left, right, "id", "ref")
	rows := drainAll(t, j)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 (each left row matches the one right row)", len(rows))
	}
}

func TestNestedLoopJoinNoMatches(t *testing.T) {
	left := &sliceIterator{cols: []string{"id"}, rows: []types.Row{rowOf([]string{"id"}, int64(1))}}
	right := &sliceIterator{cols: []string{"ref"}, rows: []types.Row{rowOf([]string{"ref"}, int64(99))}}
	j := NewNestedLoopJoin(left, right, "id", "ref")
	rows := drainAll(t, j)
	if len(rows) != 0 {
		t.Fatalf("got %d rows, want 0", len(rows))
	}
}
