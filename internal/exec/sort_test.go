package exec

import (
	"testing"

	"coredb/internal/plan"
	"coredb/internal/types"
)

func TestSortOrdersByMultipleKeys(t *testing.T) {
	cols := []string{"category", "price"}
	src := &sliceIterator{
		cols: cols,
		rows: []types.Row{
			rowOf(cols, "bolt", 3.0),
			rowOf(cols, "bolt", 1.0),
			rowOf(cols, "nut", 2.0),
		},
	}
	s := NewSort(src, []plan.OrderKey{
		{Col: "category", Descending: false},
		{Col: "price", Descending: true},
	})
	rows := drainAll(t, s)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	want := []float64{3.0, 1.0, 2.0}
	for i, w := range want {
		price, _ := rows[i].Get("price")
		if price != w {
			t.Fatalf("row %d price = %v, want %v", i, price, w)
		}
	}
}

func TestSortStableOnEqualKeys(t *testing.T) {
	cols := []string{"id", "tag"}
	src := &sliceIterator{
		cols: cols,
		rows: []types.Row{
			rowOf(cols, int64(1), "a"),
			rowOf(cols, int64(1), "b"),
			rowOf(cols, int64(1), "c"),
		},
	}
	s := NewSort(src, []plan.OrderKey{{Col: "id"}})
	rows := drainAll(t, s)
	want := []string{"a", "b", "c"}
	for i, w := range want {
		tag, _ := rows[i].Get("tag")
		if tag != w {
			t.Fatalf("stable sort broke original order: row %d tag = %v, want %v", i, tag, w)
		}
	}
}
