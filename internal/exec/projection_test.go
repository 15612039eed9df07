package exec

import (
	"testing"

	"coredb/internal/plan"
	"coredb/internal/types"
)

func widgetsSource() *sliceIterator {
	cols := []string{"id", "name", "price"}
	return &sliceIterator{
		cols: cols,
		rows: []types.Row{
			rowOf(cols, int64(1), "bolt", 1.5),
			rowOf(cols, int64(2), "nut", 2.5),
			rowOf(cols, int64(3), "screw", 3.0),
		},
	}
}

func TestProjectionSelectsColumnSubset(t *testing.T) {
	p := NewProjection(widgetsSource(), []string{"name"}, nil, -1)
	rows := drainAll(t, p)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if _, ok := rows[0].Get("id"); ok {
		t.Fatalf("projected row should not carry the id column")
	}
	if name, _ := rows[0].Get("name"); name != "bolt" {
		t.Fatalf("got %v, want bolt", name)
	}
}

func TestProjectionStarPassesThrough(t *testing.T) {
	p := NewProjection(widgetsSource(), []string{"*"}, nil, -1)
	rows := drainAll(t, p)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if _, ok := rows[0].Get("price"); !ok {
		t.Fatalf("star projection should keep every column")
	}
}

func TestProjectionLimit(t *testing.T) {
	p := NewProjection(widgetsSource(), []string{"*"}, nil, 2)
	rows := drainAll(t, p)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
}

func TestProjectionSumAndCount(t *testing.T) {
	p := NewProjection(widgetsSource(), nil, []plan.AggSpec{
		{Func: plan.AggSum, Col: "price"},
		{Func: plan.AggCountStar},
	}, -1)
	rows := drainAll(t, p)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1 (aggregates collapse to one row)", len(rows))
	}
	sum, _ := rows[0].Get("sum_price")
	count, _ := rows[0].Get("count")
	if sum != 7.0 {
		t.Fatalf("sum_price = %v, want 7.0", sum)
	}
	if count != int64(3) {
		t.Fatalf("count = %v, want 3", count)
	}
}

func TestProjectionMinMax(t *testing.T) {
	p := NewProjection(widgetsSource(), nil, []plan.AggSpec{
		{Func: plan.AggMin, Col: "price"},
		{Func: plan.AggMax, Col: "price"},
	}, -1)
	rows := drainAll(t, p)
	min, _ := rows[0].Get("min_price")
	max, _ := rows[0].Get("max_price")
	if min != 1.5 || max != 3.0 {
		t.Fatalf("min/max = %v/%v, want 1.5/3.0", min, max)
	}
}

func TestProjectionAggOnEmptyInputStillEmitsOneRow(t *testing.T) {
	empty := &sliceIterator{cols: []string{"id"}}
	p := NewProjection(empty, nil, []plan.AggSpec{{Func: plan.AggCountStar}}, -1)
	rows := drainAll(t, p)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	count, _ := rows[0].Get("count")
	if count != int64(0) {
		t.Fatalf("count = %v, want 0", count)
	}
}
