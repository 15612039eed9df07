package exec

import (
	"testing"

	"coredb/internal/plan"
)

func TestIndexScanEqualityPrefix(t *testing.T) {
	cat, txns := newTestEngine(t)
	if err := cat.CreateTable("widgets", widgetsCols()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := cat.CreateIndex("widgets", []string{"id"}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	tx := mustBegin(t, txns)
	ctx := &Context{Cat: cat, Txns: txns, Tx: tx}
	seedWidgets(t, ctx, [][3]any{
		{int64(1), "bolt", 1.5},
		{int64(2), "nut", 2.5},
		{int64(3), "screw", 3.5},
	})

	is := NewIndexScan(ctx, &plan.ScanPlan{
		Table:     "widgets",
		UseIndex:  true,
		IndexCols: []string{"id"},
		Conds:     []plan.Cond{{Col: "id", Op: plan.OpEq, Value: int64(2)}},
	})
	rows := drainAll(t, is)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	name, _ := rows[0].Get("name")
	if name != "nut" {
		t.Fatalf("got %v, want nut", name)
	}
	txns.Commit(tx)
}

func TestIndexScanRangeBound(t *testing.T) {
	cat, txns := newTestEngine(t)
	if err := cat.CreateTable("widgets", widgetsCols()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := cat.CreateIndex("widgets", []string{"id"}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	tx := mustBegin(t, txns)
	ctx := &Context{Cat: cat, Txns: txns, Tx: tx}
	seedWidgets(t, ctx, [][3]any{
		{int64(1), "bolt", 1.5},
		{int64(2), "nut", 2.5},
		{int64(3), "screw", 3.5},
		{int64(4), "washer", 4.5},
	})

	rangeCond := plan.Cond{Col: "id", Op: plan.OpGe, Value: int64(2)}
	is := NewIndexScan(ctx, &plan.ScanPlan{
		Table:     "widgets",
		UseIndex:  true,
		IndexCols: []string{"id"},
		Range:     &rangeCond,
		Residual:  []plan.Cond{{Col: "id", Op: plan.OpGe, Value: int64(2)}},
	})
	rows := drainAll(t, is)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	txns.Commit(tx)
}
