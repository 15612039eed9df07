package exec

import (
	"testing"

	"coredb/internal/plan"
)

func TestDeleteRemovesRowAndIndexEntry(t *testing.T) {
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
	})
	if err := txns.Commit(tx); err != nil {
		t.Fatalf("Commit seed: %v", err)
	}

	tx2 := mustBegin(t, txns)
	ctx2 := &Context{Cat: cat, Txns: txns, Tx: tx2}
	source := NewSeqScan(ctx2, &plan.ScanPlan{
		Table:    "widgets",
		Residual: []plan.Cond{{Col: "id", Op: plan.OpEq, Value: int64(1)}},
	})
	del := NewDelete(ctx2, "widgets", source)
	deleted := drainAll(t, del)
	if len(deleted) != 1 {
		t.Fatalf("got %d deleted rows, want 1", len(deleted))
	}
	if err := txns.Commit(tx2); err != nil {
		t.Fatalf("Commit delete: %v", err)
	}

	tx3 := mustBegin(t, txns)
	ctx3 := &Context{Cat: cat, Txns: txns, Tx: tx3}
	remaining := drainAll(t, NewSeqScan(ctx3, &plan.ScanPlan{Table: "widgets"}))
	if len(remaining) != 1 {
		t.Fatalf("got %d remaining rows, want 1", len(remaining))
	}
	is := NewIndexScan(ctx3, &plan.ScanPlan{
		Table: "widgets", UseIndex: true, IndexCols: []string{"id"},
		Conds: []plan.Cond{{Col: "id", Op: plan.OpEq, Value: int64(1)}},
	})
	gone := drainAll(t, is)
	if len(gone) != 0 {
		t.Fatalf("deleted row's index entry should be gone, found %d", len(gone))
	}
	txns.Commit(tx3)
}

func TestDeleteAbortRestoresRow(t *testing.T) {
	cat, txns := newTestEngine(t)
	if err := cat.CreateTable("widgets", widgetsCols()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	tx := mustBegin(t, txns)
	ctx := &Context{Cat: cat, Txns: txns, Tx: tx}
	seedWidgets(t, ctx, [][3]any{{int64(1), "bolt", 1.5}})
	if err := txns.Commit(tx); err != nil {
		t.Fatalf("Commit seed: %v", err)
	}

	tx2 := mustBegin(t, txns)
	ctx2 := &Context{Cat: cat, Txns: txns, Tx: tx2}
	source := NewSeqScan(ctx2, &plan.ScanPlan{Table: "widgets"})
	del := NewDelete(ctx2, "widgets", source)
	if err := del.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := del.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := txns.Abort(tx2); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	tx3 := mustBegin(t, txns)
	ctx3 := &Context{Cat: cat, Txns: txns, Tx: tx3}
	rows := drainAll(t, NewSeqScan(ctx3, &plan.ScanPlan{Table: "widgets"}))
	if len(rows) != 1 {
		t.Fatalf("aborted delete should have restored the row, got %d rows", len(rows))
	}
	txns.Commit(tx3)
}
