package exec

import (
	"testing"

	"coredb/internal/dberr"
	"coredb/internal/plan"
)

func TestInsertWritesRowAndMaintainsIndex(t *testing.T) {
	cat, txns := newTestEngine(t)
	if err := cat.CreateTable("widgets", widgetsCols()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := cat.CreateIndex("widgets", []string{"id"}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	tx := mustBegin(t, txns)
	ctx := &Context{Cat: cat, Txns: txns, Tx: tx}
	ins := NewInsert(ctx, &plan.InsertPlan{Table: "widgets", Values: []any{int64(1), "bolt", 1.5}})
	tup, ok, err := ins.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	name, _ := tup.Row.Get("name")
	if name != "bolt" {
		t.Fatalf("got %v, want bolt", name)
	}
	if err := txns.Commit(tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2 := mustBegin(t, txns)
	ctx2 := &Context{Cat: cat, Txns: txns, Tx: tx2}
	is := NewIndexScan(ctx2, &plan.ScanPlan{
		Table: "widgets", UseIndex: true, IndexCols: []string{"id"},
		Conds: []plan.Cond{{Col: "id", Op: plan.OpEq, Value: int64(1)}},
	})
	rows := drainAll(t, is)
	if len(rows) != 1 {
		t.Fatalf("index should find the committed insert, got %d rows", len(rows))
	}
	txns.Commit(tx2)
}

func TestInsertDuplicateUniqueKeyFails(t *testing.T) {
	cat, txns := newTestEngine(t)
	if err := cat.CreateTable("widgets", widgetsCols()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := cat.CreateIndex("widgets", []string{"id"}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	tx := mustBegin(t, txns)
	ctx := &Context{Cat: cat, Txns: txns, Tx: tx}
	seedWidgets(t, ctx, [][3]any{{int64(1), "bolt", 1.5}})

	ins := NewInsert(ctx, &plan.InsertPlan{Table: "widgets", Values: []any{int64(1), "other", 9.9}})
	_, _, err := ins.Next()
	if err == nil {
		t.Fatalf("expected a unique-violation error on duplicate id")
	}
	if !dberr.IsUniqueViolation(err) {
		t.Fatalf("got %v, want a unique-violation error", err)
	}
}

func TestInsertRejectsIncompatibleType(t *testing.T) {
	cat, txns := newTestEngine(t)
	if err := cat.CreateTable("widgets", widgetsCols()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	tx := mustBegin(t, txns)
	ctx := &Context{Cat: cat, Txns: txns, Tx: tx}
	ins := NewInsert(ctx, &plan.InsertPlan{Table: "widgets", Values: []any{"not-an-int", "bolt", 1.5}})
	if _, _, err := ins.Next(); err == nil {
		t.Fatalf("expected an incompatible-types error")
	}
}
