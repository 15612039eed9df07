package recovery

import (
	"path/filepath"
	"testing"

	"coredb/internal/buffer"
	"coredb/internal/catalog"
	"coredb/internal/lock"
	"coredb/internal/txn"
	"coredb/internal/types"
	"coredb/internal/wal"
)

// newCrashedDB builds a catalog/heap over a freshly reopened WAL file --
// standing in for a restart after a crash, with the WAL file itself
// untouched. prep runs against the live WAL manager before it is closed
// and reopened, to append the records a crash would have left behind.
func newCrashedDB(t *testing.T, prep func(walMgr *wal.Manager, cat *catalog.Catalog)) (*catalog.Catalog, *txn.Manager, *Manager) {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "db")
	if err := catalog.CreateDB(root); err != nil {
		t.Fatalf("CreateDB: %v", err)
	}
	walPath := filepath.Join(dir, "wal.log")

	pool := buffer.New(32)
	walMgr, err := wal.Open(walPath, 4096)
	if err != nil {
		t.Fatalf("wal.Open: %v", err)
	}
	pool.SetWALSource(walMgr)
	cat, err := catalog.OpenDB(root, pool, walMgr)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	cols := []types.ColMeta{
		{Name: "id", Type: types.ColTypeInt},
		{Name: "name", Type: types.ColTypeString, Len: 16},
	}
	if err := cat.CreateTable("widgets", cols); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	prep(walMgr, cat)
	if err := walMgr.Close(); err != nil {
		t.Fatalf("Close wal: %v", err)
	}

	// Reopen everything fresh, as the real startup path would after a
	// crash, against the same on-disk files.
	pool2 := buffer.New(32)
	walMgr2, err := wal.Open(walPath, 4096)
	if err != nil {
		t.Fatalf("wal.Open (reopen): %v", err)
	}
	pool2.SetWALSource(walMgr2)
	cat2, err := catalog.OpenDB(root, pool2, walMgr2)
	if err != nil {
		t.Fatalf("OpenDB (reopen): %v", err)
	}
	locks := lock.New()
	txns := txn.New(walMgr2, locks, cat2)
	return cat2, txns, New(walMgr2, cat2, txns)
}

func rowBytes(t *testing.T, cat *catalog.Catalog, id int32, name string) []byte {
	t.Helper()
	tab, _, err := cat.Table("widgets")
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	row := types.NewRow()
	row.Set("id", id)
	row.Set("name", name)
	rec, err := types.Encode(tab, row)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return rec
}

func TestRedoReappliesCommittedInsertAfterCrash(t *testing.T) {
	rid := types.Rid{PageNo: 1, SlotNo: 0}
	var rec []byte

	cat, _, mgr := newCrashedDB(t, func(walMgr *wal.Manager, cat *catalog.Catalog) {
		rec = rowBytes(t, cat, 1, "widget")
		// The crash happened after the heap write and the WAL append+flush
		// for COMMIT, but the dirty heap page never made it to disk -- so
		// only the log, not the heap, reflects the insert.
		payload := txn.EncodePayload("widgets", rid, nil, rec)
		beginLSN := walMgr.Append(wal.Record{Type: wal.TypeBegin, TxnID: 1})
		insLSN := walMgr.Append(wal.Record{Type: wal.TypeInsert, TxnID: 1, PrevLSN: beginLSN, Payload: payload})
		walMgr.Append(wal.Record{Type: wal.TypeCommit, TxnID: 1, PrevLSN: insLSN})
		if err := walMgr.Flush(); err != nil {
			t.Fatalf("Flush: %v", err)
		}
	})

	if err := mgr.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	_, hf, err := cat.Table("widgets")
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	got, err := hf.Fetch(rid)
	if err != nil {
		t.Fatalf("row should have been redone, fetch failed: %v", err)
	}
	if string(got) != string(rec) {
		t.Fatalf("redone row = %q, want %q", got, rec)
	}
}

func TestUndoReversesUncommittedInsertLeftActive(t *testing.T) {
	rid := types.Rid{PageNo: 1, SlotNo: 0}

	cat, txns, mgr := newCrashedDB(t, func(walMgr *wal.Manager, cat *catalog.Catalog) {
		rec := rowBytes(t, cat, 2, "gizmo")
		payload := txn.EncodePayload("widgets", rid, nil, rec)
		beginLSN := walMgr.Append(wal.Record{Type: wal.TypeBegin, TxnID: 5})
		walMgr.Append(wal.Record{Type: wal.TypeInsert, TxnID: 5, PrevLSN: beginLSN, Payload: payload})
		// No COMMIT or ABORT: the crash happened mid-transaction.
		if err := walMgr.Flush(); err != nil {
			t.Fatalf("Flush: %v", err)
		}
	})

	if err := mgr.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	_, hf, err := cat.Table("widgets")
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if _, err := hf.Fetch(rid); err == nil {
		t.Fatalf("row from an uncommitted transaction should have been undone")
	}
	if _, ok := txns.Active(5); ok {
		t.Fatalf("transaction 5 should no longer be active after undo")
	}
}

func TestUndoLeavesCommittedTransactionApplied(t *testing.T) {
	rid := types.Rid{PageNo: 1, SlotNo: 0}
	var rec []byte

	cat, txns, mgr := newCrashedDB(t, func(walMgr *wal.Manager, cat *catalog.Catalog) {
		rec = rowBytes(t, cat, 3, "sprocket")
		payload := txn.EncodePayload("widgets", rid, nil, rec)
		beginLSN := walMgr.Append(wal.Record{Type: wal.TypeBegin, TxnID: 9})
		insLSN := walMgr.Append(wal.Record{Type: wal.TypeInsert, TxnID: 9, PrevLSN: beginLSN, Payload: payload})
		walMgr.Append(wal.Record{Type: wal.TypeCommit, TxnID: 9, PrevLSN: insLSN})
		if err := walMgr.Flush(); err != nil {
			t.Fatalf("Flush: %v", err)
		}
	})

	if err := mgr.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := txns.Active(9); ok {
		t.Fatalf("committed transaction should not remain active after recovery")
	}
	_, hf, err := cat.Table("widgets")
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	got, err := hf.Fetch(rid)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(got) != string(rec) {
		t.Fatalf("row = %q, want %q", got, rec)
	}
}
