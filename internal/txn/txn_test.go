package txn

import (
	"path/filepath"
	"testing"

	"coredb/internal/buffer"
	"coredb/internal/catalog"
	"coredb/internal/lock"
	"coredb/internal/types"
	"coredb/internal/wal"
)

func newTestHarness(t *testing.T) (*Manager, *catalog.Catalog, *wal.Manager) {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "db")
	if err := catalog.CreateDB(root); err != nil {
		t.Fatalf("CreateDB: %v", err)
	}

	pool := buffer.New(32)
	walMgr, err := wal.Open(filepath.Join(dir, "wal.log"), 4096)
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

	locks := lock.New()
	mgr := New(walMgr, locks, cat)
	return mgr, cat, walMgr
}

func insertRow(t *testing.T, cat *catalog.Catalog, mgr *Manager, tx *Transaction, id int32, name string) types.Rid {
	t.Helper()
	tab, hf, err := cat.Table("widgets")
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
	tableID, err := cat.TableID("widgets")
	if err != nil {
		t.Fatalf("TableID: %v", err)
	}
	if err := mgr.LockTable(tx, tableID, lock.IX); err != nil {
		t.Fatalf("LockTable: %v", err)
	}
	rid, err := hf.Insert(rec)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := mgr.LogInsert(tx, "widgets", rid, rec); err != nil {
		t.Fatalf("LogInsert: %v", err)
	}
	return rid
}

func TestCommitPersistsAndReleasesLocks(t *testing.T) {
	mgr, cat, _ := newTestHarness(t)

	tx, err := mgr.Begin(nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	rid := insertRow(t, cat, mgr, tx, 1, "widget")
	if err := mgr.Commit(tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	_, hf, err := cat.Table("widgets")
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if _, err := hf.Fetch(rid); err != nil {
		t.Fatalf("row should survive commit, fetch failed: %v", err)
	}
	if _, ok := mgr.Active(tx.ID); ok {
		t.Fatalf("committed transaction should no longer be active")
	}
}

func TestAbortRollsBackInsert(t *testing.T) {
	mgr, cat, _ := newTestHarness(t)

	tx, err := mgr.Begin(nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	rid := insertRow(t, cat, mgr, tx, 2, "gizmo")
	if err := mgr.Abort(tx); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	_, hf, err := cat.Table("widgets")
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if _, err := hf.Fetch(rid); err == nil {
		t.Fatalf("row should have been rolled back by abort")
	}
}

func TestBeginReturnsExistingTransaction(t *testing.T) {
	mgr, _, _ := newTestHarness(t)
	tx, err := mgr.Begin(nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	again, err := mgr.Begin(tx)
	if err != nil {
		t.Fatalf("Begin(existing): %v", err)
	}
	if again != tx {
		t.Fatalf("Begin(existing) should return the same transaction")
	}
}
