package exec

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

// newTestEngine builds a fully wired catalog/txn manager pair over a fresh
// temp-dir database, the same subsystem set cmd/coredbd assembles at
// startup, so executor tests exercise real locking and logging instead of
// stand-ins.
func newTestEngine(t *testing.T) (*catalog.Catalog, *txn.Manager) {
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
	t.Cleanup(func() { cat.CloseDB() })
	txns := txn.New(walMgr, lock.New(), cat)
	return cat, txns
}

func widgetsCols() []types.ColMeta {
	return []types.ColMeta{
		{Name: "id", Type: types.ColTypeInt},
		{Name: "name", Type: types.ColTypeString, Len: 16},
		{Name: "price", Type: types.ColTypeFloat},
	}
}

func mustBegin(t *testing.T, txns *txn.Manager) *txn.Transaction {
	t.Helper()
	tx, err := txns.Begin(nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return tx
}

func drainAll(t *testing.T, it Iterator) []types.Row {
	t.Helper()
	if err := it.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer it.Close()
	var rows []types.Row
	for {
		tup, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		rows = append(rows, tup.Row)
	}
	return rows
}
