package heap

import (
	"fmt"
	"path/filepath"
	"testing"

	"coredb/internal/buffer"
	"coredb/internal/dberr"
	"coredb/internal/types"
)

func newTestFile(t *testing.T, recordSize int) *File {
	t.Helper()
	pool := buffer.New(8)
	path := filepath.Join(t.TempDir(), "students.heap")
	f, err := Create(path, 1, recordSize, pool)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return f
}

func fixed(s string, width int) []byte {
	b := make([]byte, width)
	copy(b, s)
	return b
}

func TestInsertFetchDelete(t *testing.T) {
	const width = 16
	f := newTestFile(t, width)

	rows := []string{"Alice", "Bob", "Charlie", "Diana"}
	rids := make([]types.Rid, len(rows))
	for i, name := range rows {
		rid, err := f.Insert(fixed(name, width))
		if err != nil {
			t.Fatalf("Insert(%s): %v", name, err)
		}
		rids[i] = rid
	}

	for i, name := range rows {
		got, err := f.Fetch(rids[i])
		if err != nil {
			t.Fatalf("Fetch(%s): %v", name, err)
		}
		if string(got[:len(name)]) != name {
			t.Fatalf("Fetch(%s) = %q", name, got)
		}
	}

	victim := rids[1]
	if err := f.Delete(victim); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.Fetch(victim); dberr.CategoryOf(err) != dberr.CategoryStorage {
		t.Fatalf("Fetch after Delete should fail with a storage error, got %v", err)
	}

	// The freed slot should be reused by the next insert.
	rid, err := f.Insert(fixed("Eve", width))
	if err != nil {
		t.Fatalf("Insert(Eve): %v", err)
	}
	if rid != victim {
		t.Fatalf("expected reused slot %+v, got %+v", victim, rid)
	}
}

func TestScanVisitsEveryLiveRecord(t *testing.T) {
	const width = 8
	f := newTestFile(t, width)

	n := f.layout.maxSlots*2 + 3 // force at least three data pages
	for i := 0; i < n; i++ {
		if _, err := f.Insert(fixed(fmt.Sprintf("r%d", i), width)); err != nil {
			t.Fatalf("Insert #%d: %v", i, err)
		}
	}

	sc, err := NewScan(f)
	if err != nil {
		t.Fatalf("NewScan: %v", err)
	}
	seen := 0
	for {
		_, _, ok, err := sc.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		seen++
	}
	if seen != n {
		t.Fatalf("scan visited %d records, want %d", seen, n)
	}
}

func TestUpdateOverwritesInPlace(t *testing.T) {
	const width = 8
	f := newTestFile(t, width)

	rid, err := f.Insert(fixed("orig", width))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := f.Update(rid, fixed("newval", width)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := f.Fetch(rid)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got[:6]) != "newval" {
		t.Fatalf("Fetch after Update = %q", got)
	}
}
