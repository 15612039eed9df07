package wal

import (
	"path/filepath"
	"testing"
)

func TestAppendFlushScanRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coredb.log")
	m, err := Open(path, 64*1024)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	lsn1 := m.Append(Record{Type: TypeBegin, TxnID: 1})
	lsn2 := m.Append(Record{Type: TypeInsert, TxnID: 1, PrevLSN: lsn1, Payload: []byte("row-bytes")})
	lsn3 := m.Append(Record{Type: TypeCommit, TxnID: 1, PrevLSN: lsn2})
	if err := m.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if m.PersistentLSN() != lsn3 {
		t.Fatalf("PersistentLSN = %d, want %d", m.PersistentLSN(), lsn3)
	}

	var got []Record
	if err := m.Scan(func(r Record, _ int64) error {
		got = append(got, r)
		return nil
	}); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("scanned %d records, want 3", len(got))
	}
	if got[1].Type != TypeInsert || string(got[1].Payload) != "row-bytes" {
		t.Fatalf("record 1 = %+v", got[1])
	}
	if got[2].PrevLSN != lsn2 {
		t.Fatalf("commit PrevLSN = %d, want %d", got[2].PrevLSN, lsn2)
	}
}

func TestAppendAutoFlushesPastCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coredb.log")
	m, err := Open(path, 1) // flush after essentially every record
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	lsn := m.Append(Record{Type: TypeBegin, TxnID: 7})
	if m.PersistentLSN() != lsn {
		t.Fatalf("expected auto-flush to make LSN %d durable immediately", lsn)
	}
}
