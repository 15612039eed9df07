package buffer

import (
	"os"
	"path/filepath"
	"testing"

	"coredb/internal/diskio"
)

func tempFile(t *testing.T) (*diskio.FileHandle, uint32) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "t.dat")
	fh, err := diskio.CreateFile(path)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	t.Cleanup(func() { fh.CloseFile(); os.Remove(path) })
	return fh, 1
}

func TestPoolNewFetchUnpin(t *testing.T) {
	fh, fileID := tempFile(t)
	p := New(4)
	p.RegisterFile(fileID, fh)

	f, pageNo, err := p.NewPage(fileID)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	f.Lock()
	copy(f.Data[8:], []byte("hello"))
	f.Unlock()
	if err := p.UnpinPage(PageID{fileID, pageNo}, true); err != nil {
		t.Fatalf("UnpinPage: %v", err)
	}
	if err := p.FlushPage(PageID{fileID, pageNo}); err != nil {
		t.Fatalf("FlushPage: %v", err)
	}

	got, err := p.FetchPage(PageID{fileID, pageNo})
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	got.RLock()
	data := string(got.Data[8:13])
	got.RUnlock()
	if data != "hello" {
		t.Fatalf("got %q, want hello", data)
	}
	p.UnpinPage(PageID{fileID, pageNo}, false)
}

func TestPoolEvictsWhenFull(t *testing.T) {
	fh, fileID := tempFile(t)
	p := New(2)
	p.RegisterFile(fileID, fh)

	var pages []uint32
	for i := 0; i < 2; i++ {
		_, pageNo, err := p.NewPage(fileID)
		if err != nil {
			t.Fatalf("NewPage: %v", err)
		}
		pages = append(pages, pageNo)
		p.UnpinPage(PageID{fileID, pageNo}, false)
	}

	// Pool is full but both pages are unpinned, so a third NewPage should
	// evict one via the replacer instead of failing.
	_, _, err := p.NewPage(fileID)
	if err != nil {
		t.Fatalf("NewPage after eviction: %v", err)
	}
}

func TestPoolRefusesToDeletePinnedPage(t *testing.T) {
	fh, fileID := tempFile(t)
	p := New(4)
	p.RegisterFile(fileID, fh)

	_, pageNo, _ := p.NewPage(fileID)
	if err := p.DeletePage(PageID{fileID, pageNo}); err == nil {
		t.Fatalf("expected error deleting a pinned page")
	}
}

func TestStatsString(t *testing.T) {
	fh, fileID := tempFile(t)
	p := New(4)
	p.RegisterFile(fileID, fh)
	p.NewPage(fileID)
	s := p.Stats()
	if s.Resident != 1 || s.Pinned != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if s.String() == "" {
		t.Fatalf("expected non-empty stats string")
	}
}
