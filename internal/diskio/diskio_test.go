package diskio

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestCreateFileRefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.dat")
	fh, err := CreateFile(path)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	defer fh.CloseFile()
	if _, err := CreateFile(path); err == nil {
		t.Fatalf("expected an error creating a file that already exists")
	}
}

func TestOpenFileMissingFails(t *testing.T) {
	if _, err := OpenFile(filepath.Join(t.TempDir(), "missing.dat")); err == nil {
		t.Fatalf("expected an error opening a file that does not exist")
	}
}

func TestAllocateWriteReadPageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.dat")
	fh, err := CreateFile(path)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	defer fh.CloseFile()

	pageNo, err := fh.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	if pageNo != 0 {
		t.Fatalf("first allocated page = %d, want 0", pageNo)
	}

	want := bytes.Repeat([]byte{0xAB}, PageSize)
	if err := fh.WritePage(pageNo, want); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	got := make([]byte, PageSize)
	if err := fh.ReadPage(pageNo, got); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("ReadPage did not round-trip WritePage's bytes")
	}
}

func TestNumPagesTracksAllocations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.dat")
	fh, err := CreateFile(path)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	defer fh.CloseFile()

	for i := 0; i < 3; i++ {
		if _, err := fh.AllocatePage(); err != nil {
			t.Fatalf("AllocatePage: %v", err)
		}
	}
	if fh.NumPages() != 3 {
		t.Fatalf("NumPages = %d, want 3", fh.NumPages())
	}
}

func TestOpenFileRecomputesNextPageFromSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.dat")
	fh, err := CreateFile(path)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if _, err := fh.AllocatePage(); err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	if _, err := fh.AllocatePage(); err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	if err := fh.CloseFile(); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}

	reopened, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer reopened.CloseFile()
	if reopened.NumPages() != 2 {
		t.Fatalf("NumPages after reopen = %d, want 2", reopened.NumPages())
	}
}

func TestCloseFileTwiceFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.dat")
	fh, err := CreateFile(path)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := fh.CloseFile(); err != nil {
		t.Fatalf("first CloseFile: %v", err)
	}
	if err := fh.CloseFile(); err == nil {
		t.Fatalf("expected an error closing an already-closed file")
	}
}

func TestOperationsFailOnClosedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.dat")
	fh, err := CreateFile(path)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := fh.CloseFile(); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
	if _, err := fh.AllocatePage(); err == nil {
		t.Fatalf("expected an error allocating on a closed file")
	}
	if err := fh.WritePage(0, make([]byte, PageSize)); err == nil {
		t.Fatalf("expected an error writing to a closed file")
	}
	if err := fh.ReadPage(0, make([]byte, PageSize)); err == nil {
		t.Fatalf("expected an error reading a closed file")
	}
}

func TestAppendLogReturnsGrowingOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.log")
	fh, err := CreateFile(path)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	defer fh.CloseFile()

	off1, err := fh.AppendLog([]byte("first"))
	if err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	if off1 != 0 {
		t.Fatalf("first offset = %d, want 0", off1)
	}
	off2, err := fh.AppendLog([]byte("second"))
	if err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	if off2 != int64(len("first")) {
		t.Fatalf("second offset = %d, want %d", off2, len("first"))
	}

	buf := make([]byte, len("first"))
	n, err := fh.ReadLog(buf, off1)
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	if n != len("first") || string(buf) != "first" {
		t.Fatalf("ReadLog = %q, want %q", buf[:n], "first")
	}
}

func TestDestroyFileRemovesIt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.dat")
	fh, err := CreateFile(path)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := fh.CloseFile(); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
	if err := DestroyFile(path); err != nil {
		t.Fatalf("DestroyFile: %v", err)
	}
	if _, err := OpenFile(path); err == nil {
		t.Fatalf("expected an error opening a destroyed file")
	}
}
