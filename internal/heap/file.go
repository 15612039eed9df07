package heap

import (
	"fmt"
	"sync"

	"coredb/internal/buffer"
	"coredb/internal/dberr"
	"coredb/internal/diskio"
	"coredb/internal/types"
)

// Page 0 of every heap file is reserved as the header page, grounded on
// types.FileHeader in the teacher but repurposed to anchor the free list
// instead of a slot directory offset.
const headerPageNo uint32 = 0

// File is one table's record file: a page-organized collection of
// fixed-width slots, backed by the shared buffer pool. Grounded on
// HeapFile in the teacher, generalized to a fixed-width bitmap body.
type File struct {
	fileID uint32
	pool   *buffer.Pool
	fh     *diskio.FileHandle
	layout layout
	mu     sync.Mutex
}

// Create makes a fresh, empty heap file at path for a table whose records
// are recordSize bytes wide, and registers it with pool under fileID.
func Create(path string, fileID uint32, recordSize int, pool *buffer.Pool) (*File, error) {
	fh, err := diskio.CreateFile(path)
	if err != nil {
		return nil, err
	}
	pool.RegisterFile(fileID, fh)

	f := &File{fileID: fileID, pool: pool, fh: fh, layout: newLayout(recordSize)}
	frame, _, err := pool.NewPage(fileID)
	if err != nil {
		return nil, err
	}
	frame.Lock()
	setFirstFreePage(frame.Data, 0) // 0 = none; header page itself is never on the free list
	setHeaderNumPages(frame.Data, 0)
	frame.Unlock()
	if err := pool.UnpinPage(buffer.PageID{FileID: fileID, PageNo: headerPageNo}, true); err != nil {
		return nil, err
	}
	return f, nil
}

// Open reopens an existing heap file for a table whose records are
// recordSize bytes wide.
func Open(path string, fileID uint32, recordSize int, pool *buffer.Pool) (*File, error) {
	fh, err := diskio.OpenFile(path)
	if err != nil {
		return nil, err
	}
	pool.RegisterFile(fileID, fh)
	return &File{fileID: fileID, pool: pool, fh: fh, layout: newLayout(recordSize)}, nil
}

// Destroy removes the heap file from disk. The file must not be open.
func Destroy(path string) error {
	return diskio.DestroyFile(path)
}

// Close unregisters the file from the pool and closes the underlying file
// handle. It does not flush the file's dirty pages.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pool.UnregisterFile(f.fileID)
	return f.fh.CloseFile()
}

func setFirstFreePage(page []byte, v uint32) { setNextFreePageNo(page, v) }
func getFirstFreePage(page []byte) uint32    { return getNextFreePageNo(page) }
func setHeaderNumPages(page []byte, v uint32) { setNumRecords(page, v) }
func getHeaderNumPages(page []byte) uint32    { return getNumRecords(page) }

// Insert stores rec (already serialized, exactly the table's record
// width) and returns the Rid it was assigned.
func (f *File) Insert(rec []byte) (types.Rid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(rec) != f.layout.recordSize {
		return types.Rid{}, dberr.Unreachable(fmt.Sprintf("heap: record is %d bytes, want %d", len(rec), f.layout.recordSize))
	}

	pageNo, frame, err := f.acquireFreePageLocked()
	if err != nil {
		return types.Rid{}, err
	}

	frame.Lock()
	slotNo, ok := f.layout.firstFreeSlot(frame.Data)
	if !ok {
		frame.Unlock()
		f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: pageNo}, false)
		return types.Rid{}, dberr.Unreachable("heap: page reported free but has no free slot")
	}
	copy(f.layout.record(frame.Data, slotNo), rec)
	f.layout.setOccupied(frame.Data, slotNo, true)
	setNumRecords(frame.Data, getNumRecords(frame.Data)+1)
	full := !f.hasFreeSlotLocked(frame.Data)
	frame.Unlock()

	if full {
		if err := f.unlinkFromFreeListLocked(pageNo); err != nil {
			f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: pageNo}, true)
			return types.Rid{}, err
		}
	}
	if err := f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: pageNo}, true); err != nil {
		return types.Rid{}, err
	}
	return types.Rid{PageNo: pageNo, SlotNo: slotNo}, nil
}

func (f *File) hasFreeSlotLocked(page []byte) bool {
	_, ok := f.layout.firstFreeSlot(page)
	return ok
}

// acquireFreePageLocked returns a pinned page with at least one free slot,
// allocating a new page if the free list is empty. Callers hold f.mu.
func (f *File) acquireFreePageLocked() (uint32, *buffer.Frame, error) {
	header, err := f.pool.FetchPage(buffer.PageID{FileID: f.fileID, PageNo: headerPageNo})
	if err != nil {
		return 0, nil, err
	}
	header.RLock()
	firstFree := getFirstFreePage(header.Data)
	header.RUnlock()
	f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: headerPageNo}, false)

	if firstFree != 0 {
		frame, err := f.pool.FetchPage(buffer.PageID{FileID: f.fileID, PageNo: firstFree})
		if err != nil {
			return 0, nil, err
		}
		return firstFree, frame, nil
	}
	return f.allocatePageLocked()
}

// allocatePageLocked appends a fresh data page and links it onto the head
// of the free list. Callers hold f.mu.
func (f *File) allocatePageLocked() (uint32, *buffer.Frame, error) {
	frame, pageNo, err := f.pool.NewPage(f.fileID)
	if err != nil {
		return 0, nil, err
	}
	frame.Lock()
	initDataPage(frame.Data)
	frame.Unlock()

	header, err := f.pool.FetchPage(buffer.PageID{FileID: f.fileID, PageNo: headerPageNo})
	if err != nil {
		f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: pageNo}, true)
		return 0, nil, err
	}
	header.Lock()
	frame.Lock()
	setNextFreePageNo(frame.Data, getFirstFreePage(header.Data))
	frame.Unlock()
	setFirstFreePage(header.Data, pageNo)
	setHeaderNumPages(header.Data, getHeaderNumPages(header.Data)+1)
	header.Unlock()
	f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: headerPageNo}, true)

	return pageNo, frame, nil
}

// unlinkFromFreeListLocked removes pageNo from the free list after it
// fills up. Callers hold f.mu.
func (f *File) unlinkFromFreeListLocked(pageNo uint32) error {
	header, err := f.pool.FetchPage(buffer.PageID{FileID: f.fileID, PageNo: headerPageNo})
	if err != nil {
		return err
	}
	defer f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: headerPageNo}, true)

	header.Lock()
	defer header.Unlock()
	if getFirstFreePage(header.Data) == pageNo {
		full, err := f.pool.FetchPage(buffer.PageID{FileID: f.fileID, PageNo: pageNo})
		if err != nil {
			return err
		}
		full.RLock()
		next := getNextFreePageNo(full.Data)
		full.RUnlock()
		f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: pageNo}, false)
		setFirstFreePage(header.Data, next)
		return nil
	}

	// Walk the list to find pageNo's predecessor. Free lists stay short in
	// practice since pages only join when non-full and leave when full.
	prev := getFirstFreePage(header.Data)
	for prev != 0 {
		frame, err := f.pool.FetchPage(buffer.PageID{FileID: f.fileID, PageNo: prev})
		if err != nil {
			return err
		}
		frame.RLock()
		next := getNextFreePageNo(frame.Data)
		frame.RUnlock()
		f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: prev}, false)
		if next == pageNo {
			target, err := f.pool.FetchPage(buffer.PageID{FileID: f.fileID, PageNo: pageNo})
			if err != nil {
				return err
			}
			target.RLock()
			afterTarget := getNextFreePageNo(target.Data)
			target.RUnlock()
			f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: pageNo}, false)

			predFrame, err := f.pool.FetchPage(buffer.PageID{FileID: f.fileID, PageNo: prev})
			if err != nil {
				return err
			}
			predFrame.Lock()
			setNextFreePageNo(predFrame.Data, afterTarget)
			predFrame.Unlock()
			return f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: prev}, true)
		}
		prev = next
	}
	return nil
}

// relinkIntoFreeListLocked re-adds pageNo to the head of the free list once
// a deletion frees up a slot on a previously-full page. Callers hold f.mu.
func (f *File) relinkIntoFreeListLocked(pageNo uint32) error {
	header, err := f.pool.FetchPage(buffer.PageID{FileID: f.fileID, PageNo: headerPageNo})
	if err != nil {
		return err
	}
	defer f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: headerPageNo}, true)

	header.Lock()
	defer header.Unlock()
	cur := getFirstFreePage(header.Data)
	for cur != 0 {
		if cur == pageNo {
			return nil // already on the list
		}
		frame, err := f.pool.FetchPage(buffer.PageID{FileID: f.fileID, PageNo: cur})
		if err != nil {
			return err
		}
		frame.RLock()
		next := getNextFreePageNo(frame.Data)
		frame.RUnlock()
		f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: cur}, false)
		cur = next
	}

	frame, err := f.pool.FetchPage(buffer.PageID{FileID: f.fileID, PageNo: pageNo})
	if err != nil {
		return err
	}
	frame.Lock()
	setNextFreePageNo(frame.Data, getFirstFreePage(header.Data))
	frame.Unlock()
	f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: pageNo}, true)
	setFirstFreePage(header.Data, pageNo)
	return nil
}

// InsertAt force-inserts rec at exactly rid, growing the file with fresh
// pages up to rid.PageNo if necessary. Used only by undo/redo (spec §4.4),
// which must reproduce a record at the rid its original log record named.
func (f *File) InsertAt(rid types.Rid, rec []byte) error {
	if len(rec) != f.layout.recordSize {
		return dberr.Unreachable(fmt.Sprintf("heap: record is %d bytes, want %d", len(rec), f.layout.recordSize))
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		n, err := f.NumDataPages()
		if err != nil {
			return err
		}
		if rid.PageNo <= n {
			break
		}
		if _, _, err := f.allocatePageLocked(); err != nil {
			return err
		}
		f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: n + 1}, true)
	}

	frame, err := f.pool.FetchPage(buffer.PageID{FileID: f.fileID, PageNo: rid.PageNo})
	if err != nil {
		return err
	}
	frame.Lock()
	copy(f.layout.record(frame.Data, rid.SlotNo), rec)
	alreadyLive := f.layout.isOccupied(frame.Data, rid.SlotNo)
	f.layout.setOccupied(frame.Data, rid.SlotNo, true)
	if !alreadyLive {
		setNumRecords(frame.Data, getNumRecords(frame.Data)+1)
	}
	full := !f.hasFreeSlotLocked(frame.Data)
	frame.Unlock()
	if err := f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: rid.PageNo}, true); err != nil {
		return err
	}
	if full {
		return f.unlinkFromFreeListLocked(rid.PageNo)
	}
	return nil
}

// Fetch returns a copy of the record at rid in a newly allocated buffer
// exactly the record width.
func (f *File) Fetch(rid types.Rid) ([]byte, error) {
	frame, err := f.pool.FetchPage(buffer.PageID{FileID: f.fileID, PageNo: rid.PageNo})
	if err != nil {
		return nil, err
	}
	defer f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: rid.PageNo}, false)

	frame.RLock()
	defer frame.RUnlock()
	if rid.SlotNo >= uint32(f.layout.maxSlots) || !f.layout.isOccupied(frame.Data, rid.SlotNo) {
		return nil, dberr.RecordNotFound(rid.PageNo, rid.SlotNo)
	}
	out := make([]byte, f.layout.recordSize)
	copy(out, f.layout.record(frame.Data, rid.SlotNo))
	return out, nil
}

// Update overwrites the record at rid in place.
func (f *File) Update(rid types.Rid, rec []byte) error {
	if len(rec) != f.layout.recordSize {
		return dberr.Unreachable(fmt.Sprintf("heap: record is %d bytes, want %d", len(rec), f.layout.recordSize))
	}
	frame, err := f.pool.FetchPage(buffer.PageID{FileID: f.fileID, PageNo: rid.PageNo})
	if err != nil {
		return err
	}
	defer f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: rid.PageNo}, true)

	frame.Lock()
	defer frame.Unlock()
	if rid.SlotNo >= uint32(f.layout.maxSlots) || !f.layout.isOccupied(frame.Data, rid.SlotNo) {
		return dberr.RecordNotFound(rid.PageNo, rid.SlotNo)
	}
	copy(f.layout.record(frame.Data, rid.SlotNo), rec)
	return nil
}

// Delete removes the record at rid, freeing its slot and relinking the
// page onto the free list if it had been full.
func (f *File) Delete(rid types.Rid) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	frame, err := f.pool.FetchPage(buffer.PageID{FileID: f.fileID, PageNo: rid.PageNo})
	if err != nil {
		return err
	}

	frame.Lock()
	if rid.SlotNo >= uint32(f.layout.maxSlots) || !f.layout.isOccupied(frame.Data, rid.SlotNo) {
		frame.Unlock()
		f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: rid.PageNo}, false)
		return dberr.RecordNotFound(rid.PageNo, rid.SlotNo)
	}
	wasFull := !f.hasFreeSlotLocked(frame.Data)
	f.layout.setOccupied(frame.Data, rid.SlotNo, false)
	setNumRecords(frame.Data, getNumRecords(frame.Data)-1)
	frame.Unlock()

	if err := f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: rid.PageNo}, true); err != nil {
		return err
	}
	if wasFull {
		return f.relinkIntoFreeListLocked(rid.PageNo)
	}
	return nil
}

// PageLSN reads the page-LSN header of a data page (spec §3: "every page
// carries a page-LSN in its header").
func (f *File) PageLSN(pageNo uint32) (uint64, error) {
	frame, err := f.pool.FetchPage(buffer.PageID{FileID: f.fileID, PageNo: pageNo})
	if err != nil {
		return 0, err
	}
	defer f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: pageNo}, false)
	return frame.PageLSN(), nil
}

// SetPageLSN stamps a data page's page-LSN header. Called after a write is
// both applied and logged, so the page never claims an LSN the log does
// not yet cover (spec §4.7's WAL invariant).
func (f *File) SetPageLSN(pageNo uint32, lsn uint64) error {
	frame, err := f.pool.FetchPage(buffer.PageID{FileID: f.fileID, PageNo: pageNo})
	if err != nil {
		return err
	}
	frame.SetPageLSN(lsn)
	return f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: pageNo}, true)
}

// NumDataPages reports how many data pages (excluding the header page)
// currently exist.
func (f *File) NumDataPages() (uint32, error) {
	header, err := f.pool.FetchPage(buffer.PageID{FileID: f.fileID, PageNo: headerPageNo})
	if err != nil {
		return 0, err
	}
	defer f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: headerPageNo}, false)
	header.RLock()
	defer header.RUnlock()
	return getHeaderNumPages(header.Data), nil
}

// Scan walks every occupied slot in page order, calling fn with each
// record's rid and bytes. fn returns false to stop early. internal/exec's
// SeqScan does not use it; it walks the file through NewScan instead.
func (f *File) Scan(fn func(types.Rid, []byte) (bool, error)) error {
	n, err := f.NumDataPages()
	if err != nil {
		return err
	}
	for pageNo := uint32(1); pageNo <= n; pageNo++ {
		frame, err := f.pool.FetchPage(buffer.PageID{FileID: f.fileID, PageNo: pageNo})
		if err != nil {
			return err
		}
		frame.RLock()
		var slots [][]byte
		var rids []types.Rid
		for slot := 0; slot < f.layout.maxSlots; slot++ {
			if f.layout.isOccupied(frame.Data, uint32(slot)) {
				rec := make([]byte, f.layout.recordSize)
				copy(rec, f.layout.record(frame.Data, uint32(slot)))
				slots = append(slots, rec)
				rids = append(rids, types.Rid{PageNo: pageNo, SlotNo: uint32(slot)})
			}
		}
		frame.RUnlock()
		if err := f.pool.UnpinPage(buffer.PageID{FileID: f.fileID, PageNo: pageNo}, false); err != nil {
			return err
		}
		for i := range slots {
			keepGoing, err := fn(rids[i], slots[i])
			if err != nil {
				return err
			}
			if !keepGoing {
				return nil
			}
		}
	}
	return nil
}
