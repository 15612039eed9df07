package heap

import (
	"coredb/internal/buffer"
	"coredb/internal/types"
)

// Scan walks every occupied slot of a heap file in physical order
// (page_no, slot_no), grounded on the teacher's heapfile iteration in
// exec_select.go but built as a standalone cursor so SeqScan (internal/exec)
// doesn't need to know the page layout.
type Scan struct {
	f       *File
	pageNo  uint32
	slotNo  uint32
	numPgs  uint32
	started bool
}

// NewScan opens a cursor positioned before the first record.
func NewScan(f *File) (*Scan, error) {
	numPgs, err := f.NumDataPages()
	if err != nil {
		return nil, err
	}
	return &Scan{f: f, numPgs: numPgs}, nil
}

// Next advances the cursor and returns the next (rid, record) pair. ok is
// false once the scan is exhausted.
func (s *Scan) Next() (types.Rid, []byte, bool, error) {
	if !s.started {
		s.pageNo = 1 // page 0 is the header page
		s.slotNo = 0
		s.started = true
	} else {
		s.slotNo++
	}

	for s.pageNo <= s.numPgs {
		frame, err := s.f.pool.FetchPage(buffer.PageID{FileID: s.f.fileID, PageNo: s.pageNo})
		if err != nil {
			return types.Rid{}, nil, false, err
		}

		frame.RLock()
		for s.slotNo < uint32(s.f.layout.maxSlots) {
			if s.f.layout.isOccupied(frame.Data, s.slotNo) {
				rec := make([]byte, s.f.layout.recordSize)
				copy(rec, s.f.layout.record(frame.Data, s.slotNo))
				rid := types.Rid{PageNo: s.pageNo, SlotNo: s.slotNo}
				frame.RUnlock()
				s.f.pool.UnpinPage(buffer.PageID{FileID: s.f.fileID, PageNo: s.pageNo}, false)
				return rid, rec, true, nil
			}
			s.slotNo++
		}
		frame.RUnlock()
		s.f.pool.UnpinPage(buffer.PageID{FileID: s.f.fileID, PageNo: s.pageNo}, false)

		s.pageNo++
		s.slotNo = 0
	}
	return types.Rid{}, nil, false, nil
}

// Close releases any resources held by the scan. Currently a no-op since
// Next unpins eagerly, kept for symmetry with index.Scan.
func (s *Scan) Close() error { return nil }
