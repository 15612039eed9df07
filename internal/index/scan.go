package index

import (
	"coredb/internal/buffer"
	"coredb/internal/types"
)

// Scan (the spec's "IxScan") walks leaf entries in key order between a low
// and high bound, inclusive, via the leaf sibling list. A nil bound means
// unbounded on that side.
type Scan struct {
	t         *Tree
	high      []byte
	pageNo    uint32
	slotNo    int
	page      []byte
	numKeys   int
	exhausted bool
}

// NewScan opens a cursor over [low, high]. If low is nil, the scan starts
// at the first leaf; the caller is responsible for building low/high from
// the planner's predicates (spec §4.11's IndexScan).
func (t *Tree) NewScan(low, high []byte) (*Scan, error) {
	root, firstLeaf, _, _, err := t.readHeader()
	if err != nil {
		return nil, err
	}
	startPage := firstLeaf
	if low != nil {
		path, err := t.descendForWrite(root, low)
		if err != nil {
			return nil, err
		}
		startPage = path[len(path)-1]
	}

	s := &Scan{t: t, high: high, pageNo: startPage}
	if err := s.loadPage(); err != nil {
		return nil, err
	}
	if low != nil {
		s.slotNo = t.lowerBound(s.page, uint32(s.numKeys), low) - 1
	} else {
		s.slotNo = -1
	}
	return s, nil
}

func (s *Scan) loadPage() error {
	f, err := s.t.pool.FetchPage(buffer.PageID{FileID: s.t.fileID, PageNo: s.pageNo})
	if err != nil {
		return err
	}
	f.RLock()
	s.page = make([]byte, len(f.Data))
	copy(s.page, f.Data)
	s.numKeys = int(numKeys(f.Data))
	f.RUnlock()
	return s.t.pool.UnpinPage(buffer.PageID{FileID: s.t.fileID, PageNo: s.pageNo}, false)
}

// Next returns the next (key, rid) pair in range, or ok=false when done.
func (s *Scan) Next() (key []byte, rid types.Rid, ok bool, err error) {
	if s.exhausted {
		return nil, types.Rid{}, false, nil
	}
	for {
		s.slotNo++
		if s.slotNo >= s.numKeys {
			next := nextLeaf(s.page)
			if next == 0 {
				s.exhausted = true
				return nil, types.Rid{}, false, nil
			}
			s.pageNo = next
			if err := s.loadPage(); err != nil {
				return nil, types.Rid{}, false, err
			}
			s.slotNo = -1
			continue
		}
		k := s.t.layout.keyAt(s.page, s.slotNo)
		if s.high != nil && s.t.cmp(k, s.high) > 0 {
			s.exhausted = true
			return nil, types.Rid{}, false, nil
		}
		pn, sn := s.t.layout.ridAt(s.page, s.slotNo)
		out := make([]byte, len(k))
		copy(out, k)
		return out, types.Rid{PageNo: pn, SlotNo: sn}, true, nil
	}
}

func (s *Scan) Close() error { return nil }
