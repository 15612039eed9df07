// Package heap implements the record file (spec §4.4): a page-organized,
// fixed-width slotted file with a free-space bitmap per page, threaded
// together by a per-file free list anchored in a reserved header page.
//
// This is a "keep HOW, replace WHAT" component: the per-table-file
// structure, the pager-backed manager map, and the mutex discipline are
// grounded on heapfile_manager in the teacher, but the page body format is
// not — the teacher uses a variable-offset slot directory growing backward
// from the end of the page, while spec §4.4 calls for fixed-width slots
// addressed by a bitmap of free/occupied bits. The latter is what's built
// here.
package heap

import (
	"encoding/binary"

	"coredb/internal/diskio"
)

// Layout, within one diskio.PageSize page:
//
//	[0:8)   page-LSN (owned and maintained by the buffer pool's Frame)
//	[8:12)  NextFreePageNo  (free-list link; data pages only)
//	[12:16) NumRecords
//	[16:16+bitmapBytes)     occupancy bitmap, one bit per slot
//	[slotsOffset:PageSize)  fixed-width slot array
//
// Page 0 of every heap file is reserved as the file header page and never
// holds records: it reuses the NextFreePageNo field as the free-list head
// and the NumRecords field as the data-page count (see setFirstFreePage
// and setHeaderNumPages in file.go).
const (
	nextFreeOffset  = 8
	numRecsOffset   = 12
	bitmapOffset    = 16
	headerFixedSize = 16
)

// layout describes the fixed geometry derived from a table's record size.
type layout struct {
	recordSize  int
	maxSlots    int
	bitmapBytes int
	slotsOffset int
}

// newLayout computes the largest slot count that fits a page given
// recordSize, accounting for the bitmap growing by one bit per slot added.
func newLayout(recordSize int) layout {
	best := 0
	for n := 1; ; n++ {
		bitmapBytes := (n + 7) / 8
		if headerFixedSize+bitmapBytes+n*recordSize > diskio.PageSize {
			break
		}
		best = n
	}
	bitmapBytes := (best + 7) / 8
	return layout{
		recordSize:  recordSize,
		maxSlots:    best,
		bitmapBytes: bitmapBytes,
		slotsOffset: headerFixedSize + bitmapBytes,
	}
}

func (l layout) slotOffset(slotNo uint32) int {
	return l.slotsOffset + int(slotNo)*l.recordSize
}

func getNextFreePageNo(page []byte) uint32 {
	return binary.LittleEndian.Uint32(page[nextFreeOffset:])
}

func setNextFreePageNo(page []byte, v uint32) {
	binary.LittleEndian.PutUint32(page[nextFreeOffset:], v)
}

func getNumRecords(page []byte) uint32 {
	return binary.LittleEndian.Uint32(page[numRecsOffset:])
}

func setNumRecords(page []byte, v uint32) {
	binary.LittleEndian.PutUint32(page[numRecsOffset:], v)
}

func (l layout) bitmapSlice(page []byte) []byte {
	return page[bitmapOffset : bitmapOffset+l.bitmapBytes]
}

func (l layout) isOccupied(page []byte, slotNo uint32) bool {
	bm := l.bitmapSlice(page)
	return bm[slotNo/8]&(1<<(slotNo%8)) != 0
}

func (l layout) setOccupied(page []byte, slotNo uint32, occupied bool) {
	bm := l.bitmapSlice(page)
	if occupied {
		bm[slotNo/8] |= 1 << (slotNo % 8)
	} else {
		bm[slotNo/8] &^= 1 << (slotNo % 8)
	}
}

// firstFreeSlot scans the bitmap for the lowest unoccupied slot, returning
// ok=false if the page is full.
func (l layout) firstFreeSlot(page []byte) (uint32, bool) {
	bm := l.bitmapSlice(page)
	for byteIdx, b := range bm {
		if b == 0xFF {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			slotNo := uint32(byteIdx*8 + bit)
			if slotNo >= uint32(l.maxSlots) {
				return 0, false
			}
			if b&(1<<bit) == 0 {
				return slotNo, true
			}
		}
	}
	return 0, false
}

func (l layout) record(page []byte, slotNo uint32) []byte {
	off := l.slotOffset(slotNo)
	return page[off : off+l.recordSize]
}

func initDataPage(page []byte) {
	setNextFreePageNo(page, 0)
	setNumRecords(page, 0)
	for i := bitmapOffset; i < len(page); i++ {
		page[i] = 0
	}
}
