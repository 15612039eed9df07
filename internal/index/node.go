// Package index implements the clustered B+-tree (spec §4.5): composite
// fixed-width keys, leaf-to-heap Rid pointers, one tree-wide latch held by
// Insert and Delete (no latch coupling on descent), and split-on-overflow
// insertion. Grounded on bplustree in the teacher (node
// shape: keys/children/vals, leaf-list pointers, a comparator function)
// but the node representation is rebuilt on top of buffer.Pool pages
// instead of the teacher's in-memory Node+pincnt cache, since the spec
// models the tree as paged storage like every other on-disk structure.
package index

import (
	"encoding/binary"

	"coredb/internal/diskio"
)

// Node page layout within one diskio.PageSize page:
//
//	[0:8)   page-LSN (owned by the buffer pool's Frame)
//	[8:9)   IsLeaf
//	[9:13)  NumKeys
//	[13:17) Parent
//	[17:21) PrevLeaf  (leaves only)
//	[21:25) NextLeaf  (leaves only)
//	[25:29) NextFreePageNo (free-list link for reclaimed nodes)
//	[29:)   keys[] followed by rids[] (leaf) or children[] (internal)
const (
	isLeafOffset   = 8
	numKeysOffset  = 9
	parentOffset   = 13
	prevLeafOffset = 17
	nextLeafOffset = 21
	nextFreeOffset = 25
	nodeFixedSize  = 29
)

const ridWidth = 8     // Rid{PageNo, SlotNo}, both uint32
const childWidth = 4   // child page number, uint32

// layout is the fixed node geometry derived from the index's composite key
// width. Leaves and internal nodes share the same keys[] region but differ
// in what follows it (rids vs children), so they get separate capacities.
type layout struct {
	keyLen      int
	maxLeafKeys int
	maxIntKeys  int
}

func newLayout(keyLen int) layout {
	avail := diskio.PageSize - nodeFixedSize
	maxLeaf := avail / (keyLen + ridWidth)
	// internal node: n keys, n+1 children
	maxInt := (avail - childWidth) / (keyLen + childWidth)
	if maxLeaf < 2 {
		maxLeaf = 2
	}
	if maxInt < 2 {
		maxInt = 2
	}
	return layout{keyLen: keyLen, maxLeafKeys: maxLeaf, maxIntKeys: maxInt}
}

func isLeaf(page []byte) bool        { return page[isLeafOffset] != 0 }
func setIsLeaf(page []byte, v bool) {
	if v {
		page[isLeafOffset] = 1
	} else {
		page[isLeafOffset] = 0
	}
}

func numKeys(page []byte) uint32       { return binary.LittleEndian.Uint32(page[numKeysOffset:]) }
func setNumKeys(page []byte, v uint32) { binary.LittleEndian.PutUint32(page[numKeysOffset:], v) }

func parent(page []byte) uint32       { return binary.LittleEndian.Uint32(page[parentOffset:]) }
func setParent(page []byte, v uint32) { binary.LittleEndian.PutUint32(page[parentOffset:], v) }

func prevLeaf(page []byte) uint32       { return binary.LittleEndian.Uint32(page[prevLeafOffset:]) }
func setPrevLeaf(page []byte, v uint32) { binary.LittleEndian.PutUint32(page[prevLeafOffset:], v) }

func nextLeaf(page []byte) uint32       { return binary.LittleEndian.Uint32(page[nextLeafOffset:]) }
func setNextLeaf(page []byte, v uint32) { binary.LittleEndian.PutUint32(page[nextLeafOffset:], v) }

func (l layout) keyAt(page []byte, i int) []byte {
	off := nodeFixedSize + i*l.keyLen
	return page[off : off+l.keyLen]
}

func (l layout) setKeyAt(page []byte, i int, key []byte) {
	copy(l.keyAt(page, i), key)
}

func (l layout) ridRegionStart() int {
	return nodeFixedSize + l.maxLeafKeys*l.keyLen
}

func (l layout) ridAt(page []byte, i int) (pageNo, slotNo uint32) {
	off := l.ridRegionStart() + i*ridWidth
	return binary.LittleEndian.Uint32(page[off:]), binary.LittleEndian.Uint32(page[off+4:])
}

func (l layout) setRidAt(page []byte, i int, pageNo, slotNo uint32) {
	off := l.ridRegionStart() + i*ridWidth
	binary.LittleEndian.PutUint32(page[off:], pageNo)
	binary.LittleEndian.PutUint32(page[off+4:], slotNo)
}

func (l layout) childRegionStart() int {
	return nodeFixedSize + l.maxIntKeys*l.keyLen
}

func (l layout) childAt(page []byte, i int) uint32 {
	off := l.childRegionStart() + i*childWidth
	return binary.LittleEndian.Uint32(page[off:])
}

func (l layout) setChildAt(page []byte, i int, pageNo uint32) {
	off := l.childRegionStart() + i*childWidth
	binary.LittleEndian.PutUint32(page[off:], pageNo)
}

func initLeaf(page []byte) {
	setIsLeaf(page, true)
	setNumKeys(page, 0)
	setParent(page, 0)
	setPrevLeaf(page, 0)
	setNextLeaf(page, 0)
}

func initInternal(page []byte) {
	setIsLeaf(page, false)
	setNumKeys(page, 0)
	setParent(page, 0)
}
