package index

import (
	"encoding/binary"
	"sync"

	"coredb/internal/buffer"
	"coredb/internal/dberr"
	"coredb/internal/diskio"
	"coredb/internal/types"
)

const headerPageNo uint32 = 0

// Comparator compares two composite keys of the same fixed width,
// type-dispatched and lexicographic across the columns that compose the
// key (spec §4.5). Built by internal/catalog from an IndexMeta's column
// types and handed to Open/Create.
type Comparator func(a, b []byte) int

// Tree is one clustered B+-tree index file.
type Tree struct {
	fileID uint32
	pool   *buffer.Pool
	fh     *diskio.FileHandle
	layout layout
	cmp    Comparator
	mu     sync.Mutex // root latch: held for the duration of any structural mutation
}

// header fields live in page 0, after the page-LSN.
const (
	hdrRootOffset     = 8
	hdrFirstLeafOff   = 12
	hdrLastLeafOff    = 16
	hdrKeyLenOffset   = 20
	hdrNumPagesOffset = 24
)

func (t *Tree) readHeader() (root, firstLeaf, lastLeaf, numPages uint32, err error) {
	f, err := t.pool.FetchPage(buffer.PageID{FileID: t.fileID, PageNo: headerPageNo})
	if err != nil {
		return 0, 0, 0, 0, err
	}
	defer t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: headerPageNo}, false)
	f.RLock()
	defer f.RUnlock()
	return binary.LittleEndian.Uint32(f.Data[hdrRootOffset:]),
		binary.LittleEndian.Uint32(f.Data[hdrFirstLeafOff:]),
		binary.LittleEndian.Uint32(f.Data[hdrLastLeafOff:]),
		binary.LittleEndian.Uint32(f.Data[hdrNumPagesOffset:]), nil
}

func (t *Tree) writeHeaderField(offset int, v uint32) error {
	f, err := t.pool.FetchPage(buffer.PageID{FileID: t.fileID, PageNo: headerPageNo})
	if err != nil {
		return err
	}
	f.Lock()
	binary.LittleEndian.PutUint32(f.Data[offset:], v)
	f.Unlock()
	return t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: headerPageNo}, true)
}

// Create makes a fresh, empty index file: a header page plus a single
// empty leaf serving as the root.
func Create(path string, fileID uint32, keyLen int, cmp Comparator, pool *buffer.Pool) (*Tree, error) {
	fh, err := diskio.CreateFile(path)
	if err != nil {
		return nil, err
	}
	pool.RegisterFile(fileID, fh)
	t := &Tree{fileID: fileID, pool: pool, fh: fh, layout: newLayout(keyLen), cmp: cmp}

	// Page 0: header.
	if _, _, err := pool.NewPage(fileID); err != nil {
		return nil, err
	}
	pool.UnpinPage(buffer.PageID{FileID: fileID, PageNo: headerPageNo}, true)

	// Page 1: root leaf.
	rootFrame, rootPageNo, err := pool.NewPage(fileID)
	if err != nil {
		return nil, err
	}
	rootFrame.Lock()
	initLeaf(rootFrame.Data)
	rootFrame.Unlock()
	pool.UnpinPage(buffer.PageID{FileID: fileID, PageNo: rootPageNo}, true)

	if err := t.writeHeaderField(hdrRootOffset, rootPageNo); err != nil {
		return nil, err
	}
	if err := t.writeHeaderField(hdrFirstLeafOff, rootPageNo); err != nil {
		return nil, err
	}
	if err := t.writeHeaderField(hdrLastLeafOff, rootPageNo); err != nil {
		return nil, err
	}
	if err := t.writeHeaderField(hdrKeyLenOffset, uint32(keyLen)); err != nil {
		return nil, err
	}
	if err := t.writeHeaderField(hdrNumPagesOffset, 2); err != nil {
		return nil, err
	}
	return t, nil
}

// Open reopens an existing index file.
func Open(path string, fileID uint32, keyLen int, cmp Comparator, pool *buffer.Pool) (*Tree, error) {
	fh, err := diskio.OpenFile(path)
	if err != nil {
		return nil, err
	}
	pool.RegisterFile(fileID, fh)
	return &Tree{fileID: fileID, pool: pool, fh: fh, layout: newLayout(keyLen), cmp: cmp}, nil
}

func Destroy(path string) error { return diskio.DestroyFile(path) }

func (t *Tree) Close() error {
	t.pool.UnregisterFile(t.fileID)
	return t.fh.CloseFile()
}

// lowerBound returns the least i with keys[i] >= target, 0 <= i <= numKeys.
func (t *Tree) lowerBound(page []byte, n uint32, target []byte) int {
	lo, hi := 0, int(n)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cmp(t.layout.keyAt(page, mid), target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// upperBound returns the least i with keys[i] > target.
func (t *Tree) upperBound(page []byte, n uint32, target []byte) int {
	lo, hi := 0, int(n)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cmp(t.layout.keyAt(page, mid), target) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Get descends to the leaf holding key and returns its Rid, if present.
func (t *Tree) Get(key []byte) (types.Rid, bool, error) {
	root, _, _, _, err := t.readHeader()
	if err != nil {
		return types.Rid{}, false, err
	}
	pageNo := root
	for {
		f, err := t.pool.FetchPage(buffer.PageID{FileID: t.fileID, PageNo: pageNo})
		if err != nil {
			return types.Rid{}, false, err
		}
		f.RLock()
		leaf := isLeaf(f.Data)
		n := numKeys(f.Data)
		if leaf {
			i := t.lowerBound(f.Data, n, key)
			var rid types.Rid
			found := false
			if i < int(n) && t.cmp(t.layout.keyAt(f.Data, i), key) == 0 {
				pn, sn := t.layout.ridAt(f.Data, i)
				rid = types.Rid{PageNo: pn, SlotNo: sn}
				found = true
			}
			f.RUnlock()
			t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: pageNo}, false)
			return rid, found, nil
		}
		i := t.upperBound(f.Data, n, key)
		child := t.layout.childAt(f.Data, i)
		f.RUnlock()
		t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: pageNo}, false)
		pageNo = child
	}
}

// Insert adds key -> rid. Returns a UniqueViolation error if key already
// exists; the tree is left unchanged in that case.
func (t *Tree) Insert(indexName string, key []byte, rid types.Rid) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	root, _, _, _, err := t.readHeader()
	if err != nil {
		return err
	}
	path, err := t.descendForWrite(root, key)
	if err != nil {
		return err
	}
	leafPageNo := path[len(path)-1]
	leafFrame, err := t.pool.FetchPage(buffer.PageID{FileID: t.fileID, PageNo: leafPageNo})
	if err != nil {
		return err
	}

	leafFrame.Lock()
	n := numKeys(leafFrame.Data)
	i := t.lowerBound(leafFrame.Data, n, key)
	if i < int(n) && t.cmp(t.layout.keyAt(leafFrame.Data, i), key) == 0 {
		leafFrame.Unlock()
		t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: leafPageNo}, false)
		return dberr.UniqueViolation(indexName)
	}
	t.insertLeafAt(leafFrame.Data, i, key, rid)
	overflow := numKeys(leafFrame.Data) > uint32(t.layout.maxLeafKeys)
	leafFrame.Unlock()
	t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: leafPageNo}, true)

	if overflow {
		return t.splitLeaf(leafPageNo, path[:len(path)-1])
	}
	return nil
}

func (t *Tree) insertLeafAt(page []byte, i int, key []byte, rid types.Rid) {
	n := int(numKeys(page))
	for j := n; j > i; j-- {
		t.layout.setKeyAt(page, j, t.layout.keyAt(page, j-1))
		pn, sn := t.layout.ridAt(page, j-1)
		t.layout.setRidAt(page, j, pn, sn)
	}
	t.layout.setKeyAt(page, i, key)
	t.layout.setRidAt(page, i, rid.PageNo, rid.SlotNo)
	setNumKeys(page, uint32(n+1))
}

// descendForWrite walks from root to the target leaf, returning the full
// path of page numbers (root first, leaf last). The root latch (t.mu)
// covers the whole operation, so no node-level latching is needed beyond
// the buffer pool's own pin/unpin discipline.
func (t *Tree) descendForWrite(root uint32, key []byte) ([]uint32, error) {
	path := []uint32{root}
	pageNo := root
	for {
		f, err := t.pool.FetchPage(buffer.PageID{FileID: t.fileID, PageNo: pageNo})
		if err != nil {
			return nil, err
		}
		f.RLock()
		leaf := isLeaf(f.Data)
		var next uint32
		if !leaf {
			n := numKeys(f.Data)
			i := t.upperBound(f.Data, n, key)
			next = t.layout.childAt(f.Data, i)
		}
		f.RUnlock()
		t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: pageNo}, false)
		if leaf {
			return path, nil
		}
		pageNo = next
		path = append(path, pageNo)
	}
}

// splitLeaf splits an overflowing leaf into two and inserts the new
// sibling's first key into the parent, recursing up as needed.
func (t *Tree) splitLeaf(leafPageNo uint32, ancestors []uint32) error {
	leaf, err := t.pool.FetchPage(buffer.PageID{FileID: t.fileID, PageNo: leafPageNo})
	if err != nil {
		return err
	}
	newFrame, newPageNo, err := t.pool.NewPage(t.fileID)
	if err != nil {
		t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: leafPageNo}, false)
		return err
	}

	leaf.Lock()
	newFrame.Lock()
	initLeaf(newFrame.Data)

	n := int(numKeys(leaf.Data))
	mid := n / 2
	for j := mid; j < n; j++ {
		pn, sn := t.layout.ridAt(leaf.Data, j)
		t.layout.setKeyAt(newFrame.Data, j-mid, t.layout.keyAt(leaf.Data, j))
		t.layout.setRidAt(newFrame.Data, j-mid, pn, sn)
	}
	setNumKeys(newFrame.Data, uint32(n-mid))
	setNumKeys(leaf.Data, uint32(mid))

	setNextLeaf(newFrame.Data, nextLeaf(leaf.Data))
	setPrevLeaf(newFrame.Data, leafPageNo)
	setNextLeaf(leaf.Data, newPageNo)
	promotedKey := make([]byte, t.layout.keyLen)
	copy(promotedKey, t.layout.keyAt(newFrame.Data, 0))

	oldNext := nextLeaf(newFrame.Data)
	leaf.Unlock()
	newFrame.Unlock()

	if oldNext != 0 {
		nf, err := t.pool.FetchPage(buffer.PageID{FileID: t.fileID, PageNo: oldNext})
		if err == nil {
			nf.Lock()
			setPrevLeaf(nf.Data, newPageNo)
			nf.Unlock()
			t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: oldNext}, true)
		}
	} else {
		t.writeHeaderField(hdrLastLeafOff, newPageNo)
	}

	t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: leafPageNo}, true)
	t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: newPageNo}, true)

	return t.insertIntoParent(leafPageNo, promotedKey, newPageNo, ancestors)
}

// insertIntoParent inserts (promotedKey -> newChild) into the parent of
// leftChild, identified as the last entry of ancestors; splits the parent
// in turn if it overflows, and creates a new root if leftChild had none.
func (t *Tree) insertIntoParent(leftChild uint32, promotedKey []byte, newChild uint32, ancestors []uint32) error {
	if len(ancestors) == 0 {
		return t.newRoot(leftChild, promotedKey, newChild)
	}
	parentPageNo := ancestors[len(ancestors)-1]
	pf, err := t.pool.FetchPage(buffer.PageID{FileID: t.fileID, PageNo: parentPageNo})
	if err != nil {
		return err
	}
	pf.Lock()
	n := numKeys(pf.Data)
	i := t.upperBound(pf.Data, n, promotedKey)
	for j := int(n); j > i; j-- {
		t.layout.setKeyAt(pf.Data, j, t.layout.keyAt(pf.Data, j-1))
	}
	for j := int(n) + 1; j > i+1; j-- {
		t.layout.setChildAt(pf.Data, j, t.layout.childAt(pf.Data, j-1))
	}
	t.layout.setKeyAt(pf.Data, i, promotedKey)
	t.layout.setChildAt(pf.Data, i+1, newChild)
	setNumKeys(pf.Data, n+1)
	overflow := n+1 > uint32(t.layout.maxIntKeys)
	pf.Unlock()
	t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: parentPageNo}, true)

	if overflow {
		return t.splitInternal(parentPageNo, ancestors[:len(ancestors)-1])
	}
	return nil
}

func (t *Tree) splitInternal(pageNo uint32, ancestors []uint32) error {
	f, err := t.pool.FetchPage(buffer.PageID{FileID: t.fileID, PageNo: pageNo})
	if err != nil {
		return err
	}
	newFrame, newPageNo, err := t.pool.NewPage(t.fileID)
	if err != nil {
		t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: pageNo}, false)
		return err
	}

	f.Lock()
	newFrame.Lock()
	initInternal(newFrame.Data)

	n := int(numKeys(f.Data))
	mid := n / 2
	promoted := make([]byte, t.layout.keyLen)
	copy(promoted, t.layout.keyAt(f.Data, mid))

	// Keys [mid+1, n) and children [mid+1, n] move to the new right sibling.
	for j := mid + 1; j < n; j++ {
		t.layout.setKeyAt(newFrame.Data, j-mid-1, t.layout.keyAt(f.Data, j))
	}
	for j := mid + 1; j <= n; j++ {
		child := t.layout.childAt(f.Data, j)
		t.layout.setChildAt(newFrame.Data, j-mid-1, child)
	}
	setNumKeys(newFrame.Data, uint32(n-mid-1))
	setNumKeys(f.Data, uint32(mid))
	newFrame.Unlock()
	f.Unlock()

	t.reparentChildren(newFrame, newPageNo)

	t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: pageNo}, true)
	t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: newPageNo}, true)

	return t.insertIntoParent(pageNo, promoted, newPageNo, ancestors)
}

func (t *Tree) reparentChildren(newFrame *buffer.Frame, newPageNo uint32) {
	newFrame.RLock()
	n := numKeys(newFrame.Data)
	children := make([]uint32, n+1)
	for i := 0; i <= int(n); i++ {
		children[i] = t.layout.childAt(newFrame.Data, i)
	}
	newFrame.RUnlock()
	for _, child := range children {
		cf, err := t.pool.FetchPage(buffer.PageID{FileID: t.fileID, PageNo: child})
		if err != nil {
			continue
		}
		cf.Lock()
		setParent(cf.Data, newPageNo)
		cf.Unlock()
		t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: child}, true)
	}
}

func (t *Tree) newRoot(leftChild uint32, key []byte, rightChild uint32) error {
	rootFrame, rootPageNo, err := t.pool.NewPage(t.fileID)
	if err != nil {
		return err
	}
	rootFrame.Lock()
	initInternal(rootFrame.Data)
	t.layout.setKeyAt(rootFrame.Data, 0, key)
	t.layout.setChildAt(rootFrame.Data, 0, leftChild)
	t.layout.setChildAt(rootFrame.Data, 1, rightChild)
	setNumKeys(rootFrame.Data, 1)
	rootFrame.Unlock()
	t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: rootPageNo}, true)

	for _, child := range []uint32{leftChild, rightChild} {
		cf, err := t.pool.FetchPage(buffer.PageID{FileID: t.fileID, PageNo: child})
		if err != nil {
			continue
		}
		cf.Lock()
		setParent(cf.Data, rootPageNo)
		cf.Unlock()
		t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: child}, true)
	}
	return t.writeHeaderField(hdrRootOffset, rootPageNo)
}

// Delete removes key from the tree, rebalancing on leaf underflow per spec
// §4.5: delete_entry removes the key, then coalesce_or_redistribute walks
// back up the path fixing one level of underflow at a time — borrowing an
// entry from a sibling with a surplus, or merging with a sibling and
// splicing it out of the parent — and adjust_root collapses a root left
// with a single internal child. Grounded on the teacher's
// storage_engine/access/indexfile_manager/bplustree/deletion.go, the
// pack's closest structural analog (borrow-or-merge-then-recurse, with the
// same root-collapse check).
func (t *Tree) Delete(key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	root, _, _, _, err := t.readHeader()
	if err != nil {
		return err
	}
	path, err := t.descendForWrite(root, key)
	if err != nil {
		return err
	}
	leafPageNo := path[len(path)-1]
	f, err := t.pool.FetchPage(buffer.PageID{FileID: t.fileID, PageNo: leafPageNo})
	if err != nil {
		return err
	}

	f.Lock()
	n := int(numKeys(f.Data))
	i := t.lowerBound(f.Data, uint32(n), key)
	if i >= n || t.cmp(t.layout.keyAt(f.Data, i), key) != 0 {
		f.Unlock()
		t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: leafPageNo}, false)
		return dberr.Unreachable("index: key not found on delete")
	}
	for j := i; j < n-1; j++ {
		t.layout.setKeyAt(f.Data, j, t.layout.keyAt(f.Data, j+1))
		pn, sn := t.layout.ridAt(f.Data, j+1)
		t.layout.setRidAt(f.Data, j, pn, sn)
	}
	setNumKeys(f.Data, uint32(n-1))
	underflow := len(path) > 1 && n-1 < t.minLeafKeys()
	f.Unlock()
	t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: leafPageNo}, true)

	if !underflow {
		return nil
	}
	return t.coalesceOrRedistribute(path)
}

// minLeafKeys and minIntKeys are the B+-tree's min occupancy thresholds
// (spec §4.5's min_size), half of each node type's capacity; the root is
// exempt from both.
func (t *Tree) minLeafKeys() int { return t.layout.maxLeafKeys / 2 }
func (t *Tree) minIntKeys() int  { return t.layout.maxIntKeys / 2 }

// coalesceOrRedistribute fixes the underflow at path's last entry, then
// repeats one level up for as long as a merge leaves the new parent
// underflowed too. The node handed to it lost exactly one entry to reach
// underflow, so checking "a sibling holds more than min_size" is
// equivalent to the spec's "combined size >= 2*min_size" redistribute
// test.
func (t *Tree) coalesceOrRedistribute(path []uint32) error {
	for level := len(path) - 1; level > 0; level-- {
		nodePageNo := path[level]
		parentPageNo := path[level-1]

		pf, err := t.pool.FetchPage(buffer.PageID{FileID: t.fileID, PageNo: parentPageNo})
		if err != nil {
			return err
		}
		pf.Lock()

		childCount := int(numKeys(pf.Data)) + 1
		idx := -1
		for c := 0; c < childCount; c++ {
			if t.layout.childAt(pf.Data, c) == nodePageNo {
				idx = c
				break
			}
		}
		if idx == -1 {
			pf.Unlock()
			t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: parentPageNo}, false)
			return dberr.Unreachable("index: child not found in parent during delete rebalance")
		}

		nf, err := t.pool.FetchPage(buffer.PageID{FileID: t.fileID, PageNo: nodePageNo})
		if err != nil {
			pf.Unlock()
			t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: parentPageNo}, false)
			return err
		}
		nf.Lock()
		leaf := isLeaf(nf.Data)
		minKeys := t.minIntKeys()
		if leaf {
			minKeys = t.minLeafKeys()
		}

		var lf, rf *buffer.Frame
		var leftPageNo, rightPageNo uint32
		if idx > 0 {
			leftPageNo = t.layout.childAt(pf.Data, idx-1)
			if lf, err = t.pool.FetchPage(buffer.PageID{FileID: t.fileID, PageNo: leftPageNo}); err != nil {
				nf.Unlock()
				t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: nodePageNo}, false)
				pf.Unlock()
				t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: parentPageNo}, false)
				return err
			}
			lf.Lock()
		}
		if idx < childCount-1 {
			rightPageNo = t.layout.childAt(pf.Data, idx+1)
			if rf, err = t.pool.FetchPage(buffer.PageID{FileID: t.fileID, PageNo: rightPageNo}); err != nil {
				if lf != nil {
					lf.Unlock()
					t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: leftPageNo}, false)
				}
				nf.Unlock()
				t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: nodePageNo}, false)
				pf.Unlock()
				t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: parentPageNo}, false)
				return err
			}
			rf.Lock()
		}

		var opErr error
		merged := false
		switch {
		case lf != nil && int(numKeys(lf.Data)) > minKeys:
			if leaf {
				t.leafBorrowFromLeft(pf.Data, idx, lf.Data, nf.Data)
			} else {
				opErr = t.internalBorrowFromLeft(pf.Data, idx, lf.Data, nf.Data, nodePageNo)
			}
		case rf != nil && int(numKeys(rf.Data)) > minKeys:
			if leaf {
				t.leafBorrowFromRight(pf.Data, idx, nf.Data, rf.Data)
			} else {
				opErr = t.internalBorrowFromRight(pf.Data, idx, nf.Data, rf.Data, nodePageNo)
			}
		case lf != nil:
			if leaf {
				afterRight := t.mergeLeaves(lf.Data, nf.Data)
				opErr = t.relinkLeafTail(leftPageNo, afterRight)
			} else {
				sep := make([]byte, t.layout.keyLen)
				copy(sep, t.layout.keyAt(pf.Data, idx-1))
				opErr = t.mergeInternal(leftPageNo, lf.Data, nf.Data, sep)
			}
			t.removeParentEntry(pf.Data, idx-1, idx)
			merged = true
		default:
			if leaf {
				afterRight := t.mergeLeaves(nf.Data, rf.Data)
				opErr = t.relinkLeafTail(nodePageNo, afterRight)
			} else {
				sep := make([]byte, t.layout.keyLen)
				copy(sep, t.layout.keyAt(pf.Data, idx))
				opErr = t.mergeInternal(nodePageNo, nf.Data, rf.Data, sep)
			}
			t.removeParentEntry(pf.Data, idx, idx+1)
			merged = true
		}

		if rf != nil {
			rf.Unlock()
			t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: rightPageNo}, true)
		}
		if lf != nil {
			lf.Unlock()
			t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: leftPageNo}, true)
		}
		nf.Unlock()
		t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: nodePageNo}, true)

		parentUnderflow := merged && level > 1 && int(numKeys(pf.Data)) < t.minIntKeys()
		parentIsRoot := level == 1
		pf.Unlock()
		t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: parentPageNo}, true)

		if opErr != nil {
			return opErr
		}
		if parentIsRoot {
			if merged {
				return t.adjustRoot(parentPageNo)
			}
			return nil
		}
		if !parentUnderflow {
			return nil
		}
	}
	return nil
}

// leafBorrowFromLeft moves left's last entry to node's front and rewrites
// the parent separator at idx-1 to node's new first key.
func (t *Tree) leafBorrowFromLeft(parent []byte, idx int, left, node []byte) {
	ln := int(numKeys(left))
	key := make([]byte, t.layout.keyLen)
	copy(key, t.layout.keyAt(left, ln-1))
	pn, sn := t.layout.ridAt(left, ln-1)
	setNumKeys(left, uint32(ln-1))

	t.insertLeafAt(node, 0, key, types.Rid{PageNo: pn, SlotNo: sn})
	t.layout.setKeyAt(parent, idx-1, key)
}

// leafBorrowFromRight moves right's first entry to node's end and rewrites
// the parent separator at idx to right's new first key.
func (t *Tree) leafBorrowFromRight(parent []byte, idx int, node, right []byte) {
	key := make([]byte, t.layout.keyLen)
	copy(key, t.layout.keyAt(right, 0))
	pn, sn := t.layout.ridAt(right, 0)

	rn := int(numKeys(right))
	for j := 0; j < rn-1; j++ {
		t.layout.setKeyAt(right, j, t.layout.keyAt(right, j+1))
		pn2, sn2 := t.layout.ridAt(right, j+1)
		t.layout.setRidAt(right, j, pn2, sn2)
	}
	setNumKeys(right, uint32(rn-1))

	n := int(numKeys(node))
	t.layout.setKeyAt(node, n, key)
	t.layout.setRidAt(node, n, pn, sn)
	setNumKeys(node, uint32(n+1))

	t.layout.setKeyAt(parent, idx, t.layout.keyAt(right, 0))
}

// internalBorrowFromLeft rotates through the parent: the old separator at
// idx-1 moves down to become node's first key (ahead of left's last child,
// which becomes node's first child), and left's last key rises to replace
// the separator.
func (t *Tree) internalBorrowFromLeft(parent []byte, idx int, left, node []byte, nodePageNo uint32) error {
	ln := int(numKeys(left))
	sep := make([]byte, t.layout.keyLen)
	copy(sep, t.layout.keyAt(parent, idx-1))
	newSep := make([]byte, t.layout.keyLen)
	copy(newSep, t.layout.keyAt(left, ln-1))
	movedChild := t.layout.childAt(left, ln)
	setNumKeys(left, uint32(ln-1))

	n := int(numKeys(node))
	for j := n; j > 0; j-- {
		t.layout.setKeyAt(node, j, t.layout.keyAt(node, j-1))
	}
	for j := n + 1; j > 0; j-- {
		t.layout.setChildAt(node, j, t.layout.childAt(node, j-1))
	}
	t.layout.setKeyAt(node, 0, sep)
	t.layout.setChildAt(node, 0, movedChild)
	setNumKeys(node, uint32(n+1))

	t.layout.setKeyAt(parent, idx-1, newSep)
	return t.reparentChild(movedChild, nodePageNo)
}

// internalBorrowFromRight is internalBorrowFromLeft's mirror image: the
// separator at idx moves down to become node's new last key, right's
// first child becomes node's new last child, and right's first key rises
// to replace the separator.
func (t *Tree) internalBorrowFromRight(parent []byte, idx int, node, right []byte, nodePageNo uint32) error {
	sep := make([]byte, t.layout.keyLen)
	copy(sep, t.layout.keyAt(parent, idx))
	newSep := make([]byte, t.layout.keyLen)
	copy(newSep, t.layout.keyAt(right, 0))
	movedChild := t.layout.childAt(right, 0)

	rn := int(numKeys(right))
	for j := 0; j < rn-1; j++ {
		t.layout.setKeyAt(right, j, t.layout.keyAt(right, j+1))
	}
	for j := 0; j < rn; j++ {
		t.layout.setChildAt(right, j, t.layout.childAt(right, j+1))
	}
	setNumKeys(right, uint32(rn-1))

	n := int(numKeys(node))
	t.layout.setKeyAt(node, n, sep)
	t.layout.setChildAt(node, n+1, movedChild)
	setNumKeys(node, uint32(n+1))

	t.layout.setKeyAt(parent, idx, newSep)
	return t.reparentChild(movedChild, nodePageNo)
}

// mergeLeaves appends right's entries onto left and absorbs right's
// sibling-list pointer; right is left behind as a dead page. Returns the
// leaf that used to follow right (0 if right was the tail), so the caller
// can retarget that leaf's prevLeaf pointer without re-locking left/right.
func (t *Tree) mergeLeaves(left, right []byte) uint32 {
	ln := int(numKeys(left))
	rn := int(numKeys(right))
	for j := 0; j < rn; j++ {
		pn, sn := t.layout.ridAt(right, j)
		t.layout.setKeyAt(left, ln+j, t.layout.keyAt(right, j))
		t.layout.setRidAt(left, ln+j, pn, sn)
	}
	setNumKeys(left, uint32(ln+rn))
	afterRight := nextLeaf(right)
	setNextLeaf(left, afterRight)
	return afterRight
}

// relinkLeafTail fixes up the leaf sibling chain after mergeLeaves folded
// a right-hand leaf into leftPageNo: afterRight's prevLeaf now points back
// to leftPageNo, or, if there was no leaf after it, leftPageNo becomes the
// new last-leaf header pointer.
func (t *Tree) relinkLeafTail(leftPageNo, afterRight uint32) error {
	if afterRight == 0 {
		return t.writeHeaderField(hdrLastLeafOff, leftPageNo)
	}
	nf, err := t.pool.FetchPage(buffer.PageID{FileID: t.fileID, PageNo: afterRight})
	if err != nil {
		return err
	}
	nf.Lock()
	setPrevLeaf(nf.Data, leftPageNo)
	nf.Unlock()
	return t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: afterRight}, true)
}

// mergeInternal pulls the parent's separator key down between left's keys
// and right's, appends right's keys and children onto left, and reparents
// every moved child to leftPageNo; right is left behind as a dead page.
func (t *Tree) mergeInternal(leftPageNo uint32, left, right []byte, sep []byte) error {
	ln := int(numKeys(left))
	rn := int(numKeys(right))
	t.layout.setKeyAt(left, ln, sep)
	for j := 0; j < rn; j++ {
		t.layout.setKeyAt(left, ln+1+j, t.layout.keyAt(right, j))
	}
	for j := 0; j <= rn; j++ {
		child := t.layout.childAt(right, j)
		t.layout.setChildAt(left, ln+1+j, child)
		if err := t.reparentChild(child, leftPageNo); err != nil {
			return err
		}
	}
	setNumKeys(left, uint32(ln+1+rn))
	return nil
}

// removeParentEntry deletes the separator key at sepIdx and the child
// pointer at childIdx from parent, used once a merge collapses two
// children into one.
func (t *Tree) removeParentEntry(parent []byte, sepIdx, childIdx int) {
	n := int(numKeys(parent))
	for j := sepIdx; j < n-1; j++ {
		t.layout.setKeyAt(parent, j, t.layout.keyAt(parent, j+1))
	}
	for j := childIdx; j < n; j++ {
		t.layout.setChildAt(parent, j, t.layout.childAt(parent, j+1))
	}
	setNumKeys(parent, uint32(n-1))
}

// reparentChild fetches childPageNo and rewrites its Parent field, used
// after a node's children are reassigned to a different parent.
func (t *Tree) reparentChild(childPageNo, newParentPageNo uint32) error {
	cf, err := t.pool.FetchPage(buffer.PageID{FileID: t.fileID, PageNo: childPageNo})
	if err != nil {
		return err
	}
	cf.Lock()
	setParent(cf.Data, newParentPageNo)
	cf.Unlock()
	return t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: childPageNo}, true)
}

// adjustRoot collapses a root left with a single internal child down one
// level (spec §4.5's adjust_root). An empty leaf root is left as-is: its
// NumKeys == 0 already represents an empty tree.
func (t *Tree) adjustRoot(rootPageNo uint32) error {
	rf, err := t.pool.FetchPage(buffer.PageID{FileID: t.fileID, PageNo: rootPageNo})
	if err != nil {
		return err
	}
	rf.RLock()
	collapse := !isLeaf(rf.Data) && numKeys(rf.Data) == 0
	var newRoot uint32
	if collapse {
		newRoot = t.layout.childAt(rf.Data, 0)
	}
	rf.RUnlock()
	if err := t.pool.UnpinPage(buffer.PageID{FileID: t.fileID, PageNo: rootPageNo}, false); err != nil {
		return err
	}
	if !collapse {
		return nil
	}
	if err := t.reparentChild(newRoot, 0); err != nil {
		return err
	}
	return t.writeHeaderField(hdrRootOffset, newRoot)
}

// FirstLeaf returns the page number of the leftmost leaf, for full scans.
func (t *Tree) FirstLeaf() (uint32, error) {
	_, firstLeaf, _, _, err := t.readHeader()
	return firstLeaf, err
}
