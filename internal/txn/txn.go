// Package txn implements the transaction manager (spec §4.8): per-
// transaction state, write-set bookkeeping for logical undo, and the
// begin/commit/abort lifecycle wired to the log and lock managers.
// Grounded on transaction_manager in the teacher (global txn_id ->
// *Transaction table, InsertedRows/UpdatedRows write-set), generalized
// from the teacher's "rollback is implicit, recovery skips uncommitted
// ops" shortcut to the spec's real physiological-logging abort: write a
// WAL record for every mutation and reverse the write-set through the
// catalog's rollback hooks (§4.10) on abort, the multi-granularity lock
// manager (internal/lock) guarding every record and table touched.
package txn

import (
	"sync"

	"coredb/internal/catalog"
	"coredb/internal/coredblog"
	"coredb/internal/lock"
	"coredb/internal/types"
	"coredb/internal/wal"
)

var log = coredblog.Component("txn")

// Op identifies which kind of write a Write record reverses.
type Op byte

const (
	OpInsert Op = iota
	OpDelete
	OpUpdate
)

// State is a transaction's lifecycle stage.
type State uint8

const (
	Active State = iota
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "ACTIVE"
	}
}

// Write is one entry in a transaction's write-set: enough to reverse the
// mutation through the catalog's rollback hooks. Before is unused for
// OpInsert (rollback_insert only needs the rid).
type Write struct {
	Table  string
	Op     Op
	Rid    types.Rid
	Before []byte
}

// Transaction is one in-flight unit of work.
type Transaction struct {
	ID      uint64
	State   State
	LastLSN uint64
	Writes  []Write
}

// Manager maintains the global txn_id -> transaction table (spec §4.8)
// and wires each transaction to the log, lock, and catalog layers.
type Manager struct {
	mu     sync.Mutex
	nextID uint64
	active map[uint64]*Transaction

	wal   *wal.Manager
	locks *lock.Manager
	cat   *catalog.Catalog
}

// New builds a transaction manager over the given log, lock, and catalog
// handles, which must already be open.
func New(walMgr *wal.Manager, locks *lock.Manager, cat *catalog.Catalog) *Manager {
	return &Manager{
		nextID: 1,
		active: make(map[uint64]*Transaction),
		wal:    walMgr,
		locks:  locks,
		cat:    cat,
	}
}

// Begin returns existing unchanged if it is already an active transaction
// (statements inside an explicit BEGIN...COMMIT block share one); otherwise
// it allocates a fresh id, appends a BEGIN record, and registers it.
func (m *Manager) Begin(existing *Transaction) (*Transaction, error) {
	if existing != nil {
		return existing, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	lsn := m.wal.Append(wal.Record{Type: wal.TypeBegin, TxnID: id})
	t := &Transaction{ID: id, State: Active, LastLSN: lsn}
	m.active[id] = t
	log.WithField("txn", id).Debug("begin")
	return t, nil
}

// Commit appends COMMIT, force-flushes the log so the commit is durable
// before returning (spec §6), releases every lock the transaction holds,
// and clears its write-set.
func (m *Manager) Commit(t *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lsn := m.wal.Append(wal.Record{Type: wal.TypeCommit, TxnID: t.ID, PrevLSN: t.LastLSN})
	t.LastLSN = lsn
	if err := m.wal.Flush(); err != nil {
		return err
	}
	m.locks.ReleaseAll(t.ID)
	t.Writes = nil
	t.State = Committed
	delete(m.active, t.ID)
	log.WithField("txn", t.ID).Info("commit")
	return nil
}

// Abort appends ABORT, walks the write-set in reverse reversing each
// write through the catalog's rollback hooks, then releases every lock.
func (m *Manager) Abort(t *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lsn := m.wal.Append(wal.Record{Type: wal.TypeAbort, TxnID: t.ID, PrevLSN: t.LastLSN})
	t.LastLSN = lsn

	if err := m.reverseApply(t); err != nil {
		return err
	}
	if err := m.wal.Flush(); err != nil {
		return err
	}
	m.locks.ReleaseAll(t.ID)
	t.Writes = nil
	t.State = Aborted
	delete(m.active, t.ID)
	log.WithField("txn", t.ID).Info("abort")
	return nil
}

// reverseApply walks t's write-set in reverse, undoing each write through
// the catalog's rollback hooks. Callers hold m.mu.
func (m *Manager) reverseApply(t *Transaction) error {
	for i := len(t.Writes) - 1; i >= 0; i-- {
		w := t.Writes[i]
		var err error
		switch w.Op {
		case OpInsert:
			err = m.cat.RollbackInsert(w.Table, w.Rid)
		case OpDelete:
			err = m.cat.RollbackDelete(w.Table, w.Rid, w.Before)
		case OpUpdate:
			err = m.cat.RollbackUpdate(w.Table, w.Rid, w.Before)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Undo reverses t's write-set without appending a new WAL record: used by
// the recovery manager, both when it meets an ABORT record mid-redo (the
// original abort already defined the log's stopping point) and at the end
// of the undo pass for transactions still active at end-of-log.
func (m *Manager) Undo(t *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.reverseApply(t); err != nil {
		return err
	}
	m.locks.ReleaseAll(t.ID)
	t.Writes = nil
	t.State = Aborted
	delete(m.active, t.ID)
	return nil
}

// LockForRead acquires the intention-shared table lock and shared record
// lock a read of rid needs under multi-granularity 2PL (spec §4.6).
func (m *Manager) LockForRead(t *Transaction, tableID uint32, rid types.Rid) error {
	if err := m.locks.Acquire(t.ID, lock.TableData(tableID), lock.IS); err != nil {
		return err
	}
	return m.locks.Acquire(t.ID, lock.RecordData(tableID, rid.PageNo, rid.SlotNo), lock.S)
}

// LockForWrite acquires the intention-exclusive table lock and exclusive
// record lock a mutation of rid needs.
func (m *Manager) LockForWrite(t *Transaction, tableID uint32, rid types.Rid) error {
	if err := m.locks.Acquire(t.ID, lock.TableData(tableID), lock.IX); err != nil {
		return err
	}
	return m.locks.Acquire(t.ID, lock.RecordData(tableID, rid.PageNo, rid.SlotNo), lock.X)
}

// LockTable acquires a whole-table lock directly, for operations like a
// full scan or bulk load that touch the table as a unit.
func (m *Manager) LockTable(t *Transaction, tableID uint32, mode lock.Mode) error {
	return m.locks.Acquire(t.ID, lock.TableData(tableID), mode)
}

// LogInsert appends an INSERT record for a row already written to the
// heap at rid, stamps the page's page-LSN header, and records the write
// in the write-set for undo.
func (m *Manager) LogInsert(t *Transaction, table string, rid types.Rid, after []byte) error {
	payload := EncodePayload(table, rid, nil, after)
	lsn := m.wal.Append(wal.Record{Type: wal.TypeInsert, TxnID: t.ID, PrevLSN: t.LastLSN, Payload: payload})
	t.LastLSN = lsn
	t.Writes = append(t.Writes, Write{Table: table, Op: OpInsert, Rid: rid})
	return m.stampPageLSN(table, rid, lsn)
}

// LogDelete appends a DELETE record for the row deleted from rid, stamps
// the page-LSN header, and keeps the before-image for undo.
func (m *Manager) LogDelete(t *Transaction, table string, rid types.Rid, before []byte) error {
	payload := EncodePayload(table, rid, before, nil)
	lsn := m.wal.Append(wal.Record{Type: wal.TypeDelete, TxnID: t.ID, PrevLSN: t.LastLSN, Payload: payload})
	t.LastLSN = lsn
	t.Writes = append(t.Writes, Write{Table: table, Op: OpDelete, Rid: rid, Before: before})
	return m.stampPageLSN(table, rid, lsn)
}

// LogUpdate appends an UPDATE record for rid, stamps the page-LSN header,
// and keeps before for undo and after for recovery's redo pass.
func (m *Manager) LogUpdate(t *Transaction, table string, rid types.Rid, before, after []byte) error {
	payload := EncodePayload(table, rid, before, after)
	lsn := m.wal.Append(wal.Record{Type: wal.TypeUpdate, TxnID: t.ID, PrevLSN: t.LastLSN, Payload: payload})
	t.LastLSN = lsn
	t.Writes = append(t.Writes, Write{Table: table, Op: OpUpdate, Rid: rid, Before: before})
	return m.stampPageLSN(table, rid, lsn)
}

// stampPageLSN sets the written page's page-LSN header to lsn now that the
// write is both applied and logged, satisfying the WAL invariant that a
// page must never claim an LSN the log does not yet cover (spec §4.7).
func (m *Manager) stampPageLSN(table string, rid types.Rid, lsn uint64) error {
	_, hf, err := m.cat.Table(table)
	if err != nil {
		return err
	}
	return hf.SetPageLSN(rid.PageNo, lsn)
}

// Active reports the active transaction for id, if any -- used by the
// recovery manager's redo pass to reinstall transactions from the log.
func (m *Manager) Active(id uint64) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.active[id]
	return t, ok
}

// ActiveTransactions returns a snapshot of every transaction still active,
// used by recovery's undo pass to know what remains to be reversed.
func (m *Manager) ActiveTransactions() []*Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Transaction, 0, len(m.active))
	for _, t := range m.active {
		out = append(out, t)
	}
	return out
}

// Install registers t (built by the recovery manager while replaying the
// log) as active, bypassing the normal Begin path since no fresh BEGIN
// record should be appended for a transaction recovery is reconstructing.
func (m *Manager) Install(t *Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[t.ID] = t
	if t.ID >= m.nextID {
		m.nextID = t.ID + 1
	}
}

// MarkCommitted finalizes a transaction recovery's redo pass found a
// COMMIT record for, without re-running the commit protocol (the original
// WAL record already exists; recovery just needs the bookkeeping cleared).
func (m *Manager) MarkCommitted(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.active[id]; ok {
		t.Writes = nil
		t.State = Committed
		delete(m.active, id)
	}
}
