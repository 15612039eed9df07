// Package recovery implements the three-pass ARIES-style crash recovery
// algorithm (spec §4.9), run once at startup before the engine accepts any
// queries. Grounded on RecoverFromWAL in the teacher -- a single pass
// building committed/aborted sets, then a redo sweep, then an undo sweep
// in reverse -- but split into the spec's genuinely separate
// analyze/redo/undo passes, and generalized past the teacher's own
// documented limitation ("before-image not in WAL, cannot undo update")
// by having internal/txn log a real before-image for every write, so
// update undo works the same way during recovery as during a live abort.
package recovery

import (
	"coredb/internal/catalog"
	"coredb/internal/coredblog"
	"coredb/internal/txn"
	"coredb/internal/wal"
)

var log = coredblog.Component("recovery")

// Manager owns one full recovery run over an already-open log, catalog,
// and transaction manager.
type Manager struct {
	wal  *wal.Manager
	cat  *catalog.Catalog
	txns *txn.Manager
}

// New builds a recovery manager. walMgr, cat, and txns must already be
// open; Run should execute before anything else touches them.
func New(walMgr *wal.Manager, cat *catalog.Catalog, txns *txn.Manager) *Manager {
	return &Manager{wal: walMgr, cat: cat, txns: txns}
}

// Run executes Analyze, Redo, then Undo in order (spec §4.9).
func (m *Manager) Run() error {
	records, err := m.analyze()
	if err != nil {
		return err
	}
	log.WithField("records", len(records)).Info("analyze pass complete")

	if err := m.redo(records); err != nil {
		return err
	}
	log.Info("redo pass complete")

	if err := m.undo(); err != nil {
		return err
	}
	log.Info("undo pass complete")
	return nil
}

// analyze scans the whole log in order. wal.Manager.Scan already stops at
// EOF or the first undecodable (torn) record, which is the pass's natural
// stopping point per spec §4.9.
func (m *Manager) analyze() ([]wal.Record, error) {
	var records []wal.Record
	err := m.wal.Scan(func(rec wal.Record, _ int64) error {
		records = append(records, rec)
		return nil
	})
	return records, err
}

// redo walks the log forward. BEGIN installs a transaction so undo can
// later reach it; COMMIT finalizes it; ABORT runs its undo immediately
// using whatever write-set it accumulated earlier in this same pass;
// INSERT/UPDATE/DELETE reapply through the catalog's recovery_* hooks
// (gated on page_lsn < record_lsn) and extend the transaction's write-set
// with the before-image carried in the record's own payload.
func (m *Manager) redo(records []wal.Record) error {
	for _, rec := range records {
		switch rec.Type {
		case wal.TypeBegin:
			m.txns.Install(&txn.Transaction{ID: rec.TxnID, State: txn.Active, LastLSN: rec.LSN})

		case wal.TypeCommit:
			m.txns.MarkCommitted(rec.TxnID)

		case wal.TypeAbort:
			t, ok := m.txns.Active(rec.TxnID)
			if !ok {
				continue
			}
			if err := m.txns.Undo(t); err != nil {
				return err
			}

		case wal.TypeInsert:
			table, rid, _, after := txn.DecodePayload(rec.Payload)
			if err := m.cat.RecoveryInsert(table, rid, after, rec.LSN); err != nil {
				return err
			}
			m.appendWrite(rec.TxnID, txn.Write{Table: table, Op: txn.OpInsert, Rid: rid})

		case wal.TypeDelete:
			table, rid, before, _ := txn.DecodePayload(rec.Payload)
			if err := m.cat.RecoveryDelete(table, rid, rec.LSN); err != nil {
				return err
			}
			m.appendWrite(rec.TxnID, txn.Write{Table: table, Op: txn.OpDelete, Rid: rid, Before: before})

		case wal.TypeUpdate:
			table, rid, before, after := txn.DecodePayload(rec.Payload)
			if err := m.cat.RecoveryUpdate(table, rid, after, rec.LSN); err != nil {
				return err
			}
			m.appendWrite(rec.TxnID, txn.Write{Table: table, Op: txn.OpUpdate, Rid: rid, Before: before})
		}
	}
	return nil
}

// appendWrite records a reapplied write into the reconstructed
// transaction's write-set so a later undo can reverse it, per spec §4.10's
// recovery_* contract. A missing transaction means its BEGIN fell outside
// the scanned log (should not happen once analyze has run); skip rather
// than fail recovery over bookkeeping for a transaction nothing can undo.
func (m *Manager) appendWrite(txnID uint64, w txn.Write) {
	t, ok := m.txns.Active(txnID)
	if !ok {
		log.WithField("txn", txnID).Warn("write record for transaction with no BEGIN in log")
		return
	}
	t.Writes = append(t.Writes, w)
}

// undo reverses every transaction still active at end-of-log: it began
// but neither committed nor aborted before the crash.
func (m *Manager) undo() error {
	for _, t := range m.txns.ActiveTransactions() {
		log.WithField("txn", t.ID).Warn("undoing transaction left active at end of log")
		if err := m.txns.Undo(t); err != nil {
			return err
		}
	}
	return nil
}
