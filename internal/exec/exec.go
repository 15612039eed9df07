// Package exec implements the Volcano-model executors spec §4.11 names:
// SeqScan, IndexScan, NestedLoopJoin, Sort, Projection/Aggregation, Insert,
// Update, Delete, and BulkLoad. Grounded structurally on the teacher's
// query_executor/vm.go opcode handlers (OP_INSERT, OP_SELECT, ...), but
// rebuilt as a tree of pull-based iterators instead of a flat bytecode
// dispatch loop, since internal/portal walks a plan.Node tree rather than
// a bytecode stream.
package exec

import (
	"coredb/internal/catalog"
	"coredb/internal/txn"
	"coredb/internal/types"
)

// Tuple is one row flowing through an iterator tree, carrying the rid it
// came from so a downstream Update/Delete/IndexScan never has to re-derive
// it. Rid is the zero value for tuples that were never heap-backed
// (a Projection's aggregate row, a joined row stitched from two sides).
type Tuple struct {
	Row types.Row
	Rid types.Rid
}

// Iterator is the common shape every executor implements: spec §4.11's
// begin/next/end/pull()/cols()/tuple_len, rendered the idiomatic-Go way as
// Open/Next/Close plus a static Cols(). tuple_len is just len(Cols()); no
// separate method earns its keep.
type Iterator interface {
	// Open performs spec's "begin": positions the iterator at its first
	// tuple (or acquires whatever upfront locks/resources it needs).
	Open() error
	// Next is spec's "next" + "pull()" fused: advances and returns the
	// next tuple, or ok=false once the iterator is exhausted.
	Next() (Tuple, bool, error)
	// Close is spec's "end": releases any resources Open acquired.
	Close() error
	// Cols is spec's "cols()": the column layout tuples emitted by this
	// iterator will have.
	Cols() []string
}

// Context carries the handles every executor needs: the catalog for
// table/index lookups, the transaction manager for locking and logging,
// and the transaction the statement runs under.
type Context struct {
	Cat  *catalog.Catalog
	Txns *txn.Manager
	Tx   *txn.Transaction
}
