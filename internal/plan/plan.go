// Package plan holds the Plan tree spec.md treats as an input the core
// accepts from an external planner (§1 "out of scope: ... the planner and
// optimizer"). CoreDB supplies a minimal one anyway so the repo is
// end-to-end runnable: Build turns an internal/parser statement into a
// Node tree by the simplest rule spec.md allows — an equality predicate
// on an indexed column's prefix becomes an IndexScan, everything else a
// SeqScan — which is exactly the "index selection" cost-based optimizing
// explicitly keeps in scope while ruling out anything fancier.
package plan

import "coredb/internal/types"

// CmpOp is a predicate's comparison operator.
type CmpOp int

const (
	OpEq CmpOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

// Cond is one normalized predicate: column compared against a literal
// value, the scanned table always on the left per spec §4.11.
type Cond struct {
	Col   string
	Op    CmpOp
	Value any
}

// Assignment is one SET clause of an UPDATE, optionally referencing the
// column's own current value for `col = col + literal` arithmetic.
type Assignment struct {
	Col       string
	Value     any
	AddToSelf bool // Value is added to the column's current value
}

// OrderKey is one key of a Sort node's comparator.
type OrderKey struct {
	Col        string
	Descending bool
}

// AggFunc identifies an aggregate function applied to a projected column.
type AggFunc int

const (
	AggNone AggFunc = iota
	AggSum
	AggMin
	AggMax
	AggCount
	AggCountStar
)

// AggSpec is one aggregate output column.
type AggSpec struct {
	Func AggFunc
	Col  string // ignored for AggCountStar
}

// Node is one plan tree node. Concrete node types below all implement it
// as a marker; internal/portal switches on the concrete type.
type Node interface {
	node()
}

// ScanPlan reads a table, either sequentially or through an index.
type ScanPlan struct {
	Table     string
	UseIndex  bool
	IndexCols []string // prefix of the chosen index's columns, UseIndex only
	Conds     []Cond   // equalities on IndexCols' leading columns, UseIndex only
	Range     *Cond    // one range bound on the column right after Conds, UseIndex only
	Residual  []Cond   // remaining predicates applied after the scan
}

func (*ScanPlan) node() {}

// JoinPlan is a nested-loop join of two child plans.
type JoinPlan struct {
	Left, Right Node
	LeftCol     string
	RightCol    string
}

func (*JoinPlan) node() {}

// SortPlan materializes and orders its child.
type SortPlan struct {
	Child Node
	Keys  []OrderKey
}

func (*SortPlan) node() {}

// ProjectionPlan projects columns and, if Aggs is non-empty, reduces the
// child to one row of aggregate results. Limit < 0 means unbounded.
type ProjectionPlan struct {
	Child   Node
	Columns []string
	Aggs    []AggSpec
	Limit   int
}

func (*ProjectionPlan) node() {}

// InsertPlan inserts one literal row into Table.
type InsertPlan struct {
	Table  string
	Values []any
}

func (*InsertPlan) node() {}

// UpdatePlan applies Assignments to every row Source yields.
type UpdatePlan struct {
	Table       string
	Source      Node
	Assignments []Assignment
}

func (*UpdatePlan) node() {}

// DeletePlan removes every row Source yields.
type DeletePlan struct {
	Table  string
	Source Node
}

func (*DeletePlan) node() {}

// BulkLoadPlan ingests pre-typed rows directly, bypassing the log per
// spec §4.11 — the caller promises Table is empty and this runs outside
// any transaction it intends to roll back.
type BulkLoadPlan struct {
	Table string
	Rows  []types.Row
}

func (*BulkLoadPlan) node() {}
