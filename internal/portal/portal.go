// Package portal turns a parsed statement into a running iterator tree
// and drains it into a client-ready Result (spec §4.12). Grounded
// structurally on the teacher's query_executor/vm.go, whose opcode
// dispatch loop is this package's nearest analog, generalized from
// interpreting a flat bytecode stream to walking a plan.Node tree since
// internal/plan hands CoreDB a typed tree rather than bytecode.
package portal

import (
	"fmt"

	"coredb/internal/catalog"
	"coredb/internal/coredblog"
	"coredb/internal/dberr"
	"coredb/internal/exec"
	"coredb/internal/parser"
	"coredb/internal/plan"
	"coredb/internal/txn"
	"coredb/internal/types"
)

var log = coredblog.Component("portal")

// Result is what one statement hands back to the wire protocol: a set of
// columns and rows for a query, or a row count and message for a write or
// DDL statement.
type Result struct {
	Columns      []string
	Rows         [][]any
	RowsAffected int64
	Message      string
}

// Portal is one client session's statement-execution context: it owns
// the (possibly nil) explicit transaction a BEGIN opened, and wraps every
// SELECT/INSERT/UPDATE/DELETE run without one in an implicit transaction
// of its own (spec §4.12). DDL and introspection statements run without a
// transaction.
type Portal struct {
	cat  *catalog.Catalog
	txns *txn.Manager
	tx   *txn.Transaction
}

// New builds a portal bound to the given catalog and transaction manager.
// cat and txns must already be open.
func New(cat *catalog.Catalog, txns *txn.Manager) *Portal {
	return &Portal{cat: cat, txns: txns}
}

// Execute parses and runs one statement end to end.
func (p *Portal) Execute(sql string) (Result, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return Result{}, err
	}
	return p.run(stmt)
}

func (p *Portal) run(stmt parser.Statement) (Result, error) {
	switch s := stmt.(type) {
	case *parser.BeginStmt:
		return p.begin()
	case *parser.CommitStmt:
		return p.commit()
	case *parser.AbortStmt:
		return p.abort()

	case *parser.CreateTableStmt:
		return p.createTable(s)
	case *parser.DropTableStmt:
		return p.dropTable(s)
	case *parser.CreateIndexStmt:
		return p.createIndex(s)
	case *parser.DropIndexStmt:
		return p.dropIndex(s)
	case *parser.ShowTablesStmt:
		return p.showTables()
	case *parser.DescTableStmt:
		return p.descTable(s)
	case *parser.ShowIndexStmt:
		return p.showIndex(s)

	case *parser.SelectStmt, *parser.InsertStmt, *parser.UpdateStmt, *parser.DeleteStmt:
		return p.runDML(stmt)

	default:
		return Result{}, dberr.Syntax("portal: unhandled statement type")
	}
}

// runDML builds a plan, runs it under p.tx if one is open, or under a
// fresh implicit transaction it commits or aborts itself otherwise (spec
// §4.12's implicit-transaction wrapping).
func (p *Portal) runDML(stmt parser.Statement) (Result, error) {
	node, err := plan.Build(p.cat, stmt)
	if err != nil {
		return Result{}, err
	}

	implicit := p.tx == nil
	tx := p.tx
	if implicit {
		tx, err = p.txns.Begin(nil)
		if err != nil {
			return Result{}, err
		}
	}

	ctx := &exec.Context{Cat: p.cat, Txns: p.txns, Tx: tx}
	it, err := build(ctx, node)
	if err != nil {
		if implicit {
			if aerr := p.txns.Abort(tx); aerr != nil {
				log.WithError(aerr).Warn("aborting implicit transaction after plan build failure")
			}
		}
		return Result{}, err
	}

	res, err := drain(it)
	if err != nil {
		if implicit {
			if aerr := p.txns.Abort(tx); aerr != nil {
				log.WithError(aerr).Warn("aborting implicit transaction after execution failure")
			}
		}
		return Result{}, err
	}

	if _, isQuery := stmt.(*parser.SelectStmt); !isQuery {
		// INSERT/UPDATE/DELETE report a row count, not the rows they wrote.
		res.Columns, res.Rows = nil, nil
	}

	if implicit {
		if err := p.txns.Commit(tx); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

// drain opens it, pulls every tuple, and closes it, building a Result
// with it.Cols() as Columns, one entry in Rows per tuple, and the tuple
// count as RowsAffected. Callers running a write drop Columns/Rows so only
// the count is rendered.
func drain(it exec.Iterator) (Result, error) {
	if err := it.Open(); err != nil {
		return Result{}, err
	}
	defer it.Close()

	cols := it.Cols()
	var rows [][]any
	for {
		t, ok, err := it.Next()
		if err != nil {
			return Result{}, err
		}
		if !ok {
			break
		}
		row := make([]any, len(cols))
		for i, c := range cols {
			v, _ := t.Row.Get(c)
			row[i] = v
		}
		rows = append(rows, row)
	}
	return Result{Columns: cols, Rows: rows, RowsAffected: int64(len(rows))}, nil
}

// build converts a plan.Node into the iterator tree exec's types
// implement, recursively wiring each child node first.
func build(ctx *exec.Context, node plan.Node) (exec.Iterator, error) {
	switch n := node.(type) {
	case *plan.ScanPlan:
		if n.UseIndex {
			return exec.NewIndexScan(ctx, n), nil
		}
		return exec.NewSeqScan(ctx, n), nil

	case *plan.JoinPlan:
		left, err := build(ctx, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := build(ctx, n.Right)
		if err != nil {
			return nil, err
		}
		return exec.NewNestedLoopJoin(left, right, n.LeftCol, n.RightCol), nil

	case *plan.SortPlan:
		child, err := build(ctx, n.Child)
		if err != nil {
			return nil, err
		}
		return exec.NewSort(child, n.Keys), nil

	case *plan.ProjectionPlan:
		child, err := build(ctx, n.Child)
		if err != nil {
			return nil, err
		}
		return exec.NewProjection(child, n.Columns, n.Aggs, n.Limit), nil

	case *plan.InsertPlan:
		return exec.NewInsert(ctx, n), nil

	case *plan.UpdatePlan:
		source, err := build(ctx, n.Source)
		if err != nil {
			return nil, err
		}
		return exec.NewUpdate(ctx, n.Table, source, n.Assignments), nil

	case *plan.DeletePlan:
		source, err := build(ctx, n.Source)
		if err != nil {
			return nil, err
		}
		return exec.NewDelete(ctx, n.Table, source), nil

	case *plan.BulkLoadPlan:
		return exec.NewBulkLoad(ctx, n), nil

	default:
		return nil, dberr.Unreachable("portal: unknown plan node type")
	}
}

func (p *Portal) begin() (Result, error) {
	tx, err := p.txns.Begin(p.tx)
	if err != nil {
		return Result{}, err
	}
	p.tx = tx
	return Result{Message: "BEGIN"}, nil
}

func (p *Portal) commit() (Result, error) {
	if p.tx == nil {
		return Result{}, dberr.Syntax("portal: COMMIT with no active transaction")
	}
	err := p.txns.Commit(p.tx)
	p.tx = nil
	if err != nil {
		return Result{}, err
	}
	return Result{Message: "COMMIT"}, nil
}

func (p *Portal) abort() (Result, error) {
	if p.tx == nil {
		return Result{}, dberr.Syntax("portal: ROLLBACK with no active transaction")
	}
	err := p.txns.Abort(p.tx)
	p.tx = nil
	if err != nil {
		return Result{}, err
	}
	return Result{Message: "ROLLBACK"}, nil
}

// BulkLoad runs a load-from-file ingestion directly, bypassing the SQL
// parser entirely -- internal/server decodes "load <path> into <table>"
// into pre-typed rows before calling this (spec §6).
func (p *Portal) BulkLoad(table string, rows []types.Row) (Result, error) {
	if p.tx != nil {
		return Result{}, dberr.Syntax("portal: bulk load inside an explicit transaction")
	}
	ctx := &exec.Context{Cat: p.cat, Txns: p.txns, Tx: p.tx}
	it := exec.NewBulkLoad(ctx, &plan.BulkLoadPlan{Table: table, Rows: rows})
	res, err := drain(it)
	if err != nil {
		return Result{}, err
	}
	res.Columns, res.Rows = nil, nil
	log.WithField("table", table).WithField("rows", res.RowsAffected).Info("bulk load")
	return res, nil
}

func (p *Portal) createTable(s *parser.CreateTableStmt) (Result, error) {
	cols := make([]types.ColMeta, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = types.ColMeta{Name: c.Name, Type: colType(c.Type), Len: c.Len}
	}
	if err := p.cat.CreateTable(s.Table, cols); err != nil {
		return Result{}, err
	}
	return Result{Message: fmt.Sprintf("table %q created", s.Table)}, nil
}

func colType(s string) types.ColType {
	switch s {
	case "INT":
		return types.ColTypeInt
	case "BIGINT":
		return types.ColTypeBigInt
	case "FLOAT":
		return types.ColTypeFloat
	case "DATETIME":
		return types.ColTypeDatetime
	default:
		return types.ColTypeString
	}
}

func (p *Portal) dropTable(s *parser.DropTableStmt) (Result, error) {
	if err := p.cat.DropTable(s.Table); err != nil {
		return Result{}, err
	}
	return Result{Message: fmt.Sprintf("table %q dropped", s.Table)}, nil
}

func (p *Portal) createIndex(s *parser.CreateIndexStmt) (Result, error) {
	if err := p.cat.CreateIndex(s.Table, s.Cols); err != nil {
		return Result{}, err
	}
	return Result{Message: fmt.Sprintf("index on %s(%v) created", s.Table, s.Cols)}, nil
}

func (p *Portal) dropIndex(s *parser.DropIndexStmt) (Result, error) {
	if err := p.cat.DropIndex(s.Table, s.Cols); err != nil {
		return Result{}, err
	}
	return Result{Message: fmt.Sprintf("index on %s(%v) dropped", s.Table, s.Cols)}, nil
}

func (p *Portal) showTables() (Result, error) {
	names := p.cat.ShowTables()
	rows := make([][]any, len(names))
	for i, n := range names {
		rows[i] = []any{n}
	}
	return Result{Columns: []string{"table"}, Rows: rows}, nil
}

func (p *Portal) descTable(s *parser.DescTableStmt) (Result, error) {
	tab, err := p.cat.DescTable(s.Table)
	if err != nil {
		return Result{}, err
	}
	rows := make([][]any, len(tab.Cols))
	for i, c := range tab.Cols {
		rows[i] = []any{c.Name, c.Type.String(), c.Len}
	}
	return Result{Columns: []string{"column", "type", "length"}, Rows: rows}, nil
}

func (p *Portal) showIndex(s *parser.ShowIndexStmt) (Result, error) {
	idxs, err := p.cat.ShowIndex(s.Table)
	if err != nil {
		return Result{}, err
	}
	rows := make([][]any, len(idxs))
	for i, im := range idxs {
		rows[i] = []any{fmt.Sprintf("%v", im.Cols)}
	}
	return Result{Columns: []string{"columns"}, Rows: rows}, nil
}
