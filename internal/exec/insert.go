package exec

import "coredb/internal/plan"

// Insert writes a single literal row (spec §4.11), grounded on
// storage_engine/exec_insert.go generalized to route the write through
// the lock manager and internal/txn's WAL append instead of the
// teacher's direct call into its own wal_manager. Emits the inserted row
// once, then is exhausted.
type Insert struct {
	ctx  *Context
	plan *plan.InsertPlan
	done bool
}

func NewInsert(ctx *Context, p *plan.InsertPlan) *Insert {
	return &Insert{ctx: ctx, plan: p}
}

func (ins *Insert) Open() error { return nil }

func (ins *Insert) Next() (Tuple, bool, error) {
	if ins.done {
		return Tuple{}, false, nil
	}
	ins.done = true
	rid, row, err := insertRow(ins.ctx, ins.plan.Table, ins.plan.Values)
	if err != nil {
		return Tuple{}, false, err
	}
	return Tuple{Row: row, Rid: rid}, true, nil
}

func (ins *Insert) Close() error { return nil }

func (ins *Insert) Cols() []string {
	tab, _, err := ins.ctx.Cat.Table(ins.plan.Table)
	if err != nil {
		return nil
	}
	names := make([]string, len(tab.Cols))
	for i, c := range tab.Cols {
		names[i] = c.Name
	}
	return names
}
