package exec

import "coredb/internal/plan"

// Update applies Assignments to every row its source child yields (spec
// §4.11), grounded on storage_engine/exec_update.go generalized the same
// way Insert is: lock manager plus internal/txn's WAL append in place of
// the teacher's direct wal_manager call. Each row is re-read, assigned,
// re-type-checked, and rewritten as it is consumed, so Update streams one
// updated row out per source row rather than materializing the whole set.
type Update struct {
	ctx         *Context
	table       string
	source      Iterator
	assignments []plan.Assignment
}

func NewUpdate(ctx *Context, table string, source Iterator, assignments []plan.Assignment) *Update {
	return &Update{ctx: ctx, table: table, source: source, assignments: assignments}
}

func (u *Update) Open() error { return u.source.Open() }

func (u *Update) Next() (Tuple, bool, error) {
	t, ok, err := u.source.Next()
	if err != nil || !ok {
		return Tuple{}, false, err
	}
	after, err := updateRow(u.ctx, u.table, t.Rid, t.Row, u.assignments)
	if err != nil {
		return Tuple{}, false, err
	}
	return Tuple{Row: after, Rid: t.Rid}, true, nil
}

func (u *Update) Close() error { return u.source.Close() }

func (u *Update) Cols() []string { return u.source.Cols() }
