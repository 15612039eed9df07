package exec

// Delete removes every row its source child yields (spec §4.11), same
// lock-manager/WAL wiring as Insert and Update. Emits the deleted row's
// before-image as each one is removed.
type Delete struct {
	ctx    *Context
	table  string
	source Iterator
}

func NewDelete(ctx *Context, table string, source Iterator) *Delete {
	return &Delete{ctx: ctx, table: table, source: source}
}

func (d *Delete) Open() error { return d.source.Open() }

func (d *Delete) Next() (Tuple, bool, error) {
	t, ok, err := d.source.Next()
	if err != nil || !ok {
		return Tuple{}, false, err
	}
	if err := deleteRow(d.ctx, d.table, t.Rid, t.Row); err != nil {
		return Tuple{}, false, err
	}
	return t, true, nil
}

func (d *Delete) Close() error { return d.source.Close() }

func (d *Delete) Cols() []string { return d.source.Cols() }
