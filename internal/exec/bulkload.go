package exec

import (
	"coredb/internal/dberr"
	"coredb/internal/heap"
	"coredb/internal/plan"
	"coredb/internal/types"
)

// BulkLoad ingests pre-typed rows straight into the heap and its indexes,
// bypassing the WAL (spec §4.11) -- grounded on the straight-line CSV
// ingestion cmd/seed performs by issuing one INSERT per row, generalized
// here into an iterator that skips both the per-row parse and the log
// append the teacher's approach still goes through. The caller (the
// portal, refusing to run this plan inside an explicit transaction) is
// responsible for guaranteeing nothing downstream ever needs to undo it;
// BulkLoad itself only guarantees the table is empty before it starts.
type BulkLoad struct {
	ctx  *Context
	plan *plan.BulkLoadPlan
	pos  int
	tab  types.TabMeta
	hf   *heap.File
}

func NewBulkLoad(ctx *Context, p *plan.BulkLoadPlan) *BulkLoad {
	return &BulkLoad{ctx: ctx, plan: p}
}

func (b *BulkLoad) Open() error {
	tab, hf, err := b.ctx.Cat.Table(b.plan.Table)
	if err != nil {
		return err
	}
	sc, err := heap.NewScan(hf)
	if err != nil {
		return err
	}
	_, _, hasRows, err := sc.Next()
	if err != nil {
		sc.Close()
		return err
	}
	if err := sc.Close(); err != nil {
		return err
	}
	if hasRows {
		return dberr.TableNotEmpty(b.plan.Table)
	}
	b.tab, b.hf = tab, hf
	return nil
}

func (b *BulkLoad) Next() (Tuple, bool, error) {
	if b.pos >= len(b.plan.Rows) {
		return Tuple{}, false, nil
	}
	row := b.plan.Rows[b.pos]
	b.pos++

	rec, err := types.Encode(b.tab, row)
	if err != nil {
		return Tuple{}, false, err
	}
	rid, err := b.hf.Insert(rec)
	if err != nil {
		return Tuple{}, false, err
	}
	if err := insertIndexEntries(b.ctx, b.tab, row, rid); err != nil {
		b.hf.Delete(rid)
		return Tuple{}, false, err
	}
	return Tuple{Row: row, Rid: rid}, true, nil
}

func (b *BulkLoad) Close() error { return nil }

func (b *BulkLoad) Cols() []string {
	names := make([]string, len(b.tab.Cols))
	for i, c := range b.tab.Cols {
		names[i] = c.Name
	}
	return names
}
