package exec

import (
	"strings"

	"coredb/internal/dberr"
	"coredb/internal/heap"
	"coredb/internal/index"
	"coredb/internal/lock"
	"coredb/internal/plan"
	"coredb/internal/types"
)

// IndexScan walks a B+-tree index between a composite low/high bound built
// from the planner's equality/range predicates, applying the residual
// filter and acquiring a shared row lock on each qualifying record, same
// as SeqScan (spec §4.11).
type IndexScan struct {
	ctx     *Context
	plan    *plan.ScanPlan
	cols    []string
	tab     types.TabMeta
	hf      *heap.File
	tableID uint32
	sc      *index.Scan
}

func NewIndexScan(ctx *Context, p *plan.ScanPlan) *IndexScan {
	return &IndexScan{ctx: ctx, plan: p}
}

func (s *IndexScan) Open() error {
	tab, hf, err := s.ctx.Cat.Table(s.plan.Table)
	if err != nil {
		return err
	}
	tableID, err := s.ctx.Cat.TableID(s.plan.Table)
	if err != nil {
		return err
	}
	if err := s.ctx.Txns.LockTable(s.ctx.Tx, tableID, lock.IS); err != nil {
		return err
	}
	tree, im, ok := s.ctx.Cat.IndexTree(s.plan.Table, s.plan.IndexCols)
	if !ok {
		return dberr.IndexNotFound(strings.Join(s.plan.IndexCols, ","))
	}
	low, high, err := indexBounds(tab, im, s.plan.Conds, s.plan.Range)
	if err != nil {
		return err
	}
	sc, err := tree.NewScan(low, high)
	if err != nil {
		return err
	}
	s.tab, s.hf, s.tableID, s.sc = tab, hf, tableID, sc
	s.cols = make([]string, len(tab.Cols))
	for i, c := range tab.Cols {
		s.cols[i] = c.Name
	}
	return nil
}

func (s *IndexScan) Next() (Tuple, bool, error) {
	for {
		_, rid, ok, err := s.sc.Next()
		if err != nil {
			return Tuple{}, false, err
		}
		if !ok {
			return Tuple{}, false, nil
		}
		rec, err := s.hf.Fetch(rid)
		if err != nil {
			return Tuple{}, false, err
		}
		row := types.Decode(s.tab, rec)
		match, err := evalConds(row, s.plan.Residual)
		if err != nil {
			return Tuple{}, false, err
		}
		if !match {
			continue
		}
		if err := s.ctx.Txns.LockForRead(s.ctx.Tx, s.tableID, rid); err != nil {
			return Tuple{}, false, err
		}
		return Tuple{Row: row, Rid: rid}, true, nil
	}
}

func (s *IndexScan) Close() error {
	if s.sc != nil {
		return s.sc.Close()
	}
	return nil
}

func (s *IndexScan) Cols() []string { return s.cols }
