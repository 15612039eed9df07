package exec

import (
	"coredb/internal/heap"
	"coredb/internal/lock"
	"coredb/internal/plan"
	"coredb/internal/types"
)

// SeqScan walks every record of a table in physical order, applying the
// residual filter and acquiring a shared row lock on each qualifying
// record before it is emitted (spec §4.11). Grounded on the teacher's
// heap-file iteration in exec_select.go, rebuilt over heap.Scan so the
// lock/filter/emit sequencing lives here instead of inside the heap file.
type SeqScan struct {
	ctx   *Context
	table string
	cols  []string
	conds []plan.Cond

	tab     types.TabMeta
	hf      *heap.File
	tableID uint32
	sc      *heap.Scan
}

func NewSeqScan(ctx *Context, p *plan.ScanPlan) *SeqScan {
	return &SeqScan{ctx: ctx, table: p.Table, conds: p.Residual}
}

func (s *SeqScan) Open() error {
	tab, hf, err := s.ctx.Cat.Table(s.table)
	if err != nil {
		return err
	}
	tableID, err := s.ctx.Cat.TableID(s.table)
	if err != nil {
		return err
	}
	if err := s.ctx.Txns.LockTable(s.ctx.Tx, tableID, lock.IS); err != nil {
		return err
	}
	sc, err := heap.NewScan(hf)
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

func (s *SeqScan) Next() (Tuple, bool, error) {
	for {
		rid, rec, ok, err := s.sc.Next()
		if err != nil {
			return Tuple{}, false, err
		}
		if !ok {
			return Tuple{}, false, nil
		}
		row := types.Decode(s.tab, rec)
		match, err := evalConds(row, s.conds)
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

func (s *SeqScan) Close() error {
	if s.sc != nil {
		return s.sc.Close()
	}
	return nil
}

func (s *SeqScan) Cols() []string { return s.cols }
