package plan

import (
	"coredb/internal/catalog"
	"coredb/internal/dberr"
	"coredb/internal/parser"
	"coredb/internal/types"
)

// Build converts a parsed statement into a Node tree, looking up cat for
// index selection and column typing. DDL and utility statements (CREATE
// TABLE, SHOW, ...) have no plan representation — internal/portal
// executes those directly against the catalog instead.
func Build(cat *catalog.Catalog, stmt parser.Statement) (Node, error) {
	switch s := stmt.(type) {
	case *parser.SelectStmt:
		return buildSelect(cat, s)
	case *parser.InsertStmt:
		return buildInsert(cat, s)
	case *parser.UpdateStmt:
		return buildUpdate(cat, s)
	case *parser.DeleteStmt:
		return buildDelete(cat, s)
	default:
		return nil, dberr.Syntax("plan: no plan for this statement type")
	}
}

func convCmpOp(op parser.CmpOp) CmpOp { return CmpOp(op) }

// buildScan picks an IndexScan over tab when where contains an equality
// predicate on a prefix of some index's columns, else falls back to
// SeqScan — spec.md's only named planning decision ("index selection"),
// left deliberately this simple since cost-based optimization beyond it
// is an explicit non-goal.
func buildScan(tab types.TabMeta, where []parser.Cond) *ScanPlan {
	eqIdxByCol := map[string]int{}
	for i, c := range where {
		if c.Op == parser.OpEq {
			eqIdxByCol[normalizedCol(c.Col)] = i
		}
	}
	for _, im := range tab.Indexes {
		prefix := 0
		for _, col := range im.Cols {
			if _, ok := eqIdxByCol[normalizedCol(col)]; !ok {
				break
			}
			prefix++
		}
		if prefix == 0 {
			continue
		}
		usedCols := im.Cols[:prefix]
		consumed := make([]bool, len(where))
		conds := make([]Cond, prefix)
		for i, col := range usedCols {
			idx := eqIdxByCol[normalizedCol(col)]
			c := where[idx]
			conds[i] = Cond{Col: c.Col, Op: convCmpOp(c.Op), Value: c.Value}
			consumed[idx] = true
		}

		// One range predicate on the column right after the equality
		// prefix narrows the low/high bound further; spec §4.11's
		// "merging equality and range predicates over a prefix of the
		// index columns". Left in place in Residual too (not marked
		// consumed): the scan's [low, high] bound is inclusive on both
		// ends, so a strict < or > still needs the residual filter to
		// trim the boundary value itself.
		var rangeCond *Cond
		if prefix < len(im.Cols) {
			nextCol := normalizedCol(im.Cols[prefix])
			for i, c := range where {
				if consumed[i] || c.Op == parser.OpEq || normalizedCol(c.Col) != nextCol {
					continue
				}
				rc := Cond{Col: c.Col, Op: convCmpOp(c.Op), Value: c.Value}
				rangeCond = &rc
				break
			}
		}

		var residual []Cond
		for i, c := range where {
			if consumed[i] {
				continue
			}
			residual = append(residual, Cond{Col: c.Col, Op: convCmpOp(c.Op), Value: c.Value})
		}
		return &ScanPlan{Table: tab.Name, UseIndex: true, IndexCols: usedCols, Conds: conds, Range: rangeCond, Residual: residual}
	}
	return &ScanPlan{Table: tab.Name, Conds: nil, Residual: convConds(where)}
}

func normalizedCol(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func convConds(where []parser.Cond) []Cond {
	out := make([]Cond, len(where))
	for i, c := range where {
		out[i] = Cond{Col: c.Col, Op: convCmpOp(c.Op), Value: c.Value}
	}
	return out
}

func buildSelect(cat *catalog.Catalog, s *parser.SelectStmt) (Node, error) {
	tab, _, err := cat.Table(s.Table)
	if err != nil {
		return nil, err
	}

	var node Node = buildScan(tab, s.Where)

	if s.Join != nil {
		rightTab, _, err := cat.Table(s.Join.Table)
		if err != nil {
			return nil, err
		}
		rightScan := buildScan(rightTab, nil)
		node = &JoinPlan{Left: node, Right: rightScan, LeftCol: s.Join.LeftCol, RightCol: s.Join.RightCol}
	}

	if len(s.OrderBy) > 0 {
		keys := make([]OrderKey, len(s.OrderBy))
		for i, ob := range s.OrderBy {
			keys[i] = OrderKey{Col: ob.Col, Descending: ob.Descending}
		}
		node = &SortPlan{Child: node, Keys: keys}
	}

	limit := -1
	if s.Limit != nil {
		limit = *s.Limit
	}
	aggs := make([]AggSpec, len(s.Aggs))
	for i, a := range s.Aggs {
		aggs[i] = AggSpec{Func: AggFunc(a.Func), Col: a.Col}
	}
	return &ProjectionPlan{Child: node, Columns: s.Columns, Aggs: aggs, Limit: limit}, nil
}

func buildInsert(cat *catalog.Catalog, s *parser.InsertStmt) (Node, error) {
	tab, _, err := cat.Table(s.Table)
	if err != nil {
		return nil, err
	}
	if len(s.Values) != len(tab.Cols) {
		return nil, dberr.InvalidValueCount(len(tab.Cols), len(s.Values))
	}
	return &InsertPlan{Table: s.Table, Values: s.Values}, nil
}

func buildUpdate(cat *catalog.Catalog, s *parser.UpdateStmt) (Node, error) {
	tab, _, err := cat.Table(s.Table)
	if err != nil {
		return nil, err
	}
	assigns := make([]Assignment, len(s.Assignments))
	for i, a := range s.Assignments {
		assigns[i] = Assignment{Col: a.Col, Value: a.Value, AddToSelf: a.AddToSelf}
	}
	return &UpdatePlan{Table: s.Table, Source: buildScan(tab, s.Where), Assignments: assigns}, nil
}

func buildDelete(cat *catalog.Catalog, s *parser.DeleteStmt) (Node, error) {
	tab, _, err := cat.Table(s.Table)
	if err != nil {
		return nil, err
	}
	return &DeletePlan{Table: s.Table, Source: buildScan(tab, s.Where)}, nil
}
