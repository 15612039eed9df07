package exec

import (
	"coredb/internal/dberr"
	"coredb/internal/plan"
	"coredb/internal/types"
)

// Projection projects the configured columns, or if Aggs is set, consumes
// the child to completion and emits a single row of aggregate results
// (spec §4.11). Limit < 0 means unbounded.
type Projection struct {
	child   Iterator
	columns []string
	aggs    []plan.AggSpec
	limit   int

	emitted int
	aggDone bool
}

func NewProjection(child Iterator, columns []string, aggs []plan.AggSpec, limit int) *Projection {
	return &Projection{child: child, columns: columns, aggs: aggs, limit: limit}
}

func (p *Projection) Open() error { return p.child.Open() }

func (p *Projection) Next() (Tuple, bool, error) {
	if len(p.aggs) > 0 {
		return p.nextAgg()
	}
	if p.limit >= 0 && p.emitted >= p.limit {
		return Tuple{}, false, nil
	}
	t, ok, err := p.child.Next()
	if err != nil || !ok {
		return Tuple{}, false, err
	}
	p.emitted++
	return Tuple{Row: projectRow(t.Row, p.columns), Rid: t.Rid}, true, nil
}

func (p *Projection) nextAgg() (Tuple, bool, error) {
	if p.aggDone {
		return Tuple{}, false, nil
	}
	p.aggDone = true

	accs := make([]aggAccumulator, len(p.aggs))
	for i, spec := range p.aggs {
		accs[i] = newAggAccumulator(spec)
	}
	count := int64(0)
	for {
		t, ok, err := p.child.Next()
		if err != nil {
			return Tuple{}, false, err
		}
		if !ok {
			break
		}
		count++
		for i, spec := range p.aggs {
			if spec.Func == plan.AggCountStar {
				continue
			}
			v, ok := t.Row.Get(spec.Col)
			if !ok {
				return Tuple{}, false, dberr.ColumnNotFound(spec.Col)
			}
			if err := accs[i].add(v); err != nil {
				return Tuple{}, false, err
			}
		}
	}

	row := types.NewRow()
	for i, spec := range p.aggs {
		name := aggColName(spec)
		if spec.Func == plan.AggCountStar || spec.Func == plan.AggCount {
			row.Set(name, count)
		} else {
			row.Set(name, accs[i].result())
		}
	}
	return Tuple{Row: row}, true, nil
}

func (p *Projection) Close() error { return p.child.Close() }

func (p *Projection) Cols() []string {
	if len(p.aggs) > 0 {
		names := make([]string, len(p.aggs))
		for i, spec := range p.aggs {
			names[i] = aggColName(spec)
		}
		return names
	}
	if len(p.columns) == 1 && p.columns[0] == "*" {
		return p.child.Cols()
	}
	return p.columns
}

func aggColName(spec plan.AggSpec) string {
	switch spec.Func {
	case plan.AggCountStar:
		return "count"
	case plan.AggSum:
		return "sum_" + spec.Col
	case plan.AggMin:
		return "min_" + spec.Col
	case plan.AggMax:
		return "max_" + spec.Col
	case plan.AggCount:
		return "count_" + spec.Col
	default:
		return spec.Col
	}
}

func projectRow(row types.Row, columns []string) types.Row {
	if len(columns) == 1 && columns[0] == "*" {
		return row
	}
	out := types.NewRow()
	for _, c := range columns {
		if v, ok := row.Get(c); ok {
			out.Set(c, v)
		}
	}
	return out
}

// aggAccumulator folds one aggregate function over a column's values.
type aggAccumulator interface {
	add(v any) error
	result() any
}

func newAggAccumulator(spec plan.AggSpec) aggAccumulator {
	switch spec.Func {
	case plan.AggSum:
		return &sumAcc{}
	case plan.AggMin:
		return &minMaxAcc{wantMax: false}
	case plan.AggMax:
		return &minMaxAcc{wantMax: true}
	default:
		return &noopAcc{}
	}
}

type sumAcc struct {
	sum   float64
	isInt bool
	first bool
}

func (a *sumAcc) add(v any) error {
	f, ok := asNumber(v)
	if !ok {
		return dberr.IncompatibleTypes("SUM requires a numeric column")
	}
	if !a.first {
		_, a.isInt = v.(int64)
		a.first = true
	}
	a.sum += f
	return nil
}

func (a *sumAcc) result() any {
	if a.isInt {
		return int64(a.sum)
	}
	return a.sum
}

type minMaxAcc struct {
	wantMax bool
	have    bool
	val     any
}

func (a *minMaxAcc) add(v any) error {
	if !a.have {
		a.val = v
		a.have = true
		return nil
	}
	cmp, err := compareValues(v, a.val)
	if err != nil {
		return err
	}
	if (a.wantMax && cmp > 0) || (!a.wantMax && cmp < 0) {
		a.val = v
	}
	return nil
}

func (a *minMaxAcc) result() any { return a.val }

type noopAcc struct{}

func (noopAcc) add(any) error { return nil }
func (noopAcc) result() any   { return nil }
