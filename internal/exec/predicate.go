package exec

import (
	"fmt"

	"coredb/internal/dberr"
	"coredb/internal/plan"
	"coredb/internal/types"
)

// evalConds reports whether row satisfies every one of conds, evaluated
// against row's already-decoded values.
func evalConds(row types.Row, conds []plan.Cond) (bool, error) {
	for _, c := range conds {
		ok, err := evalCond(row, c)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalCond(row types.Row, c plan.Cond) (bool, error) {
	v, ok := row.Get(c.Col)
	if !ok {
		return false, dberr.ColumnNotFound(c.Col)
	}
	cmp, err := compareValues(v, c.Value)
	if err != nil {
		return false, err
	}
	switch c.Op {
	case plan.OpEq:
		return cmp == 0, nil
	case plan.OpNe:
		return cmp != 0, nil
	case plan.OpLt:
		return cmp < 0, nil
	case plan.OpLe:
		return cmp <= 0, nil
	case plan.OpGt:
		return cmp > 0, nil
	case plan.OpGe:
		return cmp >= 0, nil
	default:
		return false, dberr.Unreachable("exec: unknown comparison operator")
	}
}

// compareValues orders a against b: numerically if both are numbers
// (widening int to float as types.Encode does), lexicographically if both
// are strings.
func compareValues(a, b any) (int, error) {
	if af, aok := asNumber(a); aok {
		if bf, bok := asNumber(b); bok {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			switch {
			case as < bs:
				return -1, nil
			case as > bs:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	return 0, dberr.IncompatibleTypes(fmt.Sprintf("cannot compare %T and %T", a, b))
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
