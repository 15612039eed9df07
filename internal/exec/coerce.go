package exec

import (
	"fmt"

	"coredb/internal/dberr"
	"coredb/internal/types"
)

// coerceValue widens v to col's column type the way spec §4.11's Insert
// requires (int -> bigint, int -> float, datetime passed through in its
// canonical 19-byte form) and type-checks it, returning a proper
// dberr.IncompatibleTypes/StringOverflow instead of types.Encode's
// generic error on mismatch.
func coerceValue(col types.ColMeta, v any) (any, error) {
	switch col.Type {
	case types.ColTypeInt, types.ColTypeBigInt:
		n, ok := asIntLoose(v)
		if !ok {
			return nil, dberr.IncompatibleTypes(fmt.Sprintf("column %q expects an integer, got %T", col.Name, v))
		}
		return n, nil
	case types.ColTypeFloat:
		f, ok := asFloatLoose(v)
		if !ok {
			return nil, dberr.IncompatibleTypes(fmt.Sprintf("column %q expects a number, got %T", col.Name, v))
		}
		return f, nil
	case types.ColTypeString:
		s, ok := v.(string)
		if !ok {
			return nil, dberr.IncompatibleTypes(fmt.Sprintf("column %q expects a string, got %T", col.Name, v))
		}
		if len(s) > col.Len {
			return nil, dberr.StringOverflow(col.Name, col.Len)
		}
		return s, nil
	case types.ColTypeDatetime:
		s, ok := v.(string)
		if !ok || len(s) != 19 {
			return nil, dberr.IncompatibleTypes(fmt.Sprintf("column %q expects a 19-byte canonical datetime", col.Name))
		}
		return s, nil
	default:
		return nil, dberr.Unreachable("exec: unknown column type")
	}
}

func asIntLoose(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	default:
		return 0, false
	}
}

func asFloatLoose(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

// coerceRow builds a fully typed Row from values positioned in tab.Cols
// order, the shape plan.InsertPlan.Values and a SET-applied update row
// both need before they can be encoded.
func coerceRow(tab types.TabMeta, values []any) (types.Row, error) {
	if len(values) != len(tab.Cols) {
		return types.Row{}, dberr.InvalidValueCount(len(tab.Cols), len(values))
	}
	row := types.NewRow()
	for i, col := range tab.Cols {
		v, err := coerceValue(col, values[i])
		if err != nil {
			return types.Row{}, err
		}
		row.Set(col.Name, v)
	}
	return row, nil
}
