package exec

import (
	"coredb/internal/plan"
	"coredb/internal/types"
)

// indexKeyForRow builds the composite key im's columns produce for a fully
// populated row, grounded on catalog's own buildKey but exported-equivalent
// since that helper is private to internal/catalog; used by Insert, Update,
// and Delete to find/maintain an index entry for a row they already hold
// in full.
func indexKeyForRow(tab types.TabMeta, im types.IndexMeta, row types.Row) ([]byte, error) {
	var key []byte
	for _, colName := range im.Cols {
		col, _ := tab.ColByName(colName)
		v, ok := row.Get(colName)
		if !ok {
			v = nil
		}
		b, err := types.EncodeColumn(col, v)
		if err != nil {
			return nil, err
		}
		key = append(key, b...)
	}
	return key, nil
}

// indexBounds builds the [low, high] composite key IndexScan searches
// between, per spec §4.11: literal equality values for the matched
// prefix, the range predicate's value narrowing the column right after
// it (only on the bound it actually constrains), and type-dependent
// min/max sentinels filling every column neither touches.
func indexBounds(tab types.TabMeta, im types.IndexMeta, conds []plan.Cond, rangeCond *plan.Cond) (low, high []byte, err error) {
	for i, colName := range im.Cols {
		col, _ := tab.ColByName(colName)

		if i < len(conds) {
			b, err := types.EncodeColumn(col, conds[i].Value)
			if err != nil {
				return nil, nil, err
			}
			low = append(low, b...)
			high = append(high, b...)
			continue
		}

		if rangeCond != nil && i == len(conds) {
			lowB, highB, err := rangeBound(col, *rangeCond)
			if err != nil {
				return nil, nil, err
			}
			low = append(low, lowB...)
			high = append(high, highB...)
			continue
		}

		low = append(low, types.MinSentinel(col)...)
		high = append(high, types.MaxSentinel(col)...)
	}
	return low, high, nil
}

func rangeBound(col types.ColMeta, c plan.Cond) (low, high []byte, err error) {
	v, err := types.EncodeColumn(col, c.Value)
	if err != nil {
		return nil, nil, err
	}
	switch c.Op {
	case plan.OpGt, plan.OpGe:
		return v, types.MaxSentinel(col), nil
	case plan.OpLt, plan.OpLe:
		return types.MinSentinel(col), v, nil
	default:
		return v, v, nil
	}
}
