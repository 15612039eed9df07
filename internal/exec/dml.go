package exec

import (
	"bytes"
	"strings"

	"coredb/internal/dberr"
	"coredb/internal/lock"
	"coredb/internal/plan"
	"coredb/internal/types"
)

// indexEntries maintains every index on tab in lockstep with a heap write,
// mirroring the pattern internal/catalog's RollbackInsert/RollbackDelete/
// RollbackUpdate use to fix up indexes during abort and redo -- the
// forward path needs the identical bookkeeping, just driven by the write
// itself instead of a write-set entry.

// insertIndexEntries adds row's key to every index on tab. If inserting
// into one index fails (most commonly a UniqueViolation), every index
// already touched for this row is unwound before the error is returned,
// so a partial insert never leaves the indexes inconsistent with the heap.
func insertIndexEntries(ctx *Context, tab types.TabMeta, row types.Row, rid types.Rid) error {
	var done []types.IndexMeta
	for _, im := range tab.Indexes {
		tree, _, ok := ctx.Cat.IndexTree(tab.Name, im.Cols)
		if !ok {
			continue
		}
		key, err := indexKeyForRow(tab, im, row)
		if err == nil {
			err = tree.Insert(strings.Join(im.Cols, ","), key, rid)
		}
		if err != nil {
			unwindInserts(ctx, tab, row, done)
			return err
		}
		done = append(done, im)
	}
	return nil
}

func unwindInserts(ctx *Context, tab types.TabMeta, row types.Row, done []types.IndexMeta) {
	for _, im := range done {
		tree, _, ok := ctx.Cat.IndexTree(tab.Name, im.Cols)
		if !ok {
			continue
		}
		if key, err := indexKeyForRow(tab, im, row); err == nil {
			tree.Delete(key)
		}
	}
}

// deleteIndexEntries removes row's key from every index on tab.
func deleteIndexEntries(ctx *Context, tab types.TabMeta, row types.Row) error {
	for _, im := range tab.Indexes {
		tree, _, ok := ctx.Cat.IndexTree(tab.Name, im.Cols)
		if !ok {
			continue
		}
		key, err := indexKeyForRow(tab, im, row)
		if err != nil {
			return err
		}
		if err := tree.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// updateIndexEntries swaps each index entry whose key the update changed,
// the same bytes.Equal skip RollbackUpdate uses to avoid touching an
// index a column change never reached. On failure every swap already
// made for this row is reversed before the error is returned.
func updateIndexEntries(ctx *Context, tab types.TabMeta, before, after types.Row, rid types.Rid) error {
	var done []types.IndexMeta
	for _, im := range tab.Indexes {
		tree, _, ok := ctx.Cat.IndexTree(tab.Name, im.Cols)
		if !ok {
			continue
		}
		oldKey, err := indexKeyForRow(tab, im, before)
		if err != nil {
			unwindSwaps(ctx, tab, before, after, rid, done)
			return err
		}
		newKey, err := indexKeyForRow(tab, im, after)
		if err != nil {
			unwindSwaps(ctx, tab, before, after, rid, done)
			return err
		}
		if bytes.Equal(oldKey, newKey) {
			continue
		}
		if err := tree.Delete(oldKey); err != nil {
			unwindSwaps(ctx, tab, before, after, rid, done)
			return err
		}
		if err := tree.Insert(strings.Join(im.Cols, ","), newKey, rid); err != nil {
			unwindSwaps(ctx, tab, before, after, rid, done)
			return err
		}
		done = append(done, im)
	}
	return nil
}

func unwindSwaps(ctx *Context, tab types.TabMeta, before, after types.Row, rid types.Rid, done []types.IndexMeta) {
	for _, im := range done {
		tree, _, ok := ctx.Cat.IndexTree(tab.Name, im.Cols)
		if !ok {
			continue
		}
		newKey, err := indexKeyForRow(tab, im, after)
		if err != nil {
			continue
		}
		oldKey, err := indexKeyForRow(tab, im, before)
		if err != nil {
			continue
		}
		tree.Delete(newKey)
		tree.Insert(strings.Join(im.Cols, ","), oldKey, rid)
	}
}

// insertRow type-checks values against tab, writes the heap record,
// maintains every index, and appends the WAL record -- the forward-path
// write pattern grounded on internal/txn/txn_test.go's insertRow helper:
// lock table, mutate heap, maintain indexes, then log.
func insertRow(ctx *Context, table string, values []any) (types.Rid, types.Row, error) {
	tab, hf, err := ctx.Cat.Table(table)
	if err != nil {
		return types.Rid{}, types.Row{}, err
	}
	row, err := coerceRow(tab, values)
	if err != nil {
		return types.Rid{}, types.Row{}, err
	}
	tableID, err := ctx.Cat.TableID(table)
	if err != nil {
		return types.Rid{}, types.Row{}, err
	}
	rec, err := types.Encode(tab, row)
	if err != nil {
		return types.Rid{}, types.Row{}, err
	}
	if err := ctx.Txns.LockTable(ctx.Tx, tableID, lock.IX); err != nil {
		return types.Rid{}, types.Row{}, err
	}
	rid, err := hf.Insert(rec)
	if err != nil {
		return types.Rid{}, types.Row{}, err
	}
	if err := ctx.Txns.LockForWrite(ctx.Tx, tableID, rid); err != nil {
		hf.Delete(rid)
		return types.Rid{}, types.Row{}, err
	}
	if err := insertIndexEntries(ctx, tab, row, rid); err != nil {
		hf.Delete(rid)
		return types.Rid{}, types.Row{}, err
	}
	if err := ctx.Txns.LogInsert(ctx.Tx, table, rid, rec); err != nil {
		return types.Rid{}, types.Row{}, err
	}
	return rid, row, nil
}

// applyAssignments returns before with each Assignment applied, resolving
// `col = col + literal` self-arithmetic against before's current value.
func applyAssignments(before types.Row, assignments []plan.Assignment) (types.Row, error) {
	after := before.Clone()
	for _, a := range assignments {
		v := a.Value
		if a.AddToSelf {
			cur, ok := before.Get(a.Col)
			if !ok {
				return types.Row{}, dberr.ColumnNotFound(a.Col)
			}
			sum, err := addValues(cur, v)
			if err != nil {
				return types.Row{}, err
			}
			v = sum
		}
		after.Set(a.Col, v)
	}
	return after, nil
}

func addValues(a, b any) (any, error) {
	af, aok := asNumber(a)
	bf, bok := asNumber(b)
	if !aok || !bok {
		return nil, dberr.IncompatibleTypes("cannot add non-numeric values")
	}
	if ai, ok := a.(int64); ok {
		if bi, ok := b.(int64); ok {
			return ai + bi, nil
		}
	}
	return af + bf, nil
}

// updateRow applies assignments to the row at rid, type-checks and
// re-encodes the result, swaps any index entry the change touched, writes
// the heap record, and appends the WAL record with the before-image.
func updateRow(ctx *Context, table string, rid types.Rid, before types.Row, assignments []plan.Assignment) (types.Row, error) {
	tab, hf, err := ctx.Cat.Table(table)
	if err != nil {
		return types.Row{}, err
	}
	raw, err := applyAssignments(before, assignments)
	if err != nil {
		return types.Row{}, err
	}
	values := make([]any, len(tab.Cols))
	for i, col := range tab.Cols {
		v, _ := raw.Get(col.Name)
		values[i] = v
	}
	after, err := coerceRow(tab, values)
	if err != nil {
		return types.Row{}, err
	}
	tableID, err := ctx.Cat.TableID(table)
	if err != nil {
		return types.Row{}, err
	}
	beforeRec, err := types.Encode(tab, before)
	if err != nil {
		return types.Row{}, err
	}
	afterRec, err := types.Encode(tab, after)
	if err != nil {
		return types.Row{}, err
	}
	if err := ctx.Txns.LockForWrite(ctx.Tx, tableID, rid); err != nil {
		return types.Row{}, err
	}
	if err := updateIndexEntries(ctx, tab, before, after, rid); err != nil {
		return types.Row{}, err
	}
	if err := hf.Update(rid, afterRec); err != nil {
		return types.Row{}, err
	}
	if err := ctx.Txns.LogUpdate(ctx.Tx, table, rid, beforeRec, afterRec); err != nil {
		return types.Row{}, err
	}
	return after, nil
}

// deleteRow removes the record at rid, cleans up every index entry it
// held, and appends the WAL record with the before-image.
func deleteRow(ctx *Context, table string, rid types.Rid, before types.Row) error {
	tab, hf, err := ctx.Cat.Table(table)
	if err != nil {
		return err
	}
	tableID, err := ctx.Cat.TableID(table)
	if err != nil {
		return err
	}
	beforeRec, err := types.Encode(tab, before)
	if err != nil {
		return err
	}
	if err := ctx.Txns.LockForWrite(ctx.Tx, tableID, rid); err != nil {
		return err
	}
	if err := deleteIndexEntries(ctx, tab, before); err != nil {
		return err
	}
	if err := hf.Delete(rid); err != nil {
		return err
	}
	return ctx.Txns.LogDelete(ctx.Tx, table, rid, beforeRec)
}
