package catalog

import (
	"sort"

	"coredb/internal/dberr"
	"coredb/internal/heap"
	"coredb/internal/index"
	"coredb/internal/types"
)

// CreateTable defines a new table and its empty heap file. DDL is not
// transactional (spec §3): the catalog flushes before returning.
func (c *Catalog) CreateTable(name string, cols []types.ColMeta) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.db.Tables[name]; exists {
		return dberr.TableExists(name)
	}

	tab := types.NewTabMeta(name, cols)
	fileID := c.nextFile
	c.nextFile++

	hf, err := heap.Create(c.heapPath(name, fileID), fileID, tab.RecordSize, c.pool)
	if err != nil {
		return err
	}

	c.db.Tables[name] = &tab
	c.ids.heap[name] = fileID
	c.ids.indexes[name] = map[string]uint32{}
	c.heaps[name] = hf
	c.indexes[name] = map[string]*index.Tree{}
	c.cache.Set(name, tab, 1)

	if err := c.flushCatalogLocked(); err != nil {
		return err
	}
	log.WithField("table", name).Info("table created")
	return nil
}

// DropTable removes a table, its heap file, and every index on it.
func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.db.Tables[name]; !ok {
		return dberr.TableNotFound(name)
	}

	for iname, tree := range c.indexes[name] {
		tree.Close()
		index.Destroy(c.indexPath(name, iname, c.ids.indexes[name][iname]))
	}
	hf := c.heaps[name]
	hf.Close()
	heap.Destroy(c.heapPath(name, c.ids.heap[name]))

	delete(c.db.Tables, name)
	delete(c.heaps, name)
	delete(c.indexes, name)
	delete(c.ids.heap, name)
	delete(c.ids.indexes, name)
	c.cache.Del(name)

	if err := c.flushCatalogLocked(); err != nil {
		return err
	}
	log.WithField("table", name).Info("table dropped")
	return nil
}

// CreateIndex builds a new composite-key index over cols, populating it
// from the table's current contents via a full record scan (spec §4.10).
func (c *Catalog) CreateIndex(table string, cols []string) error {
	c.mu.Lock()
	tab, ok := c.db.Tables[table]
	if !ok {
		c.mu.Unlock()
		return dberr.TableNotFound(table)
	}
	if _, exists := tab.IndexFor(cols); exists {
		c.mu.Unlock()
		return dberr.IndexExists(indexName(types.IndexMeta{TabName: table, Cols: cols}))
	}

	colTotLen := 0
	specs := make([]index.ColSpec, len(cols))
	for i, colName := range cols {
		col, ok := tab.ColByName(colName)
		if !ok {
			c.mu.Unlock()
			return dberr.ColumnNotFound(colName)
		}
		specs[i] = index.ColSpec{Type: col.Type, Len: col.Len}
		colTotLen += col.Type.FixedWidth(col.Len)
	}
	im := types.IndexMeta{TabName: table, Cols: cols, ColNum: len(cols), ColTotLen: colTotLen}
	iname := indexName(im)
	fileID := c.nextFile
	c.nextFile++

	tree, err := index.Create(c.indexPath(table, iname, fileID), fileID, colTotLen, index.NewComparator(specs), c.pool)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	hf := c.heaps[table]
	c.mu.Unlock()

	sc, err := heap.NewScan(hf)
	if err != nil {
		return err
	}
	for {
		rid, rec, ok, err := sc.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		row := types.Decode(*tab, rec)
		key := buildKey(*tab, cols, row)
		if err := tree.Insert(iname, key, rid); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	tab.Indexes = append(tab.Indexes, im)
	c.indexes[table][iname] = tree
	c.ids.indexes[table][iname] = fileID
	c.cache.Wait()
	c.cache.Set(table, *tab, 1)
	if err := c.flushCatalogLocked(); err != nil {
		return err
	}
	log.WithField("table", table).WithField("index", iname).Info("index created")
	return nil
}

// DropIndex removes an index.
func (c *Catalog) DropIndex(table string, cols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tab, ok := c.db.Tables[table]
	if !ok {
		return dberr.TableNotFound(table)
	}
	im, ok := tab.IndexFor(cols)
	if !ok {
		return dberr.IndexNotFound(indexName(types.IndexMeta{TabName: table, Cols: cols}))
	}
	iname := indexName(im)
	c.indexes[table][iname].Close()
	index.Destroy(c.indexPath(table, iname, c.ids.indexes[table][iname]))
	delete(c.indexes[table], iname)
	delete(c.ids.indexes[table], iname)

	kept := tab.Indexes[:0]
	for _, existing := range tab.Indexes {
		if indexName(existing) != iname {
			kept = append(kept, existing)
		}
	}
	tab.Indexes = kept
	c.cache.Wait()
	c.cache.Set(table, *tab, 1)
	return c.flushCatalogLocked()
}

// ShowTables lists every table name, alphabetically.
func (c *Catalog) ShowTables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.db.Tables))
	for name := range c.db.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DescTable returns a table's column metadata for display.
func (c *Catalog) DescTable(name string) (types.TabMeta, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tab, ok := c.db.Tables[name]
	if !ok {
		return types.TabMeta{}, dberr.TableNotFound(name)
	}
	return *tab, nil
}

// ShowIndex lists every index defined on a table.
func (c *Catalog) ShowIndex(table string) ([]types.IndexMeta, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tab, ok := c.db.Tables[table]
	if !ok {
		return nil, dberr.TableNotFound(table)
	}
	return tab.Indexes, nil
}

// Table returns a table's metadata and its open heap file, the pair the
// executor needs to scan or mutate it.
func (c *Catalog) Table(name string) (types.TabMeta, *heap.File, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tab, ok := c.db.Tables[name]
	if !ok {
		return types.TabMeta{}, nil, dberr.TableNotFound(name)
	}
	if cached, ok := c.cache.Get(name); ok {
		return cached, c.heaps[name], nil
	}
	return *tab, c.heaps[name], nil
}

// IndexesOf returns every open index tree on table, keyed by index name.
func (c *Catalog) IndexesOf(table string) map[string]*index.Tree {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexes[table]
}

// IndexTree returns the open tree backing the index built over exactly
// cols, if one exists -- the lookup internal/exec's IndexScan needs to go
// from a plan.ScanPlan's chosen IndexCols to a tree it can call NewScan on.
func (c *Catalog) IndexTree(table string, cols []string) (*index.Tree, types.IndexMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tab, ok := c.db.Tables[table]
	if !ok {
		return nil, types.IndexMeta{}, false
	}
	im, ok := tab.IndexFor(cols)
	if !ok {
		return nil, types.IndexMeta{}, false
	}
	return c.indexes[table][indexName(im)], im, true
}

func buildKey(tab types.TabMeta, cols []string, row types.Row) []byte {
	var key []byte
	for _, colName := range cols {
		col, _ := tab.ColByName(colName)
		v, _ := row.Get(colName)
		b, _ := types.EncodeColumn(col, v)
		key = append(key, b...)
	}
	return key
}
