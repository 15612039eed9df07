// Package catalog implements the schema manager (spec §4.10): the
// database's table/index directory, DDL lifecycle, and the rollback hooks
// transactions and recovery use to reverse heap/index mutations. Grounded
// on CatalogManager in the teacher (per-db root, table-name-keyed schema
// map, lazy load-from-disk), generalized from per-table JSON files to a
// single serialized catalog file per spec §3 ("Persisted as a single
// serialized file on open/close") and from no caching to a ristretto-fronted
// read cache, since schema lookups are the hottest read path in the
// executor and the teacher's own lazy-load-into-map is exactly the shape
// ristretto is meant to front.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"coredb/internal/buffer"
	"coredb/internal/coredblog"
	"coredb/internal/dberr"
	"coredb/internal/heap"
	"coredb/internal/index"
	"coredb/internal/types"
	"coredb/internal/wal"
)

var log = coredblog.Component("catalog")

// DbMeta is the persisted shape of one open database: its name and table
// directory (spec §3).
type DbMeta struct {
	Name   string
	Tables map[string]*types.TabMeta
}

// fileIDs tracks the on-disk file each table/index owns. Kept apart from
// types.TabMeta (shared with the executor) so that package stays a pure
// value type; ids are an on-disk-layout detail that belongs to the
// catalog alone.
type fileIDs struct {
	heap    map[string]uint32            // table name -> heap file id
	indexes map[string]map[string]uint32 // table name -> index name -> index file id
}

// Catalog is the live, open-database handle: the DbMeta plus every open
// heap/index file and the shared buffer pool and WAL they're wired to.
type Catalog struct {
	mu       sync.RWMutex
	root     string
	db       DbMeta
	ids      fileIDs
	pool     *buffer.Pool
	wal      *wal.Manager
	nextFile uint32

	heaps   map[string]*heap.File             // table name -> heap file
	indexes map[string]map[string]*index.Tree // table name -> index name -> tree

	cache *ristretto.Cache[string, types.TabMeta]
}

func catalogFilePath(root string) string { return filepath.Join(root, "catalog.db") }

// CreateDB initializes a fresh, empty database directory.
func CreateDB(root string) error {
	if _, err := os.Stat(root); err == nil {
		return dberr.DatabaseExists(filepath.Base(root))
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return dberr.OS(err)
	}
	db := DbMeta{Name: filepath.Base(root), Tables: make(map[string]*types.TabMeta)}
	return writeCatalogFile(catalogFilePath(root), db, fileIDs{heap: map[string]uint32{}, indexes: map[string]map[string]uint32{}})
}

// DropDB removes a database directory and everything in it.
func DropDB(root string) error {
	if _, err := os.Stat(root); err != nil {
		return dberr.DatabaseMissing(filepath.Base(root))
	}
	if err := os.RemoveAll(root); err != nil {
		return dberr.OS(err)
	}
	return nil
}

// OpenDB loads the catalog file, opens every table's heap and index files,
// and wires everything to pool/walMgr.
func OpenDB(root string, pool *buffer.Pool, walMgr *wal.Manager) (*Catalog, error) {
	db, ids, err := readCatalogFile(catalogFilePath(root))
	if err != nil {
		return nil, err
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, types.TabMeta]{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: creating schema cache: %w", err)
	}

	c := &Catalog{
		root:    root,
		db:      db,
		ids:     ids,
		pool:    pool,
		wal:     walMgr,
		heaps:   make(map[string]*heap.File),
		indexes: make(map[string]map[string]*index.Tree),
		cache:   cache,
	}

	var maxFile uint32
	for name, tab := range db.Tables {
		fileID := ids.heap[name]
		hf, err := heap.Open(c.heapPath(name, fileID), fileID, tab.RecordSize, c.pool)
		if err != nil {
			return nil, err
		}
		c.heaps[name] = hf
		if fileID > maxFile {
			maxFile = fileID
		}
		c.indexes[name] = make(map[string]*index.Tree)
		for _, im := range tab.Indexes {
			iname := indexName(im)
			idxFileID := ids.indexes[name][iname]
			cmp := comparatorFor(*tab, im)
			tree, err := index.Open(c.indexPath(name, iname, idxFileID), idxFileID, im.ColTotLen, cmp, c.pool)
			if err != nil {
				return nil, err
			}
			c.indexes[name][iname] = tree
			if idxFileID > maxFile {
				maxFile = idxFileID
			}
		}
		cache.Set(name, *tab, 1)
	}
	c.nextFile = maxFile + 1
	log.WithField("database", db.Name).WithField("tables", len(db.Tables)).Info("catalog opened")
	return c, nil
}

// CloseDB flushes the catalog, every heap/index file, and the buffer pool.
func (c *Catalog) CloseDB() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.pool.FlushAllPages(); err != nil {
		return err
	}
	for name, hf := range c.heaps {
		if err := hf.Close(); err != nil {
			log.WithError(err).WithField("table", name).Warn("closing heap file")
		}
	}
	for tab, idxs := range c.indexes {
		for name, tree := range idxs {
			if err := tree.Close(); err != nil {
				log.WithError(err).WithField("table", tab).WithField("index", name).Warn("closing index file")
			}
		}
	}
	c.cache.Close()
	return writeCatalogFile(catalogFilePath(c.root), c.db, c.ids)
}

// TableID returns the numeric id the lock manager scopes table/record
// locks to: the table's heap file id, already a stable per-table handle.
func (c *Catalog) TableID(name string) (uint32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ids.heap[name]
	if !ok {
		return 0, dberr.TableNotFound(name)
	}
	return id, nil
}

func (c *Catalog) flushCatalogLocked() error {
	return writeCatalogFile(catalogFilePath(c.root), c.db, c.ids)
}

func indexName(im types.IndexMeta) string {
	name := im.TabName + "_idx"
	for _, col := range im.Cols {
		name += "_" + col
	}
	return name
}

func (c *Catalog) heapPath(table string, fileID uint32) string {
	return filepath.Join(c.root, fmt.Sprintf("%s_%d.heap", table, fileID))
}

func (c *Catalog) indexPath(table, name string, fileID uint32) string {
	return filepath.Join(c.root, fmt.Sprintf("%s_%s_%d.idx", table, name, fileID))
}

func comparatorFor(tab types.TabMeta, im types.IndexMeta) index.Comparator {
	specs := make([]index.ColSpec, len(im.Cols))
	for i, colName := range im.Cols {
		col, _ := tab.ColByName(colName)
		specs[i] = index.ColSpec{Type: col.Type, Len: col.Len}
	}
	return index.NewComparator(specs)
}
