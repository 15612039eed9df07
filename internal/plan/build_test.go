package plan

import (
	"path/filepath"
	"testing"

	"coredb/internal/buffer"
	"coredb/internal/catalog"
	"coredb/internal/parser"
	"coredb/internal/types"
	"coredb/internal/wal"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "db")
	if err := catalog.CreateDB(root); err != nil {
		t.Fatalf("CreateDB: %v", err)
	}
	pool := buffer.New(32)
	walMgr, err := wal.Open(filepath.Join(dir, "wal.log"), 4096)
	if err != nil {
		t.Fatalf("wal.Open: %v", err)
	}
	pool.SetWALSource(walMgr)
	cat, err := catalog.OpenDB(root, pool, walMgr)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { cat.CloseDB() })
	return cat
}

func mustParse(t *testing.T, sql string) parser.Statement {
	t.Helper()
	stmt, err := parser.Parse(sql)
	if err != nil {
		t.Fatalf("Parse(%q): %v", sql, err)
	}
	return stmt
}

func TestBuildScanPicksIndexOnEqualityPrefix(t *testing.T) {
	cat := newTestCatalog(t)
	if err := cat.CreateTable("widgets", []types.ColMeta{
		{Name: "id", Type: types.ColTypeInt},
		{Name: "name", Type: types.ColTypeString, Len: 16},
	}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := cat.CreateIndex("widgets", []string{"id"}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	node, err := Build(cat, mustParse(t, "SELECT * FROM widgets WHERE id = 1"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	proj := node.(*ProjectionPlan)
	scan := proj.Child.(*ScanPlan)
	if !scan.UseIndex {
		t.Fatalf("expected an index scan for an equality predicate on an indexed column")
	}
	if len(scan.Conds) != 1 || scan.Conds[0].Col != "id" {
		t.Fatalf("Conds = %+v, want one equality on id", scan.Conds)
	}
}

func TestBuildScanFallsBackToSeqScanWithoutIndexMatch(t *testing.T) {
	cat := newTestCatalog(t)
	if err := cat.CreateTable("widgets", []types.ColMeta{
		{Name: "id", Type: types.ColTypeInt},
		{Name: "price", Type: types.ColTypeFloat},
	}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	node, err := Build(cat, mustParse(t, "SELECT * FROM widgets WHERE price > 1.0"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	proj := node.(*ProjectionPlan)
	scan := proj.Child.(*ScanPlan)
	if scan.UseIndex {
		t.Fatalf("expected a sequential scan with no eligible index")
	}
	if len(scan.Residual) != 1 {
		t.Fatalf("Residual = %+v, want one predicate", scan.Residual)
	}
}

func TestBuildScanSplitsEqualityRangeAndResidual(t *testing.T) {
	cat := newTestCatalog(t)
	if err := cat.CreateTable("widgets", []types.ColMeta{
		{Name: "cat", Type: types.ColTypeInt},
		{Name: "id", Type: types.ColTypeInt},
		{Name: "price", Type: types.ColTypeFloat},
	}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := cat.CreateIndex("widgets", []string{"cat", "id"}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	node, err := Build(cat, mustParse(t,
		"SELECT * FROM widgets WHERE cat = 1 AND id > 5 AND price = 2.0"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	proj := node.(*ProjectionPlan)
	scan := proj.Child.(*ScanPlan)
	if !scan.UseIndex {
		t.Fatalf("expected an index scan on the cat=1 equality prefix")
	}
	if len(scan.Conds) != 1 || scan.Conds[0].Col != "cat" {
		t.Fatalf("Conds = %+v, want one equality on cat", scan.Conds)
	}
	if scan.Range == nil || scan.Range.Col != "id" {
		t.Fatalf("Range = %+v, want a bound on id", scan.Range)
	}
	if len(scan.Residual) != 2 {
		t.Fatalf("Residual = %+v, want the id>5 boundary trim plus price=2.0", scan.Residual)
	}
}

func TestBuildSelectWithOrderByAndLimit(t *testing.T) {
	cat := newTestCatalog(t)
	if err := cat.CreateTable("widgets", []types.ColMeta{
		{Name: "id", Type: types.ColTypeInt},
	}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	node, err := Build(cat, mustParse(t, "SELECT * FROM widgets ORDER BY id DESC LIMIT 5"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	proj := node.(*ProjectionPlan)
	if proj.Limit != 5 {
		t.Fatalf("Limit = %d, want 5", proj.Limit)
	}
	sort := proj.Child.(*SortPlan)
	if len(sort.Keys) != 1 || !sort.Keys[0].Descending {
		t.Fatalf("Keys = %+v, want one descending key", sort.Keys)
	}
}

func TestBuildInsertRejectsWrongValueCount(t *testing.T) {
	cat := newTestCatalog(t)
	if err := cat.CreateTable("widgets", []types.ColMeta{
		{Name: "id", Type: types.ColTypeInt},
		{Name: "name", Type: types.ColTypeString, Len: 8},
	}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	if _, err := Build(cat, mustParse(t, "INSERT INTO widgets VALUES (1)")); err == nil {
		t.Fatalf("expected an error for a value count mismatch")
	}
}

func TestBuildUpdateAndDeleteWrapScan(t *testing.T) {
	cat := newTestCatalog(t)
	if err := cat.CreateTable("widgets", []types.ColMeta{
		{Name: "id", Type: types.ColTypeInt},
		{Name: "price", Type: types.ColTypeFloat},
	}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	upd, err := Build(cat, mustParse(t, "UPDATE widgets SET price = price + 1 WHERE id = 1"))
	if err != nil {
		t.Fatalf("Build UPDATE: %v", err)
	}
	up := upd.(*UpdatePlan)
	if len(up.Assignments) != 1 || !up.Assignments[0].AddToSelf {
		t.Fatalf("Assignments = %+v, want one self-arithmetic assignment", up.Assignments)
	}

	del, err := Build(cat, mustParse(t, "DELETE FROM widgets WHERE id = 1"))
	if err != nil {
		t.Fatalf("Build DELETE: %v", err)
	}
	if _, ok := del.(*DeletePlan); !ok {
		t.Fatalf("got %T, want *DeletePlan", del)
	}
}
