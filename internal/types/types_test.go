package types

import "testing"

func TestNewTabMetaAssignsOffsetsInOrder(t *testing.T) {
	tab := NewTabMeta("widgets", []ColMeta{
		{Name: "id", Type: ColTypeInt},
		{Name: "name", Type: ColTypeString, Len: 16},
		{Name: "price", Type: ColTypeFloat},
	})
	if tab.Cols[0].Offset != 0 {
		t.Fatalf("id offset = %d, want 0", tab.Cols[0].Offset)
	}
	if tab.Cols[1].Offset != 4 {
		t.Fatalf("name offset = %d, want 4", tab.Cols[1].Offset)
	}
	if tab.Cols[2].Offset != 20 {
		t.Fatalf("price offset = %d, want 20", tab.Cols[2].Offset)
	}
	if tab.RecordSize != 28 {
		t.Fatalf("RecordSize = %d, want 28", tab.RecordSize)
	}
}

func TestColByNameCaseInsensitive(t *testing.T) {
	tab := NewTabMeta("widgets", []ColMeta{{Name: "ID", Type: ColTypeInt}})
	col, ok := tab.ColByName("id")
	if !ok || col.Name != "ID" {
		t.Fatalf("ColByName(\"id\") = %+v, %v", col, ok)
	}
	if _, ok := tab.ColByName("missing"); ok {
		t.Fatalf("ColByName(\"missing\") unexpectedly found")
	}
}

func TestIndexForMatchesColumnOrderExactly(t *testing.T) {
	tab := TabMeta{Indexes: []IndexMeta{{Cols: []string{"id", "name"}}}}
	if _, ok := tab.IndexFor([]string{"id", "name"}); !ok {
		t.Fatalf("expected exact-order match to be found")
	}
	if _, ok := tab.IndexFor([]string{"name", "id"}); ok {
		t.Fatalf("reversed column order should not match")
	}
	if _, ok := tab.IndexFor([]string{"id"}); ok {
		t.Fatalf("prefix-only lookup should not match a two-column index")
	}
}
