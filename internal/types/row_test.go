package types

import "testing"

func testTab() TabMeta {
	return NewTabMeta("widgets", []ColMeta{
		{Name: "id", Type: ColTypeInt},
		{Name: "name", Type: ColTypeString, Len: 8},
		{Name: "price", Type: ColTypeFloat},
	})
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tab := testTab()
	r := NewRow()
	r.Set("id", int64(42))
	r.Set("name", "bolt")
	r.Set("price", 1.5)

	buf, err := Encode(tab, r)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(buf) != tab.RecordSize {
		t.Fatalf("encoded length = %d, want %d", len(buf), tab.RecordSize)
	}

	out := Decode(tab, buf)
	id, _ := out.Get("id")
	name, _ := out.Get("name")
	price, _ := out.Get("price")
	if id != int64(42) || name != "bolt" || price != 1.5 {
		t.Fatalf("decoded row = id=%v name=%v price=%v", id, name, price)
	}
}

func TestEncodeMissingColumnFails(t *testing.T) {
	tab := testTab()
	r := NewRow()
	r.Set("id", int64(1))
	r.Set("price", 1.0)
	if _, err := Encode(tab, r); err == nil {
		t.Fatalf("expected an error for a missing column")
	}
}

func TestEncodeStringOverflowFails(t *testing.T) {
	tab := testTab()
	r := NewRow()
	r.Set("id", int64(1))
	r.Set("name", "way too long for eight bytes")
	r.Set("price", 1.0)
	if _, err := Encode(tab, r); err == nil {
		t.Fatalf("expected an error for a string exceeding the declared length")
	}
}

func TestDecodeStringTrimsTrailingZeroes(t *testing.T) {
	tab := testTab()
	r := NewRow()
	r.Set("id", int64(1))
	r.Set("name", "ab")
	r.Set("price", 1.0)
	buf, err := Encode(tab, r)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out := Decode(tab, buf)
	name, _ := out.Get("name")
	if name != "ab" {
		t.Fatalf("got %q, want %q", name, "ab")
	}
}

func TestRowCloneIsIndependent(t *testing.T) {
	r := NewRow()
	r.Set("id", int64(1))
	clone := r.Clone()
	clone.Set("id", int64(2))
	orig, _ := r.Get("id")
	if orig != int64(1) {
		t.Fatalf("cloning should not mutate the original row, got %v", orig)
	}
}

func TestMinMaxSentinelOrderForInt(t *testing.T) {
	col := ColMeta{Name: "id", Type: ColTypeInt}
	min := MinSentinel(col)
	max := MaxSentinel(col)
	tab := NewTabMeta("t", []ColMeta{col})
	minVal := decodeValue(tab.Cols[0], min)
	maxVal := decodeValue(tab.Cols[0], max)
	if minVal.(int64) >= maxVal.(int64) {
		t.Fatalf("min sentinel %v should be less than max sentinel %v", minVal, maxVal)
	}
}

func TestEncodeColumnMatchesEncodeForSameValue(t *testing.T) {
	tab := testTab()
	r := NewRow()
	r.Set("id", int64(7))
	r.Set("name", "nut")
	r.Set("price", 2.5)
	full, err := Encode(tab, r)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	idCol := tab.Cols[0]
	single, err := EncodeColumn(idCol, int64(7))
	if err != nil {
		t.Fatalf("EncodeColumn: %v", err)
	}
	if string(full[idCol.Offset:idCol.Offset+4]) != string(single) {
		t.Fatalf("EncodeColumn should match the column's slice of Encode's output")
	}
}
