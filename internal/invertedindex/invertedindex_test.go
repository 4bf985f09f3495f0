package invertedindex

import (
	"testing"

	"github.com/google/uuid"

	"vectra/internal/kvpair"
)

func TestInsertAppendCreatesNewEntry(t *testing.T) {
	idx := New(8)
	id := uuid.New()
	attr := kvpair.New("color", "red")
	idx.InsertAppend(attr, Single(0, id))

	got, ok := idx.Get(attr)
	if !ok {
		t.Fatalf("expected posting list to exist")
	}
	if got.Len() != 1 || got.VectorIndices[0] != 0 || got.IDs[0] != id {
		t.Fatalf("got %+v", got)
	}
}

func TestInsertAppendConcatenates(t *testing.T) {
	idx := New(8)
	attr := kvpair.New("color", "red")
	id1, id2, id3 := uuid.New(), uuid.New(), uuid.New()

	idx.InsertAppend(attr, Single(0, id1))
	idx.InsertAppend(attr, Single(1, id2))
	idx.InsertAppend(attr, Single(2, id3))

	got, ok := idx.Get(attr)
	if !ok {
		t.Fatalf("expected posting list")
	}
	wantIdx := []uint64{0, 1, 2}
	wantIDs := []uuid.UUID{id1, id2, id3}
	if got.Len() != 3 {
		t.Fatalf("len = %d, want 3", got.Len())
	}
	for i := range wantIdx {
		if got.VectorIndices[i] != wantIdx[i] || got.IDs[i] != wantIDs[i] {
			t.Fatalf("entry %d mismatch: got (%d,%v), want (%d,%v)", i, got.VectorIndices[i], got.IDs[i], wantIdx[i], wantIDs[i])
		}
	}
}

func TestGetMissingAttribute(t *testing.T) {
	idx := New(8)
	if _, ok := idx.Get(kvpair.New("nope", "nope")); ok {
		t.Fatalf("expected miss")
	}
}

func TestDistinctAttributesDoNotCollide(t *testing.T) {
	idx := New(8)
	id := uuid.New()
	idx.InsertAppend(kvpair.New("color", "red"), Single(0, id))
	idx.InsertAppend(kvpair.New("color", "blue"), Single(1, id))

	red, _ := idx.Get(kvpair.New("color", "red"))
	blue, _ := idx.Get(kvpair.New("color", "blue"))
	if red.Len() != 1 || blue.Len() != 1 {
		t.Fatalf("expected separate single-entry posting lists, got %+v / %+v", red, blue)
	}
	if idx.Len() != 2 {
		t.Fatalf("len = %d, want 2 distinct attributes", idx.Len())
	}
}

func TestRangeByKeyEnumeratesValues(t *testing.T) {
	idx := New(8)
	id := uuid.New()
	idx.InsertAppend(kvpair.New("color", "red"), Single(0, id))
	idx.InsertAppend(kvpair.New("color", "blue"), Single(1, id))
	idx.InsertAppend(kvpair.New("colorful", "yes"), Single(2, id))
	idx.InsertAppend(kvpair.New("size", "large"), Single(3, id))

	attrs, _ := idx.RangeByKey("color")
	if len(attrs) != 2 {
		t.Fatalf("got %v, want 2 entries for key=color (not colorful)", attrs)
	}
	for _, a := range attrs {
		if a.Key != "color" {
			t.Fatalf("RangeByKey leaked unrelated key %q", a.Key)
		}
	}
}

func TestToBytesFromBytesRoundTrip(t *testing.T) {
	idx := New(4)
	for i := 0; i < 30; i++ {
		idx.InsertAppend(kvpair.New("k", "v"), Single(uint64(i), uuid.New()))
	}
	data := idx.ToBytes()
	got, err := FromBytes(data)
	if err != nil {
		t.Fatalf("from_bytes: %v", err)
	}
	want, _ := idx.Get(kvpair.New("k", "v"))
	gotPL, ok := got.Get(kvpair.New("k", "v"))
	if !ok || gotPL.Len() != want.Len() {
		t.Fatalf("round trip mismatch: %+v != %+v", gotPL, want)
	}
}

func TestFromBytesCorrupt(t *testing.T) {
	if _, err := FromBytes([]byte{1, 2}); err == nil {
		t.Fatalf("expected error decoding corrupt image")
	}
}
