package metaindex

import (
	"testing"

	"github.com/google/uuid"

	"vectra/internal/kvpair"
)

func TestInsertAndGet(t *testing.T) {
	idx := New(32)
	id := uuid.New()
	rec := kvpair.Record{ID: id, Attributes: []kvpair.KVPair{kvpair.New("color", "red")}, VectorIndex: 3}
	idx.Insert(id, rec)

	got, ok := idx.Get(id)
	if !ok {
		t.Fatalf("expected record to be found")
	}
	if got.ID != rec.ID || got.VectorIndex != rec.VectorIndex {
		t.Fatalf("got %+v, want %+v", got, rec)
	}
}

func TestGetMissing(t *testing.T) {
	idx := New(32)
	if _, ok := idx.Get(uuid.New()); ok {
		t.Fatalf("expected miss on empty index")
	}
}

func TestInsertOverwriteLastWriteWins(t *testing.T) {
	idx := New(32)
	id := uuid.New()
	idx.Insert(id, kvpair.Record{ID: id, VectorIndex: 1})
	idx.Insert(id, kvpair.Record{ID: id, VectorIndex: 2})
	if idx.Len() != 1 {
		t.Fatalf("len = %d, want 1", idx.Len())
	}
	got, _ := idx.Get(id)
	if got.VectorIndex != 2 {
		t.Fatalf("vector_index = %d, want 2", got.VectorIndex)
	}
}

func TestBatchInsertAndAll(t *testing.T) {
	idx := New(4)
	ids := make([]uuid.UUID, 10)
	recs := make([]kvpair.Record, 10)
	for i := range ids {
		ids[i] = uuid.New()
		recs[i] = kvpair.Record{ID: ids[i], VectorIndex: uint64(i)}
	}
	if err := idx.BatchInsert(ids, recs); err != nil {
		t.Fatalf("batch_insert: %v", err)
	}
	if idx.Len() != 10 {
		t.Fatalf("len = %d, want 10", idx.Len())
	}
	for i, id := range ids {
		got, ok := idx.Get(id)
		if !ok || got.VectorIndex != uint64(i) {
			t.Fatalf("get(%v) = (%+v, %v)", id, got, ok)
		}
	}
}

func TestToBytesFromBytesRoundTrip(t *testing.T) {
	idx := New(4)
	ids := make([]uuid.UUID, 40)
	for i := range ids {
		ids[i] = uuid.New()
		idx.Insert(ids[i], kvpair.Record{
			ID:          ids[i],
			Attributes:  []kvpair.KVPair{kvpair.New("k", "v")},
			VectorIndex: uint64(i),
		})
	}
	data := idx.ToBytes()
	got, err := FromBytes(data)
	if err != nil {
		t.Fatalf("from_bytes: %v", err)
	}
	if got.Len() != idx.Len() {
		t.Fatalf("len mismatch: %d != %d", got.Len(), idx.Len())
	}
	for _, id := range ids {
		want, _ := idx.Get(id)
		gotRec, ok := got.Get(id)
		if !ok || gotRec.VectorIndex != want.VectorIndex || len(gotRec.Attributes) != len(want.Attributes) {
			t.Fatalf("record mismatch for %v: %+v != %+v", id, gotRec, want)
		}
	}
}

func TestFromBytesCorrupt(t *testing.T) {
	if _, err := FromBytes([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error decoding corrupt image")
	}
}
