package btree

import (
	"fmt"
	"math/rand"
	"testing"
)

func newTestTree(fanout int) *Tree[uint64, uint64] {
	return NewWithFanout[uint64, uint64](Uint64Codec{}, Uint64Codec{}, fanout)
}

func TestInsertAndGet(t *testing.T) {
	tr := newTestTree(4)
	tr.Insert(1, 100)
	tr.Insert(2, 200)
	tr.Insert(3, 300)

	for k, want := range map[uint64]uint64{1: 100, 2: 200, 3: 300} {
		got, ok := tr.Get(k)
		if !ok || got != want {
			t.Fatalf("get(%d) = (%d, %v), want (%d, true)", k, got, ok, want)
		}
	}
	if _, ok := tr.Get(99); ok {
		t.Fatalf("get(99) should miss")
	}
}

func TestInsertOverwriteLastWriteWins(t *testing.T) {
	tr := newTestTree(4)
	tr.Insert(1, 100)
	tr.Insert(1, 200)
	if got, _ := tr.Get(1); got != 200 {
		t.Fatalf("got %d, want 200", got)
	}
	if tr.Len() != 1 {
		t.Fatalf("len = %d, want 1 (overwrite must not grow count)", tr.Len())
	}
}

func TestInsertForcesSplit(t *testing.T) {
	tr := newTestTree(4)
	for i := uint64(0); i < 100; i++ {
		tr.Insert(i, i*10)
	}
	if tr.Len() != 100 {
		t.Fatalf("len = %d, want 100", tr.Len())
	}
	for i := uint64(0); i < 100; i++ {
		got, ok := tr.Get(i)
		if !ok || got != i*10 {
			t.Fatalf("get(%d) = (%d, %v), want (%d, true)", i, got, ok, i*10)
		}
	}
}

func TestInsertRandomOrderSurvivesSplits(t *testing.T) {
	tr := newTestTree(3)
	rng := rand.New(rand.NewSource(7))
	keys := rng.Perm(500)
	for _, k := range keys {
		tr.Insert(uint64(k), uint64(k)*2)
	}
	for _, k := range keys {
		got, ok := tr.Get(uint64(k))
		if !ok || got != uint64(k)*2 {
			t.Fatalf("get(%d) = (%d, %v), want (%d, true)", k, got, ok, uint64(k)*2)
		}
	}
}

func TestBatchInsertLengthMismatch(t *testing.T) {
	tr := newTestTree(4)
	if err := tr.BatchInsert([]uint64{1, 2}, []uint64{1}); err == nil {
		t.Fatalf("expected error for mismatched batch lengths")
	}
}

func TestBatchInsertDuplicateKeysLastWriteWins(t *testing.T) {
	tr := newTestTree(4)
	err := tr.BatchInsert([]uint64{1, 1, 1}, []uint64{10, 20, 30})
	if err != nil {
		t.Fatalf("batch_insert: %v", err)
	}
	if tr.Len() != 1 {
		t.Fatalf("len = %d, want 1", tr.Len())
	}
	got, _ := tr.Get(1)
	if got != 30 {
		t.Fatalf("got %d, want 30 (last write in batch order)", got)
	}
}

func TestBatchInsertMatchesSequentialInsert(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	n := 300
	keys := make([]uint64, n)
	values := make([]uint64, n)
	for i := range keys {
		keys[i] = uint64(rng.Intn(n / 2))
		values[i] = uint64(i)
	}

	batched := newTestTree(5)
	if err := batched.BatchInsert(keys, values); err != nil {
		t.Fatalf("batch_insert: %v", err)
	}

	sequential := newTestTree(5)
	for i := range keys {
		sequential.Insert(keys[i], values[i])
	}

	sKeys, sVals := sequential.All()
	bKeys, bVals := batched.All()
	if len(sKeys) != len(bKeys) {
		t.Fatalf("key count mismatch: %d != %d", len(bKeys), len(sKeys))
	}
	for i := range sKeys {
		if sKeys[i] != bKeys[i] || sVals[i] != bVals[i] {
			t.Fatalf("mismatch at %d: (%d,%d) != (%d,%d)", i, bKeys[i], bVals[i], sKeys[i], sVals[i])
		}
	}
}

func TestRangeHalfOpen(t *testing.T) {
	tr := newTestTree(4)
	for i := uint64(0); i < 20; i++ {
		tr.Insert(i, i)
	}
	keys, _ := tr.Range(5, 10)
	want := []uint64{5, 6, 7, 8, 9}
	if len(keys) != len(want) {
		t.Fatalf("got %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("got %v, want %v", keys, want)
		}
	}
}

func TestAllAscendingOrder(t *testing.T) {
	tr := newTestTree(4)
	rng := rand.New(rand.NewSource(1))
	perm := rng.Perm(200)
	for _, k := range perm {
		tr.Insert(uint64(k), uint64(k))
	}
	keys, _ := tr.All()
	if len(keys) != 200 {
		t.Fatalf("len = %d, want 200", len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("keys not strictly ascending at %d: %d >= %d", i, keys[i-1], keys[i])
		}
	}
}

func TestToBytesFromBytesRoundTrip(t *testing.T) {
	tr := newTestTree(4)
	for i := uint64(0); i < 250; i++ {
		tr.Insert(i, i*7+1)
	}
	data := tr.ToBytes()
	got, err := FromBytes[uint64, uint64](data, Uint64Codec{}, Uint64Codec{})
	if err != nil {
		t.Fatalf("from_bytes: %v", err)
	}
	if got.Len() != tr.Len() {
		t.Fatalf("len mismatch: %d != %d", got.Len(), tr.Len())
	}
	for i := uint64(0); i < 250; i++ {
		want, _ := tr.Get(i)
		gotV, ok := got.Get(i)
		if !ok || gotV != want {
			t.Fatalf("get(%d) after round trip = (%d, %v), want (%d, true)", i, gotV, ok, want)
		}
	}
}

func TestFromBytesCorruptTooSmall(t *testing.T) {
	if _, err := FromBytes[uint64, uint64]([]byte{1, 2, 3}, Uint64Codec{}, Uint64Codec{}); err == nil {
		t.Fatalf("expected error for undersized image")
	}
}

func TestFromBytesCorruptTruncatedNode(t *testing.T) {
	tr := newTestTree(4)
	tr.Insert(1, 1)
	data := tr.ToBytes()
	if _, err := FromBytes[uint64, uint64](data[:len(data)-2], Uint64Codec{}, Uint64Codec{}); err == nil {
		t.Fatalf("expected error for truncated node image")
	}
}

func TestEmptyTree(t *testing.T) {
	tr := newTestTree(4)
	if tr.Len() != 0 {
		t.Fatalf("len = %d, want 0", tr.Len())
	}
	if _, ok := tr.Get(1); ok {
		t.Fatalf("get on empty tree should miss")
	}
	keys, values := tr.All()
	if len(keys) != 0 || len(values) != 0 {
		t.Fatalf("all() on empty tree should be empty")
	}
}

func TestFuzzInsertGetMany(t *testing.T) {
	for trial := 0; trial < 5; trial++ {
		t.Run(fmt.Sprintf("trial_%d", trial), func(t *testing.T) {
			tr := newTestTree(6)
			rng := rand.New(rand.NewSource(int64(trial)))
			model := make(map[uint64]uint64)
			for i := 0; i < 1000; i++ {
				k := uint64(rng.Intn(300))
				v := uint64(rng.Int63())
				tr.Insert(k, v)
				model[k] = v
			}
			for k, want := range model {
				got, ok := tr.Get(k)
				if !ok || got != want {
					t.Fatalf("get(%d) = (%d,%v), want (%d,true)", k, got, ok, want)
				}
			}
			if tr.Len() != len(model) {
				t.Fatalf("len = %d, want %d", tr.Len(), len(model))
			}
		})
	}
}
