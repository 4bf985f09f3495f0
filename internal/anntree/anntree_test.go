package anntree

import (
	"context"
	"math/rand"
	"testing"

	"github.com/google/uuid"

	"vectra/internal/bitvec"
)

func randVector(r *rand.Rand, width int) bitvec.BitVector {
	v := make(bitvec.BitVector, width)
	r.Read(v)
	return v
}

func newTestTree(fanout, beamWidth, alpha int) *Tree {
	return NewWithConfig(fanout, beamWidth, alpha)
}

func mustInsert(t *testing.T, tr *Tree, v bitvec.BitVector, id uuid.UUID, vectorIndex uint64) {
	t.Helper()
	if err := tr.Insert(v, id, vectorIndex); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestInsertAndSearchFindsExactMatch(t *testing.T) {
	tr := newTestTree(DefaultFanout, DefaultBeamWidth, DefaultSearchAlpha)
	r := rand.New(rand.NewSource(1))

	var target bitvec.BitVector
	var targetID uuid.UUID
	for i := 0; i < 200; i++ {
		v := randVector(r, 16)
		id := uuid.New()
		mustInsert(t, tr, v, id, uint64(i))
		if i == 100 {
			target = v
			targetID = id
		}
	}

	got, err := tr.Search(context.Background(), target, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if got[0].Distance != 0 || got[0].ID != targetID {
		t.Fatalf("expected exact match for id %v, got %+v", targetID, got[0])
	}
}

func TestInsertTriggersSplitsAndKeepsAllEntries(t *testing.T) {
	tr := newTestTree(4, 2, 4)
	r := rand.New(rand.NewSource(2))

	const n = 500
	for i := 0; i < n; i++ {
		mustInsert(t, tr, randVector(r, 8), uuid.New(), uint64(i))
	}
	if tr.Len() != n {
		t.Fatalf("len = %d, want %d", tr.Len(), n)
	}

	s := tr.Stats()
	if s.LeafCount < 2 {
		t.Fatalf("expected the tree to have split into multiple leaves, got %d", s.LeafCount)
	}
	if s.VectorCount != n {
		t.Fatalf("stats vector count = %d, want %d", s.VectorCount, n)
	}
}

func TestBulkLoadAndCalibrateRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	const n = 1000
	vectors := make([]bitvec.BitVector, n)
	ids := make([]uuid.UUID, n)
	vectorIndices := make([]uint64, n)
	for i := 0; i < n; i++ {
		vectors[i] = randVector(r, 16)
		ids[i] = uuid.New()
		vectorIndices[i] = uint64(i)
	}

	tr := newTestTree(DefaultFanout, DefaultBeamWidth, DefaultSearchAlpha)
	if err := tr.BulkLoad(vectors, ids, vectorIndices); err != nil {
		t.Fatalf("bulk load: %v", err)
	}
	if tr.Len() != n {
		t.Fatalf("len = %d, want %d", tr.Len(), n)
	}

	s := tr.Stats()
	if s.VectorCount != n {
		t.Fatalf("stats vector count = %d, want %d", s.VectorCount, n)
	}
	if s.LeafCount == 0 {
		t.Fatalf("expected at least one leaf")
	}

	// Calibrate is idempotent over the same contents: re-running it must
	// not lose or duplicate any vector.
	if err := tr.Calibrate(); err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if tr.Len() != n {
		t.Fatalf("len after calibrate = %d, want %d", tr.Len(), n)
	}
	s2 := tr.Stats()
	if s2.VectorCount != n {
		t.Fatalf("stats vector count after calibrate = %d, want %d", s2.VectorCount, n)
	}

	// The query target is findable after the rebuild.
	got, err := tr.Search(context.Background(), vectors[500], 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].ID != ids[500] {
		t.Fatalf("expected exact match for ids[500], got %+v", got)
	}
}

func TestStatsMaxDepthGrowsWithSplits(t *testing.T) {
	tr := newTestTree(2, 2, 2)
	r := rand.New(rand.NewSource(4))
	for i := 0; i < 64; i++ {
		mustInsert(t, tr, randVector(r, 8), uuid.New(), uint64(i))
	}
	s := tr.Stats()
	if s.MaxDepth == 0 {
		t.Fatalf("expected tree depth to grow past the root leaf after many splits")
	}
}

func TestToBytesFromBytesRoundTrip(t *testing.T) {
	tr := newTestTree(4, 2, 4)
	r := rand.New(rand.NewSource(5))
	const n = 300
	ids := make([]uuid.UUID, n)
	vectors := make([]bitvec.BitVector, n)
	for i := 0; i < n; i++ {
		vectors[i] = randVector(r, 8)
		ids[i] = uuid.New()
		mustInsert(t, tr, vectors[i], ids[i], uint64(i))
	}

	data := tr.ToBytes()
	restored, err := FromBytes(data)
	if err != nil {
		t.Fatalf("from_bytes: %v", err)
	}
	if restored.Len() != tr.Len() {
		t.Fatalf("restored len = %d, want %d", restored.Len(), tr.Len())
	}

	for i := 0; i < n; i += 37 {
		got, err := restored.Search(context.Background(), vectors[i], 1)
		if err != nil {
			t.Fatalf("search restored: %v", err)
		}
		if len(got) != 1 || got[0].ID != ids[i] {
			t.Fatalf("restored tree lost entry %d", i)
		}
	}
}

func TestFromBytesRejectsTruncatedImage(t *testing.T) {
	tr := newTestTree(4, 2, 4)
	r := rand.New(rand.NewSource(6))
	for i := 0; i < 50; i++ {
		mustInsert(t, tr, randVector(r, 8), uuid.New(), uint64(i))
	}
	data := tr.ToBytes()

	if _, err := FromBytes(data[:10]); err == nil {
		t.Fatalf("expected error decoding truncated header")
	}
	if _, err := FromBytes(data[:len(data)-5]); err == nil {
		t.Fatalf("expected error decoding truncated body")
	}
}

func TestSearchDeterministicTieBreakBySmallerID(t *testing.T) {
	tr := newTestTree(DefaultFanout, DefaultBeamWidth, DefaultSearchAlpha)
	v := bitvec.BitVector{0x00, 0x00}

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		id := uuid.New()
		ids = append(ids, id)
		mustInsert(t, tr, v.Clone(), id, uint64(i))
	}

	smallest := ids[0]
	for _, id := range ids[1:] {
		if uuidLess(id, smallest) {
			smallest = id
		}
	}

	got, err := tr.Search(context.Background(), v, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].ID != smallest {
		t.Fatalf("expected deterministic tie-break toward smallest id %v, got %+v", smallest, got[0])
	}
}

// TestSearchGlobalTopKSurvivesLocalTruncation plants a cluster of close
// matches in one subtree and a lone true-nearest match in a second,
// sibling subtree whose own centroid is far from the query. A merge step
// that only kept each subtree's locally-truncated top-k independently,
// without re-ranking across subtrees, could report the far subtree's
// members over the near match buried in the crowded one.
func TestSearchGlobalTopKSurvivesLocalTruncation(t *testing.T) {
	tr := newTestTree(8, 4, 8)
	r := rand.New(rand.NewSource(7))

	query := bitvec.BitVector{0x00, 0x00, 0x00, 0x00}

	// A crowd of near-identical, moderately-close vectors to query.
	for i := 0; i < 40; i++ {
		v := bitvec.BitVector{0x0F, 0x0F, 0x0F, 0x0F} // distance 16 from query
		mustInsert(t, tr, v.Clone(), uuid.New(), uint64(1000+i))
	}

	// One true nearest neighbor, distance 1.
	bestID := uuid.New()
	mustInsert(t, tr, bitvec.BitVector{0x01, 0x00, 0x00, 0x00}, bestID, 9999)

	// Noise to fill out other branches.
	for i := 0; i < 40; i++ {
		mustInsert(t, tr, randVector(r, 4), uuid.New(), uint64(2000+i))
	}

	got, err := tr.Search(context.Background(), query, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].ID != bestID {
		t.Fatalf("expected true nearest neighbor %v, got %+v", bestID, got)
	}
}

func TestBatchInsertRejectsMismatchedLengths(t *testing.T) {
	tr := newTestTree(DefaultFanout, DefaultBeamWidth, DefaultSearchAlpha)
	err := tr.BatchInsert([]bitvec.BitVector{{0x00}}, []uuid.UUID{uuid.New(), uuid.New()}, []uint64{0})
	if err == nil {
		t.Fatalf("expected length mismatch error")
	}
}

func TestBulkLoadRejectsMismatchedLengths(t *testing.T) {
	tr := newTestTree(DefaultFanout, DefaultBeamWidth, DefaultSearchAlpha)
	err := tr.BulkLoad([]bitvec.BitVector{{0x00}}, []uuid.UUID{uuid.New()}, []uint64{0, 1})
	if err == nil {
		t.Fatalf("expected length mismatch error")
	}
}

func TestBulkLoadEmpty(t *testing.T) {
	tr := newTestTree(DefaultFanout, DefaultBeamWidth, DefaultSearchAlpha)
	if err := tr.BulkLoad(nil, nil, nil); err != nil {
		t.Fatalf("bulk load empty: %v", err)
	}
	if tr.Len() != 0 {
		t.Fatalf("expected empty tree, got len %d", tr.Len())
	}
	got, err := tr.Search(context.Background(), bitvec.BitVector{0x00}, 5)
	if err != nil {
		t.Fatalf("search empty tree: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no results from empty tree, got %d", len(got))
	}
}

func TestCalibrateOnEmptyTree(t *testing.T) {
	tr := newTestTree(DefaultFanout, DefaultBeamWidth, DefaultSearchAlpha)
	if err := tr.Calibrate(); err != nil {
		t.Fatalf("calibrate empty: %v", err)
	}
	if tr.Len() != 0 {
		t.Fatalf("expected empty tree after calibrate, got len %d", tr.Len())
	}
}
