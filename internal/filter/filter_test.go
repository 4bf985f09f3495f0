package filter

import (
	"testing"

	"github.com/google/uuid"

	"vectra/internal/invertedindex"
	"vectra/internal/kvpair"
)

type fixture struct {
	idx *invertedindex.Index
	ids []uuid.UUID
}

// buildFixture creates 6 records (vector indices 0..5) with overlapping
// color/size attributes, mirroring the kind of small multi-attribute
// corpus the query-path tests exercise end to end.
func buildFixture() fixture {
	idx := invertedindex.New(8)
	ids := make([]uuid.UUID, 6)
	for i := range ids {
		ids[i] = uuid.New()
	}
	// 0: red, small   1: red, large   2: blue, small
	// 3: blue, large  4: green, small 5: red, small
	attrs := []struct {
		vidx  int
		color string
		size  string
	}{
		{0, "red", "small"},
		{1, "red", "large"},
		{2, "blue", "small"},
		{3, "blue", "large"},
		{4, "green", "small"},
		{5, "red", "small"},
	}
	for _, a := range attrs {
		idx.InsertAppend(kvpair.New("color", a.color), invertedindex.Single(uint64(a.vidx), ids[a.vidx]))
		idx.InsertAppend(kvpair.New("size", a.size), invertedindex.Single(uint64(a.vidx), ids[a.vidx]))
	}
	return fixture{idx: idx, ids: ids}
}

func (f fixture) universe() invertedindex.PostingList {
	pl := invertedindex.PostingList{}
	for i, id := range f.ids {
		pl.VectorIndices = append(pl.VectorIndices, uint64(i))
		pl.IDs = append(pl.IDs, id)
	}
	return pl
}

func assertIndices(t *testing.T, got invertedindex.PostingList, want []uint64) {
	t.Helper()
	if len(got.VectorIndices) != len(want) {
		t.Fatalf("got %v, want %v", got.VectorIndices, want)
	}
	for i := range want {
		if got.VectorIndices[i] != want[i] {
			t.Fatalf("got %v, want %v", got.VectorIndices, want)
		}
	}
}

func TestEvaluateEq(t *testing.T) {
	f := buildFixture()
	e := NewEvaluator(f.idx, f.universe)
	got, err := e.Evaluate(NewEq("color", "red"))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	assertIndices(t, got, []uint64{0, 1, 5})
}

func TestEvaluateEqMissingAttribute(t *testing.T) {
	f := buildFixture()
	e := NewEvaluator(f.idx, f.universe)
	got, err := e.Evaluate(NewEq("color", "purple"))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	assertIndices(t, got, nil)
}

func TestEvaluateIn(t *testing.T) {
	f := buildFixture()
	e := NewEvaluator(f.idx, f.universe)
	got, err := e.Evaluate(NewIn("color", []string{"red", "blue"}))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	assertIndices(t, got, []uint64{0, 1, 2, 3, 5})
}

func TestEvaluateAnd(t *testing.T) {
	f := buildFixture()
	e := NewEvaluator(f.idx, f.universe)
	got, err := e.Evaluate(NewAnd(NewEq("color", "red"), NewEq("size", "small")))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	assertIndices(t, got, []uint64{0, 5})
}

func TestEvaluateOr(t *testing.T) {
	f := buildFixture()
	e := NewEvaluator(f.idx, f.universe)
	got, err := e.Evaluate(NewOr(NewEq("color", "green"), NewEq("color", "blue")))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	assertIndices(t, got, []uint64{2, 3, 4})
}

func TestEvaluateNotStandalone(t *testing.T) {
	f := buildFixture()
	e := NewEvaluator(f.idx, f.universe)
	got, err := e.Evaluate(NewNot(NewEq("color", "red")))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	assertIndices(t, got, []uint64{2, 3, 4})
}

func TestEvaluateAndNotUsesPositiveBound(t *testing.T) {
	f := buildFixture()
	e := NewEvaluator(f.idx, nil) // no universe provider at all
	got, err := e.Evaluate(NewAnd(NewEq("size", "small"), NewNot(NewEq("color", "red"))))
	if err != nil {
		t.Fatalf("evaluate without universe should succeed for And(pos, Not): %v", err)
	}
	assertIndices(t, got, []uint64{2, 4})
}

func TestEvaluateNotWithoutUniverseErrors(t *testing.T) {
	f := buildFixture()
	e := NewEvaluator(f.idx, nil)
	if _, err := e.Evaluate(NewNot(NewEq("color", "red"))); err == nil {
		t.Fatalf("expected error for standalone Not with no universe provider")
	}
}

func TestEvaluateAllNotAndFallsBackToUniverse(t *testing.T) {
	f := buildFixture()
	e := NewEvaluator(f.idx, f.universe)
	got, err := e.Evaluate(NewAnd(NewNot(NewEq("color", "red")), NewNot(NewEq("size", "large"))))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	// not red, not large -> blue/small(2) excluded by large? blue/small is 2 (small) keep;
	// green/small(4) keep; blue/large(3) is large -> excluded; red ones excluded.
	assertIndices(t, got, []uint64{2, 4})
}

func TestNewAndFlattensNested(t *testing.T) {
	flat := NewAnd(NewAnd(NewEq("a", "1"), NewEq("b", "2")), NewEq("c", "3"))
	and, ok := flat.(And)
	if !ok {
		t.Fatalf("expected And, got %T", flat)
	}
	if len(and.Terms) != 3 {
		t.Fatalf("expected flattened 3 terms, got %d", len(and.Terms))
	}
}

func TestNewOrFlattensNested(t *testing.T) {
	flat := NewOr(NewOr(NewEq("a", "1"), NewEq("b", "2")), NewEq("c", "3"))
	or, ok := flat.(Or)
	if !ok {
		t.Fatalf("expected Or, got %T", flat)
	}
	if len(or.Terms) != 3 {
		t.Fatalf("expected flattened 3 terms, got %d", len(or.Terms))
	}
}
