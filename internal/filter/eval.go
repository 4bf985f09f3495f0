package filter

import (
	"vectra/internal/invertedindex"
	"vectra/internal/kvpair"
	"vectra/internal/vtxerr"
)

// Universe lazily produces the full (vector_index, id) posting list. It
// is only invoked when a Not expression genuinely needs the complement
// of a set against everything (a bare Not, or a Not inside an Or) — an
// And with at least one positive term never calls it, since the positive
// term's own posting list already bounds the search.
type Universe func() invertedindex.PostingList

// Evaluator evaluates filter expressions against an inverted index.
type Evaluator struct {
	Index    *invertedindex.Index
	Universe Universe
}

// NewEvaluator builds an Evaluator over idx, with universe as the lazy
// full-posting-list provider for standalone Not evaluation.
func NewEvaluator(idx *invertedindex.Index, universe Universe) *Evaluator {
	return &Evaluator{Index: idx, Universe: universe}
}

// Evaluate runs expr and returns the aligned (vector_index, id) posting
// list of matching records, sorted strictly increasing by vector index.
func (e *Evaluator) Evaluate(expr Expr) (invertedindex.PostingList, error) {
	switch x := expr.(type) {
	case Eq:
		pl, _ := e.Index.Get(kvpair.New(x.Key, x.Value))
		return pl, nil

	case In:
		if len(x.Values) == 0 {
			return invertedindex.PostingList{}, nil
		}
		acc, _ := e.Index.Get(kvpair.New(x.Key, x.Values[0]))
		for _, v := range x.Values[1:] {
			next, _ := e.Index.Get(kvpair.New(x.Key, v))
			acc = union(acc, next)
		}
		return acc, nil

	case And:
		return e.evaluateAnd(x.Terms)

	case Or:
		if len(x.Terms) == 0 {
			return invertedindex.PostingList{}, nil
		}
		acc, err := e.Evaluate(x.Terms[0])
		if err != nil {
			return invertedindex.PostingList{}, err
		}
		for _, t := range x.Terms[1:] {
			next, err := e.Evaluate(t)
			if err != nil {
				return invertedindex.PostingList{}, err
			}
			acc = union(acc, next)
		}
		return acc, nil

	case Not:
		if e.Universe == nil {
			return invertedindex.PostingList{}, vtxerr.New(vtxerr.BadFilter, "filter: Not requires a universe provider")
		}
		inner, err := e.Evaluate(x.Term)
		if err != nil {
			return invertedindex.PostingList{}, err
		}
		return difference(e.Universe(), inner), nil

	default:
		return invertedindex.PostingList{}, vtxerr.New(vtxerr.BadFilter, "filter: unknown expression type")
	}
}

// evaluateAnd separates positive terms from top-level Not terms so the
// common "X AND NOT Y" shape never touches the universe: the positive
// terms' intersection already bounds the candidate set, and excluding a
// Not term is a plain merge-difference against that bound. Only an And
// made entirely of Not terms falls back to the universe.
func (e *Evaluator) evaluateAnd(terms []Expr) (invertedindex.PostingList, error) {
	var positive []Expr
	var negated []Expr
	for _, t := range terms {
		if n, ok := t.(Not); ok {
			negated = append(negated, n.Term)
		} else {
			positive = append(positive, t)
		}
	}

	var base invertedindex.PostingList
	var err error
	switch {
	case len(positive) > 0:
		base, err = e.Evaluate(positive[0])
		if err != nil {
			return invertedindex.PostingList{}, err
		}
		for _, t := range positive[1:] {
			next, err := e.Evaluate(t)
			if err != nil {
				return invertedindex.PostingList{}, err
			}
			base = intersect(base, next)
		}
	case e.Universe != nil:
		base = e.Universe()
	default:
		return invertedindex.PostingList{}, vtxerr.New(vtxerr.BadFilter, "filter: And of only Not terms requires a universe provider")
	}

	for _, t := range negated {
		excl, err := e.Evaluate(t)
		if err != nil {
			return invertedindex.PostingList{}, err
		}
		base = difference(base, excl)
	}
	return base, nil
}
