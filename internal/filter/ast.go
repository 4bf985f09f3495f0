// Package filter implements the boolean attribute filter: an AST of
// equality, membership, and logical combinators, evaluated over the
// inverted index by merge-join over sorted posting lists.
package filter

// Expr is the interface for all filter AST nodes. The unexported marker
// method keeps external packages from implementing Expr directly — build
// expressions with the constructors below.
type Expr interface {
	expr()
}

// Eq matches records carrying the exact attribute (Key, Value).
type Eq struct {
	Key   string
	Value string
}

func (Eq) expr() {}

// NewEq constructs an Eq filter.
func NewEq(key, value string) Eq { return Eq{Key: key, Value: value} }

// In matches records carrying attribute Key equal to any of Values.
type In struct {
	Key    string
	Values []string
}

func (In) expr() {}

// NewIn constructs an In filter.
func NewIn(key string, values []string) In { return In{Key: key, Values: values} }

// And matches records satisfying every term. Invariant: len(Terms) >= 2.
type And struct {
	Terms []Expr
}

func (And) expr() {}

// NewAnd constructs an And filter, flattening nested Ands.
func NewAnd(terms ...Expr) Expr {
	if len(terms) == 1 {
		return terms[0]
	}
	flat := make([]Expr, 0, len(terms))
	for _, t := range terms {
		if a, ok := t.(And); ok {
			flat = append(flat, a.Terms...)
		} else {
			flat = append(flat, t)
		}
	}
	return And{Terms: flat}
}

// Or matches records satisfying at least one term. Invariant: len(Terms) >= 2.
type Or struct {
	Terms []Expr
}

func (Or) expr() {}

// NewOr constructs an Or filter, flattening nested Ors.
func NewOr(terms ...Expr) Expr {
	if len(terms) == 1 {
		return terms[0]
	}
	flat := make([]Expr, 0, len(terms))
	for _, t := range terms {
		if o, ok := t.(Or); ok {
			flat = append(flat, o.Terms...)
		} else {
			flat = append(flat, t)
		}
	}
	return Or{Terms: flat}
}

// Not matches records not satisfying Term.
type Not struct {
	Term Expr
}

func (Not) expr() {}

// NewNot constructs a Not filter.
func NewNot(term Expr) Not { return Not{Term: term} }
