package invertedindex

import "github.com/google/uuid"

// PostingList is the set of (vector_index, id) pairs carrying a given
// attribute, stored as two aligned slices sorted strictly increasing by
// VectorIndices. Keeping indices and ids in parallel slices (rather than
// a slice of pairs) matches the dense vector store's own indexing and
// lets filter evaluation merge-join directly on VectorIndices without an
// intermediate struct allocation per entry.
type PostingList struct {
	VectorIndices []uint64
	IDs           []uuid.UUID
}

// Len returns the number of entries in the posting list.
func (p PostingList) Len() int { return len(p.VectorIndices) }

// Append concatenates other onto p. Callers are responsible for supplying
// other in an order that keeps the result strictly increasing by
// VectorIndices — in practice this holds because vector indices are
// assigned monotonically by the dense vector store and attributes are
// appended to the inverted index in insertion order.
func (p PostingList) Append(other PostingList) PostingList {
	return PostingList{
		VectorIndices: append(append([]uint64{}, p.VectorIndices...), other.VectorIndices...),
		IDs:           append(append([]uuid.UUID{}, p.IDs...), other.IDs...),
	}
}

// Single builds a one-entry posting list.
func Single(vectorIndex uint64, id uuid.UUID) PostingList {
	return PostingList{VectorIndices: []uint64{vectorIndex}, IDs: []uuid.UUID{id}}
}
