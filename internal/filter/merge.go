package filter

import "vectra/internal/invertedindex"

type pl = invertedindex.PostingList

// intersect merge-joins two posting lists, sorted strictly increasing by
// vector index, and returns only the entries present in both.
func intersect(a, b pl) pl {
	out := pl{}
	i, j := 0, 0
	for i < len(a.VectorIndices) && j < len(b.VectorIndices) {
		switch {
		case a.VectorIndices[i] < b.VectorIndices[j]:
			i++
		case a.VectorIndices[i] > b.VectorIndices[j]:
			j++
		default:
			out.VectorIndices = append(out.VectorIndices, a.VectorIndices[i])
			out.IDs = append(out.IDs, a.IDs[i])
			i++
			j++
		}
	}
	return out
}

// union merge-joins two posting lists and returns the entries present in
// either, deduplicated by vector index.
func union(a, b pl) pl {
	out := pl{}
	i, j := 0, 0
	for i < len(a.VectorIndices) && j < len(b.VectorIndices) {
		switch {
		case a.VectorIndices[i] < b.VectorIndices[j]:
			out.VectorIndices = append(out.VectorIndices, a.VectorIndices[i])
			out.IDs = append(out.IDs, a.IDs[i])
			i++
		case a.VectorIndices[i] > b.VectorIndices[j]:
			out.VectorIndices = append(out.VectorIndices, b.VectorIndices[j])
			out.IDs = append(out.IDs, b.IDs[j])
			j++
		default:
			out.VectorIndices = append(out.VectorIndices, a.VectorIndices[i])
			out.IDs = append(out.IDs, a.IDs[i])
			i++
			j++
		}
	}
	for ; i < len(a.VectorIndices); i++ {
		out.VectorIndices = append(out.VectorIndices, a.VectorIndices[i])
		out.IDs = append(out.IDs, a.IDs[i])
	}
	for ; j < len(b.VectorIndices); j++ {
		out.VectorIndices = append(out.VectorIndices, b.VectorIndices[j])
		out.IDs = append(out.IDs, b.IDs[j])
	}
	return out
}

// difference merge-joins two posting lists and returns the entries of a
// whose vector index does not appear in b.
func difference(a, b pl) pl {
	out := pl{}
	i, j := 0, 0
	for i < len(a.VectorIndices) {
		for j < len(b.VectorIndices) && b.VectorIndices[j] < a.VectorIndices[i] {
			j++
		}
		if j < len(b.VectorIndices) && b.VectorIndices[j] == a.VectorIndices[i] {
			i++
			continue
		}
		out.VectorIndices = append(out.VectorIndices, a.VectorIndices[i])
		out.IDs = append(out.IDs, a.IDs[i])
		i++
	}
	return out
}
