// Package vecstore implements the dense vector store: an append-only list
// of fixed-width bit vectors that assigns each pushed vector a stable,
// monotonically increasing index and supports cache-friendly contiguous
// slice reads for the query path's run-batched hamming scans.
package vecstore

import (
	"encoding/binary"

	"vectra/internal/bitvec"
	"vectra/internal/vtxerr"
)

// Store is an append-only, contiguously-backed list of bit vectors of a
// fixed width. The i-th Push returns index i, and that index never
// changes for the lifetime of the store (no deletion, no compaction).
type Store struct {
	width int    // bytes per vector (QVS)
	data  []byte // len(data) == count*width, laid out contiguously
	count int
}

// New creates an empty store for vectors of the given byte width.
func New(width int) *Store {
	return &Store{width: width}
}

// Width returns the configured bit-vector byte width.
func (s *Store) Width() int { return s.width }

// Push appends v and returns its newly assigned index.
func (s *Store) Push(v bitvec.BitVector) (int, error) {
	if len(v) != s.width {
		return 0, vtxerr.New(vtxerr.DimMismatch, "vecstore: push width mismatch")
	}
	s.data = append(s.data, v...)
	idx := s.count
	s.count++
	return idx, nil
}

// BatchPush appends all of vs in order and returns the consecutive
// [first, first+len(vs)) index range as a slice of indices.
func (s *Store) BatchPush(vs []bitvec.BitVector) ([]int, error) {
	indices := make([]int, len(vs))
	start := s.count
	for _, v := range vs {
		if len(v) != s.width {
			return nil, vtxerr.New(vtxerr.DimMismatch, "vecstore: batch_push width mismatch")
		}
	}
	for i, v := range vs {
		s.data = append(s.data, v...)
		indices[i] = start + i
	}
	s.count += len(vs)
	return indices, nil
}

// Len returns the number of stored vectors.
func (s *Store) Len() int { return s.count }

// Get returns the vector at index i. The returned slice aliases the
// store's backing array and must not be mutated by the caller.
func (s *Store) Get(i int) (bitvec.BitVector, error) {
	if i < 0 || i >= s.count {
		return nil, vtxerr.New(vtxerr.OutOfBounds, "vecstore: get index out of bounds")
	}
	return bitvec.BitVector(s.data[i*s.width : (i+1)*s.width]), nil
}

// GetContiguous returns a slice view over n consecutive vectors starting
// at start. The result is laid out contiguously in memory (a direct
// sub-slice of the store's backing array), enabling cache-friendly
// scanning. Returns OutOfBounds if start+n exceeds Len().
func (s *Store) GetContiguous(start, n int) ([]bitvec.BitVector, error) {
	if start < 0 || n < 0 || start+n > s.count {
		return nil, vtxerr.New(vtxerr.OutOfBounds, "vecstore: get_contiguous range out of bounds")
	}
	out := make([]bitvec.BitVector, n)
	base := s.data[start*s.width : (start+n)*s.width]
	for i := range out {
		out[i] = bitvec.BitVector(base[i*s.width : (i+1)*s.width])
	}
	return out, nil
}

// ToBytes encodes the store per the dense vector store wire format:
// [n:u64][B-byte vectors concatenated].
func (s *Store) ToBytes() []byte {
	buf := make([]byte, 8+len(s.data))
	binary.LittleEndian.PutUint64(buf[:8], uint64(s.count)) //nolint:gosec // G115: count bounded by memory
	copy(buf[8:], s.data)
	return buf
}

// FromBytes decodes a store image produced by ToBytes. width must match
// the namespace's configured bit-vector width.
func FromBytes(data []byte, width int) (*Store, error) {
	if len(data) < 8 {
		return nil, vtxerr.New(vtxerr.Corruption, "vecstore: image too small for length prefix")
	}
	n := binary.LittleEndian.Uint64(data[:8])
	body := data[8:]
	want := n * uint64(width) //nolint:gosec // G115: width is a small configured constant
	if uint64(len(body)) != want {
		return nil, vtxerr.New(vtxerr.Corruption, "vecstore: image body length mismatch")
	}
	out := &Store{
		width: width,
		count: int(n),
		data:  make([]byte, len(body)),
	}
	copy(out.data, body)
	return out, nil
}
