// Package metaindex is the metadata index: a B+-tree keyed by external id
// (uuid.UUID) mapping each id to its Record (attributes and vector_index).
package metaindex

import (
	"github.com/google/uuid"

	"vectra/internal/btree"
	"vectra/internal/kvpair"
)

// Index wraps a B+-tree specialized to uuid.UUID keys and msgpack-encoded
// Record values.
type Index struct {
	tree *btree.Tree[uuid.UUID, kvpair.Record]
}

// New creates an empty metadata index with the given B+-tree fanout.
func New(fanout int) *Index {
	return &Index{tree: btree.NewWithFanout[uuid.UUID, kvpair.Record](
		btree.UUIDCodec{}, btree.MsgpackCodec[kvpair.Record]{}, fanout)}
}

// Insert inserts or overwrites the record for id (last-write-wins).
func (idx *Index) Insert(id uuid.UUID, rec kvpair.Record) {
	idx.tree.Insert(id, rec)
}

// BatchInsert inserts many records at once.
func (idx *Index) BatchInsert(ids []uuid.UUID, recs []kvpair.Record) error {
	return idx.tree.BatchInsert(ids, recs)
}

// Get returns the record stored for id, if any.
func (idx *Index) Get(id uuid.UUID) (kvpair.Record, bool) {
	return idx.tree.Get(id)
}

// Len returns the number of records in the index.
func (idx *Index) Len() int { return idx.tree.Len() }

// All returns every (id, record) pair in ascending id order.
func (idx *Index) All() ([]uuid.UUID, []kvpair.Record) {
	return idx.tree.All()
}

// ToBytes serializes the index's underlying B+-tree image.
func (idx *Index) ToBytes() []byte {
	return idx.tree.ToBytes()
}

// FromBytes decodes a metadata index image produced by ToBytes.
func FromBytes(data []byte) (*Index, error) {
	tree, err := btree.FromBytes[uuid.UUID, kvpair.Record](data, btree.UUIDCodec{}, btree.MsgpackCodec[kvpair.Record]{})
	if err != nil {
		return nil, err
	}
	return &Index{tree: tree}, nil
}
