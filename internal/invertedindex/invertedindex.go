// Package invertedindex is the inverted index: a B+-tree keyed by
// (key, value) attribute, total-ordered per kvpair.Compare, mapping each
// attribute to its posting list of (vector_index, id) pairs.
package invertedindex

import (
	"vectra/internal/btree"
	"vectra/internal/kvpair"
)

// Index wraps a B+-tree specialized to kvpair.KVPair keys and
// msgpack-encoded PostingList values.
type Index struct {
	tree *btree.Tree[kvpair.KVPair, PostingList]
}

// New creates an empty inverted index with the given B+-tree fanout.
func New(fanout int) *Index {
	return &Index{tree: btree.NewWithFanout[kvpair.KVPair, PostingList](
		kvpair.Codec{}, btree.MsgpackCodec[PostingList]{}, fanout)}
}

// InsertAppend appends entry's (vector_index, id) pairs onto attr's
// existing posting list, creating the list if attr is new.
func (idx *Index) InsertAppend(attr kvpair.KVPair, entry PostingList) {
	existing, ok := idx.tree.Get(attr)
	if !ok {
		idx.tree.Insert(attr, entry)
		return
	}
	idx.tree.Insert(attr, existing.Append(entry))
}

// Get returns the posting list for attr, if any.
func (idx *Index) Get(attr kvpair.KVPair) (PostingList, bool) {
	return idx.tree.Get(attr)
}

// Len returns the number of distinct attributes indexed.
func (idx *Index) Len() int { return idx.tree.Len() }

// All returns every (attribute, posting list) pair in attribute order.
func (idx *Index) All() ([]kvpair.KVPair, []PostingList) {
	return idx.tree.All()
}

// RangeByKey returns every (attribute, posting list) pair whose Key
// equals key, useful for enumerating all values seen for an attribute
// key without scanning the whole index.
func (idx *Index) RangeByKey(key string) ([]kvpair.KVPair, []PostingList) {
	lo := kvpair.New(key, "")
	hi := kvpair.New(key+"\x00", "")
	return idx.tree.Range(lo, hi)
}

// ToBytes serializes the index's underlying B+-tree image.
func (idx *Index) ToBytes() []byte {
	return idx.tree.ToBytes()
}

// FromBytes decodes an inverted index image produced by ToBytes.
func FromBytes(data []byte) (*Index, error) {
	tree, err := btree.FromBytes[kvpair.KVPair, PostingList](data, kvpair.Codec{}, btree.MsgpackCodec[PostingList]{})
	if err != nil {
		return nil, err
	}
	return &Index{tree: tree}, nil
}
