// Package btree implements a generic, pointer-free B+-tree: all nodes live
// in a single flat slice addressed by integer offset, which makes the
// whole structure trivially serializable (the offset addressing survives
// a byte-for-byte round trip through ToBytes/FromBytes).
//
// Keys order via a Codec-supplied comparison; values are opaque and
// serialized through a Codec as well, so the tree itself never needs to
// know about uuid.UUID, kvpair.KVPair, or any other domain type.
package btree

import (
	"encoding/binary"
	"sort"

	"vectra/internal/vtxerr"
)

// DefaultFanout is the maximum number of keys a leaf or internal node
// holds before it splits.
const DefaultFanout = 128

const noChild = -1

// ValueCodec supplies serialization for a tree's value type. Encode and
// Decode must round trip.
type ValueCodec[T any] interface {
	Encode(v T) []byte
	// Decode parses a value from the front of data and returns the
	// value along with the number of bytes consumed.
	Decode(data []byte) (T, int, error)
}

// Codec supplies ordering and serialization for a tree's key type.
// Compare must define a total order consistent with Encode/Decode.
type Codec[T any] interface {
	ValueCodec[T]
	Compare(a, b T) int
}

type nodeKind uint8

const (
	kindLeaf nodeKind = iota
	kindInternal
)

// node is a single flat-array entry. Leaves hold a sorted run of (key,
// value) pairs and a sibling pointer; internal nodes hold a sorted run of
// separator keys and the offsets of their len(keys)+1 children.
type node[K, V any] struct {
	kind     nodeKind
	keys     []K
	values   []V   // leaf only, len(values) == len(keys)
	children []int // internal only, len(children) == len(keys)+1, offsets into Tree.nodes
	next     int   // leaf only, offset of the next leaf in key order, or noChild
}

// Tree is a generic B+-tree over a flat, offset-addressed node array.
type Tree[K, V any] struct {
	keyCodec   Codec[K]
	valueCodec ValueCodec[V]
	fanout     int
	nodes      []*node[K, V]
	root       int
	count      int
}

// New creates an empty tree with the default fanout.
func New[K, V any](keyCodec Codec[K], valueCodec ValueCodec[V]) *Tree[K, V] {
	return NewWithFanout[K, V](keyCodec, valueCodec, DefaultFanout)
}

// NewWithFanout creates an empty tree with an explicit fanout.
func NewWithFanout[K, V any](keyCodec Codec[K], valueCodec ValueCodec[V], fanout int) *Tree[K, V] {
	t := &Tree[K, V]{
		keyCodec:   keyCodec,
		valueCodec: valueCodec,
		fanout:     fanout,
	}
	root := &node[K, V]{kind: kindLeaf, next: noChild}
	t.root = t.append(root)
	return t
}

func (t *Tree[K, V]) append(n *node[K, V]) int {
	t.nodes = append(t.nodes, n)
	return len(t.nodes) - 1
}

// Len returns the number of (key, value) pairs currently stored.
func (t *Tree[K, V]) Len() int { return t.count }

// Fanout returns the tree's configured node fanout.
func (t *Tree[K, V]) Fanout() int { return t.fanout }

func (t *Tree[K, V]) leafFor(key K) int {
	off := t.root
	for t.nodes[off].kind == kindInternal {
		n := t.nodes[off]
		i := sort.Search(len(n.keys), func(i int) bool {
			return t.keyCodec.Compare(key, n.keys[i]) < 0
		})
		off = n.children[i]
	}
	return off
}

// Get returns the value stored for key, if any.
func (t *Tree[K, V]) Get(key K) (V, bool) {
	var zero V
	off := t.leafFor(key)
	leaf := t.nodes[off]
	i := sort.Search(len(leaf.keys), func(i int) bool {
		return t.keyCodec.Compare(leaf.keys[i], key) >= 0
	})
	if i < len(leaf.keys) && t.keyCodec.Compare(leaf.keys[i], key) == 0 {
		return leaf.values[i], true
	}
	return zero, false
}

// Insert inserts or overwrites key with value. If key already exists the
// new value replaces the old one (last-write-wins).
func (t *Tree[K, V]) Insert(key K, value V) {
	off := t.leafFor(key)
	t.insertIntoLeaf(off, key, value)
	if len(t.nodes[off].keys) > t.fanout {
		t.splitLeaf(off)
	}
}

func (t *Tree[K, V]) insertIntoLeaf(off int, key K, value V) {
	leaf := t.nodes[off]
	i := sort.Search(len(leaf.keys), func(i int) bool {
		return t.keyCodec.Compare(leaf.keys[i], key) >= 0
	})
	if i < len(leaf.keys) && t.keyCodec.Compare(leaf.keys[i], key) == 0 {
		leaf.values[i] = value
		return
	}
	leaf.keys = append(leaf.keys, key)
	copy(leaf.keys[i+1:], leaf.keys[i:])
	leaf.keys[i] = key
	leaf.values = append(leaf.values, value)
	copy(leaf.values[i+1:], leaf.values[i:])
	leaf.values[i] = value
	t.count++
}

// BatchInsert inserts many pairs at once. It sorts the batch by key,
// collapses duplicate keys, and then calls Insert for each remaining
// pair in key order, so every pair still pays its own root-to-leaf
// descent; leaves are not walked left to right. Duplicate keys within
// the batch resolve last-write-wins in the input order given.
func (t *Tree[K, V]) BatchInsert(keys []K, values []V) error {
	if len(keys) != len(values) {
		return vtxerr.New(vtxerr.LengthMismatch, "btree: batch_insert keys/values length mismatch")
	}
	type pair struct {
		k K
		v V
		i int // original index, for stable last-write-wins on duplicate keys
	}
	pairs := make([]pair, len(keys))
	for i := range keys {
		pairs[i] = pair{k: keys[i], v: values[i], i: i}
	}
	sort.SliceStable(pairs, func(a, b int) bool {
		c := t.keyCodec.Compare(pairs[a].k, pairs[b].k)
		if c != 0 {
			return c < 0
		}
		return pairs[a].i < pairs[b].i
	})
	// Collapse duplicate keys within the batch, keeping the
	// last-inserted value per key.
	deduped := pairs[:0:0]
	for i := 0; i < len(pairs); i++ {
		if i+1 < len(pairs) && t.keyCodec.Compare(pairs[i].k, pairs[i+1].k) == 0 {
			continue
		}
		deduped = append(deduped, pairs[i])
	}
	for _, p := range deduped {
		t.Insert(p.k, p.v)
	}
	return nil
}

// splitLeaf splits an overfull leaf at off into two leaves, linking the
// new leaf into the sibling chain and propagating the separator key up.
func (t *Tree[K, V]) splitLeaf(off int) {
	leaf := t.nodes[off]
	mid := len(leaf.keys) / 2

	right := &node[K, V]{
		kind:   kindLeaf,
		keys:   append([]K{}, leaf.keys[mid:]...),
		values: append([]V{}, leaf.values[mid:]...),
		next:   leaf.next,
	}
	rightOff := t.append(right)

	leaf.keys = leaf.keys[:mid]
	leaf.values = leaf.values[:mid]
	leaf.next = rightOff

	t.insertSeparator(off, right.keys[0], rightOff)
}

// insertSeparator propagates separatorKey/rightOff up into the parent of
// leftOff, splitting internal nodes as needed, and growing a new root
// when the split reaches the top.
func (t *Tree[K, V]) insertSeparator(leftOff int, separatorKey K, rightOff int) {
	parent := t.findParent(leftOff)
	if parent == noChild {
		newRoot := &node[K, V]{
			kind:     kindInternal,
			keys:     []K{separatorKey},
			children: []int{leftOff, rightOff},
		}
		t.root = t.append(newRoot)
		return
	}

	p := t.nodes[parent]
	i := sort.Search(len(p.keys), func(i int) bool {
		return t.keyCodec.Compare(separatorKey, p.keys[i]) < 0
	})
	p.keys = append(p.keys, separatorKey)
	copy(p.keys[i+1:], p.keys[i:])
	p.keys[i] = separatorKey

	p.children = append(p.children, 0)
	copy(p.children[i+2:], p.children[i+1:])
	p.children[i+1] = rightOff

	if len(p.keys) > t.fanout {
		t.splitInternal(parent)
	}
}

func (t *Tree[K, V]) splitInternal(off int) {
	n := t.nodes[off]
	mid := len(n.keys) / 2
	upKey := n.keys[mid]

	right := &node[K, V]{
		kind:     kindInternal,
		keys:     append([]K{}, n.keys[mid+1:]...),
		children: append([]int{}, n.children[mid+1:]...),
	}
	rightOff := t.append(right)

	n.keys = n.keys[:mid]
	n.children = n.children[:mid+1]

	t.insertSeparator(off, upKey, rightOff)
}

// findParent scans the tree for the internal node whose children include
// off. Returns noChild if off is the root. The flat, pointer-free layout
// trades this linear scan for trivial serializability; trees stay small
// enough in practice (fanout-bounded depth) that this does not dominate
// insert cost.
func (t *Tree[K, V]) findParent(off int) int {
	for i, n := range t.nodes {
		if n == nil || n.kind != kindInternal {
			continue
		}
		for _, c := range n.children {
			if c == off {
				return i
			}
		}
	}
	return noChild
}

// Range returns all (key, value) pairs with key in the half-open
// interval [lo, hi), in ascending key order.
func (t *Tree[K, V]) Range(lo, hi K) ([]K, []V) {
	var keys []K
	var values []V
	off := t.leafFor(lo)
	for off != noChild {
		leaf := t.nodes[off]
		for i, k := range leaf.keys {
			if t.keyCodec.Compare(k, lo) < 0 {
				continue
			}
			if t.keyCodec.Compare(k, hi) >= 0 {
				return keys, values
			}
			keys = append(keys, k)
			values = append(values, leaf.values[i])
		}
		off = leaf.next
	}
	return keys, values
}

// All returns every (key, value) pair in ascending key order.
func (t *Tree[K, V]) All() ([]K, []V) {
	var keys []K
	var values []V
	off := t.leftmostLeaf()
	for off != noChild {
		leaf := t.nodes[off]
		keys = append(keys, leaf.keys...)
		values = append(values, leaf.values...)
		off = leaf.next
	}
	return keys, values
}

func (t *Tree[K, V]) leftmostLeaf() int {
	off := t.root
	for t.nodes[off].kind == kindInternal {
		off = t.nodes[off].children[0]
	}
	return off
}

// ToBytes serializes the tree to the flat node-image wire format:
// [fanout:u64][root_offset:i64][node_count:u64] then, per node in array
// order, [node_len:u64][node_bytes].
func (t *Tree[K, V]) ToBytes() []byte {
	var header [24]byte
	binary.LittleEndian.PutUint64(header[0:8], uint64(t.fanout))
	binary.LittleEndian.PutUint64(header[8:16], uint64(int64(t.root)))
	binary.LittleEndian.PutUint64(header[16:24], uint64(len(t.nodes)))

	buf := append([]byte{}, header[:]...)
	for _, n := range t.nodes {
		body := t.encodeNode(n)
		var lenBuf [8]byte
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(body)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, body...)
	}
	return buf
}

func (t *Tree[K, V]) encodeNode(n *node[K, V]) []byte {
	buf := []byte{byte(n.kind)}
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], uint64(len(n.keys)))
	buf = append(buf, scratch[:]...)
	for _, k := range n.keys {
		kb := t.keyCodec.Encode(k)
		binary.LittleEndian.PutUint64(scratch[:], uint64(len(kb)))
		buf = append(buf, scratch[:]...)
		buf = append(buf, kb...)
	}
	switch n.kind {
	case kindLeaf:
		for _, v := range n.values {
			vb := t.valueCodec.Encode(v)
			binary.LittleEndian.PutUint64(scratch[:], uint64(len(vb)))
			buf = append(buf, scratch[:]...)
			buf = append(buf, vb...)
		}
		binary.LittleEndian.PutUint64(scratch[:], uint64(int64(n.next)))
		buf = append(buf, scratch[:]...)
	case kindInternal:
		binary.LittleEndian.PutUint64(scratch[:], uint64(len(n.children)))
		buf = append(buf, scratch[:]...)
		for _, c := range n.children {
			binary.LittleEndian.PutUint64(scratch[:], uint64(int64(c)))
			buf = append(buf, scratch[:]...)
		}
	}
	return buf
}

// FromBytes decodes a tree image produced by ToBytes.
func FromBytes[K, V any](data []byte, keyCodec Codec[K], valueCodec ValueCodec[V]) (*Tree[K, V], error) {
	if len(data) < 24 {
		return nil, vtxerr.New(vtxerr.Corruption, "btree: image too small for header")
	}
	fanout := int(binary.LittleEndian.Uint64(data[0:8]))
	root := int(int64(binary.LittleEndian.Uint64(data[8:16])))
	nodeCount := binary.LittleEndian.Uint64(data[16:24])

	t := &Tree[K, V]{keyCodec: keyCodec, valueCodec: valueCodec, fanout: fanout, root: root}
	off := 24
	for i := uint64(0); i < nodeCount; i++ {
		if len(data)-off < 8 {
			return nil, vtxerr.New(vtxerr.Corruption, "btree: truncated node length")
		}
		nodeLen := binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
		if uint64(len(data)-off) < nodeLen {
			return nil, vtxerr.New(vtxerr.Corruption, "btree: truncated node body")
		}
		n, err := decodeNode(data[off:off+int(nodeLen)], keyCodec, valueCodec)
		if err != nil {
			return nil, err
		}
		t.nodes = append(t.nodes, n)
		off += int(nodeLen)
	}

	count := 0
	for _, n := range t.nodes {
		if n.kind == kindLeaf {
			count += len(n.keys)
		}
	}
	t.count = count
	return t, nil
}

func decodeNode[K, V any](data []byte, keyCodec Codec[K], valueCodec ValueCodec[V]) (*node[K, V], error) {
	if len(data) < 1+8 {
		return nil, vtxerr.New(vtxerr.Corruption, "btree: node blob too small")
	}
	kind := nodeKind(data[0])
	off := 1
	keyCount := binary.LittleEndian.Uint64(data[off : off+8])
	off += 8

	n := &node[K, V]{kind: kind}
	n.keys = make([]K, 0, keyCount)
	for i := uint64(0); i < keyCount; i++ {
		if len(data)-off < 8 {
			return nil, vtxerr.New(vtxerr.Corruption, "btree: truncated key length")
		}
		kLen := binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
		if uint64(len(data)-off) < kLen {
			return nil, vtxerr.New(vtxerr.Corruption, "btree: truncated key body")
		}
		k, _, err := keyCodec.Decode(data[off : off+int(kLen)])
		if err != nil {
			return nil, err
		}
		n.keys = append(n.keys, k)
		off += int(kLen)
	}

	switch kind {
	case kindLeaf:
		n.values = make([]V, 0, keyCount)
		for i := uint64(0); i < keyCount; i++ {
			if len(data)-off < 8 {
				return nil, vtxerr.New(vtxerr.Corruption, "btree: truncated value length")
			}
			vLen := binary.LittleEndian.Uint64(data[off : off+8])
			off += 8
			if uint64(len(data)-off) < vLen {
				return nil, vtxerr.New(vtxerr.Corruption, "btree: truncated value body")
			}
			v, _, err := valueCodec.Decode(data[off : off+int(vLen)])
			if err != nil {
				return nil, err
			}
			n.values = append(n.values, v)
			off += int(vLen)
		}
		if len(data)-off < 8 {
			return nil, vtxerr.New(vtxerr.Corruption, "btree: truncated leaf sibling pointer")
		}
		n.next = int(int64(binary.LittleEndian.Uint64(data[off : off+8])))
		off += 8
	case kindInternal:
		if len(data)-off < 8 {
			return nil, vtxerr.New(vtxerr.Corruption, "btree: truncated child count")
		}
		childCount := binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
		n.children = make([]int, 0, childCount)
		for i := uint64(0); i < childCount; i++ {
			if len(data)-off < 8 {
				return nil, vtxerr.New(vtxerr.Corruption, "btree: truncated child offset")
			}
			n.children = append(n.children, int(int64(binary.LittleEndian.Uint64(data[off:off+8]))))
			off += 8
		}
	default:
		return nil, vtxerr.New(vtxerr.Corruption, "btree: unknown node kind")
	}
	return n, nil
}
