package anntree

import (
	"github.com/google/uuid"

	"vectra/internal/bitvec"
)

type nodeKind uint8

const (
	kindLeaf nodeKind = iota
	kindInternal
)

const noChild = -1

// node is a single flat-array entry of the ANN tree. Leaves carry their
// own copy of each member's bit vector (not a reference into the dense
// vector store) so that traversal and splitting never leave the node's
// own subtree — the dense store remains the source of truth for
// contiguous batch reads, while the tree is self-contained for
// beam-search locality and serialization.
type node struct {
	kind nodeKind

	// Leaf fields.
	vectors       []bitvec.BitVector
	ids           []uuid.UUID
	vectorIndices []uint64

	// Internal fields: centroids[i] summarizes the subtree rooted at
	// children[i].
	centroids []bitvec.BitVector
	children  []int
}

func newLeaf() *node { return &node{kind: kindLeaf} }

func newInternal() *node { return &node{kind: kindInternal} }

// size returns the node's fan-out count: entries for a leaf, children
// for an internal node.
func (n *node) size() int {
	if n.kind == kindLeaf {
		return len(n.vectors)
	}
	return len(n.children)
}

// centroid summarizes the node for use as a sibling's routing key: the
// bitwise mode of its leaf vectors, or of its children's own centroids.
func (n *node) centroid() bitvec.BitVector {
	if n.kind == kindLeaf {
		return bitvec.Mode(n.vectors)
	}
	return bitvec.Mode(n.centroids)
}
