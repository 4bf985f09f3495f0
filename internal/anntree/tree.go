// Package anntree implements the hierarchical approximate-nearest-neighbor
// index over binary-quantized vectors: a clustered k-ary tree searched by
// narrowing beam, bulk-buildable, and calibratable back to balance after
// a long run of incremental inserts.
package anntree

import (
	"context"
	"encoding/binary"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vectra/internal/bitvec"
	"vectra/internal/vtxerr"
)

// DefaultFanout (K) is the maximum number of entries a leaf holds, or
// children an internal node holds, before it splits.
const DefaultFanout = 64

// DefaultBeamWidth (C) is the number of closest candidates find-entrypoint
// expands at each level while descending to an insertion point.
const DefaultBeamWidth = 8

// DefaultSearchAlpha (ALPHA) is the beam width search() starts with at
// the root; it halves at each successive depth down to a floor of 1.
const DefaultSearchAlpha = 16

// DefaultKModesMaxIters bounds the balanced k-modes reassignment loop
// run during a node split or a full Calibrate.
const DefaultKModesMaxIters = 20

// DefaultBalanceEpsilon is the largest fractional size imbalance
// between the two clusters a k-modes split tolerates before forcibly
// moving members from the larger cluster to the smaller one.
const DefaultBalanceEpsilon = 0.2

// Tree is a flat, offset-addressed ANN tree, mirroring the B+-tree
// package's layout: every node lives in a single slice, addressed by
// integer offset, so the whole structure serializes as one contiguous
// image.
type Tree struct {
	fanout         int
	beamWidth      int
	searchAlpha    int
	kModesMaxIters int
	balanceEpsilon float64

	nodes []*node
	root  int
	count int
}

// New creates an empty ANN tree with default tuning constants.
func New() *Tree {
	return NewWithConfig(DefaultFanout, DefaultBeamWidth, DefaultSearchAlpha)
}

// NewWithConfig creates an empty ANN tree with explicit fanout, beam
// width, and search alpha, using the default k-modes split tuning.
func NewWithConfig(fanout, beamWidth, searchAlpha int) *Tree {
	return NewWithKModesConfig(fanout, beamWidth, searchAlpha, DefaultKModesMaxIters, DefaultBalanceEpsilon)
}

// NewWithKModesConfig creates an empty ANN tree with every tuning
// constant, including the balanced k-modes split's iteration cap and
// imbalance tolerance.
func NewWithKModesConfig(fanout, beamWidth, searchAlpha, kModesMaxIters int, balanceEpsilon float64) *Tree {
	t := &Tree{
		fanout:         fanout,
		beamWidth:      beamWidth,
		searchAlpha:    searchAlpha,
		kModesMaxIters: kModesMaxIters,
		balanceEpsilon: balanceEpsilon,
	}
	t.root = t.append(newLeaf())
	return t
}

// SetKModesConfig overrides the balanced k-modes split tuning. The node
// image's wire format does not carry these two knobs (they only affect
// future splits, never decoding), so a tree rebuilt by FromBytes starts
// out with the package defaults; a caller restoring a tree under a
// specific Config calls this after FromBytes to restore its own values.
func (t *Tree) SetKModesConfig(kModesMaxIters int, balanceEpsilon float64) {
	t.kModesMaxIters = kModesMaxIters
	t.balanceEpsilon = balanceEpsilon
}

func (t *Tree) append(n *node) int {
	t.nodes = append(t.nodes, n)
	return len(t.nodes) - 1
}

// Len returns the number of vectors indexed.
func (t *Tree) Len() int { return t.count }

// withRecover runs fn, converting any panic raised by a node-invariant
// assertion (checkInvariant, balancedKModes' minimum-size requirement)
// into a vtxerr.Corruption error instead of letting it escape to the
// namespace API boundary.
func withRecover(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = vtxerr.New(vtxerr.Corruption, fmt.Sprintf("anntree: invariant violation: %v", r))
		}
	}()
	fn()
	return nil
}

// checkInvariant panics if an internal node's children and centroids have
// drifted out of lockstep. Split and Calibrate both maintain them as
// parallel arrays; any mismatch is a structural bug, not a caller error.
func checkInvariant(n *node) {
	if n.kind == kindInternal && len(n.children) != len(n.centroids) {
		panic(fmt.Sprintf("anntree: internal node has %d children but %d centroids", len(n.children), len(n.centroids)))
	}
}

// Insert adds a single (vector, id, vectorIndex) entry, descending to the
// entry point found by findEntrypointOffset and splitting ancestors as needed.
func (t *Tree) Insert(vector bitvec.BitVector, id uuid.UUID, vectorIndex uint64) error {
	return withRecover(func() {
		off := t.findEntrypointOffset(vector)
		leaf := t.nodes[off]
		leaf.vectors = append(leaf.vectors, vector)
		leaf.ids = append(leaf.ids, id)
		leaf.vectorIndices = append(leaf.vectorIndices, vectorIndex)
		t.count++

		if leaf.size() > t.fanout {
			t.splitOverflowing(off)
		}
	})
}

// BatchInsert adds many entries in order. It behaves exactly like calling
// Insert repeatedly; batching exists for API symmetry with the dense
// vector store and metadata index.
func (t *Tree) BatchInsert(vectors []bitvec.BitVector, ids []uuid.UUID, vectorIndices []uint64) error {
	if len(vectors) != len(ids) || len(vectors) != len(vectorIndices) {
		return vtxerr.New(vtxerr.LengthMismatch, "anntree: batch_insert slice length mismatch")
	}
	for i := range vectors {
		if err := t.Insert(vectors[i], ids[i], vectorIndices[i]); err != nil {
			return err
		}
	}
	return nil
}

// findEntrypointOffset performs the two-ply greedy-descent beam: at each
// internal level it ranks children by centroid distance, expands the top
// beamWidth candidates one level deeper, and commits to whichever single
// child minimizes distance among that expanded set. This looks two plies
// ahead instead of one so a locally-suboptimal centroid doesn't strand an
// insert in the wrong subtree.
func (t *Tree) findEntrypointOffset(vector bitvec.BitVector) int {
	off := t.root
	for t.nodes[off].kind == kindInternal {
		n := t.nodes[off]
		top := closestIndices(vector, n.centroids, t.beamWidth)

		bestChild := noChild
		var bestDist uint16 = ^uint16(0)
		for _, i := range top {
			childOff := n.children[i]
			child := t.nodes[childOff]
			grandTop := closestIndices(vector, childCentroids(child), t.beamWidth)
			for _, g := range grandTop {
				var d uint16
				if child.kind == kindLeaf {
					d = bitvec.Hamming(vector, child.vectors[g])
				} else {
					d = bitvec.Hamming(vector, child.centroids[g])
				}
				if d < bestDist {
					bestDist = d
					bestChild = childOff
				}
			}
		}
		if bestChild == noChild {
			// Degenerate: the expanded beam found nothing (only possible
			// if a child has zero entries, which insert/split never
			// produce). Fall back to the single closest top-ply child.
			bestChild = n.children[top[0]]
		}
		off = bestChild
	}
	return off
}

func childCentroids(n *node) []bitvec.BitVector {
	if n.kind == kindLeaf {
		return n.vectors
	}
	return n.centroids
}

// closestIndices returns the indices of the up-to-n closest vectors to
// query, ascending by distance.
func closestIndices(query bitvec.BitVector, vectors []bitvec.BitVector, n int) []int {
	type cand struct {
		idx  int
		dist uint16
	}
	cands := make([]cand, len(vectors))
	for i, v := range vectors {
		cands[i] = cand{idx: i, dist: bitvec.Hamming(query, v)}
	}
	sort.Slice(cands, func(a, b int) bool { return cands[a].dist < cands[b].dist })
	if n > len(cands) {
		n = len(cands)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = cands[i].idx
	}
	return out
}

// splitOverflowing splits the overfull node at off via balanced k-modes
// and propagates the new sibling into the parent, cascading upward and
// growing a new root if the split reaches the top.
func (t *Tree) splitOverflowing(off int) {
	n := t.nodes[off]
	clusters := t.balancedKModes(childCentroids(n))

	right := t.extractCluster(n, clusters[1])
	t.keepCluster(n, clusters[0])
	checkInvariant(n)
	checkInvariant(right)
	rightOff := t.append(right)

	t.attachSibling(off, rightOff)
}

func (t *Tree) extractCluster(n *node, indices []int) *node {
	if n.kind == kindLeaf {
		out := newLeaf()
		for _, i := range indices {
			out.vectors = append(out.vectors, n.vectors[i])
			out.ids = append(out.ids, n.ids[i])
			out.vectorIndices = append(out.vectorIndices, n.vectorIndices[i])
		}
		return out
	}
	out := newInternal()
	for _, i := range indices {
		out.centroids = append(out.centroids, n.centroids[i])
		out.children = append(out.children, n.children[i])
	}
	return out
}

func (t *Tree) keepCluster(n *node, indices []int) {
	kept := t.extractCluster(n, indices)
	n.vectors, n.ids, n.vectorIndices = kept.vectors, kept.ids, kept.vectorIndices
	n.centroids, n.children = kept.centroids, kept.children
}

// attachSibling inserts rightOff as a new sibling of leftOff in their
// shared parent (creating a new root if leftOff was the root), splitting
// the parent in turn if it overflows.
func (t *Tree) attachSibling(leftOff, rightOff int) {
	parent := t.findParent(leftOff)
	if parent == noChild {
		newRoot := newInternal()
		newRoot.centroids = []bitvec.BitVector{t.nodes[leftOff].centroid(), t.nodes[rightOff].centroid()}
		newRoot.children = []int{leftOff, rightOff}
		t.root = t.append(newRoot)
		return
	}

	p := t.nodes[parent]
	for i, c := range p.children {
		if c == leftOff {
			p.centroids[i] = t.nodes[leftOff].centroid()
			break
		}
	}
	p.centroids = append(p.centroids, t.nodes[rightOff].centroid())
	p.children = append(p.children, rightOff)
	checkInvariant(p)

	if p.size() > t.fanout {
		t.splitOverflowing(parent)
	}
}

func (t *Tree) findParent(off int) int {
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

// Result is a single search hit.
type Result struct {
	ID          uuid.UUID
	VectorIndex uint64
	Distance    uint16
}

// Search returns the approximate topK nearest neighbors of vector. It
// beam-searches down from the root with alpha = max(1, ALPHA>>depth),
// fanning subtree exploration out over goroutines, then merges every
// explored subtree's local top-k into one global top-k via a bounded
// max-heap — so a true nearest neighbor surfaced by a less-promising
// branch is never lost to an earlier branch's local truncation.
func (t *Tree) Search(ctx context.Context, vector bitvec.BitVector, topK int) ([]Result, error) {
	heapResults := newTopKHeap(topK)
	var mu sync.Mutex
	if err := t.traverse(ctx, vector, t.root, topK, 0, heapResults, &mu); err != nil {
		return nil, err
	}

	sorted := heapResults.Sorted()
	out := make([]Result, len(sorted))
	for i, s := range sorted {
		out[i] = Result{ID: s.id, VectorIndex: s.vectorIndex, Distance: s.distance}
	}
	return out, nil
}

func (t *Tree) traverse(ctx context.Context, vector bitvec.BitVector, off int, k, depth int, acc *topKHeap, mu *sync.Mutex) error {
	n := t.nodes[off]
	if n.kind == kindLeaf {
		local := newTopKHeap(k)
		for i, v := range n.vectors {
			local.Offer(scored{distance: bitvec.Hamming(vector, v), id: n.ids[i], vectorIndex: n.vectorIndices[i]})
		}
		mu.Lock()
		for _, s := range local.Sorted() {
			acc.Offer(s)
		}
		mu.Unlock()
		return nil
	}

	alpha := t.searchAlpha >> uint(depth)
	if alpha < 1 {
		alpha = 1
	}
	top := closestIndices(vector, n.centroids, alpha)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelism())
	for _, idx := range top {
		childOff := n.children[idx]
		g.Go(func() error {
			return t.traverse(gctx, vector, childOff, k, depth+1, acc, mu)
		})
	}
	return g.Wait()
}

func maxParallelism() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}

// Calibrate rebuilds the tree's internal structure from scratch while
// keeping every leaf's contents: it collects every leaf via DFS, re-roots
// them under a single fresh internal node, then recursively splits any
// node left with more than fanout children until the whole tree is
// balanced again. A long run of one-at-a-time Insert calls tends to leave
// the tree lopsided (early splits freeze in centroids that later inserts
// don't match as well); Calibrate re-clusters without touching vector
// payloads or ids.
func (t *Tree) Calibrate() error {
	if t.count == 0 {
		t.nodes = nil
		t.root = t.append(newLeaf())
		return nil
	}

	var leaves []*node
	if err := t.collectLeaves(t.root, &leaves); err != nil {
		return err
	}

	t.nodes = nil
	offsets := make([]int, len(leaves))
	centroids := make([]bitvec.BitVector, len(leaves))
	for i, l := range leaves {
		offsets[i] = t.append(l)
		centroids[i] = l.centroid()
	}

	root, err := t.buildBalanced(offsets, centroids)
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

// buildBalanced recursively groups children (already-appended node
// offsets, paired with their own centroids) into fanout-sized internal
// nodes top-down: a group that already fits becomes one internal node
// directly, an oversized group is bisected by k-modes and each half
// built the same way, joined under a fresh parent. Unlike the
// incremental insert path, this never needs to locate an existing
// parent — each recursive call owns and returns a self-contained
// subtree, which is exactly what makes it safe to use for a full
// structural rebuild.
func (t *Tree) buildBalanced(offsets []int, centroids []bitvec.BitVector) (off int, err error) {
	if len(offsets) == 1 {
		return offsets[0], nil
	}
	if len(offsets) <= t.fanout {
		n := newInternal()
		n.children = append([]int{}, offsets...)
		n.centroids = append([]bitvec.BitVector{}, centroids...)
		checkInvariant(n)
		return t.append(n), nil
	}

	defer func() {
		if r := recover(); r != nil {
			off, err = noChild, vtxerr.New(vtxerr.Corruption, fmt.Sprintf("anntree: invariant violation during calibrate: %v", r))
		}
	}()

	clusters := t.balancedKModes(centroids)
	leftOffsets, leftCentroids := subsetByIndices(offsets, centroids, clusters[0])
	rightOffsets, rightCentroids := subsetByIndices(offsets, centroids, clusters[1])

	leftOff, err := t.buildBalanced(leftOffsets, leftCentroids)
	if err != nil {
		return noChild, err
	}
	rightOff, err := t.buildBalanced(rightOffsets, rightCentroids)
	if err != nil {
		return noChild, err
	}

	root := newInternal()
	root.children = []int{leftOff, rightOff}
	root.centroids = []bitvec.BitVector{t.nodes[leftOff].centroid(), t.nodes[rightOff].centroid()}
	return t.append(root), nil
}

func subsetByIndices(offsets []int, centroids []bitvec.BitVector, indices []int) ([]int, []bitvec.BitVector) {
	outOffsets := make([]int, len(indices))
	outCentroids := make([]bitvec.BitVector, len(indices))
	for i, idx := range indices {
		outOffsets[i] = offsets[idx]
		outCentroids[i] = centroids[idx]
	}
	return outOffsets, outCentroids
}

func (t *Tree) collectLeaves(off int, out *[]*node) error {
	n := t.nodes[off]
	if n == nil {
		return vtxerr.New(vtxerr.Corruption, "anntree: nil node during leaf collection")
	}
	if n.kind == kindLeaf {
		*out = append(*out, n)
		return nil
	}
	if len(n.children) != len(n.centroids) {
		return vtxerr.New(vtxerr.Corruption, "anntree: internal node child/centroid count mismatch")
	}
	for _, c := range n.children {
		if err := t.collectLeaves(c, out); err != nil {
			return err
		}
	}
	return nil
}

// BulkLoad replaces the tree's contents with vectors/ids/vectorIndices,
// packed sequentially into fanout-sized leaves (no clustering — this is
// the fast path for loading a large, already-collected batch), then
// calls Calibrate to re-cluster the result into a balanced tree.
func (t *Tree) BulkLoad(vectors []bitvec.BitVector, ids []uuid.UUID, vectorIndices []uint64) error {
	if len(vectors) != len(ids) || len(vectors) != len(vectorIndices) {
		return vtxerr.New(vtxerr.LengthMismatch, "anntree: bulk_load slice length mismatch")
	}

	t.nodes = nil
	t.count = len(vectors)
	if len(vectors) == 0 {
		t.root = t.append(newLeaf())
		return nil
	}

	var leafOffsets []int
	cur := newLeaf()
	for i := range vectors {
		if cur.size() >= t.fanout {
			leafOffsets = append(leafOffsets, t.append(cur))
			cur = newLeaf()
		}
		cur.vectors = append(cur.vectors, vectors[i])
		cur.ids = append(cur.ids, ids[i])
		cur.vectorIndices = append(cur.vectorIndices, vectorIndices[i])
	}
	leafOffsets = append(leafOffsets, t.append(cur))

	root := newInternal()
	for _, off := range leafOffsets {
		root.children = append(root.children, off)
		root.centroids = append(root.centroids, t.nodes[off].centroid())
	}
	t.root = t.append(root)

	return t.Calibrate()
}

// Stats summarizes the tree's shape for diagnostics.
type Stats struct {
	LeafCount     int
	InternalCount int
	MaxDepth      int
	VectorCount   int
}

// Stats walks the tree and reports its shape.
func (t *Tree) Stats() Stats {
	s := Stats{VectorCount: t.count}
	t.walkStats(t.root, 0, &s)
	return s
}

func (t *Tree) walkStats(off, depth int, s *Stats) {
	n := t.nodes[off]
	if depth > s.MaxDepth {
		s.MaxDepth = depth
	}
	if n.kind == kindLeaf {
		s.LeafCount++
		return
	}
	s.InternalCount++
	for _, c := range n.children {
		t.walkStats(c, depth+1, s)
	}
}

// ToBytes serializes the tree to the flat node-image wire format:
// [fanout:u64][beam_width:u64][search_alpha:u64][root_offset:i64]
// [node_count:u64] then, per node in array order, [node_len:u64][node_bytes].
func (t *Tree) ToBytes() []byte {
	var header [40]byte
	binary.LittleEndian.PutUint64(header[0:8], uint64(t.fanout))
	binary.LittleEndian.PutUint64(header[8:16], uint64(t.beamWidth))
	binary.LittleEndian.PutUint64(header[16:24], uint64(t.searchAlpha))
	binary.LittleEndian.PutUint64(header[24:32], uint64(int64(t.root)))
	binary.LittleEndian.PutUint64(header[32:40], uint64(len(t.nodes)))

	buf := append([]byte{}, header[:]...)
	for _, n := range t.nodes {
		body := encodeNode(n)
		var lenBuf [8]byte
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(body)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, body...)
	}
	return buf
}

func encodeNode(n *node) []byte {
	buf := []byte{byte(n.kind)}
	var scratch [8]byte
	switch n.kind {
	case kindLeaf:
		binary.LittleEndian.PutUint64(scratch[:], uint64(len(n.vectors)))
		buf = append(buf, scratch[:]...)
		for i, v := range n.vectors {
			binary.LittleEndian.PutUint64(scratch[:], uint64(len(v)))
			buf = append(buf, scratch[:]...)
			buf = append(buf, v...)
			idBytes, _ := n.ids[i].MarshalBinary()
			buf = append(buf, idBytes...)
			binary.LittleEndian.PutUint64(scratch[:], n.vectorIndices[i])
			buf = append(buf, scratch[:]...)
		}
	case kindInternal:
		binary.LittleEndian.PutUint64(scratch[:], uint64(len(n.children)))
		buf = append(buf, scratch[:]...)
		for i, c := range n.children {
			cv := n.centroids[i]
			binary.LittleEndian.PutUint64(scratch[:], uint64(len(cv)))
			buf = append(buf, scratch[:]...)
			buf = append(buf, cv...)
			binary.LittleEndian.PutUint64(scratch[:], uint64(int64(c)))
			buf = append(buf, scratch[:]...)
		}
	}
	return buf
}

// FromBytes decodes a tree image produced by ToBytes.
func FromBytes(data []byte) (*Tree, error) {
	if len(data) < 40 {
		return nil, vtxerr.New(vtxerr.Corruption, "anntree: image too small for header")
	}
	t := &Tree{
		fanout:         int(binary.LittleEndian.Uint64(data[0:8])),
		beamWidth:      int(binary.LittleEndian.Uint64(data[8:16])),
		searchAlpha:    int(binary.LittleEndian.Uint64(data[16:24])),
		root:           int(int64(binary.LittleEndian.Uint64(data[24:32]))),
		kModesMaxIters: DefaultKModesMaxIters,
		balanceEpsilon: DefaultBalanceEpsilon,
	}
	nodeCount := binary.LittleEndian.Uint64(data[32:40])

	off := 40
	for i := uint64(0); i < nodeCount; i++ {
		if len(data)-off < 8 {
			return nil, vtxerr.New(vtxerr.Corruption, "anntree: truncated node length")
		}
		nodeLen := binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
		if uint64(len(data)-off) < nodeLen {
			return nil, vtxerr.New(vtxerr.Corruption, "anntree: truncated node body")
		}
		n, err := decodeNode(data[off : off+int(nodeLen)])
		if err != nil {
			return nil, err
		}
		t.nodes = append(t.nodes, n)
		off += int(nodeLen)
	}

	count := 0
	for _, n := range t.nodes {
		if n.kind == kindLeaf {
			count += len(n.vectors)
		}
	}
	t.count = count
	return t, nil
}

func decodeNode(data []byte) (*node, error) {
	if len(data) < 1+8 {
		return nil, vtxerr.New(vtxerr.Corruption, "anntree: node blob too small")
	}
	kind := nodeKind(data[0])
	off := 1
	count := binary.LittleEndian.Uint64(data[off : off+8])
	off += 8

	n := &node{kind: kind}
	switch kind {
	case kindLeaf:
		for i := uint64(0); i < count; i++ {
			if len(data)-off < 8 {
				return nil, vtxerr.New(vtxerr.Corruption, "anntree: truncated vector length")
			}
			vLen := binary.LittleEndian.Uint64(data[off : off+8])
			off += 8
			if uint64(len(data)-off) < vLen+16+8 {
				return nil, vtxerr.New(vtxerr.Corruption, "anntree: truncated leaf entry")
			}
			v := make(bitvec.BitVector, vLen)
			copy(v, data[off:off+int(vLen)])
			off += int(vLen)

			var id uuid.UUID
			if err := id.UnmarshalBinary(data[off : off+16]); err != nil {
				return nil, vtxerr.Wrap(vtxerr.Corruption, err)
			}
			off += 16

			vecIdx := binary.LittleEndian.Uint64(data[off : off+8])
			off += 8

			n.vectors = append(n.vectors, v)
			n.ids = append(n.ids, id)
			n.vectorIndices = append(n.vectorIndices, vecIdx)
		}
	case kindInternal:
		for i := uint64(0); i < count; i++ {
			if len(data)-off < 8 {
				return nil, vtxerr.New(vtxerr.Corruption, "anntree: truncated centroid length")
			}
			vLen := binary.LittleEndian.Uint64(data[off : off+8])
			off += 8
			if uint64(len(data)-off) < vLen+8 {
				return nil, vtxerr.New(vtxerr.Corruption, "anntree: truncated internal entry")
			}
			v := make(bitvec.BitVector, vLen)
			copy(v, data[off:off+int(vLen)])
			off += int(vLen)

			child := int(int64(binary.LittleEndian.Uint64(data[off : off+8])))
			off += 8

			n.centroids = append(n.centroids, v)
			n.children = append(n.children, child)
		}
	default:
		return nil, vtxerr.New(vtxerr.Corruption, "anntree: unknown node kind")
	}
	return n, nil
}
