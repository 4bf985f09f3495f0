// Package namespace wires the quantizer, dense vector store, metadata and
// inverted indices, filter evaluator, ANN tree, and snapshot codec into a
// single engine instance. It owns every mutable structure exclusively and
// is the only package that imports all of them together.
//
// Concurrency model:
//   - A namespace is single-writer, single-reader at the API boundary: a
//     RWMutex serializes access so overlapping add/query calls observe a
//     consistent view. AddVector, BatchAddVectors, and LoadState take the
//     write lock; Query and SaveState take the read lock — mirroring this
//     codebase's "Register* takes write lock, Ingest/Search take read
//     lock" convention.
//   - Within one Query, the brute-force scan over filtered candidates and
//     the ANN tree's beam descent both fan out over goroutines internally
//     and join before the call returns; callers never observe partial
//     results.
package namespace

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vectra/internal/anntree"
	"vectra/internal/bitvec"
	"vectra/internal/config"
	"vectra/internal/filter"
	"vectra/internal/invertedindex"
	"vectra/internal/kvpair"
	"vectra/internal/logging"
	"vectra/internal/metaindex"
	"vectra/internal/snapshot"
	"vectra/internal/vecstore"
	"vectra/internal/vtxerr"
)

// Namespace is the top-level engine instance owning one complete index:
// the dense vector store, the metadata and inverted B+-tree indices, the
// ANN tree, and a vector_index-ordered list of every inserted id. Records are
// never mutated after insertion; there is no delete path.
type Namespace struct {
	mu sync.RWMutex

	id     string
	cfg    config.Config
	logger *slog.Logger

	vecs     *vecstore.Store
	meta     *metaindex.Index
	inverted *invertedindex.Index
	ann      *anntree.Tree

	// ids is the vector_index-ordered id list; it is the universe a Not
	// filter enumerates and is rebuilt wholesale by LoadState.
	ids []uuid.UUID
}

// New creates an empty namespace named id, shaped by cfg.
func New(id string, cfg config.Config, logger *slog.Logger) *Namespace {
	logger = logging.Default(logger)
	ns := &Namespace{
		id:       id,
		cfg:      cfg,
		logger:   logger.With("component", string(logging.ComponentNamespace), "namespace_id", id),
		vecs:     vecstore.New(cfg.BitVectorBytes),
		meta:     metaindex.New(cfg.BTreeFanout),
		inverted: invertedindex.New(cfg.BTreeFanout),
		ann:      anntree.NewWithKModesConfig(cfg.ANNFanout, cfg.BeamWidth, cfg.SearchAlpha, cfg.KModesMaxIters, cfg.BalanceEpsilon),
	}
	ns.logger.Info("namespace created", "vector_dim", cfg.VectorDim, "bit_vector_bytes", cfg.BitVectorBytes)
	return ns
}

func (ns *Namespace) quantize(v []float32) (bitvec.BitVector, error) {
	if len(v) != ns.cfg.VectorDim {
		return nil, vtxerr.New(vtxerr.DimMismatch, "namespace: vector dimensionality does not match configured width")
	}
	return bitvec.Quantize(v, ns.cfg.BitVectorBytes, bitvec.ZeroThreshold{})
}

// AddVector quantizes v, assigns it a fresh id, and indexes it under
// metadata. On any error the namespace is left exactly as it was before
// the call: validation happens before any structure is mutated.
func (ns *Namespace) AddVector(v []float32, metadata []kvpair.KVPair) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	bv, err := ns.quantize(v)
	if err != nil {
		return err
	}

	id := uuid.New()
	vectorIndex, err := ns.vecs.Push(bv)
	if err != nil {
		return err
	}
	ns.insertRecord(uint64(vectorIndex), id, metadata)
	if err := ns.ann.Insert(bv, id, uint64(vectorIndex)); err != nil {
		return err
	}
	return nil
}

// BatchAddVectors quantizes and indexes vs and metadata pairwise. vs and
// metadata must have equal length or the call fails with LengthMismatch
// before anything is mutated; an empty batch is a no-op.
func (ns *Namespace) BatchAddVectors(vs [][]float32, metadata [][]kvpair.KVPair) error {
	if len(vs) != len(metadata) {
		return vtxerr.New(vtxerr.LengthMismatch, "namespace: batch_add_vectors requires vs and metadata of equal length")
	}
	if len(vs) == 0 {
		return nil
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	bvs := make([]bitvec.BitVector, len(vs))
	for i, v := range vs {
		bv, err := ns.quantize(v)
		if err != nil {
			return err
		}
		bvs[i] = bv
	}

	ids := make([]uuid.UUID, len(bvs))
	for i := range ids {
		ids[i] = uuid.New()
	}

	startIndices, err := ns.vecs.BatchPush(bvs)
	if err != nil {
		return err
	}

	vectorIndices := make([]uint64, len(startIndices))
	for i, vi := range startIndices {
		vectorIndices[i] = uint64(vi)
		ns.insertRecord(uint64(vi), ids[i], metadata[i])
	}

	if err := ns.ann.BatchInsert(bvs, ids, vectorIndices); err != nil {
		return err
	}

	ns.logger.Info("batch add vectors", "count", len(vs))
	return nil
}

// insertRecord writes the metadata index entry and appends to every
// non-excluded attribute's posting list. Callers hold the write lock.
func (ns *Namespace) insertRecord(vectorIndex uint64, id uuid.UUID, metadata []kvpair.KVPair) {
	ns.meta.Insert(id, kvpair.Record{ID: id, Attributes: metadata, VectorIndex: vectorIndex})
	for _, attr := range metadata {
		if ns.cfg.IsExcluded(attr.Key) {
			continue
		}
		ns.inverted.InsertAppend(attr, invertedindex.Single(vectorIndex, id))
	}
	ns.ids = append(ns.ids, id)
}

// universe returns the full (vector_index, id) posting list in ascending
// vector_index order, used by the filter evaluator to resolve a bare Not.
func (ns *Namespace) universe() invertedindex.PostingList {
	pl := invertedindex.PostingList{
		VectorIndices: make([]uint64, len(ns.ids)),
		IDs:           make([]uuid.UUID, len(ns.ids)),
	}
	for i, id := range ns.ids {
		pl.VectorIndices[i] = uint64(i)
		pl.IDs[i] = id
	}
	return pl
}

// Query quantizes v, resolves expr against the inverted index (a nil expr
// matches every record), and returns the attribute lists of the topK
// nearest hits in ascending hamming distance. k<=0 returns no hits.
//
// A nil filter runs the ANN tree's approximate beam search over the whole
// corpus — the index exists precisely so an unconstrained query need not
// scan every vector. A non-nil filter instead evaluates exactly against
// the (typically much smaller) filtered candidate set: contiguous runs of
// the dense vector store are scanned in parallel, each run keeps its own
// top-k, and a bounded max-heap merges every run's survivors into the true
// global top-k.
func (ns *Namespace) Query(v []float32, expr filter.Expr, k int) ([][]kvpair.KVPair, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	bv, err := ns.quantize(v)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return [][]kvpair.KVPair{}, nil
	}

	var hits []anntree.Result
	if expr == nil {
		hits, err = ns.ann.Search(context.Background(), bv, k)
		if err != nil {
			return nil, err
		}
	} else {
		evaluator := filter.NewEvaluator(ns.inverted, ns.universe)
		candidates, err := evaluator.Evaluate(expr)
		if err != nil {
			return nil, err
		}
		hits, err = ns.bruteForceTopK(bv, candidates, k)
		if err != nil {
			return nil, err
		}
	}

	out := make([][]kvpair.KVPair, len(hits))
	for i, h := range hits {
		rec, ok := ns.meta.Get(h.ID)
		if !ok {
			return nil, vtxerr.New(vtxerr.Corruption, "namespace: search hit has no metadata record")
		}
		out[i] = rec.Attributes
	}
	return out, nil
}

// bruteForceTopK computes exact hamming distances for every candidate,
// batching candidates into maximal contiguous vector_index runs so each
// run can be fetched as one contiguous slice and scanned in parallel, then
// merges every run's local top-k into the global top-k.
func (ns *Namespace) bruteForceTopK(query bitvec.BitVector, candidates invertedindex.PostingList, k int) ([]anntree.Result, error) {
	n := candidates.Len()
	if n == 0 {
		return nil, nil
	}

	type run struct {
		start int
		ids   []uuid.UUID
	}
	var runs []run
	runStart := 0
	for i := 1; i <= n; i++ {
		if i == n || candidates.VectorIndices[i] != candidates.VectorIndices[i-1]+1 {
			runs = append(runs, run{
				start: int(candidates.VectorIndices[runStart]),
				ids:   candidates.IDs[runStart:i],
			})
			runStart = i
		}
	}

	var mu sync.Mutex
	global := newResultHeap(k)
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(maxParallelism())
	for _, r := range runs {
		r := r
		g.Go(func() error {
			vectors, err := ns.vecs.GetContiguous(r.start, len(r.ids))
			if err != nil {
				return err
			}
			local := newResultHeap(k)
			for i, vec := range vectors {
				local.offer(anntree.Result{
					ID:          r.ids[i],
					VectorIndex: uint64(r.start + i),
					Distance:    bitvec.Hamming(query, vec),
				})
			}
			mu.Lock()
			for _, item := range local.sorted() {
				global.offer(item)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return global.sorted(), nil
}

// SaveState zstd-wraps a byte image of the namespace's four structures.
func (ns *Namespace) SaveState() ([]byte, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	data, err := snapshot.Encode(snapshot.Sections{
		VectorStore:   ns.vecs.ToBytes(),
		MetadataIndex: ns.meta.ToBytes(),
		InvertedIndex: ns.inverted.ToBytes(),
		ANNTree:       ns.ann.ToBytes(),
	})
	if err != nil {
		return nil, err
	}
	ns.logger.Info("state saved", "bytes", len(data))
	return data, nil
}

// LoadState replaces every structure from a blob produced by SaveState. On
// a decode error the namespace is left untouched.
func (ns *Namespace) LoadState(data []byte) error {
	sections, err := snapshot.Decode(data)
	if err != nil {
		return err
	}

	vecs, err := vecstore.FromBytes(sections.VectorStore, ns.cfg.BitVectorBytes)
	if err != nil {
		return err
	}
	meta, err := metaindex.FromBytes(sections.MetadataIndex)
	if err != nil {
		return err
	}
	inverted, err := invertedindex.FromBytes(sections.InvertedIndex)
	if err != nil {
		return err
	}
	ann, err := anntree.FromBytes(sections.ANNTree)
	if err != nil {
		return err
	}
	ann.SetKModesConfig(ns.cfg.KModesMaxIters, ns.cfg.BalanceEpsilon)

	ids, err := idsByVectorIndex(meta, vecs.Len())
	if err != nil {
		return err
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.vecs = vecs
	ns.meta = meta
	ns.inverted = inverted
	ns.ann = ann
	ns.ids = ids
	ns.logger.Info("state loaded", "vectors", vecs.Len())
	return nil
}

// idsByVectorIndex rebuilds the vector_index-ordered id list from a loaded
// metadata index, so a post-load Not still enumerates the right universe.
func idsByVectorIndex(meta *metaindex.Index, vectorCount int) ([]uuid.UUID, error) {
	ids, recs := meta.All()
	ordered := make([]uuid.UUID, vectorCount)
	seen := make([]bool, vectorCount)
	for i, rec := range recs {
		if rec.VectorIndex >= uint64(vectorCount) {
			return nil, vtxerr.New(vtxerr.Corruption, "namespace: record vector_index out of range of loaded vector store")
		}
		ordered[rec.VectorIndex] = ids[i]
		seen[rec.VectorIndex] = true
	}
	for _, ok := range seen {
		if !ok {
			return nil, vtxerr.New(vtxerr.Corruption, "namespace: loaded vector store has an entry with no metadata record")
		}
	}
	return ordered, nil
}

func maxParallelism() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}
