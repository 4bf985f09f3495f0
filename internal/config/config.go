// Package config holds a namespace's fixed, declarative tuning
// parameters: vector geometry, B+-tree fan-out, and the ANN tree's
// clustering/search knobs. A Config is set once at namespace creation and
// never changes for its lifetime — VectorDim and BitVectorBytes in
// particular determine the quantized width every stored vector and the
// ANN tree's node images commit to.
package config

// Config describes the desired shape of a namespace. It is declarative:
// it defines the parameters components are built with, not how those
// components behave.
type Config struct {
	// VectorDim is the dimensionality of input float32 vectors.
	VectorDim int

	// BitVectorBytes (QVS) is the packed byte width of a quantized bit
	// vector: ceil(VectorDim/8).
	BitVectorBytes int

	// BTreeFanout is the maximum number of entries a B+-tree leaf or
	// children an internal node holds before splitting, shared by the
	// metadata index and the inverted index.
	BTreeFanout int

	// ANNFanout (K) is the ANN tree's own fan-out cap: entries per leaf,
	// or children per internal node, before it splits.
	ANNFanout int

	// BeamWidth (C) is the number of closest candidates find-entrypoint
	// expands at each level while descending to an insertion point.
	BeamWidth int

	// SearchAlpha (ALPHA) is the beam width Search starts with at the
	// root; it halves at each successive depth down to a floor of 1.
	SearchAlpha int

	// KModesMaxIters bounds the balanced k-modes reassignment loop run
	// during a node split or a full Calibrate.
	KModesMaxIters int

	// BalanceEpsilon is the largest fractional size imbalance between
	// the two clusters a k-modes split tolerates before forcibly moving
	// members from the larger cluster to the smaller one.
	BalanceEpsilon float64

	// ExcludedAttributeKeys lists attribute keys that are stored in a
	// record but never indexed into the inverted index (REDESIGN FLAG a:
	// opt-in exclusion, empty by default).
	ExcludedAttributeKeys []string
}

// DefaultConfig returns a Config for dim-dimensional vectors with the
// namespace's standard tuning constants. BitVectorBytes is derived from
// dim; callers needing a non-default fan-out or beam should adjust the
// returned Config's fields directly.
func DefaultConfig(dim int) Config {
	return Config{
		VectorDim:      dim,
		BitVectorBytes: (dim + 7) / 8,
		BTreeFanout:    defaultBTreeFanout,
		ANNFanout:      defaultANNFanout,
		BeamWidth:      defaultBeamWidth,
		SearchAlpha:    defaultSearchAlpha,
		KModesMaxIters: defaultKModesMaxIters,
		BalanceEpsilon: defaultBalanceEpsilon,
	}
}

const (
	defaultBTreeFanout    = 32
	defaultANNFanout      = 64
	defaultBeamWidth      = 8
	defaultSearchAlpha    = 16
	defaultKModesMaxIters = 20
	defaultBalanceEpsilon = 0.2
)

// IsExcluded reports whether key is in ExcludedAttributeKeys.
func (c Config) IsExcluded(key string) bool {
	for _, k := range c.ExcludedAttributeKeys {
		if k == key {
			return true
		}
	}
	return false
}
