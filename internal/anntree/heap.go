package anntree

import (
	"container/heap"

	"github.com/google/uuid"
)

// scored is a single search candidate: a hamming distance to a query
// paired with its id and dense-store vector index. Ties break toward the
// smaller id so results are deterministic across runs regardless of the
// order sibling subtrees happen to finish scanning in.
type scored struct {
	distance    uint16
	id          uuid.UUID
	vectorIndex uint64
}

func less(a, b scored) bool {
	if a.distance != b.distance {
		return a.distance < b.distance
	}
	return uuidLess(a.id, b.id)
}

func uuidLess(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// topKHeap is a bounded max-heap: it keeps the best (smallest-distance)
// k candidates seen across every subtree a search explores, evicting its
// current worst member whenever a better candidate arrives. This is the
// corrected merge step — summing each subtree's own locally-truncated
// top-k (as the per-leaf beam search produces) and then re-truncating
// globally, rather than concatenating and hoping the true top-k survived
// each local cut.
type topKHeap struct {
	k     int
	items []scored
}

func newTopKHeap(k int) *topKHeap {
	return &topKHeap{k: k}
}

func (h *topKHeap) Len() int { return len(h.items) }
func (h *topKHeap) Less(i, j int) bool {
	// Max-heap on "worseness": the root is the current worst kept item.
	return less(h.items[j], h.items[i])
}
func (h *topKHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *topKHeap) Push(x any)    { h.items = append(h.items, x.(scored)) }
func (h *topKHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// Offer considers a candidate for inclusion, growing the heap while
// under capacity and otherwise evicting the current worst member if c is
// better.
func (h *topKHeap) Offer(c scored) {
	if h.Len() < h.k {
		heap.Push(h, c)
		return
	}
	if h.Len() > 0 && less(c, h.items[0]) {
		heap.Pop(h)
		heap.Push(h, c)
	}
}

// Sorted drains the heap into ascending-distance order.
func (h *topKHeap) Sorted() []scored {
	out := make([]scored, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(scored)
	}
	return out
}
