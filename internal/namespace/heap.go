package namespace

import (
	"container/heap"

	"github.com/google/uuid"

	"vectra/internal/anntree"
)

// resultHeap is a bounded max-heap over anntree.Result, keyed by distance
// with ties broken toward the smaller id. It is the same corrected-merge
// shape as the ANN tree's own top-k heap (keep every run's local top-k,
// then re-truncate globally), applied here to the brute-force filtered
// query path instead of sibling ANN subtrees.
type resultHeap struct {
	k     int
	items []anntree.Result
}

func newResultHeap(k int) *resultHeap {
	return &resultHeap{k: k}
}

func resultLess(a, b anntree.Result) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return uuidLess(a.ID, b.ID)
}

func uuidLess(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func (h *resultHeap) Len() int { return len(h.items) }
func (h *resultHeap) Less(i, j int) bool {
	return resultLess(h.items[j], h.items[i])
}
func (h *resultHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *resultHeap) Push(x any)    { h.items = append(h.items, x.(anntree.Result)) }
func (h *resultHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

func (h *resultHeap) offer(c anntree.Result) {
	if h.Len() < h.k {
		heap.Push(h, c)
		return
	}
	if h.Len() > 0 && resultLess(c, h.items[0]) {
		heap.Pop(h)
		heap.Push(h, c)
	}
}

func (h *resultHeap) sorted() []anntree.Result {
	out := make([]anntree.Result, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(anntree.Result)
	}
	return out
}
