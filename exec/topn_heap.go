package exec

import (
	"container/heap"

	"github.com/lumen-db/lumen"
)

// topNEntry is one candidate row held by a topNHeap: key is its evaluated
// OrderKeys tuple, values is the full output row, seq is its arrival order
// among every row offered (kept or not), used to break ties the same way
// sort.SliceStable would.
type topNEntry struct {
	key    []lumen.Value
	values []lumen.Value
	seq    int
}

// topNHeap keeps at most cap rows, always the cap best seen so far by
// less, discarding the current worst survivor the instant a better
// candidate arrives. It is a max-heap ordered by "worst first" (the
// element ranked greatest sits at the root), so eviction is an O(log n) pop
// rather than a linear scan. Equal keys rank by arrival order (seq) so a
// tied group drains in the same order spec.md §8 Property 6 requires of
// orderOp's sort.SliceStable, keeping topn(offset,count,keys,x) equal to
// limit(offset,count,order(keys,x)) (Property 7) even for non-distinct keys.
type topNHeap struct {
	entries []topNEntry
	cap     int
	less    func(a, b []lumen.Value) bool
	next    int
}

func newTopNHeap(cap int, less func(a, b []lumen.Value) bool) *topNHeap {
	return &topNHeap{cap: cap, less: less}
}

// rank reports whether a precedes b: a strictly better key wins outright; a
// tied key falls back to arrival order, so earlier rows rank ahead of later
// ones exactly as a stable sort would.
func (h *topNHeap) rank(a, b topNEntry) bool {
	if h.less(a.key, b.key) {
		return true
	}
	if h.less(b.key, a.key) {
		return false
	}
	return a.seq < b.seq
}

// heap.Interface, in terms of the *reverse* of rank: the root (index 0) is
// always the current worst-ranked surviving row, so a full heap can evict
// it in O(log n) when a better candidate arrives.
func (h *topNHeap) Len() int { return len(h.entries) }
func (h *topNHeap) Less(i, j int) bool {
	return h.rank(h.entries[j], h.entries[i])
}
func (h *topNHeap) Swap(i, j int) { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }
func (h *topNHeap) Push(x interface{}) {
	h.entries = append(h.entries, x.(topNEntry))
}
func (h *topNHeap) Pop() interface{} {
	old := h.entries
	n := len(old)
	e := old[n-1]
	h.entries = old[:n-1]
	return e
}

// offer considers one candidate row. If the heap isn't full yet, it's kept
// unconditionally; once full, it's kept only if it outranks the current
// worst survivor, which is then evicted.
func (h *topNHeap) offer(key, values []lumen.Value) {
	if h.cap <= 0 {
		return
	}
	entry := topNEntry{key: key, values: values, seq: h.next}
	h.next++
	if h.Len() < h.cap {
		heap.Push(h, entry)
		return
	}
	if h.rank(entry, h.entries[0]) {
		heap.Pop(h)
		heap.Push(h, entry)
	}
}

// drain empties the heap and returns its surviving entries sorted
// ascending by less (best first).
func (h *topNHeap) drain() []topNEntry {
	out := make([]topNEntry, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(topNEntry)
	}
	return out
}
