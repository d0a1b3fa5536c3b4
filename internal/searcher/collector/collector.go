// Package collector keeps the best K scored documents.
package collector

import "container/heap"

// Hit is a scored document.
type Hit struct {
	DocID uint64  `json:"doc_id"`
	Score float64 `json:"score"`
}

// better orders hits by descending score, then ascending doc id.
func better(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

// TopK is a bounded min-heap whose root is the weakest retained hit.
type TopK struct {
	limit int
	h     hitHeap
}

// New returns a collector for at most limit hits. limit must be positive.
func New(limit int) *TopK {
	return &TopK{limit: limit, h: make(hitHeap, 0, limit)}
}

// Collect offers one hit.
func (c *TopK) Collect(hit Hit) {
	if c.limit <= 0 {
		return
	}
	if c.h.Len() < c.limit {
		heap.Push(&c.h, hit)
		return
	}
	if better(hit, c.h[0]) {
		c.h[0] = hit
		heap.Fix(&c.h, 0)
	}
}

func (c *TopK) Len() int { return c.h.Len() }

// Results drains the collector, best hit first.
func (c *TopK) Results() []Hit {
	result := make([]Hit, c.h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&c.h).(Hit)
	}
	return result
}

// Merge combines independently collected lists into one top-limit list.
func Merge(lists [][]Hit, limit int) []Hit {
	c := New(limit)
	for _, hits := range lists {
		for _, hit := range hits {
			c.Collect(hit)
		}
	}
	return c.Results()
}

type hitHeap []Hit

func (h hitHeap) Len() int { return len(h) }

func (h hitHeap) Less(i, j int) bool { return better(h[j], h[i]) }

func (h hitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *hitHeap) Push(x any) {
	*h = append(*h, x.(Hit))
}

func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
