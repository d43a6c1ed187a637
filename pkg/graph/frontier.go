package graph

import "github.com/breezy-team/gomerge/pkg/object"

type frontierItem struct {
	rev        object.RevisionID
	generation uint64
}

// frontierMaxHeap orders a traversal frontier deepest-generation first,
// with revision id as the tie-break so walks are deterministic.
type frontierMaxHeap []frontierItem

func (h frontierMaxHeap) Len() int { return len(h) }

func (h frontierMaxHeap) Less(i, j int) bool {
	if h[i].generation == h[j].generation {
		return h[i].rev < h[j].rev
	}
	return h[i].generation > h[j].generation
}

func (h frontierMaxHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *frontierMaxHeap) Push(x any) {
	*h = append(*h, x.(frontierItem))
}

func (h *frontierMaxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
