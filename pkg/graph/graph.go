// Package graph implements ancestry queries over a revision DAG: lowest
// common ancestor discovery, criss-cross detection, merge ordering and
// dominance checks. It is the merge engine's view of history; storage of
// the graph itself lives behind the ParentProvider interface.
package graph

import (
	"container/heap"
	"errors"
	"fmt"
	"sort"

	"github.com/breezy-team/gomerge/pkg/object"
)

// ErrUnrelatedBranches reports that two revisions share no common
// ancestor, so no merge base can be computed automatically.
var ErrUnrelatedBranches = errors.New("branches have no common ancestor")

// ParentProvider supplies the parent list of a revision. The first parent
// is the left-hand (mainline) parent.
type ParentProvider interface {
	Parents(rev object.RevisionID) ([]object.RevisionID, error)
}

// MapParents is a ParentProvider backed by an in-memory parent map.
type MapParents map[object.RevisionID][]object.RevisionID

// Parents implements ParentProvider. Unknown revisions have no parents.
func (m MapParents) Parents(rev object.RevisionID) ([]object.RevisionID, error) {
	return m[rev], nil
}

const maxAncestrySteps = 1_000_000

// Graph answers ancestry queries, memoizing generation numbers and
// traversed parent lists across calls.
type Graph struct {
	source ParentProvider

	parents     map[object.RevisionID][]object.RevisionID
	generations map[object.RevisionID]uint64
}

// New builds a Graph over the given provider.
func New(source ParentProvider) *Graph {
	return &Graph{
		source:      source,
		parents:     make(map[object.RevisionID][]object.RevisionID),
		generations: make(map[object.RevisionID]uint64),
	}
}

func (g *Graph) parentsOf(rev object.RevisionID) ([]object.RevisionID, error) {
	if ps, ok := g.parents[rev]; ok {
		return ps, nil
	}
	ps, err := g.source.Parents(rev)
	if err != nil {
		return nil, fmt.Errorf("graph: parents of %s: %w", rev, err)
	}
	g.parents[rev] = ps
	return ps, nil
}

// generation returns the generation number of rev: 1 + the maximum
// generation of its parents, with parentless revisions at generation 1.
// Computed with an explicit stack so deep histories cannot overflow.
func (g *Graph) generation(rev object.RevisionID) (uint64, error) {
	if rev == object.NullRevision || rev == "" {
		return 0, nil
	}
	if gen, ok := g.generations[rev]; ok {
		return gen, nil
	}

	stack := []object.RevisionID{rev}
	inStack := map[object.RevisionID]bool{rev: true}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		if _, done := g.generations[cur]; done {
			stack = stack[:len(stack)-1]
			delete(inStack, cur)
			continue
		}
		ps, err := g.parentsOf(cur)
		if err != nil {
			return 0, err
		}
		ready := true
		var maxParent uint64
		for _, p := range ps {
			if p == object.NullRevision || p == "" {
				continue
			}
			pg, ok := g.generations[p]
			if !ok {
				if inStack[p] {
					return 0, fmt.Errorf("graph: cycle detected at %s", p)
				}
				stack = append(stack, p)
				inStack[p] = true
				ready = false
				continue
			}
			if pg > maxParent {
				maxParent = pg
			}
		}
		if ready {
			g.generations[cur] = maxParent + 1
			stack = stack[:len(stack)-1]
			delete(inStack, cur)
		}
	}
	return g.generations[rev], nil
}

// IsAncestor reports whether ancestor is reachable from descendant
// (inclusive: a revision is its own ancestor). Generation numbers prune
// the search the same way the merge-base traversal does.
func (g *Graph) IsAncestor(ancestor, descendant object.RevisionID) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	ancGen, err := g.generation(ancestor)
	if err != nil {
		return false, err
	}
	descGen, err := g.generation(descendant)
	if err != nil {
		return false, err
	}
	if ancGen > descGen {
		return false, nil
	}

	visited := map[object.RevisionID]struct{}{descendant: {}}
	queue := []object.RevisionID{descendant}
	steps := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if steps++; steps > maxAncestrySteps {
			return false, fmt.Errorf("graph: ancestry traversal exceeded %d steps", maxAncestrySteps)
		}
		if cur == ancestor {
			return true, nil
		}
		curGen, err := g.generation(cur)
		if err != nil {
			return false, err
		}
		if curGen <= ancGen {
			continue
		}
		ps, err := g.parentsOf(cur)
		if err != nil {
			return false, err
		}
		for _, p := range ps {
			if p == object.NullRevision || p == "" {
				continue
			}
			if _, seen := visited[p]; seen {
				continue
			}
			visited[p] = struct{}{}
			queue = append(queue, p)
		}
	}
	return false, nil
}

// Ancestry returns the full ancestor set of rev, including rev itself.
func (g *Graph) Ancestry(rev object.RevisionID) (map[object.RevisionID]struct{}, error) {
	out := make(map[object.RevisionID]struct{})
	if rev == object.NullRevision || rev == "" {
		return out, nil
	}
	queue := []object.RevisionID{rev}
	out[rev] = struct{}{}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		ps, err := g.parentsOf(cur)
		if err != nil {
			return nil, err
		}
		for _, p := range ps {
			if p == object.NullRevision || p == "" {
				continue
			}
			if _, seen := out[p]; seen {
				continue
			}
			out[p] = struct{}{}
			queue = append(queue, p)
		}
	}
	return out, nil
}

// Heads filters keys down to those not an ancestor of another key: the
// dominance frontier. A single returned key dominates all the others.
func (g *Graph) Heads(keys []object.RevisionID) ([]object.RevisionID, error) {
	var heads []object.RevisionID
	for i, a := range keys {
		dominated := false
		for j, b := range keys {
			if i == j || a == b {
				continue
			}
			isAnc, err := g.IsAncestor(a, b)
			if err != nil {
				return nil, err
			}
			if isAnc {
				dominated = true
				break
			}
		}
		if !dominated {
			heads = append(heads, a)
		}
	}
	sort.Sort(object.RevisionKey(heads))
	return heads, nil
}

// Marks carried by the FindLCA frontier walk.
const (
	markSideA uint8 = 1 << iota
	markSideB
	markStale // dominated by a known common ancestor
)

// FindLCA returns the lowest common ancestors of a and b: all common
// ancestors not dominated by another common ancestor. An empty result
// means the revisions are unrelated; more than one element means the
// history criss-crosses.
//
// Both ancestries descend together through a generation-ordered max
// heap. Because parents always sit at strictly lower generations, a
// revision's side marks are complete by the time it reaches the top of
// the heap, so common ancestors are recognized on the spot and their
// ancestries marked stale instead of being walked to the root.
func (g *Graph) FindLCA(a, b object.RevisionID) ([]object.RevisionID, error) {
	if a == object.NullRevision || a == "" || b == object.NullRevision || b == "" {
		return nil, nil
	}
	if a == b {
		return []object.RevisionID{a}, nil
	}

	marks := make(map[object.RevisionID]uint8)
	var frontier frontierMaxHeap
	push := func(rev object.RevisionID, mark uint8) error {
		old := marks[rev]
		if old|mark == old {
			return nil
		}
		marks[rev] = old | mark
		if old == 0 {
			gen, err := g.generation(rev)
			if err != nil {
				return err
			}
			heap.Push(&frontier, frontierItem{rev: rev, generation: gen})
		}
		return nil
	}
	if err := push(a, markSideA); err != nil {
		return nil, err
	}
	if err := push(b, markSideB); err != nil {
		return nil, err
	}

	var candidates []object.RevisionID
	steps := 0
	for frontier.Len() > 0 {
		// Once every queued revision is stale, nothing below can still
		// be a head.
		interesting := false
		for _, it := range frontier {
			if marks[it.rev]&markStale == 0 {
				interesting = true
				break
			}
		}
		if !interesting {
			break
		}

		item := heap.Pop(&frontier).(frontierItem)
		if steps++; steps > maxAncestrySteps {
			return nil, fmt.Errorf("graph: ancestry traversal exceeded %d steps", maxAncestrySteps)
		}

		mark := marks[item.rev]
		if mark&markStale == 0 && mark&(markSideA|markSideB) == markSideA|markSideB {
			candidates = append(candidates, item.rev)
			mark |= markStale
			marks[item.rev] = mark
		}

		ps, err := g.parentsOf(item.rev)
		if err != nil {
			return nil, err
		}
		for _, p := range ps {
			if p == object.NullRevision || p == "" {
				continue
			}
			if err := push(p, mark); err != nil {
				return nil, err
			}
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}
	// Candidates found through independent paths can still dominate one
	// another; the dominance filter settles the final head set.
	return g.Heads(candidates)
}

// FindUniqueLCA collapses the LCA set of a and b to a single base by
// recursively taking LCAs of the LCA set itself. When the set refuses to
// collapse (it cycles or empties out), NullRevision is returned; callers
// treat that as "no usable unique base" and fall back to LCA ordering.
// Unrelated revisions are ErrUnrelatedBranches.
func (g *Graph) FindUniqueLCA(a, b object.RevisionID) (object.RevisionID, error) {
	lca, err := g.FindLCA(a, b)
	if err != nil {
		return "", err
	}
	if len(lca) == 0 {
		return "", ErrUnrelatedBranches
	}
	for rounds := 0; ; rounds++ {
		if len(lca) == 1 {
			return lca[0], nil
		}
		if rounds > len(g.parents)+len(lca) {
			return object.NullRevision, nil
		}
		// Fold the set pairwise through FindLCA.
		next := []object.RevisionID{lca[0]}
		for _, rev := range lca[1:] {
			var merged []object.RevisionID
			for _, cur := range next {
				pair, err := g.FindLCA(cur, rev)
				if err != nil {
					return "", err
				}
				merged = append(merged, pair...)
			}
			if len(merged) == 0 {
				return object.NullRevision, nil
			}
			next, err = g.Heads(dedup(merged))
			if err != nil {
				return "", err
			}
		}
		if sameRevisionSet(lca, next) {
			return object.NullRevision, nil
		}
		lca = next
	}
}

// FindMergeOrder orders the revisions of lcas by the sequence in which
// they were merged into tip's left-hand ancestry: the revision that
// reached the mainline first comes first. Ties and unreachable members
// fall back to revision-id order.
func (g *Graph) FindMergeOrder(tip object.RevisionID, lcas []object.RevisionID) ([]object.RevisionID, error) {
	// Mainline from tip back through first parents.
	var mainline []object.RevisionID
	for cur := tip; cur != "" && cur != object.NullRevision; {
		mainline = append(mainline, cur)
		ps, err := g.parentsOf(cur)
		if err != nil {
			return nil, err
		}
		if len(ps) == 0 {
			break
		}
		cur = ps[0]
	}

	// entry[i] is the deepest mainline index whose ancestry still contains
	// the LCA; a deeper entry point means it was merged earlier.
	type ordered struct {
		rev   object.RevisionID
		entry int
	}
	items := make([]ordered, 0, len(lcas))
	for _, l := range lcas {
		entry := -1
		for i := len(mainline) - 1; i >= 0; i-- {
			isAnc, err := g.IsAncestor(l, mainline[i])
			if err != nil {
				return nil, err
			}
			if isAnc {
				entry = i
				break
			}
		}
		items = append(items, ordered{rev: l, entry: entry})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].entry != items[j].entry {
			return items[i].entry > items[j].entry
		}
		return items[i].rev < items[j].rev
	})
	out := make([]object.RevisionID, len(items))
	for i, it := range items {
		out[i] = it.rev
	}
	return out, nil
}

func dedup(revs []object.RevisionID) []object.RevisionID {
	seen := make(map[object.RevisionID]struct{}, len(revs))
	out := revs[:0]
	for _, r := range revs {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func sameRevisionSet(a, b []object.RevisionID) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[object.RevisionID]struct{}, len(a))
	for _, r := range a {
		set[r] = struct{}{}
	}
	for _, r := range b {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
