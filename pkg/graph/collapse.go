package graph

import "github.com/breezy-team/gomerge/pkg/object"

// SubgraphBetween extracts the region of the graph reachable from tips
// down to stop (inclusive). Parent links pointing outside the region are
// dropped, so the result is self-contained. stop may be NullRevision to
// take the full ancestry of the tips.
func (g *Graph) SubgraphBetween(tips []object.RevisionID, stop object.RevisionID) (MapParents, error) {
	var stopAnc map[object.RevisionID]struct{}
	if stop != "" && stop != object.NullRevision {
		var err error
		stopAnc, err = g.Ancestry(stop)
		if err != nil {
			return nil, err
		}
		// stop itself stays in the region as the floor.
		delete(stopAnc, stop)
	}

	region := make(map[object.RevisionID]struct{})
	queue := append([]object.RevisionID(nil), tips...)
	for _, t := range tips {
		region[t] = struct{}{}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == stop {
			continue
		}
		ps, err := g.parentsOf(cur)
		if err != nil {
			return nil, err
		}
		for _, p := range ps {
			if p == "" || p == object.NullRevision {
				continue
			}
			if stopAnc != nil {
				if _, below := stopAnc[p]; below {
					continue
				}
			}
			if _, seen := region[p]; seen {
				continue
			}
			region[p] = struct{}{}
			queue = append(queue, p)
		}
	}

	out := make(MapParents, len(region))
	for rev := range region {
		ps, err := g.parentsOf(rev)
		if err != nil {
			return nil, err
		}
		var kept []object.RevisionID
		for _, p := range ps {
			if _, ok := region[p]; ok {
				kept = append(kept, p)
			}
		}
		out[rev] = kept
	}
	return out, nil
}

// CollapseLinearRegions rewrites a parent map so that runs of nodes with
// exactly one parent and exactly one child are replaced by a direct
// child-to-parent link. Branch points, merge points and the endpoints in
// interesting survive; the interior of every linear chain disappears.
// This keeps weave construction proportional to the graph's interesting
// structure rather than its raw length.
func CollapseLinearRegions(parents MapParents, interesting map[object.RevisionID]struct{}) MapParents {
	children := make(map[object.RevisionID][]object.RevisionID, len(parents))
	for rev := range parents {
		children[rev] = nil
	}
	for rev, ps := range parents {
		for _, p := range ps {
			children[p] = append(children[p], rev)
		}
	}

	removable := func(rev object.RevisionID) bool {
		if _, keep := interesting[rev]; keep {
			return false
		}
		return len(parents[rev]) == 1 && len(children[rev]) == 1
	}

	out := make(MapParents, len(parents))
	for rev, ps := range parents {
		if removable(rev) {
			continue
		}
		kept := make([]object.RevisionID, 0, len(ps))
		for _, p := range ps {
			// Skip down linear chains to the first surviving ancestor.
			for removable(p) {
				p = parents[p][0]
			}
			kept = append(kept, p)
		}
		out[rev] = kept
	}
	return out
}
