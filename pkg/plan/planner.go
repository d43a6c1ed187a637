package plan

import (
	"fmt"
	"sort"

	"github.com/breezy-team/gomerge/pkg/graph"
	"github.com/breezy-team/gomerge/pkg/object"
	"github.com/breezy-team/gomerge/pkg/store"
	"github.com/breezy-team/gomerge/pkg/textmerge"
)

// Planner computes merge plans for one file's content over its per-file
// revision graph. All texts come from the backing store; a missing text
// is store.ErrRevisionNotPresent and aborts planning.
type Planner struct {
	store *store.TextStore
	file  object.FileID
	graph *graph.Graph

	lines map[object.RevisionID][]string
}

// NewPlanner builds a planner for file over the store's per-file graph.
func NewPlanner(ts *store.TextStore, file object.FileID) *Planner {
	return &Planner{
		store: ts,
		file:  file,
		graph: graph.New(ts.FileGraph(file)),
		lines: make(map[object.RevisionID][]string),
	}
}

func (p *Planner) linesOf(rev object.RevisionID) ([]string, error) {
	if rev == object.NullRevision || rev == "" {
		return nil, nil
	}
	if cached, ok := p.lines[rev]; ok {
		return cached, nil
	}
	lines, err := p.store.Lines(p.file, rev)
	if err != nil {
		return nil, err
	}
	p.lines[rev] = lines
	return lines, nil
}

// PlanMerge produces the graph-aware plan for merging aRev and bRev.
// If one tip dominates the other no graph work happens at all: the plan
// is simply every line of the dominating tip. Otherwise the interesting
// ancestry is discovered recursively, pruned, collapsed, annotated in
// merge order, and the two tips classified line by line.
func (p *Planner) PlanMerge(aRev, bRev object.RevisionID) ([]Line, error) {
	heads, err := p.graph.Heads([]object.RevisionID{aRev, bRev})
	if err != nil {
		return nil, err
	}
	if len(heads) == 1 {
		// One tip is a descendant of the other.
		winner, tag := aRev, TagNewA
		if heads[0] == bRev {
			winner, tag = bRev, TagNewB
		}
		lines, err := p.linesOf(winner)
		if err != nil {
			return nil, err
		}
		plan := make([]Line, len(lines))
		for i, l := range lines {
			plan[i] = Line{Tag: tag, Text: l}
		}
		return plan, nil
	}

	interesting, stop, err := p.findRecursiveLCAs(aRev, bRev)
	if err != nil {
		return nil, err
	}
	ann, err := p.annotateTips(aRev, bRev, stop, interesting)
	if err != nil {
		return nil, err
	}

	ancA, err := p.graph.Ancestry(aRev)
	if err != nil {
		return nil, err
	}
	ancB, err := p.graph.Ancestry(bRev)
	if err != nil {
		return nil, err
	}

	aLines, err := p.linesOf(aRev)
	if err != nil {
		return nil, err
	}
	bLines, err := p.linesOf(bRev)
	if err != nil {
		return nil, err
	}

	classifyA := func(i int) Tag {
		if rev := ann.a[i]; rev != aRev {
			if _, ok := ancB[rev]; ok {
				return TagKilledB
			}
		}
		return TagNewA
	}
	classifyB := func(i int) Tag {
		if rev := ann.b[i]; rev != bRev {
			if _, ok := ancA[rev]; ok {
				return TagKilledA
			}
		}
		return TagNewB
	}
	return assemblePlan(aLines, bLines, classifyA, classifyB), nil
}

// PlanMergeWithBase is the annotate-merge plan against an explicit base:
// a direct three-way region walk where killed and new lines are told
// apart by whether the line's introducing revision is an ancestor of the
// opposite tip.
func (p *Planner) PlanMergeWithBase(aRev, bRev, baseRev object.RevisionID) ([]Line, error) {
	baseLines, err := p.linesOf(baseRev)
	if err != nil {
		return nil, err
	}
	aLines, err := p.linesOf(aRev)
	if err != nil {
		return nil, err
	}
	bLines, err := p.linesOf(bRev)
	if err != nil {
		return nil, err
	}

	interesting := map[object.RevisionID]struct{}{aRev: {}, bRev: {}, baseRev: {}}
	ann, err := p.annotateTips(aRev, bRev, baseRev, interesting)
	if err != nil {
		return nil, err
	}
	ancA, err := p.graph.Ancestry(aRev)
	if err != nil {
		return nil, err
	}
	ancB, err := p.graph.Ancestry(bRev)
	if err != nil {
		return nil, err
	}

	m3 := &textmerge.Merge3{Base: baseLines, A: aLines, B: bLines}
	var out []Line
	for _, r := range m3.MergeRegions() {
		switch r.Kind {
		case textmerge.RegionUnchanged:
			for _, l := range baseLines[r.ZStart:r.ZEnd] {
				out = append(out, Line{Tag: TagUnchanged, Text: l})
			}
		case textmerge.RegionA:
			out = append(out, regionPlan(
				baseLines[r.ZStart:r.ZEnd], aLines[r.AStart:r.AEnd],
				TagKilledA, TagNewA, TagUnchanged)...)
		case textmerge.RegionB:
			out = append(out, regionPlan(
				baseLines[r.ZStart:r.ZEnd], bLines[r.BStart:r.BEnd],
				TagKilledB, TagNewB, TagUnchanged)...)
		case textmerge.RegionSame:
			for _, l := range baseLines[r.ZStart:r.ZEnd] {
				out = append(out, Line{Tag: TagKilledBoth, Text: l})
			}
			for _, l := range aLines[r.AStart:r.AEnd] {
				out = append(out, Line{Tag: TagNewA, Text: l})
			}
			for _, l := range bLines[r.BStart:r.BEnd] {
				out = append(out, Line{Tag: TagNewB, Text: l})
			}
		case textmerge.RegionConflict:
			for _, l := range baseLines[r.ZStart:r.ZEnd] {
				out = append(out, Line{Tag: TagKilledBoth, Text: l})
			}
			for i := r.AStart; i < r.AEnd; i++ {
				tag := TagNewA
				if rev := ann.a[i]; rev != aRev {
					if _, ok := ancB[rev]; ok {
						tag = TagKilledB
					}
				}
				out = append(out, Line{Tag: tag, Text: aLines[i]})
			}
			for i := r.BStart; i < r.BEnd; i++ {
				tag := TagNewB
				if rev := ann.b[i]; rev != bRev {
					if _, ok := ancA[rev]; ok {
						tag = TagKilledA
					}
				}
				out = append(out, Line{Tag: tag, Text: bLines[i]})
			}
		}
	}
	return out, nil
}

// regionPlan plans a one-sided region: side lines matched to base are
// unchanged, unmatched base lines were killed, unmatched side lines are
// new.
func regionPlan(base, side []string, killedTag, newTag, matchTag Tag) []Line {
	var out []Line
	zi, si := 0, 0
	for _, blk := range textmerge.MatchingBlocks(base, side) {
		for ; zi < blk.AStart; zi++ {
			out = append(out, Line{Tag: killedTag, Text: base[zi]})
		}
		for ; si < blk.BStart; si++ {
			out = append(out, Line{Tag: newTag, Text: side[si]})
		}
		for i := 0; i < blk.Len; i++ {
			out = append(out, Line{Tag: matchTag, Text: base[zi]})
			zi++
			si++
		}
	}
	return out
}

// PlanLCAMerge is the LCA-restricted plan: each tip's unique lines are
// judged only against each LCA's text directly. A line unique relative to
// one LCA but matched in another is disputed and comes out conflicted,
// even where the full graph plan would pick a winner. Stricter and much
// cheaper than full weave construction on large histories.
func (p *Planner) PlanLCAMerge(aRev, bRev object.RevisionID) ([]Line, error) {
	lcas, err := p.graph.FindLCA(aRev, bRev)
	if err != nil {
		return nil, err
	}
	if len(lcas) == 0 {
		return nil, fmt.Errorf("plan: %s and %s: %w", aRev, bRev, graph.ErrUnrelatedBranches)
	}

	aLines, err := p.linesOf(aRev)
	if err != nil {
		return nil, err
	}
	bLines, err := p.linesOf(bRev)
	if err != nil {
		return nil, err
	}

	matchedA, err := p.lcaMatches(lcas, aLines)
	if err != nil {
		return nil, err
	}
	matchedB, err := p.lcaMatches(lcas, bLines)
	if err != nil {
		return nil, err
	}

	classify := func(matched []int, i int, newTag, killedTag, conflictedTag Tag) Tag {
		switch matched[i] {
		case 0:
			return newTag
		case len(lcas):
			return killedTag
		default:
			return conflictedTag
		}
	}
	classifyA := func(i int) Tag {
		return classify(matchedA, i, TagNewA, TagKilledB, TagConflictedA)
	}
	classifyB := func(i int) Tag {
		return classify(matchedB, i, TagNewB, TagKilledA, TagConflictedB)
	}
	return assemblePlan(aLines, bLines, classifyA, classifyB), nil
}

// lcaMatches counts, for every line index of side, how many LCA texts
// contain that line at a matched position.
func (p *Planner) lcaMatches(lcas []object.RevisionID, side []string) ([]int, error) {
	counts := make([]int, len(side))
	for _, lca := range lcas {
		lcaLines, err := p.linesOf(lca)
		if err != nil {
			return nil, err
		}
		for _, blk := range textmerge.MatchingBlocks(lcaLines, side) {
			for i := 0; i < blk.Len; i++ {
				counts[blk.BStart+i]++
			}
		}
	}
	return counts, nil
}

// assemblePlan interleaves the two tips along their matching blocks:
// matched lines are unchanged, unmatched lines get the side's classifier.
func assemblePlan(aLines, bLines []string, classifyA, classifyB func(int) Tag) []Line {
	var out []Line
	ai, bi := 0, 0
	for _, blk := range textmerge.MatchingBlocks(aLines, bLines) {
		for ; ai < blk.AStart; ai++ {
			out = append(out, Line{Tag: classifyA(ai), Text: aLines[ai]})
		}
		for ; bi < blk.BStart; bi++ {
			out = append(out, Line{Tag: classifyB(bi), Text: bLines[bi]})
		}
		for i := 0; i < blk.Len; i++ {
			out = append(out, Line{Tag: TagUnchanged, Text: aLines[ai]})
			ai++
			bi++
		}
	}
	return out
}

// findRecursiveLCAs walks LCA sets back from the two tips. It stops at a
// single unique LCA, or falls back (more than two LCAs at some level, or
// an empty set) to the unique-LCA ancestry floor. The returned set holds
// every revision any level considered interesting.
func (p *Planner) findRecursiveLCAs(aRev, bRev object.RevisionID) (map[object.RevisionID]struct{}, object.RevisionID, error) {
	interesting := map[object.RevisionID]struct{}{aRev: {}, bRev: {}}
	cur := []object.RevisionID{aRev, bRev}

	for len(cur) > 1 {
		lcas, err := p.setLCA(cur)
		if err != nil {
			return nil, "", err
		}
		if len(lcas) == 0 {
			return interesting, object.NullRevision, nil
		}
		if len(lcas) > 2 {
			// Too wide to chase level by level; include everything down
			// to the computed unique base instead.
			unique, err := p.graph.FindUniqueLCA(aRev, bRev)
			if err != nil {
				return nil, "", err
			}
			return interesting, unique, nil
		}
		progressed := false
		for _, l := range lcas {
			if _, seen := interesting[l]; !seen {
				interesting[l] = struct{}{}
				progressed = true
			}
		}
		if !progressed {
			return interesting, object.NullRevision, nil
		}
		cur = lcas
	}
	return interesting, cur[0], nil
}

func (p *Planner) setLCA(revs []object.RevisionID) ([]object.RevisionID, error) {
	cur := []object.RevisionID{revs[0]}
	for _, rev := range revs[1:] {
		var acc []object.RevisionID
		for _, c := range cur {
			pair, err := p.graph.FindLCA(c, rev)
			if err != nil {
				return nil, err
			}
			acc = append(acc, pair...)
		}
		var err error
		cur, err = p.graph.Heads(dedupRevs(acc))
		if err != nil {
			return nil, err
		}
		if len(cur) == 0 {
			return nil, nil
		}
	}
	return cur, nil
}

type tipAnnotations struct {
	a, b []object.RevisionID
}

// annotateTips annotates both tip texts over the pruned, collapsed
// subgraph. Ancestors are processed in merge order (left parents claim
// matched lines first), so where two histories could both explain a line
// the earlier-inserted side wins, matching weave tie-breaking.
func (p *Planner) annotateTips(aRev, bRev, stop object.RevisionID, interesting map[object.RevisionID]struct{}) (tipAnnotations, error) {
	sub, err := p.graph.SubgraphBetween([]object.RevisionID{aRev, bRev}, stop)
	if err != nil {
		return tipAnnotations{}, err
	}
	keep := make(map[object.RevisionID]struct{}, len(interesting)+1)
	for rev := range interesting {
		keep[rev] = struct{}{}
	}
	if stop != "" && stop != object.NullRevision {
		keep[stop] = struct{}{}
	}
	collapsed := graph.CollapseLinearRegions(sub, keep)

	order, err := topoOrder(collapsed)
	if err != nil {
		return tipAnnotations{}, err
	}

	ann := make(map[object.RevisionID][]object.RevisionID, len(order))
	for _, rev := range order {
		lines, err := p.linesOf(rev)
		if err != nil {
			return tipAnnotations{}, err
		}
		revAnn := make([]object.RevisionID, len(lines))
		for i := range revAnn {
			revAnn[i] = rev
		}
		for _, parent := range collapsed[rev] {
			parentLines, err := p.linesOf(parent)
			if err != nil {
				return tipAnnotations{}, err
			}
			parentAnn := ann[parent]
			for _, blk := range textmerge.MatchingBlocks(parentLines, lines) {
				for i := 0; i < blk.Len; i++ {
					if revAnn[blk.BStart+i] == rev {
						revAnn[blk.BStart+i] = parentAnn[blk.AStart+i]
					}
				}
			}
		}
		ann[rev] = revAnn
	}
	return tipAnnotations{a: ann[aRev], b: ann[bRev]}, nil
}

// topoOrder sorts a parent map parents-first with a deterministic
// tie-break, using an explicit ready list rather than recursion.
func topoOrder(parents graph.MapParents) ([]object.RevisionID, error) {
	indegree := make(map[object.RevisionID]int, len(parents))
	children := make(map[object.RevisionID][]object.RevisionID, len(parents))
	for rev, ps := range parents {
		if _, ok := indegree[rev]; !ok {
			indegree[rev] = 0
		}
		for _, p := range ps {
			indegree[rev]++
			children[p] = append(children[p], rev)
		}
	}

	var ready []object.RevisionID
	for rev, d := range indegree {
		if d == 0 {
			ready = append(ready, rev)
		}
	}
	sort.Sort(object.RevisionKey(ready))

	var order []object.RevisionID
	for len(ready) > 0 {
		rev := ready[0]
		ready = ready[1:]
		order = append(order, rev)
		var woke []object.RevisionID
		for _, c := range children[rev] {
			indegree[c]--
			if indegree[c] == 0 {
				woke = append(woke, c)
			}
		}
		sort.Sort(object.RevisionKey(woke))
		ready = append(ready, woke...)
	}
	if len(order) != len(indegree) {
		return nil, fmt.Errorf("plan: per-file graph has a cycle")
	}
	return order, nil
}

func dedupRevs(revs []object.RevisionID) []object.RevisionID {
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
