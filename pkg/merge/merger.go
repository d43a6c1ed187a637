package merge

import (
	"fmt"
	"sort"

	"github.com/breezy-team/gomerge/pkg/conflicts"
	"github.com/breezy-team/gomerge/pkg/graph"
	"github.com/breezy-team/gomerge/pkg/object"
	"github.com/breezy-team/gomerge/pkg/store"
	"github.com/breezy-team/gomerge/pkg/tree"
	"github.com/breezy-team/gomerge/pkg/worktree"
	"go.uber.org/zap"
)

// TreeProvider materializes the tree of a historical revision.
type TreeProvider interface {
	RevisionTree(rev object.RevisionID) (tree.Tree, error)
}

// Merger is the session front end: it resolves the merge base via the
// revision graph, detects criss-cross histories, gathers LCA trees, and
// drives a Merge3Merger with the session's configuration.
type Merger struct {
	wt    *worktree.WorkTree
	graph *graph.Graph
	trees TreeProvider

	thisRev  object.RevisionID
	otherRev object.RevisionID

	baseRev    object.RevisionID
	baseTree   tree.Tree
	lcaTrees   []tree.Tree
	crissCross bool

	cherrypick        bool
	reverseCherrypick bool

	// Session configuration, applied when the orchestrator is built.
	Algorithm Algorithm
	ShowBase  bool
	Reprocess bool
	// TextStore backs the plan-based algorithms' per-file graphs.
	TextStore *store.TextStore
	// Diff3Path overrides the external diff3 binary.
	Diff3Path string

	hooks  []ContentMerger
	logger *zap.Logger
}

// NewMerger builds a merge session bringing otherRev's changes into wt,
// whose basis revision is thisRev.
func NewMerger(wt *worktree.WorkTree, g *graph.Graph, trees TreeProvider, thisRev, otherRev object.RevisionID, logger *zap.Logger) *Merger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{
		wt:       wt,
		graph:    g,
		trees:    trees,
		thisRev:  thisRev,
		otherRev: otherRev,
		logger:   logger,
	}
}

// AddContentMerger registers a per-file merge hook for this session.
func (m *Merger) AddContentMerger(h ContentMerger) {
	m.hooks = append(m.hooks, h)
}

// BaseRevision returns the resolved merge base, empty before FindBase or
// SetBase has run.
func (m *Merger) BaseRevision() object.RevisionID { return m.baseRev }

// IsCrissCross reports whether base resolution found multiple LCAs.
func (m *Merger) IsCrissCross() bool { return m.crissCross }

// FindBase resolves the merge base from the revision graph. A single LCA
// is used directly. Multiple LCAs mark the merge criss-cross: the LCA
// set's own unique LCA becomes the tie-break base, the LCA trees are
// collected in historical merge order, and a warning is logged since any
// single base is then only a heuristic.
func (m *Merger) FindBase() error {
	lcas, err := m.graph.FindLCA(m.thisRev, m.otherRev)
	if err != nil {
		return err
	}
	switch len(lcas) {
	case 0:
		return graph.ErrUnrelatedBranches
	case 1:
		m.baseRev = lcas[0]
	default:
		m.crissCross = true
		unique, err := m.graph.FindUniqueLCA(m.thisRev, m.otherRev)
		if err != nil {
			return err
		}
		order, err := m.graph.FindMergeOrder(m.thisRev, lcas)
		if err != nil {
			return err
		}
		if unique == object.NullRevision {
			// No revision dominates the whole LCA set; fall back to the
			// earliest-merged LCA.
			unique = order[0]
		}
		m.baseRev = unique

		lcaStrs := make([]string, len(lcas))
		for i, r := range lcas {
			lcaStrs[i] = string(r)
		}
		sort.Strings(lcaStrs)
		m.logger.Warn("criss-cross merge encountered; merge base is heuristic",
			zap.Strings("lcas", lcaStrs),
			zap.String("base", string(m.baseRev)))
		for _, r := range lcas {
			if r == m.baseRev {
				m.logger.Warn("unable to find unique lca; falling back to best option",
					zap.String("base", string(m.baseRev)))
				break
			}
		}

		m.lcaTrees = m.lcaTrees[:0]
		for _, rev := range order {
			t, err := m.trees.RevisionTree(rev)
			if err != nil {
				return fmt.Errorf("merge: lca tree %s: %w", rev, err)
			}
			m.lcaTrees = append(m.lcaTrees, t)
		}
	}
	if m.baseRev == object.NullRevision {
		return graph.ErrUnrelatedBranches
	}
	m.baseTree, err = m.trees.RevisionTree(m.baseRev)
	if err != nil {
		return fmt.Errorf("merge: base tree %s: %w", m.baseRev, err)
	}
	return nil
}

// SetBase forces an explicit merge base. A base that is not the natural
// LCA makes this a cherrypick; a base descending from OTHER makes it a
// reverse cherrypick.
func (m *Merger) SetBase(rev object.RevisionID) error {
	if rev == "" {
		return m.FindBase()
	}
	m.baseRev = rev
	var err error
	m.baseTree, err = m.trees.RevisionTree(rev)
	if err != nil {
		return fmt.Errorf("merge: base tree %s: %w", rev, err)
	}
	natural, err := m.graph.FindUniqueLCA(m.thisRev, m.otherRev)
	if err == nil && natural == rev {
		return nil
	}
	m.cherrypick = true
	if reverse, err := m.graph.IsAncestor(m.otherRev, rev); err == nil && reverse {
		m.reverseCherrypick = true
	}
	return nil
}

// Merge resolves the base if needed, builds the orchestrator with the
// session configuration, and runs the merge against the working tree.
func (m *Merger) Merge() (conflicts.ConflictList, error) {
	if m.baseTree == nil {
		if err := m.FindBase(); err != nil {
			return nil, err
		}
	}
	otherTree, err := m.trees.RevisionTree(m.otherRev)
	if err != nil {
		return nil, fmt.Errorf("merge: other tree %s: %w", m.otherRev, err)
	}

	mm, err := NewMerge3Merger(m.wt, m.wt.Tree(), m.baseTree, otherTree, Options{
		Algorithm:         m.Algorithm,
		ShowBase:          m.ShowBase,
		Reprocess:         m.Reprocess,
		Cherrypick:        m.cherrypick,
		ReverseCherrypick: m.reverseCherrypick,
		LCATrees:          m.lcaTrees,
		TextStore:         m.TextStore,
		Diff3Path:         m.Diff3Path,
		ThisRev:           m.thisRev,
		OtherRev:          m.otherRev,
		BaseRev:           m.baseRev,
		Logger:            m.logger,
	})
	if err != nil {
		return nil, err
	}
	for _, h := range m.hooks {
		mm.AddContentMerger(h)
	}
	return mm.DoMerge()
}

// Resolve applies a resolution action to the conflicts selected by
// paths (every conflict when paths is empty) and persists the remainder.
// Resolved conflicts have their helper sibling files removed. Individual
// failures do not stop the batch; they are reported together.
func Resolve(wt *worktree.WorkTree, paths []string, action string, recurse, ignoreMisses bool) (resolved conflicts.ConflictList, misses []conflicts.Miss, err error) {
	unlock := wt.LockWrite()
	defer unlock()

	list, err := wt.Conflicts()
	if err != nil {
		return nil, nil, err
	}

	remaining := conflicts.ConflictList{}
	selected := list
	if len(paths) > 0 {
		remaining, selected, misses = list.SelectConflicts(wt, wt, paths, ignoreMisses, recurse)
	}

	resolved, actionErr := selected.ResolveAll(action, wt)
	for _, c := range selected {
		if !resolved.Contains(c) {
			remaining = append(remaining, c)
		}
	}
	if rmErr := resolved.RemoveFiles(wt); rmErr != nil && actionErr == nil {
		actionErr = rmErr
	}
	remaining.Sort()
	if err := wt.SetConflicts(remaining); err != nil {
		return resolved, misses, err
	}
	return resolved, misses, actionErr
}
