// Package merge implements three-way tree merging: entry walking across
// BASE, THIS, OTHER (and criss-cross LCA trees), per-attribute conflict
// detection, text merging with several selectable algorithms, and
// conflict cooking against a working tree.
package merge

import (
	"errors"
	"fmt"

	"github.com/breezy-team/gomerge/pkg/conflicts"
	"github.com/breezy-team/gomerge/pkg/object"
	"github.com/breezy-team/gomerge/pkg/store"
	"github.com/breezy-team/gomerge/pkg/transform"
	"github.com/breezy-team/gomerge/pkg/tree"
	"github.com/breezy-team/gomerge/pkg/worktree"
	"go.uber.org/zap"
)

var (
	// ErrCannotReprocessAndShowBase rejects the one configuration pair
	// that is incoherent for every algorithm: conflict reduction rewrites
	// regions until they no longer correspond to base lines.
	ErrCannotReprocessAndShowBase = errors.New("cannot reprocess and show base")
	// ErrCannotReverseCherrypick rejects reverse cherrypicks on
	// algorithms whose plans cannot express them.
	ErrCannotReverseCherrypick = errors.New("selected merge type does not support reverse cherrypicks")
)

// Options configures a Merge3Merger.
type Options struct {
	Algorithm         Algorithm // zero value selects AlgorithmMerge3
	ShowBase          bool
	Reprocess         bool
	Cherrypick        bool
	ReverseCherrypick bool

	// LCATrees holds the criss-cross LCA trees in merge order. Ignored
	// when the algorithm cannot consume them.
	LCATrees []tree.Tree

	// TextStore plus the three revision ids back the plan-based
	// algorithms; the direct algorithms never touch them.
	TextStore *store.TextStore
	ThisRev   object.RevisionID
	OtherRev  object.RevisionID
	BaseRev   object.RevisionID

	// Diff3Path overrides the external binary AlgorithmDiff3 runs.
	Diff3Path string

	Logger *zap.Logger
}

type fileStatus int

const (
	statusUnmodified fileStatus = iota
	statusModified
	statusDeleted
)

// Merge3Merger walks the entry records, resolves name, parent, content
// and executability per entry, stages every change in one transform, and
// cooks the accumulated conflicts once all placements are final.
type Merge3Merger struct {
	wt        *worktree.WorkTree
	thisTree  tree.Tree
	baseTree  tree.Tree
	otherTree tree.Tree
	lcaTrees  []tree.Tree

	algorithm  Algorithm
	showBase   bool
	reprocess  bool
	cherrypick bool

	textStore *store.TextStore
	thisRev   object.RevisionID
	otherRev  object.RevisionID
	baseRev   object.RevisionID
	diff3Path string

	logger *zap.Logger

	tt          *transform.Transform
	hooks       []ContentMerger
	pendingBase map[transform.TransID]textResult
	modified    map[object.FileID]struct{}
}

// NewMerge3Merger validates the configuration against the algorithm's
// capabilities and builds a merger. Configuration errors surface here,
// before any tree is read.
func NewMerge3Merger(wt *worktree.WorkTree, this, base, other tree.Tree, opts Options) (*Merge3Merger, error) {
	if opts.Algorithm == "" {
		opts.Algorithm = AlgorithmMerge3
	}
	caps := opts.Algorithm.Capabilities()
	if opts.Reprocess && opts.ShowBase {
		return nil, ErrCannotReprocessAndShowBase
	}
	if opts.Reprocess && !caps.SupportsReprocess {
		return nil, fmt.Errorf("conflict reduction is not supported for merge type %s", opts.Algorithm)
	}
	if opts.ShowBase && !caps.SupportsShowBase {
		return nil, fmt.Errorf("showing base is not supported for merge type %s", opts.Algorithm)
	}
	if opts.Cherrypick && !caps.SupportsCherrypick {
		return nil, fmt.Errorf("cherrypicking is not supported for merge type %s", opts.Algorithm)
	}
	if opts.ReverseCherrypick && !caps.SupportsReverseCherrypick {
		return nil, ErrCannotReverseCherrypick
	}
	lcaTrees := opts.LCATrees
	if !caps.SupportsLCATrees {
		lcaTrees = nil
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merge3Merger{
		wt:          wt,
		thisTree:    this,
		baseTree:    base,
		otherTree:   other,
		lcaTrees:    lcaTrees,
		algorithm:   opts.Algorithm,
		showBase:    opts.ShowBase,
		reprocess:   opts.Reprocess,
		cherrypick:  opts.Cherrypick,
		textStore:   opts.TextStore,
		thisRev:     opts.ThisRev,
		otherRev:    opts.OtherRev,
		baseRev:     opts.BaseRev,
		diff3Path:   opts.Diff3Path,
		logger:      logger,
		hooks:       []ContentMerger{builtinContentMerger{}},
		pendingBase: make(map[transform.TransID]textResult),
		modified:    make(map[object.FileID]struct{}),
	}, nil
}

// computeTransform runs every per-entry resolution into a fresh
// transform and cooks the conflict list. No working-tree mutation
// happens here; everything stays staged.
func (m *Merge3Merger) computeTransform() (*transform.Transform, conflicts.ConflictList, error) {
	m.tt = transform.New(m.thisTree)

	var entries []*mergeEntry
	if len(m.lcaTrees) > 0 {
		entries = m.entriesLCA()
	} else {
		entries = m.entries3()
	}

	for _, e := range entries {
		if err := m.mergeNames(e); err != nil {
			m.tt.Discard()
			return nil, nil, err
		}
		fs := statusUnmodified
		if e.changedContent {
			var err error
			fs, err = m.mergeContents(e)
			if err != nil {
				m.tt.Discard()
				return nil, nil, err
			}
		}
		if err := m.mergeExecutable(e, fs); err != nil {
			m.tt.Discard()
			return nil, nil, err
		}
	}

	// Filesystem-level conflicts need final paths; they can only be
	// judged after every entry's adjustment is staged.
	m.tt.ResolveConflicts()
	cooked := m.tt.CookConflicts()
	return m.tt, cooked, nil
}

// MakePreviewTransform computes the merge but leaves the transform open
// for inspection; the caller discards or applies it.
func (m *Merge3Merger) MakePreviewTransform() (*transform.Transform, conflicts.ConflictList, error) {
	return m.computeTransform()
}

// DoMerge computes and applies the merge to the working tree as a single
// unit, then persists the conflict list and merge-modified hashes.
// Conflicts are a successful outcome; only configuration, data or
// invariant failures return an error, and those leave the tree
// untouched.
func (m *Merge3Merger) DoMerge() (conflicts.ConflictList, error) {
	// The write lock spans the whole merge, computation included, so
	// hooks staging working-tree changes always run under it.
	unlock := m.wt.LockWrite()
	defer unlock()

	tt, cooked, err := m.computeTransform()
	if err != nil {
		return nil, err
	}

	if _, err := tt.Apply(m.wt, false); err != nil {
		return nil, fmt.Errorf("merge: apply transform: %w", err)
	}

	hashes := make(map[object.FileID]object.Hash, len(m.modified))
	for id := range m.modified {
		path, err := m.wt.ID2Path(id)
		if err != nil {
			continue
		}
		if h, err := m.wt.FileHash(path); err == nil {
			hashes[id] = h
		}
	}
	if err := m.wt.SetConflicts(cooked); err != nil {
		return nil, err
	}
	if err := m.wt.SetMergeModified(hashes); err != nil {
		return nil, err
	}
	if n := len(cooked); n > 0 {
		m.logger.Info("merge completed with conflicts", zap.Int("conflicts", n))
	}
	return cooked, nil
}

// mergeNames resolves placement (parent directory and basename) for one
// entry and stages the adjustment.
func (m *Merge3Merger) mergeNames(e *mergeEntry) error {
	var nameWinner, parentWinner decision
	if e.lca != nil {
		nameWinner = lcaMultiWay(e.baseName, e.lca.names, e.otherName, e.thisName, true)
		parentWinner = lcaMultiWay(e.baseParent, e.lca.parents, e.otherParent, e.thisParent, true)
	} else {
		nameWinner = threeWay(e.baseName, e.otherName, e.thisName)
		parentWinner = threeWay(e.baseParent, e.otherParent, e.thisParent)
	}

	if !e.thisName.OK && e.otherName.OK {
		// THIS has no entry for the id; its placement opinion is moot.
		nameWinner = winOther
		parentWinner = winOther
	}
	if nameWinner == winThis && parentWinner == winThis {
		return nil
	}

	trans := m.tt.TransIDForFileID(e.id)
	if nameWinner == winConflict || parentWinner == winConflict {
		m.tt.RecordConflict(transform.RawConflict{
			Kind:      conflicts.KindPath,
			TransID:   trans,
			ThisPath:  e.thisPath.V,
			OtherPath: e.otherPath.V,
		})
	}
	if !e.otherPath.OK {
		// OTHER has no path for the entry: no placement decision.
		return nil
	}

	// Winner selection indexes (base, other, this); "this" selects
	// THIS's literal value, anything else tentatively takes OTHER's
	// pending manual resolution.
	pick := func(d decision) int {
		if d == winThis {
			return 2
		}
		return 1
	}
	names := [3]opt[string]{e.baseName, e.otherName, e.thisName}
	parents := [3]opt[object.FileID]{e.baseParent, e.otherParent, e.thisParent}
	name := names[pick(nameWinner)]
	parent := parents[pick(parentWinner)]

	if !parent.OK || parent.V == "" {
		if name.OK && name.V != "" {
			return fmt.Errorf("merge: entry %s has name %q but no parent", e.id, name.V)
		}
		// The tree root; nothing to adjust.
		return nil
	}
	if !name.OK {
		return fmt.Errorf("merge: entry %s has parent %s but no name", e.id, parent.V)
	}
	parentTrans := m.tt.TransIDForFileID(parent.V)
	m.tt.AdjustPath(name.V, parentTrans, trans)
	return nil
}

// mergeContents resolves content for one entry whose diff indicated a
// content or kind change, running the hook chain on anything THIS does
// not already win.
func (m *Merge3Merger) mergeContents(e *mergeEntry) (fileStatus, error) {
	var winner decision
	if e.lca != nil {
		winner = lcaMultiWay(e.baseContent, e.lca.contents, e.otherContent, e.thisContent, false)
	} else {
		winner = threeWay(e.baseContent, e.otherContent, e.thisContent)
	}
	if winner == winThis {
		return statusUnmodified, nil
	}

	trans := m.tt.TransIDForFileID(e.id)
	params := &MergeHookParams{
		FileID:    e.id,
		TransID:   trans,
		BasePath:  e.basePath.V,
		OtherPath: e.otherPath.V,
		ThisPath:  e.thisPath.V,
		BaseKind:  e.baseContent.kind,
		OtherKind: e.otherContent.kind,
		ThisKind:  e.thisContent.kind,
		OtherWins: winner == winOther,
	}

	status := HookNotApplicable
	var lines []string
	for _, h := range m.hooks {
		st, ls, err := h.MergeContents(m, params)
		if err != nil {
			return 0, err
		}
		if st != HookNotApplicable {
			status, lines = st, ls
			break
		}
	}

	switch status {
	case HookSuccess:
		m.tt.CreateFile(tree.JoinLines(lines), trans)
		m.markModified(e.id)
		return statusModified, nil
	case HookConflicted:
		m.tt.CreateFile(tree.JoinLines(lines), trans)
		m.tt.RecordConflict(transform.RawConflict{
			Kind:    conflicts.KindText,
			TransID: trans,
		})
		m.dumpSiblings(trans, params, []string{".BASE", ".THIS", ".OTHER"})
		m.markModified(e.id)
		return statusModified, nil
	case HookDelete:
		m.tt.Remove(trans)
		return statusDeleted, nil
	case HookDone:
		return statusModified, nil
	default:
		return m.contentsConflict(e, trans, params)
	}
}

// contentsConflict handles the no-hook-applied case: usually a genuine
// contents conflict, except when the same final path is owned by a
// different id in THIS, where the later duplicate-entry conflict carries
// the whole signal and a contents conflict would double-report it.
func (m *Merge3Merger) contentsConflict(e *mergeEntry, trans transform.TransID, params *MergeHookParams) (fileStatus, error) {
	if params.ThisKind == object.KindAbsent {
		finalPath := m.tt.FinalPath(trans)
		if otherID, ok := m.thisTree.Path2ID(finalPath); ok && otherID != e.id {
			return statusUnmodified, nil
		}
	}
	m.tt.RecordConflict(transform.RawConflict{
		Kind:    conflicts.KindContents,
		TransID: trans,
	})
	m.dumpSiblings(trans, params, []string{".BASE", ".OTHER"})
	return statusModified, nil
}

// createFromOther replaces the entry's content with OTHER's version.
func (m *Merge3Merger) createFromOther(p *MergeHookParams) error {
	trans := p.TransID
	m.tt.DeleteContents(trans)
	switch p.OtherKind {
	case object.KindFile:
		data, err := m.otherTree.FileBytes(p.OtherPath)
		if err != nil {
			return fmt.Errorf("merge: read %q from merge source: %w", p.OtherPath, err)
		}
		m.tt.CreateFile(data, trans)
		if exec, err := m.otherTree.IsExecutable(p.OtherPath); err == nil {
			m.tt.SetExecutability(exec, trans)
		}
		m.markModified(p.FileID)
	case object.KindSymlink:
		target, err := m.otherTree.SymlinkTarget(p.OtherPath)
		if err != nil {
			return fmt.Errorf("merge: read symlink %q from merge source: %w", p.OtherPath, err)
		}
		m.tt.CreateSymlink(target, trans)
	case object.KindDirectory:
		m.tt.CreateDir(trans)
	default:
		return fmt.Errorf("merge: cannot reproduce %s entry %s", p.OtherKind, p.FileID)
	}
	m.tt.Version(p.FileID, trans)
	return nil
}

// dumpSiblings writes unversioned conflict helper files next to the
// merged file. Plan-based algorithms reconstruct their own base text and
// get a single .BASE sibling; everything else copies whichever of the
// three trees actually holds file content at the entry's path.
func (m *Merge3Merger) dumpSiblings(trans transform.TransID, p *MergeHookParams, suffixes []string) {
	name := m.tt.FinalName(trans)
	parent := m.tt.FinalParent(trans)

	if res, ok := m.pendingBase[trans]; ok && res.haveBase {
		delete(m.pendingBase, trans)
		sib := m.tt.NewEntry()
		m.tt.AdjustPath(name+".BASE", parent, sib)
		m.tt.CreateFile(tree.JoinLines(res.baseLines), sib)
		return
	}

	type side struct {
		suffix string
		t      tree.Tree
		path   string
	}
	sides := []side{
		{".BASE", m.baseTree, p.BasePath},
		{".THIS", m.thisTree, p.ThisPath},
		{".OTHER", m.otherTree, p.OtherPath},
	}
	wanted := make(map[string]struct{}, len(suffixes))
	for _, s := range suffixes {
		wanted[s] = struct{}{}
	}
	for _, s := range sides {
		if _, ok := wanted[s.suffix]; !ok {
			continue
		}
		data := m.sideBytes(s.t, s.path)
		if data == nil {
			continue
		}
		sib := m.tt.NewEntry()
		m.tt.AdjustPath(name+s.suffix, parent, sib)
		m.tt.CreateFile(data, sib)
	}
}

// mergeExecutable resolves the executable bit. There is no executable
// conflict type: a resolver conflict is silently forced to whichever
// side still has a path, OTHER preferred.
func (m *Merge3Merger) mergeExecutable(e *mergeEntry, fs fileStatus) error {
	if fs == statusDeleted {
		return nil
	}
	var winner decision
	if e.lca != nil {
		winner = lcaMultiWay(e.baseExec, e.lca.execs, e.otherExec, e.thisExec, true)
	} else {
		winner = threeWay(e.baseExec, e.otherExec, e.thisExec)
	}
	if winner == winConflict {
		if e.otherPath.OK {
			winner = winOther
		} else {
			winner = winThis
		}
	}
	if winner == winThis && fs != statusModified {
		return nil
	}

	trans := m.tt.TransIDForFileID(e.id)
	if m.tt.FinalKind(trans) != object.KindFile {
		return nil
	}
	var exec opt[bool]
	switch {
	case winner == winThis:
		exec = e.thisExec
	case e.otherPath.OK:
		exec = e.otherExec
	case e.thisPath.OK:
		exec = e.thisExec
	case e.basePath.OK:
		exec = e.baseExec
	}
	if exec.OK {
		m.tt.SetExecutability(exec.V, trans)
	}
	return nil
}

func (m *Merge3Merger) markModified(id object.FileID) {
	m.modified[id] = struct{}{}
}
