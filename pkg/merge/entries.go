package merge

import (
	"github.com/breezy-team/gomerge/pkg/object"
	"github.com/breezy-team/gomerge/pkg/tree"
)

// contentID is the identity a content comparison runs over: the kind
// plus, for files, the content hash and, for symlinks, the target.
// Directories and tree references have no content identity of their own,
// so they can only differ by presence or kind.
type contentID struct {
	kind  object.Kind
	ident string
}

func contentIDOf(e *tree.Entry) contentID {
	if e.IsAbsent() {
		return contentID{kind: object.KindAbsent}
	}
	switch e.Kind {
	case object.KindFile:
		return contentID{kind: e.Kind, ident: string(e.ContentHash)}
	case object.KindSymlink:
		return contentID{kind: e.Kind, ident: e.SymlinkTarget}
	default:
		return contentID{kind: e.Kind}
	}
}

// lcaValues carries the per-LCA slot of each attribute tuple when the
// merge runs against a criss-cross LCA set. Slices are indexed by LCA
// tree, in merge order.
type lcaValues struct {
	paths    []opt[string]
	parents  []opt[object.FileID]
	names    []opt[string]
	execs    []opt[bool]
	contents []contentID
}

// mergeEntry is the aligned record the walk produces for one file id:
// every attribute as seen by BASE (or BASE plus LCAs), OTHER and THIS.
type mergeEntry struct {
	id             object.FileID
	changedContent bool
	copied         bool

	basePath, otherPath, thisPath       opt[string]
	baseParent, otherParent, thisParent opt[object.FileID]
	baseName, otherName, thisName       opt[string]
	baseExec, otherExec, thisExec       opt[bool]
	baseContent, otherContent, thisContent contentID

	lca *lcaValues // nil outside criss-cross merges
}

func fillSlot(e *mergeEntry, which int, path string, ent *tree.Entry) {
	var p opt[string]
	var parent opt[object.FileID]
	var name opt[string]
	var exec opt[bool]
	if !ent.IsAbsent() {
		p = some(path)
		parent = some(ent.ParentID)
		name = some(ent.Name)
		exec = some(ent.Executable)
	}
	c := contentIDOf(ent)
	switch which {
	case slotBase:
		e.basePath, e.baseParent, e.baseName, e.baseExec, e.baseContent = p, parent, name, exec, c
	case slotOther:
		e.otherPath, e.otherParent, e.otherName, e.otherExec, e.otherContent = p, parent, name, exec, c
	case slotThis:
		e.thisPath, e.thisParent, e.thisName, e.thisExec, e.thisContent = p, parent, name, exec, c
	}
}

const (
	slotBase = iota
	slotOther
	slotThis
)

// entries3 enumerates the records for a plain three-way merge: the
// OTHER-vs-BASE diff, with THIS's view of each changed id joined in.
// Only OTHER's changes drive the merge; ids OTHER left alone never
// produce a record.
func (m *Merge3Merger) entries3() []*mergeEntry {
	var out []*mergeEntry
	for _, c := range m.baseTree.IterChanges(m.otherTree) {
		e := &mergeEntry{
			id:             c.FileID,
			changedContent: c.ChangedContent,
			copied:         c.Copied,
		}
		oldEnt, newEnt := c.OldEntry, c.NewEntry
		if oldEnt == nil {
			oldEnt = tree.NoneEntry
		}
		if newEnt == nil {
			newEnt = tree.NoneEntry
		}
		fillSlot(e, slotBase, c.OldPath, oldEnt)
		fillSlot(e, slotOther, c.NewPath, newEnt)

		thisEnt := m.thisTree.Entry(c.FileID)
		thisPath := ""
		if !thisEnt.IsAbsent() {
			thisPath = tree.MustPath(m.thisTree, c.FileID)
		}
		fillSlot(e, slotThis, thisPath, thisEnt)

		// Nothing to merge when THIS already matches OTHER exactly.
		if newEnt.IsUnmodified(thisEnt) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// entriesLCA enumerates the records for a criss-cross merge by walking
// OTHER against every LCA tree plus BASE and THIS. An id whose OTHER
// view is unmodified relative to any single LCA is skipped: under the
// ancestry invariant OTHER then introduced nothing new past that branch
// point. This filter is known to misjudge values reintroduced after
// being superseded in double-criss-cross histories; the behavior is kept
// as-is rather than diverging from it.
func (m *Merge3Merger) entriesLCA() []*mergeEntry {
	nLCA := len(m.lcaTrees)
	others := make([]tree.Tree, 0, nLCA+2)
	others = append(others, m.lcaTrees...)
	others = append(others, m.baseTree, m.thisTree)

	walker := tree.NewMultiWalker(m.otherTree, others)
	var out []*mergeEntry
walk:
	for _, rec := range walker.IterAll() {
		otherEnt := rec.Master
		lcaViews := rec.Others[:nLCA]
		baseView := rec.Others[nLCA]
		thisView := rec.Others[nLCA+1]

		for _, lv := range lcaViews {
			if otherEnt.IsUnmodified(lv.Entry) {
				continue walk
			}
		}
		if otherEnt.IsUnmodified(thisView.Entry) {
			continue
		}

		e := &mergeEntry{id: rec.ID, lca: &lcaValues{}}
		fillSlot(e, slotOther, rec.Path, otherEnt)
		fillSlot(e, slotBase, baseView.Path, baseView.Entry)
		fillSlot(e, slotThis, thisView.Path, thisView.Entry)
		for _, lv := range lcaViews {
			if lv.Entry.IsAbsent() {
				e.lca.paths = append(e.lca.paths, opt[string]{})
				e.lca.parents = append(e.lca.parents, opt[object.FileID]{})
				e.lca.names = append(e.lca.names, opt[string]{})
				e.lca.execs = append(e.lca.execs, opt[bool]{})
			} else {
				e.lca.paths = append(e.lca.paths, some(lv.Path))
				e.lca.parents = append(e.lca.parents, some(lv.Entry.ParentID))
				e.lca.names = append(e.lca.names, some(lv.Entry.Name))
				e.lca.execs = append(e.lca.execs, some(lv.Entry.Executable))
			}
			e.lca.contents = append(e.lca.contents, contentIDOf(lv.Entry))
		}
		e.changedContent = e.otherContent != e.thisContent || e.otherContent != e.baseContent
		out = append(out, e)
	}
	return out
}
