package tree

import (
	"sort"

	"github.com/breezy-team/gomerge/pkg/object"
)

// OtherEntry is one non-master tree's view in a walk record: the path the
// id has in that tree and its entry snapshot (NoneEntry when absent).
type OtherEntry struct {
	Path  string
	Entry *Entry
}

// WalkEntry is one aligned record produced by MultiWalker: one FileID with
// the master tree's view and every other tree's view.
type WalkEntry struct {
	Path   string // path in the master tree, or the smallest other path
	ID     object.FileID
	Master *Entry // NoneEntry when the master lacks the id
	Others []OtherEntry
}

// MultiWalker iterates a master tree and N other trees in a single pass,
// yielding one record per FileID present anywhere. Entries that exist in
// the master come out in the master's directory-block order; entries only
// the other trees know come afterwards, ordered by path.
//
// The walk steps all iterators in lock step. When an other-tree iterator
// is behind the master position it is advanced, caching passed-over
// entries by id; when it overshoots, the id is resolved by direct lookup
// instead. The walker is single-use.
type MultiWalker struct {
	master Tree
	others []Tree
}

// NewMultiWalker builds a walker over master and the given other trees.
func NewMultiWalker(master Tree, others []Tree) *MultiWalker {
	return &MultiWalker{master: master, others: others}
}

type otherCursor struct {
	tree    Tree
	entries []PathEntry
	pos     int
	extras  map[object.FileID]PathEntry
	seen    map[object.FileID]struct{}
}

func (c *otherCursor) current() (PathEntry, bool) {
	if c.pos >= len(c.entries) {
		return PathEntry{}, false
	}
	return c.entries[c.pos], true
}

// lookup finds id in this tree, consuming the iterator up to masterPath.
func (c *otherCursor) lookup(id object.FileID, masterPath string) (OtherEntry, bool) {
	if pe, ok := c.extras[id]; ok {
		delete(c.extras, id)
		c.seen[id] = struct{}{}
		return OtherEntry{Path: pe.Path, Entry: pe.Entry}, true
	}
	for {
		pe, ok := c.current()
		if !ok {
			break
		}
		if CompareDirblock(pe.Path, masterPath) > 0 {
			// Overshot: this tree's next entry sorts after the master
			// position, so id (if present) must live at a path we have
			// not reached. Fall through to direct lookup.
			break
		}
		c.pos++
		if pe.ID == id {
			c.seen[id] = struct{}{}
			return OtherEntry{Path: pe.Path, Entry: pe.Entry}, true
		}
		c.extras[pe.ID] = pe
	}
	if path, err := c.tree.ID2Path(id); err == nil {
		c.seen[id] = struct{}{}
		return OtherEntry{Path: path, Entry: c.tree.Entry(id)}, true
	}
	return OtherEntry{Entry: NoneEntry}, false
}

// drain moves every not-yet-consumed iterator entry into the extras map.
func (c *otherCursor) drain() {
	for {
		pe, ok := c.current()
		if !ok {
			return
		}
		c.pos++
		if _, yielded := c.seen[pe.ID]; !yielded {
			c.extras[pe.ID] = pe
		}
	}
}

// IterAll runs the walk to completion and returns every record.
func (w *MultiWalker) IterAll() []WalkEntry {
	cursors := make([]*otherCursor, len(w.others))
	for i, t := range w.others {
		cursors[i] = &otherCursor{
			tree:    t,
			entries: t.IterEntriesByDir(nil),
			extras:  make(map[object.FileID]PathEntry),
			seen:    make(map[object.FileID]struct{}),
		}
	}

	var out []WalkEntry
	for _, mpe := range w.master.IterEntriesByDir(nil) {
		rec := WalkEntry{
			Path:   mpe.Path,
			ID:     mpe.ID,
			Master: mpe.Entry,
			Others: make([]OtherEntry, len(cursors)),
		}
		for i, c := range cursors {
			oe, _ := c.lookup(mpe.ID, mpe.Path)
			rec.Others[i] = oe
		}
		out = append(out, rec)
	}

	// Flush: anything the master never mentioned, ordered by path.
	for _, c := range cursors {
		c.drain()
	}
	pending := make(map[object.FileID]string) // id -> smallest path
	for _, c := range cursors {
		for id, pe := range c.extras {
			if cur, ok := pending[id]; !ok || CompareDirblock(pe.Path, cur) < 0 {
				pending[id] = pe.Path
			}
		}
	}
	ids := make([]object.FileID, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if c := CompareDirblock(pending[ids[i]], pending[ids[j]]); c != 0 {
			return c < 0
		}
		return ids[i] < ids[j]
	})

	for _, id := range ids {
		rec := WalkEntry{
			Path:   pending[id],
			ID:     id,
			Master: NoneEntry,
			Others: make([]OtherEntry, len(cursors)),
		}
		for i, c := range cursors {
			if pe, ok := c.extras[id]; ok {
				delete(c.extras, id)
				rec.Others[i] = OtherEntry{Path: pe.Path, Entry: pe.Entry}
			} else {
				rec.Others[i] = OtherEntry{Entry: NoneEntry}
			}
		}
		out = append(out, rec)
	}
	return out
}
