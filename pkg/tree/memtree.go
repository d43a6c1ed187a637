package tree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/breezy-team/gomerge/pkg/object"
)

// RootID is the FileID given to the root directory of trees built with
// NewMemTree. Real stores assign their own root ids; tests rely on this
// one being stable.
const RootID object.FileID = "TREE_ROOT"

// MemTree is an in-memory Tree used as the storage collaborator in tests
// and as the snapshot representation for historical revisions. Entries are
// keyed by FileID; paths are derived from the parent chain on demand.
type MemTree struct {
	entries map[object.FileID]*Entry
	content map[object.FileID][]byte
	rootID  object.FileID
}

// NewMemTree returns a tree containing only a root directory.
func NewMemTree() *MemTree {
	t := &MemTree{
		entries: make(map[object.FileID]*Entry),
		content: make(map[object.FileID][]byte),
		rootID:  RootID,
	}
	t.entries[RootID] = &Entry{Kind: object.KindDirectory}
	return t
}

// Clone returns a deep copy, used to derive divergent trees from a base.
func (t *MemTree) Clone() *MemTree {
	c := &MemTree{
		entries: make(map[object.FileID]*Entry, len(t.entries)),
		content: make(map[object.FileID][]byte, len(t.content)),
		rootID:  t.rootID,
	}
	for id, e := range t.entries {
		dup := *e
		c.entries[id] = &dup
	}
	for id, data := range t.content {
		c.content[id] = append([]byte(nil), data...)
	}
	return c
}

// RootFileID returns the id of the tree's root directory.
func (t *MemTree) RootFileID() object.FileID { return t.rootID }

func (t *MemTree) parentOf(path string) (object.FileID, string, error) {
	slash := strings.LastIndexByte(path, '/')
	if slash < 0 {
		return t.rootID, path, nil
	}
	dir, name := path[:slash], path[slash+1:]
	id, ok := t.Path2ID(dir)
	if !ok {
		return "", "", fmt.Errorf("add %q: parent %q: %w", path, dir, ErrNotFound)
	}
	if t.entries[id].Kind != object.KindDirectory {
		return "", "", fmt.Errorf("add %q: parent %q is not a directory", path, dir)
	}
	return id, name, nil
}

// AddDir adds a directory at path with the given id.
func (t *MemTree) AddDir(path string, id object.FileID) error {
	parent, name, err := t.parentOf(path)
	if err != nil {
		return err
	}
	t.entries[id] = &Entry{Kind: object.KindDirectory, ParentID: parent, Name: name}
	return nil
}

// AddFile adds a file at path with the given id and content.
func (t *MemTree) AddFile(path string, id object.FileID, content []byte, executable bool) error {
	parent, name, err := t.parentOf(path)
	if err != nil {
		return err
	}
	t.entries[id] = &Entry{
		Kind:        object.KindFile,
		ParentID:    parent,
		Name:        name,
		Executable:  executable,
		ContentHash: object.HashBytes(content),
	}
	t.content[id] = append([]byte(nil), content...)
	return nil
}

// AddSymlink adds a symlink at path with the given id and target.
func (t *MemTree) AddSymlink(path string, id object.FileID, target string) error {
	parent, name, err := t.parentOf(path)
	if err != nil {
		return err
	}
	t.entries[id] = &Entry{Kind: object.KindSymlink, ParentID: parent, Name: name, SymlinkTarget: target}
	return nil
}

// PutFile replaces the content of the file at path.
func (t *MemTree) PutFile(path string, content []byte) error {
	id, ok := t.Path2ID(path)
	if !ok {
		return fmt.Errorf("put %q: %w", path, ErrNotFound)
	}
	e := t.entries[id]
	if e.Kind != object.KindFile {
		return fmt.Errorf("put %q: not a file", path)
	}
	e.ContentHash = object.HashBytes(content)
	t.content[id] = append([]byte(nil), content...)
	return nil
}

// SetExecutable flips the executable bit of the file at path.
func (t *MemTree) SetExecutable(path string, executable bool) error {
	id, ok := t.Path2ID(path)
	if !ok {
		return fmt.Errorf("chmod %q: %w", path, ErrNotFound)
	}
	t.entries[id].Executable = executable
	return nil
}

// Rename moves the entry at oldPath to newPath (any parent change included).
func (t *MemTree) Rename(oldPath, newPath string) error {
	id, ok := t.Path2ID(oldPath)
	if !ok {
		return fmt.Errorf("rename %q: %w", oldPath, ErrNotFound)
	}
	parent, name, err := t.parentOf(newPath)
	if err != nil {
		return fmt.Errorf("rename to %q: %w", newPath, err)
	}
	e := t.entries[id]
	e.ParentID = parent
	e.Name = name
	return nil
}

// Delete removes the entry at path. Directories must be emptied first.
func (t *MemTree) Delete(path string) error {
	id, ok := t.Path2ID(path)
	if !ok {
		return fmt.Errorf("delete %q: %w", path, ErrNotFound)
	}
	for cid, e := range t.entries {
		if cid != id && e.ParentID == id {
			return fmt.Errorf("delete %q: directory not empty", path)
		}
	}
	delete(t.entries, id)
	delete(t.content, id)
	return nil
}

// Kind implements Tree.
func (t *MemTree) Kind(path string) (object.Kind, error) {
	id, ok := t.Path2ID(path)
	if !ok {
		return "", fmt.Errorf("kind %q: %w", path, ErrNotFound)
	}
	return t.entries[id].Kind, nil
}

// FileHash implements Tree.
func (t *MemTree) FileHash(path string) (object.Hash, error) {
	id, ok := t.Path2ID(path)
	if !ok {
		return "", fmt.Errorf("hash %q: %w", path, ErrNotFound)
	}
	return t.entries[id].ContentHash, nil
}

// FileBytes implements Tree.
func (t *MemTree) FileBytes(path string) ([]byte, error) {
	id, ok := t.Path2ID(path)
	if !ok {
		return nil, fmt.Errorf("read %q: %w", path, ErrNotFound)
	}
	if t.entries[id].Kind != object.KindFile {
		return nil, fmt.Errorf("read %q: not a file", path)
	}
	return t.content[id], nil
}

// FileLines implements Tree.
func (t *MemTree) FileLines(path string) ([]string, error) {
	data, err := t.FileBytes(path)
	if err != nil {
		return nil, err
	}
	return SplitLines(string(data)), nil
}

// SymlinkTarget implements Tree.
func (t *MemTree) SymlinkTarget(path string) (string, error) {
	id, ok := t.Path2ID(path)
	if !ok {
		return "", fmt.Errorf("readlink %q: %w", path, ErrNotFound)
	}
	return t.entries[id].SymlinkTarget, nil
}

// IsExecutable implements Tree.
func (t *MemTree) IsExecutable(path string) (bool, error) {
	id, ok := t.Path2ID(path)
	if !ok {
		return false, fmt.Errorf("stat %q: %w", path, ErrNotFound)
	}
	return t.entries[id].Executable, nil
}

// ID2Path implements Tree.
func (t *MemTree) ID2Path(id object.FileID) (string, error) {
	e, ok := t.entries[id]
	if !ok {
		return "", fmt.Errorf("id2path %q: %w", id, ErrNoSuchID)
	}
	if id == t.rootID {
		return "", nil
	}
	parentPath, err := t.ID2Path(e.ParentID)
	if err != nil {
		return "", fmt.Errorf("id2path %q: broken parent chain: %w", id, err)
	}
	if parentPath == "" {
		return e.Name, nil
	}
	return parentPath + "/" + e.Name, nil
}

// Path2ID implements Tree.
func (t *MemTree) Path2ID(path string) (object.FileID, bool) {
	if path == "" {
		return t.rootID, true
	}
	cur := t.rootID
segments:
	for _, seg := range strings.Split(path, "/") {
		for id, e := range t.entries {
			if e.ParentID == cur && e.Name == seg && id != t.rootID {
				cur = id
				continue segments
			}
		}
		return "", false
	}
	return cur, true
}

// HasID implements Tree.
func (t *MemTree) HasID(id object.FileID) bool {
	_, ok := t.entries[id]
	return ok
}

// Entry implements Tree.
func (t *MemTree) Entry(id object.FileID) *Entry {
	e, ok := t.entries[id]
	if !ok {
		return NoneEntry
	}
	return e
}

// IterEntriesByDir implements Tree.
func (t *MemTree) IterEntriesByDir(specific []string) []PathEntry {
	var want map[string]struct{}
	if specific != nil {
		want = make(map[string]struct{}, len(specific))
		for _, p := range specific {
			want[p] = struct{}{}
		}
	}

	out := make([]PathEntry, 0, len(t.entries))
	for id := range t.entries {
		p, err := t.ID2Path(id)
		if err != nil {
			continue
		}
		if want != nil {
			if _, ok := want[p]; !ok {
				continue
			}
		}
		out = append(out, PathEntry{Path: p, ID: id, Entry: t.entries[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		return CompareDirblock(out[i].Path, out[j].Path) < 0
	})
	return out
}

// IterChanges implements Tree. The receiver is the old side.
func (t *MemTree) IterChanges(other Tree) []Change {
	seen := make(map[object.FileID]struct{})
	var changes []Change

	consider := func(id object.FileID) {
		if _, done := seen[id]; done {
			return
		}
		seen[id] = struct{}{}

		oldEntry := t.Entry(id)
		newEntry := other.Entry(id)
		if oldEntry.IsAbsent() && newEntry.IsAbsent() {
			return
		}
		if !oldEntry.IsAbsent() && !newEntry.IsAbsent() && oldEntry.IsUnmodified(newEntry) {
			return
		}

		c := Change{FileID: id}
		if !oldEntry.IsAbsent() {
			c.OldEntry = oldEntry
			c.OldPath = MustPath(t, id)
		}
		if !newEntry.IsAbsent() {
			c.NewEntry = newEntry
			c.NewPath = MustPath(other, id)
		}
		c.ChangedContent = contentDiffers(oldEntry, newEntry)
		changes = append(changes, c)
	}

	// New-side order first so changes come out in the new tree's
	// directory-block order, then anything only the old side has.
	for _, pe := range other.IterEntriesByDir(nil) {
		consider(pe.ID)
	}
	for _, pe := range t.IterEntriesByDir(nil) {
		consider(pe.ID)
	}
	return changes
}

// contentDiffers reports whether the content identity (kind, hash or
// symlink target) differs between two snapshots. Placement and the
// executable bit are not content.
func contentDiffers(a, b *Entry) bool {
	if a.IsAbsent() || b.IsAbsent() {
		return true
	}
	if a.Kind != b.Kind {
		return true
	}
	switch a.Kind {
	case object.KindFile:
		return a.ContentHash != b.ContentHash
	case object.KindSymlink:
		return a.SymlinkTarget != b.SymlinkTarget
	default:
		return false
	}
}

// SplitLines splits s into lines without terminators. A trailing newline
// does not produce an extra empty element.
func SplitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// JoinLines is the inverse of SplitLines: every line gets a terminator.
func JoinLines(lines []string) []byte {
	if len(lines) == 0 {
		return nil
	}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
