package tree

import (
	"errors"
	"fmt"

	"github.com/breezy-team/gomerge/pkg/object"
)

// ErrNotFound reports that a path does not exist in a tree.
var ErrNotFound = errors.New("path not found in tree")

// ErrNoSuchID reports that a FileID is not versioned in a tree.
var ErrNoSuchID = errors.New("no such file id in tree")

// Tree is a read-only view of one revision's path->entry mapping. Merge
// inputs (BASE, THIS, OTHER and any LCA trees) all satisfy this interface;
// the merge engine never mutates a Tree.
type Tree interface {
	// Kind returns the kind at path, or ErrNotFound.
	Kind(path string) (object.Kind, error)
	// FileHash returns the content hash of the file at path. Non-file
	// kinds return the empty hash.
	FileHash(path string) (object.Hash, error)
	// FileBytes returns the raw content of the file at path.
	FileBytes(path string) ([]byte, error)
	// FileLines returns the content of the file at path split into lines
	// without terminators.
	FileLines(path string) ([]string, error)
	// SymlinkTarget returns the target of the symlink at path.
	SymlinkTarget(path string) (string, error)
	// IsExecutable reports the executable bit of the file at path.
	IsExecutable(path string) (bool, error)
	// ID2Path maps a FileID to its current path, or ErrNoSuchID.
	ID2Path(id object.FileID) (string, error)
	// Path2ID maps a path to its FileID; ok is false if unversioned.
	Path2ID(path string) (id object.FileID, ok bool)
	// HasID reports whether id is versioned in this tree.
	HasID(id object.FileID) bool
	// Entry returns the metadata snapshot for id, or NoneEntry.
	Entry(id object.FileID) *Entry
	// IterEntriesByDir enumerates (path, id, entry) in directory-block
	// order: a directory's entry before any of its children, siblings
	// ordered by name. If specific is non-nil only those paths (and, for
	// directories, nothing beneath them) are yielded.
	IterEntriesByDir(specific []string) []PathEntry
	// IterChanges compares this tree (old) against other (new) and yields
	// one Change per FileID whose state differs.
	IterChanges(other Tree) []Change
}

// Change describes how one FileID differs between two trees. A nil entry
// pointer means the id is absent on that side; the corresponding path is
// then meaningless.
type Change struct {
	FileID         object.FileID
	ChangedContent bool
	OldPath        string
	NewPath        string
	OldEntry       *Entry
	NewEntry       *Entry
	Copied         bool
}

// MustPath returns the path of id in t, panicking on lookup failure.
// Callers use it only where the id is known to be present; a miss means
// corrupt input, not a recoverable condition.
func MustPath(t Tree, id object.FileID) string {
	p, err := t.ID2Path(id)
	if err != nil {
		panic(fmt.Sprintf("tree: id %q has no path: %v", id, err))
	}
	return p
}
