package tree

import (
	"strings"

	"github.com/breezy-team/gomerge/pkg/object"
)

// Entry is one tree's view of one versioned path: its kind, placement
// (parent directory id plus basename) and content identity. Paths are not
// stored on the entry itself; they are derived from the parent chain and
// may change under rename while the FileID stays fixed.
type Entry struct {
	Kind          object.Kind
	ParentID      object.FileID // empty for the tree root
	Name          string        // basename; "" only for the root
	Executable    bool
	ContentHash   object.Hash // file kind only
	SymlinkTarget string      // symlink kind only
}

// NoneEntry is the sentinel for "this tree has no entry here". Absence is
// always represented by this one value so identity comparison works.
var NoneEntry = &Entry{Kind: object.KindAbsent}

// IsAbsent reports whether e is the absence sentinel (or an absent-kind
// snapshot loaded from elsewhere).
func (e *Entry) IsAbsent() bool {
	return e == nil || e.Kind == object.KindAbsent
}

// IsUnmodified reports whether e and other describe the same state:
// same kind, same placement, same content identity. Two absent entries
// are unmodified relative to each other.
func (e *Entry) IsUnmodified(other *Entry) bool {
	if e.IsAbsent() || other.IsAbsent() {
		return e.IsAbsent() && other.IsAbsent()
	}
	if e.Kind != other.Kind || e.ParentID != other.ParentID || e.Name != other.Name {
		return false
	}
	switch e.Kind {
	case object.KindFile:
		return e.ContentHash == other.ContentHash && e.Executable == other.Executable
	case object.KindSymlink:
		return e.SymlinkTarget == other.SymlinkTarget
	default:
		return true
	}
}

// PathEntry pairs a materialized path with the entry found there.
type PathEntry struct {
	Path  string
	ID    object.FileID
	Entry *Entry
}

// dirblockKey splits a path into its directory segments and basename.
// "a/b/c" -> (["a" "b"], "c"); "" (the root) -> ([], "").
func dirblockKey(path string) ([]string, string) {
	if path == "" {
		return nil, ""
	}
	segs := strings.Split(path, "/")
	return segs[:len(segs)-1], segs[len(segs)-1]
}

// CompareDirblock orders paths in directory-block order: all direct
// children of a directory sort together, before any grandchildren. The
// key is (dirname segments, basename) compared lexicographically, which
// matches the order IterEntriesByDir walks a tree in.
func CompareDirblock(a, b string) int {
	aDir, aBase := dirblockKey(a)
	bDir, bBase := dirblockKey(b)
	for i := 0; i < len(aDir) && i < len(bDir); i++ {
		if aDir[i] != bDir[i] {
			if aDir[i] < bDir[i] {
				return -1
			}
			return 1
		}
	}
	if len(aDir) != len(bDir) {
		if len(aDir) < len(bDir) {
			return -1
		}
		return 1
	}
	switch {
	case aBase < bBase:
		return -1
	case aBase > bBase:
		return 1
	}
	return 0
}
