package object

// Hash is a 64-character hex-encoded BLAKE2b-256 digest of file content.
type Hash string

// FileID is the stable identifier assigned to a versioned entity when it is
// first added. It survives renames and is never recycled for an unrelated
// entity. The empty FileID means "no entity".
type FileID string

// RevisionID identifies a revision in the history DAG.
type RevisionID string

// NullRevision is the sentinel parent of the first revision of a branch.
const NullRevision RevisionID = "null:"

// Kind classifies what a tree holds at a path.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
	KindSymlink   Kind = "symlink"
	KindTreeRef   Kind = "tree-reference"
	// KindAbsent marks a path that does not exist in a tree. It is the kind
	// of the none-entry sentinel, never of a real entry.
	KindAbsent Kind = "absent"
)

// RevisionKey is a sortable slice of revision ids, used where a deterministic
// order over a revision set is needed.
type RevisionKey []RevisionID

func (k RevisionKey) Len() int           { return len(k) }
func (k RevisionKey) Less(i, j int) bool { return k[i] < k[j] }
func (k RevisionKey) Swap(i, j int)      { k[i], k[j] = k[j], k[i] }
