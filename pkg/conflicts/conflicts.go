// Package conflicts defines the typed conflict taxonomy a merge can
// produce, its serialized record form, and the resolution actions
// (take-this / take-other / done / auto) that clear conflicts against a
// working tree.
package conflicts

import (
	"fmt"
	"strings"

	"github.com/breezy-team/gomerge/pkg/object"
)

// Kind is a conflict's type tag, stable across serialization.
type Kind string

const (
	KindPath               Kind = "path conflict"
	KindContents           Kind = "contents conflict"
	KindText               Kind = "text conflict"
	KindDuplicateID        Kind = "duplicate id"
	KindDuplicateEntry     Kind = "duplicate"
	KindParentLoop         Kind = "parent loop"
	KindUnversionedParent  Kind = "unversioned parent"
	KindMissingParent      Kind = "missing parent"
	KindDeletingParent     Kind = "deleting parent"
	KindNonDirectoryParent Kind = "non-directory parent"
)

// knownKinds is the closed taxonomy; records with any other type fail to
// load.
var knownKinds = map[Kind]struct{}{
	KindPath: {}, KindContents: {}, KindText: {},
	KindDuplicateID: {}, KindDuplicateEntry: {}, KindParentLoop: {},
	KindUnversionedParent: {}, KindMissingParent: {}, KindDeletingParent: {},
	KindNonDirectoryParent: {},
}

// handledKinds carry an action description: the merge already picked a
// resolution and the conflict records what was done.
var handledKinds = map[Kind]struct{}{
	KindDuplicateID: {}, KindDuplicateEntry: {}, KindParentLoop: {},
	KindUnversionedParent: {}, KindMissingParent: {}, KindDeletingParent: {},
	KindNonDirectoryParent: {},
}

// handledPathKinds additionally carry the conflicting counterpart.
var handledPathKinds = map[Kind]struct{}{
	KindDuplicateID: {}, KindDuplicateEntry: {}, KindParentLoop: {},
}

// Conflict is one unresolved (or auto-handled) merge outcome. The set of
// meaningful fields depends on Kind; unused fields stay zero.
type Conflict struct {
	Kind   Kind
	Path   string
	FileID object.FileID

	// Handled-path family and path/contents conflicts.
	ConflictPath   string
	ConflictFileID object.FileID

	// Human-readable description of what the merge already did
	// (handled kinds only).
	Action string
}

// IsHandled reports whether the merge already applied a resolution and
// this conflict merely records it.
func (c *Conflict) IsHandled() bool {
	_, ok := handledKinds[c.Kind]
	return ok
}

// Equal is the duplicate-detection contract: kind, path and file id,
// plus the counterpart fields for the handled-path family.
func (c *Conflict) Equal(o *Conflict) bool {
	if c.Kind != o.Kind || c.Path != o.Path || c.FileID != o.FileID {
		return false
	}
	if _, ok := handledPathKinds[c.Kind]; ok || c.Kind == KindPath || c.Kind == KindContents {
		return c.ConflictPath == o.ConflictPath && c.ConflictFileID == o.ConflictFileID
	}
	return true
}

// SortKey orders conflicts deterministically for listing: (path, kind),
// falling back to the counterpart path for conflicts whose primary
// identity is the conflicting pair.
func (c *Conflict) SortKey() (string, string) {
	if c.Path != "" {
		return c.Path, string(c.Kind)
	}
	return c.ConflictPath, string(c.Kind)
}

// Describe renders the conflict for humans. It never fails: absent
// fields render as empty strings.
func (c *Conflict) Describe() string {
	switch c.Kind {
	case KindPath:
		return fmt.Sprintf("Path conflict: %s / %s", c.Path, c.ConflictPath)
	case KindContents:
		return fmt.Sprintf("Contents conflict in %s", c.Path)
	case KindText:
		return fmt.Sprintf("Text conflict in %s", c.Path)
	case KindDuplicateID:
		return fmt.Sprintf("Conflict adding id to %s.  %s %s.", c.ConflictPath, strings.TrimSpace(c.Action), c.Path)
	case KindDuplicateEntry:
		return fmt.Sprintf("Conflict adding file %s.  %s %s.", c.ConflictPath, strings.TrimSpace(c.Action), c.Path)
	case KindParentLoop:
		return fmt.Sprintf("Conflict moving %s into %s.  %s.", c.Path, c.ConflictPath, strings.TrimSpace(c.Action))
	case KindUnversionedParent:
		return fmt.Sprintf("Conflict because %s is not versioned, but has versioned children.  %s.", c.Path, strings.TrimSpace(c.Action))
	case KindMissingParent:
		return fmt.Sprintf("Conflict adding files to %s.  %s.", c.Path, strings.TrimSpace(c.Action))
	case KindDeletingParent:
		return fmt.Sprintf("Conflict: can't delete %s because it is not empty.  %s.", c.Path, strings.TrimSpace(c.Action))
	case KindNonDirectoryParent:
		return fmt.Sprintf("Conflict: %s is not a directory, but has files in it.  %s.", c.Path, strings.TrimSpace(c.Action))
	default:
		return fmt.Sprintf("Unknown conflict in %s", c.Path)
	}
}

// AssociatedFilenames lists the sibling files the merge wrote to the
// working tree for this conflict; bulk cleanup removes them.
func (c *Conflict) AssociatedFilenames() []string {
	switch c.Kind {
	case KindText:
		return []string{c.Path + ".BASE", c.Path + ".THIS", c.Path + ".OTHER"}
	case KindContents:
		return []string{c.Path + ".BASE", c.Path + ".OTHER"}
	default:
		return nil
	}
}
