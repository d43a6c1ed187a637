package conflicts

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/breezy-team/gomerge/pkg/object"
)

// ErrUnsupportedAction reports a resolution action a conflict kind does
// not implement. In batch resolution the failure stays scoped to the one
// conflict it was attempted on.
var ErrUnsupportedAction = errors.New("conflict does not support this action")

// Resolver is the slice of working-tree behaviour resolution actions
// need. Missing files during cleanup are not errors: already-cleaned-up
// is a valid end state.
type Resolver interface {
	HasPath(path string) bool
	Kind(path string) (object.Kind, error)
	ReadFile(path string) ([]byte, error)
	Rename(oldPath, newPath string) error
	Remove(path string) error
	RemoveIfPresent(path string) error
}

// Do dispatches a named resolution action against the working tree.
// Recognized actions are "take_this", "take_other", "done" and, for text
// conflicts, "auto".
func (c *Conflict) Do(action string, wt Resolver) error {
	switch action {
	case "done":
		// Universal no-op: mark resolved without touching the tree.
		return nil
	case "take_this":
		return c.takeThis(wt)
	case "take_other":
		return c.takeOther(wt)
	case "auto":
		if c.Kind != KindText {
			return fmt.Errorf("%s %q: action %q: %w", c.Kind, c.Path, action, ErrUnsupportedAction)
		}
		return c.autoText(wt)
	default:
		return fmt.Errorf("%s %q: action %q: %w", c.Kind, c.Path, action, ErrUnsupportedAction)
	}
}

func (c *Conflict) takeThis(wt Resolver) error {
	switch c.Kind {
	case KindPath:
		// The merge tentatively used OTHER's placement; move the entry to
		// THIS's proposal.
		if c.ConflictPath != "" && wt.HasPath(c.Path) {
			return wt.Rename(c.Path, c.ConflictPath)
		}
		return nil
	case KindContents:
		if err := wt.RemoveIfPresent(c.Path + ".OTHER"); err != nil {
			return err
		}
		return wt.RemoveIfPresent(c.Path + ".BASE")
	case KindText:
		return c.takeTextSide(wt, ".THIS")
	case KindDuplicateID, KindUnversionedParent:
		return nil
	case KindDuplicateEntry:
		// Reclaim the original name for THIS's (moved-aside) entry.
		if err := wt.Remove(c.ConflictPath); err != nil {
			return err
		}
		return wt.Rename(c.Path, c.ConflictPath)
	case KindParentLoop:
		// Accept the proposed resolution.
		return nil
	case KindMissingParent:
		return wt.RemoveIfPresent(c.Path)
	case KindDeletingParent:
		return nil
	case KindNonDirectoryParent:
		return c.nonDirectoryTakeThis(wt)
	default:
		return fmt.Errorf("%s %q: take_this: %w", c.Kind, c.Path, ErrUnsupportedAction)
	}
}

func (c *Conflict) takeOther(wt Resolver) error {
	switch c.Kind {
	case KindPath:
		// Already at OTHER's placement.
		return nil
	case KindContents:
		if err := wt.RemoveIfPresent(c.Path + ".BASE"); err != nil {
			return err
		}
		if wt.HasPath(c.Path + ".OTHER") {
			if err := wt.RemoveIfPresent(c.Path); err != nil {
				return err
			}
			return wt.Rename(c.Path+".OTHER", c.Path)
		}
		return nil
	case KindText:
		return c.takeTextSide(wt, ".OTHER")
	case KindDuplicateID, KindUnversionedParent:
		return nil
	case KindDuplicateEntry:
		return wt.Remove(c.Path)
	case KindParentLoop:
		// Swap the two directories back to their pre-loop positions.
		tmp := c.Path + ".swap"
		if err := wt.Rename(c.Path, tmp); err != nil {
			return err
		}
		if err := wt.Rename(c.ConflictPath, c.Path); err != nil {
			return err
		}
		return wt.Rename(tmp, c.ConflictPath)
	case KindMissingParent:
		return nil
	case KindDeletingParent:
		return wt.RemoveIfPresent(c.Path)
	case KindNonDirectoryParent:
		return c.nonDirectoryTakeOther(wt)
	default:
		return fmt.Errorf("%s %q: take_other: %w", c.Kind, c.Path, ErrUnsupportedAction)
	}
}

// takeTextSide switches the named sibling file into place and removes
// the remaining siblings. Sibling availability is best-effort: weave
// merges only write .BASE, so a missing winner sibling just keeps the
// markered file in place for manual editing.
func (c *Conflict) takeTextSide(wt Resolver, suffix string) error {
	if wt.HasPath(c.Path + suffix) {
		if err := wt.RemoveIfPresent(c.Path); err != nil {
			return err
		}
		if err := wt.Rename(c.Path+suffix, c.Path); err != nil {
			return err
		}
	}
	for _, f := range c.AssociatedFilenames() {
		if err := wt.RemoveIfPresent(f); err != nil {
			return err
		}
	}
	return nil
}

// autoText resolves a text conflict only if the user already cleaned the
// file: it must still be a file and contain no residual markers.
func (c *Conflict) autoText(wt Resolver) error {
	kind, err := wt.Kind(c.Path)
	if err != nil {
		return fmt.Errorf("auto-resolve %q: %w", c.Path, err)
	}
	if kind != object.KindFile {
		return fmt.Errorf("auto-resolve %q: not a file", c.Path)
	}
	data, err := wt.ReadFile(c.Path)
	if err != nil {
		return fmt.Errorf("auto-resolve %q: %w", c.Path, err)
	}
	for _, marker := range []string{"<<<<<<< ", "=======\n", ">>>>>>> "} {
		if bytes.Contains(data, []byte(marker)) {
			return fmt.Errorf("auto-resolve %q: conflict markers remain", c.Path)
		}
	}
	for _, f := range c.AssociatedFilenames() {
		if err := wt.RemoveIfPresent(f); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conflict) nonDirectoryTakeThis(wt Resolver) error {
	if !strings.HasSuffix(c.Path, ".new") {
		return fmt.Errorf("%s %q: take_this: %w", c.Kind, c.Path, ErrUnsupportedAction)
	}
	// Drop the diverted .new entry; the original stays.
	return wt.RemoveIfPresent(c.Path)
}

func (c *Conflict) nonDirectoryTakeOther(wt Resolver) error {
	if !strings.HasSuffix(c.Path, ".new") {
		return fmt.Errorf("%s %q: take_other: %w", c.Kind, c.Path, ErrUnsupportedAction)
	}
	original := strings.TrimSuffix(c.Path, ".new")
	if err := wt.RemoveIfPresent(original); err != nil {
		return err
	}
	return wt.Rename(c.Path, original)
}
