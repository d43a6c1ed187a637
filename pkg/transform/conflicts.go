package transform

import (
	"fmt"

	"github.com/breezy-team/gomerge/pkg/conflicts"
	"github.com/breezy-team/gomerge/pkg/object"
)

// detectFSConflicts scans the staged state for filesystem-level
// inconsistencies. With record set, each finding is appended to the raw
// conflict list; otherwise the findings are only returned, leaving the
// transform untouched (Apply's noConflicts probe).
func (t *Transform) detectFSConflicts(record bool) []RawConflict {
	var found []RawConflict
	found = append(found, t.duplicateFinalPaths()...)
	found = append(found, t.duplicateFileIDs()...)
	found = append(found, t.parentLoops()...)
	found = append(found, t.parentKindProblems()...)
	if record {
		t.raw = append(t.raw, found...)
	}
	return found
}

// ResolveConflicts detects filesystem conflicts, applies the automatic
// resolution for each handled kind, and records the raw conflicts so
// CookConflicts can report what happened. Resolution may itself create
// new placements (diversion directories, recreated parents), so
// detection runs to a fixed point with a small iteration cap.
func (t *Transform) ResolveConflicts() {
	for pass := 0; pass < 10; pass++ {
		found := t.detectFSConflicts(false)
		if len(found) == 0 {
			return
		}
		for i := range found {
			t.resolveOne(&found[i])
		}
		t.raw = append(t.raw, found...)
	}
}

func (t *Transform) resolveOne(rc *RawConflict) {
	switch rc.Kind {
	case conflicts.KindDuplicateEntry:
		// The later arrival steps aside under a .moved name.
		loser := rc.Second
		name := t.FinalName(loser) + ".moved"
		t.AdjustPath(name, t.FinalParent(loser), loser)
		rc.Action = fmt.Sprintf("Moved existing file to %s", t.FinalPath(loser))
	case conflicts.KindDuplicateID:
		t.Unversion(rc.Second)
		rc.Action = "Unversioned existing file"
	case conflicts.KindParentLoop:
		// Undo the placement that closed the cycle.
		e := t.entry(rc.TransID)
		if e.hasExisting {
			e.placed = false
		} else {
			t.AdjustPath(t.FinalName(rc.TransID), RootTrans, rc.TransID)
		}
		rc.Action = "Cancelled move"
	case conflicts.KindMissingParent:
		t.CreateDir(rc.TransID)
		rc.Action = "Created directory"
	case conflicts.KindDeletingParent:
		// A child still needs the directory: keep it, versioning included.
		e := t.entry(rc.TransID)
		e.deleteContent = false
		e.removed = false
		if e.fileID != "" {
			e.versioned = true
		}
		rc.Action = "Not deleting"
	case conflicts.KindUnversionedParent:
		if t.FileID(rc.TransID) == "" {
			t.Version(object.FileID(fmt.Sprintf("added-%d", rc.TransID)), rc.TransID)
		} else {
			t.entry(rc.TransID).versioned = true
		}
		rc.Action = "Versioned directory"
	case conflicts.KindNonDirectoryParent:
		// Divert children to a fresh sibling directory named after the
		// non-directory parent, with a .new suffix.
		parent := rc.TransID
		div := t.NewEntry()
		t.AdjustPath(t.FinalName(parent)+".new", t.FinalParent(parent), div)
		t.CreateDir(div)
		for _, id := range t.liveIDs() {
			if id != parent && id != div && t.FinalParent(id) == parent {
				t.AdjustPath(t.FinalName(id), div, id)
			}
		}
		rc.TransID = div
		rc.Action = "Created directory"
	}
}

func (t *Transform) duplicateFinalPaths() []RawConflict {
	var out []RawConflict
	seen := make(map[string]TransID)
	for _, id := range t.liveIDs() {
		if id == RootTrans || !t.present(id) {
			continue
		}
		path := t.FinalPath(id)
		first, ok := seen[path]
		if !ok {
			seen[path] = id
			continue
		}
		out = append(out, RawConflict{
			Kind:    conflicts.KindDuplicateEntry,
			TransID: first,
			Second:  id,
		})
	}
	return out
}

func (t *Transform) duplicateFileIDs() []RawConflict {
	var out []RawConflict
	seen := make(map[object.FileID]TransID)
	for _, id := range t.liveIDs() {
		e := t.entry(id)
		if !e.versioned || e.fileID == "" || !t.present(id) {
			continue
		}
		first, ok := seen[e.fileID]
		if !ok {
			seen[e.fileID] = id
			continue
		}
		out = append(out, RawConflict{
			Kind:    conflicts.KindDuplicateID,
			TransID: first,
			Second:  id,
		})
	}
	return out
}

func (t *Transform) parentLoops() []RawConflict {
	var out []RawConflict
	for _, id := range t.liveIDs() {
		if id == RootTrans || !t.entry(id).placed {
			continue
		}
		cur := t.FinalParent(id)
		for steps := 0; steps <= len(t.arena); steps++ {
			if cur == RootTrans {
				break
			}
			if cur == id {
				out = append(out, RawConflict{
					Kind:    conflicts.KindParentLoop,
					TransID: id,
					Second:  t.FinalParent(id),
				})
				break
			}
			cur = t.FinalParent(cur)
		}
	}
	return out
}

// parentKindProblems finds parents that are missing, being deleted, not
// versioned, or not directories while a present child depends on them.
func (t *Transform) parentKindProblems() []RawConflict {
	var out []RawConflict
	reported := make(map[TransID]conflicts.Kind)
	report := func(kind conflicts.Kind, parent TransID) {
		if reported[parent] == kind {
			return
		}
		reported[parent] = kind
		out = append(out, RawConflict{Kind: kind, TransID: parent})
	}
	for _, id := range t.liveIDs() {
		if id == RootTrans || !t.present(id) {
			continue
		}
		parent := t.FinalParent(id)
		if parent == RootTrans {
			continue
		}
		pe := t.entry(parent)
		switch {
		case !t.present(parent) && pe.hasExisting:
			report(conflicts.KindDeletingParent, parent)
		case !t.present(parent):
			report(conflicts.KindMissingParent, parent)
		case t.FinalKind(parent) != object.KindDirectory:
			report(conflicts.KindNonDirectoryParent, parent)
		case !pe.versioned && t.entry(id).versioned:
			report(conflicts.KindUnversionedParent, parent)
		}
	}
	return out
}
