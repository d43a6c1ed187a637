// Package transform stages a batch of tree mutations — placements,
// content creation, deletions, versioning — against a base tree, detects
// the filesystem-level conflicts the combined batch would cause, and
// applies everything through a write target as a single unit. Handles
// into the staged state are transient ids valid only for one transform's
// lifetime, allocated densely from an arena.
package transform

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/breezy-team/gomerge/pkg/conflicts"
	"github.com/breezy-team/gomerge/pkg/object"
	"github.com/breezy-team/gomerge/pkg/tree"
)

// TransID is a transform-local handle. The root directory is always
// RootTrans; zero is never a valid id of anything else.
type TransID int

// RootTrans is the transform id of the tree root.
const RootTrans TransID = 0

// ErrWouldConflict reports that Apply(noConflicts=true) found unresolved
// filesystem conflicts.
var ErrWouldConflict = errors.New("transform has unresolved conflicts")

// WriteTarget receives the transform's effects during Apply.
type WriteTarget interface {
	EnsureDir(path string, id object.FileID) error
	WriteFile(path string, data []byte, executable bool, id object.FileID) error
	WriteSymlink(path, target string, id object.FileID) error
	Rename(oldPath, newPath string) error
	Remove(path string) error
	SetExecutable(path string, executable bool) error
	Unversion(path string) error
}

type createKind int

const (
	createNone createKind = iota
	createFile
	createDir
	createSymlink
)

type entry struct {
	existingPath string
	hasExisting  bool

	fileID    object.FileID
	versioned bool

	newName   string
	newParent TransID
	placed    bool // AdjustPath called

	create        createKind
	data          []byte
	symlinkTarget string

	deleteContent bool
	removed       bool // final state: gone entirely

	execSet   bool
	execValue bool
}

// Transform stages mutations against base. It is single-use: after Apply
// or Discard every TransID it handed out is dead.
type Transform struct {
	base    tree.Tree
	arena   []*entry
	byPath  map[string]TransID
	byID    map[object.FileID]TransID
	applied bool

	raw []RawConflict
}

// RawConflict is a transform-relative conflict note. It carries trans
// ids, not paths; paths only stabilize once every adjustment is staged,
// so cooking happens after conflict detection has run.
type RawConflict struct {
	Kind    conflicts.Kind
	TransID TransID
	Second  TransID // counterpart, if any
	// Pre-resolution path proposals (path conflicts only).
	ThisPath, OtherPath string
	// What automatic resolution already did (handled kinds).
	Action string
}

// New starts a transform over base. base is the tree being transformed
// (the working tree's current state); it is only read.
func New(base tree.Tree) *Transform {
	t := &Transform{
		base:   base,
		byPath: make(map[string]TransID),
		byID:   make(map[object.FileID]TransID),
	}
	root := &entry{existingPath: "", hasExisting: true}
	if id, ok := base.Path2ID(""); ok {
		root.fileID = id
		root.versioned = true
	}
	t.arena = append(t.arena, root)
	t.byPath[""] = RootTrans
	if root.fileID != "" {
		t.byID[root.fileID] = RootTrans
	}
	return t
}

func (t *Transform) alloc(e *entry) TransID {
	t.arena = append(t.arena, e)
	return TransID(len(t.arena) - 1)
}

func (t *Transform) entry(id TransID) *entry {
	return t.arena[int(id)]
}

// TransIDForPath returns the id staging the entry at path in the base
// tree, allocating on first use.
func (t *Transform) TransIDForPath(path string) TransID {
	if id, ok := t.byPath[path]; ok {
		return id
	}
	e := &entry{existingPath: path, hasExisting: true}
	if fid, ok := t.base.Path2ID(path); ok {
		e.fileID = fid
		e.versioned = true
	}
	id := t.alloc(e)
	t.byPath[path] = id
	if e.fileID != "" {
		t.byID[e.fileID] = id
	}
	return id
}

// TransIDForFileID returns the id staging the entry with the given file
// id, whether or not the base tree has it yet.
func (t *Transform) TransIDForFileID(fid object.FileID) TransID {
	if id, ok := t.byID[fid]; ok {
		return id
	}
	if path, err := t.base.ID2Path(fid); err == nil {
		id := t.TransIDForPath(path)
		return id
	}
	id := t.alloc(&entry{fileID: fid})
	t.byID[fid] = id
	return id
}

// NewEntry allocates an id with no base-tree correspondence, for files
// the transform itself introduces (conflict siblings, diverted parents).
func (t *Transform) NewEntry() TransID {
	return t.alloc(&entry{})
}

// AdjustPath stages a placement: the entry will end up as name under
// parent.
func (t *Transform) AdjustPath(name string, parent, id TransID) {
	e := t.entry(id)
	e.newName = name
	e.newParent = parent
	e.placed = true
	e.removed = false
}

// CreateFile stages file content for id.
func (t *Transform) CreateFile(data []byte, id TransID) {
	e := t.entry(id)
	e.create = createFile
	e.data = append([]byte(nil), data...)
	e.deleteContent = false
}

// CreateDir stages a directory for id.
func (t *Transform) CreateDir(id TransID) {
	t.entry(id).create = createDir
}

// CreateSymlink stages a symlink for id.
func (t *Transform) CreateSymlink(target string, id TransID) {
	e := t.entry(id)
	e.create = createSymlink
	e.symlinkTarget = target
}

// DeleteContents stages removal of the entry's content; placement and
// versioning are untouched unless also changed.
func (t *Transform) DeleteContents(id TransID) {
	e := t.entry(id)
	e.deleteContent = true
	e.create = createNone
}

// Remove stages complete removal: content, placement and versioning.
func (t *Transform) Remove(id TransID) {
	e := t.entry(id)
	e.removed = true
	e.deleteContent = true
	e.versioned = false
}

// Version stages versioning the entry under fid.
func (t *Transform) Version(fid object.FileID, id TransID) {
	e := t.entry(id)
	e.fileID = fid
	e.versioned = true
	t.byID[fid] = id
}

// Unversion stages dropping the entry from version control while leaving
// any content in place.
func (t *Transform) Unversion(id TransID) {
	t.entry(id).versioned = false
}

// SetExecutability stages the executable bit.
func (t *Transform) SetExecutability(executable bool, id TransID) {
	e := t.entry(id)
	e.execSet = true
	e.execValue = executable
}

// FileID returns the file id the entry will be versioned under, if any.
func (t *Transform) FileID(id TransID) object.FileID {
	return t.entry(id).fileID
}

// FinalName returns the basename the entry will have after apply.
func (t *Transform) FinalName(id TransID) string {
	e := t.entry(id)
	if e.placed {
		return e.newName
	}
	if e.hasExisting {
		if i := strings.LastIndexByte(e.existingPath, '/'); i >= 0 {
			return e.existingPath[i+1:]
		}
		return e.existingPath
	}
	return ""
}

// FinalParent returns the trans id of the entry's parent after apply.
func (t *Transform) FinalParent(id TransID) TransID {
	e := t.entry(id)
	if e.placed {
		return e.newParent
	}
	if e.hasExisting && e.existingPath != "" {
		dir := ""
		if i := strings.LastIndexByte(e.existingPath, '/'); i >= 0 {
			dir = e.existingPath[:i]
		}
		return t.TransIDForPath(dir)
	}
	return RootTrans
}

// FinalKind returns the entry's kind after apply, KindAbsent if it ends
// up with no content.
func (t *Transform) FinalKind(id TransID) object.Kind {
	e := t.entry(id)
	switch e.create {
	case createFile:
		return object.KindFile
	case createDir:
		return object.KindDirectory
	case createSymlink:
		return object.KindSymlink
	}
	if e.deleteContent || e.removed || !e.hasExisting {
		return object.KindAbsent
	}
	kind, err := t.base.Kind(e.existingPath)
	if err != nil {
		return object.KindAbsent
	}
	return kind
}

// FinalPath resolves the path the entry will occupy after apply.
func (t *Transform) FinalPath(id TransID) string {
	if id == RootTrans {
		return ""
	}
	name := t.FinalName(id)
	parent := t.FinalParent(id)
	if parent == RootTrans {
		return name
	}
	// Guard against loops: bail out after arena-many steps.
	parentPath := ""
	cur := parent
	for depth := 0; depth <= len(t.arena); depth++ {
		if cur == RootTrans {
			break
		}
		seg := t.FinalName(cur)
		if parentPath == "" {
			parentPath = seg
		} else {
			parentPath = seg + "/" + parentPath
		}
		cur = t.FinalParent(cur)
	}
	if parentPath == "" {
		return name
	}
	return parentPath + "/" + name
}

// present reports whether the entry still exists after apply.
func (t *Transform) present(id TransID) bool {
	e := t.entry(id)
	if e.removed {
		return false
	}
	return e.hasExisting || e.create != createNone
}

// liveIDs returns every allocated trans id in allocation order.
func (t *Transform) liveIDs() []TransID {
	out := make([]TransID, 0, len(t.arena))
	for i := range t.arena {
		out = append(out, TransID(i))
	}
	return out
}

// RawConflicts returns the conflicts recorded so far (caller-recorded
// plus detection results).
func (t *Transform) RawConflicts() []RawConflict {
	return t.raw
}

// RecordConflict appends a caller-side raw conflict (path, contents and
// text conflicts come from the merge engine, not from detection).
func (t *Transform) RecordConflict(rc RawConflict) {
	t.raw = append(t.raw, rc)
}

// CookConflicts turns raw transform-relative conflicts into final typed
// conflicts with stable paths. Call only after ResolveConflicts, when
// every placement is final. Duplicate cooked conflicts collapse.
func (t *Transform) CookConflicts() conflicts.ConflictList {
	var cooked conflicts.ConflictList
	add := func(c *conflicts.Conflict) {
		if !cooked.Contains(c) {
			cooked = append(cooked, c)
		}
	}
	for _, rc := range t.raw {
		c := &conflicts.Conflict{
			Kind:   rc.Kind,
			Path:   t.FinalPath(rc.TransID),
			FileID: t.FileID(rc.TransID),
			Action: rc.Action,
		}
		switch rc.Kind {
		case conflicts.KindPath:
			// Path holds where the entry actually landed; the losing
			// proposal goes in ConflictPath.
			if rc.ThisPath != c.Path {
				c.ConflictPath = rc.ThisPath
			} else {
				c.ConflictPath = rc.OtherPath
			}
			c.ConflictFileID = c.FileID
		case conflicts.KindDuplicateEntry, conflicts.KindDuplicateID, conflicts.KindParentLoop:
			if rc.Second != 0 {
				c.ConflictPath = t.FinalPath(rc.Second)
				c.ConflictFileID = t.FileID(rc.Second)
			}
		}
		add(c)
	}
	cooked.Sort()
	return cooked
}

// ApplyResult reports what Apply touched.
type ApplyResult struct {
	ModifiedPaths []string
}

// Apply writes the staged state through target as one unit. With
// noConflicts set, any unresolved filesystem conflict aborts before the
// first write. Apply never partially executes its plan: all decisions
// are made before the first mutation. A transform that has applied (or
// been discarded) cannot be reused.
func (t *Transform) Apply(target WriteTarget, noConflicts bool) (*ApplyResult, error) {
	if t.applied {
		return nil, fmt.Errorf("transform: already applied")
	}
	if noConflicts {
		if n := len(t.detectFSConflicts(false)); n > 0 {
			return nil, fmt.Errorf("transform: %d conflicts: %w", n, ErrWouldConflict)
		}
	}

	type placement struct {
		id    TransID
		path  string
		depth int
	}

	var removals []placement  // existing entries that disappear
	var moves []placement     // existing entries changing path
	var creations []placement // entries gaining content
	var execs []placement
	var unversions []placement

	for _, id := range t.liveIDs() {
		e := t.entry(id)
		final := t.FinalPath(id)
		depth := strings.Count(final, "/")
		switch {
		case e.hasExisting && !t.present(id):
			removals = append(removals, placement{id, e.existingPath, strings.Count(e.existingPath, "/")})
		case e.hasExisting && e.create == createNone && final != e.existingPath:
			moves = append(moves, placement{id, final, depth})
		case e.hasExisting && e.create != createNone && final != e.existingPath:
			// Content is recreated at the final path; the old location
			// must still be vacated.
			removals = append(removals, placement{id, e.existingPath, strings.Count(e.existingPath, "/")})
		}
		if e.create != createNone {
			creations = append(creations, placement{id, final, depth})
		}
		if e.execSet {
			execs = append(execs, placement{id, final, depth})
		}
		if e.hasExisting && e.versioned == false && !e.removed && e.fileID != "" && t.present(id) {
			unversions = append(unversions, placement{id, final, depth})
		}
	}

	// Deepest first so children leave before their directories.
	sort.Slice(removals, func(i, j int) bool { return removals[i].depth > removals[j].depth })
	// Parents first so directories exist before their children arrive.
	sort.Slice(creations, func(i, j int) bool { return creations[i].depth < creations[j].depth })
	sort.Slice(moves, func(i, j int) bool { return moves[i].depth < moves[j].depth })

	var modified []string

	for _, p := range removals {
		if err := target.Remove(p.path); err != nil {
			return nil, fmt.Errorf("transform: remove %q: %w", p.path, err)
		}
		modified = append(modified, p.path)
	}

	// Two-phase rename through transient names, so swaps and
	// moves-into-moved-directories cannot collide.
	for i, p := range moves {
		tmp := fmt.Sprintf(".gomerge-tmp-%d", p.id)
		if err := target.Rename(t.entry(p.id).existingPath, tmp); err != nil {
			return nil, fmt.Errorf("transform: stage rename %q: %w", t.entry(p.id).existingPath, err)
		}
		moves[i].path = p.path // final destination unchanged; tmp implied
	}
	for _, p := range moves {
		tmp := fmt.Sprintf(".gomerge-tmp-%d", p.id)
		if err := target.Rename(tmp, p.path); err != nil {
			return nil, fmt.Errorf("transform: rename to %q: %w", p.path, err)
		}
		modified = append(modified, p.path)
	}

	for _, p := range creations {
		e := t.entry(p.id)
		var err error
		switch e.create {
		case createFile:
			err = target.WriteFile(p.path, e.data, e.execSet && e.execValue, e.fileID)
		case createDir:
			err = target.EnsureDir(p.path, e.fileID)
		case createSymlink:
			err = target.WriteSymlink(p.path, e.symlinkTarget, e.fileID)
		}
		if err != nil {
			return nil, fmt.Errorf("transform: create %q: %w", p.path, err)
		}
		modified = append(modified, p.path)
	}

	for _, p := range execs {
		if t.entry(p.id).create != createNone {
			continue // already written with the right bit
		}
		if err := target.SetExecutable(p.path, t.entry(p.id).execValue); err != nil {
			return nil, fmt.Errorf("transform: chmod %q: %w", p.path, err)
		}
		modified = append(modified, p.path)
	}

	for _, p := range unversions {
		if err := target.Unversion(p.path); err != nil {
			return nil, fmt.Errorf("transform: unversion %q: %w", p.path, err)
		}
	}

	t.applied = true
	sort.Strings(modified)
	return &ApplyResult{ModifiedPaths: dedupStrings(modified)}, nil
}

// Discard abandons the transform without touching the target.
func (t *Transform) Discard() {
	t.applied = true
	t.arena = nil
	t.byPath = nil
	t.byID = nil
}

func dedupStrings(in []string) []string {
	out := in[:0]
	var prev string
	for i, s := range in {
		if i > 0 && s == prev {
			continue
		}
		out = append(out, s)
		prev = s
	}
	return out
}
