package merge

import (
	"errors"
	"strings"
	"testing"

	"github.com/breezy-team/gomerge/pkg/conflicts"
	"github.com/breezy-team/gomerge/pkg/object"
	"github.com/breezy-team/gomerge/pkg/tree"
	"github.com/breezy-team/gomerge/pkg/worktree"
)

func newTestWT(t *testing.T, this *tree.MemTree) *worktree.WorkTree {
	t.Helper()
	wt, err := worktree.Open(t.TempDir(), this)
	if err != nil {
		t.Fatalf("open worktree: %v", err)
	}
	t.Cleanup(func() { wt.Close() })
	return wt
}

func addFile(t *testing.T, tr *tree.MemTree, path string, id object.FileID, content string) {
	t.Helper()
	if err := tr.AddFile(path, id, []byte(content), false); err != nil {
		t.Fatalf("add %s: %v", path, err)
	}
}

func runMerge(t *testing.T, this, base, other *tree.MemTree, opts Options) (*worktree.WorkTree, conflicts.ConflictList) {
	t.Helper()
	wt := newTestWT(t, this)
	m, err := NewMerge3Merger(wt, wt.Tree(), base, other, opts)
	if err != nil {
		t.Fatalf("NewMerge3Merger: %v", err)
	}
	list, err := m.DoMerge()
	if err != nil {
		t.Fatalf("DoMerge: %v", err)
	}
	return wt, list
}

// TestCleanThreeWayAdd: OTHER adds a file BASE and THIS never had; the
// merge brings it in without conflicts.
func TestCleanThreeWayAdd(t *testing.T) {
	base := tree.NewMemTree()
	this := tree.NewMemTree()
	other := tree.NewMemTree()
	addFile(t, other, "f", "f-id", "other content\n")

	wt, list := runMerge(t, this, base, other, Options{})
	if len(list) != 0 {
		t.Fatalf("unexpected conflicts: %v", list)
	}
	data, err := wt.FileBytes("f")
	if err != nil {
		t.Fatalf("merged file missing: %v", err)
	}
	if string(data) != "other content\n" {
		t.Fatalf("merged content = %q", data)
	}
	if id, ok := wt.Path2ID("f"); !ok || id != "f-id" {
		t.Fatalf("merged file id = %q, %v", id, ok)
	}
}

// TestGenuineTextConflict checks marker order and the three sibling
// files for a both-sides-appended conflict.
func TestGenuineTextConflict(t *testing.T) {
	base := tree.NewMemTree()
	addFile(t, base, "f", "f-id", "line1\n")
	this := tree.NewMemTree()
	addFile(t, this, "f", "f-id", "line1\nfeature A\n")
	other := tree.NewMemTree()
	addFile(t, other, "f", "f-id", "line1\nfeature B\n")

	wt, list := runMerge(t, this, base, other, Options{})
	if len(list) != 1 {
		t.Fatalf("want exactly one conflict, got %v", list)
	}
	c := list[0]
	if c.Kind != conflicts.KindText || c.Path != "f" {
		t.Fatalf("conflict = %+v, want text conflict at f", c)
	}

	data, err := wt.FileBytes("f")
	if err != nil {
		t.Fatalf("read merged file: %v", err)
	}
	text := string(data)
	order := []string{"<<<<<<< TREE", "feature A", "=======", "feature B", ">>>>>>> MERGE-SOURCE"}
	pos := 0
	for _, want := range order {
		idx := strings.Index(text[pos:], want)
		if idx < 0 {
			t.Fatalf("marker %q missing or out of order in:\n%s", want, text)
		}
		pos += idx + len(want)
	}

	for _, sib := range []string{"f.BASE", "f.THIS", "f.OTHER"} {
		if !wt.HasPath(sib) {
			t.Errorf("sibling %s not written", sib)
		}
	}
	if sibs := c.AssociatedFilenames(); len(sibs) != 3 {
		t.Errorf("AssociatedFilenames = %v", sibs)
	}
}

// TestRenameRenamePathConflict: THIS and OTHER renamed the same file to
// different names. OTHER's placement is tentatively used while the
// conflict records both proposals.
func TestRenameRenamePathConflict(t *testing.T) {
	base := tree.NewMemTree()
	addFile(t, base, "file", "f-id", "content\n")
	this := base.Clone()
	if err := this.Rename("file", "new-file"); err != nil {
		t.Fatal(err)
	}
	other := base.Clone()
	if err := other.Rename("file", "new-file2"); err != nil {
		t.Fatal(err)
	}

	wt, list := runMerge(t, this, base, other, Options{})
	if len(list) != 1 {
		t.Fatalf("want one conflict, got %v", list)
	}
	c := list[0]
	if c.Kind != conflicts.KindPath {
		t.Fatalf("conflict kind = %s, want path conflict", c.Kind)
	}
	if c.Path != "new-file2" || c.ConflictPath != "new-file" {
		t.Fatalf("paths = (%q, %q), want (new-file2, new-file)", c.Path, c.ConflictPath)
	}
	if c.FileID != "f-id" || c.ConflictFileID != "f-id" {
		t.Fatalf("ids = (%q, %q), want f-id on both sides", c.FileID, c.ConflictFileID)
	}
	if !wt.HasPath("new-file2") || wt.HasPath("new-file") || wt.HasPath("file") {
		t.Fatal("tentative placement should follow OTHER")
	}
}

// TestNoOpMergeIsIdempotent: merging with OTHER == BASE changes nothing
// and records nothing.
func TestNoOpMergeIsIdempotent(t *testing.T) {
	base := tree.NewMemTree()
	addFile(t, base, "a", "a-id", "alpha\n")
	addFile(t, base, "b", "b-id", "beta\n")
	this := base.Clone()
	if err := this.PutFile("a", []byte("local edit\n")); err != nil {
		t.Fatal(err)
	}

	wt, list := runMerge(t, this, base, base.Clone(), Options{})
	if len(list) != 0 {
		t.Fatalf("no-op merge produced conflicts: %v", list)
	}
	data, _ := wt.FileBytes("a")
	if string(data) != "local edit\n" {
		t.Fatalf("local edit lost: %q", data)
	}
	mod, err := wt.MergeModified()
	if err != nil {
		t.Fatal(err)
	}
	if len(mod) != 0 {
		t.Fatalf("no-op merge marked files modified: %v", mod)
	}
}

// TestExecutableBitNeverConflicts: the resolver sees all three
// executable values differ, but no executable conflict ever surfaces;
// OTHER's bit wins because OTHER still has a path.
func TestExecutableBitNeverConflicts(t *testing.T) {
	base := tree.NewMemTree() // file absent in base
	this := tree.NewMemTree()
	if err := this.AddFile("tool", "t-id", []byte("#!/bin/sh\n"), false); err != nil {
		t.Fatal(err)
	}
	other := tree.NewMemTree()
	if err := other.AddFile("tool", "t-id", []byte("#!/bin/sh\n"), true); err != nil {
		t.Fatal(err)
	}

	wt, list := runMerge(t, this, base, other, Options{})
	if len(list) != 0 {
		t.Fatalf("executable disagreement must not conflict, got %v", list)
	}
	exec, err := wt.IsExecutable("tool")
	if err != nil {
		t.Fatal(err)
	}
	if !exec {
		t.Fatal("OTHER's executable bit should win")
	}
}

// TestModifyDeleteContentsConflict: THIS edited what OTHER deleted. The
// edit stays in place, a contents conflict is recorded, and only a .BASE
// sibling appears (OTHER has nothing to dump).
func TestModifyDeleteContentsConflict(t *testing.T) {
	base := tree.NewMemTree()
	addFile(t, base, "f", "f-id", "original\n")
	this := base.Clone()
	if err := this.PutFile("f", []byte("edited\n")); err != nil {
		t.Fatal(err)
	}
	other := base.Clone()
	if err := other.Delete("f"); err != nil {
		t.Fatal(err)
	}

	wt, list := runMerge(t, this, base, other, Options{})
	if len(list) != 1 || list[0].Kind != conflicts.KindContents {
		t.Fatalf("want one contents conflict, got %v", list)
	}
	data, err := wt.FileBytes("f")
	if err != nil || string(data) != "edited\n" {
		t.Fatalf("THIS content should stay: %q, %v", data, err)
	}
	if !wt.HasPath("f.BASE") {
		t.Error("f.BASE sibling not written")
	}
	if wt.HasPath("f.OTHER") {
		t.Error("f.OTHER should not exist for a deletion")
	}
}

// TestOtherDeleteCleanlyApplies: OTHER deleted what THIS left alone.
func TestOtherDeleteCleanlyApplies(t *testing.T) {
	base := tree.NewMemTree()
	addFile(t, base, "f", "f-id", "original\n")
	this := base.Clone()
	other := base.Clone()
	if err := other.Delete("f"); err != nil {
		t.Fatal(err)
	}

	wt, list := runMerge(t, this, base, other, Options{})
	if len(list) != 0 {
		t.Fatalf("clean delete produced conflicts: %v", list)
	}
	if wt.HasPath("f") {
		t.Fatal("f should be gone")
	}
}

// TestAmbiguousCleanMerge: both sides made the identical edit.
func TestAmbiguousCleanMerge(t *testing.T) {
	base := tree.NewMemTree()
	addFile(t, base, "f", "f-id", "old\n")
	this := base.Clone()
	if err := this.PutFile("f", []byte("new\n")); err != nil {
		t.Fatal(err)
	}
	other := base.Clone()
	if err := other.PutFile("f", []byte("new\n")); err != nil {
		t.Fatal(err)
	}

	wt, list := runMerge(t, this, base, other, Options{})
	if len(list) != 0 {
		t.Fatalf("identical edits must merge cleanly, got %v", list)
	}
	data, _ := wt.FileBytes("f")
	if string(data) != "new\n" {
		t.Fatalf("content = %q", data)
	}
}

// TestMergeModifiedRecorded: a clean OTHER-side edit is tracked in the
// merge-modified map with the post-merge hash.
func TestMergeModifiedRecorded(t *testing.T) {
	base := tree.NewMemTree()
	addFile(t, base, "f", "f-id", "old\n")
	this := base.Clone()
	other := base.Clone()
	if err := other.PutFile("f", []byte("new\n")); err != nil {
		t.Fatal(err)
	}

	wt, list := runMerge(t, this, base, other, Options{})
	if len(list) != 0 {
		t.Fatalf("unexpected conflicts: %v", list)
	}
	mod, err := wt.MergeModified()
	if err != nil {
		t.Fatal(err)
	}
	h, ok := mod["f-id"]
	if !ok {
		t.Fatal("f-id missing from merge-modified map")
	}
	want, _ := wt.FileHash("f")
	if h != want {
		t.Fatalf("recorded hash %s != current %s", h, want)
	}
}

func TestConfigurationErrors(t *testing.T) {
	wt := newTestWT(t, tree.NewMemTree())
	empty := tree.NewMemTree()

	_, err := NewMerge3Merger(wt, wt.Tree(), empty, empty, Options{
		ShowBase:  true,
		Reprocess: true,
	})
	if !errors.Is(err, ErrCannotReprocessAndShowBase) {
		t.Fatalf("err = %v, want ErrCannotReprocessAndShowBase", err)
	}

	_, err = NewMerge3Merger(wt, wt.Tree(), empty, empty, Options{
		Algorithm:         AlgorithmWeave,
		ReverseCherrypick: true,
	})
	if !errors.Is(err, ErrCannotReverseCherrypick) {
		t.Fatalf("err = %v, want ErrCannotReverseCherrypick", err)
	}

	_, err = NewMerge3Merger(wt, wt.Tree(), empty, empty, Options{
		Algorithm: AlgorithmWeave,
		ShowBase:  true,
	})
	if err == nil {
		t.Fatal("weave with show-base should be rejected")
	}
}

// TestBinaryContentDegradesToContentsConflict: binary files decline the
// text merge and surface as a contents conflict instead of garbage
// markers.
func TestBinaryContentDegradesToContentsConflict(t *testing.T) {
	base := tree.NewMemTree()
	addFile(t, base, "blob", "b-id", "a\x00b")
	this := base.Clone()
	if err := this.PutFile("blob", []byte("c\x00d")); err != nil {
		t.Fatal(err)
	}
	other := base.Clone()
	if err := other.PutFile("blob", []byte("e\x00f")); err != nil {
		t.Fatal(err)
	}

	wt, list := runMerge(t, this, base, other, Options{})
	if len(list) != 1 || list[0].Kind != conflicts.KindContents {
		t.Fatalf("want one contents conflict, got %v", list)
	}
	data, _ := wt.FileBytes("blob")
	if string(data) != "c\x00d" {
		t.Fatalf("THIS content should stay for binary conflicts: %q", data)
	}
	if !wt.HasPath("blob.BASE") || !wt.HasPath("blob.OTHER") {
		t.Error("binary contents conflict should dump .BASE and .OTHER")
	}
}

// TestDoMergeHoldsWriteLock: content hooks run while the merge is being
// computed and may stage working-tree changes, so the write lock has to
// be held for the whole merge, not just the apply.
func TestDoMergeHoldsWriteLock(t *testing.T) {
	base := tree.NewMemTree()
	this := tree.NewMemTree()
	other := tree.NewMemTree()
	addFile(t, other, "f", "f-id", "content\n")

	wt := newTestWT(t, this)
	m, err := NewMerge3Merger(wt, wt.Tree(), base, other, Options{})
	if err != nil {
		t.Fatalf("NewMerge3Merger: %v", err)
	}
	hookRan := false
	var hookErr error
	m.AddContentMerger(ContentMergerFunc(func(m *Merge3Merger, p *MergeHookParams) (HookStatus, []string, error) {
		hookRan = true
		hookErr = m.wt.Unversion("")
		return HookNotApplicable, nil, nil
	}))
	if _, err := m.DoMerge(); err != nil {
		t.Fatalf("DoMerge: %v", err)
	}
	if !hookRan {
		t.Fatal("content hook never ran")
	}
	if hookErr != nil {
		t.Fatalf("working tree not write-locked during merge computation: %v", hookErr)
	}
	// And the lock is free again once the merge is done.
	unlock := wt.LockWrite()
	unlock()
}
