package worktree

import (
	"errors"
	"testing"

	"github.com/breezy-team/gomerge/pkg/conflicts"
	"github.com/breezy-team/gomerge/pkg/object"
	"github.com/breezy-team/gomerge/pkg/tree"
)

func openTestTree(t *testing.T, initial *tree.MemTree) *WorkTree {
	t.Helper()
	wt, err := Open(t.TempDir(), initial)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { wt.Close() })
	return wt
}

func TestOpenClonesInitialTree(t *testing.T) {
	initial := tree.NewMemTree()
	if err := initial.AddFile("f", "f-id", []byte("v1\n"), false); err != nil {
		t.Fatal(err)
	}
	wt := openTestTree(t, initial)

	unlock := wt.LockWrite()
	if err := wt.WriteFile("f", []byte("v2\n"), false, ""); err != nil {
		t.Fatal(err)
	}
	unlock()

	// The caller's tree must not see the mutation.
	data, err := initial.FileBytes("f")
	if err != nil || string(data) != "v1\n" {
		t.Fatalf("initial tree changed: %q, %v", data, err)
	}
	data, _ = wt.FileBytes("f")
	if string(data) != "v2\n" {
		t.Fatalf("worktree content = %q", data)
	}
}

func TestMutationsRequireWriteLock(t *testing.T) {
	initial := tree.NewMemTree()
	if err := initial.AddFile("f", "f-id", []byte("x\n"), false); err != nil {
		t.Fatal(err)
	}
	wt := openTestTree(t, initial)

	if err := wt.Rename("f", "g"); !errors.Is(err, ErrNotLocked) {
		t.Fatalf("Rename unlocked: %v", err)
	}
	if err := wt.Remove("f"); !errors.Is(err, ErrNotLocked) {
		t.Fatalf("Remove unlocked: %v", err)
	}
	if err := wt.WriteFile("g", nil, false, ""); !errors.Is(err, ErrNotLocked) {
		t.Fatalf("WriteFile unlocked: %v", err)
	}
	if err := wt.SetConflicts(nil); !errors.Is(err, ErrNotLocked) {
		t.Fatalf("SetConflicts unlocked: %v", err)
	}

	unlock := wt.LockWrite()
	if err := wt.Rename("f", "g"); err != nil {
		t.Fatalf("Rename locked: %v", err)
	}
	unlock()
	if err := wt.Rename("g", "f"); !errors.Is(err, ErrNotLocked) {
		t.Fatal("lock must not survive release")
	}
}

func TestWriteTargetSurface(t *testing.T) {
	wt := openTestTree(t, nil)
	unlock := wt.LockWrite()
	defer unlock()

	if err := wt.EnsureDir("d", "d-id"); err != nil {
		t.Fatal(err)
	}
	// Idempotent on an existing directory.
	if err := wt.EnsureDir("d", "other-id"); err != nil {
		t.Fatal(err)
	}
	if id, _ := wt.Path2ID("d"); id != "d-id" {
		t.Fatalf("dir id = %q", id)
	}

	if err := wt.WriteFile("d/f", []byte("data\n"), true, "f-id"); err != nil {
		t.Fatal(err)
	}
	if exec, _ := wt.IsExecutable("d/f"); !exec {
		t.Fatal("executable bit lost")
	}
	// Replacing keeps the id but swaps content and bit.
	if err := wt.WriteFile("d/f", []byte("new\n"), false, "ignored-id"); err != nil {
		t.Fatal(err)
	}
	if id, _ := wt.Path2ID("d/f"); id != "f-id" {
		t.Fatalf("replacement changed id to %q", id)
	}
	if exec, _ := wt.IsExecutable("d/f"); exec {
		t.Fatal("executable bit not cleared")
	}

	if err := wt.WriteSymlink("d/l", "f", "l-id"); err != nil {
		t.Fatal(err)
	}
	if target, err := wt.SymlinkTarget("d/l"); err != nil || target != "f" {
		t.Fatalf("symlink target = %q, %v", target, err)
	}

	// Ids are synthesized when the transform has none.
	if err := wt.WriteFile("anon", []byte("x\n"), false, ""); err != nil {
		t.Fatal(err)
	}
	if id, ok := wt.Path2ID("anon"); !ok || id != "file-anon" {
		t.Fatalf("synthesized id = %q", id)
	}
}

func TestRemoveIfPresent(t *testing.T) {
	wt := openTestTree(t, nil)
	unlock := wt.LockWrite()
	defer unlock()
	if err := wt.RemoveIfPresent("ghost"); err != nil {
		t.Fatalf("missing path must not error: %v", err)
	}
	if err := wt.WriteFile("f", []byte("x\n"), false, ""); err != nil {
		t.Fatal(err)
	}
	if err := wt.RemoveIfPresent("f"); err != nil {
		t.Fatal(err)
	}
	if wt.HasPath("f") {
		t.Fatal("f still present")
	}
}

func TestConflictsPersistAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	initial := tree.NewMemTree()

	wt, err := Open(dir, initial)
	if err != nil {
		t.Fatal(err)
	}
	list := conflicts.ConflictList{
		{Kind: conflicts.KindText, Path: "f", FileID: "f-id"},
		{Kind: conflicts.KindPath, Path: "b", ConflictPath: "a", FileID: "p-id", ConflictFileID: "p-id"},
	}
	unlock := wt.LockWrite()
	if err := wt.SetConflicts(list); err != nil {
		t.Fatal(err)
	}
	unlock()
	if err := wt.Close(); err != nil {
		t.Fatal(err)
	}

	wt2, err := Open(dir, initial)
	if err != nil {
		t.Fatal(err)
	}
	defer wt2.Close()
	back, err := wt2.Conflicts()
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 2 {
		t.Fatalf("conflicts = %v", back)
	}
	for i := range list {
		if !back[i].Equal(list[i]) {
			t.Errorf("conflict %d changed: %+v vs %+v", i, back[i], list[i])
		}
	}
}

func TestConflictsEmptyByDefault(t *testing.T) {
	wt := openTestTree(t, nil)
	list, err := wt.Conflicts()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("fresh tree has conflicts: %v", list)
	}
}

func TestSetConflictsReplaces(t *testing.T) {
	wt := openTestTree(t, nil)
	unlock := wt.LockWrite()
	defer unlock()

	first := conflicts.ConflictList{{Kind: conflicts.KindText, Path: "a"}}
	if err := wt.SetConflicts(first); err != nil {
		t.Fatal(err)
	}
	if err := wt.SetConflicts(nil); err != nil {
		t.Fatal(err)
	}
	list, err := wt.Conflicts()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("cleared list came back as %v", list)
	}
}

func TestMergeModifiedReplacesStaleEntries(t *testing.T) {
	wt := openTestTree(t, nil)
	unlock := wt.LockWrite()
	defer unlock()

	if err := wt.SetMergeModified(map[object.FileID]object.Hash{
		"old-1": "h1", "old-2": "h2",
	}); err != nil {
		t.Fatal(err)
	}
	if err := wt.SetMergeModified(map[object.FileID]object.Hash{
		"new": "h3",
	}); err != nil {
		t.Fatal(err)
	}
	got, err := wt.MergeModified()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got["new"] != "h3" {
		t.Fatalf("merge-modified = %v", got)
	}
}

func TestMergeModifiedPersists(t *testing.T) {
	dir := t.TempDir()
	wt, err := Open(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	unlock := wt.LockWrite()
	if err := wt.SetMergeModified(map[object.FileID]object.Hash{"f-id": "abc"}); err != nil {
		t.Fatal(err)
	}
	unlock()
	wt.Close()

	wt2, err := Open(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer wt2.Close()
	got, err := wt2.MergeModified()
	if err != nil {
		t.Fatal(err)
	}
	if got["f-id"] != "abc" {
		t.Fatalf("merge-modified = %v", got)
	}
}
