package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/breezy-team/gomerge/pkg/config"
	"github.com/breezy-team/gomerge/pkg/object"
	"github.com/breezy-team/gomerge/pkg/tree"
)

func writeTestFile(t *testing.T, root, rel string, data string, mode os.FileMode) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(data), mode); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(full, mode); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDirTree(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "a", "alpha\n", 0o644)
	writeTestFile(t, root, "dir/b", "beta\n", 0o755)
	writeTestFile(t, root, config.ControlDir+"/config.toml", "algorithm = \"weave\"\n", 0o644)

	mt, err := loadDirTree(root)
	if err != nil {
		t.Fatalf("loadDirTree: %v", err)
	}
	data, err := mt.FileBytes("a")
	if err != nil || string(data) != "alpha\n" {
		t.Fatalf("a = %q, %v", data, err)
	}
	if exec, _ := mt.IsExecutable("dir/b"); !exec {
		t.Fatal("executable bit not captured")
	}
	if id, _ := mt.Path2ID("dir/b"); id != object.FileID("path:dir/b") {
		t.Fatalf("id = %q", id)
	}
	// The control directory never enters the snapshot.
	if _, ok := mt.Path2ID(config.ControlDir); ok {
		t.Fatal("control directory leaked into the tree")
	}
	if _, ok := mt.Path2ID(config.ControlDir + "/config.toml"); ok {
		t.Fatal("control file leaked into the tree")
	}
}

func TestWriteDirTreeSweepsStale(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "gone", "stale\n", 0o644)
	writeTestFile(t, root, "olddir/leftover", "stale\n", 0o644)
	writeTestFile(t, root, config.ControlDir+"/state", "keep\n", 0o644)

	mt := tree.NewMemTree()
	if err := mt.AddDir("d", "d-id"); err != nil {
		t.Fatal(err)
	}
	if err := mt.AddFile("d/f", "f-id", []byte("fresh\n"), true); err != nil {
		t.Fatal(err)
	}

	if err := writeDirTree(root, mt); err != nil {
		t.Fatalf("writeDirTree: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "d", "f"))
	if err != nil || string(data) != "fresh\n" {
		t.Fatalf("d/f = %q, %v", data, err)
	}
	info, err := os.Stat(filepath.Join(root, "d", "f"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&0o111 == 0 {
		t.Fatal("executable bit not written")
	}
	if _, err := os.Stat(filepath.Join(root, "gone")); !os.IsNotExist(err) {
		t.Fatal("stale file survived the sweep")
	}
	if _, err := os.Stat(filepath.Join(root, "olddir")); !os.IsNotExist(err) {
		t.Fatal("stale directory survived the sweep")
	}
	if _, err := os.Stat(filepath.Join(root, config.ControlDir, "state")); err != nil {
		t.Fatalf("control directory swept: %v", err)
	}
}

func TestLoadWriteRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeTestFile(t, src, "x", "one\n", 0o644)
	writeTestFile(t, src, "sub/y", "two\n", 0o644)

	mt, err := loadDirTree(src)
	if err != nil {
		t.Fatal(err)
	}
	dst := t.TempDir()
	if err := writeDirTree(dst, mt); err != nil {
		t.Fatal(err)
	}
	back, err := loadDirTree(dst)
	if err != nil {
		t.Fatal(err)
	}
	if changes := mt.IterChanges(back); len(changes) != 0 {
		t.Fatalf("round trip changed the tree: %v", changes)
	}
}
