package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/breezy-team/gomerge/pkg/config"
	"github.com/breezy-team/gomerge/pkg/object"
	"github.com/breezy-team/gomerge/pkg/tree"
)

// loadDirTree snapshots a directory into an in-memory tree. File ids are
// derived from relative paths so the same file in the base, this and
// other snapshots aligns by id; renames between snapshots consequently
// appear as delete-plus-add, which is the best a bare directory can
// express.
func loadDirTree(root string) (*tree.MemTree, error) {
	t := tree.NewMemTree()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if d.Name() == config.ControlDir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		id := object.FileID("path:" + rel)
		if d.IsDir() {
			return t.AddDir(rel, id)
		}
		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return t.AddSymlink(rel, id, target)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return t.AddFile(rel, id, data, info.Mode()&0o111 != 0)
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", root, err)
	}
	return t, nil
}

// writeDirTree materializes a tree's current state back into a real
// directory, removing files the tree no longer has. The control
// directory is left alone.
func writeDirTree(root string, t tree.Tree) error {
	keep := make(map[string]struct{})
	entries := t.IterEntriesByDir(nil)
	for _, pe := range entries {
		if pe.Path == "" {
			continue
		}
		keep[pe.Path] = struct{}{}
		full := filepath.Join(root, filepath.FromSlash(pe.Path))
		switch pe.Entry.Kind {
		case object.KindDirectory:
			if err := os.MkdirAll(full, 0o755); err != nil {
				return err
			}
		case object.KindFile:
			data, err := t.FileBytes(pe.Path)
			if err != nil {
				return err
			}
			mode := os.FileMode(0o644)
			if pe.Entry.Executable {
				mode = 0o755
			}
			if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(full, data, mode); err != nil {
				return err
			}
			if err := os.Chmod(full, mode); err != nil {
				return err
			}
		case object.KindSymlink:
			os.Remove(full)
			if err := os.Symlink(pe.Entry.SymlinkTarget, full); err != nil {
				return err
			}
		}
	}

	// Sweep anything versioned away, deepest paths first.
	var stale []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if d.Name() == config.ControlDir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := keep[rel]; !ok {
			stale = append(stale, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(stale, func(i, j int) bool {
		return strings.Count(stale[i], string(os.PathSeparator)) > strings.Count(stale[j], string(os.PathSeparator))
	})
	for _, path := range stale {
		if err := os.RemoveAll(path); err != nil {
			return err
		}
	}
	return nil
}
