// Package worktree holds the mutable side of a merge: an in-memory file
// tree plus durable merge state (pending conflicts, merge-modified
// hashes) persisted in a bbolt database under the tree's control
// directory.
package worktree

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/breezy-team/gomerge/pkg/conflicts"
	"github.com/breezy-team/gomerge/pkg/object"
	"github.com/breezy-team/gomerge/pkg/tree"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketConflicts = []byte("conflicts")
	bucketMergeMod  = []byte("merge-modified")

	keyConflictList = []byte("list")
)

// ErrNotLocked reports a mutation attempted without holding the write
// lock.
var ErrNotLocked = errors.New("worktree: not write-locked")

// WorkTree is a mutable tree with persistent merge state. All reads go
// through the embedded tree state; mutations require the write lock.
type WorkTree struct {
	state *tree.MemTree

	mu     sync.RWMutex
	locked bool // write lock held

	db     *bolt.DB
	dbPath string
}

// Open attaches a work tree to stateDir, creating the control database
// on first use. The tree content itself starts from initial (cloned, so
// the caller's copy stays untouched).
func Open(stateDir string, initial *tree.MemTree) (*WorkTree, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("worktree: create state dir: %w", err)
	}
	dbPath := filepath.Join(stateDir, "merge-state.db")
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("worktree: open state database: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketConflicts, bucketMergeMod} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}
	state := initial
	if state == nil {
		state = tree.NewMemTree()
	} else {
		state = state.Clone()
	}
	return &WorkTree{state: state, db: db, dbPath: dbPath}, nil
}

// Close releases the state database.
func (w *WorkTree) Close() error {
	if w.db == nil {
		return nil
	}
	return w.db.Close()
}

// LockWrite takes the write lock. The returned func releases it.
func (w *WorkTree) LockWrite() func() {
	w.mu.Lock()
	w.locked = true
	return func() {
		w.locked = false
		w.mu.Unlock()
	}
}

// LockRead takes a shared read lock. The returned func releases it.
func (w *WorkTree) LockRead() func() {
	w.mu.RLock()
	return w.mu.RUnlock
}

func (w *WorkTree) checkLocked() error {
	if !w.locked {
		return ErrNotLocked
	}
	return nil
}

// Tree exposes the read-only view of the current state.
func (w *WorkTree) Tree() tree.Tree { return w.state }

// --- tree.Tree delegation -------------------------------------------

func (w *WorkTree) Kind(path string) (object.Kind, error)   { return w.state.Kind(path) }
func (w *WorkTree) FileHash(path string) (object.Hash, error) {
	return w.state.FileHash(path)
}
func (w *WorkTree) FileBytes(path string) ([]byte, error)  { return w.state.FileBytes(path) }
func (w *WorkTree) FileLines(path string) ([]string, error) { return w.state.FileLines(path) }
func (w *WorkTree) SymlinkTarget(path string) (string, error) {
	return w.state.SymlinkTarget(path)
}
func (w *WorkTree) IsExecutable(path string) (bool, error) { return w.state.IsExecutable(path) }
func (w *WorkTree) ID2Path(id object.FileID) (string, error) { return w.state.ID2Path(id) }
func (w *WorkTree) Path2ID(path string) (object.FileID, bool) { return w.state.Path2ID(path) }
func (w *WorkTree) HasID(id object.FileID) bool             { return w.state.HasID(id) }
func (w *WorkTree) Entry(id object.FileID) *tree.Entry      { return w.state.Entry(id) }
func (w *WorkTree) IterEntriesByDir(specific []string) []tree.PathEntry {
	return w.state.IterEntriesByDir(specific)
}
func (w *WorkTree) IterChanges(other tree.Tree) []tree.Change {
	return w.state.IterChanges(other)
}

// --- conflicts.Resolver ---------------------------------------------

// HasPath reports whether path exists in the tree.
func (w *WorkTree) HasPath(path string) bool {
	_, err := w.state.Kind(path)
	return err == nil
}

// ReadFile returns the file content at path.
func (w *WorkTree) ReadFile(path string) ([]byte, error) {
	return w.state.FileBytes(path)
}

// Rename moves an entry. Requires the write lock.
func (w *WorkTree) Rename(oldPath, newPath string) error {
	if err := w.checkLocked(); err != nil {
		return err
	}
	return w.state.Rename(oldPath, newPath)
}

// Remove deletes the entry at path. Requires the write lock.
func (w *WorkTree) Remove(path string) error {
	if err := w.checkLocked(); err != nil {
		return err
	}
	return w.state.Delete(path)
}

// RemoveIfPresent deletes path when it exists; a missing path is not an
// error.
func (w *WorkTree) RemoveIfPresent(path string) error {
	if !w.HasPath(path) {
		return nil
	}
	return w.Remove(path)
}

// --- transform.WriteTarget ------------------------------------------

// EnsureDir creates the directory at path if absent. An existing
// directory is left alone.
func (w *WorkTree) EnsureDir(path string, id object.FileID) error {
	if err := w.checkLocked(); err != nil {
		return err
	}
	if kind, err := w.state.Kind(path); err == nil && kind == object.KindDirectory {
		return nil
	}
	if id == "" {
		id = object.FileID("dir-" + path)
	}
	return w.state.AddDir(path, id)
}

// WriteFile creates or replaces the file at path.
func (w *WorkTree) WriteFile(path string, data []byte, executable bool, id object.FileID) error {
	if err := w.checkLocked(); err != nil {
		return err
	}
	if w.HasPath(path) {
		if err := w.state.PutFile(path, data); err != nil {
			return err
		}
		return w.state.SetExecutable(path, executable)
	}
	if id == "" {
		id = object.FileID("file-" + path)
	}
	return w.state.AddFile(path, id, data, executable)
}

// WriteSymlink creates or replaces the symlink at path.
func (w *WorkTree) WriteSymlink(path, target string, id object.FileID) error {
	if err := w.checkLocked(); err != nil {
		return err
	}
	if w.HasPath(path) {
		if err := w.state.Delete(path); err != nil {
			return err
		}
	}
	if id == "" {
		id = object.FileID("link-" + path)
	}
	return w.state.AddSymlink(path, id, target)
}

// SetExecutable flips the executable bit on an existing file.
func (w *WorkTree) SetExecutable(path string, executable bool) error {
	if err := w.checkLocked(); err != nil {
		return err
	}
	return w.state.SetExecutable(path, executable)
}

// Unversion is part of the transform write surface. The in-memory state
// has no versioned-but-untracked notion, so unversioning removes the
// entry's id mapping by deleting and recreating nothing; it is a no-op
// here beyond validation.
func (w *WorkTree) Unversion(path string) error {
	return w.checkLocked()
}

// --- persistent merge state -----------------------------------------

// SetConflicts replaces the stored conflict list.
func (w *WorkTree) SetConflicts(list conflicts.ConflictList) error {
	if err := w.checkLocked(); err != nil {
		return err
	}
	data, err := conflicts.MarshalList(list)
	if err != nil {
		return fmt.Errorf("worktree: encode conflicts: %w", err)
	}
	return w.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConflicts).Put(keyConflictList, data)
	})
}

// Conflicts returns the stored conflict list, empty when none is set.
func (w *WorkTree) Conflicts() (conflicts.ConflictList, error) {
	var data []byte
	if err := w.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketConflicts).Get(keyConflictList)
		if v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	list, err := conflicts.UnmarshalList(data)
	if err != nil {
		return nil, fmt.Errorf("worktree: decode conflicts: %w", err)
	}
	return list, nil
}

// SetMergeModified records the post-merge content hashes of files the
// merge changed, keyed by file id. A commit consults this to tell merge
// results from later hand edits.
func (w *WorkTree) SetMergeModified(hashes map[object.FileID]object.Hash) error {
	if err := w.checkLocked(); err != nil {
		return err
	}
	return w.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMergeMod)
		var stale [][]byte
		if err := b.ForEach(func(k, _ []byte) error {
			stale = append(stale, append([]byte(nil), k...))
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		for id, h := range hashes {
			if err := b.Put([]byte(id), []byte(h)); err != nil {
				return err
			}
		}
		return nil
	})
}

// MergeModified returns the stored merge-modified map.
func (w *WorkTree) MergeModified() (map[object.FileID]object.Hash, error) {
	out := make(map[object.FileID]object.Hash)
	err := w.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMergeMod).ForEach(func(k, v []byte) error {
			out[object.FileID(k)] = object.Hash(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
