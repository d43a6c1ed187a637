package merge

import (
	"errors"
	"fmt"
	"testing"

	"github.com/breezy-team/gomerge/pkg/graph"
	"github.com/breezy-team/gomerge/pkg/object"
	"github.com/breezy-team/gomerge/pkg/tree"
)

// mapTrees is a TreeProvider over a fixed revision -> tree map.
type mapTrees map[object.RevisionID]*tree.MemTree

func (m mapTrees) RevisionTree(rev object.RevisionID) (tree.Tree, error) {
	t, ok := m[rev]
	if !ok {
		return nil, fmt.Errorf("no tree for revision %s", rev)
	}
	return t, nil
}

// linear: base <- mid <- this, base <- other
func linearHistory() *graph.Graph {
	return graph.New(graph.MapParents{
		"base":  nil,
		"mid":   {"base"},
		"this":  {"mid"},
		"other": {"base"},
	})
}

// criss-cross: both tips merged each other's first-round revision.
func crissCrossHistory() *graph.Graph {
	return graph.New(graph.MapParents{
		"origin": nil,
		"x":      {"origin"},
		"y":      {"origin"},
		"this":   {"x", "y"},
		"other":  {"y", "x"},
	})
}

func TestFindBaseSingleLCA(t *testing.T) {
	wt := newTestWT(t, tree.NewMemTree())
	trees := mapTrees{"base": tree.NewMemTree()}
	m := NewMerger(wt, linearHistory(), trees, "this", "other", nil)
	if err := m.FindBase(); err != nil {
		t.Fatalf("FindBase: %v", err)
	}
	if m.BaseRevision() != "base" {
		t.Fatalf("base = %s, want base", m.BaseRevision())
	}
	if m.IsCrissCross() {
		t.Fatal("single LCA must not flag criss-cross")
	}
}

func TestFindBaseCrissCross(t *testing.T) {
	wt := newTestWT(t, tree.NewMemTree())
	trees := mapTrees{
		"origin": tree.NewMemTree(),
		"x":      tree.NewMemTree(),
		"y":      tree.NewMemTree(),
	}
	m := NewMerger(wt, crissCrossHistory(), trees, "this", "other", nil)
	if err := m.FindBase(); err != nil {
		t.Fatalf("FindBase: %v", err)
	}
	if !m.IsCrissCross() {
		t.Fatal("two LCAs must flag criss-cross")
	}
	// The LCA set {x, y} collapses to its own unique LCA.
	if m.BaseRevision() != "origin" {
		t.Fatalf("base = %s, want origin", m.BaseRevision())
	}
	if len(m.lcaTrees) != 2 {
		t.Fatalf("collected %d LCA trees, want 2", len(m.lcaTrees))
	}
}

func TestFindBaseUnrelated(t *testing.T) {
	wt := newTestWT(t, tree.NewMemTree())
	g := graph.New(graph.MapParents{"a": nil, "b": nil})
	m := NewMerger(wt, g, mapTrees{}, "a", "b", nil)
	err := m.FindBase()
	if !errors.Is(err, graph.ErrUnrelatedBranches) {
		t.Fatalf("err = %v, want ErrUnrelatedBranches", err)
	}
}

func TestSetBaseNaturalIsNotCherrypick(t *testing.T) {
	wt := newTestWT(t, tree.NewMemTree())
	trees := mapTrees{"base": tree.NewMemTree()}
	m := NewMerger(wt, linearHistory(), trees, "this", "other", nil)
	if err := m.SetBase("base"); err != nil {
		t.Fatalf("SetBase: %v", err)
	}
	if m.cherrypick {
		t.Fatal("the natural LCA as explicit base is not a cherrypick")
	}
}

func TestSetBaseCherrypick(t *testing.T) {
	// Merging "other" with base "mid": mid is not the LCA of this and
	// other, so only the base..other delta is wanted.
	g := graph.New(graph.MapParents{
		"base":  nil,
		"mid":   {"base"},
		"other": {"mid"},
		"this":  {"base"},
	})
	wt := newTestWT(t, tree.NewMemTree())
	trees := mapTrees{"mid": tree.NewMemTree()}
	m := NewMerger(wt, g, trees, "this", "other", nil)
	if err := m.SetBase("mid"); err != nil {
		t.Fatalf("SetBase: %v", err)
	}
	if !m.cherrypick {
		t.Fatal("non-LCA base must mark the merge a cherrypick")
	}
	if m.reverseCherrypick {
		t.Fatal("mid does not descend from other")
	}
}

func TestSetBaseReverseCherrypick(t *testing.T) {
	// Base descends from OTHER: backing changes out.
	g := graph.New(graph.MapParents{
		"base":  nil,
		"other": {"base"},
		"after": {"other"},
		"this":  {"base"},
	})
	wt := newTestWT(t, tree.NewMemTree())
	trees := mapTrees{"after": tree.NewMemTree()}
	m := NewMerger(wt, g, trees, "this", "other", nil)
	if err := m.SetBase("after"); err != nil {
		t.Fatalf("SetBase: %v", err)
	}
	if !m.cherrypick || !m.reverseCherrypick {
		t.Fatalf("cherrypick=%v reverse=%v, want both", m.cherrypick, m.reverseCherrypick)
	}
}

// TestMergeEndToEnd drives the session front end through base discovery
// into an actual merge.
func TestMergeEndToEnd(t *testing.T) {
	base := tree.NewMemTree()
	addFile(t, base, "f", "f-id", "one\n")
	thisTree := base.Clone()
	otherTree := base.Clone()
	if err := otherTree.PutFile("f", []byte("one\ntwo\n")); err != nil {
		t.Fatal(err)
	}

	wt := newTestWT(t, thisTree)
	trees := mapTrees{"base": base, "other": otherTree}
	m := NewMerger(wt, linearHistory(), trees, "this", "other", nil)
	list, err := m.Merge()
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("unexpected conflicts: %v", list)
	}
	data, err := wt.FileBytes("f")
	if err != nil || string(data) != "one\ntwo\n" {
		t.Fatalf("merged content = %q, %v", data, err)
	}
	if m.BaseRevision() != "base" {
		t.Fatalf("base = %s", m.BaseRevision())
	}
}

// TestCrissCrossLCAMerge: with LCA trees present, a value both LCAs
// agree on beats a stale interloper on one side.
func TestCrissCrossLCAMerge(t *testing.T) {
	origin := tree.NewMemTree()
	addFile(t, origin, "f", "f-id", "old\n")

	// Both first-round merges settled on "agreed".
	lcaX := origin.Clone()
	if err := lcaX.PutFile("f", []byte("agreed\n")); err != nil {
		t.Fatal(err)
	}
	lcaY := lcaX.Clone()

	thisTree := lcaX.Clone()
	otherTree := lcaX.Clone()
	if err := otherTree.PutFile("f", []byte("improved\n")); err != nil {
		t.Fatal(err)
	}

	wt := newTestWT(t, thisTree)
	trees := mapTrees{
		"origin": origin,
		"x":      lcaX,
		"y":      lcaY,
		"other":  otherTree,
	}
	m := NewMerger(wt, crissCrossHistory(), trees, "this", "other", nil)
	list, err := m.Merge()
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("unexpected conflicts: %v", list)
	}
	data, _ := wt.FileBytes("f")
	if string(data) != "improved\n" {
		t.Fatalf("merged content = %q, want OTHER's edit", data)
	}
}

func TestResolveTakeThis(t *testing.T) {
	base := tree.NewMemTree()
	addFile(t, base, "f", "f-id", "line1\n")
	thisTree := base.Clone()
	if err := thisTree.PutFile("f", []byte("line1\nfeature A\n")); err != nil {
		t.Fatal(err)
	}
	otherTree := base.Clone()
	if err := otherTree.PutFile("f", []byte("line1\nfeature B\n")); err != nil {
		t.Fatal(err)
	}

	wt, list := runMerge(t, thisTree, base, otherTree, Options{})
	if len(list) != 1 {
		t.Fatalf("setup: want one conflict, got %v", list)
	}

	resolved, misses, err := Resolve(wt, []string{"f"}, "take_this", false, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(misses) != 0 || len(resolved) != 1 {
		t.Fatalf("resolved=%d misses=%d", len(resolved), len(misses))
	}
	remaining, err := wt.Conflicts()
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Fatalf("conflicts left behind: %v", remaining)
	}
	data, err := wt.FileBytes("f")
	if err != nil || string(data) != "line1\nfeature A\n" {
		t.Fatalf("take_this content = %q, %v", data, err)
	}
	for _, sib := range []string{"f.BASE", "f.THIS", "f.OTHER"} {
		if wt.HasPath(sib) {
			t.Errorf("sibling %s should be cleaned up", sib)
		}
	}
}

func TestResolveMiss(t *testing.T) {
	wt := newTestWT(t, tree.NewMemTree())
	_, misses, err := Resolve(wt, []string{"no-such-file"}, "done", false, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(misses) != 1 {
		t.Fatalf("misses = %v, want one", misses)
	}
	if misses[0].Exists {
		t.Fatal("missing path reported as existing")
	}
}
