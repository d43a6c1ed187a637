package merge

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/breezy-team/gomerge/pkg/object"
	"github.com/breezy-team/gomerge/pkg/plan"
	"github.com/breezy-team/gomerge/pkg/textmerge"
	"github.com/breezy-team/gomerge/pkg/tree"
)

// Algorithm selects how file content is merged. The set is closed; the
// orchestrator consults Capabilities before constructing a merger rather
// than probing types at runtime.
type Algorithm string

const (
	AlgorithmMerge3 Algorithm = "merge3" // direct three-way line merge
	AlgorithmWeave  Algorithm = "weave"  // plan merge over the per-file graph
	AlgorithmLCA    Algorithm = "lca"    // plan merge against LCA texts only
	AlgorithmDiff3  Algorithm = "diff3"  // external diff3 binary
)

// Capabilities advertises what a merge algorithm can be configured with.
type Capabilities struct {
	RequiresBase              bool
	SupportsShowBase          bool
	SupportsReprocess         bool
	SupportsCherrypick        bool
	SupportsReverseCherrypick bool
	SupportsLCATrees          bool
}

// Capabilities reports the configuration surface of the algorithm.
func (a Algorithm) Capabilities() Capabilities {
	switch a {
	case AlgorithmWeave, AlgorithmLCA:
		return Capabilities{
			SupportsReprocess:  true,
			SupportsCherrypick: true,
		}
	case AlgorithmDiff3:
		return Capabilities{
			RequiresBase:              true,
			SupportsShowBase:          true,
			SupportsCherrypick:        true,
			SupportsReverseCherrypick: true,
		}
	default:
		return Capabilities{
			RequiresBase:              true,
			SupportsShowBase:          true,
			SupportsReprocess:         true,
			SupportsCherrypick:        true,
			SupportsReverseCherrypick: true,
			SupportsLCATrees:          true,
		}
	}
}

// textResult is what an algorithm produced for one file.
type textResult struct {
	status HookStatus
	lines  []string
	// baseLines non-nil means the algorithm reconstructed its own base
	// text and only a .BASE sibling should be written on conflict (the
	// plan-based algorithms interleave THIS and OTHER in their output,
	// so separate .THIS/.OTHER siblings would be misleading).
	baseLines []string
	haveBase  bool
}

func (m *Merge3Merger) mergeTextContent(p *MergeHookParams) (textResult, error) {
	switch m.algorithm {
	case AlgorithmWeave:
		return m.planTextMerge(p, false)
	case AlgorithmLCA:
		return m.planTextMerge(p, true)
	case AlgorithmDiff3:
		return m.diff3TextMerge(p)
	default:
		return m.threeWayTextMerge(p)
	}
}

// threeWayTextMerge is the builtin direct line merge. Binary content
// declines, degrading to a contents conflict upstream.
func (m *Merge3Merger) threeWayTextMerge(p *MergeHookParams) (textResult, error) {
	base := m.sideBytes(m.baseTree, p.BasePath)
	this := m.sideBytes(m.thisTree, p.ThisPath)
	other := m.sideBytes(m.otherTree, p.OtherPath)

	m3, err := textmerge.NewMerge3(base, this, other)
	if err != nil {
		// Binary file: not mergeable as text.
		return textResult{status: HookNotApplicable}, nil
	}
	lines, conflicted := m3.MergeLines(textmerge.MarkerOptions{
		ShowBase:  m.showBase,
		Reprocess: m.reprocess,
	})
	if conflicted {
		return textResult{status: HookConflicted, lines: lines}, nil
	}
	return textResult{status: HookSuccess, lines: lines}, nil
}

// planTextMerge runs the graph-aware plan merge (weave style), or the
// LCA-restricted variant, over the per-file revision graph in the text
// store. A missing version propagates as an error: there is nothing to
// degrade to when history itself is incomplete.
func (m *Merge3Merger) planTextMerge(p *MergeHookParams, lcaOnly bool) (textResult, error) {
	if m.textStore == nil {
		return textResult{}, fmt.Errorf("merge: %s algorithm needs a text store", m.algorithm)
	}
	planner := plan.NewPlanner(m.textStore, p.FileID)
	var (
		pl  []plan.Line
		err error
	)
	if lcaOnly {
		pl, err = planner.PlanLCAMerge(m.thisRev, m.otherRev)
	} else {
		pl, err = planner.PlanMerge(m.thisRev, m.otherRev)
	}
	if err != nil {
		return textResult{}, fmt.Errorf("merge: plan %s: %w", p.FileID, err)
	}
	if m.cherrypick {
		old, err := planner.PlanMerge(m.baseRev, m.otherRev)
		if err != nil {
			return textResult{}, fmt.Errorf("merge: cherrypick base plan %s: %w", p.FileID, err)
		}
		pl = plan.SubtractPlans(old, pl)
	}
	lines, conflicted := plan.MergeLines(pl, textmerge.MarkerOptions{Reprocess: m.reprocess})
	if conflicted {
		return textResult{
			status:    HookConflicted,
			lines:     lines,
			baseLines: plan.BaseLines(pl),
			haveBase:  true,
		}, nil
	}
	return textResult{status: HookSuccess, lines: lines}, nil
}

// diff3TextMerge shells out to an external diff3. Exit status 0 is a
// clean merge, 1 means conflicts, anything else is fatal.
func (m *Merge3Merger) diff3TextMerge(p *MergeHookParams) (textResult, error) {
	dir, err := os.MkdirTemp("", "gomerge-diff3-")
	if err != nil {
		return textResult{}, fmt.Errorf("merge: diff3 workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	write := func(name string, data []byte) (string, error) {
		full := filepath.Join(dir, name)
		if err := os.WriteFile(full, data, 0o600); err != nil {
			return "", fmt.Errorf("merge: write %s: %w", name, err)
		}
		return full, nil
	}
	thisFile, err := write("this", m.sideBytes(m.thisTree, p.ThisPath))
	if err != nil {
		return textResult{}, err
	}
	baseFile, err := write("base", m.sideBytes(m.baseTree, p.BasePath))
	if err != nil {
		return textResult{}, err
	}
	otherFile, err := write("other", m.sideBytes(m.otherTree, p.OtherPath))
	if err != nil {
		return textResult{}, err
	}

	program := m.diff3Path
	if program == "" {
		program = "diff3"
	}
	cmd := exec.Command(program, "-m",
		"-L", textmerge.NameThis, "-L", textmerge.NameBase, "-L", textmerge.NameOther,
		thisFile, baseFile, otherFile)
	out, err := cmd.Output()
	status := HookSuccess
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return textResult{}, fmt.Errorf("merge: run diff3: %w", err)
		}
		if exitErr.ExitCode() != 1 {
			return textResult{}, fmt.Errorf("merge: diff3 failed: %w", err)
		}
		status = HookConflicted
	}
	return textResult{status: status, lines: tree.SplitLines(string(out))}, nil
}

// sideBytes reads file content for one side, empty for an absent path or
// a non-file kind.
func (m *Merge3Merger) sideBytes(t tree.Tree, path string) []byte {
	if path == "" {
		return nil
	}
	kind, err := t.Kind(path)
	if err != nil || kind != object.KindFile {
		return nil
	}
	data, err := t.FileBytes(path)
	if err != nil {
		return nil
	}
	return data
}
