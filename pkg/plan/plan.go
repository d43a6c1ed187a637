// Package plan computes line-provenance merge plans for file content:
// which side introduced, deleted or disputes every line. Plans feed the
// weave-style mergers, which render them into merged text with markers.
package plan

import (
	"github.com/breezy-team/gomerge/pkg/textmerge"
)

// Tag is the provenance of one plan line.
type Tag string

const (
	TagNewA        Tag = "new-a"        // introduced by side A
	TagNewB        Tag = "new-b"        // introduced by side B
	TagKilledA     Tag = "killed-a"     // A deleted it; survives on B only
	TagKilledB     Tag = "killed-b"     // B deleted it; survives on A only
	TagKilledBoth  Tag = "killed-both"  // both sides deleted it
	TagUnchanged   Tag = "unchanged"    // all sides agree
	TagConflictedA Tag = "conflicted-a" // A's line, disputed between LCAs
	TagConflictedB Tag = "conflicted-b" // B's line, disputed between LCAs
)

// Line is one entry of a merge plan.
type Line struct {
	Tag  Tag
	Text string
}

// HasConflicts reports whether any line of the plan is disputed.
func HasConflicts(plan []Line) bool {
	for _, l := range plan {
		if l.Tag == TagConflictedA || l.Tag == TagConflictedB {
			return true
		}
	}
	return false
}

// MergeLines renders a plan into output lines. Contiguous runs of
// non-unchanged lines are gathered into an a-side and a b-side; when the
// two sides of a run agree (or only one side changed anything) the run is
// emitted directly, otherwise it becomes a marker-delimited conflict.
// Disputed lines always conflict, even when only one side of the run
// holds any. With opts.Reprocess, runs the two sides partially agree on
// are re-matched so only genuinely divergent lines stay inside markers.
// Unlike the direct three-way merge there is no base section: the weave
// already interleaved the ancestors.
func MergeLines(plan []Line, opts textmerge.MarkerOptions) ([]string, bool) {
	if opts.NameA == "" {
		opts.NameA = textmerge.NameThis
	}
	if opts.NameB == "" {
		opts.NameB = textmerge.NameOther
	}
	if opts.StartMarker == "" {
		opts.StartMarker = "<<<<<<<"
	}
	if opts.MidMarker == "" {
		opts.MidMarker = "======="
	}
	if opts.EndMarker == "" {
		opts.EndMarker = ">>>>>>>"
	}

	var out []string
	conflicted := false

	emitConflict := func(a, b []string) {
		conflicted = true
		out = append(out, opts.StartMarker+" "+opts.NameA)
		out = append(out, a...)
		out = append(out, opts.MidMarker)
		out = append(out, b...)
		out = append(out, opts.EndMarker+" "+opts.NameB)
	}

	var linesA, linesB []string
	chA, chB := false, false

	flush := func() {
		switch {
		case len(linesA) == 0 && len(linesB) == 0:
		case sameLines(linesA, linesB):
			out = append(out, linesA...)
		case chA && !chB:
			out = append(out, linesA...)
		case chB && !chA:
			out = append(out, linesB...)
		case opts.Reprocess:
			// Carve out the stretches both sides agree on; the run may
			// fall apart into several narrower conflicts.
			ai, bi := 0, 0
			for _, blk := range textmerge.MatchingBlocks(linesA, linesB) {
				if ai < blk.AStart || bi < blk.BStart {
					emitConflict(linesA[ai:blk.AStart], linesB[bi:blk.BStart])
				}
				out = append(out, linesA[blk.AStart:blk.AStart+blk.Len]...)
				ai = blk.AStart + blk.Len
				bi = blk.BStart + blk.Len
			}
		default:
			emitConflict(linesA, linesB)
		}
		linesA, linesB = nil, nil
		chA, chB = false, false
	}

	for _, l := range plan {
		switch l.Tag {
		case TagUnchanged:
			flush()
			out = append(out, l.Text)
		case TagKilledA:
			chA = true
			linesB = append(linesB, l.Text)
		case TagKilledB:
			chB = true
			linesA = append(linesA, l.Text)
		case TagNewA:
			chA = true
			linesA = append(linesA, l.Text)
		case TagNewB:
			chB = true
			linesB = append(linesB, l.Text)
		case TagConflictedA:
			// Disputed lines count as changes on both sides so a run
			// holding them never resolves silently.
			chA, chB = true, true
			linesA = append(linesA, l.Text)
		case TagConflictedB:
			chA, chB = true, true
			linesB = append(linesB, l.Text)
		case TagKilledBoth:
			chA, chB = true, true
		}
	}
	flush()
	return out, conflicted
}

// BaseLines reconstructs the base text implied by a plan: everything that
// existed before either side touched it.
func BaseLines(plan []Line) []string {
	var out []string
	for _, l := range plan {
		switch l.Tag {
		case TagUnchanged, TagKilledA, TagKilledB, TagKilledBoth:
			out = append(out, l.Text)
		}
	}
	return out
}

// SubtractPlans removes from newPlan the b-side changes already present
// in oldPlan, for cherrypick-style replanning: matched killed-b lines
// become unchanged, matched new-b lines are dropped.
func SubtractPlans(oldPlan, newPlan []Line) []Line {
	oldKeys := planKeys(oldPlan)
	newKeys := planKeys(newPlan)

	matchedNew := make(map[int]bool)
	for _, blk := range textmerge.MatchingBlocks(oldKeys, newKeys) {
		for i := 0; i < blk.Len; i++ {
			matchedNew[blk.BStart+i] = true
		}
	}

	var out []Line
	for i, l := range newPlan {
		if !matchedNew[i] {
			out = append(out, l)
			continue
		}
		switch l.Tag {
		case TagKilledB:
			out = append(out, Line{Tag: TagUnchanged, Text: l.Text})
		case TagNewB:
			// Dropped: this insertion belongs to the old plan's b side.
		default:
			out = append(out, l)
		}
	}
	return out
}

func planKeys(plan []Line) []string {
	keys := make([]string, len(plan))
	for i, l := range plan {
		keys[i] = string(l.Tag) + "\x00" + l.Text
	}
	return keys
}

func sameLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
