package merge

import (
	"github.com/breezy-team/gomerge/pkg/object"
	"github.com/breezy-team/gomerge/pkg/transform"
)

// HookStatus is a content-merge hook's verdict for one file.
type HookStatus int

const (
	// HookNotApplicable passes the file to the next hook in the chain.
	HookNotApplicable HookStatus = iota
	// HookSuccess resolved cleanly; the returned lines are the result.
	HookSuccess
	// HookConflicted produced marker-bearing lines; a text conflict is
	// recorded and sibling files are written.
	HookConflicted
	// HookDelete resolved to removing the file.
	HookDelete
	// HookDone resolved by mutating the transform directly; the
	// orchestrator has nothing further to do.
	HookDone
)

// MergeHookParams describes one file needing content resolution. Paths
// are empty when the side has no entry for the id.
type MergeHookParams struct {
	FileID  object.FileID
	TransID transform.TransID

	BasePath, OtherPath, ThisPath string
	BaseKind, OtherKind, ThisKind object.Kind

	// OtherWins is set when the resolver picked OTHER outright; the
	// builtin hook then copies OTHER's content instead of text-merging.
	OtherWins bool
}

// ContentMerger is one entry in the per-file merge hook chain. The first
// hook not returning HookNotApplicable decides the file. The returned
// lines are meaningful for HookSuccess and HookConflicted only.
type ContentMerger interface {
	MergeContents(m *Merge3Merger, p *MergeHookParams) (HookStatus, []string, error)
}

// ContentMergerFunc adapts a function to ContentMerger.
type ContentMergerFunc func(m *Merge3Merger, p *MergeHookParams) (HookStatus, []string, error)

func (f ContentMergerFunc) MergeContents(m *Merge3Merger, p *MergeHookParams) (HookStatus, []string, error) {
	return f(m, p)
}

// AddContentMerger prepends a hook to the chain. The builtin default
// always runs last; it is never special-cased by the orchestrator.
func (m *Merge3Merger) AddContentMerger(h ContentMerger) {
	m.hooks = append([]ContentMerger{h}, m.hooks...)
}

// builtinContentMerger is the default tail of every hook chain: take
// OTHER outright when the resolver already picked it, otherwise attempt
// a text merge of two plain files via the session's algorithm.
type builtinContentMerger struct{}

func (builtinContentMerger) MergeContents(m *Merge3Merger, p *MergeHookParams) (HookStatus, []string, error) {
	if p.OtherWins {
		if p.OtherPath == "" {
			return HookDelete, nil, nil
		}
		if err := m.createFromOther(p); err != nil {
			return HookNotApplicable, nil, err
		}
		return HookDone, nil, nil
	}
	if p.ThisKind != object.KindFile || p.OtherKind != object.KindFile {
		return HookNotApplicable, nil, nil
	}
	res, err := m.mergeTextContent(p)
	if err != nil {
		return HookNotApplicable, nil, err
	}
	if res.status == HookConflicted {
		m.pendingBase[p.TransID] = res
	}
	return res.status, res.lines, nil
}
