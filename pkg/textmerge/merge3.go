// Package textmerge performs three-way merges of line sequences. It
// produces either a region classification (who changed what relative to
// the base) or merged output with conflict markers, and is deterministic:
// identical inputs always yield byte-identical output.
package textmerge

import (
	"bytes"
	"errors"
)

// ErrBinaryFile reports that content handed to a text merge contains
// bytes that rule out line-based merging.
var ErrBinaryFile = errors.New("binary content cannot be text-merged")

// Default marker names. "TREE" labels the local side, "MERGE-SOURCE" the
// side being merged in.
const (
	NameThis  = "TREE"
	NameOther = "MERGE-SOURCE"
	NameBase  = "BASE-REVISION"
)

// RegionKind classifies a merge region.
type RegionKind int

const (
	RegionUnchanged RegionKind = iota // all three sides agree
	RegionA                           // only A changed; take A
	RegionB                           // only B changed; take B
	RegionSame                        // A and B made the identical change
	RegionConflict                    // A and B changed differently
)

// Region is a contiguous stretch of the merge keyed by half-open index
// ranges into base, a and b. Ranges not meaningful for the kind are
// zero-width. Regions produced by reprocessing have HasBase false: their
// base range no longer corresponds to real base lines.
type Region struct {
	Kind                             RegionKind
	ZStart, ZEnd                     int
	AStart, AEnd, BStart, BEnd       int
	HasBase                          bool
}

// Merge3 merges two line sequences that both descend from a common base.
type Merge3 struct {
	Base, A, B []string
}

// NewMerge3 rejects binary content up front; the caller degrades to a
// contents conflict instead of producing garbage markers.
func NewMerge3(base, a, b []byte) (*Merge3, error) {
	for _, data := range [][]byte{base, a, b} {
		if IsBinary(data) {
			return nil, ErrBinaryFile
		}
	}
	return &Merge3{
		Base: splitLines(string(base)),
		A:    splitLines(string(a)),
		B:    splitLines(string(b)),
	}, nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// IsBinary reports whether data looks like binary content (NUL byte in
// the first 8KiB, the same heuristic the rest of the toolchain uses).
func IsBinary(data []byte) bool {
	probe := data
	if len(probe) > 8192 {
		probe = probe[:8192]
	}
	return bytes.IndexByte(probe, 0) >= 0
}

type syncRegion struct {
	zstart, zend, astart, aend, bstart, bend int
}

// findSyncRegions intersects the matching blocks of (base, a) and
// (base, b): stretches where all three sides hold identical lines. A
// zero-length sentinel at the ends terminates the list.
func (m *Merge3) findSyncRegions() []syncRegion {
	am := MatchingBlocks(m.Base, m.A)
	bm := MatchingBlocks(m.Base, m.B)

	var regions []syncRegion
	ia, ib := 0, 0
	for ia < len(am) && ib < len(bm) {
		abase, amatch, alen := am[ia].AStart, am[ia].BStart, am[ia].Len
		bbase, bmatch, blen := bm[ib].AStart, bm[ib].BStart, bm[ib].Len

		start := maxInt(abase, bbase)
		end := minInt(abase+alen, bbase+blen)
		if end > start {
			asub := amatch + (start - abase)
			bsub := bmatch + (start - bbase)
			n := end - start
			regions = append(regions, syncRegion{
				zstart: start, zend: end,
				astart: asub, aend: asub + n,
				bstart: bsub, bend: bsub + n,
			})
		}
		if abase+alen < bbase+blen {
			ia++
		} else {
			ib++
		}
	}
	return append(regions, syncRegion{
		zstart: len(m.Base), zend: len(m.Base),
		astart: len(m.A), aend: len(m.A),
		bstart: len(m.B), bend: len(m.B),
	})
}

// MergeRegions classifies the whole merge into regions. Between two sync
// regions, whichever side diverged from base carries the region; when
// both diverged identically the region is RegionSame, and when they
// diverged differently it is a RegionConflict.
func (m *Merge3) MergeRegions() []Region {
	var out []Region
	iz, ia, ib := 0, 0, 0

	for _, sync := range m.findSyncRegions() {
		zLines := m.Base[iz:sync.zstart]
		aLines := m.A[ia:sync.astart]
		bLines := m.B[ib:sync.bstart]

		if len(zLines) > 0 || len(aLines) > 0 || len(bLines) > 0 {
			aEqBase := linesEqual(aLines, zLines)
			bEqBase := linesEqual(bLines, zLines)
			r := Region{
				ZStart: iz, ZEnd: sync.zstart,
				AStart: ia, AEnd: sync.astart,
				BStart: ib, BEnd: sync.bstart,
				HasBase: true,
			}
			switch {
			case aEqBase && bEqBase:
				r.Kind = RegionUnchanged
			case aEqBase:
				r.Kind = RegionB
			case bEqBase:
				r.Kind = RegionA
			case linesEqual(aLines, bLines):
				r.Kind = RegionSame
			default:
				r.Kind = RegionConflict
			}
			out = append(out, r)
		}

		if sync.zend > sync.zstart {
			out = append(out, Region{
				Kind:    RegionUnchanged,
				ZStart:  sync.zstart, ZEnd: sync.zend,
				AStart:  sync.astart, AEnd: sync.aend,
				BStart:  sync.bstart, BEnd: sync.bend,
				HasBase: true,
			})
		}
		iz, ia, ib = sync.zend, sync.aend, sync.bend
	}
	return out
}

// ReprocessRegions narrows conflicts: each conflict region is re-compared
// a-side against b-side, carving out runs the two sides agree on so that
// only genuinely divergent lines stay inside markers. The resulting
// regions have no base correspondence.
func ReprocessRegions(m *Merge3, regions []Region) []Region {
	var out []Region
	for _, r := range regions {
		if r.Kind != RegionConflict {
			out = append(out, r)
			continue
		}
		aSub := m.A[r.AStart:r.AEnd]
		bSub := m.B[r.BStart:r.BEnd]
		ai, bi := 0, 0
		for _, blk := range MatchingBlocks(aSub, bSub) {
			if ai < blk.AStart || bi < blk.BStart {
				out = append(out, Region{
					Kind:   RegionConflict,
					AStart: r.AStart + ai, AEnd: r.AStart + blk.AStart,
					BStart: r.BStart + bi, BEnd: r.BStart + blk.BStart,
				})
			}
			if blk.Len > 0 {
				out = append(out, Region{
					Kind:   RegionSame,
					AStart: r.AStart + blk.AStart, AEnd: r.AStart + blk.AStart + blk.Len,
					BStart: r.BStart + blk.BStart, BEnd: r.BStart + blk.BStart + blk.Len,
				})
			}
			ai = blk.AStart + blk.Len
			bi = blk.BStart + blk.Len
		}
	}
	return out
}

// MarkerOptions controls MergeLines output.
type MarkerOptions struct {
	NameA       string // label after the start marker
	NameB       string // label after the end marker
	NameBase    string // label after the base marker (show-base only)
	StartMarker string // defaults to "<<<<<<<"
	MidMarker   string // defaults to "======="
	EndMarker   string // defaults to ">>>>>>>"
	ShowBase    bool
	Reprocess   bool
}

func (o *MarkerOptions) fill() {
	if o.NameA == "" {
		o.NameA = NameThis
	}
	if o.NameB == "" {
		o.NameB = NameOther
	}
	if o.NameBase == "" {
		o.NameBase = NameBase
	}
	if o.StartMarker == "" {
		o.StartMarker = "<<<<<<<"
	}
	if o.MidMarker == "" {
		o.MidMarker = "======="
	}
	if o.EndMarker == "" {
		o.EndMarker = ">>>>>>>"
	}
}

// MergeLines renders the merge as output lines plus a conflict flag.
// Reprocess and ShowBase are mutually exclusive: reprocessing destroys
// the base correspondence the base section depends on. Callers are
// expected to have rejected that combination already; here it panics.
func (m *Merge3) MergeLines(opts MarkerOptions) ([]string, bool) {
	opts.fill()
	if opts.Reprocess && opts.ShowBase {
		panic("textmerge: reprocess and show-base cannot be combined")
	}

	regions := m.MergeRegions()
	if opts.Reprocess {
		regions = ReprocessRegions(m, regions)
	}

	var out []string
	conflicts := false
	for _, r := range regions {
		switch r.Kind {
		case RegionUnchanged:
			if r.HasBase {
				out = append(out, m.Base[r.ZStart:r.ZEnd]...)
			} else {
				out = append(out, m.A[r.AStart:r.AEnd]...)
			}
		case RegionA, RegionSame:
			out = append(out, m.A[r.AStart:r.AEnd]...)
		case RegionB:
			out = append(out, m.B[r.BStart:r.BEnd]...)
		case RegionConflict:
			conflicts = true
			out = append(out, opts.StartMarker+" "+opts.NameA)
			out = append(out, m.A[r.AStart:r.AEnd]...)
			if opts.ShowBase && r.HasBase {
				out = append(out, "|||||||"+" "+opts.NameBase)
				out = append(out, m.Base[r.ZStart:r.ZEnd]...)
			}
			out = append(out, opts.MidMarker)
			out = append(out, m.B[r.BStart:r.BEnd]...)
			out = append(out, opts.EndMarker+" "+opts.NameB)
		}
	}
	return out, conflicts
}

func linesEqual(a, b []string) bool {
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

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
