package conflicts

import (
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/breezy-team/gomerge/pkg/object"
)

// ConflictList is an ordered collection of conflicts as stored on the
// working tree.
type ConflictList []*Conflict

// Sort orders the list by each conflict's SortKey.
func (l ConflictList) Sort() {
	sort.SliceStable(l, func(i, j int) bool {
		pi, ki := l[i].SortKey()
		pj, kj := l[j].SortKey()
		if pi != pj {
			return pi < pj
		}
		return ki < kj
	})
}

// Contains reports whether an equal conflict is already in the list.
func (l ConflictList) Contains(c *Conflict) bool {
	for _, existing := range l {
		if existing.Equal(c) {
			return true
		}
	}
	return false
}

// PathLookup resolves a FileID to a path; the working tree provides it
// so selection can match conflicts whose recorded path went stale.
type PathLookup interface {
	ID2Path(id object.FileID) (string, error)
}

// Miss describes a requested path that selected nothing.
type Miss struct {
	Path   string
	Exists bool // present in the working tree, just not conflicted
}

// SelectConflicts partitions the list by the requested paths. A conflict
// is selected when its path or counterpart path matches a request, when
// its file id still resolves to a requested path, or — with recurse —
// when it sits anywhere under a requested directory. Misses are reported
// (never fatal) unless ignoreMisses is set.
func (l ConflictList) SelectConflicts(wt Resolver, lookup PathLookup, paths []string, ignoreMisses, recurse bool) (notSelected, selected ConflictList, misses []Miss) {
	matched := make(map[string]bool, len(paths))

	covers := func(dir, p string) bool {
		return p == dir || strings.HasPrefix(p, dir+"/")
	}
	hits := func(c *Conflict, req string) bool {
		if recurse {
			if covers(req, c.Path) || (c.ConflictPath != "" && covers(req, c.ConflictPath)) {
				return true
			}
		}
		if c.Path == req || (c.ConflictPath != "" && c.ConflictPath == req) {
			return true
		}
		if c.FileID != "" && lookup != nil {
			if p, err := lookup.ID2Path(c.FileID); err == nil && p == req {
				return true
			}
		}
		return false
	}

	for _, c := range l {
		hit := false
		for _, req := range paths {
			if hits(c, req) {
				matched[req] = true
				hit = true
			}
		}
		if hit {
			selected = append(selected, c)
		} else {
			notSelected = append(notSelected, c)
		}
	}

	if !ignoreMisses {
		for _, req := range paths {
			if matched[req] {
				continue
			}
			misses = append(misses, Miss{
				Path:   req,
				Exists: wt != nil && wt.HasPath(req),
			})
		}
	}
	return notSelected, selected, misses
}

// RemoveFiles deletes every conflict's associated sibling files from the
// working tree. Already-missing files are fine.
func (l ConflictList) RemoveFiles(wt Resolver) error {
	var errs *multierror.Error
	for _, c := range l {
		for _, f := range c.AssociatedFilenames() {
			if err := wt.RemoveIfPresent(f); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}
	return errs.ErrorOrNil()
}

// ResolveAll runs action against every conflict in the list. A failure
// on one conflict does not stop the others; the aggregate error carries
// each individual failure and resolved reports which conflicts cleared.
func (l ConflictList) ResolveAll(action string, wt Resolver) (resolved ConflictList, err error) {
	var errs *multierror.Error
	for _, c := range l {
		if doErr := c.Do(action, wt); doErr != nil {
			errs = multierror.Append(errs, doErr)
			continue
		}
		resolved = append(resolved, c)
	}
	return resolved, errs.ErrorOrNil()
}
