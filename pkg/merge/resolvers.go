package merge

// decision is a resolver verdict for one attribute of one entry.
type decision string

const (
	winThis     decision = "this"
	winOther    decision = "other"
	winConflict decision = "conflict"
)

// opt is an attribute value that may be absent (the entry does not exist
// in that tree). Absent values compare equal to each other and unequal
// to every present value, which is exactly what the resolvers need.
type opt[T comparable] struct {
	OK bool
	V  T
}

func some[T comparable](v T) opt[T] { return opt[T]{OK: true, V: v} }

// threeWay decides one attribute from a single common base.
//
//	base == other          -> this  (only THIS changed, or nothing did)
//	this == other          -> this  (both made the identical change)
//	this == base           -> other (only OTHER changed)
//	all three differ       -> conflict
func threeWay[T comparable](base, other, this T) decision {
	if base == other {
		return winThis
	}
	if this == other {
		return winThis
	}
	if this == base {
		return winOther
	}
	return winConflict
}

// lcaMultiWay decides one attribute against a set of LCA values from a
// criss-cross history. LCA values equal to base carry no information and
// are dropped; when nothing (or a single distinct value) remains the
// decision degrades to plain threeWay. When the LCAs themselves disagree
// and allowOverridingLCA is set, a side holding a genuinely new value
// beats a side merely echoing one historical branch. Content comparisons
// pass allowOverridingLCA false: overriding there would mask independent
// edits.
func lcaMultiWay[T comparable](base T, lcaVals []T, other, this T, allowOverridingLCA bool) decision {
	if other == this {
		return winThis
	}
	var filtered []T
	for _, v := range lcaVals {
		if v != base {
			filtered = append(filtered, v)
		}
	}
	if len(filtered) == 0 {
		return threeWay(base, other, this)
	}
	unique := make(map[T]struct{}, len(filtered))
	for _, v := range filtered {
		unique[v] = struct{}{}
	}
	if len(unique) == 1 {
		return threeWay(filtered[0], other, this)
	}
	if allowOverridingLCA {
		_, otherIsLCA := unique[other]
		_, thisIsLCA := unique[this]
		if otherIsLCA && !thisIsLCA {
			return winThis
		}
		if thisIsLCA && !otherIsLCA {
			return winOther
		}
	}
	return winConflict
}
