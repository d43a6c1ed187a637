package merge

import "testing"

func TestThreeWayCases(t *testing.T) {
	cases := []struct {
		name              string
		base, other, this string
		want              decision
	}{
		{"nothing changed", "x", "x", "x", winThis},
		{"only this changed", "x", "x", "y", winThis},
		{"only other changed", "x", "y", "x", winOther},
		{"ambiguous clean merge", "x", "y", "y", winThis},
		{"all differ", "x", "y", "z", winConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := threeWay(tc.base, tc.other, tc.this)
			if got != tc.want {
				t.Fatalf("threeWay(%q, %q, %q) = %s, want %s", tc.base, tc.other, tc.this, got, tc.want)
			}
		})
	}
}

// TestThreeWayTotality checks every combination over a tiny alphabet
// returns exactly one of the three verdicts, and that swapping the
// other/this roles swaps the corresponding verdicts.
func TestThreeWayTotality(t *testing.T) {
	vals := []string{"a", "b", "c"}
	swap := map[decision]decision{winThis: winOther, winOther: winThis, winConflict: winConflict}
	for _, base := range vals {
		for _, other := range vals {
			for _, this := range vals {
				got := threeWay(base, other, this)
				if got != winThis && got != winOther && got != winConflict {
					t.Fatalf("threeWay(%q, %q, %q) = %q, not a valid verdict", base, other, this, got)
				}
				mirrored := threeWay(base, this, other)
				// Agreeing sides (nothing changed, or the ambiguous clean
				// merge) resolve to "this" from both vantage points; every
				// other case mirrors exactly.
				if other == this {
					if mirrored != winThis {
						t.Fatalf("agreeing sides must be this from both vantage points")
					}
					continue
				}
				if mirrored != swap[got] {
					t.Fatalf("threeWay(%q, %q, %q) = %s but mirrored = %s", base, other, this, got, mirrored)
				}
			}
		}
	}
}

func TestLCAMultiWayDegradesToThreeWay(t *testing.T) {
	vals := []string{"a", "b", "c"}
	for _, base := range vals {
		for _, other := range vals {
			for _, this := range vals {
				want := threeWay(base, other, this)
				if got := lcaMultiWay(base, nil, other, this, true); got != want {
					t.Fatalf("empty LCA list: lcaMultiWay = %s, want %s", got, want)
				}
				// Every LCA equal to base is filtered out.
				if got := lcaMultiWay(base, []string{base, base}, other, this, true); got != want {
					t.Fatalf("base-valued LCAs: lcaMultiWay = %s, want %s", got, want)
				}
			}
		}
	}
}

func TestLCAMultiWaySingleDistinctValue(t *testing.T) {
	// Both LCAs carry v != base: degrade to threeWay(v, other, this).
	if got := lcaMultiWay("base", []string{"v", "v"}, "v", "new", true); got != winThis {
		t.Fatalf("got %s, want this (only THIS moved past the LCA value)", got)
	}
	if got := lcaMultiWay("base", []string{"v", "v"}, "new", "v", true); got != winOther {
		t.Fatalf("got %s, want other", got)
	}
}

func TestLCAMultiWayDisagreeingLCAs(t *testing.T) {
	lcas := []string{"x", "y"}

	// OTHER echoes one historical branch, THIS supersedes: this wins.
	if got := lcaMultiWay("base", lcas, "y", "z", true); got != winThis {
		t.Fatalf("override by this: got %s, want this", got)
	}
	// Symmetric.
	if got := lcaMultiWay("base", lcas, "z", "y", true); got != winOther {
		t.Fatalf("override by other: got %s, want other", got)
	}
	// Each side picked a different historical resolution.
	if got := lcaMultiWay("base", lcas, "x", "y", true); got != winConflict {
		t.Fatalf("split pick: got %s, want conflict", got)
	}
	// Both introduce new values.
	if got := lcaMultiWay("base", lcas, "p", "q", true); got != winConflict {
		t.Fatalf("both new: got %s, want conflict", got)
	}
	// Overriding disabled (content comparisons): an echoing side no
	// longer loses automatically.
	if got := lcaMultiWay("base", lcas, "y", "z", false); got != winConflict {
		t.Fatalf("override disabled: got %s, want conflict", got)
	}
}

// TestLCAMultiWayCrissCrossAllDiffer covers the criss-cross content
// scenario: the LCAs disagree between x and a historically merged y,
// OTHER still holds y, THIS moved to a brand-new z. With overriding
// disabled (as content comparisons run), no LCA-consistent resolution
// survives and the result conflicts.
func TestLCAMultiWayCrissCrossAllDiffer(t *testing.T) {
	got := lcaMultiWay("b", []string{"x", "y"}, "y", "z", false)
	if got != winConflict {
		t.Fatalf("got %s, want conflict", got)
	}
	// The base-equal LCA value filters away first: when only one distinct
	// value remains the decision quietly degrades and THIS keeps z.
	if got := lcaMultiWay("x", []string{"x", "y"}, "y", "z", true); got != winThis {
		t.Fatalf("got %s, want this after degrading to a single LCA value", got)
	}
}

func TestAbsentValuesCompare(t *testing.T) {
	absent := opt[string]{}
	present := some("a")
	if threeWay(absent, absent, present) != winThis {
		t.Fatal("absent base and other with present this must be this")
	}
	if threeWay(absent, present, absent) != winOther {
		t.Fatal("value added only in other must be other")
	}
	if threeWay(present, absent, some("b")) != winConflict {
		t.Fatal("delete versus rename must conflict")
	}
}
