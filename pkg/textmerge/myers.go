package textmerge

// Block is a run of identical lines: a[AStart:AStart+Len] == b[BStart:BStart+Len].
type Block struct {
	AStart, BStart, Len int
}

// MatchingBlocks computes the maximal runs of equal lines between a and b
// using the Myers shortest-edit-script algorithm on whole lines. Blocks
// come out in ascending order and never overlap; a zero-length sentinel
// block at (len(a), len(b)) terminates the list.
//
// Runs in O((N+M)*D) where D is the edit distance.
func MatchingBlocks(a, b []string) []Block {
	n, m := len(a), len(b)
	var blocks []Block

	if n > 0 && m > 0 {
		trace, dFinal := myersForward(a, b)
		blocks = backtrackBlocks(trace, a, b, dFinal)
	}
	return append(blocks, Block{AStart: n, BStart: m})
}

// myersForward runs the forward pass, returning v-array snapshots per
// edit-distance step and the final distance.
func myersForward(a, b []string) ([][]int, int) {
	n, m := len(a), len(b)
	max := n + m
	size := 2*max + 1
	v := make([]int, size)
	var trace [][]int

	for d := 0; d <= max; d++ {
		for k := -d; k <= d; k += 2 {
			idx := k + max
			var x int
			if k == -d || (k != d && v[idx-1] < v[idx+1]) {
				x = v[idx+1]
			} else {
				x = v[idx-1] + 1
			}
			y := x - k
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[idx] = x
			if x >= n && y >= m {
				snap := make([]int, size)
				copy(snap, v)
				trace = append(trace, snap)
				return trace, d
			}
		}
		snap := make([]int, size)
		copy(snap, v)
		trace = append(trace, snap)
	}
	return trace, max
}

// backtrackBlocks walks the trace backwards, collecting runs of diagonal
// moves as matching blocks.
func backtrackBlocks(trace [][]int, a, b []string, dFinal int) []Block {
	n, m := len(a), len(b)
	max := n + m
	x, y := n, m

	var rev []Block
	appendRun := func(endX, endY, startX, startY int) {
		if endX > startX {
			rev = append(rev, Block{AStart: startX, BStart: startY, Len: endX - startX})
		}
	}

	for d := dFinal; d > 0; d-- {
		k := x - y
		idx := k + max
		vPrev := trace[d-1]

		var prevK int
		if k == -d || (k != d && vPrev[idx-1] < vPrev[idx+1]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := vPrev[prevK+max]
		prevY := prevX - prevK

		// Diagonal run above the edit step.
		runEndX, runEndY := x, y
		for x > prevX && y > prevY {
			x--
			y--
		}
		appendRun(runEndX, runEndY, x, y)

		if k == prevK+1 {
			x-- // delete from a
		} else {
			y-- // insert from b
		}
	}

	// Leading diagonal at d=0.
	appendRun(x, y, 0, 0)

	// Reverse into forward order and merge adjacent runs.
	var blocks []Block
	for i := len(rev) - 1; i >= 0; i-- {
		blk := rev[i]
		if n := len(blocks); n > 0 {
			last := &blocks[n-1]
			if last.AStart+last.Len == blk.AStart && last.BStart+last.Len == blk.BStart {
				last.Len += blk.Len
				continue
			}
		}
		blocks = append(blocks, blk)
	}
	return blocks
}
