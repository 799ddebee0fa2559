package domain

import "sort"

// ChooseMove returns the point the AI playing ai claims next. Tiers are tried in order and
// the first hit wins:
//
//  1. complete a combination where ai holds all but one point and the opponent none
//  2. occupy the open point of a combination the opponent is one short of
//  3. the first free preferred (center-biased) cell
//  4. the first free point by index
//
// ok is false only when the board is full.
func ChooseMove(points []Claim, ls *LineSet, ai Claim) (p int, ok bool) {
	opp := ai.Opponent()
	if p, ok = completing(points, ls, ai, opp); ok {
		return p, true
	}
	if p, ok = completing(points, ls, opp, ai); ok {
		return p, true
	}
	for _, p := range ls.Preferred {
		if points[p] == Unclaimed {
			return p, true
		}
	}
	for p, c := range points {
		if c == Unclaimed {
			return p, true
		}
	}
	return -1, false
}

// completing finds the open point of the first combination where mine holds M-1 points and
// theirs holds none.
func completing(points []Claim, ls *LineSet, mine, theirs Claim) (int, bool) {
	for _, line := range ls.Lines {
		own, open := 0, -1
		blocked := false
		for _, p := range line {
			switch points[p] {
			case mine:
				own++
			case theirs:
				blocked = true
			default:
				open = p
			}
			if blocked {
				break
			}
		}
		if !blocked && own == len(line)-1 && open >= 0 {
			return open, true
		}
	}
	return -1, false
}

// preferredCells lists the interior points (no coordinate on a face) nearest the center
// first, ties by index. For n = 3 that is just the center.
func preferredCells(n int) []int {
	l := Lattice{N: n}
	var cells []int
	for i := 0; i < l.Size(); i++ {
		x, y, z := l.Coords(i)
		if x > 0 && x < n-1 && y > 0 && y < n-1 && z > 0 && z < n-1 {
			cells = append(cells, i)
		}
	}
	// distances are doubled to stay in integers for even n
	dist := func(i int) int {
		x, y, z := l.Coords(i)
		dx, dy, dz := 2*x-(n-1), 2*y-(n-1), 2*z-(n-1)
		return dx*dx + dy*dy + dz*dz
	}
	sort.SliceStable(cells, func(a, b int) bool {
		return dist(cells[a]) < dist(cells[b])
	})
	return cells
}
