package domain

import (
	"reflect"
	"testing"
)

func board(n int, owned map[int]Claim) []Claim {
	pts := make([]Claim, n*n*n)
	for p, c := range owned {
		pts[p] = c
	}
	return pts
}

func mustLineSet(t *testing.T, n, m int) *LineSet {
	t.Helper()
	ls, err := NewLineSet(n, m, Windowed)
	if err != nil {
		t.Fatalf("NewLineSet(%d, %d): %v", n, m, err)
	}
	return ls
}

func TestAIOffensiveBeatsDefensive(t *testing.T) {
	ls := mustLineSet(t, 3, 3)
	// B holds 18, 19 (row y=0, z=2); A threatens 0-1-2
	pts := board(3, map[int]Claim{18: PlayerB, 19: PlayerB, 0: PlayerA, 1: PlayerA})
	p, ok := ChooseMove(pts, ls, PlayerB)
	if !ok || p != 20 {
		t.Fatalf("expected offensive move 20, got %d (ok=%v)", p, ok)
	}
}

func TestAIOffensiveBeatsPreferredCell(t *testing.T) {
	ls := mustLineSet(t, 3, 3)
	pts := board(3, map[int]Claim{0: PlayerA, 8: PlayerA})
	p, ok := ChooseMove(pts, ls, PlayerA)
	if !ok || p != 4 {
		t.Fatalf("expected 4 to complete 0-4-8 over the center, got %d", p)
	}
}

func TestAIDefensive(t *testing.T) {
	ls := mustLineSet(t, 3, 3)
	pts := board(3, map[int]Claim{0: PlayerA, 1: PlayerA, 13: PlayerB})
	p, ok := ChooseMove(pts, ls, PlayerB)
	if !ok || p != 2 {
		t.Fatalf("expected block at 2, got %d", p)
	}
}

func TestAIIgnoresBlockedLines(t *testing.T) {
	ls := mustLineSet(t, 3, 3)
	// B already sits on A's only two-point row
	pts := board(3, map[int]Claim{0: PlayerA, 1: PlayerA, 2: PlayerB, 22: PlayerB})
	p, ok := ChooseMove(pts, ls, PlayerB)
	if !ok {
		t.Fatalf("expected a move")
	}
	if p != 13 {
		t.Fatalf("expected the preferred center, got %d", p)
	}
}

func TestAIPreferredThenIndexOrder(t *testing.T) {
	ls := mustLineSet(t, 3, 3)
	if p, _ := ChooseMove(board(3, nil), ls, PlayerA); p != 13 {
		t.Fatalf("expected center on an empty board, got %d", p)
	}
	p, ok := ChooseMove(board(3, map[int]Claim{13: PlayerB}), ls, PlayerA)
	if !ok || p != 0 {
		t.Fatalf("expected first free index 0, got %d", p)
	}
}

func TestAIFullBoard(t *testing.T) {
	ls := mustLineSet(t, 3, 3)
	pts := make([]Claim, 27)
	for i := range pts {
		pts[i] = PlayerA + Claim(i%2)
	}
	if p, ok := ChooseMove(pts, ls, PlayerB); ok || p != -1 {
		t.Fatalf("expected no move on a full board, got %d", p)
	}
}

func TestPreferredCells(t *testing.T) {
	if got := preferredCells(3); !reflect.DeepEqual(got, []int{13}) {
		t.Fatalf("expected [13] for n=3, got %v", got)
	}
	// the eight central points of a 4-cube, in index order
	want := []int{21, 22, 25, 26, 37, 38, 41, 42}
	if got := preferredCells(4); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v for n=4, got %v", want, got)
	}
	got := preferredCells(5)
	if len(got) != 27 || got[0] != 62 {
		t.Fatalf("expected 27 interior cells starting at the center 62, got %v", got)
	}
}
