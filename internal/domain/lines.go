package domain

import "fmt"

// LineMode selects how win combinations shorter than the lattice edge are built.
type LineMode uint8

const (
	// Windowed slides a length-M window along every full-length line. Segments that do
	// not lie on a full-length line (short off-center diagonals) are not generated.
	Windowed LineMode = iota
	// Exhaustive generates every length-M segment along all 13 lattice directions.
	Exhaustive
)

func (m LineMode) String() string {
	if m == Exhaustive {
		return "exhaustive"
	}
	return "windowed"
}

// progression is a full-length line: start + stride*k for k in [0, N).
type progression struct {
	start, stride int
}

func (p progression) points(n int) []int {
	out := make([]int, n)
	for k := range out {
		out[k] = p.start + p.stride*k
	}
	return out
}

// fullLines lists every full-length line family in a fixed order: x, y and z axes, xy, xz
// and yz face diagonals (two per layer), then the four space diagonals.
func fullLines(n int) []progression {
	nn := n * n
	out := make([]progression, 0, 3*nn+6*n+4)
	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			out = append(out, progression{n*y + nn*z, 1})
		}
	}
	for z := 0; z < n; z++ {
		for x := 0; x < n; x++ {
			out = append(out, progression{x + nn*z, n})
		}
	}
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			out = append(out, progression{x + n*y, nn})
		}
	}
	for z := 0; z < n; z++ {
		out = append(out,
			progression{nn * z, n + 1},
			progression{nn*z + n - 1, n - 1})
	}
	for y := 0; y < n; y++ {
		out = append(out,
			progression{n * y, nn + 1},
			progression{n*y + n - 1, nn - 1})
	}
	for x := 0; x < n; x++ {
		out = append(out,
			progression{x, nn + n},
			progression{x + n*(n-1), nn - n})
	}
	return append(out,
		progression{0, nn + n + 1},
		progression{n - 1, nn + n - 1},
		progression{n * (n - 1), nn - n + 1},
		progression{nn - 1, nn - n - 1})
}

// directions are the 13 lattice directions whose first non-zero component is positive.
var directions = func() [][3]int {
	var out [][3]int
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				d := [3]int{dx, dy, dz}
				for _, c := range d {
					if c != 0 {
						if c > 0 {
							out = append(out, d)
						}
						break
					}
				}
			}
		}
	}
	return out
}()

// MaxSize is the largest lattice edge the generator accepts. Servers cap it lower.
const MaxSize = 32

func validShape(n, m int) error {
	if n < 3 || n > MaxSize || m < 3 || m > n {
		return fmt.Errorf("%w: size %d, win length %d", ErrInvalidConfig, n, m)
	}
	return nil
}

// GenerateLines returns the windowed win combinations for an n×n×n lattice and win length m.
func GenerateLines(n, m int) ([][]int, error) {
	return GenerateLinesMode(n, m, Windowed)
}

// GenerateLinesMode returns the win combinations for an n×n×n lattice built with mode.
func GenerateLinesMode(n, m int, mode LineMode) ([][]int, error) {
	if err := validShape(n, m); err != nil {
		return nil, err
	}
	if mode == Exhaustive && m < n {
		return segments(n, m), nil
	}
	full := fullLines(n)
	out := make([][]int, 0, len(full)*(n-m+1))
	for _, p := range full {
		line := p.points(n)
		for i := 0; i+m <= n; i++ {
			w := make([]int, m)
			copy(w, line[i:i+m])
			out = append(out, w)
		}
	}
	return out, nil
}

func segments(n, m int) [][]int {
	l := Lattice{N: n}
	var out [][]int
	for i := 0; i < l.Size(); i++ {
		x, y, z := l.Coords(i)
		for _, d := range directions {
			if !l.inside(x+d[0]*(m-1), y+d[1]*(m-1), z+d[2]*(m-1)) {
				continue
			}
			seg := make([]int, m)
			for k := range seg {
				seg[k] = l.Index(x+d[0]*k, y+d[1]*k, z+d[2]*k)
			}
			out = append(out, seg)
		}
	}
	return out
}

// LineSet is an immutable set of win combinations for one lattice shape. It is safe to
// share between games.
type LineSet struct {
	N, M  int
	Mode  LineMode
	Lines [][]int
	// Preferred is the AI's center-biased fallback order.
	Preferred []int
	byPoint   [][]int
}

// NewLineSet generates the combinations for the given shape and indexes them by point.
func NewLineSet(n, m int, mode LineMode) (*LineSet, error) {
	lines, err := GenerateLinesMode(n, m, mode)
	if err != nil {
		return nil, err
	}
	by := make([][]int, n*n*n)
	for li, line := range lines {
		for _, p := range line {
			by[p] = append(by[p], li)
		}
	}
	return &LineSet{N: n, M: m, Mode: mode, Lines: lines, Preferred: preferredCells(n), byPoint: by}, nil
}

// Through returns the indices into Lines of every combination containing point p.
func (s *LineSet) Through(p int) []int {
	if p < 0 || p >= len(s.byPoint) {
		return nil
	}
	return s.byPoint[p]
}
