package domain

// Lattice is an N×N×N grid of points indexed row-major as x + N*y + N²*z.
type Lattice struct {
	N int
}

// Size returns the number of points, N³.
func (l Lattice) Size() int { return l.N * l.N * l.N }

// Valid reports whether i addresses a point of the lattice.
func (l Lattice) Valid(i int) bool { return i >= 0 && i < l.Size() }

// Index encodes lattice coordinates into a point index.
func (l Lattice) Index(x, y, z int) int { return x + l.N*y + l.N*l.N*z }

// Coords decodes a point index back into lattice coordinates.
func (l Lattice) Coords(i int) (x, y, z int) {
	return i % l.N, (i / l.N) % l.N, i / (l.N * l.N)
}

func (l Lattice) inside(x, y, z int) bool {
	return x >= 0 && x < l.N && y >= 0 && y < l.N && z >= 0 && z < l.N
}
