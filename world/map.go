package world

// Map is a cubic grid of blocks. x and y run along the ground, z upwards.
type Map struct {
	size   int
	height int
	blocks []Block

	// Parameters the map was generated with
	Seed       int64
	Frequency  float64
	WaterLevel int
	SoilCutoff int
}

// NewMap returns an empty map of size×size columns, height blocks tall.
func NewMap(size, height int) *Map {
	return &Map{
		size:   size,
		height: height,
		blocks: make([]Block, size*size*height),
	}
}

// Size returns the length of the map along x and y.
func (m *Map) Size() int { return m.size }

// Height returns the number of layers.
func (m *Map) Height() int { return m.height }

func (m *Map) inBounds(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < m.size && y < m.size && z < m.height
}

func (m *Map) index(x, y, z int) int {
	return (z*m.size+y)*m.size + x
}

// At returns the block at x, y, z. Cells outside the map are Air.
func (m *Map) At(x, y, z int) Block {
	if !m.inBounds(x, y, z) {
		return Air
	}
	return m.blocks[m.index(x, y, z)]
}

// Set places b at x, y, z. Out of bounds writes are ignored.
func (m *Map) Set(x, y, z int, b Block) {
	if !m.inBounds(x, y, z) {
		return
	}
	m.blocks[m.index(x, y, z)] = b
}

// Top returns the z of the highest non-air block in a column, or -1.
func (m *Map) Top(x, y int) int {
	for z := m.height - 1; z >= 0; z-- {
		if m.At(x, y, z).Solid() {
			return z
		}
	}
	return -1
}

// Hidden reports whether all three faces of the block visible from the
// camera (top, +x and +y) are covered by solid neighbours.
func (m *Map) Hidden(x, y, z int) bool {
	return m.At(x+1, y, z).Solid() &&
		m.At(x, y+1, z).Solid() &&
		m.At(x, y, z+1).Solid()
}

// Count returns how many cells hold b.
func (m *Map) Count(b Block) int {
	n := 0
	for _, c := range m.blocks {
		if c == b {
			n++
		}
	}
	return n
}
