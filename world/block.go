package world

import "fmt"

// Block is the material occupying one cell of a Map.
type Block uint8

const (
	Air Block = iota
	Water
	Sand
	Grass
	Soil
	Rock
)

var blockNames = [...]string{
	Air:   "air",
	Water: "water",
	Sand:  "sand",
	Grass: "grass",
	Soil:  "soil",
	Rock:  "rock",
}

// Blocks lists every block kind that is drawn, in declaration order.
var Blocks = []Block{Water, Sand, Grass, Soil, Rock}

func (b Block) String() string {
	if int(b) < len(blockNames) {
		return blockNames[b]
	}
	return fmt.Sprintf("block(%d)", uint8(b))
}

// Solid reports whether the block hides what is behind it.
func (b Block) Solid() bool {
	return b != Air
}

// ParseBlock returns the block with the given name, as used in tiles files.
func ParseBlock(name string) (Block, error) {
	for i, n := range blockNames {
		if n == name {
			return Block(i), nil
		}
	}
	return Air, fmt.Errorf("unknown block %q", name)
}
