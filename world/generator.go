package world

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/ojrac/opensimplex-go"
)

// ErrInvalidOptions is wrapped by errors from NewGenerator.
var ErrInvalidOptions = errors.New("invalid generator options")

const (
	defaultFrequency = 0.05
	octaves          = 3
	soilDepth        = 2
)

// Options control the shape of generated terrain.
type Options struct {
	// Size is the number of columns along each horizontal axis.
	Size int
	// Height is the number of layers.
	Height int

	// The noise frequency is drawn from [MinFrequency, MaxFrequency).
	MinFrequency float64
	MaxFrequency float64

	// Column heights are rounded down to multiples of LayerHeight.
	LayerHeight int

	// Column tops at or above a cutoff drawn from [MinSoilCutoff, Height)
	// are bare rock.
	MinSoilCutoff int

	// The water level is drawn from [0, MaxWaterLevel].
	MaxWaterLevel int
}

// DefaultOptions returns the options used for a map of the given size when
// nothing else is configured.
func DefaultOptions(size int) Options {
	height := max(size/2, 4)
	return Options{
		Size:          size,
		Height:        height,
		MinFrequency:  defaultFrequency,
		MaxFrequency:  defaultFrequency,
		LayerHeight:   1,
		MinSoilCutoff: height * 2 / 3,
		MaxWaterLevel: height / 4,
	}
}

func (o Options) validate() error {
	switch {
	case o.Size <= 0:
		return fmt.Errorf("%w: size must be positive", ErrInvalidOptions)
	case o.Height <= 0:
		return fmt.Errorf("%w: height must be positive", ErrInvalidOptions)
	case o.MinFrequency <= 0 || o.MaxFrequency < o.MinFrequency:
		return fmt.Errorf("%w: frequency range [%g, %g) is empty or not positive", ErrInvalidOptions, o.MinFrequency, o.MaxFrequency)
	case o.LayerHeight < 1:
		return fmt.Errorf("%w: layer height must be at least 1", ErrInvalidOptions)
	case o.MinSoilCutoff < 0 || o.MinSoilCutoff > o.Height:
		return fmt.Errorf("%w: soil cutoff must be within [0, %d]", ErrInvalidOptions, o.Height)
	case o.MaxWaterLevel < 0 || o.MaxWaterLevel >= o.Height:
		return fmt.Errorf("%w: water level must be within [0, %d)", ErrInvalidOptions, o.Height)
	}
	return nil
}

// Generator produces terrain maps
type Generator struct {
	opts Options
}

// NewGenerator creates a new terrain generator
func NewGenerator(opts Options) (*Generator, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Generator{opts: opts}, nil
}

// Options returns the options the generator was created with.
func (g *Generator) Options() Options {
	return g.opts
}

// GenerateRandom generates a map from a random seed
func (g *Generator) GenerateRandom() *Map {
	return g.Generate(rand.Int63())
}

// Generate builds the map for seed. The same seed always yields the same map.
func (g *Generator) Generate(seed int64) *Map {
	o := g.opts
	rng := rand.New(rand.NewSource(seed))

	m := NewMap(o.Size, o.Height)
	m.Seed = seed
	m.Frequency = o.MinFrequency
	if o.MaxFrequency > o.MinFrequency {
		m.Frequency += rng.Float64() * (o.MaxFrequency - o.MinFrequency)
	}
	m.WaterLevel = rng.Intn(o.MaxWaterLevel + 1)
	m.SoilCutoff = o.Height
	if o.MinSoilCutoff < o.Height {
		m.SoilCutoff = o.MinSoilCutoff + rng.Intn(o.Height-o.MinSoilCutoff)
	}

	noise := opensimplex.NewNormalized(seed)

	for x := 0; x < o.Size; x++ {
		for y := 0; y < o.Size; y++ {
			h := columnHeight(noise, x, y, m.Frequency, o)
			fillColumn(m, x, y, h)
		}
	}
	return m
}

// columnHeight samples fractal noise and returns a height in [1, Height].
func columnHeight(noise opensimplex.Noise, x, y int, freq float64, o Options) int {
	var sum, norm float64
	amp, f := 1.0, freq
	for i := 0; i < octaves; i++ {
		sum += amp * noise.Eval2(float64(x)*f, float64(y)*f)
		norm += amp
		amp /= 2
		f *= 2
	}
	n := sum / norm

	h := 1 + int(n*float64(o.Height))
	h = min(max(h, 1), o.Height)
	if o.LayerHeight > 1 {
		h = max(h/o.LayerHeight*o.LayerHeight, 1)
	}
	return h
}

// fillColumn stacks the blocks of a column whose top solid block sits at h-1.
func fillColumn(m *Map, x, y, h int) {
	top := h - 1
	for z := 0; z < h; z++ {
		var b Block
		switch {
		case z == top && top >= m.SoilCutoff:
			b = Rock
		case z == top && top <= m.WaterLevel+1:
			b = Sand
		case z == top:
			b = Grass
		case z >= top-soilDepth && top < m.SoilCutoff:
			if top <= m.WaterLevel+1 {
				b = Sand
			} else {
				b = Soil
			}
		default:
			b = Rock
		}
		m.Set(x, y, z, b)
	}
	for z := h; z <= m.WaterLevel && z < m.Height(); z++ {
		m.Set(x, y, z, Water)
	}
}
