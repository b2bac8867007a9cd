package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGenerator(t *testing.T, opts Options) *Generator {
	t.Helper()
	g, err := NewGenerator(opts)
	require.NoError(t, err)
	return g
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions(32)
	assert.Equal(t, 32, o.Size)
	assert.Equal(t, 16, o.Height)
	assert.NoError(t, o.validate())

	small := DefaultOptions(2)
	assert.Equal(t, 4, small.Height)
	assert.NoError(t, small.validate())
}

func TestNewGenerator_Invalid(t *testing.T) {
	tests := map[string]func(*Options){
		"size":        func(o *Options) { o.Size = 0 },
		"height":      func(o *Options) { o.Height = 0 },
		"frequency":   func(o *Options) { o.MinFrequency = 0 },
		"inverted":    func(o *Options) { o.MinFrequency, o.MaxFrequency = 0.2, 0.1 },
		"layer":       func(o *Options) { o.LayerHeight = 0 },
		"soil cutoff": func(o *Options) { o.MinSoilCutoff = o.Height + 1 },
		"water":       func(o *Options) { o.MaxWaterLevel = o.Height },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			o := DefaultOptions(16)
			mutate(&o)
			_, err := NewGenerator(o)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	opts := DefaultOptions(16)
	opts.MinFrequency, opts.MaxFrequency = 0.03, 0.09
	g := newGenerator(t, opts)

	a := g.Generate(1234)
	b := g.Generate(1234)
	assert.Equal(t, a, b)

	c := g.Generate(4321)
	assert.NotEqual(t, a.blocks, c.blocks)
}

func TestGenerate_Shape(t *testing.T) {
	opts := DefaultOptions(20)
	opts.MaxWaterLevel = 3
	g := newGenerator(t, opts)
	m := g.Generate(99)

	assert.Equal(t, 20, m.Size())
	assert.Equal(t, opts.Height, m.Height())
	assert.Equal(t, int64(99), m.Seed)
	assert.InDelta(t, defaultFrequency, m.Frequency, 1e-12)
	assert.GreaterOrEqual(t, m.WaterLevel, 0)
	assert.LessOrEqual(t, m.WaterLevel, 3)
	assert.GreaterOrEqual(t, m.SoilCutoff, opts.MinSoilCutoff)
	assert.Less(t, m.SoilCutoff, opts.Height)

	for x := 0; x < m.Size(); x++ {
		for y := 0; y < m.Size(); y++ {
			// Every column has ground
			require.True(t, m.At(x, y, 0).Solid())

			top := m.Top(x, y)
			require.GreaterOrEqual(t, top, 0)

			// No air gaps below the top block
			for z := 0; z <= top; z++ {
				require.True(t, m.At(x, y, z).Solid(), "gap at %d,%d,%d", x, y, z)
			}

			// Water never floats above the water level
			for z := m.WaterLevel + 1; z < m.Height(); z++ {
				require.NotEqual(t, Water, m.At(x, y, z))
			}

			// Everything below the water level is filled
			for z := 0; z <= m.WaterLevel; z++ {
				require.NotEqual(t, Air, m.At(x, y, z))
			}

			ground := top
			for ground >= 0 && m.At(x, y, ground) == Water {
				ground--
			}
			if ground >= m.SoilCutoff {
				assert.Equal(t, Rock, m.At(x, y, ground))
			}
		}
	}
}

func TestGenerate_LayerHeight(t *testing.T) {
	opts := DefaultOptions(16)
	opts.LayerHeight = 3
	opts.MaxWaterLevel = 0
	m := newGenerator(t, opts).Generate(7)

	for x := 0; x < m.Size(); x++ {
		for y := 0; y < m.Size(); y++ {
			ground := m.Top(x, y)
			for ground >= 0 && m.At(x, y, ground) == Water {
				ground--
			}
			h := ground + 1
			assert.True(t, h == 1 || h%3 == 0, "column %d,%d has height %d", x, y, h)
		}
	}
}

func TestGenerateRandom(t *testing.T) {
	m := newGenerator(t, DefaultOptions(8)).GenerateRandom()
	assert.Equal(t, 8, m.Size())
}
