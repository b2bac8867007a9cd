package render

import (
	"fmt"
	"image"
	stdcolor "image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/watzon/cubeglobe-bot/color"
	"github.com/watzon/cubeglobe-bot/world"
)

const minFontSize = 12

// Renderer paints maps in isometric perspective using a set of tiles.
type Renderer struct {
	tiles *Tiles
	font  *truetype.Font
}

// NewRenderer creates a renderer for the given tiles.
func NewRenderer(tiles *Tiles) (*Renderer, error) {
	font, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse label font: %w", err)
	}
	return &Renderer{tiles: tiles, font: font}, nil
}

// Bounds returns the canvas size needed for m.
func (r *Renderer) Bounds(m *world.Map) (width, height int) {
	t := r.tiles
	s := m.Size()
	width = s*t.Width + 2*t.Padding
	height = (s-1)*t.Width/2 + (m.Height()-1)*t.Side() + t.Height + 2*t.Padding
	return width, height
}

// Render draws m and, when label is not empty, writes it in the bottom left
// corner.
func (r *Renderer) Render(m *world.Map, label string) (image.Image, error) {
	if m.Size() == 0 || m.Height() == 0 {
		return nil, fmt.Errorf("cannot render an empty map")
	}

	t := r.tiles
	width, height := r.Bounds(m)
	dc := gg.NewContext(width, height)

	if t.Background != nil {
		dc.SetColor(t.Background.ToRGBA())
		dc.Clear()
	}

	originX := t.Padding + (m.Size()-1)*t.Width/2
	originY := t.Padding + (m.Height()-1)*t.Side()
	quarter := t.Width / 4

	// A block can only be covered by blocks with greater or equal x, y and
	// z, so lexicographic order paints back to front.
	for x := 0; x < m.Size(); x++ {
		for y := 0; y < m.Size(); y++ {
			for z := 0; z < m.Height(); z++ {
				b := m.At(x, y, z)
				if !b.Solid() || m.Hidden(x, y, z) {
					continue
				}
				sprite := t.Sprite(b)
				if sprite == nil {
					return nil, fmt.Errorf("no sprite for %s", b)
				}
				sx := originX + (x-y)*t.Width/2
				sy := originY + (x+y)*quarter - z*t.Side()
				dc.DrawImage(sprite, sx, sy)
			}
		}
	}

	if label != "" {
		r.drawLabel(dc, label)
	}

	return dc.Image(), nil
}

func (r *Renderer) drawLabel(dc *gg.Context, label string) {
	size := max(r.tiles.Width/2, minFontSize)
	dc.SetFontFace(truetype.NewFace(r.font, &truetype.Options{Size: float64(size)}))

	var fg stdcolor.Color = stdcolor.Black
	if r.tiles.Background != nil {
		fg = color.ContrastColor(*r.tiles.Background)
	}
	dc.SetColor(fg)

	margin := float64(size) / 2
	dc.DrawString(label, float64(r.tiles.Padding)+margin, float64(dc.Height()-r.tiles.Padding)-margin)
}
