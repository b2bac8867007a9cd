package render

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/nfnt/resize"
	"github.com/pelletier/go-toml/v2"

	"github.com/watzon/cubeglobe-bot/color"
	"github.com/watzon/cubeglobe-bot/world"
)

// ErrInvalidTiles is wrapped by every error caused by a bad tiles file or a
// missing tile asset.
var ErrInvalidTiles = errors.New("invalid tiles configuration")

const (
	defaultTileWidth  = 32
	defaultTileHeight = 32
)

// TileSpec describes how one block kind is drawn: either an image file
// relative to the asset directory, or a flat color drawn as a shaded cube.
type TileSpec struct {
	File  string `toml:"file"`
	Color string `toml:"color"`
}

// TilesConfig is the on-disk tiles file.
type TilesConfig struct {
	AssetDir   string              `toml:"asset_dir"`
	TileWidth  int                 `toml:"tile_width"`
	TileHeight int                 `toml:"tile_height"`
	Background string              `toml:"background"`
	Padding    int                 `toml:"padding"`
	Tiles      map[string]TileSpec `toml:"tiles"`
}

// Tiles holds decoded sprites for every drawable block.
type Tiles struct {
	Width      int
	Height     int
	Padding    int
	Background *color.Color

	sprites map[world.Block]image.Image
}

// Side returns the height of a cube's vertical faces in pixels.
func (t *Tiles) Side() int {
	return t.Height - t.Width/2
}

// Sprite returns the sprite for b, or nil for air.
func (t *Tiles) Sprite(b world.Block) image.Image {
	return t.sprites[b]
}

// LoadTiles reads a tiles file. Relative asset directories are resolved
// against the directory containing the tiles file.
func LoadTiles(path string) (*Tiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read %s: %v", ErrInvalidTiles, path, err)
	}

	var cfg TilesConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: problem reading %s: %v", ErrInvalidTiles, path, err)
	}

	if cfg.AssetDir == "" || !filepath.IsAbs(cfg.AssetDir) {
		cfg.AssetDir = filepath.Join(filepath.Dir(path), cfg.AssetDir)
	}
	return NewTiles(cfg)
}

// NewTiles validates cfg and loads or draws every sprite.
func NewTiles(cfg TilesConfig) (*Tiles, error) {
	if cfg.TileWidth == 0 {
		cfg.TileWidth = defaultTileWidth
	}
	if cfg.TileHeight == 0 {
		cfg.TileHeight = defaultTileHeight
	}
	if cfg.TileWidth < 4 || cfg.TileWidth%4 != 0 {
		return nil, fmt.Errorf("%w: tile_width must be a positive multiple of 4, got %d", ErrInvalidTiles, cfg.TileWidth)
	}
	if cfg.TileHeight <= cfg.TileWidth/2 {
		return nil, fmt.Errorf("%w: tile_height must exceed half of tile_width", ErrInvalidTiles)
	}
	if cfg.Padding < 0 {
		return nil, fmt.Errorf("%w: padding must not be negative", ErrInvalidTiles)
	}

	t := &Tiles{
		Width:   cfg.TileWidth,
		Height:  cfg.TileHeight,
		Padding: cfg.Padding,
		sprites: make(map[world.Block]image.Image, len(world.Blocks)),
	}

	if cfg.Background != "" {
		bg, err := color.ParseHex(cfg.Background)
		if err != nil {
			return nil, fmt.Errorf("%w: background: %v", ErrInvalidTiles, err)
		}
		t.Background = &bg
	}

	for name, spec := range cfg.Tiles {
		b, err := world.ParseBlock(name)
		if err != nil || !b.Solid() {
			return nil, fmt.Errorf("%w: tiles.%s is not a drawable block", ErrInvalidTiles, name)
		}
		sprite, err := loadSprite(cfg.AssetDir, spec, t.Width, t.Height)
		if err != nil {
			return nil, fmt.Errorf("%w: tiles.%s: %v", ErrInvalidTiles, name, err)
		}
		t.sprites[b] = sprite
	}

	for _, b := range world.Blocks {
		if t.sprites[b] == nil {
			return nil, fmt.Errorf("%w: no tile configured for %s", ErrInvalidTiles, b)
		}
	}
	return t, nil
}

func loadSprite(assetDir string, spec TileSpec, w, h int) (image.Image, error) {
	switch {
	case spec.File != "" && spec.Color != "":
		return nil, fmt.Errorf("set either file or color, not both")
	case spec.File != "":
		path := spec.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(assetDir, path)
		}
		img, err := gg.LoadImage(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
			img = resize.Resize(uint(w), uint(h), img, resize.Lanczos3)
		}
		return img, nil
	case spec.Color != "":
		c, err := color.ParseHex(spec.Color)
		if err != nil {
			return nil, err
		}
		return cubeSprite(c, w, h), nil
	default:
		return nil, fmt.Errorf("either file or color is required")
	}
}

// cubeSprite draws an isometric cube whose top face is lit and whose right
// face is in shadow.
func cubeSprite(c color.Color, w, h int) image.Image {
	dc := gg.NewContext(w, h)
	fw, fh := float64(w), float64(h)
	q := fw / 4

	// top
	dc.MoveTo(fw/2, 0)
	dc.LineTo(fw, q)
	dc.LineTo(fw/2, 2*q)
	dc.LineTo(0, q)
	dc.ClosePath()
	dc.SetColor(c.Shade(1.15).ToRGBA())
	dc.Fill()

	// left, facing +y
	dc.MoveTo(0, q)
	dc.LineTo(fw/2, 2*q)
	dc.LineTo(fw/2, fh)
	dc.LineTo(0, fh-q)
	dc.ClosePath()
	dc.SetColor(c.ToRGBA())
	dc.Fill()

	// right, facing +x
	dc.MoveTo(fw/2, 2*q)
	dc.LineTo(fw, q)
	dc.LineTo(fw, fh-q)
	dc.LineTo(fw/2, fh)
	dc.ClosePath()
	dc.SetColor(c.Shade(0.75).ToRGBA())
	dc.Fill()

	return dc.Image()
}
