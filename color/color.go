package color

import (
	"fmt"
	"image/color"
	"math"
	"strings"
)

// Color represents an RGB color
type Color struct {
	R uint8
	G uint8
	B uint8
}

// HSL represents a color in HSL space
type HSL struct {
	H float64
	S float64
	L float64
}

// ParseHex parses "#RRGGBB" or "RRGGBB".
func ParseHex(hex string) (Color, error) {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) != 6 {
		return Color{}, fmt.Errorf("invalid hex color %q", hex)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return Color{}, fmt.Errorf("invalid hex color %q: %w", hex, err)
	}
	return Color{R: r, G: g, B: b}, nil
}

// Hex formats the color as "#RRGGBB".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// ToRGBA converts our Color to color.RGBA
func (c Color) ToRGBA() color.RGBA {
	return color.RGBA{c.R, c.G, c.B, 255}
}

// Shade scales the lightness of c by factor, clamped to the valid range.
// Factors below 1 darken, above 1 lighten.
func (c Color) Shade(factor float64) Color {
	hsl := RGBToHSL(c)
	hsl.L = math.Max(0, math.Min(100, hsl.L*factor))
	return HSLToRGB(hsl)
}

// Luminance returns the relative luminance of c in [0, 1].
func (c Color) Luminance() float64 {
	r := float64(c.R) / 255
	g := float64(c.G) / 255
	b := float64(c.B) / 255

	return 0.2126*math.Pow(r, 2.2) + 0.7152*math.Pow(g, 2.2) + 0.0722*math.Pow(b, 2.2)
}

// ContrastColor returns white or black depending on which provides better contrast
func ContrastColor(c Color) color.Color {
	if c.Luminance() > 0.5 {
		return color.Black
	}
	return color.White
}

// RGBToHSL converts to HSL with H in degrees and S, L in percent.
func RGBToHSL(rgb Color) HSL {
	r := float64(rgb.R) / 255
	g := float64(rgb.G) / 255
	b := float64(rgb.B) / 255

	max := math.Max(math.Max(r, g), b)
	min := math.Min(math.Min(r, g), b)
	h, s, l := 0.0, 0.0, (max+min)/2

	if max != min {
		d := max - min
		if l > 0.5 {
			s = d / (2 - max - min)
		} else {
			s = d / (max + min)
		}

		switch max {
		case r:
			h = (g - b) / d
			if g < b {
				h += 6
			}
		case g:
			h = (b-r)/d + 2
		case b:
			h = (r-g)/d + 4
		}
		h /= 6
	}

	return HSL{H: h * 360, S: s * 100, L: l * 100}
}

// HSLToRGB converts HSL back to RGB
func HSLToRGB(hsl HSL) Color {
	h := hsl.H / 360
	s := hsl.S / 100
	l := hsl.L / 100

	var r, g, b float64

	if s == 0 {
		r = l
		g = l
		b = l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q

		r = hueToRGB(p, q, h+1.0/3.0)
		g = hueToRGB(p, q, h)
		b = hueToRGB(p, q, h-1.0/3.0)
	}

	return Color{
		R: uint8(math.Round(r * 255)),
		G: uint8(math.Round(g * 255)),
		B: uint8(math.Round(b * 255)),
	}
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
