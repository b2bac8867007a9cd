package image

import (
	"bytes"
	stdimage "image"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/nfnt/resize"
	"github.com/watzon/cubeglobe-bot/bot/config"
)

// Encoded is an image ready for upload.
type Encoded struct {
	Data      []byte
	MediaType string
	Ext       string
}

// Handler handles image processing operations
type Handler struct {
	maxWidth  int
	maxHeight int
	maxBytes  int
}

// NewHandler creates a new image handler
func NewHandler(cfg *config.Config) *Handler {
	return &Handler{
		maxWidth:  cfg.Bot.MaxWidth,
		maxHeight: cfg.Bot.MaxHeight,
		maxBytes:  cfg.Bot.MaxUploadBytes,
	}
}

// Resize resizes an image maintaining aspect ratio
// to fit within maxWidth x maxHeight bounds
func (h *Handler) Resize(img stdimage.Image) stdimage.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	// If image is already small enough, return as is
	if width <= h.maxWidth && height <= h.maxHeight {
		return img
	}

	// Calculate scaling factor to fit within bounds
	widthRatio := float64(h.maxWidth) / float64(width)
	heightRatio := float64(h.maxHeight) / float64(height)
	ratio := math.Min(widthRatio, heightRatio)

	newWidth := uint(math.Max(1, float64(width)*ratio))
	newHeight := uint(math.Max(1, float64(height)*ratio))

	// Resize using Lanczos resampling
	return resize.Resize(newWidth, newHeight, img, resize.Lanczos3)
}

// ToPNG converts an image to PNG bytes at the best compression level
func (h *Handler) ToPNG(img stdimage.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToJPEG converts an image to JPEG bytes
func (h *Handler) ToJPEG(img stdimage.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode resizes img and encodes it as PNG, falling back to JPEG when the PNG
// exceeds the upload limit.
func (h *Handler) Encode(img stdimage.Image) (*Encoded, error) {
	img = h.Resize(img)

	data, err := h.ToPNG(img)
	if err != nil {
		return nil, err
	}
	if len(data) <= h.maxBytes {
		return &Encoded{Data: data, MediaType: "image/png", Ext: "png"}, nil
	}

	data, err = h.ToJPEG(img)
	if err != nil {
		return nil, err
	}
	return &Encoded{Data: data, MediaType: "image/jpeg", Ext: "jpg"}, nil
}
