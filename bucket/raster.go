package bucket

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	ErrEmptyImage = errors.New("tileflow: empty image data")
	ErrDecode     = errors.New("tileflow: image decode failed")
)

// Raster holds one decoded raster tile ready for texture upload.
type Raster struct {
	layer  string
	format string
	image  *image.RGBA
}

// DecodeRaster decodes a PNG, JPEG or WebP payload into RGBA pixels.
func DecodeRaster(layer string, data []byte) (*Raster, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(img.Bounds())
		draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	}
	return &Raster{layer: layer, format: format, image: rgba}, nil
}

func (b *Raster) Layer() string   { return b.layer }
func (b *Raster) HasData() bool   { return b.image != nil && !b.image.Rect.Empty() }
func (b *Raster) SwapRenderData() {}

// Image returns the decoded pixels.
func (b *Raster) Image() *image.RGBA { return b.image }

// Format returns the name of the decoded image format ("png", "jpeg", "webp").
func (b *Raster) Format() string { return b.format }
