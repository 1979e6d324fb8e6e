package glyph

import (
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// BaseSize is the font size glyphs are laid out at before scaling to the label size.
const BaseSize = 24

// Metrics measures label text with one font face. It is safe for concurrent use.
type Metrics struct {
	mu   sync.Mutex
	face font.Face
	size float64
}

// NewMetrics parses an OpenType/TrueType font.
func NewMetrics(ttf []byte, size float64) (*Metrics, error) {
	f, err := opentype.Parse(ttf)
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, err
	}
	return &Metrics{face: face, size: size}, nil
}

// NewDefaultMetrics measures with the Go Regular font.
func NewDefaultMetrics() (*Metrics, error) {
	return NewMetrics(goregular.TTF, BaseSize)
}

// Measure returns the width and height in pixels of text rendered at size.
func (m *Metrics) Measure(text string, size float64) (width, height float64) {
	if size <= 0 {
		size = m.size
	}
	scale := size / m.size

	m.mu.Lock()
	advance := font.MeasureString(m.face, text)
	metrics := m.face.Metrics()
	m.mu.Unlock()

	return toFloat(advance) * scale, toFloat(metrics.Ascent+metrics.Descent) * scale
}

func toFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
