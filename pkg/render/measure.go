package render

import (
	"fmt"
	"sync"

	"github.com/mattn/go-runewidth"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// Measurer reports the rendered width of text at a font size in pixels.
type Measurer interface {
	Measure(text string, size float64) (float64, error)
}

// FontMeasurer measures with the embedded Go Regular face.
type FontMeasurer struct {
	mu    sync.Mutex
	font  *opentype.Font
	faces map[float64]font.Face
}

// NewFontMeasurer parses the embedded font.
func NewFontMeasurer() (*FontMeasurer, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("render: parse font: %w", err)
	}
	return &FontMeasurer{font: f, faces: map[float64]font.Face{}}, nil
}

// Face returns a cached face at size points and 72 DPI.
func (m *FontMeasurer) Face(size float64) (font.Face, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if face, ok := m.faces[size]; ok {
		return face, nil
	}
	face, err := opentype.NewFace(m.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("render: face at %.1fpt: %w", size, err)
	}
	m.faces[size] = face
	return face, nil
}

// Measure implements Measurer.
func (m *FontMeasurer) Measure(text string, size float64) (float64, error) {
	face, err := m.Face(size)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	adv := font.MeasureString(face, text)
	return float64(adv) / 64, nil
}

// EstimateMeasurer approximates width from terminal cell widths, so wide
// (CJK) runes count double.
type EstimateMeasurer struct {
	// CharWidth is the average glyph width as a fraction of the font size.
	CharWidth float64
}

// Measure implements Measurer. It never fails.
func (e EstimateMeasurer) Measure(text string, size float64) (float64, error) {
	cw := e.CharWidth
	if cw <= 0 {
		cw = 0.6
	}
	return float64(runewidth.StringWidth(text)) * size * cw, nil
}

// safeMeasure uses primary, falling back to the estimate on error or panic.
func safeMeasure(primary, fallback Measurer, text string, size float64) (w float64) {
	if primary != nil {
		ok := func() (ok bool) {
			defer func() {
				if recover() != nil {
					ok = false
				}
			}()
			v, err := primary.Measure(text, size)
			if err != nil {
				return false
			}
			w = v
			return true
		}()
		if ok {
			return w
		}
	}
	if fallback == nil {
		fallback = EstimateMeasurer{}
	}
	w, _ = fallback.Measure(text, size)
	return w
}
