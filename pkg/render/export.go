package render

import (
	"fmt"
	"io"

	"github.com/ha1tch/conceptmap/pkg/graph"
)

// ExportOptions controls static PNG and SVG export.
type ExportOptions struct {
	Width       int    // canvas width in pixels
	Height      int    // canvas height in pixels
	Padding     int    // padding around the map
	Supersample int    // PNG only
	Title       string // SVG only
	Highlight   Highlight
}

// DefaultExportOptions returns sensible defaults.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		Width:       1600,
		Height:      1200,
		Padding:     40,
		Supersample: 2,
	}
}

func (o *ExportOptions) normalize() {
	def := DefaultExportOptions()
	if o.Width <= 0 {
		o.Width = def.Width
	}
	if o.Height <= 0 {
		o.Height = def.Height
	}
	if o.Padding < 0 {
		o.Padding = 0
	}
	if o.Supersample <= 0 {
		o.Supersample = def.Supersample
	}
}

// Exporter paints a store's visible nodes to static images, fitting the
// map into the canvas.
type Exporter struct {
	Renderer *Renderer
	Sizer    *Sizer
}

// NewExporter returns an exporter with the default style and theme.
func NewExporter() *Exporter {
	style := DefaultBoxStyle()
	return &Exporter{Renderer: NewRenderer(style), Sizer: NewSizer(style)}
}

func (e *Exporter) prepare(s *graph.Store, opts ExportOptions) (Scene, Transform, error) {
	if s.Empty() {
		return Scene{}, Transform{}, graph.ErrEmpty
	}
	sc := BuildScene(s, e.Sizer, opts.Highlight)
	t := Fit(sc.Bounds, float64(opts.Width), float64(opts.Height), float64(opts.Padding))
	return sc, t, nil
}

// PNG renders the store and writes it to w as PNG.
func (e *Exporter) PNG(w io.Writer, s *graph.Store, opts ExportOptions) error {
	opts.normalize()
	sc, t, err := e.prepare(s, opts)
	if err != nil {
		return err
	}
	var fonts *FontMeasurer
	if fm, ok := e.Sizer.Primary.(*FontMeasurer); ok {
		fonts = fm
	}
	r := NewRaster(opts.Width, opts.Height, opts.Supersample, fonts)
	e.Renderer.Draw(r, sc, t)
	if err := r.EncodePNG(w); err != nil {
		return fmt.Errorf("render: encode png: %w", err)
	}
	return nil
}

// SVG renders the store and writes it to w as an SVG document.
func (e *Exporter) SVG(w io.Writer, s *graph.Store, opts ExportOptions) error {
	opts.normalize()
	sc, t, err := e.prepare(s, opts)
	if err != nil {
		return err
	}
	out := NewSVG(float64(opts.Width), float64(opts.Height), opts.Title)
	e.Renderer.Draw(out, sc, t)
	if _, err := out.WriteTo(w); err != nil {
		return fmt.Errorf("render: write svg: %w", err)
	}
	return nil
}
