package engine

import (
	"github.com/ha1tch/conceptmap/pkg/config"
	"github.com/ha1tch/conceptmap/pkg/expand"
	"github.com/ha1tch/conceptmap/pkg/layout"
	"github.com/ha1tch/conceptmap/pkg/render"
)

// LayoutParams maps the layout section onto solver parameters.
func LayoutParams(c config.LayoutConfig) layout.Params {
	p := layout.DefaultParams()
	if c.Iterations > 0 {
		p.Iterations = c.Iterations
	}
	if c.Repulsion > 0 {
		p.Repulsion = c.Repulsion
	}
	if c.Attraction > 0 {
		p.Attraction = c.Attraction
	}
	if c.IdealLength > 0 {
		p.IdealDistance = c.IdealLength
	}
	if c.Centering >= 0 {
		p.Centering = c.Centering
	}
	if c.Damping > 0 {
		p.Damping = c.Damping
	}
	p.RingGap = c.RingGap
	return p
}

// BoxStyle maps the render section onto box sizing.
func BoxStyle(c config.RenderConfig) render.BoxStyle {
	st := render.DefaultBoxStyle()
	if c.FontSize > 0 {
		st.SubtitleSize = st.SubtitleSize * c.FontSize / st.FontSize
		st.FontSize = c.FontSize
	}
	if c.MinWidth > 0 {
		st.MinWidth = c.MinWidth
	}
	if c.MaxWidth >= st.MinWidth {
		st.MaxWidth = c.MaxWidth
	}
	return st
}

// ExportOptions maps the render section onto export settings.
func ExportOptions(c config.RenderConfig) render.ExportOptions {
	o := render.DefaultExportOptions()
	if c.ExportWidth > 0 {
		o.Width = c.ExportWidth
	}
	if c.ExportHeight > 0 {
		o.Height = c.ExportHeight
	}
	if c.Supersample > 0 {
		o.Supersample = c.Supersample
	}
	return o
}

// ExpandOptions maps the expansion section onto coordinator options.
func ExpandOptions(c config.ExpansionConfig) expand.Options {
	return expand.Options{
		Timeout:     c.Timeout.Duration,
		MaxPrompt:   c.MaxPrompt,
		ChildRadius: c.ChildRadius,
	}
}
