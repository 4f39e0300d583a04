package render

import (
	"fmt"
	"html"
	"image/color"
	"io"
	"strings"
)

// SVG is a Surface that accumulates SVG elements.
type SVG struct {
	w, h  float64
	title string
	sb    strings.Builder
}

// NewSVG creates a w x h SVG surface. A non-empty title is emitted as the
// document <title>.
func NewSVG(w, h float64, title string) *SVG {
	return &SVG{w: w, h: h, title: title}
}

// Size implements Surface.
func (s *SVG) Size() (float64, float64) { return s.w, s.h }

// Clear implements Surface. Earlier elements are discarded.
func (s *SVG) Clear(c color.Color) {
	s.sb.Reset()
	s.sb.WriteString(fmt.Sprintf(`<rect width="%.0f" height="%.0f" fill="%s"/>
`, s.w, s.h, hexColor(c)))
}

// FillRect implements Surface.
func (s *SVG) FillRect(r Rect, radius float64, c color.Color) {
	min := r.Min()
	s.sb.WriteString(fmt.Sprintf(`<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" rx="%.1f" fill="%s"%s/>
`, min.X, min.Y, r.W, r.H, radius, hexColor(c), opacity(c)))
}

// StrokeRect implements Surface.
func (s *SVG) StrokeRect(r Rect, radius, width float64, c color.Color) {
	min := r.Min()
	s.sb.WriteString(fmt.Sprintf(`<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" rx="%.1f" fill="none" stroke="%s" stroke-width="%.1f"/>
`, min.X, min.Y, r.W, r.H, radius, hexColor(c), width))
}

// Line implements Surface.
func (s *SVG) Line(a, b Point, width float64, c color.Color) {
	s.sb.WriteString(fmt.Sprintf(`<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="%.1f"/>
`, a.X, a.Y, b.X, b.Y, hexColor(c), width))
}

// QuadCurve implements Surface.
func (s *SVG) QuadCurve(cv Curve, width float64, c color.Color) {
	s.sb.WriteString(fmt.Sprintf(`<path d="M%.1f,%.1f Q%.1f,%.1f %.1f,%.1f" fill="none" stroke="%s" stroke-width="%.1f"/>
`, cv.Start.X, cv.Start.Y, cv.Control.X, cv.Control.Y, cv.End.X, cv.End.Y, hexColor(c), width))
}

// Polygon implements Surface.
func (s *SVG) Polygon(pts []Point, c color.Color) {
	if len(pts) < 3 {
		return
	}
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = fmt.Sprintf("%.1f,%.1f", p.X, p.Y)
	}
	s.sb.WriteString(fmt.Sprintf(`<polygon points="%s" fill="%s"/>
`, strings.Join(parts, " "), hexColor(c)))
}

// Text implements Surface.
func (s *SVG) Text(p Point, text string, size float64, c color.Color, align Align) {
	anchor := "middle"
	if align == AlignLeft {
		anchor = "start"
	}
	s.sb.WriteString(fmt.Sprintf(`<text x="%.1f" y="%.1f" font-size="%.1f" fill="%s" text-anchor="%s" dominant-baseline="central">%s</text>
`, p.X, p.Y, size, hexColor(c), anchor, html.EscapeString(text)))
}

// Bytes returns the complete SVG document.
func (s *SVG) Bytes() []byte {
	var out strings.Builder
	out.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f" font-family="Helvetica, Arial, sans-serif">
`, s.w, s.h, s.w, s.h))
	if s.title != "" {
		out.WriteString(fmt.Sprintf("<title>%s</title>\n", html.EscapeString(s.title)))
	}
	out.WriteString(s.sb.String())
	out.WriteString("</svg>\n")
	return []byte(out.String())
}

// WriteTo writes the document to w.
func (s *SVG) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(s.Bytes())
	return int64(n), err
}

func hexColor(c color.Color) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
}

func opacity(c color.Color) string {
	_, _, _, a := c.RGBA()
	if a == 0xffff {
		return ""
	}
	return fmt.Sprintf(` fill-opacity="%.2f"`, float64(a)/0xffff)
}
