package render

import (
	"image/color"
	"math"

	"github.com/ha1tch/conceptmap/pkg/mindmap"
)

// Align positions text horizontally relative to its anchor.
type Align int

const (
	AlignCenter Align = iota
	AlignLeft
)

// Surface is a 2D drawing target in screen coordinates.
type Surface interface {
	Size() (w, h float64)
	Clear(c color.Color)
	FillRect(r Rect, radius float64, c color.Color)
	StrokeRect(r Rect, radius, width float64, c color.Color)
	Line(a, b Point, width float64, c color.Color)
	QuadCurve(cv Curve, width float64, c color.Color)
	Polygon(pts []Point, c color.Color)
	// Text draws s with its vertical centre at p.Y.
	Text(p Point, s string, size float64, c color.Color, align Align)
}

// Theme holds the palette.
type Theme struct {
	Background color.RGBA
	Text       color.RGBA
	Muted      color.RGBA
	Edge       color.RGBA
	Border     color.RGBA

	CourseFill color.RGBA
	BookFill   color.RGBA
	AIFill     color.RGBA
	AIBorder   color.RGBA

	Selected  color.RGBA
	Match     color.RGBA
	Current   color.RGBA
	Bookmark  color.RGBA
	Mastery   color.RGBA
	Collapsed color.RGBA
}

// DefaultTheme returns the light palette.
func DefaultTheme() Theme {
	return Theme{
		Background: color.RGBA{255, 255, 255, 255},
		Text:       color.RGBA{51, 51, 51, 255},    // #333
		Muted:      color.RGBA{102, 102, 102, 255}, // #666
		Edge:       color.RGBA{144, 164, 174, 255}, // #90a4ae
		Border:     color.RGBA{84, 110, 122, 255},  // #546e7a

		CourseFill: color.RGBA{227, 242, 253, 255}, // #e3f2fd
		BookFill:   color.RGBA{232, 245, 233, 255}, // #e8f5e9
		AIFill:     color.RGBA{255, 243, 224, 255}, // #fff3e0
		AIBorder:   color.RGBA{230, 81, 0, 255},    // #e65100

		Selected:  color.RGBA{21, 101, 192, 255}, // #1565c0
		Match:     color.RGBA{255, 236, 179, 255}, // #ffecb3
		Current:   color.RGBA{255, 193, 7, 255},   // #ffc107
		Bookmark:  color.RGBA{198, 40, 40, 255},   // #c62828
		Mastery:   color.RGBA{46, 125, 50, 255},   // #2e7d32
		Collapsed: color.RGBA{84, 110, 122, 255},
	}
}

// Renderer paints scenes onto surfaces.
type Renderer struct {
	Style BoxStyle
	Theme Theme
}

// NewRenderer returns a renderer with the given box style and default theme.
func NewRenderer(style BoxStyle) *Renderer {
	return &Renderer{Style: style, Theme: DefaultTheme()}
}

// Draw paints edges first, then nodes, through t.
func (r *Renderer) Draw(s Surface, sc Scene, t Transform) {
	th := r.Theme
	s.Clear(th.Background)

	scale := t.Scale
	if scale <= 0 {
		scale = 1
	}
	lineW := math.Max(1, 1.5*scale)

	for _, e := range sc.Edges {
		cv := e.Curve.Transform(t)
		s.QuadCurve(cv, lineW, th.Edge)
		head := cv.Arrowhead(8*scale, 4*scale)
		s.Polygon(head[:], th.Edge)
	}

	for _, n := range sc.Nodes {
		r.drawNode(s, n, t, scale)
	}
}

func (r *Renderer) drawNode(s Surface, n NodeView, t Transform, scale float64) {
	th := r.Theme
	st := r.Style
	rect := t.RectToScreen(n.Rect)
	radius := 8 * scale

	fill := th.CourseFill
	border := th.Border
	switch n.Node.Source {
	case mindmap.SourceBook:
		fill = th.BookFill
	case mindmap.SourceAIGenerated:
		fill = th.AIFill
		border = th.AIBorder
	}
	if n.Match {
		fill = th.Match
	}
	borderW := math.Max(1, 1.5*scale)
	if n.Current {
		border = th.Current
		borderW = math.Max(2, 3*scale)
	}
	if n.Selected {
		border = th.Selected
		borderW = math.Max(2, 3*scale)
	}

	s.FillRect(rect, radius, fill)
	s.StrokeRect(rect, radius, borderW, border)

	// Text block, vertically centred within the padding.
	fontSize := st.FontSize * scale
	lineH := fontSize * st.LineHeight
	top := rect.Y - rect.H/2 + st.PaddingY*scale
	for i, line := range n.Box.Lines {
		y := top + lineH*(float64(i)+0.5)
		s.Text(Point{X: rect.X, Y: y}, line, fontSize, th.Text, AlignCenter)
	}
	y := top + lineH*float64(len(n.Box.Lines))
	if n.Box.Subtitle != "" {
		subSize := st.SubtitleSize * scale
		subH := subSize * st.LineHeight
		s.Text(Point{X: rect.X, Y: y + subH/2}, n.Box.Subtitle, subSize, th.Muted, AlignCenter)
		y += subH
	}
	if n.Box.RefLabel != "" {
		refSize := st.SubtitleSize * 0.9 * scale
		s.Text(Point{X: rect.X, Y: y + st.ReferenceRoom*scale/2}, n.Box.RefLabel, refSize, th.Muted, AlignCenter)
	}

	if n.Node.Bookmarked {
		// Corner flag in the top-right.
		x1 := rect.X + rect.W/2 - 14*scale
		y1 := rect.Y - rect.H/2
		s.Polygon([]Point{
			{X: x1, Y: y1},
			{X: x1 + 8*scale, Y: y1},
			{X: x1 + 8*scale, Y: y1 + 12*scale},
			{X: x1 + 4*scale, Y: y1 + 8*scale},
			{X: x1, Y: y1 + 12*scale},
		}, th.Bookmark)
	}

	if n.Node.Mastery >= 0 {
		barW := (rect.W - 2*radius) * float64(n.Node.Mastery) / 100
		if barW > 0 {
			by := rect.Y + rect.H/2 - 3*scale
			s.Line(Point{X: rect.X - rect.W/2 + radius, Y: by}, Point{X: rect.X - rect.W/2 + radius + barW, Y: by}, 2*scale, th.Mastery)
		}
	}

	// Collapsed nodes with children show a small marker below the box.
	if !n.Node.Expanded && n.HasChildren {
		cx, cy := rect.X, rect.Y+rect.H/2
		s.Polygon([]Point{
			{X: cx - 4*scale, Y: cy + 2*scale},
			{X: cx + 4*scale, Y: cy + 2*scale},
			{X: cx, Y: cy + 7*scale},
		}, th.Collapsed)
	}
}
