package main

import (
	"image/color"
	"math"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"

	"github.com/ha1tch/conceptmap/pkg/render"
)

// One terminal cell covers cellW x cellH screen units. The ratio matches
// a typical terminal font so boxes keep their shape.
const (
	cellW = 8.0
	cellH = 16.0
)

// glyphWidth approximates the advance of one character as a fraction of
// the font size.
const glyphWidth = 0.55

// cellSurface paints a scene into a rectangle of terminal cells.
type cellSurface struct {
	screen     tcell.Screen
	x0, y0     int
	cols, rows int
}

var _ render.Surface = (*cellSurface)(nil)

func tcellColor(c color.Color) tcell.Color {
	r, g, b, _ := c.RGBA()
	return tcell.NewRGBColor(int32(r>>8), int32(g>>8), int32(b>>8))
}

func (c *cellSurface) Size() (w, h float64) {
	return float64(c.cols) * cellW, float64(c.rows) * cellH
}

func cellOf(p render.Point) (int, int) {
	return int(math.Floor(p.X / cellW)), int(math.Floor(p.Y / cellH))
}

// rectCells returns the inclusive cell range covered by r.
func rectCells(r render.Rect) (x1, y1, x2, y2 int) {
	minP, maxP := r.Min(), r.Max()
	x1, y1 = cellOf(minP)
	x2, y2 = cellOf(render.Point{X: maxP.X - 1e-6, Y: maxP.Y - 1e-6})
	return x1, y1, max(x1, x2), max(y1, y2)
}

func (c *cellSurface) inside(x, y int) bool {
	return x >= 0 && y >= 0 && x < c.cols && y < c.rows
}

func (c *cellSurface) set(x, y int, r rune, st tcell.Style) {
	if c.inside(x, y) {
		c.screen.SetContent(c.x0+x, c.y0+y, r, nil, st)
	}
}

// over returns the style already at (x, y) with a new foreground, so
// text and lines keep the fill underneath.
func (c *cellSurface) over(x, y int, fg color.Color) tcell.Style {
	_, _, st, _ := c.screen.GetContent(c.x0+x, c.y0+y)
	return st.Foreground(tcellColor(fg))
}

func (c *cellSurface) Clear(col color.Color) {
	st := tcell.StyleDefault.Background(tcellColor(col))
	for y := 0; y < c.rows; y++ {
		for x := 0; x < c.cols; x++ {
			c.set(x, y, ' ', st)
		}
	}
}

func (c *cellSurface) FillRect(r render.Rect, _ float64, col color.Color) {
	st := tcell.StyleDefault.Background(tcellColor(col))
	x1, y1, x2, y2 := rectCells(r)
	for y := y1; y <= y2; y++ {
		for x := x1; x <= x2; x++ {
			c.set(x, y, ' ', st)
		}
	}
}

// Box drawing sets: light rounded for normal borders, heavy for emphasis.
var (
	lightBorder = [6]rune{'╭', '╮', '╰', '╯', '─', '│'}
	heavyBorder = [6]rune{'┏', '┓', '┗', '┛', '━', '┃'}
)

func (c *cellSurface) StrokeRect(r render.Rect, _ float64, width float64, col color.Color) {
	b := lightBorder
	if width >= 2 {
		b = heavyBorder
	}
	x1, y1, x2, y2 := rectCells(r)
	for x := x1 + 1; x < x2; x++ {
		c.set(x, y1, b[4], c.over(x, y1, col))
		c.set(x, y2, b[4], c.over(x, y2, col))
	}
	for y := y1 + 1; y < y2; y++ {
		c.set(x1, y, b[5], c.over(x1, y, col))
		c.set(x2, y, b[5], c.over(x2, y, col))
	}
	c.set(x1, y1, b[0], c.over(x1, y1, col))
	c.set(x2, y1, b[1], c.over(x2, y1, col))
	c.set(x1, y2, b[2], c.over(x1, y2, col))
	c.set(x2, y2, b[3], c.over(x2, y2, col))
}

func (c *cellSurface) Line(a, b render.Point, _ float64, col color.Color) {
	ax, ay := cellOf(a)
	bx, by := cellOf(b)
	ch := '·'
	switch {
	case ay == by:
		ch = '─'
	case ax == bx:
		ch = '│'
	}
	steps := max(abs(bx-ax), abs(by-ay))
	for i := 0; i <= steps; i++ {
		t := 0.0
		if steps > 0 {
			t = float64(i) / float64(steps)
		}
		x := ax + int(math.Round(t*float64(bx-ax)))
		y := ay + int(math.Round(t*float64(by-ay)))
		c.set(x, y, ch, c.over(x, y, col))
	}
}

func (c *cellSurface) QuadCurve(cv render.Curve, _ float64, col color.Color) {
	ax, ay := cellOf(cv.Start)
	bx, by := cellOf(cv.End)
	steps := 2 * max(abs(bx-ax), abs(by-ay), 1)
	px, py := math.MinInt, math.MinInt
	for i := 0; i <= steps; i++ {
		x, y := cellOf(cv.At(float64(i) / float64(steps)))
		if x == px && y == py {
			continue
		}
		px, py = x, y
		c.set(x, y, '·', c.over(x, y, col))
	}
}

// Polygon marks the shape's centroid; arrowheads, flags and markers are
// all smaller than a cell.
func (c *cellSurface) Polygon(pts []render.Point, col color.Color) {
	if len(pts) == 0 {
		return
	}
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	x, y := cellOf(render.Point{X: cx / float64(len(pts)), Y: cy / float64(len(pts))})
	c.set(x, y, '•', c.over(x, y, col))
}

func (c *cellSurface) Text(p render.Point, s string, size float64, col color.Color, align render.Align) {
	// Zoomed out, cut the string to the width it would have at this size.
	if shrink := size * glyphWidth / cellW; shrink < 0.9 {
		room := int(float64(runewidth.StringWidth(s)) * shrink)
		if room < 2 {
			return
		}
		s = truncate.StringWithTail(s, uint(room), render.Ellipsis)
	}
	x, y := cellOf(p)
	if align == render.AlignCenter {
		x -= runewidth.StringWidth(s) / 2
	}
	for _, r := range s {
		c.set(x, y, r, c.over(x, y, col))
		x += runewidth.RuneWidth(r)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
