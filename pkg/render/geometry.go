// Geometric primitives shared by sizing, hit-testing and drawing.

package render

import (
	"math"

	"github.com/ha1tch/conceptmap/pkg/graph"
)

// Point is a 2D coordinate, in world or screen space depending on use.
type Point = graph.Point

// Rect represents an axis-aligned rectangle.
type Rect struct {
	X, Y float64 // Center
	W, H float64 // Full width and height
}

// Min returns the top-left corner.
func (r Rect) Min() Point { return Point{X: r.X - r.W/2, Y: r.Y - r.H/2} }

// Max returns the bottom-right corner.
func (r Rect) Max() Point { return Point{X: r.X + r.W/2, Y: r.Y + r.H/2} }

// Center returns the rectangle centre.
func (r Rect) Center() Point { return Point{X: r.X, Y: r.Y} }

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return math.Abs(p.X-r.X) <= r.W/2 && math.Abs(p.Y-r.Y) <= r.H/2
}

// Union returns the smallest rectangle covering r and o. A zero-sized
// rectangle at the origin is treated as empty.
func (r Rect) Union(o Rect) Rect {
	if r == (Rect{}) {
		return o
	}
	if o == (Rect{}) {
		return r
	}
	a, b := r.Min(), r.Max()
	c, d := o.Min(), o.Max()
	minX, minY := math.Min(a.X, c.X), math.Min(a.Y, c.Y)
	maxX, maxY := math.Max(b.X, d.X), math.Max(b.Y, d.Y)
	return Rect{X: (minX + maxX) / 2, Y: (minY + maxY) / 2, W: maxX - minX, H: maxY - minY}
}

// RectOverlap returns the overlap area between two rectangles.
// Returns 0 if they don't overlap.
func RectOverlap(a, b Rect) float64 {
	overlapX := (a.W/2 + b.W/2) - math.Abs(a.X-b.X)
	overlapY := (a.H/2 + b.H/2) - math.Abs(a.Y-b.Y)
	if overlapX <= 0 || overlapY <= 0 {
		return 0
	}
	return overlapX * overlapY
}

// rectEdgePoint returns where the ray from r's centre toward p leaves r.
func rectEdgePoint(r Rect, p Point) Point {
	dx, dy := p.X-r.X, p.Y-r.Y
	if dx == 0 && dy == 0 {
		return r.Center()
	}
	tx, ty := math.Inf(1), math.Inf(1)
	if dx != 0 {
		tx = (r.W / 2) / math.Abs(dx)
	}
	if dy != 0 {
		ty = (r.H / 2) / math.Abs(dy)
	}
	t := math.Min(tx, ty)
	return Point{X: r.X + dx*t, Y: r.Y + dy*t}
}
