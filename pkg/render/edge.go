package render

import "math"

// DefaultCurvature is the perpendicular midpoint offset as a fraction of
// the edge length.
const DefaultCurvature = 0.15

// Curve is a quadratic Bézier from Start through Control to End.
type Curve struct {
	Start, Control, End Point
}

// EdgeCurve routes a curved edge from the boundary of from to the boundary
// of to. The control point is the midpoint pushed sideways by curvature
// times the distance between the endpoints.
func EdgeCurve(from, to Rect, curvature float64) Curve {
	start := rectEdgePoint(from, to.Center())
	end := rectEdgePoint(to, from.Center())
	dx, dy := end.X-start.X, end.Y-start.Y
	dist := math.Hypot(dx, dy)
	mid := Point{X: (start.X + end.X) / 2, Y: (start.Y + end.Y) / 2}
	if dist < 1e-9 {
		return Curve{Start: start, Control: mid, End: end}
	}
	nx, ny := -dy/dist, dx/dist
	off := dist * curvature
	return Curve{
		Start:   start,
		Control: Point{X: mid.X + nx*off, Y: mid.Y + ny*off},
		End:     end,
	}
}

// At evaluates the curve at t in [0,1].
func (c Curve) At(t float64) Point {
	u := 1 - t
	return Point{
		X: u*u*c.Start.X + 2*u*t*c.Control.X + t*t*c.End.X,
		Y: u*u*c.Start.Y + 2*u*t*c.Control.Y + t*t*c.End.Y,
	}
}

// EndTangent returns the direction of travel at the end of the curve.
func (c Curve) EndTangent() Point {
	return Point{X: c.End.X - c.Control.X, Y: c.End.Y - c.Control.Y}
}

// Transform maps every point of the curve with t.
func (c Curve) Transform(t Transform) Curve {
	return Curve{Start: t.ToScreen(c.Start), Control: t.ToScreen(c.Control), End: t.ToScreen(c.End)}
}

// Arrowhead returns the tip and two wing points of an arrowhead at the
// curve's end, oriented along the end tangent.
func (c Curve) Arrowhead(length, width float64) [3]Point {
	tan := c.EndTangent()
	dist := math.Hypot(tan.X, tan.Y)
	tip := c.End
	if dist < 1e-9 {
		return [3]Point{tip, tip, tip}
	}
	nx, ny := tan.X/dist, tan.Y/dist
	return [3]Point{
		tip,
		{X: tip.X - nx*length + ny*width, Y: tip.Y - ny*length - nx*width},
		{X: tip.X - nx*length - ny*width, Y: tip.Y - ny*length + nx*width},
	}
}
