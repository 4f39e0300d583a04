package render

import "math"

const (
	MinScale = 0.1
	MaxScale = 4.0
)

// Transform maps world coordinates to screen coordinates:
// screen = world*Scale + Pan.
type Transform struct {
	Scale float64
	PanX  float64
	PanY  float64
}

// Identity returns a transform with unit scale and no pan.
func Identity() Transform {
	return Transform{Scale: 1}
}

func (t Transform) scale() float64 {
	if t.Scale <= 0 {
		return 1
	}
	return t.Scale
}

// ToScreen maps a world point to the screen.
func (t Transform) ToScreen(p Point) Point {
	s := t.scale()
	return Point{X: p.X*s + t.PanX, Y: p.Y*s + t.PanY}
}

// ToWorld maps a screen point to the world. It is the inverse of ToScreen.
func (t Transform) ToWorld(p Point) Point {
	s := t.scale()
	return Point{X: (p.X - t.PanX) / s, Y: (p.Y - t.PanY) / s}
}

// RectToScreen maps a world rectangle to the screen.
func (t Transform) RectToScreen(r Rect) Rect {
	c := t.ToScreen(r.Center())
	s := t.scale()
	return Rect{X: c.X, Y: c.Y, W: r.W * s, H: r.H * s}
}

// ZoomAt multiplies the scale by factor, keeping the world point under
// anchor (a screen point) fixed. The scale is clamped to [MinScale, MaxScale].
func (t Transform) ZoomAt(factor float64, anchor Point) Transform {
	world := t.ToWorld(anchor)
	next := clamp(t.scale()*factor, MinScale, MaxScale)
	return Transform{
		Scale: next,
		PanX:  anchor.X - world.X*next,
		PanY:  anchor.Y - world.Y*next,
	}
}

// Pan shifts the view by a screen-space delta.
func (t Transform) Pan(dx, dy float64) Transform {
	t.PanX += dx
	t.PanY += dy
	return t
}

// CenterOn pans so the world point sits in the middle of a viewW x viewH
// viewport. The scale is unchanged.
func (t Transform) CenterOn(p Point, viewW, viewH float64) Transform {
	s := t.scale()
	return Transform{Scale: s, PanX: viewW/2 - p.X*s, PanY: viewH/2 - p.Y*s}
}

// Fit returns the transform that shows bounds inside the viewport with
// padding on every side, centred. The scale never exceeds 1 so small maps
// are not blown up.
func Fit(bounds Rect, viewW, viewH, padding float64) Transform {
	if bounds.W <= 0 || bounds.H <= 0 {
		return Identity().CenterOn(bounds.Center(), viewW, viewH)
	}
	availW := math.Max(viewW-2*padding, 1)
	availH := math.Max(viewH-2*padding, 1)
	s := clamp(math.Min(math.Min(availW/bounds.W, availH/bounds.H), 1), MinScale, MaxScale)
	return Transform{Scale: s}.CenterOn(bounds.Center(), viewW, viewH)
}
