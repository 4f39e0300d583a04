// Native PNG rendering for concept maps.
// Draws at a supersampled size and downsamples for smooth output.

package render

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"sort"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Raster is a Surface backed by an RGBA image.
type Raster struct {
	img   *image.RGBA
	w, h  int
	ss    float64 // supersample factor
	fonts *FontMeasurer
}

// NewRaster creates a w x h surface drawn at supersample times the
// resolution. A supersample below 1 is treated as 1.
func NewRaster(w, h, supersample int, fonts *FontMeasurer) *Raster {
	if supersample < 1 {
		supersample = 1
	}
	if fonts == nil {
		fonts, _ = NewFontMeasurer()
	}
	return &Raster{
		img:   image.NewRGBA(image.Rect(0, 0, w*supersample, h*supersample)),
		w:     w,
		h:     h,
		ss:    float64(supersample),
		fonts: fonts,
	}
}

// Size implements Surface.
func (r *Raster) Size() (float64, float64) { return float64(r.w), float64(r.h) }

// Clear implements Surface.
func (r *Raster) Clear(c color.Color) {
	draw.Draw(r.img, r.img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// FillRect implements Surface.
func (r *Raster) FillRect(rect Rect, radius float64, c color.Color) {
	min, max := r.scalePt(rect.Min()), r.scalePt(rect.Max())
	rad := math.Min(radius*r.ss, math.Min(max.X-min.X, max.Y-min.Y)/2)
	bounds := r.img.Bounds()
	for y := int(math.Floor(min.Y)); y <= int(math.Ceil(max.Y)); y++ {
		if y < bounds.Min.Y || y >= bounds.Max.Y {
			continue
		}
		for x := int(math.Floor(min.X)); x <= int(math.Ceil(max.X)); x++ {
			if x < bounds.Min.X || x >= bounds.Max.X {
				continue
			}
			if insideRounded(float64(x)+0.5, float64(y)+0.5, min, max, rad) {
				r.img.Set(x, y, c)
			}
		}
	}
}

// StrokeRect implements Surface.
func (r *Raster) StrokeRect(rect Rect, radius, width float64, c color.Color) {
	min, max := rect.Min(), rect.Max()
	rad := math.Min(radius, math.Min(rect.W, rect.H)/2)

	r.Line(Point{X: min.X + rad, Y: min.Y}, Point{X: max.X - rad, Y: min.Y}, width, c)
	r.Line(Point{X: min.X + rad, Y: max.Y}, Point{X: max.X - rad, Y: max.Y}, width, c)
	r.Line(Point{X: min.X, Y: min.Y + rad}, Point{X: min.X, Y: max.Y - rad}, width, c)
	r.Line(Point{X: max.X, Y: min.Y + rad}, Point{X: max.X, Y: max.Y - rad}, width, c)

	corners := []struct {
		cx, cy, from float64
	}{
		{min.X + rad, min.Y + rad, math.Pi},
		{max.X - rad, min.Y + rad, 1.5 * math.Pi},
		{max.X - rad, max.Y - rad, 0},
		{min.X + rad, max.Y - rad, 0.5 * math.Pi},
	}
	for _, k := range corners {
		prev := Point{X: k.cx + rad*math.Cos(k.from), Y: k.cy + rad*math.Sin(k.from)}
		for i := 1; i <= 8; i++ {
			a := k.from + float64(i)/8*math.Pi/2
			p := Point{X: k.cx + rad*math.Cos(a), Y: k.cy + rad*math.Sin(a)}
			r.Line(prev, p, width, c)
			prev = p
		}
	}
}

// Line implements Surface.
func (r *Raster) Line(a, b Point, width float64, c color.Color) {
	a, b = r.scalePt(a), r.scalePt(b)
	thickness := math.Max(width*r.ss, 1)
	halfThick := thickness / 2

	dx := b.X - a.X
	dy := b.Y - a.Y
	dist := math.Sqrt(dx*dx + dy*dy)
	if dist < 1 {
		for ty := -halfThick; ty <= halfThick; ty++ {
			for tx := -halfThick; tx <= halfThick; tx++ {
				r.img.Set(int(a.X+tx), int(a.Y+ty), c)
			}
		}
		return
	}

	perpX := -dy / dist
	perpY := dx / dist
	steps := math.Max(math.Abs(dx), math.Abs(dy))
	for i := 0.0; i <= steps; i++ {
		t := i / steps
		cx := a.X + dx*t
		cy := a.Y + dy*t
		for offset := -halfThick; offset <= halfThick; offset += 0.5 {
			r.img.Set(int(cx+perpX*offset), int(cy+perpY*offset), c)
		}
	}
}

// QuadCurve implements Surface.
func (r *Raster) QuadCurve(cv Curve, width float64, c color.Color) {
	const steps = 48
	prev := cv.Start
	for i := 1; i <= steps; i++ {
		p := cv.At(float64(i) / steps)
		r.Line(prev, p, width, c)
		prev = p
	}
}

// Polygon implements Surface with an even-odd scanline fill.
func (r *Raster) Polygon(pts []Point, c color.Color) {
	if len(pts) < 3 {
		return
	}
	scaled := make([]Point, len(pts))
	minY, maxY := math.Inf(1), math.Inf(-1)
	for i, p := range pts {
		scaled[i] = r.scalePt(p)
		minY = math.Min(minY, scaled[i].Y)
		maxY = math.Max(maxY, scaled[i].Y)
	}
	for y := int(math.Floor(minY)); y <= int(math.Ceil(maxY)); y++ {
		fy := float64(y) + 0.5
		var xs []float64
		for i := range scaled {
			a, b := scaled[i], scaled[(i+1)%len(scaled)]
			if (a.Y <= fy && b.Y > fy) || (b.Y <= fy && a.Y > fy) {
				xs = append(xs, a.X+(fy-a.Y)/(b.Y-a.Y)*(b.X-a.X))
			}
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			for x := int(math.Ceil(xs[i] - 0.5)); x <= int(math.Floor(xs[i+1]-0.5)); x++ {
				r.img.Set(x, y, c)
			}
		}
	}
}

// Text implements Surface using the embedded Go Regular face.
func (r *Raster) Text(p Point, s string, size float64, c color.Color, align Align) {
	if r.fonts == nil || s == "" {
		return
	}
	face, err := r.fonts.Face(size * r.ss)
	if err != nil {
		return
	}
	sp := r.scalePt(p)
	width := font.MeasureString(face, s).Ceil()

	// Put the visual centre of capitals on p.Y: baseline sits below the
	// centre by about a third of the ascent.
	ascent := face.Metrics().Ascent.Ceil()
	baseline := int(sp.Y) + int(float64(ascent)*0.35)

	x := int(sp.X)
	if align == AlignCenter {
		x -= width / 2
	}
	d := &font.Drawer{
		Dst:  r.img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(baseline)},
	}
	d.DrawString(s)
}

// Image returns the surface downsampled to its nominal size.
func (r *Raster) Image() *image.RGBA {
	if r.ss == 1 {
		return r.img
	}
	out := image.NewRGBA(image.Rect(0, 0, r.w, r.h))
	draw.CatmullRom.Scale(out, out.Bounds(), r.img, r.img.Bounds(), draw.Over, nil)
	return out
}

// EncodePNG writes the surface as PNG.
func (r *Raster) EncodePNG(w io.Writer) error {
	return png.Encode(w, r.Image())
}

func (r *Raster) scalePt(p Point) Point {
	return Point{X: p.X * r.ss, Y: p.Y * r.ss}
}

func insideRounded(x, y float64, min, max Point, rad float64) bool {
	if x < min.X || x > max.X || y < min.Y || y > max.Y {
		return false
	}
	cx := math.Max(min.X+rad, math.Min(x, max.X-rad))
	cy := math.Max(min.Y+rad, math.Min(y, max.Y-rad))
	dx, dy := x-cx, y-cy
	return dx*dx+dy*dy <= rad*rad
}
