// Package layout positions concepts: radial and layered seeding, a
// force-directed solver, and an eased animation toward solved positions
// driven by a frame scheduler.
package layout

import (
	"math"

	"github.com/ha1tch/conceptmap/pkg/graph"
)

// Point is a world-space position.
type Point = graph.Point

// Params configures the force solver.
type Params struct {
	Iterations    int
	Repulsion     float64 // k_r in k_r/d²
	Attraction    float64 // k_a in (d-ideal)*k_a
	IdealDistance float64
	Centering     float64 // pull toward Center, proportional to displacement
	Damping       float64
	MaxStep       float64 // cap on per-iteration movement
	RingGap       float64 // radial seed ring spacing; zero derives it from IdealDistance
	Center        Point
}

// DefaultParams returns the solver settings used for concept maps.
func DefaultParams() Params {
	return Params{
		Iterations:    100,
		Repulsion:     8000,
		Attraction:    0.05,
		IdealDistance: 150,
		Centering:     0.01,
		Damping:       0.85,
		MaxStep:       50,
	}
}

// Body is one simulated node.
type Body struct {
	ID     string
	Pos    Point
	Pinned bool
}

// Edge connects two bodies by index.
type Edge struct {
	From, To int
}

const minDistance = 0.01

// Solve runs a bounded number of force iterations and returns the final
// positions, index-aligned with bodies. Pinned bodies feel forces but do
// not move. Any non-finite result leaves that body at its last good
// position.
func Solve(bodies []Body, edges []Edge, p Params) []Point {
	n := len(bodies)
	pos := make([]Point, n)
	for i, b := range bodies {
		pos[i] = b.Pos
	}
	if n == 0 {
		return pos
	}
	if p.Iterations <= 0 {
		p.Iterations = DefaultParams().Iterations
	}

	fx := make([]float64, n)
	fy := make([]float64, n)

	for iter := 0; iter < p.Iterations; iter++ {
		for i := range fx {
			fx[i], fy[i] = 0, 0
		}

		// Repulsion between all pairs
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				dx := pos[i].X - pos[j].X
				dy := pos[i].Y - pos[j].Y
				dist := math.Sqrt(dx*dx + dy*dy)
				if dist < minDistance {
					// Coincident: separate along a direction derived from the pair.
					angle := float64(i*31+j*17) * 0.618
					dx, dy = math.Cos(angle), math.Sin(angle)
					dist = 1
				}
				force := p.Repulsion / (dist * dist)
				ux, uy := dx/dist, dy/dist
				fx[i] += force * ux
				fy[i] += force * uy
				fx[j] -= force * ux
				fy[j] -= force * uy
			}
		}

		// Spring attraction toward the ideal length along edges
		for _, e := range edges {
			a, b := e.From, e.To
			if a == b || a < 0 || b < 0 || a >= n || b >= n {
				continue
			}
			dx := pos[b].X - pos[a].X
			dy := pos[b].Y - pos[a].Y
			dist := math.Sqrt(dx*dx + dy*dy)
			if dist < minDistance {
				continue
			}
			force := (dist - p.IdealDistance) * p.Attraction
			ux, uy := dx/dist, dy/dist
			fx[a] += force * ux
			fy[a] += force * uy
			fx[b] -= force * ux
			fy[b] -= force * uy
		}

		// Centering and damped application
		for i := 0; i < n; i++ {
			if bodies[i].Pinned {
				continue
			}
			fx[i] += (p.Center.X - pos[i].X) * p.Centering
			fy[i] += (p.Center.Y - pos[i].Y) * p.Centering

			sx := fx[i] * p.Damping
			sy := fy[i] * p.Damping
			if p.MaxStep > 0 {
				if l := math.Sqrt(sx*sx + sy*sy); l > p.MaxStep {
					sx = sx / l * p.MaxStep
					sy = sy / l * p.MaxStep
				}
			}
			next := Point{X: pos[i].X + sx, Y: pos[i].Y + sy}
			if isFinite(next) {
				pos[i] = next
			}
		}
	}
	return pos
}

func isFinite(p Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
