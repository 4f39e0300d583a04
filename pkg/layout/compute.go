package layout

import "github.com/ha1tch/conceptmap/pkg/graph"

// Seed selects the starting positions for a solve.
type Seed int

const (
	SeedRadial  Seed = iota // rings by depth around the root
	SeedTree                // layers by depth
	SeedCurrent             // current positions; unplaced nodes seeded radially
)

// ParseSeed maps a config name to a Seed, defaulting to SeedRadial.
func ParseSeed(name string) Seed {
	switch name {
	case "tree":
		return SeedTree
	case "current":
		return SeedCurrent
	default:
		return SeedRadial
	}
}

// Compute seeds and solves the visible part of the graph and returns the
// target position of every visible node. Hidden nodes are not simulated.
func Compute(s *graph.Store, p Params, seed Seed) map[string]Point {
	visible := s.Visible()
	if len(visible) == 0 {
		return map[string]Point{}
	}

	var start map[string]Point
	switch seed {
	case SeedTree:
		start = Tree(s, p.Center, p.IdealDistance*0.8, p.IdealDistance*1.2)
	case SeedCurrent:
		start = Radial(s, p.Center, p.ringGap())
		for _, n := range visible {
			if n.Placed {
				start[n.ID] = n.Pos
			}
		}
	default:
		start = Radial(s, p.Center, p.ringGap())
	}

	index := make(map[string]int, len(visible))
	bodies := make([]Body, len(visible))
	for i, n := range visible {
		index[n.ID] = i
		bodies[i] = Body{ID: n.ID, Pos: start[n.ID]}
	}

	var edges []Edge
	for _, c := range s.Connections() {
		if c.Hidden {
			continue
		}
		from, ok1 := index[c.From]
		to, ok2 := index[c.To]
		if ok1 && ok2 {
			edges = append(edges, Edge{From: from, To: to})
		}
	}

	solved := Solve(bodies, edges, p)
	out := make(map[string]Point, len(solved))
	for i, b := range bodies {
		out[b.ID] = solved[i]
	}
	return out
}

// AutoLayout seeds the visible nodes radially, solves, and moves them to
// the result. It returns the applied positions.
func AutoLayout(s *graph.Store, p Params) map[string]Point {
	pos := Compute(s, p, SeedRadial)
	s.ApplyPositions(pos)
	return pos
}

func (p Params) ringGap() float64 {
	if p.RingGap > 0 {
		return p.RingGap
	}
	return p.IdealDistance * 1.2
}
