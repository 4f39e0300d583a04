package layout

import (
	"math"

	"github.com/ha1tch/conceptmap/pkg/graph"
)

// Radial places the root at center and every visible descendant on a ring
// whose radius grows with depth. Each node's children share the node's
// angular wedge in proportion to their visible leaf counts, so siblings
// never cross another subtree.
func Radial(s *graph.Store, center Point, ringGap float64) map[string]Point {
	out := map[string]Point{}
	rootID := s.RootID()
	if rootID == "" {
		return out
	}
	if ringGap <= 0 {
		ringGap = 180
	}
	weights := map[string]int{}
	leafWeight(s, rootID, weights)

	out[rootID] = center
	var place func(id string, start, end float64, depth int)
	place = func(id string, start, end float64, depth int) {
		kids := visibleChildren(s, id)
		if len(kids) == 0 {
			return
		}
		total := 0
		for _, k := range kids {
			total += weights[k]
		}
		a := start
		for _, k := range kids {
			span := (end - start) * float64(weights[k]) / float64(total)
			mid := a + span/2
			r := float64(depth+1) * ringGap
			out[k] = Point{X: center.X + r*math.Cos(mid), Y: center.Y + r*math.Sin(mid)}
			place(k, a, a+span, depth+1)
			a += span
		}
	}
	place(rootID, -math.Pi/2, 3*math.Pi/2, 0)
	return out
}

// Tree lays visible nodes out in layers by depth. Leaves take consecutive
// slots left to right and each parent is centred over its children.
func Tree(s *graph.Store, origin Point, levelGap, siblingGap float64) map[string]Point {
	out := map[string]Point{}
	rootID := s.RootID()
	if rootID == "" {
		return out
	}
	if levelGap <= 0 {
		levelGap = 120
	}
	if siblingGap <= 0 {
		siblingGap = 200
	}
	next := 0.0
	var place func(id string, depth int) float64
	place = func(id string, depth int) float64 {
		kids := visibleChildren(s, id)
		var x float64
		if len(kids) == 0 {
			x = next * siblingGap
			next++
		} else {
			first := place(kids[0], depth+1)
			last := first
			for _, k := range kids[1:] {
				last = place(k, depth+1)
			}
			x = (first + last) / 2
		}
		out[id] = Point{X: origin.X + x, Y: origin.Y + float64(depth)*levelGap}
		return x
	}
	rootX := place(rootID, 0)
	// Centre the tree horizontally on origin.
	for id, p := range out {
		out[id] = Point{X: p.X - rootX, Y: p.Y}
	}
	return out
}

// PlaceAround returns n positions at radius from parent. When the parent
// has a parent of its own the points fan out across a half circle facing
// away from it; otherwise they cover the full circle.
func PlaceAround(parent Point, grandparent *Point, n int, radius float64) []Point {
	if n <= 0 {
		return nil
	}
	out := make([]Point, n)
	if grandparent == nil {
		for i := range out {
			a := 2*math.Pi*float64(i)/float64(n) - math.Pi/2
			out[i] = Point{X: parent.X + radius*math.Cos(a), Y: parent.Y + radius*math.Sin(a)}
		}
		return out
	}
	outward := math.Atan2(parent.Y-grandparent.Y, parent.X-grandparent.X)
	spread := math.Pi
	for i := range out {
		a := outward
		if n > 1 {
			a = outward - spread/2 + spread*float64(i)/float64(n-1)
		}
		out[i] = Point{X: parent.X + radius*math.Cos(a), Y: parent.Y + radius*math.Sin(a)}
	}
	return out
}

func visibleChildren(s *graph.Store, id string) []string {
	n, ok := s.Node(id)
	if !ok || !n.Expanded || n.Hidden {
		return nil
	}
	return s.Children(id)
}

func leafWeight(s *graph.Store, id string, weights map[string]int) int {
	kids := visibleChildren(s, id)
	if len(kids) == 0 {
		weights[id] = 1
		return 1
	}
	w := 0
	for _, k := range kids {
		w += leafWeight(s, k, weights)
	}
	weights[id] = w
	return w
}
