package render

import "github.com/ha1tch/conceptmap/pkg/graph"

// NodeView is a visible node with its measured box and world rectangle.
type NodeView struct {
	Node     graph.Node
	Box      Box
	Rect     Rect
	Selected bool
	Match    bool // search result
	Current  bool // search result under the cursor

	HasChildren bool
}

// EdgeView is a visible connection with its curve in world space.
type EdgeView struct {
	From, To string
	Curve    Curve
}

// Scene is everything needed to paint one frame.
type Scene struct {
	Nodes  []NodeView
	Edges  []EdgeView
	Bounds Rect
}

// Highlight carries transient state that affects styling only.
type Highlight struct {
	Selected string
	Matches  map[string]bool
	Current  string
}

// BuildScene measures the visible nodes of s and routes their edges.
func BuildScene(s *graph.Store, sizer *Sizer, hl Highlight) Scene {
	var sc Scene
	rects := map[string]Rect{}
	for _, n := range s.Visible() {
		b := sizer.Box(n)
		r := Rect{X: n.Pos.X, Y: n.Pos.Y, W: b.W, H: b.H}
		rects[n.ID] = r
		sc.Nodes = append(sc.Nodes, NodeView{
			Node:     n,
			Box:      b,
			Rect:     r,
			Selected: n.ID == hl.Selected,
			Match:    hl.Matches[n.ID],
			Current:  n.ID == hl.Current,

			HasChildren: len(s.Children(n.ID)) > 0,
		})
		sc.Bounds = sc.Bounds.Union(r)
	}
	for _, c := range s.Connections() {
		if c.Hidden {
			continue
		}
		from, ok1 := rects[c.From]
		to, ok2 := rects[c.To]
		if !ok1 || !ok2 {
			continue
		}
		sc.Edges = append(sc.Edges, EdgeView{From: c.From, To: c.To, Curve: EdgeCurve(from, to, DefaultCurvature)})
	}
	return sc
}

// Find returns the view for id.
func (sc Scene) Find(id string) (NodeView, bool) {
	for _, n := range sc.Nodes {
		if n.Node.ID == id {
			return n, true
		}
	}
	return NodeView{}, false
}
