package render

// HitTest maps a screen point into the world and returns the id of the
// topmost node whose box contains it. nodes are in paint order, so the
// last match wins.
func HitTest(nodes []NodeView, screen Point, t Transform) (string, bool) {
	world := t.ToWorld(screen)
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		if n.Node.Hidden {
			continue
		}
		if n.Rect.Contains(world) {
			return n.Node.ID, true
		}
	}
	return "", false
}

// DragThreshold is the pointer travel, in screen pixels, that turns a
// press into a drag.
const DragThreshold = 5.0

// GestureKind classifies a completed pointer interaction.
type GestureKind int

const (
	GestureNone GestureKind = iota
	GestureClick
	GestureDrag
	GesturePan
)

// Gesture is the result of a pointer release.
type Gesture struct {
	Kind   GestureKind
	NodeID string
}

// Pointer tracks a press/move/release sequence. Movement below the
// threshold is a click; beyond it a press on a node drags that node and a
// press on empty space pans the view.
type Pointer struct {
	Threshold float64

	down     bool
	nodeID   string
	origin   Point
	last     Point
	dragging bool
}

// Down starts a gesture at screen point p over nodeID ("" for background).
func (pt *Pointer) Down(p Point, nodeID string) {
	pt.down = true
	pt.nodeID = nodeID
	pt.origin = p
	pt.last = p
	pt.dragging = false
}

// Move reports the screen delta since the previous event once the
// gesture has become a drag. Before that it returns ok=false.
func (pt *Pointer) Move(p Point) (dx, dy float64, ok bool) {
	if !pt.down {
		return 0, 0, false
	}
	if !pt.dragging {
		th := pt.Threshold
		if th <= 0 {
			th = DragThreshold
		}
		ox, oy := p.X-pt.origin.X, p.Y-pt.origin.Y
		if ox*ox+oy*oy < th*th {
			return 0, 0, false
		}
		pt.dragging = true
	}
	dx, dy = p.X-pt.last.X, p.Y-pt.last.Y
	pt.last = p
	return dx, dy, true
}

// Up ends the gesture.
func (pt *Pointer) Up(p Point) Gesture {
	if !pt.down {
		return Gesture{}
	}
	if !pt.dragging {
		pt.Move(p)
	}
	g := Gesture{NodeID: pt.nodeID}
	switch {
	case pt.dragging && pt.nodeID != "":
		g.Kind = GestureDrag
	case pt.dragging:
		g.Kind = GesturePan
	case pt.nodeID != "":
		g.Kind = GestureClick
	default:
		g.Kind = GestureNone
	}
	*pt = Pointer{Threshold: pt.Threshold}
	return g
}

// Active reports whether a press is in progress.
func (pt *Pointer) Active() bool { return pt.down }

// NodeID returns the node under the initial press.
func (pt *Pointer) NodeID() string { return pt.nodeID }

// Dragging reports whether the threshold has been crossed.
func (pt *Pointer) Dragging() bool { return pt.dragging }
