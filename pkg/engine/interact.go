package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ha1tch/conceptmap/pkg/expand"
	"github.com/ha1tch/conceptmap/pkg/graph"
	"github.com/ha1tch/conceptmap/pkg/layout"
	"github.com/ha1tch/conceptmap/pkg/mindmap"
	"github.com/ha1tch/conceptmap/pkg/render"
)

// Viewport

// SetViewport records the drawable size in screen units.
func (s *Session) SetViewport(w, h float64) {
	if w > 0 {
		s.viewW = w
	}
	if h > 0 {
		s.viewH = h
	}
}

// Viewport returns the drawable size.
func (s *Session) Viewport() (w, h float64) { return s.viewW, s.viewH }

// View returns the world to screen transform.
func (s *Session) View() render.Transform { return s.view }

// SetView replaces the transform.
func (s *Session) SetView(t render.Transform) {
	s.view = t
	s.changed()
}

// Scene returns the last built scene.
func (s *Session) Scene() render.Scene { return s.scene }

// Draw paints the current scene onto surf.
func (s *Session) Draw(surf render.Surface) {
	s.renderer.Draw(surf, s.scene, s.view)
}

func (s *Session) highlight() render.Highlight {
	hl := render.Highlight{Selected: s.store.Selected()}
	if res := s.search.Results(); len(res) > 0 {
		hl.Matches = make(map[string]bool, len(res))
		for _, id := range res {
			hl.Matches[id] = true
		}
		hl.Current, _ = s.search.Current()
	}
	return hl
}

// ZoomIn zooms around the viewport centre.
func (s *Session) ZoomIn() {
	s.SetView(s.view.ZoomAt(zoomStep, render.Point{X: s.viewW / 2, Y: s.viewH / 2}))
}

// ZoomOut zooms out around the viewport centre.
func (s *Session) ZoomOut() {
	s.SetView(s.view.ZoomAt(1/zoomStep, render.Point{X: s.viewW / 2, Y: s.viewH / 2}))
}

// Fit shows every visible node.
func (s *Session) Fit() {
	s.fitNow()
	s.changed()
}

func (s *Session) fitNow() {
	sc := render.BuildScene(s.store, s.sizer, s.highlight())
	s.view = render.Fit(sc.Bounds, s.viewW, s.viewH, 40)
}

// CenterRoot pans the root into the middle of the viewport.
func (s *Session) CenterRoot() {
	if root, ok := s.store.Root(); ok {
		s.SetView(s.view.CenterOn(root.Pos, s.viewW, s.viewH))
	}
}

// CenterOn pans id into the middle of the viewport. The zoom is kept.
func (s *Session) CenterOn(id string) {
	if n, ok := s.store.Node(id); ok {
		s.SetView(s.view.CenterOn(n.Pos, s.viewW, s.viewH))
	}
}

// Selection and navigation

// Select makes id the selected node.
func (s *Session) Select(id string) error {
	if err := s.store.Select(id); err != nil {
		return err
	}
	s.changed()
	return nil
}

// Back reselects the previous node in the navigation history.
func (s *Session) Back() bool {
	id, ok := s.store.Back()
	if !ok {
		return false
	}
	s.CenterOn(id)
	return true
}

// Toggle expands or collapses id.
func (s *Session) Toggle(id string) error {
	if _, ok := s.store.Node(id); !ok {
		return fmt.Errorf("%w: %s", graph.ErrNotFound, id)
	}
	s.checkpoint()
	if _, err := s.store.Toggle(id); err != nil {
		return err
	}
	s.search.Refresh(s.store.Nodes())
	s.changed()
	return nil
}

// ExpandAll expands every node.
func (s *Session) ExpandAll() {
	s.checkpoint()
	s.store.ExpandAll()
	s.search.Refresh(s.store.Nodes())
	s.changed()
}

// CollapseAll collapses everything below the root.
func (s *Session) CollapseAll() {
	s.checkpoint()
	s.store.CollapseAll()
	s.search.Refresh(s.store.Nodes())
	s.changed()
}

// ToggleBookmark flips the bookmark on the selected node.
func (s *Session) ToggleBookmark() error {
	id := s.store.Selected()
	if id == "" {
		return ErrNoSelection
	}
	s.checkpoint()
	on, err := s.store.ToggleBookmark(id)
	if err != nil {
		return err
	}
	if on {
		s.notify("Bookmarked", MsgSuccess)
	} else {
		s.notify("Bookmark removed", MsgInfo)
	}
	return nil
}

// DeleteSelected removes the selected node and its subtree.
func (s *Session) DeleteSelected() error {
	id := s.store.Selected()
	if id == "" {
		return ErrNoSelection
	}
	n, _ := s.store.Node(id)
	snap := s.store.Snapshot()
	if err := s.store.RemoveNode(id); err != nil {
		if errors.Is(err, graph.ErrRootRemoval) {
			s.notify("The root concept cannot be deleted", MsgWarning)
		}
		return err
	}
	s.history.Checkpoint(snap)
	s.search.Refresh(s.store.Nodes())
	s.notify(fmt.Sprintf("Deleted %q", n.Title), MsgSuccess)
	return nil
}

// Undo restores the graph before the last undoable change.
func (s *Session) Undo() bool {
	sn, ok := s.history.Undo(s.store.Snapshot())
	if !ok {
		return false
	}
	return s.restore(sn, "Undo")
}

// Redo reapplies the change undone last.
func (s *Session) Redo() bool {
	sn, ok := s.history.Redo()
	if !ok {
		return false
	}
	return s.restore(sn, "Redo")
}

func (s *Session) restore(sn *graph.Snapshot, what string) bool {
	if s.driver != nil {
		s.driver.Cancel()
	}
	if err := s.store.Restore(sn); err != nil {
		s.log.Warn("%s: %v", what, err)
		s.history.Reset()
		return false
	}
	s.search.Refresh(s.store.Nodes())
	s.notify(what, MsgInfo)
	return true
}

// AutoLayout recomputes positions for the visible nodes, animating the
// move when a scheduler is configured.
func (s *Session) AutoLayout() {
	if s.store.Empty() {
		return
	}
	s.checkpoint()
	if s.driver == nil {
		layout.AutoLayout(s.store, s.params)
		s.changed()
		return
	}
	target := layout.Compute(s.store, s.params, layout.SeedRadial)
	s.driver.Run(s.store.Positions(), target, func(frame map[string]graph.Point) {
		s.store.ApplyPositions(frame)
		s.changed()
	}, nil)
}

// LayoutRunning reports whether a layout animation is in progress.
func (s *Session) LayoutRunning() bool {
	return s.driver != nil && s.driver.Running()
}

// Search

// Search runs query over the visible nodes and centres the first match.
func (s *Session) Search(query string) []string {
	res := s.search.Search(s.store.Nodes(), query)
	if id, ok := s.search.Current(); ok {
		s.CenterOn(id)
	} else {
		s.changed()
	}
	return res
}

// SearchNext moves to the next result and centres it.
func (s *Session) SearchNext() (string, bool) { return s.searchMove(1) }

// SearchPrev moves to the previous result and centres it.
func (s *Session) SearchPrev() (string, bool) { return s.searchMove(-1) }

func (s *Session) searchMove(delta int) (string, bool) {
	id, ok := s.search.Navigate(delta)
	if ok {
		s.CenterOn(id)
	}
	return id, ok
}

// ClearSearch drops the query.
func (s *Session) ClearSearch() {
	s.search.Clear()
	s.changed()
}

// AI expansion

// ExpandSelected asks the backend for new children of the selected node.
func (s *Session) ExpandSelected(ctx context.Context, prompt string) (*expand.Expansion, error) {
	id := s.store.Selected()
	if id == "" {
		return nil, ErrNoSelection
	}
	return s.Expand(ctx, id, prompt)
}

// Expand asks the backend for new children of id. The result is applied
// through the dispatcher. Only an expansion that adds nodes becomes an
// undo step.
func (s *Session) Expand(ctx context.Context, id, prompt string) (*expand.Expansion, error) {
	if s.key.CourseID == "" && !s.store.IsPlaceholder() {
		s.notify("Open a course before expanding concepts", MsgWarning)
		return nil, ErrNoCourse
	}
	snap := s.store.Snapshot()
	exp, err := s.expander.Request(ctx, id, prompt)
	switch {
	case errors.Is(err, expand.ErrInFlight):
		s.notify("Already expanding this concept", MsgInfo)
		return nil, err
	case errors.Is(err, expand.ErrPlaceholderGraph), errors.Is(err, expand.ErrPromptTooLong):
		s.notify(err.Error(), MsgWarning)
		return nil, err
	case err != nil:
		s.notify("Cannot expand: "+err.Error(), MsgError)
		return nil, err
	}
	n, _ := s.store.Node(id)
	s.notify(fmt.Sprintf("Expanding %q...", n.Title), MsgInfo)

	go func() {
		<-exp.Done()
		s.dispatch.Dispatch(func() { s.expansionSettled(exp, snap) })
	}()
	return exp, nil
}

// expansionSettled reports a finished expansion. before is the graph as
// it was when the expansion was requested.
func (s *Session) expansionSettled(exp *expand.Expansion, before *graph.Snapshot) {
	n, _ := s.store.Node(exp.NodeID)
	switch {
	case exp.State() == expand.StateCommitted && len(exp.Added()) == 0:
		s.notify(fmt.Sprintf("No new concepts for %q", n.Title), MsgInfo)
	case exp.State() == expand.StateCommitted:
		s.history.Checkpoint(before)
		s.search.Refresh(s.store.Nodes())
		s.notify(fmt.Sprintf("Added %d concepts to %q", len(exp.Added()), n.Title), MsgSuccess)
	case errors.Is(exp.Err(), expand.ErrGraphReplaced):
		s.log.Debug("expansion %s dropped: graph replaced", exp.ID)
	default:
		s.notify("Expansion failed: "+exp.Err().Error(), MsgError)
	}
}

// Pointer

// PointerDown starts a gesture at screen point p.
func (s *Session) PointerDown(p render.Point) {
	id, _ := render.HitTest(s.scene.Nodes, p, s.view)
	s.pointer.Down(p, id)
	s.dragSaved = false
}

// PointerMove drags the pressed node, or pans when the press was on
// empty space.
func (s *Session) PointerMove(p render.Point) {
	dx, dy, ok := s.pointer.Move(p)
	if !ok {
		return
	}
	id := s.pointer.NodeID()
	if id == "" {
		s.SetView(s.view.Pan(dx, dy))
		return
	}
	n, found := s.store.Node(id)
	if !found {
		return
	}
	if !s.dragSaved {
		if s.driver != nil {
			s.driver.Cancel()
		}
		s.checkpoint()
		s.dragSaved = true
	}
	scale := s.view.Scale
	if scale <= 0 {
		scale = 1
	}
	_ = s.store.SetPosition(id, n.Pos.X+dx/scale, n.Pos.Y+dy/scale)
	s.changed()
}

// PointerUp ends the gesture. A click selects the node and toggles its
// children.
func (s *Session) PointerUp(p render.Point) render.Gesture {
	g := s.pointer.Up(p)
	s.dragSaved = false
	if g.Kind != render.GestureClick {
		return g
	}
	if err := s.store.Select(g.NodeID); err != nil {
		return g
	}
	if len(s.store.Children(g.NodeID)) > 0 {
		_ = s.Toggle(g.NodeID)
		return g
	}
	s.changed()
	return g
}

// Wheel zooms in (delta > 0) or out around screen point p.
func (s *Session) Wheel(delta int, p render.Point) {
	f := zoomStep
	if delta < 0 {
		f = 1 / zoomStep
	}
	s.SetView(s.view.ZoomAt(f, p))
}

// Export

// ExportFormats lists what Export accepts.
var ExportFormats = []string{"png", "svg", "json", "yaml", "dot"}

// Export writes the map in format. Images are fitted to opts; document
// formats carry the whole graph, collapsed branches included.
func (s *Session) Export(w io.Writer, format string, opts render.ExportOptions) error {
	if s.store.Empty() {
		return graph.ErrEmpty
	}
	ex := &render.Exporter{Renderer: s.renderer, Sizer: s.sizer}
	opts.Highlight = s.highlight()
	switch format {
	case "png":
		return ex.PNG(w, s.store, opts)
	case "svg":
		if opts.Title == "" && s.doc != nil {
			opts.Title = s.doc.Title
		}
		return ex.SVG(w, s.store, opts)
	}
	doc, err := s.CurrentDocument()
	if err != nil {
		return err
	}
	data, err := mindmap.Encode(doc, mindmap.Format(format))
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
