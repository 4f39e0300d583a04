package graph

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ha1tch/conceptmap/pkg/mindmap"
)

// Select makes id the selected node, updates the breadcrumb, records the
// visit and pushes it onto the navigation history.
func (s *Store) Select(id string) error {
	idx, err := s.index(id)
	if err != nil {
		return err
	}
	s.selectIndex(idx)
	if n := len(s.navHistory); n == 0 || s.navHistory[n-1] != id {
		s.navHistory = append(s.navHistory, id)
		if len(s.navHistory) > maxNavHistory {
			s.navHistory = s.navHistory[len(s.navHistory)-maxNavHistory:]
		}
	}
	return nil
}

func (s *Store) selectIndex(idx int) {
	s.nodes[idx].Visited = true
	s.selected = s.nodes[idx].ID
	s.breadcrumb = s.PathIDs(s.selected)
}

// Deselect clears the selection and breadcrumb.
func (s *Store) Deselect() {
	s.selected = ""
	s.breadcrumb = nil
}

// Back returns to the previously selected node.
func (s *Store) Back() (string, bool) {
	for len(s.navHistory) > 1 {
		s.navHistory = s.navHistory[:len(s.navHistory)-1]
		prev := s.navHistory[len(s.navHistory)-1]
		if idx, ok := s.byID[prev]; ok {
			s.selectIndex(idx)
			return prev, true
		}
	}
	return "", false
}

// Selected returns the selected node id, or "".
func (s *Store) Selected() string { return s.selected }

// Breadcrumb returns the ids from the root to the selected node.
func (s *Store) Breadcrumb() []string {
	return append([]string(nil), s.breadcrumb...)
}

// NavHistory returns the selection history, oldest first.
func (s *Store) NavHistory() []string {
	return append([]string(nil), s.navHistory...)
}

// MarkVisited flags id as visited without selecting it.
func (s *Store) MarkVisited(id string) error {
	idx, err := s.index(id)
	if err != nil {
		return err
	}
	s.nodes[idx].Visited = true
	return nil
}

// SetExpanded sets id's expanded flag and cascades hidden flags to its
// descendants. It returns the previous value.
func (s *Store) SetExpanded(id string, expanded bool) (bool, error) {
	idx, err := s.index(id)
	if err != nil {
		return false, err
	}
	prev := s.nodes[idx].Expanded
	s.nodes[idx].Expanded = expanded
	s.refreshHidden(idx, s.nodes[idx].Hidden)
	return prev, nil
}

// Expand shows id's children.
func (s *Store) Expand(id string) error {
	_, err := s.SetExpanded(id, true)
	return err
}

// Collapse hides every descendant of id.
func (s *Store) Collapse(id string) error {
	_, err := s.SetExpanded(id, false)
	return err
}

// Toggle flips id's expanded flag and returns the new value.
func (s *Store) Toggle(id string) (bool, error) {
	idx, err := s.index(id)
	if err != nil {
		return false, err
	}
	next := !s.nodes[idx].Expanded
	_, err = s.SetExpanded(id, next)
	return next, err
}

// ExpandAll expands every node.
func (s *Store) ExpandAll() {
	if len(s.nodes) == 0 {
		return
	}
	for i := range s.nodes {
		s.nodes[i].Expanded = true
	}
	s.refreshHidden(0, false)
}

// CollapseAll collapses every node except the root, leaving the root's
// children visible.
func (s *Store) CollapseAll() {
	if len(s.nodes) == 0 {
		return
	}
	for i := range s.nodes {
		s.nodes[i].Expanded = i == 0
	}
	s.refreshHidden(0, false)
}

// ToggleBookmark flips id's bookmark and returns the new value.
func (s *Store) ToggleBookmark(id string) (bool, error) {
	idx, err := s.index(id)
	if err != nil {
		return false, err
	}
	s.nodes[idx].Bookmarked = !s.nodes[idx].Bookmarked
	return s.nodes[idx].Bookmarked, nil
}

// SetMastery records a 0-100 mastery score. MasteryUnset clears it.
func (s *Store) SetMastery(id string, mastery int) error {
	if mastery != MasteryUnset && (mastery < 0 || mastery > 100) {
		return ErrInvalidMastery
	}
	idx, err := s.index(id)
	if err != nil {
		return err
	}
	s.nodes[idx].Mastery = mastery
	return nil
}

// SetPosition moves a node in world coordinates.
func (s *Store) SetPosition(id string, x, y float64) error {
	idx, err := s.index(id)
	if err != nil {
		return err
	}
	s.nodes[idx].Pos = Point{X: x, Y: y}
	s.nodes[idx].Placed = true
	return nil
}

// ApplyPositions moves every node named in pos. Unknown ids are ignored.
func (s *Store) ApplyPositions(pos map[string]Point) {
	for id, p := range pos {
		if idx, ok := s.byID[id]; ok {
			s.nodes[idx].Pos = p
			s.nodes[idx].Placed = true
		}
	}
}

// Positions returns the current position of every node.
func (s *Store) Positions() map[string]Point {
	out := make(map[string]Point, len(s.nodes))
	for _, n := range s.nodes {
		out[n.ID] = n.Pos
	}
	return out
}

// UpdateNode applies a patch to id's descriptive fields.
func (s *Store) UpdateNode(id string, p Patch) error {
	idx, err := s.index(id)
	if err != nil {
		return err
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return mindmap.ErrMissingTitle
	}
	n := &s.nodes[idx]
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Summary != nil {
		n.Summary = *p.Summary
	}
	if p.AIHint != nil {
		n.AIHint = *p.AIHint
	}
	if p.Priority != nil {
		n.Priority = clampPriority(*p.Priority)
	}
	if p.Tags != nil {
		n.Tags = append([]string(nil), p.Tags...)
	}
	return nil
}

// AddNode adds doc, and any valid descendants it carries, under parentID.
func (s *Store) AddNode(parentID string, doc mindmap.NodeDoc, source mindmap.Source) (string, error) {
	pidx, err := s.index(parentID)
	if err != nil {
		return "", err
	}
	if err := doc.Validate(); err != nil {
		return "", err
	}
	if s.Has(doc.ID) {
		return "", fmt.Errorf("%w: %s", ErrDuplicateID, doc.ID)
	}
	s.attach(pidx, doc, source)
	s.refreshHidden(pidx, s.nodes[pidx].Hidden)
	return doc.ID, nil
}

// AppendChildren appends the descriptors that parentID does not already
// have, matching by id or case-insensitive title against existing
// children and within the batch. Descriptors without an id, or with an id
// used elsewhere in the graph, receive a fresh one. It returns the ids
// of the appended nodes.
func (s *Store) AppendChildren(parentID string, docs []mindmap.NodeDoc, source mindmap.Source) ([]string, error) {
	pidx, err := s.index(parentID)
	if err != nil {
		return nil, err
	}
	existing := make([]mindmap.NodeDoc, 0, len(s.nodes[pidx].children))
	for _, c := range s.nodes[pidx].children {
		existing = append(existing, mindmap.NodeDoc{ID: s.nodes[c].ID, Title: s.nodes[c].Title})
	}
	dedup := mindmap.NewDeduper(existing)

	var added []string
	for _, d := range docs {
		if strings.TrimSpace(d.Title) == "" {
			s.log.Warn("dropping untitled node returned for %q", parentID)
			continue
		}
		if dedup.Seen(d.ID, d.Title) {
			continue
		}
		dedup.Remember(d.ID, d.Title)
		if d.ID == "" || s.Has(d.ID) {
			d.ID = s.freshID(parentID)
		}
		s.attach(pidx, d, source)
		added = append(added, d.ID)
	}
	s.refreshHidden(pidx, s.nodes[pidx].Hidden)
	return added, nil
}

func (s *Store) freshID(parentID string) string {
	for {
		id := parentID + "-" + uuid.NewString()[:8]
		if !s.Has(id) {
			return id
		}
	}
}

// attach appends doc and its valid descendants below the node at pidx.
// Hidden flags are left for the caller to refresh.
func (s *Store) attach(pidx int, doc mindmap.NodeDoc, source mindmap.Source) {
	idx := len(s.nodes)
	s.nodes = append(s.nodes, newNode(doc, source, s.nodes[pidx].Depth+1, pidx))
	s.byID[doc.ID] = idx
	s.nodes[pidx].children = append(s.nodes[pidx].children, idx)
	for _, c := range doc.Children {
		if c.Validate() != nil || s.Has(c.ID) {
			s.log.Warn("skipping invalid nested node %q under %q", c.ID, doc.ID)
			continue
		}
		s.attach(idx, c, source)
	}
}

// RemoveNode deletes id and its whole subtree. The arena is compacted and
// surviving nodes keep their relative order.
func (s *Store) RemoveNode(id string) error {
	idx, err := s.index(id)
	if err != nil {
		return err
	}
	if idx == 0 {
		return ErrRootRemoval
	}

	doomed := map[int]bool{idx: true}
	for _, d := range s.Descendants(id) {
		doomed[s.byID[d]] = true
	}

	remap := make([]int, len(s.nodes))
	kept := make([]Node, 0, len(s.nodes)-len(doomed))
	for i, n := range s.nodes {
		if doomed[i] {
			remap[i] = noParent
			continue
		}
		remap[i] = len(kept)
		kept = append(kept, n)
	}

	byID := make(map[string]int, len(kept))
	for i := range kept {
		n := &kept[i]
		if n.parent != noParent {
			n.parent = remap[n.parent]
		}
		children := make([]int, 0, len(n.children))
		for _, c := range n.children {
			if !doomed[c] {
				children = append(children, remap[c])
			}
		}
		n.children = children
		byID[n.ID] = i
	}
	s.nodes = kept
	s.byID = byID

	if !s.Has(s.selected) {
		s.Deselect()
	}
	s.navHistory = s.filterKnown(s.navHistory)
	return nil
}

func (s *Store) filterKnown(ids []string) []string {
	out := ids[:0]
	for _, id := range ids {
		if s.Has(id) {
			out = append(out, id)
		}
	}
	return out
}
