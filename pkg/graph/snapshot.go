package graph

import (
	"fmt"

	"github.com/ha1tch/conceptmap/pkg/mindmap"
)

// Snapshot is a deep copy of the graph's nodes and selection, restored
// wholesale by undo and redo.
type Snapshot struct {
	nodes      []Node
	selected   string
	generation uint64
}

// Len returns the number of nodes captured.
func (sn *Snapshot) Len() int { return len(sn.nodes) }

// Snapshot captures the current graph.
func (s *Store) Snapshot() *Snapshot {
	return &Snapshot{
		nodes:      cloneArena(s.nodes),
		selected:   s.selected,
		generation: s.generation,
	}
}

// Restore replaces the graph with a snapshot. Snapshots taken from an
// earlier graph generation are refused.
func (s *Store) Restore(sn *Snapshot) error {
	if sn == nil {
		return fmt.Errorf("graph: nil snapshot")
	}
	if sn.generation != s.generation {
		return fmt.Errorf("graph: snapshot belongs to a replaced graph")
	}
	s.nodes = cloneArena(sn.nodes)
	s.byID = make(map[string]int, len(s.nodes))
	for i, n := range s.nodes {
		s.byID[n.ID] = i
	}
	if s.Has(sn.selected) {
		s.selectIndex(s.byID[sn.selected])
	} else {
		s.Deselect()
	}
	s.navHistory = s.filterKnown(s.navHistory)
	return nil
}

func cloneArena(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		n.StudyActions = append([]string(nil), n.StudyActions...)
		n.References = append([]string(nil), n.References...)
		n.Tags = append([]string(nil), n.Tags...)
		n.children = append([]int(nil), n.children...)
		out[i] = n
	}
	return out
}

// ToDocument rebuilds the nested document rooted at the graph root.
func (s *Store) ToDocument() (mindmap.NodeDoc, error) {
	if len(s.nodes) == 0 {
		return mindmap.NodeDoc{}, ErrEmpty
	}
	return s.docAt(0), nil
}

func (s *Store) docAt(idx int) mindmap.NodeDoc {
	n := s.nodes[idx]
	doc := mindmap.NodeDoc{
		ID:           n.ID,
		Title:        n.Title,
		Summary:      n.Summary,
		AIHint:       n.AIHint,
		StudyActions: append([]string(nil), n.StudyActions...),
		Priority:     n.Priority,
		References:   append([]string(nil), n.References...),
		Source:       n.Source,
	}
	if len(n.children) > 0 {
		doc.Children = make([]mindmap.NodeDoc, 0, len(n.children))
		for _, c := range n.children {
			doc.Children = append(doc.Children, s.docAt(c))
		}
	}
	return doc
}

// Verify checks that the graph reflects doc: the node counts agree and
// every document node that has children has children in the graph.
func (s *Store) Verify(doc mindmap.NodeDoc) error {
	if len(s.nodes) == 0 {
		return ErrEmpty
	}
	if want := mindmap.Count(doc); want != len(s.nodes) {
		return fmt.Errorf("%w: document has %d nodes, graph has %d", ErrStructureMismatch, want, len(s.nodes))
	}
	var missing string
	mindmap.Walk(&doc, 0, func(n *mindmap.NodeDoc, _ int) bool {
		if missing != "" {
			return false
		}
		if len(n.Children) == 0 {
			return true
		}
		idx, ok := s.byID[n.ID]
		if !ok || len(s.nodes[idx].children) == 0 {
			missing = n.ID
			return false
		}
		return true
	})
	if missing != "" {
		return fmt.Errorf("%w: %q has no rendered children", ErrStructureMismatch, missing)
	}
	return nil
}
