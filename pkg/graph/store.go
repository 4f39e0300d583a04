package graph

import (
	"fmt"
	"strings"

	"github.com/ha1tch/conceptmap/pkg/logging"
	"github.com/ha1tch/conceptmap/pkg/mindmap"
)

const (
	noParent        = -1
	maxNavHistory   = 50
	defaultExpandTo = 1
)

// LoadOptions controls how a document becomes a graph.
type LoadOptions struct {
	// ExpandDepth expands every node shallower than this depth. Zero
	// means the default of 1: the root is expanded, its children are not.
	ExpandDepth int
	// Source stamps nodes whose document entry carries no source.
	Source mindmap.Source
	// Placeholder marks a demo graph that must not be sent for expansion.
	Placeholder bool
}

// LoadReport summarises a successful load.
type LoadReport struct {
	Nodes   int
	Skipped []mindmap.SkippedNode
}

// Store is the arena-backed concept graph.
type Store struct {
	nodes []Node
	byID  map[string]int

	generation  uint64
	placeholder bool

	selected   string
	breadcrumb []string
	navHistory []string

	log *logging.Logger
}

// New creates an empty store.
func New(log *logging.Logger) *Store {
	return &Store{
		byID: map[string]int{},
		log:  logging.OrDefault(log).WithField("component", "graph"),
	}
}

// LoadRoot replaces the graph with the tree rooted at root. A root without
// an id is rejected and leaves the store untouched. Children missing an id
// or title, or repeating an id, are skipped with their subtree. When no
// child survives, the store is reset and ErrNoValidData is returned.
func (s *Store) LoadRoot(root mindmap.NodeDoc, opts LoadOptions) (LoadReport, error) {
	if strings.TrimSpace(root.ID) == "" {
		s.log.Warn("rejecting document: root node has no id")
		return LoadReport{}, ErrMissingID
	}
	if opts.ExpandDepth <= 0 {
		opts.ExpandDepth = defaultExpandTo
	}
	if opts.Source == "" {
		opts.Source = mindmap.SourceCourse
	}

	b := &builder{
		byID:   map[string]int{},
		source: opts.Source,
	}
	b.nodes = append(b.nodes, newNode(root, opts.Source, 0, noParent))
	b.byID[root.ID] = 0
	for _, c := range root.Children {
		b.add(0, c)
	}

	s.Reset()
	report := LoadReport{Nodes: len(b.nodes), Skipped: b.skipped}
	for _, sk := range b.skipped {
		s.log.WithFields(map[string]interface{}{
			"parent": sk.ParentID,
			"node":   sk.ID,
			"title":  sk.Title,
		}).Warn("skipping invalid node: %v", sk.Reason)
	}

	if len(b.nodes[0].children) == 0 {
		s.log.Warn("document for %q has no valid children", root.ID)
		return report, ErrNoValidData
	}

	for i := range b.nodes {
		b.nodes[i].Expanded = b.nodes[i].Depth < opts.ExpandDepth
	}
	s.nodes = b.nodes
	s.byID = b.byID
	s.placeholder = opts.Placeholder
	s.refreshHidden(0, false)

	s.log.Debug("loaded graph %q: %d nodes, %d skipped", root.ID, report.Nodes, len(report.Skipped))
	return report, nil
}

// LoadDocument loads a whole generation response.
func (s *Store) LoadDocument(doc *mindmap.Document, opts LoadOptions) (LoadReport, error) {
	if doc.IsEmpty() {
		s.Reset()
		return LoadReport{}, ErrNoValidData
	}
	root, err := doc.Root()
	if err != nil {
		s.Reset()
		return LoadReport{}, fmt.Errorf("%w: %v", ErrNoValidData, err)
	}
	return s.LoadRoot(root, opts)
}

// Reset discards the graph and all derived state.
func (s *Store) Reset() {
	s.nodes = nil
	s.byID = map[string]int{}
	s.placeholder = false
	s.selected = ""
	s.breadcrumb = nil
	s.navHistory = nil
	s.generation++
}

type builder struct {
	nodes   []Node
	byID    map[string]int
	source  mindmap.Source
	skipped []mindmap.SkippedNode
}

func (b *builder) add(parent int, doc mindmap.NodeDoc) {
	parentID := b.nodes[parent].ID
	if err := doc.Validate(); err != nil {
		b.skip(parentID, doc, err)
		return
	}
	if _, dup := b.byID[doc.ID]; dup {
		b.skip(parentID, doc, ErrDuplicateID)
		return
	}
	idx := len(b.nodes)
	b.nodes = append(b.nodes, newNode(doc, b.source, b.nodes[parent].Depth+1, parent))
	b.byID[doc.ID] = idx
	b.nodes[parent].children = append(b.nodes[parent].children, idx)
	for _, c := range doc.Children {
		b.add(idx, c)
	}
}

func (b *builder) skip(parentID string, doc mindmap.NodeDoc, reason error) {
	b.skipped = append(b.skipped, mindmap.SkippedNode{
		ParentID: parentID,
		ID:       doc.ID,
		Title:    doc.Title,
		Reason:   reason,
	})
}

// refreshHidden recomputes hidden flags below idx.
func (s *Store) refreshHidden(idx int, hidden bool) {
	n := &s.nodes[idx]
	n.Hidden = hidden
	childHidden := hidden || !n.Expanded
	for _, c := range n.children {
		s.refreshHidden(c, childHidden)
	}
}

func (s *Store) index(id string) (int, error) {
	idx, ok := s.byID[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return idx, nil
}

// Generation changes every time the graph is replaced or reset.
func (s *Store) Generation() uint64 { return s.generation }

// IsPlaceholder reports whether the loaded graph is demo content.
func (s *Store) IsPlaceholder() bool { return s.placeholder }

// Len returns the number of nodes.
func (s *Store) Len() int { return len(s.nodes) }

// Empty reports whether no graph is loaded.
func (s *Store) Empty() bool { return len(s.nodes) == 0 }

// Has reports whether id is in the graph.
func (s *Store) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// Root returns the root node.
func (s *Store) Root() (Node, bool) {
	if len(s.nodes) == 0 {
		return Node{}, false
	}
	return s.nodes[0], true
}

// RootID returns the root's id, or "" when empty.
func (s *Store) RootID() string {
	if len(s.nodes) == 0 {
		return ""
	}
	return s.nodes[0].ID
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (Node, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return Node{}, false
	}
	return s.nodes[idx], true
}

// Nodes returns every node in insertion order: the loaded tree in
// pre-order, followed by appended nodes in the order they were added.
func (s *Store) Nodes() []Node {
	out := make([]Node, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Visible returns the nodes whose hidden flag is false, in the same order
// as Nodes.
func (s *Store) Visible() []Node {
	out := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		if !n.Hidden {
			out = append(out, n)
		}
	}
	return out
}

// Children returns the ids of id's direct children in order.
func (s *Store) Children(id string) []string {
	idx, ok := s.byID[id]
	if !ok {
		return nil
	}
	out := make([]string, len(s.nodes[idx].children))
	for i, c := range s.nodes[idx].children {
		out[i] = s.nodes[c].ID
	}
	return out
}

// Parent returns the parent id of id. The root has none.
func (s *Store) Parent(id string) (string, bool) {
	idx, ok := s.byID[id]
	if !ok || s.nodes[idx].parent == noParent {
		return "", false
	}
	return s.nodes[s.nodes[idx].parent].ID, true
}

// Connections returns one edge per parent/child pair, in pre-order of the child.
func (s *Store) Connections() []Connection {
	if len(s.nodes) == 0 {
		return nil
	}
	out := make([]Connection, 0, len(s.nodes)-1)
	for _, n := range s.nodes {
		if n.parent == noParent {
			continue
		}
		out = append(out, Connection{From: s.nodes[n.parent].ID, To: n.ID, Hidden: n.Hidden})
	}
	return out
}

// PathIDs returns the ids from the root down to id, inclusive.
func (s *Store) PathIDs(id string) []string {
	idx, ok := s.byID[id]
	if !ok {
		return nil
	}
	var rev []string
	for i := idx; i != noParent; i = s.nodes[i].parent {
		rev = append(rev, s.nodes[i].ID)
	}
	out := make([]string, len(rev))
	for i, v := range rev {
		out[len(rev)-1-i] = v
	}
	return out
}

// Path returns the titles from the root down to id, inclusive.
func (s *Store) Path(id string) []string {
	ids := s.PathIDs(id)
	out := make([]string, len(ids))
	for i, pid := range ids {
		out[i] = s.nodes[s.byID[pid]].Title
	}
	return out
}

// Descendants returns the ids strictly below id in pre-order.
func (s *Store) Descendants(id string) []string {
	idx, ok := s.byID[id]
	if !ok {
		return nil
	}
	var out []string
	var walk func(int)
	walk = func(i int) {
		for _, c := range s.nodes[i].children {
			out = append(out, s.nodes[c].ID)
			walk(c)
		}
	}
	walk(idx)
	return out
}

// Bookmarks returns bookmarked ids in pre-order.
func (s *Store) Bookmarks() []string {
	var out []string
	for _, n := range s.nodes {
		if n.Bookmarked {
			out = append(out, n.ID)
		}
	}
	return out
}
