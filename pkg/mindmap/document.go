// Package mindmap defines the hierarchical concept document exchanged with
// the generation service and stored in the local cache, together with its
// codecs and the title-based deduplication rules shared by the graph and
// the cache.
package mindmap

import (
	"errors"
	"fmt"
	"strings"
)

// Source records where a concept came from.
type Source string

const (
	SourceCourse      Source = "course"
	SourceBook        Source = "book"
	SourceAIGenerated Source = "ai-generated"
)

// RootID is the id given to a synthesised root when a document carries
// several top-level concepts.
const RootID = "root"

var (
	// ErrEmptyDocument is returned when a document has no concepts at all.
	ErrEmptyDocument = errors.New("mindmap: document has no nodes")
	// ErrMissingID is returned for a node without an id.
	ErrMissingID = errors.New("mindmap: node id is required")
	// ErrMissingTitle is returned for a node without a title.
	ErrMissingTitle = errors.New("mindmap: node title is required")
)

// Document is the response of the generation endpoint.
type Document struct {
	Title      string    `json:"title" yaml:"title"`
	Overview   string    `json:"overview,omitempty" yaml:"overview,omitempty"`
	Nodes      []NodeDoc `json:"nodes" yaml:"nodes"`
	StudyPlan  []Phase   `json:"studyPlan,omitempty" yaml:"studyPlan,omitempty"`
	References []string  `json:"references,omitempty" yaml:"references,omitempty"`
}

// NodeDoc is one concept in the nested document form.
type NodeDoc struct {
	ID           string    `json:"id" yaml:"id"`
	Title        string    `json:"title" yaml:"title"`
	Summary      string    `json:"summary,omitempty" yaml:"summary,omitempty"`
	AIHint       string    `json:"aiHint,omitempty" yaml:"aiHint,omitempty"`
	StudyActions []string  `json:"studyActions,omitempty" yaml:"studyActions,omitempty"`
	Priority     int       `json:"priority,omitempty" yaml:"priority,omitempty"`
	References   []string  `json:"references,omitempty" yaml:"references,omitempty"`
	Source       Source    `json:"source,omitempty" yaml:"source,omitempty"`
	Children     []NodeDoc `json:"children" yaml:"children"`
}

// Phase is one step of the suggested study plan.
type Phase struct {
	Phase    int      `json:"phase" yaml:"phase"`
	Title    string   `json:"title" yaml:"title"`
	Duration string   `json:"duration,omitempty" yaml:"duration,omitempty"`
	NodeIDs  []string `json:"nodeIds,omitempty" yaml:"nodeIds,omitempty"`
	Goals    []string `json:"goals,omitempty" yaml:"goals,omitempty"`
}

// ValidationError lists the nodes skipped while converting a document.
type ValidationError struct {
	Skipped []SkippedNode
}

// SkippedNode describes one rejected node.
type SkippedNode struct {
	ParentID string
	ID       string
	Title    string
	Reason   error
}

func (e *ValidationError) Error() string {
	if len(e.Skipped) == 1 {
		s := e.Skipped[0]
		return fmt.Sprintf("mindmap: skipped node %q under %q: %v", s.label(), s.ParentID, s.Reason)
	}
	return fmt.Sprintf("mindmap: skipped %d invalid nodes", len(e.Skipped))
}

func (s SkippedNode) label() string {
	if s.ID != "" {
		return s.ID
	}
	return s.Title
}

// Validate checks the fields every node must carry.
func (n NodeDoc) Validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return ErrMissingID
	}
	if strings.TrimSpace(n.Title) == "" {
		return ErrMissingTitle
	}
	return nil
}

// Root returns the single root concept of the document. A document with
// exactly one top-level node uses it directly; otherwise a root is
// synthesised from the document title and overview.
func (d *Document) Root() (NodeDoc, error) {
	switch len(d.Nodes) {
	case 0:
		return NodeDoc{}, ErrEmptyDocument
	case 1:
		return d.Nodes[0], nil
	}
	title := d.Title
	if title == "" {
		title = "Concept Map"
	}
	return NodeDoc{
		ID:         RootID,
		Title:      title,
		Summary:    d.Overview,
		References: d.References,
		Children:   d.Nodes,
	}, nil
}

// IsEmpty reports whether the document has no usable concepts.
func (d *Document) IsEmpty() bool {
	return d == nil || len(d.Nodes) == 0
}

// Usable reports whether the document's root has an id and at least one
// child that survives validation, i.e. whether it can be loaded as a graph.
func (d *Document) Usable() bool {
	if d.IsEmpty() {
		return false
	}
	root, err := d.Root()
	if err != nil || root.ID == "" {
		return false
	}
	for _, c := range root.Children {
		if c.Validate() == nil && c.ID != root.ID {
			return true
		}
	}
	return false
}

// Count returns the number of nodes in the subtree rooted at n, n included.
func Count(n NodeDoc) int {
	total := 1
	for _, c := range n.Children {
		total += Count(c)
	}
	return total
}

// CountDocument returns the number of concept nodes in the document.
func CountDocument(d *Document) int {
	total := 0
	for _, n := range d.Nodes {
		total += Count(n)
	}
	return total
}

// MaxDepth returns the depth of the deepest node below n (n itself is 0).
func MaxDepth(n NodeDoc) int {
	deepest := 0
	for _, c := range n.Children {
		if d := MaxDepth(c) + 1; d > deepest {
			deepest = d
		}
	}
	return deepest
}

// Walk visits n and its descendants in pre-order. Returning false from fn
// stops the walk below the current node.
func Walk(n *NodeDoc, depth int, fn func(n *NodeDoc, depth int) bool) {
	if !fn(n, depth) {
		return
	}
	for i := range n.Children {
		Walk(&n.Children[i], depth+1, fn)
	}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Nodes = cloneNodes(d.Nodes)
	out.StudyPlan = append([]Phase(nil), d.StudyPlan...)
	out.References = append([]string(nil), d.References...)
	return &out
}

// Clone returns a deep copy of the node and its subtree.
func (n NodeDoc) Clone() NodeDoc {
	out := n
	out.StudyActions = append([]string(nil), n.StudyActions...)
	out.References = append([]string(nil), n.References...)
	out.Children = cloneNodes(n.Children)
	return out
}

func cloneNodes(nodes []NodeDoc) []NodeDoc {
	if nodes == nil {
		return nil
	}
	out := make([]NodeDoc, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}
