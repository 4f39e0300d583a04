// Package graph holds the live concept graph: an arena of nodes addressed
// by integer index, with parent/child links stored as indices and an id
// index for lookup. The Store owns every structural mutation and keeps the
// hidden flags consistent with the expanded flags of ancestors.
//
// A Store is not safe for concurrent use. Its owner (normally the UI loop)
// serialises access; asynchronous work dispatches back onto that loop.
package graph

import (
	"errors"

	"github.com/ha1tch/conceptmap/pkg/mindmap"
)

var (
	ErrNotFound          = errors.New("graph: node not found")
	ErrMissingID         = errors.New("graph: root node has no id")
	ErrNoValidData       = errors.New("graph: document produced no valid concepts")
	ErrDuplicateID       = errors.New("graph: duplicate node id")
	ErrRootRemoval       = errors.New("graph: the root node cannot be removed")
	ErrEmpty             = errors.New("graph: no graph loaded")
	ErrInvalidMastery    = errors.New("graph: mastery must be between 0 and 100")
	ErrStructureMismatch = errors.New("graph: graph does not match its document")
)

// MasteryUnset marks a node without a mastery score.
const MasteryUnset = -1

// Point is a position in world coordinates.
type Point struct {
	X, Y float64
}

// Node is one concept in the graph. Values returned by the Store are
// copies; mutate through Store methods.
type Node struct {
	ID           string
	Title        string
	Summary      string
	AIHint       string
	StudyActions []string
	Priority     int
	References   []string
	Tags         []string
	Source       mindmap.Source

	Expanded   bool
	Visited    bool
	Bookmarked bool
	Hidden     bool
	Mastery    int
	Depth      int

	Pos    Point
	Placed bool

	parent   int
	children []int
}

// HasReferences reports whether the node carries a source-reference annotation.
func (n Node) HasReferences() bool {
	return len(n.References) > 0
}

// Connection is a parent to child edge. Hidden mirrors the child.
type Connection struct {
	From   string
	To     string
	Hidden bool
}

// Patch carries optional field updates for UpdateNode.
type Patch struct {
	Title    *string
	Summary  *string
	AIHint   *string
	Priority *int
	Tags     []string
}

func newNode(doc mindmap.NodeDoc, source mindmap.Source, depth, parent int) Node {
	if doc.Source != "" {
		source = doc.Source
	}
	return Node{
		ID:           doc.ID,
		Title:        doc.Title,
		Summary:      doc.Summary,
		AIHint:       doc.AIHint,
		StudyActions: append([]string(nil), doc.StudyActions...),
		Priority:     clampPriority(doc.Priority),
		References:   append([]string(nil), doc.References...),
		Source:       source,
		Mastery:      MasteryUnset,
		Depth:        depth,
		parent:       parent,
	}
}

func clampPriority(p int) int {
	if p < 0 {
		return 0
	}
	if p > 5 {
		return 5
	}
	return p
}
