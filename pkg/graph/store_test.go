package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/conceptmap/pkg/logging"
	"github.com/ha1tch/conceptmap/pkg/mindmap"
)

func newStore() *Store {
	return New(logging.Discard())
}

func rootABC() mindmap.NodeDoc {
	return mindmap.NodeDoc{ID: "R", Title: "Root", Children: []mindmap.NodeDoc{
		{ID: "A", Title: "Alpha"},
		{ID: "B", Title: "Beta"},
		{ID: "C", Title: "Gamma"},
	}}
}

// deep builds R -> A -> (A1 -> A1a, A2), R -> B.
func deep() mindmap.NodeDoc {
	return mindmap.NodeDoc{ID: "R", Title: "Root", Children: []mindmap.NodeDoc{
		{ID: "A", Title: "Alpha", Children: []mindmap.NodeDoc{
			{ID: "A1", Title: "Alpha One", Children: []mindmap.NodeDoc{
				{ID: "A1a", Title: "Alpha One A"},
			}},
			{ID: "A2", Title: "Alpha Two"},
		}},
		{ID: "B", Title: "Beta"},
	}}
}

func TestLoadRootBasic(t *testing.T) {
	s := newStore()
	report, err := s.LoadRoot(rootABC(), LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Nodes)
	assert.Equal(t, 4, s.Len())
	assert.Len(t, s.Connections(), 3)

	root, ok := s.Root()
	require.True(t, ok)
	assert.Equal(t, 0, root.Depth)
	assert.True(t, root.Expanded)
	for _, id := range []string{"A", "B", "C"} {
		n, ok := s.Node(id)
		require.True(t, ok)
		assert.Equal(t, 1, n.Depth, id)
		assert.False(t, n.Hidden, id)
		assert.Equal(t, MasteryUnset, n.Mastery)
		assert.Equal(t, mindmap.SourceCourse, n.Source)
	}
	assert.Equal(t, []string{"A", "B", "C"}, s.Children("R"))
}

func TestLoadRootRejectsMissingID(t *testing.T) {
	s := newStore()
	_, err := s.LoadRoot(rootABC(), LoadOptions{})
	require.NoError(t, err)
	gen := s.Generation()

	_, err = s.LoadRoot(mindmap.NodeDoc{Title: "no id"}, LoadOptions{})
	assert.ErrorIs(t, err, ErrMissingID)
	assert.Equal(t, 4, s.Len(), "store must be untouched")
	assert.Equal(t, gen, s.Generation())
}

func TestLoadRootSkipsInvalidChildren(t *testing.T) {
	doc := mindmap.NodeDoc{ID: "R", Title: "Root", Children: []mindmap.NodeDoc{
		{ID: "A", Title: "Alpha"},
		{ID: "", Title: "No id", Children: []mindmap.NodeDoc{{ID: "orphan", Title: "Orphan"}}},
		{ID: "B"},
		{ID: "A", Title: "Alpha again"},
	}}
	s := newStore()
	report, err := s.LoadRoot(doc, LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, s.Len())
	assert.Len(t, report.Skipped, 3)
	assert.False(t, s.Has("orphan"), "subtree of an invalid node is skipped")
	assert.ErrorIs(t, report.Skipped[2].Reason, ErrDuplicateID)
}

func TestLoadRootWithNoValidChildrenResets(t *testing.T) {
	s := newStore()
	_, err := s.LoadRoot(rootABC(), LoadOptions{})
	require.NoError(t, err)

	_, err = s.LoadRoot(mindmap.NodeDoc{ID: "R2", Title: "Empty", Children: []mindmap.NodeDoc{{Title: "bad"}}}, LoadOptions{})
	assert.ErrorIs(t, err, ErrNoValidData)
	assert.True(t, s.Empty())
}

func TestLoadDocument(t *testing.T) {
	s := newStore()
	_, err := s.LoadDocument(&mindmap.Document{}, LoadOptions{})
	assert.ErrorIs(t, err, ErrNoValidData)

	doc := &mindmap.Document{Title: "Topic", Nodes: []mindmap.NodeDoc{
		{ID: "a", Title: "A"}, {ID: "b", Title: "B"},
	}}
	_, err = s.LoadDocument(doc, LoadOptions{Placeholder: true})
	require.NoError(t, err)
	assert.Equal(t, mindmap.RootID, s.RootID())
	assert.True(t, s.IsPlaceholder())
}

func TestGenerationBumpsOnReplace(t *testing.T) {
	s := newStore()
	g0 := s.Generation()
	_, err := s.LoadRoot(rootABC(), LoadOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, g0, s.Generation())
}

func TestCollapseHidesExactlyDescendants(t *testing.T) {
	s := newStore()
	_, err := s.LoadRoot(deep(), LoadOptions{ExpandDepth: 10})
	require.NoError(t, err)
	for _, n := range s.Nodes() {
		require.False(t, n.Hidden, n.ID)
	}

	require.NoError(t, s.Collapse("A"))
	hidden := map[string]bool{}
	for _, n := range s.Nodes() {
		hidden[n.ID] = n.Hidden
	}
	assert.Equal(t, map[string]bool{
		"R": false, "A": false, "A1": true, "A1a": true, "A2": true, "B": false,
	}, hidden)

	for _, c := range s.Connections() {
		n, _ := s.Node(c.To)
		assert.Equal(t, n.Hidden, c.Hidden, "connection %s->%s", c.From, c.To)
	}

	// Re-expanding restores the prior visibility, including A1's own state.
	require.NoError(t, s.Collapse("A1"))
	require.NoError(t, s.Expand("A"))
	a1a, _ := s.Node("A1a")
	a2, _ := s.Node("A2")
	assert.True(t, a1a.Hidden, "A1 is still collapsed")
	assert.False(t, a2.Hidden)
}

func TestExpandAllCollapseAll(t *testing.T) {
	s := newStore()
	_, err := s.LoadRoot(deep(), LoadOptions{})
	require.NoError(t, err)

	s.ExpandAll()
	assert.Len(t, s.Visible(), 6)

	s.CollapseAll()
	assert.Len(t, s.Visible(), 3, "root and its children stay visible")
	root, _ := s.Root()
	assert.True(t, root.Expanded)
}

func TestToggle(t *testing.T) {
	s := newStore()
	_, err := s.LoadRoot(deep(), LoadOptions{})
	require.NoError(t, err)

	expanded, err := s.Toggle("A")
	require.NoError(t, err)
	assert.True(t, expanded)
	a1, _ := s.Node("A1")
	assert.False(t, a1.Hidden)

	_, err = s.Toggle("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSelectBreadcrumbAndBack(t *testing.T) {
	s := newStore()
	_, err := s.LoadRoot(deep(), LoadOptions{})
	require.NoError(t, err)

	require.NoError(t, s.Select("A"))
	require.NoError(t, s.Select("A1a"))
	require.NoError(t, s.Select("A1a"))
	assert.Equal(t, []string{"R", "A", "A1", "A1a"}, s.Breadcrumb())
	assert.Equal(t, []string{"A", "A1a"}, s.NavHistory())

	n, _ := s.Node("A1a")
	assert.True(t, n.Visited)

	prev, ok := s.Back()
	assert.True(t, ok)
	assert.Equal(t, "A", prev)
	assert.Equal(t, "A", s.Selected())

	_, ok = s.Back()
	assert.False(t, ok)

	s.Deselect()
	assert.Empty(t, s.Selected())
	assert.Empty(t, s.Breadcrumb())
}

func TestPath(t *testing.T) {
	s := newStore()
	_, err := s.LoadRoot(deep(), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Root", "Alpha", "Alpha One"}, s.Path("A1"))
	assert.Nil(t, s.Path("nope"))
}

func TestBookmarkAndMastery(t *testing.T) {
	s := newStore()
	_, err := s.LoadRoot(rootABC(), LoadOptions{})
	require.NoError(t, err)

	on, err := s.ToggleBookmark("B")
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, []string{"B"}, s.Bookmarks())

	assert.ErrorIs(t, s.SetMastery("B", 101), ErrInvalidMastery)
	require.NoError(t, s.SetMastery("B", 80))
	b, _ := s.Node("B")
	assert.Equal(t, 80, b.Mastery)
}

func TestAppendChildrenDeduplicates(t *testing.T) {
	s := newStore()
	doc := mindmap.NodeDoc{ID: "R", Title: "Root", Children: []mindmap.NodeDoc{
		{ID: "P", Title: "Plants", Children: []mindmap.NodeDoc{{ID: "p1", Title: "Photosynthesis"}}},
	}}
	_, err := s.LoadRoot(doc, LoadOptions{})
	require.NoError(t, err)

	added, err := s.AppendChildren("P", []mindmap.NodeDoc{
		{ID: "x1", Title: "photosynthesis"},
		{ID: "x2", Title: "Chlorophyll"},
		{ID: "R", Title: "Stomata"}, // id collides with the root
		{Title: "Xylem"},
		{ID: "x5", Title: "chlorophyll"},
	}, mindmap.SourceAIGenerated)
	require.NoError(t, err)

	require.Len(t, added, 3)
	assert.Equal(t, "x2", added[0])
	assert.NotEqual(t, "R", added[1], "colliding id gets replaced")
	assert.Contains(t, added[2], "P-")
	assert.Len(t, s.Children("P"), 4)

	n, _ := s.Node("x2")
	assert.Equal(t, mindmap.SourceAIGenerated, n.Source)
	assert.Equal(t, 2, n.Depth)
}

func TestNodesInInsertionOrder(t *testing.T) {
	s := newStore()
	_, err := s.LoadRoot(deep(), LoadOptions{})
	require.NoError(t, err)
	_, err = s.AppendChildren("A", []mindmap.NodeDoc{{ID: "A3", Title: "Alpha Three"}}, mindmap.SourceAIGenerated)
	require.NoError(t, err)

	var ids []string
	for _, n := range s.Nodes() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"R", "A", "A1", "A1a", "A2", "B", "A3"}, ids, "appended nodes follow the loaded tree")

	pos := map[string]int{}
	for i, id := range ids {
		pos[id] = i
	}
	last := -1
	for _, n := range s.Visible() {
		assert.Greater(t, pos[n.ID], last, "Visible keeps the order of Nodes")
		last = pos[n.ID]
	}
}

func TestAddAndUpdateNode(t *testing.T) {
	s := newStore()
	_, err := s.LoadRoot(rootABC(), LoadOptions{})
	require.NoError(t, err)

	_, err = s.AddNode("A", mindmap.NodeDoc{ID: "B", Title: "dup"}, mindmap.SourceCourse)
	assert.ErrorIs(t, err, ErrDuplicateID)

	id, err := s.AddNode("A", mindmap.NodeDoc{ID: "A1", Title: "Child", Children: []mindmap.NodeDoc{{ID: "A1x", Title: "Grandchild"}}}, mindmap.SourceBook)
	require.NoError(t, err)
	assert.Equal(t, "A1", id)
	n, _ := s.Node("A1")
	assert.True(t, n.Hidden, "A is collapsed, so its new child is hidden")
	gc, _ := s.Node("A1x")
	assert.Equal(t, 3, gc.Depth)

	title := "Renamed"
	prio := 9
	require.NoError(t, s.UpdateNode("A1", Patch{Title: &title, Priority: &prio}))
	n, _ = s.Node("A1")
	assert.Equal(t, "Renamed", n.Title)
	assert.Equal(t, 5, n.Priority)

	empty := " "
	assert.Error(t, s.UpdateNode("A1", Patch{Title: &empty}))
}

func TestRemoveNodeCompacts(t *testing.T) {
	s := newStore()
	_, err := s.LoadRoot(deep(), LoadOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Select("A1a"))

	assert.ErrorIs(t, s.RemoveNode("R"), ErrRootRemoval)

	require.NoError(t, s.RemoveNode("A1"))
	assert.Equal(t, 4, s.Len())
	assert.False(t, s.Has("A1a"))
	assert.Equal(t, []string{"A2"}, s.Children("A"))
	assert.Empty(t, s.Selected(), "selection inside removed subtree is cleared")

	parent, ok := s.Parent("B")
	assert.True(t, ok)
	assert.Equal(t, "R", parent)
	assert.Len(t, s.Connections(), 3)

	ids := []string{}
	for _, n := range s.Nodes() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"R", "A", "A2", "B"}, ids)
}

func TestToDocumentRoundTrip(t *testing.T) {
	s := newStore()
	_, err := s.LoadRoot(deep(), LoadOptions{})
	require.NoError(t, err)

	doc, err := s.ToDocument()
	require.NoError(t, err)
	assert.Equal(t, mindmap.Count(deep()), mindmap.Count(doc))
	require.NoError(t, s.Verify(doc))

	s2 := newStore()
	_, err = s2.LoadRoot(doc, LoadOptions{})
	require.NoError(t, err)
	for _, n := range s.Nodes() {
		p1, _ := s.Parent(n.ID)
		p2, _ := s2.Parent(n.ID)
		assert.Equal(t, p1, p2, n.ID)
	}
}

func TestVerifyDetectsMismatch(t *testing.T) {
	s := newStore()
	_, err := s.LoadRoot(rootABC(), LoadOptions{})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Verify(deep()), ErrStructureMismatch)

	doc := rootABC()
	doc.Children[0].Children = nil
	doc.Children[1].Children = []mindmap.NodeDoc{}
	require.NoError(t, s.Verify(doc))
}

func TestSnapshotRestore(t *testing.T) {
	s := newStore()
	_, err := s.LoadRoot(deep(), LoadOptions{})
	require.NoError(t, err)
	require.NoError(t, s.SetPosition("A", 10, 20))
	snap := s.Snapshot()

	require.NoError(t, s.RemoveNode("A"))
	require.NoError(t, s.SetPosition("B", 99, 99))
	require.NoError(t, s.Restore(snap))

	assert.Equal(t, 6, s.Len())
	a, _ := s.Node("A")
	assert.Equal(t, Point{X: 10, Y: 20}, a.Pos)
	b, _ := s.Node("B")
	assert.NotEqual(t, Point{X: 99, Y: 99}, b.Pos)

	// A snapshot from a replaced graph is refused.
	_, err = s.LoadRoot(rootABC(), LoadOptions{})
	require.NoError(t, err)
	assert.Error(t, s.Restore(snap))
}
