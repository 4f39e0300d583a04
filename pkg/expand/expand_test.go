package expand

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/conceptmap/pkg/backend"
	"github.com/ha1tch/conceptmap/pkg/cache"
	"github.com/ha1tch/conceptmap/pkg/graph"
	"github.com/ha1tch/conceptmap/pkg/layout"
	"github.com/ha1tch/conceptmap/pkg/logging"
	"github.com/ha1tch/conceptmap/pkg/mindmap"
)

type fakeExpander struct {
	calls   atomic.Int32
	mu      sync.Mutex
	last    backend.ExpandRequest
	release chan struct{}
	resp    *backend.ExpandResponse
	err     error
}

func (f *fakeExpander) Expand(ctx context.Context, req backend.ExpandRequest) (*backend.ExpandResponse, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.resp, f.err
}

func (f *fakeExpander) lastRequest() backend.ExpandRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type recordingMerger struct {
	mu     sync.Mutex
	key      cache.Key
	targetID string
	target   string
	nodes    []mindmap.NodeDoc
	calls    int
}

func (m *recordingMerger) MergeExpandedNodes(ctx context.Context, key cache.Key, targetID, target string, nodes []mindmap.NodeDoc) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.key, m.targetID, m.target, m.nodes = key, targetID, target, nodes
	return len(nodes), nil
}

func loadBiology(t *testing.T, placeholder bool) *graph.Store {
	t.Helper()
	s := graph.New(logging.Discard())
	_, err := s.LoadRoot(mindmap.NodeDoc{
		ID: "root", Title: "Biology", Children: []mindmap.NodeDoc{
			{ID: "cells", Title: "Cells", Children: []mindmap.NodeDoc{
				{ID: "membrane", Title: "Cell Membrane"},
			}},
			{ID: "genetics", Title: "Genetics"},
		},
	}, graph.LoadOptions{Placeholder: placeholder})
	require.NoError(t, err)
	require.NoError(t, s.SetPosition("root", 0, 0))
	require.NoError(t, s.SetPosition("cells", 100, 0))
	return s
}

func newCoordinator(s *graph.Store, ex Expander, opts Options) (*Coordinator, *Queue) {
	q := NewQueue(8)
	opts.Logger = logging.Discard()
	c := NewCoordinator(s, ex, q, opts)
	c.SetKey(cache.Key{CourseID: "bio"})
	return c, q
}

func settle(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.True(t, q.RunOne(ctx), "expansion result was never dispatched")
}

func TestExpandAppendsNewChildren(t *testing.T) {
	s := loadBiology(t, false)
	ex := &fakeExpander{resp: &backend.ExpandResponse{ExpandedNodes: []mindmap.NodeDoc{
		{ID: "m1", Title: "Mitochondria"},
		{ID: "x", Title: "cell membrane"},
		{ID: "m2", Title: "Ribosomes"},
	}}}
	merger := &recordingMerger{}
	c, q := newCoordinator(s, ex, Options{Cache: merger, ChildRadius: 50})

	exp, err := c.Request(context.Background(), "cells", "organelles")
	require.NoError(t, err)
	assert.Equal(t, StatePending, exp.State())
	assert.True(t, c.InFlight("cells"))

	n, _ := s.Node("cells")
	assert.True(t, n.Expanded, "node is expanded before the response arrives")

	settle(t, q)
	require.NoError(t, exp.Wait(context.Background()))
	assert.Equal(t, StateCommitted, exp.State())
	assert.Len(t, exp.Added(), 2)
	assert.False(t, c.InFlight("cells"))
	assert.Equal(t, 0, c.Pending())

	var titles []string
	for _, id := range s.Children("cells") {
		child, _ := s.Node(id)
		titles = append(titles, child.Title)
	}
	assert.Equal(t, []string{"Cell Membrane", "Mitochondria", "Ribosomes"}, titles)

	for _, id := range exp.Added() {
		child, _ := s.Node(id)
		assert.Equal(t, mindmap.SourceAIGenerated, child.Source)
		assert.False(t, child.Hidden)
		assert.InDelta(t, 50, layout.Distance(child.Pos, graph.Point{X: 100}), 1e-6)
	}

	req := ex.lastRequest()
	assert.Equal(t, []string{"Biology", "Cells"}, req.NodePath)
	assert.Equal(t, "organelles", req.Prompt)
	assert.Equal(t, "bio", req.CourseID)

	c.Wait()
	merger.mu.Lock()
	defer merger.mu.Unlock()
	assert.Equal(t, 1, merger.calls)
	assert.Equal(t, "cells", merger.targetID)
	assert.Equal(t, "Cells", merger.target)
	assert.Equal(t, cache.Key{CourseID: "bio"}, merger.key)
	require.Len(t, merger.nodes, 2)
	assert.Equal(t, "Mitochondria", merger.nodes[0].Title)
}

func TestSecondRequestWhileInFlight(t *testing.T) {
	s := loadBiology(t, false)
	ex := &fakeExpander{
		release: make(chan struct{}),
		resp:    &backend.ExpandResponse{ExpandedNodes: []mindmap.NodeDoc{{Title: "DNA"}}},
	}
	c, q := newCoordinator(s, ex, Options{})

	exp, err := c.Request(context.Background(), "genetics", "")
	require.NoError(t, err)
	_, err = c.Request(context.Background(), "genetics", "")
	assert.ErrorIs(t, err, ErrInFlight)

	close(ex.release)
	settle(t, q)
	require.NoError(t, exp.Wait(context.Background()))
	assert.EqualValues(t, 1, ex.calls.Load())
	assert.Len(t, s.Children("genetics"), 1)
}

func TestFailedExpansionRollsBack(t *testing.T) {
	s := loadBiology(t, false)
	before, _ := s.Node("genetics")
	require.False(t, before.Expanded)

	ex := &fakeExpander{err: &backend.HTTPError{Status: 503}}
	merger := &recordingMerger{}
	c, q := newCoordinator(s, ex, Options{Cache: merger})

	exp, err := c.Request(context.Background(), "genetics", "")
	require.NoError(t, err)
	settle(t, q)

	var herr *backend.HTTPError
	assert.True(t, errors.As(exp.Wait(context.Background()), &herr))
	assert.Equal(t, StateRolledBack, exp.State())

	after, _ := s.Node("genetics")
	assert.False(t, after.Expanded)
	assert.Empty(t, s.Children("genetics"))
	c.Wait()
	assert.Zero(t, merger.calls)
}

func TestEmptyResponseCommits(t *testing.T) {
	s := loadBiology(t, false)
	merger := &recordingMerger{}
	c, q := newCoordinator(s, &fakeExpander{resp: &backend.ExpandResponse{}}, Options{Cache: merger})

	exp, err := c.Request(context.Background(), "genetics", "")
	require.NoError(t, err)
	settle(t, q)
	require.NoError(t, exp.Wait(context.Background()))
	assert.Equal(t, StateCommitted, exp.State())
	assert.Empty(t, exp.Added())

	n, _ := s.Node("genetics")
	assert.True(t, n.Expanded)
	c.Wait()
	assert.Zero(t, merger.calls)
}

func TestGraphReplacedDuringExpansion(t *testing.T) {
	s := loadBiology(t, false)
	ex := &fakeExpander{
		release: make(chan struct{}),
		resp:    &backend.ExpandResponse{ExpandedNodes: []mindmap.NodeDoc{{Title: "DNA"}}},
	}
	c, q := newCoordinator(s, ex, Options{})

	exp, err := c.Request(context.Background(), "genetics", "")
	require.NoError(t, err)

	_, err = s.LoadRoot(mindmap.NodeDoc{ID: "root", Title: "Chemistry", Children: []mindmap.NodeDoc{
		{ID: "genetics", Title: "Bonds"},
	}}, graph.LoadOptions{})
	require.NoError(t, err)

	close(ex.release)
	settle(t, q)
	assert.ErrorIs(t, exp.Wait(context.Background()), ErrGraphReplaced)
	assert.Empty(t, s.Children("genetics"))
}

func TestRequestGuards(t *testing.T) {
	t.Run("placeholder", func(t *testing.T) {
		ex := &fakeExpander{}
		c, _ := newCoordinator(loadBiology(t, true), ex, Options{})
		_, err := c.Request(context.Background(), "cells", "")
		assert.ErrorIs(t, err, ErrPlaceholderGraph)
		assert.Zero(t, ex.calls.Load())
	})
	t.Run("prompt too long", func(t *testing.T) {
		s := loadBiology(t, false)
		c, _ := newCoordinator(s, &fakeExpander{}, Options{MaxPrompt: 10})
		_, err := c.Request(context.Background(), "cells", strings.Repeat("é", 11))
		assert.ErrorIs(t, err, ErrPromptTooLong)
		n, _ := s.Node("cells")
		assert.False(t, n.Expanded, "rejected requests leave the node alone")
	})
	t.Run("prompt at limit", func(t *testing.T) {
		c, q := newCoordinator(loadBiology(t, false), &fakeExpander{resp: &backend.ExpandResponse{}}, Options{MaxPrompt: 10})
		_, err := c.Request(context.Background(), "cells", strings.Repeat("é", 10))
		require.NoError(t, err)
		settle(t, q)
	})
	t.Run("unknown node", func(t *testing.T) {
		c, _ := newCoordinator(loadBiology(t, false), &fakeExpander{}, Options{})
		_, err := c.Request(context.Background(), "nope", "")
		assert.ErrorIs(t, err, ErrUnknownNode)
	})
}

func TestTimeoutRollsBack(t *testing.T) {
	s := loadBiology(t, false)
	ex := &fakeExpander{release: make(chan struct{})}
	defer close(ex.release)
	c, q := newCoordinator(s, ex, Options{Timeout: 20 * time.Millisecond})

	exp, err := c.Request(context.Background(), "genetics", "")
	require.NoError(t, err)
	settle(t, q)
	assert.ErrorIs(t, exp.Wait(context.Background()), context.DeadlineExceeded)
	n, _ := s.Node("genetics")
	assert.False(t, n.Expanded)
}

func TestQueueDrain(t *testing.T) {
	q := NewQueue(4)
	var ran []int
	for i := 0; i < 3; i++ {
		i := i
		q.Dispatch(func() { ran = append(ran, i) })
	}
	assert.Equal(t, 3, q.Drain())
	assert.Equal(t, []int{0, 1, 2}, ran)
	assert.Zero(t, q.Drain())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "rolled back", StateRolledBack.String())
}
