// Package expand coordinates AI expansion of single concepts: the node is
// expanded optimistically, the expansion endpoint is called off the UI
// goroutine, and the result is merged back into the graph (and the cache)
// on the goroutine that owns the graph, or rolled back on failure.
package expand

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ha1tch/conceptmap/pkg/backend"
	"github.com/ha1tch/conceptmap/pkg/cache"
	"github.com/ha1tch/conceptmap/pkg/graph"
	"github.com/ha1tch/conceptmap/pkg/layout"
	"github.com/ha1tch/conceptmap/pkg/logging"
	"github.com/ha1tch/conceptmap/pkg/mindmap"
)

var (
	ErrPlaceholderGraph = errors.New("expand: demo graphs cannot be expanded")
	ErrPromptTooLong    = errors.New("expand: prompt is too long")
	ErrInFlight         = errors.New("expand: an expansion for this node is already running")
	ErrUnknownNode      = errors.New("expand: node not found")
	ErrGraphReplaced    = errors.New("expand: graph was replaced while expanding")
)

const (
	DefaultTimeout     = 60 * time.Second
	DefaultMaxPrompt   = 500
	DefaultChildRadius = 200.0
)

// Expander calls the expansion endpoint.
type Expander interface {
	Expand(ctx context.Context, req backend.ExpandRequest) (*backend.ExpandResponse, error)
}

// Merger persists accepted nodes into the cached document. The target is
// located by id first and by title second.
type Merger interface {
	MergeExpandedNodes(ctx context.Context, key cache.Key, targetID, targetTitle string, nodes []mindmap.NodeDoc) (int, error)
}

// Options configures a Coordinator.
type Options struct {
	Timeout     time.Duration // network leg; zero means DefaultTimeout
	MaxPrompt   int           // in runes; zero means DefaultMaxPrompt
	ChildRadius float64       // distance of new children from their parent
	Cache       Merger        // optional
	Logger      *logging.Logger
}

// Coordinator runs expansions against one graph store.
type Coordinator struct {
	store    *graph.Store
	expander Expander
	dispatch Dispatcher
	cache    Merger
	opts     Options
	log      *logging.Logger

	mu       sync.Mutex
	key      cache.Key
	inflight map[string]*Expansion
	merges   sync.WaitGroup
}

// NewCoordinator creates a coordinator. Graph mutations run through d.
func NewCoordinator(store *graph.Store, ex Expander, d Dispatcher, opts Options) *Coordinator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxPrompt <= 0 {
		opts.MaxPrompt = DefaultMaxPrompt
	}
	if opts.ChildRadius <= 0 {
		opts.ChildRadius = DefaultChildRadius
	}
	return &Coordinator{
		store:    store,
		expander: ex,
		dispatch: d,
		cache:    opts.Cache,
		opts:     opts,
		log:      logging.OrDefault(opts.Logger).WithField("component", "expand"),
		inflight: map[string]*Expansion{},
	}
}

// SetKey sets the course/book the current graph belongs to.
func (c *Coordinator) SetKey(k cache.Key) {
	c.mu.Lock()
	c.key = k
	c.mu.Unlock()
}

// Key returns the current course/book.
func (c *Coordinator) Key() cache.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

// InFlight reports whether nodeID has an expansion running.
func (c *Coordinator) InFlight(nodeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[nodeID]
	return ok
}

// Pending returns the number of running expansions.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// CancelAll aborts every running network call.
func (c *Coordinator) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.inflight {
		e.Cancel()
	}
}

// Wait blocks until background cache merges have finished.
func (c *Coordinator) Wait() {
	c.merges.Wait()
}

// Request starts expanding nodeID. It must be called on the goroutine
// that owns the store. The node is expanded immediately; new children
// arrive later through the dispatcher.
func (c *Coordinator) Request(ctx context.Context, nodeID, prompt string) (*Expansion, error) {
	if c.store.IsPlaceholder() {
		return nil, ErrPlaceholderGraph
	}
	if utf8.RuneCountInString(prompt) > c.opts.MaxPrompt {
		return nil, fmt.Errorf("%w: %d characters, limit %d", ErrPromptTooLong, utf8.RuneCountInString(prompt), c.opts.MaxPrompt)
	}
	node, ok := c.store.Node(nodeID)
	if !ok {
		return nil, ErrUnknownNode
	}

	c.mu.Lock()
	if _, busy := c.inflight[nodeID]; busy {
		c.mu.Unlock()
		c.log.Debug("ignoring expansion of %q: already in flight", nodeID)
		return nil, ErrInFlight
	}
	key := c.key
	netCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.Timeout)
	exp := newExpansion(uuid.NewString(), nodeID, prompt, cancel)
	c.inflight[nodeID] = exp
	c.mu.Unlock()

	prev, _ := c.store.SetExpanded(nodeID, true)
	generation := c.store.Generation()
	req := backend.ExpandRequest{
		CourseID: key.CourseID,
		BookID:   key.BookID,
		NodePath: c.store.Path(nodeID),
		Prompt:   prompt,
	}
	netCtx = logging.WithRequestID(netCtx, exp.ID)
	c.log.InfoContext(netCtx, "expanding %q (%s)", node.Title, nodeID)

	go func() {
		resp, err := c.expander.Expand(netCtx, req)
		c.dispatch.Dispatch(func() {
			c.settle(netCtx, exp, generation, prev, key, resp, err)
		})
	}()
	return exp, nil
}

// settle runs on the owner goroutine.
func (c *Coordinator) settle(ctx context.Context, exp *Expansion, generation uint64, prev bool, key cache.Key, resp *backend.ExpandResponse, err error) {
	defer func() {
		c.mu.Lock()
		delete(c.inflight, exp.NodeID)
		c.mu.Unlock()
	}()

	if c.store.Generation() != generation {
		c.log.WarnContext(ctx, "discarding expansion of %q: graph replaced", exp.NodeID)
		exp.finish(StateRolledBack, nil, ErrGraphReplaced)
		return
	}
	if err != nil {
		c.rollback(ctx, exp, prev, err)
		return
	}

	parent, ok := c.store.Node(exp.NodeID)
	if !ok {
		c.rollback(ctx, exp, prev, ErrUnknownNode)
		return
	}
	var docs []mindmap.NodeDoc
	if resp != nil {
		docs = resp.ExpandedNodes
	}
	added, err := c.store.AppendChildren(exp.NodeID, docs, mindmap.SourceAIGenerated)
	if err != nil {
		c.rollback(ctx, exp, prev, err)
		return
	}
	c.place(parent, added)
	c.log.InfoContext(ctx, "expanded %q: %d of %d returned node(s) added", parent.Title, len(added), len(docs))

	if c.cache != nil && len(added) > 0 && key.CourseID != "" {
		c.mergeIntoCache(ctx, key, parent, added)
	}
	exp.finish(StateCommitted, added, nil)
}

func (c *Coordinator) rollback(ctx context.Context, exp *Expansion, prev bool, cause error) {
	if _, err := c.store.SetExpanded(exp.NodeID, prev); err != nil && !errors.Is(err, graph.ErrNotFound) {
		c.log.WarnContext(ctx, "restoring %q after failed expansion: %v", exp.NodeID, err)
	}
	c.log.WarnContext(ctx, "expansion of %q rolled back: %v", exp.NodeID, cause)
	exp.finish(StateRolledBack, nil, cause)
}

// place fans the new children out around their parent, away from the
// grandparent.
func (c *Coordinator) place(parent graph.Node, ids []string) {
	if len(ids) == 0 {
		return
	}
	var gp *layout.Point
	if pid, ok := c.store.Parent(parent.ID); ok {
		if g, ok := c.store.Node(pid); ok {
			p := g.Pos
			gp = &p
		}
	}
	pts := layout.PlaceAround(parent.Pos, gp, len(ids), c.opts.ChildRadius)
	for i, id := range ids {
		_ = c.store.SetPosition(id, pts[i].X, pts[i].Y)
	}
}

// mergeIntoCache persists the accepted nodes in the background. The
// graph is read here, on the owner goroutine.
func (c *Coordinator) mergeIntoCache(ctx context.Context, key cache.Key, parent graph.Node, ids []string) {
	docs := make([]mindmap.NodeDoc, 0, len(ids))
	for _, id := range ids {
		n, ok := c.store.Node(id)
		if !ok {
			continue
		}
		docs = append(docs, mindmap.NodeDoc{
			ID:           n.ID,
			Title:        n.Title,
			Summary:      n.Summary,
			AIHint:       n.AIHint,
			StudyActions: n.StudyActions,
			Priority:     n.Priority,
			References:   n.References,
			Source:       n.Source,
		})
	}
	mergeCtx := context.WithoutCancel(ctx)
	c.merges.Add(1)
	go func() {
		defer c.merges.Done()
		if _, err := c.cache.MergeExpandedNodes(mergeCtx, key, parent.ID, parent.Title, docs); err != nil {
			c.log.WarnContext(mergeCtx, "cache merge for %s failed: %v", key, err)
		}
	}()
}
