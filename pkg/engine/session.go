// Package engine is the application shell of the concept map: a Session
// owns the live graph and wires the layout, renderer, history, search,
// expansion and cache collaborators around it. A Session is driven from a
// single goroutine (the UI loop); background work reports back through
// its dispatcher.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ha1tch/conceptmap/pkg/cache"
	"github.com/ha1tch/conceptmap/pkg/config"
	"github.com/ha1tch/conceptmap/pkg/expand"
	"github.com/ha1tch/conceptmap/pkg/graph"
	"github.com/ha1tch/conceptmap/pkg/history"
	"github.com/ha1tch/conceptmap/pkg/layout"
	"github.com/ha1tch/conceptmap/pkg/logging"
	"github.com/ha1tch/conceptmap/pkg/mindmap"
	"github.com/ha1tch/conceptmap/pkg/render"
	"github.com/ha1tch/conceptmap/pkg/search"
)

// Status is the load state shown to the user.
type Status int

const (
	StatusEmpty Status = iota
	StatusLoading
	StatusReady
	StatusNoData
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusNoData:
		return "no data"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// MessageType classifies status line messages.
type MessageType int

const (
	MsgInfo    MessageType = iota // informative, no flash
	MsgError                      // errors, flash
	MsgSuccess                    // state changes, flash
	MsgWarning                    // warnings, flash
)

// Message is the current status line.
type Message struct {
	Text string
	Type MessageType
	At   time.Time
}

var (
	ErrNoCourse    = errors.New("engine: no course selected")
	ErrNoSelection = errors.New("engine: nothing selected")
)

const zoomStep = 1.2

// Options configures a Session. Only Config is required.
type Options struct {
	Config  *config.Config
	Backend Backend       // nil works offline on loaded documents
	Cache   *cache.Manager // nil disables caching
	Logger  *logging.Logger

	// Dispatcher runs callbacks on the owner goroutine. Defaults to a
	// Queue the owner must drain.
	Dispatcher expand.Dispatcher
	// Scheduler drives layout animation. When nil, layouts apply at once.
	Scheduler layout.FrameScheduler
	Sizer     *render.Sizer
	Generate  GenerateOptions
	Now       func() time.Time
	// OnChange is called after anything that needs a repaint.
	OnChange func()
}

// Session is one open concept map.
type Session struct {
	cfg      *config.Config
	log      *logging.Logger
	backend  Backend
	cache    *cache.Manager
	dispatch expand.Dispatcher
	queue    *expand.Queue
	now      func() time.Time
	onChange func()
	genOpts  GenerateOptions

	store    *graph.Store
	params   layout.Params
	seed     layout.Seed
	driver   *layout.Driver
	sizer    *render.Sizer
	renderer *render.Renderer
	history  *history.Manager[*graph.Snapshot]
	search   *search.Index
	expander *expand.Coordinator

	key     cache.Key
	doc     *mindmap.Document
	status  Status
	message Message
	loadSeq uint64

	view         render.Transform
	viewW, viewH float64
	scene        render.Scene
	pointer      render.Pointer
	dragSaved    bool
}

// New creates a session with an empty graph.
func New(opts Options) *Session {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := logging.OrDefault(opts.Logger)
	s := &Session{
		cfg:      cfg,
		log:      log.WithField("component", "engine"),
		backend:  opts.Backend,
		cache:    opts.Cache,
		dispatch: opts.Dispatcher,
		now:      opts.Now,
		onChange: opts.OnChange,
		genOpts:  opts.Generate,
		store:    graph.New(log),
		params:   LayoutParams(cfg.Layout),
		seed:     layout.ParseSeed(cfg.Layout.Seed),
		sizer:    opts.Sizer,
		history:  history.New[*graph.Snapshot](history.DefaultMax),
		search:   search.New(),
		view:     render.Identity(),
		viewW:    800,
		viewH:    600,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.dispatch == nil {
		s.queue = expand.NewQueue(0)
		s.dispatch = s.queue
	}
	style := BoxStyle(cfg.Render)
	if s.sizer == nil {
		s.sizer = render.NewSizer(style)
	}
	s.renderer = render.NewRenderer(style)
	if opts.Scheduler != nil && cfg.Layout.Animate {
		s.driver = layout.NewDriver(opts.Scheduler, cfg.Layout.AnimationTime.Duration)
	}

	eo := ExpandOptions(cfg.Expansion)
	eo.Logger = log
	if s.cache != nil && cfg.Cache.Enabled {
		eo.Cache = s.cache
	}
	var ex expand.Expander = offlineExpander{}
	if s.backend != nil {
		ex = s.backend
	}
	s.expander = expand.NewCoordinator(s.store, ex, s.dispatch, eo)
	return s
}

// Queue returns the default dispatcher, or nil when one was supplied.
func (s *Session) Queue() *expand.Queue { return s.queue }

// Store exposes the graph for read access.
func (s *Session) Store() *graph.Store { return s.store }

// Key returns the course/book of the loaded map.
func (s *Session) Key() cache.Key { return s.key }

// Document returns the document the graph was loaded from.
func (s *Session) Document() *mindmap.Document { return s.doc }

// Status returns the load state.
func (s *Session) Status() Status { return s.status }

// Message returns the status line.
func (s *Session) Message() Message { return s.message }

// Expansions returns the expansion coordinator.
func (s *Session) Expansions() *expand.Coordinator { return s.expander }

// History returns the undo history.
func (s *Session) History() *history.Manager[*graph.Snapshot] { return s.history }

// SearchIndex returns the search state.
func (s *Session) SearchIndex() *search.Index { return s.search }

// Renderer returns the renderer used by Draw.
func (s *Session) Renderer() *render.Renderer { return s.renderer }

// Sizer returns the box sizer.
func (s *Session) Sizer() *render.Sizer { return s.sizer }

func (s *Session) notify(text string, t MessageType) {
	s.message = Message{Text: text, Type: t, At: s.now()}
	switch t {
	case MsgError:
		s.log.Error("%s", text)
	case MsgWarning:
		s.log.Warn("%s", text)
	default:
		s.log.Debug("%s", text)
	}
	s.changed()
}

func (s *Session) changed() {
	s.scene = render.BuildScene(s.store, s.sizer, s.highlight())
	if s.onChange != nil {
		s.onChange()
	}
}

// Fetch returns the document for key, from the cache when fresh or from
// the generation endpoint otherwise. With regenerate set the cache is
// bypassed, and the cached entry is replaced only by a usable document.
// It does not touch the graph and may run on any goroutine.
func (s *Session) Fetch(ctx context.Context, key cache.Key, regenerate bool) (*mindmap.Document, error) {
	if key.CourseID == "" {
		return nil, ErrNoCourse
	}
	gen := NewGenerator(s.backend, s.genOpts)
	if s.cache != nil && s.cfg.Cache.Enabled {
		if regenerate {
			return s.cache.Refresh(ctx, key, gen)
		}
		return s.cache.Resolve(ctx, key, gen)
	}
	doc, err := gen.Generate(ctx, key)
	if err != nil {
		return nil, err
	}
	if doc.IsEmpty() {
		return nil, mindmap.ErrEmptyDocument
	}
	return doc, nil
}

// Open fetches and shows the map for key.
func (s *Session) Open(ctx context.Context, key cache.Key) error {
	s.setLoading(key)
	doc, err := s.Fetch(ctx, key, false)
	if err != nil {
		return s.fail(err)
	}
	return s.Show(key, doc, graph.LoadOptions{Source: SourceFor(key)})
}

// Regenerate discards the cached document and asks for a new one. The
// current graph stays up when the new document is unusable.
func (s *Session) Regenerate(ctx context.Context) error {
	if s.key.CourseID == "" {
		return ErrNoCourse
	}
	key := s.key
	s.setLoading(key)
	doc, err := s.Fetch(ctx, key, true)
	if err != nil {
		return s.fail(err)
	}
	return s.Show(key, doc, graph.LoadOptions{Source: SourceFor(key)})
}

// OpenAsync fetches in the background and shows the result through the
// dispatcher. A later call supersedes an earlier one still running.
func (s *Session) OpenAsync(ctx context.Context, key cache.Key, regenerate bool) {
	s.setLoading(key)
	seq := s.loadSeq
	go func() {
		doc, err := s.Fetch(ctx, key, regenerate)
		s.dispatch.Dispatch(func() {
			if seq != s.loadSeq {
				s.log.Debug("dropping superseded load of %s", key)
				return
			}
			if err != nil {
				_ = s.fail(err)
				return
			}
			_ = s.Show(key, doc, graph.LoadOptions{Source: SourceFor(key)})
		})
	}()
}

func (s *Session) setLoading(key cache.Key) {
	s.loadSeq++
	s.status = StatusLoading
	s.notify(fmt.Sprintf("Loading concept map for %s...", key), MsgInfo)
}

// fail reports a load error. A usable graph already on screen is kept.
func (s *Session) fail(err error) error {
	switch {
	case errors.Is(err, mindmap.ErrEmptyDocument), errors.Is(err, graph.ErrNoValidData):
		s.status = StatusNoData
		s.notify("No valid concepts were generated. Press r to regenerate.", MsgWarning)
	default:
		if s.store.Empty() {
			s.status = StatusError
		} else {
			s.status = StatusReady
		}
		s.notify("Failed to load concept map: "+err.Error(), MsgError)
	}
	return err
}

// Show replaces the graph with doc. An empty document, or one whose root
// has no valid children, leaves the current graph untouched. A graph that
// does not match its document is rebuilt once and then reset.
func (s *Session) Show(key cache.Key, doc *mindmap.Document, opts graph.LoadOptions) error {
	if doc.IsEmpty() {
		return s.fail(mindmap.ErrEmptyDocument)
	}
	root, err := doc.Root()
	if err != nil {
		return s.fail(err)
	}
	want := usable(root)
	if strings.TrimSpace(root.ID) != "" && len(want.Children) == 0 {
		s.log.Warn("keeping current graph: %q has no valid children", root.Title)
		return s.fail(graph.ErrNoValidData)
	}

	if s.driver != nil {
		s.driver.Cancel()
	}
	s.expander.CancelAll()

	report, err := s.store.LoadRoot(root, opts)
	if err != nil {
		if s.store.Empty() {
			s.resetDerived()
		}
		return s.fail(err)
	}
	if err := s.store.Verify(want); err != nil {
		s.log.Warn("rebuilding graph: %v", err)
		report, err = s.store.LoadRoot(root, opts)
		if err == nil {
			err = s.store.Verify(want)
		}
		if err != nil {
			s.store.Reset()
			s.resetDerived()
			s.status = StatusError
			s.notify("Concept map is inconsistent and was cleared. Press r to regenerate.", MsgError)
			return err
		}
	}

	s.key = key
	s.doc = doc
	s.expander.SetKey(key)
	s.resetDerived()
	s.store.ApplyPositions(layout.Compute(s.store, s.params, s.seed))
	s.fitNow()
	s.status = StatusReady

	if len(report.Skipped) > 0 {
		s.notify(fmt.Sprintf("Loaded %d concepts, skipped %d invalid", report.Nodes, len(report.Skipped)), MsgWarning)
	} else {
		s.notify(fmt.Sprintf("Loaded %d concepts", report.Nodes), MsgSuccess)
	}
	return nil
}

// Reset clears the graph and all derived state.
func (s *Session) Reset() {
	if s.driver != nil {
		s.driver.Cancel()
	}
	s.expander.CancelAll()
	s.store.Reset()
	s.resetDerived()
	s.doc = nil
	s.status = StatusEmpty
	s.notify("Concept map cleared", MsgInfo)
}

func (s *Session) resetDerived() {
	s.history.Reset()
	s.search.Clear()
	s.pointer = render.Pointer{}
	s.dragSaved = false
}

// checkpoint records the graph before an undoable change.
func (s *Session) checkpoint() {
	if !s.store.Empty() {
		s.history.Checkpoint(s.store.Snapshot())
	}
}

// CurrentDocument re-derives the document from the live graph, keeping
// the loaded document's title, overview, study plan and references.
func (s *Session) CurrentDocument() (*mindmap.Document, error) {
	root, err := s.store.ToDocument()
	if err != nil {
		return nil, err
	}
	out := &mindmap.Document{Title: root.Title, Nodes: []mindmap.NodeDoc{root}}
	if s.doc != nil {
		out.Title = s.doc.Title
		out.Overview = s.doc.Overview
		out.StudyPlan = s.doc.StudyPlan
		out.References = s.doc.References
		if len(s.doc.Nodes) > 1 && root.ID == mindmap.RootID {
			out.Nodes = root.Children
		}
	}
	return out, nil
}

// Stats summarises the loaded graph.
type Stats struct {
	Nodes       int
	Visible     int
	Connections int
	MaxDepth    int
	AIGenerated int
	Bookmarks   int
	Visited     int
}

// Stats returns counts for the loaded graph.
func (s *Session) Stats() Stats {
	var st Stats
	for _, n := range s.store.Nodes() {
		st.Nodes++
		if !n.Hidden {
			st.Visible++
		}
		if n.Depth > st.MaxDepth {
			st.MaxDepth = n.Depth
		}
		if n.Source == mindmap.SourceAIGenerated {
			st.AIGenerated++
		}
		if n.Bookmarked {
			st.Bookmarks++
		}
		if n.Visited {
			st.Visited++
		}
	}
	st.Connections = len(s.store.Connections())
	return st
}
