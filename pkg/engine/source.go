package engine

import (
	"context"
	"errors"

	"github.com/ha1tch/conceptmap/pkg/backend"
	"github.com/ha1tch/conceptmap/pkg/cache"
	"github.com/ha1tch/conceptmap/pkg/mindmap"
)

// ErrOffline is returned when a document must be generated but no backend
// is configured.
var ErrOffline = errors.New("engine: no backend configured")

// Backend is the remote side of the engine. *backend.Client satisfies it.
type Backend interface {
	Generate(ctx context.Context, req backend.GenerateRequest) (*mindmap.Document, error)
	Expand(ctx context.Context, req backend.ExpandRequest) (*backend.ExpandResponse, error)
}

type offlineExpander struct{}

func (offlineExpander) Expand(context.Context, backend.ExpandRequest) (*backend.ExpandResponse, error) {
	return nil, ErrOffline
}

// GenerateOptions narrows what the generation endpoint is asked for.
type GenerateOptions struct {
	Topic      string
	FocusAreas []string
}

// NewGenerator adapts b to the cache's key-based generator.
func NewGenerator(b Backend, opts GenerateOptions) cache.Generator {
	return cache.GeneratorFunc(func(ctx context.Context, key cache.Key) (*mindmap.Document, error) {
		if b == nil {
			return nil, ErrOffline
		}
		return b.Generate(ctx, backend.GenerateRequest{
			CourseID:   key.CourseID,
			BookID:     key.BookID,
			Topic:      opts.Topic,
			FocusAreas: opts.FocusAreas,
		})
	})
}

// SourceFor returns the source stamped on nodes loaded for key.
func SourceFor(key cache.Key) mindmap.Source {
	if key.BookID != "" {
		return mindmap.SourceBook
	}
	return mindmap.SourceCourse
}

// usable returns doc without the nodes the graph builder skips: entries
// missing an id or title and repeated ids, each with its subtree.
func usable(root mindmap.NodeDoc) mindmap.NodeDoc {
	seen := map[string]bool{root.ID: true}
	var prune func(n mindmap.NodeDoc) mindmap.NodeDoc
	prune = func(n mindmap.NodeDoc) mindmap.NodeDoc {
		kids := n.Children
		n.Children = nil
		for _, c := range kids {
			if c.Validate() != nil || seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			n.Children = append(n.Children, prune(c))
		}
		return n
	}
	return prune(root)
}
