package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ha1tch/conceptmap/pkg/logging"
	"github.com/ha1tch/conceptmap/pkg/mindmap"
)

// Options configures a Manager.
type Options struct {
	TTL    time.Duration    // zero means DefaultTTL
	Now    func() time.Time // zero means time.Now
	Logger *logging.Logger
}

// Manager resolves and persists documents through a Store.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
	log   *logging.Logger
	group singleflight.Group
	locks sync.Map // storage key -> *sync.Mutex
}

// NewManager wraps store.
func NewManager(store Store, opts Options) *Manager {
	m := &Manager{
		store: store,
		ttl:   opts.TTL,
		now:   opts.Now,
		log:   logging.OrDefault(opts.Logger).WithField("component", "cache"),
	}
	if m.ttl <= 0 {
		m.ttl = DefaultTTL
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// TTL returns the configured time-to-live.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Get returns the cached document for key when it is present, written by
// this schema version and younger than the TTL.
func (m *Manager) Get(ctx context.Context, key Key) (*mindmap.Document, bool) {
	e, err := m.load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			m.log.WarnContext(ctx, "cache read for %s failed, treating as miss: %v", key, err)
		}
		return nil, false
	}
	if e.Version != Version {
		m.log.DebugContext(ctx, "cache entry %s has version %q, want %q", key, e.Version, Version)
		return nil, false
	}
	if age := m.now().Sub(e.Time()); age >= m.ttl {
		m.log.DebugContext(ctx, "cache entry %s expired (age %v)", key, age.Round(time.Second))
		return nil, false
	}
	if e.Document == nil {
		return nil, false
	}
	return e.Document, true
}

func (m *Manager) load(ctx context.Context, key Key) (*Entry, error) {
	data, err := m.store.Get(ctx, key.String())
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &e, nil
}

// Put stores doc under key with the current time and schema version.
// Failures are logged and returned; callers may ignore them.
func (m *Manager) Put(ctx context.Context, key Key, doc *mindmap.Document) error {
	defer m.lock(key)()
	return m.put(ctx, key, doc)
}

// lock serializes writes to one key and returns the unlock function.
func (m *Manager) lock(key Key) func() {
	v, _ := m.locks.LoadOrStore(key.String(), new(sync.Mutex))
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (m *Manager) put(ctx context.Context, key Key, doc *mindmap.Document) error {
	if doc == nil {
		return mindmap.ErrEmptyDocument
	}
	now := m.now()
	data, err := json.Marshal(Entry{
		Document:  doc,
		Timestamp: now.UnixMilli(),
		CourseID:  key.CourseID,
		BookID:    key.BookID,
		Version:   Version,
	})
	if err != nil {
		m.log.WarnContext(ctx, "cache encode for %s failed: %v", key, err)
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	if err := m.store.Put(ctx, key.String(), data, now); err != nil {
		m.log.WarnContext(ctx, "cache write for %s failed: %v", key, err)
		return fmt.Errorf("cache: write %s: %w", key, err)
	}
	m.log.DebugContext(ctx, "cached %s (%d bytes)", key, len(data))
	return nil
}

// MergeExpandedNodes adds newNodes under the target node in the cached
// document for key, skipping nodes already present by id or normalized
// title, and re-persists the document. The target is found by targetID
// and then by targetTitle. Merges of one key are serialized so that
// concurrent expansions do not overwrite each other. It returns the
// number of nodes added.
func (m *Manager) MergeExpandedNodes(ctx context.Context, key Key, targetID, targetTitle string, newNodes []mindmap.NodeDoc) (int, error) {
	defer m.lock(key)()

	doc, ok := m.Get(ctx, key)
	if !ok {
		return 0, ErrMiss
	}
	added, found := doc.MergeChildren(targetID, targetTitle, newNodes)
	if !found {
		m.log.WarnContext(ctx, "merge target %q (%s) not in cached %s", targetTitle, targetID, key)
		return 0, ErrTargetNotFound
	}
	if added == 0 {
		return 0, nil
	}
	if err := m.put(ctx, key, doc); err != nil {
		return 0, err
	}
	m.log.InfoContext(ctx, "merged %d node(s) under %q into %s", added, targetTitle, key)
	return added, nil
}

// Resolve returns the cached document for key or generates a new one.
// Concurrent generations of the same key share one call. An empty
// generated document yields mindmap.ErrEmptyDocument; a document with no
// usable concepts is returned but not cached.
func (m *Manager) Resolve(ctx context.Context, key Key, gen Generator) (*mindmap.Document, error) {
	if doc, ok := m.Get(ctx, key); ok {
		m.log.DebugContext(ctx, "cache hit %s", key)
		return doc, nil
	}
	m.log.InfoContext(ctx, "cache miss %s, generating", key)
	return m.generate(ctx, key, gen)
}

// Refresh generates a new document for key regardless of the cache. The
// entry is replaced only when the new document is usable, so a failed
// regeneration leaves the previous entry in place.
func (m *Manager) Refresh(ctx context.Context, key Key, gen Generator) (*mindmap.Document, error) {
	m.log.InfoContext(ctx, "regenerating %s", key)
	return m.generate(ctx, key, gen)
}

func (m *Manager) generate(ctx context.Context, key Key, gen Generator) (*mindmap.Document, error) {
	v, err, shared := m.group.Do(key.String(), func() (interface{}, error) {
		doc, err := gen.Generate(ctx, key)
		if err != nil {
			return nil, err
		}
		if doc == nil || doc.IsEmpty() {
			return nil, mindmap.ErrEmptyDocument
		}
		if !doc.Usable() {
			m.log.WarnContext(ctx, "not caching %s: no usable concepts", key)
			return doc, nil
		}
		_ = m.Put(ctx, key, doc)
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	doc := v.(*mindmap.Document)
	if shared {
		// Callers may mutate their copy.
		doc = doc.Clone()
	}
	return doc, nil
}

// Invalidate removes the entry for key.
func (m *Manager) Invalidate(ctx context.Context, key Key) error {
	defer m.lock(key)()
	if err := m.store.Delete(ctx, key.String()); err != nil {
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	m.log.InfoContext(ctx, "invalidated %s", key)
	return nil
}

// List returns every stored record.
func (m *Manager) List(ctx context.Context) ([]Record, error) {
	recs, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("cache: list: %w", err)
	}
	return recs, nil
}

// Purge removes entries last written more than olderThan ago. A zero
// olderThan removes everything. It returns the number removed.
func (m *Manager) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	recs, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := m.now().Add(-olderThan)
	removed := 0
	for _, r := range recs {
		if olderThan > 0 && !r.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := m.store.Delete(ctx, r.Key); err != nil {
			return removed, fmt.Errorf("cache: delete %s: %w", r.Key, err)
		}
		removed++
	}
	m.log.InfoContext(ctx, "purged %d cache entries", removed)
	return removed, nil
}

// WarmResult is the outcome of warming one key.
type WarmResult struct {
	Key   Key
	Nodes int
	Err   error
}

// Warm resolves keys with at most limit generations in flight. Failures
// are reported per key; Warm itself only fails when ctx is cancelled.
func (m *Manager) Warm(ctx context.Context, keys []Key, gen Generator, limit int) ([]WarmResult, error) {
	if limit <= 0 {
		limit = 4
	}
	results := make([]WarmResult, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, k := range keys {
		i, k := i, k
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := m.Resolve(gctx, k, gen)
			if err == nil && !doc.Usable() {
				err = ErrUnusable
			}
			results[i] = WarmResult{Key: k, Err: err}
			if err == nil {
				results[i].Nodes = mindmap.CountDocument(doc)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
