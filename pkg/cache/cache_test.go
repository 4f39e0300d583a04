package cache

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/conceptmap/pkg/logging"
	"github.com/ha1tch/conceptmap/pkg/mindmap"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func sampleDoc() *mindmap.Document {
	return &mindmap.Document{
		Title:    "Biology",
		Overview: "Cells and systems",
		Nodes: []mindmap.NodeDoc{{
			ID: "root", Title: "Biology", Children: []mindmap.NodeDoc{
				{ID: "cells", Title: "Cells", Children: []mindmap.NodeDoc{
					{ID: "membrane", Title: "Cell Membrane"},
				}},
				{ID: "genetics", Title: "Genetics", Priority: 3},
			},
		}},
	}
}

func newManager(t *testing.T, store Store, c *clock) *Manager {
	t.Helper()
	return NewManager(store, Options{Now: c.now, Logger: logging.Discard()})
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "conceptmap:c1", Key{CourseID: "c1"}.String())
	assert.Equal(t, "conceptmap:c1:b2", Key{CourseID: "c1", BookID: "b2"}.String())

	k, err := ParseKey("conceptmap:c1:b2")
	require.NoError(t, err)
	assert.Equal(t, Key{CourseID: "c1", BookID: "b2"}, k)

	for _, bad := range []string{"", "other:c1", "conceptmap:", "conceptmap:c1:", "conceptmap:a:b:c"} {
		_, err := ParseKey(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}

	// Separators inside ids are escaped.
	colon := Key{CourseID: "a:b"}
	split := Key{CourseID: "a", BookID: "b"}
	assert.NotEqual(t, colon.String(), split.String())
	for _, k := range []Key{colon, split, {CourseID: "100%", BookID: "x:%3A"}} {
		got, err := ParseKey(k.String())
		require.NoError(t, err, k.String())
		assert.Equal(t, k, got)
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"), logging.Discard())
	require.NoError(t, err)
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{
		"sqlite": sq,
		"file":   fs,
		"memory": NewMemoryStore(),
	}
}

func TestPutGetByteEqual(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			m := newManager(t, st, newClock())
			key := Key{CourseID: "bio101", BookID: "campbell"}
			doc := sampleDoc()

			require.NoError(t, m.Put(ctx, key, doc))
			got, ok := m.Get(ctx, key)
			require.True(t, ok)

			want, err := mindmap.ToJSON(doc, false)
			require.NoError(t, err)
			have, err := mindmap.ToJSON(got, false)
			require.NoError(t, err)
			assert.Equal(t, string(want), string(have))
		})
	}
}

func TestEntryFormat(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	st := NewMemoryStore()
	m := newManager(t, st, c)
	key := Key{CourseID: "bio101"}
	require.NoError(t, m.Put(ctx, key, sampleDoc()))

	raw, err := st.Get(ctx, "conceptmap:bio101")
	require.NoError(t, err)
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Contains(t, fields, "document")
	assert.Contains(t, fields, "version")
	assert.JSONEq(t, `"bio101"`, string(fields["courseId"]))
	assert.NotContains(t, fields, "bookId")

	var e Entry
	require.NoError(t, json.Unmarshal(raw, &e))
	assert.Equal(t, c.t.UnixMilli(), e.Timestamp)
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	m := newManager(t, NewMemoryStore(), c)
	key := Key{CourseID: "bio101"}
	require.NoError(t, m.Put(ctx, key, sampleDoc()))

	c.advance(23*time.Hour + 59*time.Minute)
	_, ok := m.Get(ctx, key)
	assert.True(t, ok, "entry younger than the TTL is a hit")

	c.advance(time.Minute)
	_, ok = m.Get(ctx, key)
	assert.False(t, ok, "entry at the TTL is a miss")
}

func TestVersionMismatchIsMiss(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	st := NewMemoryStore()
	m := newManager(t, st, c)

	data, err := json.Marshal(Entry{Document: sampleDoc(), Timestamp: c.t.UnixMilli(), CourseID: "x", Version: "0"})
	require.NoError(t, err)
	require.NoError(t, st.Put(ctx, "conceptmap:x", data, c.t))

	_, ok := m.Get(ctx, Key{CourseID: "x"})
	assert.False(t, ok)
}

func TestCorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.Put(ctx, "conceptmap:x", []byte("{not json"), time.Now()))
	m := newManager(t, st, newClock())
	_, ok := m.Get(ctx, Key{CourseID: "x"})
	assert.False(t, ok)
}

type failingStore struct{ *MemoryStore }

func (failingStore) Put(context.Context, string, []byte, time.Time) error {
	return errors.New("disk full")
}

func TestPutFailureIsReported(t *testing.T) {
	m := newManager(t, failingStore{NewMemoryStore()}, newClock())
	err := m.Put(context.Background(), Key{CourseID: "x"}, sampleDoc())
	assert.Error(t, err)
}

func TestMergeExpandedNodes(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, NewMemoryStore(), newClock())
	key := Key{CourseID: "bio101"}
	require.NoError(t, m.Put(ctx, key, sampleDoc()))

	added, err := m.MergeExpandedNodes(ctx, key, "", "  cell   MEMBRANE ", []mindmap.NodeDoc{
		{ID: "lipids", Title: "Lipid Bilayer"},
		{ID: "proteins", Title: "Membrane Proteins"},
		{ID: "lipids2", Title: "lipid bilayer"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	doc, ok := m.Get(ctx, key)
	require.True(t, ok)
	target := doc.FindByID("membrane")
	require.NotNil(t, target)
	require.Len(t, target.Children, 2)
	assert.Equal(t, "Lipid Bilayer", target.Children[0].Title)

	// A second merge of the same nodes adds nothing.
	added, err = m.MergeExpandedNodes(ctx, key, "membrane", "Cell Membrane", []mindmap.NodeDoc{{ID: "lipids", Title: "Other"}})
	require.NoError(t, err)
	assert.Zero(t, added)

	_, err = m.MergeExpandedNodes(ctx, key, "nope", "Nope", []mindmap.NodeDoc{{ID: "n", Title: "N"}})
	assert.ErrorIs(t, err, ErrTargetNotFound)

	_, err = m.MergeExpandedNodes(ctx, Key{CourseID: "missing"}, "cells", "Cells", nil)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMergeIntoSynthesizedRoot(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, NewMemoryStore(), newClock())
	key := Key{CourseID: "eco"}
	doc := &mindmap.Document{Title: "Ecology", Nodes: []mindmap.NodeDoc{
		{ID: "pop", Title: "Populations"},
		{ID: "bio", Title: "Biomes"},
	}}
	require.NoError(t, m.Put(ctx, key, doc))

	added, err := m.MergeExpandedNodes(ctx, key, mindmap.RootID, "Ecology", []mindmap.NodeDoc{
		{ID: "niche", Title: "Niches"},
		{ID: "biomes2", Title: "biomes"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	got, ok := m.Get(ctx, key)
	require.True(t, ok)
	require.Len(t, got.Nodes, 3)
	assert.Equal(t, "Niches", got.Nodes[2].Title)
}

// slowStore widens the window between reading and writing an entry.
type slowStore struct{ *MemoryStore }

func (s slowStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.MemoryStore.Get(ctx, key)
	time.Sleep(20 * time.Millisecond)
	return b, err
}

func TestConcurrentMergesKeepBoth(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, slowStore{NewMemoryStore()}, newClock())
	key := Key{CourseID: "bio101"}
	require.NoError(t, m.Put(ctx, key, sampleDoc()))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	merge := func(i int, id, title string, n mindmap.NodeDoc) {
		defer wg.Done()
		_, errs[i] = m.MergeExpandedNodes(ctx, key, id, title, []mindmap.NodeDoc{n})
	}
	wg.Add(2)
	go merge(0, "cells", "Cells", mindmap.NodeDoc{ID: "mito", Title: "Mitochondria"})
	go merge(1, "genetics", "Genetics", mindmap.NodeDoc{ID: "dna", Title: "DNA"})
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	doc, ok := m.Get(ctx, key)
	require.True(t, ok)
	assert.NotNil(t, doc.FindByID("mito"))
	assert.NotNil(t, doc.FindByID("dna"))
}

func TestResolveGeneratesOnMiss(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, NewMemoryStore(), newClock())
	key := Key{CourseID: "bio101"}
	var calls int32
	gen := GeneratorFunc(func(context.Context, Key) (*mindmap.Document, error) {
		atomic.AddInt32(&calls, 1)
		return sampleDoc(), nil
	})

	doc, err := m.Resolve(ctx, key, gen)
	require.NoError(t, err)
	assert.Equal(t, "Biology", doc.Title)

	_, err = m.Resolve(ctx, key, gen)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "second resolve is a cache hit")
}

func TestResolveEmptyNotCached(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, NewMemoryStore(), newClock())
	key := Key{CourseID: "bio101"}
	gen := GeneratorFunc(func(context.Context, Key) (*mindmap.Document, error) {
		return &mindmap.Document{Title: "Empty"}, nil
	})
	_, err := m.Resolve(ctx, key, gen)
	assert.ErrorIs(t, err, mindmap.ErrEmptyDocument)
	_, ok := m.Get(ctx, key)
	assert.False(t, ok)
}

func unusableDoc() *mindmap.Document {
	return &mindmap.Document{Title: "Biology", Nodes: []mindmap.NodeDoc{{
		ID: "root", Title: "Biology", Children: []mindmap.NodeDoc{{Title: "No id"}},
	}}}
}

func TestResolveUnusableNotCached(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, NewMemoryStore(), newClock())
	key := Key{CourseID: "bio101"}
	gen := GeneratorFunc(func(context.Context, Key) (*mindmap.Document, error) {
		return unusableDoc(), nil
	})
	doc, err := m.Resolve(ctx, key, gen)
	require.NoError(t, err)
	assert.False(t, doc.Usable())
	_, ok := m.Get(ctx, key)
	assert.False(t, ok)
}

func TestRefreshKeepsEntryUntilUsable(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, NewMemoryStore(), newClock())
	key := Key{CourseID: "bio101"}
	require.NoError(t, m.Put(ctx, key, sampleDoc()))

	next := unusableDoc()
	gen := GeneratorFunc(func(context.Context, Key) (*mindmap.Document, error) {
		return next, nil
	})
	_, err := m.Refresh(ctx, key, gen)
	require.NoError(t, err)
	doc, ok := m.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, 4, mindmap.CountDocument(doc))

	next = &mindmap.Document{Title: "Biology", Nodes: []mindmap.NodeDoc{{
		ID: "root", Title: "Biology", Children: []mindmap.NodeDoc{{ID: "eco", Title: "Ecology"}},
	}}}
	_, err = m.Refresh(ctx, key, gen)
	require.NoError(t, err)
	doc, ok = m.Get(ctx, key)
	require.True(t, ok)
	assert.NotNil(t, doc.FindByID("eco"))
	assert.Nil(t, doc.FindByID("cells"))
}

func TestResolveSharesInFlightGeneration(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, NewMemoryStore(), newClock())
	key := Key{CourseID: "bio101"}

	var calls int32
	release := make(chan struct{})
	gen := GeneratorFunc(func(context.Context, Key) (*mindmap.Document, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return sampleDoc(), nil
	})

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = m.Resolve(ctx, key, gen)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestPurgeAndList(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	m := newManager(t, NewMemoryStore(), c)

	require.NoError(t, m.Put(ctx, Key{CourseID: "old"}, sampleDoc()))
	c.advance(48 * time.Hour)
	require.NoError(t, m.Put(ctx, Key{CourseID: "new"}, sampleDoc()))

	recs, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "conceptmap:new", recs[0].Key)

	n, err := m.Purge(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recs, err = m.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "conceptmap:new", recs[0].Key)

	require.NoError(t, m.Invalidate(ctx, Key{CourseID: "new"}))
	recs, err = m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestWarm(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, NewMemoryStore(), newClock())
	gen := GeneratorFunc(func(_ context.Context, k Key) (*mindmap.Document, error) {
		if k.CourseID == "bad" {
			return nil, errors.New("backend down")
		}
		return sampleDoc(), nil
	})
	keys := []Key{{CourseID: "a"}, {CourseID: "bad"}, {CourseID: "c", BookID: "b"}}

	res, err := m.Warm(ctx, keys, gen, 2)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.NoError(t, res[0].Err)
	assert.Equal(t, 4, res[0].Nodes)
	assert.Error(t, res[1].Err)
	assert.NoError(t, res[2].Err)

	_, ok := m.Get(ctx, Key{CourseID: "c", BookID: "b"})
	assert.True(t, ok)
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	st, err := NewSQLiteStore(path, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, st.Put(ctx, "conceptmap:a", []byte(`{}`), time.Now()))
	require.NoError(t, st.Close())

	// Migrations are not re-applied and data survives.
	st, err = NewSQLiteStore(path, logging.Discard())
	require.NoError(t, err)
	defer st.Close()
	data, err := st.Get(ctx, "conceptmap:a")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	_, err = st.Get(ctx, "conceptmap:none")
	assert.ErrorIs(t, err, ErrMiss)
}
