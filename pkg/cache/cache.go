// Package cache persists generated concept map documents per (course, book)
// with a time-to-live, and merges AI-added nodes back into them.
//
// Cache writes are best-effort: a failed write is logged and a failed read
// is treated as a miss.
package cache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ha1tch/conceptmap/pkg/logging"
	"github.com/ha1tch/conceptmap/pkg/mindmap"
)

// Version is the entry schema version. Entries written with a different
// version are treated as misses.
const Version = "1"

// DefaultTTL is how long an entry stays fresh.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "conceptmap"

var (
	// ErrMiss reports an absent, stale or unreadable entry.
	ErrMiss = errors.New("cache miss")
	// ErrTargetNotFound reports that a merge target title is not in the
	// cached document.
	ErrTargetNotFound = errors.New("merge target not found in cached document")
	// ErrInvalidKey reports a malformed storage key.
	ErrInvalidKey = errors.New("invalid cache key")
	// ErrUnusable reports a generated document with no loadable concepts.
	// Such documents are never cached.
	ErrUnusable = errors.New("generated document has no usable concepts")
)

// Key identifies one cached document.
type Key struct {
	CourseID string
	BookID   string // optional
}

// String returns the deterministic storage key, conceptmap:<course>[:<book>].
// '%' and ':' inside the ids are percent-encoded so distinct keys never
// collide.
func (k Key) String() string {
	if k.BookID == "" {
		return keyPrefix + ":" + keyEscaper.Replace(k.CourseID)
	}
	return keyPrefix + ":" + keyEscaper.Replace(k.CourseID) + ":" + keyEscaper.Replace(k.BookID)
}

var (
	keyEscaper   = strings.NewReplacer("%", "%25", ":", "%3A")
	keyUnescaper = strings.NewReplacer("%25", "%", "%3A", ":", "%3a", ":")
)

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] != keyPrefix || parts[1] == "" {
		return Key{}, ErrInvalidKey
	}
	k := Key{CourseID: keyUnescaper.Replace(parts[1])}
	if len(parts) == 3 {
		if parts[2] == "" {
			return Key{}, ErrInvalidKey
		}
		k.BookID = keyUnescaper.Replace(parts[2])
	}
	return k, nil
}

// Entry is the persisted form of a cached document.
type Entry struct {
	Document  *mindmap.Document `json:"document"`
	Timestamp int64             `json:"timestamp"` // epoch milliseconds
	CourseID  string            `json:"courseId"`
	BookID    string            `json:"bookId,omitempty"`
	Version   string            `json:"version"`
}

// Time returns the entry timestamp.
func (e Entry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Record describes one stored entry without its payload.
type Record struct {
	Key       string
	UpdatedAt time.Time
	Size      int
}

// Store is raw keyed storage for encoded entries.
type Store interface {
	// Get returns the bytes stored under key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores data under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte, at time.Time) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every stored entry, ordered by key.
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// Generator produces a fresh document for a key on a cache miss.
type Generator interface {
	Generate(ctx context.Context, key Key) (*mindmap.Document, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, key Key) (*mindmap.Document, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, key Key) (*mindmap.Document, error) {
	return f(ctx, key)
}

// Store backends accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Open creates the named store backend rooted at dir.
func Open(backend, dir string, log *logging.Logger) (Store, error) {
	switch backend {
	case BackendSQLite, "":
		return NewSQLiteStore(filepath.Join(dir, "conceptmap.db"), log)
	case BackendFile:
		return NewFileStore(dir)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", backend)
	}
}
