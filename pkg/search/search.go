// Package search finds concepts by text and keeps a cursor over the
// matches for next/previous navigation.
package search

import (
	"strings"

	"github.com/ha1tch/conceptmap/pkg/graph"
)

// Index holds the current query, its ordered results and a cursor.
type Index struct {
	query   string
	results []string
	cursor  int
}

// New returns an empty index.
func New() *Index {
	return &Index{cursor: -1}
}

// Search matches query case-insensitively as a substring of each visible
// node's title or summary. Results follow graph order; the cursor is
// reset to the first result, or -1 when there is none.
func (ix *Index) Search(nodes []graph.Node, query string) []string {
	ix.query = query
	ix.results = nil
	ix.cursor = -1

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	for _, n := range nodes {
		if n.Hidden {
			continue
		}
		if strings.Contains(strings.ToLower(n.Title), q) || strings.Contains(strings.ToLower(n.Summary), q) {
			ix.results = append(ix.results, n.ID)
		}
	}
	if len(ix.results) > 0 {
		ix.cursor = 0
	}
	return ix.Results()
}

// Refresh re-runs the current query, keeping the cursor on the same node
// when it still matches.
func (ix *Index) Refresh(nodes []graph.Node) {
	current, _ := ix.Current()
	ix.Search(nodes, ix.query)
	for i, id := range ix.results {
		if id == current {
			ix.cursor = i
			return
		}
	}
}

// Navigate moves the cursor by delta, clamped to the result range.
func (ix *Index) Navigate(delta int) (string, bool) {
	if len(ix.results) == 0 {
		return "", false
	}
	c := ix.cursor + delta
	if c < 0 {
		c = 0
	}
	if c > len(ix.results)-1 {
		c = len(ix.results) - 1
	}
	ix.cursor = c
	return ix.results[c], true
}

// Next moves to the following result.
func (ix *Index) Next() (string, bool) { return ix.Navigate(1) }

// Prev moves to the preceding result.
func (ix *Index) Prev() (string, bool) { return ix.Navigate(-1) }

// Current returns the id under the cursor.
func (ix *Index) Current() (string, bool) {
	if ix.cursor < 0 || ix.cursor >= len(ix.results) {
		return "", false
	}
	return ix.results[ix.cursor], true
}

// Cursor returns the cursor position, -1 when there are no results.
func (ix *Index) Cursor() int { return ix.cursor }

// Query returns the active query.
func (ix *Index) Query() string { return ix.query }

// Results returns a copy of the ordered result ids.
func (ix *Index) Results() []string {
	return append([]string(nil), ix.results...)
}

// Contains reports whether id is among the results.
func (ix *Index) Contains(id string) bool {
	for _, r := range ix.results {
		if r == id {
			return true
		}
	}
	return false
}

// Clear drops the query and results.
func (ix *Index) Clear() {
	ix.query = ""
	ix.results = nil
	ix.cursor = -1
}
