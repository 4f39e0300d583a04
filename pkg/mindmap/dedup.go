package mindmap

import (
	"strings"
	"unicode"
)

// NormalizeTitle folds a title for duplicate detection: case-insensitive,
// surrounding space trimmed, inner whitespace runs collapsed.
func NormalizeTitle(title string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(title), unicode.IsSpace), " ")
}

// Deduper admits nodes whose id and normalized title are both unseen.
// Admitted nodes are remembered, so a batch is deduplicated against
// itself as well as against the seed set.
type Deduper struct {
	ids    map[string]bool
	titles map[string]bool
}

// NewDeduper seeds a Deduper with existing nodes.
func NewDeduper(existing []NodeDoc) *Deduper {
	d := &Deduper{ids: map[string]bool{}, titles: map[string]bool{}}
	for _, n := range existing {
		d.Remember(n.ID, n.Title)
	}
	return d
}

// Remember marks an id and title as present.
func (d *Deduper) Remember(id, title string) {
	if id != "" {
		d.ids[id] = true
	}
	if t := NormalizeTitle(title); t != "" {
		d.titles[t] = true
	}
}

// Seen reports whether a node with this id or title is already present.
func (d *Deduper) Seen(id, title string) bool {
	if id != "" && d.ids[id] {
		return true
	}
	return d.titles[NormalizeTitle(title)]
}

// Admit reports whether n is new and, if so, remembers it.
func (d *Deduper) Admit(n NodeDoc) bool {
	if d.Seen(n.ID, n.Title) {
		return false
	}
	d.Remember(n.ID, n.Title)
	return true
}

// FilterNew returns the nodes of incoming not already present in existing,
// in order, dropping duplicates within incoming as well.
func FilterNew(existing, incoming []NodeDoc) []NodeDoc {
	d := NewDeduper(existing)
	var out []NodeDoc
	for _, n := range incoming {
		if d.Admit(n) {
			out = append(out, n)
		}
	}
	return out
}
