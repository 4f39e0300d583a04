package engine

import (
	"context"
	"sort"
)

// Action is one entry of the interaction surface.
type Action int

const (
	ActionNone Action = iota
	ActionZoomIn
	ActionZoomOut
	ActionFit
	ActionCenterRoot
	ActionSearchNext
	ActionSearchPrev
	ActionSearchClear
	ActionExpandAll
	ActionCollapseAll
	ActionToggle
	ActionBookmark
	ActionUndo
	ActionRedo
	ActionAutoLayout
	ActionAIExpand
	ActionDelete
	ActionBack
	ActionRegenerate
)

var actionNames = map[Action]string{
	ActionNone:        "none",
	ActionZoomIn:      "zoom-in",
	ActionZoomOut:     "zoom-out",
	ActionFit:         "fit",
	ActionCenterRoot:  "center-root",
	ActionSearchNext:  "search-next",
	ActionSearchPrev:  "search-prev",
	ActionSearchClear: "search-clear",
	ActionExpandAll:   "expand-all",
	ActionCollapseAll: "collapse-all",
	ActionToggle:      "toggle",
	ActionBookmark:    "bookmark",
	ActionUndo:        "undo",
	ActionRedo:        "redo",
	ActionAutoLayout:  "auto-layout",
	ActionAIExpand:    "ai-expand",
	ActionDelete:      "delete",
	ActionBack:        "back",
	ActionRegenerate:  "regenerate",
}

func (a Action) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return "unknown"
}

// ParseAction maps a name such as "zoom-in" to its action.
func ParseAction(name string) (Action, bool) {
	for a, n := range actionNames {
		if n == name {
			return a, true
		}
	}
	return ActionNone, false
}

// Keymap binds key names to actions. Runes are written as themselves
// ("+"); other keys use tcell's names ("Ctrl+Z", "Enter").
type Keymap map[string]Action

// DefaultKeymap returns the standard bindings.
func DefaultKeymap() Keymap {
	return Keymap{
		"+":          ActionZoomIn,
		"=":          ActionZoomIn,
		"-":          ActionZoomOut,
		"0":          ActionFit,
		"Home":       ActionCenterRoot,
		"c":          ActionCenterRoot,
		"n":          ActionSearchNext,
		"N":          ActionSearchPrev,
		"Esc":        ActionSearchClear,
		"E":          ActionExpandAll,
		"C":          ActionCollapseAll,
		"Enter":      ActionToggle,
		" ":          ActionToggle,
		"b":          ActionBookmark,
		"Ctrl+Z":     ActionUndo,
		"u":          ActionUndo,
		"Ctrl+Y":     ActionRedo,
		"U":          ActionRedo,
		"l":          ActionAutoLayout,
		"x":          ActionAIExpand,
		"Delete":     ActionDelete,
		"d":          ActionDelete,
		"Backspace":  ActionBack,
		"Backspace2": ActionBack,
		"r":          ActionRegenerate,
	}
}

// Lookup returns the action bound to key.
func (k Keymap) Lookup(key string) (Action, bool) {
	a, ok := k[key]
	return a, ok && a != ActionNone
}

// Keys returns the keys bound to a, sorted.
func (k Keymap) Keys(a Action) []string {
	var out []string
	for key, b := range k {
		if b == a {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// Do performs a. AI expansion uses no prompt; callers wanting one use
// ExpandSelected. Regenerate blocks on the network; the viewer runs it
// through OpenAsync instead.
func (s *Session) Do(ctx context.Context, a Action) error {
	switch a {
	case ActionZoomIn:
		s.ZoomIn()
	case ActionZoomOut:
		s.ZoomOut()
	case ActionFit:
		s.Fit()
	case ActionCenterRoot:
		s.CenterRoot()
	case ActionSearchNext:
		s.SearchNext()
	case ActionSearchPrev:
		s.SearchPrev()
	case ActionSearchClear:
		s.ClearSearch()
	case ActionExpandAll:
		s.ExpandAll()
	case ActionCollapseAll:
		s.CollapseAll()
	case ActionToggle:
		id := s.store.Selected()
		if id == "" {
			return ErrNoSelection
		}
		return s.Toggle(id)
	case ActionBookmark:
		return s.ToggleBookmark()
	case ActionUndo:
		s.Undo()
	case ActionRedo:
		s.Redo()
	case ActionAutoLayout:
		s.AutoLayout()
	case ActionAIExpand:
		_, err := s.ExpandSelected(ctx, "")
		return err
	case ActionDelete:
		return s.DeleteSelected()
	case ActionBack:
		s.Back()
	case ActionRegenerate:
		return s.Regenerate(ctx)
	}
	return nil
}
