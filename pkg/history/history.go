// Package history implements bounded linear undo/redo over whole-state
// snapshots.
package history

// DefaultMax is the number of snapshots kept before the oldest is evicted.
const DefaultMax = 50

// Manager keeps an ordered list of snapshots and a cursor into it.
// Entries before the cursor are undo targets. When an undo starts from
// the live state, that state is appended first so redo can return to it.
type Manager[T any] struct {
	entries []T
	cursor  int
	max     int
}

// New creates a manager keeping at most max snapshots, the live state
// saved by Undo included. A max of one is raised to two so that an undo
// can still be redone.
func New[T any](max int) *Manager[T] {
	switch {
	case max <= 0:
		max = DefaultMax
	case max == 1:
		max = 2
	}
	return &Manager[T]{max: max}
}

// Checkpoint records the state before an undoable mutation. Any redo
// branch beyond the cursor is discarded.
func (m *Manager[T]) Checkpoint(state T) {
	if m.cursor < len(m.entries) {
		m.entries = m.entries[:m.cursor]
	}
	m.entries = append(m.entries, state)
	if len(m.entries) > m.max {
		drop := len(m.entries) - m.max
		m.entries = append(m.entries[:0:0], m.entries[drop:]...)
	}
	m.cursor = len(m.entries)
}

// Undo returns the snapshot to restore. current is the live state; it is
// kept so that Redo can return to it. The boolean is false at the start
// of history.
func (m *Manager[T]) Undo(current T) (T, bool) {
	var zero T
	if m.cursor == 0 {
		return zero, false
	}
	if m.cursor == len(m.entries) {
		m.entries = append(m.entries, current)
		if len(m.entries) > m.max {
			m.entries = append(m.entries[:0:0], m.entries[1:]...)
			m.cursor--
		}
	}
	m.cursor--
	return m.entries[m.cursor], true
}

// Redo returns the snapshot undone most recently. The boolean is false
// when there is nothing to redo.
func (m *Manager[T]) Redo() (T, bool) {
	var zero T
	if m.cursor >= len(m.entries)-1 {
		return zero, false
	}
	m.cursor++
	return m.entries[m.cursor], true
}

// CanUndo reports whether Undo would move.
func (m *Manager[T]) CanUndo() bool { return m.cursor > 0 }

// CanRedo reports whether Redo would move.
func (m *Manager[T]) CanRedo() bool { return m.cursor < len(m.entries)-1 }

// Len returns the number of undo steps available.
func (m *Manager[T]) Len() int { return m.cursor }

// Reset drops all history.
func (m *Manager[T]) Reset() {
	m.entries = nil
	m.cursor = 0
}
