package expand

import (
	"context"
	"sync"
)

// State is the lifecycle of one expansion.
type State int

const (
	StateIdle State = iota
	StatePending
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled back"
	default:
		return "unknown"
	}
}

// Expansion is the handle of one accepted request.
type Expansion struct {
	ID     string
	NodeID string
	Prompt string

	mu     sync.Mutex
	state  State
	err    error
	added  []string
	done   chan struct{}
	cancel context.CancelFunc
}

func newExpansion(id, nodeID, prompt string, cancel context.CancelFunc) *Expansion {
	return &Expansion{
		ID:     id,
		NodeID: nodeID,
		Prompt: prompt,
		state:  StatePending,
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// State returns the current state.
func (e *Expansion) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err returns the rollback cause, or nil.
func (e *Expansion) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Added returns the ids appended on commit.
func (e *Expansion) Added() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.added...)
}

// Done is closed once the expansion is committed or rolled back.
func (e *Expansion) Done() <-chan struct{} { return e.done }

// Cancel aborts the network call. A result already dispatched to the graph
// owner is still applied.
func (e *Expansion) Cancel() { e.cancel() }

// Wait blocks until the expansion settles or ctx ends.
func (e *Expansion) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return e.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Expansion) finish(state State, added []string, err error) {
	e.mu.Lock()
	e.state = state
	e.added = added
	e.err = err
	e.mu.Unlock()
	e.cancel()
	close(e.done)
}
