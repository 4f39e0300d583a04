package expand

import "context"

// Dispatcher runs fn on the goroutine that owns the graph.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(fn func())

// Dispatch implements Dispatcher.
func (f DispatchFunc) Dispatch(fn func()) { f(fn) }

// Queue is a channel-backed Dispatcher. The owner loop receives from C
// and runs what it gets, or calls Drain between frames.
type Queue struct {
	ch chan func()
}

// NewQueue returns a queue buffering up to size pending functions.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 64
	}
	return &Queue{ch: make(chan func(), size)}
}

// Dispatch implements Dispatcher. It blocks while the queue is full.
func (q *Queue) Dispatch(fn func()) { q.ch <- fn }

// C exposes the queue for select loops.
func (q *Queue) C() <-chan func() { return q.ch }

// Drain runs every queued function without blocking and returns how many
// ran.
func (q *Queue) Drain() int {
	n := 0
	for {
		select {
		case fn := <-q.ch:
			fn()
			n++
		default:
			return n
		}
	}
}

// RunOne waits for one function and runs it. It returns false when ctx
// ends first.
func (q *Queue) RunOne(ctx context.Context) bool {
	select {
	case fn := <-q.ch:
		fn()
		return true
	case <-ctx.Done():
		return false
	}
}
