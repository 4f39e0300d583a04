package layout

import (
	"sync"
	"time"
)

// Driver runs one layout transition at a time through a FrameScheduler.
// Starting a new transition cancels the one in progress, so passes never
// compound.
type Driver struct {
	mu       sync.Mutex
	sched    FrameScheduler
	duration time.Duration
	gen      uint64
	cancel   func()
	running  bool
}

// NewDriver returns a driver animating over duration.
func NewDriver(sched FrameScheduler, duration time.Duration) *Driver {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Driver{sched: sched, duration: duration}
}

// Run animates from the current positions to target. apply receives each
// frame; done, if non-nil, runs once after the final frame. A cancelled
// run never calls done.
func (d *Driver) Run(from, target map[string]Point, apply func(map[string]Point), done func()) {
	d.mu.Lock()
	d.stopLocked()
	d.gen++
	gen := d.gen
	d.running = true
	anim := NewAnimator(from, target, d.duration)
	d.mu.Unlock()

	cancel := d.sched.Schedule(func(now time.Time) bool {
		d.mu.Lock()
		if gen != d.gen {
			d.mu.Unlock()
			return false
		}
		d.mu.Unlock()

		frame, finished := anim.Step(now)
		apply(frame)
		if !finished {
			return true
		}

		d.mu.Lock()
		if gen == d.gen {
			d.running = false
			d.cancel = nil
		}
		d.mu.Unlock()
		if done != nil {
			done()
		}
		return false
	})

	d.mu.Lock()
	if gen == d.gen && d.running {
		d.cancel = cancel
	} else {
		cancel()
	}
	d.mu.Unlock()
}

// Cancel stops the transition in progress, leaving nodes where the last
// frame put them.
func (d *Driver) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.gen++
}

func (d *Driver) stopLocked() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.running = false
}

// Running reports whether a transition is in progress.
func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}
