package layout

import (
	"math"
	"time"
)

// DefaultDuration is the length of a layout transition.
const DefaultDuration = 600 * time.Millisecond

// DefaultEpsilon is the distance at which a node counts as arrived.
const DefaultEpsilon = 0.5

// EaseOutCubic maps t in [0,1] to 1-(1-t)^3.
func EaseOutCubic(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	u := 1 - t
	return 1 - u*u*u
}

// Animator interpolates node positions from a start set toward a target
// set with an ease-out-cubic curve over a fixed duration. Nodes missing
// from the start set jump straight to their target.
type Animator struct {
	start    map[string]Point
	target   map[string]Point
	duration time.Duration
	epsilon  float64
	begun    time.Time
	started  bool
	finished bool
}

// NewAnimator prepares a transition.
func NewAnimator(from, to map[string]Point, duration time.Duration) *Animator {
	if duration <= 0 {
		duration = DefaultDuration
	}
	start := make(map[string]Point, len(to))
	target := make(map[string]Point, len(to))
	for id, p := range to {
		target[id] = p
		if f, ok := from[id]; ok {
			start[id] = f
		} else {
			start[id] = p
		}
	}
	return &Animator{start: start, target: target, duration: duration, epsilon: DefaultEpsilon}
}

// Step returns the positions for the frame at now and whether the
// transition is complete. The first call fixes the start time. On the
// final frame every node is exactly at its target and the animator
// releases its state.
func (a *Animator) Step(now time.Time) (map[string]Point, bool) {
	if a.finished {
		return map[string]Point{}, true
	}
	if !a.started {
		a.begun = now
		a.started = true
	}
	t := float64(now.Sub(a.begun)) / float64(a.duration)
	e := EaseOutCubic(t)

	frame := make(map[string]Point, len(a.target))
	arrived := true
	for id, to := range a.target {
		from := a.start[id]
		p := Point{X: from.X + (to.X-from.X)*e, Y: from.Y + (to.Y-from.Y)*e}
		if math.Hypot(to.X-p.X, to.Y-p.Y) > a.epsilon {
			arrived = false
		}
		frame[id] = p
	}

	if t >= 1 || arrived {
		for id, to := range a.target {
			frame[id] = to
		}
		a.finished = true
		a.start = nil
		a.target = nil
		return frame, true
	}
	return frame, false
}

// Done reports whether the transition has completed.
func (a *Animator) Done() bool { return a.finished }
