package layout

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// FrameFunc is called once per frame. Returning false stops the callback.
type FrameFunc func(now time.Time) bool

// FrameScheduler runs a recurring per-frame callback until it returns
// false or the returned cancel func is called.
type FrameScheduler interface {
	Schedule(fn FrameFunc) (cancel func())
}

// TimerScheduler ticks at a fixed interval on its own goroutine. When
// Dispatch is set each frame is handed to it instead of running on the
// ticker goroutine, which is how UI-owned state stays on the UI thread.
type TimerScheduler struct {
	Interval time.Duration
	Dispatch func(func())
}

// NewTimerScheduler returns a scheduler ticking at roughly 60 frames per second.
func NewTimerScheduler(dispatch func(func())) *TimerScheduler {
	return &TimerScheduler{Interval: 16 * time.Millisecond, Dispatch: dispatch}
}

// Schedule implements FrameScheduler.
func (ts *TimerScheduler) Schedule(fn FrameFunc) func() {
	interval := ts.Interval
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	stop := make(chan struct{})
	var once sync.Once
	var stopped atomic.Bool
	cancel := func() {
		once.Do(func() {
			stopped.Store(true)
			close(stop)
		})
	}

	frame := func(now time.Time) {
		if stopped.Load() {
			return
		}
		if !fn(now) {
			cancel()
		}
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				if ts.Dispatch != nil {
					ts.Dispatch(func() { frame(now) })
				} else {
					frame(now)
				}
			}
		}
	}()
	return cancel
}

// ManualScheduler runs frames only when Tick is called. Tests use it to
// step animations deterministically.
type ManualScheduler struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]FrameFunc
}

// NewManualScheduler returns an idle scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{fns: map[int]FrameFunc{}}
}

// Schedule implements FrameScheduler.
func (ms *ManualScheduler) Schedule(fn FrameFunc) func() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	id := ms.nextID
	ms.nextID++
	ms.fns[id] = fn
	return func() {
		ms.mu.Lock()
		defer ms.mu.Unlock()
		delete(ms.fns, id)
	}
}

// Tick runs one frame of every active callback, in registration order.
func (ms *ManualScheduler) Tick(now time.Time) {
	ms.mu.Lock()
	ids := make([]int, 0, len(ms.fns))
	for id := range ms.fns {
		ids = append(ids, id)
	}
	ms.mu.Unlock()
	sort.Ints(ids)

	for _, id := range ids {
		ms.mu.Lock()
		fn, ok := ms.fns[id]
		ms.mu.Unlock()
		if !ok {
			continue
		}
		if !fn(now) {
			ms.mu.Lock()
			delete(ms.fns, id)
			ms.mu.Unlock()
		}
	}
}

// Active returns the number of scheduled callbacks.
func (ms *ManualScheduler) Active() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.fns)
}
