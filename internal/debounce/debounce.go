package debounce

import (
	"sync"
	"time"

	"richsync/internal/clock"
)

const DefaultInterval = 200 * time.Millisecond

// Debouncer runs the most recently scheduled function once a quiet period has
// passed since the last Schedule call. At most one call is pending at a time.
type Debouncer struct {
	sched    clock.Scheduler
	interval time.Duration

	mu    sync.Mutex
	timer clock.Timer
	fn    func()
	// gen invalidates callbacks that were already handed to the scheduler
	// (or queued on an event loop) when a newer Schedule or Cancel happened.
	gen uint64
}

func New(sched clock.Scheduler, interval time.Duration) *Debouncer {
	if sched == nil {
		sched = clock.Real{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Debouncer{sched: sched, interval: interval}
}

func (d *Debouncer) Interval() time.Duration { return d.interval }

// Schedule replaces any pending call with fn and restarts the quiet period.
func (d *Debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.fn = fn
	d.timer = d.sched.AfterFunc(d.interval, func() { d.fire(gen) })
}

// Cancel drops the pending call, if any. It reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	pending := d.fn != nil
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	d.timer = nil
	d.fn = nil
	return pending
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fn != nil
}

// Flush runs the pending call now instead of waiting. It reports whether
// there was one.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	fn := d.takeLocked()
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	fn := d.takeLocked()
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (d *Debouncer) takeLocked() func() {
	fn := d.fn
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	d.timer = nil
	d.fn = nil
	return fn
}
