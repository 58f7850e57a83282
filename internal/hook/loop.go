package hook

import (
	"context"
	"sync"
	"time"

	"richsync/internal/clock"
)

// Loop runs posted functions one at a time, in order, on a single goroutine.
// It is also a clock.Scheduler whose timers deliver their callbacks through
// the loop, so timer work never overlaps with event handling.
type Loop struct {
	base clock.Scheduler

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	started bool
	stopped bool
	done    chan struct{}
}

// NewLoop returns a loop whose timers are driven by base (clock.Real when nil).
func NewLoop(base clock.Scheduler) *Loop {
	if base == nil {
		base = clock.Real{}
	}
	return &Loop{
		base: base,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Start runs the loop until ctx is done or Stop is called.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started || l.stopped {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	go l.run(ctx)
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	for {
		l.mu.Lock()
		if l.stopped {
			l.queue = nil
			l.mu.Unlock()
			return
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			select {
			case <-ctx.Done():
				l.mu.Lock()
				l.stopped = true
				l.queue = nil
				l.mu.Unlock()
				return
			case <-l.wake:
			}
			continue
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}

// Post queues fn. It reports false if the loop has stopped, in which case fn
// will never run.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call runs fn on the loop and waits for it. It reports false if the loop
// stopped before fn ran.
func (l *Loop) Call(fn func()) bool {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.done:
		// The loop may have run fn just before stopping.
		select {
		case <-ran:
			return true
		default:
			return false
		}
	}
}

// Stop ends the loop after the function currently running, if any, and waits
// for it to exit. Queued functions are dropped. Stop must not be called from
// a function running on the loop.
func (l *Loop) Stop() {
	l.mu.Lock()
	wasStarted := l.started
	wasStopped := l.stopped
	l.stopped = true
	l.queue = nil
	l.mu.Unlock()

	if !wasStarted {
		if !wasStopped {
			close(l.done)
		}
		return
	}
	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) Now() time.Time { return l.base.Now() }

// AfterFunc posts f onto the loop once d has elapsed on the base scheduler.
func (l *Loop) AfterFunc(d time.Duration, f func()) clock.Timer {
	return l.base.AfterFunc(d, func() { l.Post(f) })
}
