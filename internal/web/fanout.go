package web

import "sync"

type delivery struct {
	docID string
	from  string
	value string
}

// fanOutQueue delivers change events to peer sessions one at a time, in the
// order they were pushed. push never blocks, so it is safe to call from a
// widget loop while the drain goroutine waits on another one.
type fanOutQueue struct {
	mu       sync.Mutex
	pending  []delivery
	draining bool
	deliver  func(delivery)
}

func newFanOutQueue(deliver func(delivery)) *fanOutQueue {
	return &fanOutQueue{deliver: deliver}
}

func (q *fanOutQueue) push(d delivery) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, d)
	if !q.draining {
		q.draining = true
		go q.drain()
	}
}

func (q *fanOutQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.pending = nil
			q.draining = false
			q.mu.Unlock()
			return
		}
		d := q.pending[0]
		q.pending[0] = delivery{}
		q.pending = q.pending[1:]
		q.mu.Unlock()
		q.deliver(d)
	}
}
