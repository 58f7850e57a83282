package web

import "sync"

// resourceKey names something SSE streams can watch, e.g. one session.
type resourceKey struct {
	kind string
	id   string
}

// resourceHub wakes the SSE streams watching one resource. Wakeups coalesce:
// a slow stream sees at most a few pending signals and re-reads current
// state when it gets to them.
type resourceHub struct {
	subs map[chan struct{}]struct{}
}

type resourceBroadcaster struct {
	mu   sync.Mutex
	hubs map[resourceKey]*resourceHub
}

func newResourceBroadcaster() *resourceBroadcaster {
	return &resourceBroadcaster{hubs: map[resourceKey]*resourceHub{}}
}

// subscribe registers a stream for key. The hub goes away with its last
// subscriber.
func (b *resourceBroadcaster) subscribe(key resourceKey) (ch chan struct{}, cancel func()) {
	ch = make(chan struct{}, 8)
	b.mu.Lock()
	h := b.hubs[key]
	if h == nil {
		h = &resourceHub{subs: map[chan struct{}]struct{}{}}
		b.hubs[key] = h
	}
	h.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if h := b.hubs[key]; h != nil {
				delete(h.subs, ch)
				if len(h.subs) == 0 {
					delete(b.hubs, key)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *resourceBroadcaster) notify(key resourceKey) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.hubs[key]
	if h == nil {
		return
	}
	for ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// watchers reports how many streams watch key.
func (b *resourceBroadcaster) watchers(key resourceKey) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h := b.hubs[key]; h != nil {
		return len(h.subs)
	}
	return 0
}
