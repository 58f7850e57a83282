package web

import "testing"

func TestBroadcaster_CoalescesAndCleansUp(t *testing.T) {
	b := newResourceBroadcaster()
	key := resourceKey{kind: "session", id: "s1"}

	b.notify(key) // nobody listening

	ch1, cancel1 := b.subscribe(key)
	ch2, cancel2 := b.subscribe(key)
	if n := b.watchers(key); n != 2 {
		t.Fatalf("expected 2 watchers, got %d", n)
	}

	for i := 0; i < 20; i++ {
		b.notify(key)
	}
	if len(ch1) != cap(ch1) || len(ch2) != cap(ch2) {
		t.Fatalf("expected wakeups to fill but not block, got %d and %d", len(ch1), len(ch2))
	}

	b.notify(resourceKey{kind: "session", id: "other"})

	cancel1()
	cancel1()
	if n := b.watchers(key); n != 1 {
		t.Fatalf("expected 1 watcher after cancel, got %d", n)
	}
	cancel2()
	if _, ok := b.hubs[key]; ok {
		t.Fatalf("expected hub removed with its last subscriber")
	}
	for range ch2 {
	}
}
