package web

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestFanOutQueue_DeliversInPushOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		got  []string
		done = make(chan struct{})
	)
	const n = 200
	q := newFanOutQueue(func(d delivery) {
		// A slow first delivery gives later pushes every chance to overtake it.
		if d.value == "v0" {
			time.Sleep(10 * time.Millisecond)
		}
		mu.Lock()
		got = append(got, d.value)
		if len(got) == n {
			close(done)
		}
		mu.Unlock()
	})

	var want []string
	for i := 0; i < n; i++ {
		v := fmt.Sprintf("v%d", i)
		want = append(want, v)
		q.push(delivery{docID: "doc", from: "s1", value: v})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for deliveries")
	}
	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("delivery order mismatch (-want +got):\n%s", diff)
	}
}

func TestFanOutQueue_PushDoesNotWaitForDelivery(t *testing.T) {
	release := make(chan struct{})
	delivered := make(chan string, 4)
	q := newFanOutQueue(func(d delivery) {
		<-release
		delivered <- d.value
	})

	pushed := make(chan struct{})
	go func() {
		q.push(delivery{value: "a"})
		q.push(delivery{value: "b"})
		close(pushed)
	}()
	select {
	case <-pushed:
	case <-time.After(2 * time.Second):
		t.Fatalf("push blocked on a stalled delivery")
	}

	close(release)
	for _, want := range []string{"a", "b"} {
		select {
		case got := <-delivered:
			if got != want {
				t.Fatalf("expected %q, got %q", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}
