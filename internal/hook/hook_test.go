package hook

import (
	"context"
	"sync"
	"testing"
	"time"

	"richsync/internal/clock"
	"richsync/internal/config"
	"richsync/internal/richdoc"
	"richsync/internal/syncer"
)

type memField struct {
	mu    sync.Mutex
	value string
}

func (f *memField) Value() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

func (f *memField) SetValue(v string) {
	f.mu.Lock()
	f.value = v
	f.mu.Unlock()
}

type eventLog struct {
	mu     sync.Mutex
	events []syncer.ChangeEvent
}

func (l *eventLog) emit(ev syncer.ChangeEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []syncer.ChangeEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]syncer.ChangeEvent(nil), l.events...)
}

func newTestWidget(t *testing.T, id, initial string, clk clock.Scheduler, log *eventLog) (*Widget, *richdoc.Editor, *memField) {
	t.Helper()
	editor := richdoc.NewEditor()
	field := &memField{value: initial}
	w, err := NewWidget(WidgetOptions{
		ID:        id,
		Editor:    editor,
		Field:     field,
		Config:    config.Default(),
		Scheduler: clk,
		Emit:      log.emit,
	})
	if err != nil {
		t.Fatalf("NewWidget: %v", err)
	}
	return w, editor, field
}

func TestLoop_RunsInOrder(t *testing.T) {
	l := NewLoop(nil)
	l.Start(context.Background())
	defer l.Stop()

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		if !l.Post(func() { got = append(got, i) }) {
			t.Fatalf("Post %d: loop refused work", i)
		}
	}
	if !l.Call(func() {}) {
		t.Fatalf("Call: loop refused work")
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("expected FIFO order, got %v", got)
		}
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 runs, got %v", got)
	}
}

func TestLoop_StopDropsWork(t *testing.T) {
	l := NewLoop(nil)
	l.Start(context.Background())
	l.Stop()
	if l.Post(func() {}) {
		t.Fatalf("Post after Stop: expected false")
	}
	if l.Call(func() {}) {
		t.Fatalf("Call after Stop: expected false")
	}
	l.Stop()
}

func TestLoop_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := NewLoop(nil)
	l.Start(ctx)
	cancel()
	select {
	case <-l.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("loop did not stop on context cancel")
	}
	if l.Post(func() {}) {
		t.Fatalf("Post after cancel: expected false")
	}
}

func TestLoop_TimersRunOnLoop(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	l := NewLoop(clk)
	l.Start(context.Background())
	defer l.Stop()

	fired := make(chan struct{})
	l.AfterFunc(time.Second, func() { close(fired) })
	clk.Advance(time.Second)
	l.Call(func() {})
	select {
	case <-fired:
	default:
		t.Fatalf("timer callback did not run on the loop")
	}
}

func TestWidget_RapidTypingEmitsOnce(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	log := &eventLog{}
	w, _, field := newTestWidget(t, "body", "", clk, log)
	if err := w.OnAttach(context.Background()); err != nil {
		t.Fatalf("OnAttach: %v", err)
	}
	defer w.OnDetach()

	for i, v := range []string{"h", "he", "hel", "hello"} {
		if i > 0 {
			clk.Advance(50 * time.Millisecond)
		}
		out, err := w.EditRich("<p>" + v + "</p>")
		if err != nil || out != syncer.Scheduled {
			t.Fatalf("EditRich(%q): expected scheduled, got %v (err=%v)", v, out, err)
		}
	}
	clk.Advance(200 * time.Millisecond)
	// Barrier: the timer callback was posted before this call.
	if _, ok := w.State(); !ok {
		t.Fatalf("State: widget not attached")
	}

	events := log.snapshot()
	if len(events) != 1 || events[0].Value != "hello" || events[0].WidgetID != "body" {
		t.Fatalf("expected one change event with %q, got %v", "hello", events)
	}
	if field.Value() != "hello" {
		t.Fatalf("expected field %q, got %q", "hello", field.Value())
	}
}

func TestWidget_PlainEditRerendersEditor(t *testing.T) {
	log := &eventLog{}
	w, editor, _ := newTestWidget(t, "body", "start", clock.NewManual(time.Unix(0, 0)), log)
	if err := w.OnAttach(context.Background()); err != nil {
		t.Fatalf("OnAttach: %v", err)
	}
	defer w.OnDetach()

	if got := editor.HTML(); got != "<p>start</p>" {
		t.Fatalf("expected mounted editor %q, got %q", "<p>start</p>", got)
	}
	out, err := w.EditPlain("*changed*")
	if err != nil || out != syncer.Applied {
		t.Fatalf("EditPlain: expected applied, got %v (err=%v)", out, err)
	}
	html, value := w.Snapshot()
	if html != "<p><em>changed</em></p>" || value != "*changed*" {
		t.Fatalf("unexpected snapshot: editor=%q field=%q", html, value)
	}
	st, _ := w.State()
	if !st.Locked || st.Origin != syncer.OriginLocalPlain {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestRegistry_DispatchRoutesById(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	log := &eventLog{}
	reg := NewRegistry(nil)
	defer reg.Close()

	a, editorA, fieldA := newTestWidget(t, "a", "one", clk, log)
	b, _, fieldB := newTestWidget(t, "b", "two", clk, log)
	for _, w := range []*Widget{a, b} {
		if err := reg.Mount(context.Background(), w); err != nil {
			t.Fatalf("Mount: %v", err)
		}
	}
	if got := reg.IDs(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected ids: %v", got)
	}

	v := "one updated"
	out, err := reg.Dispatch(RemoteUpdate{WidgetID: "a", Value: &v})
	if err != nil || out != syncer.Applied {
		t.Fatalf("Dispatch a: expected applied, got %v (err=%v)", out, err)
	}
	if fieldA.Value() != "one updated" || editorA.HTML() != "<p>one updated</p>" {
		t.Fatalf("widget a not updated: field=%q editor=%q", fieldA.Value(), editorA.HTML())
	}
	if fieldB.Value() != "two" {
		t.Fatalf("widget b touched by a's update: %q", fieldB.Value())
	}

	if out, _ := reg.Dispatch(RemoteUpdate{WidgetID: "missing", Value: &v}); out != syncer.Ignored {
		t.Fatalf("unknown id: expected ignored, got %v", out)
	}
}

func TestRegistry_UpdateReadsField(t *testing.T) {
	log := &eventLog{}
	reg := NewRegistry(nil)
	defer reg.Close()
	w, editor, field := newTestWidget(t, "a", "before", clock.NewManual(time.Unix(0, 0)), log)
	if err := reg.Mount(context.Background(), w); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	// The host re-rendered the field with new server content.
	field.SetValue("after")
	out, err := reg.Update("a")
	if err != nil || out != syncer.Applied {
		t.Fatalf("Update: expected applied, got %v (err=%v)", out, err)
	}
	if editor.HTML() != "<p>after</p>" {
		t.Fatalf("expected editor to follow the field, got %q", editor.HTML())
	}
}

func TestRegistry_UnmountCancelsPending(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	log := &eventLog{}
	reg := NewRegistry(nil)
	w, _, field := newTestWidget(t, "a", "saved", clk, log)
	if err := reg.Mount(context.Background(), w); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if out, _ := w.EditRich("<p>draft</p>"); out != syncer.Scheduled {
		t.Fatalf("expected scheduled, got %v", out)
	}

	reg.Unmount("a")
	clk.Advance(time.Second)
	if events := log.snapshot(); len(events) != 0 {
		t.Fatalf("pending write ran after unmount: %v", events)
	}
	if field.Value() != "saved" {
		t.Fatalf("field changed after unmount: %q", field.Value())
	}
	if _, ok := w.State(); ok {
		t.Fatalf("expected detached widget")
	}
	if out, _ := w.EditRich("<p>x</p>"); out != syncer.Detached {
		t.Fatalf("EditRich after unmount: expected detached, got %v", out)
	}
	if reg.Get("a") != nil {
		t.Fatalf("widget still registered")
	}
}

func TestNewWidget_Validates(t *testing.T) {
	if _, err := NewWidget(WidgetOptions{Editor: richdoc.NewEditor(), Field: &memField{}}); err == nil {
		t.Fatalf("expected error for empty id")
	}
	cfg := config.Default()
	cfg.Dialect = "rtf"
	if _, err := NewWidget(WidgetOptions{ID: "x", Editor: richdoc.NewEditor(), Field: &memField{}, Config: cfg}); err == nil {
		t.Fatalf("expected error for bad dialect")
	}
}
