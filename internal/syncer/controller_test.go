package syncer

import (
	"errors"
	"strings"
	"testing"
	"time"

	"richsync/internal/change"
	"richsync/internal/clock"
	"richsync/internal/markup"
	"richsync/internal/richdoc"
	"richsync/internal/sanitize"

	"github.com/google/go-cmp/cmp"
)

type testField struct {
	value string
	onSet func(string)
}

func (f *testField) Value() string { return f.value }

func (f *testField) SetValue(v string) {
	f.value = v
	if f.onSet != nil {
		f.onSet(v)
	}
}

// harness wires a controller the way a binding does: editor changes and
// field writes are fed straight back into the controller on the same thread.
type harness struct {
	t        *testing.T
	clk      *clock.Manual
	editor   *richdoc.Editor
	field    *testField
	ctrl     *Controller
	events   []ChangeEvent
	rich     []Outcome
	plain    []Outcome
	recorded []Transition
}

func newHarness(t *testing.T, initial string, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		clk:    clock.NewManual(time.Unix(0, 0)),
		editor: richdoc.NewEditor(),
		field:  &testField{value: initial},
	}
	opts := Options{
		WidgetID:  "post-body",
		Editor:    h.editor,
		Field:     h.field,
		Scheduler: h.clk,
		Debounce:  200 * time.Millisecond,
		Emit:      func(ev ChangeEvent) { h.events = append(h.events, ev) },
		Recorder: RecorderFunc(func(tr Transition) error {
			h.recorded = append(h.recorded, tr)
			return nil
		}),
	}
	if mutate != nil {
		mutate(&opts)
	}
	ctrl, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.ctrl = ctrl
	h.editor.OnChange(func(richdoc.Source) {
		out, _ := h.ctrl.LocalRichChange()
		h.rich = append(h.rich, out)
	})
	h.field.onSet = func(v string) {
		out, _ := h.ctrl.LocalPlainChange(v)
		h.plain = append(h.plain, out)
	}
	if out, err := ctrl.Mount(); err != nil || out != Applied {
		t.Fatalf("Mount: expected applied, got %v (err=%v)", out, err)
	}
	return h
}

func (h *harness) edit(html string) {
	h.t.Helper()
	if err := h.editor.Edit(html); err != nil {
		h.t.Fatalf("Edit(%q): %v", html, err)
	}
}

func (h *harness) remote(v string) (Outcome, error) {
	return h.ctrl.RemoteUpdate(&v)
}

func (h *harness) lastRich() Outcome {
	if len(h.rich) == 0 {
		return 0
	}
	return h.rich[len(h.rich)-1]
}

func TestMount_SeedsEditorAndConsumesEcho(t *testing.T) {
	h := newHarness(t, "# Title\n\nhello **world**", nil)
	if got, want := h.editor.HTML(), "<h1>Title</h1><p>hello <strong>world</strong></p>"; got != want {
		t.Fatalf("expected editor %q, got %q", want, got)
	}
	if len(h.rich) != 1 || h.rich[0] != Echo {
		t.Fatalf("expected the mount render to be consumed as an echo, got %v", h.rich)
	}
	want := SyncState{LastKnownText: "# Title\n\nhello **world**", State: Idle}
	if diff := cmp.Diff(want, h.ctrl.State()); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
	if len(h.events) != 0 {
		t.Fatalf("mount emitted change events: %v", h.events)
	}
}

func TestScenario_RemoteBeforeEditThenLocked(t *testing.T) {
	h := newHarness(t, "hello", nil)

	out, err := h.remote("hello world")
	if err != nil || out != Applied {
		t.Fatalf("remote: expected applied, got %v (err=%v)", out, err)
	}
	if got := h.editor.HTML(); got != "<p>hello world</p>" {
		t.Fatalf("expected editor to show the remote text, got %q", got)
	}
	if h.field.value != "hello world" {
		t.Fatalf("expected field %q, got %q", "hello world", h.field.value)
	}
	st := h.ctrl.State()
	if st.Locked {
		t.Fatalf("remote update must not lock the widget")
	}
	if st.Origin != OriginRemote || st.LastKnownText != "hello world" {
		t.Fatalf("unexpected state after remote: %+v", st)
	}
	if h.lastRich() != Echo {
		t.Fatalf("expected the editor write to be an echo, got %v", h.rich)
	}

	h.edit("<p>hello world and more</p>")
	if h.lastRich() != Scheduled {
		t.Fatalf("expected local edit to schedule, got %v", h.rich)
	}
	if !h.ctrl.State().Locked {
		t.Fatalf("expected local edit to lock the widget")
	}

	out, err = h.remote("ignored update")
	if err != nil || out != Ignored {
		t.Fatalf("remote after edit: expected ignored, got %v (err=%v)", out, err)
	}
	h.clk.Advance(200 * time.Millisecond)
	if h.field.value != "hello world and more" {
		t.Fatalf("expected field to keep the typed text, got %q", h.field.value)
	}
	if got := h.editor.HTML(); got != "<p>hello world and more</p>" {
		t.Fatalf("remote update reached the editor: %q", got)
	}
}

func TestRapidTyping_CoalescesIntoOneEvent(t *testing.T) {
	h := newHarness(t, "", nil)
	for i, v := range []string{"h", "he", "hel", "hello"} {
		if i > 0 {
			h.clk.Advance(50 * time.Millisecond)
		}
		h.edit("<p>" + v + "</p>")
		if h.lastRich() != Scheduled {
			t.Fatalf("edit %q: expected scheduled, got %v", v, h.lastRich())
		}
	}
	if st := h.ctrl.State(); st.State != LocalEditInFlight || !st.Pending {
		t.Fatalf("expected a pending local edit, got %+v", st)
	}

	h.clk.Advance(199 * time.Millisecond)
	if len(h.events) != 0 {
		t.Fatalf("propagated before the quiet period: %v", h.events)
	}
	h.clk.Advance(time.Millisecond)

	want := []ChangeEvent{{WidgetID: "post-body", Value: "hello", Bubbles: true, Cancelable: true}}
	if diff := cmp.Diff(want, h.events); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	st := h.ctrl.State()
	if st.State != Idle || st.Pending || st.LastKnownText != "hello" {
		t.Fatalf("unexpected state after flush: %+v", st)
	}
}

func TestNoSelfEcho_OneKeystrokeOnePropagation(t *testing.T) {
	h := newHarness(t, "hello", nil)
	h.edit("<p>hello there</p>")
	h.clk.Advance(time.Second)

	if len(h.events) != 1 {
		t.Fatalf("expected exactly one propagation, got %d: %v", len(h.events), h.events)
	}
	// The field write fed back as a plain change is recognized as nothing new.
	if len(h.plain) != 1 || h.plain[0] != Unchanged {
		t.Fatalf("expected field echo to be unchanged, got %v", h.plain)
	}
	if h.clk.Pending() != 0 || h.ctrl.State().Pending {
		t.Fatalf("expected nothing left scheduled")
	}

	// A late editor echo carrying the same content is also harmless.
	out, err := h.ctrl.LocalRichChange()
	if err != nil || out != Unchanged {
		t.Fatalf("expected late echo to be unchanged, got %v (err=%v)", out, err)
	}
	h.clk.Advance(time.Second)
	if len(h.events) != 1 {
		t.Fatalf("late echo propagated again: %v", h.events)
	}
}

func TestLockMonotonicity(t *testing.T) {
	h := newHarness(t, "start", nil)
	h.edit("<p>mine</p>")
	h.clk.Advance(time.Second)
	before := h.ctrl.State()
	if !before.Locked {
		t.Fatalf("expected lock after a local edit")
	}

	for _, v := range []string{"a", "b", "", "mine", "start"} {
		out, err := h.remote(v)
		if err != nil || out != Ignored {
			t.Fatalf("remote %q: expected ignored, got %v (err=%v)", v, out, err)
		}
	}
	if out, _ := h.ctrl.RemoteUpdate(nil); out != Ignored {
		t.Fatalf("nil remote: expected ignored, got %v", out)
	}
	if diff := cmp.Diff(before, h.ctrl.State()); diff != "" {
		t.Fatalf("remote updates changed a locked widget (-before +after):\n%s", diff)
	}

	var stale int
	for _, tr := range h.recorded {
		if tr.Op == OpRemote && tr.Outcome == Ignored {
			if tr.Reason != ReasonStale || !errors.Is(tr.Err, ErrStaleRemoteUpdate) {
				t.Fatalf("expected stale reason on ignored update, got %+v", tr)
			}
			stale++
		}
	}
	if stale != 6 {
		t.Fatalf("expected 6 stale records, got %d", stale)
	}
}

func TestRemoteUpdate_RedundantAndNil(t *testing.T) {
	h := newHarness(t, "hello", nil)

	if out, _ := h.remote("hello\n\n"); out != Unchanged {
		t.Fatalf("redundant remote: expected unchanged, got %v", out)
	}
	out, err := h.ctrl.RemoteUpdate(nil)
	if err != nil || out != Applied {
		t.Fatalf("nil remote: expected applied, got %v (err=%v)", out, err)
	}
	if h.field.value != "" || h.editor.HTML() != "<p><br></p>" {
		t.Fatalf("expected empty document, field=%q editor=%q", h.field.value, h.editor.HTML())
	}
	if h.ctrl.State().Locked {
		t.Fatalf("remote updates must not lock")
	}
}

func TestLocalRichChange_RevertCancelsPending(t *testing.T) {
	h := newHarness(t, "hello", nil)
	h.edit("<p>hello x</p>")
	h.edit("<p>hello</p>")
	if h.lastRich() != Unchanged {
		t.Fatalf("expected revert to be unchanged, got %v", h.lastRich())
	}
	st := h.ctrl.State()
	if st.Pending || st.State != Idle {
		t.Fatalf("expected revert to cancel the pending write, got %+v", st)
	}
	if !st.Locked {
		t.Fatalf("lock must survive a revert")
	}
	h.clk.Advance(time.Second)
	if len(h.events) != 0 {
		t.Fatalf("canceled write propagated: %v", h.events)
	}
}

func TestLocalPlainChange_RerendersAndSupersedesPending(t *testing.T) {
	h := newHarness(t, "hello", nil)
	h.edit("<p>from the editor</p>")

	out, err := h.ctrl.LocalPlainChange("**from** the field")
	if err != nil || out != Applied {
		t.Fatalf("plain change: expected applied, got %v (err=%v)", out, err)
	}
	if got, want := h.editor.HTML(), "<p><strong>from</strong> the field</p>"; got != want {
		t.Fatalf("expected editor %q, got %q", want, got)
	}
	if h.lastRich() != Echo {
		t.Fatalf("expected re-render to be an echo, got %v", h.rich)
	}
	want := SyncState{LastKnownText: "**from** the field", Origin: OriginLocalPlain, Locked: true, State: Idle}
	if diff := cmp.Diff(want, h.ctrl.State()); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
	h.clk.Advance(time.Second)
	if len(h.events) != 0 {
		t.Fatalf("superseded rich edit propagated: %v", h.events)
	}

	if out, _ := h.ctrl.LocalPlainChange("**from** the field\n\n"); out != Unchanged {
		t.Fatalf("equivalent plain change: expected unchanged, got %v", out)
	}
}

func TestFailure_LeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, "short", func(o *Options) {
		o.Sanitizer = sanitize.New(sanitize.Options{MaxBytes: 64})
	})
	before := h.ctrl.State()
	editorBefore := h.editor.HTML()

	out, err := h.remote(strings.Repeat("a", 100))
	if out != Failed {
		t.Fatalf("expected failed, got %v", out)
	}
	if !errors.Is(err, ErrSanitization) || !errors.Is(err, sanitize.ErrTooLarge) {
		t.Fatalf("expected sanitization failure wrapping ErrTooLarge, got %v", err)
	}
	var terr *TransitionError
	if !errors.As(err, &terr) || terr.Op != OpRemote || terr.WidgetID != "post-body" {
		t.Fatalf("expected *TransitionError for remote op, got %#v", err)
	}
	if diff := cmp.Diff(before, h.ctrl.State()); diff != "" {
		t.Fatalf("failed transition changed state (-before +after):\n%s", diff)
	}
	if h.editor.HTML() != editorBefore || h.field.value != "short" {
		t.Fatalf("failed transition touched the widget")
	}

	if out, err := h.remote("fine"); err != nil || out != Applied {
		t.Fatalf("widget unusable after failure: %v (err=%v)", out, err)
	}
}

type panickyCodec struct{ markup.Codec }

func (p panickyCodec) ToDoc(text string) (string, error) {
	if text == "boom" {
		panic("converter exploded")
	}
	return p.Codec.ToDoc(text)
}

func TestFailure_PanicIsRecovered(t *testing.T) {
	h := newHarness(t, "hello", func(o *Options) {
		o.Codec = panickyCodec{markup.NewMarkdown(markup.Options{})}
	})
	before := h.ctrl.State()

	out, err := h.remote("boom")
	if out != Failed || !errors.Is(err, ErrSerialization) {
		t.Fatalf("expected serialization failure, got %v (err=%v)", out, err)
	}
	if diff := cmp.Diff(before, h.ctrl.State()); diff != "" {
		t.Fatalf("panic changed state (-before +after):\n%s", diff)
	}
	if out, err := h.remote("after"); err != nil || out != Applied {
		t.Fatalf("widget unusable after panic: %v (err=%v)", out, err)
	}
}

func TestDetach_CancelsPendingAndStops(t *testing.T) {
	h := newHarness(t, "hello", nil)
	h.edit("<p>unsaved</p>")
	if !h.ctrl.State().Pending {
		t.Fatalf("expected a pending write")
	}

	if out := h.ctrl.Detach(); out != Detached {
		t.Fatalf("expected detached, got %v", out)
	}
	h.clk.Advance(time.Second)
	if len(h.events) != 0 || h.field.value != "hello" {
		t.Fatalf("write ran after detach: events=%v field=%q", h.events, h.field.value)
	}
	if h.ctrl.State().Pending {
		t.Fatalf("pending write survived detach")
	}
	if out, _ := h.remote("later"); out != Detached {
		t.Fatalf("remote after detach: expected detached, got %v", out)
	}
	if out, _ := h.ctrl.LocalPlainChange("later"); out != Detached {
		t.Fatalf("plain change after detach: expected detached, got %v", out)
	}
	if out, _ := h.ctrl.Flush(); out != Detached {
		t.Fatalf("flush after detach: expected detached, got %v", out)
	}

	last := h.recorded[len(h.recorded)-1]
	if last.Op != OpFlush {
		t.Fatalf("expected flush to be recorded last, got %+v", last)
	}
	var detach *Transition
	for i := range h.recorded {
		if h.recorded[i].Op == OpDetach {
			detach = &h.recorded[i]
		}
	}
	if detach == nil || detach.Reason != "pending_dropped" {
		t.Fatalf("expected detach to record the dropped write, got %+v", detach)
	}
}

func TestFocusGuard_SkipsRemoteWhileFocused(t *testing.T) {
	h := newHarness(t, "hello", func(o *Options) { o.FocusGuard = true })
	h.editor.SetFocus(true)

	out, err := h.remote("from server")
	if err != nil || out != Ignored {
		t.Fatalf("expected ignored while focused, got %v (err=%v)", out, err)
	}
	last := h.recorded[len(h.recorded)-1]
	if last.Reason != ReasonFocus {
		t.Fatalf("expected focus reason, got %+v", last)
	}
	if h.ctrl.State().Locked {
		t.Fatalf("focus guard must not lock")
	}

	h.editor.SetFocus(false)
	if out, _ := h.remote("from server"); out != Applied {
		t.Fatalf("expected applied after blur, got %v", out)
	}
}

func TestFlush_PropagatesImmediately(t *testing.T) {
	h := newHarness(t, "", nil)
	h.edit("<p>submit me</p>")
	out, err := h.ctrl.Flush()
	if err != nil || out != Propagated {
		t.Fatalf("expected propagated, got %v (err=%v)", out, err)
	}
	if h.field.value != "submit me" || len(h.events) != 1 {
		t.Fatalf("expected field written once, field=%q events=%v", h.field.value, h.events)
	}
	if out, _ := h.ctrl.Flush(); out != Unchanged {
		t.Fatalf("second flush: expected unchanged, got %v", out)
	}
	h.clk.Advance(time.Second)
	if len(h.events) != 1 {
		t.Fatalf("timer propagated again after flush: %v", h.events)
	}
}

func TestHTMLDialect_SanitizesRemoteText(t *testing.T) {
	h := newHarness(t, "<p>hi</p>", func(o *Options) { o.Codec = markup.NewHTML() })
	if got := h.editor.HTML(); got != "<p>hi</p>" {
		t.Fatalf("expected editor %q, got %q", "<p>hi</p>", got)
	}

	out, err := h.remote(`<p>x</p><script>alert(1)</script>`)
	if err != nil || out != Applied {
		t.Fatalf("expected applied, got %v (err=%v)", out, err)
	}
	if h.field.value != "<p>x</p>" {
		t.Fatalf("expected sanitized field value, got %q", h.field.value)
	}
	if h.ctrl.State().LastKnownText != "<p>x</p>" {
		t.Fatalf("expected sanitized last known text, got %q", h.ctrl.State().LastKnownText)
	}

	h.edit("<p>x</p><p>typed</p>")
	h.clk.Advance(time.Second)
	if len(h.events) != 1 || h.events[0].Value != "<p>x</p><p>typed</p>" {
		t.Fatalf("unexpected events: %v", h.events)
	}
}

func TestHTMLDialect_SanitizesPlainText(t *testing.T) {
	h := newHarness(t, "<p>hi</p>", func(o *Options) { o.Codec = markup.NewHTML() })

	out, err := h.ctrl.LocalPlainChange(`<p>x</p><img src=x onerror=alert(1)><script>evil()</script>`)
	if err != nil || out != Applied {
		t.Fatalf("expected applied, got %v (err=%v)", out, err)
	}
	last := h.ctrl.State().LastKnownText
	for _, bad := range []string{"script", "onerror", "evil"} {
		if strings.Contains(last, bad) {
			t.Fatalf("last known text kept %q: %q", bad, last)
		}
	}
	serialized, err := markup.NewHTML().ToText(h.editor.HTML())
	if err != nil {
		t.Fatalf("ToText: %v", err)
	}
	if change.Normalize(serialized) != change.Normalize(last) {
		t.Fatalf("editor and last known text disagree: %q vs %q", serialized, last)
	}

	// The same dirty text again is no change once cleaned.
	if out, _ := h.ctrl.LocalPlainChange(`<p>x</p><script>evil()</script>`); out != Unchanged {
		t.Fatalf("expected unchanged, got %v", out)
	}
}

func TestHTMLDialect_SanitizesMountSeed(t *testing.T) {
	h := newHarness(t, `<p>seed</p><script>evil()</script>`, func(o *Options) { o.Codec = markup.NewHTML() })
	if got := h.ctrl.State().LastKnownText; got != "<p>seed</p>" {
		t.Fatalf("expected sanitized seed, got %q", got)
	}
	if got := h.editor.HTML(); got != "<p>seed</p>" {
		t.Fatalf("expected editor %q, got %q", "<p>seed</p>", got)
	}
	// A remote update carrying the same dirty seed changes nothing.
	if out, err := h.remote(`<p>seed</p><script>evil()</script>`); err != nil || out != Unchanged {
		t.Fatalf("expected unchanged, got %v (err=%v)", out, err)
	}
}

func TestHTMLDialect_PlainSanitizeFailure(t *testing.T) {
	h := newHarness(t, "<p>hi</p>", func(o *Options) {
		o.Codec = markup.NewHTML()
		o.Sanitizer = sanitize.New(sanitize.Options{MaxBytes: 64})
	})
	before := h.ctrl.State()

	out, err := h.ctrl.LocalPlainChange("<p>" + strings.Repeat("x", 100) + "</p>")
	if out != Failed {
		t.Fatalf("expected failed, got %v", out)
	}
	var terr *TransitionError
	if !errors.As(err, &terr) || terr.Kind != ErrSanitization || terr.Op != OpLocalPlain {
		t.Fatalf("expected sanitization error on local_plain, got %v", err)
	}
	if diff := cmp.Diff(before, h.ctrl.State()); diff != "" {
		t.Fatalf("state changed after failure (-want +got):\n%s", diff)
	}
	if got := h.editor.HTML(); got != "<p>hi</p>" {
		t.Fatalf("expected editor untouched, got %q", got)
	}
}

func TestNew_RequiresEditorAndField(t *testing.T) {
	if _, err := New(Options{Field: &testField{}}); err == nil {
		t.Fatalf("expected error without editor")
	}
	if _, err := New(Options{Editor: richdoc.NewEditor()}); err == nil {
		t.Fatalf("expected error without field")
	}
}

func TestTransitionError_Message(t *testing.T) {
	err := &TransitionError{WidgetID: "w", Op: OpLocalRich, Kind: ErrSerialization, Err: errors.New("bad")}
	if got, want := err.Error(), "widget w: local_rich: serialization failure: bad"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
