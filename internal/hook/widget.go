package hook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"richsync/internal/clock"
	"richsync/internal/config"
	"richsync/internal/markup"
	"richsync/internal/richdoc"
	"richsync/internal/sanitize"
	"richsync/internal/syncer"
)

// Surface is the rich editor a widget drives.
type Surface interface {
	syncer.Editor
	Edit(html string) error
	OnChange(fn func(richdoc.Source)) (remove func())
}

type WidgetOptions struct {
	ID     string
	Editor Surface
	Field  syncer.Field
	Config config.Config
	// Scheduler drives debounce timers (clock.Real when nil).
	Scheduler clock.Scheduler
	Emit      syncer.Emitter
	Recorder  syncer.Recorder
	Logger    *slog.Logger
}

// Widget binds one editor and one field through a syncer.Controller. Every
// controller call runs on the widget's own Loop; the exported methods post
// work there and wait for the result.
type Widget struct {
	opts WidgetOptions

	mu       sync.Mutex
	loop     *Loop
	ctrl     *syncer.Controller
	unsub    func()
	lastRich syncer.Outcome
}

var _ Hook = (*Widget)(nil)

func NewWidget(opts WidgetOptions) (*Widget, error) {
	opts.ID = strings.TrimSpace(opts.ID)
	if opts.ID == "" {
		return nil, errors.New("hook: widget id is empty")
	}
	if opts.Editor == nil || opts.Field == nil {
		return nil, errors.New("hook: widget needs an editor and a field")
	}
	if opts.Config.Dialect == "" {
		opts.Config = config.Default()
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Widget{opts: opts}, nil
}

func (w *Widget) ID() string { return w.opts.ID }

// OnAttach builds the controller, starts the loop and renders the field into
// the editor. A failed initial render is logged by the controller and leaves
// the widget attached.
func (w *Widget) OnAttach(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.loop != nil {
		return fmt.Errorf("hook: widget %s already attached", w.opts.ID)
	}

	cfg := w.opts.Config
	codec, err := markup.FromConfig(cfg)
	if err != nil {
		return err
	}
	loop := NewLoop(w.opts.Scheduler)
	ctrl, err := syncer.New(syncer.Options{
		WidgetID:   w.opts.ID,
		Editor:     w.opts.Editor,
		Field:      w.opts.Field,
		Codec:      codec,
		Sanitizer:  sanitize.New(sanitize.Options{Capabilities: cfg.Capabilities, MaxBytes: cfg.MaxDocumentBytes}),
		Scheduler:  loop,
		Debounce:   cfg.Debounce(),
		Emit:       w.opts.Emit,
		Recorder:   w.opts.Recorder,
		Logger:     w.opts.Logger,
		FocusGuard: cfg.FocusGuard,
	})
	if err != nil {
		return err
	}

	loop.Start(ctx)
	// Editor notifications arrive on the loop: the editor is only ever
	// mutated from functions running there.
	unsub := w.opts.Editor.OnChange(func(richdoc.Source) {
		w.lastRich, _ = ctrl.LocalRichChange()
	})
	loop.Call(func() { _, _ = ctrl.Mount() })

	w.loop = loop
	w.ctrl = ctrl
	w.unsub = unsub
	return nil
}

// OnDetach cancels pending work, stops listening to the editor and stops the
// loop. It is safe to call more than once.
func (w *Widget) OnDetach() {
	w.mu.Lock()
	loop, ctrl, unsub := w.loop, w.ctrl, w.unsub
	w.loop, w.ctrl, w.unsub = nil, nil, nil
	w.mu.Unlock()
	if loop == nil {
		return
	}

	if !loop.Call(func() { ctrl.Detach() }) {
		// The loop already stopped (context canceled); nothing else runs on
		// it, so detaching from here is safe.
		ctrl.Detach()
	}
	unsub()
	loop.Stop()
}

func (w *Widget) running() (*Loop, *syncer.Controller) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loop, w.ctrl
}

// EditRich applies html to the editor as a user edit.
func (w *Widget) EditRich(html string) (syncer.Outcome, error) {
	return w.Apply(func() error { return w.opts.Editor.Edit(html) })
}

// Apply runs edit on the widget loop, where it may mutate the editor the
// way a user would (a keystroke, an undo), and reports how the controller
// took the resulting change. Unchanged means the editor did not report one.
func (w *Widget) Apply(edit func() error) (syncer.Outcome, error) {
	loop, _ := w.running()
	if loop == nil {
		return syncer.Detached, nil
	}
	out := syncer.Unchanged
	var err error
	ok := loop.Call(func() {
		w.lastRich = syncer.Unchanged
		if err = edit(); err != nil {
			return
		}
		out = w.lastRich
	})
	if !ok {
		return syncer.Detached, nil
	}
	if err != nil {
		return syncer.Failed, err
	}
	return out, nil
}

// EditPlain stores value in the field as a direct user edit.
func (w *Widget) EditPlain(value string) (syncer.Outcome, error) {
	return w.call(func(ctrl *syncer.Controller) (syncer.Outcome, error) {
		w.opts.Field.SetValue(value)
		return ctrl.LocalPlainChange(value)
	})
}

// Remote delivers a snapshot from the authoritative source.
func (w *Widget) Remote(value *string) (syncer.Outcome, error) {
	return w.call(func(ctrl *syncer.Controller) (syncer.Outcome, error) {
		return ctrl.RemoteUpdate(value)
	})
}

// Flush propagates a pending editor change now.
func (w *Widget) Flush() (syncer.Outcome, error) {
	return w.call(func(ctrl *syncer.Controller) (syncer.Outcome, error) {
		return ctrl.Flush()
	})
}

// SetFocus records whether the user is in the editor, for editors that
// track it.
func (w *Widget) SetFocus(focused bool) {
	f, ok := w.opts.Editor.(interface{ SetFocus(bool) })
	if !ok {
		return
	}
	loop, _ := w.running()
	if loop == nil || !loop.Call(func() { f.SetFocus(focused) }) {
		f.SetFocus(focused)
	}
}

// State returns the controller state; ok is false when detached.
func (w *Widget) State() (st syncer.SyncState, ok bool) {
	loop, ctrl := w.running()
	if loop == nil {
		return syncer.SyncState{}, false
	}
	ok = loop.Call(func() { st = ctrl.State() })
	return st, ok
}

// Snapshot reads the editor and field together, consistently with respect
// to controller transitions.
func (w *Widget) Snapshot() (editorHTML, fieldValue string) {
	read := func() {
		editorHTML = w.opts.Editor.HTML()
		fieldValue = w.opts.Field.Value()
	}
	loop, _ := w.running()
	if loop == nil || !loop.Call(read) {
		read()
	}
	return editorHTML, fieldValue
}

func (w *Widget) call(fn func(*syncer.Controller) (syncer.Outcome, error)) (syncer.Outcome, error) {
	loop, ctrl := w.running()
	if loop == nil {
		return syncer.Detached, nil
	}
	out := syncer.Detached
	var err error
	loop.Call(func() { out, err = fn(ctrl) })
	return out, err
}
