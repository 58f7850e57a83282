package syncer

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"richsync/internal/change"
	"richsync/internal/clock"
	"richsync/internal/config"
	"richsync/internal/debounce"
	"richsync/internal/markup"
	"richsync/internal/sanitize"
)

// Editor is the rich editing surface. SetHTML may report a change back to
// the controller synchronously (see LocalRichChange).
type Editor interface {
	HTML() string
	SetHTML(html string) error
}

// Focuser is implemented by editors that can tell whether the user is in them.
type Focuser interface {
	HasFocus() bool
}

// Field is the plain text field the form pipeline reads.
type Field interface {
	Value() string
	SetValue(v string)
}

// ChangeEvent mirrors the input event a browser fires when a user edits a
// text field.
type ChangeEvent struct {
	WidgetID   string `json:"widget_id"`
	Value      string `json:"value"`
	Bubbles    bool   `json:"bubbles"`
	Cancelable bool   `json:"cancelable"`
}

type Emitter func(ChangeEvent)

type Options struct {
	WidgetID  string
	Editor    Editor
	Field     Field
	Codec     markup.Codec
	Sanitizer *sanitize.Sanitizer
	Scheduler clock.Scheduler
	Debounce  time.Duration
	Emit      Emitter
	Recorder  Recorder
	Logger    *slog.Logger
	// FocusGuard drops remote updates while the editor has focus.
	FocusGuard bool
}

// Controller is the state machine for one widget. It is not safe for
// concurrent use: every call, debounce callbacks included, must run on one
// logical thread.
type Controller struct {
	id         string
	editor     Editor
	field      Field
	codec      markup.Codec
	san        *sanitize.Sanitizer
	sched      clock.Scheduler
	deb        *debounce.Debouncer
	emit       Emitter
	rec        Recorder
	log        *slog.Logger
	focusGuard bool

	lastKnown string
	origin    Origin
	locked    bool
	state     State
	// pendingText is what the pending debounce will write to the field.
	pendingText string
	detached    bool
}

func New(opts Options) (*Controller, error) {
	if opts.Editor == nil {
		return nil, errors.New("syncer: editor is required")
	}
	if opts.Field == nil {
		return nil, errors.New("syncer: field is required")
	}
	if opts.Codec == nil {
		codec, err := markup.ForDialect(config.DialectMarkdown, markup.Options{})
		if err != nil {
			return nil, err
		}
		opts.Codec = codec
	}
	if opts.Sanitizer == nil {
		opts.Sanitizer = sanitize.Default()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		id:         opts.WidgetID,
		editor:     opts.Editor,
		field:      opts.Field,
		codec:      opts.Codec,
		san:        opts.Sanitizer,
		sched:      opts.Scheduler,
		deb:        debounce.New(opts.Scheduler, opts.Debounce),
		emit:       opts.Emit,
		rec:        opts.Recorder,
		log:        opts.Logger.With("widget", opts.WidgetID, "dialect", opts.Codec.Name()),
		focusGuard: opts.FocusGuard,
	}, nil
}

func (c *Controller) WidgetID() string { return c.id }

// State returns a snapshot of the controller's bookkeeping.
func (c *Controller) State() SyncState {
	return SyncState{
		LastKnownText: c.lastKnown,
		Origin:        c.origin,
		Pending:       c.deb.Pending(),
		Locked:        c.locked,
		State:         c.state,
	}
}

// Mount seeds the controller from the field and renders the editor.
func (c *Controller) Mount() (out Outcome, err error) {
	defer c.guard(OpMount, &out, &err)
	if c.detached {
		return c.finish(OpMount, Detached, "", nil)
	}

	text, err := c.cleanText(OpMount, c.field.Value())
	if err != nil {
		return c.finish(OpMount, Failed, "", err)
	}
	html, err := c.render(OpMount, text)
	if err != nil {
		return c.finish(OpMount, Failed, "", err)
	}
	if err := c.applyToEditor(OpMount, html); err != nil {
		return c.finish(OpMount, Failed, "", err)
	}
	c.lastKnown = text
	c.state = Idle
	return c.finish(OpMount, Applied, "", nil)
}

// LocalRichChange handles a change reported by the editor.
func (c *Controller) LocalRichChange() (out Outcome, err error) {
	defer c.guard(OpLocalRich, &out, &err)
	if c.detached {
		return c.finish(OpLocalRich, Detached, "", nil)
	}
	// The editor reporting our own SetHTML while it is still running.
	if c.state == RemoteApplyInFlight {
		return c.finish(OpLocalRich, Echo, "", nil)
	}

	text, err := c.serialize(OpLocalRich, c.editor.HTML())
	if err != nil {
		return c.finish(OpLocalRich, Failed, "", err)
	}
	if !change.IsMeaningfullyDifferent(text, c.lastKnown) {
		// Edited back to what the field already holds, or a late echo.
		if c.deb.Cancel() {
			c.state = Idle
			c.pendingText = ""
		}
		return c.finish(OpLocalRich, Unchanged, ReasonSame, nil)
	}

	c.locked = true
	c.origin = OriginLocalRich
	c.state = LocalEditInFlight
	c.pendingText = text
	c.deb.Schedule(c.flush)
	return c.finish(OpLocalRich, Scheduled, "", nil)
}

// Flush runs a pending propagation immediately, as on form submit. It
// reports Unchanged when nothing was pending.
func (c *Controller) Flush() (Outcome, error) {
	if c.detached {
		return c.finish(OpFlush, Detached, "", nil)
	}
	if !c.deb.Flush() {
		return Unchanged, nil
	}
	return Propagated, nil
}

// flush is the debounce callback.
func (c *Controller) flush() {
	var out Outcome
	var err error
	defer c.guard(OpFlush, &out, &err)
	if c.detached {
		return
	}
	text := c.pendingText
	c.pendingText = ""
	c.field.SetValue(text)
	c.lastKnown = text
	c.state = Idle
	if c.emit != nil {
		c.emit(ChangeEvent{WidgetID: c.id, Value: text, Bubbles: true, Cancelable: true})
	}
	c.finish(OpFlush, Propagated, "", nil)
}

// LocalPlainChange handles an edit made directly to the field.
func (c *Controller) LocalPlainChange(value string) (out Outcome, err error) {
	defer c.guard(OpLocalPlain, &out, &err)
	if c.detached {
		return c.finish(OpLocalPlain, Detached, "", nil)
	}

	text, err := c.cleanText(OpLocalPlain, value)
	if err != nil {
		return c.finish(OpLocalPlain, Failed, "", err)
	}
	current, err := c.serialize(OpLocalPlain, c.editor.HTML())
	if err != nil {
		return c.finish(OpLocalPlain, Failed, "", err)
	}
	if !change.IsMeaningfullyDifferent(text, current) {
		return c.finish(OpLocalPlain, Unchanged, ReasonSame, nil)
	}
	html, err := c.render(OpLocalPlain, text)
	if err != nil {
		return c.finish(OpLocalPlain, Failed, "", err)
	}

	if err := c.applyToEditor(OpLocalPlain, html); err != nil {
		return c.finish(OpLocalPlain, Failed, "", err)
	}
	// The field edit supersedes whatever the editor was about to write.
	if c.deb.Cancel() {
		c.pendingText = ""
	}
	c.lastKnown = text
	c.origin = OriginLocalPlain
	c.locked = true
	c.state = Idle
	return c.finish(OpLocalPlain, Applied, "", nil)
}

// RemoteUpdate handles a snapshot pushed by the authoritative source. A nil
// value is an empty document.
func (c *Controller) RemoteUpdate(value *string) (out Outcome, err error) {
	defer c.guard(OpRemote, &out, &err)
	if c.detached {
		return c.finish(OpRemote, Detached, "", nil)
	}
	if c.locked {
		return c.finish(OpRemote, Ignored, ReasonStale, ErrStaleRemoteUpdate)
	}
	if c.focusGuard {
		if f, ok := c.editor.(Focuser); ok && f.HasFocus() {
			return c.finish(OpRemote, Ignored, ReasonFocus, nil)
		}
	}

	text := ""
	if value != nil {
		text = *value
	}
	text, err = c.cleanText(OpRemote, text)
	if err != nil {
		return c.finish(OpRemote, Failed, "", err)
	}
	if !change.IsMeaningfullyDifferent(text, c.lastKnown) {
		return c.finish(OpRemote, Unchanged, ReasonSame, nil)
	}
	html, err := c.render(OpRemote, text)
	if err != nil {
		return c.finish(OpRemote, Failed, "", err)
	}
	if err := c.applyToEditor(OpRemote, html); err != nil {
		return c.finish(OpRemote, Failed, "", err)
	}
	c.field.SetValue(text)
	c.lastKnown = text
	c.origin = OriginRemote
	c.state = Idle
	return c.finish(OpRemote, Applied, "", nil)
}

// Detach cancels any pending propagation. Every later call returns Detached.
func (c *Controller) Detach() Outcome {
	if c.detached {
		return Detached
	}
	dropped := c.deb.Cancel()
	c.detached = true
	c.pendingText = ""
	c.state = Idle
	reason := ""
	if dropped {
		reason = "pending_dropped"
	}
	out, _ := c.finish(OpDetach, Detached, reason, nil)
	return out
}

// cleanText sanitizes incoming text in the HTML dialect, where the text
// itself reaches the page. Other dialects pass through unchanged.
func (c *Controller) cleanText(op, text string) (string, error) {
	if c.codec.Name() != config.DialectHTML {
		return text, nil
	}
	clean, err := c.san.Sanitize(text)
	if err != nil {
		return "", &TransitionError{WidgetID: c.id, Op: op, Kind: ErrSanitization, Err: err}
	}
	return clean, nil
}

// render converts text to sanitized editor HTML.
func (c *Controller) render(op, text string) (string, error) {
	html, err := c.codec.ToDoc(text)
	if err != nil {
		return "", &TransitionError{WidgetID: c.id, Op: op, Kind: ErrSerialization, Err: err}
	}
	clean, err := c.san.Sanitize(html)
	if err != nil {
		return "", &TransitionError{WidgetID: c.id, Op: op, Kind: ErrSanitization, Err: err}
	}
	return clean, nil
}

// serialize converts editor HTML to text, sanitizing first.
func (c *Controller) serialize(op, html string) (string, error) {
	clean, err := c.san.Sanitize(html)
	if err != nil {
		return "", &TransitionError{WidgetID: c.id, Op: op, Kind: ErrSanitization, Err: err}
	}
	text, err := c.codec.ToText(clean)
	if err != nil {
		return "", &TransitionError{WidgetID: c.id, Op: op, Kind: ErrSerialization, Err: err}
	}
	return text, nil
}

// applyToEditor writes html under the RemoteApplyInFlight guard, so a change
// the editor reports synchronously is taken as an echo.
func (c *Controller) applyToEditor(op, html string) error {
	prev := c.state
	c.state = RemoteApplyInFlight
	defer func() { c.state = prev }()
	if err := c.editor.SetHTML(html); err != nil {
		return &TransitionError{WidgetID: c.id, Op: op, Kind: ErrSerialization, Err: err}
	}
	return nil
}

func (c *Controller) finish(op string, out Outcome, reason string, err error) (Outcome, error) {
	attrs := []any{"op", op, "outcome", out.String()}
	if reason != "" {
		attrs = append(attrs, "reason", reason)
	}
	switch {
	case out == Failed:
		c.log.Warn("sync transition failed", append(attrs, "err", err)...)
	case out == Ignored || out == Echo || out == Unchanged:
		c.log.Debug("sync event skipped", attrs...)
	default:
		c.log.Info("sync transition", attrs...)
	}

	if c.rec != nil {
		t := Transition{WidgetID: c.id, Op: op, Outcome: out, Reason: reason, Err: err, At: c.sched.Now()}
		if rerr := c.rec.RecordTransition(t); rerr != nil {
			c.log.Warn("record transition", "op", op, "err", rerr)
		}
	}

	if out == Failed {
		return out, err
	}
	// Stale updates are reported through logs and telemetry only.
	return out, nil
}

// guard turns a panic inside a transition into a Failed outcome. Bookkeeping
// is only written after every fallible step, so an aborted transition leaves
// it as it was.
func (c *Controller) guard(op string, out *Outcome, err *error) {
	r := recover()
	if r == nil {
		return
	}
	terr := &TransitionError{WidgetID: c.id, Op: op, Kind: ErrSerialization, Err: fmt.Errorf("panic: %v", r)}
	*out, *err = c.finish(op, Failed, "", terr)
}
