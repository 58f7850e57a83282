package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"richsync/internal/clock"
	"richsync/internal/config"
	"richsync/internal/hook"
	"richsync/internal/markup"
	"richsync/internal/richdoc"
	"richsync/internal/syncer"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
)

type Options struct {
	// Path is the file holding the DocumentText. Empty means a scratch
	// buffer that cannot be saved.
	Path   string
	Config config.Config

	// Watch delivers changes other programs make to Path as remote updates.
	Watch bool
	// AutoSave writes Path every time the editor propagates a change.
	AutoSave bool

	Scheduler clock.Scheduler
	Recorder  syncer.Recorder
	Logger    *slog.Logger
}

type pane int

const (
	paneRich pane = iota
	panePlain
)

type changeMsg struct{ ev syncer.ChangeEvent }

type savedMsg struct {
	text string
	err  error
}

// memField is the DocumentText buffer the plain pane edits.
type memField struct {
	mu sync.Mutex
	v  string
}

func (f *memField) Value() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v
}

func (f *memField) SetValue(v string) {
	f.mu.Lock()
	f.v = v
	f.mu.Unlock()
}

// bridge hands controller events to the running program. Sends happen off
// the widget loop: Program.Send blocks until Update runs, and Update may be
// waiting on the loop. One drain goroutine at a time keeps them in order.
type bridge struct {
	mu       sync.Mutex
	send     func(tea.Msg)
	queue    []tea.Msg
	draining bool
}

func (b *bridge) setSend(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	if send == nil {
		b.queue = nil
	}
	b.mu.Unlock()
}

func (b *bridge) post(msg tea.Msg) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.send == nil {
		return
	}
	b.queue = append(b.queue, msg)
	if !b.draining {
		b.draining = true
		go b.drain()
	}
}

func (b *bridge) drain() {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 || b.send == nil {
			b.queue = nil
			b.draining = false
			b.mu.Unlock()
			return
		}
		msg := b.queue[0]
		b.queue[0] = nil
		b.queue = b.queue[1:]
		send := b.send
		b.mu.Unlock()
		send(msg)
	}
}

type Model struct {
	opts    Options
	style   string
	display *markup.Markdown

	editor *richdoc.Editor
	field  *memField
	widget *hook.Widget
	events *bridge
	watch  *fileWatcher

	plain textarea.Model
	rich  viewport.Model
	focus pane

	width  int
	height int

	editorHTML  string
	lastOutcome string
	lastErr     error
	dirty       bool
	lastWritten string
}

// New builds a model around a fresh widget. The widget is not running until
// Attach is called.
func New(opts Options) (Model, error) {
	if opts.Config.Dialect == "" {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	initial := ""
	if p := strings.TrimSpace(opts.Path); p != "" {
		b, err := os.ReadFile(p)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Model{}, err
		}
		initial = string(b)
	}

	m := Model{
		opts:        opts,
		style:       themeStyle(opts.Config.Theme),
		display:     markup.NewMarkdown(markup.Options{Emoji: opts.Config.Emoji}),
		editor:      richdoc.NewEditor(),
		field:       &memField{v: initial},
		events:      &bridge{},
		lastWritten: initial,
	}
	id := "tui"
	if opts.Path != "" {
		id = opts.Path
	}
	w, err := hook.NewWidget(hook.WidgetOptions{
		ID:        id,
		Editor:    m.editor,
		Field:     m.field,
		Config:    opts.Config,
		Scheduler: opts.Scheduler,
		Emit:      func(ev syncer.ChangeEvent) { m.events.post(changeMsg{ev: ev}) },
		Recorder:  opts.Recorder,
		Logger:    opts.Logger,
	})
	if err != nil {
		return Model{}, err
	}
	m.widget = w

	m.plain = textarea.New()
	m.plain.Placeholder = "Write…"
	m.plain.CharLimit = 0
	m.plain.ShowLineNumbers = false
	m.plain.SetWidth(72)
	m.plain.SetHeight(10)
	m.plain.SetValue(initial)
	m.rich = viewport.New(72, 10)
	return m, nil
}

// Attach starts the widget and, when asked to, the file watcher.
func (m *Model) Attach(ctx context.Context) error {
	if err := m.widget.OnAttach(ctx); err != nil {
		return err
	}
	if m.opts.Watch && m.opts.Path != "" {
		fw, err := watchFile(m.opts.Path)
		if err != nil {
			m.widget.OnDetach()
			return err
		}
		m.watch = fw
	}
	m.setFocus(paneRich)
	m.refresh()
	return nil
}

// Detach stops the watcher and the widget. A pending editor change is
// dropped.
func (m *Model) Detach() {
	if m.watch != nil {
		_ = m.watch.Close()
		m.watch = nil
	}
	m.widget.OnDetach()
}

func (m Model) Init() tea.Cmd {
	if m.watch != nil {
		return m.watch.next()
	}
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case changeMsg:
		m.dirty = true
		m.refresh()
		if m.opts.AutoSave {
			return m, m.save(msg.ev.Value)
		}
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, nil
		}
		if m.field.Value() == msg.text {
			m.dirty = false
		}
		m.lastOutcome = "saved"
		return m, nil

	case fileChangedMsg:
		var cmd tea.Cmd
		if m.watch != nil {
			cmd = m.watch.next()
		}
		if msg.text == m.lastWritten {
			// Our own save coming back.
			return m, cmd
		}
		text := msg.text
		m.record(m.widget.Remote(&text))
		m.refresh()
		return m, cmd

	case fileWatchErrMsg:
		m.lastErr = msg.err
		if m.watch != nil {
			return m, m.watch.next()
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+q":
			return m, tea.Quit
		case "tab", "shift+tab":
			if m.focus == paneRich {
				m.setFocus(panePlain)
			} else {
				m.setFocus(paneRich)
			}
			return m, nil
		case "ctrl+s":
			// Submit: propagate a pending edit first, then write the field.
			m.record(m.widget.Flush())
			m.refresh()
			return m, m.save(m.field.Value())
		}
		if m.focus == paneRich {
			m.updateRich(msg)
			return m, nil
		}
		return m.updatePlain(msg)
	}
	return m, nil
}

func (m *Model) updateRich(msg tea.KeyMsg) {
	var edit func() error
	switch msg.Type {
	case tea.KeyRunes:
		s := string(msg.Runes)
		edit = func() error { return m.editor.Type(s) }
	case tea.KeySpace:
		edit = func() error { return m.editor.Type(" ") }
	case tea.KeyEnter:
		edit = func() error { return m.editor.Type("\n") }
	case tea.KeyBackspace:
		edit = m.editor.Backspace
	case tea.KeyCtrlZ:
		edit = func() error {
			_, err := m.editor.Undo()
			return err
		}
	default:
		return
	}
	m.record(m.widget.Apply(edit))
	m.refresh()
}

func (m Model) updatePlain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	before := m.plain.Value()
	var cmd tea.Cmd
	m.plain, cmd = m.plain.Update(msg)
	if after := m.plain.Value(); after != before {
		m.record(m.widget.EditPlain(after))
		m.dirty = true
		m.refresh()
	}
	return m, cmd
}

func (m *Model) setFocus(p pane) {
	m.focus = p
	if p == panePlain {
		m.plain.Focus()
	} else {
		m.plain.Blur()
	}
	m.widget.SetFocus(p == paneRich)
}

func (m *Model) record(out syncer.Outcome, err error) {
	m.lastOutcome = out.String()
	if err != nil {
		m.lastErr = err
		return
	}
	if out != syncer.Failed {
		m.lastErr = nil
	}
}

// refresh pulls the editor and field after a transition. The plain pane
// follows the field unless they already agree.
func (m *Model) refresh() {
	html, text := m.widget.Snapshot()
	m.editorHTML = html
	if m.plain.Value() != text {
		m.plain.SetValue(text)
	}
}

func (m *Model) resize() {
	w := m.paneWidth() - 4
	if w < 10 {
		w = 10
	}
	m.plain.SetWidth(w)
	h := m.height - 8
	if m.stacked() {
		h = (m.height - 10) / 2
	}
	if h < 3 {
		h = 3
	}
	m.plain.SetHeight(h)
	m.rich.Width = w
	m.rich.Height = h
}

func (m Model) stacked() bool { return m.width > 0 && m.width < 100 }

func (m Model) paneWidth() int {
	if m.width <= 0 {
		return 80
	}
	if m.stacked() {
		return m.width
	}
	return m.width / 2
}

func (m Model) View() string {
	title := "scratch"
	if m.opts.Path != "" {
		title = m.opts.Path
	}
	if m.dirty {
		title += " *"
	}
	header := styleTitle.Render("richsync") + "  " + styleMuted.Render(title+"  "+m.opts.Config.Dialect)

	rich := m.richView()
	plain := m.plain.View()
	richStyle, plainStyle := stylePane, stylePaneActive
	if m.focus == paneRich {
		richStyle, plainStyle = stylePaneActive, stylePane
	}
	pw := m.paneWidth() - 2
	richBox := richStyle.Width(pw).Render(rich)
	plainBox := plainStyle.Width(pw).Render(plain)

	var body string
	if m.stacked() {
		body = lipgloss.JoinVertical(lipgloss.Left, richBox, plainBox)
	} else {
		body = lipgloss.JoinHorizontal(lipgloss.Top, richBox, plainBox)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.statusLine(), styleMuted.Render(helpLine))
}

const helpLine = "tab switch pane · ctrl+s save · ctrl+z undo · ctrl+q quit"

func (m Model) richView() string {
	md, err := m.display.ToText(m.editorHTML)
	if err != nil {
		return styleWarn.Render(err.Error())
	}
	out := renderMarkdown(md, m.style, m.paneWidth()-4)
	if m.focus == paneRich {
		out += "▍"
	}
	// The cursor is always at the end of the document, so keep it in view.
	vp := m.rich
	vp.SetContent(out)
	vp.GotoBottom()
	return vp.View()
}

func (m Model) statusLine() string {
	parts := []string{}
	if st, ok := m.widget.State(); ok {
		parts = append(parts, st.State.String(), "origin="+st.Origin.String())
		if st.Pending {
			parts = append(parts, "pending")
		}
		if st.Locked {
			parts = append(parts, "local edits win")
		}
	} else {
		parts = append(parts, "detached")
	}
	if m.lastOutcome != "" {
		parts = append(parts, "last="+m.lastOutcome)
	}
	line := styleMuted.Render(strings.Join(parts, " · "))
	if m.lastErr != nil {
		line += "  " + styleWarn.Render(m.lastErr.Error())
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	return xansi.Truncate(line, width, "…")
}

// save writes text to the backing file. The watcher will see the write, so
// text is remembered as ours up front.
func (m *Model) save(text string) tea.Cmd {
	path := m.opts.Path
	if path == "" {
		return nil
	}
	m.lastWritten = text
	return func() tea.Msg {
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			return savedMsg{err: fmt.Errorf("save %s: %w", path, err)}
		}
		return savedMsg{text: text}
	}
}
