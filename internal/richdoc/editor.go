package richdoc

import (
	"strings"
	"sync"
)

// Source says who caused an editor change.
type Source int

const (
	// SourceUser is a change typed into the editor.
	SourceUser Source = iota
	// SourceAPI is a change made programmatically through SetHTML.
	SourceAPI
)

func (s Source) String() string {
	switch s {
	case SourceUser:
		return "user"
	case SourceAPI:
		return "api"
	default:
		return "unknown"
	}
}

const maxHistory = 100

// Editor is an in-memory rich editor surface. It keeps its content as a
// document tree, normalizes whatever HTML it is given into its own compact
// form, and notifies listeners synchronously on every content change,
// including changes made through SetHTML.
type Editor struct {
	mu        sync.Mutex
	doc       *Node
	html      string
	focused   bool
	history   []string
	listeners map[int]func(Source)
	nextID    int
}

// NewEditor returns an editor holding an empty document.
func NewEditor() *Editor {
	doc := &Node{Type: TypeDoc, Content: []*Node{{Type: TypeParagraph}}}
	return &Editor{doc: doc, html: doc.HTML(), listeners: map[int]func(Source){}}
}

// OnChange registers fn for change notifications and returns a function that
// removes it.
func (e *Editor) OnChange(fn func(Source)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// HTML returns the editor content in its compact form.
func (e *Editor) HTML() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.html
}

// Doc returns the current document tree. Callers must not modify it.
func (e *Editor) Doc() *Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc
}

// SetHTML replaces the content programmatically. Listeners see SourceAPI.
func (e *Editor) SetHTML(src string) error {
	return e.replace(src, SourceAPI)
}

// Edit replaces the content as if the user had typed it.
func (e *Editor) Edit(src string) error {
	return e.replace(src, SourceUser)
}

// Type appends text to the last text block as a user edit.
func (e *Editor) Type(text string) error {
	e.mu.Lock()
	doc := cloneNode(e.doc)
	e.mu.Unlock()

	block := lastTextBlock(doc)
	if block == nil {
		block = &Node{Type: TypeParagraph}
		doc.Content = append(doc.Content, block)
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if i > 0 {
			block = &Node{Type: TypeParagraph}
			doc.Content = append(doc.Content, block)
		}
		if line != "" {
			appendText(block, line, nil)
		}
	}
	return e.replace(doc.HTML(), SourceUser)
}

// Backspace deletes the last character of the last text block as a user
// edit. An emptied trailing paragraph is removed, joining the previous one.
func (e *Editor) Backspace() error {
	e.mu.Lock()
	doc := cloneNode(e.doc)
	e.mu.Unlock()

	block := lastTextBlock(doc)
	if block == nil {
		return nil
	}
	if len(block.Content) == 0 {
		if n := len(doc.Content); n > 1 && doc.Content[n-1] == block {
			doc.Content = doc.Content[:n-1]
			return e.replace(doc.HTML(), SourceUser)
		}
		return nil
	}
	last := block.Content[len(block.Content)-1]
	if last.Type == TypeText {
		r := []rune(last.Text)
		last.Text = string(r[:len(r)-1])
	}
	if last.Type != TypeText || last.Text == "" {
		block.Content = block.Content[:len(block.Content)-1]
	}
	return e.replace(doc.HTML(), SourceUser)
}

// Undo restores the content before the last change. It reports whether
// there was anything to undo.
func (e *Editor) Undo() (bool, error) {
	e.mu.Lock()
	if len(e.history) == 0 {
		e.mu.Unlock()
		return false, nil
	}
	prev := e.history[len(e.history)-1]
	e.history = e.history[:len(e.history)-1]
	e.mu.Unlock()

	doc, err := Parse(prev)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	e.doc = doc
	e.html = doc.HTML()
	fns := e.snapshotListeners()
	e.mu.Unlock()
	notify(fns, SourceUser)
	return true, nil
}

// CanUndo reports whether Undo would change anything.
func (e *Editor) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.history) > 0
}

func (e *Editor) SetFocus(focused bool) {
	e.mu.Lock()
	e.focused = focused
	e.mu.Unlock()
}

func (e *Editor) HasFocus() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.focused
}

func (e *Editor) replace(src string, source Source) error {
	doc, err := Parse(src)
	if err != nil {
		return err
	}
	if len(doc.Content) == 0 {
		doc.Content = []*Node{{Type: TypeParagraph}}
	}
	rendered := doc.HTML()

	e.mu.Lock()
	if rendered == e.html {
		e.mu.Unlock()
		return nil
	}
	e.history = append(e.history, e.html)
	if len(e.history) > maxHistory {
		e.history = e.history[len(e.history)-maxHistory:]
	}
	e.doc = doc
	e.html = rendered
	fns := e.snapshotListeners()
	e.mu.Unlock()

	notify(fns, source)
	return nil
}

func (e *Editor) snapshotListeners() []func(Source) {
	fns := make([]func(Source), 0, len(e.listeners))
	for id := 0; id < e.nextID; id++ {
		if fn, ok := e.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}

func notify(fns []func(Source), source Source) {
	for _, fn := range fns {
		fn(source)
	}
}

func lastTextBlock(n *Node) *Node {
	for i := len(n.Content) - 1; i >= 0; i-- {
		c := n.Content[i]
		switch c.Type {
		case TypeParagraph, TypeHeading, TypeListItem, TypeTableCell, TypeTableHeader:
			if inner := lastTextBlock(c); inner != nil && c.Type == TypeListItem {
				return inner
			}
			return c
		case TypeBulletList, TypeOrderedList, TypeBlockquote, TypeTable, TypeTableRow:
			if inner := lastTextBlock(c); inner != nil {
				return inner
			}
		}
	}
	return nil
}

func cloneNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	out := &Node{Type: n.Type, Text: n.Text}
	if n.Attrs != nil {
		out.Attrs = make(map[string]any, len(n.Attrs))
		for k, v := range n.Attrs {
			out.Attrs[k] = v
		}
	}
	if len(n.Marks) > 0 {
		out.Marks = append([]Mark(nil), n.Marks...)
	}
	for _, c := range n.Content {
		out.Content = append(out.Content, cloneNode(c))
	}
	return out
}
