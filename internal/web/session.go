package web

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"richsync/internal/hook"
	"richsync/internal/richdoc"
	"richsync/internal/syncer"
)

// fieldValue is the hidden form input of one browser tab. Writes from the
// controller wake the tab's event stream.
type fieldValue struct {
	mu    sync.Mutex
	v     string
	onSet func()
}

func (f *fieldValue) Value() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v
}

func (f *fieldValue) SetValue(v string) {
	f.mu.Lock()
	f.v = v
	f.mu.Unlock()
	if f.onSet != nil {
		f.onSet()
	}
}

// session is one open editor page. Its widget id is the session id.
type session struct {
	id     string
	docID  string
	editor *richdoc.Editor
	field  *fieldValue
	widget *hook.Widget

	// editorSeq counts editor changes the controller made (SourceAPI). The
	// event stream re-sends the editor body only when it moves, so the
	// browser's caret survives the user's own edits.
	editorSeq atomic.Int64
	unsub     func()
}

func (s *session) key() resourceKey { return resourceKey{kind: "session", id: s.id} }

func newSessionID() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type sessionTable struct {
	mu    sync.Mutex
	byID  map[string]*session
	byDoc map[string]map[string]*session
}

func newSessionTable() *sessionTable {
	return &sessionTable{byID: map[string]*session{}, byDoc: map[string]map[string]*session{}}
}

func (t *sessionTable) add(s *session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[s.id] = s
	m := t.byDoc[s.docID]
	if m == nil {
		m = map[string]*session{}
		t.byDoc[s.docID] = m
	}
	m[s.id] = s
}

func (t *sessionTable) get(id string) *session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byID[strings.TrimSpace(id)]
}

func (t *sessionTable) remove(id string) *session {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.byID[id]
	if s == nil {
		return nil
	}
	delete(t.byID, id)
	if m := t.byDoc[s.docID]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(t.byDoc, s.docID)
		}
	}
	return s
}

// forDoc returns the session ids editing docID, sorted.
func (t *sessionTable) forDoc(docID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.byDoc[docID]))
	for id := range t.byDoc[docID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (t *sessionTable) ids() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.byID))
	for id := range t.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// openSession creates and mounts a widget for docID seeded with text.
func (s *Server) openSession(ctx context.Context, docID, text string) (*session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	sess := &session{
		id:     id,
		docID:  docID,
		editor: richdoc.NewEditor(),
		field:  &fieldValue{v: text},
	}
	sess.field.onSet = func() { s.bc.notify(sess.key()) }
	sess.unsub = sess.editor.OnChange(func(src richdoc.Source) {
		if src == richdoc.SourceAPI {
			sess.editorSeq.Add(1)
		}
		s.bc.notify(sess.key())
	})

	w, err := hook.NewWidget(hook.WidgetOptions{
		ID:        id,
		Editor:    sess.editor,
		Field:     sess.field,
		Config:    s.cfg.Config,
		Scheduler: s.cfg.Scheduler,
		Emit:      func(ev syncer.ChangeEvent) { s.onChange(sess, ev) },
		Recorder:  s.recorder(),
		Logger:    s.log.With("doc", docID, "session", id),
	})
	if err != nil {
		sess.unsub()
		return nil, err
	}
	sess.widget = w
	s.sessions.add(sess)
	if err := s.widgets.Mount(ctx, w); err != nil {
		s.sessions.remove(id)
		sess.unsub()
		return nil, err
	}
	return sess, nil
}

func (s *Server) closeSession(id string) {
	sess := s.sessions.remove(id)
	if sess == nil {
		return
	}
	s.widgets.Unmount(id)
	sess.unsub()
	// Wake the session's stream so it sees the session is gone.
	s.bc.notify(sess.key())
}
