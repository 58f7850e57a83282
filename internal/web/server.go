package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"richsync/internal/clock"
	"richsync/internal/config"
	"richsync/internal/hook"
	"richsync/internal/store"
	"richsync/internal/syncer"

	"github.com/starfederation/datastar-go/datastar"
)

//go:embed templates/*.html static/*.js static/*.css
var assetsFS embed.FS

const defaultDatastarURL = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.5/bundles/datastar.js"

type ServerConfig struct {
	Addr   string
	Config config.Config

	// Store persists documents and transitions. Without one, edits live only
	// as long as their session.
	Store  *store.Store
	Logger *slog.Logger

	// Scheduler drives widget debounce timers (clock.Real when nil).
	Scheduler clock.Scheduler

	DatastarURL string
}

type Server struct {
	cfg  ServerConfig
	tmpl *template.Template
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	preview  *previewer
	fanq     *fanOutQueue
	bc       *resourceBroadcaster
	sessions *sessionTable
	widgets  *hook.Registry
}

func NewServer(cfg ServerConfig) (*Server, error) {
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	cfg.DatastarURL = strings.TrimSpace(cfg.DatastarURL)
	if cfg.Addr == "" {
		return nil, errors.New("web: addr is empty")
	}
	if cfg.Config.Dialect == "" {
		cfg.Config = config.Default()
	}
	if err := cfg.Config.Validate(); err != nil {
		return nil, err
	}
	if cfg.DatastarURL == "" {
		cfg.DatastarURL = defaultDatastarURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	tmpl, err := template.New("base").Funcs(template.FuncMap{
		"trim": strings.TrimSpace,
	}).ParseFS(assetsFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	pv, err := newPreviewer(cfg.Config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		tmpl:     tmpl,
		log:      cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
		preview:  pv,
		bc:       newResourceBroadcaster(),
		sessions: newSessionTable(),
		widgets:  hook.NewRegistry(cfg.Logger),
	}
	s.fanq = newFanOutQueue(s.fanOut)
	return s, nil
}

func (s *Server) Addr() string { return s.cfg.Addr }

// Close detaches every open session. Pending editor changes are dropped.
func (s *Server) Close() {
	for _, id := range s.sessions.ids() {
		s.closeSession(id)
	}
	s.cancel()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /static/app.css", s.handleAppCSS)
	mux.HandleFunc("GET /static/app.js", s.handleAppJS)
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /docs/{docId}", s.handleDoc)
	mux.HandleFunc("GET /docs/{docId}/text", s.handleDocText)
	mux.HandleFunc("POST /docs/{docId}/remote", s.handleDocRemote)
	mux.HandleFunc("GET /sessions/{sessionId}/events", s.handleSessionEvents)
	mux.HandleFunc("POST /sessions/{sessionId}/rich", s.handleSessionRich)
	mux.HandleFunc("POST /sessions/{sessionId}/plain", s.handleSessionPlain)
	mux.HandleFunc("POST /sessions/{sessionId}/focus", s.handleSessionFocus)
	mux.HandleFunc("POST /sessions/{sessionId}/save", s.handleSessionSave)
	mux.HandleFunc("POST /sessions/{sessionId}/close", s.handleSessionClose)
	return mux
}

func (s *Server) recorder() syncer.Recorder {
	if s.cfg.Store == nil {
		return nil
	}
	return s.cfg.Store
}

func (s *Server) handleAppJS(w http.ResponseWriter, r *http.Request) {
	s.writeAsset(w, r, "static/app.js", "application/javascript; charset=utf-8")
}

func (s *Server) handleAppCSS(w http.ResponseWriter, r *http.Request) {
	s.writeAsset(w, r, "static/app.css", "text/css; charset=utf-8")
}

func (s *Server) writeAsset(w http.ResponseWriter, r *http.Request, name, contentType string) {
	b, err := assetsFS.ReadFile(name)
	if err != nil || len(b) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) renderTemplate(name string, data any) (string, error) {
	var b strings.Builder
	if err := s.tmpl.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (s *Server) writeHTMLTemplate(w http.ResponseWriter, name string, data any) {
	html, err := s.renderTemplate(name, data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, html)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type baseVM struct {
	Title       string
	Theme       string
	DatastarURL string
}

func (s *Server) baseVM(title string) baseVM {
	return baseVM{Title: title, Theme: s.cfg.Config.Theme, DatastarURL: s.cfg.DatastarURL}
}

type homeDoc struct {
	ID        string
	Dialect   string
	Version   int64
	UpdatedAt string
	Preview   template.HTML
}

type homeVM struct {
	baseVM
	Docs []homeDoc
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	vm := homeVM{baseVM: s.baseVM("Documents")}
	if s.cfg.Store != nil {
		docs, err := s.cfg.Store.ListDocuments(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for _, d := range docs {
			vm.Docs = append(vm.Docs, homeDoc{
				ID:        d.ID,
				Dialect:   d.Dialect,
				Version:   d.Version,
				UpdatedAt: d.UpdatedAt.Format(time.RFC3339),
				Preview:   s.preview.render(d.Dialect, d.Text),
			})
		}
	}
	s.writeHTMLTemplate(w, "home.html", vm)
}

// loadText returns the stored text of docID, or "" for a new document.
func (s *Server) loadText(ctx context.Context, docID string) (string, error) {
	if s.cfg.Store == nil {
		return "", nil
	}
	d, err := s.cfg.Store.GetDocument(ctx, docID)
	if errors.As(err, new(store.NotFoundError)) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return d.Text, nil
}

type docVM struct {
	baseVM
	DocID       string
	SessionID   string
	Dialect     string
	Toolbar     []string
	EditorHTML  template.HTML
	Text        string
	Preview     template.HTML
	SignalsJSON string
}

func (s *Server) handleDoc(w http.ResponseWriter, r *http.Request) {
	docID := strings.TrimSpace(r.PathValue("docId"))
	if docID == "" {
		http.Error(w, "missing doc id", http.StatusBadRequest)
		return
	}
	text, err := s.loadText(r.Context(), docID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sess, err := s.openSession(s.ctx, docID, text)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	editorHTML, fieldText := sess.widget.Snapshot()
	signals := s.sessionSignals(sess)
	signals["editorHtml"] = editorHTML
	signals["focused"] = false
	b, _ := json.Marshal(signals)

	s.writeHTMLTemplate(w, "doc.html", docVM{
		baseVM:      s.baseVM(docID),
		DocID:       docID,
		SessionID:   sess.id,
		Dialect:     s.cfg.Config.Dialect,
		Toolbar:     s.cfg.Config.Capabilities.List(),
		EditorHTML:  template.HTML(editorHTML),
		Text:        fieldText,
		Preview:     s.preview.render(s.cfg.Config.Dialect, fieldText),
		SignalsJSON: string(b),
	})
}

func (s *Server) handleDocText(w http.ResponseWriter, r *http.Request) {
	docID := strings.TrimSpace(r.PathValue("docId"))
	if s.cfg.Store == nil {
		http.Error(w, "no store configured", http.StatusNotFound)
		return
	}
	d, err := s.cfg.Store.GetDocument(r.Context(), docID)
	if errors.As(err, new(store.NotFoundError)) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type remoteReq struct {
	Value *string `json:"value"`
	// Base is the document version the writer saw; -1 (or omitted) writes
	// unconditionally.
	Base *int64 `json:"base,omitempty"`
}

// handleDocRemote accepts a new authoritative DocumentText from outside the
// page (another service, a script) and pushes it to every open session.
func (s *Server) handleDocRemote(w http.ResponseWriter, r *http.Request) {
	docID := strings.TrimSpace(r.PathValue("docId"))
	var req remoteReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	resp := map[string]any{"id": docID}
	if s.cfg.Store != nil {
		text := ""
		if req.Value != nil {
			text = *req.Value
		}
		base := int64(-1)
		if req.Base != nil {
			base = *req.Base
		}
		d, err := s.cfg.Store.PutDocument(r.Context(), docID, s.cfg.Config.Dialect, text, base)
		var conflict store.ConflictError
		if errors.As(err, &conflict) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp["version"] = d.Version
	}

	outcomes := map[string]string{}
	for _, sid := range s.sessions.forDoc(docID) {
		out, err := s.widgets.Dispatch(hook.RemoteUpdate{WidgetID: sid, Value: req.Value})
		if err != nil {
			outcomes[sid] = err.Error()
			continue
		}
		outcomes[sid] = out.String()
	}
	resp["sessions"] = outcomes
	writeJSON(w, http.StatusOK, resp)
}

// onChange runs on the session's widget loop whenever its field takes a new
// value from the editor. It saves the text and forwards it to the other
// sessions of the same document.
func (s *Server) onChange(sess *session, ev syncer.ChangeEvent) {
	if st := s.cfg.Store; st != nil {
		if _, err := st.PutDocument(s.ctx, sess.docID, s.cfg.Config.Dialect, ev.Value, -1); err != nil {
			s.log.Warn("save failed", "doc", sess.docID, "session", sess.id, "err", err)
		}
	}
	s.bc.notify(sess.key())

	// Other widgets run on their own loops; calling them from this one could
	// deadlock against a peer doing the same.
	s.fanq.push(delivery{docID: sess.docID, from: sess.id, value: ev.Value})
}

func (s *Server) fanOut(d delivery) {
	if s.ctx.Err() != nil {
		return
	}
	for _, sid := range s.sessions.forDoc(d.docID) {
		if sid == d.from {
			continue
		}
		v := d.value
		out, err := s.widgets.Dispatch(hook.RemoteUpdate{WidgetID: sid, Value: &v})
		if err != nil {
			s.log.Warn("fan-out failed", "doc", d.docID, "session", sid, "err", err)
			continue
		}
		s.log.Debug("fan-out", "doc", d.docID, "from", d.from, "to", sid, "outcome", out.String())
	}
}

func (s *Server) sessionFromRequest(w http.ResponseWriter, r *http.Request) *session {
	sess := s.sessions.get(r.PathValue("sessionId"))
	if sess == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return nil
	}
	return sess
}

func (s *Server) sessionSignals(sess *session) map[string]any {
	sig := map[string]any{"text": sess.field.Value()}
	if st, ok := sess.widget.State(); ok {
		sig["syncState"] = st.State.String()
		sig["origin"] = st.Origin.String()
		sig["pending"] = st.Pending
		sig["locked"] = st.Locked
	} else {
		sig["syncState"] = "detached"
	}
	return sig
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	// The page owns the session: when its stream goes away, so does the
	// widget.
	defer s.closeSession(sess.id)

	sse := datastar.NewSSE(w, r)
	ch, cancel := s.bc.subscribe(sess.key())
	defer cancel()

	keepAlive := time.NewTicker(25 * time.Second)
	defer keepAlive.Stop()

	var (
		sentEditor  int64 = -1
		sentPreview string
	)
	push := func() {
		editorHTML, text := sess.widget.Snapshot()
		if seq := sess.editorSeq.Load(); seq != sentEditor {
			sentEditor = seq
			_ = sse.PatchElements(editorHTML, datastar.WithSelector("#editor"), datastar.WithMode(datastar.ElementPatchModeInner))
		}
		if text != sentPreview {
			sentPreview = text
			preview, err := s.renderTemplate("preview", s.preview.render(s.cfg.Config.Dialect, text))
			if err != nil {
				_ = sse.ExecuteScript(fmt.Sprintf(`console.error(%q)`, err.Error()))
			} else {
				_ = sse.PatchElements(preview, datastar.WithSelector("#preview"), datastar.WithMode(datastar.ElementPatchModeOuter))
			}
		}
		_ = sse.MarshalAndPatchSignals(s.sessionSignals(sess))
	}
	push()

	for {
		select {
		case <-sse.Context().Done():
			return
		case <-s.ctx.Done():
			return
		case <-keepAlive.C:
			_ = sse.PatchSignals([]byte(`{}`))
		case _, ok := <-ch:
			if !ok || s.sessions.get(sess.id) == nil {
				return
			}
			push()
		}
	}
}

type richReq struct {
	EditorHTML string `json:"editorHtml"`
}

func (s *Server) handleSessionRich(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	var req richReq
	if err := datastar.ReadSignals(r, &req); err != nil {
		http.Error(w, "invalid signals", http.StatusBadRequest)
		return
	}
	if _, err := sess.widget.EditRich(req.EditorHTML); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.bc.notify(sess.key())
	w.WriteHeader(http.StatusNoContent)
}

type plainReq struct {
	Text string `json:"text"`
}

func (s *Server) handleSessionPlain(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	var req plainReq
	if err := datastar.ReadSignals(r, &req); err != nil {
		http.Error(w, "invalid signals", http.StatusBadRequest)
		return
	}
	if _, err := sess.widget.EditPlain(req.Text); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	// The controller keeps the cleaned text; that is what gets saved and sent.
	text := req.Text
	if st, ok := sess.widget.State(); ok {
		text = st.LastKnownText
	}
	if st := s.cfg.Store; st != nil {
		if _, err := st.PutDocument(r.Context(), sess.docID, s.cfg.Config.Dialect, text, -1); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	s.bc.notify(sess.key())
	s.fanq.push(delivery{docID: sess.docID, from: sess.id, value: text})
	w.WriteHeader(http.StatusNoContent)
}

type focusReq struct {
	Focused bool `json:"focused"`
}

func (s *Server) handleSessionFocus(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	var req focusReq
	if err := datastar.ReadSignals(r, &req); err != nil {
		http.Error(w, "invalid signals", http.StatusBadRequest)
		return
	}
	sess.widget.SetFocus(req.Focused)
	w.WriteHeader(http.StatusNoContent)
}

// handleSessionSave is the submit shortcut: it propagates a pending editor
// change immediately.
func (s *Server) handleSessionSave(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	out, err := sess.widget.Flush()
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcome": out.String()})
}

func (s *Server) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}
	s.closeSession(sess.id)
	w.WriteHeader(http.StatusNoContent)
}
