package hook

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"richsync/internal/syncer"
)

// Registry tracks the mounted widgets of one page or session and routes
// remote updates to them by id.
type Registry struct {
	log *slog.Logger

	mu      sync.Mutex
	widgets map[string]*Widget
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{log: logger, widgets: map[string]*Widget{}}
}

// Mount attaches w and registers it. A widget already mounted under the same
// id is detached first.
func (r *Registry) Mount(ctx context.Context, w *Widget) error {
	if err := w.OnAttach(ctx); err != nil {
		return fmt.Errorf("mount %s: %w", w.ID(), err)
	}
	r.mu.Lock()
	prev := r.widgets[w.ID()]
	r.widgets[w.ID()] = w
	r.mu.Unlock()
	if prev != nil && prev != w {
		prev.OnDetach()
	}
	r.log.Debug("widget mounted", "widget", w.ID())
	return nil
}

// Update tells a mounted widget that the host re-rendered its field. The
// field's current value is offered to the controller as a remote snapshot.
func (r *Registry) Update(id string) (syncer.Outcome, error) {
	w := r.Get(id)
	if w == nil {
		return syncer.Ignored, nil
	}
	_, value := w.Snapshot()
	return w.Remote(&value)
}

// Unmount detaches and forgets the widget. Unknown ids are a no-op.
func (r *Registry) Unmount(id string) {
	r.mu.Lock()
	w := r.widgets[id]
	delete(r.widgets, id)
	r.mu.Unlock()
	if w != nil {
		w.OnDetach()
		r.log.Debug("widget unmounted", "widget", id)
	}
}

// Dispatch routes u to its widget. Updates for ids that are not mounted are
// ignored.
func (r *Registry) Dispatch(u RemoteUpdate) (syncer.Outcome, error) {
	w := r.Get(u.WidgetID)
	if w == nil {
		r.log.Debug("remote update for unknown widget", "widget", u.WidgetID)
		return syncer.Ignored, nil
	}
	return w.Remote(u.Value)
}

func (r *Registry) Get(id string) *Widget {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.widgets[id]
}

// IDs returns the mounted widget ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.widgets))
	for id := range r.widgets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close unmounts every widget.
func (r *Registry) Close() {
	for _, id := range r.IDs() {
		r.Unmount(id)
	}
}
