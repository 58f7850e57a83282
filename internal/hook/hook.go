package hook

import "context"

// Hook is the lifecycle every widget binding implements.
type Hook interface {
	OnAttach(ctx context.Context) error
	OnDetach()
}

// RemoteUpdate is a snapshot pushed by the authoritative source for one
// widget. A nil Value is an empty document.
type RemoteUpdate struct {
	WidgetID string  `json:"id"`
	Value    *string `json:"value"`
}
