package syncer

import (
	"errors"
	"fmt"
	"time"
)

type State int

const (
	Idle State = iota
	LocalEditInFlight
	RemoteApplyInFlight
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LocalEditInFlight:
		return "local_edit_in_flight"
	case RemoteApplyInFlight:
		return "remote_apply_in_flight"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Origin records which side produced the current content.
type Origin int

const (
	OriginNone Origin = iota
	OriginLocalRich
	OriginLocalPlain
	OriginRemote
)

func (o Origin) String() string {
	switch o {
	case OriginNone:
		return "none"
	case OriginLocalRich:
		return "local_rich"
	case OriginLocalPlain:
		return "local_plain"
	case OriginRemote:
		return "remote"
	default:
		return fmt.Sprintf("origin(%d)", int(o))
	}
}

// SyncState is a snapshot of a controller's bookkeeping.
type SyncState struct {
	LastKnownText string `json:"last_known_text"`
	Origin        Origin `json:"origin"`
	Pending       bool   `json:"pending"`
	Locked        bool   `json:"locked"`
	State         State  `json:"state"`
}

// Outcome is what a single event did.
type Outcome int

const (
	// Applied: content was written to the editor (and field, for remote updates).
	Applied Outcome = iota + 1
	// Scheduled: a propagation to the field is pending on the debouncer.
	Scheduled
	// Propagated: the field was written and a change event emitted.
	Propagated
	// Unchanged: nothing meaningful differed.
	Unchanged
	// Echo: the event was caused by the controller's own write.
	Echo
	// Ignored: a remote update was deliberately dropped.
	Ignored
	// Failed: the transition aborted; state is as it was before the event.
	Failed
	// Detached: the controller has been torn down.
	Detached
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Scheduled:
		return "scheduled"
	case Propagated:
		return "propagated"
	case Unchanged:
		return "unchanged"
	case Echo:
		return "echo"
	case Ignored:
		return "ignored"
	case Failed:
		return "failed"
	case Detached:
		return "detached"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Operation names used in logs, errors and telemetry.
const (
	OpMount      = "mount"
	OpLocalRich  = "local_rich"
	OpFlush      = "flush"
	OpLocalPlain = "local_plain"
	OpRemote     = "remote"
	OpDetach     = "detach"
)

// Reasons attached to Ignored and Unchanged outcomes.
const (
	ReasonStale = "stale"
	ReasonFocus = "focus"
	ReasonSame  = "same"
)

var (
	ErrSanitization  = errors.New("sanitization failure")
	ErrSerialization = errors.New("serialization failure")
)

// ErrStaleRemoteUpdate marks a remote update dropped because the widget has
// local edits. It is not a failure.
var ErrStaleRemoteUpdate = errors.New("stale remote update")

// TransitionError describes an aborted transition. Kind is one of
// ErrSanitization or ErrSerialization.
type TransitionError struct {
	WidgetID string
	Op       string
	Kind     error
	Err      error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("widget %s: %s: %v: %v", e.WidgetID, e.Op, e.Kind, e.Err)
}

func (e *TransitionError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Transition is one processed event, as handed to a Recorder.
type Transition struct {
	WidgetID string
	Op       string
	Outcome  Outcome
	Reason   string
	Err      error
	At       time.Time
}

// Recorder receives every transition a controller processes.
type Recorder interface {
	RecordTransition(Transition) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(Transition) error

func (f RecorderFunc) RecordTransition(t Transition) error { return f(t) }
