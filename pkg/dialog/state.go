package dialog

// State is the bounded UI state of the deck-creation dialog.
type State string

const (
	// StateIdle is the initial state and the state after a cancel or reopen.
	StateIdle State = "idle"

	// StateProcessing is active while a submitted job is being tracked.
	StateProcessing State = "processing"

	// StateComplete is terminal for a job: the worker reported success.
	StateComplete State = "complete"

	// StateError is terminal for a job: remote failure or local cancel
	// after persistent poll errors.
	StateError State = "error"
)

// EventType drives dialog transitions.
type EventType string

const (
	// EventSubmit fires when an upload succeeds and polling begins.
	EventSubmit EventType = "submit"

	// EventComplete fires when the poller observes a terminal complete status.
	EventComplete EventType = "complete"

	// EventFail fires on a terminal failed status or on cancel-after-errors.
	EventFail EventType = "fail"

	// EventCancel fires when the user abandons the in-flight job.
	EventCancel EventType = "cancel"

	// EventReset fires when the dialog is reopened for a fresh job.
	EventReset EventType = "reset"
)

// Event carries a transition trigger and an optional status message.
type Event struct {
	Type    EventType
	Message string
}

// Controls enumerates which dialog controls a state enables.
type Controls string

const (
	ControlsAll        Controls = "all"
	ControlsCancelOnly Controls = "cancel-only"
	ControlsCloseOnly  Controls = "close-only"
)

// Effects is what the UI must apply after a transition. It is derived
// deterministically from the target state so rendering stays dumb.
type Effects struct {
	// Changed is false when the event re-entered the current state;
	// the UI must not refresh in that case.
	Changed bool

	Controls        Controls
	ProgressVisible bool

	// ClearStatus is set on entry to Processing so text from a prior
	// job never bleeds into a new one.
	ClearStatus bool

	// StatusText carries the message from the triggering event, if any.
	StatusText string
}

// Transition is the pure dialog transition function. Unknown or
// out-of-place events leave the state unchanged.
func Transition(s State, ev Event) (State, Effects) {
	next := s

	switch ev.Type {
	case EventSubmit:
		if s == StateIdle {
			next = StateProcessing
		}
	case EventComplete:
		if s == StateProcessing {
			next = StateComplete
		}
	case EventFail:
		if s == StateProcessing {
			next = StateError
		}
	case EventCancel:
		if s == StateProcessing {
			next = StateIdle
		}
	case EventReset:
		if s == StateComplete || s == StateError {
			next = StateIdle
		}
	}

	if next == s {
		return s, Effects{Changed: false}
	}
	return next, effectsFor(next, ev)
}

func effectsFor(s State, ev Event) Effects {
	eff := Effects{Changed: true, StatusText: ev.Message}
	switch s {
	case StateIdle:
		eff.Controls = ControlsAll
	case StateProcessing:
		eff.Controls = ControlsCancelOnly
		eff.ProgressVisible = true
		eff.ClearStatus = true
	case StateComplete, StateError:
		eff.Controls = ControlsCloseOnly
	}
	return eff
}
