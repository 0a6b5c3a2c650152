package lifecycle

import "errors"

var (
	// ErrAlreadySubscribed indicates a second signal subscription for one action.
	ErrAlreadySubscribed = errors.New("lifecycle: action already has a signal source")
	// ErrNotSubscribed indicates a signal for an action nobody is waiting on.
	ErrNotSubscribed = errors.New("lifecycle: action is not awaiting signals")
	// ErrBacklogFull indicates the waiting runner has not drained earlier signals.
	ErrBacklogFull = errors.New("lifecycle: signal backlog full")
	// ErrDuplicateSignal indicates a signal for a step that already happened.
	ErrDuplicateSignal = errors.New("lifecycle: duplicate signal")
	// ErrOutOfOrder indicates a completion signal before approval.
	ErrOutOfOrder = errors.New("lifecycle: signal out of order")
)

// LifecycleError reports that an external signal routed an action to Failed.
type LifecycleError struct {
	ActionID string
	Reason   string
}

func (e *LifecycleError) Error() string {
	return "lifecycle: action " + e.ActionID + " failed: " + e.Reason
}
