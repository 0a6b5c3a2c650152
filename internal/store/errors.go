package store

import "errors"

var (
	// ErrDuplicateID indicates Insert was called with an id already present.
	ErrDuplicateID = errors.New("store: action id already exists")
	// ErrNotFound indicates Get was called with an unknown id.
	ErrNotFound = errors.New("store: action not found")
	// ErrInvalidTransition indicates a status change that does not follow the
	// forward-only status graph.
	ErrInvalidTransition = errors.New("store: invalid status transition")
)

// SyncError reports that the persisted collection could not be read during
// reconciliation. The in-memory state is left untouched.
type SyncError struct {
	Err error
}

func (e *SyncError) Error() string {
	return "store: sync skipped: " + e.Err.Error()
}

// Unwrap returns the underlying read or decode error.
func (e *SyncError) Unwrap() error {
	return e.Err
}
