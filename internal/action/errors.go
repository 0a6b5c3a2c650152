package action

import "errors"

// ErrUnknownType indicates a policy lookup for a type the table does not define.
var ErrUnknownType = errors.New("unknown action type")

// ValidationCode classifies a payload validation failure.
type ValidationCode string

const (
	InvalidType   ValidationCode = "invalid_type"
	InvalidAmount ValidationCode = "invalid_amount"
)

// ValidationError reports the first payload rule that failed.
type ValidationError struct {
	Code    ValidationCode
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *ValidationError) Unwrap() error {
	return e.Err
}
