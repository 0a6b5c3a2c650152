package tui

import "github.com/papapumpkin/treasury/internal/action"

// MsgSnapshot replaces the displayed collection, newest first.
type MsgSnapshot struct {
	Actions []action.TreasuryAction
}

// MsgCancelled reports the result of a cancel request.
type MsgCancelled struct {
	ID  string
	Err error
}
