package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/papapumpkin/treasury/internal/action"
)

// SignalKind identifies an external approval event.
type SignalKind string

const (
	SignalReadyForApproval   SignalKind = "ready_for_approval"
	SignalReadyForCompletion SignalKind = "ready_for_completion"
	SignalCancelled          SignalKind = "cancelled"
	SignalError              SignalKind = "error"
)

// Signal is one event from a wallet or payment integration.
type Signal struct {
	Kind       SignalKind `json:"kind"`
	PaymentRef string     `json:"paymentRef,omitempty"`
	TxRef      string     `json:"txRef,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// Validate checks that the fields required by Kind are present.
func (s Signal) Validate() error {
	switch s.Kind {
	case SignalReadyForApproval:
		if s.PaymentRef == "" {
			return errors.New("paymentRef is required")
		}
	case SignalReadyForCompletion:
		if s.PaymentRef == "" || s.TxRef == "" {
			return errors.New("paymentRef and txRef are required")
		}
	case SignalCancelled, SignalError:
	default:
		return fmt.Errorf("unknown signal kind %q", s.Kind)
	}
	return nil
}

// Handler reacts to the four external signals of one action.
type Handler interface {
	OnReadyForApproval(paymentRef string) error
	OnReadyForCompletion(paymentRef, txRef string) error
	OnCancelled() error
	OnError(reason string) error
}

// Dispatch routes s to the matching Handler method.
func Dispatch(h Handler, s Signal) error {
	switch s.Kind {
	case SignalReadyForApproval:
		return h.OnReadyForApproval(s.PaymentRef)
	case SignalReadyForCompletion:
		return h.OnReadyForCompletion(s.PaymentRef, s.TxRef)
	case SignalCancelled:
		return h.OnCancelled()
	case SignalError:
		return h.OnError(s.Reason)
	}
	return fmt.Errorf("lifecycle: unknown signal kind %q", s.Kind)
}

// Source produces the signal stream for an action. Two sources must never
// be attached to the same action.
type Source interface {
	// Name identifies the source in logs.
	Name() string
	// Preamble returns audit lines recorded before waiting for signals.
	Preamble() []string
	// Signals starts delivery for a. The channel is closed when the source
	// has nothing more to send.
	Signals(ctx context.Context, a action.TreasuryAction) (<-chan Signal, error)
}
