package lifecycle

import (
	"context"
	"time"

	"github.com/papapumpkin/treasury/internal/action"
)

const (
	DefaultApprovalDelay   = 2 * time.Second
	DefaultCompletionDelay = 3 * time.Second
)

// Simulator is the testnet Source. It reports approval after ApprovalDelay
// and completion CompletionDelay later, with generated references. It never
// cancels or errors.
type Simulator struct {
	ApprovalDelay   time.Duration
	CompletionDelay time.Duration
	Clock           func() time.Time
	// After replaces time.After, mainly for tests.
	After func(time.Duration) <-chan time.Time
}

// NewSimulator returns a Simulator with the default delays.
func NewSimulator() *Simulator {
	return &Simulator{
		ApprovalDelay:   DefaultApprovalDelay,
		CompletionDelay: DefaultCompletionDelay,
		Clock:           time.Now,
		After:           time.After,
	}
}

// Name implements Source.
func (s *Simulator) Name() string { return "simulated" }

// Preamble implements Source.
func (s *Simulator) Preamble() []string {
	return []string{
		"⚙ Testnet mode: Simulating wallet approval flow...",
		"ℹ Note: Full payment backend not required in Testnet",
	}
}

// Signals implements Source.
func (s *Simulator) Signals(ctx context.Context, _ action.TreasuryAction) (<-chan Signal, error) {
	clock := s.Clock
	if clock == nil {
		clock = time.Now
	}
	after := s.After
	if after == nil {
		after = time.After
	}

	out := make(chan Signal, 2)
	go func() {
		defer close(out)
		select {
		case <-ctx.Done():
			return
		case <-after(s.ApprovalDelay):
		}
		payRef := action.StampedID("TESTNET-PAY", clock(), 9)
		out <- Signal{Kind: SignalReadyForApproval, PaymentRef: payRef}

		select {
		case <-ctx.Done():
			return
		case <-after(s.CompletionDelay):
		}
		out <- Signal{
			Kind:       SignalReadyForCompletion,
			PaymentRef: payRef,
			TxRef:      action.StampedID("TESTNET-TX", clock(), 13),
		}
	}()
	return out, nil
}
