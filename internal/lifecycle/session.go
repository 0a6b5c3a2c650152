package lifecycle

import (
	"fmt"
	"sync"

	"github.com/papapumpkin/treasury/internal/action"
)

// Session is the Handler for one action. It enforces that approval happens
// at most once and precedes completion, and that nothing follows a terminal
// signal.
type Session struct {
	engine    *Engine
	pc        ProcessingContext
	releaseID func() string

	mu       sync.Mutex
	approved bool
	done     bool
	failure  string
}

// NewSession returns a Session applying signals through pc.
func NewSession(engine *Engine, pc ProcessingContext) *Session {
	return &Session{
		engine:    engine,
		pc:        pc,
		releaseID: func() string { return action.NewReleaseID(engine.now()) },
	}
}

// resume marks an already approved action so that only completion or
// failure is accepted.
func (s *Session) resume(approved bool) {
	s.mu.Lock()
	s.approved = approved
	s.mu.Unlock()
}

// OnReadyForApproval records the wallet signature and approves the action.
func (s *Session) OnReadyForApproval(paymentRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || s.approved {
		return fmt.Errorf("%w: approval for %s", ErrDuplicateSignal, paymentRef)
	}
	if err := s.engine.CompleteApproval(s.pc, paymentRef, s.releaseID()); err != nil {
		return err
	}
	s.approved = true
	return nil
}

// OnReadyForCompletion records the transaction and submits the action.
func (s *Session) OnReadyForCompletion(paymentRef, txRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return fmt.Errorf("%w: completion for %s", ErrDuplicateSignal, paymentRef)
	}
	if !s.approved {
		return fmt.Errorf("%w: completion for %s before approval", ErrOutOfOrder, paymentRef)
	}
	if err := s.engine.CompleteSubmission(s.pc, txRef); err != nil {
		return err
	}
	s.done = true
	return nil
}

// OnCancelled fails the action with a cancellation reason.
func (s *Session) OnCancelled() error {
	return s.fail("Signature cancelled")
}

// OnError fails the action with reason.
func (s *Session) OnError(reason string) error {
	if reason == "" {
		reason = "Unknown wallet error"
	}
	return s.fail(reason)
}

func (s *Session) fail(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return fmt.Errorf("%w: failure %q after terminal status", ErrDuplicateSignal, reason)
	}
	if err := s.engine.Fail(s.pc, reason); err != nil {
		return err
	}
	s.done = true
	s.failure = reason
	return nil
}

// Done reports whether the action reached a terminal status.
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Failure returns the failure reason, or "" if the action did not fail.
func (s *Session) Failure() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}
