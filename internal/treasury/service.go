// Package treasury is the view-level orchestration: it registers new actions
// in the store and runs each one through the lifecycle with the configured
// signal source.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/papapumpkin/treasury/internal/action"
	"github.com/papapumpkin/treasury/internal/lifecycle"
	"github.com/papapumpkin/treasury/internal/store"
)

// ErrTerminal indicates an operation on an action that already finished.
var ErrTerminal = errors.New("treasury: action already terminal")

// Service creates actions and drives their lifecycles in background
// goroutines bound to the service context.
type Service struct {
	Store   *store.Store
	Factory *action.Factory
	Runner  *lifecycle.Runner
	// Source is nil when no signing integration is configured.
	Source lifecycle.Source
	Logger *slog.Logger
	// Base, when set, bounds every lifecycle instead of the Create context.
	// Servers set it so that lifecycles outlive the request that created them.
	Base context.Context

	wg      sync.WaitGroup
	mu      sync.Mutex
	running map[string]*lifecycleRun
}

// lifecycleRun is the handle of one running lifecycle. Operator signals go
// through control so the runner stays the action's only writer.
type lifecycleRun struct {
	control chan lifecycle.Signal
	done    chan struct{}
}

// New assembles a Service. A nil logger uses slog.Default.
func New(st *store.Store, table *action.Table, src lifecycle.Source, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	engine := lifecycle.NewEngine(table)
	return &Service{
		Store:   st,
		Factory: action.NewFactory(table),
		Runner:  lifecycle.NewRunner(engine, logger),
		Source:  src,
		Logger:  logger,
		running: make(map[string]*lifecycleRun),
	}
}

// Create validates p, stores the new action and starts its lifecycle. The
// returned record is the freshly created one; lifecycle progress is visible
// through the store.
func (s *Service) Create(ctx context.Context, p action.Payload) (action.TreasuryAction, error) {
	a, err := s.Factory.Create(p)
	if err != nil {
		return action.TreasuryAction{}, err
	}
	if err := s.Store.Insert(ctx, a); err != nil {
		return action.TreasuryAction{}, err
	}
	runCtx := ctx
	if s.Base != nil {
		runCtx = s.Base
	}
	rec := s.Store.Recorder(runCtx, a.ID)
	user := p.UserID
	if user == "" {
		user = "anonymous"
	}
	if err := rec.Log("Action created by " + user); err != nil {
		return action.TreasuryAction{}, err
	}
	s.Logger.Info("action created", "id", a.ID, "reference", a.ReferenceID, "type", a.Type)

	run := &lifecycleRun{control: make(chan lifecycle.Signal, 1), done: make(chan struct{})}
	s.mu.Lock()
	if s.running == nil {
		s.running = make(map[string]*lifecycleRun)
	}
	s.running[a.ID] = run
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(run.done)
		defer s.forget(a.ID)
		s.run(runCtx, a, rec, run.control)
	}()
	return a, nil
}

func (s *Service) forget(id string) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}

func (s *Service) lookup(id string) *lifecycleRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[id]
}

func (s *Service) run(ctx context.Context, a action.TreasuryAction, rec *store.Recorder, control <-chan lifecycle.Signal) {
	err := s.Runner.RunControlled(ctx, a, rec, s.Source, control)
	var lerr *lifecycle.LifecycleError
	switch {
	case err == nil:
	case errors.As(err, &lerr):
		s.Logger.Warn("action failed", "id", a.ID, "reason", lerr.Reason)
	case errors.Is(err, context.Canceled):
		s.Logger.Debug("lifecycle abandoned", "id", a.ID)
	default:
		s.Logger.Error("lifecycle error", "id", a.ID, "error", err)
	}
}

// Cancel fails a non-terminal action with reason. When this service is
// still running the action's lifecycle, the cancellation is handed to that
// runner and Cancel waits for it to finish; otherwise the failure is
// written directly.
func (s *Service) Cancel(ctx context.Context, id, reason string) error {
	a, err := s.Store.Get(id)
	if err != nil {
		return err
	}
	if a.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminal, id, a.Status)
	}

	if run := s.lookup(id); run != nil {
		sig := lifecycle.Signal{Kind: lifecycle.SignalError, Reason: reason}
		if reason == "" {
			sig = lifecycle.Signal{Kind: lifecycle.SignalCancelled}
		}
		select {
		case run.control <- sig:
		case <-run.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case <-run.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if a, err = s.Store.Get(id); err != nil {
			return err
		}
		switch a.Status {
		case action.StatusFailed:
			return nil
		case action.StatusSubmitted:
			return fmt.Errorf("%w: %s is %s", ErrTerminal, id, a.Status)
		}
		// The runner returned without applying the signal, e.g. no source.
	}

	if reason == "" {
		reason = "Signature cancelled"
	}
	return s.Runner.Engine.Fail(s.Store.Recorder(ctx, id), reason)
}

// Wait blocks until every lifecycle started by Create has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}
