package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/papapumpkin/treasury/internal/action"
)

// Runner wires an action to a signal Source and applies every signal until
// the action is terminal.
type Runner struct {
	Engine *Engine
	Logger *slog.Logger

	// NewReleaseID overrides release id generation, mainly for tests.
	NewReleaseID func() string
}

// NewRunner returns a Runner for engine. A nil logger discards output.
func NewRunner(engine *Engine, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{Engine: engine, Logger: logger}
}

// StatusReader is implemented by processing contexts that can report the
// record's current status, which may have been changed by another view.
type StatusReader interface {
	CurrentStatus() (action.Status, error)
}

// Run begins approval for a and waits for signals from src. A nil src means
// no signing integration is available; the action stays Created.
//
// Run returns nil when the action is Submitted, or left pending with no
// source. It returns *LifecycleError when a signal failed the action and
// ctx.Err() when ctx ends first.
func (r *Runner) Run(ctx context.Context, a action.TreasuryAction, pc ProcessingContext, src Source) error {
	return r.RunControlled(ctx, a, pc, src, nil)
}

// RunControlled is Run with an extra signal channel for operator actions
// such as cancellation. Signals on control are applied through the same
// session as those from src, so one runner stays the only writer.
func (r *Runner) RunControlled(ctx context.Context, a action.TreasuryAction, pc ProcessingContext, src Source, control <-chan Signal) error {
	// Sources release their subscription when this returns.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := r.Engine.BeginApproval(a, pc); err != nil {
		return err
	}
	sess := NewSession(r.Engine, pc)
	if r.NewReleaseID != nil {
		sess.releaseID = r.NewReleaseID
	}

	required, err := r.Engine.RequiresApproval(a)
	if err != nil {
		return err
	}
	if !required {
		if err := r.Engine.AutoApprove(pc, sess.releaseID()); err != nil {
			return err
		}
		sess.resume(true)
	}

	if src == nil {
		return pc.Log("⚠ Wallet integration not available - action created but not signed")
	}
	if err := logAll(pc, src.Preamble()...); err != nil {
		return err
	}

	signals, err := src.Signals(ctx, a)
	if err != nil {
		reason := "Wallet error: " + err.Error()
		if ferr := r.Engine.Fail(pc, reason); ferr != nil {
			return ferr
		}
		return &LifecycleError{ActionID: a.ID, Reason: reason}
	}
	log := r.Logger.With("action", a.ID, "source", src.Name())
	log.Debug("awaiting signals")

	for !sess.Done() {
		var sig Signal
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig = <-control:
		case s, ok := <-signals:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn("signal stream closed before terminal status")
				return pc.Log("⚠ Wallet signal stream ended before completion; action left pending")
			}
			sig = s
		}
		if terminal, status := finishedElsewhere(pc); terminal {
			log.Info("action finished by another writer, stopping", "status", status)
			return nil
		}
		if err := Dispatch(sess, sig); err != nil {
			if errors.Is(err, ErrDuplicateSignal) || errors.Is(err, ErrOutOfOrder) {
				log.Warn("signal ignored", "kind", sig.Kind, "error", err)
				continue
			}
			return fmt.Errorf("apply %s signal: %w", sig.Kind, err)
		}
		log.Info("signal applied", "kind", sig.Kind)
	}
	if reason := sess.Failure(); reason != "" {
		return &LifecycleError{ActionID: a.ID, Reason: reason}
	}
	return nil
}

// finishedElsewhere reports whether pc's record already reached a terminal
// status that this runner did not write.
func finishedElsewhere(pc ProcessingContext) (bool, action.Status) {
	sr, ok := pc.(StatusReader)
	if !ok {
		return false, ""
	}
	status, err := sr.CurrentStatus()
	if err != nil {
		return false, ""
	}
	return status.Terminal(), status
}
