package store

import (
	"context"
	"time"

	"github.com/papapumpkin/treasury/internal/action"
)

// Recorder binds the store's mutation operations to one action id. It
// satisfies lifecycle.ProcessingContext, so the lifecycle engine writes
// through it without holding the store.
type Recorder struct {
	ctx   context.Context
	store *Store
	id    string
}

// Recorder returns a Recorder for id that issues writes with ctx.
func (s *Store) Recorder(ctx context.Context, id string) *Recorder {
	return &Recorder{ctx: ctx, store: s, id: id}
}

// ActionID returns the bound id.
func (r *Recorder) ActionID() string { return r.id }

// Log appends message to the action's apiLog.
func (r *Recorder) Log(message string) error {
	return r.store.AppendLog(r.ctx, r.id, message)
}

// StatusChange advances the action's status.
func (r *Recorder) StatusChange(status action.Status, at time.Time) error {
	return r.store.UpdateStatus(r.ctx, r.id, status, at)
}

// EvidenceMerge merges partial evidence.
func (r *Recorder) EvidenceMerge(partial action.Evidence) error {
	return r.store.MergeEvidence(r.ctx, r.id, partial)
}

// CurrentStatus returns the bound action's status as this view last saw it.
func (r *Recorder) CurrentStatus() (action.Status, error) {
	a, err := r.store.Get(r.id)
	if err != nil {
		return "", err
	}
	return a.Status, nil
}
