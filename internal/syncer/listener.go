// Package syncer keeps a store's view consistent with writes made by other
// views that share the same storage medium.
package syncer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/papapumpkin/treasury/internal/storage"
	"github.com/papapumpkin/treasury/internal/store"
)

// Reloader is the part of a store the listener drives.
type Reloader interface {
	ViewID() string
	Reload(ctx context.Context) error
}

// Listener reloads a store whenever another view writes a fresh sync marker.
type Listener struct {
	medium storage.Medium
	store  Reloader
	logger *slog.Logger

	// OnReload, when set, is called after every successful reload.
	OnReload func()
}

// New returns a Listener for s over medium.
func New(medium storage.Medium, s Reloader, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Listener{medium: medium, store: s, logger: logger}
}

// Run watches the medium until ctx is done. It returns nil on cancellation.
// Reload failures are logged and do not stop the listener.
func (l *Listener) Run(ctx context.Context) error {
	events, err := l.medium.Watch(ctx)
	if err != nil {
		return err
	}
	last := ""
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Key != store.MarkerKey {
				continue
			}
			marker := string(ev.NewValue)
			if marker == "" || marker == last {
				continue
			}
			last = marker
			if store.MarkerView(marker) == l.store.ViewID() {
				continue
			}
			l.reload(ctx, marker)
		}
	}
}

func (l *Listener) reload(ctx context.Context, marker string) {
	err := l.store.Reload(ctx)
	var serr *store.SyncError
	switch {
	case err == nil:
		l.logger.Debug("reloaded after remote write", "marker", marker)
		if l.OnReload != nil {
			l.OnReload()
		}
	case errors.As(err, &serr):
		l.logger.Error("sync reload skipped", "marker", marker, "error", serr.Err)
	default:
		l.logger.Error("sync reload failed", "marker", marker, "error", err)
	}
}
