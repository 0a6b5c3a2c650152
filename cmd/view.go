package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/papapumpkin/treasury/internal/action"
	"github.com/papapumpkin/treasury/internal/config"
	"github.com/papapumpkin/treasury/internal/lifecycle"
	"github.com/papapumpkin/treasury/internal/storage"
	"github.com/papapumpkin/treasury/internal/store"
	"github.com/papapumpkin/treasury/internal/telemetry"
	"github.com/papapumpkin/treasury/internal/treasury"
)

// view is one process's open view of the shared collection.
type view struct {
	cfg       config.Config
	logger    *slog.Logger
	medium    storage.Medium
	store     *store.Store
	table     *action.Table
	telemetry *telemetry.Emitter
	service   *treasury.Service
}

// openView loads configuration and opens the configured medium, store,
// policy table and telemetry stream.
func openView(ctx context.Context) (*view, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.LogFormat, cfg.Verbose)
	slog.SetDefault(logger)

	table := action.DefaultTable()
	if cfg.PolicyFile != "" {
		if table, err = action.LoadTableFile(cfg.PolicyFile); err != nil {
			return nil, err
		}
	}

	if cfg.Backend != config.BackendMemory {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	medium, err := openMedium(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, medium, store.WithLogger(logger))
	if err != nil {
		medium.Close()
		return nil, err
	}

	v := &view{cfg: cfg, logger: logger, medium: medium, store: st, table: table}
	if cfg.Backend != config.BackendMemory && cfg.TelemetryFile != "" {
		if v.telemetry, err = telemetry.NewEmitter(cfg.TelemetryFile, st.ViewID()); err != nil {
			medium.Close()
			return nil, err
		}
	}
	v.service = treasury.New(st, table, v.source(), logger)
	return v, nil
}

func openMedium(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Medium, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := storage.NewSQLite(ctx, cfg.SQLitePath, cfg.PollInterval, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.BackendMemory:
		return storage.NewMemory(), nil
	}
	f, err := storage.NewFile(cfg.DataDir, logger)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// source returns the configured signal source; nil when signing is disabled.
func (v *view) source() lifecycle.Source {
	switch v.cfg.SignalMode {
	case config.SignalSimulated:
		sim := lifecycle.NewSimulator()
		sim.ApprovalDelay = v.cfg.ApprovalDelay
		sim.CompletionDelay = v.cfg.CompletionDelay
		return sim
	case config.SignalLive:
		return lifecycle.NewLive()
	}
	return nil
}

// subscribeTelemetry subscribes to store changes now and returns a function
// that records them until its context is done.
func (v *view) subscribeTelemetry() func(ctx context.Context) error {
	if v.telemetry == nil {
		return func(context.Context) error { return nil }
	}
	changes, unsubscribe := v.store.Subscribe()
	return func(ctx context.Context) error {
		defer unsubscribe()
		return v.telemetry.Follow(ctx, changes)
	}
}

func (v *view) Close() {
	if err := v.telemetry.Close(); err != nil {
		v.logger.Warn("close telemetry", "error", err)
	}
	if err := v.medium.Close(); err != nil {
		v.logger.Warn("close storage", "error", err)
	}
}

// findAction resolves arg as an action id, reference id, or unique id prefix.
func findAction(st *store.Store, arg string) (action.TreasuryAction, error) {
	if a, err := st.Get(arg); err == nil {
		return a, nil
	}
	var matches []action.TreasuryAction
	for _, a := range st.ListAll() {
		if a.ReferenceID == arg || strings.HasPrefix(a.ID, arg) {
			matches = append(matches, a)
		}
	}
	switch len(matches) {
	case 0:
		return action.TreasuryAction{}, fmt.Errorf("%w: %s", store.ErrNotFound, arg)
	case 1:
		return matches[0], nil
	}
	return action.TreasuryAction{}, errors.New("ambiguous action " + arg + ": use the full id")
}
