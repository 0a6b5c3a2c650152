// Package tui is a terminal view of the shared action collection. It is one
// more view of the store: it renders the current list and re-renders
// whenever the store changes, including after a reload triggered by another
// view's write.
package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/papapumpkin/treasury/internal/store"
)

// Program is an alias for tea.Program, exposed so callers don't need
// to import bubbletea directly.
type Program = tea.Program

// NewProgram creates a program over st using the alternate screen buffer.
func NewProgram(st *store.Store, cancel CancelFunc, opts ...tea.ProgramOption) *Program {
	model := NewModel(st.ListAll(), cancel)
	allOpts := append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	return tea.NewProgram(model, allOpts...)
}

// Bridge forwards store changes into p as snapshots until ctx is done.
func Bridge(ctx context.Context, p *Program, st *store.Store) {
	changes, unsubscribe := st.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			p.Send(MsgSnapshot{Actions: st.ListAll()})
		}
	}
}

// Run shows the watch view until the user quits or ctx is done.
func Run(ctx context.Context, st *store.Store, cancel CancelFunc) error {
	p := NewProgram(st, cancel, tea.WithContext(ctx))
	bridgeCtx, stop := context.WithCancel(ctx)
	defer stop()
	go Bridge(bridgeCtx, p, st)

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
