package cmd

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/papapumpkin/treasury/internal/syncer"
	"github.com/papapumpkin/treasury/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open a live terminal view of all actions",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	v, err := openView(ctx)
	if err != nil {
		return err
	}
	defer v.Close()
	// The TUI owns the terminal, so no lifecycle is driven from here.
	v.service.Source = nil

	g, gctx := errgroup.WithContext(ctx)
	listener := syncer.New(v.medium, v.store, v.logger)
	g.Go(func() error { return listener.Run(gctx) })
	g.Go(func() error {
		defer stop()
		return tui.Run(gctx, v.store, func(id string) error {
			return v.service.Cancel(gctx, id, "")
		})
	})
	return g.Wait()
}
