package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/papapumpkin/treasury/internal/metrics"
	"github.com/papapumpkin/treasury/internal/payments"
	"github.com/papapumpkin/treasury/internal/server"
	"github.com/papapumpkin/treasury/internal/syncer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and keep this view in sync",
	Long: `Starts the HTTP server (payment and auth proxy, actions API, live signal
webhook, health and Prometheus metrics) and a sync listener that reloads the
view whenever another process writes to the shared data directory.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default 127.0.0.1:3000)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v, err := openView(ctx)
	if err != nil {
		return err
	}
	defer v.Close()

	cfg := v.cfg
	m := metrics.New()
	client := payments.New(cfg.Payments.BaseURL, cfg.Payments.APIKey, cfg.Payments.Timeout,
		payments.WithRateLimit(cfg.Payments.RateLimit))
	if !client.Configured() {
		v.logger.Warn("payments api key not configured; payment routes will fail")
	}

	g, gctx := errgroup.WithContext(ctx)
	v.service.Base = gctx
	srv := &server.Server{
		Service:     v.service,
		Payments:    client,
		Metrics:     m,
		Telemetry:   v.telemetry,
		Environment: cfg.Server.Environment,
		Logger:      v.logger,
	}

	record := v.subscribeTelemetry()
	changes, unsubscribe := v.store.Subscribe()
	defer unsubscribe()
	listener := syncer.New(v.medium, v.store, v.logger)

	g.Go(func() error { return record(gctx) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case c, ok := <-changes:
				if !ok {
					return nil
				}
				m.Observe(c)
			}
		}
	})
	g.Go(func() error { return listener.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx, cfg.Server.Addr) })

	v.logger.Info("treasury view started",
		"view", v.store.ViewID(),
		"backend", cfg.Backend,
		"signal_mode", cfg.SignalMode,
		"addr", cfg.Server.Addr,
	)
	err = g.Wait()
	v.service.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
