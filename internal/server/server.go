// Package server is the HTTP surface of a treasury view: payment and auth
// proxy routes for the wallet integration, the actions API, the live
// signal webhook, health and metrics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/papapumpkin/treasury/internal/lifecycle"
	"github.com/papapumpkin/treasury/internal/metrics"
	"github.com/papapumpkin/treasury/internal/payments"
	"github.com/papapumpkin/treasury/internal/telemetry"
	"github.com/papapumpkin/treasury/internal/treasury"
)

const shutdownTimeout = 5 * time.Second

// Server wires handlers to their collaborators. Service and Payments are
// required; Metrics and Telemetry may be nil.
type Server struct {
	Service     *treasury.Service
	Payments    *payments.Client
	Metrics     *metrics.Metrics
	Telemetry   *telemetry.Emitter
	Environment string
	Logger      *slog.Logger
	Clock       func() time.Time
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Server) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

// live returns the live signal source, or nil when signals are simulated or
// disabled.
func (s *Server) live() *lifecycle.Live {
	l, _ := s.Service.Source.(*lifecycle.Live)
	return l
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), s.observe())

	api := router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.POST("/auth/signin", s.handleSignin)

		pay := api.Group("/payments")
		{
			pay.POST("/approve", s.handleApprove)
			pay.POST("/complete", s.handleComplete)
			pay.POST("/incomplete", s.handleIncomplete)
		}

		actions := api.Group("/actions")
		{
			actions.POST("", s.handleCreateAction)
			actions.GET("", s.handleListActions)
			actions.GET("/:id", s.handleGetAction)
			actions.POST("/:id/signals", s.handleSignal)
			actions.POST("/:id/cancel", s.handleCancel)
		}
	}
	if s.Metrics != nil {
		router.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}
	return router
}

// observe logs each request and records it in Metrics.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		if s.Metrics != nil {
			s.Metrics.Request(route, strconv.Itoa(c.Writer.Status()), elapsed.Seconds())
		}
		s.logger().Debug("http request",
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"elapsed", elapsed,
		)
	}
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger().Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
