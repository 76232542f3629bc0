// Package server provides HTTP server lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/stratamed/policymatch/internal/core/api"
	"github.com/stratamed/policymatch/internal/core/auth"
	"github.com/stratamed/policymatch/internal/core/config"
	"github.com/stratamed/policymatch/internal/telemetry"
)

const shutdownGrace = 30 * time.Second

// HTTPServer manages the API server lifecycle. The /v1 routes sit behind
// the API key middleware; /healthz and /metrics stay open so probes and
// scrapers work without credentials.
type HTTPServer struct {
	server *http.Server
	config *config.ServerConfig
	logger *slog.Logger
}

// NewHTTPServer composes routes, middleware and timeouts into a server.
func NewHTTPServer(cfg *config.ServerConfig, service *api.Service, authenticator *auth.Authenticator, metrics *telemetry.Metrics, logger *slog.Logger) (*HTTPServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", api.NewHealthHandler())
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/v1/", authenticator.Middleware(service.Mux()))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
		IdleTimeout:  90 * time.Second,
	}

	return &HTTPServer{
		server: srv,
		config: cfg,
		logger: logger.With("component", "server"),
	}, nil
}

// Start binds the listener and serves until the context is cancelled or
// Serve fails. Cancellation triggers a graceful shutdown.
func (s *HTTPServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.server.Addr, err)
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting api server", "address", s.server.Addr)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully stops the server within a 30-second window, then
// forces the remaining connections closed.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("graceful shutdown failed, forcing close", "error", err)
		if closeErr := s.server.Close(); closeErr != nil {
			return fmt.Errorf("forced close: %w", closeErr)
		}
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	s.logger.Info("api server stopped")
	return nil
}

// Handler exposes the composed routes for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}
