// Package webserver runs the HTTP API with its middleware stack and exposes
// Prometheus metrics.
package webserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spboyer/evalforge/internal/evaluation"
	"github.com/spboyer/evalforge/internal/metrics"
	"github.com/spboyer/evalforge/internal/webapi"
)

// Defaults for Config fields left empty.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8000

	shutdownTimeout = 5 * time.Second
)

// Config holds the HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
	// API carries the handler dependencies. API.Store is required.
	API webapi.Deps
	// Evaluation configures the service built when API.Service is nil.
	Evaluation evaluation.ServiceOptions
	// Metrics defaults to a fresh recorder.
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// Server wraps the HTTP server with configuration.
type Server struct {
	cfg    Config
	srv    *http.Server
	logger *slog.Logger
}

// New creates a new HTTP server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.API.Store == nil {
		return nil, errors.New("webserver: a store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewRecorder()
	}
	if cfg.API.Logger == nil {
		cfg.API.Logger = cfg.Logger
	}
	if cfg.API.Service == nil {
		opts := cfg.Evaluation
		opts.Metrics = cfg.Metrics
		if opts.Logger == nil {
			opts.Logger = cfg.Logger
		}
		cfg.API.Service = evaluation.NewService(cfg.API.Store, opts)
	}

	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		srv: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           newHandler(cfg),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	return s, nil
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("HTTP server starting", "address", ln.Addr().String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Graceful shutdown on context cancellation.
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown error", "error", err)
		}
	}()

	if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		// Release the shutdown goroutine before reporting the failure.
		cancel()
		<-done
		return fmt.Errorf("HTTP server error: %w", err)
	}
	<-done
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Handler returns the underlying http.Handler (useful for testing).
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
