package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/productbridge/productbridge/internal/config"
)

// Server runs the extraction API until its context ends, then drains
// in-flight requests and runs the registered shutdown hooks.
type Server struct {
	cfg    config.ServerConfig
	logger *slog.Logger
	http   *http.Server
	routes []string

	mu    sync.Mutex
	addr  net.Addr
	ready chan struct{}
	hooks []func(context.Context)
}

// New wraps handler. routes is only logged at startup.
func New(cfg config.ServerConfig, logger *slog.Logger, handler http.Handler, routes ...string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		cfg:    cfg,
		logger: logger,
		routes: routes,
		ready:  make(chan struct{}),
		http: &http.Server{
			Addr:              net.JoinHostPort("", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			// Extractions wait on the model, so the write timeout is the
			// request budget rather than a slow-client guard.
			WriteTimeout: cfg.WriteTimeout,
			ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
	}
}

// OnShutdown registers fn to run after the HTTP server has drained, in
// registration order. The inference log flush goes here so no call record
// written by a finishing request is lost.
func (s *Server) OnShutdown(fn func(context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Addr returns the bound address once Run is listening, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Ready is closed when the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Run listens and serves until ctx is cancelled or serving fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("extraction API listening", "addr", ln.Addr().String(), "routes", s.routes)

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.http.Serve(ln) }()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http serve: %w", err)
	case <-ctx.Done():
	}

	return s.shutdown(context.WithoutCancel(ctx))
}

func (s *Server) shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("draining in-flight requests", "timeout", s.cfg.ShutdownTimeout)
	err := s.http.Shutdown(ctx)
	if err != nil {
		err = fmt.Errorf("http shutdown: %w", err)
	}

	s.mu.Lock()
	hooks := append([]func(context.Context){}, s.hooks...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(ctx)
	}

	s.logger.Info("server stopped")
	return err
}
