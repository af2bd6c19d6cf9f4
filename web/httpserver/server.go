// Package httpserver wraps net/http server lifecycle for the framework:
// construction from config, start, and graceful shutdown.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/trellis-web/trellis/config"
	"github.com/trellis-web/trellis/pkg/logger"
)

// Server owns an http.Server configured from framework config.
type Server struct {
	srv *http.Server
	log *logger.Logger
}

// New creates a server for the given handler.
func New(cfg config.ServerConfig, log *logger.Logger, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      handler,
			ReadTimeout:  time.Duration(cfg.ReadTimeoutSec) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeoutSec) * time.Second,
		},
		log: log,
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.srv.Addr }

// Start begins serving and blocks until the server stops.
func (s *Server) Start() error {
	s.log.Infof("HTTP server listening on %s", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Infof("HTTP server shutting down")
	return s.srv.Shutdown(ctx)
}

// Run starts the server and shuts it down when the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}
