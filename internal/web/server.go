package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cjeanneret/LaneGo/internal/debug"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server for addr.
func NewServer(addr string, broadcaster *StatusBroadcaster, machine Machine, dispenser Dispenser, info Info) *Server {
	return &Server{
		addr:     addr,
		handlers: NewHandlers(broadcaster, machine, dispenser, info),
	}
}

// Handlers returns the request handlers.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /rotate", s.handlers.HandleRotate)
	mux.HandleFunc("POST /batch", s.handlers.HandleBatch)
	mux.HandleFunc("POST /zero", s.handlers.HandleZero)
	mux.HandleFunc("POST /dispense", s.handlers.HandleDispense)
	mux.HandleFunc("POST /dispense/cancel", s.handlers.HandleCancel)
	mux.HandleFunc("GET /config", s.handlers.HandleConfig)
	mux.HandleFunc("GET /status/stream", s.handlers.HandleStatusStream)
	mux.HandleFunc("GET /status/ws", s.handlers.HandleStatusWS)

	return mux
}

// Run starts the server and blocks until ctx is cancelled, then cancels
// any running dispense and shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.handlers.baseCtx = ctx
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.handlers.Wait()
		return err
	}
}
