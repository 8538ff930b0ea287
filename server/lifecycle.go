package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/teranos/dataq/errors"
)

// getState returns the current server state
func (s *Server) getState() ServerState {
	return ServerState(s.state.Load())
}

// setState atomically updates the server state
func (s *Server) setState(newState ServerState) {
	s.state.Store(int32(newState))
	s.logger.Infow("Server state changed", "new_state", newState.String())
}

// String returns the human-readable state name
func (st ServerState) String() string {
	switch st {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Start launches the hub, the broadcasters and the worker pool. It is
// idempotent; serving HTTP is left to ListenAndServe, Serve or Handler.
func (s *Server) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run()
	}()

	s.startEventBroadcaster()

	if s.pool != nil {
		s.pool.Start()
		s.startJobUpdateBroadcaster()
	}
}

// ListenAndServe starts background services and serves HTTP on addr until
// Stop is called
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.Serve(l)
}

// Serve serves HTTP on l. It returns nil after a graceful Stop.
func (s *Server) Serve(l net.Listener) error {
	s.Start()

	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Infow("HTTP server listening", "addr", l.Addr().String())
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// shutdownTimeout returns the configured drain bound
func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.ShutdownTimeoutSeconds > 0 {
		return time.Duration(s.cfg.ShutdownTimeoutSeconds) * time.Second
	}
	return DefaultShutdownTimeout
}

// Stop drains HTTP, stops the workers and waits for server goroutines.
// A job interrupted here is re-queued by the pool and resumes on next start.
func (s *Server) Stop(ctx context.Context) error {
	if s.getState() == ServerStateStopped {
		return nil
	}
	s.logger.Infow("Initiating server shutdown")
	s.setState(ServerStateDraining)

	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout())
	defer cancel()

	var shutdownErr error
	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			shutdownErr = errors.Wrap(err, "http shutdown incomplete")
		}
	}

	// Stop workers before closing clients so final job updates still go out
	if s.pool != nil && s.started.Load() {
		s.logger.Infow("Stopping worker pool")
		s.pool.Stop()
	}

	// Close all client connections BEFORE cancelling context
	// This ensures readPump/writePump exit cleanly before context cancellation
	s.mu.Lock()
	clientsToClose := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clientsToClose = append(clientsToClose, client)
		delete(s.clients, client)
	}
	s.mu.Unlock()
	for _, client := range clientsToClose {
		client.conn.Close()
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Infow("All goroutines stopped cleanly")
	case <-ctx.Done():
		s.logger.Warnw("Goroutine shutdown timed out, forcing exit", "timeout", s.shutdownTimeout())
	}

	s.setState(ServerStateStopped)
	s.logger.Infow("Server shutdown complete", "broadcast_drops", s.broadcastDrops.Load())
	return shutdownErr
}
