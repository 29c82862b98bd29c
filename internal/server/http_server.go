package server

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// CreateServer creates an HTTP server with production timeouts. There is no
// write timeout: hijacked WebSocket connections manage their own deadlines.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Start runs the hub and serves HTTP until ctx is done, then shuts both down.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run()

	httpServer := CreateServer(s.cfg.Port, s.SetupRoutes())
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			_ = s.hub.Shutdown(s.cfg.ShutdownTimeout)
			return err
		}
	case <-ctx.Done():
	}
	return s.Shutdown(httpServer)
}

// Shutdown stops accepting requests, then closes every WebSocket connection.
func (s *Server) Shutdown(httpServer *http.Server) error {
	s.log.Info("Shutting down HTTP server")
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	httpErr := httpServer.Shutdown(ctx)
	if httpErr != nil {
		s.log.Error("HTTP server shutdown error", "error", httpErr)
	}
	return errors.Join(httpErr, s.hub.Shutdown(s.cfg.ShutdownTimeout))
}
