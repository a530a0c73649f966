package rpc

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 5 * time.Second

// Service runs the HTTP method endpoint and the websocket event stream on
// one listener.
type Service struct {
	server *http.Server
	ws     *WebSocketServer
	logger *log.Logger
}

// NewService builds the combined listener: methods at /, events at /ws.
func NewService(backend Backend, listenAddr string, logger *log.Logger, timeout time.Duration) *Service {
	ws := NewWebSocketServer(backend.Node, logger)

	mux := http.NewServeMux()
	mux.Handle("/", NewServer(backend, logger, timeout))
	mux.Handle("/ws", ws)

	return &Service{
		server: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: timeout,
		},
		ws:     ws,
		logger: logger,
	}
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Printf("rpc listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
