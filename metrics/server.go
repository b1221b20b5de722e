package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	scrapeEndpoint  = "/metrics"
	shutdownTimeout = 5 * time.Second
)

// Server exposes the prometheus scrape endpoint. It follows the same
// Ready/Done lifecycle as the API server so bootstrap can sequence both
// the same way.
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

// NewServer configures a scrape server on the given port. Nothing is
// bound until Ready is called.
func NewServer(logger zerolog.Logger, port int) *Server {
	logger = logger.With().Str("component", "metrics-server").Logger()

	mux := http.NewServeMux()
	mux.Handle(scrapeEndpoint, promhttp.HandlerFor(
		prometheus.DefaultGatherer,
		promhttp.HandlerOpts{},
	))

	return &Server{
		httpServer: &http.Server{
			Addr:    net.JoinHostPort("", strconv.Itoa(port)),
			Handler: mux,
		},
		logger: logger,
	}
}

// Ready binds the listener and starts serving. The returned channel
// closes once the port is held, or immediately if binding failed.
func (s *Server) Ready() <-chan struct{} {
	ready := make(chan struct{})

	go func() {
		listener, err := net.Listen("tcp", s.httpServer.Addr)
		if err != nil {
			s.logger.Err(err).Str("address", s.httpServer.Addr).Msg("failed to bind metrics listener")
			close(ready)
			return
		}

		s.logger.Info().
			Str("address", listener.Addr().String()).
			Str("endpoint", scrapeEndpoint).
			Msg("serving prometheus metrics")
		close(ready)

		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Err(err).Msg("metrics server stopped unexpectedly")
		}
	}()

	return ready
}

// Done gracefully drains in-flight scrapes, giving up after
// shutdownTimeout.
func (s *Server) Done() <-chan struct{} {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	go func() {
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Err(err).Msg("metrics server shutdown failed")
		}
	}()

	return ctx.Done()
}
