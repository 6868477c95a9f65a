// Package gateway exposes turn orchestration over HTTP. It is a thin
// transport layer; all turn semantics live in composer and stream.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/signalmusic/conductor/internal/observability"
	"github.com/signalmusic/conductor/pkg/composer"
	"github.com/signalmusic/conductor/pkg/stream"
)

// Server is the turn orchestration HTTP server
type Server struct {
	options  Options
	server   *http.Server
	orch     *composer.Orchestrator
	pipeline *stream.Pipeline
	logger   zerolog.Logger

	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// NewServer creates a new gateway server
func NewServer(options Options, orch *composer.Orchestrator, pipeline *stream.Pipeline, logger zerolog.Logger) (*Server, error) {
	if options.Port == 0 {
		options.Port = 8000
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.ShutdownGrace == 0 {
		options.ShutdownGrace = 30 * time.Second
	}

	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("stream pipeline is required")
	}

	return &Server{
		options:   options,
		orch:      orch,
		pipeline:  pipeline,
		logger:    logger,
		startTime: time.Now(),
	}, nil
}

// Routes returns the server's handler. Exposed for tests.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/turns", s.track(s.handleStart))
	mux.HandleFunc("POST /v1/turns/stream", s.track(s.handleStartStream))
	mux.HandleFunc("POST /v1/turns/{threadID}/resume", s.track(s.handleResume))
	mux.HandleFunc("POST /v1/turns/{threadID}/resume/stream", s.track(s.handleResumeStream))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", observability.Handler())

	return mux
}

// Start starts the server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: s.Routes(),
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting gateway server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start gateway server: %w", err)
	}
	return nil
}

// Stop gracefully stops the server, waiting for in-flight requests
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(s.options.ShutdownGrace):
		s.logger.Warn().Msg("Shutdown grace period reached, forcing close")
	}

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown gateway server: %w", err)
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

// track rejects requests during shutdown and counts in-flight work
func (s *Server) track(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
			return
		}
		s.shutdownMu.RUnlock()

		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()

		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
