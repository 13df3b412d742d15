// Package api serves the monitor state over HTTP: a JSON status document,
// a health check and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rileyhilliard/upsmon/internal/monitor"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options configure the server.
type Options struct {
	// Listen is the address to bind, for example ":9105".
	Listen string
	// Host names the UPS in responses and metric labels.
	Host    string
	Version string
}

// Server is the HTTP API server.
type Server struct {
	opts      Options
	server    *http.Server
	listener  net.Listener
	router    *mux.Router
	store     *monitor.Store
	registry  *prometheus.Registry
	logger    zerolog.Logger
	startTime time.Time
}

// NewServer creates a server reading snapshots from store.
func NewServer(opts Options, store *monitor.Store) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(store, opts.Host))

	s := &Server{
		opts:      opts,
		router:    mux.NewRouter(),
		store:     store,
		registry:  registry,
		logger:    log.With().Str("component", "api").Logger(),
		startTime: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/record", s.handleRecord).Methods("GET")

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods("GET")
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listen address and serves in the background. Bind errors
// are returned directly.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Listen, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting HTTP API server")
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("Stopping HTTP API server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	return nil
}

// handleStatus returns the latest snapshot with server metadata.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	body := map[string]interface{}{
		"status":  "starting",
		"host":    s.opts.Host,
		"version": s.opts.Version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	}

	if snap, ok := s.store.Latest(); ok {
		body["status"] = "ok"
		if !snap.Online() {
			body["status"] = "offline"
		}
		body["session"] = snap.StateName()
		body["snapshot"] = snap
	}

	s.writeJSON(w, body, http.StatusOK)
}

// handleRecord returns only the latest parsed reading.
func (s *Server) handleRecord(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.store.Latest()
	if !ok || snap.Record == nil {
		s.writeError(w, "No reading yet", http.StatusNotFound)
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"polled_at": snap.PolledAt,
		"record":    snap.Record,
		"fields":    snap.Record.Fields(),
	}, http.StatusOK)
}

// handleHealth reports 200 while the console link is up.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.store.Latest()
	switch {
	case !ok:
		s.writeError(w, "No poll completed yet", http.StatusServiceUnavailable)
	case snap.LinkLost:
		s.writeError(w, "Link to UPS lost: "+snap.LastError, http.StatusServiceUnavailable)
	default:
		s.writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode error response")
	}
}
