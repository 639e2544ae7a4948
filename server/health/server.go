// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/qgate/broker"
	"github.com/absmach/qgate/broker/webhook"
)

// Config holds health check server configuration.
type Config struct {
	Address         string
	BrokerID        string
	ShutdownTimeout time.Duration
}

// DeliveryReporter reports webhook delivery counters.
type DeliveryReporter interface {
	Stats() webhook.DeliveryStats
}

// Server provides health check endpoints for monitoring and orchestration.
type Server struct {
	config   Config
	registry *broker.Registry
	stats    *broker.Stats
	webhooks DeliveryReporter
	logger   *slog.Logger
	server   *http.Server
	ready    atomic.Bool

	mu       sync.Mutex
	listener net.Listener
}

// New creates a new health check server. The webhook reporter is optional.
func New(cfg Config, r *broker.Registry, stats *broker.Stats, webhooks DeliveryReporter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:   cfg,
		registry: r,
		stats:    stats,
		webhooks: webhooks,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /stats", s.handleStats)

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// SetReady toggles the readiness probe result.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Handler returns the health check handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the listener's network address, or "" before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Listen starts the health check server.
func (s *Server) Listen(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("health_server_starting", slog.String("addr", listener.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("health_server_shutdown_error", slog.String("error", err.Error()))
			return err
		}

		s.logger.Info("health_server_stopped")
		return nil
	}
}

// HealthResponse represents the liveness probe response.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// ReadyResponse represents the readiness probe response.
type ReadyResponse struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// handleReady returns 200 once the API is serving and until shutdown begins.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	switch {
	case s.registry == nil:
		writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Details: "registry not initialized"})
	case !s.ready.Load():
		writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Details: "api not serving"})
	default:
		writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready"})
	}
}

// StatsResponse carries broker counters and gauges.
type StatsResponse struct {
	BrokerID string                 `json:"broker_id"`
	Queues   int                    `json:"queues"`
	Counters broker.Snapshot        `json:"counters"`
	Webhooks *webhook.DeliveryStats `json:"webhooks,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{BrokerID: s.config.BrokerID}
	if s.registry != nil {
		resp.Queues = s.registry.Len()
	}
	if s.stats != nil {
		resp.Counters = s.stats.Snapshot()
	}
	if s.webhooks != nil {
		ws := s.webhooks.Stats()
		resp.Webhooks = &ws
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
