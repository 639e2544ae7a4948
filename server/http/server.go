// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package http exposes the queue broker over a JSON HTTP API. The caller's
// remote host:port is its client identity.
package http

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/absmach/qgate/broker"
	qtls "github.com/absmach/qgate/pkg/tls"
	"github.com/absmach/qgate/ratelimit"
	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const defaultMaxBodySize = 1 << 20

// Config holds HTTP API server settings.
type Config struct {
	Address         string
	TLS             *tls.Config // nil serves plain HTTP
	Compression     bool
	MaxBodySize     int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server serves the queue API.
type Server struct {
	config  Config
	svc     broker.Service
	limiter *ratelimit.Manager
	logger  *slog.Logger
	handler http.Handler
	server  *http.Server
}

// New creates the API server. A nil limiter disables rate limiting.
func New(cfg Config, svc broker.Service, limiter *ratelimit.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}

	s := &Server{
		config:  cfg,
		svc:     svc,
		limiter: limiter,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleQueues)
	mux.HandleFunc("GET /queues/{name}", s.handleQueue)
	mux.HandleFunc("GET /user_log", s.handleUserLog)
	mux.HandleFunc("POST /new_queue", s.handleNewQueue)
	mux.HandleFunc("POST /sub", s.handleSubscribe)
	mux.HandleFunc("POST /unsub", s.handleUnsubscribe)
	mux.HandleFunc("POST /pub", s.handleAddPublisher)
	mux.HandleFunc("POST /unpub", s.handleRemovePublisher)
	mux.HandleFunc("POST /push", s.handlePush)

	var h http.Handler = s.rateLimit(mux)
	if cfg.Compression {
		h = gzhttp.GzipHandler(h)
	}
	s.handler = h

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      h2c.NewHandler(h, &http2.Server{}),
		TLSConfig:    cfg.TLS,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Handler returns the API handler without the h2c wrapper.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Listen serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Listen on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("http_api_starting",
		slog.String("addr", ln.Addr().String()),
		slog.String("security", qtls.SecurityStatus(s.config.TLS)))

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.config.TLS != nil {
			err = s.server.ServeTLS(ln, "", "")
		} else {
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("http_api_shutdown_initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http_api_shutdown_error", slog.String("error", err.Error()))
			return err
		}

		s.logger.Info("http_api_stopped")
		return nil
	}
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.AllowRequest(r.RemoteAddr) {
			s.logger.Debug("http_request_rate_limited", slog.String("remote_addr", r.RemoteAddr))
			writeError(w, errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
