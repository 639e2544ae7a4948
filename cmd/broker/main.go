// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/absmach/qgate/broker"
	"github.com/absmach/qgate/broker/middleware"
	"github.com/absmach/qgate/broker/webhook"
	"github.com/absmach/qgate/config"
	qtls "github.com/absmach/qgate/pkg/tls"
	"github.com/absmach/qgate/ratelimit"
	"github.com/absmach/qgate/server/health"
	"github.com/absmach/qgate/server/http"
	"github.com/absmach/qgate/server/otel"
)

const version = "0.1.0"

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	slog.Info("Starting qgate", "version", version)
	slog.Info("Configuration loaded",
		"http_addr", cfg.Server.HTTPAddr,
		"health_enabled", cfg.Server.HealthEnabled,
		"default_ttl", cfg.Broker.DefaultTTL,
		"keep_last_publisher", cfg.Broker.KeepLastPublisher,
		"reaper_enabled", cfg.Broker.Reaper.Enabled,
		"log_level", cfg.Log.Level)

	var otelShutdown func(context.Context) error
	var metrics *otel.Metrics
	if cfg.Otel.Enabled {
		shutdown, err := otel.InitProvider(cfg.Otel, cfg.Broker.ID)
		if err != nil {
			slog.Error("Failed to initialize OpenTelemetry", "error", err)
			os.Exit(1)
		}
		otelShutdown = shutdown
		slog.Info("OpenTelemetry initialized", "endpoint", cfg.Otel.Endpoint)

		if cfg.Otel.MetricsEnabled {
			m, err := otel.NewMetrics()
			if err != nil {
				slog.Error("Failed to create metrics", "error", err)
				os.Exit(1)
			}
			metrics = m
		}
		if cfg.Otel.TracesEnabled {
			slog.Info("Distributed tracing enabled", "sample_rate", cfg.Otel.TraceSampleRate)
		}
	} else {
		slog.Info("OpenTelemetry disabled")
	}

	var notifier broker.Notifier
	var deliveries health.DeliveryReporter
	var webhooks *webhook.Notifier
	if cfg.Webhook.Enabled {
		wh, err := webhook.NewNotifier(cfg.Webhook, cfg.Broker.ID, webhook.NewHTTPSender(), logger)
		if err != nil {
			slog.Error("Failed to initialize webhooks", "error", err)
			os.Exit(1)
		}
		webhooks = wh
		notifier = wh
		deliveries = wh
		slog.Info("Webhooks enabled",
			"endpoints", len(cfg.Webhook.Endpoints),
			"workers", cfg.Webhook.Workers,
			"queue_size", cfg.Webhook.QueueSize)
	} else {
		slog.Info("Webhooks disabled")
	}

	registry := broker.NewRegistry(
		broker.WithDefaultTTL(cfg.Broker.DefaultTTL),
		broker.WithKeepLastPublisher(cfg.Broker.KeepLastPublisher),
	)
	stats := broker.NewStats()

	var svc broker.Service
	svc = broker.NewService(registry, notifier, logger)
	svc = middleware.NewLogging(svc, logger)
	svc = middleware.NewMetrics(svc, stats, metrics)
	svc = middleware.NewTracing(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reaper *broker.Reaper
	if cfg.Broker.Reaper.Enabled {
		reaper = broker.NewReaper(registry, cfg.Broker.Reaper.Interval, stats, notifier, logger)
		reaper.Start(ctx)
	}

	tlsCfg, err := qtls.Load(qtls.Config{
		CertFile:     cfg.Server.TLSCertFile,
		KeyFile:      cfg.Server.TLSKeyFile,
		ClientCAFile: cfg.Server.TLSClientCAFile,
	})
	if err != nil {
		slog.Error("Failed to load TLS configuration", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.NewManager(cfg.RateLimit)

	var wg sync.WaitGroup
	serverErr := make(chan error, 2)

	apiServer := http.New(http.Config{
		Address:         cfg.Server.HTTPAddr,
		TLS:             tlsCfg,
		Compression:     cfg.Server.Compression,
		MaxBodySize:     cfg.Server.MaxBodySize,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, svc, limiter, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Listen(ctx); err != nil {
			serverErr <- err
		}
	}()

	var healthServer *health.Server
	if cfg.Server.HealthEnabled {
		healthServer = health.New(health.Config{
			Address:         cfg.Server.HealthAddr,
			BrokerID:        cfg.Broker.ID,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, registry, stats, deliveries, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := healthServer.Listen(ctx); err != nil {
				serverErr <- err
			}
		}()
		healthServer.SetReady(true)
	}

	slog.Info("qgate started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server error", "error", err)
	}

	if healthServer != nil {
		healthServer.SetReady(false)
	}
	cancel()
	wg.Wait()

	if reaper != nil {
		reaper.Stop()
	}
	limiter.Stop()
	if webhooks != nil {
		webhooks.Close()
	}

	if otelShutdown != nil {
		otelCtx, otelCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer otelCancel()
		if err := otelShutdown(otelCtx); err != nil {
			slog.Error("Failed to shutdown OpenTelemetry", "error", err)
		}
	}

	slog.Info("qgate stopped")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
