// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the queue broker.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Broker    BrokerConfig    `yaml:"broker"`
	Log       LogConfig       `yaml:"log"`
	Otel      OtelConfig      `yaml:"otel"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Webhook   WebhookConfig   `yaml:"webhook"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr" env:"QGATE_HTTP_ADDR"`
	HealthAddr      string        `yaml:"health_addr" env:"QGATE_HEALTH_ADDR"`
	HealthEnabled   bool          `yaml:"health_enabled" env:"QGATE_HEALTH_ENABLED"`
	TLSCertFile     string        `yaml:"tls_cert_file" env:"QGATE_TLS_CERT_FILE"`
	TLSKeyFile      string        `yaml:"tls_key_file" env:"QGATE_TLS_KEY_FILE"`
	TLSClientCAFile string        `yaml:"tls_client_ca_file" env:"QGATE_TLS_CLIENT_CA_FILE"`
	Compression     bool          `yaml:"compression" env:"QGATE_HTTP_COMPRESSION"`
	MaxBodySize     int64         `yaml:"max_body_size"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"QGATE_SHUTDOWN_TIMEOUT"`
}

// BrokerConfig holds queue broker settings.
type BrokerConfig struct {
	// ID identifies this broker in emitted events
	ID string `yaml:"id" env:"QGATE_BROKER_ID"`

	// Lifetime of messages pushed without one
	DefaultTTL time.Duration `yaml:"default_ttl" env:"QGATE_DEFAULT_TTL"`

	// Refuse to remove the only publisher of a queue
	KeepLastPublisher bool `yaml:"keep_last_publisher" env:"QGATE_KEEP_LAST_PUBLISHER"`

	Reaper ReaperConfig `yaml:"reaper"`
}

// ReaperConfig controls the background expiry of messages.
type ReaperConfig struct {
	Enabled  bool          `yaml:"enabled" env:"QGATE_REAPER_ENABLED"`
	Interval time.Duration `yaml:"interval" env:"QGATE_REAPER_INTERVAL"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" env:"QGATE_LOG_LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"QGATE_LOG_FORMAT"` // text, json
}

// OtelConfig holds OpenTelemetry configuration.
type OtelConfig struct {
	Enabled         bool          `yaml:"enabled" env:"QGATE_OTEL_ENABLED"`
	Endpoint        string        `yaml:"endpoint" env:"QGATE_OTEL_ENDPOINT"`
	ServiceName     string        `yaml:"service_name"`
	ServiceVersion  string        `yaml:"service_version"`
	TracesEnabled   bool          `yaml:"traces_enabled"`
	MetricsEnabled  bool          `yaml:"metrics_enabled"`
	TraceSampleRate float64       `yaml:"trace_sample_rate"` // 0.0 to 1.0
	ExportInterval  time.Duration `yaml:"export_interval"`
}

// RateLimitConfig holds rate limiting configuration for the HTTP API.
type RateLimitConfig struct {
	Enabled   bool              `yaml:"enabled" env:"QGATE_RATELIMIT_ENABLED"`
	Request   RequestRateConfig `yaml:"request"`
	Push      ClientRateConfig  `yaml:"push"`
	Subscribe ClientRateConfig  `yaml:"subscribe"`
}

// RequestRateConfig holds per-IP request rate limiting settings.
type RequestRateConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Rate            float64       `yaml:"rate"`             // requests per second per IP
	Burst           int           `yaml:"burst"`            // burst allowance
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // cleanup interval for stale entries
}

// ClientRateConfig holds per-client rate limiting settings.
type ClientRateConfig struct {
	Enabled bool    `yaml:"enabled"`
	Rate    float64 `yaml:"rate"`  // operations per second per client
	Burst   int     `yaml:"burst"` // burst allowance
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled         bool              `yaml:"enabled" env:"QGATE_WEBHOOK_ENABLED"`
	QueueSize       int               `yaml:"queue_size"`
	DropPolicy      string            `yaml:"drop_policy"`      // "oldest" or "newest"
	Workers         int               `yaml:"workers"`          // Number of worker goroutines
	IncludePayload  bool              `yaml:"include_payload"`  // Include message payload in events
	ShutdownTimeout time.Duration     `yaml:"shutdown_timeout"` // Graceful shutdown timeout
	Defaults        WebhookDefaults   `yaml:"defaults"`
	Endpoints       []WebhookEndpoint `yaml:"endpoints"`
}

// WebhookDefaults holds default settings for webhook endpoints.
type WebhookDefaults struct {
	Timeout        time.Duration        `yaml:"timeout"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig holds retry configuration for webhook delivery.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
}

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// WebhookEndpoint defines a single webhook endpoint configuration.
type WebhookEndpoint struct {
	Name         string            `yaml:"name"`
	Type         string            `yaml:"type"` // "http"
	URL          string            `yaml:"url"`
	Events       []string          `yaml:"events"`        // Event type filter (empty = all)
	QueueFilters []string          `yaml:"queue_filters"` // Queue name glob filter (empty = all)
	Headers      map[string]string `yaml:"headers"`
	Timeout      time.Duration     `yaml:"timeout,omitempty"` // Override default
	Retry        *RetryConfig      `yaml:"retry,omitempty"`   // Override default
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        "localhost:1000",
			HealthAddr:      ":8081",
			HealthEnabled:   true,
			Compression:     true,
			MaxBodySize:     1024 * 1024, // 1MB
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Broker: BrokerConfig{
			ID:                "qgate-1",
			DefaultTTL:        6 * time.Second,
			KeepLastPublisher: true,
			Reaper: ReaperConfig{
				Enabled:  true,
				Interval: time.Second,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Otel: OtelConfig{
			Enabled:         false,
			Endpoint:        "localhost:4317",
			ServiceName:     "qgate",
			ServiceVersion:  "0.1.0",
			MetricsEnabled:  true,
			TracesEnabled:   false, // Disabled by default for performance
			TraceSampleRate: 0.1,   // 10% sampling when enabled
			ExportInterval:  10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled: false,
			Request: RequestRateConfig{
				Enabled:         true,
				Rate:            100, // 100 requests per second per IP
				Burst:           200,
				CleanupInterval: 5 * time.Minute,
			},
			Push: ClientRateConfig{
				Enabled: true,
				Rate:    1000,
				Burst:   100,
			},
			Subscribe: ClientRateConfig{
				Enabled: true,
				Rate:    100,
				Burst:   10,
			},
		},
		Webhook: WebhookConfig{
			Enabled:         false,
			QueueSize:       10000,
			DropPolicy:      "oldest",
			Workers:         5,
			IncludePayload:  false,
			ShutdownTimeout: 30 * time.Second,
			Defaults: WebhookDefaults{
				Timeout: 5 * time.Second,
				Retry: RetryConfig{
					MaxAttempts:     3,
					InitialInterval: 1 * time.Second,
					MaxInterval:     30 * time.Second,
					Multiplier:      2.0,
				},
				CircuitBreaker: CircuitBreakerConfig{
					FailureThreshold: 5,
					ResetTimeout:     60 * time.Second,
				},
			},
			Endpoints: []WebhookEndpoint{},
		},
	}
}

// Load loads configuration from a YAML file and applies QGATE_* environment
// overrides, including those from a .env file in the working directory.
// If the file name is empty or the file doesn't exist, defaults are used.
func Load(filename string) (*Config, error) {
	cfg := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr cannot be empty")
	}
	if c.Server.HealthEnabled && c.Server.HealthAddr == "" {
		return fmt.Errorf("server.health_addr required when health server is enabled")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		return fmt.Errorf("server.tls_cert_file and server.tls_key_file must be set together")
	}
	if c.Server.TLSClientCAFile != "" && c.Server.TLSCertFile == "" {
		return fmt.Errorf("server.tls_client_ca_file requires server.tls_cert_file")
	}
	if c.Server.MaxBodySize < 1024 {
		return fmt.Errorf("server.max_body_size must be at least 1KB")
	}
	if c.Server.ShutdownTimeout < time.Second {
		return fmt.Errorf("server.shutdown_timeout must be at least 1 second")
	}

	if c.Broker.ID == "" {
		return fmt.Errorf("broker.id cannot be empty")
	}
	if c.Broker.DefaultTTL <= 0 {
		return fmt.Errorf("broker.default_ttl must be positive")
	}
	if c.Broker.Reaper.Enabled && c.Broker.Reaper.Interval < 10*time.Millisecond {
		return fmt.Errorf("broker.reaper.interval must be at least 10ms")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: text, json")
	}

	// OpenTelemetry validation (only if enabled)
	if c.Otel.Enabled {
		if c.Otel.Endpoint == "" {
			return fmt.Errorf("otel.endpoint cannot be empty when otel is enabled")
		}
		if c.Otel.ServiceName == "" {
			return fmt.Errorf("otel.service_name cannot be empty when otel is enabled")
		}
		if c.Otel.TraceSampleRate < 0.0 || c.Otel.TraceSampleRate > 1.0 {
			return fmt.Errorf("otel.trace_sample_rate must be between 0.0 and 1.0")
		}
		if c.Otel.MetricsEnabled && c.Otel.ExportInterval < time.Second {
			return fmt.Errorf("otel.export_interval must be at least 1 second")
		}
	}

	// Rate limit validation (only if enabled)
	if c.RateLimit.Enabled {
		if c.RateLimit.Request.Enabled {
			if c.RateLimit.Request.Rate <= 0 || c.RateLimit.Request.Burst < 1 {
				return fmt.Errorf("ratelimit.request rate and burst must be positive")
			}
			if c.RateLimit.Request.CleanupInterval < time.Second {
				return fmt.Errorf("ratelimit.request.cleanup_interval must be at least 1 second")
			}
		}
		if c.RateLimit.Push.Enabled && (c.RateLimit.Push.Rate <= 0 || c.RateLimit.Push.Burst < 1) {
			return fmt.Errorf("ratelimit.push rate and burst must be positive")
		}
		if c.RateLimit.Subscribe.Enabled && (c.RateLimit.Subscribe.Rate <= 0 || c.RateLimit.Subscribe.Burst < 1) {
			return fmt.Errorf("ratelimit.subscribe rate and burst must be positive")
		}
	}

	// Webhook validation (only if enabled)
	if c.Webhook.Enabled {
		if c.Webhook.QueueSize < 100 {
			return fmt.Errorf("webhook.queue_size must be at least 100")
		}
		if c.Webhook.DropPolicy != "oldest" && c.Webhook.DropPolicy != "newest" {
			return fmt.Errorf("webhook.drop_policy must be 'oldest' or 'newest'")
		}
		if c.Webhook.Workers < 1 {
			return fmt.Errorf("webhook.workers must be at least 1")
		}
		if c.Webhook.ShutdownTimeout < time.Second {
			return fmt.Errorf("webhook.shutdown_timeout must be at least 1 second")
		}
		if c.Webhook.Defaults.Timeout < time.Second {
			return fmt.Errorf("webhook.defaults.timeout must be at least 1 second")
		}
		if c.Webhook.Defaults.Retry.MaxAttempts < 1 {
			return fmt.Errorf("webhook.defaults.retry.max_attempts must be at least 1")
		}
		if c.Webhook.Defaults.Retry.Multiplier < 1.0 {
			return fmt.Errorf("webhook.defaults.retry.multiplier must be at least 1.0")
		}
		if c.Webhook.Defaults.CircuitBreaker.FailureThreshold < 1 {
			return fmt.Errorf("webhook.defaults.circuit_breaker.failure_threshold must be at least 1")
		}

		for i, endpoint := range c.Webhook.Endpoints {
			if endpoint.Name == "" {
				return fmt.Errorf("webhook.endpoints[%d].name cannot be empty", i)
			}
			if endpoint.Type != "http" {
				return fmt.Errorf("webhook.endpoints[%d].type must be 'http'", i)
			}
			if endpoint.URL == "" {
				return fmt.Errorf("webhook.endpoints[%d].url cannot be empty", i)
			}
		}
	}

	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
