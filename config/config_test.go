// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.HTTPAddr != "localhost:1000" {
		t.Errorf("expected default HTTP addr localhost:1000, got %s", cfg.Server.HTTPAddr)
	}
	if cfg.Broker.DefaultTTL != 6*time.Second {
		t.Errorf("expected default TTL 6s, got %v", cfg.Broker.DefaultTTL)
	}
	if !cfg.Broker.KeepLastPublisher {
		t.Error("expected keep_last_publisher to be enabled by default")
	}
	if !cfg.Broker.Reaper.Enabled || cfg.Broker.Reaper.Interval != time.Second {
		t.Errorf("expected reaper enabled every 1s, got %+v", cfg.Broker.Reaper)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level info, got %s", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "default config is valid",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "empty HTTP address",
			modify: func(c *Config) {
				c.Server.HTTPAddr = ""
			},
			wantErr: true,
		},
		{
			name: "health enabled without address",
			modify: func(c *Config) {
				c.Server.HealthAddr = ""
			},
			wantErr: true,
		},
		{
			name: "TLS cert without key",
			modify: func(c *Config) {
				c.Server.TLSCertFile = "cert.pem"
			},
			wantErr: true,
		},
		{
			name: "client CA without server cert",
			modify: func(c *Config) {
				c.Server.TLSClientCAFile = "ca.pem"
			},
			wantErr: true,
		},
		{
			name: "zero default TTL",
			modify: func(c *Config) {
				c.Broker.DefaultTTL = 0
			},
			wantErr: true,
		},
		{
			name: "reaper interval too small",
			modify: func(c *Config) {
				c.Broker.Reaper.Interval = time.Millisecond
			},
			wantErr: true,
		},
		{
			name: "disabled reaper ignores interval",
			modify: func(c *Config) {
				c.Broker.Reaper.Enabled = false
				c.Broker.Reaper.Interval = 0
			},
			wantErr: false,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Log.Level = "invalid"
			},
			wantErr: true,
		},
		{
			name: "invalid log format",
			modify: func(c *Config) {
				c.Log.Format = "xml"
			},
			wantErr: true,
		},
		{
			name: "otel sample rate out of range",
			modify: func(c *Config) {
				c.Otel.Enabled = true
				c.Otel.TraceSampleRate = 1.5
			},
			wantErr: true,
		},
		{
			name: "rate limit with zero burst",
			modify: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.Push.Burst = 0
			},
			wantErr: true,
		},
		{
			name: "webhook endpoint without URL",
			modify: func(c *Config) {
				c.Webhook.Enabled = true
				c.Webhook.Endpoints = []WebhookEndpoint{{Name: "audit", Type: "http"}}
			},
			wantErr: true,
		},
		{
			name: "webhook invalid drop policy",
			modify: func(c *Config) {
				c.Webhook.Enabled = true
				c.Webhook.DropPolicy = "random"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadNonExistent(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for nonexistent file, got %v", err)
	}
	if cfg.Server.HTTPAddr != "localhost:1000" {
		t.Errorf("expected default config, got HTTP addr %s", cfg.Server.HTTPAddr)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("QGATE_HTTP_ADDR", ":9000")
	t.Setenv("QGATE_DEFAULT_TTL", "2s")
	t.Setenv("QGATE_KEEP_LAST_PUBLISHER", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.HTTPAddr != ":9000" {
		t.Errorf("expected HTTP addr :9000, got %s", cfg.Server.HTTPAddr)
	}
	if cfg.Broker.DefaultTTL != 2*time.Second {
		t.Errorf("expected default TTL 2s, got %v", cfg.Broker.DefaultTTL)
	}
	if cfg.Broker.KeepLastPublisher {
		t.Error("expected keep_last_publisher override to false")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	// godotenv sets process variables; register cleanup through Setenv first.
	t.Setenv("QGATE_LOG_LEVEL", "")
	os.Unsetenv("QGATE_LOG_LEVEL")

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("QGATE_LOG_LEVEL=debug\n"), 0o644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level from .env, got %s", cfg.Log.Level)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	t.Chdir(t.TempDir())
	file := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(file, []byte("server: [unterminated"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, err := Load(file); err == nil {
		t.Error("expected parse error")
	}
}

func TestSaveLoad(t *testing.T) {
	t.Chdir(t.TempDir())
	tmpfile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpfile.Close()

	cfg := Default()
	cfg.Server.HTTPAddr = ":2000"
	cfg.Broker.DefaultTTL = 15 * time.Second
	cfg.Broker.Reaper.Interval = 250 * time.Millisecond
	cfg.Log.Level = "debug"

	if err := cfg.Save(tmpfile.Name()); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	loaded, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if loaded.Server.HTTPAddr != cfg.Server.HTTPAddr {
		t.Errorf("HTTP addr mismatch: expected %s, got %s", cfg.Server.HTTPAddr, loaded.Server.HTTPAddr)
	}
	if loaded.Broker.DefaultTTL != cfg.Broker.DefaultTTL {
		t.Errorf("default TTL mismatch: expected %v, got %v", cfg.Broker.DefaultTTL, loaded.Broker.DefaultTTL)
	}
	if loaded.Broker.Reaper.Interval != cfg.Broker.Reaper.Interval {
		t.Errorf("reaper interval mismatch: expected %v, got %v", cfg.Broker.Reaper.Interval, loaded.Broker.Reaper.Interval)
	}
	if loaded.Log.Level != cfg.Log.Level {
		t.Errorf("log level mismatch: expected %s, got %s", cfg.Log.Level, loaded.Log.Level)
	}
}
