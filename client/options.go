// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"net/http"
	"time"
)

// Default values.
const (
	DefaultBaseURL = "http://localhost:1000"
	DefaultTimeout = 10 * time.Second
)

// Options configures the queue broker client.
type Options struct {
	BaseURL   string        // Broker API address, e.g. http://localhost:1000
	LocalAddr string        // Optional local host:port to dial from
	Timeout   time.Duration // Per-request timeout

	// HTTPClient replaces the built-in client. The broker identifies callers
	// by their source address, so a custom client should keep a single
	// connection per broker.
	HTTPClient *http.Client
}

// NewOptions creates Options with sensible defaults.
func NewOptions() *Options {
	return &Options{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

// SetBaseURL sets the broker API address.
func (o *Options) SetBaseURL(url string) *Options {
	o.BaseURL = url
	return o
}

// SetLocalAddr pins the local address the client dials from, which is the
// identity the broker sees.
func (o *Options) SetLocalAddr(addr string) *Options {
	o.LocalAddr = addr
	return o
}

// SetTimeout sets the per-request timeout.
func (o *Options) SetTimeout(d time.Duration) *Options {
	o.Timeout = d
	return o
}

// SetHTTPClient sets a custom HTTP client.
func (o *Options) SetHTTPClient(c *http.Client) *Options {
	o.HTTPClient = c
	return o
}

// Validate checks the options for errors.
func (o *Options) Validate() error {
	if o.BaseURL == "" {
		return ErrNoBaseURL
	}
	if o.Timeout < 0 {
		return ErrInvalidTimeout
	}
	return nil
}
