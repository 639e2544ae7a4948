// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package client is a Go client for the queue broker HTTP API.
//
// The broker identifies callers by the source address of the connection,
// so each Client keeps exactly one connection to the broker and every call
// made through it acts as the same identity.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
)

const maxErrorBody = 64 * 1024

// Client talks to one broker as one identity.
type Client struct {
	opts    *Options
	baseURL string
	http    *http.Client
}

// New creates a new client.
func New(opts *Options) (*Client, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	hc := opts.HTTPClient
	if hc == nil {
		tr, err := newTransport(opts.LocalAddr)
		if err != nil {
			return nil, err
		}
		hc = &http.Client{Transport: tr, Timeout: opts.Timeout}
	}

	return &Client{
		opts:    opts,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
	}, nil
}

func newTransport(localAddr string) (http.RoundTripper, error) {
	dialer := &net.Dialer{Timeout: DefaultTimeout, KeepAlive: 30 * time.Second}
	if localAddr != "" {
		addr, err := net.ResolveTCPAddr("tcp", localAddr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidLocal, err)
		}
		dialer.LocalAddr = addr
	}

	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxConnsPerHost:     1,
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     90 * time.Second,
	}
	return gzhttp.Transport(tr), nil
}

// Close releases the connection held by the client. The next call opens a
// new one, which the broker sees as a different identity unless a local
// address is pinned.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// Queues returns every queue keyed by name.
func (c *Client) Queues(ctx context.Context) (map[string]Queue, error) {
	var out map[string]Queue
	err := c.do(ctx, http.MethodGet, "/", nil, &out)
	return out, err
}

// Queue returns the named queue.
func (c *Client) Queue(ctx context.Context, name string) (Queue, error) {
	var out Queue
	err := c.do(ctx, http.MethodGet, "/queues/"+url.PathEscape(name), nil, &out)
	return out, err
}

// UserLog returns the queues the caller publishes or subscribes to and the
// messages it sent.
func (c *Client) UserLog(ctx context.Context) (UserLog, error) {
	var out UserLog
	err := c.do(ctx, http.MethodGet, "/user_log", nil, &out)
	return out, err
}

// NewQueue creates a queue with the caller as its only publisher and
// returns every queue.
func (c *Client) NewQueue(ctx context.Context, name string) (map[string]Queue, error) {
	var out map[string]Queue
	err := c.do(ctx, http.MethodPost, "/new_queue", queueRequest{Name: name}, &out)
	return out, err
}

// Subscribe joins the subscribers of a queue and returns the new set.
func (c *Client) Subscribe(ctx context.Context, name string) ([]Identity, error) {
	return c.members(ctx, "/sub", name)
}

// Unsubscribe leaves the subscribers of a queue and returns the new set.
func (c *Client) Unsubscribe(ctx context.Context, name string) ([]Identity, error) {
	return c.members(ctx, "/unsub", name)
}

// AddPublisher registers the caller as a publisher and returns the new set.
func (c *Client) AddPublisher(ctx context.Context, name string) ([]Identity, error) {
	return c.members(ctx, "/pub", name)
}

// RemovePublisher revokes the caller's push right and returns the new set.
func (c *Client) RemovePublisher(ctx context.Context, name string) ([]Identity, error) {
	return c.members(ctx, "/unpub", name)
}

// Push sends data to a queue the caller publishes to.
func (c *Client) Push(ctx context.Context, name, data string, opts ...PushOption) (Message, error) {
	req := pushRequest{Name: name, Data: data}
	for _, opt := range opts {
		opt(&req)
	}

	var out Message
	err := c.do(ctx, http.MethodPost, "/push", req, &out)
	return out, err
}

func (c *Client) members(ctx context.Context, path, name string) ([]Identity, error) {
	var out []Identity
	err := c.do(ctx, http.MethodPost, path, queueRequest{Name: name}, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		// Drain so the connection, and with it the identity, is reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var er errorResponse
	if err := json.Unmarshal(data, &er); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Kind = er.Kind
	apiErr.Message = er.Message
	return apiErr
}

// IsKind reports whether err is a broker reply of the given kind.
func IsKind(err error, kind string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}
