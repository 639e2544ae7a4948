// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit throttles HTTP callers of the queue broker, per source IP
// for every request and per client identity for push and subscribe.
package ratelimit

import (
	"net"
	"sync"
	"time"

	"github.com/absmach/qgate/config"
	"golang.org/x/time/rate"
)

const defaultCleanupInterval = 5 * time.Minute

// Limiter keeps one token bucket per key. Keys idle for two cleanup
// intervals are forgotten.
type Limiter struct {
	mu       sync.Mutex
	entries  map[string]*entry
	rate     rate.Limit
	burst    int
	cleanup  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a keyed limiter allowing r events per second with
// the given burst, and starts its cleanup goroutine.
func NewLimiter(r float64, burst int, cleanupInterval time.Duration) *Limiter {
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	}
	l := &Limiter{
		entries: make(map[string]*entry),
		rate:    rate.Limit(r),
		burst:   burst,
		cleanup: cleanupInterval,
		stopCh:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.cleanupLoop()
	return l
}

// Allow reports whether an event for key may happen now.
func (l *Limiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	limiter := e.limiter
	l.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Forget drops the bucket for key.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

func (l *Limiter) cleanupLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cleanup)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			l.removeStale(now)
		case <-l.stopCh:
			return
		}
	}
}

func (l *Limiter) removeStale(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := now.Add(-2 * l.cleanup)
	for key, e := range l.entries {
		if e.lastSeen.Before(threshold) {
			delete(l.entries, key)
		}
	}
}

// Stop stops the cleanup goroutine and waits for it to exit.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}

// Manager coordinates the request, push and subscribe limiters.
// A nil Manager, like a disabled limiter, always allows.
type Manager struct {
	requests      *Limiter
	pushes        *Limiter
	subscriptions *Limiter
}

// NewManager creates a new rate limit manager. A disabled configuration
// yields a manager that allows everything.
func NewManager(cfg config.RateLimitConfig) *Manager {
	m := &Manager{}
	if !cfg.Enabled {
		return m
	}

	cleanup := cfg.Request.CleanupInterval
	if cfg.Request.Enabled {
		m.requests = NewLimiter(cfg.Request.Rate, cfg.Request.Burst, cleanup)
	}
	if cfg.Push.Enabled {
		m.pushes = NewLimiter(cfg.Push.Rate, cfg.Push.Burst, cleanup)
	}
	if cfg.Subscribe.Enabled {
		m.subscriptions = NewLimiter(cfg.Subscribe.Rate, cfg.Subscribe.Burst, cleanup)
	}
	return m
}

// AllowRequest checks an incoming request by its remote address.
func (m *Manager) AllowRequest(remoteAddr string) bool {
	if m == nil || m.requests == nil {
		return true
	}
	ip := hostOf(remoteAddr)
	if ip == "" {
		return true
	}
	return m.requests.Allow(ip)
}

// AllowPush checks a push by the sending client's identity.
func (m *Manager) AllowPush(client string) bool {
	if m == nil || m.pushes == nil {
		return true
	}
	return m.pushes.Allow(client)
}

// AllowSubscribe checks a subscribe by the client's identity.
func (m *Manager) AllowSubscribe(client string) bool {
	if m == nil || m.subscriptions == nil {
		return true
	}
	return m.subscriptions.Allow(client)
}

// Stop stops all cleanup goroutines.
func (m *Manager) Stop() {
	if m == nil {
		return
	}
	for _, l := range []*Limiter{m.requests, m.pushes, m.subscriptions} {
		if l != nil {
			l.Stop()
		}
	}
}

// hostOf extracts the host part of a host:port address.
func hostOf(addr string) string {
	if addr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
