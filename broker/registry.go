// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

type options struct {
	clock             clock.Clock
	defaultTTL        time.Duration
	keepLastPublisher bool
	newID             func() string
}

// Option configures a Registry and the queues it creates.
type Option func(*options)

// WithClock sets the time source used for message timestamps.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithDefaultTTL sets the lifetime of messages pushed without one.
func WithDefaultTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.defaultTTL = d
		}
	}
}

// WithKeepLastPublisher controls whether the last publisher of a queue
// may be removed. It is enabled by default.
func WithKeepLastPublisher(keep bool) Option {
	return func(o *options) {
		o.keepLastPublisher = keep
	}
}

// WithIDGenerator overrides the message ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// Registry owns every queue, keyed by unique name.
type Registry struct {
	opts *options

	mu     sync.RWMutex
	queues map[string]*Queue
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	o := &options{
		clock:             clock.New(),
		defaultTTL:        DefaultTTL,
		keepLastPublisher: true,
		newID:             uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Registry{
		opts:   o,
		queues: make(map[string]*Queue),
	}
}

// Create adds a new queue with creator as its only publisher and returns a
// view of it. It fails with ErrQueueExists if the name is taken.
func (r *Registry) Create(name string, creator Client) (QueueView, error) {
	q := newQueue(name, creator, r.opts)
	view := q.View()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.queues[name]; exists {
		return QueueView{}, errQueueExists(name)
	}
	r.queues[name] = q

	return view, nil
}

// Lookup returns the queue with the given name.
func (r *Registry) Lookup(name string) (*Queue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.queues[name]
	return q, ok
}

// Snapshot returns a view of every queue. Each view is taken under its
// queue's own lock; the result is not an atomic picture of the registry.
func (r *Registry) Snapshot() map[string]QueueView {
	qs := r.list()
	out := make(map[string]QueueView, len(qs))
	for _, q := range qs {
		out[q.name] = q.View()
	}
	return out
}

// Names returns the queue names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.queues))
	for name := range r.queues {
		names = append(names, name)
	}
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

// Len returns the number of queues.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.queues)
}

// Now returns the current time of the registry clock.
func (r *Registry) Now() time.Time {
	return r.opts.clock.Now()
}

// list returns the queues ordered by name. The registry lock is released
// before the caller touches any queue.
func (r *Registry) list() []*Queue {
	r.mu.RLock()
	qs := make([]*Queue, 0, len(r.queues))
	for _, q := range r.queues {
		qs = append(qs, q)
	}
	r.mu.RUnlock()

	slices.SortFunc(qs, func(a, b *Queue) int {
		return strings.Compare(a.name, b.name)
	})
	return qs
}
