// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"sync/atomic"
	"time"
)

// Stats tracks broker activity counters.
type Stats struct {
	startTime time.Time

	// Queue stats
	queuesCreated atomic.Uint64

	// Membership stats
	subscriptions     atomic.Uint64
	unsubscriptions   atomic.Uint64
	publishersAdded   atomic.Uint64
	publishersRemoved atomic.Uint64

	// Message stats
	messagesPushed  atomic.Uint64
	messagesExpired atomic.Uint64
	bytesPushed     atomic.Uint64

	// Error stats
	conflictErrors      atomic.Uint64
	notFoundErrors      atomic.Uint64
	notPublisherErrors  atomic.Uint64
	notSubscribedErrors atomic.Uint64
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{
		startTime: time.Now(),
	}
}

// Queue tracking.
func (s *Stats) IncrementQueuesCreated() {
	s.queuesCreated.Add(1)
}

func (s *Stats) GetQueuesCreated() uint64 {
	return s.queuesCreated.Load()
}

// Membership tracking.
func (s *Stats) IncrementSubscriptions() {
	s.subscriptions.Add(1)
}

func (s *Stats) IncrementUnsubscriptions() {
	s.unsubscriptions.Add(1)
}

func (s *Stats) IncrementPublishersAdded() {
	s.publishersAdded.Add(1)
}

func (s *Stats) IncrementPublishersRemoved() {
	s.publishersRemoved.Add(1)
}

func (s *Stats) GetSubscriptions() uint64 {
	return s.subscriptions.Load()
}

func (s *Stats) GetUnsubscriptions() uint64 {
	return s.unsubscriptions.Load()
}

func (s *Stats) GetPublishersAdded() uint64 {
	return s.publishersAdded.Load()
}

func (s *Stats) GetPublishersRemoved() uint64 {
	return s.publishersRemoved.Load()
}

// Message tracking.
func (s *Stats) IncrementMessagesPushed(size int) {
	s.messagesPushed.Add(1)
	s.bytesPushed.Add(uint64(size))
}

func (s *Stats) AddMessagesExpired(n int) {
	s.messagesExpired.Add(uint64(n))
}

func (s *Stats) GetMessagesPushed() uint64 {
	return s.messagesPushed.Load()
}

func (s *Stats) GetMessagesExpired() uint64 {
	return s.messagesExpired.Load()
}

func (s *Stats) GetBytesPushed() uint64 {
	return s.bytesPushed.Load()
}

// IncrementErrors counts a failed operation by kind. Errors that are not
// broker errors are ignored.
func (s *Stats) IncrementErrors(err error) {
	switch KindOf(err) {
	case KindConflict:
		s.conflictErrors.Add(1)
	case KindNotFound:
		s.notFoundErrors.Add(1)
	case KindNotPublisher:
		s.notPublisherErrors.Add(1)
	case KindNotSubscribed:
		s.notSubscribedErrors.Add(1)
	}
}

func (s *Stats) GetErrors(kind Kind) uint64 {
	switch kind {
	case KindConflict:
		return s.conflictErrors.Load()
	case KindNotFound:
		return s.notFoundErrors.Load()
	case KindNotPublisher:
		return s.notPublisherErrors.Load()
	case KindNotSubscribed:
		return s.notSubscribedErrors.Load()
	}
	return 0
}

// Uptime returns how long the stats have been collected.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Snapshot is a serializable copy of all counters.
type Snapshot struct {
	UptimeSeconds       int64  `json:"uptime_seconds"`
	QueuesCreated       uint64 `json:"queues_created"`
	Subscriptions       uint64 `json:"subscriptions"`
	Unsubscriptions     uint64 `json:"unsubscriptions"`
	PublishersAdded     uint64 `json:"publishers_added"`
	PublishersRemoved   uint64 `json:"publishers_removed"`
	MessagesPushed      uint64 `json:"messages_pushed"`
	MessagesExpired     uint64 `json:"messages_expired"`
	BytesPushed         uint64 `json:"bytes_pushed"`
	ConflictErrors      uint64 `json:"conflict_errors"`
	NotFoundErrors      uint64 `json:"not_found_errors"`
	NotPublisherErrors  uint64 `json:"not_publisher_errors"`
	NotSubscribedErrors uint64 `json:"not_subscribed_errors"`
}

// Snapshot returns the current value of every counter.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		UptimeSeconds:       int64(s.Uptime().Seconds()),
		QueuesCreated:       s.GetQueuesCreated(),
		Subscriptions:       s.GetSubscriptions(),
		Unsubscriptions:     s.GetUnsubscriptions(),
		PublishersAdded:     s.GetPublishersAdded(),
		PublishersRemoved:   s.GetPublishersRemoved(),
		MessagesPushed:      s.GetMessagesPushed(),
		MessagesExpired:     s.GetMessagesExpired(),
		BytesPushed:         s.GetBytesPushed(),
		ConflictErrors:      s.conflictErrors.Load(),
		NotFoundErrors:      s.notFoundErrors.Load(),
		NotPublisherErrors:  s.notPublisherErrors.Load(),
		NotSubscribedErrors: s.notSubscribedErrors.Load(),
	}
}
