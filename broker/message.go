// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"slices"
	"time"
)

// DefaultTTL is the message lifetime used when a push does not specify one.
const DefaultTTL = 6 * time.Second

// Message is the record of a single push into a queue.
//
// Recipients is the subscriber set captured at push time. Messages are
// handed out by value; the log keeps its own copy, so the only state
// transition (Active going false once the message expires) is never
// visible through a value a caller already holds.
type Message struct {
	ID         string
	Sender     Client
	Recipients []Client
	Created    time.Time
	Expiry     time.Time
	Payload    string
	Active     bool
	Priority   uint
}

// PushOptions carries the optional parameters of a push.
type PushOptions struct {
	// TTL is the message lifetime. Zero means the queue default.
	TTL time.Duration
	// Priority is stored as metadata only; it never reorders the log.
	Priority uint
}

// Expired reports whether the message expiry is at or before now.
func (m Message) Expired(now time.Time) bool {
	return !m.Expiry.After(now)
}

// TTL returns the lifetime the message was created with.
func (m Message) TTL() time.Duration {
	return m.Expiry.Sub(m.Created)
}

func (m Message) clone() Message {
	m.Recipients = slices.Clone(m.Recipients)
	return m
}
