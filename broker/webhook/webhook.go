// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package webhook delivers broker lifecycle events to operator endpoints.
package webhook

import (
	"context"
	"path"
	"time"

	"github.com/absmach/qgate/broker/events"
)

// Sender is the protocol-specific sender interface.
type Sender interface {
	// Send delivers a webhook payload to the specified URL.
	Send(ctx context.Context, url string, headers map[string]string, payload []byte, timeout time.Duration) error
}

// queueMatches reports whether queue matches any of the glob filters.
// An empty filter list matches every queue.
func queueMatches(filters []string, queue string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if ok, err := path.Match(f, queue); err == nil && ok {
			return true
		}
	}
	return false
}

// redact drops message payloads from events.
func redact(ev events.Event) events.Event {
	if p, ok := ev.(events.MessagePushed); ok && p.Payload != "" {
		p.Payload = ""
		return p
	}
	return ev
}
