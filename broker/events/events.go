// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants.
const (
	TypeQueueCreated     = "queue.created"
	TypeSubscribed       = "queue.subscribed"
	TypeUnsubscribed     = "queue.unsubscribed"
	TypePublisherAdded   = "queue.publisher_added"
	TypePublisherRemoved = "queue.publisher_removed"
	TypeMessagePushed    = "message.pushed"
	TypeMessageExpired   = "message.expired"
)

// Event is the common interface for all lifecycle events.
type Event interface {
	// Type returns the event type identifier (e.g., "queue.created")
	Type() string

	// Queue returns the name of the queue the event belongs to
	Queue() string

	// Wrap wraps the event in a common envelope with metadata
	Wrap(brokerID string) *Envelope
}

// Envelope is the common wrapper for all events.
type Envelope struct {
	EventType string `json:"event_type"`
	EventID   string `json:"event_id"`
	Timestamp string `json:"timestamp"`
	BrokerID  string `json:"broker_id"`
	Data      any    `json:"data"`
}

// MarshalJSON serializes the envelope to JSON.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	type envelope Envelope
	return json.Marshal((*envelope)(e))
}

func wrap(e Event, brokerID string) *Envelope {
	return &Envelope{
		EventType: e.Type(),
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		BrokerID:  brokerID,
		Data:      e,
	}
}

// QueueCreated is emitted when a new queue is registered.
type QueueCreated struct {
	QueueName string `json:"queue"`
	Creator   string `json:"creator"`
}

func (e QueueCreated) Type() string                   { return TypeQueueCreated }
func (e QueueCreated) Queue() string                  { return e.QueueName }
func (e QueueCreated) Wrap(brokerID string) *Envelope { return wrap(e, brokerID) }

// Subscribed is emitted when a client joins the subscriber set of a queue.
type Subscribed struct {
	QueueName   string `json:"queue"`
	Client      string `json:"client"`
	Subscribers int    `json:"subscribers"`
}

func (e Subscribed) Type() string                   { return TypeSubscribed }
func (e Subscribed) Queue() string                  { return e.QueueName }
func (e Subscribed) Wrap(brokerID string) *Envelope { return wrap(e, brokerID) }

// Unsubscribed is emitted when a client leaves the subscriber set of a queue.
type Unsubscribed struct {
	QueueName   string `json:"queue"`
	Client      string `json:"client"`
	Subscribers int    `json:"subscribers"`
}

func (e Unsubscribed) Type() string                   { return TypeUnsubscribed }
func (e Unsubscribed) Queue() string                  { return e.QueueName }
func (e Unsubscribed) Wrap(brokerID string) *Envelope { return wrap(e, brokerID) }

// PublisherAdded is emitted when a client is allowed to push to a queue.
type PublisherAdded struct {
	QueueName  string `json:"queue"`
	Client     string `json:"client"`
	Publishers int    `json:"publishers"`
}

func (e PublisherAdded) Type() string                   { return TypePublisherAdded }
func (e PublisherAdded) Queue() string                  { return e.QueueName }
func (e PublisherAdded) Wrap(brokerID string) *Envelope { return wrap(e, brokerID) }

// PublisherRemoved is emitted when a client loses push rights on a queue.
type PublisherRemoved struct {
	QueueName  string `json:"queue"`
	Client     string `json:"client"`
	Publishers int    `json:"publishers"`
}

func (e PublisherRemoved) Type() string                   { return TypePublisherRemoved }
func (e PublisherRemoved) Queue() string                  { return e.QueueName }
func (e PublisherRemoved) Wrap(brokerID string) *Envelope { return wrap(e, brokerID) }

// MessagePushed is emitted when a message is appended to a queue log.
type MessagePushed struct {
	QueueName   string    `json:"queue"`
	MessageID   string    `json:"message_id"`
	Sender      string    `json:"sender"`
	Recipients  int       `json:"recipients"`
	Priority    uint      `json:"priority"`
	Expiry      time.Time `json:"expiry"`
	PayloadSize int       `json:"payload_size"`
	Payload     string    `json:"payload,omitempty"` // only when include_payload is set
}

func (e MessagePushed) Type() string                   { return TypeMessagePushed }
func (e MessagePushed) Queue() string                  { return e.QueueName }
func (e MessagePushed) Wrap(brokerID string) *Envelope { return wrap(e, brokerID) }

// MessageExpired is emitted when the reaper marks a message inactive.
type MessageExpired struct {
	QueueName string    `json:"queue"`
	MessageID string    `json:"message_id"`
	Sender    string    `json:"sender"`
	Expiry    time.Time `json:"expiry"`
}

func (e MessageExpired) Type() string                   { return TypeMessageExpired }
func (e MessageExpired) Queue() string                  { return e.QueueName }
func (e MessageExpired) Wrap(brokerID string) *Envelope { return wrap(e, brokerID) }
