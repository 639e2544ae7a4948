// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		typ   string
	}{
		{"queue created", QueueCreated{QueueName: "q", Creator: "127.0.0.1:1"}, TypeQueueCreated},
		{"subscribed", Subscribed{QueueName: "q", Client: "127.0.0.1:1", Subscribers: 1}, TypeSubscribed},
		{"unsubscribed", Unsubscribed{QueueName: "q", Client: "127.0.0.1:1"}, TypeUnsubscribed},
		{"publisher added", PublisherAdded{QueueName: "q", Client: "127.0.0.1:1", Publishers: 2}, TypePublisherAdded},
		{"publisher removed", PublisherRemoved{QueueName: "q", Client: "127.0.0.1:1", Publishers: 1}, TypePublisherRemoved},
		{"message pushed", MessagePushed{QueueName: "q", MessageID: "m"}, TypeMessagePushed},
		{"message expired", MessageExpired{QueueName: "q", MessageID: "m"}, TypeMessageExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := tt.event.Wrap("broker-1")

			assert.Equal(t, tt.typ, env.EventType)
			assert.Equal(t, "q", tt.event.Queue())
			assert.Equal(t, "broker-1", env.BrokerID)
			assert.NotEmpty(t, env.EventID)
			_, err := time.Parse(time.RFC3339Nano, env.Timestamp)
			assert.NoError(t, err)
		})
	}
}

func TestEnvelopeJSON(t *testing.T) {
	expiry := time.Date(2024, 3, 1, 12, 0, 6, 0, time.UTC)
	ev := MessagePushed{
		QueueName:   "orders",
		MessageID:   "m-1",
		Sender:      "127.0.0.1:5000",
		Recipients:  2,
		Priority:    1,
		Expiry:      expiry,
		PayloadSize: 5,
	}

	data, err := json.Marshal(ev.Wrap("broker-1"))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, TypeMessagePushed, got["event_type"])
	assert.Equal(t, "broker-1", got["broker_id"])

	body, ok := got["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "orders", body["queue"])
	assert.Equal(t, "m-1", body["message_id"])
	assert.EqualValues(t, 2, body["recipients"])
	assert.Equal(t, "2024-03-01T12:00:06Z", body["expiry"])
	assert.NotContains(t, body, "payload")

	ev.Payload = "hello"
	data, err = json.Marshal(ev.Wrap("broker-1"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"payload":"hello"`)
}

func TestEventIDsUnique(t *testing.T) {
	ev := QueueCreated{QueueName: "q"}
	assert.NotEqual(t, ev.Wrap("b").EventID, ev.Wrap("b").EventID)
}
