// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

// ClientLog is the cross-queue view of one client.
type ClientLog struct {
	Publisher  []string
	Subscriber []string
	Messages   []Message
}

// Aggregator builds per-client views by scanning a registry.
//
// Queues are read one at a time under their own locks, so a scan that runs
// concurrently with mutations may mix earlier and later states of
// different queues.
type Aggregator struct {
	registry *Registry
}

// NewAggregator returns an aggregator over r.
func NewAggregator(r *Registry) *Aggregator {
	return &Aggregator{registry: r}
}

// PublisherOf returns the names of the queues c may push to.
func (a *Aggregator) PublisherOf(c Client) []string {
	names := []string{}
	for _, q := range a.registry.list() {
		if q.IsPublisher(c) {
			names = append(names, q.name)
		}
	}
	return names
}

// SubscriberOf returns the names of the queues c is subscribed to.
func (a *Aggregator) SubscriberOf(c Client) []string {
	names := []string{}
	for _, q := range a.registry.list() {
		if q.IsSubscriber(c) {
			names = append(names, q.name)
		}
	}
	return names
}

// MessagesOf returns every message sent by c, grouped by queue name and in
// push order within a queue.
func (a *Aggregator) MessagesOf(c Client) []Message {
	msgs := []Message{}
	for _, q := range a.registry.list() {
		msgs = append(msgs, q.sentBy(c)...)
	}
	return msgs
}

// Log combines PublisherOf, SubscriberOf and MessagesOf.
func (a *Aggregator) Log(c Client) ClientLog {
	return ClientLog{
		Publisher:  a.PublisherOf(c),
		Subscriber: a.SubscriberOf(c),
		Messages:   a.MessagesOf(c),
	}
}
