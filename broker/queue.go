// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"sync"
	"time"
)

// QueueView is a point-in-time copy of a queue.
type QueueView struct {
	Name        string
	Publishers  []Client
	Subscribers []Client
	Messages    []Message
}

// Queue holds the membership and message log of one named queue.
//
// Every operation runs entirely under the queue's own lock, so concurrent
// callers on the same queue are serialized while different queues never
// contend. Queues are created by Registry.Create only.
type Queue struct {
	name string
	opts *options

	mu          sync.RWMutex
	publishers  members
	subscribers members
	messages    []Message
}

func newQueue(name string, creator Client, opts *options) *Queue {
	return &Queue{
		name:        name,
		opts:        opts,
		publishers:  newMembers(creator),
		subscribers: newMembers(),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Subscribe adds c to the subscriber set and returns the new set.
func (q *Queue) Subscribe(c Client) ([]Client, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.subscribers.add(c) {
		return nil, errAlreadySubscribed(q.name, c)
	}
	return q.subscribers.list(), nil
}

// Unsubscribe removes c from the subscriber set and returns the new set.
func (q *Queue) Unsubscribe(c Client) ([]Client, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.subscribers.remove(c) {
		return nil, errNotSubscribed(q.name, c)
	}
	return q.subscribers.list(), nil
}

// AddPublisher adds c to the publisher set and returns the new set.
func (q *Queue) AddPublisher(c Client) ([]Client, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.publishers.add(c) {
		return nil, errAlreadyPublisher(q.name, c)
	}
	return q.publishers.list(), nil
}

// RemovePublisher removes c from the publisher set and returns the new set.
// When the registry keeps the last publisher, removing the only remaining
// publisher fails with ErrLastPublisher.
func (q *Queue) RemovePublisher(c Client) ([]Client, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.publishers.has(c) {
		return nil, errNotPublisher(q.name, c)
	}
	if q.opts.keepLastPublisher && q.publishers.len() == 1 {
		return nil, errLastPublisher(q.name, c)
	}
	q.publishers.remove(c)
	return q.publishers.list(), nil
}

// Push appends a message from sender to the log. The message recipients are
// the subscribers at the time of the call.
func (q *Queue) Push(payload string, sender Client, opts PushOptions) (Message, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = q.opts.defaultTTL
	}
	id := q.opts.newID()

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.publishers.has(sender) {
		return Message{}, errNotPublisher(q.name, sender)
	}

	now := q.opts.clock.Now()
	msg := Message{
		ID:         id,
		Sender:     sender,
		Recipients: q.subscribers.list(),
		Created:    now,
		Expiry:     now.Add(ttl),
		Payload:    payload,
		Active:     true,
		Priority:   opts.Priority,
	}
	q.messages = append(q.messages, msg)

	return msg.clone(), nil
}

// View returns a snapshot of the whole queue.
func (q *Queue) View() QueueView {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return QueueView{
		Name:        q.name,
		Publishers:  q.publishers.list(),
		Subscribers: q.subscribers.list(),
		Messages:    q.messagesLocked(),
	}
}

// Publishers returns a copy of the publisher set.
func (q *Queue) Publishers() []Client {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.publishers.list()
}

// Subscribers returns a copy of the subscriber set.
func (q *Queue) Subscribers() []Client {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.subscribers.list()
}

// Messages returns a copy of the message log in push order.
func (q *Queue) Messages() []Message {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.messagesLocked()
}

// Len returns the number of messages in the log.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.messages)
}

// IsPublisher reports whether c may push to the queue.
func (q *Queue) IsPublisher(c Client) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.publishers.has(c)
}

// IsSubscriber reports whether c is in the subscriber set.
func (q *Queue) IsSubscriber(c Client) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.subscribers.has(c)
}

// sentBy returns copies of the messages pushed by c.
func (q *Queue) sentBy(c Client) []Message {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []Message
	for _, m := range q.messages {
		if m.Sender == c {
			out = append(out, m.clone())
		}
	}
	return out
}

// expire marks every active message whose expiry is at or before now as
// inactive and returns copies of the messages it changed.
func (q *Queue) expire(now time.Time) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	var expired []Message
	for i := range q.messages {
		m := &q.messages[i]
		if m.Active && m.Expired(now) {
			m.Active = false
			expired = append(expired, m.clone())
		}
	}
	return expired
}

func (q *Queue) messagesLocked() []Message {
	out := make([]Message, len(q.messages))
	for i, m := range q.messages {
		out[i] = m.clone()
	}
	return out
}
