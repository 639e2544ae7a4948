// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"log/slog"

	"github.com/absmach/qgate/broker/events"
)

// Notifier receives lifecycle events. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, event events.Event) error
}

// Service is the typed operation surface used by the request layer.
// Every call is keyed by the calling client and fully validated input.
type Service interface {
	// CreateQueue registers a new queue with creator as its only publisher.
	CreateQueue(ctx context.Context, creator Client, name string) (QueueView, error)

	// Queue returns a view of the named queue.
	Queue(ctx context.Context, name string) (QueueView, error)

	// Queues returns a view of every queue keyed by name.
	Queues(ctx context.Context) map[string]QueueView

	// Subscribe adds c to the subscribers of the named queue.
	Subscribe(ctx context.Context, c Client, name string) ([]Client, error)

	// Unsubscribe removes c from the subscribers of the named queue.
	Unsubscribe(ctx context.Context, c Client, name string) ([]Client, error)

	// AddPublisher allows c to push to the named queue.
	AddPublisher(ctx context.Context, c Client, name string) ([]Client, error)

	// RemovePublisher revokes the push right of c on the named queue.
	RemovePublisher(ctx context.Context, c Client, name string) ([]Client, error)

	// Push appends a message from sender to the named queue.
	Push(ctx context.Context, sender Client, name, payload string, opts PushOptions) (Message, error)

	// ClientLog returns the cross-queue view of c.
	ClientLog(ctx context.Context, c Client) ClientLog
}

var _ Service = (*service)(nil)

type service struct {
	registry   *Registry
	aggregator *Aggregator
	notifier   Notifier
	logger     *slog.Logger
}

// NewService returns a Service backed by r. The notifier is optional.
func NewService(r *Registry, notifier Notifier, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &service{
		registry:   r,
		aggregator: NewAggregator(r),
		notifier:   notifier,
		logger:     logger,
	}
}

func (s *service) CreateQueue(ctx context.Context, creator Client, name string) (QueueView, error) {
	view, err := s.registry.Create(name, creator)
	if err != nil {
		return QueueView{}, err
	}

	s.notify(ctx, events.QueueCreated{QueueName: name, Creator: creator.String()})
	return view, nil
}

func (s *service) Queue(ctx context.Context, name string) (QueueView, error) {
	q, err := s.lookup(name)
	if err != nil {
		return QueueView{}, err
	}
	return q.View(), nil
}

func (s *service) Queues(ctx context.Context) map[string]QueueView {
	return s.registry.Snapshot()
}

func (s *service) Subscribe(ctx context.Context, c Client, name string) ([]Client, error) {
	q, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	subs, err := q.Subscribe(c)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, events.Subscribed{QueueName: name, Client: c.String(), Subscribers: len(subs)})
	return subs, nil
}

func (s *service) Unsubscribe(ctx context.Context, c Client, name string) ([]Client, error) {
	q, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	subs, err := q.Unsubscribe(c)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, events.Unsubscribed{QueueName: name, Client: c.String(), Subscribers: len(subs)})
	return subs, nil
}

func (s *service) AddPublisher(ctx context.Context, c Client, name string) ([]Client, error) {
	q, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	pubs, err := q.AddPublisher(c)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, events.PublisherAdded{QueueName: name, Client: c.String(), Publishers: len(pubs)})
	return pubs, nil
}

func (s *service) RemovePublisher(ctx context.Context, c Client, name string) ([]Client, error) {
	q, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	pubs, err := q.RemovePublisher(c)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, events.PublisherRemoved{QueueName: name, Client: c.String(), Publishers: len(pubs)})
	return pubs, nil
}

func (s *service) Push(ctx context.Context, sender Client, name, payload string, opts PushOptions) (Message, error) {
	q, err := s.lookup(name)
	if err != nil {
		return Message{}, err
	}
	msg, err := q.Push(payload, sender, opts)
	if err != nil {
		return Message{}, err
	}

	s.notify(ctx, events.MessagePushed{
		QueueName:   name,
		MessageID:   msg.ID,
		Sender:      sender.String(),
		Recipients:  len(msg.Recipients),
		Priority:    msg.Priority,
		Expiry:      msg.Expiry,
		PayloadSize: len(msg.Payload),
		Payload:     msg.Payload,
	})
	return msg, nil
}

func (s *service) ClientLog(ctx context.Context, c Client) ClientLog {
	return s.aggregator.Log(c)
}

func (s *service) lookup(name string) (*Queue, error) {
	q, ok := s.registry.Lookup(name)
	if !ok {
		return nil, errQueueNotFound(name)
	}
	return q, nil
}

func (s *service) notify(ctx context.Context, ev events.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Warn("event notification failed",
			slog.String("event_type", ev.Type()),
			slog.String("queue", ev.Queue()),
			slog.String("error", err.Error()))
	}
}
