// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"time"

	"github.com/absmach/qgate/broker"
	"github.com/absmach/qgate/server/otel"
)

var _ broker.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	stats   *broker.Stats
	metrics *otel.Metrics
	svc     broker.Service
}

// NewMetrics creates metrics middleware that wraps a broker service.
// The OpenTelemetry instruments are optional.
func NewMetrics(svc broker.Service, stats *broker.Stats, metrics *otel.Metrics) broker.Service {
	return &metricsMiddleware{stats, metrics, svc}
}

// CreateQueue wraps the call with queue metrics.
func (mm *metricsMiddleware) CreateQueue(ctx context.Context, creator broker.Client, name string) (broker.QueueView, error) {
	defer mm.observe(ctx, "create_queue", time.Now())

	view, err := mm.svc.CreateQueue(ctx, creator, name)
	if err != nil {
		mm.fail(ctx, "create_queue", err)
		return view, err
	}
	mm.stats.IncrementQueuesCreated()
	mm.metrics.RecordQueueCreated(ctx)
	return view, nil
}

func (mm *metricsMiddleware) Queue(ctx context.Context, name string) (broker.QueueView, error) {
	defer mm.observe(ctx, "queue", time.Now())

	view, err := mm.svc.Queue(ctx, name)
	if err != nil {
		mm.fail(ctx, "queue", err)
	}
	return view, err
}

func (mm *metricsMiddleware) Queues(ctx context.Context) map[string]broker.QueueView {
	defer mm.observe(ctx, "queues", time.Now())

	return mm.svc.Queues(ctx)
}

// Subscribe wraps the call with subscription metrics.
func (mm *metricsMiddleware) Subscribe(ctx context.Context, c broker.Client, name string) ([]broker.Client, error) {
	defer mm.observe(ctx, "subscribe", time.Now())

	subs, err := mm.svc.Subscribe(ctx, c, name)
	if err != nil {
		mm.fail(ctx, "subscribe", err)
		return subs, err
	}
	mm.stats.IncrementSubscriptions()
	mm.metrics.RecordSubscribers(ctx, 1)
	return subs, nil
}

// Unsubscribe wraps the call with subscription metrics.
func (mm *metricsMiddleware) Unsubscribe(ctx context.Context, c broker.Client, name string) ([]broker.Client, error) {
	defer mm.observe(ctx, "unsubscribe", time.Now())

	subs, err := mm.svc.Unsubscribe(ctx, c, name)
	if err != nil {
		mm.fail(ctx, "unsubscribe", err)
		return subs, err
	}
	mm.stats.IncrementUnsubscriptions()
	mm.metrics.RecordSubscribers(ctx, -1)
	return subs, nil
}

func (mm *metricsMiddleware) AddPublisher(ctx context.Context, c broker.Client, name string) ([]broker.Client, error) {
	defer mm.observe(ctx, "add_publisher", time.Now())

	pubs, err := mm.svc.AddPublisher(ctx, c, name)
	if err != nil {
		mm.fail(ctx, "add_publisher", err)
		return pubs, err
	}
	mm.stats.IncrementPublishersAdded()
	mm.metrics.RecordPublishers(ctx, 1)
	return pubs, nil
}

func (mm *metricsMiddleware) RemovePublisher(ctx context.Context, c broker.Client, name string) ([]broker.Client, error) {
	defer mm.observe(ctx, "remove_publisher", time.Now())

	pubs, err := mm.svc.RemovePublisher(ctx, c, name)
	if err != nil {
		mm.fail(ctx, "remove_publisher", err)
		return pubs, err
	}
	mm.stats.IncrementPublishersRemoved()
	mm.metrics.RecordPublishers(ctx, -1)
	return pubs, nil
}

// Push wraps the call with message metrics.
func (mm *metricsMiddleware) Push(ctx context.Context, sender broker.Client, name, payload string, opts broker.PushOptions) (broker.Message, error) {
	defer mm.observe(ctx, "push", time.Now())

	msg, err := mm.svc.Push(ctx, sender, name, payload, opts)
	if err != nil {
		mm.fail(ctx, "push", err)
		return msg, err
	}
	mm.stats.IncrementMessagesPushed(len(payload))
	mm.metrics.RecordPush(ctx, name, len(payload))
	return msg, nil
}

func (mm *metricsMiddleware) ClientLog(ctx context.Context, c broker.Client) broker.ClientLog {
	defer mm.observe(ctx, "client_log", time.Now())

	return mm.svc.ClientLog(ctx, c)
}

func (mm *metricsMiddleware) observe(ctx context.Context, op string, begin time.Time) {
	mm.metrics.RecordOperation(ctx, op, time.Since(begin))
}

func (mm *metricsMiddleware) fail(ctx context.Context, op string, err error) {
	mm.stats.IncrementErrors(err)
	mm.metrics.RecordError(ctx, op, string(broker.KindOf(err)))
}
