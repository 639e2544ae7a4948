// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/absmach/qgate"

// Metrics holds OpenTelemetry metric instruments for the queue broker.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	meter metric.Meter

	// Counters
	queuesCreated  metric.Int64Counter
	messagesPushed metric.Int64Counter
	bytesPushed    metric.Int64Counter
	errorsTotal    metric.Int64Counter

	// UpDownCounters (Gauges)
	queuesCurrent     metric.Int64UpDownCounter
	subscribersActive metric.Int64UpDownCounter
	publishersActive  metric.Int64UpDownCounter

	// Histograms
	payloadSize       metric.Int64Histogram
	operationDuration metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance using the global meter provider.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		meter: otel.Meter(meterName),
	}

	var err error

	m.queuesCreated, err = m.meter.Int64Counter(
		"qgate.queues.created.total",
		metric.WithDescription("Total number of queues created"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create queuesCreated counter: %w", err)
	}

	m.messagesPushed, err = m.meter.Int64Counter(
		"qgate.messages.pushed.total",
		metric.WithDescription("Total messages pushed into queues"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messagesPushed counter: %w", err)
	}

	m.bytesPushed, err = m.meter.Int64Counter(
		"qgate.bytes.pushed.total",
		metric.WithDescription("Total payload bytes pushed"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create bytesPushed counter: %w", err)
	}

	m.errorsTotal, err = m.meter.Int64Counter(
		"qgate.errors.total",
		metric.WithDescription("Total failed operations by operation and kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create errorsTotal counter: %w", err)
	}

	m.queuesCurrent, err = m.meter.Int64UpDownCounter(
		"qgate.queues.current",
		metric.WithDescription("Current number of queues"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create queuesCurrent gauge: %w", err)
	}

	m.subscribersActive, err = m.meter.Int64UpDownCounter(
		"qgate.subscribers.active",
		metric.WithDescription("Number of subscriptions across all queues"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscribersActive gauge: %w", err)
	}

	m.publishersActive, err = m.meter.Int64UpDownCounter(
		"qgate.publishers.active",
		metric.WithDescription("Number of publisher grants added after queue creation"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create publishersActive gauge: %w", err)
	}

	m.payloadSize, err = m.meter.Int64Histogram(
		"qgate.message.size.bytes",
		metric.WithDescription("Message payload size distribution"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create payloadSize histogram: %w", err)
	}

	m.operationDuration, err = m.meter.Float64Histogram(
		"qgate.operation.duration.ms",
		metric.WithDescription("Broker operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operationDuration histogram: %w", err)
	}

	return m, nil
}

// RecordQueueCreated records a new queue.
func (m *Metrics) RecordQueueCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.queuesCreated.Add(ctx, 1)
	m.queuesCurrent.Add(ctx, 1)
}

// RecordSubscribers records a subscriber set change by delta.
func (m *Metrics) RecordSubscribers(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.subscribersActive.Add(ctx, delta)
}

// RecordPublishers records a publisher set change by delta.
func (m *Metrics) RecordPublishers(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.publishersActive.Add(ctx, delta)
}

// RecordPush records a message pushed to queue.
func (m *Metrics) RecordPush(ctx context.Context, queue string, sizeBytes int) {
	if m == nil {
		return
	}
	m.messagesPushed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue", queue),
	))
	m.bytesPushed.Add(ctx, int64(sizeBytes))
	m.payloadSize.Record(ctx, int64(sizeBytes))
}

// RecordError records a failed operation.
func (m *Metrics) RecordError(ctx context.Context, op, kind string) {
	if m == nil {
		return
	}
	m.errorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("kind", kind),
	))
}

// RecordOperation records the duration of a broker operation.
func (m *Metrics) RecordOperation(ctx context.Context, op string, d time.Duration) {
	if m == nil {
		return
	}
	m.operationDuration.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributes(
		attribute.String("operation", op),
	))
}
